package interp

import (
	"fmt"
	"sort"
)

// Object is a memory object. Cells are addressed by byte offset; a cell
// holds a whole Value whatever its width.
type Object struct {
	ID    int
	Size  int64 // In bytes, 0 when unbounded.
	Cells map[int64]Value

	// Seed initialises cells never stored to; 0 means zeroed memory.
	Seed int64
}

// Value is an interpreter value: an integer or boolean in Int, or a pointer
// or slice into Obj at byte offset Off.
type Value struct {
	Int int64
	Obj *Object
	Off int64
	Len int64 // Element count of a slice; -1 for plain pointers.
}

// Int returns an integer Value.
func Int(n int64) Value { return Value{Int: n, Len: -1} }

// IsPointer returns true if v points into an object.
func (v Value) IsPointer() bool { return v.Obj != nil }

func (v Value) String() string {
	if v.Obj == nil {
		if v.Len >= 0 {
			return "nil"
		}
		return fmt.Sprintf("%d", v.Int)
	}
	if v.Len >= 0 {
		return fmt.Sprintf("obj%d[%d:+%d]", v.Obj.ID, v.Off, v.Len)
	}
	return fmt.Sprintf("&obj%d+%d", v.Obj.ID, v.Off)
}

// initial is the content of a cell never stored to.
func (o *Object) initial(off int64) Value {
	if o.Seed == 0 {
		return Int(0)
	}
	// splitmix64 finaliser over the seed and offset.
	z := uint64(o.Seed) + uint64(off)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return Int(int64(z % 100))
}

// Load returns the cell at off.
func (o *Object) Load(off int64) Value {
	if v, ok := o.Cells[off]; ok {
		return v
	}
	return o.initial(off)
}

// Clone returns a copy of o with its own cells. Pointers stored in cells
// still refer to the original objects.
func (o *Object) Clone() *Object {
	c := &Object{ID: o.ID, Size: o.Size, Seed: o.Seed, Cells: make(map[int64]Value, len(o.Cells))}
	for k, v := range o.Cells {
		c.Cells[k] = v
	}
	return c
}

// offsets returns the offsets stored to in a or b, sorted.
func offsets(a, b *Object) []int64 {
	seen := make(map[int64]bool)
	var offs []int64
	for _, o := range []*Object{a, b} {
		for off := range o.Cells {
			if !seen[off] {
				seen[off] = true
				offs = append(offs, off)
			}
		}
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	return offs
}

// sameValue compares values from two runs: pointers are equal when they
// point to objects with the same ID at the same offset.
func sameValue(a, b Value) bool {
	if (a.Obj == nil) != (b.Obj == nil) {
		return false
	}
	if a.Obj != nil {
		return a.Obj.ID == b.Obj.ID && a.Off == b.Off && a.Len == b.Len
	}
	return a.Int == b.Int && a.Len == b.Len
}
