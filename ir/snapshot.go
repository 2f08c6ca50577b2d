package ir

import (
	"io"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is a set of functions serialized together.
type Snapshot struct {
	Funcs []*Func `msgpack:"funcs"`
}

// Clone returns a deep copy of f. The copy shares no block or value with f, so
// one of them can be transformed while the other is kept for comparison.
func (f *Func) Clone() (*Func, error) {
	b, err := msgpack.Marshal(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot encode %s", f.Name)
	}
	var c Func
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s", f.Name)
	}
	return &c, nil
}

// WriteSnapshot encodes fns to w in msgpack format.
func WriteSnapshot(w io.Writer, fns []*Func) error {
	if err := msgpack.NewEncoder(w).Encode(&Snapshot{Funcs: fns}); err != nil {
		return errors.Wrap(err, "cannot write snapshot")
	}
	return nil
}

// ReadSnapshot decodes functions written by WriteSnapshot.
func ReadSnapshot(r io.Reader) ([]*Func, error) {
	var s Snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "cannot read snapshot")
	}
	for _, f := range s.Funcs {
		if err := f.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid function in snapshot")
		}
	}
	return s.Funcs, nil
}
