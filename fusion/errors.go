package fusion

import (
	"fmt"

	"github.com/nickng/loopfuse/ir"
	"github.com/pkg/errors"
)

var (
	ErrNoPreheader     = errors.New("loop has no preheader")
	ErrNoLatch         = errors.New("loop has no unique latch")
	ErrNoInductionVar  = errors.New("loop has no canonical induction variable")
	ErrNoBodyExit      = errors.New("latch has no unique predecessor in the loop")
	ErrNoBodyEntry     = errors.New("header has no successor in the loop other than the latch")
	ErrHeaderPhi       = errors.New("header phi cannot be moved into the fused loop")
	ErrEscapingControl = errors.New("header or latch value used outside of header and latch")
	ErrExitPhi         = errors.New("exit block has phis")
	ErrNoExit          = errors.New("loop has no unique exit block")
)

// ShapeError is returned by Fuse when a pair of loops does not have the shape
// the transformation rewires. The function is left unchanged.
type ShapeError struct {
	Func   string
	Header ir.BlockID // Header of the offending loop.
	Err    error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: cannot fuse loop at %s: %v", e.Func, e.Header, e.Err)
}

// Cause returns the underlying shape error.
func (e *ShapeError) Cause() error { return e.Err }

func (e *ShapeError) Unwrap() error { return e.Err }
