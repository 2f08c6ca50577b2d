package loop

import (
	"sync"

	"github.com/nickng/loopfuse/ir"
	"github.com/pkg/errors"
)

var ErrEmptyStack = errors.New("error: empty stack")

// Stack is a stack of ir.BlockID.
type Stack struct {
	sync.Mutex
	s []ir.BlockID
}

// NewStack creates a new Stack.
func NewStack() *Stack {
	return &Stack{s: []ir.BlockID{}}
}

// Push adds a new block to the top of stack.
func (s *Stack) Push(b ir.BlockID) {
	s.Lock()
	defer s.Unlock()
	s.s = append(s.s, b)
}

// Pop removes a block from top of stack.
func (s *Stack) Pop() (ir.BlockID, error) {
	s.Lock()
	defer s.Unlock()

	size := len(s.s)
	if size == 0 {
		return ir.NoBlock, ErrEmptyStack
	}
	b := s.s[size-1]
	s.s = s.s[:size-1]
	return b, nil
}

// IsEmpty returns true if stack is empty.
func (s *Stack) IsEmpty() bool {
	s.Lock()
	defer s.Unlock()
	return len(s.s) == 0
}
