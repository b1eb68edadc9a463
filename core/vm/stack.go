package vm

import (
	"sync"

	"github.com/holiman/uint256"
)

// StackLimit is the maximum number of items on the operand stack.
const StackLimit = 1024

var stackPool = sync.Pool{
	New: func() interface{} {
		return &Stack{data: make([]uint256.Int, 0, 16)}
	},
}

// Stack is the 256-bit word operand stack of a frame. Items are stored by
// value; Peek and Back return pointers into the backing array that stay
// valid until the next push or pop.
type Stack struct {
	data []uint256.Int
}

// NewStack fetches a stack from the pool.
func NewStack() *Stack {
	return stackPool.Get().(*Stack)
}

// ReturnStack clears the stack and returns it to the pool.
func ReturnStack(s *Stack) {
	s.data = s.data[:0]
	stackPool.Put(s)
}

// Data returns the backing slice, bottom first.
func (st *Stack) Data() []uint256.Int { return st.data }

func (st *Stack) Push(d *uint256.Int) {
	st.data = append(st.data, *d)
}

func (st *Stack) Pop() (ret uint256.Int) {
	ret = st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return
}

func (st *Stack) Len() int { return len(st.data) }

func (st *Stack) Swap(n int) {
	st.data[st.Len()-n-1], st.data[st.Len()-1] = st.data[st.Len()-1], st.data[st.Len()-n-1]
}

func (st *Stack) Dup(n int) {
	st.Push(&st.data[st.Len()-n])
}

// Peek returns the top of the stack without popping it.
func (st *Stack) Peek() *uint256.Int {
	return &st.data[st.Len()-1]
}

// Back returns the n'th item from the top (Back(0) == Peek()).
func (st *Stack) Back(n int) *uint256.Int {
	return &st.data[st.Len()-n-1]
}
