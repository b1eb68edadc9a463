package vm

import "github.com/holiman/uint256"

// Memory is the byte-addressable scratch memory of a frame. It only ever
// grows, in 32-byte word increments, and growth is paid for before it
// happens.
type Memory struct {
	store       []byte
	lastGasCost uint64
}

// NewMemory returns a new, empty memory model.
func NewMemory() *Memory {
	return &Memory{}
}

// Set copies value into memory at the given offset. The caller must have
// resized memory beforehand.
func (m *Memory) Set(offset, size uint64, value []byte) {
	if size == 0 {
		return
	}
	if offset+size > uint64(len(m.store)) {
		panic("invalid memory: store empty")
	}
	copy(m.store[offset:offset+size], value)
}

// Set32 writes val as a 32-byte big-endian word at offset.
func (m *Memory) Set32(offset uint64, val *uint256.Int) {
	if offset+32 > uint64(len(m.store)) {
		panic("invalid memory: store empty")
	}
	b32 := val.Bytes32()
	copy(m.store[offset:], b32[:])
}

// Resize grows memory to size bytes. Shrinking is impossible.
func (m *Memory) Resize(size uint64) {
	if uint64(m.Len()) < size {
		m.store = append(m.store, make([]byte, size-uint64(m.Len()))...)
	}
}

// GetCopy returns a fresh copy of memory at [offset, offset+size).
func (m *Memory) GetCopy(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	cpy := make([]byte, size)
	copy(cpy, m.store[offset:offset+size])
	return cpy
}

// GetPtr returns a direct slice into memory at [offset, offset+size).
func (m *Memory) GetPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return m.store[offset : offset+size]
}

// Copy copies overlapping-safe within memory (MCOPY).
func (m *Memory) Copy(dst, src, size uint64) {
	if size == 0 {
		return
	}
	copy(m.store[dst:], m.store[src:src+size])
}

// Len returns the current memory size in bytes.
func (m *Memory) Len() int { return len(m.store) }

// Data returns the backing slice.
func (m *Memory) Data() []byte { return m.store }
