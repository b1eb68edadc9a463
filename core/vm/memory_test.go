package vm

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"
)

func TestMemoryResizeAndSet(t *testing.T) {
	m := NewMemory()
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}

	m.Resize(64)
	if m.Len() != 64 {
		t.Fatalf("Len() = %d after Resize(64), want 64", m.Len())
	}

	m.Set(10, 3, []byte{0xaa, 0xbb, 0xcc})
	if got := m.GetCopy(10, 3); !bytes.Equal(got, []byte{0xaa, 0xbb, 0xcc}) {
		t.Errorf("GetCopy(10, 3) = %x, want aabbcc", got)
	}

	// Resize never shrinks.
	m.Resize(32)
	if m.Len() != 64 {
		t.Errorf("Len() = %d after Resize(32), want 64", m.Len())
	}
}

func TestMemorySet32(t *testing.T) {
	m := NewMemory()
	m.Resize(64)

	v := uint256.NewInt(0xdeadbeef)
	m.Set32(16, v)

	got := m.GetCopy(16, 32)
	want := v.Bytes32()
	if !bytes.Equal(got, want[:]) {
		t.Errorf("Set32 round trip = %x, want %x", got, want)
	}
}

func TestMemoryGetCopyIsDetached(t *testing.T) {
	m := NewMemory()
	m.Resize(32)
	m.Set(0, 2, []byte{0x01, 0x02})

	cpy := m.GetCopy(0, 2)
	cpy[0] = 0xff
	if m.Data()[0] != 0x01 {
		t.Error("mutating GetCopy result leaked into memory")
	}

	ptr := m.GetPtr(0, 2)
	ptr[0] = 0xff
	if m.Data()[0] != 0xff {
		t.Error("GetPtr did not alias memory")
	}
}

func TestMemoryZeroSize(t *testing.T) {
	m := NewMemory()
	if got := m.GetCopy(100, 0); got != nil {
		t.Errorf("GetCopy(_, 0) = %v, want nil", got)
	}
	if got := m.GetPtr(100, 0); got != nil {
		t.Errorf("GetPtr(_, 0) = %v, want nil", got)
	}
	// A zero-size Set past the end must not panic.
	m.Set(100, 0, nil)
}

func TestMemoryCopyOverlap(t *testing.T) {
	m := NewMemory()
	m.Resize(64)
	m.Set(0, 4, []byte{1, 2, 3, 4})

	// Forward overlap: [0,4) onto [2,6).
	m.Copy(2, 0, 4)
	if got := m.GetCopy(0, 6); !bytes.Equal(got, []byte{1, 2, 1, 2, 3, 4}) {
		t.Errorf("overlapping Copy = %x, want 010201020304", got)
	}
}
