package state

import "github.com/ethvm/ethvm/core/types"

// transientStorage holds EIP-1153 transient storage. It lives for a single
// transaction and is discarded wholesale when the next one starts.
type transientStorage map[types.Address]map[types.Hash]types.Hash

func newTransientStorage() transientStorage {
	return make(transientStorage)
}

// Set writes a transient storage slot. Zero writes delete the slot so that
// empty maps do not accumulate.
func (t transientStorage) Set(addr types.Address, key, value types.Hash) {
	if value.IsZero() {
		if m, ok := t[addr]; ok {
			delete(m, key)
			if len(m) == 0 {
				delete(t, addr)
			}
		}
		return
	}
	if _, ok := t[addr]; !ok {
		t[addr] = make(map[types.Hash]types.Hash)
	}
	t[addr][key] = value
}

// Get reads a transient storage slot; absent slots read as zero.
func (t transientStorage) Get(addr types.Address, key types.Hash) types.Hash {
	if m, ok := t[addr]; ok {
		return m[key]
	}
	return types.Hash{}
}
