package state

import "github.com/ethvm/ethvm/core/types"

// accessList is the per-transaction warm address and storage slot set of
// EIP-2929. Additions are journaled by the StateDB so that warmth acquired
// inside a reverted frame is rolled back with it.
type accessList struct {
	addresses map[types.Address]int
	slots     []map[types.Hash]struct{}
}

func newAccessList() *accessList {
	return &accessList{
		addresses: make(map[types.Address]int),
	}
}

// ContainsAddress reports whether the address is warm.
func (al *accessList) ContainsAddress(addr types.Address) bool {
	_, ok := al.addresses[addr]
	return ok
}

// Contains reports whether the address, and the (address, slot) pair, are
// warm.
func (al *accessList) Contains(addr types.Address, slot types.Hash) (addressPresent bool, slotPresent bool) {
	idx, ok := al.addresses[addr]
	if !ok {
		return false, false
	}
	if idx == -1 {
		return true, false
	}
	_, slotPresent = al.slots[idx][slot]
	return true, slotPresent
}

// AddAddress warms an address. Returns false if it was already present.
func (al *accessList) AddAddress(addr types.Address) bool {
	if _, present := al.addresses[addr]; present {
		return false
	}
	al.addresses[addr] = -1
	return true
}

// AddSlot warms a storage slot, warming its address as a side effect.
// The two booleans report whether the address respectively the slot were
// newly added.
func (al *accessList) AddSlot(addr types.Address, slot types.Hash) (addrChange bool, slotChange bool) {
	idx, addrPresent := al.addresses[addr]
	if !addrPresent || idx == -1 {
		al.addresses[addr] = len(al.slots)
		al.slots = append(al.slots, map[types.Hash]struct{}{slot: {}})
		return !addrPresent, true
	}
	if _, ok := al.slots[idx][slot]; !ok {
		al.slots[idx][slot] = struct{}{}
		return false, true
	}
	return false, false
}

// DeleteAddress unwinds an AddAddress. Only safe when performed in the
// exact reverse order of additions, which the journal guarantees.
func (al *accessList) DeleteAddress(addr types.Address) {
	delete(al.addresses, addr)
}

// DeleteSlot unwinds an AddSlot, with the same ordering requirement.
func (al *accessList) DeleteSlot(addr types.Address, slot types.Hash) {
	idx, ok := al.addresses[addr]
	if !ok || idx == -1 {
		return
	}
	slotmap := al.slots[idx]
	delete(slotmap, slot)
	if len(slotmap) == 0 {
		al.slots = al.slots[:idx]
		al.addresses[addr] = -1
	}
}
