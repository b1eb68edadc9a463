package state

import (
	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
)

// journalEntry is a single revertible state change.
type journalEntry interface {
	// revert undoes the change on the state database.
	revert(s *StateDB)
	// dirtied returns the address modified by the change, or nil.
	dirtied() *types.Address
}

// journal tracks state modifications so that arbitrary prefixes can be
// reverted. One snapshot is taken per message-call frame; reverting to it
// undoes every change made since, in reverse order.
type journal struct {
	entries   []journalEntry
	dirties   map[types.Address]int // modification count per address
	snapshots map[int]int           // snapshot id -> entry index
	nextID    int
}

func newJournal() *journal {
	return &journal{
		dirties:   make(map[types.Address]int),
		snapshots: make(map[int]int),
	}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
	if addr := entry.dirtied(); addr != nil {
		j.dirties[*addr]++
	}
}

// dirty explicitly marks an address as modified without an attached entry.
// Used for the ripemd precompile touch quirk: that address stays dirty even
// when the frame that touched it reverts.
func (j *journal) dirty(addr types.Address) {
	j.dirties[addr]++
}

func (j *journal) length() int {
	return len(j.entries)
}

func (j *journal) snapshot() int {
	id := j.nextID
	j.nextID++
	j.snapshots[id] = len(j.entries)
	return id
}

func (j *journal) revertToSnapshot(id int, s *StateDB) {
	idx, ok := j.snapshots[id]
	if !ok {
		return
	}
	for i := len(j.entries) - 1; i >= idx; i-- {
		j.entries[i].revert(s)
		if addr := j.entries[i].dirtied(); addr != nil {
			if j.dirties[*addr]--; j.dirties[*addr] == 0 {
				delete(j.dirties, *addr)
			}
		}
	}
	j.entries = j.entries[:idx]

	// Snapshots taken after the reverted one are no longer valid.
	for sid := range j.snapshots {
		if sid >= id {
			delete(j.snapshots, sid)
		}
	}
}

// --- Concrete journal entries ---

type createObjectChange struct {
	addr types.Address
	prev *stateObject // nil if the account did not exist before
}

func (ch createObjectChange) revert(s *StateDB) {
	if ch.prev == nil {
		delete(s.stateObjects, ch.addr)
	} else {
		s.stateObjects[ch.addr] = ch.prev
	}
}

func (ch createObjectChange) dirtied() *types.Address { return &ch.addr }

type selfDestructChange struct {
	addr        types.Address
	prev        bool // whether the account had already self-destructed
	prevBalance *uint256.Int
}

func (ch selfDestructChange) revert(s *StateDB) {
	if obj := s.stateObjects[ch.addr]; obj != nil {
		obj.selfDestructed = ch.prev
		obj.account.Balance = new(uint256.Int).Set(ch.prevBalance)
	}
}

func (ch selfDestructChange) dirtied() *types.Address { return &ch.addr }

type balanceChange struct {
	addr types.Address
	prev *uint256.Int
}

func (ch balanceChange) revert(s *StateDB) {
	if obj := s.stateObjects[ch.addr]; obj != nil {
		obj.account.Balance = new(uint256.Int).Set(ch.prev)
	}
}

func (ch balanceChange) dirtied() *types.Address { return &ch.addr }

type nonceChange struct {
	addr types.Address
	prev uint64
}

func (ch nonceChange) revert(s *StateDB) {
	if obj := s.stateObjects[ch.addr]; obj != nil {
		obj.account.Nonce = ch.prev
	}
}

func (ch nonceChange) dirtied() *types.Address { return &ch.addr }

type codeChange struct {
	addr     types.Address
	prevCode []byte
	prevHash []byte
}

func (ch codeChange) revert(s *StateDB) {
	if obj := s.stateObjects[ch.addr]; obj != nil {
		obj.code = ch.prevCode
		obj.account.CodeHash = ch.prevHash
	}
}

func (ch codeChange) dirtied() *types.Address { return &ch.addr }

type storageChange struct {
	addr types.Address
	key  types.Hash
	prev types.Hash
}

func (ch storageChange) revert(s *StateDB) {
	if obj := s.stateObjects[ch.addr]; obj != nil {
		obj.dirtyStorage[ch.key] = ch.prev
	}
}

func (ch storageChange) dirtied() *types.Address { return &ch.addr }

type transientStorageChange struct {
	addr types.Address
	key  types.Hash
	prev types.Hash
}

func (ch transientStorageChange) revert(s *StateDB) {
	s.transientStorage.Set(ch.addr, ch.key, ch.prev)
}

func (ch transientStorageChange) dirtied() *types.Address { return nil }

type refundChange struct {
	prev uint64
}

func (ch refundChange) revert(s *StateDB) {
	s.refund = ch.prev
}

func (ch refundChange) dirtied() *types.Address { return nil }

type addLogChange struct {
	txHash types.Hash
}

func (ch addLogChange) revert(s *StateDB) {
	logs := s.logs[ch.txHash]
	if len(logs) == 1 {
		delete(s.logs, ch.txHash)
	} else {
		s.logs[ch.txHash] = logs[:len(logs)-1]
	}
	s.logSize--
}

func (ch addLogChange) dirtied() *types.Address { return nil }

type touchChange struct {
	addr types.Address
}

func (ch touchChange) revert(s *StateDB) {}

func (ch touchChange) dirtied() *types.Address { return &ch.addr }

type accessListAddAccountChange struct {
	addr types.Address
}

func (ch accessListAddAccountChange) revert(s *StateDB) {
	s.accessList.DeleteAddress(ch.addr)
}

func (ch accessListAddAccountChange) dirtied() *types.Address { return nil }

type accessListAddSlotChange struct {
	addr types.Address
	slot types.Hash
}

func (ch accessListAddSlotChange) revert(s *StateDB) {
	s.accessList.DeleteSlot(ch.addr, ch.slot)
}

func (ch accessListAddSlotChange) dirtied() *types.Address { return nil }
