// Package state implements the journaled world-state store: accounts with
// balance, nonce, code and storage, mutated exclusively through a
// snapshot/revert protocol whose nesting mirrors the EVM call stack.
package state

import (
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/ethvm/ethvm/core/types"
)

// ripemd is the historical precompile address whose touch survives frame
// reverts. A mainnet transaction once touched it inside a failing call and
// the resulting deletion was consensus, so the quirk is load-bearing.
var ripemd = types.HexToAddress("0000000000000000000000000000000000000003")

// stateObject is one account plus its code and storage, as currently
// modified within the ongoing block.
type stateObject struct {
	address types.Address
	account types.Account
	code    []byte

	// originStorage holds the values as of the last Finalise (transaction
	// boundary); dirtyStorage holds writes made since. A zero value is
	// equivalent to the key being absent.
	originStorage map[types.Hash]types.Hash
	dirtyStorage  map[types.Hash]types.Hash

	selfDestructed bool
}

func newStateObject(addr types.Address) *stateObject {
	return &stateObject{
		address:       addr,
		account:       types.NewAccount(),
		originStorage: make(map[types.Hash]types.Hash),
		dirtyStorage:  make(map[types.Hash]types.Hash),
	}
}

func (obj *stateObject) empty() bool {
	return obj.account.IsEmpty()
}

func (obj *stateObject) getState(key types.Hash) types.Hash {
	if value, dirty := obj.dirtyStorage[key]; dirty {
		return value
	}
	return obj.originStorage[key]
}

// finalise folds the dirty storage into the committed layer at a
// transaction boundary.
func (obj *stateObject) finalise() {
	for key, value := range obj.dirtyStorage {
		if value.IsZero() {
			delete(obj.originStorage, key)
		} else {
			obj.originStorage[key] = value
		}
		delete(obj.dirtyStorage, key)
	}
}

// StateDB is an in-memory, journaled implementation of the world state.
// It satisfies the vm.StateDB interface. All mutation goes through the
// journal so any point between Snapshot and now can be reverted to
// bit-identically.
type StateDB struct {
	stateObjects map[types.Address]*stateObject
	journal      *journal
	refund       uint64

	accessList       *accessList
	transientStorage transientStorage

	thash   types.Hash
	txIndex int
	logs    map[types.Hash][]*types.Log
	logSize uint
}

// New creates an empty state database.
func New() *StateDB {
	return &StateDB{
		stateObjects:     make(map[types.Address]*stateObject),
		journal:          newJournal(),
		accessList:       newAccessList(),
		transientStorage: newTransientStorage(),
		logs:             make(map[types.Hash][]*types.Log),
	}
}

func (s *StateDB) getStateObject(addr types.Address) *stateObject {
	return s.stateObjects[addr]
}

func (s *StateDB) getOrNewStateObject(addr types.Address) *stateObject {
	if obj := s.stateObjects[addr]; obj != nil {
		return obj
	}
	obj := newStateObject(addr)
	s.journal.append(createObjectChange{addr: addr})
	s.stateObjects[addr] = obj
	return obj
}

// touch marks an account as modified without changing it, so that EIP-161
// pruning considers it at the end of the transaction.
func (s *StateDB) touch(addr types.Address) {
	s.journal.append(touchChange{addr: addr})
	if addr == ripemd {
		// Explicitly dirty beyond the journal; see the ripemd comment.
		s.journal.dirty(addr)
	}
}

// --- Account operations ---

// CreateAccount makes addr exist. Any balance already present is carried
// over: a contract deployed onto a pre-funded address keeps the funds.
func (s *StateDB) CreateAccount(addr types.Address) {
	prev := s.stateObjects[addr]
	s.journal.append(createObjectChange{addr: addr, prev: prev})
	obj := newStateObject(addr)
	if prev != nil {
		obj.account.Balance.Set(prev.account.Balance)
	}
	s.stateObjects[addr] = obj
}

func (s *StateDB) Exist(addr types.Address) bool {
	return s.getStateObject(addr) != nil
}

// Empty implements EIP-161: an absent account and an existing account with
// zero nonce, zero balance and no code are indistinguishable.
func (s *StateDB) Empty(addr types.Address) bool {
	obj := s.getStateObject(addr)
	return obj == nil || obj.empty()
}

func (s *StateDB) GetBalance(addr types.Address) *uint256.Int {
	if obj := s.getStateObject(addr); obj != nil {
		return new(uint256.Int).Set(obj.account.Balance)
	}
	return new(uint256.Int)
}

func (s *StateDB) AddBalance(addr types.Address, amount *uint256.Int) {
	obj := s.getOrNewStateObject(addr)
	if amount.IsZero() {
		if obj.empty() {
			s.touch(addr)
		}
		return
	}
	s.journal.append(balanceChange{addr: addr, prev: new(uint256.Int).Set(obj.account.Balance)})
	obj.account.Balance = new(uint256.Int).Add(obj.account.Balance, amount)
}

func (s *StateDB) SubBalance(addr types.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(uint256.Int).Set(obj.account.Balance)})
	obj.account.Balance = new(uint256.Int).Sub(obj.account.Balance, amount)
}

func (s *StateDB) SetBalance(addr types.Address, amount *uint256.Int) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(uint256.Int).Set(obj.account.Balance)})
	obj.account.Balance = new(uint256.Int).Set(amount)
}

func (s *StateDB) GetNonce(addr types.Address) uint64 {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.account.Nonce
	}
	return 0
}

func (s *StateDB) SetNonce(addr types.Address, nonce uint64) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(nonceChange{addr: addr, prev: obj.account.Nonce})
	obj.account.Nonce = nonce
}

func (s *StateDB) GetCode(addr types.Address) []byte {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.code
	}
	return nil
}

func (s *StateDB) GetCodeSize(addr types.Address) int {
	return len(s.GetCode(addr))
}

func (s *StateDB) GetCodeHash(addr types.Address) types.Hash {
	if obj := s.getStateObject(addr); obj != nil {
		return types.BytesToHash(obj.account.CodeHash)
	}
	return types.Hash{}
}

func (s *StateDB) SetCode(addr types.Address, code []byte) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(codeChange{addr: addr, prevCode: obj.code, prevHash: obj.account.CodeHash})
	obj.code = code
	obj.account.CodeHash = crypto.Keccak256(code)
}

// --- Storage ---

func (s *StateDB) GetState(addr types.Address, key types.Hash) types.Hash {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.getState(key)
	}
	return types.Hash{}
}

// GetCommittedState returns the value of the slot as of the start of the
// current transaction, ignoring any writes made since.
func (s *StateDB) GetCommittedState(addr types.Address, key types.Hash) types.Hash {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.originStorage[key]
	}
	return types.Hash{}
}

func (s *StateDB) SetState(addr types.Address, key, value types.Hash) {
	obj := s.getOrNewStateObject(addr)
	prev := obj.getState(key)
	if prev == value {
		return
	}
	s.journal.append(storageChange{addr: addr, key: key, prev: prev})
	obj.dirtyStorage[key] = value
}

func (s *StateDB) GetTransientState(addr types.Address, key types.Hash) types.Hash {
	return s.transientStorage.Get(addr, key)
}

func (s *StateDB) SetTransientState(addr types.Address, key, value types.Hash) {
	prev := s.transientStorage.Get(addr, key)
	if prev == value {
		return
	}
	s.journal.append(transientStorageChange{addr: addr, key: key, prev: prev})
	s.transientStorage.Set(addr, key, value)
}

// --- Self destruct ---

// SelfDestruct zeroes the account balance and marks the account for
// deletion at the end of the transaction. Code and storage stay readable
// until then.
func (s *StateDB) SelfDestruct(addr types.Address) {
	obj := s.getStateObject(addr)
	if obj == nil {
		return
	}
	s.journal.append(selfDestructChange{
		addr:        addr,
		prev:        obj.selfDestructed,
		prevBalance: new(uint256.Int).Set(obj.account.Balance),
	})
	obj.selfDestructed = true
	obj.account.Balance = new(uint256.Int)
}

func (s *StateDB) HasSelfDestructed(addr types.Address) bool {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.selfDestructed
	}
	return false
}

// --- Refund counter ---

func (s *StateDB) AddRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund += gas
}

func (s *StateDB) SubRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	if gas > s.refund {
		log.Error("Refund counter below zero", "gas", gas, "refund", s.refund)
		gas = s.refund
	}
	s.refund -= gas
}

func (s *StateDB) GetRefund() uint64 {
	return s.refund
}

// --- Access list (EIP-2929) ---

func (s *StateDB) AddAddressToAccessList(addr types.Address) {
	if s.accessList.AddAddress(addr) {
		s.journal.append(accessListAddAccountChange{addr: addr})
	}
}

func (s *StateDB) AddSlotToAccessList(addr types.Address, slot types.Hash) {
	addrChange, slotChange := s.accessList.AddSlot(addr, slot)
	if addrChange {
		s.journal.append(accessListAddAccountChange{addr: addr})
	}
	if slotChange {
		s.journal.append(accessListAddSlotChange{addr: addr, slot: slot})
	}
}

func (s *StateDB) AddressInAccessList(addr types.Address) bool {
	return s.accessList.ContainsAddress(addr)
}

func (s *StateDB) SlotInAccessList(addr types.Address, slot types.Hash) (bool, bool) {
	return s.accessList.Contains(addr, slot)
}

// Prepare resets the per-transaction access list and warms the addresses
// known in advance: sender, recipient, coinbase, active precompiles and
// the transaction access list (EIP-2929 + EIP-2930). The caller only
// invokes it from Berlin on.
func (s *StateDB) Prepare(sender, coinbase types.Address, dst *types.Address, precompiles []types.Address, list types.AccessList, warmCoinbase bool) {
	s.accessList = newAccessList()
	s.AddAddressToAccessList(sender)
	if dst != nil {
		s.AddAddressToAccessList(*dst)
	}
	for _, addr := range precompiles {
		s.AddAddressToAccessList(addr)
	}
	for _, tuple := range list {
		s.AddAddressToAccessList(tuple.Address)
		for _, key := range tuple.StorageKeys {
			s.AddSlotToAccessList(tuple.Address, key)
		}
	}
	if warmCoinbase {
		// EIP-3651, Shanghai.
		s.AddAddressToAccessList(coinbase)
	}
}

// --- Logs ---

// SetTxContext records the hash and index of the transaction about to be
// executed, and clears the transient storage left by the previous one.
func (s *StateDB) SetTxContext(thash types.Hash, txIndex int) {
	s.thash = thash
	s.txIndex = txIndex
	s.transientStorage = newTransientStorage()
}

func (s *StateDB) TxIndex() int {
	return s.txIndex
}

func (s *StateDB) AddLog(l *types.Log) {
	s.journal.append(addLogChange{txHash: s.thash})
	l.TxHash = s.thash
	l.TxIndex = uint(s.txIndex)
	l.Index = s.logSize
	s.logs[s.thash] = append(s.logs[s.thash], l)
	s.logSize++
}

// GetLogs returns the logs emitted by the given transaction.
func (s *StateDB) GetLogs(txHash types.Hash) []*types.Log {
	return s.logs[txHash]
}

// Logs returns all logs accumulated so far, in emission order.
func (s *StateDB) Logs() []*types.Log {
	var all []*types.Log
	for _, logs := range s.logs {
		all = append(all, logs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	return all
}

// --- Snapshot / revert ---

// Snapshot opens a nested state transaction and returns its id. Every
// snapshot is resolved by either RevertToSnapshot or simply by not
// reverting (the commit is implicit).
func (s *StateDB) Snapshot() int {
	return s.journal.snapshot()
}

// RevertToSnapshot undoes all changes made since the snapshot was taken.
func (s *StateDB) RevertToSnapshot(id int) {
	s.journal.revertToSnapshot(id, s)
}

// --- Transaction finalization ---

// Finalise commits the current transaction's writes into the committed
// layer: self-destructed accounts are deleted, and, when deleteEmptyObjects
// is set (EIP-161, Spurious Dragon on), touched-but-empty accounts are
// pruned. The journal and refund counter are reset; earlier snapshots
// become unusable.
func (s *StateDB) Finalise(deleteEmptyObjects bool) {
	for addr := range s.journal.dirties {
		obj, exist := s.stateObjects[addr]
		if !exist {
			continue
		}
		if obj.selfDestructed || (deleteEmptyObjects && obj.empty()) {
			delete(s.stateObjects, addr)
		} else {
			obj.finalise()
		}
	}
	s.clearJournalAndRefund()
}

func (s *StateDB) clearJournalAndRefund() {
	s.journal = newJournal()
	s.refund = 0
}

// --- Root computation ---

// IntermediateRoot finalises pending writes and returns a deterministic
// content hash over the committed state. Zero-valued storage slots never
// contribute, so writing zero and never writing hash identically.
func (s *StateDB) IntermediateRoot(deleteEmptyObjects bool) types.Hash {
	s.Finalise(deleteEmptyObjects)

	addrs := make([]types.Address, 0, len(s.stateObjects))
	for addr := range s.stateObjects {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return string(addrs[i][:]) < string(addrs[j][:])
	})

	h := sha3.NewLegacyKeccak256()
	var nonce [8]byte
	for _, addr := range addrs {
		obj := s.stateObjects[addr]
		binary.BigEndian.PutUint64(nonce[:], obj.account.Nonce)
		balance := obj.account.Balance.Bytes32()
		storageRoot := storageRoot(obj)
		h.Write(addr[:])
		h.Write(nonce[:])
		h.Write(balance[:])
		h.Write(obj.account.CodeHash)
		h.Write(storageRoot[:])
	}
	var root types.Hash
	h.Sum(root[:0])
	return root
}

// Commit finalises the state and returns its root.
func (s *StateDB) Commit(deleteEmptyObjects bool) (types.Hash, error) {
	root := s.IntermediateRoot(deleteEmptyObjects)
	log.Trace("Committed state", "root", root, "accounts", len(s.stateObjects))
	return root, nil
}

func storageRoot(obj *stateObject) types.Hash {
	keys := make([]types.Hash, 0, len(obj.originStorage))
	for key, value := range obj.originStorage {
		if value.IsZero() {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return types.EmptyRootHash
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	h := sha3.NewLegacyKeccak256()
	for _, key := range keys {
		value := obj.originStorage[key]
		h.Write(key[:])
		h.Write(value[:])
	}
	var root types.Hash
	h.Sum(root[:0])
	return root
}
