package vm

import (
	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
)

// StateDB is the world-state access surface the EVM requires. The
// journaled implementation in core/state satisfies it; the interface lives
// here so the VM does not depend on a concrete store.
type StateDB interface {
	CreateAccount(types.Address)

	SubBalance(types.Address, *uint256.Int)
	AddBalance(types.Address, *uint256.Int)
	GetBalance(types.Address) *uint256.Int

	GetNonce(types.Address) uint64
	SetNonce(types.Address, uint64)

	GetCodeHash(types.Address) types.Hash
	GetCode(types.Address) []byte
	SetCode(types.Address, []byte)
	GetCodeSize(types.Address) int

	AddRefund(uint64)
	SubRefund(uint64)
	GetRefund() uint64

	GetCommittedState(types.Address, types.Hash) types.Hash
	GetState(types.Address, types.Hash) types.Hash
	SetState(types.Address, types.Hash, types.Hash)

	GetTransientState(addr types.Address, key types.Hash) types.Hash
	SetTransientState(addr types.Address, key, value types.Hash)

	SelfDestruct(types.Address)
	HasSelfDestructed(types.Address) bool

	// Exist reports whether the account exists in state; empty accounts
	// exist too. Empty implements the EIP-161 emptiness predicate.
	Exist(types.Address) bool
	Empty(types.Address) bool

	// Prepare resets transaction-scoped access tracking and warms the
	// addresses and slots known before execution (EIP-2929/2930, with the
	// coinbase warmed from Shanghai per EIP-3651).
	Prepare(sender, coinbase types.Address, dest *types.Address, precompiles []types.Address, txAccesses types.AccessList, warmCoinbase bool)

	AddressInAccessList(addr types.Address) bool
	SlotInAccessList(addr types.Address, slot types.Hash) (addressOk bool, slotOk bool)
	AddAddressToAccessList(addr types.Address)
	AddSlotToAccessList(addr types.Address, slot types.Hash)

	Snapshot() int
	RevertToSnapshot(int)

	AddLog(*types.Log)
}
