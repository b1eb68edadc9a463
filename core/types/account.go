package types

import "github.com/holiman/uint256"

// Account is the consensus representation of an Ethereum account: nonce,
// balance, storage root and code hash. The associated storage mapping and
// code blob live next to it in the state database.
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	Root     Hash   // storage root, EmptyRootHash when no storage
	CodeHash []byte // keccak256 of the code, EmptyCodeHash for EOAs
}

// NewAccount returns a fresh account with zero nonce, zero balance, no code
// and no storage.
func NewAccount() Account {
	return Account{
		Balance:  new(uint256.Int),
		Root:     EmptyRootHash,
		CodeHash: EmptyCodeHash.Bytes(),
	}
}

// Copy returns a deep copy of the account.
func (acc Account) Copy() Account {
	cpy := Account{
		Nonce: acc.Nonce,
		Root:  acc.Root,
	}
	cpy.Balance = new(uint256.Int)
	if acc.Balance != nil {
		cpy.Balance.Set(acc.Balance)
	}
	cpy.CodeHash = make([]byte, len(acc.CodeHash))
	copy(cpy.CodeHash, acc.CodeHash)
	return cpy
}

// HasCode reports whether the account's code hash differs from the empty
// code hash.
func (acc Account) HasCode() bool {
	return len(acc.CodeHash) > 0 && BytesToHash(acc.CodeHash) != EmptyCodeHash
}

// IsEmpty reports whether the account is empty per EIP-161: zero nonce,
// zero balance and no code. Empty accounts are indistinguishable from
// non-existing ones and are pruned after being touched.
func (acc Account) IsEmpty() bool {
	return acc.Nonce == 0 && (acc.Balance == nil || acc.Balance.IsZero()) && !acc.HasCode()
}
