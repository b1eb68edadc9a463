package core

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
	"github.com/ethvm/ethvm/core/vm"
)

// NewEVMBlockContext builds the block-scoped VM context from a header.
// getHash serves the BLOCKHASH opcode; author overrides the header
// coinbase when non-nil.
func NewEVMBlockContext(header *types.Header, getHash vm.GetHashFunc, author *types.Address) vm.BlockContext {
	beneficiary := header.Coinbase
	if author != nil {
		beneficiary = *author
	}
	var random *types.Hash
	if header.Difficulty == nil || header.Difficulty.Sign() == 0 {
		random = &header.MixDigest
	}
	return vm.BlockContext{
		CanTransfer: CanTransfer,
		Transfer:    Transfer,
		GetHash:     getHash,
		Coinbase:    beneficiary,
		BlockNumber: new(big.Int).Set(header.Number),
		Time:        header.Time,
		Difficulty:  header.Difficulty,
		BaseFee:     header.BaseFee,
		BlobBaseFee: header.BlobBaseFee,
		GasLimit:    header.GasLimit,
		Random:      random,
	}
}

// NewEVMTxContext builds the transaction-scoped VM context.
func NewEVMTxContext(msg *Message) vm.TxContext {
	return vm.TxContext{
		Origin:     msg.From,
		GasPrice:   new(big.Int).Set(msg.GasPrice),
		BlobHashes: msg.BlobHashes,
	}
}

// CanTransfer reports whether the address has enough balance to cover the
// transfer amount.
func CanTransfer(db vm.StateDB, addr types.Address, amount *uint256.Int) bool {
	return db.GetBalance(addr).Cmp(amount) >= 0
}

// Transfer moves amount from sender to recipient.
func Transfer(db vm.StateDB, sender, recipient types.Address, amount *uint256.Int) {
	db.SubBalance(sender, amount)
	db.AddBalance(recipient, amount)
}
