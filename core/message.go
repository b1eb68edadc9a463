package core

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
)

// Message is a fully derived transaction ready for execution: the sender
// is recovered, the effective gas price resolved against the block's base
// fee. It is also the natural shape for simulated calls.
type Message struct {
	To    *types.Address // nil means contract creation
	From  types.Address
	Nonce uint64
	Value *uint256.Int

	GasLimit  uint64
	GasPrice  *big.Int
	GasFeeCap *big.Int
	GasTipCap *big.Int

	Data       []byte
	AccessList types.AccessList

	BlobGasFeeCap *big.Int
	BlobHashes    []types.Hash

	// SkipNonceChecks and SkipFromEOACheck relax validation for
	// simulated calls that execute against arbitrary accounts.
	SkipNonceChecks  bool
	SkipFromEOACheck bool
}

var errValueOverflow = errors.New("transaction value exceeds 256 bits")

// TransactionToMessage derives a Message from a signed transaction,
// recovering the sender and resolving the gas price the transaction
// will actually pay under baseFee.
func TransactionToMessage(tx *types.Transaction, chainID *big.Int, baseFee *big.Int) (*Message, error) {
	from, err := tx.Sender(chainID)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if tx.Value != nil {
		value.Set(tx.Value)
	}
	valueU256, overflow := uint256.FromBig(value)
	if overflow {
		return nil, errValueOverflow
	}
	gasFeeCap, gasTipCap := tx.GasFeeCap, tx.GasTipCap
	if tx.Type < types.DynamicFeeTxType {
		gasFeeCap = tx.GasPrice
		gasTipCap = tx.GasPrice
	}
	return &Message{
		To:            tx.To,
		From:          from,
		Nonce:         tx.Nonce,
		Value:         valueU256,
		GasLimit:      tx.Gas,
		GasPrice:      tx.EffectiveGasPrice(baseFee),
		GasFeeCap:     new(big.Int).Set(gasFeeCap),
		GasTipCap:     new(big.Int).Set(gasTipCap),
		Data:          tx.Data,
		AccessList:    tx.AccessList,
		BlobGasFeeCap: tx.BlobFeeCap,
		BlobHashes:    tx.BlobHashes,
	}, nil
}

// IsContractCreation reports whether the message has no recipient.
func (msg *Message) IsContractCreation() bool {
	return msg.To == nil
}
