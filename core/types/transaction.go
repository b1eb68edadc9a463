package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Transaction envelope types (EIP-2718).
const (
	LegacyTxType     = uint8(0x00)
	AccessListTxType = uint8(0x01)
	DynamicFeeTxType = uint8(0x02)
	BlobTxType       = uint8(0x03)
)

var (
	ErrInvalidSig       = errors.New("invalid transaction v, r, s values")
	ErrInvalidTxType    = errors.New("transaction type not supported")
	ErrInvalidChainID   = errors.New("invalid chain id for signer")
	ErrBlobTxNoRecipient = errors.New("blob transaction without recipient")
)

// AccessTuple is an entry of an EIP-2930 access list.
type AccessTuple struct {
	Address     Address
	StorageKeys []Hash
}

// AccessList is an EIP-2930 access list.
type AccessList []AccessTuple

// StorageKeys returns the total number of storage keys in the access list.
func (al AccessList) StorageKeys() int {
	sum := 0
	for _, tuple := range al {
		sum += len(tuple.StorageKeys)
	}
	return sum
}

// Transaction is a single, immutable transaction. One struct covers the
// legacy, access-list (EIP-2930), dynamic-fee (EIP-1559) and blob
// (EIP-4844) variants, discriminated by Type; fee fields not belonging to
// the variant are left nil.
type Transaction struct {
	Type    uint8
	ChainID *big.Int // nil for unprotected legacy transactions
	Nonce   uint64

	GasPrice  *big.Int // legacy and access-list transactions
	GasTipCap *big.Int // EIP-1559 max priority fee per gas
	GasFeeCap *big.Int // EIP-1559 max fee per gas

	Gas   uint64
	To    *Address // nil means contract creation
	Value *big.Int
	Data  []byte

	AccessList AccessList

	BlobFeeCap *big.Int // EIP-4844 max fee per blob gas
	BlobHashes []Hash   // EIP-4844 versioned blob commitment hashes

	V, R, S *big.Int

	// Caches, populated on first use. Transactions are never mutated
	// after construction so plain fields suffice.
	hash   *Hash
	sender *Address
}

// Protected reports whether the transaction is replay-protected: all typed
// transactions are, legacy ones only when signed per EIP-155.
func (tx *Transaction) Protected() bool {
	if tx.Type != LegacyTxType {
		return true
	}
	if tx.V == nil {
		return false
	}
	v := tx.V.Uint64()
	return tx.V.BitLen() <= 8 && v != 27 && v != 28
}

// BlobGas returns the total blob gas of the transaction (EIP-4844).
func (tx *Transaction) BlobGas() uint64 {
	return uint64(len(tx.BlobHashes)) * BlobTxBlobGasPerBlob
}

// BlobTxBlobGasPerBlob is the blob gas consumed per blob (EIP-4844).
const BlobTxBlobGasPerBlob = uint64(1 << 17)

// EffectiveGasPrice returns the per-gas price actually paid under the given
// base fee: min(feeCap, tipCap+baseFee) for dynamic-fee transactions, the
// plain gas price otherwise.
func (tx *Transaction) EffectiveGasPrice(baseFee *big.Int) *big.Int {
	if tx.Type < DynamicFeeTxType || baseFee == nil {
		return new(big.Int).Set(tx.GasPrice)
	}
	tip := new(big.Int).Sub(tx.GasFeeCap, baseFee)
	if tip.Cmp(tx.GasTipCap) > 0 {
		tip.Set(tx.GasTipCap)
	}
	return tip.Add(tip, baseFee)
}

// sigFields returns the unsigned RLP field list hashed for signing.
func (tx *Transaction) sigFields() ([]interface{}, error) {
	switch tx.Type {
	case LegacyTxType:
		fields := []interface{}{tx.Nonce, tx.GasPrice, tx.Gas, tx.To, tx.Value, tx.Data}
		if tx.ChainID != nil && tx.ChainID.Sign() != 0 {
			// EIP-155 replay protection.
			fields = append(fields, tx.ChainID, uint(0), uint(0))
		}
		return fields, nil
	case AccessListTxType:
		return []interface{}{tx.ChainID, tx.Nonce, tx.GasPrice, tx.Gas, tx.To, tx.Value, tx.Data, tx.AccessList}, nil
	case DynamicFeeTxType:
		return []interface{}{tx.ChainID, tx.Nonce, tx.GasTipCap, tx.GasFeeCap, tx.Gas, tx.To, tx.Value, tx.Data, tx.AccessList}, nil
	case BlobTxType:
		if tx.To == nil {
			return nil, ErrBlobTxNoRecipient
		}
		return []interface{}{tx.ChainID, tx.Nonce, tx.GasTipCap, tx.GasFeeCap, tx.Gas, tx.To, tx.Value, tx.Data, tx.AccessList, tx.BlobFeeCap, tx.BlobHashes}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidTxType, tx.Type)
	}
}

// SigHash returns the hash signed by the sender.
func (tx *Transaction) SigHash() (Hash, error) {
	fields, err := tx.sigFields()
	if err != nil {
		return Hash{}, err
	}
	enc, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return Hash{}, err
	}
	if tx.Type == LegacyTxType {
		return BytesToHash(crypto.Keccak256(enc)), nil
	}
	return BytesToHash(crypto.Keccak256(append([]byte{tx.Type}, enc...))), nil
}

// Hash returns the transaction hash over the signed encoding.
func (tx *Transaction) Hash() Hash {
	if tx.hash != nil {
		return *tx.hash
	}
	fields, err := tx.sigFields()
	if err != nil {
		return Hash{}
	}
	if tx.Type == LegacyTxType {
		// Strip the EIP-155 placeholder fields, the signature replaces them.
		fields = fields[:6]
	}
	fields = append(fields, tx.V, tx.R, tx.S)
	enc, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return Hash{}
	}
	var h Hash
	if tx.Type == LegacyTxType {
		h = BytesToHash(crypto.Keccak256(enc))
	} else {
		h = BytesToHash(crypto.Keccak256(append([]byte{tx.Type}, enc...)))
	}
	tx.hash = &h
	return h
}

// Sender recovers the transaction's sender address from its signature,
// validating replay protection against chainID when the transaction is
// protected. The result is cached.
func (tx *Transaction) Sender(chainID *big.Int) (Address, error) {
	if tx.sender != nil {
		return *tx.sender, nil
	}
	if tx.V == nil || tx.R == nil || tx.S == nil {
		return Address{}, ErrInvalidSig
	}

	var recid *big.Int
	homestead := true
	switch {
	case tx.Type != LegacyTxType:
		if tx.ChainID != nil && chainID != nil && tx.ChainID.Cmp(chainID) != 0 {
			return Address{}, ErrInvalidChainID
		}
		recid = new(big.Int).Set(tx.V)
	case tx.Protected():
		if tx.ChainID != nil && chainID != nil && tx.ChainID.Cmp(chainID) != 0 {
			return Address{}, ErrInvalidChainID
		}
		// v = chainID*2 + 35 + recid
		recid = new(big.Int).Sub(tx.V, new(big.Int).Lsh(tx.ChainID, 1))
		recid.Sub(recid, big.NewInt(35))
	default:
		recid = new(big.Int).Sub(tx.V, big.NewInt(27))
	}

	sighash, err := tx.SigHash()
	if err != nil {
		return Address{}, err
	}
	addr, err := recoverPlain(sighash, tx.R, tx.S, recid, homestead)
	if err != nil {
		return Address{}, err
	}
	tx.sender = &addr
	return addr, nil
}

func recoverPlain(sighash Hash, r, s, v *big.Int, homestead bool) (Address, error) {
	if v.BitLen() > 8 {
		return Address{}, ErrInvalidSig
	}
	vb := byte(v.Uint64())
	if !crypto.ValidateSignatureValues(vb, r, s, homestead) {
		return Address{}, ErrInvalidSig
	}
	sig := make([]byte, 65)
	rb, sb := r.Bytes(), s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	sig[64] = vb
	pub, err := crypto.Ecrecover(sighash.Bytes(), sig)
	if err != nil {
		return Address{}, err
	}
	if len(pub) == 0 || pub[0] != 4 {
		return Address{}, errors.New("invalid public key")
	}
	return BytesToAddress(crypto.Keccak256(pub[1:])[12:]), nil
}

// SignTx signs the transaction with the given private key and fills in the
// V, R, S fields in place. Legacy transactions are signed per EIP-155 when
// a chain id is set on the transaction.
func SignTx(tx *Transaction, key *ecdsa.PrivateKey) error {
	sighash, err := tx.SigHash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(sighash.Bytes(), key)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	recid := big.NewInt(int64(sig[64]))
	switch {
	case tx.Type != LegacyTxType:
		tx.V = recid
	case tx.ChainID != nil && tx.ChainID.Sign() != 0:
		tx.V = new(big.Int).Lsh(tx.ChainID, 1)
		tx.V.Add(tx.V, big.NewInt(35))
		tx.V.Add(tx.V, recid)
	default:
		tx.V = recid.Add(recid, big.NewInt(27))
	}
	tx.hash = nil
	tx.sender = nil
	return nil
}
