// Package types defines the primitive data structures of the execution
// layer: hashes, addresses, accounts, transactions, receipts and logs.
package types

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

const (
	HashLength    = 32
	AddressLength = 20
	BloomLength   = 256
)

// Hash represents the 32-byte Keccak256 hash of arbitrary data.
type Hash [HashLength]byte

// Address represents the 20-byte address of an Ethereum account.
type Address [AddressLength]byte

// Bloom represents a 2048-bit log bloom filter.
type Bloom [BloomLength]byte

var (
	// EmptyCodeHash is the known hash of empty code, keccak256(nil).
	EmptyCodeHash = Hash(crypto.Keccak256Hash(nil))

	// EmptyRootHash is the root of an empty storage mapping.
	EmptyRootHash = Hash(crypto.Keccak256Hash(nil))
)

// BytesToHash converts b to a Hash, left-padding if shorter than 32 bytes.
func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

// HexToHash converts a hex string (with or without 0x prefix) to a Hash.
func HexToHash(s string) Hash {
	return BytesToHash(fromHex(s))
}

// Bytes returns the byte representation of the hash.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the hex string representation of the hash.
func (h Hash) Hex() string { return fmt.Sprintf("0x%x", h[:]) }

// SetBytes sets the hash from b, keeping the rightmost 32 bytes if longer.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
}

// Big returns the hash interpreted as a big-endian integer.
func (h Hash) Big() *big.Int { return new(big.Int).SetBytes(h[:]) }

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return h.Hex() }

// BytesToAddress converts b to an Address, left-padding if shorter than
// 20 bytes and keeping the rightmost 20 bytes if longer.
func BytesToAddress(b []byte) Address {
	var a Address
	a.SetBytes(b)
	return a
}

// BigToAddress converts a big integer to an Address.
func BigToAddress(b *big.Int) Address { return BytesToAddress(b.Bytes()) }

// HexToAddress converts a hex string to an Address.
func HexToAddress(s string) Address {
	return BytesToAddress(fromHex(s))
}

// Bytes returns the byte representation of the address.
func (a Address) Bytes() []byte { return a[:] }

// Hash returns the address left-padded to a 32-byte hash.
func (a Address) Hash() Hash { return BytesToHash(a[:]) }

// Hex returns the hex string representation of the address.
func (a Address) Hex() string { return fmt.Sprintf("0x%x", a[:]) }

// SetBytes sets the address from b.
func (a *Address) SetBytes(b []byte) {
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
}

// IsZero reports whether the address is all zeros.
func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string { return a.Hex() }

// CreateAddress derives the address of a contract created by the given
// account with the given nonce: keccak256(rlp([sender, nonce]))[12:].
func CreateAddress(a Address, nonce uint64) Address {
	data, _ := rlp.EncodeToBytes([]interface{}{a, nonce})
	return BytesToAddress(crypto.Keccak256(data)[12:])
}

// CreateAddress2 derives the CREATE2 address:
// keccak256(0xff ++ sender ++ salt ++ keccak256(initcode))[12:].
func CreateAddress2(a Address, salt Hash, initCodeHash []byte) Address {
	return BytesToAddress(crypto.Keccak256([]byte{0xff}, a[:], salt[:], initCodeHash)[12:])
}

func fromHex(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
