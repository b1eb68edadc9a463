package types

import "math/big"

// Header carries the block-level values the state transition consumes.
// Consensus fields that never reach the EVM (uncle hash, extra data, and so
// on) are deliberately absent; this engine validates bodies, not headers.
type Header struct {
	ParentHash Hash
	Coinbase   Address
	Root       Hash
	Number     *big.Int
	GasLimit   uint64
	GasUsed    uint64
	Time       uint64
	Difficulty *big.Int
	MixDigest  Hash // prevrandao after the merge

	BaseFee       *big.Int // EIP-1559
	BlobBaseFee   *big.Int // EIP-4844, derived from excess blob gas
	ExcessBlobGas *uint64  // EIP-4844
}
