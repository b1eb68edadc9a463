package vm

import "math/big"

// Rules is the flattened fork-flag set for one block. The chain
// configuration owns the schedule; the VM only ever sees this record, so
// every fork-dependent behavior in the interpreter, the gas tables and the
// precompile sets is gated on exactly one of these booleans.
type Rules struct {
	ChainID *big.Int

	IsHomestead        bool
	IsTangerineWhistle bool // EIP-150, repriced state access and the 63/64 rule
	IsSpuriousDragon   bool // EIP-158/161, empty-account pruning, EIP-170
	IsByzantium        bool
	IsConstantinople   bool
	IsPetersburg       bool
	IsIstanbul         bool
	IsBerlin           bool
	IsLondon           bool
	IsMerge            bool
	IsShanghai         bool
	IsCancun           bool
	IsPrague           bool
}
