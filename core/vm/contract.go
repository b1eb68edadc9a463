package vm

import (
	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
)

// Contract is the per-frame execution context of a code object: who called
// it, where its storage lives, the code being run and the gas it has left.
type Contract struct {
	// CallerAddress is msg.sender within the frame; for DELEGATECALL it is
	// the caller of the parent frame, not the code owner.
	CallerAddress types.Address
	// Address is the storage/self context the code executes in.
	Address types.Address
	// CodeAddress is where the code was loaded from. It differs from
	// Address for CALLCODE and DELEGATECALL.
	CodeAddress types.Address

	Code     []byte
	CodeHash types.Hash
	Input    []byte

	Gas   uint64
	Value *uint256.Int

	analysis bitvec // cached JUMPDEST analysis of Code
}

// NewContract returns a contract frame context.
func NewContract(caller, address types.Address, value *uint256.Int, gas uint64) *Contract {
	if value == nil {
		value = new(uint256.Int)
	}
	return &Contract{
		CallerAddress: caller,
		Address:       address,
		CodeAddress:   address,
		Value:         value,
		Gas:           gas,
	}
}

// SetCallCode attaches code loaded from codeAddr to the frame.
func (c *Contract) SetCallCode(codeAddr types.Address, hash types.Hash, code []byte) {
	c.CodeAddress = codeAddr
	c.Code = code
	c.CodeHash = hash
	c.analysis = nil
}

// GetOp returns the opcode at pc, or STOP past the end of the code.
func (c *Contract) GetOp(n uint64) OpCode {
	if n < uint64(len(c.Code)) {
		return OpCode(c.Code[n])
	}
	return STOP
}

// UseGas consumes gas from the frame, reporting whether enough was left.
func (c *Contract) UseGas(gas uint64) bool {
	if c.Gas < gas {
		return false
	}
	c.Gas -= gas
	return true
}

// RefundGas returns unspent gas from a completed sub-call.
func (c *Contract) RefundGas(gas uint64) {
	c.Gas += gas
}

// validJumpdest reports whether dest is a JUMPDEST opcode that is not part
// of PUSH immediate data.
func (c *Contract) validJumpdest(dest *uint256.Int) bool {
	udest, overflow := dest.Uint64WithOverflow()
	// PC cannot go beyond len(code), and certainly cannot be bigger than
	// 2^63 since that would exceed any plausible code size.
	if overflow || udest >= uint64(len(c.Code)) {
		return false
	}
	if OpCode(c.Code[udest]) != JUMPDEST {
		return false
	}
	return c.isCode(udest)
}

// isCode reports whether the byte at udest is an opcode start.
func (c *Contract) isCode(udest uint64) bool {
	if c.analysis == nil {
		c.analysis = codeBitmap(c.Code)
	}
	return c.analysis.codeSegment(udest)
}
