package vm

// bitvec marks which positions in a code blob are opcode starts as opposed
// to PUSH immediate data. Bit set means data.
type bitvec []byte

func (bits bitvec) set(pos uint64) {
	bits[pos/8] |= 1 << (pos % 8)
}

func (bits bitvec) setN(flag uint16, pos uint64) {
	a := flag << (pos % 8)
	bits[pos/8] |= byte(a)
	if b := byte(a >> 8); b != 0 {
		bits[pos/8+1] = b
	}
}

// codeSegment reports whether the byte at pos is an opcode start.
func (bits bitvec) codeSegment(pos uint64) bool {
	return ((bits[pos/8] >> (pos % 8)) & 1) == 0
}

// codeBitmap builds the data-byte bitmap for the given code. It is computed
// once per code object and cached on the contract.
func codeBitmap(code []byte) bitvec {
	// The bitmap is 4 bytes longer than necessary, in case the code ends
	// with a PUSH32 whose data reaches past the end of the code.
	bits := make(bitvec, len(code)/8+1+4)
	for pc := uint64(0); pc < uint64(len(code)); {
		op := OpCode(code[pc])
		pc++
		if !op.IsPush() {
			continue
		}
		numbits := uint64(op - PUSH1 + 1)
		for ; numbits >= 8; numbits -= 8 {
			bits.setN(0xFF, pc)
			pc += 8
		}
		for ; numbits > 0; numbits-- {
			bits.set(pc)
			pc++
		}
	}
	return bits
}
