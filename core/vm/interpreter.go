package vm

// ScopeContext bundles the per-frame objects handed to every instruction.
type ScopeContext struct {
	Memory   *Memory
	Stack    *Stack
	Contract *Contract
}

// Interpreter runs contract bytecode against a jump table chosen once per
// message from the fork rules.
type Interpreter struct {
	evm   *EVM
	table JumpTable

	readOnly   bool   // whether to reject state-modifying operations
	returnData []byte // last frame's return data, for RETURNDATA* reuse
}

// NewInterpreter returns an interpreter bound to the EVM's fork rules.
func NewInterpreter(evm *EVM) *Interpreter {
	return &Interpreter{
		evm:   evm,
		table: LookupInstructionSet(evm.chainRules),
	}
}

// Run executes the contract's code with the given input until the code
// halts, reverts or fails. Gas accounting happens against contract.Gas in
// a strict order per step: constant gas, then memory expansion and
// dynamic gas together, then the instruction itself.
//
// A returned error other than ErrExecutionReverted consumes all remaining
// frame gas; the caller is responsible for that via Contract.Gas, which
// Run leaves untouched on failure paths other than charging.
func (in *Interpreter) Run(contract *Contract, input []byte, readOnly bool) (ret []byte, err error) {
	in.evm.depth++
	defer func() { in.evm.depth-- }()

	// The read-only flag sticks for the rest of the call tree: nested
	// frames cannot lift it.
	if readOnly && !in.readOnly {
		in.readOnly = true
		defer func() { in.readOnly = false }()
	}

	// Reset the previous call's return data; keeping it across frames
	// would be cheap but wrong.
	in.returnData = nil

	if len(contract.Code) == 0 {
		return nil, nil
	}

	var (
		op          OpCode
		mem         = NewMemory()
		stack       = NewStack()
		callContext = &ScopeContext{
			Memory:   mem,
			Stack:    stack,
			Contract: contract,
		}
		pc  uint64
		res []byte
	)
	defer ReturnStack(stack)
	contract.Input = input

	for {
		op = contract.GetOp(pc)
		operation := in.table[op]
		if operation == nil {
			return nil, ErrInvalidOpCode{opcode: op}
		}
		if sLen := stack.Len(); sLen < operation.minStack {
			return nil, ErrStackUnderflow{stackLen: sLen, required: operation.minStack}
		} else if sLen > operation.maxStack {
			return nil, ErrStackOverflow{stackLen: sLen, limit: operation.maxStack}
		}
		if in.readOnly && operation.writes {
			return nil, ErrWriteProtection
		}
		if !contract.UseGas(operation.constantGas) {
			return nil, ErrOutOfGas
		}

		var memorySize uint64
		if operation.memorySize != nil {
			memSize, overflow := operation.memorySize(stack)
			if overflow {
				return nil, ErrGasUintOverflow
			}
			// Memory grows in words; the word count must also survive
			// the scaling back to bytes.
			if memorySize, overflow = safeMul(toWordSize(memSize), 32); overflow {
				return nil, ErrGasUintOverflow
			}
		}
		if operation.dynamicGas != nil {
			var dynamicCost uint64
			dynamicCost, err = operation.dynamicGas(in.evm, contract, stack, mem, memorySize)
			if err != nil || !contract.UseGas(dynamicCost) {
				return nil, ErrOutOfGas
			}
		}
		if memorySize > 0 {
			mem.Resize(memorySize)
		}

		res, err = operation.execute(&pc, in, callContext)
		if err != nil {
			break
		}
		if operation.halts {
			return res, nil
		}
		pc++
	}

	if err == ErrExecutionReverted {
		return res, err
	}
	return nil, err
}
