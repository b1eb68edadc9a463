package vm

type executionFunc func(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error)

// operation is one jump table entry: the handler plus everything the
// interpreter needs to know about the opcode before running it.
type operation struct {
	execute     executionFunc
	constantGas uint64
	dynamicGas  gasFunc
	// minStack is the number of stack items the operation pops; maxStack
	// is the largest stack length for which pushing the result does not
	// overflow the 1024-item limit.
	minStack int
	maxStack int
	// memorySize computes the memory an operation needs; nil means none.
	memorySize memorySizeFunc

	halts   bool // stops further execution of the frame
	jumps   bool // the handler sets pc itself
	writes  bool // modifies state, forbidden inside STATICCALL
	reverts bool // halts and reverts the frame's state changes
	returns bool // leaves return data for the caller
}

// JumpTable maps each opcode to its operation; nil entries are invalid
// opcodes for the fork.
type JumpTable [256]*operation

func minStack(pops, push int) int { return pops }
func maxStack(pops, push int) int { return StackLimit + pops - push }

// LookupInstructionSet returns the jump table for the given fork flags.
func LookupInstructionSet(rules Rules) JumpTable {
	switch {
	case rules.IsPrague:
		return newPragueInstructionSet()
	case rules.IsCancun:
		return newCancunInstructionSet()
	case rules.IsShanghai:
		return newShanghaiInstructionSet()
	case rules.IsMerge:
		return newMergeInstructionSet()
	case rules.IsLondon:
		return newLondonInstructionSet()
	case rules.IsBerlin:
		return newBerlinInstructionSet()
	case rules.IsIstanbul:
		return newIstanbulInstructionSet()
	case rules.IsPetersburg, rules.IsConstantinople:
		return newConstantinopleInstructionSet()
	case rules.IsByzantium:
		return newByzantiumInstructionSet()
	case rules.IsSpuriousDragon:
		return newSpuriousDragonInstructionSet()
	case rules.IsTangerineWhistle:
		return newTangerineWhistleInstructionSet()
	case rules.IsHomestead:
		return newHomesteadInstructionSet()
	}
	return newFrontierInstructionSet()
}

func newPragueInstructionSet() JumpTable {
	// Prague adds no opcodes; its changes are precompiles and
	// transaction-level rules.
	return newCancunInstructionSet()
}

func newCancunInstructionSet() JumpTable {
	instructionSet := newShanghaiInstructionSet()
	instructionSet[TLOAD] = &operation{
		execute:     opTload,
		constantGas: TloadGas,
		minStack:    minStack(1, 1),
		maxStack:    maxStack(1, 1),
	}
	instructionSet[TSTORE] = &operation{
		execute:     opTstore,
		constantGas: TstoreGas,
		minStack:    minStack(2, 0),
		maxStack:    maxStack(2, 0),
		writes:      true,
	}
	instructionSet[MCOPY] = &operation{
		execute:     opMcopy,
		constantGas: GasFastestStep,
		dynamicGas:  gasMcopy,
		minStack:    minStack(3, 0),
		maxStack:    maxStack(3, 0),
		memorySize:  memoryMcopy,
	}
	instructionSet[BLOBHASH] = &operation{
		execute:     opBlobHash,
		constantGas: BlobHashGas,
		minStack:    minStack(1, 1),
		maxStack:    maxStack(1, 1),
	}
	instructionSet[BLOBBASEFEE] = &operation{
		execute:     opBlobBaseFee,
		constantGas: BlobBaseFeeGas,
		minStack:    minStack(0, 1),
		maxStack:    maxStack(0, 1),
	}
	return instructionSet
}

func newShanghaiInstructionSet() JumpTable {
	instructionSet := newMergeInstructionSet()
	instructionSet[PUSH0] = &operation{
		execute:     opPush0,
		constantGas: GasQuickStep,
		minStack:    minStack(0, 1),
		maxStack:    maxStack(0, 1),
	}
	// EIP-3860 limits and prices initcode.
	instructionSet[CREATE].dynamicGas = gasCreateEip3860
	instructionSet[CREATE2].dynamicGas = gasCreate2Eip3860
	return instructionSet
}

func newMergeInstructionSet() JumpTable {
	instructionSet := newLondonInstructionSet()
	// 0x44 serves PREVRANDAO after the merge.
	instructionSet[DIFFICULTY].execute = opRandom
	return instructionSet
}

func newLondonInstructionSet() JumpTable {
	instructionSet := newBerlinInstructionSet()
	instructionSet[SSTORE].dynamicGas = gasSStoreEIP3529
	instructionSet[SELFDESTRUCT].dynamicGas = gasSelfdestructEIP3529
	instructionSet[BASEFEE] = &operation{
		execute:     opBaseFee,
		constantGas: GasQuickStep,
		minStack:    minStack(0, 1),
		maxStack:    maxStack(0, 1),
	}
	return instructionSet
}

func newBerlinInstructionSet() JumpTable {
	instructionSet := newIstanbulInstructionSet()
	// EIP-2929: warm costs move into constantGas, the cold surcharge is
	// dynamic.
	instructionSet[BALANCE].constantGas = WarmStorageReadCost
	instructionSet[BALANCE].dynamicGas = gasEip2929AccountCheck
	instructionSet[EXTCODESIZE].constantGas = WarmStorageReadCost
	instructionSet[EXTCODESIZE].dynamicGas = gasEip2929AccountCheck
	instructionSet[EXTCODEHASH].constantGas = WarmStorageReadCost
	instructionSet[EXTCODEHASH].dynamicGas = gasEip2929AccountCheck
	instructionSet[EXTCODECOPY].constantGas = WarmStorageReadCost
	instructionSet[EXTCODECOPY].dynamicGas = gasExtCodeCopyEIP2929
	instructionSet[SLOAD].constantGas = 0
	instructionSet[SLOAD].dynamicGas = gasSLoadEIP2929
	instructionSet[SSTORE].dynamicGas = gasSStoreEIP2929
	instructionSet[CALL].constantGas = WarmStorageReadCost
	instructionSet[CALL].dynamicGas = gasCallEIP2929
	instructionSet[CALLCODE].constantGas = WarmStorageReadCost
	instructionSet[CALLCODE].dynamicGas = gasCallCodeEIP2929
	instructionSet[DELEGATECALL].constantGas = WarmStorageReadCost
	instructionSet[DELEGATECALL].dynamicGas = gasDelegateCallEIP2929
	instructionSet[STATICCALL].constantGas = WarmStorageReadCost
	instructionSet[STATICCALL].dynamicGas = gasStaticCallEIP2929
	instructionSet[SELFDESTRUCT].dynamicGas = gasSelfdestructEIP2929
	return instructionSet
}

func newIstanbulInstructionSet() JumpTable {
	instructionSet := newConstantinopleInstructionSet()
	// EIP-1884 repricings.
	instructionSet[BALANCE].constantGas = GasBalanceEIP1884
	instructionSet[SLOAD].constantGas = GasSloadEIP1884
	instructionSet[EXTCODEHASH].constantGas = GasExtcodeHashEIP1884
	// EIP-2200 net gas metering.
	instructionSet[SSTORE].dynamicGas = gasSStoreEIP2200
	instructionSet[CHAINID] = &operation{
		execute:     opChainID,
		constantGas: GasQuickStep,
		minStack:    minStack(0, 1),
		maxStack:    maxStack(0, 1),
	}
	instructionSet[SELFBALANCE] = &operation{
		execute:     opSelfBalance,
		constantGas: GasSelfBalance,
		minStack:    minStack(0, 1),
		maxStack:    maxStack(0, 1),
	}
	return instructionSet
}

func newConstantinopleInstructionSet() JumpTable {
	instructionSet := newByzantiumInstructionSet()
	instructionSet[SHL] = &operation{
		execute:     opSHL,
		constantGas: GasFastestStep,
		minStack:    minStack(2, 1),
		maxStack:    maxStack(2, 1),
	}
	instructionSet[SHR] = &operation{
		execute:     opSHR,
		constantGas: GasFastestStep,
		minStack:    minStack(2, 1),
		maxStack:    maxStack(2, 1),
	}
	instructionSet[SAR] = &operation{
		execute:     opSAR,
		constantGas: GasFastestStep,
		minStack:    minStack(2, 1),
		maxStack:    maxStack(2, 1),
	}
	instructionSet[EXTCODEHASH] = &operation{
		execute:     opExtCodeHash,
		constantGas: GasExtcodeHash,
		minStack:    minStack(1, 1),
		maxStack:    maxStack(1, 1),
	}
	instructionSet[CREATE2] = &operation{
		execute:     opCreate2,
		constantGas: CreateGas,
		dynamicGas:  gasCreate2,
		minStack:    minStack(4, 1),
		maxStack:    maxStack(4, 1),
		memorySize:  memoryCreate2,
		writes:      true,
		returns:     true,
	}
	return instructionSet
}

func newByzantiumInstructionSet() JumpTable {
	instructionSet := newSpuriousDragonInstructionSet()
	instructionSet[STATICCALL] = &operation{
		execute:     opStaticCall,
		constantGas: GasCallEIP150,
		dynamicGas:  gasStaticCall,
		minStack:    minStack(6, 1),
		maxStack:    maxStack(6, 1),
		memorySize:  memoryStaticCall,
		returns:     true,
	}
	instructionSet[RETURNDATASIZE] = &operation{
		execute:     opReturnDataSize,
		constantGas: GasQuickStep,
		minStack:    minStack(0, 1),
		maxStack:    maxStack(0, 1),
	}
	instructionSet[RETURNDATACOPY] = &operation{
		execute:     opReturnDataCopy,
		constantGas: GasFastestStep,
		dynamicGas:  gasReturnDataCopy,
		minStack:    minStack(3, 0),
		maxStack:    maxStack(3, 0),
		memorySize:  memoryReturnDataCopy,
	}
	instructionSet[REVERT] = &operation{
		execute:    opRevert,
		dynamicGas: gasMemoryExpansion,
		minStack:   minStack(2, 0),
		maxStack:   maxStack(2, 0),
		memorySize: memoryRevert,
		reverts:    true,
		returns:    true,
	}
	return instructionSet
}

func newSpuriousDragonInstructionSet() JumpTable {
	instructionSet := newTangerineWhistleInstructionSet()
	instructionSet[EXP].dynamicGas = gasExpEIP158
	return instructionSet
}

func newTangerineWhistleInstructionSet() JumpTable {
	instructionSet := newHomesteadInstructionSet()
	instructionSet[BALANCE].constantGas = GasBalanceEIP150
	instructionSet[EXTCODESIZE].constantGas = GasExtcodeSizeEIP150
	instructionSet[EXTCODECOPY].constantGas = GasExtcodeCopyEIP150
	instructionSet[SLOAD].constantGas = GasSloadEIP150
	instructionSet[CALL].constantGas = GasCallEIP150
	instructionSet[CALLCODE].constantGas = GasCallEIP150
	instructionSet[DELEGATECALL].constantGas = GasCallEIP150
	return instructionSet
}

func newHomesteadInstructionSet() JumpTable {
	instructionSet := newFrontierInstructionSet()
	instructionSet[DELEGATECALL] = &operation{
		execute:     opDelegateCall,
		constantGas: GasCallFrontier,
		dynamicGas:  gasDelegateCall,
		minStack:    minStack(6, 1),
		maxStack:    maxStack(6, 1),
		memorySize:  memoryDelegateCall,
		returns:     true,
	}
	return instructionSet
}

// newFrontierInstructionSet returns the original launch-day instruction
// set; every later fork is expressed as a delta on top of it.
func newFrontierInstructionSet() JumpTable {
	tbl := JumpTable{
		STOP: {
			execute:  opStop,
			minStack: minStack(0, 0),
			maxStack: maxStack(0, 0),
			halts:    true,
		},
		ADD: {
			execute:     opAdd,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		MUL: {
			execute:     opMul,
			constantGas: GasFastStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		SUB: {
			execute:     opSub,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		DIV: {
			execute:     opDiv,
			constantGas: GasFastStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		SDIV: {
			execute:     opSdiv,
			constantGas: GasFastStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		MOD: {
			execute:     opMod,
			constantGas: GasFastStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		SMOD: {
			execute:     opSmod,
			constantGas: GasFastStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		ADDMOD: {
			execute:     opAddmod,
			constantGas: GasMidStep,
			minStack:    minStack(3, 1),
			maxStack:    maxStack(3, 1),
		},
		MULMOD: {
			execute:     opMulmod,
			constantGas: GasMidStep,
			minStack:    minStack(3, 1),
			maxStack:    maxStack(3, 1),
		},
		EXP: {
			execute:     opExp,
			constantGas: GasSlowStep,
			dynamicGas:  gasExpFrontier,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		SIGNEXTEND: {
			execute:     opSignExtend,
			constantGas: GasFastStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		LT: {
			execute:     opLt,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		GT: {
			execute:     opGt,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		SLT: {
			execute:     opSlt,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		SGT: {
			execute:     opSgt,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		EQ: {
			execute:     opEq,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		ISZERO: {
			execute:     opIszero,
			constantGas: GasFastestStep,
			minStack:    minStack(1, 1),
			maxStack:    maxStack(1, 1),
		},
		AND: {
			execute:     opAnd,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		OR: {
			execute:     opOr,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		XOR: {
			execute:     opXor,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		NOT: {
			execute:     opNot,
			constantGas: GasFastestStep,
			minStack:    minStack(1, 1),
			maxStack:    maxStack(1, 1),
		},
		BYTE: {
			execute:     opByte,
			constantGas: GasFastestStep,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
		},
		KECCAK256: {
			execute:     opKeccak256,
			constantGas: Keccak256Gas,
			dynamicGas:  gasKeccak256,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
			memorySize:  memoryKeccak256,
		},
		ADDRESS: {
			execute:     opAddress,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		BALANCE: {
			execute:     opBalance,
			constantGas: GasBalanceFrontier,
			minStack:    minStack(1, 1),
			maxStack:    maxStack(1, 1),
		},
		ORIGIN: {
			execute:     opOrigin,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		CALLER: {
			execute:     opCaller,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		CALLVALUE: {
			execute:     opCallValue,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		CALLDATALOAD: {
			execute:     opCallDataLoad,
			constantGas: GasFastestStep,
			minStack:    minStack(1, 1),
			maxStack:    maxStack(1, 1),
		},
		CALLDATASIZE: {
			execute:     opCallDataSize,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		CALLDATACOPY: {
			execute:     opCallDataCopy,
			constantGas: GasFastestStep,
			dynamicGas:  gasCallDataCopy,
			minStack:    minStack(3, 0),
			maxStack:    maxStack(3, 0),
			memorySize:  memoryCallDataCopy,
		},
		CODESIZE: {
			execute:     opCodeSize,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		CODECOPY: {
			execute:     opCodeCopy,
			constantGas: GasFastestStep,
			dynamicGas:  gasCodeCopy,
			minStack:    minStack(3, 0),
			maxStack:    maxStack(3, 0),
			memorySize:  memoryCodeCopy,
		},
		GASPRICE: {
			execute:     opGasprice,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		EXTCODESIZE: {
			execute:     opExtCodeSize,
			constantGas: GasExtcodeSizeFrontier,
			minStack:    minStack(1, 1),
			maxStack:    maxStack(1, 1),
		},
		EXTCODECOPY: {
			execute:     opExtCodeCopy,
			constantGas: GasExtcodeCopyFrontier,
			dynamicGas:  gasExtCodeCopy,
			minStack:    minStack(4, 0),
			maxStack:    maxStack(4, 0),
			memorySize:  memoryExtCodeCopy,
		},
		BLOCKHASH: {
			execute:     opBlockhash,
			constantGas: GasExtStep,
			minStack:    minStack(1, 1),
			maxStack:    maxStack(1, 1),
		},
		COINBASE: {
			execute:     opCoinbase,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		TIMESTAMP: {
			execute:     opTimestamp,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		NUMBER: {
			execute:     opNumber,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		DIFFICULTY: {
			execute:     opDifficulty,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		GASLIMIT: {
			execute:     opGasLimit,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		POP: {
			execute:     opPop,
			constantGas: GasQuickStep,
			minStack:    minStack(1, 0),
			maxStack:    maxStack(1, 0),
		},
		MLOAD: {
			execute:     opMload,
			constantGas: GasFastestStep,
			dynamicGas:  gasMemoryExpansion,
			minStack:    minStack(1, 1),
			maxStack:    maxStack(1, 1),
			memorySize:  memoryMLoad,
		},
		MSTORE: {
			execute:     opMstore,
			constantGas: GasFastestStep,
			dynamicGas:  gasMemoryExpansion,
			minStack:    minStack(2, 0),
			maxStack:    maxStack(2, 0),
			memorySize:  memoryMStore,
		},
		MSTORE8: {
			execute:     opMstore8,
			constantGas: GasFastestStep,
			dynamicGas:  gasMemoryExpansion,
			minStack:    minStack(2, 0),
			maxStack:    maxStack(2, 0),
			memorySize:  memoryMStore8,
		},
		SLOAD: {
			execute:     opSload,
			constantGas: GasSloadFrontier,
			minStack:    minStack(1, 1),
			maxStack:    maxStack(1, 1),
		},
		SSTORE: {
			execute:    opSstore,
			dynamicGas: gasSStore,
			minStack:   minStack(2, 0),
			maxStack:   maxStack(2, 0),
			writes:     true,
		},
		JUMP: {
			execute:     opJump,
			constantGas: GasMidStep,
			minStack:    minStack(1, 0),
			maxStack:    maxStack(1, 0),
			jumps:       true,
		},
		JUMPI: {
			execute:     opJumpi,
			constantGas: GasSlowStep,
			minStack:    minStack(2, 0),
			maxStack:    maxStack(2, 0),
			jumps:       true,
		},
		PC: {
			execute:     opPc,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		MSIZE: {
			execute:     opMsize,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		GAS: {
			execute:     opGas,
			constantGas: GasQuickStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		},
		JUMPDEST: {
			execute:     opJumpdest,
			constantGas: JumpdestGas,
			minStack:    minStack(0, 0),
			maxStack:    maxStack(0, 0),
		},
		CREATE: {
			execute:     opCreate,
			constantGas: CreateGas,
			dynamicGas:  gasMemoryExpansion,
			minStack:    minStack(3, 1),
			maxStack:    maxStack(3, 1),
			memorySize:  memoryCreate,
			writes:      true,
			returns:     true,
		},
		CALL: {
			execute:     opCall,
			constantGas: GasCallFrontier,
			dynamicGas:  gasCall,
			minStack:    minStack(7, 1),
			maxStack:    maxStack(7, 1),
			memorySize:  memoryCall,
			returns:     true,
		},
		CALLCODE: {
			execute:     opCallCode,
			constantGas: GasCallFrontier,
			dynamicGas:  gasCallCode,
			minStack:    minStack(7, 1),
			maxStack:    maxStack(7, 1),
			memorySize:  memoryCall,
			returns:     true,
		},
		RETURN: {
			execute:    opReturn,
			dynamicGas: gasMemoryExpansion,
			minStack:   minStack(2, 0),
			maxStack:   maxStack(2, 0),
			memorySize: memoryReturn,
			halts:      true,
		},
		SELFDESTRUCT: {
			execute:    opSelfdestruct,
			dynamicGas: gasSelfdestruct,
			minStack:   minStack(1, 0),
			maxStack:   maxStack(1, 0),
			halts:      true,
			writes:     true,
		},
	}
	for i := 0; i < 32; i++ {
		tbl[int(PUSH1)+i] = &operation{
			execute:     makePush(uint64(i+1), i+1),
			constantGas: GasFastestStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		}
	}
	for i := 1; i <= 16; i++ {
		tbl[int(DUP1)+i-1] = &operation{
			execute:     makeDup(i),
			constantGas: GasFastestStep,
			minStack:    minStack(i, i+1),
			maxStack:    maxStack(i, i+1),
		}
		tbl[int(SWAP1)+i-1] = &operation{
			execute:     makeSwap(i),
			constantGas: GasFastestStep,
			minStack:    minStack(i+1, i+1),
			maxStack:    maxStack(i+1, i+1),
		}
	}
	for i := 0; i <= 4; i++ {
		tbl[int(LOG0)+i] = &operation{
			execute:    makeLog(i),
			dynamicGas: makeGasLog(uint64(i)),
			minStack:   minStack(i+2, 0),
			maxStack:   maxStack(i+2, 0),
			memorySize: memoryLog,
			writes:     true,
		}
	}
	return tbl
}
