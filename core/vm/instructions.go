package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
)

// getData returns a 32-byte-padded slice of data starting at start; reads
// past the end are zero-filled.
func getData(data []byte, start uint64, size uint64) []byte {
	length := uint64(len(data))
	if start > length {
		start = length
	}
	end := start + size
	if end > length {
		end = length
	}
	return common.RightPadBytes(data[start:end], int(size))
}

func opAdd(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.Add(&x, y)
	return nil, nil
}

func opSub(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.Sub(&x, y)
	return nil, nil
}

func opMul(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.Mul(&x, y)
	return nil, nil
}

func opDiv(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.Div(&x, y)
	return nil, nil
}

func opSdiv(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.SDiv(&x, y)
	return nil, nil
}

func opMod(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.Mod(&x, y)
	return nil, nil
}

func opSmod(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.SMod(&x, y)
	return nil, nil
}

func opAddmod(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y, z := scope.Stack.Pop(), scope.Stack.Pop(), scope.Stack.Peek()
	z.AddMod(&x, &y, z)
	return nil, nil
}

func opMulmod(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y, z := scope.Stack.Pop(), scope.Stack.Pop(), scope.Stack.Peek()
	z.MulMod(&x, &y, z)
	return nil, nil
}

func opExp(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	base, exponent := scope.Stack.Pop(), scope.Stack.Peek()
	exponent.Exp(&base, exponent)
	return nil, nil
}

func opSignExtend(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	back, num := scope.Stack.Pop(), scope.Stack.Peek()
	num.ExtendSign(num, &back)
	return nil, nil
}

func opLt(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	if x.Lt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opGt(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	if x.Gt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opSlt(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	if x.Slt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opSgt(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	if x.Sgt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opEq(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	if x.Eq(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opIszero(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x := scope.Stack.Peek()
	if x.IsZero() {
		x.SetOne()
	} else {
		x.Clear()
	}
	return nil, nil
}

func opAnd(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.And(&x, y)
	return nil, nil
}

func opOr(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.Or(&x, y)
	return nil, nil
}

func opXor(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x, y := scope.Stack.Pop(), scope.Stack.Peek()
	y.Xor(&x, y)
	return nil, nil
}

func opNot(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x := scope.Stack.Peek()
	x.Not(x)
	return nil, nil
}

func opByte(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	th, val := scope.Stack.Pop(), scope.Stack.Peek()
	val.Byte(&th)
	return nil, nil
}

func opSHL(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	shift, value := scope.Stack.Pop(), scope.Stack.Peek()
	if shift.LtUint64(256) {
		value.Lsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return nil, nil
}

func opSHR(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	shift, value := scope.Stack.Pop(), scope.Stack.Peek()
	if shift.LtUint64(256) {
		value.Rsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return nil, nil
}

func opSAR(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	shift, value := scope.Stack.Pop(), scope.Stack.Peek()
	if shift.GtUint64(255) {
		if value.Sign() >= 0 {
			value.Clear()
		} else {
			value.SetAllOne()
		}
		return nil, nil
	}
	value.SRsh(value, uint(shift.Uint64()))
	return nil, nil
}

func opKeccak256(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	offset, size := scope.Stack.Pop(), scope.Stack.Peek()
	data := scope.Memory.GetPtr(offset.Uint64(), size.Uint64())
	size.SetBytes(crypto.Keccak256(data))
	return nil, nil
}

func opAddress(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetBytes(scope.Contract.Address[:]))
	return nil, nil
}

func opBalance(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	slot := scope.Stack.Peek()
	address := types.Address(slot.Bytes20())
	slot.Set(interpreter.evm.StateDB.GetBalance(address))
	return nil, nil
}

func opOrigin(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetBytes(interpreter.evm.TxContext.Origin[:]))
	return nil, nil
}

func opCaller(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetBytes(scope.Contract.CallerAddress[:]))
	return nil, nil
}

func opCallValue(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).Set(scope.Contract.Value))
	return nil, nil
}

func opCallDataLoad(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	x := scope.Stack.Peek()
	if offset, overflow := x.Uint64WithOverflow(); !overflow {
		data := getData(scope.Contract.Input, offset, 32)
		x.SetBytes(data)
	} else {
		x.Clear()
	}
	return nil, nil
}

func opCallDataSize(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetUint64(uint64(len(scope.Contract.Input))))
	return nil, nil
}

func opCallDataCopy(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	var (
		memOffset  = scope.Stack.Pop()
		dataOffset = scope.Stack.Pop()
		length     = scope.Stack.Pop()
	)
	dataOffset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		dataOffset64 = 0xffffffffffffffff
	}
	// The memory offset and length have been checked during gas payment.
	memOffset64 := memOffset.Uint64()
	length64 := length.Uint64()
	scope.Memory.Set(memOffset64, length64, getData(scope.Contract.Input, dataOffset64, length64))
	return nil, nil
}

func opReturnDataSize(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetUint64(uint64(len(interpreter.returnData))))
	return nil, nil
}

func opReturnDataCopy(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	var (
		memOffset  = scope.Stack.Pop()
		dataOffset = scope.Stack.Pop()
		length     = scope.Stack.Pop()
	)
	offset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		return nil, ErrReturnDataOutOfBounds
	}
	// Reads past the end of the return buffer are a hard failure, unlike
	// CALLDATACOPY's zero padding.
	var end = new(uint256.Int).Add(&dataOffset, &length)
	end64, overflow := end.Uint64WithOverflow()
	if overflow || uint64(len(interpreter.returnData)) < end64 {
		return nil, ErrReturnDataOutOfBounds
	}
	scope.Memory.Set(memOffset.Uint64(), length.Uint64(), interpreter.returnData[offset64:end64])
	return nil, nil
}

func opCodeSize(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetUint64(uint64(len(scope.Contract.Code))))
	return nil, nil
}

func opCodeCopy(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	var (
		memOffset  = scope.Stack.Pop()
		codeOffset = scope.Stack.Pop()
		length     = scope.Stack.Pop()
	)
	uint64CodeOffset, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		uint64CodeOffset = 0xffffffffffffffff
	}
	codeCopy := getData(scope.Contract.Code, uint64CodeOffset, length.Uint64())
	scope.Memory.Set(memOffset.Uint64(), length.Uint64(), codeCopy)
	return nil, nil
}

func opExtCodeSize(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	slot := scope.Stack.Peek()
	slot.SetUint64(uint64(interpreter.evm.StateDB.GetCodeSize(types.Address(slot.Bytes20()))))
	return nil, nil
}

func opExtCodeCopy(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	var (
		a          = scope.Stack.Pop()
		memOffset  = scope.Stack.Pop()
		codeOffset = scope.Stack.Pop()
		length     = scope.Stack.Pop()
	)
	uint64CodeOffset, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		uint64CodeOffset = 0xffffffffffffffff
	}
	addr := types.Address(a.Bytes20())
	codeCopy := getData(interpreter.evm.StateDB.GetCode(addr), uint64CodeOffset, length.Uint64())
	scope.Memory.Set(memOffset.Uint64(), length.Uint64(), codeCopy)
	return nil, nil
}

// opExtCodeHash pushes the code hash of the given account, the empty-code
// hash for existing accounts with no code, and zero for accounts that do
// not exist or are empty per EIP-161.
func opExtCodeHash(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	slot := scope.Stack.Peek()
	address := types.Address(slot.Bytes20())
	if interpreter.evm.StateDB.Empty(address) {
		slot.Clear()
	} else {
		hash := interpreter.evm.StateDB.GetCodeHash(address)
		slot.SetBytes(hash[:])
	}
	return nil, nil
}

func opGasprice(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	v, _ := uint256.FromBig(interpreter.evm.TxContext.GasPrice)
	scope.Stack.Push(v)
	return nil, nil
}

func opBlockhash(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	num := scope.Stack.Peek()
	num64, overflow := num.Uint64WithOverflow()
	if overflow {
		num.Clear()
		return nil, nil
	}
	var upper, lower uint64
	upper = interpreter.evm.Context.BlockNumber.Uint64()
	if upper < 257 {
		lower = 0
	} else {
		lower = upper - 256
	}
	if num64 >= lower && num64 < upper {
		hash := interpreter.evm.Context.GetHash(num64)
		num.SetBytes(hash[:])
	} else {
		num.Clear()
	}
	return nil, nil
}

func opCoinbase(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetBytes(interpreter.evm.Context.Coinbase[:]))
	return nil, nil
}

func opTimestamp(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetUint64(interpreter.evm.Context.Time))
	return nil, nil
}

func opNumber(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	v, _ := uint256.FromBig(interpreter.evm.Context.BlockNumber)
	scope.Stack.Push(v)
	return nil, nil
}

func opDifficulty(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	v, _ := uint256.FromBig(interpreter.evm.Context.Difficulty)
	scope.Stack.Push(v)
	return nil, nil
}

func opRandom(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	v := new(uint256.Int).SetBytes(interpreter.evm.Context.Random[:])
	scope.Stack.Push(v)
	return nil, nil
}

func opGasLimit(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetUint64(interpreter.evm.Context.GasLimit))
	return nil, nil
}

func opPop(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Pop()
	return nil, nil
}

func opMload(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	v := scope.Stack.Peek()
	offset := v.Uint64()
	v.SetBytes(scope.Memory.GetPtr(offset, 32))
	return nil, nil
}

func opMstore(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	mStart, val := scope.Stack.Pop(), scope.Stack.Pop()
	scope.Memory.Set32(mStart.Uint64(), &val)
	return nil, nil
}

func opMstore8(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	off, val := scope.Stack.Pop(), scope.Stack.Pop()
	scope.Memory.store[off.Uint64()] = byte(val.Uint64())
	return nil, nil
}

func opSload(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	loc := scope.Stack.Peek()
	hash := types.Hash(loc.Bytes32())
	val := interpreter.evm.StateDB.GetState(scope.Contract.Address, hash)
	loc.SetBytes(val[:])
	return nil, nil
}

func opSstore(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	loc := scope.Stack.Pop()
	val := scope.Stack.Pop()
	interpreter.evm.StateDB.SetState(scope.Contract.Address,
		types.Hash(loc.Bytes32()), types.Hash(val.Bytes32()))
	return nil, nil
}

func opTload(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	loc := scope.Stack.Peek()
	hash := types.Hash(loc.Bytes32())
	val := interpreter.evm.StateDB.GetTransientState(scope.Contract.Address, hash)
	loc.SetBytes(val[:])
	return nil, nil
}

func opTstore(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	loc := scope.Stack.Pop()
	val := scope.Stack.Pop()
	interpreter.evm.StateDB.SetTransientState(scope.Contract.Address,
		types.Hash(loc.Bytes32()), types.Hash(val.Bytes32()))
	return nil, nil
}

func opJump(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	pos := scope.Stack.Pop()
	if !scope.Contract.validJumpdest(&pos) {
		return nil, ErrInvalidJump
	}
	*pc = pos.Uint64() - 1 // pc is incremented by the loop
	return nil, nil
}

func opJumpi(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	pos, cond := scope.Stack.Pop(), scope.Stack.Pop()
	if !cond.IsZero() {
		if !scope.Contract.validJumpdest(&pos) {
			return nil, ErrInvalidJump
		}
		*pc = pos.Uint64() - 1
	}
	return nil, nil
}

func opJumpdest(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	return nil, nil
}

func opPc(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetUint64(*pc))
	return nil, nil
}

func opMsize(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetUint64(uint64(scope.Memory.Len())))
	return nil, nil
}

func opGas(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int).SetUint64(scope.Contract.Gas))
	return nil, nil
}

func opChainID(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	chainId, _ := uint256.FromBig(interpreter.evm.chainRules.ChainID)
	scope.Stack.Push(chainId)
	return nil, nil
}

func opSelfBalance(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	balance := new(uint256.Int).Set(interpreter.evm.StateDB.GetBalance(scope.Contract.Address))
	scope.Stack.Push(balance)
	return nil, nil
}

func opBaseFee(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	baseFee, _ := uint256.FromBig(interpreter.evm.Context.BaseFee)
	scope.Stack.Push(baseFee)
	return nil, nil
}

func opBlobHash(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	index := scope.Stack.Peek()
	if index.LtUint64(uint64(len(interpreter.evm.TxContext.BlobHashes))) {
		blobHash := interpreter.evm.TxContext.BlobHashes[index.Uint64()]
		index.SetBytes32(blobHash[:])
	} else {
		index.Clear()
	}
	return nil, nil
}

func opBlobBaseFee(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	blobBaseFee, _ := uint256.FromBig(interpreter.evm.Context.BlobBaseFee)
	scope.Stack.Push(blobBaseFee)
	return nil, nil
}

func opPush0(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	scope.Stack.Push(new(uint256.Int))
	return nil, nil
}

func opMcopy(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	var (
		dst    = scope.Stack.Pop()
		src    = scope.Stack.Pop()
		length = scope.Stack.Pop()
	)
	// Offsets and length were validated during gas payment.
	scope.Memory.Copy(dst.Uint64(), src.Uint64(), length.Uint64())
	return nil, nil
}

func opCreate(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	var (
		value  = scope.Stack.Pop()
		offset = scope.Stack.Pop()
		size   = scope.Stack.Pop()
		input  = scope.Memory.GetCopy(offset.Uint64(), size.Uint64())
		gas    = scope.Contract.Gas
	)
	if interpreter.evm.chainRules.IsTangerineWhistle {
		gas -= gas / 64
	}
	// The deducted amount is handed to the child frame; whatever it does
	// not spend comes back through RefundGas below.
	scope.Contract.UseGas(gas)
	stackvalue := size
	res, addr, returnGas, suberr := interpreter.evm.Create(scope.Contract.Address, input, gas, &value)
	// Before Homestead a failure to pay the code deposit left a contract
	// with no code but still counted as success.
	if interpreter.evm.chainRules.IsHomestead && suberr == ErrCodeStoreOutOfGas {
		stackvalue.Clear()
	} else if suberr != nil && suberr != ErrCodeStoreOutOfGas {
		stackvalue.Clear()
	} else {
		stackvalue.SetBytes(addr[:])
	}
	scope.Stack.Push(&stackvalue)
	scope.Contract.RefundGas(returnGas)

	if suberr == ErrExecutionReverted {
		interpreter.returnData = res
		return res, nil
	}
	interpreter.returnData = nil
	return nil, nil
}

func opCreate2(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	var (
		endowment = scope.Stack.Pop()
		offset    = scope.Stack.Pop()
		size      = scope.Stack.Pop()
		salt      = scope.Stack.Pop()
		input     = scope.Memory.GetCopy(offset.Uint64(), size.Uint64())
		gas       = scope.Contract.Gas
	)
	// CREATE2 postdates EIP-150, the 63/64 split always applies.
	gas -= gas / 64
	scope.Contract.UseGas(gas)
	stackvalue := size
	res, addr, returnGas, suberr := interpreter.evm.Create2(scope.Contract.Address, input, gas, &endowment, &salt)
	if suberr != nil {
		stackvalue.Clear()
	} else {
		stackvalue.SetBytes(addr[:])
	}
	scope.Stack.Push(&stackvalue)
	scope.Contract.RefundGas(returnGas)

	if suberr == ErrExecutionReverted {
		interpreter.returnData = res
		return res, nil
	}
	interpreter.returnData = nil
	return nil, nil
}

func opCall(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	stack := scope.Stack
	// The gas argument was folded into callGasTemp by the gas table; the
	// popped word is reused for the status push.
	temp := stack.Pop()
	gas := interpreter.evm.callGasTemp
	addr, value, inOffset, inSize, retOffset, retSize := stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop()
	toAddr := types.Address(addr.Bytes20())
	args := scope.Memory.GetPtr(inOffset.Uint64(), inSize.Uint64())

	if interpreter.readOnly && !value.IsZero() {
		return nil, ErrWriteProtection
	}
	if !value.IsZero() {
		gas += CallStipend
	}
	ret, returnGas, err := interpreter.evm.Call(scope.Contract.Address, toAddr, args, gas, &value)
	if err != nil {
		temp.Clear()
	} else {
		temp.SetOne()
	}
	stack.Push(&temp)
	if err == nil || err == ErrExecutionReverted {
		scope.Memory.Set(retOffset.Uint64(), retSize.Uint64(), ret)
	}
	scope.Contract.RefundGas(returnGas)

	interpreter.returnData = ret
	return ret, nil
}

func opCallCode(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	stack := scope.Stack
	temp := stack.Pop()
	gas := interpreter.evm.callGasTemp
	addr, value, inOffset, inSize, retOffset, retSize := stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop()
	toAddr := types.Address(addr.Bytes20())
	args := scope.Memory.GetPtr(inOffset.Uint64(), inSize.Uint64())

	if !value.IsZero() {
		gas += CallStipend
	}
	ret, returnGas, err := interpreter.evm.CallCode(scope.Contract.Address, toAddr, args, gas, &value)
	if err != nil {
		temp.Clear()
	} else {
		temp.SetOne()
	}
	stack.Push(&temp)
	if err == nil || err == ErrExecutionReverted {
		scope.Memory.Set(retOffset.Uint64(), retSize.Uint64(), ret)
	}
	scope.Contract.RefundGas(returnGas)

	interpreter.returnData = ret
	return ret, nil
}

func opDelegateCall(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	stack := scope.Stack
	temp := stack.Pop()
	gas := interpreter.evm.callGasTemp
	addr, inOffset, inSize, retOffset, retSize := stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop()
	toAddr := types.Address(addr.Bytes20())
	args := scope.Memory.GetPtr(inOffset.Uint64(), inSize.Uint64())

	ret, returnGas, err := interpreter.evm.DelegateCall(scope.Contract, toAddr, args, gas)
	if err != nil {
		temp.Clear()
	} else {
		temp.SetOne()
	}
	stack.Push(&temp)
	if err == nil || err == ErrExecutionReverted {
		scope.Memory.Set(retOffset.Uint64(), retSize.Uint64(), ret)
	}
	scope.Contract.RefundGas(returnGas)

	interpreter.returnData = ret
	return ret, nil
}

func opStaticCall(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	stack := scope.Stack
	temp := stack.Pop()
	gas := interpreter.evm.callGasTemp
	addr, inOffset, inSize, retOffset, retSize := stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop()
	toAddr := types.Address(addr.Bytes20())
	args := scope.Memory.GetPtr(inOffset.Uint64(), inSize.Uint64())

	ret, returnGas, err := interpreter.evm.StaticCall(scope.Contract.Address, toAddr, args, gas)
	if err != nil {
		temp.Clear()
	} else {
		temp.SetOne()
	}
	stack.Push(&temp)
	if err == nil || err == ErrExecutionReverted {
		scope.Memory.Set(retOffset.Uint64(), retSize.Uint64(), ret)
	}
	scope.Contract.RefundGas(returnGas)

	interpreter.returnData = ret
	return ret, nil
}

func opReturn(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	offset, size := scope.Stack.Pop(), scope.Stack.Pop()
	ret := scope.Memory.GetCopy(offset.Uint64(), size.Uint64())
	return ret, nil
}

func opRevert(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	offset, size := scope.Stack.Pop(), scope.Stack.Pop()
	ret := scope.Memory.GetCopy(offset.Uint64(), size.Uint64())
	interpreter.returnData = ret
	return ret, ErrExecutionReverted
}

func opStop(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	return nil, nil
}

func opSelfdestruct(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
	beneficiary := scope.Stack.Pop()
	balance := new(uint256.Int).Set(interpreter.evm.StateDB.GetBalance(scope.Contract.Address))
	interpreter.evm.StateDB.AddBalance(types.Address(beneficiary.Bytes20()), balance)
	interpreter.evm.StateDB.SelfDestruct(scope.Contract.Address)
	return nil, nil
}

func makeLog(size int) executionFunc {
	return func(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
		topics := make([]types.Hash, size)
		stack := scope.Stack
		mStart, mSize := stack.Pop(), stack.Pop()
		for i := 0; i < size; i++ {
			addr := stack.Pop()
			topics[i] = types.Hash(addr.Bytes32())
		}
		d := scope.Memory.GetCopy(mStart.Uint64(), mSize.Uint64())
		interpreter.evm.StateDB.AddLog(&types.Log{
			Address: scope.Contract.Address,
			Topics:  topics,
			Data:    d,
			// The block fields are filled in by the processor once the
			// transaction is folded into a block.
			BlockNumber: interpreter.evm.Context.BlockNumber.Uint64(),
		})
		return nil, nil
	}
}

func makePush(size uint64, pushByteSize int) executionFunc {
	return func(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
		codeLen := len(scope.Contract.Code)
		start := int(*pc + 1)
		if start > codeLen {
			start = codeLen
		}
		end := start + pushByteSize
		if end > codeLen {
			end = codeLen
		}
		var integer uint256.Int
		scope.Stack.Push(integer.SetBytes(common.RightPadBytes(scope.Contract.Code[start:end], pushByteSize)))
		*pc += size
		return nil, nil
	}
}

func makeDup(size int) executionFunc {
	return func(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
		scope.Stack.Dup(size)
		return nil, nil
	}
}

func makeSwap(size int) executionFunc {
	return func(pc *uint64, interpreter *Interpreter, scope *ScopeContext) ([]byte, error) {
		scope.Stack.Swap(size)
		return nil, nil
	}
}
