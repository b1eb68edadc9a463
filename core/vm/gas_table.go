package vm

import (
	"errors"

	"github.com/ethvm/ethvm/core/types"
)

// gasFunc computes the dynamic gas of an operation. It runs after the
// constant gas has been charged and may consult the stack (without
// modifying it), the memory size the operation will need, and the state.
type gasFunc func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error)

// gasMemoryExpansion is the dynamic gas of operations whose only variable
// cost is growing memory (MLOAD, MSTORE, RETURN, ...).
func gasMemoryExpansion(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return memoryExpansionGas(mem, memorySize)
}

func gasKeccak256(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionGas(mem, memorySize)
	if err != nil {
		return 0, err
	}
	wordGas, overflow := stack.Back(1).Uint64WithOverflow()
	if overflow {
		return 0, ErrGasUintOverflow
	}
	if wordGas, overflow = safeMul(toWordSize(wordGas), Keccak256WordGas); overflow {
		return 0, ErrGasUintOverflow
	}
	if gas, overflow = safeAdd(gas, wordGas); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

// memoryCopierGas is the dynamic gas of the *COPY family: memory expansion
// plus 3 gas per copied word, with the length at the given stack position.
func memoryCopierGas(stackpos int) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		gas, err := memoryExpansionGas(mem, memorySize)
		if err != nil {
			return 0, err
		}
		words, overflow := stack.Back(stackpos).Uint64WithOverflow()
		if overflow {
			return 0, ErrGasUintOverflow
		}
		if words, overflow = safeMul(toWordSize(words), CopyGas); overflow {
			return 0, ErrGasUintOverflow
		}
		if gas, overflow = safeAdd(gas, words); overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

var (
	gasCallDataCopy   = memoryCopierGas(2)
	gasCodeCopy       = memoryCopierGas(2)
	gasMcopy          = memoryCopierGas(2)
	gasExtCodeCopy    = memoryCopierGas(3)
	gasReturnDataCopy = memoryCopierGas(2)
)

func makeGasLog(n uint64) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		requestedSize, overflow := stack.Back(1).Uint64WithOverflow()
		if overflow {
			return 0, ErrGasUintOverflow
		}
		gas, err := memoryExpansionGas(mem, memorySize)
		if err != nil {
			return 0, err
		}
		if gas, overflow = safeAdd(gas, LogGas); overflow {
			return 0, ErrGasUintOverflow
		}
		if gas, overflow = safeAdd(gas, n*LogTopicGas); overflow {
			return 0, ErrGasUintOverflow
		}
		var memorySizeGas uint64
		if memorySizeGas, overflow = safeMul(requestedSize, LogDataGas); overflow {
			return 0, ErrGasUintOverflow
		}
		if gas, overflow = safeAdd(gas, memorySizeGas); overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

func makeGasExp(expByte uint64) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		expByteLen := uint64((stack.Back(1).BitLen() + 7) / 8)
		gas, overflow := safeMul(expByteLen, expByte)
		if overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

var (
	gasExpFrontier = makeGasExp(ExpByteFrontier)
	gasExpEIP158   = makeGasExp(ExpByteEIP158)
)

// gasSStore is the pre-Istanbul SSTORE schedule. In the original form a
// set from zero costs 20000, everything else 5000, and clearing a slot
// refunds 15000. Constantinople briefly switched to net gas metering
// (EIP-1283) until Petersburg reverted it, so that window gets the
// original-value bookkeeping instead.
func gasSStore(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	var (
		y, x    = stack.Back(1), stack.Back(0)
		slot    = types.Hash(x.Bytes32())
		current = evm.StateDB.GetState(contract.Address, slot)
	)
	if evm.chainRules.IsPetersburg || !evm.chainRules.IsConstantinople {
		switch {
		case current == (types.Hash{}) && !y.IsZero():
			return SstoreSetGas, nil
		case current != (types.Hash{}) && y.IsZero():
			evm.StateDB.AddRefund(SstoreRefundGas)
			return SstoreClearGas, nil
		default:
			return SstoreResetGas, nil
		}
	}
	value := types.Hash(y.Bytes32())
	if current == value {
		return NetSstoreNoopGas, nil
	}
	original := evm.StateDB.GetCommittedState(contract.Address, slot)
	if original == current {
		if original == (types.Hash{}) {
			return NetSstoreInitGas, nil
		}
		if value == (types.Hash{}) {
			evm.StateDB.AddRefund(NetSstoreClearRefund)
		}
		return NetSstoreCleanGas, nil
	}
	if original != (types.Hash{}) {
		if current == (types.Hash{}) {
			evm.StateDB.SubRefund(NetSstoreClearRefund)
		} else if value == (types.Hash{}) {
			evm.StateDB.AddRefund(NetSstoreClearRefund)
		}
	}
	if original == value {
		if original == (types.Hash{}) {
			evm.StateDB.AddRefund(NetSstoreResetClearRefund)
		} else {
			evm.StateDB.AddRefund(NetSstoreResetRefund)
		}
	}
	return NetSstoreDirtyGas, nil
}

// gasSStoreEIP2200 implements net gas metering: no-op writes cost a SLOAD,
// and refunds track the journey of the slot from its transaction-start
// (original) value. A frame must have more than the 2300 sentry left to
// attempt an SSTORE at all.
func gasSStoreEIP2200(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	if contract.Gas <= SstoreSentryGasEIP2200 {
		return 0, errors.New("not enough gas for reentrancy sentry")
	}
	var (
		y, x    = stack.Back(1), stack.Back(0)
		slot    = types.Hash(x.Bytes32())
		current = evm.StateDB.GetState(contract.Address, slot)
		value   = types.Hash(y.Bytes32())
	)
	if current == value {
		return SloadGasEIP2200, nil
	}
	original := evm.StateDB.GetCommittedState(contract.Address, slot)
	if original == current {
		if original == (types.Hash{}) {
			return SstoreSetGasEIP2200, nil
		}
		if value == (types.Hash{}) {
			evm.StateDB.AddRefund(SstoreClearsScheduleRefundEIP2200)
		}
		return SstoreResetGasEIP2200, nil
	}
	// Dirty slot.
	if original != (types.Hash{}) {
		if current == (types.Hash{}) {
			evm.StateDB.SubRefund(SstoreClearsScheduleRefundEIP2200)
		} else if value == (types.Hash{}) {
			evm.StateDB.AddRefund(SstoreClearsScheduleRefundEIP2200)
		}
	}
	if original == value {
		if original == (types.Hash{}) {
			evm.StateDB.AddRefund(SstoreSetGasEIP2200 - SloadGasEIP2200)
		} else {
			evm.StateDB.AddRefund(SstoreResetGasEIP2200 - SloadGasEIP2200)
		}
	}
	return SloadGasEIP2200, nil
}

// makeGasSStoreFunc builds the Berlin-and-later SSTORE gas function: net
// metering on top of warm/cold slot pricing, with the clearing refund
// given by the fork (15000 until London, 4800 from EIP-3529 on).
func makeGasSStoreFunc(clearingRefund uint64) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		if contract.Gas <= SstoreSentryGasEIP2200 {
			return 0, errors.New("not enough gas for reentrancy sentry")
		}
		var (
			y, x    = stack.Back(1), stack.Back(0)
			slot    = types.Hash(x.Bytes32())
			current = evm.StateDB.GetState(contract.Address, slot)
			cost    = uint64(0)
			value   = types.Hash(y.Bytes32())
		)
		if _, slotPresent := evm.StateDB.SlotInAccessList(contract.Address, slot); !slotPresent {
			cost = ColdSloadCost
			evm.StateDB.AddSlotToAccessList(contract.Address, slot)
		}
		if current == value {
			return cost + WarmStorageReadCost, nil
		}
		original := evm.StateDB.GetCommittedState(contract.Address, slot)
		if original == current {
			if original == (types.Hash{}) {
				return cost + SstoreSetGasEIP2200, nil
			}
			if value == (types.Hash{}) {
				evm.StateDB.AddRefund(clearingRefund)
			}
			return cost + (SstoreResetGasEIP2200 - ColdSloadCost), nil
		}
		if original != (types.Hash{}) {
			if current == (types.Hash{}) {
				evm.StateDB.SubRefund(clearingRefund)
			} else if value == (types.Hash{}) {
				evm.StateDB.AddRefund(clearingRefund)
			}
		}
		if original == value {
			if original == (types.Hash{}) {
				evm.StateDB.AddRefund(SstoreSetGasEIP2200 - WarmStorageReadCost)
			} else {
				evm.StateDB.AddRefund((SstoreResetGasEIP2200 - ColdSloadCost) - WarmStorageReadCost)
			}
		}
		return cost + WarmStorageReadCost, nil
	}
}

var (
	gasSStoreEIP2929 = makeGasSStoreFunc(SstoreClearsScheduleRefundEIP2200)
	gasSStoreEIP3529 = makeGasSStoreFunc(SstoreClearsScheduleRefundEIP3529)
)

// gasSLoadEIP2929 charges the cold cost on first touch of a slot in the
// transaction and the warm cost afterwards.
func gasSLoadEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	loc := stack.Peek()
	slot := types.Hash(loc.Bytes32())
	if _, slotPresent := evm.StateDB.SlotInAccessList(contract.Address, slot); !slotPresent {
		evm.StateDB.AddSlotToAccessList(contract.Address, slot)
		return ColdSloadCost, nil
	}
	return WarmStorageReadCost, nil
}

// gasEip2929AccountCheck is the dynamic part of BALANCE, EXTCODESIZE and
// EXTCODEHASH under access lists; the warm cost sits in constantGas so
// only the cold surcharge is charged here.
func gasEip2929AccountCheck(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := types.Address(stack.Peek().Bytes20())
	if !evm.StateDB.AddressInAccessList(addr) {
		evm.StateDB.AddAddressToAccessList(addr)
		return ColdAccountAccessCost - WarmStorageReadCost, nil
	}
	return 0, nil
}

func gasExtCodeCopyEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := gasExtCodeCopy(evm, contract, stack, mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := types.Address(stack.Peek().Bytes20())
	if !evm.StateDB.AddressInAccessList(addr) {
		evm.StateDB.AddAddressToAccessList(addr)
		var overflow bool
		if gas, overflow = safeAdd(gas, ColdAccountAccessCost-WarmStorageReadCost); overflow {
			return 0, ErrGasUintOverflow
		}
	}
	return gas, nil
}

func gasCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	var (
		gas            uint64
		transfersValue = !stack.Back(2).IsZero()
		address        = types.Address(stack.Back(1).Bytes20())
	)
	if evm.chainRules.IsSpuriousDragon {
		// New-account surcharge only when value actually lands in a
		// previously empty account (EIP-161).
		if transfersValue && evm.StateDB.Empty(address) {
			gas += CallNewAccountGas
		}
	} else if !evm.StateDB.Exist(address) {
		gas += CallNewAccountGas
	}
	if transfersValue {
		gas += CallValueTransferGas
	}
	memoryGas, err := memoryExpansionGas(mem, memorySize)
	if err != nil {
		return 0, err
	}
	var overflow bool
	if gas, overflow = safeAdd(gas, memoryGas); overflow {
		return 0, ErrGasUintOverflow
	}
	evm.callGasTemp, err = callGas(evm.chainRules.IsTangerineWhistle, contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	if gas, overflow = safeAdd(gas, evm.callGasTemp); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

func gasCallCode(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memoryGas, err := memoryExpansionGas(mem, memorySize)
	if err != nil {
		return 0, err
	}
	var (
		gas      uint64
		overflow bool
	)
	if !stack.Back(2).IsZero() {
		gas += CallValueTransferGas
	}
	if gas, overflow = safeAdd(gas, memoryGas); overflow {
		return 0, ErrGasUintOverflow
	}
	evm.callGasTemp, err = callGas(evm.chainRules.IsTangerineWhistle, contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	if gas, overflow = safeAdd(gas, evm.callGasTemp); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

func gasDelegateCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionGas(mem, memorySize)
	if err != nil {
		return 0, err
	}
	evm.callGasTemp, err = callGas(evm.chainRules.IsTangerineWhistle, contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	var overflow bool
	if gas, overflow = safeAdd(gas, evm.callGasTemp); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

func gasStaticCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionGas(mem, memorySize)
	if err != nil {
		return 0, err
	}
	evm.callGasTemp, err = callGas(evm.chainRules.IsTangerineWhistle, contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	var overflow bool
	if gas, overflow = safeAdd(gas, evm.callGasTemp); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

// makeCallVariantGasEIP2929 wraps a pre-Berlin call gas function with the
// cold account surcharge. The surcharge is taken from the frame directly
// before the 63/64 split so the forwarded amount is computed against the
// gas that actually remains, then handed back so it flows through the
// normal deduction path exactly once.
func makeCallVariantGasEIP2929(oldCalculator gasFunc) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		addr := types.Address(stack.Back(1).Bytes20())
		warmAccess := evm.StateDB.AddressInAccessList(addr)
		coldCost := ColdAccountAccessCost - WarmStorageReadCost
		if !warmAccess {
			evm.StateDB.AddAddressToAccessList(addr)
			if !contract.UseGas(coldCost) {
				return 0, ErrOutOfGas
			}
		}
		gas, err := oldCalculator(evm, contract, stack, mem, memorySize)
		if warmAccess || err != nil {
			return gas, err
		}
		contract.Gas += coldCost
		var overflow bool
		if gas, overflow = safeAdd(gas, coldCost); overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

var (
	gasCallEIP2929         = makeCallVariantGasEIP2929(gasCall)
	gasCallCodeEIP2929     = makeCallVariantGasEIP2929(gasCallCode)
	gasDelegateCallEIP2929 = makeCallVariantGasEIP2929(gasDelegateCall)
	gasStaticCallEIP2929   = makeCallVariantGasEIP2929(gasStaticCall)
)

func gasSelfdestruct(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	var gas uint64
	if evm.chainRules.IsTangerineWhistle {
		gas = SelfdestructGasEIP150
		address := types.Address(stack.Peek().Bytes20())
		if evm.chainRules.IsSpuriousDragon {
			if evm.StateDB.Empty(address) && !evm.StateDB.GetBalance(contract.Address).IsZero() {
				gas += CreateBySelfdestructGas
			}
		} else if !evm.StateDB.Exist(address) {
			gas += CreateBySelfdestructGas
		}
	}
	if !evm.StateDB.HasSelfDestructed(contract.Address) {
		evm.StateDB.AddRefund(SelfdestructRefundGas)
	}
	return gas, nil
}

// makeSelfdestructGasFn builds the Berlin-and-later SELFDESTRUCT gas
// function; EIP-3529 removed the refund.
func makeSelfdestructGasFn(refundsEnabled bool) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		var (
			gas     uint64
			address = types.Address(stack.Peek().Bytes20())
		)
		if !evm.StateDB.AddressInAccessList(address) {
			evm.StateDB.AddAddressToAccessList(address)
			gas = ColdAccountAccessCost
		}
		if evm.StateDB.Empty(address) && !evm.StateDB.GetBalance(contract.Address).IsZero() {
			gas += CreateBySelfdestructGas
		}
		if refundsEnabled && !evm.StateDB.HasSelfDestructed(contract.Address) {
			evm.StateDB.AddRefund(SelfdestructRefundGas)
		}
		return gas, nil
	}
}

var (
	gasSelfdestructEIP2929 = makeSelfdestructGasFn(true)
	gasSelfdestructEIP3529 = makeSelfdestructGasFn(false)
)

func gasCreate2(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionGas(mem, memorySize)
	if err != nil {
		return 0, err
	}
	wordGas, overflow := stack.Back(2).Uint64WithOverflow()
	if overflow {
		return 0, ErrGasUintOverflow
	}
	if wordGas, overflow = safeMul(toWordSize(wordGas), Keccak256WordGas); overflow {
		return 0, ErrGasUintOverflow
	}
	if gas, overflow = safeAdd(gas, wordGas); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

// EIP-3860 adds 2 gas per initcode word to both CREATE flavors.
func gasCreateEip3860(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionGas(mem, memorySize)
	if err != nil {
		return 0, err
	}
	size, overflow := stack.Back(2).Uint64WithOverflow()
	if overflow || size > MaxInitCodeSize {
		return 0, ErrGasUintOverflow
	}
	moreGas := InitCodeWordGas * toWordSize(size)
	if gas, overflow = safeAdd(gas, moreGas); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

func gasCreate2Eip3860(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionGas(mem, memorySize)
	if err != nil {
		return 0, err
	}
	size, overflow := stack.Back(2).Uint64WithOverflow()
	if overflow || size > MaxInitCodeSize {
		return 0, ErrGasUintOverflow
	}
	moreGas := (InitCodeWordGas + Keccak256WordGas) * toWordSize(size)
	if gas, overflow = safeAdd(gas, moreGas); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}
