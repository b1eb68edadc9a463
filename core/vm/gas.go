package vm

import "github.com/holiman/uint256"

// Protocol gas constants. Where a cost was repriced by a fork, the fork
// name is part of the identifier and the jump table picks the right one.
const (
	GasQuickStep   uint64 = 2
	GasFastestStep uint64 = 3
	GasFastStep    uint64 = 5
	GasMidStep     uint64 = 8
	GasSlowStep    uint64 = 10
	GasExtStep     uint64 = 20

	// State access, original Frontier prices.
	GasBalanceFrontier     uint64 = 20
	GasSloadFrontier       uint64 = 50
	GasExtcodeSizeFrontier uint64 = 20
	GasExtcodeCopyFrontier uint64 = 20
	GasCallFrontier        uint64 = 40

	// EIP-150 (Tangerine Whistle) repricing.
	GasBalanceEIP150     uint64 = 400
	GasSloadEIP150       uint64 = 200
	GasExtcodeSizeEIP150 uint64 = 700
	GasExtcodeCopyEIP150 uint64 = 700
	GasCallEIP150        uint64 = 700
	GasExtcodeHash       uint64 = 400 // Constantinople, EIP-1052

	// EIP-1884 (Istanbul) repricing.
	GasBalanceEIP1884     uint64 = 700
	GasSloadEIP1884       uint64 = 800
	GasExtcodeHashEIP1884 uint64 = 700
	GasSelfBalance        uint64 = 5

	// EIP-2929 (Berlin) warm/cold access.
	ColdAccountAccessCost uint64 = 2600
	ColdSloadCost         uint64 = 2100
	WarmStorageReadCost   uint64 = 100

	// SSTORE, legacy schedule (pre-Istanbul).
	SstoreSetGas    uint64 = 20000
	SstoreResetGas  uint64 = 5000
	SstoreClearGas  uint64 = 5000
	SstoreRefundGas uint64 = 15000

	// SSTORE, EIP-1283 net gas metering (Constantinople only; reverted
	// again by Petersburg).
	NetSstoreNoopGas  uint64 = 200
	NetSstoreInitGas  uint64 = 20000
	NetSstoreCleanGas uint64 = 5000
	NetSstoreDirtyGas uint64 = 200

	NetSstoreClearRefund      uint64 = 15000
	NetSstoreResetRefund      uint64 = 4800
	NetSstoreResetClearRefund uint64 = 19800

	// SSTORE, EIP-2200 net gas metering (Istanbul).
	SstoreSentryGasEIP2200 uint64 = 2300
	SstoreSetGasEIP2200    uint64 = 20000
	SstoreResetGasEIP2200  uint64 = 5000
	SloadGasEIP2200        uint64 = 800
	SstoreClearsScheduleRefundEIP2200 uint64 = 15000

	// EIP-3529 (London) reduced the clear refund.
	SstoreClearsScheduleRefundEIP3529 uint64 = 4800

	CallValueTransferGas   uint64 = 9000
	CallNewAccountGas      uint64 = 25000
	CallStipend            uint64 = 2300

	SelfdestructGasEIP150    uint64 = 5000
	SelfdestructRefundGas    uint64 = 24000
	CreateBySelfdestructGas  uint64 = 25000

	ExpGas            uint64 = 10
	ExpByteFrontier   uint64 = 10
	ExpByteEIP158     uint64 = 50

	Keccak256Gas     uint64 = 30
	Keccak256WordGas uint64 = 6

	LogGas      uint64 = 375
	LogTopicGas uint64 = 375
	LogDataGas  uint64 = 8

	CopyGas       uint64 = 3
	MemoryGas     uint64 = 3
	QuadCoeffDiv  uint64 = 512

	CreateGas       uint64 = 32000
	CreateDataGas   uint64 = 200
	InitCodeWordGas uint64 = 2 // EIP-3860, Shanghai

	JumpdestGas uint64 = 1

	// Cancun opcodes.
	TloadGas       uint64 = 100
	TstoreGas      uint64 = 100
	BlobHashGas    uint64 = 3
	BlobBaseFeeGas uint64 = 2

	// CallCreateDepth is the maximum nesting of call/create frames.
	CallCreateDepth uint64 = 1024

	// Refund caps applied once per transaction by the processor.
	RefundQuotient        uint64 = 2 // pre-London
	RefundQuotientEIP3529 uint64 = 5

	// MaxCodeSize caps deployed code (EIP-170, Spurious Dragon);
	// MaxInitCodeSize caps initcode (EIP-3860, Shanghai).
	MaxCodeSize     = 24576
	MaxInitCodeSize = 2 * MaxCodeSize
)

// memoryGasCost computes the total cost of a memory of the given size:
// 3 gas per 32-byte word plus words squared over 512.
func memoryGasCost(size uint64) (uint64, error) {
	if size == 0 {
		return 0, nil
	}
	// Past this size the square term overflows uint64; since such an
	// expansion could never be paid for, report out of gas via overflow.
	if size > 0x1FFFFFFFE0 {
		return 0, ErrGasUintOverflow
	}
	words := toWordSize(size)
	return words*MemoryGas + words*words/QuadCoeffDiv, nil
}

// memoryExpansionGas returns the incremental cost of growing memory from
// its current size to newSize. Shrinking is free because it cannot happen.
func memoryExpansionGas(mem *Memory, newSize uint64) (uint64, error) {
	if newSize == 0 {
		return 0, nil
	}
	newCost, err := memoryGasCost(newSize)
	if err != nil {
		return 0, err
	}
	if newCost > mem.lastGasCost {
		fee := newCost - mem.lastGasCost
		mem.lastGasCost = newCost
		return fee, nil
	}
	return 0, nil
}

// toWordSize rounds size up to the number of 32-byte words.
func toWordSize(size uint64) uint64 {
	if size > (1<<64)-1-31 {
		return (1<<64)/32 + 1
	}
	return (size + 31) / 32
}

// callGas computes the gas forwarded to a sub-call. From Tangerine Whistle
// on, the caller keeps at least 1/64 of its remaining gas (EIP-150);
// before that, asking for more than is available is an error surfaced as
// out of gas.
func callGas(isEip150 bool, availableGas, base uint64, requested *uint256.Int) (uint64, error) {
	if isEip150 {
		availableGas = availableGas - base
		gas := availableGas - availableGas/64
		// If the requested amount is no ordinary uint64, the sub-call
		// gets everything it can have.
		if !requested.IsUint64() || gas < requested.Uint64() {
			return gas, nil
		}
	}
	if !requested.IsUint64() {
		return 0, ErrGasUintOverflow
	}
	return requested.Uint64(), nil
}

// safeAdd returns a+b and whether the addition overflowed.
func safeAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum < a
}

// safeMul returns a*b and whether the multiplication overflowed.
func safeMul(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	prod := a * b
	return prod, prod/b != a
}
