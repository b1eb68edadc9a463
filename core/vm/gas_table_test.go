package vm

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
)

// storeCode builds PUSH1 value, PUSH1 key, SSTORE, STOP.
func storeCode(key, value byte) []byte {
	return []byte{byte(PUSH1), value, byte(PUSH1), key, byte(SSTORE), byte(STOP)}
}

// runStore executes storeCode against a prepared state and returns gas
// used and the refund counter.
func runStore(t *testing.T, rules Rules, prep func(db StateDB), key, value byte) (uint64, uint64) {
	t.Helper()
	evm, statedb := newTestEVM(rules)
	statedb.SetCode(testContract, storeCode(key, value))
	if prep != nil {
		prep(statedb)
		// Move the prepared values into committed state so SSTORE's net
		// metering sees them as original.
		statedb.Finalise(false)
	}
	const gas = 1_000_000
	_, left, err := evm.Call(testOrigin, testContract, nil, gas, new(uint256.Int))
	if err != nil {
		t.Fatalf("Call() err = %v", err)
	}
	return gas - left, statedb.GetRefund()
}

func TestSstoreLegacy(t *testing.T) {
	// Frontier: 20000 to set, 5000 to reset or clear, 15000 refund on
	// clear. Two PUSH1s precede the SSTORE.
	used, refund := runStore(t, frontierRules(), nil, 1, 1)
	if want := 2*GasFastestStep + SstoreSetGas; used != want {
		t.Errorf("set: gas = %d, want %d", used, want)
	}
	if refund != 0 {
		t.Errorf("set: refund = %d, want 0", refund)
	}

	prep := func(db StateDB) {
		db.SetState(testContract, types.HexToHash("01"), types.HexToHash("2a"))
	}
	used, refund = runStore(t, frontierRules(), prep, 1, 0)
	if want := 2*GasFastestStep + SstoreClearGas; used != want {
		t.Errorf("clear: gas = %d, want %d", used, want)
	}
	if refund != SstoreRefundGas {
		t.Errorf("clear: refund = %d, want %d", refund, SstoreRefundGas)
	}

	used, _ = runStore(t, frontierRules(), prep, 1, 9)
	if want := 2*GasFastestStep + SstoreResetGas; used != want {
		t.Errorf("reset: gas = %d, want %d", used, want)
	}
}

func TestSstoreEIP2200(t *testing.T) {
	// Istanbul net metering: a fresh set costs 20000, a no-op costs the
	// 800 SLOAD price.
	used, _ := runStore(t, istanbulRules(), nil, 1, 1)
	if want := 2*GasFastestStep + SstoreSetGasEIP2200; used != want {
		t.Errorf("set: gas = %d, want %d", used, want)
	}

	used, _ = runStore(t, istanbulRules(), nil, 1, 0)
	if want := 2*GasFastestStep + SloadGasEIP2200; used != want {
		t.Errorf("noop: gas = %d, want %d", used, want)
	}

	prep := func(db StateDB) {
		db.SetState(testContract, types.HexToHash("01"), types.HexToHash("2a"))
	}
	used, refund := runStore(t, istanbulRules(), prep, 1, 0)
	if want := 2*GasFastestStep + SstoreResetGasEIP2200; used != want {
		t.Errorf("clear: gas = %d, want %d", used, want)
	}
	if refund != SstoreClearsScheduleRefundEIP2200 {
		t.Errorf("clear: refund = %d, want %d", refund, SstoreClearsScheduleRefundEIP2200)
	}
}

func TestSstoreEIP2200Sentry(t *testing.T) {
	// SSTORE with 2300 gas or less in the frame must fail outright.
	evm, statedb := newTestEVM(istanbulRules())
	statedb.SetCode(testContract, storeCode(1, 1))
	// Two PUSH1s cost 6, leaving exactly the sentry amount at SSTORE.
	_, left, err := evm.Call(testOrigin, testContract, nil, 6+SstoreSentryGasEIP2200, new(uint256.Int))
	if !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("err = %v, want %v", err, ErrOutOfGas)
	}
	if left != 0 {
		t.Errorf("leftOverGas = %d, want 0", left)
	}
	if got := statedb.GetState(testContract, types.BytesToHash([]byte{1})); !got.IsZero() {
		t.Errorf("slot = %v, want untouched zero", got)
	}
}

func TestSstoreBerlinColdWarm(t *testing.T) {
	// A cold fresh set pays the 2100 cold-slot surcharge on top of 20000.
	used, _ := runStore(t, berlinRules(), nil, 1, 1)
	if want := 2*GasFastestStep + ColdSloadCost + SstoreSetGas; used != want {
		t.Errorf("cold set: gas = %d, want %d", used, want)
	}

	// Storing twice in one frame: the second write hits a warm dirty
	// slot and costs only the warm-read price.
	evm, statedb := newTestEVM(berlinRules())
	code := []byte{
		byte(PUSH1), 0x01, byte(PUSH1), 0x01, byte(SSTORE),
		byte(PUSH1), 0x02, byte(PUSH1), 0x01, byte(SSTORE),
		byte(STOP),
	}
	statedb.SetCode(testContract, code)
	const gas = 1_000_000
	_, left, err := evm.Call(testOrigin, testContract, nil, gas, new(uint256.Int))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	want := 4*GasFastestStep + ColdSloadCost + SstoreSetGas + WarmStorageReadCost
	if used := uint64(gas) - left; used != want {
		t.Errorf("cold set + warm rewrite: gas = %d, want %d", used, want)
	}
}

func TestSstoreClearingRefundLondon(t *testing.T) {
	prep := func(db StateDB) {
		db.SetState(testContract, types.HexToHash("01"), types.HexToHash("2a"))
	}
	_, refund := runStore(t, berlinRules(), prep, 1, 0)
	if refund != SstoreClearsScheduleRefundEIP2200 {
		t.Errorf("berlin clear refund = %d, want %d", refund, SstoreClearsScheduleRefundEIP2200)
	}
	_, refund = runStore(t, londonRules(), prep, 1, 0)
	if refund != SstoreClearsScheduleRefundEIP3529 {
		t.Errorf("london clear refund = %d, want %d", refund, SstoreClearsScheduleRefundEIP3529)
	}
}

func TestSloadBerlinColdWarm(t *testing.T) {
	// Two loads of the same slot: cold then warm.
	code := []byte{
		byte(PUSH1), 0x01, byte(SLOAD), byte(POP),
		byte(PUSH1), 0x01, byte(SLOAD), byte(POP),
		byte(STOP),
	}
	evm, statedb := newTestEVM(berlinRules())
	statedb.SetCode(testContract, code)
	const gas = 100_000
	_, left, err := evm.Call(testOrigin, testContract, nil, gas, new(uint256.Int))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	want := 2*(GasFastestStep+GasQuickStep) + ColdSloadCost + WarmStorageReadCost
	if used := uint64(gas) - left; used != want {
		t.Errorf("gas = %d, want %d", used, want)
	}
}

func TestAccountAccessBerlinColdWarm(t *testing.T) {
	target := types.HexToAddress("4000000000000000000000000000000000000004")
	code := append([]byte{byte(PUSH20)}, target.Bytes()...)
	code = append(code, byte(EXTCODESIZE), byte(POP))
	code = append(code, byte(PUSH20))
	code = append(code, target.Bytes()...)
	code = append(code, byte(EXTCODESIZE), byte(POP), byte(STOP))

	evm, statedb := newTestEVM(berlinRules())
	statedb.SetCode(testContract, code)
	const gas = 100_000
	_, left, err := evm.Call(testOrigin, testContract, nil, gas, new(uint256.Int))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	want := 2*(GasFastestStep+GasQuickStep) + ColdAccountAccessCost + WarmStorageReadCost
	if used := uint64(gas) - left; used != want {
		t.Errorf("gas = %d, want %d", used, want)
	}

	// Istanbul charges the flat 700 both times.
	evm, statedb = newTestEVM(istanbulRules())
	statedb.SetCode(testContract, code)
	_, left, err = evm.Call(testOrigin, testContract, nil, gas, new(uint256.Int))
	if err != nil {
		t.Fatalf("istanbul err = %v", err)
	}
	want = 2 * (GasFastestStep + GasQuickStep + GasExtcodeSizeEIP150)
	if used := uint64(gas) - left; used != want {
		t.Errorf("istanbul gas = %d, want %d", used, want)
	}
}

func TestExpGasByteRepricing(t *testing.T) {
	// EXP with a two-byte exponent: 10 + 2*perByte, where the per-byte
	// price went from 10 to 50 in Spurious Dragon.
	code := []byte{
		byte(PUSH2), 0x01, 0x00, // exponent 256, two bytes
		byte(PUSH1), 0x02, // base
		byte(EXP),
		byte(POP),
		byte(STOP),
	}
	run := func(rules Rules) uint64 {
		const gas = 100_000
		_, left, err := runCode(rules, code, nil, gas)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		return gas - left
	}
	if used, want := run(homesteadRules()), 2*GasFastestStep+GasQuickStep+ExpGas+2*ExpByteFrontier; used != want {
		t.Errorf("homestead EXP gas = %d, want %d", used, want)
	}
	if used, want := run(cancunRules()), 2*GasFastestStep+GasQuickStep+ExpGas+2*ExpByteEIP158; used != want {
		t.Errorf("cancun EXP gas = %d, want %d", used, want)
	}
}
