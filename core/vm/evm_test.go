package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
)

var testOther = types.HexToAddress("3000000000000000000000000000000000000003")

func TestCallTransfersValue(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1000))
	statedb.CreateAccount(testContract)

	_, _, err := evm.Call(testOrigin, testContract, nil, 10000, uint256.NewInt(300))
	if err != nil {
		t.Fatalf("Call() err = %v", err)
	}
	if got := statedb.GetBalance(testOrigin); !got.Eq(uint256.NewInt(700)) {
		t.Errorf("sender balance = %v, want 700", got)
	}
	if got := statedb.GetBalance(testContract); !got.Eq(uint256.NewInt(300)) {
		t.Errorf("recipient balance = %v, want 300", got)
	}
}

func TestCallInsufficientBalanceKeepsGas(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(10))

	_, left, err := evm.Call(testOrigin, testContract, nil, 5000, uint256.NewInt(300))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want %v", err, ErrInsufficientBalance)
	}
	if left != 5000 {
		t.Errorf("leftOverGas = %d, want all 5000 back", left)
	}
}

func TestCallValuelessToNonexistent(t *testing.T) {
	// EIP-158: a valueless call to a nonexistent account must not create
	// it.
	evm, statedb := newTestEVM(cancunRules())
	if _, _, err := evm.Call(testOrigin, testOther, nil, 10000, new(uint256.Int)); err != nil {
		t.Fatalf("err = %v", err)
	}
	if statedb.Exist(testOther) {
		t.Error("valueless call created the account post-EIP-158")
	}

	// Before Spurious Dragon the account is created.
	evm, statedb = newTestEVM(homesteadRules())
	if _, _, err := evm.Call(testOrigin, testOther, nil, 10000, new(uint256.Int)); err != nil {
		t.Fatalf("homestead err = %v", err)
	}
	if !statedb.Exist(testOther) {
		t.Error("valueless call did not create the account pre-EIP-158")
	}
}

func TestCallDepthBoundary(t *testing.T) {
	evm, _ := newTestEVM(cancunRules())

	evm.depth = int(CallCreateDepth) // 1024: the deepest frame allowed
	if _, _, err := evm.Call(testOrigin, testContract, nil, 1000, new(uint256.Int)); err != nil {
		t.Errorf("depth 1024: err = %v, want nil", err)
	}

	evm.depth = int(CallCreateDepth) + 1
	_, left, err := evm.Call(testOrigin, testContract, nil, 1000, new(uint256.Int))
	if !errors.Is(err, ErrDepth) {
		t.Errorf("depth 1025: err = %v, want %v", err, ErrDepth)
	}
	if left != 1000 {
		t.Errorf("depth 1025: leftOverGas = %d, want 1000", left)
	}
}

func TestStaticCallRejectsWrites(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	// PUSH1 1, PUSH1 1, SSTORE
	statedb.SetCode(testContract, []byte{byte(PUSH1), 0x01, byte(PUSH1), 0x01, byte(SSTORE), byte(STOP)})

	_, left, err := evm.StaticCall(testOrigin, testContract, nil, 10000)
	if !errors.Is(err, ErrWriteProtection) {
		t.Fatalf("err = %v, want %v", err, ErrWriteProtection)
	}
	if left != 0 {
		t.Errorf("leftOverGas = %d, want 0", left)
	}
	if got := statedb.GetState(testContract, types.HexToHash("01")); got != (types.Hash{}) {
		t.Errorf("storage written under STATICCALL: %v", got)
	}
}

func TestStaticCallAllowsReads(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	statedb.SetState(testContract, types.HexToHash("01"), types.HexToHash("2a"))
	// PUSH1 1, SLOAD, PUSH1 0, MSTORE, PUSH1 32, PUSH1 0, RETURN
	statedb.SetCode(testContract, []byte{
		byte(PUSH1), 0x01,
		byte(SLOAD),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	})
	ret, _, err := evm.StaticCall(testOrigin, testContract, nil, 100000)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got := new(uint256.Int).SetBytes(ret); !got.Eq(uint256.NewInt(42)) {
		t.Errorf("SLOAD under STATICCALL = %v, want 42", got)
	}
}

func TestStaticCallNestingStaysReadOnly(t *testing.T) {
	// Outer frame entered via STATICCALL; the inner plain CALL must still
	// reject writes.
	evm, statedb := newTestEVM(cancunRules())

	writer := testOther
	statedb.SetCode(writer, []byte{byte(PUSH1), 0x01, byte(PUSH1), 0x01, byte(SSTORE), byte(STOP)})

	// Outer calls writer with CALL(gas, addr, 0, 0, 0, 0, 0) and returns
	// the status word.
	outer := []byte{
		byte(PUSH1), 0x00, // retSize
		byte(PUSH1), 0x00, // retOffset
		byte(PUSH1), 0x00, // argsSize
		byte(PUSH1), 0x00, // argsOffset
		byte(PUSH1), 0x00, // value
		byte(PUSH20),
	}
	outer = append(outer, writer.Bytes()...)
	outer = append(outer,
		byte(GAS),
		byte(CALL),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	)
	statedb.SetCode(testContract, outer)

	ret, _, err := evm.StaticCall(testOrigin, testContract, nil, 200000)
	if err != nil {
		t.Fatalf("outer err = %v", err)
	}
	if got := new(uint256.Int).SetBytes(ret); !got.IsZero() {
		t.Errorf("inner CALL status = %v, want 0 (write rejected)", got)
	}
	if got := statedb.GetState(writer, types.HexToHash("01")); got != (types.Hash{}) {
		t.Errorf("storage written through nested static frame: %v", got)
	}
}

func TestDelegateCallRunsInCallerContext(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())

	// Library stores CALLER at slot 0.
	lib := testOther
	statedb.SetCode(lib, []byte{byte(CALLER), byte(PUSH1), 0x00, byte(SSTORE), byte(STOP)})

	code := []byte{
		byte(PUSH1), 0x00, // retSize
		byte(PUSH1), 0x00, // retOffset
		byte(PUSH1), 0x00, // argsSize
		byte(PUSH1), 0x00, // argsOffset
		byte(PUSH20),
	}
	code = append(code, lib.Bytes()...)
	code = append(code, byte(GAS), byte(DELEGATECALL), byte(POP), byte(STOP))
	statedb.SetCode(testContract, code)

	if _, _, err := evm.Call(testOrigin, testContract, nil, 200000, new(uint256.Int)); err != nil {
		t.Fatalf("err = %v", err)
	}

	// The write lands in the proxy's storage and records the original
	// caller, not the proxy.
	want := types.BytesToHash(testOrigin.Bytes())
	if got := statedb.GetState(testContract, types.Hash{}); got != want {
		t.Errorf("proxy slot 0 = %v, want caller %v", got, want)
	}
	if got := statedb.GetState(lib, types.Hash{}); got != (types.Hash{}) {
		t.Errorf("library storage touched: %v", got)
	}
}

func TestCallStorageContext(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())

	callee := testOther
	statedb.SetCode(callee, []byte{byte(CALLER), byte(PUSH1), 0x00, byte(SSTORE), byte(STOP)})

	code := []byte{
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00, // value
		byte(PUSH20),
	}
	code = append(code, callee.Bytes()...)
	code = append(code, byte(GAS), byte(CALL), byte(POP), byte(STOP))
	statedb.SetCode(testContract, code)

	if _, _, err := evm.Call(testOrigin, testContract, nil, 200000, new(uint256.Int)); err != nil {
		t.Fatalf("err = %v", err)
	}
	// A plain CALL runs in the callee's storage with the caller being the
	// calling contract.
	want := types.BytesToHash(testContract.Bytes())
	if got := statedb.GetState(callee, types.Hash{}); got != want {
		t.Errorf("callee slot 0 = %v, want %v", got, want)
	}
}

func TestSubCallFailureDoesNotAbortParent(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())

	bad := testOther
	statedb.SetCode(bad, []byte{byte(INVALID)})

	// Parent calls the failing contract, then stores 7 at slot 0.
	code := []byte{
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(PUSH20),
	}
	code = append(code, bad.Bytes()...)
	code = append(code,
		byte(PUSH2), 0x27, 0x10, // forward only 10000 gas
		byte(CALL),
		byte(POP),
		byte(PUSH1), 0x07,
		byte(PUSH1), 0x00,
		byte(SSTORE),
		byte(STOP),
	)
	statedb.SetCode(testContract, code)

	if _, _, err := evm.Call(testOrigin, testContract, nil, 200000, new(uint256.Int)); err != nil {
		t.Fatalf("parent err = %v, want nil", err)
	}
	if got := statedb.GetState(testContract, types.Hash{}); got != types.HexToHash("07") {
		t.Errorf("parent write after failed sub-call = %v, want 7", got)
	}
}

func TestCreateDeploysCode(t *testing.T) {
	// Initcode returning the single byte 0x2a as runtime code.
	initcode := []byte{
		byte(PUSH1), 0x2a,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x1f,
		byte(RETURN),
	}
	evm, statedb := newTestEVM(cancunRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))
	nonce := statedb.GetNonce(testOrigin)

	ret, addr, _, err := evm.Create(testOrigin, initcode, 100000, new(uint256.Int))
	if err != nil {
		t.Fatalf("Create() err = %v", err)
	}
	if want := types.CreateAddress(testOrigin, nonce); addr != want {
		t.Errorf("created address = %v, want %v", addr, want)
	}
	if !bytes.Equal(ret, []byte{0x2a}) {
		t.Errorf("returned code = %x, want 2a", ret)
	}
	if !bytes.Equal(statedb.GetCode(addr), []byte{0x2a}) {
		t.Errorf("deployed code = %x, want 2a", statedb.GetCode(addr))
	}
	if statedb.GetNonce(testOrigin) != nonce+1 {
		t.Errorf("creator nonce = %d, want %d", statedb.GetNonce(testOrigin), nonce+1)
	}
	// EIP-161: new contracts start at nonce 1.
	if statedb.GetNonce(addr) != 1 {
		t.Errorf("contract nonce = %d, want 1", statedb.GetNonce(addr))
	}
}

func TestCreate2Address(t *testing.T) {
	initcode := []byte{byte(STOP)}
	evm, statedb := newTestEVM(cancunRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))

	salt := uint256.NewInt(0xbeef)
	_, addr, _, err := evm.Create2(testOrigin, initcode, 100000, new(uint256.Int), salt)
	if err != nil {
		t.Fatalf("Create2() err = %v", err)
	}
	saltHash := types.Hash(salt.Bytes32())
	want := types.CreateAddress2(testOrigin, saltHash, crypto.Keccak256(initcode))
	if addr != want {
		t.Errorf("create2 address = %v, want %v", addr, want)
	}
}

func TestCreateCollisionConsumesGas(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))

	target := types.CreateAddress(testOrigin, 0)
	statedb.SetCode(target, []byte{byte(STOP)})

	_, _, left, err := evm.Create(testOrigin, []byte{byte(STOP)}, 50000, new(uint256.Int))
	if !errors.Is(err, ErrContractAddressCollision) {
		t.Fatalf("err = %v, want %v", err, ErrContractAddressCollision)
	}
	if left != 0 {
		t.Errorf("leftOverGas = %d, want 0 on collision", left)
	}
}

func TestCreateRejectsEFCode(t *testing.T) {
	// Initcode returning a single 0xEF byte.
	initcode := []byte{
		byte(PUSH1), 0xef,
		byte(PUSH1), 0x00,
		byte(MSTORE8),
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	evm, statedb := newTestEVM(londonRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))
	if _, _, _, err := evm.Create(testOrigin, initcode, 100000, new(uint256.Int)); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("london: err = %v, want %v", err, ErrInvalidCode)
	}

	evm, statedb = newTestEVM(berlinRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))
	if _, _, _, err := evm.Create(testOrigin, initcode, 100000, new(uint256.Int)); err != nil {
		t.Fatalf("berlin: err = %v, want nil", err)
	}
}

func TestCreateCodeSizeLimit(t *testing.T) {
	// Initcode returning MaxCodeSize+1 zero bytes.
	initcode := []byte{
		byte(PUSH3), 0x00, 0x60, 0x01, // 24577
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	evm, statedb := newTestEVM(cancunRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))
	if _, _, _, err := evm.Create(testOrigin, initcode, 10_000_000, new(uint256.Int)); !errors.Is(err, ErrMaxCodeSizeExceeded) {
		t.Fatalf("err = %v, want %v", err, ErrMaxCodeSizeExceeded)
	}

	// No cap before Spurious Dragon.
	evm, statedb = newTestEVM(homesteadRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))
	if _, _, _, err := evm.Create(testOrigin, initcode, 10_000_000, new(uint256.Int)); err != nil {
		t.Fatalf("homestead: err = %v, want nil", err)
	}
}

func TestCreateInitcodeSizeLimit(t *testing.T) {
	big := make([]byte, MaxInitCodeSize+1)
	evm, statedb := newTestEVM(shanghaiRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))
	_, _, left, err := evm.Create(testOrigin, big, 10_000_000, new(uint256.Int))
	if !errors.Is(err, ErrMaxInitCodeSizeExceeded) {
		t.Fatalf("err = %v, want %v", err, ErrMaxInitCodeSizeExceeded)
	}
	if left != 10_000_000 {
		t.Errorf("leftOverGas = %d, want untouched", left)
	}

	evm, statedb = newTestEVM(londonRules())
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))
	if _, _, _, err := evm.Create(testOrigin, big, 10_000_000, new(uint256.Int)); err != nil {
		t.Fatalf("london: err = %v, want nil", err)
	}
}

func TestSelfdestructMovesBalance(t *testing.T) {
	beneficiary := testOther
	code := append([]byte{byte(PUSH20)}, beneficiary.Bytes()...)
	code = append(code, byte(SELFDESTRUCT))

	evm, statedb := newTestEVM(londonRules())
	statedb.SetCode(testContract, code)
	statedb.SetBalance(testContract, uint256.NewInt(5000))

	if _, _, err := evm.Call(testOrigin, testContract, nil, 100000, new(uint256.Int)); err != nil {
		t.Fatalf("err = %v", err)
	}
	if got := statedb.GetBalance(beneficiary); !got.Eq(uint256.NewInt(5000)) {
		t.Errorf("beneficiary balance = %v, want 5000", got)
	}
	if got := statedb.GetBalance(testContract); !got.IsZero() {
		t.Errorf("destroyed balance = %v, want 0", got)
	}
	if !statedb.HasSelfDestructed(testContract) {
		t.Error("contract not marked self-destructed")
	}
}

func TestSelfdestructToSelfBurnsBalance(t *testing.T) {
	code := append([]byte{byte(PUSH20)}, testContract.Bytes()...)
	code = append(code, byte(SELFDESTRUCT))

	evm, statedb := newTestEVM(londonRules())
	statedb.SetCode(testContract, code)
	statedb.SetBalance(testContract, uint256.NewInt(5000))

	if _, _, err := evm.Call(testOrigin, testContract, nil, 100000, new(uint256.Int)); err != nil {
		t.Fatalf("err = %v", err)
	}
	if got := statedb.GetBalance(testContract); !got.IsZero() {
		t.Errorf("self-beneficiary balance = %v, want 0 (burned)", got)
	}
}

func TestSelfdestructRejectedInStaticFrame(t *testing.T) {
	code := append([]byte{byte(PUSH20)}, testOther.Bytes()...)
	code = append(code, byte(SELFDESTRUCT))

	evm, statedb := newTestEVM(londonRules())
	statedb.SetCode(testContract, code)
	if _, _, err := evm.StaticCall(testOrigin, testContract, nil, 100000); !errors.Is(err, ErrWriteProtection) {
		t.Fatalf("err = %v, want %v", err, ErrWriteProtection)
	}
}

func TestCallPrecompileDirect(t *testing.T) {
	// The identity precompile at 0x04 echoes its input.
	evm, _ := newTestEVM(cancunRules())
	input := []byte{1, 2, 3}
	ret, _, err := evm.Call(testOrigin, types.BytesToAddress([]byte{0x04}), input, 10000, new(uint256.Int))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !bytes.Equal(ret, input) {
		t.Errorf("identity = %x, want %x", ret, input)
	}
}
