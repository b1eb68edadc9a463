package vm

import (
	"testing"

	"github.com/holiman/uint256"
)

// runOp executes a single handler against a fresh scope with the given
// stack contents (bottom first) and returns the resulting stack top.
func runOp(t *testing.T, op executionFunc, args ...string) *uint256.Int {
	t.Helper()
	evm, _ := newTestEVM(cancunRules())
	scope := &ScopeContext{
		Memory:   NewMemory(),
		Stack:    NewStack(),
		Contract: NewContract(testOrigin, testContract, nil, 1000000),
	}
	defer ReturnStack(scope.Stack)
	for _, arg := range args {
		v, err := uint256.FromHex(arg)
		if err != nil {
			t.Fatalf("bad operand %q: %v", arg, err)
		}
		scope.Stack.Push(v)
	}
	var pc uint64
	if _, err := op(&pc, evm.Interpreter(), scope); err != nil {
		t.Fatalf("op err = %v", err)
	}
	return new(uint256.Int).Set(scope.Stack.Peek())
}

func TestOpArithmeticTwosComplement(t *testing.T) {
	maxU256 := "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	minS256 := "0x8000000000000000000000000000000000000000000000000000000000000000"

	cases := []struct {
		name string
		op   executionFunc
		args []string // pushed bottom first; handlers pop x then peek y
		want string
	}{
		{"add wraps", opAdd, []string{"0x1", maxU256}, "0x0"},
		{"sub wraps", opSub, []string{"0x0", "0x1"}, maxU256}, // 0 - 1
		{"mul wraps", opMul, []string{maxU256, "0x2"}, "0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe"},
		{"div by zero", opDiv, []string{"0x1", "0x0"}, "0x0"},
		{"sdiv min by -1", opSdiv, []string{minS256, maxU256}, minS256},
		{"sdiv -8 by 2", opSdiv, []string{"0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff8", "0x2"}, "0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc"},
		{"mod by zero", opMod, []string{"0x5", "0x0"}, "0x0"},
		{"smod negative", opSmod, []string{"0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff8", "0x3"}, "0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe"},
		{"exp", opExp, []string{"0xa", "0x2"}, "0x64"},
		{"exp zero zero", opExp, []string{"0x0", "0x0"}, "0x1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Handlers pop the top as x and keep y below it, so push in
			// reverse: the first listed arg ends up on top.
			got := runOp(t, tc.op, reverse(tc.args)...)
			want, _ := uint256.FromHex(tc.want)
			if !got.Eq(want) {
				t.Errorf("got %v, want %v", got.Hex(), want.Hex())
			}
		})
	}
}

func reverse(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}

func TestOpAddmodMulmod(t *testing.T) {
	// ADDMOD/MULMOD take x, y, m with x on top.
	got := runOp(t, opAddmod, "0x8", "0x9", "0xa") // (10+9) % 8
	if !got.Eq(uint256.NewInt(3)) {
		t.Errorf("addmod = %v, want 3", got)
	}
	got = runOp(t, opMulmod, "0x8", "0x9", "0xa") // (10*9) % 8
	if !got.Eq(uint256.NewInt(2)) {
		t.Errorf("mulmod = %v, want 2", got)
	}
	got = runOp(t, opAddmod, "0x0", "0x9", "0xa") // mod 0 is 0
	if !got.IsZero() {
		t.Errorf("addmod by zero = %v, want 0", got)
	}
}

func TestOpSignExtend(t *testing.T) {
	// Extend 0xff as a signed byte: all ones.
	got := runOp(t, opSignExtend, "0xff", "0x0")
	want, _ := uint256.FromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	if !got.Eq(want) {
		t.Errorf("signextend(0, 0xff) = %v, want -1", got.Hex())
	}
	// 0x7f stays positive.
	got = runOp(t, opSignExtend, "0x7f", "0x0")
	if !got.Eq(uint256.NewInt(0x7f)) {
		t.Errorf("signextend(0, 0x7f) = %v, want 0x7f", got.Hex())
	}
	// A byte index past 31 leaves the value unchanged.
	got = runOp(t, opSignExtend, "0xff", "0x20")
	if !got.Eq(uint256.NewInt(0xff)) {
		t.Errorf("signextend(32, 0xff) = %v, want 0xff", got.Hex())
	}
}

func TestOpComparisons(t *testing.T) {
	maxU256 := "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

	// x on top, y below.
	if got := runOp(t, opLt, "0x2", "0x1"); !got.Eq(uint256.NewInt(1)) {
		t.Errorf("1 < 2 = %v, want 1", got)
	}
	if got := runOp(t, opGt, "0x2", "0x1"); !got.IsZero() {
		t.Errorf("1 > 2 = %v, want 0", got)
	}
	// Signed: -1 < 1.
	if got := runOp(t, opSlt, "0x1", maxU256); !got.Eq(uint256.NewInt(1)) {
		t.Errorf("-1 s< 1 = %v, want 1", got)
	}
	// Unsigned: max > 1.
	if got := runOp(t, opLt, "0x1", maxU256); !got.IsZero() {
		t.Errorf("max < 1 = %v, want 0", got)
	}
	if got := runOp(t, opSgt, "0x1", maxU256); !got.IsZero() {
		t.Errorf("-1 s> 1 = %v, want 0", got)
	}
	if got := runOp(t, opEq, "0x5", "0x5"); !got.Eq(uint256.NewInt(1)) {
		t.Errorf("5 == 5 = %v, want 1", got)
	}
	if got := runOp(t, opIszero, "0x0"); !got.Eq(uint256.NewInt(1)) {
		t.Errorf("iszero(0) = %v, want 1", got)
	}
}

func TestOpByte(t *testing.T) {
	word := "0x102030405060708090a0b0c0d0e0f0102030405060708090a0b0c0d0e0f01011"
	// BYTE pops the index from the top.
	if got := runOp(t, opByte, word, "0x0"); !got.Eq(uint256.NewInt(0x10)) {
		t.Errorf("byte 0 = %v, want 0x10", got.Hex())
	}
	if got := runOp(t, opByte, word, "0x1f"); !got.Eq(uint256.NewInt(0x11)) {
		t.Errorf("byte 31 = %v, want 0x11", got.Hex())
	}
	if got := runOp(t, opByte, word, "0x20"); !got.IsZero() {
		t.Errorf("byte 32 = %v, want 0", got.Hex())
	}
}

func TestOpShifts(t *testing.T) {
	maxU256 := "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

	// Shift amount is on top, value below.
	if got := runOp(t, opSHL, "0x1", "0x1"); !got.Eq(uint256.NewInt(2)) {
		t.Errorf("1 << 1 = %v, want 2", got)
	}
	if got := runOp(t, opSHR, "0x2", "0x1"); !got.Eq(uint256.NewInt(1)) {
		t.Errorf("2 >> 1 = %v, want 1", got)
	}
	// Shifts of 256 or more clear the value.
	if got := runOp(t, opSHL, "0x1", "0x100"); !got.IsZero() {
		t.Errorf("1 << 256 = %v, want 0", got)
	}
	// SAR keeps the sign: -1 >> anything is -1.
	got := runOp(t, opSAR, maxU256, "0x100")
	want, _ := uint256.FromHex(maxU256)
	if !got.Eq(want) {
		t.Errorf("-1 sar 256 = %v, want -1", got.Hex())
	}
	// Positive SAR behaves like SHR.
	if got := runOp(t, opSAR, "0x4", "0x1"); !got.Eq(uint256.NewInt(2)) {
		t.Errorf("4 sar 1 = %v, want 2", got)
	}
}

func TestGetData(t *testing.T) {
	data := []byte{1, 2, 3}
	if got := getData(data, 0, 5); len(got) != 5 || got[3] != 0 {
		t.Errorf("getData pad = %x", got)
	}
	if got := getData(data, 10, 4); len(got) != 4 || got[0] != 0 {
		t.Errorf("getData past end = %x", got)
	}
	if got := getData(data, 1, 2); got[0] != 2 || got[1] != 3 {
		t.Errorf("getData slice = %x", got)
	}
}
