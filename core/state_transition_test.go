package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethvm/ethvm/core/state"
	"github.com/ethvm/ethvm/core/types"
	"github.com/ethvm/ethvm/core/vm"
)

var (
	testKey, _   = crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	testSender   = types.BytesToAddress(crypto.PubkeyToAddress(testKey.PublicKey).Bytes())
	testCoinbase = types.HexToAddress("00000000000000000000000000000000c01dbeef")
	testReceiver = types.HexToAddress("0000000000000000000000000000000000001337")
)

// byzantiumTestConfig stops the fork schedule before Berlin/London so the
// legacy gas and refund rules stay observable.
var byzantiumTestConfig = &ChainConfig{
	ChainID:               big.NewInt(1337),
	HomesteadBlock:        big.NewInt(0),
	TangerineWhistleBlock: big.NewInt(0),
	SpuriousDragonBlock:   big.NewInt(0),
	ByzantiumBlock:        big.NewInt(0),
}

type testEnv struct {
	statedb *state.StateDB
	header  *types.Header
	evm     *vm.EVM
	gp      *GasPool
}

func newTestEnv(config *ChainConfig) *testEnv {
	statedb := state.New()
	statedb.AddBalance(testSender, uint256.NewInt(1e18))

	header := &types.Header{
		Coinbase:    testCoinbase,
		Number:      big.NewInt(1),
		GasLimit:    30_000_000,
		Time:        1_700_000_000,
		Difficulty:  big.NewInt(0),
		MixDigest:   types.HexToHash("cafe"),
		BaseFee:     big.NewInt(10),
		BlobBaseFee: big.NewInt(1),
	}
	if !config.IsMerge(header.Number) {
		header.Difficulty = big.NewInt(131072)
	}
	evm := vm.NewEVM(NewEVMBlockContext(header, nil, nil), vm.TxContext{}, statedb, config.Rules(header.Number, header.Time))
	return &testEnv{
		statedb: statedb,
		header:  header,
		evm:     evm,
		gp:      new(GasPool).AddGas(header.GasLimit),
	}
}

// callMsg builds a dynamic-fee message from the test sender with the fee
// fields matching the test header: base fee 10, tip 1, effective price 11.
func callMsg(to *types.Address, nonce uint64, value *uint256.Int, gas uint64, data []byte) *Message {
	return &Message{
		To:        to,
		From:      testSender,
		Nonce:     nonce,
		Value:     value,
		GasLimit:  gas,
		GasPrice:  big.NewInt(11),
		GasFeeCap: big.NewInt(12),
		GasTipCap: big.NewInt(1),
		Data:      data,
	}
}

func (env *testEnv) apply(t *testing.T, msg *Message) *ExecutionResult {
	t.Helper()
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	result, err := ApplyMessage(env.evm, msg, env.gp)
	require.NoError(t, err)
	return result
}

func TestIntrinsicGas(t *testing.T) {
	data33 := make([]byte, 33)
	tests := []struct {
		name       string
		data       []byte
		accessList types.AccessList
		create     bool
		homestead  bool
		eip2028    bool
		eip3860    bool
		want       uint64
	}{
		{name: "plain call", want: 21000},
		{name: "create frontier", create: true, want: 21000},
		{name: "create homestead", create: true, homestead: true, want: 53000},
		{name: "data frontier", data: []byte{1, 2, 0, 0, 0}, want: 21000 + 2*68 + 3*4},
		{name: "data istanbul", data: []byte{1, 2, 0, 0, 0}, eip2028: true, want: 21000 + 2*16 + 3*4},
		{
			name: "access list",
			accessList: types.AccessList{
				{Address: testReceiver, StorageKeys: []types.Hash{{}, {}}},
				{Address: testCoinbase},
			},
			want: 21000 + 2*2400 + 2*1900,
		},
		{
			name: "initcode words", data: data33, create: true, homestead: true, eip3860: true,
			want: 53000 + 33*4 + 2*vm.InitCodeWordGas,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gas, err := IntrinsicGas(tt.data, tt.accessList, tt.create, tt.homestead, tt.eip2028, tt.eip3860)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gas)
		})
	}
}

func TestApplyMessageValueTransfer(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	before := env.statedb.GetBalance(testSender).Clone()

	result := env.apply(t, callMsg(&testReceiver, 0, uint256.NewInt(1000), 50_000, nil))
	require.False(t, result.Failed())
	assert.Equal(t, TxGas, result.UsedGas)

	assert.Equal(t, uint256.NewInt(1000), env.statedb.GetBalance(testReceiver))
	// Effective price 11 per gas, the whole limit minus the refund.
	spent := new(uint256.Int).Sub(before, env.statedb.GetBalance(testSender))
	assert.Equal(t, uint256.NewInt(1000+21000*11), spent)
	// Coinbase earns the tip only, not the base fee.
	assert.Equal(t, uint256.NewInt(21000*1), env.statedb.GetBalance(testCoinbase))
	assert.Equal(t, uint64(1), env.statedb.GetNonce(testSender))
	assert.Equal(t, env.header.GasLimit-TxGas, env.gp.Gas())
}

func TestApplyMessageIntrinsicGasBoundary(t *testing.T) {
	env := newTestEnv(TestChainConfig)

	result := env.apply(t, callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil))
	assert.Equal(t, TxGas, result.UsedGas)

	short := callMsg(&testReceiver, 1, uint256.NewInt(0), TxGas-1, nil)
	env.evm.Reset(NewEVMTxContext(short), env.statedb)
	_, err := ApplyMessage(env.evm, short, env.gp)
	assert.ErrorIs(t, err, ErrIntrinsicGas)
}

func TestApplyMessageNonceChecks(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	env.statedb.SetNonce(testSender, 5)

	low := callMsg(&testReceiver, 4, uint256.NewInt(0), TxGas, nil)
	env.evm.Reset(NewEVMTxContext(low), env.statedb)
	_, err := ApplyMessage(env.evm, low, env.gp)
	assert.ErrorIs(t, err, ErrNonceTooLow)

	high := callMsg(&testReceiver, 6, uint256.NewInt(0), TxGas, nil)
	env.evm.Reset(NewEVMTxContext(high), env.statedb)
	_, err = ApplyMessage(env.evm, high, env.gp)
	assert.ErrorIs(t, err, ErrNonceTooHigh)

	skipped := callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	skipped.SkipNonceChecks = true
	result := env.apply(t, skipped)
	assert.False(t, result.Failed())
}

func TestApplyMessageSenderWithCode(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	env.statedb.SetCode(testSender, []byte{byte(vm.STOP)})

	msg := callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	_, err := ApplyMessage(env.evm, msg, env.gp)
	assert.ErrorIs(t, err, ErrSenderNoEOA)

	msg.SkipFromEOACheck = true
	result := env.apply(t, msg)
	assert.False(t, result.Failed())
}

func TestApplyMessageFeeChecks(t *testing.T) {
	env := newTestEnv(TestChainConfig)

	msg := callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	msg.GasTipCap = big.NewInt(13) // above the 12 fee cap
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	_, err := ApplyMessage(env.evm, msg, env.gp)
	assert.ErrorIs(t, err, ErrTipAboveFeeCap)

	msg = callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	msg.GasFeeCap = big.NewInt(9) // below the block base fee of 10
	msg.GasTipCap = big.NewInt(0)
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	_, err = ApplyMessage(env.evm, msg, env.gp)
	assert.ErrorIs(t, err, ErrFeeCapTooLow)

	// Zeroed fee fields mark a simulated call and skip the fee checks.
	msg = callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	msg.GasPrice = big.NewInt(0)
	msg.GasFeeCap = big.NewInt(0)
	msg.GasTipCap = big.NewInt(0)
	result := env.apply(t, msg)
	assert.False(t, result.Failed())
	// No coinbase payment for the zero-fee call.
	assert.True(t, env.statedb.GetBalance(testCoinbase).IsZero())
}

func TestApplyMessageInsufficientFunds(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	// The balance check is against the fee cap, not the effective price.
	env.statedb.SetBalance(testSender, uint256.NewInt(21000*12-1))

	msg := callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	_, err := ApplyMessage(env.evm, msg, env.gp)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	env.statedb.SetBalance(testSender, uint256.NewInt(21000*12))
	result := env.apply(t, msg)
	assert.False(t, result.Failed())
}

func TestApplyMessageGasPoolExhausted(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	env.gp = new(GasPool).AddGas(20_000)

	msg := callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	_, err := ApplyMessage(env.evm, msg, env.gp)
	assert.ErrorIs(t, err, ErrGasLimitReached)
}

func TestApplyMessageVMErrorConsumesGas(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	env.statedb.SetCode(testReceiver, []byte{byte(vm.INVALID)})
	before := env.statedb.GetBalance(testSender).Clone()

	result := env.apply(t, callMsg(&testReceiver, 0, uint256.NewInt(0), 60_000, nil))
	require.True(t, result.Failed())
	assert.Equal(t, uint64(60_000), result.UsedGas)
	assert.Nil(t, result.Return())

	// A failed execution is still a valid transaction: the nonce moves
	// and the whole gas limit is paid for.
	assert.Equal(t, uint64(1), env.statedb.GetNonce(testSender))
	spent := new(uint256.Int).Sub(before, env.statedb.GetBalance(testSender))
	assert.Equal(t, uint256.NewInt(60_000*11), spent)
}

func TestApplyMessageRevert(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	// Store 42 at memory 0 and revert with the word as payload.
	env.statedb.SetCode(testReceiver, []byte{
		byte(vm.PUSH1), 42, byte(vm.PUSH1), 0, byte(vm.MSTORE),
		byte(vm.PUSH1), 32, byte(vm.PUSH1), 0, byte(vm.REVERT),
	})
	before := env.statedb.GetBalance(testSender).Clone()

	result := env.apply(t, callMsg(&testReceiver, 0, uint256.NewInt(0), 60_000, nil))
	require.ErrorIs(t, result.Err, vm.ErrExecutionReverted)

	payload := result.Revert()
	require.Len(t, payload, 32)
	assert.Equal(t, byte(42), payload[31])

	// Unlike an exceptional halt, a revert pays only for what it ran.
	assert.Less(t, result.UsedGas, uint64(60_000))
	spent := new(uint256.Int).Sub(before, env.statedb.GetBalance(testSender))
	assert.Equal(t, uint256.NewInt(result.UsedGas*11), spent)
}

// setupStorageClear commits a nonzero slot on a contract whose code clears it,
// so a transaction to it earns the clearing refund.
func setupStorageClear(env *testEnv) {
	env.statedb.SetCode(testReceiver, []byte{
		byte(vm.PUSH1), 0, byte(vm.PUSH1), 1, byte(vm.SSTORE), byte(vm.STOP),
	})
	env.statedb.SetState(testReceiver, types.BytesToHash([]byte{1}), types.BytesToHash([]byte{0xff}))
	env.statedb.Finalise(false)
}

func TestRefundQuotientPreLondon(t *testing.T) {
	env := newTestEnv(byzantiumTestConfig)
	setupStorageClear(env)

	msg := callMsg(&testReceiver, 0, uint256.NewInt(0), 100_000, nil)
	msg.GasPrice = big.NewInt(10)
	result := env.apply(t, msg)
	require.False(t, result.Failed())

	// 21000 intrinsic + 6 for the pushes + 5000 for the clearing store
	// gives 26006, so the half-of-used cap of 13003 beats the 15000
	// clearing refund.
	assert.Equal(t, uint64(13003), result.RefundedGas)
	assert.Equal(t, uint64(26006-13003), result.UsedGas)
}

func TestRefundQuotientPostLondon(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	setupStorageClear(env)

	result := env.apply(t, callMsg(&testReceiver, 0, uint256.NewInt(0), 100_000, nil))
	require.False(t, result.Failed())

	// The cold slot costs 2100 + 2900 to clear, 26006 in total as in the
	// legacy schedule; the refund is the EIP-3529 clearing refund of
	// 4800, under the fifth-of-used cap.
	assert.Equal(t, uint64(4800), result.RefundedGas)
	assert.Equal(t, uint64(26006-4800), result.UsedGas)
}

func TestApplyMessageCreate(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	initcode := []byte{
		byte(vm.PUSH1), 0x2a, byte(vm.PUSH1), 0, byte(vm.MSTORE),
		byte(vm.PUSH1), 1, byte(vm.PUSH1), 0x1f, byte(vm.RETURN),
	}

	result := env.apply(t, callMsg(nil, 0, uint256.NewInt(0), 200_000, initcode))
	require.False(t, result.Failed())

	created := types.CreateAddress(testSender, 0)
	assert.Equal(t, []byte{0x2a}, env.statedb.GetCode(created))
	assert.Equal(t, uint64(1), env.statedb.GetNonce(testSender))
	assert.Equal(t, uint64(1), env.statedb.GetNonce(created))
	assert.Greater(t, result.UsedGas, TxGasContractCreation)
}

func TestApplyMessageInitCodeLimit(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	initcode := make([]byte, vm.MaxInitCodeSize+1)

	msg := callMsg(nil, 0, uint256.NewInt(0), 1_000_000, initcode)
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	_, err := ApplyMessage(env.evm, msg, env.gp)
	assert.ErrorIs(t, err, ErrMaxInitCodeSizeExceeded)
}

func TestApplyMessageBlobChecks(t *testing.T) {
	env := newTestEnv(TestChainConfig)

	msg := callMsg(nil, 0, uint256.NewInt(0), TxGas, nil)
	msg.BlobHashes = []types.Hash{types.HexToHash("01aa")}
	msg.BlobGasFeeCap = big.NewInt(1)
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	_, err := ApplyMessage(env.evm, msg, env.gp)
	assert.ErrorIs(t, err, ErrBlobTxCreate)

	msg = callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	msg.BlobHashes = []types.Hash{types.HexToHash("01aa")}
	msg.BlobGasFeeCap = big.NewInt(0) // block blob base fee is 1
	env.evm.Reset(NewEVMTxContext(msg), env.statedb)
	_, err = ApplyMessage(env.evm, msg, env.gp)
	assert.ErrorIs(t, err, ErrBlobFeeCapTooLow)
}

func TestApplyMessageBlobFeeCharged(t *testing.T) {
	env := newTestEnv(TestChainConfig)
	before := env.statedb.GetBalance(testSender).Clone()

	msg := callMsg(&testReceiver, 0, uint256.NewInt(0), TxGas, nil)
	msg.BlobHashes = []types.Hash{types.HexToHash("01aa"), types.HexToHash("01bb")}
	msg.BlobGasFeeCap = big.NewInt(7)
	result := env.apply(t, msg)
	require.False(t, result.Failed())

	// Two blobs at the block's blob base fee of 1, on top of execution
	// gas; the fee cap of 7 only bounds what the sender must hold.
	blobFee := 2 * types.BlobTxBlobGasPerBlob * 1
	spent := new(uint256.Int).Sub(before, env.statedb.GetBalance(testSender))
	assert.Equal(t, uint256.NewInt(21000*11+blobFee), spent)
}

func TestExecutionResultAccessors(t *testing.T) {
	ok := &ExecutionResult{ReturnData: []byte{1, 2}}
	assert.Equal(t, []byte{1, 2}, ok.Return())
	assert.Nil(t, ok.Revert())
	assert.NoError(t, ok.Unwrap())

	reverted := &ExecutionResult{Err: vm.ErrExecutionReverted, ReturnData: []byte{3}}
	assert.Nil(t, reverted.Return())
	assert.Equal(t, []byte{3}, reverted.Revert())

	halted := &ExecutionResult{Err: vm.ErrOutOfGas, ReturnData: []byte{4}}
	assert.Nil(t, halted.Return())
	assert.Nil(t, halted.Revert())
	assert.True(t, errors.Is(halted.Unwrap(), vm.ErrOutOfGas))
}
