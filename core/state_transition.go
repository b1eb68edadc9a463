package core

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
	"github.com/ethvm/ethvm/core/vm"
)

// ExecutionResult is the outcome of applying a message: the gas consumed
// and, when the VM ran, its error and output. A non-nil Err here means the
// transaction was valid but its execution failed; consensus-level
// rejections surface as the error return of ApplyMessage instead.
type ExecutionResult struct {
	UsedGas     uint64
	RefundedGas uint64
	Err         error
	ReturnData  []byte
}

// Unwrap returns the internal VM error, if any.
func (result *ExecutionResult) Unwrap() error {
	return result.Err
}

// Failed reports whether the execution failed in the VM.
func (result *ExecutionResult) Failed() bool { return result.Err != nil }

// Return returns the output of successful execution, nil otherwise.
func (result *ExecutionResult) Return() []byte {
	if result.Err != nil {
		return nil
	}
	return common.CopyBytes(result.ReturnData)
}

// Revert returns the revert reason payload when execution reverted.
func (result *ExecutionResult) Revert() []byte {
	if result.Err != vm.ErrExecutionReverted {
		return nil
	}
	return common.CopyBytes(result.ReturnData)
}

// IntrinsicGas computes the gas a transaction consumes before any code
// runs: the base cost, the calldata bytes, the access list and, for
// creations from Shanghai on, the initcode words.
func IntrinsicGas(data []byte, accessList types.AccessList, isContractCreation, isHomestead, isEIP2028, isEIP3860 bool) (uint64, error) {
	var gas uint64
	if isContractCreation && isHomestead {
		gas = TxGasContractCreation
	} else {
		gas = TxGas
	}
	dataLen := uint64(len(data))
	if dataLen > 0 {
		var nz uint64
		for _, byt := range data {
			if byt != 0 {
				nz++
			}
		}
		nonZeroGas := TxDataNonZeroGasFrontier
		if isEIP2028 {
			nonZeroGas = TxDataNonZeroGasEIP2028
		}
		if (math.MaxUint64-gas)/nonZeroGas < nz {
			return 0, ErrGasUintOverflow
		}
		gas += nz * nonZeroGas

		z := dataLen - nz
		if (math.MaxUint64-gas)/TxDataZeroGas < z {
			return 0, ErrGasUintOverflow
		}
		gas += z * TxDataZeroGas

		if isContractCreation && isEIP3860 {
			lenWords := (dataLen + 31) / 32
			if (math.MaxUint64-gas)/vm.InitCodeWordGas < lenWords {
				return 0, ErrGasUintOverflow
			}
			gas += lenWords * vm.InitCodeWordGas
		}
	}
	if accessList != nil {
		gas += uint64(len(accessList)) * TxAccessListAddressGas
		gas += uint64(accessList.StorageKeys()) * TxAccessListStorageKeyGas
	}
	return gas, nil
}

// ApplyMessage executes a message against the EVM's current state, paying
// for gas from the sender and crediting the coinbase. State is not
// finalised; the caller decides when empty accounts are pruned.
func ApplyMessage(evm *vm.EVM, msg *Message, gp *GasPool) (*ExecutionResult, error) {
	return newStateTransition(evm, msg, gp).execute()
}

type stateTransition struct {
	gp           *GasPool
	msg          *Message
	gasRemaining uint64
	initialGas   uint64
	state        vm.StateDB
	evm          *vm.EVM
}

func newStateTransition(evm *vm.EVM, msg *Message, gp *GasPool) *stateTransition {
	return &stateTransition{
		gp:    gp,
		evm:   evm,
		msg:   msg,
		state: evm.StateDB,
	}
}

func (st *stateTransition) blobGasUsed() uint64 {
	return uint64(len(st.msg.BlobHashes)) * types.BlobTxBlobGasPerBlob
}

// buyGas deducts the worst-case transaction cost from the sender and
// reserves the gas limit in the block pool. The balance must cover the fee
// cap even though only the effective price is charged.
func (st *stateTransition) buyGas() error {
	mgval := new(big.Int).SetUint64(st.msg.GasLimit)
	mgval.Mul(mgval, st.msg.GasPrice)
	balanceCheck := new(big.Int).Set(mgval)
	if st.msg.GasFeeCap != nil {
		balanceCheck.SetUint64(st.msg.GasLimit)
		balanceCheck.Mul(balanceCheck, st.msg.GasFeeCap)
	}
	balanceCheck.Add(balanceCheck, st.msg.Value.ToBig())

	if blobGas := st.blobGasUsed(); blobGas > 0 {
		// The worst case covers the blob fee cap, the actual charge uses
		// the block's blob base fee.
		blobBalanceCheck := new(big.Int).SetUint64(blobGas)
		blobBalanceCheck.Mul(blobBalanceCheck, st.msg.BlobGasFeeCap)
		balanceCheck.Add(balanceCheck, blobBalanceCheck)

		blobFee := new(big.Int).SetUint64(blobGas)
		blobFee.Mul(blobFee, st.evm.Context.BlobBaseFee)
		mgval.Add(mgval, blobFee)
	}
	balanceCheckU256, overflow := uint256.FromBig(balanceCheck)
	if overflow {
		return fmt.Errorf("%w: address %v required balance exceeds 256 bits", ErrInsufficientFunds, st.msg.From)
	}
	if have := st.state.GetBalance(st.msg.From); have.Cmp(balanceCheckU256) < 0 {
		return fmt.Errorf("%w: address %v have %v want %v", ErrInsufficientFunds, st.msg.From, have, balanceCheckU256)
	}
	if err := st.gp.SubGas(st.msg.GasLimit); err != nil {
		return err
	}
	st.gasRemaining = st.msg.GasLimit
	st.initialGas = st.msg.GasLimit

	mgvalU256, _ := uint256.FromBig(mgval)
	st.state.SubBalance(st.msg.From, mgvalU256)
	return nil
}

func (st *stateTransition) preCheck() error {
	msg := st.msg
	if !msg.SkipNonceChecks {
		stNonce := st.state.GetNonce(msg.From)
		if msgNonce := msg.Nonce; stNonce < msgNonce {
			return fmt.Errorf("%w: address %v, tx: %d state: %d", ErrNonceTooHigh, msg.From, msgNonce, stNonce)
		} else if stNonce > msgNonce {
			return fmt.Errorf("%w: address %v, tx: %d state: %d", ErrNonceTooLow, msg.From, msgNonce, stNonce)
		} else if stNonce+1 < stNonce {
			return fmt.Errorf("%w: address %v, nonce: %d", ErrNonceMax, msg.From, stNonce)
		}
	}
	if !msg.SkipFromEOACheck {
		// EIP-3607: reject transactions from accounts with deployed code.
		if codeHash := st.state.GetCodeHash(msg.From); codeHash != (types.Hash{}) && codeHash != types.EmptyCodeHash {
			return fmt.Errorf("%w: address %v, codehash: %s", ErrSenderNoEOA, msg.From, codeHash)
		}
	}
	rules := st.evm.ChainRules()
	if rules.IsLondon && st.evm.Context.BaseFee != nil {
		// Skip the checks for zeroed fee fields to keep simulated calls
		// working against London rules.
		if msg.GasFeeCap.BitLen() > 0 || msg.GasTipCap.BitLen() > 0 {
			if msg.GasFeeCap.Cmp(msg.GasTipCap) < 0 {
				return fmt.Errorf("%w: address %v, maxPriorityFeePerGas: %s, maxFeePerGas: %s",
					ErrTipAboveFeeCap, msg.From, msg.GasTipCap, msg.GasFeeCap)
			}
			if msg.GasFeeCap.Cmp(st.evm.Context.BaseFee) < 0 {
				return fmt.Errorf("%w: address %v, maxFeePerGas: %s, baseFee: %s",
					ErrFeeCapTooLow, msg.From, msg.GasFeeCap, st.evm.Context.BaseFee)
			}
		}
	}
	if len(msg.BlobHashes) > 0 {
		if msg.To == nil {
			return ErrBlobTxCreate
		}
		if st.evm.Context.BlobBaseFee != nil && msg.BlobGasFeeCap.Cmp(st.evm.Context.BlobBaseFee) < 0 {
			return fmt.Errorf("%w: address %v blobGasFeeCap: %v, blobBaseFee: %v",
				ErrBlobFeeCapTooLow, msg.From, msg.BlobGasFeeCap, st.evm.Context.BlobBaseFee)
		}
	}
	return st.buyGas()
}

// execute runs the full transition: validation, gas purchase, intrinsic
// gas, the VM call or create, refunds and the coinbase fee.
func (st *stateTransition) execute() (*ExecutionResult, error) {
	if err := st.preCheck(); err != nil {
		return nil, err
	}
	var (
		msg              = st.msg
		sender           = msg.From
		rules            = st.evm.ChainRules()
		contractCreation = msg.To == nil
	)

	gas, err := IntrinsicGas(msg.Data, msg.AccessList, contractCreation, rules.IsHomestead, rules.IsIstanbul, rules.IsShanghai)
	if err != nil {
		return nil, err
	}
	if st.gasRemaining < gas {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, st.gasRemaining, gas)
	}
	st.gasRemaining -= gas

	if msg.Value.Sign() > 0 && !CanTransfer(st.state, sender, msg.Value) {
		return nil, fmt.Errorf("%w: address %v", ErrInsufficientFundsForTransfer, sender)
	}
	if rules.IsShanghai && contractCreation && len(msg.Data) > vm.MaxInitCodeSize {
		return nil, fmt.Errorf("%w: code size %v, limit %v", ErrMaxInitCodeSizeExceeded, len(msg.Data), vm.MaxInitCodeSize)
	}

	// Warm the addresses and slots known before execution.
	st.state.Prepare(sender, st.evm.Context.Coinbase, msg.To, vm.ActivePrecompiles(rules), msg.AccessList, rules.IsShanghai)

	var (
		ret   []byte
		vmerr error
	)
	if contractCreation {
		ret, _, st.gasRemaining, vmerr = st.evm.Create(sender, msg.Data, st.gasRemaining, msg.Value)
	} else {
		st.state.SetNonce(sender, st.state.GetNonce(sender)+1)
		ret, st.gasRemaining, vmerr = st.evm.Call(sender, *msg.To, msg.Data, st.gasRemaining, msg.Value)
	}

	var gasRefund uint64
	if !rules.IsLondon {
		gasRefund = st.refundGas(vm.RefundQuotient)
	} else {
		gasRefund = st.refundGas(vm.RefundQuotientEIP3529)
	}
	if rules.IsLondon && msg.GasFeeCap.BitLen() == 0 && msg.GasTipCap.BitLen() == 0 {
		// Zeroed fee fields mark a simulated call: the effective tip
		// would be negative, so no coinbase payment happens at all.
	} else {
		effectiveTip := msg.GasPrice
		if rules.IsLondon {
			effectiveTip = new(big.Int).Sub(msg.GasFeeCap, st.evm.Context.BaseFee)
			if effectiveTip.Cmp(msg.GasTipCap) > 0 {
				effectiveTip = msg.GasTipCap
			}
		}
		fee := new(big.Int).SetUint64(st.gasUsed())
		fee.Mul(fee, effectiveTip)
		feeU256, _ := uint256.FromBig(fee)
		st.state.AddBalance(st.evm.Context.Coinbase, feeU256)
	}

	return &ExecutionResult{
		UsedGas:     st.gasUsed(),
		RefundedGas: gasRefund,
		Err:         vmerr,
		ReturnData:  ret,
	}, nil
}

// refundGas caps the accumulated refund counter at gasUsed/quotient, pays
// the sender back for unspent gas and returns the gas to the block pool.
func (st *stateTransition) refundGas(refundQuotient uint64) uint64 {
	refund := st.gasUsed() / refundQuotient
	if refund > st.state.GetRefund() {
		refund = st.state.GetRefund()
	}
	st.gasRemaining += refund

	remaining := new(big.Int).SetUint64(st.gasRemaining)
	remaining.Mul(remaining, st.msg.GasPrice)
	remainingU256, _ := uint256.FromBig(remaining)
	st.state.AddBalance(st.msg.From, remainingU256)

	st.gp.AddGas(st.gasRemaining)
	return refund
}

// gasUsed returns the gas consumed by the transition so far.
func (st *stateTransition) gasUsed() uint64 {
	return st.initialGas - st.gasRemaining
}
