package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/types"
)

type (
	// CanTransferFunc reports whether the account can cover the transfer.
	CanTransferFunc func(StateDB, types.Address, *uint256.Int) bool
	// TransferFunc moves value between accounts.
	TransferFunc func(StateDB, types.Address, types.Address, *uint256.Int)
	// GetHashFunc returns the hash of the n'th block, for BLOCKHASH.
	GetHashFunc func(uint64) types.Hash
)

// BlockContext carries the block-scoped values the EVM exposes through
// environment opcodes. It does not change between transactions of a block.
type BlockContext struct {
	CanTransfer CanTransferFunc
	Transfer    TransferFunc
	GetHash     GetHashFunc

	Coinbase    types.Address
	GasLimit    uint64
	BlockNumber *big.Int
	Time        uint64
	Difficulty  *big.Int
	BaseFee     *big.Int
	BlobBaseFee *big.Int
	Random      *types.Hash // prevrandao, post-merge only
}

// TxContext carries the transaction-scoped values; it is swapped out for
// each transaction via Reset.
type TxContext struct {
	Origin     types.Address
	GasPrice   *big.Int
	BlobHashes []types.Hash
}

// EVM is the message-call engine: it owns the frame tree of one
// transaction, dispatches to precompiles or the interpreter, and wraps
// every frame in a state snapshot.
//
// An EVM must never be reused across goroutines.
type EVM struct {
	Context BlockContext
	TxContext

	StateDB StateDB

	depth int

	chainRules Rules

	// callGasTemp carries the gas amount computed by the call gas
	// functions to the call opcodes, which run after the gas step.
	callGasTemp uint64

	interpreter *Interpreter
}

// NewEVM returns an engine for one transaction's execution.
func NewEVM(blockCtx BlockContext, txCtx TxContext, statedb StateDB, rules Rules) *EVM {
	evm := &EVM{
		Context:    blockCtx,
		TxContext:  txCtx,
		StateDB:    statedb,
		chainRules: rules,
	}
	evm.interpreter = NewInterpreter(evm)
	return evm
}

// Reset rebinds the engine to a new transaction without rebuilding the
// jump table.
func (evm *EVM) Reset(txCtx TxContext, statedb StateDB) {
	evm.TxContext = txCtx
	evm.StateDB = statedb
}

// ChainRules exposes the fork flags the engine was built with.
func (evm *EVM) ChainRules() Rules { return evm.chainRules }

// Interpreter returns the bytecode interpreter of the engine.
func (evm *EVM) Interpreter() *Interpreter { return evm.interpreter }

// Depth returns the current call stack depth.
func (evm *EVM) Depth() int { return evm.depth }

func (evm *EVM) precompile(addr types.Address) (PrecompiledContract, bool) {
	p, ok := activePrecompiledContracts(evm.chainRules)[addr]
	return p, ok
}

// Call executes the code at addr in addr's own storage context, moving
// value from caller to addr first. It returns the output, the gas left in
// the frame, and an error if the frame failed; on any error but a revert
// the remaining gas is zero.
func (evm *EVM) Call(caller, addr types.Address, input []byte, gas uint64, value *uint256.Int) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > int(CallCreateDepth) {
		return nil, gas, ErrDepth
	}
	if !value.IsZero() && !evm.Context.CanTransfer(evm.StateDB, caller, value) {
		return nil, gas, ErrInsufficientBalance
	}
	snapshot := evm.StateDB.Snapshot()
	p, isPrecompile := evm.precompile(addr)

	if !evm.StateDB.Exist(addr) {
		if !isPrecompile && evm.chainRules.IsSpuriousDragon && value.IsZero() {
			// A valueless call to a nonexistent account neither creates
			// it nor runs anything.
			return nil, gas, nil
		}
		evm.StateDB.CreateAccount(addr)
	}
	evm.Context.Transfer(evm.StateDB, caller, addr, value)

	if isPrecompile {
		ret, gas, err = RunPrecompiledContract(p, input, gas)
	} else {
		code := evm.StateDB.GetCode(addr)
		if len(code) == 0 {
			ret, err = nil, nil
		} else {
			contract := NewContract(caller, addr, value, gas)
			contract.SetCallCode(addr, evm.StateDB.GetCodeHash(addr), code)
			ret, err = evm.interpreter.Run(contract, input, false)
			gas = contract.Gas
		}
	}
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
		// The 2300 stipend survives a reverted frame only through the
		// gas variable above; refusal paths before the snapshot keep it
		// by returning the input gas untouched.
	}
	return ret, gas, err
}

// CallCode executes addr's code in the caller's storage context with the
// caller as msg.sender. The value is checked against the caller's balance
// but moved nowhere: it only sets CALLVALUE inside the frame.
func (evm *EVM) CallCode(caller, addr types.Address, input []byte, gas uint64, value *uint256.Int) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > int(CallCreateDepth) {
		return nil, gas, ErrDepth
	}
	if !value.IsZero() && !evm.Context.CanTransfer(evm.StateDB, caller, value) {
		return nil, gas, ErrInsufficientBalance
	}
	snapshot := evm.StateDB.Snapshot()

	if p, isPrecompile := evm.precompile(addr); isPrecompile {
		ret, gas, err = RunPrecompiledContract(p, input, gas)
	} else {
		contract := NewContract(caller, caller, value, gas)
		contract.SetCallCode(addr, evm.StateDB.GetCodeHash(addr), evm.StateDB.GetCode(addr))
		ret, err = evm.interpreter.Run(contract, input, false)
		gas = contract.Gas
	}
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// DelegateCall executes addr's code in the parent frame's storage context,
// inheriting the parent's msg.sender and msg.value.
func (evm *EVM) DelegateCall(parent *Contract, addr types.Address, input []byte, gas uint64) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > int(CallCreateDepth) {
		return nil, gas, ErrDepth
	}
	snapshot := evm.StateDB.Snapshot()

	if p, isPrecompile := evm.precompile(addr); isPrecompile {
		ret, gas, err = RunPrecompiledContract(p, input, gas)
	} else {
		contract := NewContract(parent.CallerAddress, parent.Address, parent.Value, gas)
		contract.SetCallCode(addr, evm.StateDB.GetCodeHash(addr), evm.StateDB.GetCode(addr))
		ret, err = evm.interpreter.Run(contract, input, false)
		gas = contract.Gas
	}
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// StaticCall executes the code at addr with state modification disabled
// for the whole sub-tree of the frame.
func (evm *EVM) StaticCall(caller, addr types.Address, input []byte, gas uint64) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > int(CallCreateDepth) {
		return nil, gas, ErrDepth
	}
	snapshot := evm.StateDB.Snapshot()

	// A zero-value AddBalance registers a touch, matching the historical
	// behavior of static frames.
	evm.StateDB.AddBalance(addr, new(uint256.Int))

	if p, isPrecompile := evm.precompile(addr); isPrecompile {
		ret, gas, err = RunPrecompiledContract(p, input, gas)
	} else {
		contract := NewContract(caller, addr, new(uint256.Int), gas)
		contract.SetCallCode(addr, evm.StateDB.GetCodeHash(addr), evm.StateDB.GetCode(addr))
		ret, err = evm.interpreter.Run(contract, input, true)
		gas = contract.Gas
	}
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// create runs initcode and deploys the produced code at addr.
func (evm *EVM) create(caller types.Address, code []byte, gas uint64, value *uint256.Int, addr types.Address) (ret []byte, createdAddr types.Address, leftOverGas uint64, err error) {
	if evm.depth > int(CallCreateDepth) {
		return nil, types.Address{}, gas, ErrDepth
	}
	if !evm.Context.CanTransfer(evm.StateDB, caller, value) {
		return nil, types.Address{}, gas, ErrInsufficientBalance
	}
	if evm.chainRules.IsShanghai && len(code) > MaxInitCodeSize {
		return nil, types.Address{}, gas, ErrMaxInitCodeSizeExceeded
	}
	nonce := evm.StateDB.GetNonce(caller)
	evm.StateDB.SetNonce(caller, nonce+1)

	// The destination joins the access list before the collision check so
	// a failed create leaves it warm (EIP-2929).
	if evm.chainRules.IsBerlin {
		evm.StateDB.AddAddressToAccessList(addr)
	}
	// A contract or non-empty account at the target address is a
	// collision; all gas is lost.
	contractHash := evm.StateDB.GetCodeHash(addr)
	if evm.StateDB.GetNonce(addr) != 0 || (contractHash != (types.Hash{}) && contractHash != types.EmptyCodeHash) {
		return nil, types.Address{}, 0, ErrContractAddressCollision
	}
	snapshot := evm.StateDB.Snapshot()
	evm.StateDB.CreateAccount(addr)
	if evm.chainRules.IsSpuriousDragon {
		evm.StateDB.SetNonce(addr, 1)
	}
	evm.Context.Transfer(evm.StateDB, caller, addr, value)

	contract := NewContract(caller, addr, value, gas)
	contract.SetCallCode(addr, types.Hash(crypto.Keccak256Hash(code)), code)

	ret, err = evm.interpreter.Run(contract, code, false)

	// EIP-170: deployed code is capped.
	if err == nil && evm.chainRules.IsSpuriousDragon && len(ret) > MaxCodeSize {
		err = ErrMaxCodeSizeExceeded
	}
	// EIP-3541: deployed code must not start with 0xEF.
	if err == nil && len(ret) >= 1 && ret[0] == 0xEF && evm.chainRules.IsLondon {
		err = ErrInvalidCode
	}
	// Charge the code deposit. Before Homestead an unpayable deposit left
	// the account codeless but did not fail the create.
	if err == nil {
		createDataGas := uint64(len(ret)) * CreateDataGas
		if contract.UseGas(createDataGas) {
			evm.StateDB.SetCode(addr, ret)
		} else if evm.chainRules.IsHomestead {
			err = ErrCodeStoreOutOfGas
		}
	}

	if err != nil && (evm.chainRules.IsHomestead || err != ErrCodeStoreOutOfGas) {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			contract.UseGas(contract.Gas)
		}
	}
	return ret, addr, contract.Gas, err
}

// Create deploys a contract at the sender-and-nonce derived address.
func (evm *EVM) Create(caller types.Address, code []byte, gas uint64, value *uint256.Int) (ret []byte, contractAddr types.Address, leftOverGas uint64, err error) {
	contractAddr = types.CreateAddress(caller, evm.StateDB.GetNonce(caller))
	return evm.create(caller, code, gas, value, contractAddr)
}

// Create2 deploys a contract at the salt-and-initcode derived address.
func (evm *EVM) Create2(caller types.Address, code []byte, gas uint64, endowment *uint256.Int, salt *uint256.Int) (ret []byte, contractAddr types.Address, leftOverGas uint64, err error) {
	inithash := crypto.Keccak256(code)
	contractAddr = types.CreateAddress2(caller, types.Hash(salt.Bytes32()), inithash)
	return evm.create(caller, code, gas, endowment, contractAddr)
}
