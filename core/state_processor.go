package core

import (
	"fmt"

	"github.com/ethvm/ethvm/core/state"
	"github.com/ethvm/ethvm/core/types"
	"github.com/ethvm/ethvm/core/vm"
	"github.com/ethvm/ethvm/log"
)

// StateProcessor applies the transactions of a block to a state, producing
// the receipts and logs. It performs body-level work only; header
// validation belongs to the consensus layer.
type StateProcessor struct {
	config  *ChainConfig
	getHash vm.GetHashFunc
}

// NewStateProcessor builds a processor for the given chain configuration.
// getHash serves the BLOCKHASH opcode and may be nil when no transaction
// in the block uses it.
func NewStateProcessor(config *ChainConfig, getHash vm.GetHashFunc) *StateProcessor {
	return &StateProcessor{config: config, getHash: getHash}
}

// ProcessResult bundles the outputs of a block's execution.
type ProcessResult struct {
	Receipts []*types.Receipt
	Logs     []*types.Log
	GasUsed  uint64
}

// Process runs every transaction of the block in order against statedb,
// accumulating receipts, logs and gas. The first invalid transaction
// aborts the whole block.
func (p *StateProcessor) Process(block *types.Block, statedb *state.StateDB) (*ProcessResult, error) {
	var (
		header   = block.Header()
		gp       = new(GasPool).AddGas(block.GasLimit())
		usedGas  uint64
		receipts []*types.Receipt
		allLogs  []*types.Log
	)
	blockCtx := NewEVMBlockContext(header, p.getHash, nil)
	rules := p.config.Rules(header.Number, header.Time)
	evm := vm.NewEVM(blockCtx, vm.TxContext{}, statedb, rules)

	for i, tx := range block.Transactions() {
		msg, err := TransactionToMessage(tx, p.config.ChainID, header.BaseFee)
		if err != nil {
			return nil, fmt.Errorf("could not apply tx %d [%v]: %w", i, tx.Hash(), err)
		}
		statedb.SetTxContext(tx.Hash(), i)
		receipt, err := applyTransaction(msg, tx.Hash(), gp, statedb, evm, &usedGas)
		if err != nil {
			return nil, fmt.Errorf("could not apply tx %d [%v]: %w", i, tx.Hash(), err)
		}
		receipt.Type = tx.Type
		receipt.TxHash = tx.Hash()
		receipt.BlockNumber = header.Number
		receipt.TransactionIndex = uint(i)
		receipts = append(receipts, receipt)
		allLogs = append(allLogs, receipt.Logs...)
	}
	log.Debug("applied block", "number", header.Number, "txs", len(block.Transactions()), "gasUsed", usedGas)
	return &ProcessResult{Receipts: receipts, Logs: allLogs, GasUsed: usedGas}, nil
}

// ApplyTransaction runs a single transaction against statedb in the
// context of the given header and returns its receipt. The gas pool must
// hold the block's remaining gas.
func ApplyTransaction(config *ChainConfig, getHash vm.GetHashFunc, statedb *state.StateDB, header *types.Header, tx *types.Transaction, gp *GasPool, usedGas *uint64) (*types.Receipt, error) {
	msg, err := TransactionToMessage(tx, config.ChainID, header.BaseFee)
	if err != nil {
		return nil, err
	}
	blockCtx := NewEVMBlockContext(header, getHash, nil)
	rules := config.Rules(header.Number, header.Time)
	evm := vm.NewEVM(blockCtx, NewEVMTxContext(msg), statedb, rules)

	statedb.SetTxContext(tx.Hash(), statedb.TxIndex())
	receipt, err := applyTransaction(msg, tx.Hash(), gp, statedb, evm, usedGas)
	if err != nil {
		return nil, err
	}
	receipt.Type = tx.Type
	receipt.TxHash = tx.Hash()
	receipt.BlockNumber = header.Number
	return receipt, nil
}

func applyTransaction(msg *Message, txHash types.Hash, gp *GasPool, statedb *state.StateDB, evm *vm.EVM, usedGas *uint64) (*types.Receipt, error) {
	evm.Reset(NewEVMTxContext(msg), statedb)

	result, err := ApplyMessage(evm, msg, gp)
	if err != nil {
		return nil, err
	}

	// EIP-158: touched empty accounts and self-destruct targets are
	// settled per transaction so later transactions in the block see the
	// pruned state.
	statedb.Finalise(evm.ChainRules().IsSpuriousDragon)
	*usedGas += result.UsedGas

	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: *usedGas,
		GasUsed:           result.UsedGas,
	}
	if result.Failed() {
		receipt.Status = types.ReceiptStatusFailed
		log.Debug("transaction failed", "hash", txHash, "gasUsed", result.UsedGas, "err", result.Err)
	}
	if msg.To == nil {
		receipt.ContractAddress = types.CreateAddress(msg.From, msg.Nonce)
	}
	receipt.Logs = statedb.GetLogs(txHash)
	receipt.Bloom = types.LogsBloom(receipt.Logs)
	return receipt, nil
}
