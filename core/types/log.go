package types

import "math/big"

// Log is an event record emitted by a LOG0-LOG4 opcode. The address, topics
// and data come from the emitting frame; the remaining fields are filled in
// by the transaction processor once the enclosing block context is known.
type Log struct {
	Address Address
	Topics  []Hash
	Data    []byte

	BlockNumber uint64
	TxHash      Hash
	TxIndex     uint
	BlockHash   Hash
	Index       uint
}

// Copy returns a deep copy of the log.
func (l *Log) Copy() *Log {
	cpy := *l
	cpy.Topics = make([]Hash, len(l.Topics))
	copy(cpy.Topics, l.Topics)
	cpy.Data = make([]byte, len(l.Data))
	copy(cpy.Data, l.Data)
	return &cpy
}

// Receipt status codes (EIP-658).
const (
	ReceiptStatusFailed     = uint64(0)
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt is the post-execution record of a transaction.
type Receipt struct {
	Type              uint8
	Status            uint64
	CumulativeGasUsed uint64
	Bloom             Bloom
	Logs              []*Log

	// Derived fields, filled in by the processor.
	TxHash            Hash
	ContractAddress   Address // set for contract-creation transactions
	GasUsed           uint64
	BlockHash         Hash
	BlockNumber       *big.Int
	TransactionIndex  uint
}

// NewReceipt creates a receipt with the given status and cumulative gas.
func NewReceipt(status uint64, cumulativeGasUsed uint64) *Receipt {
	return &Receipt{Status: status, CumulativeGasUsed: cumulativeGasUsed}
}

// Failed reports whether the transaction this receipt belongs to reverted
// or halted exceptionally.
func (r *Receipt) Failed() bool { return r.Status == ReceiptStatusFailed }
