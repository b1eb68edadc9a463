package types

import "math/big"

// Block pairs a header with its transaction body. Uncles and withdrawals
// never reach the EVM and are left to the consensus layer.
type Block struct {
	header       *Header
	transactions []*Transaction
}

// NewBlock assembles a block from a header and its transactions. The
// header is referenced, not copied.
func NewBlock(header *Header, txs []*Transaction) *Block {
	return &Block{header: header, transactions: txs}
}

func (b *Block) Header() *Header             { return b.header }
func (b *Block) Transactions() []*Transaction { return b.transactions }
func (b *Block) Number() *big.Int            { return b.header.Number }
func (b *Block) Time() uint64                { return b.header.Time }
func (b *Block) GasLimit() uint64            { return b.header.GasLimit }
func (b *Block) Coinbase() Address           { return b.header.Coinbase }
func (b *Block) BaseFee() *big.Int           { return b.header.BaseFee }
