// Package core implements the transaction and block processing layer on
// top of the virtual machine: fork scheduling, intrinsic gas, the state
// transition and receipt generation.
package core

import (
	"fmt"
	"math/big"

	"github.com/ethvm/ethvm/core/vm"
)

// ChainConfig is the fork schedule of a chain. Forks up to the merge
// activate by block number, later ones by block timestamp; a nil value
// means the fork never activates.
type ChainConfig struct {
	ChainID *big.Int `json:"chainId"`

	HomesteadBlock        *big.Int `json:"homesteadBlock,omitempty"`
	TangerineWhistleBlock *big.Int `json:"tangerineWhistleBlock,omitempty"` // EIP-150
	SpuriousDragonBlock   *big.Int `json:"spuriousDragonBlock,omitempty"`   // EIP-155/158/160/170
	ByzantiumBlock        *big.Int `json:"byzantiumBlock,omitempty"`
	ConstantinopleBlock   *big.Int `json:"constantinopleBlock,omitempty"`
	PetersburgBlock       *big.Int `json:"petersburgBlock,omitempty"`
	IstanbulBlock         *big.Int `json:"istanbulBlock,omitempty"`
	BerlinBlock           *big.Int `json:"berlinBlock,omitempty"`
	LondonBlock           *big.Int `json:"londonBlock,omitempty"`
	MergeBlock            *big.Int `json:"mergeBlock,omitempty"`

	ShanghaiTime *uint64 `json:"shanghaiTime,omitempty"`
	CancunTime   *uint64 `json:"cancunTime,omitempty"`
	PragueTime   *uint64 `json:"pragueTime,omitempty"`
}

// MainnetChainConfig is the fork schedule of the Ethereum main network.
var MainnetChainConfig = &ChainConfig{
	ChainID:               big.NewInt(1),
	HomesteadBlock:        big.NewInt(1_150_000),
	TangerineWhistleBlock: big.NewInt(2_463_000),
	SpuriousDragonBlock:   big.NewInt(2_675_000),
	ByzantiumBlock:        big.NewInt(4_370_000),
	ConstantinopleBlock:   big.NewInt(7_280_000),
	PetersburgBlock:       big.NewInt(7_280_000),
	IstanbulBlock:         big.NewInt(9_069_000),
	BerlinBlock:           big.NewInt(12_244_000),
	LondonBlock:           big.NewInt(12_965_000),
	MergeBlock:            big.NewInt(15_537_394),
	ShanghaiTime:          newUint64(1_681_338_455),
	CancunTime:            newUint64(1_710_338_135),
	PragueTime:            newUint64(1_746_612_311),
}

// TestChainConfig has every fork active from genesis.
var TestChainConfig = &ChainConfig{
	ChainID:               big.NewInt(1337),
	HomesteadBlock:        big.NewInt(0),
	TangerineWhistleBlock: big.NewInt(0),
	SpuriousDragonBlock:   big.NewInt(0),
	ByzantiumBlock:        big.NewInt(0),
	ConstantinopleBlock:   big.NewInt(0),
	PetersburgBlock:       big.NewInt(0),
	IstanbulBlock:         big.NewInt(0),
	BerlinBlock:           big.NewInt(0),
	LondonBlock:           big.NewInt(0),
	MergeBlock:            big.NewInt(0),
	ShanghaiTime:          newUint64(0),
	CancunTime:            newUint64(0),
	PragueTime:            newUint64(0),
}

func newUint64(v uint64) *uint64 { return &v }

// isBlockForked reports whether head is at or past the fork block s.
func isBlockForked(s, head *big.Int) bool {
	if s == nil || head == nil {
		return false
	}
	return s.Cmp(head) <= 0
}

// isTimestampForked reports whether head is at or past the fork time s.
func isTimestampForked(s *uint64, head uint64) bool {
	if s == nil {
		return false
	}
	return *s <= head
}

func (c *ChainConfig) IsHomestead(num *big.Int) bool {
	return isBlockForked(c.HomesteadBlock, num)
}

func (c *ChainConfig) IsTangerineWhistle(num *big.Int) bool {
	return isBlockForked(c.TangerineWhistleBlock, num)
}

func (c *ChainConfig) IsSpuriousDragon(num *big.Int) bool {
	return isBlockForked(c.SpuriousDragonBlock, num)
}

func (c *ChainConfig) IsByzantium(num *big.Int) bool {
	return isBlockForked(c.ByzantiumBlock, num)
}

func (c *ChainConfig) IsConstantinople(num *big.Int) bool {
	return isBlockForked(c.ConstantinopleBlock, num)
}

func (c *ChainConfig) IsPetersburg(num *big.Int) bool {
	return isBlockForked(c.PetersburgBlock, num)
}

func (c *ChainConfig) IsIstanbul(num *big.Int) bool {
	return isBlockForked(c.IstanbulBlock, num)
}

func (c *ChainConfig) IsBerlin(num *big.Int) bool {
	return isBlockForked(c.BerlinBlock, num)
}

func (c *ChainConfig) IsLondon(num *big.Int) bool {
	return isBlockForked(c.LondonBlock, num)
}

func (c *ChainConfig) IsMerge(num *big.Int) bool {
	return isBlockForked(c.MergeBlock, num)
}

func (c *ChainConfig) IsShanghai(num *big.Int, time uint64) bool {
	return c.IsMerge(num) && isTimestampForked(c.ShanghaiTime, time)
}

func (c *ChainConfig) IsCancun(num *big.Int, time uint64) bool {
	return c.IsMerge(num) && isTimestampForked(c.CancunTime, time)
}

func (c *ChainConfig) IsPrague(num *big.Int, time uint64) bool {
	return c.IsMerge(num) && isTimestampForked(c.PragueTime, time)
}

// Rules flattens the schedule into the per-block flag set the VM runs on.
func (c *ChainConfig) Rules(num *big.Int, time uint64) vm.Rules {
	chainID := c.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return vm.Rules{
		ChainID:            new(big.Int).Set(chainID),
		IsHomestead:        c.IsHomestead(num),
		IsTangerineWhistle: c.IsTangerineWhistle(num),
		IsSpuriousDragon:   c.IsSpuriousDragon(num),
		IsByzantium:        c.IsByzantium(num),
		IsConstantinople:   c.IsConstantinople(num),
		IsPetersburg:       c.IsPetersburg(num),
		IsIstanbul:         c.IsIstanbul(num),
		IsBerlin:           c.IsBerlin(num),
		IsLondon:           c.IsLondon(num),
		IsMerge:            c.IsMerge(num),
		IsShanghai:         c.IsShanghai(num, time),
		IsCancun:           c.IsCancun(num, time),
		IsPrague:           c.IsPrague(num, time),
	}
}

func (c *ChainConfig) String() string {
	return fmt.Sprintf("{ChainID: %v Homestead: %v TangerineWhistle: %v SpuriousDragon: %v Byzantium: %v Constantinople: %v Petersburg: %v Istanbul: %v Berlin: %v London: %v Merge: %v Shanghai: %v Cancun: %v Prague: %v}",
		c.ChainID, c.HomesteadBlock, c.TangerineWhistleBlock, c.SpuriousDragonBlock,
		c.ByzantiumBlock, c.ConstantinopleBlock, c.PetersburgBlock, c.IstanbulBlock,
		c.BerlinBlock, c.LondonBlock, c.MergeBlock, c.ShanghaiTime, c.CancunTime, c.PragueTime)
}
