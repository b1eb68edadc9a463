package vm

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core/state"
	"github.com/ethvm/ethvm/core/types"
)

var (
	testOrigin   = types.HexToAddress("1000000000000000000000000000000000000001")
	testContract = types.HexToAddress("2000000000000000000000000000000000000002")
)

func frontierRules() Rules {
	return Rules{ChainID: big.NewInt(1)}
}

func homesteadRules() Rules {
	r := frontierRules()
	r.IsHomestead = true
	return r
}

func tangerineRules() Rules {
	r := homesteadRules()
	r.IsTangerineWhistle = true
	return r
}

func spuriousRules() Rules {
	r := tangerineRules()
	r.IsSpuriousDragon = true
	return r
}

func byzantiumRules() Rules {
	r := spuriousRules()
	r.IsByzantium = true
	return r
}

func constantinopleRules() Rules {
	r := byzantiumRules()
	r.IsConstantinople = true
	return r
}

func istanbulRules() Rules {
	r := constantinopleRules()
	r.IsPetersburg = true
	r.IsIstanbul = true
	return r
}

func berlinRules() Rules {
	r := istanbulRules()
	r.IsBerlin = true
	return r
}

func londonRules() Rules {
	r := berlinRules()
	r.IsLondon = true
	return r
}

func shanghaiRules() Rules {
	r := londonRules()
	r.IsMerge = true
	r.IsShanghai = true
	return r
}

func cancunRules() Rules {
	r := shanghaiRules()
	r.IsCancun = true
	return r
}

func pragueRules() Rules {
	r := cancunRules()
	r.IsPrague = true
	return r
}

// newTestEVM builds an engine over a fresh journaled state with the given
// fork rules and a neutral block context.
func newTestEVM(rules Rules) (*EVM, *state.StateDB) {
	statedb := state.New()
	random := types.HexToHash("cafe")
	blockCtx := BlockContext{
		CanTransfer: func(db StateDB, addr types.Address, amount *uint256.Int) bool {
			return db.GetBalance(addr).Cmp(amount) >= 0
		},
		Transfer: func(db StateDB, sender, recipient types.Address, amount *uint256.Int) {
			db.SubBalance(sender, amount)
			db.AddBalance(recipient, amount)
		},
		GetHash:     func(n uint64) types.Hash { return types.Hash{} },
		Coinbase:    types.HexToAddress("c01dbeef"),
		GasLimit:    30_000_000,
		BlockNumber: big.NewInt(100),
		Time:        1700000000,
		Difficulty:  big.NewInt(131072),
		BaseFee:     big.NewInt(1000000000),
		BlobBaseFee: big.NewInt(1),
		Random:      &random,
	}
	txCtx := TxContext{
		Origin:   testOrigin,
		GasPrice: big.NewInt(1000000000),
	}
	return NewEVM(blockCtx, txCtx, statedb, rules), statedb
}

// runCode deploys code at testContract and calls it from testOrigin.
func runCode(rules Rules, code []byte, input []byte, gas uint64) (ret []byte, leftOverGas uint64, err error) {
	evm, statedb := newTestEVM(rules)
	statedb.CreateAccount(testOrigin)
	statedb.SetBalance(testOrigin, uint256.NewInt(1e18))
	statedb.SetCode(testContract, code)
	return evm.Call(testOrigin, testContract, input, gas, new(uint256.Int))
}
