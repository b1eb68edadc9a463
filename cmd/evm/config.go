package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethvm/ethvm/core"
)

// forkConfig returns a chain configuration with every fork up to and
// including name active from genesis.
func forkConfig(name string) (*core.ChainConfig, error) {
	cfg := &core.ChainConfig{ChainID: big.NewInt(1)}
	zero := big.NewInt(0)
	zeroTime := uint64(0)

	steps := []struct {
		name  string
		apply func()
	}{
		{"frontier", func() {}},
		{"homestead", func() { cfg.HomesteadBlock = zero }},
		{"tangerine", func() { cfg.TangerineWhistleBlock = zero }},
		{"spurious", func() { cfg.SpuriousDragonBlock = zero }},
		{"byzantium", func() { cfg.ByzantiumBlock = zero }},
		{"constantinople", func() { cfg.ConstantinopleBlock = zero }},
		{"petersburg", func() { cfg.PetersburgBlock = zero }},
		{"istanbul", func() { cfg.IstanbulBlock = zero }},
		{"berlin", func() { cfg.BerlinBlock = zero }},
		{"london", func() { cfg.LondonBlock = zero }},
		{"merge", func() { cfg.MergeBlock = zero }},
		{"shanghai", func() { cfg.ShanghaiTime = &zeroTime }},
		{"cancun", func() { cfg.CancunTime = &zeroTime }},
		{"prague", func() { cfg.PragueTime = &zeroTime }},
	}

	want := strings.ToLower(strings.TrimSpace(name))
	for _, step := range steps {
		step.apply()
		if step.name == want {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("unknown fork %q", name)
}
