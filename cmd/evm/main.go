// Command evm executes EVM bytecode against a fresh in-memory state.
//
// Usage:
//
//	evm [flags]
//
// Flags:
//
//	--code       Bytecode to run, hex encoded
//	--codefile   File holding the hex bytecode (overrides --code)
//	--input      Call data, hex encoded
//	--create     Treat the code as initcode and run a contract creation
//	--gas        Gas limit for the transaction (default: 10000000)
//	--value      Value sent with the transaction in wei (default: 0)
//	--sender     Sender address (default: 0x1000...0001)
//	--receiver   Receiver address the code is installed at (default: 0x2000...0002)
//	--fork       Fork rules to run under: frontier ... prague (default: prague)
//	--verbosity  Log level: debug, info, warn, error (default: info)
//	--version    Print version and exit
//
// The code is installed on the receiver and invoked as a regular
// transaction, so the reported gas includes the 21000 intrinsic cost.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/ethvm/ethvm/core"
	"github.com/ethvm/ethvm/core/state"
	"github.com/ethvm/ethvm/core/types"
	"github.com/ethvm/ethvm/core/vm"
	"github.com/ethvm/ethvm/log"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

type runConfig struct {
	Code     string
	CodeFile string
	Input    string
	Create   bool

	Gas   uint64
	Value uint64

	Sender   string
	Receiver string
	Fork     string

	Verbosity   string
	ShowVersion bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}
	if cfg.ShowVersion {
		fmt.Printf("evm %s (%s)\n", version, commit)
		return 0
	}

	log.SetDefault(log.New(log.LevelFromString(cfg.Verbosity)))

	if err := execute(cfg, os.Stdout); err != nil {
		log.Error("execution aborted", "err", err)
		return 1
	}
	return 0
}

// parseFlags parses args into a runConfig. The second return value asks the
// caller to exit with the third as the process code.
func parseFlags(args []string) (*runConfig, bool, int) {
	cfg := &runConfig{}

	fs := flag.NewFlagSet("evm", flag.ContinueOnError)
	fs.StringVar(&cfg.Code, "code", "", "bytecode to run, hex encoded")
	fs.StringVar(&cfg.CodeFile, "codefile", "", "file holding the hex bytecode")
	fs.StringVar(&cfg.Input, "input", "", "call data, hex encoded")
	fs.BoolVar(&cfg.Create, "create", false, "run the code as a contract creation")
	fs.Uint64Var(&cfg.Gas, "gas", 10_000_000, "gas limit for the transaction")
	fs.Uint64Var(&cfg.Value, "value", 0, "value sent with the transaction in wei")
	fs.StringVar(&cfg.Sender, "sender", "0x1000000000000000000000000000000000000001", "sender address")
	fs.StringVar(&cfg.Receiver, "receiver", "0x2000000000000000000000000000000000000002", "receiver address")
	fs.StringVar(&cfg.Fork, "fork", "prague", "fork rules to run under")
	fs.StringVar(&cfg.Verbosity, "verbosity", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, 0
		}
		return nil, true, 2
	}
	return cfg, false, 0
}

// execute runs the configured transaction and writes the outcome to w.
func execute(cfg *runConfig, w io.Writer) error {
	chainConfig, err := forkConfig(cfg.Fork)
	if err != nil {
		return err
	}
	code, err := parseHex(cfg.Code, cfg.CodeFile)
	if err != nil {
		return fmt.Errorf("invalid code: %w", err)
	}
	input, err := parseHex(cfg.Input, "")
	if err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	var (
		statedb  = state.New()
		sender   = types.HexToAddress(cfg.Sender)
		receiver = types.HexToAddress(cfg.Receiver)
	)
	// Fund the sender generously; the runner is about the code, not the fees.
	statedb.AddBalance(sender, new(uint256.Int).Lsh(uint256.NewInt(1), 200))

	header := &types.Header{
		Coinbase:    types.Address{},
		Number:      big.NewInt(0),
		GasLimit:    cfg.Gas,
		Time:        0,
		Difficulty:  big.NewInt(0),
		BaseFee:     big.NewInt(0),
		BlobBaseFee: big.NewInt(0),
	}
	msg := &core.Message{
		From:             sender,
		Nonce:            0,
		Value:            uint256.NewInt(cfg.Value),
		GasLimit:         cfg.Gas,
		GasPrice:         big.NewInt(0),
		GasFeeCap:        big.NewInt(0),
		GasTipCap:        big.NewInt(0),
		SkipNonceChecks:  true,
		SkipFromEOACheck: true,
	}
	if cfg.Create {
		msg.Data = code
	} else {
		statedb.SetCode(receiver, code)
		msg.To = &receiver
		msg.Data = input
	}

	evm := vm.NewEVM(core.NewEVMBlockContext(header, nil, nil), core.NewEVMTxContext(msg), statedb, chainConfig.Rules(header.Number, header.Time))
	gp := new(core.GasPool).AddGas(cfg.Gas)

	start := time.Now()
	result, err := core.ApplyMessage(evm, msg, gp)
	if err != nil {
		return err
	}
	log.Info("execution finished",
		"fork", strings.ToLower(cfg.Fork),
		"gasUsed", result.UsedGas,
		"refunded", result.RefundedGas,
		"elapsed", time.Since(start))

	if result.Err != nil {
		fmt.Fprintf(w, "error: %v\n", result.Err)
	}
	fmt.Fprintf(w, "0x%x\n", result.ReturnData)
	for _, l := range statedb.Logs() {
		fmt.Fprintf(w, "log %s", l.Address)
		for _, topic := range l.Topics {
			fmt.Fprintf(w, " %s", topic)
		}
		fmt.Fprintf(w, " data=0x%x\n", l.Data)
	}
	return nil
}

// parseHex decodes a hex string, reading it from file when one is given.
func parseHex(s, file string) ([]byte, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(string(raw))
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex %q", s)
	}
	return b, nil
}
