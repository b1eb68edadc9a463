package vm

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"

	goethkzg "github.com/crate-crypto/go-eth-kzg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/blake2b"
	"github.com/ethereum/go-ethereum/crypto/bn256"

	//lint:ignore SA1019 the EVM is bound to the legacy RIPEMD-160 forever
	"golang.org/x/crypto/ripemd160"

	"github.com/ethvm/ethvm/core/types"
)

// PrecompiledContract is a contract implemented natively rather than as
// bytecode. Gas is charged up front from RequiredGas; Run never meters.
type PrecompiledContract interface {
	RequiredGas(input []byte) uint64
	Run(input []byte) ([]byte, error)
}

// PrecompiledContractsHomestead holds the launch set, unchanged through
// Homestead and the gas repricing forks.
var PrecompiledContractsHomestead = PrecompiledContracts{
	types.BytesToAddress([]byte{0x01}): &ecrecover{},
	types.BytesToAddress([]byte{0x02}): &sha256hash{},
	types.BytesToAddress([]byte{0x03}): &ripemd160hash{},
	types.BytesToAddress([]byte{0x04}): &dataCopy{},
}

// PrecompiledContractsByzantium adds modexp and the bn256 trio.
var PrecompiledContractsByzantium = PrecompiledContracts{
	types.BytesToAddress([]byte{0x01}): &ecrecover{},
	types.BytesToAddress([]byte{0x02}): &sha256hash{},
	types.BytesToAddress([]byte{0x03}): &ripemd160hash{},
	types.BytesToAddress([]byte{0x04}): &dataCopy{},
	types.BytesToAddress([]byte{0x05}): &bigModExp{eip2565: false},
	types.BytesToAddress([]byte{0x06}): &bn256Add{istanbul: false},
	types.BytesToAddress([]byte{0x07}): &bn256ScalarMul{istanbul: false},
	types.BytesToAddress([]byte{0x08}): &bn256Pairing{istanbul: false},
}

// PrecompiledContractsIstanbul reprices the bn256 trio (EIP-1108) and adds
// the blake2b compression function (EIP-152).
var PrecompiledContractsIstanbul = PrecompiledContracts{
	types.BytesToAddress([]byte{0x01}): &ecrecover{},
	types.BytesToAddress([]byte{0x02}): &sha256hash{},
	types.BytesToAddress([]byte{0x03}): &ripemd160hash{},
	types.BytesToAddress([]byte{0x04}): &dataCopy{},
	types.BytesToAddress([]byte{0x05}): &bigModExp{eip2565: false},
	types.BytesToAddress([]byte{0x06}): &bn256Add{istanbul: true},
	types.BytesToAddress([]byte{0x07}): &bn256ScalarMul{istanbul: true},
	types.BytesToAddress([]byte{0x08}): &bn256Pairing{istanbul: true},
	types.BytesToAddress([]byte{0x09}): &blake2F{},
}

// PrecompiledContractsBerlin reprices modexp (EIP-2565).
var PrecompiledContractsBerlin = PrecompiledContracts{
	types.BytesToAddress([]byte{0x01}): &ecrecover{},
	types.BytesToAddress([]byte{0x02}): &sha256hash{},
	types.BytesToAddress([]byte{0x03}): &ripemd160hash{},
	types.BytesToAddress([]byte{0x04}): &dataCopy{},
	types.BytesToAddress([]byte{0x05}): &bigModExp{eip2565: true},
	types.BytesToAddress([]byte{0x06}): &bn256Add{istanbul: true},
	types.BytesToAddress([]byte{0x07}): &bn256ScalarMul{istanbul: true},
	types.BytesToAddress([]byte{0x08}): &bn256Pairing{istanbul: true},
	types.BytesToAddress([]byte{0x09}): &blake2F{},
}

// PrecompiledContractsCancun adds the KZG point evaluation proof check
// (EIP-4844).
var PrecompiledContractsCancun = PrecompiledContracts{
	types.BytesToAddress([]byte{0x01}): &ecrecover{},
	types.BytesToAddress([]byte{0x02}): &sha256hash{},
	types.BytesToAddress([]byte{0x03}): &ripemd160hash{},
	types.BytesToAddress([]byte{0x04}): &dataCopy{},
	types.BytesToAddress([]byte{0x05}): &bigModExp{eip2565: true},
	types.BytesToAddress([]byte{0x06}): &bn256Add{istanbul: true},
	types.BytesToAddress([]byte{0x07}): &bn256ScalarMul{istanbul: true},
	types.BytesToAddress([]byte{0x08}): &bn256Pairing{istanbul: true},
	types.BytesToAddress([]byte{0x09}): &blake2F{},
	types.BytesToAddress([]byte{0x0a}): &kzgPointEvaluation{},
}

// PrecompiledContractsPrague adds the BLS12-381 operation set (EIP-2537).
var PrecompiledContractsPrague = PrecompiledContracts{
	types.BytesToAddress([]byte{0x01}): &ecrecover{},
	types.BytesToAddress([]byte{0x02}): &sha256hash{},
	types.BytesToAddress([]byte{0x03}): &ripemd160hash{},
	types.BytesToAddress([]byte{0x04}): &dataCopy{},
	types.BytesToAddress([]byte{0x05}): &bigModExp{eip2565: true},
	types.BytesToAddress([]byte{0x06}): &bn256Add{istanbul: true},
	types.BytesToAddress([]byte{0x07}): &bn256ScalarMul{istanbul: true},
	types.BytesToAddress([]byte{0x08}): &bn256Pairing{istanbul: true},
	types.BytesToAddress([]byte{0x09}): &blake2F{},
	types.BytesToAddress([]byte{0x0a}): &kzgPointEvaluation{},
	types.BytesToAddress([]byte{0x0b}): &bls12381G1Add{},
	types.BytesToAddress([]byte{0x0c}): &bls12381G1MSM{},
	types.BytesToAddress([]byte{0x0d}): &bls12381G2Add{},
	types.BytesToAddress([]byte{0x0e}): &bls12381G2MSM{},
	types.BytesToAddress([]byte{0x0f}): &bls12381Pairing{},
	types.BytesToAddress([]byte{0x10}): &bls12381MapFpToG1{},
	types.BytesToAddress([]byte{0x11}): &bls12381MapFp2ToG2{},
}

// PrecompiledContracts maps precompile addresses to implementations.
type PrecompiledContracts map[types.Address]PrecompiledContract

func activePrecompiledContracts(rules Rules) PrecompiledContracts {
	switch {
	case rules.IsPrague:
		return PrecompiledContractsPrague
	case rules.IsCancun:
		return PrecompiledContractsCancun
	case rules.IsBerlin:
		return PrecompiledContractsBerlin
	case rules.IsIstanbul:
		return PrecompiledContractsIstanbul
	case rules.IsByzantium:
		return PrecompiledContractsByzantium
	default:
		return PrecompiledContractsHomestead
	}
}

// ActivePrecompiles returns the addresses of the precompiles enabled for
// the given fork, for access-list prewarming.
func ActivePrecompiles(rules Rules) []types.Address {
	active := activePrecompiledContracts(rules)
	addrs := make([]types.Address, 0, len(active))
	for addr := range active {
		addrs = append(addrs, addr)
	}
	return addrs
}

// RunPrecompiledContract charges the precompile's gas and runs it. Any
// failure consumes all gas supplied to the frame.
func RunPrecompiledContract(p PrecompiledContract, input []byte, suppliedGas uint64) (ret []byte, remainingGas uint64, err error) {
	gasCost := p.RequiredGas(input)
	if suppliedGas < gasCost {
		return nil, 0, ErrOutOfGas
	}
	suppliedGas -= gasCost
	output, err := p.Run(input)
	if err != nil {
		return nil, 0, err
	}
	return output, suppliedGas, nil
}

// Precompile gas parameters.
const (
	EcrecoverGas        uint64 = 3000
	Sha256BaseGas       uint64 = 60
	Sha256PerWordGas    uint64 = 12
	Ripemd160BaseGas    uint64 = 600
	Ripemd160PerWordGas uint64 = 120
	IdentityBaseGas     uint64 = 15
	IdentityPerWordGas  uint64 = 3

	Bn256AddGasByzantium             uint64 = 500
	Bn256AddGasIstanbul              uint64 = 150
	Bn256ScalarMulGasByzantium       uint64 = 40000
	Bn256ScalarMulGasIstanbul        uint64 = 6000
	Bn256PairingBaseGasByzantium     uint64 = 100000
	Bn256PairingBaseGasIstanbul      uint64 = 45000
	Bn256PairingPerPointGasByzantium uint64 = 80000
	Bn256PairingPerPointGasIstanbul  uint64 = 34000

	Blake2FGasPerRound uint64 = 1

	KzgPointEvaluationGas uint64 = 50000
)

// ecrecover implements the secp256k1 public key recovery precompile.
type ecrecover struct{}

func (c *ecrecover) RequiredGas(input []byte) uint64 {
	return EcrecoverGas
}

func (c *ecrecover) Run(input []byte) ([]byte, error) {
	const ecRecoverInputLength = 128

	input = common.RightPadBytes(input, ecRecoverInputLength)
	// "input" is (hash, v, r, s), each 32 bytes, but for  hash, the
	// recovery id lives in the last byte of the second word.
	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])
	v := input[63] - 27

	// Malformed signatures answer with empty output, never an error.
	if !allZero(input[32:63]) || !crypto.ValidateSignatureValues(v, r, s, false) {
		return nil, nil
	}
	sig := make([]byte, 65)
	copy(sig[0:32], input[64:96])
	copy(sig[32:64], input[96:128])
	sig[64] = v

	pubKey, err := crypto.Ecrecover(input[:32], sig)
	if err != nil {
		return nil, nil
	}
	return common.LeftPadBytes(crypto.Keccak256(pubKey[1:])[12:], 32), nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// sha256hash implements the SHA-256 precompile.
type sha256hash struct{}

func (c *sha256hash) RequiredGas(input []byte) uint64 {
	return uint64(len(input)+31)/32*Sha256PerWordGas + Sha256BaseGas
}

func (c *sha256hash) Run(input []byte) ([]byte, error) {
	h := sha256.Sum256(input)
	return h[:], nil
}

// ripemd160hash implements the RIPEMD-160 precompile.
type ripemd160hash struct{}

func (c *ripemd160hash) RequiredGas(input []byte) uint64 {
	return uint64(len(input)+31)/32*Ripemd160PerWordGas + Ripemd160BaseGas
}

func (c *ripemd160hash) Run(input []byte) ([]byte, error) {
	ripemd := ripemd160.New()
	ripemd.Write(input)
	return common.LeftPadBytes(ripemd.Sum(nil), 32), nil
}

// dataCopy implements the identity precompile.
type dataCopy struct{}

func (c *dataCopy) RequiredGas(input []byte) uint64 {
	return uint64(len(input)+31)/32*IdentityPerWordGas + IdentityBaseGas
}

func (c *dataCopy) Run(input []byte) ([]byte, error) {
	return common.CopyBytes(input), nil
}

// bigModExp implements the EIP-198 arbitrary precision modular
// exponentiation precompile, with the EIP-2565 repricing behind a flag.
type bigModExp struct {
	eip2565 bool
}

var (
	big1  = big.NewInt(1)
	big3  = big.NewInt(3)
	big4  = big.NewInt(4)
	big7  = big.NewInt(7)
	big8  = big.NewInt(8)
	big16 = big.NewInt(16)
	big20 = big.NewInt(20)
	big32 = big.NewInt(32)
	big64 = big.NewInt(64)
	big96 = big.NewInt(96)

	big480    = big.NewInt(480)
	big1024   = big.NewInt(1024)
	big3072   = big.NewInt(3072)
	big199680 = big.NewInt(199680)
)

// modexpMultComplexity computes the pre-EIP-2565 complexity term.
//
//	x <= 64:   x ** 2
//	x <= 1024: x ** 2 // 4 + 96 * x - 3072
//	else:      x ** 2 // 16 + 480 * x - 199680
func modexpMultComplexity(x *big.Int) *big.Int {
	switch {
	case x.Cmp(big64) <= 0:
		x.Mul(x, x)
	case x.Cmp(big1024) <= 0:
		x = new(big.Int).Add(
			new(big.Int).Div(new(big.Int).Mul(x, x), big4),
			new(big.Int).Sub(new(big.Int).Mul(big96, x), big3072),
		)
	default:
		x = new(big.Int).Add(
			new(big.Int).Div(new(big.Int).Mul(x, x), big16),
			new(big.Int).Sub(new(big.Int).Mul(big480, x), big199680),
		)
	}
	return x
}

func bigMax(x, y *big.Int) *big.Int {
	if x.Cmp(y) < 0 {
		return y
	}
	return x
}

func (c *bigModExp) RequiredGas(input []byte) uint64 {
	var (
		baseLen = new(big.Int).SetBytes(getData(input, 0, 32))
		expLen  = new(big.Int).SetBytes(getData(input, 32, 32))
		modLen  = new(big.Int).SetBytes(getData(input, 64, 32))
	)
	if len(input) > 96 {
		input = input[96:]
	} else {
		input = input[:0]
	}
	// The head word of the exponent sets the adjusted exponent length.
	expHead := new(big.Int)
	if big.NewInt(int64(len(input))).Cmp(baseLen) > 0 {
		if expLen.Cmp(big32) > 0 {
			expHead = new(big.Int).SetBytes(getData(input, baseLen.Uint64(), 32))
		} else {
			expHead = new(big.Int).SetBytes(getData(input, baseLen.Uint64(), expLen.Uint64()))
		}
	}
	var msb int
	if bitlen := expHead.BitLen(); bitlen > 0 {
		msb = bitlen - 1
	}
	adjExpLen := new(big.Int)
	if expLen.Cmp(big32) > 0 {
		adjExpLen.Sub(expLen, big32)
		adjExpLen.Mul(big8, adjExpLen)
	}
	adjExpLen.Add(adjExpLen, big.NewInt(int64(msb)))

	gas := new(big.Int).Set(bigMax(modLen, baseLen))
	if c.eip2565 {
		// ceil(x/8)^2 with a divisor of 3 and a 200 gas floor.
		gas.Add(gas, big7)
		gas.Div(gas, big8)
		gas.Mul(gas, gas)

		gas.Mul(gas, bigMax(adjExpLen, big1))
		gas.Div(gas, big3)
		if gas.BitLen() > 64 {
			return 0xffffffffffffffff
		}
		if gas.Uint64() < 200 {
			return 200
		}
		return gas.Uint64()
	}
	gas = modexpMultComplexity(gas)
	gas.Mul(gas, bigMax(adjExpLen, big1))
	gas.Div(gas, big20)
	if gas.BitLen() > 64 {
		return 0xffffffffffffffff
	}
	return gas.Uint64()
}

func (c *bigModExp) Run(input []byte) ([]byte, error) {
	var (
		baseLen = new(big.Int).SetBytes(getData(input, 0, 32)).Uint64()
		expLen  = new(big.Int).SetBytes(getData(input, 32, 32)).Uint64()
		modLen  = new(big.Int).SetBytes(getData(input, 64, 32)).Uint64()
	)
	if len(input) > 96 {
		input = input[96:]
	} else {
		input = input[:0]
	}
	if baseLen == 0 && modLen == 0 {
		return []byte{}, nil
	}
	var (
		base = new(big.Int).SetBytes(getData(input, 0, baseLen))
		exp  = new(big.Int).SetBytes(getData(input, baseLen, expLen))
		mod  = new(big.Int).SetBytes(getData(input, baseLen+expLen, modLen))
	)
	if mod.BitLen() == 0 {
		// x mod 0 is defined as zero.
		return common.LeftPadBytes([]byte{}, int(modLen)), nil
	}
	return common.LeftPadBytes(base.Exp(base, exp, mod).Bytes(), int(modLen)), nil
}

// newCurvePoint unmarshals input into a bn256 G1 point.
func newCurvePoint(blob []byte) (*bn256.G1, error) {
	p := new(bn256.G1)
	if _, err := p.Unmarshal(blob); err != nil {
		return nil, err
	}
	return p, nil
}

// newTwistPoint unmarshals input into a bn256 G2 point.
func newTwistPoint(blob []byte) (*bn256.G2, error) {
	p := new(bn256.G2)
	if _, err := p.Unmarshal(blob); err != nil {
		return nil, err
	}
	return p, nil
}

// bn256Add implements the alt_bn128 curve addition precompile; the
// istanbul flag selects the EIP-1108 gas price.
type bn256Add struct {
	istanbul bool
}

func (c *bn256Add) RequiredGas(input []byte) uint64 {
	if c.istanbul {
		return Bn256AddGasIstanbul
	}
	return Bn256AddGasByzantium
}

func (c *bn256Add) Run(input []byte) ([]byte, error) {
	x, err := newCurvePoint(getData(input, 0, 64))
	if err != nil {
		return nil, err
	}
	y, err := newCurvePoint(getData(input, 64, 64))
	if err != nil {
		return nil, err
	}
	res := new(bn256.G1)
	res.Add(x, y)
	return res.Marshal(), nil
}

// bn256ScalarMul implements the alt_bn128 scalar multiplication
// precompile.
type bn256ScalarMul struct {
	istanbul bool
}

func (c *bn256ScalarMul) RequiredGas(input []byte) uint64 {
	if c.istanbul {
		return Bn256ScalarMulGasIstanbul
	}
	return Bn256ScalarMulGasByzantium
}

func (c *bn256ScalarMul) Run(input []byte) ([]byte, error) {
	p, err := newCurvePoint(getData(input, 0, 64))
	if err != nil {
		return nil, err
	}
	res := new(bn256.G1)
	res.ScalarMult(p, new(big.Int).SetBytes(getData(input, 64, 32)))
	return res.Marshal(), nil
}

var (
	// true32Byte is the 32-byte big-endian encoding of one.
	true32Byte = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

	// false32Byte is the 32-byte big-endian encoding of zero.
	false32Byte = make([]byte, 32)

	errBadPairingInput = errors.New("bad elliptic curve pairing size")
)

// bn256Pairing implements the alt_bn128 pairing check precompile.
type bn256Pairing struct {
	istanbul bool
}

func (c *bn256Pairing) RequiredGas(input []byte) uint64 {
	if c.istanbul {
		return Bn256PairingBaseGasIstanbul + uint64(len(input)/192)*Bn256PairingPerPointGasIstanbul
	}
	return Bn256PairingBaseGasByzantium + uint64(len(input)/192)*Bn256PairingPerPointGasByzantium
}

func (c *bn256Pairing) Run(input []byte) ([]byte, error) {
	// The input is a sequence of (G1, G2) pairs of 192 bytes each.
	if len(input)%192 > 0 {
		return nil, errBadPairingInput
	}
	var (
		cs []*bn256.G1
		ts []*bn256.G2
	)
	for i := 0; i < len(input); i += 192 {
		c, err := newCurvePoint(input[i : i+64])
		if err != nil {
			return nil, err
		}
		t, err := newTwistPoint(input[i+64 : i+192])
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
		ts = append(ts, t)
	}
	if bn256.PairingCheck(cs, ts) {
		return true32Byte, nil
	}
	return false32Byte, nil
}

var (
	errBlake2FInvalidInputLength = errors.New("invalid input length")
	errBlake2FInvalidFinalFlag   = errors.New("invalid final flag")
)

// blake2F implements the EIP-152 blake2b compression function precompile.
type blake2F struct{}

const blake2FInputLength = 213

func (c *blake2F) RequiredGas(input []byte) uint64 {
	// The gas equals the round count, encoded in the first four bytes.
	if len(input) != blake2FInputLength {
		return 0
	}
	return uint64(binary.BigEndian.Uint32(input[0:4])) * Blake2FGasPerRound
}

func (c *blake2F) Run(input []byte) ([]byte, error) {
	// rounds¦4 h¦64 m¦128 t¦16 final¦1
	if len(input) != blake2FInputLength {
		return nil, errBlake2FInvalidInputLength
	}
	if input[212] != 0 && input[212] != 1 {
		return nil, errBlake2FInvalidFinalFlag
	}
	var (
		rounds = binary.BigEndian.Uint32(input[0:4])
		final  = input[212] == 1

		h [8]uint64
		m [16]uint64
		t [2]uint64
	)
	for i := 0; i < 8; i++ {
		offset := 4 + i*8
		h[i] = binary.LittleEndian.Uint64(input[offset : offset+8])
	}
	for i := 0; i < 16; i++ {
		offset := 68 + i*8
		m[i] = binary.LittleEndian.Uint64(input[offset : offset+8])
	}
	t[0] = binary.LittleEndian.Uint64(input[196:204])
	t[1] = binary.LittleEndian.Uint64(input[204:212])

	blake2b.F(&h, m, t, final, rounds)

	output := make([]byte, 64)
	for i := 0; i < 8; i++ {
		offset := i * 8
		binary.LittleEndian.PutUint64(output[offset:offset+8], h[i])
	}
	return output, nil
}

var (
	errBlobVerifyInvalidInputLength = errors.New("invalid input length")
	errBlobVerifyMismatchedVersion  = errors.New("mismatched versioned hash")
	errBlobVerifyKZGProof           = errors.New("error verifying kzg proof")

	// kzgContext holds the trusted setup for the 4096-element domain.
	kzgContext = sync.OnceValue(func() *goethkzg.Context {
		ctx, err := goethkzg.NewContext4096Secure()
		if err != nil {
			panic(err)
		}
		return ctx
	})
)

const (
	blobVerifyInputLength    = 192
	blobCommitmentVersionKZG = 0x01
)

// blobPrecompileReturnValue is FIELD_ELEMENTS_PER_BLOB followed by the BLS
// scalar field modulus, the fixed success output of the evaluation check.
var blobPrecompileReturnValue = common.FromHex(
	"0000000000000000000000000000000000000000000000000000000000001000" +
		"73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001")

// kzgPointEvaluation implements the EIP-4844 point evaluation precompile.
type kzgPointEvaluation struct{}

func (c *kzgPointEvaluation) RequiredGas(input []byte) uint64 {
	return KzgPointEvaluationGas
}

func (c *kzgPointEvaluation) Run(input []byte) ([]byte, error) {
	if len(input) != blobVerifyInputLength {
		return nil, errBlobVerifyInvalidInputLength
	}
	// versioned hash¦32 z¦32 y¦32 commitment¦48 proof¦48
	var versionedHash types.Hash
	copy(versionedHash[:], input[:32])

	var (
		z goethkzg.Scalar
		y goethkzg.Scalar
	)
	copy(z[:], input[32:64])
	copy(y[:], input[64:96])

	var (
		commitment goethkzg.KZGCommitment
		proof      goethkzg.KZGProof
	)
	copy(commitment[:], input[96:144])
	copy(proof[:], input[144:192])

	if kzgToVersionedHash(commitment) != versionedHash {
		return nil, errBlobVerifyMismatchedVersion
	}
	if err := kzgContext().VerifyKZGProof(commitment, z, y, proof); err != nil {
		return nil, errBlobVerifyKZGProof
	}
	return blobPrecompileReturnValue, nil
}

// kzgToVersionedHash maps a commitment onto its versioned hash: a SHA-256
// with the first byte replaced by the version.
func kzgToVersionedHash(kzg goethkzg.KZGCommitment) types.Hash {
	h := sha256.Sum256(kzg[:])
	h[0] = blobCommitmentVersionKZG
	return h
}
