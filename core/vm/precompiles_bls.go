package vm

// EIP-2537 BLS12-381 precompiles (0x0b - 0x11). They give contracts native
// access to the curve underlying the consensus layer's signatures, making
// on-chain BLS verification and pairing-based schemes affordable.

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc"
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var (
	errBLS12InvalidInputLength = errors.New("bls12-381: invalid input length")
	errBLS12InvalidFieldElement = errors.New("bls12-381: invalid field element")
	errBLS12PointNotOnCurve     = errors.New("bls12-381: point not on curve")
	errBLS12G1PointSubgroup     = errors.New("bls12-381: g1 point is not in correct subgroup")
	errBLS12G2PointSubgroup     = errors.New("bls12-381: g2 point is not in correct subgroup")
)

// BLS12-381 precompile gas parameters.
const (
	Bls12381G1AddGas          uint64 = 375
	Bls12381G1MulGas          uint64 = 12000
	Bls12381G2AddGas          uint64 = 600
	Bls12381G2MulGas          uint64 = 22500
	Bls12381PairingBaseGas    uint64 = 37700
	Bls12381PairingPerPairGas uint64 = 32600
	Bls12381MapG1Gas          uint64 = 5500
	Bls12381MapG2Gas          uint64 = 23800
)

// Encoding sizes: field elements are left-padded to 64 bytes, so a G1
// point takes 128 bytes and a G2 point 256.
const (
	blsFpSize     = 64
	blsG1PointSize = 128
	blsG2PointSize = 256
	blsScalarSize  = 32
)

// msmDiscountG1 is the Pippenger discount table (per 1000) for G1
// multi-scalar multiplication; entry k-1 holds the discount for k pairs
// and the last entry caps everything beyond.
var msmDiscountG1 = [128]uint64{1000, 949, 848, 797, 764, 750, 738, 728, 719, 712, 705, 698, 692, 687, 682, 677, 673, 669, 665, 661, 658, 654, 651, 648, 645, 642, 640, 637, 635, 632, 630, 627, 625, 623, 621, 619, 617, 615, 613, 611, 609, 608, 606, 604, 603, 601, 599, 598, 596, 595, 593, 592, 591, 589, 588, 586, 585, 584, 582, 581, 580, 579, 577, 576, 575, 574, 573, 572, 570, 569, 568, 567, 566, 565, 564, 563, 562, 561, 560, 559, 558, 557, 556, 555, 554, 553, 552, 551, 550, 549, 548, 547, 547, 546, 545, 544, 543, 542, 541, 540, 540, 539, 538, 537, 536, 536, 535, 534, 533, 532, 532, 531, 530, 529, 528, 528, 527, 526, 525, 525, 524, 523, 522, 522, 521, 520, 520, 519}

// msmDiscountG2 is the discount table for G2 multi-scalar multiplication.
var msmDiscountG2 = [128]uint64{1000, 1000, 923, 884, 855, 832, 812, 796, 782, 770, 759, 749, 740, 732, 724, 717, 711, 704, 699, 693, 688, 683, 679, 674, 670, 666, 663, 659, 655, 652, 649, 646, 643, 640, 637, 634, 632, 629, 627, 624, 622, 620, 618, 615, 613, 611, 609, 607, 606, 604, 602, 600, 598, 597, 595, 593, 592, 590, 589, 587, 586, 584, 583, 582, 580, 579, 578, 576, 575, 574, 573, 571, 570, 569, 568, 567, 566, 565, 563, 562, 561, 560, 559, 558, 557, 556, 555, 554, 553, 552, 552, 551, 550, 549, 548, 547, 546, 545, 545, 544, 543, 542, 541, 541, 540, 539, 538, 537, 537, 536, 535, 535, 534, 533, 532, 532, 531, 530, 530, 529, 528, 528, 527, 526, 526, 525, 524, 524}

func msmGas(k int, mulGas uint64, table *[128]uint64) uint64 {
	if k == 0 {
		return 0
	}
	var discount uint64
	if k <= len(table) {
		discount = table[k-1]
	} else {
		discount = table[len(table)-1]
	}
	return (uint64(k) * mulGas * discount) / 1000
}

// decodeBLS12381FieldElement reads a 64-byte padded field element: the top
// 16 bytes must be zero and the value must be a canonical element of Fp.
func decodeBLS12381FieldElement(in []byte) (fp.Element, error) {
	if len(in) != blsFpSize {
		return fp.Element{}, errBLS12InvalidFieldElement
	}
	for i := 0; i < 16; i++ {
		if in[i] != 0 {
			return fp.Element{}, errBLS12InvalidFieldElement
		}
	}
	var raw [fp.Bytes]byte
	copy(raw[:], in[16:])
	elem, err := fp.BigEndian.Element(&raw)
	if err != nil {
		return fp.Element{}, errBLS12InvalidFieldElement
	}
	return elem, nil
}

// decodePointG1 reads a 128-byte G1 point. All zeros is the point at
// infinity; anything else must lie on the curve. Subgroup membership is
// checked separately where the operation needs it.
func decodePointG1(in []byte) (*bls12381.G1Affine, error) {
	if len(in) != blsG1PointSize {
		return nil, errBLS12InvalidInputLength
	}
	x, err := decodeBLS12381FieldElement(in[:blsFpSize])
	if err != nil {
		return nil, err
	}
	y, err := decodeBLS12381FieldElement(in[blsFpSize:])
	if err != nil {
		return nil, err
	}
	elem := bls12381.G1Affine{X: x, Y: y}
	if !elem.IsInfinity() && !elem.IsOnCurve() {
		return nil, errBLS12PointNotOnCurve
	}
	return &elem, nil
}

func encodePointG1(p *bls12381.G1Affine) []byte {
	out := make([]byte, blsG1PointSize)
	if p.IsInfinity() {
		return out
	}
	fp.BigEndian.PutElement((*[fp.Bytes]byte)(out[16:64]), p.X)
	fp.BigEndian.PutElement((*[fp.Bytes]byte)(out[80:128]), p.Y)
	return out
}

// decodePointG2 reads a 256-byte G2 point with the same conventions as
// decodePointG1.
func decodePointG2(in []byte) (*bls12381.G2Affine, error) {
	if len(in) != blsG2PointSize {
		return nil, errBLS12InvalidInputLength
	}
	x0, err := decodeBLS12381FieldElement(in[:64])
	if err != nil {
		return nil, err
	}
	x1, err := decodeBLS12381FieldElement(in[64:128])
	if err != nil {
		return nil, err
	}
	y0, err := decodeBLS12381FieldElement(in[128:192])
	if err != nil {
		return nil, err
	}
	y1, err := decodeBLS12381FieldElement(in[192:])
	if err != nil {
		return nil, err
	}
	elem := bls12381.G2Affine{
		X: bls12381.E2{A0: x0, A1: x1},
		Y: bls12381.E2{A0: y0, A1: y1},
	}
	if !elem.IsInfinity() && !elem.IsOnCurve() {
		return nil, errBLS12PointNotOnCurve
	}
	return &elem, nil
}

func encodePointG2(p *bls12381.G2Affine) []byte {
	out := make([]byte, blsG2PointSize)
	if p.IsInfinity() {
		return out
	}
	fp.BigEndian.PutElement((*[fp.Bytes]byte)(out[16:64]), p.X.A0)
	fp.BigEndian.PutElement((*[fp.Bytes]byte)(out[80:128]), p.X.A1)
	fp.BigEndian.PutElement((*[fp.Bytes]byte)(out[144:192]), p.Y.A0)
	fp.BigEndian.PutElement((*[fp.Bytes]byte)(out[208:256]), p.Y.A1)
	return out
}

// bls12381G1Add implements the G1 point addition precompile (0x0b).
type bls12381G1Add struct{}

func (c *bls12381G1Add) RequiredGas(input []byte) uint64 {
	return Bls12381G1AddGas
}

func (c *bls12381G1Add) Run(input []byte) ([]byte, error) {
	if len(input) != 2*blsG1PointSize {
		return nil, errBLS12InvalidInputLength
	}
	p0, err := decodePointG1(input[:blsG1PointSize])
	if err != nil {
		return nil, err
	}
	p1, err := decodePointG1(input[blsG1PointSize:])
	if err != nil {
		return nil, err
	}
	// Addition does not require a subgroup check.
	p0.Add(p0, p1)
	return encodePointG1(p0), nil
}

// bls12381G1MSM implements the G1 multi-scalar multiplication precompile
// (0x0c); single multiplications are the k=1 case.
type bls12381G1MSM struct{}

func (c *bls12381G1MSM) RequiredGas(input []byte) uint64 {
	return msmGas(len(input)/(blsG1PointSize+blsScalarSize), Bls12381G1MulGas, &msmDiscountG1)
}

func (c *bls12381G1MSM) Run(input []byte) ([]byte, error) {
	const pairSize = blsG1PointSize + blsScalarSize
	k := len(input) / pairSize
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, errBLS12InvalidInputLength
	}
	points := make([]bls12381.G1Affine, k)
	scalars := make([]fr.Element, k)
	for i := 0; i < k; i++ {
		off := pairSize * i
		p, err := decodePointG1(input[off : off+blsG1PointSize])
		if err != nil {
			return nil, err
		}
		if !p.IsInSubGroup() {
			return nil, errBLS12G1PointSubgroup
		}
		points[i] = *p
		scalars[i].SetBytes(input[off+blsG1PointSize : off+pairSize])
	}
	r := new(bls12381.G1Affine)
	if _, err := r.MultiExp(points, scalars, ecc.MultiExpConfig{}); err != nil {
		return nil, err
	}
	return encodePointG1(r), nil
}

// bls12381G2Add implements the G2 point addition precompile (0x0d).
type bls12381G2Add struct{}

func (c *bls12381G2Add) RequiredGas(input []byte) uint64 {
	return Bls12381G2AddGas
}

func (c *bls12381G2Add) Run(input []byte) ([]byte, error) {
	if len(input) != 2*blsG2PointSize {
		return nil, errBLS12InvalidInputLength
	}
	p0, err := decodePointG2(input[:blsG2PointSize])
	if err != nil {
		return nil, err
	}
	p1, err := decodePointG2(input[blsG2PointSize:])
	if err != nil {
		return nil, err
	}
	p0.Add(p0, p1)
	return encodePointG2(p0), nil
}

// bls12381G2MSM implements the G2 multi-scalar multiplication precompile
// (0x0e).
type bls12381G2MSM struct{}

func (c *bls12381G2MSM) RequiredGas(input []byte) uint64 {
	return msmGas(len(input)/(blsG2PointSize+blsScalarSize), Bls12381G2MulGas, &msmDiscountG2)
}

func (c *bls12381G2MSM) Run(input []byte) ([]byte, error) {
	const pairSize = blsG2PointSize + blsScalarSize
	k := len(input) / pairSize
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, errBLS12InvalidInputLength
	}
	points := make([]bls12381.G2Affine, k)
	scalars := make([]fr.Element, k)
	for i := 0; i < k; i++ {
		off := pairSize * i
		p, err := decodePointG2(input[off : off+blsG2PointSize])
		if err != nil {
			return nil, err
		}
		if !p.IsInSubGroup() {
			return nil, errBLS12G2PointSubgroup
		}
		points[i] = *p
		scalars[i].SetBytes(input[off+blsG2PointSize : off+pairSize])
	}
	r := new(bls12381.G2Affine)
	if _, err := r.MultiExp(points, scalars, ecc.MultiExpConfig{}); err != nil {
		return nil, err
	}
	return encodePointG2(r), nil
}

// bls12381Pairing implements the pairing check precompile (0x0f).
type bls12381Pairing struct{}

func (c *bls12381Pairing) RequiredGas(input []byte) uint64 {
	return Bls12381PairingBaseGas + uint64(len(input)/(blsG1PointSize+blsG2PointSize))*Bls12381PairingPerPairGas
}

func (c *bls12381Pairing) Run(input []byte) ([]byte, error) {
	const pairSize = blsG1PointSize + blsG2PointSize
	k := len(input) / pairSize
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, errBLS12InvalidInputLength
	}
	var (
		p0 = make([]bls12381.G1Affine, k)
		p1 = make([]bls12381.G2Affine, k)
	)
	for i := 0; i < k; i++ {
		off := pairSize * i
		g1, err := decodePointG1(input[off : off+blsG1PointSize])
		if err != nil {
			return nil, err
		}
		if !g1.IsInSubGroup() {
			return nil, errBLS12G1PointSubgroup
		}
		g2, err := decodePointG2(input[off+blsG1PointSize : off+pairSize])
		if err != nil {
			return nil, err
		}
		if !g2.IsInSubGroup() {
			return nil, errBLS12G2PointSubgroup
		}
		p0[i] = *g1
		p1[i] = *g2
	}
	out := make([]byte, 32)
	if ok, err := bls12381.PairingCheck(p0, p1); err == nil && ok {
		out[31] = 1
	}
	return out, nil
}

// bls12381MapFpToG1 implements the map-to-G1 precompile (0x10).
type bls12381MapFpToG1 struct{}

func (c *bls12381MapFpToG1) RequiredGas(input []byte) uint64 {
	return Bls12381MapG1Gas
}

func (c *bls12381MapFpToG1) Run(input []byte) ([]byte, error) {
	if len(input) != blsFpSize {
		return nil, errBLS12InvalidInputLength
	}
	fe, err := decodeBLS12381FieldElement(input)
	if err != nil {
		return nil, err
	}
	r := bls12381.MapToG1(fe)
	return encodePointG1(&r), nil
}

// bls12381MapFp2ToG2 implements the map-to-G2 precompile (0x11).
type bls12381MapFp2ToG2 struct{}

func (c *bls12381MapFp2ToG2) RequiredGas(input []byte) uint64 {
	return Bls12381MapG2Gas
}

func (c *bls12381MapFp2ToG2) Run(input []byte) ([]byte, error) {
	if len(input) != 2*blsFpSize {
		return nil, errBLS12InvalidInputLength
	}
	c0, err := decodeBLS12381FieldElement(input[:blsFpSize])
	if err != nil {
		return nil, err
	}
	c1, err := decodeBLS12381FieldElement(input[blsFpSize:])
	if err != nil {
		return nil, err
	}
	r := bls12381.MapToG2(bls12381.E2{A0: c0, A1: c1})
	return encodePointG2(&r), nil
}
