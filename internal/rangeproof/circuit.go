package rangeproof

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/math/emulated"
)

// ValueBits bounds committed amounts to [0, 2^64).
const ValueBits = 64

var fq25519Modulus, _ = new(big.Int).SetString("57896044618658097711785492504343953926634992332820282019728792003956564819949", 10)

// Fq25519 describes Z_q with q = 2^255 - 19 as four 64-bit limbs.
type Fq25519 struct{}

func (Fq25519) NbLimbs() uint     { return 4 }
func (Fq25519) BitsPerLimb() uint { return 64 }
func (Fq25519) IsPrime() bool     { return true }
func (Fq25519) Modulus() *big.Int { return fq25519Modulus }

// Circuit proves knowledge of (Value, Blind) opening Commitment, with Value
// decomposed into ValueBits bits.
type Circuit struct {
	// Public inputs
	Commitment emulated.Element[Fq25519] `gnark:",public"`
	ValueBase  emulated.Element[Fq25519] `gnark:",public"`
	BlindBase  emulated.Element[Fq25519] `gnark:",public"`

	// Private inputs
	Value frontend.Variable
	Blind emulated.Element[Fq25519]
}

func (c *Circuit) Define(api frontend.API) error {
	f, err := emulated.NewField[Fq25519](api)
	if err != nil {
		return err
	}

	// Step 1: range check by binary decomposition
	bits := api.ToBinary(c.Value, ValueBits)
	v := f.FromBits(bits...)

	// Step 2: Hc·v + Gc·b == C over Z_q
	lhs := f.Add(f.Mul(&c.ValueBase, v), f.Mul(&c.BlindBase, &c.Blind))
	f.AssertIsEqual(lhs, &c.Commitment)
	return nil
}

func publicAssignment(commitment, valueBase, blindBase *big.Int) *Circuit {
	return &Circuit{
		Commitment: emulated.ValueOf[Fq25519](commitment),
		ValueBase:  emulated.ValueOf[Fq25519](valueBase),
		BlindBase:  emulated.ValueOf[Fq25519](blindBase),
	}
}
