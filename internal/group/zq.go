// zq.go - Toy additive group of integers modulo a prime.
//
// Scalar multiplication here is plain modular multiplication, so discrete logs
// are trivial: Zq preserves every interface and no security property.

package group

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ZqParams is the prime modulus plus one generator value per role.
type ZqParams struct {
	Modulus    *big.Int
	Generators map[Role]*big.Int
}

// DefaultZqParams returns q = 2^255 - 19 with generators 5, 7, 11, 13, 17.
func DefaultZqParams() ZqParams {
	q := new(big.Int).Lsh(big.NewInt(1), 255)
	q.Sub(q, big.NewInt(19))
	return ZqParams{
		Modulus: q,
		Generators: map[Role]*big.Int{
			RoleSpend:     big.NewInt(5),
			RoleTreeLeft:  big.NewInt(5),
			RoleTreeRight: big.NewInt(7),
			RoleKeyImage:  big.NewInt(11),
			RoleBlind:     big.NewInt(13),
			RoleValue:     big.NewInt(17),
		},
	}
}

// Validate checks the modulus is a prime of at most 256 bits and that every
// role has a generator in (0, q).
func (p ZqParams) Validate() error {
	if p.Modulus == nil || p.Modulus.Sign() <= 0 || p.Modulus.BitLen() > 256 {
		return ErrBadModulus
	}
	if !p.Modulus.ProbablyPrime(32) {
		return fmt.Errorf("%w: not prime", ErrBadModulus)
	}
	for _, r := range Roles() {
		v, ok := p.Generators[r]
		if !ok || v == nil {
			return fmt.Errorf("%w: %s missing", ErrBadGenerator, r)
		}
		if v.Sign() <= 0 || v.Cmp(p.Modulus) >= 0 {
			return fmt.Errorf("%w: %s = %s", ErrBadGenerator, r, v)
		}
	}
	return nil
}

type zqPoint struct {
	v uint256.Int
}

func (p zqPoint) Bytes() [PointSize]byte { return p.v.Bytes32() }

func (p zqPoint) Equal(o Point) bool {
	op, ok := o.(zqPoint)
	return ok && p.v.Eq(&op.v)
}

func (p zqPoint) String() string {
	b := p.v.Bytes32()
	return "0x" + hex.EncodeToString(b[:])
}

// Zq implements Group over the integers modulo a prime.
type Zq struct {
	q    uint256.Int
	qBig *big.Int
	gens [numRoles]zqPoint
}

// NewZq validates params and builds the group.
func NewZq(params ZqParams) (*Zq, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	z := &Zq{qBig: new(big.Int).Set(params.Modulus)}
	z.q.SetFromBig(params.Modulus)
	for _, r := range Roles() {
		z.gens[r].v.SetFromBig(params.Generators[r])
	}
	return z, nil
}

// DefaultZq builds Zq from DefaultZqParams.
func DefaultZq() *Zq {
	z, err := NewZq(DefaultZqParams())
	if err != nil {
		panic(err)
	}
	return z
}

func (z *Zq) Name() string { return "zq" }

func (z *Zq) Order() *big.Int { return new(big.Int).Set(z.qBig) }

func (z *Zq) Generator(r Role) Point {
	if r < 0 || r >= numRoles {
		panic(fmt.Sprintf("group zq: unknown role %d", int(r)))
	}
	return z.gens[r]
}

func (z *Zq) Identity() Point { return zqPoint{} }

func (z *Zq) elem(p Point) zqPoint {
	e, ok := p.(zqPoint)
	if !ok {
		panic(mismatch(z, p))
	}
	return e
}

func (z *Zq) scalar(k *big.Int) *uint256.Int {
	u, _ := uint256.FromBig(new(big.Int).Mod(k, z.qBig))
	return u
}

func (z *Zq) Mul(k *big.Int, p Point) Point {
	e := z.elem(p)
	var r zqPoint
	r.v.MulMod(z.scalar(k), &e.v, &z.q)
	return r
}

func (z *Zq) Add(a, b Point) Point {
	ea, eb := z.elem(a), z.elem(b)
	var r zqPoint
	r.v.AddMod(&ea.v, &eb.v, &z.q)
	return r
}

func (z *Zq) Sub(a, b Point) Point {
	ea, eb := z.elem(a), z.elem(b)
	if eb.v.IsZero() {
		return ea
	}
	var neg uint256.Int
	neg.Sub(&z.q, &eb.v)
	var r zqPoint
	r.v.AddMod(&ea.v, &neg, &z.q)
	return r
}

// Decode accepts exactly 32 big-endian bytes encoding a value below q.
func (z *Zq) Decode(b []byte) (Point, error) {
	if len(b) != PointSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrBadEncoding, PointSize, len(b))
	}
	var p zqPoint
	p.v.SetBytes32(b)
	if !p.v.Lt(&z.q) {
		return nil, fmt.Errorf("%w: value not reduced", ErrBadEncoding)
	}
	return p, nil
}

func (z *Zq) ToScalar(p Point) *big.Int {
	e := z.elem(p)
	return e.v.ToBig()
}

// FromScalar returns the element whose value is k mod q. Only meaningful in
// the toy group, where points and scalars share a representation.
func (z *Zq) FromScalar(k *big.Int) Point {
	return zqPoint{v: *z.scalar(k)}
}
