// bn254.go - G1 of the BN254 pairing curve as a Group.
//
// Generators are derived with hash-to-curve under a per-role domain tag, so no
// discrete-log relation between them is known. Points travel in gnark-crypto's
// 32-byte compressed form.

package group

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"
)

const bn254GeneratorDST = "MOCKMONERO-V1-BN254G1_XMD:SHA-256_SSWU_RO_"

type bnPoint struct {
	p bn254.G1Affine
}

func (p bnPoint) Bytes() [PointSize]byte { return p.p.Bytes() }

func (p bnPoint) Equal(o Point) bool {
	op, ok := o.(bnPoint)
	return ok && p.p.Equal(&op.p)
}

func (p bnPoint) String() string {
	b := p.p.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// BN254 implements Group over the prime-order G1 subgroup of BN254.
type BN254 struct {
	order *big.Int
	gens  [numRoles]bnPoint
}

// NewBN254 derives one generator per role.
func NewBN254() (*BN254, error) {
	g := &BN254{order: fr.Modulus()}
	for _, r := range Roles() {
		pt, err := bn254.HashToG1([]byte("generator/"+r.String()), []byte(bn254GeneratorDST))
		if err != nil {
			return nil, fmt.Errorf("group bn254: deriving %s generator: %w", r, err)
		}
		g.gens[r] = bnPoint{p: pt}
	}
	return g, nil
}

func (g *BN254) Name() string { return "bn254" }

func (g *BN254) Order() *big.Int { return new(big.Int).Set(g.order) }

func (g *BN254) Generator(r Role) Point {
	if r < 0 || r >= numRoles {
		panic(fmt.Sprintf("group bn254: unknown role %d", int(r)))
	}
	return g.gens[r]
}

func (g *BN254) Identity() Point { return bnPoint{} }

func (g *BN254) elem(p Point) bnPoint {
	e, ok := p.(bnPoint)
	if !ok {
		panic(mismatch(g, p))
	}
	return e
}

func (g *BN254) Mul(k *big.Int, p Point) Point {
	e := g.elem(p)
	var r bnPoint
	r.p.ScalarMultiplication(&e.p, new(big.Int).Mod(k, g.order))
	return r
}

func (g *BN254) Add(a, b Point) Point {
	ea, eb := g.elem(a), g.elem(b)
	var ja, jb bn254.G1Jac
	ja.FromAffine(&ea.p)
	jb.FromAffine(&eb.p)
	ja.AddAssign(&jb)
	var r bnPoint
	r.p.FromJacobian(&ja)
	return r
}

func (g *BN254) Sub(a, b Point) Point {
	ea, eb := g.elem(a), g.elem(b)
	var ja, jb bn254.G1Jac
	ja.FromAffine(&ea.p)
	jb.FromAffine(&eb.p)
	jb.Neg(&jb)
	ja.AddAssign(&jb)
	var r bnPoint
	r.p.FromJacobian(&ja)
	return r
}

// Decode accepts a 32-byte compressed point on the curve and in the subgroup.
func (g *BN254) Decode(b []byte) (Point, error) {
	if len(b) != PointSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrBadEncoding, PointSize, len(b))
	}
	var p bnPoint
	if _, err := p.p.SetBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	return p, nil
}

// ToScalar reduces 64 bytes of SHAKE256 output over the compressed point.
func (g *BN254) ToScalar(p Point) *big.Int {
	b := g.elem(p).Bytes()
	h := sha3.NewShake256()
	h.Write([]byte("MOCKMONERO/to-scalar"))
	h.Write(b[:])
	var wide [64]byte
	h.Read(wide[:])
	return new(big.Int).Mod(new(big.Int).SetBytes(wide[:]), g.order)
}
