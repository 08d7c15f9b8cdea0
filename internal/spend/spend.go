// spend.go - Discrete-log equality proof tying a public key and its key image
// to one secret.
//
// Prover:   A1 = G·r, A2 = B·r, e = Hs("DL-EQ", ctx, root, P, I, A1, A2),
//           z = r + e·sk, where B = HashToBase(P).
// Verifier: G·z == A1 + e·P and B·z == A2 + e·I.
//
// Binding root and ctx into e stops a proof from being replayed against a
// different tree or transaction.

package spend

import (
	"errors"
	"fmt"
	"math/big"

	"mockmonero/internal/group"
	"mockmonero/internal/keys"
	"mockmonero/internal/transcript"
)

const proofSize = 3 * group.PointSize

var (
	ErrMalformed = errors.New("spend: malformed proof")
	ErrNoKey     = errors.New("spend: missing keypair")
)

// Proof is the non-interactive DL-equality proof (A1, A2, z).
type Proof struct {
	A1 group.Point
	A2 group.Point
	Z  *big.Int
}

func challenge(g group.Group, ctx []byte, root *big.Int, P, I, A1, A2 group.Point) *big.Int {
	return transcript.Challenge(g,
		[]byte("DL-EQ"), ctx, transcript.Scalar(root),
		transcript.Point(P), transcript.Point(I),
		transcript.Point(A1), transcript.Point(A2))
}

// Prove produces a proof for kp bound to root and ctx.
func Prove(g group.Group, kp *keys.Keypair, root *big.Int, ctx []byte) (*Proof, error) {
	if kp == nil || kp.Secret == nil {
		return nil, ErrNoKey
	}
	if !group.InScalarRange(g, root) {
		return nil, fmt.Errorf("spend: root outside scalar range")
	}
	r, err := group.RandomScalar(g)
	if err != nil {
		return nil, err
	}
	base2 := keys.HashToBase(g, kp.Public)
	A1 := g.Mul(r, g.Generator(group.RoleSpend))
	A2 := g.Mul(r, base2)
	e := challenge(g, ctx, root, kp.Public, kp.Image, A1, A2)

	z := new(big.Int).Mul(e, kp.Secret)
	z.Add(z, r).Mod(z, g.Order())
	return &Proof{A1: A1, A2: A2, Z: z}, nil
}

// Verify checks p against (P, I, root, ctx). A structurally broken proof is an
// error; a proof that simply does not hold is (false, nil).
func Verify(g group.Group, P, I group.Point, root *big.Int, p *Proof, ctx []byte) (bool, error) {
	if p == nil || p.A1 == nil || p.A2 == nil || p.Z == nil || P == nil || I == nil {
		return false, ErrMalformed
	}
	if !group.InScalarRange(g, p.Z) || !group.InScalarRange(g, root) {
		return false, fmt.Errorf("%w: scalar out of range", ErrMalformed)
	}
	if group.IsIdentity(g, P) || group.IsIdentity(g, I) {
		return false, fmt.Errorf("%w: identity key or key image", ErrMalformed)
	}
	e := challenge(g, ctx, root, P, I, p.A1, p.A2)

	lhs1 := g.Mul(p.Z, g.Generator(group.RoleSpend))
	rhs1 := g.Add(p.A1, g.Mul(e, P))
	if !lhs1.Equal(rhs1) {
		return false, nil
	}
	lhs2 := g.Mul(p.Z, keys.HashToBase(g, P))
	rhs2 := g.Add(p.A2, g.Mul(e, I))
	return lhs2.Equal(rhs2), nil
}

// MarshalBinary encodes A1 || A2 || z.
func (p *Proof) MarshalBinary() ([]byte, error) {
	if p == nil || p.A1 == nil || p.A2 == nil || p.Z == nil {
		return nil, ErrMalformed
	}
	out := make([]byte, 0, proofSize)
	out = append(out, transcript.Point(p.A1)...)
	out = append(out, transcript.Point(p.A2)...)
	out = append(out, transcript.Scalar(p.Z)...)
	return out, nil
}

// ParseProof decodes the MarshalBinary form.
func ParseProof(g group.Group, b []byte) (*Proof, error) {
	if len(b) != proofSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformed, proofSize, len(b))
	}
	A1, err := g.Decode(b[:32])
	if err != nil {
		return nil, fmt.Errorf("%w: A1: %v", ErrMalformed, err)
	}
	A2, err := g.Decode(b[32:64])
	if err != nil {
		return nil, fmt.Errorf("%w: A2: %v", ErrMalformed, err)
	}
	z := new(big.Int).SetBytes(b[64:])
	if !group.InScalarRange(g, z) {
		return nil, fmt.Errorf("%w: z not reduced", ErrMalformed)
	}
	return &Proof{A1: A1, A2: A2, Z: z}, nil
}
