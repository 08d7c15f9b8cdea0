// group.go - Prime-order group abstraction used by every commitment and proof.
//
// The rest of the core only talks to Group and Point. Two realizations exist:
// Zq, the toy additive group of integers modulo a prime (testing only, no
// discrete-log hardness), and BN254, the G1 subgroup of the BN254 curve.

package group

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// PointSize is the fixed wire width of an encoded point or scalar.
const PointSize = 32

// Role names a generator by the job it does.
type Role int

const (
	RoleSpend     Role = iota // G: public keys, spend and ring proofs
	RoleTreeLeft              // g: left input of the tree node function
	RoleTreeRight             // h: right input of the tree node function
	RoleKeyImage              // U: base of the per-key hash-to-base
	RoleBlind                 // Gc: commitment blinding base
	RoleValue                 // Hc: commitment value base
	numRoles
)

// Roles lists every generator role in declaration order.
func Roles() []Role {
	return []Role{RoleSpend, RoleTreeLeft, RoleTreeRight, RoleKeyImage, RoleBlind, RoleValue}
}

func (r Role) String() string {
	switch r {
	case RoleSpend:
		return "spend"
	case RoleTreeLeft:
		return "tree-left"
	case RoleTreeRight:
		return "tree-right"
	case RoleKeyImage:
		return "key-image"
	case RoleBlind:
		return "blind"
	case RoleValue:
		return "value"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

var (
	ErrBadEncoding  = errors.New("group: invalid point encoding")
	ErrBadGenerator = errors.New("group: generator out of range")
	ErrBadModulus   = errors.New("group: invalid modulus")
)

// Point is an element of a Group. Points are immutable values.
type Point interface {
	Bytes() [PointSize]byte
	Equal(Point) bool
	String() string
}

// Group is an abstract prime-order cyclic group with named generators.
// Mul reduces its scalar modulo Order before combining.
type Group interface {
	Name() string
	Order() *big.Int
	Generator(Role) Point
	Identity() Point
	Mul(k *big.Int, p Point) Point
	Add(a, b Point) Point
	Sub(a, b Point) Point
	Decode(b []byte) (Point, error)
	// ToScalar maps a point to a scalar in [0, Order).
	ToScalar(p Point) *big.Int
}

// RandomScalar draws a scalar uniformly from [1, Order) using crypto/rand.
func RandomScalar(g Group) (*big.Int, error) {
	upper := new(big.Int).Sub(g.Order(), big.NewInt(1))
	k, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return nil, fmt.Errorf("group: drawing scalar: %w", err)
	}
	return k.Add(k, big.NewInt(1)), nil
}

// InScalarRange reports whether 0 <= k < Order.
func InScalarRange(g Group, k *big.Int) bool {
	return k != nil && k.Sign() >= 0 && k.Cmp(g.Order()) < 0
}

// Reduce returns k mod Order as a new value.
func Reduce(g Group, k *big.Int) *big.Int {
	return new(big.Int).Mod(k, g.Order())
}

// Sum adds any number of points, returning the identity for none.
func Sum(g Group, pts ...Point) Point {
	acc := g.Identity()
	for _, p := range pts {
		acc = g.Add(acc, p)
	}
	return acc
}

// Combine returns a·P + b·Q.
func Combine(g Group, a *big.Int, p Point, b *big.Int, q Point) Point {
	return g.Add(g.Mul(a, p), g.Mul(b, q))
}

// IsIdentity reports whether p is the group identity. No key in [1, q) maps
// to it, so it never appears as a public key or key image.
func IsIdentity(g Group, p Point) bool {
	return p.Equal(g.Identity())
}

// ByName returns the group registered under name ("zq" or "bn254").
func ByName(name string) (Group, error) {
	switch name {
	case "zq":
		return DefaultZq(), nil
	case "bn254":
		return NewBN254()
	}
	return nil, fmt.Errorf("group: unknown group %q", name)
}

func mismatch(g Group, p Point) string {
	return fmt.Sprintf("group %s: foreign point type %T", g.Name(), p)
}
