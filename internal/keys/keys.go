// keys.go - One-time keypairs and their linkable key images.

package keys

import (
	"errors"
	"math/big"

	"mockmonero/internal/group"
	"mockmonero/internal/transcript"
)

var ErrSecretRange = errors.New("keys: secret scalar outside [1, q)")

// Keypair holds a secret scalar, its public point P = G·sk and its key image
// I = HashToBase(P)·sk. The secret never leaves the owning wallet.
type Keypair struct {
	Secret *big.Int
	Public group.Point
	Image  group.Point
}

// Generate draws a fresh secret uniformly from [1, q).
func Generate(g group.Group) (*Keypair, error) {
	sk, err := group.RandomScalar(g)
	if err != nil {
		return nil, err
	}
	return FromSecret(g, sk)
}

// FromSecret rebuilds a keypair from a known secret.
func FromSecret(g group.Group, sk *big.Int) (*Keypair, error) {
	if sk == nil || sk.Sign() <= 0 || sk.Cmp(g.Order()) >= 0 {
		return nil, ErrSecretRange
	}
	P := g.Mul(sk, g.Generator(group.RoleSpend))
	return &Keypair{
		Secret: new(big.Int).Set(sk),
		Public: P,
		Image:  g.Mul(sk, HashToBase(g, P)),
	}, nil
}

// HashToBase derives the per-key second base Hs("KI", P)·U.
func HashToBase(g group.Group, P group.Point) group.Point {
	s := transcript.Challenge(g, []byte("KI"), transcript.Point(P))
	return g.Mul(s, g.Generator(group.RoleKeyImage))
}

// KeyImage recomputes HashToBase(P)·sk for kp.
func KeyImage(g group.Group, kp *Keypair) group.Point {
	return g.Mul(kp.Secret, HashToBase(g, kp.Public))
}
