// pedersen.go - Pedersen commitments C = Hc·value + Gc·blind.
//
// Commitments are additively homomorphic, which is all the transaction
// verifier needs to check that inputs cover outputs plus fee without
// learning any amount.

package pedersen

import (
	"errors"
	"math/big"

	"mockmonero/internal/group"
)

var ErrSplitCount = errors.New("pedersen: split count must be positive")

// Opening is the secret behind a commitment. Only its creator holds it.
type Opening struct {
	Value uint64
	Blind *big.Int
}

// Commit reduces value and blind modulo the group order and combines them.
func Commit(g group.Group, value, blind *big.Int) group.Point {
	return group.Combine(g, value, g.Generator(group.RoleValue), blind, g.Generator(group.RoleBlind))
}

// CommitOpening commits to an Opening.
func CommitOpening(g group.Group, o Opening) group.Point {
	return Commit(g, new(big.Int).SetUint64(o.Value), o.Blind)
}

// Fee returns fee·Hc, the commitment to a fee with zero blind.
func Fee(g group.Group, fee uint64) group.Point {
	return g.Mul(new(big.Int).SetUint64(fee), g.Generator(group.RoleValue))
}

// Balance returns ΣC_in − ΣC_out − fee·Hc. It is the identity exactly when
// the commitments balance.
func Balance(g group.Group, ins, outs []group.Point, fee uint64) group.Point {
	acc := g.Sub(group.Sum(g, ins...), group.Sum(g, outs...))
	return g.Sub(acc, Fee(g, fee))
}

// Balanced reports whether Balance is the identity.
func Balanced(g group.Group, ins, outs []group.Point, fee uint64) bool {
	return Balance(g, ins, outs, fee).Equal(g.Identity())
}

// SplitBlind draws n blinds that sum to total modulo the group order. The
// first n-1 are uniform, the last closes the sum.
func SplitBlind(g group.Group, total *big.Int, n int) ([]*big.Int, error) {
	if n <= 0 {
		return nil, ErrSplitCount
	}
	out := make([]*big.Int, n)
	rest := group.Reduce(g, total)
	for i := 0; i < n-1; i++ {
		r, err := group.RandomScalar(g)
		if err != nil {
			return nil, err
		}
		out[i] = r
		rest.Sub(rest, r)
	}
	out[n-1] = rest.Mod(rest, g.Order())
	return out, nil
}
