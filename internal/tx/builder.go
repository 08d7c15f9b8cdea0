// builder.go - Wallet-side construction of inputs and outputs.

package tx

import (
	"errors"
	"fmt"
	"math/big"

	"mockmonero/internal/group"
	"mockmonero/internal/keys"
	"mockmonero/internal/ledger"
	"mockmonero/internal/merkle"
	"mockmonero/internal/pedersen"
	"mockmonero/internal/rangeproof"
	"mockmonero/internal/ring"
	"mockmonero/internal/spend"
)

var ErrOpeningMismatch = errors.New("tx: opening or key does not match the registered output")

// NewTreeInput proves that kp owns the output (kp.Public, C) at index of t.
func NewTreeInput(g group.Group, t *merkle.Tree, kp *keys.Keypair, C group.Point, index int, ctx []byte) (*TreeInput, error) {
	root := t.Root()
	sp, err := spend.Prove(g, kp, root, ctx)
	if err != nil {
		return nil, fmt.Errorf("spend proof: %w", err)
	}
	mp, err := merkle.ProveMembership(t, kp.Public, C, index, ctx)
	if err != nil {
		return nil, fmt.Errorf("membership proof: %w", err)
	}
	return &TreeInput{
		P:          kp.Public,
		I:          kp.Image,
		C:          C,
		Root:       root,
		Spend:      sp,
		Membership: mp,
	}, nil
}

// Source is the read side of the registry that ring construction needs.
type Source interface {
	Get(index uint64) (ledger.Record, error)
	Count() (uint64, error)
}

// NewRingInput hides the output at index among ringSize registered outputs.
// It returns the input and the blind of its pseudo-commitment, which the
// caller must account for when choosing output blinds.
func NewRingInput(g group.Group, src Source, index uint64, opening pedersen.Opening, kp *keys.Keypair, ringSize int, ctx []byte) (*RingInput, *big.Int, error) {
	n, err := src.Count()
	if err != nil {
		return nil, nil, err
	}
	idxs, pos, err := ring.SelectIndices(int(n), int(index), ringSize)
	if err != nil {
		return nil, nil, err
	}
	ringP := make([]group.Point, len(idxs))
	ringC := make([]group.Point, len(idxs))
	for k, i := range idxs {
		rec, err := src.Get(uint64(i))
		if err != nil {
			return nil, nil, fmt.Errorf("ring member %d: %w", i, err)
		}
		ringP[k], ringC[k] = rec.P, rec.C
	}
	if !ringP[pos].Equal(kp.Public) || !ringC[pos].Equal(pedersen.CommitOpening(g, opening)) {
		return nil, nil, ErrOpeningMismatch
	}

	pseudoBlind, err := group.RandomScalar(g)
	if err != nil {
		return nil, nil, err
	}
	pseudo := pedersen.Commit(g, new(big.Int).SetUint64(opening.Value), pseudoBlind)
	// ringC[pos] - pseudo = Gc·(b - b')
	diff := group.Reduce(g, new(big.Int).Sub(opening.Blind, pseudoBlind))

	sig, err := ring.Sign(g, ringP, ringC, pos, kp, ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("ring signature: %w", err)
	}
	link, err := ring.ProveLink(g, ringP, ringC, kp.Image, pseudo, pos, diff, ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("link proof: %w", err)
	}
	return &RingInput{
		RingP:  ringP,
		RingC:  ringC,
		I:      kp.Image,
		Sig:    sig,
		Pseudo: pseudo,
		Link:   link,
	}, pseudoBlind, nil
}

// NewOutput commits to value under blind for owner P and attaches a range
// proof from prover.
func NewOutput(g group.Group, prover rangeproof.Prover, P group.Point, value uint64, blind *big.Int) (Output, error) {
	C := pedersen.Commit(g, new(big.Int).SetUint64(value), blind)
	proof, err := prover.ProveRange(value, blind, C)
	if err != nil {
		return Output{}, fmt.Errorf("range proof: %w", err)
	}
	return Output{P: P, C: C, RangeProof: proof}, nil
}

// Payment is one requested output.
type Payment struct {
	To    group.Point
	Value uint64
}

// NewOutputs splits the total input blind across payments so the balance
// check closes, and builds one output per payment.
func NewOutputs(g group.Group, prover rangeproof.Prover, inBlinds []*big.Int, payments []Payment) ([]Output, []pedersen.Opening, error) {
	total := new(big.Int)
	for _, b := range inBlinds {
		total.Add(total, b)
	}
	blinds, err := pedersen.SplitBlind(g, total, len(payments))
	if err != nil {
		return nil, nil, err
	}
	outs := make([]Output, len(payments))
	opens := make([]pedersen.Opening, len(payments))
	for i, p := range payments {
		outs[i], err = NewOutput(g, prover, p.To, p.Value, blinds[i])
		if err != nil {
			return nil, nil, fmt.Errorf("output %d: %w", i, err)
		}
		opens[i] = pedersen.Opening{Value: p.Value, Blind: blinds[i]}
	}
	return outs, opens, nil
}
