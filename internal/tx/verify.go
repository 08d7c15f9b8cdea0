// verify.go - Transaction verifier.
//
// Gates run in order and the first failure stops the walk:
//
//	received -> double-spend-checked -> inputs-checked -> outputs-checked
//	         -> balance-checked -> accepted
//
// The verifier never mutates the view. Committing key images and outputs is
// the caller's job, and it must re-verify against the post-commit state
// before accepting anything that could conflict.

package tx

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"mockmonero/internal/group"
	"mockmonero/internal/merkle"
	"mockmonero/internal/pedersen"
	"mockmonero/internal/rangeproof"
	"mockmonero/internal/ring"
	"mockmonero/internal/spend"
)

// Stage is a position in the verification walk.
type Stage uint8

const (
	StageReceived Stage = iota
	StageDoubleSpend
	StageInputs
	StageOutputs
	StageBalance
	StageAccepted
)

var stageNames = [...]string{
	StageReceived:    "received",
	StageDoubleSpend: "double-spend-checked",
	StageInputs:      "inputs-checked",
	StageOutputs:     "outputs-checked",
	StageBalance:     "balance-checked",
	StageAccepted:    "accepted",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Result reports how far a transaction got. On rejection Stage is the gate
// that failed.
type Result struct {
	Stage    Stage
	Accepted bool
	Reason   string
}

// DoubleSpend reports whether the transaction was stopped by a spent key image.
func (r Result) DoubleSpend() bool { return !r.Accepted && r.Stage == StageDoubleSpend }

func accepted() Result { return Result{Stage: StageAccepted, Accepted: true} }

func reject(s Stage, format string, args ...interface{}) Result {
	return Result{Stage: s, Reason: fmt.Sprintf(format, args...)}
}

// SpentChecker answers key-image membership.
type SpentChecker interface {
	Contains(image group.Point) (bool, error)
}

// OutputChecker answers whether (P, C) is a registered output.
type OutputChecker interface {
	HasOutput(P, C group.Point) (bool, error)
}

// View is the ledger snapshot a transaction is verified against. Root is nil
// while the registry is empty.
type View struct {
	Root    *big.Int
	Spent   SpentChecker
	Outputs OutputChecker
}

// Verifier checks transactions for one group and range-proof backend.
type Verifier struct {
	g   group.Group
	rp  rangeproof.Verifier
	log *zap.Logger
}

// NewVerifier builds a verifier. log may be nil.
func NewVerifier(g group.Group, rp rangeproof.Verifier, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{g: g, rp: rp, log: log}
}

// Group returns the verifier's group.
func (v *Verifier) Group() group.Group { return v.g }

// Verify runs every gate. The error is non-nil only for validation failures
// (wrapping ErrMalformed or ErrDuplicateKeyImage) and store failures (wrapping
// ErrView). A well-formed but invalid transaction is (Result{Accepted: false}, nil).
func (v *Verifier) Verify(t *Transaction, view View) (Result, error) {
	if err := t.validate(); err != nil {
		return reject(StageReceived, "%v", err), err
	}
	if err := t.checkKeys(v.g); err != nil {
		return reject(StageReceived, "%v", err), err
	}
	if view.Spent == nil || view.Outputs == nil {
		return Result{Stage: StageReceived}, fmt.Errorf("%w: missing ledger", ErrView)
	}

	// Gate 1: double-spend
	for i, in := range t.Inputs {
		spent, err := view.Spent.Contains(in.KeyImage())
		if err != nil {
			return Result{Stage: StageDoubleSpend}, fmt.Errorf("%w: spent-tag lookup: %v", ErrView, err)
		}
		if spent {
			return v.rejected(reject(StageDoubleSpend, "input %d: key image already spent", i)), nil
		}
	}

	// Gate 2: spend authorization and membership per input
	for i, in := range t.Inputs {
		ok, reason, err := in.verify(v, view, t.Context)
		if err != nil {
			return reject(StageInputs, "input %d: %v", i, err), fmt.Errorf("input %d: %w", i, err)
		}
		if !ok {
			return v.rejected(reject(StageInputs, "input %d (%s): %s", i, in.Kind(), reason)), nil
		}
	}

	// Gate 3: range proofs
	for i, o := range t.Outputs {
		ok, err := v.rp.VerifyRange(o.C, o.RangeProof)
		if err != nil {
			err = fmt.Errorf("%w: output %d range proof: %v", ErrMalformed, i, err)
			return reject(StageOutputs, "%v", err), err
		}
		if !ok {
			return v.rejected(reject(StageOutputs, "output %d: range proof rejected", i)), nil
		}
	}

	// Gate 4: Σ C_in - Σ C_out - fee·Hc == 0
	ins := make([]group.Point, len(t.Inputs))
	for i, in := range t.Inputs {
		ins[i] = in.BalanceCommitment()
	}
	outs := make([]group.Point, len(t.Outputs))
	for i, o := range t.Outputs {
		outs[i] = o.C
	}
	if !pedersen.Balanced(v.g, ins, outs, t.Fee) {
		return v.rejected(reject(StageBalance, "commitments do not balance")), nil
	}
	return accepted(), nil
}

func (v *Verifier) rejected(r Result) Result {
	v.log.Debug("transaction rejected", zap.Stringer("stage", r.Stage), zap.String("reason", r.Reason))
	return r
}

func (in *TreeInput) verify(v *Verifier, view View, ctx []byte) (bool, string, error) {
	if view.Root == nil {
		return false, "no accumulator root", nil
	}
	if in.Root.Cmp(view.Root) != 0 {
		return false, "stale accumulator root", nil
	}
	ok, err := spend.Verify(v.g, in.P, in.I, in.Root, in.Spend, ctx)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !ok {
		return false, "spend proof rejected", nil
	}
	ok, err = merkle.VerifyMembership(v.g, in.Root, in.P, in.C, in.Membership, ctx)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !ok {
		return false, "membership proof rejected", nil
	}
	return true, "", nil
}

func (in *RingInput) verify(v *Verifier, view View, ctx []byte) (bool, string, error) {
	for k := range in.RingP {
		ok, err := view.Outputs.HasOutput(in.RingP[k], in.RingC[k])
		if err != nil {
			return false, "", fmt.Errorf("%w: output lookup: %v", ErrView, err)
		}
		if !ok {
			return false, fmt.Sprintf("ring member %d is not a registered output", k), nil
		}
	}
	ok, err := ring.Verify(v.g, in.RingP, in.RingC, in.I, in.Sig, ctx)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !ok {
		return false, "ring signature rejected", nil
	}
	ok, err = ring.VerifyLink(v.g, in.RingP, in.RingC, in.I, in.Pseudo, in.Link, ctx)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !ok {
		return false, "link proof rejected", nil
	}
	return true, "", nil
}
