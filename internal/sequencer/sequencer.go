// Package sequencer is the single authority that applies transactions.
//
// Submit verifies a transaction against the current ledger view and, on
// acceptance, commits its key images and outputs in one store operation. The
// whole verify-then-commit step runs under one lock, so two transactions
// racing on the same key image are resolved here: the second one is verified
// against the state the first one produced.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mockmonero/internal/ledger"
	"mockmonero/internal/logging"
	"mockmonero/internal/merkle"
	"mockmonero/internal/metrics"
	"mockmonero/internal/transcript"
	"mockmonero/internal/tx"
)

// Receipt describes the outcome of one submission.
type Receipt struct {
	ID            uuid.UUID `json:"id"`
	TxID          string    `json:"tx_id,omitempty"`
	Accepted      bool      `json:"accepted"`
	Stage         string    `json:"stage"`
	Reason        string    `json:"reason,omitempty"`
	DoubleSpend   bool      `json:"double_spend,omitempty"`
	OutputIndices []uint64  `json:"output_indices,omitempty"`
	At            time.Time `json:"at"`
}

// Stats is a point-in-time summary.
type Stats struct {
	Outputs  uint64   `json:"outputs"`
	Spent    uint64   `json:"spent"`
	Root     *big.Int `json:"-"`
	Accepted uint64   `json:"accepted"`
	Rejected uint64   `json:"rejected"`
}

// Option configures a Sequencer.
type Option func(*Sequencer)

func WithLogger(l *logging.Logger) Option { return func(s *Sequencer) { s.log = l } }

func WithMetrics(m *metrics.Collector) Option { return func(s *Sequencer) { s.metrics = m } }

// Sequencer serializes verification and commit.
type Sequencer struct {
	mu       sync.Mutex
	store    ledger.Store
	verifier *tx.Verifier
	log      *logging.Logger
	metrics  *metrics.Collector

	tree     *merkle.Tree
	treeSize uint64
	accepted uint64
	rejected uint64
}

// New creates a sequencer over store. The store is not closed by the sequencer.
func New(store ledger.Store, v *tx.Verifier, opts ...Option) *Sequencer {
	s := &Sequencer{store: store, verifier: v}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

// refreshLocked rebuilds the accumulator when the registry has grown.
func (s *Sequencer) refreshLocked() error {
	n, err := s.store.Count()
	if err != nil {
		return err
	}
	if n == 0 {
		s.tree, s.treeSize = nil, 0
		return nil
	}
	if s.tree != nil && s.treeSize == n {
		return nil
	}
	leaves, err := s.store.Leaves()
	if err != nil {
		return err
	}
	t, err := merkle.Build(s.verifier.Group(), leaves)
	if err != nil {
		return err
	}
	s.tree, s.treeSize = t, n
	s.metrics.RecordTreeRebuild()
	s.log.Debug("accumulator rebuilt", zap.Uint64("leaves", n), zap.String("root", rootHex(t.Root())))
	return nil
}

func (s *Sequencer) viewLocked() (tx.View, error) {
	if err := s.refreshLocked(); err != nil {
		return tx.View{}, fmt.Errorf("refresh accumulator: %w", err)
	}
	v := tx.View{Spent: s.store, Outputs: s.store}
	if s.tree != nil {
		v.Root = s.tree.Root()
	}
	return v, nil
}

func rootHex(r *big.Int) string {
	if r == nil {
		return ""
	}
	return hexutil.Encode(transcript.Scalar(r))
}

// Submit verifies t and commits it on acceptance. A rejected transaction is a
// receipt with Accepted false and a nil error; the error is reserved for
// malformed transactions (tx.ErrMalformed, tx.ErrDuplicateKeyImage) and store
// failures.
func (s *Sequencer) Submit(ctx context.Context, t *tx.Transaction) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	rc := Receipt{ID: uuid.New(), At: time.Now().UTC()}
	if id, err := t.IDHex(); err == nil {
		rc.TxID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	view, err := s.viewLocked()
	if err != nil {
		s.metrics.RecordSubmission(metrics.ResultError)
		return rc, err
	}
	start := time.Now()
	res, err := s.verifier.Verify(t, view)
	s.metrics.ObserveVerify(time.Since(start))
	rc.Stage, rc.Reason, rc.DoubleSpend = res.Stage.String(), res.Reason, res.DoubleSpend()

	if err != nil {
		result := metrics.ResultMalformed
		if errors.Is(err, tx.ErrView) {
			result = metrics.ResultError
		}
		s.metrics.RecordSubmission(result)
		s.log.Warn("transaction not verifiable", zap.String("receipt", rc.ID.String()), zap.Error(err))
		return rc, err
	}
	if !res.Accepted {
		s.rejectLocked(rc, res)
		return rc, nil
	}

	outs := make([]ledger.Output, len(t.Outputs))
	for i, o := range t.Outputs {
		outs[i] = ledger.Output{P: o.P, C: o.C}
	}
	images := t.KeyImages()
	idx, err := s.store.Commit(images, outs)
	if errors.Is(err, ledger.ErrAlreadySpent) {
		// Another writer reached the store outside this sequencer.
		res = tx.Result{Stage: tx.StageDoubleSpend, Reason: err.Error()}
		rc.Stage, rc.Reason, rc.DoubleSpend = res.Stage.String(), res.Reason, true
		s.rejectLocked(rc, res)
		return rc, nil
	}
	if err != nil {
		s.metrics.RecordSubmission(metrics.ResultError)
		return rc, fmt.Errorf("commit: %w", err)
	}

	rc.Accepted, rc.OutputIndices = true, idx
	s.accepted++
	s.metrics.RecordSubmission(metrics.ResultAccepted)
	s.updateGaugesLocked()

	s.log.Info("transaction accepted",
		zap.String("receipt", rc.ID.String()),
		zap.String("tx", rc.TxID),
		zap.Int("inputs", len(t.Inputs)),
		zap.Int("outputs", len(t.Outputs)),
		zap.Uint64("fee", t.Fee))
	s.log.Audit("tx_accepted", zap.String("tx", rc.TxID), zap.Uint64s("output_indices", idx))
	for _, I := range images {
		s.log.Audit("key_image_spent", zap.String("tx", rc.TxID), zap.Stringer("key_image", I))
	}
	return rc, nil
}

func (s *Sequencer) rejectLocked(rc Receipt, res tx.Result) {
	s.rejected++
	result := metrics.ResultRejected
	if res.DoubleSpend() {
		result = metrics.ResultDoubleSpend
	}
	s.metrics.RecordSubmission(result)
	s.metrics.RecordRejection(res.Stage.String())
	s.log.Info("transaction rejected",
		zap.String("receipt", rc.ID.String()),
		zap.String("tx", rc.TxID),
		zap.Stringer("stage", res.Stage),
		zap.String("reason", res.Reason))
	s.log.Audit("tx_rejected", zap.String("tx", rc.TxID), zap.Stringer("stage", res.Stage), zap.String("reason", res.Reason))
}

func (s *Sequencer) updateGaugesLocked() {
	n, err := s.store.Count()
	if err != nil {
		return
	}
	spent, err := s.store.SpentCount()
	if err != nil {
		return
	}
	s.metrics.SetLedger(n, spent)
}

// Tree returns the accumulator over the current registry, nil while empty.
// Wallets use it to build tree inputs.
func (s *Sequencer) Tree() (*merkle.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return s.tree, nil
}

// Root returns the current accumulator root, nil while the registry is empty.
func (s *Sequencer) Root() (*big.Int, error) {
	t, err := s.Tree()
	if err != nil || t == nil {
		return nil, err
	}
	return t.Root(), nil
}

// Output looks up a registered output.
func (s *Sequencer) Output(index uint64) (ledger.Record, error) {
	return s.store.Get(index)
}

// Stats summarizes the ledger and submission counts.
func (s *Sequencer) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return Stats{}, err
	}
	n, err := s.store.Count()
	if err != nil {
		return Stats{}, err
	}
	spent, err := s.store.SpentCount()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Outputs: n, Spent: spent, Accepted: s.accepted, Rejected: s.rejected}
	if s.tree != nil {
		st.Root = s.tree.Root()
	}
	return st, nil
}

// RootHex formats a root for display.
func RootHex(r *big.Int) string { return rootHex(r) }
