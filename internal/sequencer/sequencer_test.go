package sequencer

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockmonero/internal/group"
	"mockmonero/internal/keys"
	"mockmonero/internal/ledger"
	"mockmonero/internal/metrics"
	"mockmonero/internal/pedersen"
	"mockmonero/internal/rangeproof"
	"mockmonero/internal/tx"
)

var ctx = []byte("sequencer-test")

type fixture struct {
	g      group.Group
	seq    *Sequencer
	store  *ledger.MemoryStore
	m      *metrics.Collector
	owners []*keys.Keypair
	opens  []pedersen.Opening
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := group.DefaultZq()
	f := &fixture{g: g, store: ledger.NewMemoryStore(g), m: metrics.New()}
	for i := 0; i < 8; i++ {
		kp, err := keys.Generate(g)
		require.NoError(t, err)
		b, err := group.RandomScalar(g)
		require.NoError(t, err)
		o := pedersen.Opening{Value: uint64(10 * (i + 1)), Blind: b}
		_, err = f.store.Append(kp.Public, pedersen.CommitOpening(g, o))
		require.NoError(t, err)
		f.owners = append(f.owners, kp)
		f.opens = append(f.opens, o)
	}
	f.seq = New(f.store, tx.NewVerifier(g, rangeproof.Stub{}, nil), WithMetrics(f.m))
	return f
}

func (f *fixture) spend(t *testing.T, idx int) *tx.Transaction {
	t.Helper()
	tree, err := f.seq.Tree()
	require.NoError(t, err)
	in, err := tx.NewTreeInput(f.g, tree, f.owners[idx], pedersen.CommitOpening(f.g, f.opens[idx]), idx, ctx)
	require.NoError(t, err)
	to, err := keys.Generate(f.g)
	require.NoError(t, err)
	outs, _, err := tx.NewOutputs(f.g, rangeproof.Stub{}, []*big.Int{f.opens[idx].Blind},
		[]tx.Payment{{To: to.Public, Value: 17}, {To: f.owners[idx].Public, Value: f.opens[idx].Value - 20}})
	require.NoError(t, err)
	return &tx.Transaction{Inputs: []tx.Input{in}, Outputs: outs, Fee: 3, Context: ctx}
}

func TestSubmitAcceptThenBlock(t *testing.T) {
	f := newFixture(t)
	t1 := f.spend(t, 3)

	rc, err := f.seq.Submit(context.Background(), t1)
	require.NoError(t, err)
	assert.True(t, rc.Accepted, rc.Reason)
	assert.Equal(t, []uint64{8, 9}, rc.OutputIndices)
	assert.Len(t, rc.TxID, 66)

	rc, err = f.seq.Submit(context.Background(), t1)
	require.NoError(t, err)
	assert.False(t, rc.Accepted)
	assert.True(t, rc.DoubleSpend)
	assert.Equal(t, "double-spend-checked", rc.Stage)

	st, err := f.seq.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), st.Outputs)
	assert.Equal(t, uint64(1), st.Spent)
	assert.Equal(t, uint64(1), st.Accepted)
	assert.Equal(t, uint64(1), st.Rejected)

	n, err := testutil.GatherAndCount(f.m.Registry(), "ct_sequencer_rejected_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRootAdvancesAfterCommit(t *testing.T) {
	f := newFixture(t)
	before, err := f.seq.Root()
	require.NoError(t, err)
	require.NotNil(t, before)

	_, err = f.seq.Submit(context.Background(), f.spend(t, 1))
	require.NoError(t, err)
	after, err := f.seq.Root()
	require.NoError(t, err)
	assert.NotEqual(t, 0, before.Cmp(after))

	// a proof against the old root is now stale
	old := f.spend(t, 2)
	old.Inputs[0].(*tx.TreeInput).Root = before
	rc, err := f.seq.Submit(context.Background(), old)
	require.NoError(t, err)
	assert.Equal(t, "inputs-checked", rc.Stage)
}

func TestConcurrentDoubleSpend(t *testing.T) {
	f := newFixture(t)
	// two different transactions spending the same output
	a, b := f.spend(t, 5), f.spend(t, 5)

	var wg sync.WaitGroup
	results := make([]Receipt, 2)
	for i, tr := range []*tx.Transaction{a, b} {
		wg.Add(1)
		go func(i int, tr *tx.Transaction) {
			defer wg.Done()
			rc, err := f.seq.Submit(context.Background(), tr)
			assert.NoError(t, err)
			results[i] = rc
		}(i, tr)
	}
	wg.Wait()

	accepted := 0
	for _, rc := range results {
		if rc.Accepted {
			accepted++
		} else {
			assert.True(t, rc.DoubleSpend)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestSubmitMalformed(t *testing.T) {
	f := newFixture(t)
	_, err := f.seq.Submit(context.Background(), &tx.Transaction{})
	assert.ErrorIs(t, err, tx.ErrMalformed)
}

func TestSubmitCancelled(t *testing.T) {
	f := newFixture(t)
	c, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.seq.Submit(c, f.spend(t, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmitBadgerStore(t *testing.T) {
	g := group.DefaultZq()
	store, err := ledger.OpenBadger(g, ledger.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	kp, err := keys.Generate(g)
	require.NoError(t, err)
	b, err := group.RandomScalar(g)
	require.NoError(t, err)
	o := pedersen.Opening{Value: 40, Blind: b}
	_, err = store.Append(kp.Public, pedersen.CommitOpening(g, o))
	require.NoError(t, err)

	seq := New(store, tx.NewVerifier(g, rangeproof.Stub{}, nil))
	tree, err := seq.Tree()
	require.NoError(t, err)
	in, err := tx.NewTreeInput(g, tree, kp, pedersen.CommitOpening(g, o), 0, ctx)
	require.NoError(t, err)
	outs, _, err := tx.NewOutputs(g, rangeproof.Stub{}, []*big.Int{b}, []tx.Payment{{To: kp.Public, Value: 39}})
	require.NoError(t, err)
	t1 := &tx.Transaction{Inputs: []tx.Input{in}, Outputs: outs, Fee: 1, Context: ctx}

	rc, err := seq.Submit(context.Background(), t1)
	require.NoError(t, err)
	require.True(t, rc.Accepted, rc.Reason)

	ok, err := store.Contains(kp.Image)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err = seq.Submit(context.Background(), t1)
	require.NoError(t, err)
	assert.True(t, rc.DoubleSpend)
}

func TestEmptyRegistry(t *testing.T) {
	g := group.DefaultZq()
	seq := New(ledger.NewMemoryStore(g), tx.NewVerifier(g, rangeproof.Stub{}, nil))
	root, err := seq.Root()
	require.NoError(t, err)
	assert.Nil(t, root)
	assert.Equal(t, "", RootHex(root))
}
