package tx

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockmonero/internal/group"
	"mockmonero/internal/keys"
	"mockmonero/internal/ledger"
	"mockmonero/internal/merkle"
	"mockmonero/internal/pedersen"
	"mockmonero/internal/rangeproof"
	"mockmonero/internal/spend"
)

var ctx = []byte("mockmonero-test")

type world struct {
	g      group.Group
	store  *ledger.MemoryStore
	owners []*keys.Keypair
	opens  []pedersen.Opening
}

func newWorld(t *testing.T, g group.Group) *world {
	t.Helper()
	w := &world{g: g, store: ledger.NewMemoryStore(g)}
	for i := 0; i < 8; i++ {
		kp, err := keys.Generate(g)
		require.NoError(t, err)
		blind, err := group.RandomScalar(g)
		require.NoError(t, err)
		o := pedersen.Opening{Value: uint64(10 * (i + 1)), Blind: blind}
		_, err = w.store.Append(kp.Public, pedersen.CommitOpening(g, o))
		require.NoError(t, err)
		w.owners = append(w.owners, kp)
		w.opens = append(w.opens, o)
	}
	return w
}

func (w *world) tree(t *testing.T) *merkle.Tree {
	t.Helper()
	leaves, err := w.store.Leaves()
	require.NoError(t, err)
	tr, err := merkle.Build(w.g, leaves)
	require.NoError(t, err)
	return tr
}

func (w *world) view(t *testing.T) View {
	return View{Root: w.tree(t).Root(), Spent: w.store, Outputs: w.store}
}

func (w *world) payees(t *testing.T, values ...uint64) []Payment {
	t.Helper()
	out := make([]Payment, len(values))
	for i, v := range values {
		kp, err := keys.Generate(w.g)
		require.NoError(t, err)
		out[i] = Payment{To: kp.Public, Value: v}
	}
	return out
}

// treeTx spends owner idx with fee 3 into 17 and the remainder.
func (w *world) treeTx(t *testing.T, idx int) *Transaction {
	t.Helper()
	C := pedersen.CommitOpening(w.g, w.opens[idx])
	in, err := NewTreeInput(w.g, w.tree(t), w.owners[idx], C, idx, ctx)
	require.NoError(t, err)
	rest := w.opens[idx].Value - 3 - 17
	outs, _, err := NewOutputs(w.g, rangeproof.Stub{}, []*big.Int{w.opens[idx].Blind}, w.payees(t, 17, rest))
	require.NoError(t, err)
	return &Transaction{Inputs: []Input{in}, Outputs: outs, Fee: 3, Context: ctx}
}

func (w *world) ringTx(t *testing.T, idx, size int) *Transaction {
	t.Helper()
	in, pseudoBlind, err := NewRingInput(w.g, w.store, uint64(idx), w.opens[idx], w.owners[idx], size, ctx)
	require.NoError(t, err)
	rest := w.opens[idx].Value - 3 - 17
	outs, _, err := NewOutputs(w.g, rangeproof.Stub{}, []*big.Int{pseudoBlind}, w.payees(t, 17, rest))
	require.NoError(t, err)
	return &Transaction{Inputs: []Input{in}, Outputs: outs, Fee: 3, Context: ctx}
}

func (w *world) commit(t *testing.T, tx *Transaction) {
	t.Helper()
	outs := make([]ledger.Output, len(tx.Outputs))
	for i, o := range tx.Outputs {
		outs[i] = ledger.Output{P: o.P, C: o.C}
	}
	_, err := w.store.Commit(tx.KeyImages(), outs)
	require.NoError(t, err)
}

func groups(t *testing.T) map[string]group.Group {
	bn, err := group.NewBN254()
	require.NoError(t, err)
	return map[string]group.Group{"zq": group.DefaultZq(), "bn254": bn}
}

func TestTreeSpendThenDoubleSpend(t *testing.T) {
	for name, g := range groups(t) {
		t.Run(name, func(t *testing.T) {
			w := newWorld(t, g)
			v := NewVerifier(g, rangeproof.Stub{}, nil)
			tx := w.treeTx(t, 3)

			res, err := v.Verify(tx, w.view(t))
			require.NoError(t, err)
			assert.True(t, res.Accepted, res.Reason)
			assert.Equal(t, StageAccepted, res.Stage)

			w.commit(t, tx)
			res, err = v.Verify(tx, w.view(t))
			require.NoError(t, err)
			assert.False(t, res.Accepted)
			assert.True(t, res.DoubleSpend())
		})
	}
}

func TestRingSpendThenDoubleSpend(t *testing.T) {
	for name, g := range groups(t) {
		t.Run(name, func(t *testing.T) {
			w := newWorld(t, g)
			v := NewVerifier(g, rangeproof.Stub{}, nil)
			tx := w.ringTx(t, 3, 5)

			res, err := v.Verify(tx, w.view(t))
			require.NoError(t, err)
			assert.True(t, res.Accepted, res.Reason)

			w.commit(t, tx)
			res, err = v.Verify(tx, w.view(t))
			require.NoError(t, err)
			assert.True(t, res.DoubleSpend())
		})
	}
}

func TestMixedInputs(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	v := NewVerifier(g, rangeproof.Stub{}, nil)

	treeIn, err := NewTreeInput(g, w.tree(t), w.owners[1], pedersen.CommitOpening(g, w.opens[1]), 1, ctx)
	require.NoError(t, err)
	ringIn, pseudoBlind, err := NewRingInput(g, w.store, 6, w.opens[6], w.owners[6], 4, ctx)
	require.NoError(t, err)

	// 20 + 70 = 85 + 5
	outs, _, err := NewOutputs(g, rangeproof.Stub{}, []*big.Int{w.opens[1].Blind, pseudoBlind}, w.payees(t, 60, 25))
	require.NoError(t, err)
	tx := &Transaction{Inputs: []Input{treeIn, ringIn}, Outputs: outs, Fee: 5, Context: ctx}

	res, err := v.Verify(tx, w.view(t))
	require.NoError(t, err)
	assert.True(t, res.Accepted, res.Reason)
}

func TestOutputValueOffByOne(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	v := NewVerifier(g, rangeproof.Stub{}, nil)
	tx := w.treeTx(t, 3)

	// same blind, value one lower
	C := tx.Outputs[0].C
	tx.Outputs[0].C = g.Sub(C, g.Generator(group.RoleValue))

	res, err := v.Verify(tx, w.view(t))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, StageBalance, res.Stage)
}

func TestFeeMismatch(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	v := NewVerifier(g, rangeproof.Stub{}, nil)
	tx := w.treeTx(t, 3)
	tx.Fee = 4

	res, err := v.Verify(tx, w.view(t))
	require.NoError(t, err)
	assert.Equal(t, StageBalance, res.Stage)
}

func TestInputGate(t *testing.T) {
	g := group.DefaultZq()

	t.Run("wrong context", func(t *testing.T) {
		w := newWorld(t, g)
		tx := w.treeTx(t, 2)
		tx.Context = []byte("other")
		res, err := NewVerifier(g, rangeproof.Stub{}, nil).Verify(tx, w.view(t))
		require.NoError(t, err)
		assert.Equal(t, StageInputs, res.Stage)
		assert.False(t, res.Accepted)
	})

	t.Run("stale root", func(t *testing.T) {
		w := newWorld(t, g)
		tx := w.treeTx(t, 2)
		_, err := w.store.Append(g.Generator(group.RoleSpend), g.Generator(group.RoleBlind))
		require.NoError(t, err)
		res, err := NewVerifier(g, rangeproof.Stub{}, nil).Verify(tx, w.view(t))
		require.NoError(t, err)
		assert.Equal(t, StageInputs, res.Stage)
		assert.Contains(t, res.Reason, "stale")
	})

	t.Run("ring member not registered", func(t *testing.T) {
		w := newWorld(t, g)
		tx := w.ringTx(t, 2, 3)
		other := newWorld(t, g)
		res, err := NewVerifier(g, rangeproof.Stub{}, nil).Verify(tx, View{Root: other.tree(t).Root(), Spent: other.store, Outputs: other.store})
		require.NoError(t, err)
		assert.Equal(t, StageInputs, res.Stage)
		assert.Contains(t, res.Reason, "not a registered output")
	})

	t.Run("swapped pseudo commitment", func(t *testing.T) {
		w := newWorld(t, g)
		tx := w.ringTx(t, 2, 3)
		in := tx.Inputs[0].(*RingInput)
		in.Pseudo = g.Add(in.Pseudo, g.Generator(group.RoleBlind))
		res, err := NewVerifier(g, rangeproof.Stub{}, nil).Verify(tx, w.view(t))
		require.NoError(t, err)
		assert.Equal(t, StageInputs, res.Stage)
		assert.Contains(t, res.Reason, "link")
	})
}

func TestOutputGate(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	tx := w.treeTx(t, 3)
	tx.Outputs[1].RangeProof = []byte("NO")

	res, err := NewVerifier(g, rangeproof.Stub{}, nil).Verify(tx, w.view(t))
	require.NoError(t, err)
	assert.Equal(t, StageOutputs, res.Stage)
}

func TestValidationErrors(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	v := NewVerifier(g, rangeproof.Stub{}, nil)

	_, err := v.Verify(&Transaction{Context: ctx}, w.view(t))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = v.Verify(nil, w.view(t))
	assert.ErrorIs(t, err, ErrMalformed)

	tx := w.treeTx(t, 3)
	tx.Inputs = append(tx.Inputs, tx.Inputs[0])
	res, err := v.Verify(tx, w.view(t))
	assert.ErrorIs(t, err, ErrDuplicateKeyImage)
	assert.Equal(t, StageReceived, res.Stage)

	tx = w.treeTx(t, 3)
	tx.Inputs[0].(*TreeInput).Membership.Directions[0] = 7
	_, err = v.Verify(tx, w.view(t))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestIdentityKeyRejected(t *testing.T) {
	for name, g := range groups(t) {
		t.Run(name, func(t *testing.T) {
			w := newWorld(t, g)
			O := g.Identity()
			C := pedersen.Commit(g, big.NewInt(50), big.NewInt(99))
			idx, err := w.store.Append(O, C)
			require.NoError(t, err)

			tree := w.tree(t)
			z, err := group.RandomScalar(g)
			require.NoError(t, err)
			forged := &spend.Proof{
				A1: g.Mul(z, g.Generator(group.RoleSpend)),
				A2: g.Mul(z, keys.HashToBase(g, O)),
				Z:  z,
			}
			m, err := merkle.ProveMembership(tree, O, C, int(idx), ctx)
			require.NoError(t, err)
			to := w.payees(t, 50)[0].To
			tx := &Transaction{
				Inputs:  []Input{&TreeInput{P: O, I: O, C: C, Root: tree.Root(), Spend: forged, Membership: m}},
				Outputs: []Output{{P: to, C: C, RangeProof: []byte("OK")}},
				Context: ctx,
			}

			v := NewVerifier(g, rangeproof.Stub{}, nil)
			res, err := v.Verify(tx, w.view(t))
			assert.ErrorIs(t, err, ErrMalformed)
			assert.False(t, res.Accepted)
			assert.Equal(t, StageReceived, res.Stage)

			// paying to the identity is refused as well
			pay := w.treeTx(t, 3)
			pay.Outputs[0].P = O
			_, err = v.Verify(pay, w.view(t))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestCountsFitLengthPrefix(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	tx := w.treeTx(t, 3)
	o := tx.Outputs[0]
	tx.Outputs = make([]Output, maxCount+1)
	for i := range tx.Outputs {
		tx.Outputs[i] = o
	}
	_, err := tx.MarshalBinary()
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = NewVerifier(g, rangeproof.Stub{}, nil).Verify(tx, w.view(t))
	assert.ErrorIs(t, err, ErrMalformed)
}

type brokenStore struct{}

var errDown = errors.New("store down")

func (brokenStore) Contains(group.Point) (bool, error) { return false, errDown }
func (brokenStore) HasOutput(group.Point, group.Point) (bool, error) { return false, errDown }

func TestViewFailure(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	tx := w.treeTx(t, 3)
	_, err := NewVerifier(g, rangeproof.Stub{}, nil).Verify(tx, View{Root: w.tree(t).Root(), Spent: brokenStore{}, Outputs: brokenStore{}})
	assert.ErrorIs(t, err, ErrView)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestVerifyDoesNotMutate(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	tx := w.treeTx(t, 3)
	v := NewVerifier(g, rangeproof.Stub{}, nil)
	for i := 0; i < 2; i++ {
		res, err := v.Verify(tx, w.view(t))
		require.NoError(t, err)
		assert.True(t, res.Accepted)
	}
	n, err := w.store.SpentCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuilderRejectsWrongOpening(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	_, _, err := NewRingInput(g, w.store, 2, w.opens[3], w.owners[2], 4, ctx)
	assert.ErrorIs(t, err, ErrOpeningMismatch)

	_, err = NewTreeInput(g, w.tree(t), w.owners[2], pedersen.CommitOpening(g, w.opens[3]), 2, ctx)
	assert.ErrorIs(t, err, merkle.ErrLeafMismatch)
}

func TestJSONRoundTrip(t *testing.T) {
	for name, g := range groups(t) {
		t.Run(name, func(t *testing.T) {
			w := newWorld(t, g)
			treeIn, err := NewTreeInput(g, w.tree(t), w.owners[0], pedersen.CommitOpening(g, w.opens[0]), 0, ctx)
			require.NoError(t, err)
			ringIn, pseudoBlind, err := NewRingInput(g, w.store, 5, w.opens[5], w.owners[5], 8, ctx)
			require.NoError(t, err)
			outs, _, err := NewOutputs(g, rangeproof.Stub{}, []*big.Int{w.opens[0].Blind, pseudoBlind}, w.payees(t, 50, 18))
			require.NoError(t, err)
			tx := &Transaction{Inputs: []Input{treeIn, ringIn}, Outputs: outs, Fee: 2, Context: ctx}

			data, err := MarshalJSON(tx)
			require.NoError(t, err)
			back, err := UnmarshalJSON(g, data)
			require.NoError(t, err)

			want, err := tx.ID()
			require.NoError(t, err)
			got, err := back.ID()
			require.NoError(t, err)
			assert.Equal(t, want, got)

			res, err := NewVerifier(g, rangeproof.Stub{}, nil).Verify(back, w.view(t))
			require.NoError(t, err)
			assert.True(t, res.Accepted, res.Reason)
		})
	}
}

func TestUnmarshalRejects(t *testing.T) {
	g := group.DefaultZq()
	for name, body := range map[string]string{
		"not json":     `{`,
		"unknown kind": `{"inputs":[{"kind":"coinbase","key_image":"0x01"}],"outputs":[],"fee":0,"context":"0x"}`,
		"no inputs":    `{"inputs":[],"outputs":[],"fee":0,"context":"0x"}`,
		"short point":  `{"inputs":[{"kind":"tree","key_image":"0x01"}],"outputs":[],"fee":0,"context":"0x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalJSON(g, []byte(body))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestIDChangesWithContent(t *testing.T) {
	g := group.DefaultZq()
	w := newWorld(t, g)
	tx := w.treeTx(t, 3)
	a, err := tx.IDHex()
	require.NoError(t, err)
	tx.Fee++
	b, err := tx.IDHex()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 66)
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, "double-spend-checked", StageDoubleSpend.String())
	assert.Equal(t, "accepted", StageAccepted.String())
	assert.Equal(t, "ring", KindRing.String())
}
