package ring

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockmonero/internal/group"
	"mockmonero/internal/keys"
	"mockmonero/internal/pedersen"
)

type fixture struct {
	g      group.Group
	owners []*keys.Keypair
	blinds []*big.Int
	values []int64
	ringP  []group.Point
	ringC  []group.Point
}

func newFixture(t *testing.T, g group.Group, n int) *fixture {
	t.Helper()
	f := &fixture{g: g}
	for i := 0; i < n; i++ {
		kp, err := keys.Generate(g)
		require.NoError(t, err)
		b, err := group.RandomScalar(g)
		require.NoError(t, err)
		v := int64(10 * (i + 1))
		f.owners = append(f.owners, kp)
		f.blinds = append(f.blinds, b)
		f.values = append(f.values, v)
		f.ringP = append(f.ringP, kp.Public)
		f.ringC = append(f.ringC, pedersen.Commit(g, big.NewInt(v), b))
	}
	return f
}

func TestSignVerify(t *testing.T) {
	bn, err := group.NewBN254()
	require.NoError(t, err)
	for _, g := range []group.Group{group.DefaultZq(), bn} {
		t.Run(g.Name(), func(t *testing.T) {
			for _, n := range []int{1, 2, 5, 8} {
				f := newFixture(t, g, n)
				for signer := 0; signer < n; signer++ {
					kp := f.owners[signer]
					sig, err := Sign(g, f.ringP, f.ringC, signer, kp, []byte("MONERO-RINGCT-TOY"))
					require.NoError(t, err)
					ok, err := Verify(g, f.ringP, f.ringC, kp.Image, sig, []byte("MONERO-RINGCT-TOY"))
					require.NoError(t, err)
					assert.True(t, ok, "n=%d signer=%d", n, signer)
				}
			}
		})
	}
}

func TestVerifyRejectsIdentityMember(t *testing.T) {
	bn, err := group.NewBN254()
	require.NoError(t, err)
	for _, g := range []group.Group{group.DefaultZq(), bn} {
		t.Run(g.Name(), func(t *testing.T) {
			O := g.Identity()
			ringP := []group.Point{O}
			ringC := []group.Point{pedersen.Commit(g, big.NewInt(50), big.NewInt(99))}
			ctx := []byte("MONERO-RINGCT-TOY")

			// a one-member ring of the identity closes for any response
			s, err := group.RandomScalar(g)
			require.NoError(t, err)
			c0 := newTranscript(g, ctx, ringP, ringC, O).step(0, s, big.NewInt(1), O)
			sig := &Signature{C0: c0, S: []*big.Int{s}}

			ok, err := Verify(g, ringP, ringC, O, sig, ctx)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.False(t, ok)

			f := newFixture(t, g, 3)
			honest, err := Sign(g, f.ringP, f.ringC, 1, f.owners[1], ctx)
			require.NoError(t, err)
			_, err = Verify(g, f.ringP, f.ringC, O, honest, ctx)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	g := group.DefaultZq()
	f := newFixture(t, g, 5)
	ctx := []byte("ctx")
	kp := f.owners[2]
	sig, err := Sign(g, f.ringP, f.ringC, 2, kp, ctx)
	require.NoError(t, err)

	ok, err := Verify(g, f.ringP, f.ringC, kp.Image, sig, []byte("other"))
	require.NoError(t, err)
	assert.False(t, ok, "context")

	ok, err = Verify(g, f.ringP, f.ringC, f.owners[0].Image, sig, ctx)
	require.NoError(t, err)
	assert.False(t, ok, "key image")

	for i := range f.ringC {
		altered := append([]group.Point(nil), f.ringC...)
		altered[i] = g.Add(altered[i], g.Generator(group.RoleBlind))
		ok, err := Verify(g, f.ringP, altered, kp.Image, sig, ctx)
		require.NoError(t, err)
		assert.False(t, ok, "commitment %d", i)
	}

	bumped := &Signature{C0: sig.C0, S: append([]*big.Int(nil), sig.S...)}
	bumped.S[4] = new(big.Int).Add(bumped.S[4], big.NewInt(1))
	ok, err = Verify(g, f.ringP, f.ringC, kp.Image, bumped, ctx)
	require.NoError(t, err)
	assert.False(t, ok, "response")
}

func TestSignValidation(t *testing.T) {
	g := group.DefaultZq()
	f := newFixture(t, g, 3)

	_, err := Sign(g, f.ringP, f.ringC[:2], 0, f.owners[0], nil)
	assert.ErrorIs(t, err, ErrRingSize)
	_, err = Sign(g, nil, nil, 0, f.owners[0], nil)
	assert.ErrorIs(t, err, ErrRingSize)
	_, err = Sign(g, f.ringP, f.ringC, 3, f.owners[0], nil)
	assert.ErrorIs(t, err, ErrRealIndex)
	_, err = Sign(g, f.ringP, f.ringC, 1, f.owners[0], nil)
	assert.ErrorIs(t, err, ErrKeyNotInRing)

	sig, err := Sign(g, f.ringP, f.ringC, 0, f.owners[0], nil)
	require.NoError(t, err)
	_, err = Verify(g, f.ringP, f.ringC, f.owners[0].Image, &Signature{C0: sig.C0, S: sig.S[:2]}, nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSignatureBinary(t *testing.T) {
	g := group.DefaultZq()
	f := newFixture(t, g, 4)
	sig, err := Sign(g, f.ringP, f.ringC, 1, f.owners[1], nil)
	require.NoError(t, err)
	b, err := sig.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, 34+4*32)

	back, err := ParseSignature(g, b)
	require.NoError(t, err)
	ok, err := Verify(g, f.ringP, f.ringC, f.owners[1].Image, back, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ParseSignature(g, b[:len(b)-3])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLinkProof(t *testing.T) {
	g := group.DefaultZq()
	ctx := []byte("MONERO-RINGCT-TOY")
	f := newFixture(t, g, 6)
	signer := 4
	kp := f.owners[signer]

	rPseudo, err := group.RandomScalar(g)
	require.NoError(t, err)
	pseudo := pedersen.Commit(g, big.NewInt(f.values[signer]), rPseudo)
	diff := new(big.Int).Sub(f.blinds[signer], rPseudo)

	p, err := ProveLink(g, f.ringP, f.ringC, kp.Image, pseudo, signer, diff, ctx)
	require.NoError(t, err)
	ok, err := VerifyLink(g, f.ringP, f.ringC, kp.Image, pseudo, p, ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	blob, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, blob, 74)
	back, err := ParseLinkProof(g, blob)
	require.NoError(t, err)
	assert.Equal(t, signer, back.Index)
	ok, err = VerifyLink(g, f.ringP, f.ringC, kp.Image, pseudo, back, ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("wrong context", func(t *testing.T) {
		ok, err := VerifyLink(g, f.ringP, f.ringC, kp.Image, pseudo, p, []byte("x"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("wrong key image", func(t *testing.T) {
		ok, err := VerifyLink(g, f.ringP, f.ringC, f.owners[0].Image, pseudo, p, ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("index out of ring", func(t *testing.T) {
		bad := *p
		bad.Index = 99
		ok, err := VerifyLink(g, f.ringP, f.ringC, kp.Image, pseudo, &bad, ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("pseudo for another amount", func(t *testing.T) {
		other := pedersen.Commit(g, big.NewInt(f.values[signer]+1), rPseudo)
		_, err := ProveLink(g, f.ringP, f.ringC, kp.Image, other, signer, diff, ctx)
		assert.ErrorIs(t, err, ErrLinkMismatch)
	})
	t.Run("bad tag", func(t *testing.T) {
		_, err := ParseLinkProof(g, append([]byte("LINKv2|"), blob[7:]...))
		assert.ErrorIs(t, err, ErrLinkTag)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := ParseLinkProof(g, blob[:60])
		assert.ErrorIs(t, err, ErrLinkLength)
	})
}

func TestSelectIndices(t *testing.T) {
	idxs, pos, err := SelectIndices(8, 3, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 0, 1, 2, 3, 4, 5, 6}, idxs)
	assert.Equal(t, 4, pos)

	idxs, pos, err = SelectIndices(10, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 9, 0, 1}, idxs)
	assert.Equal(t, 2, pos)

	idxs, pos, err = SelectIndices(3, 2, 50)
	require.NoError(t, err)
	assert.Len(t, idxs, 3)
	assert.Equal(t, 2, idxs[pos])

	idxs, pos, err = SelectIndices(5, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, idxs)
	assert.Equal(t, 0, pos)

	_, _, err = SelectIndices(0, 0, 1)
	assert.ErrorIs(t, err, ErrRingSize)
	_, _, err = SelectIndices(4, 4, 2)
	assert.ErrorIs(t, err, ErrRealIndex)
}
