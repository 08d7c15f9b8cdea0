package group

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groups(t *testing.T) []Group {
	t.Helper()
	bn, err := NewBN254()
	require.NoError(t, err)
	return []Group{DefaultZq(), bn}
}

func TestDefaultZqParams(t *testing.T) {
	p := DefaultZqParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 255, p.Modulus.BitLen())

	z := DefaultZq()
	assert.Equal(t, int64(5), z.ToScalar(z.Generator(RoleSpend)).Int64())
	assert.Equal(t, int64(7), z.ToScalar(z.Generator(RoleTreeRight)).Int64())
	assert.Equal(t, int64(17), z.ToScalar(z.Generator(RoleValue)).Int64())
}

func TestZqParamsRejectOutOfRangeGenerator(t *testing.T) {
	cases := map[string]*big.Int{
		"zero":     big.NewInt(0),
		"negative": big.NewInt(-3),
		"modulus":  DefaultZqParams().Modulus,
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultZqParams()
			p.Generators[RoleBlind] = v
			_, err := NewZq(p)
			assert.ErrorIs(t, err, ErrBadGenerator)
		})
	}

	t.Run("missing", func(t *testing.T) {
		p := DefaultZqParams()
		delete(p.Generators, RoleKeyImage)
		_, err := NewZq(p)
		assert.ErrorIs(t, err, ErrBadGenerator)
	})

	t.Run("composite modulus", func(t *testing.T) {
		p := DefaultZqParams()
		p.Modulus = big.NewInt(1 << 20)
		_, err := NewZq(p)
		assert.ErrorIs(t, err, ErrBadModulus)
	})
}

func TestGroupLaws(t *testing.T) {
	for _, g := range groups(t) {
		t.Run(g.Name(), func(t *testing.T) {
			a, err := RandomScalar(g)
			require.NoError(t, err)
			b, err := RandomScalar(g)
			require.NoError(t, err)
			G := g.Generator(RoleSpend)

			// (a+b)G == aG + bG
			sum := new(big.Int).Add(a, b)
			assert.True(t, g.Mul(sum, G).Equal(g.Add(g.Mul(a, G), g.Mul(b, G))))

			// aG - aG == identity
			assert.True(t, g.Sub(g.Mul(a, G), g.Mul(a, G)).Equal(g.Identity()))

			// scalar reduction
			wrapped := new(big.Int).Add(a, g.Order())
			assert.True(t, g.Mul(wrapped, G).Equal(g.Mul(a, G)))

			// encoding round trip
			p := g.Mul(a, G)
			b32 := p.Bytes()
			back, err := g.Decode(b32[:])
			require.NoError(t, err)
			assert.True(t, back.Equal(p))

			s := g.ToScalar(p)
			assert.True(t, InScalarRange(g, s))
		})
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	z := DefaultZq()
	_, err := z.Decode(make([]byte, 31))
	assert.ErrorIs(t, err, ErrBadEncoding)

	q := z.Order().FillBytes(make([]byte, PointSize))
	_, err = z.Decode(q)
	assert.ErrorIs(t, err, ErrBadEncoding)

	bn, err := NewBN254()
	require.NoError(t, err)
	junk := make([]byte, PointSize)
	for i := range junk {
		junk[i] = 0x3f
	}
	_, err = bn.Decode(junk)
	assert.ErrorIs(t, err, ErrBadEncoding)
}

func TestBN254GeneratorsDistinct(t *testing.T) {
	bn, err := NewBN254()
	require.NoError(t, err)
	seen := map[[PointSize]byte]Role{}
	for _, r := range Roles() {
		b := bn.Generator(r).Bytes()
		prev, dup := seen[b]
		assert.False(t, dup, "%s collides with %s", r, prev)
		seen[b] = r
	}
}

func TestMixedGroupsPanic(t *testing.T) {
	bn, err := NewBN254()
	require.NoError(t, err)
	z := DefaultZq()
	assert.Panics(t, func() { z.Add(z.Identity(), bn.Identity()) })
}

func TestByName(t *testing.T) {
	for _, name := range []string{"zq", "bn254"} {
		g, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, g.Name())
	}
	_, err := ByName("secp256k1")
	assert.Error(t, err)
}

func TestIsIdentity(t *testing.T) {
	for _, g := range groups(t) {
		assert.True(t, IsIdentity(g, g.Identity()), g.Name())
		assert.False(t, IsIdentity(g, g.Generator(RoleSpend)), g.Name())
	}
}
