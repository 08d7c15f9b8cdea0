// lsag.go - Linkable spontaneous anonymous group signature over an explicit ring.
//
// For ring members (P_i, C_i), key image I and base B_i = HashToBase(P_i):
//
//	L_i = G·s_i + c_i·P_i
//	R_i = B_i·s_i + c_i·I
//	c_{i+1} = Hs("LSAG", ctx, I, P_0..P_{n-1}, C_0..C_{n-1}, L_i, R_i)
//
// The signer starts at its own position with a random nonce and closes the
// cycle there with s_j = alpha - c_j·sk. The verifier walks every position the
// same way, so the signer's index is not revealed.

package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"mockmonero/internal/group"
	"mockmonero/internal/keys"
	"mockmonero/internal/transcript"
)

const maxRing = 1<<16 - 1

var (
	ErrRingSize     = errors.New("ring: ring sizes inconsistent or out of bounds")
	ErrRealIndex    = errors.New("ring: signer index outside ring")
	ErrKeyNotInRing = errors.New("ring: signer key not at signer index")
	ErrMalformed    = errors.New("ring: malformed signature")
)

// Signature is (c0, s_0..s_{n-1}).
type Signature struct {
	C0 *big.Int
	S  []*big.Int
}

type transcriptRing struct {
	g      group.Group
	ctx    []byte
	image  []byte
	prefix []byte
	bases  []group.Point
	ringP  []group.Point
}

func newTranscript(g group.Group, ctx []byte, ringP, ringC []group.Point, I group.Point) *transcriptRing {
	bases := make([]group.Point, len(ringP))
	for i, P := range ringP {
		bases[i] = keys.HashToBase(g, P)
	}
	prefix := append(transcript.Points(ringP), transcript.Points(ringC)...)
	return &transcriptRing{
		g:      g,
		ctx:    ctx,
		image:  transcript.Point(I),
		prefix: prefix,
		bases:  bases,
		ringP:  ringP,
	}
}

func (t *transcriptRing) challenge(L, R group.Point) *big.Int {
	return transcript.Challenge(t.g, []byte("LSAG"), t.ctx, t.image, t.prefix,
		transcript.Point(L), transcript.Point(R))
}

// step computes (L_i, R_i) for position i and returns the next challenge.
func (t *transcriptRing) step(i int, s, c *big.Int, I group.Point) *big.Int {
	g := t.g
	L := group.Combine(g, s, g.Generator(group.RoleSpend), c, t.ringP[i])
	R := group.Combine(g, s, t.bases[i], c, I)
	return t.challenge(L, R)
}

func checkRing(ringP, ringC []group.Point) error {
	n := len(ringP)
	if n == 0 || n > maxRing || len(ringC) != n {
		return fmt.Errorf("%w: %d keys, %d commitments", ErrRingSize, len(ringP), len(ringC))
	}
	for i := 0; i < n; i++ {
		if ringP[i] == nil || ringC[i] == nil {
			return fmt.Errorf("%w: nil member %d", ErrRingSize, i)
		}
	}
	return nil
}

// Sign produces a ring signature by kp, whose public key must sit at signer.
func Sign(g group.Group, ringP, ringC []group.Point, signer int, kp *keys.Keypair, ctx []byte) (*Signature, error) {
	if err := checkRing(ringP, ringC); err != nil {
		return nil, err
	}
	n := len(ringP)
	if signer < 0 || signer >= n {
		return nil, ErrRealIndex
	}
	if kp == nil || !ringP[signer].Equal(kp.Public) {
		return nil, ErrKeyNotInRing
	}
	tr := newTranscript(g, ctx, ringP, ringC, kp.Image)

	alpha, err := group.RandomScalar(g)
	if err != nil {
		return nil, err
	}
	s := make([]*big.Int, n)
	c := make([]*big.Int, n)

	L := g.Mul(alpha, g.Generator(group.RoleSpend))
	R := g.Mul(alpha, tr.bases[signer])
	c[(signer+1)%n] = tr.challenge(L, R)

	for i := (signer + 1) % n; i != signer; i = (i + 1) % n {
		si, err := group.RandomScalar(g)
		if err != nil {
			return nil, err
		}
		s[i] = si
		c[(i+1)%n] = tr.step(i, si, c[i], kp.Image)
	}

	sr := new(big.Int).Mul(c[signer], kp.Secret)
	sr.Sub(alpha, sr).Mod(sr, g.Order())
	s[signer] = sr
	return &Signature{C0: c[0], S: s}, nil
}

// Verify walks the ring from c0 and accepts iff the chain closes on c0.
func Verify(g group.Group, ringP, ringC []group.Point, I group.Point, sig *Signature, ctx []byte) (bool, error) {
	if err := checkRing(ringP, ringC); err != nil {
		return false, err
	}
	if sig == nil || sig.C0 == nil || len(sig.S) != len(ringP) || I == nil {
		return false, ErrMalformed
	}
	if !group.InScalarRange(g, sig.C0) {
		return false, fmt.Errorf("%w: c0 not reduced", ErrMalformed)
	}
	if group.IsIdentity(g, I) {
		return false, fmt.Errorf("%w: identity key image", ErrMalformed)
	}
	for i, P := range ringP {
		if group.IsIdentity(g, P) {
			return false, fmt.Errorf("%w: member %d is the identity", ErrMalformed, i)
		}
	}
	for i, s := range sig.S {
		if s == nil || !group.InScalarRange(g, s) {
			return false, fmt.Errorf("%w: response %d not reduced", ErrMalformed, i)
		}
	}
	tr := newTranscript(g, ctx, ringP, ringC, I)
	c := sig.C0
	for i := range ringP {
		c = tr.step(i, sig.S[i], c, I)
	}
	return c.Cmp(sig.C0) == 0, nil
}

// MarshalBinary encodes c0[32] n[2] s_0..s_{n-1}[32 each].
func (sig *Signature) MarshalBinary() ([]byte, error) {
	if sig == nil || sig.C0 == nil || len(sig.S) == 0 || len(sig.S) > maxRing {
		return nil, ErrMalformed
	}
	out := make([]byte, 0, 34+32*len(sig.S))
	out = append(out, transcript.Scalar(sig.C0)...)
	out = append(out, transcript.Uint16(len(sig.S))...)
	for _, s := range sig.S {
		out = append(out, transcript.Scalar(s)...)
	}
	return out, nil
}

// ParseSignature decodes the MarshalBinary form.
func ParseSignature(g group.Group, b []byte) (*Signature, error) {
	if len(b) < 34 {
		return nil, fmt.Errorf("%w: truncated", ErrMalformed)
	}
	n := int(binary.BigEndian.Uint16(b[32:34]))
	if n == 0 || len(b) != 34+32*n {
		return nil, fmt.Errorf("%w: %d responses need %d bytes, got %d", ErrMalformed, n, 34+32*n, len(b))
	}
	sig := &Signature{C0: new(big.Int).SetBytes(b[:32]), S: make([]*big.Int, n)}
	if !group.InScalarRange(g, sig.C0) {
		return nil, fmt.Errorf("%w: c0 not reduced", ErrMalformed)
	}
	for i := 0; i < n; i++ {
		off := 34 + 32*i
		s := new(big.Int).SetBytes(b[off : off+32])
		if !group.InScalarRange(g, s) {
			return nil, fmt.Errorf("%w: response %d not reduced", ErrMalformed, i)
		}
		sig.S[i] = s
	}
	return sig, nil
}
