// link.go - Binds a pseudo-commitment to one ring slot.
//
// Claim: ringC[j] - pseudo == Gc·diff. The proof carries j and diff in the
// clear plus a hash over (ctx, I, pseudo, ring transcript, j, diff), so it is a
// binding check and not a hiding one: anyone reading it learns the signer slot.
//
// Wire form: "LINKv1|" binding[32] "|" j[2] diff[32].

package ring

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"mockmonero/internal/group"
	"mockmonero/internal/transcript"
)

const (
	linkTag     = "LINKv1|"
	linkBindTag = "LINK|bind|"
	linkSize    = len(linkTag) + 32 + 1 + 2 + 32
)

var (
	ErrLinkMismatch = errors.New("ring: pseudo commitment does not match ring slot")
	ErrLinkTag      = errors.New("ring: bad link proof tag")
	ErrLinkLength   = errors.New("ring: link proof length mismatch")
)

// LinkProof is the parsed link blob.
type LinkProof struct {
	Binding [32]byte
	Index   int
	Diff    *big.Int
}

func linkBinding(ctx []byte, ringP, ringC []group.Point, I, pseudo group.Point, j int, diff *big.Int) [32]byte {
	return transcript.Digest([]byte(linkBindTag), ctx,
		transcript.Point(I), transcript.Point(pseudo),
		transcript.Points(ringP), transcript.Points(ringC),
		transcript.Uint16(j), transcript.Scalar(diff))
}

// ProveLink binds pseudo to ringC[signer]. diff must satisfy the claim; a value
// that does not is a caller bug and fails with ErrLinkMismatch.
func ProveLink(g group.Group, ringP, ringC []group.Point, I, pseudo group.Point, signer int, diff *big.Int, ctx []byte) (*LinkProof, error) {
	if err := checkRing(ringP, ringC); err != nil {
		return nil, err
	}
	if signer < 0 || signer >= len(ringC) {
		return nil, ErrRealIndex
	}
	d := group.Reduce(g, diff)
	if !g.Sub(ringC[signer], pseudo).Equal(g.Mul(d, g.Generator(group.RoleBlind))) {
		return nil, ErrLinkMismatch
	}
	return &LinkProof{
		Binding: linkBinding(ctx, ringP, ringC, I, pseudo, signer, d),
		Index:   signer,
		Diff:    d,
	}, nil
}

// VerifyLink checks the algebraic claim at the proof's own index and the
// binding hash. An index outside the ring is a failed proof, not an error.
func VerifyLink(g group.Group, ringP, ringC []group.Point, I, pseudo group.Point, p *LinkProof, ctx []byte) (bool, error) {
	if err := checkRing(ringP, ringC); err != nil {
		return false, err
	}
	if p == nil || p.Diff == nil || I == nil || pseudo == nil {
		return false, fmt.Errorf("%w: missing fields", ErrMalformed)
	}
	if !group.InScalarRange(g, p.Diff) {
		return false, fmt.Errorf("%w: diff not reduced", ErrMalformed)
	}
	if p.Index < 0 || p.Index >= len(ringC) {
		return false, nil
	}
	if !g.Sub(ringC[p.Index], pseudo).Equal(g.Mul(p.Diff, g.Generator(group.RoleBlind))) {
		return false, nil
	}
	want := linkBinding(ctx, ringP, ringC, I, pseudo, p.Index, p.Diff)
	return subtle.ConstantTimeCompare(want[:], p.Binding[:]) == 1, nil
}

// MarshalBinary produces the versioned wire blob.
func (p *LinkProof) MarshalBinary() ([]byte, error) {
	if p == nil || p.Diff == nil || p.Index < 0 || p.Index > maxRing {
		return nil, ErrMalformed
	}
	var buf bytes.Buffer
	buf.Grow(linkSize)
	buf.WriteString(linkTag)
	buf.Write(p.Binding[:])
	buf.WriteByte('|')
	buf.Write(transcript.Uint16(p.Index))
	buf.Write(transcript.Scalar(p.Diff))
	return buf.Bytes(), nil
}

// ParseLinkProof decodes a link blob.
func ParseLinkProof(g group.Group, blob []byte) (*LinkProof, error) {
	if !bytes.HasPrefix(blob, []byte(linkTag)) {
		return nil, ErrLinkTag
	}
	if len(blob) != linkSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrLinkLength, linkSize, len(blob))
	}
	rest := blob[len(linkTag):]
	p := &LinkProof{}
	copy(p.Binding[:], rest[:32])
	if rest[32] != '|' {
		return nil, fmt.Errorf("%w: missing separator", ErrLinkLength)
	}
	p.Index = int(binary.BigEndian.Uint16(rest[33:35]))
	p.Diff = new(big.Int).SetBytes(rest[35:67])
	if !group.InScalarRange(g, p.Diff) {
		return nil, fmt.Errorf("%w: diff not reduced", ErrMalformed)
	}
	return p, nil
}
