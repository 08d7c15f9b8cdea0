// membership.go - Fiat–Shamir binding of a leaf and its path to a root.
//
// Wire form:
//
//	"ZKv1|" binding[32] "|" depth[2] siblings[32·depth] dirs[depth]
//
// binding = SHA-256("ZK|bind|" ctx root leaf SHA-256(depth‖siblings‖dirs)).
//
// The path travels in the clear. The proof binds it to (ctx, root, leaf) for
// integrity only; it does not hide which leaf is spent.

package merkle

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
	membershipTag = "ZKv1|"
	bindTag       = "ZK|bind|"
	maxDepth      = 1<<16 - 1
)

var (
	ErrBadTag       = errors.New("merkle: bad membership proof tag")
	ErrTruncated    = errors.New("merkle: truncated membership proof")
	ErrLength       = errors.New("merkle: membership proof length mismatch")
	ErrBadDirection = errors.New("merkle: direction bit not 0 or 1")
	ErrBadSibling   = errors.New("merkle: sibling not a reduced scalar")
	ErrLeafMismatch = errors.New("merkle: claimed output does not match stored leaf")
	ErrTooDeep      = errors.New("merkle: path deeper than wire format allows")
)

// MembershipProof is the parsed form of a membership blob.
type MembershipProof struct {
	Binding    [32]byte
	Siblings   []*big.Int
	Directions []uint8
}

// Depth is the path length carried by the proof.
func (m *MembershipProof) Depth() int { return len(m.Siblings) }

func pathData(siblings []*big.Int, dirs []uint8) []byte {
	out := make([]byte, 0, 2+len(siblings)*33)
	out = append(out, transcript.Uint16(len(siblings))...)
	for _, s := range siblings {
		out = append(out, transcript.Scalar(s)...)
	}
	return append(out, dirs...)
}

func binding(ctx []byte, root, leaf *big.Int, path []byte) [32]byte {
	ph := transcript.Digest(path)
	return transcript.Digest([]byte(bindTag), ctx, transcript.Scalar(root), transcript.Scalar(leaf), ph[:])
}

// ProveMembership binds the path of the leaf at index to the tree root. The
// caller's (P, C) must hash to the stored leaf; a mismatch is an integration
// bug and fails with ErrLeafMismatch.
func ProveMembership(t *Tree, P, C group.Point, index int, ctx []byte) (*MembershipProof, error) {
	path, err := t.Path(index)
	if err != nil {
		return nil, err
	}
	if path.Leaf.Cmp(HashLeaf(t.g, P, C)) != 0 {
		return nil, fmt.Errorf("%w: index %d", ErrLeafMismatch, index)
	}
	if len(path.Siblings) > maxDepth {
		return nil, ErrTooDeep
	}
	return &MembershipProof{
		Binding:    binding(ctx, t.Root(), path.Leaf, pathData(path.Siblings, path.Directions)),
		Siblings:   path.Siblings,
		Directions: path.Directions,
	}, nil
}

// VerifyMembership recomputes the leaf from (P, C), walks the path and accepts
// iff the binding matches and the walk lands on root.
func VerifyMembership(g group.Group, root *big.Int, P, C group.Point, m *MembershipProof, ctx []byte) (bool, error) {
	if m == nil || len(m.Siblings) != len(m.Directions) {
		return false, ErrLength
	}
	for _, d := range m.Directions {
		if d != Left && d != Right {
			return false, ErrBadDirection
		}
	}
	for _, s := range m.Siblings {
		if !group.InScalarRange(g, s) {
			return false, ErrBadSibling
		}
	}
	leaf := HashLeaf(g, P, C)
	want := binding(ctx, root, leaf, pathData(m.Siblings, m.Directions))
	bindOK := subtle.ConstantTimeCompare(want[:], m.Binding[:]) == 1
	rootOK := recompute(g, leaf, m.Siblings, m.Directions).Cmp(root) == 0
	return bindOK && rootOK, nil
}

// MarshalBinary produces the versioned wire blob.
func (m *MembershipProof) MarshalBinary() ([]byte, error) {
	if len(m.Siblings) != len(m.Directions) {
		return nil, ErrLength
	}
	if len(m.Siblings) > maxDepth {
		return nil, ErrTooDeep
	}
	var buf bytes.Buffer
	buf.WriteString(membershipTag)
	buf.Write(m.Binding[:])
	buf.WriteByte('|')
	buf.Write(pathData(m.Siblings, m.Directions))
	return buf.Bytes(), nil
}

// ParseMembershipProof decodes a blob. Parsing is total: it either returns a
// fully validated proof or a specific error.
func ParseMembershipProof(g group.Group, blob []byte) (*MembershipProof, error) {
	if !bytes.HasPrefix(blob, []byte(membershipTag)) {
		return nil, ErrBadTag
	}
	rest := blob[len(membershipTag):]
	if len(rest) < 32+1+2 {
		return nil, ErrTruncated
	}
	m := &MembershipProof{}
	copy(m.Binding[:], rest[:32])
	if rest[32] != '|' {
		return nil, fmt.Errorf("%w: missing separator", ErrTruncated)
	}
	body := rest[33:]
	depth := int(binary.BigEndian.Uint16(body[:2]))
	body = body[2:]
	if len(body) != depth*33 {
		return nil, fmt.Errorf("%w: depth %d wants %d bytes, got %d", ErrLength, depth, depth*33, len(body))
	}
	m.Siblings = make([]*big.Int, depth)
	for i := 0; i < depth; i++ {
		s := new(big.Int).SetBytes(body[i*32 : (i+1)*32])
		if !group.InScalarRange(g, s) {
			return nil, fmt.Errorf("%w: sibling %d", ErrBadSibling, i)
		}
		m.Siblings[i] = s
	}
	dirs := body[depth*32:]
	m.Directions = make([]uint8, depth)
	for i, d := range dirs {
		if d != Left && d != Right {
			return nil, fmt.Errorf("%w: level %d", ErrBadDirection, i)
		}
		m.Directions[i] = d
	}
	return m, nil
}
