// Package tx defines confidential transactions and the verifier that gates
// them.
//
// A transaction spends one or more hidden outputs and creates new ones. Each
// input proves spend authorization in one of two ways:
//
//   - TreeInput: a DL-equality proof tying P to its key image, plus a
//     membership proof binding (P, C) to the current accumulator root.
//   - RingInput: an LSAG signature over an explicit ring of registered
//     outputs, plus a link proof tying a fresh pseudo-commitment to the
//     signer's slot.
//
// Both variants share key images for double-spend detection and feed one
// commitment each into the balance check.
package tx

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"mockmonero/internal/group"
	"mockmonero/internal/merkle"
	"mockmonero/internal/ring"
	"mockmonero/internal/spend"
	"mockmonero/internal/transcript"
)

var (
	ErrMalformed         = errors.New("tx: malformed transaction")
	ErrDuplicateKeyImage = errors.New("tx: key image used twice in one transaction")
	ErrView              = errors.New("tx: ledger view unavailable")
)

// Kind tags the two input variants.
type Kind uint8

const (
	KindTree Kind = 1
	KindRing Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindRing:
		return "ring"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Input is implemented by *TreeInput and *RingInput only.
type Input interface {
	Kind() Kind
	// KeyImage is the input's double-spend tag.
	KeyImage() group.Point
	// BalanceCommitment is what the input contributes to the balance sum.
	BalanceCommitment() group.Point

	validate() error
	verify(v *Verifier, view View, ctx []byte) (bool, string, error)
	appendBinary(buf *bytes.Buffer) error
}

// TreeInput spends an output proven to be in the accumulator at Root.
type TreeInput struct {
	P          group.Point
	I          group.Point
	C          group.Point
	Root       *big.Int
	Spend      *spend.Proof
	Membership *merkle.MembershipProof
}

func (in *TreeInput) Kind() Kind                     { return KindTree }
func (in *TreeInput) KeyImage() group.Point          { return in.I }
func (in *TreeInput) BalanceCommitment() group.Point { return in.C }

func (in *TreeInput) validate() error {
	if in.P == nil || in.I == nil || in.C == nil || in.Root == nil || in.Spend == nil || in.Membership == nil {
		return fmt.Errorf("%w: tree input has missing fields", ErrMalformed)
	}
	return nil
}

// RingInput spends one hidden member of an explicit ring.
type RingInput struct {
	RingP  []group.Point
	RingC  []group.Point
	I      group.Point
	Sig    *ring.Signature
	Pseudo group.Point
	Link   *ring.LinkProof
}

func (in *RingInput) Kind() Kind                     { return KindRing }
func (in *RingInput) KeyImage() group.Point          { return in.I }
func (in *RingInput) BalanceCommitment() group.Point { return in.Pseudo }

func (in *RingInput) validate() error {
	if in.I == nil || in.Sig == nil || in.Pseudo == nil || in.Link == nil {
		return fmt.Errorf("%w: ring input has missing fields", ErrMalformed)
	}
	if len(in.RingP) == 0 || len(in.RingP) != len(in.RingC) {
		return fmt.Errorf("%w: ring sizes %d/%d", ErrMalformed, len(in.RingP), len(in.RingC))
	}
	for i := range in.RingP {
		if in.RingP[i] == nil || in.RingC[i] == nil {
			return fmt.Errorf("%w: ring member %d missing", ErrMalformed, i)
		}
	}
	return nil
}

// Output is a new hidden output with its range proof.
type Output struct {
	P          group.Point
	C          group.Point
	RangeProof []byte
}

// Transaction packages inputs, outputs, a public fee and the context that
// domain-separates every proof inside it.
type Transaction struct {
	Inputs  []Input
	Outputs []Output
	Fee     uint64
	Context []byte
}

// KeyImages lists the key image of every input in order.
func (t *Transaction) KeyImages() []group.Point {
	out := make([]group.Point, len(t.Inputs))
	for i, in := range t.Inputs {
		out[i] = in.KeyImage()
	}
	return out
}

func (t *Transaction) validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil transaction", ErrMalformed)
	}
	if len(t.Inputs) == 0 {
		return fmt.Errorf("%w: no inputs", ErrMalformed)
	}
	if len(t.Inputs) > maxCount || len(t.Outputs) > maxCount {
		return fmt.Errorf("%w: %d inputs, %d outputs exceeds %d", ErrMalformed, len(t.Inputs), len(t.Outputs), maxCount)
	}
	seen := make(map[[group.PointSize]byte]struct{}, len(t.Inputs))
	for i, in := range t.Inputs {
		if in == nil {
			return fmt.Errorf("%w: input %d is nil", ErrMalformed, i)
		}
		if err := in.validate(); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		k := in.KeyImage().Bytes()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: input %d", ErrDuplicateKeyImage, i)
		}
		seen[k] = struct{}{}
	}
	for i, o := range t.Outputs {
		if o.P == nil || o.C == nil {
			return fmt.Errorf("%w: output %d has missing fields", ErrMalformed, i)
		}
	}
	return nil
}

// checkKeys rejects the identity as an input key, key image, ring member or
// output key. With P = I = O the spend and ring equations hold for any
// response.
func (t *Transaction) checkKeys(g group.Group) error {
	for i, in := range t.Inputs {
		var pts []group.Point
		switch in := in.(type) {
		case *TreeInput:
			pts = []group.Point{in.P, in.I}
		case *RingInput:
			pts = append([]group.Point{in.I}, in.RingP...)
		}
		for _, k := range pts {
			if group.IsIdentity(g, k) {
				return fmt.Errorf("%w: input %d uses the identity as a key", ErrMalformed, i)
			}
		}
	}
	for i, o := range t.Outputs {
		if group.IsIdentity(g, o.P) {
			return fmt.Errorf("%w: output %d is owned by the identity", ErrMalformed, i)
		}
	}
	return nil
}

// maxCount is the largest input or output count the two-byte length prefix holds.
const maxCount = 1<<16 - 1

const idTag = "CTXv1"

func (in *TreeInput) appendBinary(buf *bytes.Buffer) error {
	sp, err := in.Spend.MarshalBinary()
	if err != nil {
		return err
	}
	mp, err := in.Membership.MarshalBinary()
	if err != nil {
		return err
	}
	buf.Write(transcript.Point(in.P))
	buf.Write(transcript.Point(in.I))
	buf.Write(transcript.Point(in.C))
	buf.Write(transcript.Scalar(in.Root))
	writeBlob(buf, sp)
	writeBlob(buf, mp)
	return nil
}

func (in *RingInput) appendBinary(buf *bytes.Buffer) error {
	sig, err := in.Sig.MarshalBinary()
	if err != nil {
		return err
	}
	link, err := in.Link.MarshalBinary()
	if err != nil {
		return err
	}
	buf.Write(transcript.Uint16(len(in.RingP)))
	buf.Write(transcript.Points(in.RingP))
	buf.Write(transcript.Points(in.RingC))
	buf.Write(transcript.Point(in.I))
	buf.Write(transcript.Point(in.Pseudo))
	writeBlob(buf, sig)
	writeBlob(buf, link)
	return nil
}

func writeBlob(buf *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}

// MarshalBinary is the canonical encoding the transaction ID is taken over.
func (t *Transaction) MarshalBinary() ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(idTag)
	var fee [8]byte
	binary.BigEndian.PutUint64(fee[:], t.Fee)
	buf.Write(fee[:])
	writeBlob(&buf, t.Context)

	buf.Write(transcript.Uint16(len(t.Inputs)))
	for i, in := range t.Inputs {
		buf.WriteByte(byte(in.Kind()))
		if err := in.appendBinary(&buf); err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrMalformed, i, err)
		}
	}
	buf.Write(transcript.Uint16(len(t.Outputs)))
	for _, o := range t.Outputs {
		buf.Write(transcript.Point(o.P))
		buf.Write(transcript.Point(o.C))
		writeBlob(&buf, o.RangeProof)
	}
	return buf.Bytes(), nil
}

// ID is SHA-256 over MarshalBinary.
func (t *Transaction) ID() ([32]byte, error) {
	b, err := t.MarshalBinary()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// IDHex returns the 0x-prefixed hex form of ID.
func (t *Transaction) IDHex() (string, error) {
	id, err := t.ID()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(id[:]), nil
}
