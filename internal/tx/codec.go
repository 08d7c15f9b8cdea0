// codec.go - JSON wire form of a transaction.
//
// Points, scalars and proof blobs travel as 0x-prefixed hex. Proof blobs use
// their own versioned binary encodings inside the hex.

package tx

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"mockmonero/internal/group"
	"mockmonero/internal/merkle"
	"mockmonero/internal/ring"
	"mockmonero/internal/spend"
	"mockmonero/internal/transcript"
)

type jsonInput struct {
	Kind     string        `json:"kind"`
	KeyImage hexutil.Bytes `json:"key_image"`

	// tree
	P          hexutil.Bytes `json:"p,omitempty"`
	C          hexutil.Bytes `json:"c,omitempty"`
	Root       hexutil.Bytes `json:"root,omitempty"`
	Spend      hexutil.Bytes `json:"spend_proof,omitempty"`
	Membership hexutil.Bytes `json:"membership_proof,omitempty"`

	// ring
	RingP     []hexutil.Bytes `json:"ring_p,omitempty"`
	RingC     []hexutil.Bytes `json:"ring_c,omitempty"`
	Signature hexutil.Bytes   `json:"signature,omitempty"`
	Pseudo    hexutil.Bytes   `json:"pseudo,omitempty"`
	Link      hexutil.Bytes   `json:"link_proof,omitempty"`
}

type jsonOutput struct {
	P          hexutil.Bytes `json:"p"`
	C          hexutil.Bytes `json:"c"`
	RangeProof hexutil.Bytes `json:"range_proof"`
}

type jsonTx struct {
	Inputs  []jsonInput   `json:"inputs"`
	Outputs []jsonOutput  `json:"outputs"`
	Fee     uint64        `json:"fee"`
	Context hexutil.Bytes `json:"context"`
}

func hexPoint(p group.Point) hexutil.Bytes { return transcript.Point(p) }

func hexPoints(ps []group.Point) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(ps))
	for i, p := range ps {
		out[i] = hexPoint(p)
	}
	return out
}

// MarshalJSON encodes t in the API wire form.
func MarshalJSON(t *Transaction) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	jt := jsonTx{
		Inputs:  make([]jsonInput, len(t.Inputs)),
		Outputs: make([]jsonOutput, len(t.Outputs)),
		Fee:     t.Fee,
		Context: t.Context,
	}
	for i, in := range t.Inputs {
		ji := jsonInput{Kind: in.Kind().String(), KeyImage: hexPoint(in.KeyImage())}
		switch in := in.(type) {
		case *TreeInput:
			sp, err := in.Spend.MarshalBinary()
			if err != nil {
				return nil, err
			}
			mp, err := in.Membership.MarshalBinary()
			if err != nil {
				return nil, err
			}
			ji.P, ji.C = hexPoint(in.P), hexPoint(in.C)
			ji.Root = transcript.Scalar(in.Root)
			ji.Spend, ji.Membership = sp, mp
		case *RingInput:
			sig, err := in.Sig.MarshalBinary()
			if err != nil {
				return nil, err
			}
			link, err := in.Link.MarshalBinary()
			if err != nil {
				return nil, err
			}
			ji.RingP, ji.RingC = hexPoints(in.RingP), hexPoints(in.RingC)
			ji.Signature, ji.Pseudo, ji.Link = sig, hexPoint(in.Pseudo), link
		}
		jt.Inputs[i] = ji
	}
	for i, o := range t.Outputs {
		jt.Outputs[i] = jsonOutput{P: hexPoint(o.P), C: hexPoint(o.C), RangeProof: o.RangeProof}
	}
	return json.Marshal(jt)
}

type decoder struct {
	g   group.Group
	err error
}

func (d *decoder) point(field string, b []byte) group.Point {
	if d.err != nil {
		return nil
	}
	p, err := d.g.Decode(b)
	if err != nil {
		d.err = fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
	}
	return p
}

func (d *decoder) points(field string, bs []hexutil.Bytes) []group.Point {
	out := make([]group.Point, len(bs))
	for i, b := range bs {
		out[i] = d.point(fmt.Sprintf("%s[%d]", field, i), b)
	}
	return out
}

func (d *decoder) wrap(field string, err error) {
	if d.err == nil && err != nil {
		d.err = fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
	}
}

func (d *decoder) input(ji jsonInput) Input {
	switch ji.Kind {
	case KindTree.String():
		in := &TreeInput{
			P: d.point("p", ji.P),
			I: d.point("key_image", ji.KeyImage),
			C: d.point("c", ji.C),
		}
		if len(ji.Root) != group.PointSize {
			d.wrap("root", fmt.Errorf("want %d bytes, got %d", group.PointSize, len(ji.Root)))
		} else if root := new(big.Int).SetBytes(ji.Root); !group.InScalarRange(d.g, root) {
			d.wrap("root", fmt.Errorf("not reduced"))
		} else {
			in.Root = root
		}
		var err error
		in.Spend, err = spend.ParseProof(d.g, ji.Spend)
		d.wrap("spend_proof", err)
		in.Membership, err = merkle.ParseMembershipProof(d.g, ji.Membership)
		d.wrap("membership_proof", err)
		return in
	case KindRing.String():
		in := &RingInput{
			RingP:  d.points("ring_p", ji.RingP),
			RingC:  d.points("ring_c", ji.RingC),
			I:      d.point("key_image", ji.KeyImage),
			Pseudo: d.point("pseudo", ji.Pseudo),
		}
		var err error
		in.Sig, err = ring.ParseSignature(d.g, ji.Signature)
		d.wrap("signature", err)
		in.Link, err = ring.ParseLinkProof(d.g, ji.Link)
		d.wrap("link_proof", err)
		return in
	}
	d.wrap("kind", fmt.Errorf("unknown input kind %q", ji.Kind))
	return nil
}

// UnmarshalJSON decodes and structurally validates a transaction for g.
func UnmarshalJSON(g group.Group, data []byte) (*Transaction, error) {
	var jt jsonTx
	if err := json.Unmarshal(data, &jt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d := &decoder{g: g}
	t := &Transaction{
		Inputs:  make([]Input, len(jt.Inputs)),
		Outputs: make([]Output, len(jt.Outputs)),
		Fee:     jt.Fee,
		Context: jt.Context,
	}
	for i, ji := range jt.Inputs {
		t.Inputs[i] = d.input(ji)
		if d.err != nil {
			return nil, fmt.Errorf("input %d: %w", i, d.err)
		}
	}
	for i, jo := range jt.Outputs {
		t.Outputs[i] = Output{
			P:          d.point("p", jo.P),
			C:          d.point("c", jo.C),
			RangeProof: jo.RangeProof,
		}
		if d.err != nil {
			return nil, fmt.Errorf("output %d: %w", i, d.err)
		}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}
