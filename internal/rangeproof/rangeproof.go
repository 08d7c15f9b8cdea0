// Package rangeproof provides the range-proof oracle consulted for every
// transaction output.
//
// The verifier treats a backend as opaque: it hands over an output commitment
// and proof bytes and rejects the transaction on anything but true.
//
// Backends:
//   - Stub: accepts the fixed "OK" blob. For tests and demos only.
//   - Groth16: a gnark circuit over BN254 proving C = Hc·v + Gc·b (mod q) with
//     v < 2^64, with Z_q emulated inside the circuit. Only the toy group
//     with q = 2^255 - 19 is supported.
package rangeproof

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"mockmonero/internal/group"
)

// Backend names accepted by New.
const (
	BackendStub    = "stub"
	BackendGroth16 = "groth16"
)

var (
	ErrMalformed        = errors.New("rangeproof: malformed proof")
	ErrUnsupportedGroup = errors.New("rangeproof: group not supported by backend")
	ErrUnknownBackend   = errors.New("rangeproof: unknown backend")
)

// Prover produces a proof that c opens to value with blind, value < 2^64.
type Prover interface {
	ProveRange(value uint64, blind *big.Int, c group.Point) ([]byte, error)
}

// Verifier checks a proof for commitment c. Malformed bytes are an error, a
// proof that does not verify is (false, nil).
type Verifier interface {
	VerifyRange(c group.Point, proof []byte) (bool, error)
}

// Backend is a matched prover/verifier pair.
type Backend interface {
	Prover
	Verifier
	Name() string
}

var stubProof = []byte("OK")

// Stub is the placeholder backend. It proves nothing.
type Stub struct{}

func (Stub) Name() string { return BackendStub }

func (Stub) ProveRange(uint64, *big.Int, group.Point) ([]byte, error) {
	return append([]byte(nil), stubProof...), nil
}

func (Stub) VerifyRange(_ group.Point, proof []byte) (bool, error) {
	return bytes.Equal(proof, stubProof), nil
}

// New builds the named backend. keyDir is where Groth16 keeps its keys.
func New(name string, g group.Group, keyDir string) (Backend, error) {
	switch name {
	case BackendStub, "":
		return Stub{}, nil
	case BackendGroth16:
		return NewGroth16(g, keyDir)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
