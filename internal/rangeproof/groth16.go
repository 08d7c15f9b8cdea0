// groth16.go - Groth16 range proofs over BN254.
//
// Keys are generated once by SetupOrLoadKeys and cached on disk; the circuit
// is compiled on construction.

package rangeproof

import (
	"bytes"
	"fmt"
	"math/big"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/math/emulated"

	"mockmonero/internal/group"
)

// Key file names inside the key directory.
const (
	ProvingKeyFile   = "range_proving.key"
	VerifyingKeyFile = "range_verifying.key"
)

// Groth16 is the circuit-backed range proof backend.
type Groth16 struct {
	g         group.Group
	ccs       constraint.ConstraintSystem
	pk        groth16.ProvingKey
	vk        groth16.VerifyingKey
	valueBase *big.Int
	blindBase *big.Int
}

// CompileCircuit compiles the range circuit over the BN254 scalar field.
func CompileCircuit() (constraint.ConstraintSystem, error) {
	var c Circuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &c)
	if err != nil {
		return nil, fmt.Errorf("range circuit compilation failed: %w", err)
	}
	return ccs, nil
}

func checkGroup(g group.Group) error {
	if _, ok := g.(*group.Zq); !ok || g.Order().Cmp(fq25519Modulus) != 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedGroup, g.Name())
	}
	return nil
}

// NewGroth16 compiles the circuit and loads or creates keys under keyDir.
func NewGroth16(g group.Group, keyDir string) (*Groth16, error) {
	if err := checkGroup(g); err != nil {
		return nil, err
	}
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, err
	}
	pk, vk, err := SetupOrLoadKeys(ccs, filepath.Join(keyDir, ProvingKeyFile), filepath.Join(keyDir, VerifyingKeyFile))
	if err != nil {
		return nil, fmt.Errorf("range key setup failed: %w", err)
	}
	return NewGroth16WithKeys(g, ccs, pk, vk)
}

// NewGroth16WithKeys wires an already compiled circuit and keys.
func NewGroth16WithKeys(g group.Group, ccs constraint.ConstraintSystem, pk groth16.ProvingKey, vk groth16.VerifyingKey) (*Groth16, error) {
	if err := checkGroup(g); err != nil {
		return nil, err
	}
	return &Groth16{
		g:         g,
		ccs:       ccs,
		pk:        pk,
		vk:        vk,
		valueBase: g.ToScalar(g.Generator(group.RoleValue)),
		blindBase: g.ToScalar(g.Generator(group.RoleBlind)),
	}, nil
}

func (r *Groth16) Name() string { return BackendGroth16 }

// ProveRange builds the full witness and proves it.
func (r *Groth16) ProveRange(value uint64, blind *big.Int, c group.Point) ([]byte, error) {
	assignment := publicAssignment(r.g.ToScalar(c), r.valueBase, r.blindBase)
	assignment.Value = value
	assignment.Blind = emulated.ValueOf[Fq25519](group.Reduce(r.g, blind))

	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(r.ccs, r.pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return buf.Bytes(), nil
}

// VerifyRange rebuilds the public witness from c and checks the proof.
func (r *Groth16) VerifyRange(c group.Point, proofBytes []byte) (bool, error) {
	proof := groth16.NewProof(ecc.BN254)
	n, err := proof.ReadFrom(bytes.NewReader(proofBytes))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n != int64(len(proofBytes)) {
		return false, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, int64(len(proofBytes))-n)
	}
	w, err := frontend.NewWitness(publicAssignment(r.g.ToScalar(c), r.valueBase, r.blindBase),
		ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("public witness creation failed: %w", err)
	}
	if err := groth16.Verify(proof, r.vk, w); err != nil {
		return false, nil
	}
	return true, nil
}
