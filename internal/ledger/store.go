// Package ledger holds the two pieces of shared state the verifier reads:
// the append-only UTXO registry and the insert-only spent-tag set.
//
// There is no process-wide ledger. Callers construct a Store and pass it to
// whatever needs it; tests build their own isolated stores.
package ledger

import (
	"errors"
	"math/big"

	"mockmonero/internal/group"
	"mockmonero/internal/merkle"
)

var (
	ErrNotFound      = errors.New("ledger: output index not found")
	ErrAlreadySpent  = errors.New("ledger: key image already spent")
	ErrDuplicate     = errors.New("ledger: key image repeated in one commit")
	ErrClosed        = errors.New("ledger: store closed")
	ErrCorruptRecord = errors.New("ledger: corrupt stored record")
)

// Output is a freshly created (P, C) pair waiting to be registered.
type Output struct {
	P group.Point
	C group.Point
}

// Record is a registered output. Index is stable once assigned.
type Record struct {
	Index uint64
	P     group.Point
	C     group.Point
	Leaf  *big.Int
}

// Registry is the append-only UTXO registry.
type Registry interface {
	Append(P, C group.Point) (uint64, error)
	Get(index uint64) (Record, error)
	Count() (uint64, error)
	// HasOutput reports whether (P, C) was ever registered.
	HasOutput(P, C group.Point) (bool, error)
	// Leaves returns every leaf in index order.
	Leaves() ([]*big.Int, error)
}

// SpentTags is the insert-only key-image set.
type SpentTags interface {
	Contains(image group.Point) (bool, error)
	Insert(image group.Point) error
	SpentCount() (uint64, error)
}

// Store combines both and can apply a verified transaction atomically.
type Store interface {
	Registry
	SpentTags
	// Commit inserts every image and appends every output, or does nothing.
	// It fails with ErrAlreadySpent if any image is already present.
	Commit(images []group.Point, outputs []Output) ([]uint64, error)
	Close() error
}

func newRecord(g group.Group, index uint64, P, C group.Point) Record {
	return Record{Index: index, P: P, C: C, Leaf: merkle.HashLeaf(g, P, C)}
}

func outputKey(P, C group.Point) [2 * group.PointSize]byte {
	var k [2 * group.PointSize]byte
	p, c := P.Bytes(), C.Bytes()
	copy(k[:group.PointSize], p[:])
	copy(k[group.PointSize:], c[:])
	return k
}

func checkDistinct(images []group.Point) error {
	seen := make(map[[group.PointSize]byte]struct{}, len(images))
	for _, I := range images {
		k := I.Bytes()
		if _, ok := seen[k]; ok {
			return ErrDuplicate
		}
		seen[k] = struct{}{}
	}
	return nil
}
