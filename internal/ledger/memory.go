// memory.go - In-memory store with an optional JSON snapshot on disk.
//
// Safe for concurrent use.

package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"mockmonero/internal/group"
)

// MemoryStore keeps records and spent tags in maps guarded by one RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	g       group.Group
	records []Record
	index   map[[2 * group.PointSize]byte]uint64
	spent   map[[group.PointSize]byte]struct{}
	order   [][group.PointSize]byte // spent tags in insertion order, for snapshots
	closed  bool
}

// NewMemoryStore creates an empty store over g.
func NewMemoryStore(g group.Group) *MemoryStore {
	return &MemoryStore{
		g:     g,
		index: make(map[[2 * group.PointSize]byte]uint64),
		spent: make(map[[group.PointSize]byte]struct{}),
	}
}

func (s *MemoryStore) Append(P, C group.Point) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.appendLocked(P, C), nil
}

func (s *MemoryStore) appendLocked(P, C group.Point) uint64 {
	idx := uint64(len(s.records))
	s.records = append(s.records, newRecord(s.g, idx, P, C))
	k := outputKey(P, C)
	if _, ok := s.index[k]; !ok {
		s.index[k] = idx
	}
	return idx
}

func (s *MemoryStore) Get(index uint64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	if index >= uint64(len(s.records)) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, index)
	}
	return s.records[index], nil
}

func (s *MemoryStore) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return uint64(len(s.records)), nil
}

func (s *MemoryStore) HasOutput(P, C group.Point) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.index[outputKey(P, C)]
	return ok, nil
}

func (s *MemoryStore) Leaves() ([]*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*big.Int, len(s.records))
	for i, r := range s.records {
		out[i] = r.Leaf
	}
	return out, nil
}

func (s *MemoryStore) Contains(image group.Point) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.spent[image.Bytes()]
	return ok, nil
}

func (s *MemoryStore) Insert(image group.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	k := image.Bytes()
	if _, ok := s.spent[k]; ok {
		return ErrAlreadySpent
	}
	s.insertLocked(k)
	return nil
}

func (s *MemoryStore) insertLocked(k [group.PointSize]byte) {
	s.spent[k] = struct{}{}
	s.order = append(s.order, k)
}

func (s *MemoryStore) SpentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return uint64(len(s.spent)), nil
}

func (s *MemoryStore) Commit(images []group.Point, outputs []Output) ([]uint64, error) {
	if err := checkDistinct(images); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	for _, I := range images {
		if _, ok := s.spent[I.Bytes()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrAlreadySpent, I)
		}
	}
	for _, I := range images {
		s.insertLocked(I.Bytes())
	}
	idx := make([]uint64, len(outputs))
	for i, o := range outputs {
		idx[i] = s.appendLocked(o.P, o.C)
	}
	return idx, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type snapshotOutput struct {
	P hexutil.Bytes `json:"p"`
	C hexutil.Bytes `json:"c"`
}

type snapshot struct {
	Group   string           `json:"group"`
	Outputs []snapshotOutput `json:"outputs"`
	Spent   []hexutil.Bytes  `json:"spent"`
}

// SaveToFile writes the whole store as indented JSON, overwriting path.
func (s *MemoryStore) SaveToFile(path string) error {
	s.mu.RLock()
	snap := snapshot{
		Group:   s.g.Name(),
		Outputs: make([]snapshotOutput, len(s.records)),
		Spent:   make([]hexutil.Bytes, len(s.order)),
	}
	for i, r := range s.records {
		p, c := r.P.Bytes(), r.C.Bytes()
		snap.Outputs[i] = snapshotOutput{P: p[:], C: c[:]}
	}
	for i, k := range s.order {
		snap.Spent[i] = append(hexutil.Bytes(nil), k[:]...)
	}
	s.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// LoadMemoryStore rebuilds a store from a snapshot written by SaveToFile.
func LoadMemoryStore(g group.Group, path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Group != g.Name() {
		return nil, fmt.Errorf("snapshot is for group %q, not %q", snap.Group, g.Name())
	}
	s := NewMemoryStore(g)
	for i, o := range snap.Outputs {
		P, err := g.Decode(o.P)
		if err != nil {
			return nil, fmt.Errorf("%w: output %d key: %v", ErrCorruptRecord, i, err)
		}
		C, err := g.Decode(o.C)
		if err != nil {
			return nil, fmt.Errorf("%w: output %d commitment: %v", ErrCorruptRecord, i, err)
		}
		s.appendLocked(P, C)
	}
	for i, raw := range snap.Spent {
		I, err := g.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: spent tag %d: %v", ErrCorruptRecord, i, err)
		}
		k := I.Bytes()
		if _, ok := s.spent[k]; !ok {
			s.insertLocked(k)
		}
	}
	return s, nil
}
