// badger.go - Durable store on BadgerDB.
//
// Key layout:
//
//	o/<index be64>  -> P || C
//	m/<P || C>      -> index be64
//	s/<I>           -> (empty)
//	meta/count      -> be64
//	meta/spent      -> be64

package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"os"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"mockmonero/internal/group"
)

var (
	prefixOutput = []byte("o/")
	prefixMember = []byte("m/")
	prefixSpent  = []byte("s/")
	keyCount     = []byte("meta/count")
	keySpent     = []byte("meta/spent")
)

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// BadgerStore implements Store on a BadgerDB instance.
type BadgerStore struct {
	g   group.Group
	db  *badgerdb.DB
	log *zap.Logger
}

// OpenBadger opens (or creates) a store. With InMemory the path is ignored.
func OpenBadger(g group.Group, o BadgerOptions) (*BadgerStore, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var opts badgerdb.Options
	if o.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if o.Path == "" {
			return nil, errors.New("ledger: badger path not configured")
		}
		if err := os.MkdirAll(o.Path, 0o700); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badgerdb.DefaultOptions(o.Path).WithSyncWrites(o.SyncWrites)
	}
	opts = opts.WithLogger(badgerLogger{log.Sugar().Named("badger")})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	log.Info("ledger store opened", zap.String("path", o.Path), zap.Bool("in_memory", o.InMemory))
	return &BadgerStore{g: g, db: db, log: log}, nil
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func key(prefix, suffix []byte) []byte {
	return append(append([]byte(nil), prefix...), suffix...)
}

func readCounter(txn *badgerdb.Txn, k []byte) (uint64, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: counter %s", ErrCorruptRecord, k)
	}
	return binary.BigEndian.Uint64(v), nil
}

func exists(txn *badgerdb.Txn, k []byte) (bool, error) {
	_, err := txn.Get(k)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) decodePair(index uint64, v []byte) (Record, error) {
	if len(v) != 2*group.PointSize {
		return Record{}, fmt.Errorf("%w: output %d has %d bytes", ErrCorruptRecord, index, len(v))
	}
	P, err := s.g.Decode(v[:group.PointSize])
	if err != nil {
		return Record{}, fmt.Errorf("%w: output %d key: %v", ErrCorruptRecord, index, err)
	}
	C, err := s.g.Decode(v[group.PointSize:])
	if err != nil {
		return Record{}, fmt.Errorf("%w: output %d commitment: %v", ErrCorruptRecord, index, err)
	}
	return newRecord(s.g, index, P, C), nil
}

func appendTxn(txn *badgerdb.Txn, idx uint64, P, C group.Point) error {
	pair := outputKey(P, C)
	if err := txn.Set(key(prefixOutput, be64(idx)), pair[:]); err != nil {
		return err
	}
	mk := key(prefixMember, pair[:])
	ok, err := exists(txn, mk)
	if err != nil {
		return err
	}
	if !ok {
		return txn.Set(mk, be64(idx))
	}
	return nil
}

func (s *BadgerStore) Append(P, C group.Point) (uint64, error) {
	var idx uint64
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		n, err := readCounter(txn, keyCount)
		if err != nil {
			return err
		}
		if err := appendTxn(txn, n, P, C); err != nil {
			return err
		}
		idx = n
		return txn.Set(keyCount, be64(n+1))
	})
	if err != nil {
		return 0, fmt.Errorf("append output: %w", err)
	}
	return idx, nil
}

func (s *BadgerStore) Get(index uint64) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(prefixOutput, be64(index)))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%w: %d", ErrNotFound, index)
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err = s.decodePair(index, v)
		return err
	})
	return rec, err
}

func (s *BadgerStore) Count() (uint64, error) {
	var n uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		n, err = readCounter(txn, keyCount)
		return err
	})
	return n, err
}

func (s *BadgerStore) HasOutput(P, C group.Point) (bool, error) {
	pair := outputKey(P, C)
	var ok bool
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		ok, err = exists(txn, key(prefixMember, pair[:]))
		return err
	})
	return ok, err
}

func (s *BadgerStore) Leaves() ([]*big.Int, error) {
	var leaves []*big.Int
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		var next uint64
		for it.Seek(prefixOutput); it.ValidForPrefix(prefixOutput); it.Next() {
			item := it.Item()
			idx := binary.BigEndian.Uint64(item.Key()[len(prefixOutput):])
			if idx != next {
				return fmt.Errorf("%w: gap at output %d", ErrCorruptRecord, next)
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := s.decodePair(idx, v)
			if err != nil {
				return err
			}
			leaves = append(leaves, rec.Leaf)
			next++
		}
		return nil
	})
	return leaves, err
}

func (s *BadgerStore) Contains(image group.Point) (bool, error) {
	b := image.Bytes()
	var ok bool
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		ok, err = exists(txn, key(prefixSpent, b[:]))
		return err
	})
	return ok, err
}

func insertTxn(txn *badgerdb.Txn, image group.Point) error {
	b := image.Bytes()
	k := key(prefixSpent, b[:])
	ok, err := exists(txn, k)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrAlreadySpent, image)
	}
	return txn.Set(k, nil)
}

func (s *BadgerStore) Insert(image group.Point) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := insertTxn(txn, image); err != nil {
			return err
		}
		n, err := readCounter(txn, keySpent)
		if err != nil {
			return err
		}
		return txn.Set(keySpent, be64(n+1))
	})
}

func (s *BadgerStore) SpentCount() (uint64, error) {
	var n uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		n, err = readCounter(txn, keySpent)
		return err
	})
	return n, err
}

// Commit runs in a single badger transaction.
func (s *BadgerStore) Commit(images []group.Point, outputs []Output) ([]uint64, error) {
	if err := checkDistinct(images); err != nil {
		return nil, err
	}
	idx := make([]uint64, len(outputs))
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for _, I := range images {
			if err := insertTxn(txn, I); err != nil {
				return err
			}
		}
		spent, err := readCounter(txn, keySpent)
		if err != nil {
			return err
		}
		if err := txn.Set(keySpent, be64(spent+uint64(len(images)))); err != nil {
			return err
		}
		n, err := readCounter(txn, keyCount)
		if err != nil {
			return err
		}
		for i, o := range outputs {
			if err := appendTxn(txn, n, o.P, o.C); err != nil {
				return err
			}
			idx[i] = n
			n++
		}
		return txn.Set(keyCount, be64(n))
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("ledger commit", zap.Int("images", len(images)), zap.Int("outputs", len(outputs)))
	return idx, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
