package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mockmonero/internal/config"
	"mockmonero/internal/group"
	"mockmonero/internal/health"
	"mockmonero/internal/ledger"
	"mockmonero/internal/logging"
	"mockmonero/internal/metrics"
	"mockmonero/internal/rangeproof"
	"mockmonero/internal/sequencer"
	"mockmonero/internal/tx"
)

// node is everything a command needs, built from one configuration.
type node struct {
	cfg     *config.Config
	g       group.Group
	log     *logging.Logger
	metrics *metrics.Collector
	health  *health.Checker
	backend rangeproof.Backend
	store   ledger.Store
	mem     *ledger.MemoryStore // set when the store is persisted as a snapshot
	seq     *sequencer.Sequencer
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	o := logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: true}
	if cfg.EnableAudit {
		o.AuditFile = cfg.AuditLogPath
	}
	return logging.New(o)
}

// openNode builds the node. With fresh set, the ledger is an empty memory
// store regardless of the configured backend.
func openNode(cfg *config.Config, fresh bool) (*node, error) {
	g, err := group.ByName(cfg.Group)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	n := &node{cfg: cfg, g: g, log: log, metrics: metrics.New(), health: health.NewChecker(version)}

	n.backend, err = rangeproof.New(cfg.RangeBackend, g, cfg.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("range backend: %w", err)
	}

	switch {
	case fresh:
		n.store = ledger.NewMemoryStore(g)
	case cfg.StoreBackend == "badger":
		n.store, err = ledger.OpenBadger(g, ledger.BadgerOptions{Path: cfg.StorePath, SyncWrites: true, Logger: log.Logger})
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
	default:
		n.mem, err = ledger.LoadMemoryStore(g, cfg.SnapshotPath)
		if errors.Is(err, os.ErrNotExist) {
			n.mem, err = ledger.NewMemoryStore(g), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		n.store = n.mem
	}

	v := tx.NewVerifier(g, n.backend, log.Logger.Named("verifier"))
	n.seq = sequencer.New(n.store, v, sequencer.WithLogger(log), sequencer.WithMetrics(n.metrics))

	n.health.Register("ledger", func(context.Context) error {
		_, err := n.store.Count()
		return err
	})
	n.health.Register("range_backend", func(context.Context) error {
		if n.backend.Name() == rangeproof.BackendStub {
			return fmt.Errorf("%w: stub range proofs accept any output", health.ErrDegraded)
		}
		return nil
	})
	n.health.Info("root", func() string {
		r, err := n.seq.Root()
		if err != nil {
			return "unavailable"
		}
		return sequencer.RootHex(r)
	})
	n.health.Info("group", func() string { return g.Name() })

	log.Info("node ready",
		zap.String("group", g.Name()),
		zap.String("range_backend", n.backend.Name()),
		zap.String("store", storeName(n, fresh)))
	return n, nil
}

func storeName(n *node, fresh bool) string {
	if fresh {
		return "ephemeral"
	}
	return n.cfg.StoreBackend
}

// close persists the memory snapshot and releases the store.
func (n *node) close() error {
	var err error
	if n.mem != nil {
		if err = os.MkdirAll(filepath.Dir(n.cfg.SnapshotPath), 0o755); err == nil {
			err = n.mem.SaveToFile(n.cfg.SnapshotPath)
		}
		if err != nil {
			n.log.Error("snapshot save failed", zap.String("path", n.cfg.SnapshotPath), zap.Error(err))
		}
	}
	if cerr := n.store.Close(); err == nil {
		err = cerr
	}
	n.log.Sync()
	return err
}
