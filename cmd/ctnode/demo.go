package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mockmonero/internal/group"
	"mockmonero/internal/keys"
	"mockmonero/internal/pedersen"
	"mockmonero/internal/sequencer"
	"mockmonero/internal/tx"
)

const (
	demoOwners = 8
	demoSpend  = 3
	demoFee    = 3
	demoPay    = 17
)

var demoCmd = &cobra.Command{
	Use:       "demo [tree|ring]",
	Short:     "Spend one output of a fresh 8-owner ledger, then try to spend it again",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"tree", "ring"},
	RunE: func(cmd *cobra.Command, args []string) error {
		variant := "tree"
		if len(args) == 1 {
			variant = args[0]
		}
		if variant != "tree" && variant != "ring" {
			return fmt.Errorf("unknown variant %q, want tree or ring", variant)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		n, err := openNode(cfg, true)
		if err != nil {
			return err
		}
		defer n.close()
		return runDemo(cmd.Context(), n, variant)
	},
}

type owner struct {
	kp   *keys.Keypair
	open pedersen.Opening
}

// seedOwners registers one output per owner with value 10·(i+1).
func seedOwners(n *node) ([]owner, error) {
	owners := make([]owner, demoOwners)
	for i := range owners {
		kp, err := keys.Generate(n.g)
		if err != nil {
			return nil, err
		}
		b, err := group.RandomScalar(n.g)
		if err != nil {
			return nil, err
		}
		o := pedersen.Opening{Value: uint64(10 * (i + 1)), Blind: b}
		if _, err := n.store.Append(kp.Public, pedersen.CommitOpening(n.g, o)); err != nil {
			return nil, fmt.Errorf("register owner %d: %w", i, err)
		}
		owners[i] = owner{kp: kp, open: o}
	}
	return owners, nil
}

func (n *node) timed(kind string, f func() error) error {
	start := time.Now()
	err := f()
	n.metrics.ObserveProof(kind, time.Since(start))
	return err
}

func buildDemoTx(n *node, variant string, from owner) (*tx.Transaction, error) {
	ctx := []byte(n.cfg.Context)
	var (
		in      tx.Input
		inBlind *big.Int
	)
	switch variant {
	case "tree":
		tree, err := n.seq.Tree()
		if err != nil {
			return nil, err
		}
		err = n.timed("tree_input", func() error {
			ti, err := tx.NewTreeInput(n.g, tree, from.kp, pedersen.CommitOpening(n.g, from.open), demoSpend, ctx)
			in = ti
			return err
		})
		if err != nil {
			return nil, err
		}
		inBlind = from.open.Blind
	case "ring":
		err := n.timed("ring_input", func() error {
			ri, pseudoBlind, err := tx.NewRingInput(n.g, n.store, demoSpend, from.open, from.kp, n.cfg.RingSize, ctx)
			in, inBlind = ri, pseudoBlind
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	to, err := keys.Generate(n.g)
	if err != nil {
		return nil, err
	}
	payments := []tx.Payment{
		{To: to.Public, Value: demoPay},
		{To: from.kp.Public, Value: from.open.Value - demoPay - demoFee},
	}
	var outs []tx.Output
	err = n.timed("range", func() error {
		outs, _, err = tx.NewOutputs(n.g, n.backend, []*big.Int{inBlind}, payments)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tx.Transaction{Inputs: []tx.Input{in}, Outputs: outs, Fee: demoFee, Context: ctx}, nil
}

func printReceipt(label string, rc sequencer.Receipt) {
	fmt.Printf("%-12s accepted=%-5v stage=%-20s", label, rc.Accepted, rc.Stage)
	if rc.Reason != "" {
		fmt.Printf(" reason=%q", rc.Reason)
	}
	if len(rc.OutputIndices) > 0 {
		fmt.Printf(" outputs=%v", rc.OutputIndices)
	}
	fmt.Println()
}

func runDemo(ctx context.Context, n *node, variant string) error {
	owners, err := seedOwners(n)
	if err != nil {
		return err
	}
	before, err := n.seq.Root()
	if err != nil {
		return err
	}
	fmt.Printf("group=%s range=%s variant=%s\n", n.g.Name(), n.backend.Name(), variant)
	fmt.Printf("registered %d outputs, root %s\n", demoOwners, sequencer.RootHex(before))

	from := owners[demoSpend]
	t, err := buildDemoTx(n, variant, from)
	if err != nil {
		return fmt.Errorf("build transaction: %w", err)
	}
	id, err := t.IDHex()
	if err != nil {
		return err
	}
	fmt.Printf("spending output %d (value %d): pay %d, change %d, fee %d\n",
		demoSpend, from.open.Value, demoPay, from.open.Value-demoPay-demoFee, demoFee)
	fmt.Printf("tx %s\n", id)

	rc, err := n.seq.Submit(ctx, t)
	if err != nil {
		return err
	}
	printReceipt("first:", rc)
	if !rc.Accepted {
		return fmt.Errorf("demo transaction rejected at %s: %s", rc.Stage, rc.Reason)
	}

	rc, err = n.seq.Submit(ctx, t)
	if err != nil {
		return err
	}
	printReceipt("resubmit:", rc)
	if !rc.DoubleSpend {
		return fmt.Errorf("resubmission was not blocked as a double spend")
	}

	st, err := n.seq.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("ledger: %d outputs, %d spent, root %s\n", st.Outputs, st.Spent, sequencer.RootHex(st.Root))
	n.log.Info("demo finished", zap.String("variant", variant), zap.Uint64("outputs", st.Outputs))
	return nil
}
