package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"mockmonero/internal/api"
	"mockmonero/internal/group"
	"mockmonero/internal/rangeproof"
	"mockmonero/internal/transcript"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the root and ledger counts of a running node",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := statusAddr
		if addr == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr = cfg.ListenAddr
		}
		root, err := api.NewClient(addr).Root(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(root)
	},
}

type paramsOutput struct {
	Group      string                   `json:"group"`
	Order      string                   `json:"order"`
	Generators map[string]hexutil.Bytes `json:"generators"`
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print the configured group's order and generators",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		g, err := group.ByName(cfg.Group)
		if err != nil {
			return err
		}
		out := paramsOutput{
			Group:      g.Name(),
			Order:      hexutil.EncodeBig(g.Order()),
			Generators: make(map[string]hexutil.Bytes),
		}
		for _, r := range group.Roles() {
			out.Generators[r.String()] = transcript.Point(g.Generator(r))
		}
		return printJSON(out)
	},
}

var setupRangeCmd = &cobra.Command{
	Use:   "setup-range",
	Short: "Compile the range circuit and generate or load its Groth16 keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		g, err := group.ByName(cfg.Group)
		if err != nil {
			return err
		}
		if _, err := rangeproof.NewGroth16(g, cfg.KeyDir); err != nil {
			return err
		}
		fmt.Printf("proving key:   %s\n", filepath.Join(cfg.KeyDir, rangeproof.ProvingKeyFile))
		fmt.Printf("verifying key: %s\n", filepath.Join(cfg.KeyDir, rangeproof.VerifyingKeyFile))
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "node address (defaults to listen_addr)")
}
