// ctnode runs the confidential-transaction sequencer.
//
// Usage:
//
//	ctnode demo [tree|ring]   run the 8-owner spend scenario against a fresh ledger
//	ctnode serve              serve the HTTP API
//	ctnode status             query a running node
//	ctnode params             print the group parameters
//	ctnode setup-range        generate or load the Groth16 range-proof keys
//
// Every command reads the JSON configuration given by --config, creating it
// with defaults when it does not exist.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mockmonero/internal/config"
)

const version = "0.3.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ctnode",
	Short:         "Confidential-transaction sequencer",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ctnode.json", "path to the JSON configuration file")
	rootCmd.AddCommand(demoCmd, serveCmd, statusCmd, paramsCmd, setupRangeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
