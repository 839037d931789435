// Package main is the entry point for the module registry server binary.
// Subcommands: serve, migrate, bootstrap, token and version. The serve command
// runs migrations on startup when the postgres store is selected so freshly
// deployed containers never need a separate migration step.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modlink/registry-engine/internal/config"
)

const (
	version = "0.1.0"
)

// configPath is bound to the persistent --config flag.
var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "registry-server",
		Short:         "Module registry server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// serve is the default when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &serveOptions{})
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"),
		"config file (default searches ./config.yaml, ./config/config.yaml, /etc/module-registry/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newBootstrapCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Module Registry v%s\n", version)
		},
	}
}
