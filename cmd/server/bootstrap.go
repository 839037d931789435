package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/modlink/registry-engine/internal/registry"
	"github.com/modlink/registry-engine/internal/telemetry"
)

// errMemoryBootstrap is returned when bootstrap targets a store that does not
// outlive the command.
var errMemoryBootstrap = errors.New("the memory store does not persist; use serve --bootstrap-admin instead")

func newBootstrapCmd() *cobra.Command {
	flags := &bootstrapFlags{adminFlag: "admin"}
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the deployment config, lifecycle and metrics records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
			if cfg.Store.Driver == "memory" {
				return errMemoryBootstrap
			}

			deployer, params, err := flags.params()
			if err != nil {
				return err
			}

			st, _, err := openStore(cfg, true)
			if err != nil {
				return err
			}
			defer st.Close()

			rdb, err := openRedis(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}
			publisher, err := openPublisher(cfg, rdb)
			if err != nil {
				return err
			}
			defer closePublisher(publisher)

			policy, err := cfg.Policy.AllowList()
			if err != nil {
				return err
			}
			engine := registry.New(st,
				registry.WithPublisher(publisher),
				registry.WithPolicy(policy),
				registry.WithLogger(slog.Default()),
			)
			deployment, err := engine.Bootstrap(cmd.Context(), deployer, params)
			if err != nil {
				return fmt.Errorf("failed to bootstrap deployment: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(deployment)
		},
	}
	flags.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}
