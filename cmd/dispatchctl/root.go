package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cho-y-j/dispatch/internal/bootstrap"
	"github.com/cho-y-j/dispatch/internal/config"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the config is loaded
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	backend    *bootstrap.Backend
	out        io.Writer
}

func defaultConfigPath() string {
	if p := os.Getenv("DISPATCHCTL_CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/api-service/config.yaml"
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Operate the equipment dispatch service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg

			// logs go to stderr so command output stays parseable
			logging := cfg.Logging
			logging.Output = "stderr"
			l, err := bootstrap.Logger(&logging, "dispatchctl")
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = l.Logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.backend != nil {
				a.backend.Close()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "Path to configuration file")

	root.AddCommand(
		newMigrateCmd(a),
		newSweepCmd(a),
		newSettingsCmd(a),
		newSuspensionsCmd(a),
	)
	return root
}

// open connects to the configured store once per invocation
func (a *app) open(ctx context.Context, migrate bool) (*bootstrap.Backend, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	b, err := bootstrap.OpenBackend(ctx, a.cfg, a.logger, migrate)
	if err != nil {
		return nil, err
	}
	a.backend = b
	return b, nil
}
