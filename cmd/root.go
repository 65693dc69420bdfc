// Package cmd defines the shoplab CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roshanis/shopagent/internal/config"
)

type cfgKeyType string

const cfgKey cfgKeyType = "config"

var (
	cfgFile string
	verbose bool
)

// loadConfig is a variable so tests can substitute a fixed configuration.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shoplab",
		Short: "Submit products for multi-agent evaluation and follow them to a verdict.",
		Long: `shoplab talks to an evaluation service that runs a panel of analysis
agents (cost, supplier trust, sustainability, ingredient safety) against a
product. It can run that service itself, submit products to it, and watch
each evaluation live until the combined recommendation is ready.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand: load the config once and hand it down.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); SHOPLAB_* env vars override it")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEvaluateCmd())
	cmd.AddCommand(newAgentsCmd())
	return cmd
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
