package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/logging"
	"github.com/roshanis/shopagent/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reference evaluation service",
		Long: `Starts the HTTP evaluation service. Submitted products are queued and
analyzed by a pool of workers; clients poll /api/evaluate/{id}/status until
the result is ready. Stop it with Ctrl+C.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development || verbose)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := server.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	return app.Run(cmd.Context())
}
