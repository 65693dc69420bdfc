package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roshanis/shopagent/internal/logging"
)

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the analysis agents the service runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			logger, err := logging.NewCLI(verbose)
			if err != nil {
				return err
			}
			c, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			list, err := c.ListAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("list agents: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, a := range list {
				fmt.Fprintf(out, "%s  %-18s %s\n", a.Emoji, a.Name, a.Description)
			}
			fmt.Fprintf(out, "\n%d agents\n", len(list))
			return nil
		},
	}
}
