package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spaco-sound/spaco/internal/cli/config"
	"github.com/spaco-sound/spaco/internal/cli/ui"
	"github.com/spaco-sound/spaco/pattern/manager"
)

// NewDBCommand creates the db command group.
func NewDBCommand() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Pattern database commands",
		Long:  "Initialize and maintain the precompiled pattern database",
	}

	dbCmd.AddCommand(newDBInitCommand())
	dbCmd.AddCommand(newDBStatsCommand())
	dbCmd.AddCommand(newDBPruneCommand())

	return dbCmd
}

// openManager builds a monitor-less manager from the CLI configuration.
func openManager() (*manager.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return manager.New(cfg.ManagerOptions())
}

func newDBInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the pattern schema",
		Long:  "Create the precompiled_patterns table and indexes if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			defer m.Close()

			// Manager construction runs schema init; reaching here
			// means the schema exists.
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Pattern schema ready")
			return nil
		},
	}
}

func newDBStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stored pattern counts by type",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			defer m.Close()

			counts, err := m.CountByType(cmd.Context())
			if err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), "TYPE", "PATTERNS")
			total := 0
			for typ, n := range counts {
				table.AddRow(typ, fmt.Sprintf("%d", n))
				total += n
			}
			table.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d patterns total\n", total)
			return nil
		},
	}
}

func newDBPruneCommand() *cobra.Command {
	var olderThan time.Duration

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete patterns unused for longer than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			defer m.Close()

			pruned, err := m.PruneUnused(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d unused patterns\n", pruned)
			return nil
		},
	}

	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour,
		"prune patterns last used before this long ago (never-used patterns always qualify)")
	return pruneCmd
}
