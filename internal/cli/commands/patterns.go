package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spaco-sound/spaco/internal/cli/ui"
	"github.com/spaco-sound/spaco/pattern/catalog"
)

// NewPatternsCommand creates the patterns command group.
func NewPatternsCommand() *cobra.Command {
	patternsCmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect and seed precompiled patterns",
	}

	patternsCmd.AddCommand(newPatternsListCommand())
	patternsCmd.AddCommand(newPatternsSeedCommand())

	return patternsCmd
}

func newPatternsListCommand() *cobra.Command {
	var (
		patternType string
		limit       int
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored patterns of a type, most recently used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			defer m.Close()

			patterns, err := m.GetBatch(cmd.Context(), patternType, limit)
			if err != nil {
				return err
			}
			if len(patterns) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No %q patterns stored\n", patternType)
				return nil
			}

			table := ui.NewTable(cmd.OutOrStdout(), "NAME", "PATTERN ID", "LAST USED")
			for _, p := range patterns {
				lastUsed := "never"
				if p.LastUsedAt != nil {
					lastUsed = p.LastUsedAt.Format("2006-01-02 15:04:05")
				}
				table.AddRow(p.Name, p.ID, lastUsed)
			}
			table.Render()
			return nil
		},
	}

	listCmd.Flags().StringVar(&patternType, "type", "synth_def", "pattern type to list")
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of patterns")
	return listCmd
}

func newPatternsSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Compile and store the built-in template catalog",
		Long: `Compile the built-in waveform, effect, and percussion templates and
store them. Seeding is idempotent: existing patterns keep their ids.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			defer m.Close()

			n, err := catalog.Register(cmd.Context(), m)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Seeded %d built-in patterns\n", n)
			return nil
		},
	}
}
