// Package commands implements the spaco CLI.
package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spaco",
		Short: "SPACO precompiled synthesis pattern tooling",
		Long: `spaco manages the precompiled SuperCollider pattern database used by
the SPACO natural-language synthesis bridge: schema setup, built-in
template seeding, inspection, and maintenance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewDBCommand())
	rootCmd.AddCommand(NewPatternsCommand())

	return rootCmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			title := color.New(color.FgCyan, color.Bold)
			title.Print("spaco version: ")
			cmd.Println(Version)
			title.Print("Git commit: ")
			cmd.Println(GitCommit)
			title.Print("Build date: ")
			cmd.Println(BuildDate)
			title.Print("Go version: ")
			cmd.Println(runtime.Version())
		},
	}
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
