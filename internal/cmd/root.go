// Package cmd wires the reelchef command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ladleworks/reelchef/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "reelchef",
	Short: "Reconstruct structured recipes from short cooking videos",
	Long: `reelchef turns short-form cooking videos into structured recipes.

It acquires video metadata through a scraping provider, recovers
textual and visual evidence, and asks a multimodal model to produce a
recipe with a title, ingredients and steps.

Run "reelchef serve" for the HTTP API or "reelchef extract" for a
one-shot extraction from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return observability.InitCLILogger(rootVerbose)
	},
}

var (
	rootConfigPath string
	rootVerbose    bool
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context
// so long-running commands shut down cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
