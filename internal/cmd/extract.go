package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/internal/config"
	"github.com/ladleworks/reelchef/internal/observability"
	"github.com/ladleworks/reelchef/pkg/evidence"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract evidence from a single video",
	Long: `Fetch one video reference and print the recovered evidence.

Useful for checking provider credentials and judging how much signal a
given video yields before submitting it as a job.

Example:
  reelchef extract --url https://www.tiktok.com/@cook/video/123
  reelchef extract --url https://www.tiktok.com/@cook/video/123 --text`,
	RunE: runExtract,
}

var (
	extractURL      string
	extractShowText bool
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractURL, "url", "u", "", "Video reference to extract (required)")
	extractCmd.Flags().BoolVar(&extractShowText, "text", false, "Print the recovered text")

	_ = extractCmd.MarkFlagRequired("url")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return err
	}
	if cfg.Scrape.Token == "" || cfg.Scrape.ActorID == "" {
		return errors.New("scrape.token and scrape.actor_id must be configured")
	}

	provider := newProvider(cfg, observability.CLILogger)
	extractor := newExtractor(provider, observability.CLILogger)

	observability.CLILogger.Info("Fetching video", zap.String("url", extractURL))
	ev, err := extractor.Extract(ctx, extractURL)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	combined := ev.CombinedText()
	score := evidence.Score(combined)
	strategy := evidence.ChooseStrategy(score)

	fmt.Println("=== Evidence ===")
	fmt.Println()
	fmt.Printf("Narration:  %d chars\n", len(ev.Narration))
	fmt.Printf("Captions:   %d chars\n", len(ev.Captions))
	fmt.Printf("Frames:     %d\n", len(ev.Frames))
	if ev.ThumbnailURL != "" {
		fmt.Printf("Thumbnail:  %s\n", ev.ThumbnailURL)
	}
	fmt.Println()
	fmt.Printf("Score:      %d\n", score)
	fmt.Printf("Strategy:   %s\n", strategy)

	if extractShowText && combined != "" {
		fmt.Println()
		fmt.Println("--- Recovered text ---")
		fmt.Println(strings.TrimSpace(combined))
	}
	return nil
}
