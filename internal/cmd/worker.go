package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/internal/config"
	"github.com/ladleworks/reelchef/internal/observability"
	"github.com/ladleworks/reelchef/pkg/broadcast"
	"github.com/ladleworks/reelchef/pkg/jobstore"
	"github.com/ladleworks/reelchef/pkg/pipeline"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run pipeline workers",
	Long: `Run pipeline workers processing jobs submitted through the API.

Requires redis.enabled so the queue, job store and event stream are
shared with the serve process.

Example:
  reelchef worker --config reelchef.yaml`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Redis.Enabled {
		return errors.New("worker mode requires redis.enabled")
	}

	logger, err := observability.NewServiceLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	saver, closeSaver, err := newSaver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSaver()

	client := newRedisClient(cfg)
	defer func() { _ = client.Close() }()

	provider := newProvider(cfg, logger)
	extractor := newExtractor(provider, logger)
	engine := newEngine(cfg, logger)
	store := jobstore.NewRedis(client, cfg.Pipeline.Retention)
	bus := broadcast.NewRedisBus(client, broadcast.DefaultChannel, logger)

	coord := pipeline.New(provider, extractor, engine, saver,
		store, broadcast.NewSink(bus), pipelineConfig(cfg), logger).
		WithQueue(jobstore.NewRedisQueue(client, ""))

	logger.Info("Starting pipeline workers",
		zap.Int("workers", cfg.Pipeline.Workers),
		zap.String("redis", cfg.Redis.Addr))

	err = coord.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
