package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/internal/config"
	"github.com/ladleworks/reelchef/internal/observability"
	"github.com/ladleworks/reelchef/internal/server"
	"github.com/ladleworks/reelchef/internal/server/middleware"
	"github.com/ladleworks/reelchef/pkg/broadcast"
	"github.com/ladleworks/reelchef/pkg/jobstore"
	"github.com/ladleworks/reelchef/pkg/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the job submission API with live progress over WebSocket.

Without Redis the process also runs the pipeline workers. With
redis.enabled the pipeline runs in separate worker processes and this
process only accepts jobs and relays events.

Example:
  reelchef serve
  reelchef serve --config reelchef.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
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

	provider := newProvider(cfg, logger)
	extractor := newExtractor(provider, logger)
	engine := newEngine(cfg, logger)

	var (
		store   pipeline.Store
		bus     broadcast.Bus
		queue   pipeline.Queue
		janitor *jobstore.Memory
	)
	if cfg.Redis.Enabled {
		client := newRedisClient(cfg)
		defer func() { _ = client.Close() }()
		store = jobstore.NewRedis(client, cfg.Pipeline.Retention)
		bus = broadcast.NewRedisBus(client, broadcast.DefaultChannel, logger)
		queue = jobstore.NewRedisQueue(client, "")
	} else {
		mem := jobstore.NewMemory(cfg.Pipeline.Retention)
		store = mem
		bus = broadcast.NewMemoryBus()
		janitor = mem
	}

	coord := pipeline.New(provider, extractor, engine, saver,
		store, broadcast.NewSink(bus), pipelineConfig(cfg), logger)
	if queue != nil {
		coord.WithQueue(queue)
	}

	inlineWorkers := !cfg.Redis.Enabled
	if inlineWorkers {
		go func() { _ = coord.Run(ctx) }()
	}
	if janitor != nil {
		go janitor.Run(ctx)
	}

	registry := broadcast.NewRegistry(store, logger)
	stopFanout := registry.Start(ctx, bus)
	defer stopFanout()

	srv := server.New(server.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Version:         versionInfo.Version,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Jobs:            coord,
		Registry:        registry,
		Verifier:        middleware.NewHMACVerifier(cfg.Auth.TokenSecret),
		Logger:          logger,
	})

	logger.Info("Starting reelchef API",
		zap.String("addr", srv.Addr()),
		zap.Bool("inline_workers", inlineWorkers))
	return srv.Start(ctx)
}
