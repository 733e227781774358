package cmd

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/internal/config"
	"github.com/ladleworks/reelchef/pkg/extract"
	"github.com/ladleworks/reelchef/pkg/persist"
	"github.com/ladleworks/reelchef/pkg/pipeline"
	"github.com/ladleworks/reelchef/pkg/reconstruct"
	"github.com/ladleworks/reelchef/pkg/scrape"
)

func newProvider(cfg *config.Config, logger *zap.Logger) *scrape.HTTPProvider {
	return scrape.NewHTTPProvider(scrape.Config{
		BaseURL:   cfg.Scrape.BaseURL,
		Token:     cfg.Scrape.Token,
		ActorID:   cfg.Scrape.ActorID,
		Timeout:   cfg.Scrape.Timeout,
		RateLimit: cfg.Scrape.RateLimit,
	}, logger)
}

func newExtractor(provider scrape.Provider, logger *zap.Logger) *extract.Extractor {
	return extract.New(provider, extract.Config{}, logger)
}

func newEngine(cfg *config.Config, logger *zap.Logger) *reconstruct.Engine {
	clientCfg := openai.DefaultConfig(cfg.Model.APIKey)
	if cfg.Model.BaseURL != "" {
		clientCfg.BaseURL = cfg.Model.BaseURL
	}
	return reconstruct.New(openai.NewClientWithConfig(clientCfg), reconstruct.Config{
		Model:       cfg.Model.Name,
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: float32(cfg.Model.Temperature),
	}, logger)
}

// newSaver builds the recipe persistence stack. An empty database URL
// disables persistence; jobs then complete flagged as unstored.
func newSaver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pipeline.RecipeSaver, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("No database configured, recipes will not be stored")
		return nil, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	var thumbs *persist.ThumbnailStore
	if cfg.Storage.Bucket != "" {
		thumbs, err = persist.NewThumbnailStore(ctx, persist.S3Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("configure thumbnail storage: %w", err)
		}
	}

	return persist.NewRecipeStore(pool, thumbs, logger), pool.Close, nil
}

func newRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		Workers:     cfg.Pipeline.Workers,
		QueueSize:   cfg.Pipeline.QueueSize,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BackoffBase: cfg.Pipeline.BackoffBase,
		HardTimeout: cfg.Pipeline.HardTimeout,
		SoftTimeout: cfg.Pipeline.SoftTimeout,
	}
}
