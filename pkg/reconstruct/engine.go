// Package reconstruct turns extracted video evidence into a structured
// recipe through a single multimodal model call, with layered recovery
// when the model misbehaves.
package reconstruct

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/pkg/evidence"
	"github.com/ladleworks/reelchef/pkg/recipe"
)

// ErrModelTransport marks a failed round trip to the model provider.
// Callers treat it as transient.
var ErrModelTransport = errors.New("model transport failure")

// ChatCompleter is the slice of the model client the engine needs.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds the tunables for one engine instance.
type Config struct {
	// Model is the chat model identifier.
	Model string

	// MaxTokens bounds the completion length.
	MaxTokens int

	// Temperature for the completion. Low keeps the JSON stable.
	Temperature float32
}

// DefaultConfig returns the settings used in production.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4o,
		MaxTokens:   1500,
		Temperature: 0.2,
	}
}

// Engine reconstructs recipes from evidence. Construct with New.
type Engine struct {
	client ChatCompleter
	cfg    Config
	logger *zap.Logger
}

// New returns an Engine backed by the given model client.
func New(client ChatCompleter, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Engine{client: client, cfg: cfg, logger: logger}
}

// Result carries the reconstructed recipe plus how it was obtained.
type Result struct {
	Recipe   *recipe.Recipe
	Strategy evidence.Strategy
	Score    int
}

// Reconstruct scores the evidence once, selects a processing strategy
// and runs one model call. A failed round trip gets a single text-only
// retry when any text exists. Parse-level problems and empty evidence
// never surface as errors; the result degrades to a placeholder recipe
// instead.
func (e *Engine) Reconstruct(ctx context.Context, ev *evidence.VideoEvidence, lang string) (*Result, error) {
	score := evidence.Score(ev.CombinedText())
	strategy := evidence.ChooseStrategy(score)
	frames := evidence.FramesFor(strategy, ev.Frames)
	if len(ev.Frames) == 0 && !ev.HasText() {
		// Extraction recovered nothing. Still not a failure: the job
		// completes carrying the placeholder.
		e.logger.Warn("no usable evidence recovered, returning placeholder")
		return &Result{
			Recipe:   recipe.Placeholder("No usable evidence could be recovered from the video. Please try again with a different video."),
			Strategy: strategy,
			Score:    score,
		}, nil
	}

	e.logger.Info("reconstruction strategy selected",
		zap.Int("score", score),
		zap.String("strategy", string(strategy)),
		zap.Int("frames", len(frames)))

	raw, err := e.complete(ctx, ev, frames, lang)
	if err != nil {
		if len(frames) == 0 || !ev.HasText() {
			return nil, fmt.Errorf("reconstruct: %w: %v", ErrModelTransport, err)
		}
		// Drop the images and try once more on text alone.
		e.logger.Warn("model call failed, retrying text-only", zap.Error(err))
		raw, err = e.complete(ctx, ev, nil, lang)
		if err != nil {
			return nil, fmt.Errorf("reconstruct: %w: %v", ErrModelTransport, err)
		}
		strategy = evidence.StrategyTextOnly
	}

	rec, ok := ParseRecipe(raw)
	if !ok {
		e.logger.Warn("completion did not contain a parseable recipe",
			zap.Int("completion_len", len(raw)))
		rec = recipe.Placeholder("The video could not be converted into a structured recipe. Please try again with a different video.")
	}
	return &Result{Recipe: rec, Strategy: strategy, Score: score}, nil
}

func (e *Engine) complete(ctx context.Context, ev *evidence.VideoEvidence, frames []evidence.Frame, lang string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Messages:    buildMessages(ev, frames, lang),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// IsModelTransport reports whether err came from a failed model round
// trip rather than a content problem.
func IsModelTransport(err error) bool {
	return errors.Is(err, ErrModelTransport)
}
