package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Provider fetches raw metadata for a video reference.
type Provider interface {
	Fetch(ctx context.Context, videoRef string) (*Metadata, error)
}

// Config configures the HTTP scraping provider.
type Config struct {
	// BaseURL is the provider API root.
	BaseURL string

	// Token authenticates against the provider.
	Token string

	// ActorID selects the provider-side scraper to run.
	ActorID string

	// Timeout bounds one scrape call end to end.
	// Default: 120s (the provider runs a headless scrape on its side).
	Timeout time.Duration

	// RateLimit is the maximum scrape requests per second.
	// Zero means unlimited.
	RateLimit float64
}

// DefaultTimeout bounds a synchronous scrape run.
const DefaultTimeout = 120 * time.Second

// runInput is the request body for a synchronous scrape run.
type runInput struct {
	PostURLs                 []string `json:"postURLs"`
	ResultsPerPage           int      `json:"resultsPerPage"`
	ShouldDownloadVideos     bool     `json:"shouldDownloadVideos"`
	ShouldDownloadSubtitles  bool     `json:"shouldDownloadSubtitles"`
	ShouldDownloadCovers     bool     `json:"shouldDownloadCovers"`
	ScrapeRelatedVideos      bool     `json:"scrapeRelatedVideos"`
	MaxRequestRetries        int      `json:"maxRequestRetries"`
	RequestTimeoutSecs       int      `json:"requestTimeoutSecs"`
	MaxConcurrency           int      `json:"maxConcurrency"`
}

// HTTPProvider talks to an Apify-style actor API: one synchronous run
// per video reference, returning the dataset items inline.
type HTTPProvider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider client.
func NewHTTPProvider(cfg Config, logger *zap.Logger) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	p := &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return p
}

// Fetch runs the provider-side scraper for one video reference and
// returns the first dataset item as a validated Metadata record.
func (p *HTTPProvider) Fetch(ctx context.Context, videoRef string) (*Metadata, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: err}
		}
	}

	input := runInput{
		PostURLs:                []string{videoRef},
		ResultsPerPage:          1,
		ShouldDownloadVideos:    true,
		ShouldDownloadSubtitles: true,
		MaxRequestRetries:       5,
		RequestTimeoutSecs:      int(p.cfg.Timeout / time.Second),
		MaxConcurrency:          1,
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: err}
	}

	url := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items", p.cfg.BaseURL, p.cfg.ActorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: fmt.Errorf("%w: %v", ErrProviderUnavailable, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	p.logger.Debug("Provider scrape call completed",
		zap.String("video_ref", videoRef),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: ErrUnauthorized}
	case resp.StatusCode >= 500:
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: ErrProviderUnavailable,
			Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: ErrScrapeFailed,
			Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: err}
	}

	var items []Metadata
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: ErrScrapeFailed,
			Detail: fmt.Sprintf("malformed dataset response: %v", err)}
	}
	if len(items) == 0 {
		return nil, &ScrapeError{Op: "Fetch", VideoRef: videoRef, Err: ErrScrapeFailed,
			Detail: "empty dataset"}
	}

	meta := items[0]
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}
