// Package extract turns a video reference into accumulated
// VideoEvidence.
//
// The extractor coordinates the scraping provider, caption recovery,
// media download and frame decoding. Acquisition failures are hard
// stops; every later sub-step degrades gracefully. Missing captions
// or frames only reduce the evidence available downstream, they never
// fail the job.
package extract

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/pkg/evidence"
	"github.com/ladleworks/reelchef/pkg/scrape"
)

// Config configures an Extractor.
type Config struct {
	// MaxFrames is the frame budget handed to the sampler.
	// Default: sampler.DefaultMaxFrames.
	MaxFrames int

	// CaptionTimeout bounds one caption-track download.
	// Default: 15s.
	CaptionTimeout time.Duration

	// MediaTimeout bounds the media download.
	// Default: 30s.
	MediaTimeout time.Duration
}

// DefaultConfig returns the default extractor configuration.
func DefaultConfig() Config {
	return Config{
		MaxFrames:      20,
		CaptionTimeout: 15 * time.Second,
		MediaTimeout:   30 * time.Second,
	}
}

// Extractor builds VideoEvidence for one video reference at a time.
type Extractor struct {
	provider   scrape.Provider
	decoder    FrameDecoder
	downloader AltDownloader
	client     *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates an extractor. decoder and downloader may be nil, in which
// case the ffmpeg-based decoder and the yt-dlp alternate downloader are
// used.
func New(provider scrape.Provider, cfg Config, logger *zap.Logger) *Extractor {
	def := DefaultConfig()
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = def.MaxFrames
	}
	if cfg.CaptionTimeout <= 0 {
		cfg.CaptionTimeout = def.CaptionTimeout
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = def.MediaTimeout
	}
	return &Extractor{
		provider:   provider,
		decoder:    &FFmpegDecoder{MaxFrames: cfg.MaxFrames},
		downloader: &YTDLPDownloader{},
		client:     &http.Client{},
		cfg:        cfg,
		logger:     logger,
	}
}

// WithDecoder overrides the frame decoder. Returns the extractor for
// chaining.
func (x *Extractor) WithDecoder(d FrameDecoder) *Extractor {
	x.decoder = d
	return x
}

// WithDownloader overrides the alternate downloader.
func (x *Extractor) WithDownloader(d AltDownloader) *Extractor {
	x.downloader = d
	return x
}

// Extract runs the full acquisition sequence for a video reference.
//
// Only provider/acquisition failures return an error. Caption and
// frame recovery failures are absorbed: the returned evidence simply
// carries less signal.
func (x *Extractor) Extract(ctx context.Context, videoRef string) (*evidence.VideoEvidence, error) {
	meta, err := x.provider.Fetch(ctx, videoRef)
	if err != nil {
		return nil, err
	}
	return x.FromMetadata(ctx, meta)
}

// FromMetadata builds evidence from already-acquired video metadata.
// Caption and frame recovery failures are absorbed; the evidence simply
// carries less signal.
func (x *Extractor) FromMetadata(ctx context.Context, meta *scrape.Metadata) (*evidence.VideoEvidence, error) {
	ev := &evidence.VideoEvidence{
		Narration:    meta.Text,
		ThumbnailURL: meta.Video.CoverURL,
	}

	// Caption recovery is best-effort; absence only affects the scorer.
	if captions, ok := x.fetchCaptions(ctx, meta.CaptionLinks()); ok {
		ev.Captions = captions
	}

	ev.Frames = x.recoverFrames(ctx, meta)

	x.logger.Info("Evidence extraction completed",
		zap.Int("narration_chars", len(ev.Narration)),
		zap.Int("caption_chars", len(ev.Captions)),
		zap.Int("frames", len(ev.Frames)))

	return ev, nil
}

// recoverFrames resolves a playable media URL and decodes sampled
// frames from it, falling back to the cover image and then to the
// alternate downloader. All failures degrade to zero frames.
func (x *Extractor) recoverFrames(ctx context.Context, meta *scrape.Metadata) []evidence.Frame {
	if mediaURL := meta.MediaURL(); mediaURL != "" {
		frames, err := x.framesFromMediaURL(ctx, mediaURL)
		if err == nil && len(frames) > 0 {
			return frames
		}
		if err != nil {
			x.logger.Warn("Direct media download failed, trying fallbacks", zap.Error(err))
		}
	}

	if meta.Video.CoverURL != "" {
		if frame, err := x.frameFromImageURL(ctx, meta.Video.CoverURL); err == nil {
			x.logger.Info("Using cover image as single frame")
			return []evidence.Frame{frame}
		} else {
			x.logger.Warn("Cover image fallback failed", zap.Error(err))
		}
	}

	if meta.WebVideoURL != "" && x.downloader != nil {
		if frames, err := x.framesViaAltDownloader(ctx, meta.WebVideoURL); err == nil && len(frames) > 0 {
			return frames
		} else if err != nil {
			x.logger.Warn("Alternate downloader fallback failed", zap.Error(err))
		}
	}

	x.logger.Warn("All frame recovery paths exhausted, proceeding without frames")
	return nil
}

// framesFromMediaURL downloads the media to a scratch file and decodes
// the sampled frames from it. The scratch file is removed on every
// exit path.
func (x *Extractor) framesFromMediaURL(ctx context.Context, mediaURL string) ([]evidence.Frame, error) {
	path, cleanup, err := x.downloadMedia(ctx, mediaURL)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return x.decoder.Decode(ctx, path)
}

// framesViaAltDownloader fetches the video through the slower
// web-URL-keyed downloader, then decodes as usual.
func (x *Extractor) framesViaAltDownloader(ctx context.Context, webURL string) ([]evidence.Frame, error) {
	path, cleanup, err := x.downloader.Download(ctx, webURL)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return x.decoder.Decode(ctx, path)
}
