package extract

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/pkg/scrape"
)

// fetchCaptions tries each caption link in provider order and returns
// the first track that downloads successfully within the caption
// timeout. Exhausting all links is not an error; the boolean result is
// false and the scorer simply sees less text.
func (x *Extractor) fetchCaptions(ctx context.Context, links []scrape.CaptionLink) (string, bool) {
	if len(links) == 0 {
		x.logger.Debug("No caption links in metadata")
		return "", false
	}

	for _, link := range links {
		text, err := x.fetchCaptionTrack(ctx, link.DownloadLink)
		if err != nil {
			x.logger.Warn("Caption track download failed",
				zap.String("language", link.Language),
				zap.Error(err))
			continue
		}
		x.logger.Info("Caption track recovered",
			zap.String("language", link.Language),
			zap.Int("chars", len(text)))
		return text, true
	}

	x.logger.Warn("All caption links exhausted")
	return "", false
}

func (x *Extractor) fetchCaptionTrack(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.CaptionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
