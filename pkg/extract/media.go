package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Browser-ish user agent; some CDNs refuse requests without one.
const mediaUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.status)
}

// downloadMedia streams the media URL into a scratch file. The returned
// cleanup removes the scratch file and is safe to call more than once,
// including after the file is already gone.
func (x *Extractor) downloadMedia(ctx context.Context, mediaURL string) (string, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.MediaTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", mediaUserAgent)

	resp, err := x.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", nil, &httpStatusError{status: resp.StatusCode}
	}

	tmp, err := os.CreateTemp("", "reelchef-media-*.mp4")
	if err != nil {
		return "", nil, err
	}
	path := tmp.Name()
	cleanup := func() { removeScratch(path) }

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}

	x.logger.Info("Media downloaded to scratch file",
		zap.String("path", path),
		zap.Int64("bytes", n))

	return path, cleanup, nil
}

// removeScratch deletes a scratch file, tolerating repeated calls and
// already-removed files.
func removeScratch(path string) {
	if path == "" {
		return
	}
	// A missing file means an earlier cleanup already ran.
	_ = os.Remove(path)
}
