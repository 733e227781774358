package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ladleworks/reelchef/pkg/evidence"
	"github.com/ladleworks/reelchef/pkg/sampler"
)

// FrameDecoder extracts sampled still frames from a downloaded video
// file.
type FrameDecoder interface {
	Decode(ctx context.Context, videoPath string) ([]evidence.Frame, error)
}

// AltDownloader fetches a video through a slower, web-URL-keyed path
// when the provider exposes no direct media URL. The returned cleanup
// removes any scratch files.
type AltDownloader interface {
	Download(ctx context.Context, webURL string) (path string, cleanup func(), err error)
}

// Output geometry for encoded stills. Small and moderately compressed:
// the frames are model input, not display assets.
const (
	frameWidth  = 256
	frameHeight = 144
	// ffmpeg qscale, roughly JPEG quality 60.
	frameQuality = "7"
)

// FFmpegDecoder decodes frames by shelling out to ffprobe/ffmpeg.
type FFmpegDecoder struct {
	// MaxFrames is the sampling budget. Zero uses the sampler default.
	MaxFrames int

	// FFprobePath and FFmpegPath override the binaries looked up on
	// PATH. Empty uses "ffprobe"/"ffmpeg".
	FFprobePath string
	FFmpegPath  string
}

var _ FrameDecoder = (*FFmpegDecoder)(nil)

// Decode probes the video geometry, plans the sample indices and
// decodes each planned index to a JPEG still. Individual decode
// failures are skipped; only a failed probe is an error.
func (d *FFmpegDecoder) Decode(ctx context.Context, videoPath string) ([]evidence.Frame, error) {
	totalFrames, fps, duration, err := d.probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}

	plan := sampler.Plan(totalFrames, fps, duration, d.MaxFrames)
	if len(plan) == 0 {
		return nil, nil
	}

	frames := make([]evidence.Frame, 0, len(plan))
	for _, idx := range plan {
		jpeg, err := d.decodeFrame(ctx, videoPath, idx)
		if err != nil {
			// A corrupt GOP at one index must not sink the rest.
			continue
		}
		frames = append(frames, evidence.Frame{Index: idx, JPEG: jpeg})
	}
	return frames, nil
}

// probe reads frame count, fps and duration via ffprobe.
func (d *FFmpegDecoder) probe(ctx context.Context, videoPath string) (int, float64, time.Duration, error) {
	out, err := exec.CommandContext(ctx, d.ffprobe(),
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets,r_frame_rate,duration",
		"-of", "csv=p=0",
		videoPath,
	).Output()
	if err != nil {
		return 0, 0, 0, err
	}

	fields := strings.Split(strings.TrimSpace(string(out)), ",")
	if len(fields) < 3 {
		return 0, 0, 0, fmt.Errorf("unexpected ffprobe output %q", string(out))
	}

	fps := parseFrameRate(fields[0])
	durationSecs, _ := strconv.ParseFloat(fields[1], 64)
	totalFrames, _ := strconv.Atoi(fields[2])

	if totalFrames <= 0 && fps > 0 {
		totalFrames = int(durationSecs * fps)
	}
	return totalFrames, fps, time.Duration(durationSecs * float64(time.Second)), nil
}

// decodeFrame extracts a single frame index as a resized JPEG.
func (d *FFmpegDecoder) decodeFrame(ctx context.Context, videoPath string, index int) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpeg(),
		"-v", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf(`select=eq(n\,%d),scale=%d:%d`, index, frameWidth, frameHeight),
		"-vframes", "1",
		"-q:v", frameQuality,
		"-f", "image2",
		"pipe:1",
	)
	cmd.Stdout = &buf
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("frame %d produced no output", index)
	}
	return buf.Bytes(), nil
}

func (d *FFmpegDecoder) ffprobe() string {
	if d.FFprobePath != "" {
		return d.FFprobePath
	}
	return "ffprobe"
}

func (d *FFmpegDecoder) ffmpeg() string {
	if d.FFmpegPath != "" {
		return d.FFmpegPath
	}
	return "ffmpeg"
}

// parseFrameRate parses ffprobe's rational frame rate ("30000/1001").
func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}

// frameFromImageURL downloads a still image (cover/thumbnail) and wraps
// it as a single frame with no video index.
func (x *Extractor) frameFromImageURL(ctx context.Context, imageURL string) (evidence.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.MediaTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return evidence.Frame{}, err
	}
	req.Header.Set("User-Agent", mediaUserAgent)

	resp, err := x.client.Do(req)
	if err != nil {
		return evidence.Frame{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return evidence.Frame{}, &httpStatusError{status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return evidence.Frame{}, err
	}
	return evidence.Frame{Index: -1, JPEG: data}, nil
}

// YTDLPDownloader fetches a video with yt-dlp, the fallback for
// provider responses that expose only a public web URL.
type YTDLPDownloader struct {
	// Path overrides the binary looked up on PATH.
	Path string
}

var _ AltDownloader = (*YTDLPDownloader)(nil)

// Download runs yt-dlp into a scratch directory and returns the
// downloaded file.
func (d *YTDLPDownloader) Download(ctx context.Context, webURL string) (string, func(), error) {
	bin := d.Path
	if bin == "" {
		bin = "yt-dlp"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", nil, fmt.Errorf("yt-dlp not available: %w", err)
	}

	dir, err := os.MkdirTemp("", "reelchef-ytdlp-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	outTemplate := filepath.Join(dir, "video.%(ext)s")
	cmd := exec.CommandContext(ctx, bin,
		"--no-playlist",
		"--format", "best[height<=720]",
		"--output", outTemplate,
		webURL,
	)
	if err := cmd.Run(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("yt-dlp: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "video.*"))
	if err != nil || len(matches) == 0 {
		cleanup()
		return "", nil, fmt.Errorf("yt-dlp produced no output file")
	}
	return matches[0], cleanup, nil
}
