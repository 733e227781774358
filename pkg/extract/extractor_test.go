package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/pkg/evidence"
	"github.com/ladleworks/reelchef/pkg/scrape"
)

// fakeProvider returns canned metadata.
type fakeProvider struct {
	meta *scrape.Metadata
	err  error
}

func (f *fakeProvider) Fetch(ctx context.Context, videoRef string) (*scrape.Metadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

// fakeDecoder returns canned frames without touching ffmpeg.
type fakeDecoder struct {
	frames []evidence.Frame
	err    error
	calls  int
}

func (f *fakeDecoder) Decode(ctx context.Context, videoPath string) ([]evidence.Frame, error) {
	f.calls++
	if _, statErr := os.Stat(videoPath); statErr != nil {
		return nil, statErr
	}
	return f.frames, f.err
}

// fakeDownloader simulates the yt-dlp path with a plain temp file.
type fakeDownloader struct {
	err   error
	calls int
}

func (f *fakeDownloader) Download(ctx context.Context, webURL string) (string, func(), error) {
	f.calls++
	if f.err != nil {
		return "", nil, f.err
	}
	tmp, err := os.CreateTemp("", "fake-dl-*")
	if err != nil {
		return "", nil, err
	}
	_ = tmp.Close()
	return tmp.Name(), func() { _ = os.Remove(tmp.Name()) }, nil
}

func newTestExtractor(t *testing.T, p scrape.Provider) *Extractor {
	t.Helper()
	return New(p, DefaultConfig(), zap.NewNop())
}

func TestExtract_FullSignal(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/video.mp4":
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("fake mp4 bytes"))
		case "/captions.vtt":
			_, _ = w.Write([]byte("WEBVTT\nchop the onions finely"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer media.Close()

	provider := &fakeProvider{meta: &scrape.Metadata{
		Text: "grandma's soup",
		Video: scrape.VideoMeta{
			DownloadAddr:  media.URL + "/video.mp4",
			CoverURL:      media.URL + "/cover.jpg",
			SubtitleLinks: []scrape.CaptionLink{{DownloadLink: media.URL + "/captions.vtt", Language: "en"}},
		},
	}}

	decoder := &fakeDecoder{frames: []evidence.Frame{{Index: 50, JPEG: []byte{0xff}}}}
	x := newTestExtractor(t, provider).WithDecoder(decoder)

	ev, err := x.Extract(context.Background(), "ref")
	require.NoError(t, err)
	assert.Equal(t, "grandma's soup", ev.Narration)
	assert.Contains(t, ev.Captions, "chop the onions")
	require.Len(t, ev.Frames, 1)
	assert.Equal(t, 50, ev.Frames[0].Index)
	assert.Equal(t, 1, decoder.calls)
}

func TestExtract_AcquisitionFailurePropagates(t *testing.T) {
	provider := &fakeProvider{err: &scrape.ScrapeError{
		Op:  "Fetch",
		Err: scrape.ErrSourceInaccessible,
	}}
	x := newTestExtractor(t, provider)

	_, err := x.Extract(context.Background(), "ref")
	require.Error(t, err)
	assert.True(t, scrape.IsSourceInaccessible(err))
}

func TestExtract_CaptionExhaustionIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	provider := &fakeProvider{meta: &scrape.Metadata{
		Text: "some narration",
		Video: scrape.VideoMeta{
			SubtitleLinks: []scrape.CaptionLink{
				{DownloadLink: srv.URL + "/a.vtt"},
				{DownloadLink: srv.URL + "/b.vtt"},
			},
		},
	}}

	x := newTestExtractor(t, provider).WithDecoder(&fakeDecoder{})
	ev, err := x.Extract(context.Background(), "ref")
	require.NoError(t, err)
	assert.Empty(t, ev.Captions)
	assert.Equal(t, "some narration", ev.Narration)
}

func TestExtract_CaptionFallbackToSecondLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.vtt" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("second track"))
	}))
	defer srv.Close()

	provider := &fakeProvider{meta: &scrape.Metadata{
		Video: scrape.VideoMeta{
			SubtitleLinks: []scrape.CaptionLink{
				{DownloadLink: srv.URL + "/bad.vtt"},
				{DownloadLink: srv.URL + "/good.vtt"},
			},
		},
	}}

	x := newTestExtractor(t, provider).WithDecoder(&fakeDecoder{})
	ev, err := x.Extract(context.Background(), "ref")
	require.NoError(t, err)
	assert.Equal(t, "second track", ev.Captions)
}

func TestExtract_CoverImageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cover.jpg" {
			_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	// No media URL at all: the extractor should fall back to the cover.
	provider := &fakeProvider{meta: &scrape.Metadata{
		Video: scrape.VideoMeta{CoverURL: srv.URL + "/cover.jpg"},
	}}

	x := newTestExtractor(t, provider).WithDecoder(&fakeDecoder{})
	ev, err := x.Extract(context.Background(), "ref")
	require.NoError(t, err)
	require.Len(t, ev.Frames, 1)
	assert.Equal(t, -1, ev.Frames[0].Index)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, ev.Frames[0].JPEG)
}

func TestExtract_AltDownloaderFallback(t *testing.T) {
	provider := &fakeProvider{meta: &scrape.Metadata{
		WebVideoURL: "https://web.example/watch/123",
	}}

	decoder := &fakeDecoder{frames: []evidence.Frame{{Index: 10, JPEG: []byte{1}}}}
	dl := &fakeDownloader{}
	x := newTestExtractor(t, provider).WithDecoder(decoder).WithDownloader(dl)

	ev, err := x.Extract(context.Background(), "ref")
	require.NoError(t, err)
	assert.Equal(t, 1, dl.calls)
	require.Len(t, ev.Frames, 1)
}

func TestExtract_ZeroFramesDegradation(t *testing.T) {
	provider := &fakeProvider{meta: &scrape.Metadata{
		Text:        "text only post",
		WebVideoURL: "https://web.example/watch/123",
	}}

	dl := &fakeDownloader{err: errors.New("yt-dlp not available")}
	x := newTestExtractor(t, provider).WithDecoder(&fakeDecoder{}).WithDownloader(dl)

	ev, err := x.Extract(context.Background(), "ref")
	require.NoError(t, err)
	assert.Empty(t, ev.Frames)
	assert.Equal(t, "text only post", ev.Narration)
}

func TestDownloadMedia_CleanupIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	x := newTestExtractor(t, &fakeProvider{})
	path, cleanup, err := x.downloadMedia(context.Background(), srv.URL+"/v.mp4")
	require.NoError(t, err)
	require.FileExists(t, path)

	cleanup()
	assert.NoFileExists(t, path)

	// Second and third invocations on the already-removed file must not
	// panic or error.
	cleanup()
	cleanup()
}

func TestDownloadMedia_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MediaTimeout = 20 * time.Millisecond
	x := New(&fakeProvider{}, cfg, zap.NewNop())

	_, _, err := x.downloadMedia(context.Background(), srv.URL+"/v.mp4")
	require.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997002997},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseFrameRate(tt.in), 0.0001, "input %q", tt.in)
	}
}
