package scrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetadata_MediaURL(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
		want string
	}{
		{
			name: "mediaUrls wins",
			meta: Metadata{
				MediaURLs: []string{"https://cdn.example/a.mp4"},
				Video:     VideoMeta{DownloadAddr: "https://cdn.example/b.mp4"},
			},
			want: "https://cdn.example/a.mp4",
		},
		{
			name: "downloadAddr before playAddr",
			meta: Metadata{
				Video: VideoMeta{
					DownloadAddr: "https://cdn.example/dl.mp4",
					PlayAddr:     "https://cdn.example/play.mp4",
				},
			},
			want: "https://cdn.example/dl.mp4",
		},
		{
			name: "playAddr as last resort",
			meta: Metadata{Video: VideoMeta{PlayAddr: "https://cdn.example/play.mp4"}},
			want: "https://cdn.example/play.mp4",
		},
		{
			name: "nothing resolvable",
			meta: Metadata{},
			want: "",
		},
		{
			name: "empty first mediaUrl falls through",
			meta: Metadata{
				MediaURLs: []string{""},
				Video:     VideoMeta{PlayAddr: "https://cdn.example/play.mp4"},
			},
			want: "https://cdn.example/play.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.meta.MediaURL())
		})
	}
}

func TestMetadata_Validate(t *testing.T) {
	t.Run("clean record", func(t *testing.T) {
		meta := Metadata{Text: "hello"}
		assert.NoError(t, meta.Validate())
	})

	t.Run("private video is non-transient", func(t *testing.T) {
		meta := Metadata{Err: "Video not found or is private."}
		err := meta.Validate()
		require.Error(t, err)
		assert.True(t, IsSourceInaccessible(err))
		assert.False(t, IsTransient(err))
	})

	t.Run("other provider error is transient", func(t *testing.T) {
		meta := Metadata{Err: "scraper crashed"}
		err := meta.Validate()
		require.Error(t, err)
		assert.False(t, IsSourceInaccessible(err))
		assert.True(t, IsTransient(err))
	})
}

func TestMetadata_CaptionLinks(t *testing.T) {
	meta := Metadata{Video: VideoMeta{SubtitleLinks: []CaptionLink{
		{DownloadLink: "https://subs.example/en.vtt", Language: "en"},
		{DownloadLink: "   "},
		{DownloadLink: "https://subs.example/de.vtt", Language: "de"},
	}}}

	links := meta.CaptionLinks()
	require.Len(t, links, 2)
	assert.Equal(t, "en", links[0].Language)
	assert.Equal(t, "de", links[1].Language)
}

func TestHTTPProvider_Fetch(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Contains(t, r.URL.Path, "/v2/acts/test-actor/run-sync-get-dataset-items")
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var input runInput
			require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
			assert.Equal(t, []string{"https://video.example/123"}, input.PostURLs)

			_ = json.NewEncoder(w).Encode([]Metadata{{
				Text:      "cook the thing",
				MediaURLs: []string{"https://cdn.example/v.mp4"},
			}})
		}))
		defer srv.Close()

		p := NewHTTPProvider(Config{BaseURL: srv.URL, Token: "secret", ActorID: "test-actor"}, zap.NewNop())
		meta, err := p.Fetch(context.Background(), "https://video.example/123")
		require.NoError(t, err)
		assert.Equal(t, "cook the thing", meta.Text)
		assert.Equal(t, "https://cdn.example/v.mp4", meta.MediaURL())
	})

	t.Run("provider-reported inaccessible source", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([]Metadata{{Err: "not found or is private"}})
		}))
		defer srv.Close()

		p := NewHTTPProvider(Config{BaseURL: srv.URL, ActorID: "a"}, zap.NewNop())
		_, err := p.Fetch(context.Background(), "ref")
		require.Error(t, err)
		assert.True(t, IsSourceInaccessible(err))
	})

	t.Run("unauthorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		p := NewHTTPProvider(Config{BaseURL: srv.URL, ActorID: "a"}, zap.NewNop())
		_, err := p.Fetch(context.Background(), "ref")
		require.Error(t, err)
		assert.True(t, IsUnauthorized(err))
		assert.False(t, IsTransient(err))
	})

	t.Run("server error is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		p := NewHTTPProvider(Config{BaseURL: srv.URL, ActorID: "a"}, zap.NewNop())
		_, err := p.Fetch(context.Background(), "ref")
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("empty dataset", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("[]"))
		}))
		defer srv.Close()

		p := NewHTTPProvider(Config{BaseURL: srv.URL, ActorID: "a"}, zap.NewNop())
		_, err := p.Fetch(context.Background(), "ref")
		require.Error(t, err)
	})
}
