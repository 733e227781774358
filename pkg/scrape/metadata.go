// Package scrape talks to the external scraping provider and exposes
// the raw video metadata as a typed record.
//
// The provider's response is validated once at this boundary; the rest
// of the pipeline works with named optional fields instead of probing
// ad hoc dictionaries.
package scrape

import "strings"

// CaptionLink is one downloadable caption track.
type CaptionLink struct {
	DownloadLink string `json:"downloadLink"`
	Language     string `json:"language,omitempty"`
}

// VideoMeta carries the per-video technical fields the provider nests
// under its own videoMeta object.
type VideoMeta struct {
	DownloadAddr string        `json:"downloadAddr,omitempty"`
	PlayAddr     string        `json:"playAddr,omitempty"`
	CoverURL     string        `json:"coverUrl,omitempty"`
	DurationSecs float64       `json:"duration,omitempty"`
	SubtitleLinks []CaptionLink `json:"subtitleLinks,omitempty"`
}

// Metadata is the provider's record for a single scraped video.
//
// Err is set when the provider could scrape nothing; the string is the
// provider's own diagnosis (e.g. "not found or is private").
type Metadata struct {
	Err         string    `json:"error,omitempty"`
	Text        string    `json:"text,omitempty"`
	MediaURLs   []string  `json:"mediaUrls,omitempty"`
	Video       VideoMeta `json:"videoMeta,omitempty"`
	WebVideoURL string    `json:"webVideoUrl,omitempty"`
}

// MediaURL resolves a playable media URL from the metadata, checking
// the known fields in fixed priority order. Returns "" when no direct
// media URL exists.
func (m *Metadata) MediaURL() string {
	if len(m.MediaURLs) > 0 && m.MediaURLs[0] != "" {
		return m.MediaURLs[0]
	}
	if m.Video.DownloadAddr != "" {
		return m.Video.DownloadAddr
	}
	if m.Video.PlayAddr != "" {
		return m.Video.PlayAddr
	}
	return ""
}

// CaptionLinks returns the caption tracks in provider order, dropping
// entries without a download link.
func (m *Metadata) CaptionLinks() []CaptionLink {
	out := make([]CaptionLink, 0, len(m.Video.SubtitleLinks))
	for _, link := range m.Video.SubtitleLinks {
		if strings.TrimSpace(link.DownloadLink) != "" {
			out = append(out, link)
		}
	}
	return out
}

// Validate classifies a provider-reported error into the package's
// error taxonomy. A metadata record with no Err field is valid.
func (m *Metadata) Validate() error {
	if m.Err == "" {
		return nil
	}
	if strings.Contains(strings.ToLower(m.Err), "not found or is private") {
		return &ScrapeError{Op: "Validate", Err: ErrSourceInaccessible, Detail: m.Err}
	}
	return &ScrapeError{Op: "Validate", Err: ErrScrapeFailed, Detail: m.Err}
}
