// Package evidence holds the signal recovered for one job and the
// quality heuristic that decides how much visual evidence to spend
// compute on.
package evidence

import "strings"

// Frame is a single sampled still image, JPEG-encoded.
type Frame struct {
	// Index is the frame index within the source video, or -1 when the
	// frame came from a non-video source (cover image fallback).
	Index int

	// JPEG is the encoded image bytes.
	JPEG []byte
}

// VideoEvidence is the accumulated signal for one job. It is built
// incrementally by the extractor, read by the scorer and the
// reconstruction engine, and discarded when the job reaches a terminal
// state.
type VideoEvidence struct {
	// Narration is the post/description text recovered from the
	// provider metadata. Optional.
	Narration string

	// Captions is the recovered subtitle text. Optional.
	Captions string

	// Frames are the sampled stills in temporal order.
	Frames []Frame

	// ThumbnailURL points at the source cover image, when one exists.
	ThumbnailURL string
}

// CombinedText merges caption and narration text into the single input
// the scorer and prompts operate on. Captions come first; narration is
// skipped when it duplicates the captions.
func (e *VideoEvidence) CombinedText() string {
	var b strings.Builder
	if e.Captions != "" {
		b.WriteString("SUBTITLES: ")
		b.WriteString(e.Captions)
		b.WriteString("\n\n")
	}
	if e.Narration != "" && e.Narration != e.Captions {
		b.WriteString("TEXT: ")
		b.WriteString(e.Narration)
		b.WriteString("\n\n")
	}
	return b.String()
}

// HasText reports whether any textual signal was recovered.
func (e *VideoEvidence) HasText() bool {
	return strings.TrimSpace(e.Captions) != "" || strings.TrimSpace(e.Narration) != ""
}
