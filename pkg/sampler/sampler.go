// Package sampler plans which frames of a decoded video are worth
// extracting.
//
// Frame selection is duration-dependent: short videos are sampled
// densely, medium-length cooking videos are biased toward the middle
// half where state-changing action is likeliest, and long videos are
// sampled strategically with a heavy middle emphasis. The first and
// last 5% of frames are always excluded to avoid intro/outro bias.
//
// Planning is pure: the package never touches the media itself, it
// only computes frame indices for the extractor to decode.
package sampler

import (
	"math"
	"sort"
	"time"
)

// DefaultMaxFrames is the frame budget applied when the caller passes
// a non-positive cap.
const DefaultMaxFrames = 20

// Duration thresholds separating the sampling strategies.
const (
	denseCutoff   = 30 * time.Second
	cookingCutoff = 120 * time.Second
)

// Fraction of the frame range excluded at each end.
const edgeSkip = 0.05

// Plan computes the ordered frame indices to extract from a video with
// the given frame count, frame rate and duration.
//
// The result is sorted ascending, deduplicated, contains at most
// maxFrames entries, and every index lies inside the usable range
// [5%·total, 95%·total). Degenerate inputs (no frames, unusable range)
// yield nil.
func Plan(totalFrames int, fps float64, duration time.Duration, maxFrames int) []int {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	if totalFrames <= 0 || fps <= 0 || duration <= 0 {
		return nil
	}

	skip := float64(totalFrames) * edgeSkip
	// Less than one whole frame of margin on each side: the clip is
	// too short to sample without touching the excluded bands.
	if skip < 1 {
		return nil
	}
	start := int(math.Ceil(skip))
	end := int(float64(totalFrames) * (1 - edgeSkip))
	if end <= start {
		return nil
	}

	var positions []int
	switch {
	case duration <= denseCutoff:
		positions = densePositions(start, end, maxFrames)
	case duration <= cookingCutoff:
		positions = cookingFocusedPositions(start, end, maxFrames)
	default:
		positions = strategicPositions(start, end, maxFrames)
	}

	return clamp(positions, start, end, maxFrames)
}

// densePositions spaces the full budget evenly across the usable range.
func densePositions(start, end, maxFrames int) []int {
	return evenlySpaced(start, end, maxFrames)
}

// cookingFocusedPositions splits the budget 20/60/20 across the first
// quarter, middle half and last quarter of the usable range. Cooking
// videos show setup early, the main action in the middle, and plating
// at the end.
func cookingFocusedPositions(start, end, maxFrames int) []int {
	useful := end - start
	q1End := start + useful/4
	q3Start := start + 3*useful/4

	positions := evenlySpaced(start, q1End, atLeastOne(maxFrames, 0.2))
	positions = append(positions, evenlySpaced(q1End, q3Start, atLeastOne(maxFrames, 0.6))...)
	remaining := maxFrames - len(positions)
	if remaining < 1 {
		remaining = 1
	}
	positions = append(positions, evenlySpaced(q3Start, end, remaining)...)
	return positions
}

// strategicPositions splits the budget 10/80/10 across the first tenth,
// middle 80% and last tenth of the usable range.
func strategicPositions(start, end, maxFrames int) []int {
	useful := end - start
	headEnd := start + useful/10
	tailStart := start + 9*useful/10

	positions := evenlySpaced(start, headEnd, atLeastOne(maxFrames, 0.1))
	positions = append(positions, evenlySpaced(headEnd, tailStart, atLeastOne(maxFrames, 0.8))...)
	remaining := maxFrames - len(positions)
	if remaining < 1 {
		remaining = 1
	}
	positions = append(positions, evenlySpaced(tailStart, end, remaining)...)
	return positions
}

// evenlySpaced returns count indices evenly distributed over [start, end).
// A single index lands at the range midpoint. The last index is spaced
// over end-1 so it stays inside the half-open range instead of being
// clamped away.
func evenlySpaced(start, end, count int) []int {
	if count <= 0 || start >= end {
		return nil
	}
	if count == 1 {
		return []int{start + (end-start)/2}
	}

	step := float64(end-1-start) / float64(count-1)
	out := make([]int, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, start+int(float64(i)*step))
	}
	return out
}

func atLeastOne(budget int, share float64) int {
	n := int(float64(budget) * share)
	if n < 1 {
		n = 1
	}
	return n
}

// clamp sorts, deduplicates, drops out-of-range indices and enforces
// the frame budget.
func clamp(positions []int, start, end, maxFrames int) []int {
	sort.Ints(positions)

	out := make([]int, 0, len(positions))
	last := -1
	for _, p := range positions {
		if p < start || p >= end || p == last {
			continue
		}
		out = append(out, p)
		last = p
		if len(out) == maxFrames {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
