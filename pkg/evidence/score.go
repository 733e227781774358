package evidence

import (
	"regexp"
	"strings"
)

// Strategy is the evidence-selection policy chosen once per job from
// the quality score. It is never re-evaluated mid-job.
type Strategy string

const (
	// StrategyTextOnly skips all visual evidence; the recovered text is
	// self-sufficient.
	StrategyTextOnly Strategy = "text_only"

	// StrategyReducedFrames uses the text plus a small frame subset for
	// verification.
	StrategyReducedFrames Strategy = "reduced_frames"

	// StrategyFullFrames uses the sampler's full output; the text alone
	// is not enough to reconstruct from.
	StrategyFullFrames Strategy = "full_frames"
)

// ReducedFrameCap is the frame budget under StrategyReducedFrames.
const ReducedFrameCap = 5

// minScorableLength is the minimum text length worth scoring at all.
// Anything shorter scores 0 and forces full-frame processing.
const minScorableLength = 50

// Per-category score caps. The categories are additive and cap
// independently; the total caps at 100.
const (
	lengthCapLong    = 25
	lengthCapShort   = 15
	keywordCap       = 30
	keywordPoints    = 5
	actionCap        = 20
	actionPoints     = 3
	quantityCap      = 25
	quantityPoints   = 4
	coherenceStrong  = 10
	coherenceWeak    = 5
	coherenceStrongAvg = 5
	coherenceWeakAvg   = 3
)

// Cooking-domain vocabulary, German and English, matched
// case-insensitively as substrings the way recipe narration actually
// uses them.
var domainKeywords = []string{
	"zutaten", "rezept", "kochen", "backen", "mischen", "rühren", "teig",
	"ofen", "pfanne", "topf", "minuten", "grad", "salz", "pfeffer",
	"zwiebel", "knoblauch", "öl", "butter", "mehl", "zucker", "ei",
	"ingredients", "recipe", "cooking", "baking", "mix", "stir", "dough",
	"oven", "pan", "pot", "minutes", "degrees", "salt", "pepper",
	"onion", "garlic", "oil", "flour", "sugar", "egg",
}

var actionKeywords = []string{
	"hinzufügen", "vermischen", "erhitzen", "braten", "dünsten", "würzen",
	"add", "mix", "heat", "fry", "sauté", "season", "bake", "boil",
}

var quantityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+\s*(gramm?|g\b)`),
	regexp.MustCompile(`(?i)\d+\s*(ml|liter)`),
	regexp.MustCompile(`(?i)\d+\s*(tasse|cup)`),
	regexp.MustCompile(`(?i)\d+\s*(löffel|spoon)`),
	regexp.MustCompile(`(?i)\d+\s*(stück|piece)`),
	regexp.MustCompile(`(?i)\d+\s*minuten?`),
	regexp.MustCompile(`(?i)\d+\s*grad`),
	regexp.MustCompile(`(?i)prise`),
	regexp.MustCompile(`(?i)pinch`),
	regexp.MustCompile(`(?i)handful`),
	regexp.MustCompile(`(?i)etwas`),
	regexp.MustCompile(`(?i)\bsome\b`),
}

// Score rates caption/narration text for how self-sufficient it is as
// recipe evidence, on a 0-100 scale. Higher scores mean the later
// pipeline steps can skip visual evidence.
//
// Scoring is additive across five independently-capped categories:
// text length, cooking-keyword density, action-verb density, quantity
// patterns, and sentence coherence. Text shorter than 50 characters
// scores 0 unconditionally.
func Score(text string) int {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minScorableLength {
		return 0
	}

	score := 0

	if len(trimmed) > 200 {
		score += lengthCapLong
	} else if len(trimmed) > 100 {
		score += lengthCapShort
	}

	lower := strings.ToLower(trimmed)

	keywords := 0
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			keywords++
		}
	}
	score += capped(keywords*keywordPoints, keywordCap)

	actions := 0
	for _, kw := range actionKeywords {
		if strings.Contains(lower, kw) {
			actions++
		}
	}
	score += capped(actions*actionPoints, actionCap)

	quantities := 0
	for _, pat := range quantityPatterns {
		if pat.MatchString(trimmed) {
			quantities++
		}
	}
	score += capped(quantities*quantityPoints, quantityCap)

	if avg := averageSentenceLength(trimmed); avg > coherenceStrongAvg {
		score += coherenceStrong
	} else if avg > coherenceWeakAvg {
		score += coherenceWeak
	}

	return capped(score, 100)
}

// ChooseStrategy maps a quality score to a processing strategy. The
// mapping is a pure function of the score.
func ChooseStrategy(score int) Strategy {
	switch {
	case score > 80:
		return StrategyTextOnly
	case score > 50:
		return StrategyReducedFrames
	default:
		return StrategyFullFrames
	}
}

// FramesFor returns the frame subset the strategy allows, preserving
// temporal order.
func FramesFor(strategy Strategy, frames []Frame) []Frame {
	switch strategy {
	case StrategyTextOnly:
		return nil
	case StrategyReducedFrames:
		if len(frames) > ReducedFrameCap {
			return frames[:ReducedFrameCap]
		}
		return frames
	default:
		return frames
	}
}

func averageSentenceLength(text string) float64 {
	sentences := strings.Split(text, ".")
	if len(sentences) == 0 {
		return 0
	}
	words := 0
	for _, s := range sentences {
		words += len(strings.Fields(s))
	}
	return float64(words) / float64(len(sentences))
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}
