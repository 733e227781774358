package reconstruct

import (
	"encoding/json"
	"strings"

	"github.com/ladleworks/reelchef/pkg/recipe"
)

// Parser extracts a recipe from a raw model completion. Implementations
// return false when the input does not match their shape so the caller
// can try the next one.
type Parser interface {
	Parse(raw string) (*recipe.Recipe, bool)
}

// parsers are tried in order from strictest to most permissive.
var parsers = []Parser{
	DirectParser{},
	FencedBlockParser{},
	FieldBoundedParser{},
	BracketBalancedParser{},
}

// ParseRecipe runs the recovery cascade over a model completion. It
// returns false when no stage could produce a recipe.
func ParseRecipe(raw string) (*recipe.Recipe, bool) {
	for _, p := range parsers {
		if r, ok := p.Parse(raw); ok {
			r.Normalize()
			return r, true
		}
	}
	return nil, false
}

// DirectParser accepts completions that are a bare JSON object.
type DirectParser struct{}

func (DirectParser) Parse(raw string) (*recipe.Recipe, bool) {
	return decodeRecipe(strings.TrimSpace(raw))
}

// FencedBlockParser pulls the payload out of a markdown code fence,
// with or without a language tag.
type FencedBlockParser struct{}

func (FencedBlockParser) Parse(raw string) (*recipe.Recipe, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return nil, false
	}
	rest := raw[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop a language tag such as "json" on the fence line.
		if tag := strings.TrimSpace(rest[:nl]); tag == "" || isFenceTag(tag) {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return nil, false
	}
	return decodeRecipe(strings.TrimSpace(rest[:end]))
}

func isFenceTag(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// FieldBoundedParser locates the object by anchoring on a known field
// name and expanding to the smallest enclosing braces. It survives
// prose before and after the payload.
type FieldBoundedParser struct{}

func (FieldBoundedParser) Parse(raw string) (*recipe.Recipe, bool) {
	for _, anchor := range []string{`"ingredients"`, `"steps"`, `"title"`} {
		at := strings.Index(raw, anchor)
		if at < 0 {
			continue
		}
		open := strings.LastIndexByte(raw[:at], '{')
		if open < 0 {
			continue
		}
		if body, ok := balancedObject(raw[open:]); ok {
			if r, ok := decodeRecipe(body); ok {
				return r, true
			}
		}
	}
	return nil, false
}

// BracketBalancedParser takes the first balanced top-level object in
// the completion, whatever surrounds it. Last resort before the
// cascade gives up.
type BracketBalancedParser struct{}

func (BracketBalancedParser) Parse(raw string) (*recipe.Recipe, bool) {
	open := strings.IndexByte(raw, '{')
	if open < 0 {
		return nil, false
	}
	body, ok := balancedObject(raw[open:])
	if !ok {
		return nil, false
	}
	return decodeRecipe(body)
}

// balancedObject returns the prefix of s spanning one brace-balanced
// JSON object. s must start with '{'. String literals and escapes are
// respected so braces inside values do not break the count.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[:i+1], true
				}
			}
		}
	}
	return "", false
}

func decodeRecipe(body string) (*recipe.Recipe, bool) {
	if body == "" || body[0] != '{' {
		return nil, false
	}
	var r recipe.Recipe
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, false
	}
	if r.Title == "" && len(r.Ingredients) == 0 && len(r.Steps) == 0 {
		return nil, false
	}
	return &r, true
}
