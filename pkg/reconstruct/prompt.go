package reconstruct

import (
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ladleworks/reelchef/pkg/evidence"
)

// maxPromptTextLen bounds how much combined narration/caption text is
// embedded in the user prompt.
const maxPromptTextLen = 1500

// DefaultLanguage is used when a job does not name a supported output
// language.
const DefaultLanguage = "en"

var languageNames = map[string]string{
	"en": "English",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"it": "Italian",
	"nl": "Dutch",
}

// NormalizeLanguage maps a requested language code onto a supported one.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := languageNames[lang]; ok {
		return lang
	}
	return DefaultLanguage
}

func systemPrompt(lang string) string {
	name := languageNames[NormalizeLanguage(lang)]
	return fmt.Sprintf(`You are a professional chef who reconstructs cooking recipes from short social media videos. You receive transcribed speech, on-screen text and selected video frames. Respond with the recipe in %s.

Answer with a single JSON object and nothing else, using exactly this shape:
{"title": "...", "ingredients": ["..."], "steps": ["..."]}

Estimate quantities when the video does not state them. Keep steps in cooking order.`, name)
}

func userText(combined string, frameCount int) string {
	if len(combined) > maxPromptTextLen {
		combined = combined[:maxPromptTextLen]
	}
	var b strings.Builder
	b.WriteString("Reconstruct the recipe shown in this video.\n\n")
	if combined != "" {
		b.WriteString(combined)
		b.WriteString("\n\n")
	}
	if frameCount > 0 {
		fmt.Fprintf(&b, "%d frames from the video follow.", frameCount)
	} else {
		b.WriteString("No frames are available; rely on the text alone.")
	}
	return b.String()
}

// buildMessages assembles the chat request body for one reconstruction
// attempt. Frames are inlined as base64 JPEG data URLs.
func buildMessages(ev *evidence.VideoEvidence, frames []evidence.Frame, lang string) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(lang),
	}}

	text := userText(ev.CombinedText(), len(frames))
	if len(frames) == 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: text,
		})
		return msgs
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: text,
	}}
	for _, f := range frames {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(f.JPEG),
				Detail: openai.ImageURLDetailLow,
			},
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
	return msgs
}
