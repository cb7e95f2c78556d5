package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	staticProviderName = "static"
	openAIProviderName = "openai"
)

type modelPayload struct {
	Title    string                `json:"title"`
	Summary  string                `json:"summary"`
	Sections []modelSectionPayload `json:"sections"`
}

type modelSectionPayload struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

func buildPrompt(req Request) string {
	sb := &strings.Builder{}
	sb.WriteString("You write warm, concrete astrology content. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"title":string,"summary":string,"sections":[{"heading":string,"body":string}]}`)
	fmt.Fprintf(sb, ". Write in locale '%s'. Kind: %s. Subject: %q.", coalesce(req.Locale, "en"), req.Kind, req.Subject)
	if len(req.Facts) > 0 {
		fmt.Fprintf(sb, " Chart facts: %s.", describeFacts(req.Facts))
	}
	fmt.Fprintf(sb, " Produce exactly %d sections, in this order, one per topic:", len(req.Topics))
	for i, topic := range req.Topics {
		fmt.Fprintf(sb, " %d) %q", i+1, topic)
	}
	sb.WriteString(". Keep every section body between two and four sentences.")
	return sb.String()
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
