package knowledge

import (
	"encoding/json"
	"errors"
	"strings"
)

// rawExtraction mirrors the JSON shape the model is asked to produce.
type rawExtraction struct {
	Entities  []rawEntity   `json:"entities"`
	Relations []rawRelation `json:"relationships"`
}

type rawEntity struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type rawRelation struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// parseExtractionJSON decodes model output that may be wrapped in markdown
// code fences or surrounded by prose. The first balanced JSON object in the
// text is decoded.
func parseExtractionJSON(content string) (*rawExtraction, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty completion")
	}

	content = stripCodeFence(content)

	jsonText := extractJSONObject(content)
	if jsonText == "" {
		return nil, errors.New("no JSON object found in completion")
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	// Drop the opening fence line and a trailing fence if present
	if idx := strings.Index(content, "\n"); idx >= 0 {
		content = content[idx+1:]
	}
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

// extractJSONObject returns the first brace-balanced object in text,
// ignoring braces inside JSON strings.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
