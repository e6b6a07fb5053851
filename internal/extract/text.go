package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// TextParser handles plain text and markdown files.
type TextParser struct{}

func (p *TextParser) SupportedExtensions() []string {
	return []string{"txt", "md", "markdown", "text"}
}

func (p *TextParser) Parse(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file; %w", err)
	}

	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}

	format := "text"
	ext := normalizeExt(path)
	if ext == "md" || ext == "markdown" {
		format = "markdown"
	}

	return &Result{
		Text:   text,
		Title:  firstHeading(text),
		Format: format,
	}, nil
}

// firstHeading returns the first markdown H1 text, if any.
func firstHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}
