package extract

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes extracted text: line endings become LF, control
// characters are stripped, horizontal whitespace runs collapse to one
// space, trailing whitespace per line is removed, and runs of more than two
// blank lines collapse to two. Chunk offsets are computed against this
// normalized form, so it must be deterministic.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = collapseSpaces(stripControl(line))
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blanks++
			if blanks > 2 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

func stripControl(line string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, line)
}

// collapseSpaces rewrites every run of spaces and tabs as a single space.
func collapseSpaces(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	inRun := false
	for _, r := range line {
		if r == ' ' || r == '\t' {
			inRun = true
			continue
		}
		if inRun {
			b.WriteByte(' ')
			inRun = false
		}
		b.WriteRune(r)
	}
	if inRun {
		b.WriteByte(' ')
	}
	return b.String()
}
