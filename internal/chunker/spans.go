package chunker

import (
	"strings"
)

// span is a half-open [start, end) byte range of the source text.
type span struct {
	start, end int
}

// splitParagraphs returns spans for blank-line separated blocks. Leading and
// trailing whitespace inside a block is kept so offsets stay contiguous with
// the source text.
func splitParagraphs(text string) []span {
	var spans []span
	start := -1
	i := 0
	for i < len(text) {
		if blankLineAt(text, i) {
			if start >= 0 {
				spans = append(spans, span{start: start, end: i})
				start = -1
			}
			i = skipBlankRun(text, i)
			continue
		}
		if start < 0 && !isSpaceByte(text[i]) {
			start = i
		}
		i++
	}
	if start >= 0 {
		spans = append(spans, span{start: start, end: trailingEnd(text)})
	}
	return spans
}

// splitSentences returns spans for sentence-like units. A sentence ends at
// '.', '!', '?', their CJK equivalents, or a newline.
func splitSentences(text string) []span {
	var spans []span
	start := -1
	i := 0
	for i < len(text) {
		b := text[i]
		if start < 0 {
			if !isSpaceByte(b) {
				start = i
			}
			i++
			continue
		}

		if end, width := sentenceEnd(text, i); end {
			spans = append(spans, span{start: start, end: i + width})
			start = -1
			i += width
			continue
		}
		i++
	}
	if start >= 0 {
		spans = append(spans, span{start: start, end: trailingEnd(text)})
	}
	return spans
}

// markdownSection is a heading-delimited region of the text.
type markdownSection struct {
	title      string
	level      int
	start, end int
}

// splitSections splits markdown text at ATX headings. The heading line
// belongs to the section it opens. Text before the first heading becomes an
// untitled level-0 preamble section.
func splitSections(text string) []markdownSection {
	var sections []markdownSection
	lines := strings.Split(text, "\n")

	offset := 0
	current := markdownSection{start: 0}
	opened := false

	flush := func(end int) {
		if end > current.start {
			body := text[current.start:end]
			if strings.TrimSpace(body) != "" {
				current.end = end
				sections = append(sections, current)
			}
		}
	}

	for _, line := range lines {
		if level, title, ok := parseHeading(line); ok {
			flush(offset)
			current = markdownSection{title: title, level: level, start: offset}
			opened = true
		}
		offset += len(line) + 1
	}
	if offset > len(text) {
		offset = len(text)
	}
	flush(offset)

	if !opened {
		return nil
	}
	return sections
}

func parseHeading(line string) (level int, title string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return 0, "", false
	}
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i >= len(trimmed) || trimmed[i] != ' ' {
		return 0, "", false
	}
	return i, strings.TrimSpace(trimmed[i:]), true
}

func sentenceEnd(text string, i int) (bool, int) {
	switch text[i] {
	case '.', '!', '?':
		// Terminator must be followed by whitespace or end of text
		if i+1 >= len(text) || isSpaceByte(text[i+1]) {
			return true, 1
		}
		return false, 0
	case '\n':
		return true, 1
	}
	// CJK full stops are 3-byte UTF-8 sequences
	for _, ender := range []string{"。", "！", "？"} {
		if strings.HasPrefix(text[i:], ender) {
			return true, len(ender)
		}
	}
	return false, 0
}

func blankLineAt(text string, i int) bool {
	if text[i] != '\n' {
		return false
	}
	j := i + 1
	for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
		j++
	}
	return j < len(text) && text[j] == '\n'
}

func skipBlankRun(text string, i int) int {
	for i < len(text) && isSpaceByte(text[i]) {
		i++
	}
	return i
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func trailingEnd(text string) int {
	end := len(text)
	for end > 0 && isSpaceByte(text[end-1]) {
		end--
	}
	return end
}
