package knowledge

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lodestone-kg/lodestone/internal/model"
)

// fallbackConfidence is assigned to pattern-extracted entities. It sits
// above the entity floor so fallback results survive validation, and low
// enough that unification treats them conservatively.
const fallbackConfidence = 0.5

// capitalizedPhrase matches runs of capitalized words, the strongest
// language-independent signal for named entities in plain text.
var capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]*(?:[ \t][A-Z][a-zA-Z0-9]*)*\b`)

// fallbackStopwords are common sentence-initial words that the pattern
// would otherwise misread as names.
var fallbackStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"these": true, "those": true, "it": true, "he": true, "she": true,
	"they": true, "we": true, "i": true, "you": true, "in": true,
	"on": true, "at": true, "but": true, "and": true, "or": true,
	"however": true, "therefore": true, "when": true, "while": true,
	"if": true, "as": true, "for": true, "with": true, "by": true,
}

// fallbackExtract pulls capitalized phrases as concept entities. No
// relations are produced; pattern matching cannot attribute them reliably.
func (e *Extractor) fallbackExtract(chunk *model.Chunk) *ExtractionResult {
	result := &ExtractionResult{ChunkID: chunk.ID, Fallback: true}

	seen := make(map[string]bool)
	for _, match := range capitalizedPhrase.FindAllStringIndex(chunk.Content, -1) {
		name := strings.TrimSpace(chunk.Content[match[0]:match[1]])
		if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
			continue
		}
		if fallbackStopwords[strings.ToLower(name)] {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		entity := &model.Entity{
			ID:         model.ExtractedEntityID(chunk.ID, len(result.Entities)),
			Name:       name,
			Type:       "concept",
			Confidence: fallbackConfidence,
			DocumentID: chunk.DocumentID,
			ChunkIDs:   []string{chunk.ID},
			StartChar:  chunk.StartChar + match[0],
			EndChar:    chunk.StartChar + match[1],
			SourceText: snippet(chunk.Content, match[0], match[1]-match[0]),
			CreatedAt:  time.Now(),
		}
		result.Entities = append(result.Entities, entity)
	}

	return result
}
