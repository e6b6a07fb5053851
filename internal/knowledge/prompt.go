package knowledge

import (
	"fmt"
	"strings"
)

const extractionSystemPrompt = `You are an information extraction engine. Extract entities and relationships from the provided text.

Rules:
- Only use entity types from the allowed list. If none fits, use "concept".
- Only use relation types from the allowed list. If none fits, use "related_to".
- Every relation must connect two extracted entities by their exact names.
- Confidence is a number between 0 and 1 reflecting how certain the extraction is.
- Respond with JSON only, no prose, matching this shape:
{
  "entities": [
    {"name": "...", "type": "...", "description": "...", "confidence": 0.9}
  ],
  "relationships": [
    {"source": "...", "target": "...", "type": "...", "description": "...", "confidence": 0.8}
  ]
}`

// buildExtractionPrompt renders the user message for one chunk.
func buildExtractionPrompt(text string, entityTypes, relationTypes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Allowed entity types: %s\n", strings.Join(entityTypes, ", "))
	fmt.Fprintf(&b, "Allowed relation types: %s\n\n", strings.Join(relationTypes, ", "))
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}
