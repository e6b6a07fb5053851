package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/providers/llm"
)

func testChunk() *model.Chunk {
	content := "Apple Inc. was founded by Steve Jobs in Cupertino."
	return &model.Chunk{
		ID:         model.ChunkID(1, 0, content),
		DocumentID: 1,
		Content:    content,
		EndChar:    len(content),
		CreatedAt:  time.Now(),
	}
}

func testExtractionConfig() config.ExtractionConfig {
	return config.ExtractionConfig{
		MinEntityConfidence:   0.3,
		MinRelationConfidence: 0.3,
		MaxRetries:            2,
		CallIntervalMs:        1,
	}
}

const goodExtraction = `{
  "entities": [
    {"name": "Apple Inc.", "type": "organization", "description": "technology company", "confidence": 0.95},
    {"name": "Steve Jobs", "type": "person", "description": "co-founder of Apple", "confidence": 0.9},
    {"name": "Cupertino", "type": "location", "description": "city in california", "confidence": 0.85}
  ],
  "relationships": [
    {"source": "Steve Jobs", "target": "Apple Inc.", "type": "founded", "description": "founded the company", "confidence": 0.9}
  ]
}`

func TestExtract_ParsesEntitiesAndRelations(t *testing.T) {
	mock := llm.NewMockProvider(llm.TextResponse(goodExtraction))
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Fallback {
		t.Fatal("expected LLM extraction, not fallback")
	}
	if len(result.Entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(result.Entities))
	}
	if len(result.Relations) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(result.Relations))
	}

	rel := result.Relations[0]
	if rel.Type != "founded" {
		t.Errorf("relation type = %q, want founded", rel.Type)
	}
	if rel.SourceID != result.Entities[1].ID || rel.TargetID != result.Entities[0].ID {
		t.Errorf("relation endpoints not resolved to extracted entity ids")
	}

	apple := result.Entities[0]
	if apple.StartChar != 0 || apple.EndChar != len("Apple Inc.") {
		t.Errorf("mention not located: [%d, %d)", apple.StartChar, apple.EndChar)
	}
	if !apple.HasChunk(testChunk().ID) {
		t.Error("entity should record its source chunk")
	}
}

func TestExtract_FenceWrappedJSON(t *testing.T) {
	wrapped := "Here is the result:\n```json\n" + goodExtraction + "\n```\nDone."
	mock := llm.NewMockProvider(llm.TextResponse(wrapped))
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Entities) != 3 {
		t.Errorf("expected 3 entities from fenced output, got %d", len(result.Entities))
	}
}

func TestExtract_UnknownTypesRemapped(t *testing.T) {
	out := `{
	  "entities": [
	    {"name": "Apple Inc.", "type": "MegaCorp", "confidence": 0.9},
	    {"name": "Steve Jobs", "type": "person", "confidence": 0.9}
	  ],
	  "relationships": [
	    {"source": "Steve Jobs", "target": "Apple Inc.", "type": "Is The Boss Of", "confidence": 0.8}
	  ]
	}`
	mock := llm.NewMockProvider(llm.TextResponse(out))
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Entities[0].Type != "concept" {
		t.Errorf("unknown entity type should remap to concept, got %q", result.Entities[0].Type)
	}
	if len(result.Relations) != 1 || result.Relations[0].Type != "related_to" {
		t.Errorf("unknown relation type should remap to related_to, got %+v", result.Relations)
	}
}

func TestExtract_ConfidenceFloors(t *testing.T) {
	out := `{
	  "entities": [
	    {"name": "Apple Inc.", "type": "organization", "confidence": 0.9},
	    {"name": "Ghost", "type": "concept", "confidence": 0.1}
	  ],
	  "relationships": [
	    {"source": "Apple Inc.", "target": "Ghost", "type": "related_to", "confidence": 0.9}
	  ]
	}`
	mock := llm.NewMockProvider(llm.TextResponse(out))
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("low-confidence entity should be dropped, got %d entities", len(result.Entities))
	}
	if len(result.Relations) != 0 {
		t.Error("relation referencing a dropped entity should be dropped")
	}
}

func TestExtract_NameLengthBounds(t *testing.T) {
	long := strings.Repeat("x", 101)
	out := `{
	  "entities": [
	    {"name": "A", "type": "concept", "confidence": 0.9},
	    {"name": "` + long + `", "type": "concept", "confidence": 0.9},
	    {"name": "Apple Inc.", "type": "organization", "confidence": 0.9}
	  ],
	  "relationships": []
	}`
	mock := llm.NewMockProvider(llm.TextResponse(out))
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Name != "Apple Inc." {
		t.Fatalf("names outside 2-100 chars should be dropped, got %+v", result.Entities)
	}
}

func TestExtract_RetriesMalformedThenSucceeds(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.TextResponse("sorry, I cannot do that"),
		llm.TextResponse(goodExtraction),
	)
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Fallback {
		t.Error("retry should have recovered without fallback")
	}
	if len(mock.Requests) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(mock.Requests))
	}
}

func TestExtract_MalformedOutputExhaustsToFallback(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.TextResponse("no json here"),
		llm.TextResponse("still no json"),
		llm.TextResponse("nope"),
	)
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract should fall back, not fail: %v", err)
	}
	if !result.Fallback {
		t.Fatal("expected pattern fallback after unusable output")
	}
	if result.Skipped {
		t.Fatal("unusable output must fall back, not skip the chunk")
	}
	if len(mock.Requests) != 3 {
		t.Errorf("expected maxRetries+1 = 3 attempts, got %d", len(mock.Requests))
	}

	// Capitalized phrases from the chunk become concept entities
	names := make(map[string]bool)
	for _, entity := range result.Entities {
		names[entity.Name] = true
		if entity.Type != "concept" {
			t.Errorf("fallback entity %q has type %q, want concept", entity.Name, entity.Type)
		}
		if entity.Confidence != 0.5 {
			t.Errorf("fallback entity %q has confidence %f, want 0.5", entity.Name, entity.Confidence)
		}
	}
	if !names["Steve Jobs"] {
		t.Errorf("expected fallback to find Steve Jobs, got %v", names)
	}
	if len(result.Relations) != 0 {
		t.Error("fallback must not fabricate relations")
	}
}

func TestExtract_TransientFailuresExhaustToSkip(t *testing.T) {
	mock := llm.NewMockProvider()
	for i := 0; i < 3; i++ {
		mock.ScriptError(errkind.New(errkind.KindExternalTransient, errors.New("upstream 503")))
	}
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract should skip, not fail: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected the chunk to be skipped after retries exhausted")
	}
	if result.Fallback {
		t.Error("provider failure must not trigger the pattern fallback")
	}
	if len(result.Entities) != 0 || len(result.Relations) != 0 {
		t.Errorf("skipped chunk must contribute nothing, got %d entities, %d relations",
			len(result.Entities), len(result.Relations))
	}
	if len(mock.Requests) != 3 {
		t.Errorf("expected maxRetries+1 = 3 attempts, got %d", len(mock.Requests))
	}
}

func TestExtract_PermanentFailureSkipsRetries(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.ScriptError(errkind.New(errkind.KindExternalPermanent, errors.New("invalid api key")))
	e := NewExtractor(mock, testExtractionConfig())

	result, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Extract should skip, not fail: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected skip after permanent failure")
	}
	if len(mock.Requests) != 1 {
		t.Errorf("permanent failure should not be retried, got %d attempts", len(mock.Requests))
	}
}

func TestParseExtractionJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"bare object", `{"entities": [], "relationships": []}`, false},
		{"fenced", "```json\n{\"entities\": [], \"relationships\": []}\n```", false},
		{"prose around", "Sure! {\"entities\": [], \"relationships\": []} hope that helps", false},
		{"brace in string", `{"entities": [{"name": "a {weird} name", "type": "concept", "confidence": 0.9}], "relationships": []}`, false},
		{"empty", "", true},
		{"no json", "I could not find any entities.", true},
		{"unbalanced", `{"entities": [`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseExtractionJSON(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseExtractionJSON error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFallbackExtract_SkipsStopwordsAndDedupes(t *testing.T) {
	e := NewExtractor(llm.NewMockProvider(), testExtractionConfig())
	content := "The quick fox. Berlin is far. Berlin again. However nothing else."
	chunk := &model.Chunk{ID: "c1", DocumentID: 1, Content: content}

	result := e.fallbackExtract(chunk)
	count := map[string]int{}
	for _, entity := range result.Entities {
		count[entity.Name]++
	}
	if count["Berlin"] != 1 {
		t.Errorf("Berlin should appear exactly once, got %d", count["Berlin"])
	}
	if count["The"] != 0 || count["However"] != 0 {
		t.Errorf("stopwords leaked into fallback entities: %v", count)
	}
}
