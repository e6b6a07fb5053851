package chunker

import (
	"strings"
	"testing"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/errkind"
)

func newTestChunker(t *testing.T, strategy string, max, min, overlap int) *Chunker {
	t.Helper()
	c, err := New(config.ChunkingConfig{
		Strategy:     strategy,
		MaxChunkSize: max,
		MinChunkSize: min,
		Overlap:      overlap,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ChunkingConfig
	}{
		{"unknown strategy", config.ChunkingConfig{Strategy: "bogus", MaxChunkSize: 100, MinChunkSize: 10}},
		{"max below min", config.ChunkingConfig{Strategy: StrategyFixed, MaxChunkSize: 10, MinChunkSize: 100}},
		{"zero min", config.ChunkingConfig{Strategy: StrategyFixed, MaxChunkSize: 100, MinChunkSize: 0}},
		{"overlap too large", config.ChunkingConfig{Strategy: StrategyFixed, MaxChunkSize: 100, MinChunkSize: 10, Overlap: 60}},
		{"negative overlap", config.ChunkingConfig{Strategy: StrategyFixed, MaxChunkSize: 100, MinChunkSize: 10, Overlap: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("expected error for config %+v", tt.cfg)
			} else if !errkind.Is(err, errkind.KindInputInvalid) {
				t.Errorf("expected input-invalid kind, got %v", err)
			}
		})
	}
}

func TestChunk_EmptyTextFails(t *testing.T) {
	c := newTestChunker(t, StrategyFixed, 100, 10, 0)
	if _, err := c.Chunk(1, "   \n\t "); err == nil {
		t.Fatal("expected error for whitespace-only text")
	}
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	c := newTestChunker(t, StrategyFixed, 200, 20, 10)
	chunks, err := c.Chunk(7, "a short document")
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "a short document" {
		t.Errorf("unexpected content %q", chunks[0].Content)
	}
	if chunks[0].StartChar != 0 || chunks[0].EndChar != len("a short document") {
		t.Errorf("unexpected offsets [%d, %d)", chunks[0].StartChar, chunks[0].EndChar)
	}
}

func TestChunk_FixedCoversAllText(t *testing.T) {
	c := newTestChunker(t, StrategyFixed, 50, 10, 10)
	text := strings.Repeat("abcdefghij", 30)

	chunks, err := c.Chunk(1, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	covered := make([]bool, len(text))
	prevStart := -1
	for i, ch := range chunks {
		if ch.StartChar >= ch.EndChar {
			t.Errorf("chunk %d has empty range [%d, %d)", i, ch.StartChar, ch.EndChar)
		}
		if len(ch.Content) > 50 {
			t.Errorf("chunk %d exceeds max size: %d bytes", i, len(ch.Content))
		}
		if ch.StartChar <= prevStart {
			t.Errorf("chunk %d out of order: start %d after %d", i, ch.StartChar, prevStart)
		}
		prevStart = ch.StartChar
		if ch.Index != i {
			t.Errorf("chunk %d carries index %d", i, ch.Index)
		}
		for p := ch.StartChar; p < ch.EndChar; p++ {
			covered[p] = true
		}
	}
	for p, ok := range covered {
		if !ok {
			t.Fatalf("byte %d not covered by any chunk", p)
		}
	}
}

func TestChunk_FixedOverlap(t *testing.T) {
	c := newTestChunker(t, StrategyFixed, 50, 10, 10)
	text := strings.Repeat("x", 200)

	chunks, err := c.Chunk(1, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartChar >= chunks[i-1].EndChar {
			t.Errorf("chunks %d and %d do not overlap: [%d,%d) then [%d,%d)",
				i-1, i, chunks[i-1].StartChar, chunks[i-1].EndChar,
				chunks[i].StartChar, chunks[i].EndChar)
		}
	}
}

func TestChunk_FixedDoesNotSplitRunes(t *testing.T) {
	c := newTestChunker(t, StrategyFixed, 50, 10, 0)
	text := strings.Repeat("苹果公司是一家科技企业", 10)

	chunks, err := c.Chunk(1, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for i, ch := range chunks {
		if !strings.Contains(text, ch.Content) {
			t.Errorf("chunk %d content not a substring of source", i)
		}
		for _, r := range ch.Content {
			if r == '�' {
				t.Fatalf("chunk %d contains a replacement rune, boundary split a character", i)
			}
		}
	}
}

func TestChunk_SentenceGrouping(t *testing.T) {
	c := newTestChunker(t, StrategySentence, 80, 10, 0)
	text := "First sentence here. Second sentence follows. Third one is longer than before. " +
		"Fourth keeps going with more words. Fifth wraps it up nicely for everyone involved."

	chunks, err := c.Chunk(1, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected sentence grouping to split, got %d chunks", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Content) > 80 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(ch.Content))
		}
	}
}

func TestChunk_ParagraphGrouping(t *testing.T) {
	c := newTestChunker(t, StrategyParagraph, 120, 10, 0)
	paragraphs := []string{
		"The first paragraph talks about one topic at length and detail.",
		"The second paragraph switches to something else entirely different.",
		"The third paragraph concludes the discussion with a short summary.",
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks, err := c.Chunk(1, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for i, ch := range chunks {
		if len(ch.Content) > 120 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(ch.Content))
		}
	}
}

func TestChunk_MinSizeHoldsExceptFinal(t *testing.T) {
	c := newTestChunker(t, StrategyParagraph, 50, 20, 0)
	// A 10-byte opening paragraph cannot group with the 45-byte neighbor
	// without breaking the maximum, so the boundary must move instead.
	text := strings.Repeat("a", 10) + "\n\n" + strings.Repeat("b", 45) + "\n\n" + strings.Repeat("c", 45)

	chunks, err := c.Chunk(1, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Content) > 50 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(ch.Content))
		}
		if len(ch.Content) == 0 {
			t.Errorf("chunk %d is empty", i)
		}
		if i < len(chunks)-1 && len(ch.Content) < 20 {
			t.Errorf("non-final chunk %d below min size: %d bytes", i, len(ch.Content))
		}
	}
}

func TestEnforceMin_MergesThenWidens(t *testing.T) {
	c := newTestChunker(t, StrategyParagraph, 50, 20, 0)
	text := strings.Repeat("x", 60)
	pieces := []piece{{start: 0, end: 8}, {start: 8, end: 16}, {start: 16, end: 60}}

	got := c.enforceMin(text, pieces)
	if len(got) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(got))
	}
	if got[0].start != 0 || got[0].end != 20 {
		t.Errorf("first piece = [%d, %d), want [0, 20)", got[0].start, got[0].end)
	}
	if got[1].start != 20 || got[1].end != 60 {
		t.Errorf("second piece = [%d, %d), want [20, 60)", got[1].start, got[1].end)
	}
}

func TestChunk_AdaptiveUsesMarkdownSections(t *testing.T) {
	c := newTestChunker(t, StrategyAdaptive, 200, 10, 0)
	text := "# Introduction\n\nThis opening section describes the document purpose in a sentence.\n\n" +
		"## Details\n\nThe details section carries the substance of the document body text.\n\n" +
		"## Conclusion\n\nA final section sums everything up for the reader."

	chunks, err := c.Chunk(1, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}

	titled := 0
	for _, ch := range chunks {
		if ch.SectionTitle != "" {
			titled++
		}
	}
	if titled == 0 {
		t.Error("expected at least one chunk annotated with a section title")
	}
}

func TestChunk_DeterministicIDs(t *testing.T) {
	c := newTestChunker(t, StrategyFixed, 50, 10, 0)
	text := strings.Repeat("deterministic content ", 20)

	first, err := c.Chunk(9, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	second, err := c.Chunk(9, text)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d id changed between runs: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
}
