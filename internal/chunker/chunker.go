// Package chunker splits normalized document text into chunks sized for
// embedding and knowledge extraction. Four strategies are supported: fixed
// windows, sentence grouping, paragraph grouping, and an adaptive mode that
// picks per document based on detected structure.
package chunker

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// Strategy names accepted in configuration.
const (
	StrategyFixed     = "fixed"
	StrategySentence  = "sentence"
	StrategyParagraph = "paragraph"
	StrategyAdaptive  = "adaptive"
)

// Chunker produces chunks according to a configured strategy.
// Offsets are byte offsets into the normalized text; every chunk satisfies
// StartChar < EndChar and chunks are emitted in ascending offset order.
type Chunker struct {
	strategy string
	maxSize  int
	minSize  int
	overlap  int
}

// New creates a chunker from configuration. Overlap larger than half the
// maximum chunk size is rejected because consecutive windows would stall.
func New(cfg config.ChunkingConfig) (*Chunker, error) {
	switch cfg.Strategy {
	case StrategyFixed, StrategySentence, StrategyParagraph, StrategyAdaptive:
	default:
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("unknown chunking strategy %q", cfg.Strategy))
	}
	if cfg.MinChunkSize <= 0 || cfg.MaxChunkSize <= cfg.MinChunkSize {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("invalid chunk sizes min=%d max=%d", cfg.MinChunkSize, cfg.MaxChunkSize))
	}
	if cfg.Overlap < 0 || cfg.Overlap > cfg.MaxChunkSize/2 {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("overlap %d must be in [0, %d]", cfg.Overlap, cfg.MaxChunkSize/2))
	}

	return &Chunker{
		strategy: cfg.Strategy,
		maxSize:  cfg.MaxChunkSize,
		minSize:  cfg.MinChunkSize,
		overlap:  cfg.Overlap,
	}, nil
}

// Chunk splits text into chunks for the given document. Text shorter than
// the minimum chunk size yields a single chunk.
func (c *Chunker) Chunk(docID int64, text string) ([]*model.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("document %d has no text to chunk", docID))
	}

	if len(text) <= c.maxSize {
		return []*model.Chunk{c.build(docID, 0, text, 0, len(text), nil)}, nil
	}

	var pieces []piece
	switch c.strategy {
	case StrategyFixed:
		pieces = c.fixedPieces(text)
	case StrategySentence:
		pieces = c.groupSpans(text, splitSentences(text), c.overlap)
	case StrategyParagraph:
		pieces = c.groupSpans(text, splitParagraphs(text), 0)
	case StrategyAdaptive:
		pieces = c.adaptivePieces(text)
	}
	pieces = c.enforceMin(text, pieces)

	chunks := make([]*model.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, c.build(docID, i, text[p.start:p.end], p.start, p.end, p.section))
	}
	return chunks, nil
}

// piece is a half-open [start, end) range of the source text, optionally
// annotated with the markdown section it belongs to.
type piece struct {
	start, end int
	section    *sectionInfo
}

type sectionInfo struct {
	title string
	level int
}

func (c *Chunker) build(docID int64, index int, content string, start, end int, sec *sectionInfo) *model.Chunk {
	chunk := &model.Chunk{
		ID:             model.ChunkID(docID, index, content),
		DocumentID:     docID,
		Index:          index,
		Content:        content,
		StartChar:      start,
		EndChar:        end,
		WordCount:      len(strings.Fields(content)),
		ParagraphCount: countParagraphs(content),
		Type:           model.ChunkContent,
		CreatedAt:      time.Now(),
	}
	if sec != nil {
		chunk.SectionTitle = sec.title
		chunk.HeadingLevel = sec.level
		switch {
		case sec.level <= 1:
			chunk.Type = model.ChunkSection
		default:
			chunk.Type = model.ChunkSubsection
		}
	}
	return chunk
}

// fixedPieces cuts the text into maxSize windows advancing by
// maxSize-overlap, snapping boundaries back to rune starts.
func (c *Chunker) fixedPieces(text string) []piece {
	step := c.maxSize - c.overlap
	var pieces []piece
	for start := 0; start < len(text); start += step {
		end := start + c.maxSize
		if end >= len(text) {
			pieces = append(pieces, piece{start: runeFloor(text, start), end: len(text)})
			break
		}
		pieces = append(pieces, piece{start: runeFloor(text, start), end: runeFloor(text, end)})
	}
	return pieces
}

// groupSpans accumulates consecutive spans into pieces no larger than
// maxSize. A lone span longer than maxSize falls back to fixed windows so
// the size bound holds regardless of input shape. When overlap is positive,
// each piece after the first starts at spans re-covering up to overlap bytes
// of the previous piece.
func (c *Chunker) groupSpans(text string, spans []span, overlap int) []piece {
	var pieces []piece
	i := 0
	for i < len(spans) {
		start := spans[i].start
		end := spans[i].end

		if end-start > c.maxSize {
			for _, p := range c.fixedPiecesRange(text, start, end) {
				pieces = append(pieces, p)
			}
			i++
			continue
		}

		j := i + 1
		for j < len(spans) && spans[j].end-start <= c.maxSize {
			end = spans[j].end
			j++
		}
		pieces = append(pieces, piece{start: start, end: end})

		if overlap > 0 && j < len(spans) {
			// Walk back so the next piece re-covers trailing spans
			back := j
			for back > i+1 && end-spans[back-1].start <= overlap {
				back--
			}
			if back < j {
				j = back
			}
		}
		i = j
	}
	return pieces
}

func (c *Chunker) fixedPiecesRange(text string, start, end int) []piece {
	step := c.maxSize - c.overlap
	var pieces []piece
	for s := start; s < end; s += step {
		e := s + c.maxSize
		if e >= end {
			pieces = append(pieces, piece{start: runeFloor(text, s), end: end})
			break
		}
		pieces = append(pieces, piece{start: runeFloor(text, s), end: runeFloor(text, e)})
	}
	return pieces
}

// enforceMin merges or widens undersized pieces so only the final piece of
// a section may fall below the minimum size. A merge happens when the
// neighbor fits under the maximum; otherwise the boundary moves into the
// neighbor just far enough to reach the minimum.
func (c *Chunker) enforceMin(text string, pieces []piece) []piece {
	if len(pieces) < 2 {
		return pieces
	}
	out := make([]piece, 0, len(pieces))
	for i := 0; i < len(pieces); i++ {
		p := pieces[i]
		for p.end-p.start < c.minSize && i+1 < len(pieces) && pieces[i+1].section == p.section {
			next := pieces[i+1]
			if next.end-p.start <= c.maxSize {
				p.end = next.end
				i++
				continue
			}
			cut := runeCeil(text, p.start+c.minSize)
			if cut >= next.end {
				break
			}
			p.end = cut
			pieces[i+1].start = cut
			break
		}
		out = append(out, p)
	}
	return out
}

// adaptivePieces picks structure-aware splitting: markdown headings define
// sections chunked independently; otherwise paragraph grouping when blank
// lines exist, sentence grouping as the last resort.
func (c *Chunker) adaptivePieces(text string) []piece {
	sections := splitSections(text)
	if len(sections) > 1 {
		var pieces []piece
		for _, sec := range sections {
			body := text[sec.start:sec.end]
			spans := splitParagraphs(body)
			if len(spans) == 0 {
				continue
			}
			info := &sectionInfo{title: sec.title, level: sec.level}
			for _, p := range c.groupSpans(body, spans, 0) {
				pieces = append(pieces, piece{start: sec.start + p.start, end: sec.start + p.end, section: info})
			}
		}
		if len(pieces) > 0 {
			return pieces
		}
	}

	if strings.Contains(text, "\n\n") {
		return c.groupSpans(text, splitParagraphs(text), 0)
	}
	return c.groupSpans(text, splitSentences(text), c.overlap)
}

func countParagraphs(content string) int {
	n := 0
	for _, block := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(block) != "" {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// runeFloor snaps a byte offset back to the start of the rune containing it.
func runeFloor(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// runeCeil snaps a byte offset forward to the next rune start.
func runeCeil(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}
