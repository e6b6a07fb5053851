// Package extract converts uploaded documents into plain text ready for
// chunking. Parsers are registered per file extension; unknown formats are
// rejected before the pipeline starts.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lodestone-kg/lodestone/internal/errkind"
)

// Result is the parsed form of a document.
type Result struct {
	// Text is the extracted content, markdown-flavored when the source
	// format carries structure.
	Text string

	// Title is the document title when the format provides one.
	Title string

	// Format is the source format, e.g. "pdf" or "html".
	Format string
}

// Parser converts one document format into text.
type Parser interface {
	// SupportedExtensions returns the file extensions this parser handles,
	// lowercase without the leading dot.
	SupportedExtensions() []string

	// Parse extracts text from the file at path.
	Parse(ctx context.Context, path string) (*Result, error)
}

// Registry maps file extensions to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates a registry with the default parser set.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(&TextParser{})
	r.Register(&PDFParser{})
	r.Register(&HTMLParser{})
	r.Register(&XLSXParser{})
	return r
}

// Register adds a parser for each of its supported extensions.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.SupportedExtensions() {
		r.parsers[ext] = p
	}
}

// Supported reports whether the file's extension has a registered parser.
func (r *Registry) Supported(filename string) bool {
	_, ok := r.parsers[normalizeExt(filename)]
	return ok
}

// Extensions returns the sorted set of supported extensions.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	return exts
}

// Parse dispatches to the parser registered for the file's extension and
// normalizes the extracted text.
func (r *Registry) Parse(ctx context.Context, path string) (*Result, error) {
	ext := normalizeExt(path)
	p, ok := r.parsers[ext]
	if !ok {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("unsupported document format %q", ext))
	}

	result, err := p.Parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("parse %s document; %w", ext, err)
	}

	result.Text = Normalize(result.Text)
	if strings.TrimSpace(result.Text) == "" {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("document %q produced no text", filepath.Base(path)))
	}
	return result, nil
}

func normalizeExt(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
