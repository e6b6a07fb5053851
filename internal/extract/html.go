package extract

import (
	"context"
	"fmt"
	"net/url"
	"os"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
)

// HTMLParser extracts the readable article from HTML files and converts it
// to markdown so heading structure survives into chunking.
type HTMLParser struct{}

func (p *HTMLParser) SupportedExtensions() []string { return []string{"html", "htm"} }

func (p *HTMLParser) Parse(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening HTML file; %w", err)
	}
	defer f.Close()

	base := &url.URL{Scheme: "file", Path: path}
	article, err := readability.FromReader(f, base)
	if err != nil {
		return nil, fmt.Errorf("extracting readable content; %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		// Readability already produced a plain-text rendering
		markdown = article.TextContent
	}

	return &Result{
		Text:   markdown,
		Title:  article.Title,
		Format: "html",
	}, nil
}
