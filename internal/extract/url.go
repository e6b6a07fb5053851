package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"

	"github.com/lodestone-kg/lodestone/internal/errkind"
)

const (
	fetchTimeout  = 30 * time.Second
	maxFetchBytes = 20 << 20 // 20 MiB
)

// Fetcher downloads a web page and reduces it to readable markdown.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher with a default timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{httpClient: &http.Client{Timeout: fetchTimeout}}
}

// Fetch downloads rawURL and returns its readable content as markdown.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("invalid document URL %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request; %w", err)
	}
	req.Header.Set("User-Agent", "lodestone/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("fetching %s; %w", rawURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errkind.FromStatusCode(resp.StatusCode,
			fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode))
	}

	body := io.LimitReader(resp.Body, maxFetchBytes)
	article, err := readability.FromReader(body, parsed)
	if err != nil {
		return nil, fmt.Errorf("extracting readable content from %s; %w", rawURL, err)
	}

	markdown, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		markdown = article.TextContent
	}

	text := Normalize(markdown)
	if strings.TrimSpace(text) == "" {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("page %s produced no readable text", rawURL))
	}

	return &Result{
		Text:   text,
		Title:  article.Title,
		Format: "url",
	}, nil
}
