package unify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lodestone-kg/lodestone/internal/providers"
)

// Tool is one callable exposed to the analysis model.
type Tool interface {
	Definition() providers.ToolDefinition
	Execute(ctx context.Context, argsJSON string) (string, error)
}

// ToolRegistry holds the tools available during analysis.
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool.
func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Definition().Name] = t
}

// Definitions returns the tool schemas for the completion request.
func (r *ToolRegistry) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Execute runs one model-emitted tool call.
func (r *ToolRegistry) Execute(ctx context.Context, call providers.ToolCall) (string, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	return t.Execute(ctx, call.Arguments)
}

// WikipediaTool answers search_wikipedia calls with opensearch results,
// giving the model redirect and alias evidence.
type WikipediaTool struct {
	baseURL    string
	httpClient *http.Client
}

// NewWikipediaTool creates the tool against the public Wikipedia API.
func NewWikipediaTool() *WikipediaTool {
	return &WikipediaTool{
		baseURL:    "https://en.wikipedia.org/w/api.php",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWikipediaToolWithBase creates the tool against a custom endpoint, for
// tests and offline mirrors.
func NewWikipediaToolWithBase(baseURL string) *WikipediaTool {
	t := NewWikipediaTool()
	t.baseURL = baseURL
	return t
}

func (w *WikipediaTool) Definition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Name:        "search_wikipedia",
		Description: "Search Wikipedia for an entity and return matching article titles and summaries. Use to verify aliases, abbreviations, and translations.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity_name": map[string]any{
					"type":        "string",
					"description": "The entity name to search for",
				},
				"entity_type": map[string]any{
					"type":        "string",
					"description": "The entity's type, for disambiguation",
				},
			},
			"required": []string{"entity_name"},
		},
	}
}

type wikipediaArgs struct {
	EntityName string `json:"entity_name"`
	EntityType string `json:"entity_type"`
}

func (w *WikipediaTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	var args wikipediaArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid search_wikipedia arguments; %w", err)
	}
	if strings.TrimSpace(args.EntityName) == "" {
		return "", fmt.Errorf("search_wikipedia requires entity_name")
	}

	params := url.Values{}
	params.Set("action", "opensearch")
	params.Set("search", args.EntityName)
	params.Set("limit", "5")
	params.Set("redirects", "resolve")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, "GET", w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "lodestone/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wikipedia request failed; %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	// opensearch responses are [query, [titles], [descriptions], [urls]]
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) < 3 {
		return "", fmt.Errorf("unexpected wikipedia response shape")
	}
	var titles, descriptions []string
	_ = json.Unmarshal(raw[1], &titles)
	_ = json.Unmarshal(raw[2], &descriptions)

	if len(titles) == 0 {
		return fmt.Sprintf("No Wikipedia results for %q.", args.EntityName), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Wikipedia results for %q:\n", args.EntityName)
	for i, title := range titles {
		desc := ""
		if i < len(descriptions) {
			desc = descriptions[i]
		}
		fmt.Fprintf(&b, "- %s: %s\n", title, desc)
	}
	return b.String(), nil
}
