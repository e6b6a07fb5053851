package community

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/providers"
)

const summarySystemPrompt = `You summarize clusters of related entities from a knowledge graph.

Given the entities and the relationships among them, answer with JSON only:
{
  "title": "a title of at most 4 words",
  "summary": "2-4 sentences describing what connects these entities"
}`

const maxTitleWords = 4

// summarizeAll generates titles, summaries, and summary embeddings for the
// finest-level communities with more than one member. A failed community is
// logged and skipped; the refresh still succeeds.
func (d *Detector) summarizeAll(ctx context.Context, communities []*model.Community) int {
	if d.llm == nil {
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)

	done := make(chan string, len(communities))
	for _, c := range communities {
		if len(c.EntityIDs) < 2 {
			continue
		}
		c := c
		g.Go(func() error {
			if err := d.summarizeOne(gctx, c); err != nil {
				d.logger.Warn("community summarization failed",
					"community", c.ID, "error", err)
				return nil
			}
			done <- c.ID
			return nil
		})
	}

	_ = g.Wait()
	close(done)

	count := 0
	for range done {
		count++
	}
	return count
}

func (d *Detector) summarizeOne(ctx context.Context, c *model.Community) error {
	members, err := d.store.CommunityMembers(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading members; %w", err)
	}
	if len(members) == 0 {
		return errors.New("community has no members")
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	relations, err := d.store.RelationsAmong(ctx, ids)
	if err != nil {
		return fmt.Errorf("loading relations; %w", err)
	}

	resp, err := d.llm.Complete(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: buildSummaryPrompt(members, relations)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return fmt.Errorf("summary completion; %w", err)
	}

	title, summary, err := parseSummary(resp.Content)
	if err != nil {
		return err
	}
	c.Title = title
	c.Summary = summary

	var embedding []float32
	if d.embedder != nil && summary != "" {
		embedding, err = d.embedder.EmbedOne(ctx, summary)
		if err != nil {
			d.logger.Warn("summary embedding failed", "community", c.ID, "error", err)
			embedding = nil
		}
	}
	c.Embedding = embedding

	if err := d.store.UpdateCommunitySummary(ctx, c.ID, title, summary, embedding); err != nil {
		return fmt.Errorf("storing summary; %w", err)
	}
	return nil
}

func buildSummaryPrompt(members []*model.Entity, relations []*graphstore.IncidentEdge) string {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}

	var b strings.Builder
	b.WriteString("Entities:\n")
	for _, m := range members {
		fmt.Fprintf(&b, "- %s (%s)", m.Name, m.Type)
		if m.Description != "" {
			fmt.Fprintf(&b, ": %s", truncateText(m.Description, 150))
		}
		b.WriteString("\n")
	}

	if len(relations) > 0 {
		b.WriteString("\nRelationships:\n")
		for _, r := range relations {
			src, _ := r.Props["source_id"].(string)
			relType, _ := r.Props["relationship_type"].(string)
			srcName := names[src]
			dstName := names[r.OtherID]
			if srcName == "" || dstName == "" {
				continue
			}
			fmt.Fprintf(&b, "- %s -[%s]-> %s\n", srcName, relType, dstName)
		}
	}

	b.WriteString("\nProduce the title and summary.")
	return b.String()
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// parseSummary decodes the model's JSON answer, tolerating code fences.
func parseSummary(content string) (string, string, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
	}

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return "", "", errors.New("no JSON object in summary response")
	}

	var parsed struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return "", "", fmt.Errorf("decoding summary response; %w", err)
	}

	title := clampTitle(parsed.Title)
	summary := strings.TrimSpace(parsed.Summary)
	if title == "" && summary == "" {
		return "", "", errors.New("summary response empty")
	}
	return title, summary, nil
}

// clampTitle trims the title to the word budget.
func clampTitle(title string) string {
	words := strings.Fields(title)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return strings.Join(words, " ")
}
