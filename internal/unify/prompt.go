package unify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const analysisSystemPrompt = `You are an ultra-conservative entity deduplication engineer. You decide whether entities extracted from documents refer to the same real-world object.

Merge ONLY when the evidence is explicit:
- identical canonical names
- well-known aliases or abbreviations (e.g. "IBM" / "International Business Machines")
- translations of the same name across languages
- Wikipedia redirect-style evidence obtained via tools

NEVER merge:
- competitors or different organizations in the same industry
- different people with similar roles or titles
- entities of different types
- entities that are merely related or similar

Use the search_wikipedia tool when alias or translation evidence would settle a case.

When you are done, answer with JSON only:
{
  "merge_groups": [
    {"primary_index": 0, "duplicate_indices": [2], "merged_name": "...", "merged_description": "...", "confidence": 0.97, "reason": "..."}
  ],
  "independent_entities": [1, 3],
  "uncertain_cases": [
    {"indices": [4, 5], "reason": "..."}
  ]
}`

// buildAnalysisPrompt enumerates the candidates and the prescreened pairs.
func buildAnalysisPrompt(candidates []Candidate, pairs []candidatePair) string {
	var b strings.Builder
	b.WriteString("Candidate entities:\n")
	for i, c := range candidates {
		e := c.Entity
		origin := "new"
		if c.FromGraph {
			origin = "graph"
		}
		fmt.Fprintf(&b, "[%d] name=%q type=%s origin=%s", i, e.Name, e.Type, origin)
		if len(e.Aliases) > 0 {
			fmt.Fprintf(&b, " aliases=%v", e.Aliases)
		}
		if e.Description != "" {
			fmt.Fprintf(&b, " description=%q", truncate(e.Description, 200))
		}
		b.WriteString("\n")
	}

	if len(pairs) > 0 {
		b.WriteString("\nPrescreened pairs (vector similarity):\n")
		for _, p := range pairs {
			fmt.Fprintf(&b, "[%d] <-> [%d]: %.3f\n", p.i, p.j, p.similarity)
		}
	}

	b.WriteString("\nDecide merge groups, independent entities, and uncertain cases.")
	return b.String()
}

// rawVerdict mirrors the JSON the model must return.
type rawVerdict struct {
	MergeGroups         []rawMergeGroup    `json:"merge_groups"`
	IndependentEntities []int              `json:"independent_entities"`
	UncertainCases      []rawUncertainCase `json:"uncertain_cases"`
}

type rawMergeGroup struct {
	PrimaryIndex      int     `json:"primary_index"`
	DuplicateIndices  []int   `json:"duplicate_indices"`
	MergedName        string  `json:"merged_name"`
	MergedDescription string  `json:"merged_description"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason"`
}

type rawUncertainCase struct {
	Indices []int  `json:"indices"`
	Reason  string `json:"reason"`
}

// parseVerdict decodes the model's final answer, tolerating code fences and
// surrounding prose.
func parseVerdict(content string) (*rawVerdict, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty verdict")
	}
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
		return nil, errors.New("no JSON object in verdict")
	}

	var verdict rawVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
