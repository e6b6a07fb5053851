// Package similarity scores entity pairs for unification. A pair's score
// blends semantic (embedding), lexical (name edit distance), and contextual
// (type, description, keyword) evidence, with a confidence derived from how
// much the three signals agree.
package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/lodestone-kg/lodestone/internal/cache"
	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// Score is the full breakdown for one entity pair. Calculate(a, b) and
// Calculate(b, a) produce identical scores.
type Score struct {
	Semantic   float64
	Lexical    float64
	Contextual float64
	Combined   float64

	// Confidence reflects signal agreement: high when the three component
	// scores are close to each other, low when they diverge.
	Confidence float64
}

// Calculator computes pairwise entity similarity with memoized combined
// scores.
type Calculator struct {
	semanticWeight   float64
	lexicalWeight    float64
	contextualWeight float64
	cache            *cache.SimilarityCache
}

// NewCalculator creates a calculator from unification config weights.
func NewCalculator(cfg config.UnificationConfig) *Calculator {
	return &Calculator{
		semanticWeight:   cfg.SemanticWeight,
		lexicalWeight:    cfg.LexicalWeight,
		contextualWeight: cfg.ContextualWeight,
		cache:            cache.NewSimilarityCache(8192),
	}
}

// Calculate scores a pair of entities.
func (c *Calculator) Calculate(a, b *model.Entity) Score {
	sem := c.semantic(a, b)
	lex := c.lexical(a, b)
	ctx := c.contextual(a, b)

	combined := c.semanticWeight*sem + c.lexicalWeight*lex + c.contextualWeight*ctx
	c.cache.Put(a.ID, b.ID, combined)

	return Score{
		Semantic:   sem,
		Lexical:    lex,
		Contextual: ctx,
		Combined:   combined,
		Confidence: confidence(sem, lex, ctx),
	}
}

// CachedCombined returns the memoized combined score for a pair, if any.
func (c *Calculator) CachedCombined(aID, bID string) (float64, bool) {
	return c.cache.Get(aID, bID)
}

// Invalidate removes cached scores involving the entity, after a merge
// changes its identity.
func (c *Calculator) Invalidate(id string) {
	c.cache.Invalidate(id)
}

// confidence rewards agreement between the component scores:
// 0.7 * (1 - min(stddev/0.5, 1)) + 0.3 * mean.
func confidence(scores ...float64) float64 {
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(scores)))

	disagreement := stddev / 0.5
	if disagreement > 1 {
		disagreement = 1
	}
	return 0.7*(1-disagreement) + 0.3*mean
}

// semantic is cosine similarity of the entity embeddings remapped from
// [-1, 1] to [0, 1]. Missing embeddings score a neutral 0.5.
func (c *Calculator) semantic(a, b *model.Entity) float64 {
	if len(a.Embedding) == 0 || len(b.Embedding) == 0 || len(a.Embedding) != len(b.Embedding) {
		return 0.5
	}
	return (Cosine(a.Embedding, b.Embedding) + 1) / 2
}

// Cosine computes cosine similarity between two vectors in [-1, 1].
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// lexical is the best normalized edit similarity across both entities'
// names and aliases.
func (c *Calculator) lexical(a, b *model.Entity) float64 {
	namesA := append([]string{a.Name}, a.Aliases...)
	namesB := append([]string{b.Name}, b.Aliases...)

	best := 0.0
	for _, na := range namesA {
		for _, nb := range namesB {
			if s := editSimilarity(na, nb); s > best {
				best = s
			}
		}
	}
	return best
}

// editSimilarity is 1 - levenshtein/maxLen over canonicalized names.
func editSimilarity(a, b string) float64 {
	a = model.CanonicalName(a)
	b = model.CanonicalName(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// contextual blends type match (0.5), description similarity (0.3), and
// keyword overlap (0.2).
func (c *Calculator) contextual(a, b *model.Entity) float64 {
	typeScore := 0.0
	if strings.EqualFold(a.Type, b.Type) {
		typeScore = 1.0
	}

	descScore := descriptionSimilarity(a.Description, b.Description)
	keywordScore := jaccard(keywords(a), keywords(b))

	return 0.5*typeScore + 0.3*descScore + 0.2*keywordScore
}

// descriptionSimilarity is token-level Jaccard over descriptions; two empty
// descriptions are treated as weak agreement rather than identity.
func descriptionSimilarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0.5
	}
	return jaccard(ta, tb)
}

// keywords collects salient tokens from an entity's description and source
// text.
func keywords(e *model.Entity) map[string]bool {
	tokens := tokenize(e.Description)
	for t := range tokenize(e.SourceText) {
		tokens[t] = true
	}
	return tokens
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(f) >= 3 {
			tokens[f] = true
		}
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// TopPairs returns pairs scoring at or above threshold, highest first.
func TopPairs(scores map[[2]string]float64, threshold float64) [][2]string {
	var pairs [][2]string
	for pair, s := range scores {
		if s >= threshold {
			pairs = append(pairs, pair)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		si, sj := scores[pairs[i]], scores[pairs[j]]
		if si != sj {
			return si > sj
		}
		return pairs[i][0] < pairs[j][0]
	})
	return pairs
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
