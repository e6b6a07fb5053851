// Package decision classifies entity pairs into merge decisions based on
// similarity scores and detected conflicts. Decisions are advisory records;
// applying them is the graph merger's job.
package decision

import (
	"fmt"
	"math"
	"strings"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/similarity"
)

// Class is the merge classification for an entity pair.
type Class string

const (
	ClassAutoMerge   Class = "auto-merge"
	ClassConditional Class = "conditional"
	ClassReject      Class = "reject"
	ClassConflict    Class = "conflict-detected"
)

// Conflict is one detected inconsistency between a pair of entities.
type Conflict struct {
	Kind     string
	Detail   string
	Severity float64
}

// Conflict kinds.
const (
	ConflictTypeMismatch  = "type_mismatch"
	ConflictDescription   = "description_contradiction"
	ConflictProperty      = "property_mismatch"
	ConflictConfidenceGap = "confidence_gap"
)

// Decision is the full structured record for one pair.
type Decision struct {
	Class      Class
	Similarity similarity.Score
	Conflicts  []Conflict

	// Confidence is the similarity confidence discounted by conflict
	// severity and the decision class multiplier.
	Confidence float64

	Reason string
}

// Engine applies thresholds and conflict rules to similarity scores.
type Engine struct {
	high   float64
	medium float64
	low    float64
}

// NewEngine creates a decision engine from unification thresholds.
func NewEngine(cfg config.UnificationConfig) *Engine {
	return &Engine{
		high:   cfg.HighThreshold,
		medium: cfg.MediumThreshold,
		low:    cfg.LowThreshold,
	}
}

// Decide classifies one pair. The initial class comes from the combined
// similarity; conflicts then downgrade it and discount the confidence.
func (e *Engine) Decide(a, b *model.Entity, score similarity.Score) Decision {
	class := e.initialClass(score.Combined)
	conflicts := scanConflicts(a, b)

	meanSeverity := 0.0
	forceConflict := false
	for _, c := range conflicts {
		meanSeverity += c.Severity
		if c.Kind == ConflictTypeMismatch && c.Severity > 0.7 {
			forceConflict = true
		}
	}
	if len(conflicts) > 0 {
		meanSeverity /= float64(len(conflicts))
	}

	reason := fmt.Sprintf("similarity %.3f (semantic %.2f, lexical %.2f, contextual %.2f)",
		score.Combined, score.Semantic, score.Lexical, score.Contextual)

	switch {
	case forceConflict:
		class = ClassConflict
		reason += "; type mismatch forces conflict"
	case meanSeverity > 0.6:
		switch class {
		case ClassAutoMerge:
			class = ClassConditional
		case ClassConditional:
			class = ClassReject
		}
		reason += fmt.Sprintf("; downgraded on conflict severity %.2f", meanSeverity)
	case meanSeverity > 0.3:
		if class == ClassAutoMerge {
			class = ClassConditional
			reason += fmt.Sprintf("; downgraded on conflict severity %.2f", meanSeverity)
		}
	}

	return Decision{
		Class:      class,
		Similarity: score,
		Conflicts:  conflicts,
		Confidence: score.Confidence * (1 - 0.5*meanSeverity) * classMultiplier(class),
		Reason:     reason,
	}
}

func (e *Engine) initialClass(combined float64) Class {
	switch {
	case combined >= e.high:
		return ClassAutoMerge
	case combined >= e.medium:
		return ClassConditional
	default:
		return ClassReject
	}
}

func classMultiplier(class Class) float64 {
	switch class {
	case ClassAutoMerge:
		return 1.0
	case ClassConditional:
		return 0.8
	case ClassReject:
		return 0.3
	default:
		return 0.1
	}
}

// antonymPairs is the contradiction table for description scanning. Both
// orders are checked.
var antonymPairs = [][2]string{
	{"alive", "dead"},
	{"active", "inactive"},
	{"public", "private"},
	{"open", "closed"},
	{"founded", "dissolved"},
	{"acquired", "independent"},
	{"male", "female"},
	{"ancient", "modern"},
	{"former", "current"},
}

func scanConflicts(a, b *model.Entity) []Conflict {
	var conflicts []Conflict

	if !strings.EqualFold(a.Type, b.Type) {
		conflicts = append(conflicts, Conflict{
			Kind:     ConflictTypeMismatch,
			Detail:   fmt.Sprintf("%s vs %s", a.Type, b.Type),
			Severity: 0.8,
		})
	}

	if c, ok := descriptionConflict(a.Description, b.Description); ok {
		conflicts = append(conflicts, c)
	}

	conflicts = append(conflicts, propertyConflicts(a.Properties, b.Properties)...)

	if gap := math.Abs(a.Confidence - b.Confidence); gap > 0.4 {
		conflicts = append(conflicts, Conflict{
			Kind:     ConflictConfidenceGap,
			Detail:   fmt.Sprintf("confidence %.2f vs %.2f", a.Confidence, b.Confidence),
			Severity: 0.5 * gap,
		})
	}

	return conflicts
}

func descriptionConflict(da, db string) (Conflict, bool) {
	la, lb := strings.ToLower(da), strings.ToLower(db)
	if la == "" || lb == "" {
		return Conflict{}, false
	}
	for _, pair := range antonymPairs {
		if (containsWord(la, pair[0]) && containsWord(lb, pair[1])) ||
			(containsWord(la, pair[1]) && containsWord(lb, pair[0])) {
			return Conflict{
				Kind:     ConflictDescription,
				Detail:   fmt.Sprintf("%q vs %q", pair[0], pair[1]),
				Severity: 0.6,
			}, true
		}
	}
	return Conflict{}, false
}

func containsWord(text, word string) bool {
	for _, f := range strings.Fields(text) {
		if strings.Trim(f, ".,;:!?\"'()") == word {
			return true
		}
	}
	return false
}

// propertyConflicts compares values for keys present on both sides.
// Numeric values conflict when their relative difference exceeds 0.5;
// strings conflict when they differ case-folded.
func propertyConflicts(pa, pb map[string]any) []Conflict {
	var conflicts []Conflict
	for key, va := range pa {
		vb, ok := pb[key]
		if !ok {
			continue
		}

		na, aNum := asFloat(va)
		nb, bNum := asFloat(vb)
		if aNum && bNum {
			if ratio := relativeDifference(na, nb); ratio > 0.5 {
				conflicts = append(conflicts, Conflict{
					Kind:     ConflictProperty,
					Detail:   fmt.Sprintf("%s: %v vs %v", key, va, vb),
					Severity: ratio,
				})
			}
			continue
		}

		sa := fmt.Sprintf("%v", va)
		sb := fmt.Sprintf("%v", vb)
		if !strings.EqualFold(sa, sb) {
			conflicts = append(conflicts, Conflict{
				Kind:     ConflictProperty,
				Detail:   fmt.Sprintf("%s: %q vs %q", key, sa, sb),
				Severity: 0.4,
			})
		}
	}
	return conflicts
}

func relativeDifference(a, b float64) float64 {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 0
	}
	ratio := math.Abs(a-b) / larger
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
