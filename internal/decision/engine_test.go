package decision

import (
	"testing"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/similarity"
)

func testEngine() *Engine {
	return NewEngine(config.UnificationConfig{
		HighThreshold:   0.85,
		MediumThreshold: 0.65,
		LowThreshold:    0.50,
	})
}

func entity(name, typ, desc string) *model.Entity {
	return &model.Entity{Name: name, Type: typ, Description: desc, Confidence: 0.9}
}

func scoreOf(combined float64) similarity.Score {
	return similarity.Score{
		Semantic:   combined,
		Lexical:    combined,
		Contextual: combined,
		Combined:   combined,
		Confidence: 0.9,
	}
}

func TestDecide_ThresholdClasses(t *testing.T) {
	e := testEngine()
	a := entity("Apple", "organization", "tech company")
	b := entity("Apple Inc.", "organization", "tech company")

	tests := []struct {
		combined float64
		want     Class
	}{
		{0.90, ClassAutoMerge},
		{0.85, ClassAutoMerge},
		{0.70, ClassConditional},
		{0.65, ClassConditional},
		{0.60, ClassReject},
		{0.10, ClassReject},
	}
	for _, tt := range tests {
		d := e.Decide(a, b, scoreOf(tt.combined))
		if d.Class != tt.want {
			t.Errorf("combined %.2f classified %s, want %s", tt.combined, d.Class, tt.want)
		}
	}
}

func TestDecide_TypeMismatchForcesConflict(t *testing.T) {
	e := testEngine()
	a := entity("Mercury", "planet", "innermost planet")
	b := entity("Mercury", "element", "liquid metal")

	d := e.Decide(a, b, scoreOf(0.95))
	if d.Class != ClassConflict {
		t.Errorf("type mismatch should force conflict even at high similarity, got %s", d.Class)
	}

	found := false
	for _, c := range d.Conflicts {
		if c.Kind == ConflictTypeMismatch {
			found = true
		}
	}
	if !found {
		t.Error("expected a type_mismatch conflict record")
	}
	if d.Confidence >= 0.5 {
		t.Errorf("conflict decisions should carry heavily discounted confidence, got %f", d.Confidence)
	}
}

func TestDecide_DescriptionContradictionDowngrades(t *testing.T) {
	e := testEngine()
	a := entity("Acme Corp", "organization", "an active company in logistics")
	b := entity("Acme Corp", "organization", "an inactive company in logistics")

	d := e.Decide(a, b, scoreOf(0.90))
	if d.Class != ClassConditional {
		t.Errorf("contradicting descriptions should downgrade auto-merge to conditional, got %s", d.Class)
	}

	found := false
	for _, c := range d.Conflicts {
		if c.Kind == ConflictDescription {
			found = true
		}
	}
	if !found {
		t.Error("expected a description_contradiction conflict record")
	}
}

func TestDecide_ConfidenceGapDetected(t *testing.T) {
	e := testEngine()
	a := entity("Widget", "product", "a widget")
	b := entity("Widget", "product", "a widget")
	a.Confidence = 0.95
	b.Confidence = 0.40

	d := e.Decide(a, b, scoreOf(0.90))
	found := false
	for _, c := range d.Conflicts {
		if c.Kind == ConflictConfidenceGap {
			found = true
		}
	}
	if !found {
		t.Error("expected a confidence_gap conflict for a 0.55 gap")
	}
}

func TestDecide_PropertyMismatch(t *testing.T) {
	e := testEngine()
	a := entity("Everest", "location", "a mountain")
	b := entity("Everest", "location", "a mountain")
	a.Properties = map[string]any{"height_m": 8849.0}
	b.Properties = map[string]any{"height_m": 1200.0}

	d := e.Decide(a, b, scoreOf(0.90))
	found := false
	for _, c := range d.Conflicts {
		if c.Kind == ConflictProperty {
			found = true
		}
	}
	if !found {
		t.Error("expected a property_mismatch conflict for diverging numeric values")
	}
	if d.Class == ClassAutoMerge {
		t.Errorf("severe property conflict should prevent auto-merge, got %s", d.Class)
	}
}

func TestDecide_CleanPairKeepsClassAndConfidence(t *testing.T) {
	e := testEngine()
	a := entity("Paris", "location", "capital of france")
	b := entity("Paris", "location", "capital of france")

	d := e.Decide(a, b, scoreOf(0.90))
	if d.Class != ClassAutoMerge {
		t.Fatalf("clean identical pair should auto-merge, got %s", d.Class)
	}
	if len(d.Conflicts) != 0 {
		t.Errorf("expected no conflicts, got %v", d.Conflicts)
	}
	if d.Confidence != 0.9 {
		t.Errorf("clean auto-merge should keep similarity confidence, got %f", d.Confidence)
	}
	if d.Reason == "" {
		t.Error("decision should carry a reason string")
	}
}
