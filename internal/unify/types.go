// Package unify decides which extracted entities refer to the same
// real-world object. A finite state machine drives vector prescreening,
// LLM adjudication with tool support, and conservative validation of the
// model's verdict.
package unify

import (
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/providers"
)

// Mode selects how candidates are gathered from the existing graph.
type Mode string

const (
	// ModeIncremental compares new entities against same-type graph
	// samples and vector neighbors.
	ModeIncremental Mode = "incremental"

	// ModeSampling compares against a bounded random sample per type.
	ModeSampling Mode = "sampling"

	// ModeGlobalSemantic compares against vector neighbors across the
	// whole graph regardless of type.
	ModeGlobalSemantic Mode = "global_semantic"
)

// ValidMode reports whether the string names a unification mode.
func ValidMode(s string) bool {
	switch Mode(s) {
	case ModeIncremental, ModeSampling, ModeGlobalSemantic:
		return true
	}
	return false
}

// Candidate is one entity under consideration, flagged by origin.
type Candidate struct {
	Entity *model.Entity

	// FromGraph is true when the entity was sampled from the existing
	// graph rather than newly extracted. Graph entities are preferred as
	// merge primaries so stable ids survive.
	FromGraph bool
}

// MergeGroup is one validated merge: duplicates collapse into the primary.
type MergeGroup struct {
	PrimaryID         string
	DuplicateIDs      []string
	MergedName        string
	MergedDescription string
	EntityType        string
	Confidence        float64
	Reason            string
}

// UncertainCase records entities the agent declined to merge.
type UncertainCase struct {
	EntityIDs []string
	Reason    string
}

// TraceEntry records one tool invocation during analysis.
type TraceEntry struct {
	Tool   string
	Args   string
	Output string
	Err    string
	Turn   int
}

// Result is the agent's output for one batch.
type Result struct {
	MergeGroups []MergeGroup
	Independent []string
	Uncertain   []UncertainCase
	Errors      []string
	Trace       []TraceEntry
}

// candidatePair is a prescreened pair with its vector similarity.
type candidatePair struct {
	i, j       int
	similarity float64
}

// state is the tagged FSM state. Each transition is a pure function of the
// agent's inputs returning the next state.
type state interface {
	stateName() string
}

type statePrescreen struct{}

type stateAnalysis struct {
	pairs        []candidatePair
	conversation []providers.Message
	turn         int
}

type stateFinal struct {
	pairs   []candidatePair
	verdict *rawVerdict
}

type stateDone struct {
	result *Result
}

type stateErrorRecovery struct {
	errs []error
}

func (statePrescreen) stateName() string     { return "vector-prescreen" }
func (stateAnalysis) stateName() string      { return "intelligent-analysis" }
func (stateFinal) stateName() string         { return "final-decision" }
func (stateDone) stateName() string          { return "done" }
func (stateErrorRecovery) stateName() string { return "error-recovery" }
