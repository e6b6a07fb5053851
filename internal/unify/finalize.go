package unify

import (
	"fmt"
	"strings"

	"github.com/lodestone-kg/lodestone/internal/decision"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// finalize validates the LLM verdict into a Result. Invalid groups are
// dropped with an error note rather than failing the batch; the guard
// downgrades insufficiently evidenced merges to uncertain, and the scoring
// gate vetoes groups the decision engine classifies as reject or conflict.
func (a *Agent) finalize(candidates []Candidate, s stateFinal, trace []TraceEntry) state {
	result := &Result{}
	assigned := make([]bool, len(candidates))

	for _, group := range s.verdict.MergeGroups {
		members, err := a.resolveGroup(candidates, assigned, group)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if len(members) < 2 {
			continue
		}

		primary := a.pickPrimary(candidates, members, group)

		reason, uncertain := a.guardGroup(candidates, members, group, trace)
		if !uncertain {
			reason, uncertain = a.scoreGate(candidates, members, primary)
		}
		if uncertain {
			ids := make([]string, len(members))
			for k, idx := range members {
				ids[k] = candidates[idx].Entity.ID
				assigned[idx] = false
			}
			result.Uncertain = append(result.Uncertain, UncertainCase{EntityIDs: ids, Reason: reason})
			continue
		}
		mg := MergeGroup{
			PrimaryID:         candidates[primary].Entity.ID,
			MergedName:        strings.TrimSpace(group.MergedName),
			MergedDescription: strings.TrimSpace(group.MergedDescription),
			EntityType:        candidates[primary].Entity.Type,
			Confidence:        group.Confidence,
			Reason:            group.Reason,
		}
		if mg.MergedName == "" {
			mg.MergedName = candidates[primary].Entity.Name
		}
		for _, idx := range members {
			if idx != primary {
				mg.DuplicateIDs = append(mg.DuplicateIDs, candidates[idx].Entity.ID)
			}
		}
		result.MergeGroups = append(result.MergeGroups, mg)
	}

	for _, uc := range s.verdict.UncertainCases {
		var ids []string
		for _, idx := range uc.Indices {
			if idx >= 0 && idx < len(candidates) && !assigned[idx] {
				ids = append(ids, candidates[idx].Entity.ID)
			}
		}
		if len(ids) > 0 {
			result.Uncertain = append(result.Uncertain, UncertainCase{EntityIDs: ids, Reason: uc.Reason})
		}
	}

	// Everything unassigned stays independent, whether or not the model
	// listed it.
	for i, c := range candidates {
		if !assigned[i] {
			result.Independent = append(result.Independent, c.Entity.ID)
		}
	}

	return stateDone{result: result}
}

// resolveGroup maps verdict indices to candidate indices, enforcing range
// and single-membership.
func (a *Agent) resolveGroup(candidates []Candidate, assigned []bool, group rawMergeGroup) ([]int, error) {
	indices := append([]int{group.PrimaryIndex}, group.DuplicateIndices...)
	seen := make(map[int]bool)
	var members []int
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) {
			return nil, fmt.Errorf("merge group index %d out of range", idx)
		}
		if seen[idx] {
			continue
		}
		if assigned[idx] {
			return nil, fmt.Errorf("entity %s appears in more than one merge group",
				candidates[idx].Entity.ID)
		}
		seen[idx] = true
		members = append(members, idx)
	}
	for _, idx := range members {
		assigned[idx] = true
	}
	return members, nil
}

// guardGroup applies the conservatism checks. Mixed types always fail;
// a low-confidence verdict with no supporting tool evidence fails too.
func (a *Agent) guardGroup(candidates []Candidate, members []int, group rawMergeGroup, trace []TraceEntry) (string, bool) {
	baseType := candidates[members[0]].Entity.Type
	for _, idx := range members[1:] {
		if !strings.EqualFold(candidates[idx].Entity.Type, baseType) {
			return fmt.Sprintf("mixed entity types %s and %s", baseType, candidates[idx].Entity.Type), true
		}
	}

	if group.Confidence < 0.95 && !a.hasToolEvidence(candidates, members, trace) {
		return fmt.Sprintf("confidence %.2f without tool evidence", group.Confidence), true
	}

	return "", false
}

// scoreGate cross-checks the verdict against the deterministic similarity
// and decision layers. A duplicate whose pairing with the primary classifies
// as reject or conflict downgrades the whole group, no matter how confident
// the model was.
func (a *Agent) scoreGate(candidates []Candidate, members []int, primary int) (string, bool) {
	for _, idx := range members {
		if idx == primary {
			continue
		}
		score := a.scorer.Calculate(candidates[primary].Entity, candidates[idx].Entity)
		d := a.decider.Decide(candidates[primary].Entity, candidates[idx].Entity, score)
		if d.Class == decision.ClassReject || d.Class == decision.ClassConflict {
			return fmt.Sprintf("%s vs %s classified %s (%s)",
				candidates[primary].Entity.Name, candidates[idx].Entity.Name,
				d.Class, d.Reason), true
		}
	}
	return "", false
}

// hasToolEvidence reports whether any tool invocation in the trace touched
// one of the group's member names.
func (a *Agent) hasToolEvidence(candidates []Candidate, members []int, trace []TraceEntry) bool {
	if len(trace) == 0 {
		return false
	}
	for _, idx := range members {
		name := strings.ToLower(candidates[idx].Entity.Name)
		for _, entry := range trace {
			if strings.Contains(strings.ToLower(entry.Args), name) ||
				strings.Contains(strings.ToLower(entry.Output), name) {
				return true
			}
		}
	}
	return false
}

// pickPrimary prefers a graph-sampled member so stable ids and relations
// survive the merge; among graph members, one sharing the proposed merged
// name wins.
func (a *Agent) pickPrimary(candidates []Candidate, members []int, group rawMergeGroup) int {
	mergedName := model.CanonicalName(group.MergedName)

	best := -1
	for _, idx := range members {
		if !candidates[idx].FromGraph {
			continue
		}
		if best < 0 {
			best = idx
		}
		if mergedName != "" && model.CanonicalName(candidates[idx].Entity.Name) == mergedName {
			return idx
		}
	}
	if best >= 0 {
		return best
	}

	if group.PrimaryIndex >= 0 && group.PrimaryIndex < len(candidates) {
		for _, idx := range members {
			if idx == group.PrimaryIndex {
				return idx
			}
		}
	}
	return members[0]
}

// reconcilePrimaries runs after sub-batch union: merge groups whose
// primaries share a canonical name and type collapse into one group so a
// split batch cannot produce two surviving primaries for the same entity.
func reconcilePrimaries(result *Result, candidates []Candidate) {
	byID := make(map[string]*model.Entity, len(candidates))
	for _, c := range candidates {
		byID[c.Entity.ID] = c.Entity
	}

	byKey := make(map[string]int)
	var merged []MergeGroup
	for _, group := range result.MergeGroups {
		primary := byID[group.PrimaryID]
		if primary == nil {
			merged = append(merged, group)
			continue
		}
		key := model.CanonicalName(primary.Name) + "|" + strings.ToLower(primary.Type)

		if at, ok := byKey[key]; ok {
			keep := &merged[at]
			if group.PrimaryID != keep.PrimaryID {
				keep.DuplicateIDs = append(keep.DuplicateIDs, group.PrimaryID)
			}
			keep.DuplicateIDs = append(keep.DuplicateIDs, group.DuplicateIDs...)
			if group.Confidence < keep.Confidence {
				keep.Confidence = group.Confidence
			}
			continue
		}

		byKey[key] = len(merged)
		merged = append(merged, group)
	}
	result.MergeGroups = merged
}
