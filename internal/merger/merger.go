// Package merger applies entity merge operations to the shared graph:
// alias union, confidence bump, edge rewiring, and duplicate deletion.
// Re-applying an operation is a no-op.
package merger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// Operation is one merge to apply: duplicates collapse into the primary.
type Operation struct {
	PrimaryID    string
	DuplicateIDs []string

	// MergedName and MergedDescription come from the unification agent;
	// empty values keep the primary's current fields.
	MergedName        string
	MergedDescription string
	EntityType        string

	Confidence float64
	Reason     string
}

// Result summarizes one applied operation.
type Result struct {
	PrimaryID string
	Merged    int
	Skipped   int
}

// Merger executes merge operations against the graph store.
type Merger struct {
	store    graphstore.Store
	aliasMax int
	logger   *slog.Logger

	// invalidate is called with each merged-away entity id so similarity
	// caches drop stale pairs.
	invalidate func(id string)

	locks *nodeLocks
}

// MergerOption configures the merger.
type MergerOption func(*Merger)

// WithAliasMax caps the alias list on merged primaries.
func WithAliasMax(n int) MergerOption {
	return func(m *Merger) {
		if n > 0 {
			m.aliasMax = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MergerOption {
	return func(m *Merger) {
		m.logger = logger
	}
}

// WithInvalidator sets the cache invalidation hook.
func WithInvalidator(fn func(id string)) MergerOption {
	return func(m *Merger) {
		m.invalidate = fn
	}
}

// New creates a merger over the given store.
func New(store graphstore.Store, opts ...MergerOption) *Merger {
	m := &Merger{
		store:    store,
		aliasMax: 20,
		logger:   slog.Default(),
		locks:    newNodeLocks(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Apply executes operations in order. Each operation locks every node id it
// touches, in sorted order, so overlapping operations serialize instead of
// interleaving.
func (m *Merger) Apply(ctx context.Context, ops []Operation) ([]Result, error) {
	results := make([]Result, 0, len(ops))
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := m.applyOne(ctx, op)
		if err != nil {
			return results, fmt.Errorf("merge into %s; %w", op.PrimaryID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (m *Merger) applyOne(ctx context.Context, op Operation) (Result, error) {
	ids := append([]string{op.PrimaryID}, op.DuplicateIDs...)
	unlock := m.locks.lockAll(ids)
	defer unlock()

	result := Result{PrimaryID: op.PrimaryID}

	primary, err := m.resolvePrimary(ctx, op)
	if err != nil {
		return result, err
	}
	if primary == nil {
		result.Skipped = len(op.DuplicateIDs)
		m.logger.Warn("merge primary not found, skipping operation",
			"primary_id", op.PrimaryID)
		return result, nil
	}
	result.PrimaryID = primary.ID

	var duplicates []*model.Entity
	for _, dupID := range op.DuplicateIDs {
		if dupID == primary.ID {
			continue
		}
		dup, err := m.store.EntityByID(ctx, dupID)
		if err != nil {
			return result, err
		}
		if dup == nil {
			// Already merged away
			result.Skipped++
			continue
		}
		duplicates = append(duplicates, dup)
	}

	m.mergeFields(primary, duplicates, op)
	if err := m.store.UpdateEntityAfterMerge(ctx, primary); err != nil {
		return result, err
	}

	for _, dup := range duplicates {
		if err := m.rewire(ctx, primary, dup); err != nil {
			return result, err
		}
		if err := m.store.DeleteEntityNode(ctx, dup.ID); err != nil {
			return result, err
		}
		if m.invalidate != nil {
			m.invalidate(dup.ID)
		}
		result.Merged++
	}
	if m.invalidate != nil && result.Merged > 0 {
		m.invalidate(primary.ID)
	}

	m.logger.Info("merge operation applied",
		"primary_id", primary.ID,
		"merged", result.Merged,
		"skipped", result.Skipped,
		"reason", op.Reason)

	return result, nil
}

// resolvePrimary finds the primary node, preferring an existing graph node
// with the same canonical name and type over a fresh extraction id.
func (m *Merger) resolvePrimary(ctx context.Context, op Operation) (*model.Entity, error) {
	primary, err := m.store.EntityByID(ctx, op.PrimaryID)
	if err != nil {
		return nil, err
	}
	if primary != nil {
		return primary, nil
	}
	if op.MergedName != "" && op.EntityType != "" {
		return m.store.FindEntityByNameType(ctx, op.MergedName, op.EntityType)
	}
	return nil, nil
}

// mergeFields folds the duplicates into the primary's record. The alias
// union is sorted by length ascending before capping so shorter canonical
// forms survive; re-running the same merge reproduces the same alias list.
func (m *Merger) mergeFields(primary *model.Entity, duplicates []*model.Entity, op Operation) {
	if op.MergedName != "" {
		primary.Name = op.MergedName
	}
	if op.MergedDescription != "" {
		primary.Description = op.MergedDescription
	}

	aliasSet := make(map[string]bool)
	addAlias := func(a string) {
		a = strings.TrimSpace(a)
		if a == "" || strings.EqualFold(a, primary.Name) {
			return
		}
		aliasSet[a] = true
	}
	for _, a := range primary.Aliases {
		addAlias(a)
	}
	for _, dup := range duplicates {
		addAlias(dup.Name)
		for _, a := range dup.Aliases {
			addAlias(a)
		}
	}

	aliases := make([]string, 0, len(aliasSet))
	for a := range aliasSet {
		aliases = append(aliases, a)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) < len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	if len(aliases) > m.aliasMax {
		aliases = aliases[:m.aliasMax]
	}
	primary.Aliases = aliases

	if len(duplicates) > 0 {
		primary.Confidence += 0.1
		if primary.Confidence > 1.0 {
			primary.Confidence = 1.0
		}
	}
	for _, dup := range duplicates {
		if !containsString(primary.MergedFrom, dup.ID) {
			primary.MergedFrom = append(primary.MergedFrom, dup.ID)
		}
	}
}

// rewire repoints the duplicate's RELATIONSHIP edges at the primary,
// collapsing edges that duplicate an existing (other, type, direction)
// triple. Structural edges (HAS_ENTITY, IN_COMMUNITY) are recreated toward
// the primary the same way; everything left is removed with the node.
func (m *Merger) rewire(ctx context.Context, primary, dup *model.Entity) error {
	dupEdges, err := m.store.IncidentEdges(ctx, dup.ID)
	if err != nil {
		return err
	}
	primaryEdges, err := m.store.IncidentEdges(ctx, primary.ID)
	if err != nil {
		return err
	}

	existing := make(map[string]bool, len(primaryEdges))
	for _, e := range primaryEdges {
		existing[edgeKey(e)] = true
	}

	for _, e := range dupEdges {
		if e.OtherID == primary.ID || e.OtherID == dup.ID {
			continue
		}
		key := edgeKey(e)
		if existing[key] {
			continue
		}
		existing[key] = true

		var createErr error
		switch e.Type {
		case model.EdgeRelationship:
			relType, _ := e.Props["relationship_type"].(string)
			if relType == "" {
				relType = "related_to"
			}
			if e.Outgoing {
				createErr = m.store.CreateRelationshipEdge(ctx, primary.ID, e.OtherID, relType, nil)
			} else {
				createErr = m.store.CreateRelationshipEdge(ctx, e.OtherID, primary.ID, relType, nil)
			}
		case model.EdgeHasEntity:
			// Chunk mention edges always point at the entity
			createErr = m.createStructuralEdge(ctx, e.OtherID, primary.ID, model.EdgeHasEntity)
		case model.EdgeInCommunity:
			createErr = m.createStructuralEdge(ctx, primary.ID, e.OtherID, model.EdgeInCommunity)
		}
		if createErr != nil {
			return createErr
		}
	}

	return nil
}

func (m *Merger) createStructuralEdge(ctx context.Context, srcID, dstID, edgeType string) error {
	fragment := &model.GraphFragment{
		Edges: []*model.Edge{{
			ID:       model.EdgeID(srcID, dstID, edgeType),
			SourceID: srcID,
			TargetID: dstID,
			Type:     edgeType,
		}},
	}
	return m.store.WriteFragment(ctx, fragment)
}

func edgeKey(e *graphstore.IncidentEdge) string {
	dir := "out"
	if !e.Outgoing {
		dir = "in"
	}
	relType, _ := e.Props["relationship_type"].(string)
	return e.OtherID + "|" + e.Type + "|" + relType + "|" + dir
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// nodeLocks provides per-node mutexes acquired in sorted order.
type nodeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newNodeLocks() *nodeLocks {
	return &nodeLocks{locks: make(map[string]*sync.Mutex)}
}

func (n *nodeLocks) lockAll(ids []string) (unlock func()) {
	sorted := append([]string{}, ids...)
	sort.Strings(sorted)

	var acquired []*sync.Mutex
	seen := make(map[string]bool)
	for _, id := range sorted {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		n.mu.Lock()
		lock, ok := n.locks[id]
		if !ok {
			lock = &sync.Mutex{}
			n.locks[id] = lock
		}
		n.mu.Unlock()

		lock.Lock()
		acquired = append(acquired, lock)
	}

	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
