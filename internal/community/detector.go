package community

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/providers"
	"github.com/lodestone-kg/lodestone/internal/providers/embeddings"
)

// Detector recomputes the community hierarchy from the entity graph.
// Refresh drops the previous structure entirely; community ids are only
// stable for an unchanged graph.
type Detector struct {
	store       graphstore.Store
	llm         providers.LLMProvider
	embedder    *embeddings.Service
	maxLevels   int
	parallelism int
	logger      *slog.Logger

	// refreshMu serializes refreshes; concurrent calls would race on the
	// drop-and-recompute cycle.
	refreshMu sync.Mutex
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// NewDetector creates a community detector.
func NewDetector(store graphstore.Store, llm providers.LLMProvider, embedder *embeddings.Service, cfg config.CommunityConfig, opts ...Option) *Detector {
	d := &Detector{
		store:       store,
		llm:         llm,
		embedder:    embedder,
		maxLevels:   cfg.MaxLevels,
		parallelism: cfg.Parallelism,
		logger:      slog.Default(),
	}
	if d.maxLevels <= 0 {
		d.maxLevels = config.DefaultCommunityMaxLevels
	}
	if d.parallelism <= 0 {
		d.parallelism = config.DefaultCommunityParallelism
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RefreshStats reports what a refresh produced.
type RefreshStats struct {
	Entities    int `json:"entities"`
	Levels      int `json:"levels"`
	Communities int `json:"communities"`
	Summarized  int `json:"summarized"`
}

// Refresh recomputes the full hierarchy: cluster, persist, compute stats,
// then title and summarize the finest-level communities.
func (d *Detector) Refresh(ctx context.Context) (*RefreshStats, error) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	adjacency, err := d.store.EntityAdjacency(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading entity adjacency; %w", err)
	}

	nodes := make([]string, 0, len(adjacency))
	for id := range adjacency {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	if err := d.store.ReplaceCommunities(ctx); err != nil {
		return nil, fmt.Errorf("dropping previous communities; %w", err)
	}

	stats := &RefreshStats{Entities: len(nodes)}
	if len(nodes) == 0 {
		d.logger.Info("community refresh skipped, no entities")
		return stats, nil
	}

	levels := Hierarchy(nodes, adjacency, d.maxLevels)
	stats.Levels = len(levels)

	communities, err := d.persist(ctx, nodes, levels)
	if err != nil {
		return nil, err
	}
	stats.Communities = len(communities)

	summarized := d.summarizeAll(ctx, communities)
	stats.Summarized = summarized

	if err := d.store.EnsureCommunityIndexes(ctx); err != nil {
		d.logger.Warn("community index creation failed", "error", err)
	}

	d.logger.Info("community refresh complete",
		"entities", stats.Entities,
		"levels", stats.Levels,
		"communities", stats.Communities,
		"summarized", stats.Summarized)
	return stats, nil
}

// persist writes community nodes, parent links, per-entity level sequences,
// and weight/rank stats. It returns the level-0 communities for
// summarization.
func (d *Detector) persist(ctx context.Context, nodes []string, levels []Level) ([]*model.Community, error) {
	var levelZero []*model.Community

	for levelNum, level := range levels {
		clusterIDs := make([]int, 0, len(level.Clusters))
		for c := range level.Clusters {
			clusterIDs = append(clusterIDs, c)
		}
		sort.Ints(clusterIDs)

		for _, clusterID := range clusterIDs {
			members := level.Clusters[clusterID]
			entityIDs := make([]string, len(members))
			for i, idx := range members {
				entityIDs[i] = nodes[idx]
			}
			sort.Strings(entityIDs)

			community := &model.Community{
				ID:        model.CommunityID(levelNum, clusterID),
				Level:     levelNum,
				EntityIDs: entityIDs,
			}
			if err := d.store.WriteCommunity(ctx, community); err != nil {
				return nil, fmt.Errorf("writing community %s; %w", community.ID, err)
			}

			weight, rank, err := d.store.CommunityStats(ctx, community.ID)
			if err != nil {
				d.logger.Warn("community stats failed", "community", community.ID, "error", err)
			} else {
				community.Weight = int(weight)
				community.Rank = int(rank)
				// Membership edges already exist; this pass only updates props
				update := &model.Community{ID: community.ID, Level: levelNum, Weight: community.Weight, Rank: community.Rank}
				if err := d.store.WriteCommunity(ctx, update); err != nil {
					return nil, fmt.Errorf("updating community %s stats; %w", community.ID, err)
				}
			}

			if levelNum == 0 {
				levelZero = append(levelZero, community)
			}
		}

		if levelNum > 0 {
			if err := d.linkParents(ctx, levels[levelNum-1], level, levelNum); err != nil {
				return nil, err
			}
		}
	}

	for i, id := range nodes {
		sequence := make([]int64, len(levels))
		for levelNum, level := range levels {
			sequence[levelNum] = int64(level.Assignment[i])
		}
		if err := d.store.SetEntityCommunities(ctx, id, sequence); err != nil {
			return nil, fmt.Errorf("setting communities on %s; %w", id, err)
		}
	}

	return levelZero, nil
}

// linkParents connects each child community to the coarser community its
// members landed in. Every member of a child shares the same parent, so
// one representative suffices.
func (d *Detector) linkParents(ctx context.Context, child, parent Level, parentLevel int) error {
	linked := make(map[int]bool, len(child.Clusters))
	for clusterID, members := range child.Clusters {
		if linked[clusterID] || len(members) == 0 {
			continue
		}
		linked[clusterID] = true

		childID := model.CommunityID(parentLevel-1, clusterID)
		parentID := model.CommunityID(parentLevel, parent.Assignment[members[0]])
		if err := d.store.LinkParentCommunity(ctx, childID, parentID); err != nil {
			return fmt.Errorf("linking %s to %s; %w", childID, parentID, err)
		}
	}
	return nil
}
