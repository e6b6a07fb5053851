// Package graphstore is the FalkorDB adapter: fragment writes, entity
// lookups, vector and full-text search, merge primitives, and community
// persistence. All Cypher generation lives here; callers work in terms of
// model types.
package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	falkordb "github.com/FalkorDB/falkordb-go/v2"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// Store is the interface for graph operations.
type Store interface {
	// Start initializes the graph connection and schema.
	Start(ctx context.Context) error

	// Stop drains pending writes and closes the connection.
	Stop(ctx context.Context) error

	// IsConnected returns true if connected to the database.
	IsConnected() bool

	// WriteFragment persists a validated graph fragment.
	WriteFragment(ctx context.Context, fragment *model.GraphFragment) error

	// EntityByID retrieves one entity node.
	EntityByID(ctx context.Context, id string) (*model.Entity, error)

	// FindEntityByNameType finds an entity by canonical name and type.
	FindEntityByNameType(ctx context.Context, name, entityType string) (*model.Entity, error)

	// SampleEntitiesByType returns up to limit entities of the given type.
	SampleEntitiesByType(ctx context.Context, entityType string, limit int) ([]*model.Entity, error)

	// EntitiesByDocument returns every entity recorded against the document.
	EntitiesByDocument(ctx context.Context, documentID int64) ([]*model.Entity, error)

	// VectorSearchEntities returns the k nearest entities to the query
	// vector with similarity at or above minScore.
	VectorSearchEntities(ctx context.Context, vec []float32, k int, minScore float64) ([]*model.Entity, error)

	// IncidentEdges returns every edge touching the node.
	IncidentEdges(ctx context.Context, nodeID string) ([]*IncidentEdge, error)

	// UpdateEntityAfterMerge rewrites the primary node's merged fields.
	UpdateEntityAfterMerge(ctx context.Context, e *model.Entity) error

	// CreateRelationshipEdge creates one RELATIONSHIP edge if absent.
	CreateRelationshipEdge(ctx context.Context, srcID, dstID, relType string, props map[string]any) error

	// DeleteEntityNode detach-deletes an entity node.
	DeleteEntityNode(ctx context.Context, id string) error

	// EntityAdjacency returns the undirected weighted entity projection.
	EntityAdjacency(ctx context.Context) (map[string]map[string]float64, error)

	// ReplaceCommunities drops all community nodes and membership edges
	// and clears the communities property on entities.
	ReplaceCommunities(ctx context.Context) error

	// WriteCommunity persists one community node and its membership edges.
	WriteCommunity(ctx context.Context, c *model.Community) error

	// LinkParentCommunity adds a PARENT_COMMUNITY edge between levels.
	LinkParentCommunity(ctx context.Context, childID, parentID string) error

	// SetEntityCommunities stores the per-entity level sequence.
	SetEntityCommunities(ctx context.Context, entityID string, levels []int64) error

	// CommunityStats computes weight and rank for one community.
	CommunityStats(ctx context.Context, communityID string) (weight, rank int64, err error)

	// UpdateCommunitySummary stores title, summary, and embedding.
	UpdateCommunitySummary(ctx context.Context, id, title, summary string, embedding []float32) error

	// EnsureCommunityIndexes creates the community vector and full-text
	// indexes if missing.
	EnsureCommunityIndexes(ctx context.Context) error

	// CommunityMembers returns member entities of a community.
	CommunityMembers(ctx context.Context, communityID string) ([]*model.Entity, error)

	// RelationsAmong returns RELATIONSHIP edges between the given entities.
	RelationsAmong(ctx context.Context, entityIDs []string) ([]*IncidentEdge, error)

	// DeleteDocumentGraph removes a document's nodes and orphaned entities.
	DeleteDocumentGraph(ctx context.Context, documentID int64) error

	// Counts returns node totals per label for health reporting.
	Counts(ctx context.Context) (map[string]int64, error)
}

// FalkorStore implements Store against FalkorDB.
type FalkorStore struct {
	mu        sync.RWMutex
	config    config.GraphConfig
	dims      int
	logger    *slog.Logger
	db        *falkordb.FalkorDB
	graph     *falkordb.Graph
	connected bool

	writeQueue chan writeOp
	wg         sync.WaitGroup
	stopChan   chan struct{}
}

// writeOp is a queued write operation.
type writeOp struct {
	query  string
	params map[string]any
	result chan error
}

// Option configures the FalkorDB store.
type Option func(*FalkorStore)

// WithConfig sets the graph configuration.
func WithConfig(cfg config.GraphConfig) Option {
	return func(s *FalkorStore) {
		s.config = cfg
	}
}

// WithDimensions sets the embedding dimension used for the vector index.
func WithDimensions(dims int) Option {
	return func(s *FalkorStore) {
		if dims > 0 {
			s.dims = dims
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FalkorStore) {
		s.logger = logger
	}
}

// NewFalkorStore creates a FalkorDB store client.
func NewFalkorStore(opts ...Option) *FalkorStore {
	s := &FalkorStore{
		config: config.GraphConfig{
			Host:         "localhost",
			Port:         6379,
			Name:         "lodestone",
			MaxRetries:   3,
			RetryDelayMs: 1000,
		},
		dims:       1536,
		logger:     slog.Default(),
		writeQueue: make(chan writeOp, 1000),
		stopChan:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

var _ Store = (*FalkorStore)(nil)

// Start connects to FalkorDB, ensures schema, and starts the write queue.
func (s *FalkorStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	password := os.Getenv(s.config.PasswordEnv)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	db, err := falkordb.FalkorDBNew(&falkordb.ConnectionOption{
		Addr:     addr,
		Password: password,
	})
	if err != nil {
		return errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("failed to connect to FalkorDB at %s; %w", addr, err))
	}

	s.db = db
	s.graph = db.SelectGraph(s.config.Name)
	s.connected = true

	if err := s.initSchema(ctx); err != nil {
		s.logger.Warn("failed to create schema indexes", "error", err)
	}

	s.wg.Add(1)
	go s.processWriteQueue()

	s.logger.Info("connected to FalkorDB",
		"host", s.config.Host,
		"port", s.config.Port,
		"graph", s.config.Name)

	return nil
}

// Stop drains pending writes and closes the connection.
func (s *FalkorStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("write queue drained")
	case <-ctx.Done():
		s.logger.Warn("write queue drain timed out")
	}

	s.connected = false
	s.logger.Info("disconnected from FalkorDB")

	return nil
}

// IsConnected returns true if connected to the database.
func (s *FalkorStore) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// processWriteQueue executes queued writes in order.
func (s *FalkorStore) processWriteQueue() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			for {
				select {
				case op := <-s.writeQueue:
					s.executeWrite(op)
				default:
					return
				}
			}
		case op := <-s.writeQueue:
			s.executeWrite(op)
		}
	}
}

// executeWrite runs one write with exponential-backoff retry.
func (s *FalkorStore) executeWrite(op writeOp) {
	retryDelay := time.Duration(s.config.RetryDelayMs) * time.Millisecond

	var err error
	for i := 0; i <= s.config.MaxRetries; i++ {
		_, err = s.graph.Query(op.query, op.params, nil)
		if err == nil {
			if op.result != nil {
				op.result <- nil
			}
			return
		}

		if i < s.config.MaxRetries {
			time.Sleep(retryDelay * time.Duration(1<<i))
		}
	}

	if op.result != nil {
		op.result <- err
	}
	s.logger.Error("graph write failed after retries", "error", err)
}

// writeSync queues a write and waits for it to complete.
func (s *FalkorStore) writeSync(query string, params map[string]any) error {
	if !s.IsConnected() {
		return errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("not connected to graph database"))
	}

	result := make(chan error, 1)
	select {
	case s.writeQueue <- writeOp{query: query, params: params, result: result}:
		return <-result
	default:
		return errkind.New(errkind.KindCapacity, fmt.Errorf("graph write queue full"))
	}
}

// writeAsync queues a write without waiting.
func (s *FalkorStore) writeAsync(query string, params map[string]any) error {
	if !s.IsConnected() {
		return errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("not connected to graph database"))
	}

	select {
	case s.writeQueue <- writeOp{query: query, params: params}:
		return nil
	default:
		return errkind.New(errkind.KindCapacity, fmt.Errorf("graph write queue full"))
	}
}

// read executes a read query directly.
func (s *FalkorStore) read(ctx context.Context, query string, params map[string]any) (*falkordb.QueryResult, error) {
	if !s.IsConnected() {
		return nil, errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("not connected to graph database"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.graph.ROQuery(query, params, nil)
	if err != nil {
		return nil, errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("graph query failed; %w", err))
	}
	return result, nil
}
