// Package pipeline executes named, stepwise ingestion jobs over documents.
// The orchestrator runs a worker pool over a bounded queue; each job's
// steps run sequentially, report weighted progress, and stop on failure or
// cancellation.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/lodestone-kg/lodestone/internal/chunker"
	"github.com/lodestone-kg/lodestone/internal/community"
	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/events"
	"github.com/lodestone-kg/lodestone/internal/extract"
	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/knowledge"
	"github.com/lodestone-kg/lodestone/internal/merger"
	"github.com/lodestone-kg/lodestone/internal/metastore"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/objectstore"
	"github.com/lodestone-kg/lodestone/internal/providers/embeddings"
	"github.com/lodestone-kg/lodestone/internal/task"
	"github.com/lodestone-kg/lodestone/internal/unify"
)

// Pipeline names.
const (
	PipelineRAG   = "rag"
	PipelineGraph = "graph"
)

// Deps bundles the components the steps operate on.
type Deps struct {
	Meta      metastore.Store
	Objects   objectstore.Store
	Graph     graphstore.Store
	Parsers   *extract.Registry
	Chunker   *chunker.Chunker
	Embedder  *embeddings.Service
	Extractor *knowledge.Extractor
	Sampler   *unify.Sampler
	Agent     *unify.Agent
	Merger    *merger.Merger
	Detector  *community.Detector
	Tasks     *task.Service
	Bus       events.Bus
	Cfg       config.Config
	Logger    *slog.Logger
}

// State is the rolling state a pipeline accumulates across its steps.
type State struct {
	OwnerID  int64
	Document *model.Document
	Mode     unify.Mode

	// LocalPath is the temporary working copy of the document bytes,
	// removed when the job finishes either way.
	LocalPath string

	RawText string
	Text    string
	Title   string

	Chunks    []*model.Chunk
	Entities  []*model.Entity
	Relations []*model.Relation

	UnifyResult *unify.Result
	MergeOps    []merger.Operation
	Fragment    *model.GraphFragment

	// progress and detail report into the currently running step.
	progress func(pct float64)
	detail   func(key string, value any)

	// failed marks the job for working-file retention when configured.
	failed bool
}

// Progress reports within-step progress in [0,100].
func (s *State) Progress(pct float64) {
	if s.progress != nil {
		s.progress(pct)
	}
}

// Detail records an intermediate result on the current step.
func (s *State) Detail(key string, value any) {
	if s.detail != nil {
		s.detail(key, value)
	}
}

// Step is one named, weighted phase of a pipeline.
type Step struct {
	Name        string
	Description string
	Type        string
	Weight      int
	Run         func(ctx context.Context, deps *Deps, st *State) error
}

// ragPipeline ingests a document for vector search only: bytes in object
// storage, chunks with embeddings in the graph, no entity extraction.
func ragPipeline() []Step {
	return []Step{
		{Name: "validate", Description: "Validate input", Type: "validation", Weight: 5, Run: stepValidate},
		{Name: "upload-bytes", Description: "Persist original bytes", Type: "storage", Weight: 10, Run: stepUploadBytes},
		{Name: "extract-text", Description: "Parse document text", Type: "parsing", Weight: 30, Run: stepExtractText},
		{Name: "preprocess", Description: "Normalize text", Type: "parsing", Weight: 15, Run: stepPreprocess},
		{Name: "embed", Description: "Chunk and embed text", Type: "embedding", Weight: 30, Run: stepChunkAndEmbed},
		{Name: "store-vectors", Description: "Write chunk vectors", Type: "graph", Weight: 10, Run: stepStoreVectors},
	}
}

// graphPipeline ingests a document into the knowledge graph: parse, chunk,
// embed, extract, unify, and merge.
func graphPipeline() []Step {
	return []Step{
		{Name: "parse", Description: "Parse document text", Type: "parsing", Weight: 8, Run: stepParse},
		{Name: "chunk", Description: "Split text into chunks", Type: "chunking", Weight: 8, Run: stepChunk},
		{Name: "embed", Description: "Embed chunks", Type: "embedding", Weight: 15, Run: stepEmbedChunks},
		{Name: "extract", Description: "Extract entities and relations", Type: "extraction", Weight: 20, Run: stepExtract},
		{Name: "unify", Description: "Unify entities against the graph", Type: "unification", Weight: 19, Run: stepUnify},
		{Name: "build-fragment", Description: "Build graph fragment", Type: "graph", Weight: 15, Run: stepBuildFragment},
		{Name: "write-graph", Description: "Write fragment and apply merges", Type: "graph", Weight: 15, Run: stepWriteGraph},
	}
}

// unificationPipeline re-runs entity unification for one document.
func unificationPipeline() []Step {
	return []Step{
		{Name: "load-entities", Description: "Load document entities", Type: "graph", Weight: 20, Run: stepLoadEntities},
		{Name: "unify", Description: "Unify entities against the graph", Type: "unification", Weight: 50, Run: stepUnifyExisting},
		{Name: "apply-merges", Description: "Apply merge operations", Type: "graph", Weight: 30, Run: stepApplyMerges},
	}
}

// communityPipeline recomputes the community hierarchy.
func communityPipeline() []Step {
	return []Step{
		{Name: "refresh-communities", Description: "Recompute community hierarchy", Type: "community", Weight: 100, Run: stepRefreshCommunities},
	}
}

// stepsFor returns the task steps for a pipeline definition.
func stepsFor(pipeline []Step) []model.TaskStep {
	steps := make([]model.TaskStep, len(pipeline))
	for i, s := range pipeline {
		steps[i] = model.TaskStep{
			Name:        s.Name,
			Description: s.Description,
			Type:        s.Type,
			Weight:      s.Weight,
		}
	}
	return steps
}
