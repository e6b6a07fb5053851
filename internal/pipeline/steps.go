package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/events"
	"github.com/lodestone-kg/lodestone/internal/fragment"
	"github.com/lodestone-kg/lodestone/internal/merger"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/unify"
)

// stepValidate rejects inputs the pipeline cannot process.
func stepValidate(ctx context.Context, deps *Deps, st *State) error {
	doc := st.Document
	if doc == nil {
		return errkind.New(errkind.KindLogic, fmt.Errorf("pipeline state has no document"))
	}
	if strings.TrimSpace(doc.Name) == "" {
		return errkind.New(errkind.KindInputInvalid, fmt.Errorf("document has no name"))
	}
	if !deps.Parsers.Supported(doc.Name) {
		return errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("unsupported file type %q", doc.Name))
	}

	if st.LocalPath != "" {
		info, err := os.Stat(st.LocalPath)
		if err != nil {
			return errkind.New(errkind.KindInputInvalid,
				fmt.Errorf("working file missing; %w", err))
		}
		if info.Size() == 0 {
			return errkind.New(errkind.KindInputInvalid, fmt.Errorf("document is empty"))
		}
		if max := deps.Cfg.Server.MaxUploadBytes; max > 0 && info.Size() > max {
			return errkind.New(errkind.KindInputInvalid,
				fmt.Errorf("document exceeds %d bytes", max))
		}
	}
	return nil
}

// stepUploadBytes persists the original bytes when they are not in the
// object store yet. Re-runs with an existing location are no-ops.
func stepUploadBytes(ctx context.Context, deps *Deps, st *State) error {
	doc := st.Document
	if doc.Location.ObjectKey != "" {
		return nil
	}
	if st.LocalPath == "" {
		return errkind.New(errkind.KindLogic,
			fmt.Errorf("document %d has neither stored bytes nor a working file", doc.ID))
	}

	file, err := os.Open(st.LocalPath)
	if err != nil {
		return fmt.Errorf("opening working file; %w", err)
	}
	defer file.Close()

	location, err := deps.Objects.Put(ctx, doc.OwnerID, doc.Name, doc.Location.ContentType, file)
	if err != nil {
		return fmt.Errorf("storing document bytes; %w", err)
	}

	doc.Location = *location
	if err := deps.Meta.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("recording storage location; %w", err)
	}
	st.Detail("object_key", location.ObjectKey)
	return nil
}

// stepExtractText parses the document into plain text.
func stepExtractText(ctx context.Context, deps *Deps, st *State) error {
	if err := ensureLocalCopy(ctx, deps, st); err != nil {
		return err
	}

	result, err := deps.Parsers.Parse(ctx, st.LocalPath)
	if err != nil {
		return fmt.Errorf("parsing %s; %w", st.Document.Name, err)
	}
	st.RawText = result.Text
	st.Title = result.Title
	st.Detail("characters", len(result.Text))
	return nil
}

// stepPreprocess normalizes the parsed text.
func stepPreprocess(ctx context.Context, deps *Deps, st *State) error {
	if strings.TrimSpace(st.RawText) == "" {
		return errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("document %d produced no text", st.Document.ID))
	}
	st.Text = st.RawText
	return nil
}

// stepChunkAndEmbed covers the vector-only ingestion: chunk the text and
// attach embeddings in one pass.
func stepChunkAndEmbed(ctx context.Context, deps *Deps, st *State) error {
	if err := stepChunk(ctx, deps, st); err != nil {
		return err
	}
	return stepEmbedChunks(ctx, deps, st)
}

// stepStoreVectors writes the document and chunk nodes without entities, so
// the document is vector-searchable even before knowledge extraction.
func stepStoreVectors(ctx context.Context, deps *Deps, st *State) error {
	frag := fragment.NewBuilder().Build(st.Document, st.Chunks, nil, nil)
	if err := fragment.Validate(frag); err != nil {
		return err
	}
	if err := deps.Graph.WriteFragment(ctx, frag); err != nil {
		return fmt.Errorf("writing chunk vectors; %w", err)
	}
	st.Detail("chunks", len(st.Chunks))
	return finishDocument(ctx, deps, st)
}

// stepParse combines text extraction and normalization for the graph
// pipeline, whose weights assume one parsing phase.
func stepParse(ctx context.Context, deps *Deps, st *State) error {
	if err := stepExtractText(ctx, deps, st); err != nil {
		return err
	}
	return stepPreprocess(ctx, deps, st)
}

// stepChunk splits the text into ordered chunks.
func stepChunk(ctx context.Context, deps *Deps, st *State) error {
	chunks, err := deps.Chunker.Chunk(st.Document.ID, st.Text)
	if err != nil {
		return err
	}
	st.Chunks = chunks
	st.Detail("chunks", len(chunks))
	return nil
}

// stepEmbedChunks attaches an embedding to every chunk.
func stepEmbedChunks(ctx context.Context, deps *Deps, st *State) error {
	if len(st.Chunks) == 0 {
		return errkind.New(errkind.KindLogic,
			fmt.Errorf("document %d has no chunks to embed", st.Document.ID))
	}

	texts := make([]string, len(st.Chunks))
	for i, chunk := range st.Chunks {
		texts[i] = chunk.Content
	}

	vectors, err := deps.Embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks; %w", err)
	}
	for i, chunk := range st.Chunks {
		chunk.Embedding = vectors[i]
	}
	st.Progress(100)
	return nil
}

// stepExtract pulls entities and relations from each chunk. A chunk whose
// extraction fails outright is skipped with a warning; the pipeline keeps
// going.
func stepExtract(ctx context.Context, deps *Deps, st *State) error {
	var entities []*model.Entity
	var relations []*model.Relation
	fallbacks := 0
	skipped := 0
	attempts := 0

	for i, chunk := range st.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := deps.Extractor.Extract(ctx, chunk)
		attempts++
		if err != nil {
			skipped++
			deps.Logger.Warn("chunk extraction skipped",
				"chunk_id", chunk.ID, "error", err)
			continue
		}
		if result.Skipped {
			skipped++
			continue
		}
		if result.Fallback {
			fallbacks++
		}
		for _, e := range result.Entities {
			e.DocumentID = st.Document.ID
			e.AddChunk(chunk.ID)
		}
		entities = append(entities, result.Entities...)
		relations = append(relations, result.Relations...)

		st.Progress(float64(i+1) / float64(len(st.Chunks)) * 100)
	}

	st.Entities = entities
	st.Relations = relations
	st.Detail("entities", len(entities))
	st.Detail("relations", len(relations))
	st.Detail("fallback_chunks", fallbacks)
	st.Detail("skipped_chunks", skipped)
	st.Detail("attempts", attempts)
	return nil
}

// stepUnify gathers graph candidates and runs the unification agent. The
// resulting merge groups become merge operations applied after the fragment
// write, keyed by graph node id.
func stepUnify(ctx context.Context, deps *Deps, st *State) error {
	if len(st.Entities) == 0 {
		return nil
	}

	candidates := deps.Sampler.Gather(ctx, st.Mode, st.Entities)
	result := deps.Agent.Run(ctx, candidates)

	st.UnifyResult = result
	st.MergeOps = mergeOperations(result, candidates)
	st.Detail("candidates", len(candidates))
	st.Detail("merge_groups", len(result.MergeGroups))
	st.Detail("uncertain", len(result.Uncertain))
	if len(result.Errors) > 0 {
		st.Detail("agent_errors", result.Errors)
	}
	return nil
}

// stepBuildFragment assembles and validates the document's graph fragment.
func stepBuildFragment(ctx context.Context, deps *Deps, st *State) error {
	frag := fragment.NewBuilder().Build(st.Document, st.Chunks, st.Entities, st.Relations)
	if err := fragment.Validate(frag); err != nil {
		return err
	}
	st.Fragment = frag
	st.Detail("nodes", len(frag.Nodes))
	st.Detail("edges", len(frag.Edges))
	return nil
}

// stepWriteGraph writes the fragment, applies the queued merge operations,
// and marks the document complete.
func stepWriteGraph(ctx context.Context, deps *Deps, st *State) error {
	if err := deps.Graph.WriteFragment(ctx, st.Fragment); err != nil {
		return fmt.Errorf("writing graph fragment; %w", err)
	}
	st.Progress(60)

	if len(st.MergeOps) > 0 {
		results, err := deps.Merger.Apply(ctx, st.MergeOps)
		if err != nil {
			return fmt.Errorf("applying merges; %w", err)
		}
		merged := 0
		for _, r := range results {
			merged += r.Merged
		}
		st.Detail("merged_entities", merged)
	}

	if err := finishDocument(ctx, deps, st); err != nil {
		return err
	}

	if deps.Bus != nil {
		_ = deps.Bus.Publish(ctx, events.NewEvent(events.DocumentIngested, events.DocumentIngestedPayload{
			DocumentID: st.Document.ID,
			Chunks:     len(st.Chunks),
			Entities:   len(st.Entities),
			Relations:  len(st.Relations),
		}))
	}
	return nil
}

// stepLoadEntities loads the document's entities for re-unification.
func stepLoadEntities(ctx context.Context, deps *Deps, st *State) error {
	entities, err := deps.Graph.EntitiesByDocument(ctx, st.Document.ID)
	if err != nil {
		return fmt.Errorf("loading document entities; %w", err)
	}
	if len(entities) == 0 {
		return errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("document %d has no entities in the graph", st.Document.ID))
	}
	st.Entities = entities
	st.Detail("entities", len(entities))
	return nil
}

// stepUnifyExisting runs unification over already-stored entities.
func stepUnifyExisting(ctx context.Context, deps *Deps, st *State) error {
	return stepUnify(ctx, deps, st)
}

// stepApplyMerges applies merge operations produced by re-unification.
func stepApplyMerges(ctx context.Context, deps *Deps, st *State) error {
	if len(st.MergeOps) == 0 {
		st.Detail("merged_entities", 0)
		return nil
	}

	results, err := deps.Merger.Apply(ctx, st.MergeOps)
	if err != nil {
		return fmt.Errorf("applying merges; %w", err)
	}
	merged := 0
	for _, r := range results {
		merged += r.Merged
	}
	st.Detail("merged_entities", merged)

	if deps.Bus != nil {
		_ = deps.Bus.Publish(ctx, events.NewEvent(events.UnificationComplete, map[string]any{
			"document_id": st.Document.ID,
			"merged":      merged,
		}))
	}
	return nil
}

// stepRefreshCommunities recomputes the community hierarchy.
func stepRefreshCommunities(ctx context.Context, deps *Deps, st *State) error {
	started := time.Now()
	stats, err := deps.Detector.Refresh(ctx)
	if err != nil {
		return err
	}
	st.Detail("entities", stats.Entities)
	st.Detail("levels", stats.Levels)
	st.Detail("communities", stats.Communities)
	st.Detail("summarized", stats.Summarized)

	if deps.Bus != nil {
		_ = deps.Bus.Publish(ctx, events.NewEvent(events.CommunityRefreshComplete, events.CommunityRefreshPayload{
			Levels:      stats.Levels,
			Communities: stats.Communities,
			Summarized:  stats.Summarized,
			Duration:    time.Since(started),
		}))
	}
	return nil
}

// ensureLocalCopy downloads the stored bytes when no working file exists.
func ensureLocalCopy(ctx context.Context, deps *Deps, st *State) error {
	if st.LocalPath != "" {
		return nil
	}
	doc := st.Document
	if doc.Location.ObjectKey == "" {
		return errkind.New(errkind.KindLogic,
			fmt.Errorf("document %d has no stored bytes", doc.ID))
	}

	workDir := deps.Cfg.Pipeline.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("creating work dir; %w", err)
	}

	dest := filepath.Join(workDir, fmt.Sprintf("doc%d_%s", doc.ID, filepath.Base(doc.Name)))
	if err := deps.Objects.Download(ctx, doc.Location.ObjectKey, dest); err != nil {
		return fmt.Errorf("downloading document bytes; %w", err)
	}
	st.LocalPath = dest
	return nil
}

// finishDocument marks the document completed in the metadata store.
func finishDocument(ctx context.Context, deps *Deps, st *State) error {
	if err := deps.Meta.UpdateDocumentStatus(ctx, st.Document.ID, model.DocumentCompleted); err != nil {
		return fmt.Errorf("marking document complete; %w", err)
	}
	st.Document.Status = model.DocumentCompleted
	return nil
}

// mergeOperations converts the agent's verdict into graph merge operations.
// Entity ids are mapped to graph node ids; duplicates that collapse onto
// the primary's node id are dropped since the fragment write already
// unified them.
func mergeOperations(result *unify.Result, candidates []unify.Candidate) []merger.Operation {
	nodeID := make(map[string]string, len(candidates))
	for _, c := range candidates {
		id := c.Entity.ID
		if strings.HasPrefix(id, "entity_") {
			nodeID[id] = id
		} else {
			nodeID[id] = c.Entity.NodeID()
		}
	}

	var ops []merger.Operation
	for _, group := range result.MergeGroups {
		primary, ok := nodeID[group.PrimaryID]
		if !ok {
			continue
		}
		var dups []string
		for _, dupID := range group.DuplicateIDs {
			node, ok := nodeID[dupID]
			if !ok || node == primary {
				continue
			}
			dups = append(dups, node)
		}
		if len(dups) == 0 {
			continue
		}
		ops = append(ops, merger.Operation{
			PrimaryID:         primary,
			DuplicateIDs:      dups,
			MergedName:        group.MergedName,
			MergedDescription: group.MergedDescription,
			EntityType:        group.EntityType,
			Confidence:        group.Confidence,
			Reason:            group.Reason,
		})
	}
	return ops
}
