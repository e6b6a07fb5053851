package unify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/decision"
	"github.com/lodestone-kg/lodestone/internal/providers"
	"github.com/lodestone-kg/lodestone/internal/providers/embeddings"
	"github.com/lodestone-kg/lodestone/internal/similarity"
)

// prescreenBlock bounds the pairwise similarity matrix computation so a
// large candidate set cannot blow up memory.
const prescreenBlock = 100

// Agent runs the unification state machine over candidate batches.
type Agent struct {
	embedder *embeddings.Service
	llm      providers.LLMProvider
	tools    *ToolRegistry
	scorer   *similarity.Calculator
	decider  *decision.Engine
	cfg      config.UnificationConfig
	logger   *slog.Logger
}

// AgentOption configures the agent.
type AgentOption func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithTools replaces the default tool registry.
func WithTools(tools *ToolRegistry) AgentOption {
	return func(a *Agent) {
		a.tools = tools
	}
}

// NewAgent creates a unification agent.
func NewAgent(embedder *embeddings.Service, llm providers.LLMProvider, cfg config.UnificationConfig, opts ...AgentOption) *Agent {
	a := &Agent{
		embedder: embedder,
		llm:      llm,
		scorer:   similarity.NewCalculator(cfg),
		decider:  decision.NewEngine(cfg),
		cfg:      cfg,
		logger:   slog.Default(),
	}

	registry := NewToolRegistry()
	if cfg.EnableWikipediaTool {
		registry.Register(NewWikipediaTool())
	}
	a.tools = registry

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Run unifies one candidate set. Oversized inputs are split into
// sub-batches whose outputs are unioned, then a consistency pass merges
// primaries sharing a name and type. Any unrecoverable failure degrades to
// an all-independent result instead of failing the caller.
func (a *Agent) Run(ctx context.Context, candidates []Candidate) *Result {
	if len(candidates) == 0 {
		return &Result{}
	}

	batchSize := a.cfg.MaxPairsPerBatch
	if batchSize <= 0 {
		batchSize = 30
	}

	if len(candidates) <= batchSize {
		return a.runBatch(ctx, candidates)
	}

	combined := &Result{}
	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		sub := a.runBatch(ctx, candidates[start:end])
		combined.MergeGroups = append(combined.MergeGroups, sub.MergeGroups...)
		combined.Independent = append(combined.Independent, sub.Independent...)
		combined.Uncertain = append(combined.Uncertain, sub.Uncertain...)
		combined.Errors = append(combined.Errors, sub.Errors...)
		combined.Trace = append(combined.Trace, sub.Trace...)
	}

	reconcilePrimaries(combined, candidates)
	return combined
}

// runBatch drives the state machine for one batch.
func (a *Agent) runBatch(ctx context.Context, candidates []Candidate) *Result {
	var current state = statePrescreen{}
	trace := &[]TraceEntry{}

	for {
		if err := ctx.Err(); err != nil {
			current = stateErrorRecovery{errs: []error{err}}
		}

		a.logger.Debug("unification state", "state", current.stateName(), "candidates", len(candidates))

		switch s := current.(type) {
		case statePrescreen:
			current = a.prescreen(ctx, candidates)

		case stateAnalysis:
			current = a.analyze(ctx, candidates, s, trace)

		case stateFinal:
			current = a.finalize(candidates, s, *trace)

		case stateDone:
			s.result.Trace = *trace
			return s.result

		case stateErrorRecovery:
			result := allIndependent(candidates)
			for _, err := range s.errs {
				result.Errors = append(result.Errors, err.Error())
			}
			result.Trace = *trace
			a.logger.Warn("unification degraded to all-independent",
				"errors", len(s.errs))
			return result
		}
	}
}

// prescreen ensures embeddings and emits pairs whose cosine similarity
// clears the prescreening threshold. An empty pair set short-circuits to
// the final decision with everything independent.
func (a *Agent) prescreen(ctx context.Context, candidates []Candidate) state {
	var missing []int
	var texts []string
	for i, c := range candidates {
		if len(c.Entity.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, c.Entity.EmbeddingText())
		}
	}
	if len(missing) > 0 {
		vectors, err := a.embedder.Embed(ctx, texts)
		if err != nil {
			return stateErrorRecovery{errs: []error{fmt.Errorf("prescreen embedding; %w", err)}}
		}
		for k, idx := range missing {
			candidates[idx].Entity.Embedding = vectors[k]
		}
	}

	threshold := a.cfg.PrescreenThreshold
	var pairs []candidatePair

	// Blocked upper-triangle scan keeps the working set bounded
	n := len(candidates)
	for bi := 0; bi < n; bi += prescreenBlock {
		biEnd := minInt(bi+prescreenBlock, n)
		for bj := bi; bj < n; bj += prescreenBlock {
			bjEnd := minInt(bj+prescreenBlock, n)
			for i := bi; i < biEnd; i++ {
				jStart := bj
				if bj == bi {
					jStart = i + 1
				}
				for j := jStart; j < bjEnd; j++ {
					cos := similarity.Cosine(candidates[i].Entity.Embedding, candidates[j].Entity.Embedding)
					sim := (cos + 1) / 2
					if sim >= threshold {
						pairs = append(pairs, candidatePair{i: i, j: j, similarity: sim})
					}
				}
			}
		}
	}

	if len(pairs) == 0 {
		return stateFinal{verdict: &rawVerdict{}}
	}

	return stateAnalysis{
		pairs: pairs,
		conversation: []providers.Message{
			{Role: providers.RoleSystem, Content: analysisSystemPrompt},
			{Role: providers.RoleUser, Content: buildAnalysisPrompt(candidates, pairs)},
		},
	}
}

// analyze drives the bounded multi-turn tool dialogue. Tool calls are
// executed and appended as tool messages; a final answer moves to the
// decision state. Exceeding max_iterations without an answer is an error.
func (a *Agent) analyze(ctx context.Context, candidates []Candidate, s stateAnalysis, trace *[]TraceEntry) state {
	maxIterations := a.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 5
	}

	if s.turn >= maxIterations {
		return stateErrorRecovery{errs: []error{
			fmt.Errorf("analysis exceeded %d iterations without a final answer", maxIterations)}}
	}

	resp, err := a.llm.Complete(ctx, providers.ChatRequest{
		Messages:    s.conversation,
		Tools:       a.tools.Definitions(),
		Temperature: 0.0,
	})
	if err != nil {
		return stateErrorRecovery{errs: []error{fmt.Errorf("analysis completion; %w", err)}}
	}

	if len(resp.ToolCalls) > 0 {
		s.conversation = append(s.conversation, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			output, execErr := a.tools.Execute(ctx, call)
			entry := TraceEntry{Tool: call.Name, Args: call.Arguments, Output: output, Turn: s.turn}
			if execErr != nil {
				entry.Err = execErr.Error()
				output = "tool error: " + execErr.Error()
			}
			*trace = append(*trace, entry)

			s.conversation = append(s.conversation, providers.Message{
				Role:       providers.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
		s.turn++
		return s
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		return stateErrorRecovery{errs: []error{fmt.Errorf("unparseable verdict; %w", err)}}
	}
	return stateFinal{pairs: s.pairs, verdict: verdict}
}

func allIndependent(candidates []Candidate) *Result {
	result := &Result{}
	for _, c := range candidates {
		result.Independent = append(result.Independent, c.Entity.ID)
	}
	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
