// Package serve provides the serve command, which runs the lodestone
// ingestion daemon in foreground mode.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lodestone-kg/lodestone/internal/chunker"
	"github.com/lodestone-kg/lodestone/internal/community"
	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/events"
	"github.com/lodestone-kg/lodestone/internal/extract"
	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/knowledge"
	"github.com/lodestone-kg/lodestone/internal/merger"
	"github.com/lodestone-kg/lodestone/internal/metastore"
	"github.com/lodestone-kg/lodestone/internal/objectstore"
	"github.com/lodestone-kg/lodestone/internal/pipeline"
	"github.com/lodestone-kg/lodestone/internal/providers/embeddings"
	"github.com/lodestone-kg/lodestone/internal/providers/llm"
	"github.com/lodestone-kg/lodestone/internal/server"
	"github.com/lodestone-kg/lodestone/internal/task"
	"github.com/lodestone-kg/lodestone/internal/unify"
)

// ServeCmd runs the ingestion daemon in foreground mode.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion daemon in foreground mode",
	Long: "Run the ingestion daemon in foreground mode.\n\n" +
		"The daemon exposes the HTTP API, runs the pipeline worker pool, and " +
		"connects to FalkorDB, the metadata database, and object storage. Use " +
		"standard backgrounding methods or a service runner (launchd, systemd) " +
		"to run it in the background.",
	Example: `  # Run in foreground
  lodestone serve

  # Run in background
  lodestone serve &`,
	PreRunE: validateServe,
	RunE:    runServe,
}

func validateServe(cmd *cobra.Command, args []string) error {
	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(events.WithLogger(logger))
	defer bus.Close()

	meta, err := metastore.Open(cfg.Meta, metastore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open metadata store; %w", err)
	}
	defer meta.Close()

	objects, err := objectstore.New(cfg.ObjectStore, objectstore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize object store; %w", err)
	}

	graph := graphstore.NewFalkorStore(
		graphstore.WithConfig(cfg.Graph),
		graphstore.WithDimensions(cfg.Embeddings.Dimensions),
		graphstore.WithLogger(logger),
	)
	if err := graph.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect to graph store; %w", err)
	}
	defer graph.Stop(context.Background())

	chatProvider := llm.FromConfig(cfg.LLM)
	embedder := embeddings.NewService(embeddings.FromConfig(cfg.Embeddings),
		embeddings.WithBatchSize(cfg.Embeddings.BatchSize),
		embeddings.WithCacheSize(cfg.Embeddings.CacheSize),
		embeddings.WithMaxRetries(cfg.Embeddings.MaxRetries),
		embeddings.WithLogger(logger),
	)

	chk, err := chunker.New(cfg.Chunking)
	if err != nil {
		return fmt.Errorf("invalid chunking configuration; %w", err)
	}

	extractor := knowledge.NewExtractor(chatProvider, cfg.Extraction, knowledge.WithLogger(logger))
	sampler := unify.NewSampler(graph, embedder, cfg.Unification, logger)

	agentOpts := []unify.AgentOption{unify.WithLogger(logger)}
	if cfg.Unification.EnableWikipediaTool {
		tools := unify.NewToolRegistry()
		tools.Register(unify.NewWikipediaTool())
		agentOpts = append(agentOpts, unify.WithTools(tools))
	}
	agent := unify.NewAgent(embedder, chatProvider, cfg.Unification, agentOpts...)

	merge := merger.New(graph,
		merger.WithAliasMax(cfg.Unification.AliasMax),
		merger.WithLogger(logger),
	)
	detector := community.NewDetector(graph, chatProvider, embedder, cfg.Community,
		community.WithLogger(logger))

	tasks := task.NewService(meta, bus, task.WithLogger(logger))

	orchestrator := pipeline.NewOrchestrator(&pipeline.Deps{
		Meta:      meta,
		Objects:   objects,
		Graph:     graph,
		Parsers:   extract.NewRegistry(),
		Chunker:   chk,
		Embedder:  embedder,
		Extractor: extractor,
		Sampler:   sampler,
		Agent:     agent,
		Merger:    merge,
		Detector:  detector,
		Tasks:     tasks,
		Bus:       bus,
		Cfg:       *cfg,
		Logger:    logger,
	})
	orchestrator.Start()
	defer orchestrator.Stop()

	srv := server.New(*cfg, orchestrator, tasks, meta, objects, graph, bus,
		server.WithLogger(logger))

	logger.Info("starting lodestone daemon",
		"bind", cfg.Server.Bind,
		"port", cfg.Server.Port,
		"graph", cfg.Graph.Name,
	)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error; %w", err)
	}

	return nil
}
