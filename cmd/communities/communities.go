// Package communities provides the communities parent command and
// subcommands for offline community maintenance.
package communities

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lodestone-kg/lodestone/internal/community"
	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/providers/embeddings"
	"github.com/lodestone-kg/lodestone/internal/providers/llm"
)

// CommunitiesCmd is the parent command for community maintenance.
var CommunitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "Manage knowledge graph communities",
	Long: "Manage knowledge graph communities.\n\n" +
		"Communities are clusters of related entities computed from the graph's " +
		"relationship structure. Each community carries an LLM-generated title and " +
		"summary used for high-level retrieval.",
}

func init() {
	CommunitiesCmd.AddCommand(refreshCmd)
}

// refreshCmd recomputes the community hierarchy without going through the
// daemon. Useful for scheduled maintenance and after bulk imports.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute the community hierarchy",
	Long: "Recompute the community hierarchy.\n\n" +
		"Drops all existing communities, re-runs hierarchical clustering over the " +
		"entity graph, and regenerates titles and summaries. Connects directly to " +
		"the graph store; the daemon does not need to be running.",
	Example: `  # Recompute communities
  lodestone communities refresh`,
	PreRunE: validateRefresh,
	RunE:    runRefresh,
}

func validateRefresh(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	detector := community.NewDetector(graph, chatProvider, embedder, cfg.Community,
		community.WithLogger(logger))

	stats, err := detector.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("community refresh failed; %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Refreshed communities: %d entities, %d levels, %d communities, %d summarized\n",
		stats.Entities, stats.Levels, stats.Communities, stats.Summarized)
	return nil
}
