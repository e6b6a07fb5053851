package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lodestone-kg/lodestone/cmd/communities"
	configcmd "github.com/lodestone-kg/lodestone/cmd/config"
	"github.com/lodestone-kg/lodestone/cmd/serve"
	"github.com/lodestone-kg/lodestone/cmd/version"
	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/logging"
)

// logManager is the global logging manager, created in init() and upgraded after config loads
var logManager *logging.Manager

var lodestoneCmd = &cobra.Command{
	Use:   "lodestone",
	Short: "A Document-to-Knowledge-Graph Ingestion Service",
	Long: "Lodestone ingests documents into a knowledge graph.\n\n" +
		"Uploaded documents are parsed, chunked, and embedded; an LLM extracts typed " +
		"entities and relationships from each chunk, an agent unifies new entities against " +
		"the existing graph, and merged results are written to FalkorDB. Community " +
		"detection periodically clusters the entity graph and summarizes each cluster.\n\n",
	PersistentPreRunE: runInitialize,
}

func init() {
	logManager = logging.NewManager()

	lodestoneCmd.AddCommand(serve.ServeCmd)
	lodestoneCmd.AddCommand(communities.CommunitiesCmd)
	lodestoneCmd.AddCommand(configcmd.ConfigCmd)
	lodestoneCmd.AddCommand(version.VersionCmd)
}

func runInitialize(cmd *cobra.Command, args []string) error {
	logger := logManager.Logger()

	if err := config.Init(); err != nil {
		return err
	}

	cfg := config.Get()
	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		level = logging.DefaultLevel
		if cfg.LogLevel != "" {
			logger.Warn("invalid log level configured, using default",
				"configured", cfg.LogLevel, "default", "info")
		}
	}

	if cfg.LogFile != "" {
		if err := logManager.Upgrade(cfg.LogFile, level); err != nil {
			logger.Warn("failed to enable file logging, continuing with stderr only", "error", err)
		}
	} else {
		logManager.SetLevel(level)
	}

	// Components obtain loggers through slog.Default.
	slog.SetDefault(logManager.Logger())

	return nil
}

func Execute() error {
	lodestoneCmd.SilenceErrors = true
	lodestoneCmd.SilenceUsage = true

	defer func() { _ = logManager.Close() }()

	err := lodestoneCmd.Execute()

	if err != nil {
		cmd, _, _ := lodestoneCmd.Find(os.Args[1:])
		if cmd == nil {
			cmd = lodestoneCmd
		}

		fmt.Printf("Error: %v\n", err)
		if !cmd.SilenceUsage {
			fmt.Printf("\n")
			cmd.SetOut(os.Stdout)
			_ = cmd.Usage()
		}

		return err
	}

	return nil
}
