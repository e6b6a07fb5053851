package config

import (
	"fmt"
	"strings"
)

var validStrategies = map[string]bool{
	"fixed":     true,
	"sentence":  true,
	"paragraph": true,
	"adaptive":  true,
}

var validUnificationModes = map[string]bool{
	"incremental":     true,
	"sampling":        true,
	"global_semantic": true,
}

// Validate checks a loaded configuration for internal consistency.
// It collects all violations so operators can fix everything in one pass.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Embeddings.Dimensions <= 0 {
		problems = append(problems, "embeddings.dimensions must be positive")
	}
	if cfg.Embeddings.BatchSize <= 0 {
		problems = append(problems, "embeddings.batch_size must be positive")
	}

	if len(cfg.Extraction.EntityTypes) == 0 {
		problems = append(problems, "extraction.entity_types must not be empty")
	}
	if len(cfg.Extraction.RelationTypes) == 0 {
		problems = append(problems, "extraction.relation_types must not be empty")
	}

	if !validStrategies[cfg.Chunking.Strategy] {
		problems = append(problems, fmt.Sprintf("chunking.strategy %q is not one of fixed|sentence|paragraph|adaptive", cfg.Chunking.Strategy))
	}
	if cfg.Chunking.MinChunkSize <= 0 || cfg.Chunking.MaxChunkSize <= cfg.Chunking.MinChunkSize {
		problems = append(problems, "chunking sizes must satisfy 0 < min_chunk_size < max_chunk_size")
	}
	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap > cfg.Chunking.MaxChunkSize/2 {
		problems = append(problems, "chunking.overlap must be in [0, max_chunk_size/2]")
	}

	u := cfg.Unification
	if !validUnificationModes[u.DefaultMode] {
		problems = append(problems, fmt.Sprintf("unification.default_mode %q is not one of incremental|sampling|global_semantic", u.DefaultMode))
	}
	if !(u.LowThreshold < u.MediumThreshold && u.MediumThreshold < u.HighThreshold) {
		problems = append(problems, "unification thresholds must satisfy low < medium < high")
	}
	if u.HighThreshold > 1 || u.LowThreshold < 0 {
		problems = append(problems, "unification thresholds must lie in [0,1]")
	}
	weightSum := u.SemanticWeight + u.LexicalWeight + u.ContextualWeight
	if weightSum < 0.999 || weightSum > 1.001 {
		problems = append(problems, fmt.Sprintf("unification similarity weights must sum to 1.0, got %.3f", weightSum))
	}
	if u.MaxPairsPerBatch <= 0 {
		problems = append(problems, "unification.max_pairs_per_batch must be positive")
	}
	if u.AliasMax <= 0 {
		problems = append(problems, "unification.alias_max must be positive")
	}

	if cfg.Community.MaxLevels <= 0 {
		problems = append(problems, "community.max_levels must be positive")
	}
	if cfg.Community.Parallelism <= 0 {
		problems = append(problems, "community.parallelism must be positive")
	}

	if cfg.Pipeline.Workers <= 0 {
		problems = append(problems, "pipeline.workers must be positive")
	}
	if cfg.Pipeline.QueueSize <= 0 {
		problems = append(problems, "pipeline.queue_size must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
