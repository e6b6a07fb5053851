package config

import (
	"strings"
	"testing"
)

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("default configuration failed validation: %v", err)
	}
}

func TestValidate_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			"zero dimensions",
			func(c *Config) { c.Embeddings.Dimensions = 0 },
			"embeddings.dimensions",
		},
		{
			"empty entity types",
			func(c *Config) { c.Extraction.EntityTypes = nil },
			"extraction.entity_types",
		},
		{
			"unknown chunking strategy",
			func(c *Config) { c.Chunking.Strategy = "token" },
			"chunking.strategy",
		},
		{
			"inverted chunk sizes",
			func(c *Config) { c.Chunking.MinChunkSize = 2000 },
			"min_chunk_size < max_chunk_size",
		},
		{
			"oversized overlap",
			func(c *Config) { c.Chunking.Overlap = 1000 },
			"chunking.overlap",
		},
		{
			"unknown unification mode",
			func(c *Config) { c.Unification.DefaultMode = "aggressive" },
			"unification.default_mode",
		},
		{
			"unordered thresholds",
			func(c *Config) { c.Unification.MediumThreshold = 0.9 },
			"low < medium < high",
		},
		{
			"weights not summing to one",
			func(c *Config) { c.Unification.SemanticWeight = 0.9 },
			"sum to 1.0",
		},
		{
			"zero workers",
			func(c *Config) { c.Pipeline.Workers = 0 },
			"pipeline.workers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Embeddings.Dimensions = 0
	cfg.Chunking.Strategy = "bogus"
	cfg.Pipeline.QueueSize = 0

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"embeddings.dimensions", "chunking.strategy", "pipeline.queue_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("aggregated error missing %q: %v", want, err)
		}
	}
}
