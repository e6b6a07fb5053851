package config

import "github.com/spf13/viper"

// Default configuration values.
const (
	DefaultLogLevel = "info"
	DefaultLogFile  = "~/.config/lodestone/lodestone.log"

	DefaultServerBind            = "127.0.0.1"
	DefaultServerPort            = 7800
	DefaultServerShutdownTimeout = 30 // seconds
	DefaultServerMaxUploadBytes  = 128 << 20

	DefaultGraphHost           = "localhost"
	DefaultGraphPort           = 6379
	DefaultGraphName           = "lodestone"
	DefaultGraphPasswordEnv    = "LODESTONE_GRAPH_PASSWORD"
	DefaultGraphMaxRetries     = 3
	DefaultGraphRetryDelayMs   = 1000
	DefaultGraphQueryTimeoutMs = 30000

	DefaultMetaDSNEnv = "LODESTONE_META_DSN"

	DefaultObjectStoreBucket       = "lodestone-documents"
	DefaultObjectStoreRegion       = "us-east-1"
	DefaultObjectStoreAccessKeyEnv = "LODESTONE_S3_ACCESS_KEY"
	DefaultObjectStoreSecretKeyEnv = "LODESTONE_S3_SECRET_KEY"

	DefaultLLMProvider       = "openai-compatible"
	DefaultLLMModel          = "gpt-4o-mini"
	DefaultLLMAPIKeyEnv      = "LODESTONE_LLM_API_KEY"
	DefaultLLMTemperature    = 0.1
	DefaultLLMMaxTokens      = 4096
	DefaultLLMTimeoutSecs    = 120
	DefaultLLMMaxRetries     = 3
	DefaultLLMRatePerSecond  = 5.0
	DefaultLLMCallIntervalMs = 100
	DefaultLLMErrorBackoffMs = 500

	DefaultEmbeddingsProvider    = "openai-compatible"
	DefaultEmbeddingsModel       = "text-embedding-3-small"
	DefaultEmbeddingsDimensions  = 1536
	DefaultEmbeddingsAPIKeyEnv   = "LODESTONE_EMBEDDINGS_API_KEY"
	DefaultEmbeddingsBatchSize   = 50
	DefaultEmbeddingsTimeoutSecs = 30
	DefaultEmbeddingsMaxRetries  = 3
	DefaultEmbeddingsCacheSize   = 10000

	DefaultExtractionMinEntityConf  = 0.3
	DefaultExtractionMinRelConf     = 0.5
	DefaultExtractionMaxRetries     = 3
	DefaultExtractionCallIntervalMs = 100

	DefaultChunkingStrategy = "adaptive"
	DefaultMaxChunkSize     = 1200
	DefaultMinChunkSize     = 100
	DefaultChunkOverlap     = 150

	DefaultUnificationMode    = "incremental"
	DefaultHighThreshold      = 0.85
	DefaultMediumThreshold    = 0.65
	DefaultLowThreshold       = 0.50
	DefaultSemanticWeight     = 0.4
	DefaultLexicalWeight      = 0.3
	DefaultContextualWeight   = 0.3
	DefaultPrescreenThreshold = 0.4
	DefaultMaxPairsPerBatch   = 30
	DefaultMaxIterations      = 5
	DefaultAliasMax           = 20
	DefaultSampleSize         = 50
	DefaultSampleTimeoutSecs  = 30

	DefaultCommunityMaxLevels   = 3
	DefaultCommunityParallelism = 10

	DefaultPipelineWorkers    = 4
	DefaultPipelineQueueSize  = 10000
	DefaultPipelineSubWorkers = 4
	DefaultPipelineWorkDir    = "/tmp/lodestone"
)

// DefaultEntityTypes is the closed set of entity types the extractor may emit.
var DefaultEntityTypes = []string{
	"person", "organization", "location", "event", "concept",
	"technology", "product", "time",
}

// DefaultRelationTypes is the closed set of relation types the extractor may emit.
var DefaultRelationTypes = []string{
	"contains", "belongs_to", "located_in", "works_for", "causes",
	"uses", "part_of", "related_to", "produces", "precedes",
}

// setViperDefaults registers all default configuration values with a viper
// instance. Called before reading config files so unset keys resolve.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", DefaultLogFile)

	v.SetDefault("server.bind", DefaultServerBind)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)
	v.SetDefault("server.max_upload_bytes", DefaultServerMaxUploadBytes)

	v.SetDefault("graph.host", DefaultGraphHost)
	v.SetDefault("graph.port", DefaultGraphPort)
	v.SetDefault("graph.name", DefaultGraphName)
	v.SetDefault("graph.password_env", DefaultGraphPasswordEnv)
	v.SetDefault("graph.max_retries", DefaultGraphMaxRetries)
	v.SetDefault("graph.retry_delay_ms", DefaultGraphRetryDelayMs)
	v.SetDefault("graph.query_timeout_ms", DefaultGraphQueryTimeoutMs)

	v.SetDefault("meta.dsn_env", DefaultMetaDSNEnv)

	v.SetDefault("object_store.bucket", DefaultObjectStoreBucket)
	v.SetDefault("object_store.region", DefaultObjectStoreRegion)
	v.SetDefault("object_store.access_key_env", DefaultObjectStoreAccessKeyEnv)
	v.SetDefault("object_store.secret_key_env", DefaultObjectStoreSecretKeyEnv)

	v.SetDefault("llm.provider", DefaultLLMProvider)
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.api_key_env", DefaultLLMAPIKeyEnv)
	v.SetDefault("llm.temperature", DefaultLLMTemperature)
	v.SetDefault("llm.max_tokens", DefaultLLMMaxTokens)
	v.SetDefault("llm.timeout_seconds", DefaultLLMTimeoutSecs)
	v.SetDefault("llm.max_retries", DefaultLLMMaxRetries)
	v.SetDefault("llm.rate_per_second", DefaultLLMRatePerSecond)
	v.SetDefault("llm.call_interval_ms", DefaultLLMCallIntervalMs)
	v.SetDefault("llm.error_backoff_ms", DefaultLLMErrorBackoffMs)

	v.SetDefault("embeddings.provider", DefaultEmbeddingsProvider)
	v.SetDefault("embeddings.model", DefaultEmbeddingsModel)
	v.SetDefault("embeddings.dimensions", DefaultEmbeddingsDimensions)
	v.SetDefault("embeddings.api_key_env", DefaultEmbeddingsAPIKeyEnv)
	v.SetDefault("embeddings.batch_size", DefaultEmbeddingsBatchSize)
	v.SetDefault("embeddings.timeout_seconds", DefaultEmbeddingsTimeoutSecs)
	v.SetDefault("embeddings.max_retries", DefaultEmbeddingsMaxRetries)
	v.SetDefault("embeddings.cache_size", DefaultEmbeddingsCacheSize)

	v.SetDefault("extraction.entity_types", DefaultEntityTypes)
	v.SetDefault("extraction.relation_types", DefaultRelationTypes)
	v.SetDefault("extraction.min_entity_confidence", DefaultExtractionMinEntityConf)
	v.SetDefault("extraction.min_relation_confidence", DefaultExtractionMinRelConf)
	v.SetDefault("extraction.max_retries", DefaultExtractionMaxRetries)
	v.SetDefault("extraction.call_interval_ms", DefaultExtractionCallIntervalMs)

	v.SetDefault("chunking.strategy", DefaultChunkingStrategy)
	v.SetDefault("chunking.max_chunk_size", DefaultMaxChunkSize)
	v.SetDefault("chunking.min_chunk_size", DefaultMinChunkSize)
	v.SetDefault("chunking.overlap", DefaultChunkOverlap)

	v.SetDefault("unification.default_mode", DefaultUnificationMode)
	v.SetDefault("unification.high_threshold", DefaultHighThreshold)
	v.SetDefault("unification.medium_threshold", DefaultMediumThreshold)
	v.SetDefault("unification.low_threshold", DefaultLowThreshold)
	v.SetDefault("unification.semantic_weight", DefaultSemanticWeight)
	v.SetDefault("unification.lexical_weight", DefaultLexicalWeight)
	v.SetDefault("unification.contextual_weight", DefaultContextualWeight)
	v.SetDefault("unification.prescreen_threshold", DefaultPrescreenThreshold)
	v.SetDefault("unification.max_pairs_per_batch", DefaultMaxPairsPerBatch)
	v.SetDefault("unification.max_iterations", DefaultMaxIterations)
	v.SetDefault("unification.alias_max", DefaultAliasMax)
	v.SetDefault("unification.sample_size", DefaultSampleSize)
	v.SetDefault("unification.sample_timeout_seconds", DefaultSampleTimeoutSecs)
	v.SetDefault("unification.enable_wikipedia_tool", true)

	v.SetDefault("community.max_levels", DefaultCommunityMaxLevels)
	v.SetDefault("community.parallelism", DefaultCommunityParallelism)

	v.SetDefault("pipeline.workers", DefaultPipelineWorkers)
	v.SetDefault("pipeline.queue_size", DefaultPipelineQueueSize)
	v.SetDefault("pipeline.sub_workers", DefaultPipelineSubWorkers)
	v.SetDefault("pipeline.work_dir", DefaultPipelineWorkDir)
	v.SetDefault("pipeline.retain_failed", false)
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() Config {
	v := viper.New()
	setViperDefaults(v)

	cfg := Config{}
	// Unmarshal from defaults cannot fail: the defaults mirror the struct.
	_ = v.Unmarshal(&cfg)
	return cfg
}
