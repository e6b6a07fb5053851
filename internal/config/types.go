package config

import "os"

// Config is the root configuration structure for the application.
type Config struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	LogFile  string `yaml:"log_file" mapstructure:"log_file"`

	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Graph       GraphConfig       `yaml:"graph" mapstructure:"graph"`
	Meta        MetaConfig        `yaml:"meta" mapstructure:"meta"`
	ObjectStore ObjectStoreConfig `yaml:"object_store" mapstructure:"object_store"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" mapstructure:"embeddings"`
	Extraction  ExtractionConfig  `yaml:"extraction" mapstructure:"extraction"`
	Chunking    ChunkingConfig    `yaml:"chunking" mapstructure:"chunking"`
	Unification UnificationConfig `yaml:"unification" mapstructure:"unification"`
	Community   CommunityConfig   `yaml:"community" mapstructure:"community"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Bind            string `yaml:"bind" mapstructure:"bind"`
	Port            int    `yaml:"port" mapstructure:"port"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
	MaxUploadBytes  int64  `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// GraphConfig holds FalkorDB graph database configuration.
type GraphConfig struct {
	Host           string `yaml:"host" mapstructure:"host"`
	Port           int    `yaml:"port" mapstructure:"port"`
	Name           string `yaml:"name" mapstructure:"name"`
	PasswordEnv    string `yaml:"password_env" mapstructure:"password_env"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayMs   int    `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	QueryTimeoutMs int    `yaml:"query_timeout_ms" mapstructure:"query_timeout_ms"`
}

// MetaConfig holds the relational metadata store configuration.
type MetaConfig struct {
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
	DSNEnv string `yaml:"dsn_env" mapstructure:"dsn_env"`
}

// ResolveDSN returns the DSN from config or falls back to environment.
func (c *MetaConfig) ResolveDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return os.Getenv(c.DSNEnv)
}

// ObjectStoreConfig holds S3-compatible object storage configuration.
type ObjectStoreConfig struct {
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Region       string `yaml:"region" mapstructure:"region"`
	Endpoint     string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyEnv string `yaml:"access_key_env" mapstructure:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env" mapstructure:"secret_key_env"`
	TempDir      string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// LLMConfig holds the chat/completions provider configuration.
type LLMConfig struct {
	Provider        string  `yaml:"provider" mapstructure:"provider"` // openai-compatible | mock
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	Model           string  `yaml:"model" mapstructure:"model"`
	APIKey          *string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyEnv       string  `yaml:"api_key_env" mapstructure:"api_key_env"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens       int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSeconds  int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSecond   float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	CallIntervalMs  int     `yaml:"call_interval_ms" mapstructure:"call_interval_ms"`
	ErrorBackoffMs  int     `yaml:"error_backoff_ms" mapstructure:"error_backoff_ms"`
}

// ResolveAPIKey returns the API key from config or falls back to environment.
func (c *LLMConfig) ResolveAPIKey() string {
	if c.APIKey != nil && *c.APIKey != "" {
		return *c.APIKey
	}
	return os.Getenv(c.APIKeyEnv)
}

// EmbeddingsConfig holds embeddings provider configuration.
type EmbeddingsConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"` // openai-compatible | mock
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Model          string  `yaml:"model" mapstructure:"model"`
	Dimensions     int     `yaml:"dimensions" mapstructure:"dimensions"`
	APIKey         *string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyEnv      string  `yaml:"api_key_env" mapstructure:"api_key_env"`
	BatchSize      int     `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	CacheSize      int     `yaml:"cache_size" mapstructure:"cache_size"`
}

// ResolveAPIKey returns the API key from config or falls back to environment.
func (c *EmbeddingsConfig) ResolveAPIKey() string {
	if c.APIKey != nil && *c.APIKey != "" {
		return *c.APIKey
	}
	return os.Getenv(c.APIKeyEnv)
}

// ExtractionConfig holds knowledge extraction configuration.
type ExtractionConfig struct {
	EntityTypes           []string `yaml:"entity_types,flow" mapstructure:"entity_types"`
	RelationTypes         []string `yaml:"relation_types,flow" mapstructure:"relation_types"`
	MinEntityConfidence   float64  `yaml:"min_entity_confidence" mapstructure:"min_entity_confidence"`
	MinRelationConfidence float64  `yaml:"min_relation_confidence" mapstructure:"min_relation_confidence"`
	MaxRetries            int      `yaml:"max_retries" mapstructure:"max_retries"`
	CallIntervalMs        int      `yaml:"call_interval_ms" mapstructure:"call_interval_ms"`
}

// ChunkingConfig holds chunker configuration.
type ChunkingConfig struct {
	Strategy     string `yaml:"strategy" mapstructure:"strategy"` // fixed | sentence | paragraph | adaptive
	MaxChunkSize int    `yaml:"max_chunk_size" mapstructure:"max_chunk_size"`
	MinChunkSize int    `yaml:"min_chunk_size" mapstructure:"min_chunk_size"`
	Overlap      int    `yaml:"overlap" mapstructure:"overlap"`
}

// UnificationConfig holds entity unification configuration.
type UnificationConfig struct {
	DefaultMode         string  `yaml:"default_mode" mapstructure:"default_mode"` // incremental | sampling | global_semantic
	HighThreshold       float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold     float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`
	LowThreshold        float64 `yaml:"low_threshold" mapstructure:"low_threshold"`
	SemanticWeight      float64 `yaml:"semantic_weight" mapstructure:"semantic_weight"`
	LexicalWeight       float64 `yaml:"lexical_weight" mapstructure:"lexical_weight"`
	ContextualWeight    float64 `yaml:"contextual_weight" mapstructure:"contextual_weight"`
	PrescreenThreshold  float64 `yaml:"prescreen_threshold" mapstructure:"prescreen_threshold"`
	MaxPairsPerBatch    int     `yaml:"max_pairs_per_batch" mapstructure:"max_pairs_per_batch"`
	MaxIterations       int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	AliasMax            int     `yaml:"alias_max" mapstructure:"alias_max"`
	SampleSize          int     `yaml:"sample_size" mapstructure:"sample_size"`
	SampleTimeoutSecs   int     `yaml:"sample_timeout_seconds" mapstructure:"sample_timeout_seconds"`
	EnableWikipediaTool bool    `yaml:"enable_wikipedia_tool" mapstructure:"enable_wikipedia_tool"`
}

// CommunityConfig holds community detection configuration.
type CommunityConfig struct {
	MaxLevels   int `yaml:"max_levels" mapstructure:"max_levels"`
	Parallelism int `yaml:"parallelism" mapstructure:"parallelism"`
}

// PipelineConfig holds orchestrator configuration.
type PipelineConfig struct {
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	QueueSize    int    `yaml:"queue_size" mapstructure:"queue_size"`
	SubWorkers   int    `yaml:"sub_workers" mapstructure:"sub_workers"`
	WorkDir      string `yaml:"work_dir" mapstructure:"work_dir"`
	RetainFailed bool   `yaml:"retain_failed" mapstructure:"retain_failed"`
}
