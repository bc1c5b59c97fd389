package config

import (
	"time"
)

// Config is the complete runtime configuration of the docqa service.
type Config struct {
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Embedder   EmbedderConfig   `koanf:"embedder"   validate:"required"`
	VectorDB   VectorDBConfig   `koanf:"vector_db"  validate:"required"`
	LLM        LLMConfig        `koanf:"llm"        validate:"required"`
	Ingest     IngestConfig     `koanf:"ingest"     validate:"required"`
	QA         QAConfig         `koanf:"qa"         validate:"required"`
	Runtime    RuntimeConfig    `koanf:"runtime"    validate:"required"`
	Providers  ProviderKeys     `koanf:"providers"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host         string        `koanf:"host"          validate:"required"                         env:"SERVER_HOST"`
	Port         int           `koanf:"port"          validate:"min=1,max=65535"                  env:"SERVER_PORT"`
	Mode         string        `koanf:"mode"          validate:"oneof=single conversational"      env:"SERVER_MODE"`
	CORSEnabled  bool          `koanf:"cors_enabled"                                              env:"SERVER_CORS_ENABLED"`
	CORS         CORSConfig    `koanf:"cors"`
	ReadTimeout  time.Duration `koanf:"read_timeout"                                              env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `koanf:"write_timeout"                                             env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"                                              env:"SERVER_IDLE_TIMEOUT"`
	BodyLimit    int64         `koanf:"body_limit"    validate:"min=1"                            env:"SERVER_BODY_LIMIT"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"   env:"SERVER_CORS_ALLOWED_ORIGINS"`
	AllowCredentials bool     `koanf:"allow_credentials" env:"SERVER_CORS_ALLOW_CREDENTIALS"`
	MaxAge           int      `koanf:"max_age"           env:"SERVER_CORS_MAX_AGE"`
}

// RateLimitConfig throttles the question endpoints per client IP.
type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"   env:"RATELIMIT_ENABLED"`
	Limit    int64         `koanf:"limit"     env:"RATELIMIT_LIMIT"     validate:"min=0"`
	Period   time.Duration `koanf:"period"    env:"RATELIMIT_PERIOD"`
	RedisURL string        `koanf:"redis_url" env:"RATELIMIT_REDIS_URL"`
	Prefix   string        `koanf:"prefix"    env:"RATELIMIT_PREFIX"`
}

type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"`
}

// EmbedderConfig selects the embedding service.
type EmbedderConfig struct {
	Provider      string        `koanf:"provider"        validate:"oneof=google openai" env:"EMBEDDER_PROVIDER"`
	Model         string        `koanf:"model"           validate:"required"            env:"EMBEDDER_MODEL"`
	Dimension     int           `koanf:"dimension"       validate:"min=1"               env:"EMBEDDER_DIMENSION"`
	BatchSize     int           `koanf:"batch_size"      validate:"min=1"               env:"EMBEDDER_BATCH_SIZE"`
	CacheSize     int           `koanf:"cache_size"      validate:"min=0"               env:"EMBEDDER_CACHE_SIZE"`
	StripNewLines bool          `koanf:"strip_new_lines"                                env:"EMBEDDER_STRIP_NEW_LINES"`
	Timeout       time.Duration `koanf:"timeout"                                        env:"EMBEDDER_TIMEOUT"`
	Retry         RetryConfig   `koanf:"retry"`
}

// RetryConfig bounds retries around external service calls.
type RetryConfig struct {
	Attempts   int           `koanf:"attempts"    validate:"min=1"`
	Backoff    time.Duration `koanf:"backoff"`
	MaxBackoff time.Duration `koanf:"max_backoff"`
}

// VectorDBConfig selects the vector index backend.
type VectorDBConfig struct {
	Provider   string          `koanf:"provider"   validate:"oneof=filesystem pgvector qdrant redis" env:"VECTOR_DB_PROVIDER"`
	Path       string          `koanf:"path"                                                         env:"VECTOR_DB_PATH"`
	DSN        SensitiveString `koanf:"dsn"                                                          env:"VECTOR_DB_DSN"     sensitive:"true"`
	APIKey     SensitiveString `koanf:"api_key"                                                      env:"VECTOR_DB_API_KEY" sensitive:"true"`
	Collection string          `koanf:"collection"                                                   env:"VECTOR_DB_COLLECTION"`
	Dimension  int             `koanf:"dimension"  validate:"min=1"                                  env:"VECTOR_DB_DIMENSION"`
	MaxTopK    int             `koanf:"max_top_k"  validate:"min=1"                                  env:"VECTOR_DB_MAX_TOP_K"`
	Timeout    time.Duration   `koanf:"timeout"                                                      env:"VECTOR_DB_TIMEOUT"`
}

// LLMConfig selects the chat model used for reformulation and synthesis.
type LLMConfig struct {
	Provider          string        `koanf:"provider"            validate:"oneof=groq google openai mock" env:"LLM_PROVIDER"`
	Model             string        `koanf:"model"               validate:"required"                      env:"LLM_MODEL"`
	BaseURL           string        `koanf:"base_url"                                                     env:"LLM_BASE_URL"`
	Temperature       float64       `koanf:"temperature"         validate:"min=0,max=2"                   env:"LLM_TEMPERATURE"`
	MaxTokens         int           `koanf:"max_tokens"          validate:"min=0"                         env:"LLM_MAX_TOKENS"`
	Timeout           time.Duration `koanf:"timeout"                                                      env:"LLM_TIMEOUT"`
	Concurrency       int64         `koanf:"concurrency"         validate:"min=0"                         env:"LLM_CONCURRENCY"`
	RequestsPerMinute float64       `koanf:"requests_per_minute" validate:"min=0"                         env:"LLM_REQUESTS_PER_MINUTE"`
	Retry             RetryConfig   `koanf:"retry"`
}

// IngestConfig drives the indexing pipeline.
type IngestConfig struct {
	Folder        string        `koanf:"folder"         validate:"required" env:"INGEST_FOLDER"`
	Patterns      []string      `koanf:"patterns"       validate:"min=1"    env:"INGEST_PATTERNS"`
	ChunkSize     int           `koanf:"chunk_size"     validate:"min=1"    env:"INGEST_CHUNK_SIZE"`
	ChunkOverlap  int           `koanf:"chunk_overlap"  validate:"min=0"    env:"INGEST_CHUNK_OVERLAP"`
	BatchSize     int           `koanf:"batch_size"     validate:"min=1"    env:"INGEST_BATCH_SIZE"`
	WatchDebounce time.Duration `koanf:"watch_debounce"                     env:"INGEST_WATCH_DEBOUNCE"`
}

// QAConfig holds the question answering limits.
type QAConfig struct {
	HistoryWindow     int `koanf:"history_window"      validate:"min=1" env:"QA_HISTORY_WINDOW"`
	MaxQuestionLength int `koanf:"max_question_length" validate:"min=1" env:"QA_MAX_QUESTION_LENGTH"`
	TopK              int `koanf:"top_k"               validate:"min=1" env:"QA_TOP_K"`
}

type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error"          env:"RUNTIME_LOG_LEVEL"`
}

// ProviderKeys holds the credentials of the external model services.
type ProviderKeys struct {
	GoogleAPIKey SensitiveString `koanf:"google_api_key" env:"GOOGLE_API_KEY" sensitive:"true"`
	GroqAPIKey   SensitiveString `koanf:"groq_api_key"   env:"GROQ_API_KEY"   sensitive:"true"`
	OpenAIAPIKey SensitiveString `koanf:"openai_api_key" env:"OPENAI_API_KEY" sensitive:"true"`
}

// SensitiveString redacts itself when printed or serialized.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Value returns the raw secret.
func (s SensitiveString) Value() string {
	return string(s)
}

// Default returns the configuration used when no file or environment overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			Mode:         "conversational",
			CORSEnabled:  true,
			CORS:         CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: 86400},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
			BodyLimit:    1 << 20,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Limit:   60,
			Period:  time.Minute,
			Prefix:  "docqa:ratelimit:",
		},
		Monitoring: MonitoringConfig{
			Enabled: false,
			Path:    "/metrics",
		},
		Embedder: EmbedderConfig{
			Provider:      "google",
			Model:         "embedding-001",
			Dimension:     768,
			BatchSize:     64,
			CacheSize:     512,
			StripNewLines: false,
			Timeout:       30 * time.Second,
			Retry:         RetryConfig{Attempts: 3, Backoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second},
		},
		VectorDB: VectorDBConfig{
			Provider:   "filesystem",
			Path:       "./data/vector_index",
			Collection: "example_collection",
			Dimension:  768,
			MaxTopK:    100,
			Timeout:    10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:          "groq",
			Model:             "gemma2-9b-it",
			Temperature:       0,
			Timeout:           60 * time.Second,
			Concurrency:       8,
			RequestsPerMinute: 0,
			Retry:             RetryConfig{Attempts: 2, Backoff: 500 * time.Millisecond, MaxBackoff: 4 * time.Second},
		},
		Ingest: IngestConfig{
			Folder:        "word_docs",
			Patterns:      []string{"**/*.docx"},
			ChunkSize:     500,
			ChunkOverlap:  50,
			BatchSize:     32,
			WatchDebounce: 500 * time.Millisecond,
		},
		QA: QAConfig{
			HistoryWindow:     5,
			MaxQuestionLength: 1000,
			TopK:              3,
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
	}
}
