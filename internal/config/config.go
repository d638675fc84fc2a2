// Package config provides configuration management for the knowledge graph
// engine. It supports loading configuration from environment variables,
// files (YAML/JSON), and defaults, with a clear precedence order:
// env > file > defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/validation"
	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	KnowledgeGraph KnowledgeGraphConfig `json:"knowledge_graph" yaml:"knowledge_graph"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Auth          AuthConfig          `json:"auth" yaml:"auth"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// ServerConfig holds the MCP server's transport configuration. Port 0
// means stdio transport. cmd/kgraph always serves over stdio; it does not
// read Host or Port, so a nonzero port opens no TCP listener.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// DatabaseConfig holds the SQLite graph store configuration.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// KnowledgeGraphConfig holds build, chunking, and retrieval tuning knobs.
type KnowledgeGraphConfig struct {
	RootPath          string `json:"root_path" yaml:"root_path"`
	ChunkSize         int    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap      int    `json:"chunk_overlap" yaml:"chunk_overlap"`
	DefaultTokenBudget int   `json:"default_token_budget" yaml:"default_token_budget"`
	WatchDebounce     string `json:"watch_debounce" yaml:"watch_debounce"`
	CacheAddr         string `json:"cache_addr" yaml:"cache_addr"` // empty: in-memory cache
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// AuthConfig holds JWT authentication configuration for the MCP tool surface.
type AuthConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Issuer      string `json:"issuer" yaml:"issuer"`
	Audience    string `json:"audience" yaml:"audience"`
	PublicKey   string `json:"public_key" yaml:"public_key"`
	PrivateKey  string `json:"private_key" yaml:"private_key"`
	TokenExpiry int    `json:"token_expiry" yaml:"token_expiry"` // in minutes
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `json:"sentry" yaml:"sentry"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// SentryConfig holds Sentry error monitoring configuration.
type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
	Release     string  `json:"release" yaml:"release"`
}

// Default values
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 0 // Default to stdio mode for MCP compatibility
	DefaultDBPath             = "./data/kgraph.db"
	DefaultRootPath           = "."
	DefaultChunkSize          = 512
	DefaultChunkOverlap       = 50
	DefaultTokenBudget        = 8000
	DefaultWatchDebounce      = "500ms"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultAuthEnabled        = false
	DefaultAuthIssuer         = "kgengine"
	DefaultAuthAudience       = "kgengine-api"
	DefaultAuthTokenExpiry    = 60 // 1 hour in minutes
	DefaultMetricsEnabled     = false
	DefaultMetricsPort        = 9091
	DefaultMetricsPath        = "/metrics"
	DefaultTracingEnabled     = false
	DefaultTracingEndpoint    = "http://localhost:4318"
	DefaultSampleRate         = 0.1
	DefaultSentryEnabled      = false
	DefaultSentryDSN          = ""
	DefaultSentryEnv          = "development"
	DefaultSentrySampleRate   = 1.0
	DefaultSentryRelease      = "0.1.0"
)

// Valid values for validation
var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"json", "text"}
)

// Load loads configuration from environment variables and optional config file.
// Precedence: env vars > config file > defaults.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	if configFile := os.Getenv("KGRAPH_CONFIG_FILE"); configFile != "" {
		validatedPath, err := validation.ValidateConfigPath(configFile)
		if err != nil {
			return nil, fmt.Errorf("config file path validation failed: %w", err)
		}

		fileCfg, err := loadFile(validatedPath)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg = loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config with all default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Database: DatabaseConfig{
			Path: DefaultDBPath,
		},
		KnowledgeGraph: KnowledgeGraphConfig{
			RootPath:           DefaultRootPath,
			ChunkSize:          DefaultChunkSize,
			ChunkOverlap:       DefaultChunkOverlap,
			DefaultTokenBudget: DefaultTokenBudget,
			WatchDebounce:      DefaultWatchDebounce,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Auth: AuthConfig{
			Enabled:     DefaultAuthEnabled,
			Issuer:      DefaultAuthIssuer,
			Audience:    DefaultAuthAudience,
			TokenExpiry: DefaultAuthTokenExpiry,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
				Port:    DefaultMetricsPort,
				Path:    DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:    DefaultTracingEnabled,
				Endpoint:   DefaultTracingEndpoint,
				SampleRate: DefaultSampleRate,
			},
			Sentry: SentryConfig{
				Enabled:     DefaultSentryEnabled,
				DSN:         DefaultSentryDSN,
				Environment: DefaultSentryEnv,
				SampleRate:  DefaultSentrySampleRate,
				Release:     DefaultSentryRelease,
			},
		},
	}
}

// loadFile loads configuration from a YAML or JSON file.
func loadFile(path string) (*Config, error) {
	safePath := filepath.Clean(path)

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := &Config{}
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}

	return cfg, nil
}

// loadEnv loads configuration from environment variables.
// A field is overridden only when its environment variable is set and
// non-empty (and, for numeric and boolean fields, parses).
func loadEnv(cfg *Config) *Config {
	if host := os.Getenv("KGRAPH_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("KGRAPH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if dbPath := os.Getenv("KGRAPH_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if rootPath := os.Getenv("KGRAPH_ROOT_PATH"); rootPath != "" {
		cfg.KnowledgeGraph.RootPath = rootPath
	}
	if chunkSize := os.Getenv("KGRAPH_CHUNK_SIZE"); chunkSize != "" {
		if cs, err := strconv.Atoi(chunkSize); err == nil {
			cfg.KnowledgeGraph.ChunkSize = cs
		}
	}
	if chunkOverlap := os.Getenv("KGRAPH_CHUNK_OVERLAP"); chunkOverlap != "" {
		if co, err := strconv.Atoi(chunkOverlap); err == nil {
			cfg.KnowledgeGraph.ChunkOverlap = co
		}
	}
	if tokenBudget := os.Getenv("KGRAPH_TOKEN_BUDGET"); tokenBudget != "" {
		if tb, err := strconv.Atoi(tokenBudget); err == nil {
			cfg.KnowledgeGraph.DefaultTokenBudget = tb
		}
	}
	if debounce := os.Getenv("KGRAPH_WATCH_DEBOUNCE"); debounce != "" {
		cfg.KnowledgeGraph.WatchDebounce = debounce
	}
	if cacheAddr := os.Getenv("KGRAPH_CACHE_ADDR"); cacheAddr != "" {
		cfg.KnowledgeGraph.CacheAddr = cacheAddr
	}

	if logLevel := os.Getenv("KGRAPH_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("KGRAPH_LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if metricsEnabled := os.Getenv("KGRAPH_METRICS_ENABLED"); metricsEnabled != "" {
		if enabled, err := strconv.ParseBool(metricsEnabled); err == nil {
			cfg.Observability.Metrics.Enabled = enabled
		}
	}
	if metricsPort := os.Getenv("KGRAPH_METRICS_PORT"); metricsPort != "" {
		if port, err := strconv.Atoi(metricsPort); err == nil {
			cfg.Observability.Metrics.Port = port
		}
	}
	if metricsPath := os.Getenv("KGRAPH_METRICS_PATH"); metricsPath != "" {
		cfg.Observability.Metrics.Path = metricsPath
	}

	if tracingEnabled := os.Getenv("KGRAPH_TRACING_ENABLED"); tracingEnabled != "" {
		if enabled, err := strconv.ParseBool(tracingEnabled); err == nil {
			cfg.Observability.Tracing.Enabled = enabled
		}
	}
	if tracingEndpoint := os.Getenv("KGRAPH_TRACING_ENDPOINT"); tracingEndpoint != "" {
		cfg.Observability.Tracing.Endpoint = tracingEndpoint
	}
	if sampleRate := os.Getenv("KGRAPH_TRACING_SAMPLE_RATE"); sampleRate != "" {
		if rate, err := strconv.ParseFloat(sampleRate, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = rate
		}
	}

	if sentryEnabled := os.Getenv("KGRAPH_SENTRY_ENABLED"); sentryEnabled != "" {
		if enabled, err := strconv.ParseBool(sentryEnabled); err == nil {
			cfg.Observability.Sentry.Enabled = enabled
		}
	}
	if sentryDSN := os.Getenv("KGRAPH_SENTRY_DSN"); sentryDSN != "" {
		cfg.Observability.Sentry.DSN = sentryDSN
	}
	if sentryEnv := os.Getenv("KGRAPH_SENTRY_ENVIRONMENT"); sentryEnv != "" {
		cfg.Observability.Sentry.Environment = sentryEnv
	}
	if sentrySampleRate := os.Getenv("KGRAPH_SENTRY_SAMPLE_RATE"); sentrySampleRate != "" {
		if rate, err := strconv.ParseFloat(sentrySampleRate, 64); err == nil {
			cfg.Observability.Sentry.SampleRate = rate
		}
	}
	if sentryRelease := os.Getenv("KGRAPH_SENTRY_RELEASE"); sentryRelease != "" {
		cfg.Observability.Sentry.Release = sentryRelease
	}

	if authEnabled := os.Getenv("KGRAPH_AUTH_ENABLED"); authEnabled != "" {
		if enabled, err := strconv.ParseBool(authEnabled); err == nil {
			cfg.Auth.Enabled = enabled
		}
	}
	if authIssuer := os.Getenv("KGRAPH_AUTH_ISSUER"); authIssuer != "" {
		cfg.Auth.Issuer = authIssuer
	}
	if authAudience := os.Getenv("KGRAPH_AUTH_AUDIENCE"); authAudience != "" {
		cfg.Auth.Audience = authAudience
	}
	if authPublicKey := os.Getenv("KGRAPH_AUTH_PUBLIC_KEY"); authPublicKey != "" {
		cfg.Auth.PublicKey = authPublicKey
	}
	if authPrivateKey := os.Getenv("KGRAPH_AUTH_PRIVATE_KEY"); authPrivateKey != "" {
		cfg.Auth.PrivateKey = authPrivateKey
	}
	if authTokenExpiry := os.Getenv("KGRAPH_AUTH_TOKEN_EXPIRY"); authTokenExpiry != "" {
		if expiry, err := strconv.Atoi(authTokenExpiry); err == nil {
			cfg.Auth.TokenExpiry = expiry
		}
	}

	return cfg
}

// merge merges two configs, preferring values from 'override' when non-zero.
func merge(base, override *Config) *Config {
	result := *base

	if override.Server.Host != "" {
		result.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}

	if override.Database.Path != "" {
		result.Database.Path = override.Database.Path
	}

	if override.KnowledgeGraph.RootPath != "" {
		result.KnowledgeGraph.RootPath = override.KnowledgeGraph.RootPath
	}
	if override.KnowledgeGraph.ChunkSize != 0 {
		result.KnowledgeGraph.ChunkSize = override.KnowledgeGraph.ChunkSize
	}
	if override.KnowledgeGraph.ChunkOverlap != 0 {
		result.KnowledgeGraph.ChunkOverlap = override.KnowledgeGraph.ChunkOverlap
	}
	if override.KnowledgeGraph.DefaultTokenBudget != 0 {
		result.KnowledgeGraph.DefaultTokenBudget = override.KnowledgeGraph.DefaultTokenBudget
	}
	if override.KnowledgeGraph.WatchDebounce != "" {
		result.KnowledgeGraph.WatchDebounce = override.KnowledgeGraph.WatchDebounce
	}
	if override.KnowledgeGraph.CacheAddr != "" {
		result.KnowledgeGraph.CacheAddr = override.KnowledgeGraph.CacheAddr
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	if override.Observability.Metrics.Enabled != DefaultMetricsEnabled {
		result.Observability.Metrics.Enabled = override.Observability.Metrics.Enabled
	}
	if override.Observability.Metrics.Port != 0 {
		result.Observability.Metrics.Port = override.Observability.Metrics.Port
	}
	if override.Observability.Metrics.Path != "" {
		result.Observability.Metrics.Path = override.Observability.Metrics.Path
	}

	if override.Observability.Tracing.Enabled != DefaultTracingEnabled {
		result.Observability.Tracing.Enabled = override.Observability.Tracing.Enabled
	}
	if override.Observability.Tracing.Endpoint != "" {
		result.Observability.Tracing.Endpoint = override.Observability.Tracing.Endpoint
	}
	if override.Observability.Tracing.SampleRate != 0 {
		result.Observability.Tracing.SampleRate = override.Observability.Tracing.SampleRate
	}

	if override.Observability.Sentry.Enabled != DefaultSentryEnabled {
		result.Observability.Sentry.Enabled = override.Observability.Sentry.Enabled
	}
	if override.Observability.Sentry.DSN != "" {
		result.Observability.Sentry.DSN = override.Observability.Sentry.DSN
	}
	if override.Observability.Sentry.Environment != "" {
		result.Observability.Sentry.Environment = override.Observability.Sentry.Environment
	}
	if override.Observability.Sentry.SampleRate != 0 {
		result.Observability.Sentry.SampleRate = override.Observability.Sentry.SampleRate
	}
	if override.Observability.Sentry.Release != "" {
		result.Observability.Sentry.Release = override.Observability.Sentry.Release
	}

	if override.Auth.Enabled != DefaultAuthEnabled {
		result.Auth.Enabled = override.Auth.Enabled
	}
	if override.Auth.Issuer != "" {
		result.Auth.Issuer = override.Auth.Issuer
	}
	if override.Auth.Audience != "" {
		result.Auth.Audience = override.Auth.Audience
	}
	if override.Auth.PublicKey != "" {
		result.Auth.PublicKey = override.Auth.PublicKey
	}
	if override.Auth.PrivateKey != "" {
		result.Auth.PrivateKey = override.Auth.PrivateKey
	}
	if override.Auth.TokenExpiry != 0 {
		result.Auth.TokenExpiry = override.Auth.TokenExpiry
	}

	return &result
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535, 0 for stdio mode)", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.KnowledgeGraph.RootPath == "" {
		return fmt.Errorf("knowledge graph root path cannot be empty")
	}
	if c.KnowledgeGraph.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive: %d", c.KnowledgeGraph.ChunkSize)
	}
	if c.KnowledgeGraph.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative: %d", c.KnowledgeGraph.ChunkOverlap)
	}
	if c.KnowledgeGraph.ChunkOverlap >= c.KnowledgeGraph.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be less than chunk size (%d)",
			c.KnowledgeGraph.ChunkOverlap, c.KnowledgeGraph.ChunkSize)
	}
	if c.KnowledgeGraph.DefaultTokenBudget < 1 {
		return fmt.Errorf("default token budget must be positive: %d", c.KnowledgeGraph.DefaultTokenBudget)
	}

	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}

	if c.Observability.Metrics.Enabled {
		if c.Observability.Metrics.Port < 1 || c.Observability.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d (must be 1-65535)", c.Observability.Metrics.Port)
		}
		if c.Observability.Metrics.Path == "" {
			return fmt.Errorf("metrics path cannot be empty when metrics enabled")
		}
	}

	if c.Observability.Tracing.Enabled {
		if c.Observability.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing endpoint cannot be empty when tracing enabled")
		}
		if c.Observability.Tracing.SampleRate < 0 || c.Observability.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing sample rate must be between 0 and 1: %f", c.Observability.Tracing.SampleRate)
		}
	}

	if c.Observability.Sentry.Enabled {
		if c.Observability.Sentry.DSN == "" {
			return fmt.Errorf("sentry DSN cannot be empty when sentry enabled")
		}
		if c.Observability.Sentry.SampleRate < 0 || c.Observability.Sentry.SampleRate > 1 {
			return fmt.Errorf("sentry sample rate must be between 0 and 1: %f", c.Observability.Sentry.SampleRate)
		}
	}

	if c.Auth.Enabled {
		if c.Auth.Issuer == "" {
			return fmt.Errorf("auth issuer cannot be empty when auth enabled")
		}
		if c.Auth.Audience == "" {
			return fmt.Errorf("auth audience cannot be empty when auth enabled")
		}
		if c.Auth.PublicKey == "" {
			return fmt.Errorf("auth public key cannot be empty when auth enabled")
		}
		if c.Auth.PrivateKey == "" {
			return fmt.Errorf("auth private key cannot be empty when auth enabled")
		}
		if c.Auth.TokenExpiry <= 0 {
			return fmt.Errorf("auth token expiry must be positive: %d", c.Auth.TokenExpiry)
		}
	}

	return nil
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Default returns a default configuration for testing and documentation.
func Default() *Config {
	return defaults()
}
