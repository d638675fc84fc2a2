package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, DefaultRootPath, cfg.KnowledgeGraph.RootPath)
	assert.Equal(t, DefaultChunkSize, cfg.KnowledgeGraph.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.KnowledgeGraph.ChunkOverlap)
	assert.Equal(t, DefaultTokenBudget, cfg.KnowledgeGraph.DefaultTokenBudget)
	assert.Equal(t, DefaultWatchDebounce, cfg.KnowledgeGraph.WatchDebounce)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, DefaultAuthEnabled, cfg.Auth.Enabled)
	assert.Equal(t, DefaultMetricsEnabled, cfg.Observability.Metrics.Enabled)
}

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "server and database overrides",
			envVars: map[string]string{
				"KGRAPH_HOST":    "127.0.0.1",
				"KGRAPH_PORT":    "9090",
				"KGRAPH_DB_PATH": "/custom/db.sqlite",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "/custom/db.sqlite", cfg.Database.Path)
			},
		},
		{
			name: "knowledge graph overrides",
			envVars: map[string]string{
				"KGRAPH_ROOT_PATH":     "/custom/root",
				"KGRAPH_CHUNK_SIZE":    "1024",
				"KGRAPH_CHUNK_OVERLAP": "100",
				"KGRAPH_TOKEN_BUDGET":  "16000",
				"KGRAPH_WATCH_DEBOUNCE": "1s",
				"KGRAPH_CACHE_ADDR":    "localhost:6379",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/custom/root", cfg.KnowledgeGraph.RootPath)
				assert.Equal(t, 1024, cfg.KnowledgeGraph.ChunkSize)
				assert.Equal(t, 100, cfg.KnowledgeGraph.ChunkOverlap)
				assert.Equal(t, 16000, cfg.KnowledgeGraph.DefaultTokenBudget)
				assert.Equal(t, "1s", cfg.KnowledgeGraph.WatchDebounce)
				assert.Equal(t, "localhost:6379", cfg.KnowledgeGraph.CacheAddr)
			},
		},
		{
			name: "logging overrides",
			envVars: map[string]string{
				"KGRAPH_LOG_LEVEL":  "debug",
				"KGRAPH_LOG_FORMAT": "text",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "text", cfg.Logging.Format)
			},
		},
		{
			name: "auth overrides",
			envVars: map[string]string{
				"KGRAPH_AUTH_ENABLED":      "true",
				"KGRAPH_AUTH_ISSUER":       "custom-issuer",
				"KGRAPH_AUTH_AUDIENCE":     "custom-audience",
				"KGRAPH_AUTH_TOKEN_EXPIRY": "120",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Auth.Enabled)
				assert.Equal(t, "custom-issuer", cfg.Auth.Issuer)
				assert.Equal(t, "custom-audience", cfg.Auth.Audience)
				assert.Equal(t, 120, cfg.Auth.TokenExpiry)
			},
		},
		{
			name: "observability overrides",
			envVars: map[string]string{
				"KGRAPH_METRICS_ENABLED": "true",
				"KGRAPH_METRICS_PORT":    "9999",
				"KGRAPH_TRACING_ENABLED": "true",
				"KGRAPH_SENTRY_ENABLED":  "true",
				"KGRAPH_SENTRY_DSN":      "https://example.sentry.io/1",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Observability.Metrics.Enabled)
				assert.Equal(t, 9999, cfg.Observability.Metrics.Port)
				assert.True(t, cfg.Observability.Tracing.Enabled)
				assert.True(t, cfg.Observability.Sentry.Enabled)
				assert.Equal(t, "https://example.sentry.io/1", cfg.Observability.Sentry.DSN)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := loadEnv(defaults())
			tt.check(t, cfg)
		})
	}
}

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
server:
  host: "10.0.0.1"
  port: 8080
database:
  path: "/data/kg.db"
knowledge_graph:
  root_path: "/repo"
  chunk_size: 256
  chunk_overlap: 25
logging:
  level: "warn"
  format: "text"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/data/kg.db", cfg.Database.Path)
	assert.Equal(t, "/repo", cfg.KnowledgeGraph.RootPath)
	assert.Equal(t, 256, cfg.KnowledgeGraph.ChunkSize)
	assert.Equal(t, 25, cfg.KnowledgeGraph.ChunkOverlap)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	contents := `{"server":{"host":"10.0.0.2","port":8081},"database":{"path":"/data/kg2.db"}}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "/data/kg2.db", cfg.Database.Path)
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))

	_, err := loadFile(path)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := defaults()
	override := &Config{
		Server:   ServerConfig{Host: "override-host"},
		Database: DatabaseConfig{Path: "/override/db"},
		KnowledgeGraph: KnowledgeGraphConfig{
			ChunkSize: 2048,
		},
		Auth: AuthConfig{Issuer: "override-issuer"},
	}

	merged := merge(base, override)

	assert.Equal(t, "override-host", merged.Server.Host)
	assert.Equal(t, base.Server.Port, merged.Server.Port)
	assert.Equal(t, "/override/db", merged.Database.Path)
	assert.Equal(t, 2048, merged.KnowledgeGraph.ChunkSize)
	assert.Equal(t, base.KnowledgeGraph.ChunkOverlap, merged.KnowledgeGraph.ChunkOverlap)
	assert.Equal(t, "override-issuer", merged.Auth.Issuer)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "empty root path",
			mutate:  func(c *Config) { c.KnowledgeGraph.RootPath = "" },
			wantErr: true,
		},
		{
			name:    "non-positive chunk size",
			mutate:  func(c *Config) { c.KnowledgeGraph.ChunkSize = 0 },
			wantErr: true,
		},
		{
			name:    "negative chunk overlap",
			mutate:  func(c *Config) { c.KnowledgeGraph.ChunkOverlap = -1 },
			wantErr: true,
		},
		{
			name: "overlap not less than chunk size",
			mutate: func(c *Config) {
				c.KnowledgeGraph.ChunkSize = 100
				c.KnowledgeGraph.ChunkOverlap = 100
			},
			wantErr: true,
		},
		{
			name:    "non-positive token budget",
			mutate:  func(c *Config) { c.KnowledgeGraph.DefaultTokenBudget = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "metrics enabled without port",
			mutate: func(c *Config) {
				c.Observability.Metrics.Enabled = true
				c.Observability.Metrics.Port = 0
			},
			wantErr: true,
		},
		{
			name: "tracing enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.Tracing.Enabled = true
				c.Observability.Tracing.Endpoint = ""
			},
			wantErr: true,
		},
		{
			name: "sentry enabled without DSN",
			mutate: func(c *Config) {
				c.Observability.Sentry.Enabled = true
				c.Observability.Sentry.DSN = ""
			},
			wantErr: true,
		},
		{
			name: "auth enabled without keys",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "auth enabled with full config",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.Issuer = "issuer"
				c.Auth.Audience = "audience"
				c.Auth.PublicKey = "pub"
				c.Auth.PrivateKey = "priv"
				c.Auth.TokenExpiry = 30
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("KGRAPH_DB_PATH", "/tmp/kg-load-test.db")
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/kg-load-test.db", cfg.Database.Path)
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
database:
  path: "/data/from-file.db"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	t.Setenv("KGRAPH_CONFIG_FILE", path)
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/data/from-file.db", cfg.Database.Path)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "a"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
}
