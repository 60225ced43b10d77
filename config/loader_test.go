// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 5, cfg.Research.MaxResearchIterations)
	assert.Equal(t, "openai/gpt-4.1", cfg.LLM.WriterModel)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
research:
  max_research_iterations: 3
  max_concurrent_research_units: 4
llm:
  api_key: "sk-yaml"
  research_model: "anthropic/claude-sonnet-4"
  timeout: 45s
search:
  cache:
    enabled: true
    ttl: 30m
archive:
  enabled: true
  driver: postgres
  dsn: "host=db user=dr dbname=dr"
log:
  level: debug
  output_paths: ["stdout", "/tmp/dr.log"]
mcp:
  enabled: true
  command: npx
  args: ["-y", "@modelcontextprotocol/server-filesystem", "./files"]
  tool_prefix: fs_
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Research.MaxResearchIterations)
	assert.Equal(t, 4, cfg.Research.MaxConcurrentResearchUnits)
	assert.Equal(t, 5000, cfg.Research.MaxBriefLength, "unset keys keep defaults")
	assert.Equal(t, "sk-yaml", cfg.LLM.APIKey)
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.LLM.ResearchModel)
	assert.Equal(t, "openai/gpt-4o", cfg.LLM.ScopingModel)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.Search.Cache.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Search.Cache.TTL)
	assert.Equal(t, "postgres", cfg.Archive.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/tmp/dr.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, "npx", cfg.MCP.Command)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "./files"}, cfg.MCP.Args)
	assert.Equal(t, "fs_", cfg.MCP.ToolPrefix)
	assert.Equal(t, 30*time.Second, cfg.MCP.Timeout, "unset keys keep defaults")
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("research: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  api_key: from-yaml\n"), 0o644))

	t.Setenv("DEEPRESEARCH_LLM_API_KEY", "from-env")
	t.Setenv("DEEPRESEARCH_RESEARCH_MAX_RESEARCH_ITERATIONS", "7")
	t.Setenv("DEEPRESEARCH_RESEARCH_SUMMARIZE_SEARCH_RESULTS", "false")
	t.Setenv("DEEPRESEARCH_SEARCH_CACHE_TTL", "5m")
	t.Setenv("DEEPRESEARCH_SEARCH_RATE_LIMIT_RPS", "2.5")
	t.Setenv("DEEPRESEARCH_LOG_OUTPUT_PATHS", "stdout, stderr")
	t.Setenv("DEEPRESEARCH_MCP_ARGS", "serve,--root,/data")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, 7, cfg.Research.MaxResearchIterations)
	assert.False(t, cfg.Research.SummarizeSearchResults)
	assert.Equal(t, 5*time.Minute, cfg.Search.Cache.TTL)
	assert.Equal(t, 2.5, cfg.Search.RateLimitRPS)
	assert.Equal(t, []string{"stdout", "stderr"}, cfg.Log.OutputPaths)
	assert.Equal(t, []string{"serve", "--root", "/data"}, cfg.MCP.Args)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("DR_TEST_LLM_WRITER_MODEL", "custom/writer")

	cfg, err := NewLoader().WithEnvPrefix("DR_TEST").Load()
	require.NoError(t, err)
	assert.Equal(t, "custom/writer", cfg.LLM.WriterModel)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("DEEPRESEARCH_LLM_TIMEOUT", "forever")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEEPRESEARCH_LLM_TIMEOUT")
}

func TestLoader_EnvFile(t *testing.T) {
	const key = "DR_ENVFILE_TEST_SEARCH_API_KEY"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(key+"=tvly-from-dotenv\n"), 0o644))

	cfg, err := NewLoader().WithEnvPrefix("DR_ENVFILE_TEST").WithEnvFile(envPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "tvly-from-dotenv", cfg.Search.APIKey)
}

func TestLoader_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	const key = "DR_ENVFILE_KEEP_LLM_API_KEY"
	t.Setenv(key, "from-environment")

	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(key+"=from-dotenv\n"), 0o644))

	cfg, err := NewLoader().WithEnvPrefix("DR_ENVFILE_KEEP").WithEnvFile(envPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-environment", cfg.LLM.APIKey)
}

func TestLoader_MissingEnvFileIgnored(t *testing.T) {
	_, err := NewLoader().WithEnvFile(filepath.Join(t.TempDir(), ".env")).Load()
	assert.NoError(t, err)
}

func TestLoader_Validators(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error { return c.Validate() }).Load()
	assert.NoError(t, err)

	t.Setenv("DEEPRESEARCH_RESEARCH_MAX_RESEARCH_ITERATIONS", "0")
	_, err = NewLoader().WithValidator(func(c *Config) error { return c.Validate() }).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_research_iterations")
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Research.MaxConcurrentResearchUnits = 0 }, "max_concurrent_research_units"},
		{"tiny brief limit", func(c *Config) { c.Research.MaxBriefLength = 5 }, "max_brief_length"},
		{"too many results", func(c *Config) { c.Research.SearchMaxResults = 11 }, "search_max_results"},
		{"missing model", func(c *Config) { c.LLM.SupervisorModel = " " }, "llm.supervisor_model"},
		{"negative retries", func(c *Config) { c.LLM.MaxRetries = -1 }, "max_retries"},
		{"unknown search provider", func(c *Config) { c.Search.Provider = "bing" }, "search.provider"},
		{"cache without ttl", func(c *Config) { c.Search.Cache = SearchCacheConfig{Enabled: true} }, "search.cache.ttl"},
		{"archive bad driver", func(c *Config) { c.Archive = ArchiveConfig{Enabled: true, Driver: "oracle", DSN: "x"} }, "archive.driver"},
		{"archive without dsn", func(c *Config) { c.Archive = ArchiveConfig{Enabled: true, Driver: "sqlite"} }, "archive.dsn"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "sample_rate"},
		{"mcp without command", func(c *Config) { c.MCP.Enabled = true }, "mcp.command"},
		{"mcp negative timeout", func(c *Config) { c.MCP.Timeout = -time.Second }, "mcp.timeout"},
		{"mcp configured", func(c *Config) { c.MCP = MCPConfig{Enabled: true, Command: "npx", Timeout: time.Second} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(":\n\t- broken"), 0o644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
