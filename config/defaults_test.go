package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ResearchConfig{}, cfg.Research)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, SearchConfig{}, cfg.Search)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, ArchiveConfig{}, cfg.Archive)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, MCPConfig{}, cfg.MCP)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.APIKeys)
	assert.Greater(t, cfg.WriteTimeout, cfg.RunTimeout)
	assert.Equal(t, 3, cfg.RateLimitBurst)
}

// --- Individual Default*Config functions ---

func TestDefaultResearchConfig(t *testing.T) {
	cfg := DefaultResearchConfig()
	assert.Equal(t, 5, cfg.MaxResearchIterations)
	assert.Equal(t, 2, cfg.MaxConcurrentResearchUnits)
	assert.Equal(t, 5000, cfg.MaxBriefLength)
	assert.Equal(t, 3, cfg.SearchMaxResults)
	assert.True(t, cfg.SummarizeSearchResults)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.BaseURL)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "openai/gpt-4o", cfg.ScopingModel)
	assert.Equal(t, "openai/o4-mini", cfg.ResearchModel)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.SummarizationModel)
	assert.Equal(t, "openai/gpt-4.1-mini", cfg.CompressionModel)
	assert.Equal(t, "openai/gpt-4.1", cfg.SupervisorModel)
	assert.Equal(t, "openai/gpt-4.1", cfg.WriterModel)
	assert.Equal(t, 32000, cfg.WriterMaxTokens)
}

func TestDefaultSearchConfig(t *testing.T) {
	cfg := DefaultSearchConfig()
	assert.Equal(t, "tavily", cfg.Provider)
	assert.Equal(t, "https://api.tavily.com", cfg.BaseURL)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
}

func TestDefaultArchiveConfig(t *testing.T) {
	cfg := DefaultArchiveConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "sqlite", cfg.Driver)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "deepresearch", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}

func TestDefaultMCPConfig(t *testing.T) {
	cfg := DefaultMCPConfig()
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Command)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}
