// =============================================================================
// 📦 DeepResearch 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Research:  DefaultResearchConfig(),
		LLM:       DefaultLLMConfig(),
		Search:    DefaultSearchConfig(),
		Redis:     DefaultRedisConfig(),
		Archive:   DefaultArchiveConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
		Server:    DefaultServerConfig(),
		MCP:       DefaultMCPConfig(),
	}
}

// DefaultResearchConfig 返回默认编排参数
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		MaxResearchIterations:      5,
		MaxConcurrentResearchUnits: 2,
		MaxBriefLength:             5000,
		SearchMaxResults:           3,
		SummarizeSearchResults:     true,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置（OpenRouter 模型 id）
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:            "https://openrouter.ai/api/v1",
		APIKey:             "",
		Timeout:            2 * time.Minute,
		MaxRetries:         2,
		ScopingModel:       "openai/gpt-4o",
		ResearchModel:      "openai/o4-mini",
		SummarizationModel: "openai/gpt-4o-mini",
		CompressionModel:   "openai/gpt-4.1-mini",
		SupervisorModel:    "openai/gpt-4.1",
		WriterModel:        "openai/gpt-4.1",
		WriterMaxTokens:    32000,
	}
}

// DefaultSearchConfig 返回默认搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Provider:     "tavily",
		BaseURL:      "https://api.tavily.com",
		Timeout:      2 * time.Minute,
		RateLimitRPS: 0,
		Cache: SearchCacheConfig{
			Enabled: false,
			TTL:     time.Hour,
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultArchiveConfig 返回默认归档配置
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled: false,
		Driver:  "sqlite",
		DSN:     "deepresearch.db",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "deepresearch",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "deepresearch"}
}

// DefaultServerConfig 返回默认 HTTP 服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		RateLimitRPS:    1,
		RateLimitBurst:  3,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    20 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		RunTimeout:      15 * time.Minute,
	}
}

// DefaultMCPConfig 返回默认 MCP 配置（不启用）
func DefaultMCPConfig() MCPConfig {
	return MCPConfig{
		Enabled: false,
		Timeout: 30 * time.Second,
	}
}
