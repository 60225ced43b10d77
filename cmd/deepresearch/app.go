package main

import (
	"context"
	"errors"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/deepresearch/config"
	"github.com/BaSui01/deepresearch/internal/archive"
	"github.com/BaSui01/deepresearch/internal/cache"
	"github.com/BaSui01/deepresearch/internal/database"
	"github.com/BaSui01/deepresearch/internal/metrics"
	"github.com/BaSui01/deepresearch/internal/telemetry"
	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/llm/providers/openaicompat"
	"github.com/BaSui01/deepresearch/llm/retry"
	"github.com/BaSui01/deepresearch/llm/tokenizer"
	"github.com/BaSui01/deepresearch/llm/tools"
	"github.com/BaSui01/deepresearch/research"
	"github.com/BaSui01/deepresearch/search"
	"github.com/BaSui01/deepresearch/search/tavily"
)

// =============================================================================
// 🔌 组件装配
// =============================================================================

// app 持有一次进程生命周期内装配好的组件。
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	registry     *prometheus.Registry
	collector    *metrics.Collector
	telemetry    *telemetry.Providers
	cache        *cache.Manager
	db           *database.PoolManager
	archive      *archive.Store
	mcp          *mcpclient.Client
	orchestrator *research.Orchestrator
}

// appOptions 允许测试替换外部后端。
type appOptions struct {
	provider       llm.Provider
	searchProvider search.Provider
	mcpTools       tools.MCPToolSource
}

// newApp 按配置装配 provider → 搜索 → 工具 → 编排器，外加指标、遥测与归档。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(cfg.Metrics.Namespace, a.registry, logger)

	a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, logger, telemetry.WithVersion(Version))
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		err = nil
	}

	provider := opts.provider
	if provider == nil {
		provider = openaicompat.New(openaicompat.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
			Headers: map[string]string{"X-Title": "deepresearch"},
		}, logger)
	}
	provider = wrapProvider(provider, cfg.LLM, a.collector, logger)

	searcher, err := a.buildSearch(provider, opts.searchProvider)
	if err != nil {
		return nil, err
	}

	workerTools := tools.NewDefaultRegistry(logger)
	toolCfg := tools.DefaultSearchToolConfig()
	toolCfg.DefaultMaxResults = cfg.Research.SearchMaxResults
	toolCfg.Timeout = cfg.Search.Timeout
	if cfg.Search.RateLimitRPS > 0 {
		toolCfg.RateLimit = &tools.RateLimitConfig{RPS: cfg.Search.RateLimitRPS, Burst: 1}
	}
	if err = tools.RegisterWorkerTools(workerTools, searcher, toolCfg, logger); err != nil {
		return nil, fmt.Errorf("register worker tools: %w", err)
	}
	if err = a.registerMCPTools(ctx, workerTools, opts.mcpTools); err != nil {
		return nil, err
	}

	deps := research.Deps{
		Provider:     provider,
		WorkerTools:  workerTools,
		ToolObserver: a.collector,
		Observer:     a.collector,
		TokenCounter: tokenizer.NewCounter(cfg.LLM.WriterModel),
	}
	if cfg.Archive.Enabled {
		a.db, err = database.Open(cfg.Archive.Driver, cfg.Archive.DSN, database.DefaultPoolConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.archive, err = archive.NewStore(a.db, logger)
		if err != nil {
			return nil, err
		}
		deps.Recorder = a.archive
	}

	a.orchestrator, err = research.NewOrchestrator(deps, researchConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// registerMCPTools 连接配置的 MCP 服务器，把它的工具注册给研究员。
func (a *app) registerMCPTools(ctx context.Context, registry tools.Registry, source tools.MCPToolSource) error {
	cfg := a.cfg.MCP
	if source == nil {
		if !cfg.Enabled {
			return nil
		}
		c, err := tools.ConnectMCP(ctx, tools.MCPServerConfig{
			Command: cfg.Command,
			Args:    cfg.Args,
			Env:     cfg.Env,
		}, a.logger)
		if err != nil {
			return err
		}
		a.mcp = c
		source = c
	}
	_, err := tools.RegisterMCPTools(ctx, registry, source, tools.MCPToolConfig{
		Prefix:  cfg.ToolPrefix,
		Timeout: cfg.Timeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("register mcp tools: %w", err)
	}
	return nil
}

// buildSearch 组装搜索后端：tavily →（可选）Redis 缓存 → 摘要服务。
func (a *app) buildSearch(provider llm.Provider, backend search.Provider) (*search.Service, error) {
	cfg := a.cfg
	if backend == nil {
		policy := retry.DefaultPolicy()
		policy.MaxRetries = cfg.LLM.MaxRetries
		backend = tavily.New(tavily.Config{
			APIKey:  cfg.Search.APIKey,
			BaseURL: cfg.Search.BaseURL,
			Timeout: cfg.Search.Timeout,
			Retry:   policy,
		}, a.logger)
	}

	if cfg.Search.Cache.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.Redis.Addr
		cacheCfg.Password = cfg.Redis.Password
		cacheCfg.DB = cfg.Redis.DB
		cacheCfg.PoolSize = cfg.Redis.PoolSize
		cacheCfg.DefaultTTL = cfg.Search.Cache.TTL

		m, err := cache.NewManager(cacheCfg, a.logger)
		if err != nil {
			// 缓存只是加速，连不上时直接查询后端
			a.logger.Warn("search cache disabled", zap.Error(err))
		} else {
			a.cache = m
			backend = search.NewCachedProvider(backend, m, cfg.Search.Cache.TTL, a.logger).WithObserver(a.collector)
		}
	}

	var summarizer search.Summarizer
	if cfg.Research.SummarizeSearchResults {
		summarizer = search.NewLLMSummarizer(provider, cfg.LLM.SummarizationModel)
	}
	return search.NewService(backend, summarizer, a.logger), nil
}

// wrapProvider 为后端套上日志、超时、恢复、重试与指标中间件。
// 指标在最外层，记录的是含重试的端到端耗时。
func wrapProvider(p llm.Provider, cfg config.LLMConfig, collector llm.MetricsCollector, logger *zap.Logger) llm.Provider {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries

	chain := llm.NewChain(
		llm.MetricsMiddleware(p.Name(), collector),
		llm.LoggingMiddleware(logger),
		llm.RetryMiddleware(retry.NewBackoffRetryer(policy, logger)),
		llm.RecoveryMiddleware(func(v any) {
			logger.Error("llm provider panicked", zap.Any("panic", v))
		}),
		llm.TimeoutMiddleware(cfg.Timeout),
	)
	return llm.WithMiddleware(p, chain)
}

// researchConfig 将配置文件映射为编排参数。
func researchConfig(cfg *config.Config) research.Config {
	rc := research.DefaultConfig()
	rc.MaxResearchIterations = cfg.Research.MaxResearchIterations
	rc.MaxConcurrentResearchUnits = cfg.Research.MaxConcurrentResearchUnits
	rc.MaxBriefLength = cfg.Research.MaxBriefLength
	rc.Models = research.Models{
		Scoping:         cfg.LLM.ScopingModel,
		Research:        cfg.LLM.ResearchModel,
		Compression:     cfg.LLM.CompressionModel,
		Supervisor:      cfg.LLM.SupervisorModel,
		Writer:          cfg.LLM.WriterModel,
		WriterMaxTokens: cfg.LLM.WriterMaxTokens,
	}
	return rc
}

// Close 按装配的逆序释放资源。
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.telemetry != nil {
		if err := a.telemetry.ForceFlush(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.mcp != nil {
		if err := a.mcp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
	}
}
