package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/deepresearch/config"
	"github.com/BaSui01/deepresearch/internal/metrics"
	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/llm/tools"
	"github.com/BaSui01/deepresearch/research"
	"github.com/BaSui01/deepresearch/testutil/fixtures"
	"github.com/BaSui01/deepresearch/testutil/mocks"
	"github.com/BaSui01/deepresearch/types"
)

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LLM.MaxRetries = 0
	cfg.Archive.Enabled = true
	cfg.Archive.DSN = filepath.Join(t.TempDir(), "runs.db")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewApp_ClarificationRunIsArchived(t *testing.T) {
	cfg := testAppConfig(t)
	provider := mocks.NewMockProvider().WithResponse(fixtures.ClarifyDecision("Which population are you interested in?"))

	a, err := newApp(context.Background(), cfg, zap.NewNop(), appOptions{
		provider:       provider,
		searchProvider: mocks.NewMockSearchProvider(),
	})
	require.NoError(t, err)
	defer a.Close(context.Background())
	require.NotNil(t, a.archive)

	res, err := a.orchestrator.Run(context.Background(), fixtures.FastingConversation())
	require.NoError(t, err)
	assert.Equal(t, research.OutcomeClarification, res.Outcome)
	assert.Equal(t, "Which population are you interested in?", res.Text)

	// 只调用了 scoping 模型
	require.Equal(t, 1, provider.GetCallCount())
	assert.Equal(t, cfg.LLM.ScopingModel, provider.GetLastCall().Request.Model)

	rec, err := a.archive.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "clarification", rec.Outcome)
	assert.Equal(t, fixtures.FastingConversation()[0].Content, rec.Question)

	assert.Equal(t, 1, testutil.CollectAndCount(a.registry, "deepresearch_llm_requests_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(a.registry, "deepresearch_research_runs_total"))
}

func TestNewApp_InvalidArchive(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.Driver = "oracle"

	_, err := newApp(context.Background(), cfg, zap.NewNop(), appOptions{
		provider:       mocks.NewMockProvider(),
		searchProvider: mocks.NewMockSearchProvider(),
	})
	assert.ErrorContains(t, err, "open archive")
}

func TestNewApp_CacheUnavailableFallsBack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.Cache.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	a, err := newApp(context.Background(), cfg, zap.NewNop(), appOptions{
		provider:       mocks.NewMockProvider(),
		searchProvider: mocks.NewMockSearchProvider(),
	})
	require.NoError(t, err)
	defer a.Close(context.Background())
	assert.Nil(t, a.cache)
}

func TestResearchConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Research.MaxResearchIterations = 7
	cfg.Research.MaxConcurrentResearchUnits = 4
	cfg.LLM.WriterModel = "anthropic/claude-sonnet"
	cfg.LLM.WriterMaxTokens = 8000

	rc := researchConfig(cfg)
	assert.Equal(t, 7, rc.MaxResearchIterations)
	assert.Equal(t, 4, rc.MaxConcurrentResearchUnits)
	assert.Equal(t, cfg.Research.MaxBriefLength, rc.MaxBriefLength)
	assert.Equal(t, cfg.LLM.ScopingModel, rc.Models.Scoping)
	assert.Equal(t, cfg.LLM.ResearchModel, rc.Models.Research)
	assert.Equal(t, cfg.LLM.CompressionModel, rc.Models.Compression)
	assert.Equal(t, cfg.LLM.SupervisorModel, rc.Models.Supervisor)
	assert.Equal(t, "anthropic/claude-sonnet", rc.Models.Writer)
	assert.Equal(t, 8000, rc.Models.WriterMaxTokens)
	assert.NoError(t, rc.Validate())
}

func TestWrapProvider_RetriesRetryableErrors(t *testing.T) {
	var calls atomic.Int32
	inner := mocks.NewMockProvider().WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		if calls.Add(1) == 1 {
			return nil, &llm.Error{Code: llm.ErrRateLimited, Message: "slow down", Retryable: true}
		}
		return mocks.Respond(types.NewAssistantMessage("ok"))
	})

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	lc := config.DefaultLLMConfig()
	lc.MaxRetries = 1
	lc.Timeout = time.Second

	p := wrapProvider(inner, lc, collector, zap.NewNop())
	msg, err := llm.Invoke(context.Background(), p, &llm.ChatRequest{Model: "m", Messages: fixtures.FastingConversation()})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "mock", p.Name())
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "test_llm_requests_total"))
}

func TestWrapProvider_DoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	inner := mocks.NewMockProvider().WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		calls.Add(1)
		return nil, &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key"}
	})
	lc := config.DefaultLLMConfig()
	lc.MaxRetries = 3

	p := wrapProvider(inner, lc, metrics.NewCollector("test", prometheus.NewRegistry(), nil), zap.NewNop())
	_, err := llm.Invoke(context.Background(), p, &llm.ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, types.ErrBackend, types.GetErrorCode(err))

	var llmErr *llm.Error
	assert.True(t, errors.As(err, &llmErr))
	assert.Equal(t, int32(1), calls.Load())
}

type stubMCPTools struct{}

func (stubMCPTools) ListTools(context.Context, mcplib.ListToolsRequest) (*mcplib.ListToolsResult, error) {
	return &mcplib.ListToolsResult{Tools: []mcplib.Tool{
		mcplib.NewTool("read_file", mcplib.WithString("path", mcplib.Required())),
	}}, nil
}

func (stubMCPTools) CallTool(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return &mcplib.CallToolResult{Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: "contents"}}}, nil
}

func TestApp_RegisterMCPTools(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MCP.ToolPrefix = "fs_"
	cfg.MCP.Timeout = 5 * time.Second
	a := &app{cfg: cfg, logger: zap.NewNop()}

	reg := tools.NewDefaultRegistry(nil)
	require.NoError(t, a.registerMCPTools(context.Background(), reg, stubMCPTools{}))

	_, meta, err := reg.Get("fs_read_file")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, meta.Timeout)
	assert.Nil(t, a.mcp, "injected sources are not owned by the app")
}

func TestApp_RegisterMCPTools_DisabledIsNoop(t *testing.T) {
	a := &app{cfg: config.DefaultConfig(), logger: zap.NewNop()}
	reg := tools.NewDefaultRegistry(nil)

	require.NoError(t, a.registerMCPTools(context.Background(), reg, nil))
	assert.Empty(t, reg.List())
}

func TestNewApp_MCPServerFailsToStart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MCP.Enabled = true
	cfg.MCP.Command = filepath.Join(t.TempDir(), "missing-mcp-server")

	_, err := newApp(context.Background(), cfg, zap.NewNop(), appOptions{
		provider:       mocks.NewMockProvider(),
		searchProvider: mocks.NewMockSearchProvider(),
	})
	assert.ErrorContains(t, err, "start mcp server")
}
