package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/deepresearch/search"
	"github.com/BaSui01/deepresearch/types"
	"go.uber.org/zap"
)

// 内置工具名称。
const (
	ThinkToolName            = "think"
	ResearchCompleteToolName = "research_complete"
	ConductResearchToolName  = "conduct_research"
	SearchToolName           = "tavily_search"
)

// ====== think ======

type thinkArgs struct {
	Reflection string `json:"reflection"`
}

// ThinkSchema 返回反思工具的 Schema。
func ThinkSchema() types.ToolSchema {
	return types.ToolSchema{
		Name:        ThinkToolName,
		Description: "Strategic reflection on research progress. Use it after each search or delegation to assess findings, gaps and next steps.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"reflection": {"type": "string", "description": "Your detailed reflection on research progress, findings, gaps, and next steps"}
			},
			"required": ["reflection"]
		}`),
	}
}

// NewThinkTool 创建反思工具：原样记录反思内容。
func NewThinkTool() (ToolFunc, ToolMetadata) {
	fn := func(_ context.Context, args json.RawMessage) (string, error) {
		var params thinkArgs
		if err := decodeArgs(args, &params); err != nil {
			return "", err
		}
		return "Reflection recorded: " + params.Reflection, nil
	}
	return fn, ToolMetadata{Schema: ThinkSchema(), Timeout: 5 * time.Second}
}

// ====== research_complete ======

// ResearchCompleteSchema 返回完成信号工具的 Schema（无参数）。
func ResearchCompleteSchema() types.ToolSchema {
	return types.ToolSchema{
		Name:        ResearchCompleteToolName,
		Description: "Call this tool to indicate that the research is complete.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

// NewResearchCompleteTool 创建完成信号工具。调用方通常只检查名称，不会真正执行它。
func NewResearchCompleteTool() (ToolFunc, ToolMetadata) {
	fn := func(context.Context, json.RawMessage) (string, error) {
		return "Research marked complete.", nil
	}
	return fn, ToolMetadata{Schema: ResearchCompleteSchema(), Timeout: time.Second}
}

// ====== conduct_research ======

// Delegation 是 conduct_research 调用的参数。
type Delegation struct {
	ResearchTopic string `json:"research_topic"`
	ResearchBrief string `json:"research_brief"`
}

// ConductResearchSchema 返回委派工具的 Schema。委派由 supervisor 直接调度，不经过 Executor。
func ConductResearchSchema() types.ToolSchema {
	return types.ToolSchema{
		Name:        ConductResearchToolName,
		Description: "Delegate a research task to a specialized sub-agent. Each call researches one topic.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"research_topic": {"type": "string", "description": "The topic to research. Should be a single topic, described in high detail (at least a paragraph)."},
				"research_brief": {"type": "string", "description": "The research brief handed to the sub-agent as its first message."}
			},
			"required": ["research_topic", "research_brief"]
		}`),
	}
}

// ParseDelegation 解析并校验委派参数。
func ParseDelegation(args json.RawMessage) (Delegation, error) {
	var d Delegation
	if err := decodeArgs(args, &d); err != nil {
		return Delegation{}, err
	}
	if strings.TrimSpace(d.ResearchTopic) == "" {
		return Delegation{}, fmt.Errorf("research_topic is required")
	}
	return d, nil
}

// ====== tavily_search ======

// Searcher 执行一次搜索并返回格式化文本，*search.Service 实现了它。
type Searcher interface {
	Run(ctx context.Context, query string, maxResults int, topic search.Topic) (string, error)
}

// SearchToolConfig configures the search tool.
type SearchToolConfig struct {
	DefaultMaxResults int
	Timeout           time.Duration
	RateLimit         *RateLimitConfig
}

// DefaultSearchToolConfig returns sensible defaults.
func DefaultSearchToolConfig() SearchToolConfig {
	return SearchToolConfig{
		DefaultMaxResults: 3,
		Timeout:           2 * time.Minute,
	}
}

type searchArgs struct {
	Query      string       `json:"query"`
	MaxResults *int         `json:"max_results,omitempty"`
	Topic      search.Topic `json:"topic,omitempty"`
}

func (a *searchArgs) normalize(defaultMax int) error {
	a.Query = strings.TrimSpace(a.Query)
	if n := utf8.RuneCountInString(a.Query); n < 2 || n > 100 {
		return fmt.Errorf("query length must be within [2, 100], got %d", n)
	}
	if a.MaxResults == nil {
		a.MaxResults = &defaultMax
	}
	if *a.MaxResults < 1 || *a.MaxResults > 10 {
		return fmt.Errorf("max_results must be within [1, 10], got %d", *a.MaxResults)
	}
	if a.Topic == "" {
		a.Topic = search.TopicGeneral
	}
	if !a.Topic.Valid() {
		return fmt.Errorf("topic must be one of general, finance, news, got %q", a.Topic)
	}
	return nil
}

// SearchSchema 返回搜索工具的 Schema。
func SearchSchema() types.ToolSchema {
	return types.ToolSchema{
		Name:        SearchToolName,
		Description: "A search engine optimized for comprehensive, accurate, and trusted results. Useful for answering questions about current events.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 2, "maxLength": 100, "description": "A single search query to execute"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 10, "default": 3, "description": "Maximum number of results to return"},
				"topic": {"type": "string", "enum": ["general", "finance", "news"], "default": "general", "description": "Topic to filter results by"}
			},
			"required": ["query"]
		}`),
	}
}

// NewSearchTool 创建搜索工具。
func NewSearchTool(searcher Searcher, config SearchToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultMaxResults <= 0 {
		config.DefaultMaxResults = 3
	}

	fn := func(ctx context.Context, args json.RawMessage) (string, error) {
		var params searchArgs
		if err := decodeArgs(args, &params); err != nil {
			return "", err
		}
		if err := params.normalize(config.DefaultMaxResults); err != nil {
			return "", err
		}
		if searcher == nil {
			return "", fmt.Errorf("search provider not configured")
		}

		start := time.Now()
		out, err := searcher.Run(ctx, params.Query, *params.MaxResults, params.Topic)
		if err != nil {
			return "", fmt.Errorf("search failed: %w", err)
		}
		logger.Debug("search completed",
			zap.String("query", params.Query),
			zap.Int("max_results", *params.MaxResults),
			zap.String("topic", string(params.Topic)),
			zap.Duration("duration", time.Since(start)))
		return out, nil
	}

	return fn, ToolMetadata{
		Schema:      SearchSchema(),
		Timeout:     config.Timeout,
		RateLimit:   config.RateLimit,
		Description: "Web search with per-result summarization and URL de-duplication.",
	}
}

// ====== 注册 ======

// RegisterWorkerTools 注册研究员可用的工具：搜索与反思。
func RegisterWorkerTools(registry Registry, searcher Searcher, config SearchToolConfig, logger *zap.Logger) error {
	searchFn, searchMeta := NewSearchTool(searcher, config, logger)
	if err := registry.Register(SearchToolName, searchFn, searchMeta); err != nil {
		return err
	}
	thinkFn, thinkMeta := NewThinkTool()
	return registry.Register(ThinkToolName, thinkFn, thinkMeta)
}

// RegisterSupervisorTools 注册 supervisor 同步执行的工具：完成信号与反思。
func RegisterSupervisorTools(registry Registry) error {
	doneFn, doneMeta := NewResearchCompleteTool()
	if err := registry.Register(ResearchCompleteToolName, doneFn, doneMeta); err != nil {
		return err
	}
	thinkFn, thinkMeta := NewThinkTool()
	return registry.Register(ThinkToolName, thinkFn, thinkMeta)
}

func decodeArgs(args json.RawMessage, dest any) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, dest); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
