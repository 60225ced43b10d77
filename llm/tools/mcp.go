package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ====== MCP 工具桥接 ======

const mcpClientName = "deepresearch"

// MCPToolSource 是 MCP 会话中与工具相关的两个请求，*client.Client 满足该接口。
type MCPToolSource interface {
	ListTools(ctx context.Context, request mcplib.ListToolsRequest) (*mcplib.ListToolsResult, error)
	CallTool(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error)
}

// MCPServerConfig 描述一个通过 stdio 启动的 MCP 服务器进程。
type MCPServerConfig struct {
	Command string
	Args    []string
	Env     []string
}

// MCPToolConfig 控制 MCP 工具注册到 Registry 的方式。
type MCPToolConfig struct {
	// Prefix 加在工具名前，避免与内置工具重名
	Prefix string
	// Timeout 单次工具调用超时，0 使用 Registry 默认值
	Timeout time.Duration
}

// ConnectMCP 启动 MCP 服务器进程并完成 initialize 握手。
func ConnectMCP(ctx context.Context, cfg MCPServerConfig, logger *zap.Logger) (*mcpclient.Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp server command is required")
	}
	c, err := mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp server %s: %w", cfg.Command, err)
	}
	if err := InitializeMCP(ctx, c, logger); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// InitializeMCP 对已启动的客户端执行 initialize 握手。
func InitializeMCP(ctx context.Context, c *mcpclient.Client, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	res, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ProtocolVersion: mcplib.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcplib.Implementation{Name: mcpClientName, Version: "1.0"},
		},
	})
	if err != nil {
		return fmt.Errorf("initialize mcp session: %w", err)
	}
	logger.Info("connected to MCP server",
		zap.String("server", res.ServerInfo.Name),
		zap.String("version", res.ServerInfo.Version),
		zap.String("protocol", res.ProtocolVersion))
	return nil
}

// RegisterMCPTools 列出服务器的全部工具并逐个注册为 ToolFunc，返回注册后的名称。
// 与已注册工具重名的会被跳过。
func RegisterMCPTools(ctx context.Context, registry Registry, source MCPToolSource, cfg MCPToolConfig, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	listed, err := source.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}

	var names []string
	for _, tool := range listed.Tools {
		name := cfg.Prefix + tool.Name
		if registry.Has(name) {
			logger.Warn("mcp tool shadows a registered tool, skipping", zap.String("name", name))
			continue
		}
		fn, meta, err := NewMCPTool(source, tool, cfg)
		if err != nil {
			return names, err
		}
		if err := registry.Register(name, fn, meta); err != nil {
			return names, err
		}
		names = append(names, name)
	}

	logger.Info("mcp tools registered", zap.Strings("tools", names))
	return names, nil
}

// NewMCPTool 将一个 MCP 工具包装为 ToolFunc。服务器标记 isError 的结果以错误返回，
// 由 Executor 转成 "Error invoking tool" 文本。
func NewMCPTool(source MCPToolSource, tool mcplib.Tool, cfg MCPToolConfig) (ToolFunc, ToolMetadata, error) {
	params, err := mcpInputSchema(tool)
	if err != nil {
		return nil, ToolMetadata{}, fmt.Errorf("mcp tool %s: %w", tool.Name, err)
	}

	remote := tool.Name
	fn := func(ctx context.Context, args json.RawMessage) (string, error) {
		var arguments map[string]any
		if err := decodeArgs(args, &arguments); err != nil {
			return "", err
		}
		res, err := source.CallTool(ctx, mcplib.CallToolRequest{
			Params: mcplib.CallToolParams{Name: remote, Arguments: arguments},
		})
		if err != nil {
			return "", err
		}
		out := renderMCPContent(res.Content)
		if res.IsError {
			if out == "" {
				out = "mcp tool reported an error"
			}
			return "", errors.New(out)
		}
		return out, nil
	}

	meta := ToolMetadata{
		Timeout:     cfg.Timeout,
		Description: tool.Description,
	}
	meta.Schema.Name = cfg.Prefix + tool.Name
	meta.Schema.Description = tool.Description
	meta.Schema.Parameters = params
	return fn, meta, nil
}

// mcpInputSchema 取出工具的 inputSchema；缺省 type 视为 object，object 缺少 properties 时补空对象。
func mcpInputSchema(tool mcplib.Tool) (json.RawMessage, error) {
	raw, err := json.Marshal(tool)
	if err != nil {
		return nil, err
	}
	var wire struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	schema := wire.InputSchema
	if schema == nil {
		schema = map[string]any{}
	}
	if t, _ := schema["type"].(string); t == "" {
		schema["type"] = "object"
	}
	if schema["type"] == "object" {
		if _, ok := schema["properties"]; !ok {
			schema["properties"] = map[string]any{}
		}
	}
	return json.Marshal(schema)
}

// renderMCPContent 拼接文本内容；非文本内容按 JSON 原样保留。
func renderMCPContent(content []mcplib.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case mcplib.TextContent:
			parts = append(parts, v.Text)
		default:
			if b, err := json.Marshal(v); err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	return strings.Join(parts, "\n")
}
