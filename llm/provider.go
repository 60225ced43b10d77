package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/deepresearch/internal/ctxkeys"
	"github.com/BaSui01/deepresearch/types"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态与可重试性。
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "LLM_INVALID_REQUEST"    // 参数/格式错误
	ErrUnauthorized      ErrorCode = "LLM_UNAUTHORIZED"       // 未授权或密钥失效
	ErrForbidden         ErrorCode = "LLM_FORBIDDEN"          // 权限或内容策略拒绝
	ErrRateLimited       ErrorCode = "LLM_RATE_LIMITED"       // 上游或本地限流
	ErrQuotaExceeded     ErrorCode = "LLM_QUOTA_EXCEEDED"     // 额度/配额用尽
	ErrModelOverloaded   ErrorCode = "LLM_MODEL_OVERLOADED"   // 模型过载
	ErrUpstreamTimeout   ErrorCode = "LLM_UPSTREAM_TIMEOUT"   // 上游超时
	ErrUpstreamError     ErrorCode = "LLM_UPSTREAM_ERROR"     // 上游 5xx/网络错误
	ErrMalformedResponse ErrorCode = "LLM_MALFORMED_RESPONSE" // 响应无法解析
	ErrProviderNotWired  ErrorCode = "LLM_PROVIDER_NOT_WIRED" // 未注入 Provider
)

// Error is returned by backends. Retryable drives the retry middleware only;
// the orchestration core never retries on its own.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// The message model lives in types; these aliases keep call sites short.
type (
	Role       = types.Role
	Message    = types.Message
	ToolCall   = types.ToolCall
	ToolSchema = types.ToolSchema
)

const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
	RoleTool      = types.RoleTool
)

// ResponseFormat requests structured output constrained by a JSON schema.
type ResponseFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

type ChatRequest struct {
	TraceID        string            `json:"trace_id"`
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float32           `json:"temperature,omitempty"`
	Tools          []ToolSchema      `json:"tools,omitempty"`
	ToolChoice     string            `json:"tool_choice,omitempty"` // auto/none/<tool name>
	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Provider 定义了统一的 LLM 适配接口。
// 工具调用通过 ChatRequest.Tools 参数传递，模型在响应中返回 ToolCalls，
// 具体的工具执行由 tools.Executor 负责。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// Invoke sends messages (optionally with tool schemas) and returns the
// assistant reply. Any failure is surfaced as a Backend error. The run id and
// stage carried by ctx are copied onto the request.
func Invoke(ctx context.Context, p Provider, req *ChatRequest) (Message, error) {
	if p == nil {
		return Message{}, &Error{Code: ErrProviderNotWired, Message: "provider is nil"}
	}
	if req.TraceID == "" {
		if runID, ok := ctxkeys.RunID(ctx); ok {
			req.TraceID = runID
		}
	}
	if stage, ok := ctxkeys.Stage(ctx); ok {
		if req.Metadata == nil {
			req.Metadata = make(map[string]string, 1)
		}
		req.Metadata["stage"] = stage
	}
	resp, err := p.Completion(ctx, req)
	if err != nil {
		return Message{}, types.NewError(types.ErrBackend, fmt.Sprintf("model %s invocation failed", req.Model)).WithCause(err)
	}
	choice, err := FirstChoice(resp)
	if err != nil {
		return Message{}, types.NewError(types.ErrEmptyResponse, fmt.Sprintf("model %s returned no reply", req.Model)).WithCause(err)
	}
	msg := choice.Message
	msg.Role = RoleAssistant
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg, nil
}

