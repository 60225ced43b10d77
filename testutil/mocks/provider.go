// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按模型路由、脚本化回复与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/types"
)

// Responder 根据请求生成响应
type Responder func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

// --- MockProvider 结构 ---

// MockProvider 是 LLM Provider 的模拟实现，并发安全
type MockProvider struct {
	mu sync.Mutex

	name string

	// 响应配置
	response  string
	toolCalls []types.ToolCall
	err       error
	script    []types.Message
	routes    map[string]Responder

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc Responder

	// 行为控制
	delay     time.Duration
	failAfter int
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:             "mock",
		response:         "Mock response",
		routes:           make(map[string]Responder),
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithToolCalls 设置固定响应附带的工具调用
func (m *MockProvider) WithToolCalls(toolCalls []types.ToolCall) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = toolCalls
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithScript 设置按顺序消费的回复，消费完后回到固定响应
func (m *MockProvider) WithScript(replies ...types.Message) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
	return m
}

// On 为指定模型设置响应函数，优先级高于脚本与固定响应
func (m *MockProvider) On(model string, fn Responder) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[model] = fn
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn Responder) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- Provider 接口实现 ---

func (m *MockProvider) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, m.record(req, nil, ctx.Err())
		}
	}

	resp, err := m.respond(ctx, req, count)
	return resp, m.record(req, resp, err)
}

func (m *MockProvider) respond(ctx context.Context, req *llm.ChatRequest, count int) (*llm.ChatResponse, error) {
	m.mu.Lock()
	if m.failAfter > 0 && count > m.failAfter {
		m.mu.Unlock()
		return nil, errors.New("mock provider: fail after limit reached")
	}
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	if fn := m.completionFunc; fn != nil {
		m.mu.Unlock()
		return fn(ctx, req)
	}
	if fn, ok := m.routes[req.Model]; ok {
		m.mu.Unlock()
		return fn(ctx, req)
	}

	var msg types.Message
	if len(m.script) > 0 {
		msg = m.script[0]
		m.script = m.script[1:]
	} else {
		msg = types.NewAssistantMessage(m.response)
		msg.ToolCalls = m.toolCalls
	}
	resp := m.buildResponse(req.Model, msg)
	m.mu.Unlock()
	return resp, nil
}

// buildResponse 调用方需持有锁
func (m *MockProvider) buildResponse(model string, msg types.Message) *llm.ChatResponse {
	finish := "stop"
	if msg.HasToolCalls() {
		finish = "tool_calls"
	}
	return &llm.ChatResponse{
		ID:       "mock-response",
		Provider: m.name,
		Model:    model,
		Choices:  []llm.ChatChoice{{Index: 0, FinishReason: finish, Message: types.CloneMessage(msg)}},
		Usage: llm.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := *req
	snapshot.Messages = types.CloneMessages(req.Messages)
	m.calls = append(m.calls, MockProviderCall{Request: snapshot, Response: resp, Error: err})
	return err
}

// --- 查询方法 ---

// GetCalls 返回所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// GetCallCount 返回调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// CallsForModel 返回指定模型的调用记录
func (m *MockProvider) CallsForModel(model string) []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockProviderCall
	for _, c := range m.calls {
		if c.Request.Model == model {
			out = append(out, c)
		}
	}
	return out
}

// GetLastCall 返回最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset 清空调用记录与脚本
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.script = nil
	m.callCount = 0
}

// --- 便捷构造 ---

// NewSuccessProvider 返回固定文本的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 返回固定错误的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewScriptedProvider 返回按顺序回复的 Provider
func NewScriptedProvider(replies ...types.Message) *MockProvider {
	return NewMockProvider().WithScript(replies...)
}

// Respond 把一条消息包装为 Responder 的返回值
func Respond(msg types.Message) (*llm.ChatResponse, error) {
	finish := "stop"
	if msg.HasToolCalls() {
		finish = "tool_calls"
	}
	return &llm.ChatResponse{
		ID:       "mock-response",
		Provider: "mock",
		Choices:  []llm.ChatChoice{{Index: 0, FinishReason: finish, Message: msg}},
	}, nil
}
