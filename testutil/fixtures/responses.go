// =============================================================================
// 📦 测试数据工厂 - LLM 响应测试数据
// =============================================================================
// 提供预定义的模型回复、工具调用与结构化输出，用于研究流程测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/types"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return ResponseWithToolCalls(content, nil)
}

// ResponseWithToolCalls 返回带工具调用的响应
func ResponseWithToolCalls(content string, toolCalls []types.ToolCall) *llm.ChatResponse {
	finish := "stop"
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "mock-model",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: finish,
				Message:      Reply(content, toolCalls...),
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		CreatedAt: time.Now(),
	}
}

// =============================================================================
// 🔧 消息与工具调用
// =============================================================================

// Reply 构造一条助手回复
func Reply(content string, toolCalls ...types.ToolCall) types.Message {
	msg := types.NewAssistantMessage(content)
	if len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
	}
	return msg
}

// ToolCall 构造工具调用。args 为 string / json.RawMessage 时原样使用，否则序列化为 JSON。
func ToolCall(id, name string, args any) types.ToolCall {
	var raw json.RawMessage
	switch v := args.(type) {
	case nil:
		raw = json.RawMessage(`{}`)
	case json.RawMessage:
		raw = v
	case string:
		raw = json.RawMessage(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("fixtures: marshal tool args: %v", err))
		}
		raw = b
	}
	return types.ToolCall{ID: id, Name: name, Arguments: raw}
}

// Search 构造一次 tavily_search 调用
func Search(id, query string) types.ToolCall {
	return ToolCall(id, "tavily_search", map[string]any{"query": query})
}

// Think 构造一次 think 调用
func Think(id, reflection string) types.ToolCall {
	return ToolCall(id, "think", map[string]any{"reflection": reflection})
}

// Delegate 构造一次 conduct_research 调用
func Delegate(id, topic, brief string) types.ToolCall {
	return ToolCall(id, "conduct_research", map[string]any{"research_topic": topic, "research_brief": brief})
}

// Complete 构造一次 research_complete 调用
func Complete(id string) types.ToolCall {
	return ToolCall(id, "research_complete", nil)
}

// =============================================================================
// 📋 结构化输出
// =============================================================================

// ReadyDecision 返回“无需澄清”的结构化回复
func ReadyDecision(verification string) string {
	return MustJSON(map[string]any{"need_clarification": false, "question": "", "verification": verification})
}

// ClarifyDecision 返回“需要澄清”的结构化回复
func ClarifyDecision(question string) string {
	return MustJSON(map[string]any{"need_clarification": true, "question": question, "verification": ""})
}

// Brief 返回研究简报的结构化回复
func Brief(brief string) string {
	return MustJSON(map[string]any{"research_brief": brief})
}

// MustJSON 序列化任意值，失败时 panic
func MustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("fixtures: marshal: %v", err))
	}
	return string(b)
}

// =============================================================================
// 💬 对话样例
// =============================================================================

// FastingConversation 返回一段需要研究的初始对话
func FastingConversation() []types.Message {
	return []types.Message{types.NewUserMessage("Research the health effects of intermittent fasting")}
}
