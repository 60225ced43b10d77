package types

import (
	"encoding/json"
	"time"
)

// ToolSchema defines a tool's interface for LLM function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult represents the result of a tool execution.
// Result holds the textual observation; Error holds an error notice when the
// call could not be resolved or failed while running.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Name       string        `json:"name"`
	Result     string        `json:"result"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ToMessage converts ToolResult to a Message keyed to the originating call.
func (tr ToolResult) ToMessage() Message {
	content := tr.Result
	if tr.Error != "" {
		content = tr.Error
	}
	return NewToolMessage(tr.ToolCallID, tr.Name, content)
}

// IsError returns true if the tool execution failed.
func (tr ToolResult) IsError() bool {
	return tr.Error != ""
}
