package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/types"
)

// Validatable 是结构化输出的目标类型需要实现的约束校验。
type Validatable interface {
	Validate() error
}

// Spec 描述一个结构化输出：名称与 JSON Schema。
type Spec struct {
	Name   string
	Schema json.RawMessage
}

// ParseError represents a validation error with field path.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, pe := range e.Errors {
		msgs = append(msgs, pe.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Add 追加一条字段错误
func (e *ValidationErrors) Add(path, format string, args ...any) {
	e.Errors = append(e.Errors, ParseError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Err 没有错误时返回 nil
func (e *ValidationErrors) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Generate 以结构化输出方式调用模型并解析为 T。
// 后端失败返回 types.ErrBackend；回复无法解析或不满足约束返回 types.ErrStructuredOutput。
func Generate[T Validatable](ctx context.Context, p llm.Provider, req *llm.ChatRequest, spec Spec) (T, error) {
	var zero T

	r := *req
	r.Tools = nil
	r.ToolChoice = ""
	r.ResponseFormat = &llm.ResponseFormat{Name: spec.Name, Schema: spec.Schema, Strict: StrictCompatible(spec.Schema)}

	msg, err := llm.Invoke(ctx, p, &r)
	if err != nil {
		return zero, err
	}
	value, err := Parse[T](msg.Content)
	if err != nil {
		return zero, types.NewError(types.ErrStructuredOutput,
			fmt.Sprintf("model %s returned invalid %s", req.Model, spec.Name)).WithCause(err)
	}
	return value, nil
}

// strictUnsupported 是 OpenAI 兼容 strict json_schema 模式不接受的约束关键字。
// 长度、范围等约束由目标类型的 Validate 负责。
var strictUnsupported = map[string]struct{}{
	"minLength": {}, "maxLength": {}, "pattern": {}, "format": {},
	"minimum": {}, "maximum": {}, "exclusiveMinimum": {}, "exclusiveMaximum": {}, "multipleOf": {},
	"minItems": {}, "maxItems": {}, "uniqueItems": {}, "contains": {},
	"minProperties": {}, "maxProperties": {}, "patternProperties": {}, "propertyNames": {},
}

// StrictCompatible 报告 schema 能否以 strict 模式发送。
// 含不支持的关键字或无法解析时返回 false，此时后端按非 strict 处理。
func StrictCompatible(schema json.RawMessage) bool {
	var node any
	if err := json.Unmarshal(schema, &node); err != nil {
		return false
	}
	return strictNode(node)
}

func strictNode(node any) bool {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if _, bad := strictUnsupported[key]; bad {
				return false
			}
			// properties / $defs 的键是字段名，不是关键字
			if key == "properties" || key == "$defs" || key == "definitions" {
				fields, ok := child.(map[string]any)
				if !ok {
					continue
				}
				for _, field := range fields {
					if !strictNode(field) {
						return false
					}
				}
				continue
			}
			if !strictNode(child) {
				return false
			}
		}
	case []any:
		for _, child := range v {
			if !strictNode(child) {
				return false
			}
		}
	}
	return true
}

// Parse 从模型回复中提取 JSON、反序列化并校验。
func Parse[T Validatable](raw string) (T, error) {
	var value T
	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		return value, &ValidationErrors{Errors: []ParseError{{Message: "empty response"}}}
	}
	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		return value, &ValidationErrors{Errors: []ParseError{{Message: fmt.Sprintf("JSON parse error: %v", err)}}}
	}
	if err := value.Validate(); err != nil {
		return value, err
	}
	return value, nil
}

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON 从可能包含 markdown 代码块或其它文字的回复中取出 JSON 对象。
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		if m := fencePattern.FindStringSubmatch(response); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}
