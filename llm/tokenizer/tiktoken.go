package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 为 OpenAI 系列模型提供精确计数.
type TiktokenTokenizer struct {
	model     string
	encoding  string
	maxTokens int
	enc       *tiktoken.Tiktoken
	once      sync.Once
	initErr   error
}

type encodingInfo struct {
	encoding  string
	maxTokens int
}

// 研究流程各角色默认使用的模型及其编码。
var modelEncodings = map[string]encodingInfo{
	"gpt-4.1":      {encoding: "o200k_base", maxTokens: 1047576},
	"gpt-4.1-mini": {encoding: "o200k_base", maxTokens: 1047576},
	"gpt-4o":       {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini":  {encoding: "o200k_base", maxTokens: 128000},
	"o4-mini":      {encoding: "o200k_base", maxTokens: 200000},
	"gpt-4-turbo":  {encoding: "cl100k_base", maxTokens: 128000},
	"gpt-4":        {encoding: "cl100k_base", maxTokens: 8192},
}

// NewTiktokenTokenizer 为给定模型创建 tiktoken 分词器；未知模型使用 cl100k_base。
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	name := NormalizeModel(model)
	info, ok := modelEncodings[name]
	if !ok {
		info = encodingInfo{encoding: "cl100k_base", maxTokens: 8192}
		bestLen := 0
		for prefix, i := range modelEncodings {
			if len(name) >= len(prefix) && name[:len(prefix)] == prefix && len(prefix) > bestLen {
				info, bestLen = i, len(prefix)
			}
		}
	}
	return &TiktokenTokenizer{model: model, encoding: info.encoding, maxTokens: info.maxTokens}
}

// init 延迟加载编码（首次使用时可能需要下载 BPE 数据）.
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	total := 3
	for _, msg := range messages {
		// <|start|>role\n content<|end|>\n
		total += 4
		total += len(t.enc.Encode(msg.Content, nil, nil))
		total += len(t.enc.Encode(msg.Role, nil, nil))
	}
	return total, nil
}

func (t *TiktokenTokenizer) MaxTokens() int { return t.maxTokens }

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

// RegisterOpenAITokenizers 为所有已知的 OpenAI 模型注册分词器。
func RegisterOpenAITokenizers() {
	for model := range modelEncodings {
		RegisterTokenizer(model, NewTiktokenTokenizer(model))
	}
}

// Counter 统计文本 token 数，分词器初始化失败时退回估算器。
type Counter struct {
	primary  Tokenizer
	fallback Tokenizer
}

// NewCounter 为模型创建计数器。
func NewCounter(model string) *Counter {
	return &Counter{primary: GetTokenizerOrEstimator(model), fallback: NewEstimatorTokenizer(model, 0)}
}

// Count 返回 text 的 token 数，永不失败。
func (c *Counter) Count(text string) int {
	if n, err := c.primary.CountTokens(text); err == nil {
		return n
	}
	n, _ := c.fallback.CountTokens(text)
	return n
}
