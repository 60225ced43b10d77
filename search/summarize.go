package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/llm/structured"
	"github.com/BaSui01/deepresearch/types"
)

// Summarizer 将网页全文压缩为摘要。
type Summarizer interface {
	Summarize(ctx context.Context, rawContent string) (string, error)
}

// WebpageSummary 是摘要模型的结构化输出。
type WebpageSummary struct {
	Summary     string `json:"summary"`
	KeyExcerpts string `json:"key_excerpts"`
}

// Validate 校验摘要长度在 [10, 5000] 字符之间。
func (w WebpageSummary) Validate() error {
	var errs structured.ValidationErrors
	n := utf8.RuneCountInString(w.Summary)
	if n < 10 || n > 5000 {
		errs.Add("summary", "length must be within [10, 5000], got %d", n)
	}
	return errs.Err()
}

// String renders the summary the way search output embeds it.
func (w WebpageSummary) String() string {
	return fmt.Sprintf("<summary>\n%s\n</summary>\n\n<key_excerpts>\n%s\n</key_excerpts>", w.Summary, w.KeyExcerpts)
}

var webpageSummarySpec = structured.Spec{
	Name: "webpage_summary",
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"summary": {"type": "string", "description": "Concise summary of the webpage, 10 to 5000 characters."},
			"key_excerpts": {"type": "string", "description": "Up to five important verbatim quotes or excerpts."}
		},
		"required": ["summary", "key_excerpts"],
		"additionalProperties": false
	}`),
}

// maxRawContentRunes 限制送入摘要模型的网页全文长度。
const maxRawContentRunes = 250000

// LLMSummarizer 通过摘要模型生成网页摘要。
type LLMSummarizer struct {
	provider llm.Provider
	model    string
	now      func() time.Time
}

// NewLLMSummarizer 创建基于模型的摘要器。
func NewLLMSummarizer(provider llm.Provider, model string) *LLMSummarizer {
	return &LLMSummarizer{provider: provider, model: model, now: time.Now}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, rawContent string) (string, error) {
	if utf8.RuneCountInString(rawContent) > maxRawContentRunes {
		rawContent = string([]rune(rawContent)[:maxRawContentRunes])
	}
	prompt := fmt.Sprintf(`You are tasked with summarizing the raw content of a webpage retrieved from a web search.
Preserve the main topic, key facts, statistics, quotes and dates. Keep the summary to roughly a quarter of the
original length unless the content is already concise. Also extract up to five important verbatim excerpts.

Today's date is %s.

<webpage_content>
%s
</webpage_content>`, s.now().Format("2006-01-02"), rawContent)

	summary, err := structured.Generate[WebpageSummary](ctx, s.provider, &llm.ChatRequest{
		Model:    s.model,
		Messages: []llm.Message{types.NewUserMessage(prompt)},
	}, webpageSummarySpec)
	if err != nil {
		return "", err
	}
	return summary.String(), nil
}
