package search

import (
	"context"
	"fmt"
	"strings"
)

// Topic 是搜索后端支持的主题分类。
type Topic string

const (
	TopicGeneral Topic = "general"
	TopicFinance Topic = "finance"
	TopicNews    Topic = "news"
)

// Valid reports whether t is one of the supported topics.
func (t Topic) Valid() bool {
	switch t {
	case TopicGeneral, TopicFinance, TopicNews:
		return true
	}
	return false
}

// Result 是搜索后端返回的一条结果。RawContent 为空表示后端没有提供全文。
type Result struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	RawContent string `json:"raw_content,omitempty"`
}

// Provider 是搜索后端契约。
type Provider interface {
	Search(ctx context.Context, query string, maxResults int, topic Topic) ([]Result, error)
	Name() string
}

// Deduplicate 按 URL 去重，保留首次出现的结果并保持原有顺序。
func Deduplicate(batches ...[]Result) []Result {
	seen := make(map[string]struct{})
	var out []Result
	for _, batch := range batches {
		for _, r := range batch {
			if _, ok := seen[r.URL]; ok {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// Source 是进入工具输出的一条来源：标题、URL 与（可能经过摘要的）内容。
type Source struct {
	URL     string
	Title   string
	Content string
}

const sourceSeparator = "--------------------------------------------------------------------------------"

// Format 将来源渲染为研究员可读的文本块。
func Format(sources []Source) string {
	var sb strings.Builder
	sb.WriteString("Search results:\n\n")
	for i, s := range sources {
		fmt.Fprintf(&sb, "\n\n--- SOURCE %d: %s ---\n", i+1, s.Title)
		fmt.Fprintf(&sb, "URL: %s\n\n", s.URL)
		fmt.Fprintf(&sb, "SUMMARY:\n%s\n\n", s.Content)
		sb.WriteString(sourceSeparator)
		sb.WriteString("\n")
	}
	return sb.String()
}
