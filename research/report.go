package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/types"
	"go.uber.org/zap"
)

// ReportWriter 根据研究简报与笔记生成最终报告，不使用工具，也不重试。
type ReportWriter struct {
	provider llm.Provider
	cfg      Config
	logger   *zap.Logger
}

// NewReportWriter creates the report stage.
func NewReportWriter(provider llm.Provider, cfg Config, logger *zap.Logger) *ReportWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWriter{provider: provider, cfg: cfg, logger: logger.With(zap.String("component", "report_writer"))}
}

func (r *ReportWriter) Run(ctx context.Context, brief string, notes []string) (string, error) {
	prompt := finalReportPrompt(brief, strings.Join(notes, "\n"), r.cfg.today())
	reply, err := llm.Invoke(ctx, r.provider, &llm.ChatRequest{
		Model:     r.cfg.Models.Writer,
		Messages:  []types.Message{types.NewUserMessage(prompt)},
		MaxTokens: r.cfg.Models.WriterMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply.Content) == "" {
		return "", types.NewError(types.ErrEmptyResponse, fmt.Sprintf("model %s returned an empty report", r.cfg.Models.Writer))
	}
	r.logger.Info("report written", zap.Int("notes", len(notes)), zap.Int("length", len(reply.Content)))
	return reply.Content, nil
}

// reportMessage 是报告生成后追加到对话的消息。
func reportMessage(report string) types.Message {
	return types.NewAssistantMessage("Here is the final report: " + report)
}
