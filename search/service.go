package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentSummaries 限制同一次搜索中并发摘要的数量。
const maxConcurrentSummaries = 4

// Service 执行一次完整的搜索：查询、去重、摘要、格式化。
type Service struct {
	provider   Provider
	summarizer Summarizer
	logger     *zap.Logger
}

// NewService 创建搜索服务。summarizer 为 nil 时直接使用结果的简短内容。
func NewService(provider Provider, summarizer Summarizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider:   provider,
		summarizer: summarizer,
		logger:     logger.With(zap.String("component", "search")),
	}
}

// Run 执行查询并返回格式化后的文本。后端失败原样返回错误。
func (s *Service) Run(ctx context.Context, query string, maxResults int, topic Topic) (string, error) {
	sources, err := s.Collect(ctx, []string{query}, maxResults, topic)
	if err != nil {
		return "", err
	}
	return Format(sources), nil
}

// Collect 对多个查询并发检索，按 URL 去重后逐条摘要。
func (s *Service) Collect(ctx context.Context, queries []string, maxResults int, topic Topic) ([]Source, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("search provider not configured")
	}

	start := time.Now()
	batches := make([][]Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := s.provider.Search(gctx, q, maxResults, topic)
			if err != nil {
				return fmt.Errorf("%s search %q: %w", s.provider.Name(), q, err)
			}
			batches[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	unique := Deduplicate(batches...)
	sources := make([]Source, len(unique))

	sg, sctx := errgroup.WithContext(ctx)
	sg.SetLimit(maxConcurrentSummaries)
	for i, r := range unique {
		sg.Go(func() error {
			sources[i] = Source{URL: r.URL, Title: r.Title, Content: s.summarize(sctx, r)}
			return nil
		})
	}
	_ = sg.Wait()

	s.logger.Debug("search collected",
		zap.Strings("queries", queries),
		zap.Int("results", len(sources)),
		zap.Duration("duration", time.Since(start)))
	return sources, nil
}

// summarize 摘要失败时回退到结果自带的简短内容。
func (s *Service) summarize(ctx context.Context, r Result) string {
	if s.summarizer == nil || r.RawContent == "" {
		return r.Content
	}
	summary, err := s.summarizer.Summarize(ctx, r.RawContent)
	if err != nil {
		s.logger.Warn("webpage summary failed, using short content",
			zap.String("url", r.URL), zap.Error(err))
		return r.Content
	}
	return summary
}
