package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/deepresearch/search"
)

// SearchCall 记录单次搜索
type SearchCall struct {
	Query      string
	MaxResults int
	Topic      search.Topic
}

// MockSearchProvider 是搜索后端的模拟实现，并发安全
type MockSearchProvider struct {
	mu       sync.Mutex
	results  map[string][]search.Result
	fallback []search.Result
	err      error
	delay    time.Duration
	calls    []SearchCall
}

// NewMockSearchProvider 创建新的 MockSearchProvider
func NewMockSearchProvider() *MockSearchProvider {
	return &MockSearchProvider{results: make(map[string][]search.Result)}
}

// WithResults 设置指定查询的结果
func (m *MockSearchProvider) WithResults(query string, results ...search.Result) *MockSearchProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[query] = results
	return m
}

// WithDefaultResults 设置未匹配查询时返回的结果
func (m *MockSearchProvider) WithDefaultResults(results ...search.Result) *MockSearchProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = results
	return m
}

// WithError 设置返回错误
func (m *MockSearchProvider) WithError(err error) *MockSearchProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置搜索延迟
func (m *MockSearchProvider) WithDelay(d time.Duration) *MockSearchProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

func (m *MockSearchProvider) Name() string { return "mock-search" }

func (m *MockSearchProvider) Search(ctx context.Context, query string, maxResults int, topic search.Topic) ([]search.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, SearchCall{Query: query, MaxResults: maxResults, Topic: topic})
	delay, err := m.delay, m.err
	res, ok := m.results[query]
	if !ok {
		res = m.fallback
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if maxResults > 0 && len(res) > maxResults {
		res = res[:maxResults]
	}
	out := make([]search.Result, len(res))
	copy(out, res)
	return out, nil
}

// GetCalls 返回所有搜索记录
func (m *MockSearchProvider) GetCalls() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SearchCall, len(m.calls))
	copy(out, m.calls)
	return out
}
