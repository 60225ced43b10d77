package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/deepresearch/llm/retry"
	"github.com/BaSui01/deepresearch/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "intermittent fasting", req.Query)
		assert.Equal(t, 3, req.MaxResults)
		assert.Equal(t, "news", req.Topic)
		assert.True(t, req.IncludeRawContent)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"query": "intermittent fasting",
			"results": [
				{"title": "A", "url": "https://a.example", "content": "short a", "raw_content": "full a", "score": 0.9},
				{"title": "B", "url": "https://b.example", "content": "short b", "raw_content": null, "score": 0.5}
			]
		}`))
	}))
	t.Cleanup(server.Close)

	c := New(Config{APIKey: "tvly-key", BaseURL: server.URL}, zap.NewNop())
	results, err := c.Search(context.Background(), "intermittent fasting", 3, search.TopicNews)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, search.Result{URL: "https://a.example", Title: "A", Content: "short a", RawContent: "full a"}, results[0])
	assert.Empty(t, results[1].RawContent)
}

func TestClient_Search_InvalidTopicFallsBackToGeneral(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "general", req.Topic)
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	t.Cleanup(server.Close)

	c := New(Config{BaseURL: server.URL}, nil)
	results, err := c.Search(context.Background(), "q", 1, search.Topic("sports"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_Search_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
		wantMsg   string
	}{
		{name: "unauthorized is not retried", status: http.StatusUnauthorized, body: `{"detail":{"error":"bad key"}}`, wantCalls: 1, wantMsg: "bad key"},
		{name: "server error is retried", status: http.StatusBadGateway, body: `upstream`, wantCalls: 3, wantMsg: "upstream"},
		{name: "rate limit is retried", status: http.StatusTooManyRequests, body: `{"error":"slow"}`, wantCalls: 3, wantMsg: "slow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			c := New(Config{
				BaseURL: server.URL,
				Retry:   &retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
			}, nil)
			_, err := c.Search(context.Background(), "q", 3, search.TopicGeneral)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.wantMsg, se.Message)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}
