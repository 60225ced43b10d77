package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/deepresearch/internal/tlsutil"
	"github.com/BaSui01/deepresearch/llm/retry"
	"github.com/BaSui01/deepresearch/search"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public Tavily API endpoint.
const DefaultBaseURL = "https://api.tavily.com"

// Config configures the Tavily client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Retry 为 nil 时不重试
	Retry *retry.Policy
}

// Client implements search.Provider against the Tavily search API.
type Client struct {
	cfg     Config
	http    *http.Client
	retryer retry.Retryer
	logger  *zap.Logger
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tavily: status %d: %s", e.StatusCode, e.Message)
}

// New creates a Tavily client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.Retry
	if policy == nil {
		policy = &retry.Policy{MaxRetries: 0}
	}
	return &Client{
		cfg:     cfg,
		http:    tlsutil.SecureHTTPClient(cfg.Timeout),
		retryer: retry.NewBackoffRetryer(policy, logger),
		logger:  logger.With(zap.String("component", "tavily")),
	}
}

func (c *Client) Name() string { return "tavily" }

type searchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	Topic             string `json:"topic"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent *string `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
	ResponseTime float64 `json:"response_time"`
}

// Search runs one query. 429 and 5xx responses are retried per the configured policy.
func (c *Client) Search(ctx context.Context, query string, maxResults int, topic search.Topic) ([]search.Result, error) {
	if !topic.Valid() {
		topic = search.TopicGeneral
	}
	payload, err := json.Marshal(searchRequest{
		Query:             query,
		MaxResults:        maxResults,
		Topic:             string(topic),
		IncludeRawContent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	var out []search.Result
	err = c.retryer.Do(ctx, func() error {
		res, err := c.do(ctx, payload)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		var re *retry.RetryableError
		if errors.As(err, &re) {
			return nil, re.Err
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, payload []byte) ([]search.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.WrapRetryable(fmt.Errorf("tavily request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		serr := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.WrapRetryable(serr)
		}
		return nil, serr
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	results := make([]search.Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		res := search.Result{URL: r.URL, Title: r.Title, Content: r.Content}
		if r.RawContent != nil {
			res.RawContent = *r.RawContent
		}
		results = append(results, res)
	}
	c.logger.Debug("tavily search done",
		zap.Int("results", len(results)),
		zap.Duration("latency", time.Since(start)))
	return results, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Detail struct {
			Error string `json:"error"`
		} `json:"detail"`
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Detail.Error != "" {
			return e.Detail.Error
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(body))
}
