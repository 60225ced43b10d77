package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/deepresearch/llm/retry"
	"go.uber.org/zap"
)

// Handler processes a request and returns a response.
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware wraps a handler with additional functionality.
type Middleware func(next Handler) Handler

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps a handler with all middleware. The first middleware added is the outermost.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// LoggingMiddleware logs request/response details.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			logger.Debug("llm request",
				zap.String("trace_id", req.TraceID),
				zap.String("stage", req.Metadata["stage"]),
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)),
				zap.Int("tools", len(req.Tools)))

			resp, err := next(ctx, req)

			duration := time.Since(start)
			if err != nil {
				logger.Error("llm request failed",
					zap.String("trace_id", req.TraceID),
					zap.String("stage", req.Metadata["stage"]),
					zap.String("model", req.Model),
					zap.Duration("duration", duration),
					zap.Error(err))
			} else {
				logger.Debug("llm response",
					zap.String("trace_id", req.TraceID),
					zap.String("model", req.Model),
					zap.Int("tokens", TotalTokens(resp)),
					zap.Duration("duration", duration))
			}

			return resp, err
		}
	}
}

// TimeoutMiddleware adds timeout to requests. A request-level Timeout wins over the default.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			d := timeout
			if req.Timeout > 0 {
				d = req.Timeout
			}
			if d <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// RecoveryMiddleware recovers from panics.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError represents a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// RetryMiddleware retries requests that fail with a retryable *Error.
func RetryMiddleware(retryer retry.Retryer) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			var resp *ChatResponse
			err := retryer.Do(ctx, func() error {
				r, err := next(ctx, req)
				if err != nil {
					if IsRetryable(err) {
						return retry.WrapRetryable(err)
					}
					return err
				}
				resp = r
				return nil
			})
			if err != nil {
				return nil, unwrapRetryable(err)
			}
			return resp, nil
		}
	}
}

// MetricsMiddleware collects request metrics.
func MetricsMiddleware(provider string, collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			status := "success"
			if err != nil {
				status = "error"
			}
			var usage ChatUsage
			if resp != nil {
				usage = resp.Usage
			}
			collector.RecordLLMRequest(provider, req.Model, status, duration, usage.PromptTokens, usage.CompletionTokens)

			return resp, err
		}
	}
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// middlewareProvider routes Completion through a middleware chain.
type middlewareProvider struct {
	inner   Provider
	handler Handler
}

// WithMiddleware wraps a Provider so every Completion passes through the chain.
func WithMiddleware(p Provider, chain *Chain) Provider {
	if chain == nil || chain.Len() == 0 {
		return p
	}
	return &middlewareProvider{inner: p, handler: chain.Then(p.Completion)}
}

func (m *middlewareProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return m.handler(ctx, req)
}

func (m *middlewareProvider) Name() string { return m.inner.Name() }
