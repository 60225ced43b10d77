package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/deepresearch/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultToolTimeout = 30 * time.Second

// ToolFunc 是工具的调用签名：接收模型给出的 JSON 参数，返回文本观察结果。
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// ToolMetadata describes a registered tool.
type ToolMetadata struct {
	Schema      types.ToolSchema // 暴露给模型的 JSON Schema
	RateLimit   *RateLimitConfig // 可选的速率限制
	Timeout     time.Duration    // 执行超时（默认 30s）
	Description string
}

// RateLimitConfig 是令牌桶参数：每秒补充 RPS 个令牌，桶容量 Burst。
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Registry maps tool names to callables. The set is closed once startup wiring is done.
type Registry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []types.ToolSchema
	Has(name string) bool
}

// ====== 实现：DefaultRegistry ======

type DefaultRegistry struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	metadata map[string]ToolMetadata
	order    []string
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	if name == "" || fn == nil {
		return fmt.Errorf("tool name and function are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if len(metadata.Schema.Parameters) == 0 {
		metadata.Schema.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	if metadata.Timeout <= 0 {
		metadata.Timeout = defaultToolTimeout
	}

	r.tools[name] = fn
	r.metadata[name] = metadata
	r.order = append(r.order, name)

	if rl := metadata.RateLimit; rl != nil && rl.RPS > 0 {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}
		r.limiters[name] = rate.NewLimiter(rate.Limit(rl.RPS), burst)
	}

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %s not found", name))
	}
	return fn, r.metadata[name], nil
}

// List 按注册顺序返回工具 Schema，保证发给模型的工具列表稳定。
func (r *DefaultRegistry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.metadata[name].Schema)
	}
	return schemas
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// wait 阻塞直到工具的令牌桶放行；没有配置限流的工具直接返回。
func (r *DefaultRegistry) wait(ctx context.Context, name string) error {
	r.mu.RLock()
	limiter, ok := r.limiters[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
