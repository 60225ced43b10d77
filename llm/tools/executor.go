package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/deepresearch/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer 接收每次工具执行的结果，用于指标上报。
type Observer interface {
	ObserveToolExecution(tool, status string, duration time.Duration)
}

// Executor runs a batch of tool calls. Failures never escape as errors:
// every call yields exactly one ToolResult keyed to its call id.
type Executor interface {
	Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult
	ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult
}

// 工具执行状态，用于日志与指标标签。
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
	StatusTimeout  = "timeout"
)

// NotFoundNotice 是未知工具名对应的结果文本。
func NotFoundNotice(name string) string {
	return fmt.Sprintf("No tool found with name %s", name)
}

// ErrorNotice 是工具执行失败对应的结果文本。
func ErrorNotice(name string, err error) string {
	return fmt.Sprintf("Error invoking tool %s: %v", name, err)
}

// ====== 实现：DefaultExecutor ======

type DefaultExecutor struct {
	registry Registry
	observer Observer
	logger   *zap.Logger
}

// ExecutorOption 配置 DefaultExecutor。
type ExecutorOption func(*DefaultExecutor)

// WithObserver 设置执行结果观察者。
func WithObserver(o Observer) ExecutorOption {
	return func(e *DefaultExecutor) { e.observer = o }
}

// NewDefaultExecutor 创建默认的工具执行器。
func NewDefaultExecutor(registry Registry, logger *zap.Logger, opts ...ExecutorOption) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &DefaultExecutor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 并发执行所有调用，结果按调用列表顺序返回，与完成顺序无关。
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = NotFoundNotice(call.Name)
		e.finish(&result, start, StatusNotFound, err)
		return result
	}

	if reg, ok := e.registry.(*DefaultRegistry); ok {
		if err := reg.wait(ctx, call.Name); err != nil {
			result.Error = ErrorNotice(call.Name, fmt.Errorf("rate limit wait: %w", err))
			e.finish(&result, start, StatusError, err)
			return result
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	// 带缓冲：超时后无人接收时工具 goroutine 仍可退出
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := fn(execCtx, call.Arguments)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && execCtx.Err() != nil {
			e.interrupted(&result, start, meta.Timeout, execCtx.Err())
			return result
		}
		if o.err != nil {
			result.Error = ErrorNotice(call.Name, o.err)
			e.finish(&result, start, StatusError, o.err)
			return result
		}
		result.Result = o.out
		e.finish(&result, start, StatusSuccess, nil)
	case <-execCtx.Done():
		e.interrupted(&result, start, meta.Timeout, execCtx.Err())
	}
	return result
}

// interrupted 区分工具自身超时与调用方取消：只有截止时间到达才记为 timeout。
func (e *DefaultExecutor) interrupted(result *types.ToolResult, start time.Time, timeout time.Duration, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		err := fmt.Errorf("execution timeout after %s: %w", timeout, cause)
		result.Error = ErrorNotice(result.Name, err)
		e.finish(result, start, StatusTimeout, err)
		return
	}
	err := fmt.Errorf("execution canceled: %w", cause)
	result.Error = ErrorNotice(result.Name, err)
	e.finish(result, start, StatusError, err)
}

func (e *DefaultExecutor) finish(result *types.ToolResult, start time.Time, status string, err error) {
	result.Duration = time.Since(start)
	if e.observer != nil {
		e.observer.ObserveToolExecution(result.Name, status, result.Duration)
	}
	if err != nil {
		e.logger.Warn("tool call failed",
			zap.String("name", result.Name),
			zap.String("call_id", result.ToolCallID),
			zap.String("status", status),
			zap.Error(err),
			zap.Duration("duration", result.Duration))
		return
	}
	e.logger.Debug("tool executed",
		zap.String("name", result.Name),
		zap.String("call_id", result.ToolCallID),
		zap.Duration("duration", result.Duration))
}
