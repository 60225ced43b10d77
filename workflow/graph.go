package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/deepresearch/types"
	"go.uber.org/zap"
)

// End is the pseudo node that terminates a run.
const End = "__end__"

const defaultMaxSteps = 1000

// Transition 是一个节点的执行结果：下一个节点与需要合并的状态更新。
type Transition[U any] struct {
	Next   string
	Update U
}

// Goto builds a transition.
func Goto[U any](next string, update U) Transition[U] {
	return Transition[U]{Next: next, Update: update}
}

// Applier 由状态类型实现，按字段合并规则吸收一次更新。
type Applier[U any] interface {
	Apply(update U) error
}

// NodeFunc reads the state and describes the update it wants; it never mutates state.
type NodeFunc[S Applier[U], U any] func(ctx context.Context, state S) (Transition[U], error)

// StepObserver is notified after every node execution.
type StepObserver func(node string, duration time.Duration, err error)

// Graph 是状态机的单一步进循环：执行当前节点，合并更新，跳转到下一节点。
type Graph[S Applier[U], U any] struct {
	name     string
	entry    string
	nodes    map[string]NodeFunc[S, U]
	maxSteps int
	observer StepObserver
	logger   *zap.Logger
}

// NewGraph creates an empty graph.
func NewGraph[S Applier[U], U any](name string, logger *zap.Logger) *Graph[S, U] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph[S, U]{
		name:     name,
		nodes:    make(map[string]NodeFunc[S, U]),
		maxSteps: defaultMaxSteps,
		logger:   logger.With(zap.String("graph", name)),
	}
}

// AddNode registers a node. The first node added becomes the entry.
func (g *Graph[S, U]) AddNode(name string, fn NodeFunc[S, U]) *Graph[S, U] {
	if g.entry == "" {
		g.entry = name
	}
	g.nodes[name] = fn
	return g
}

// WithMaxSteps caps the number of node executions in one run.
func (g *Graph[S, U]) WithMaxSteps(n int) *Graph[S, U] {
	if n > 0 {
		g.maxSteps = n
	}
	return g
}

// WithObserver sets a step observer.
func (g *Graph[S, U]) WithObserver(o StepObserver) *Graph[S, U] {
	g.observer = o
	return g
}

// Run 从入口节点开始步进，直到某个节点跳转到 End。
// 节点错误与合并错误都会终止运行，错误链保留原始错误。
func (g *Graph[S, U]) Run(ctx context.Context, state S) error {
	current := g.entry
	for step := 0; ; step++ {
		if current == End {
			return nil
		}
		if step >= g.maxSteps {
			return types.NewError(types.ErrInvalidState,
				fmt.Sprintf("graph %s exceeded %d steps", g.name, g.maxSteps))
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("graph %s cancelled before %s: %w", g.name, current, err)
		}

		fn, ok := g.nodes[current]
		if !ok {
			return types.NewError(types.ErrInvalidState,
				fmt.Sprintf("graph %s has no node %q", g.name, current))
		}

		start := time.Now()
		tr, err := fn(ctx, state)
		if err == nil {
			if applyErr := state.Apply(tr.Update); applyErr != nil {
				err = fmt.Errorf("apply update from %s: %w", current, applyErr)
			}
		}
		if g.observer != nil {
			g.observer(current, time.Since(start), err)
		}
		if err != nil {
			g.logger.Debug("node failed", zap.String("node", current), zap.Error(err))
			return err
		}

		g.logger.Debug("node completed",
			zap.String("node", current),
			zap.String("next", tr.Next),
			zap.Duration("duration", time.Since(start)))
		current = tr.Next
	}
}
