package research

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/llm/tools"
	"github.com/BaSui01/deepresearch/types"
	"github.com/BaSui01/deepresearch/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	nodeDecide   = "decide"
	nodeExecute  = "execute"
	nodeCompress = "compress"
)

// WorkerResult 是一次委派研究的产出。
type WorkerResult struct {
	Topic              string
	CompressedResearch string
	RawNotes           string
	Messages           []types.Message
	ToolRounds         int
}

// WorkerRunner is what the supervisor delegates to; *Worker implements it.
type WorkerRunner interface {
	Run(ctx context.Context, topic, brief string) (*WorkerResult, error)
}

// Worker 是单个研究员的工具调用循环。
type Worker struct {
	provider llm.Provider
	executor tools.Executor
	schemas  []types.ToolSchema
	extra    []types.ToolSchema
	cfg      Config
	logger   *zap.Logger
}

// NewWorker 创建研究员。registry 决定暴露给模型的工具，executor 负责执行。
func NewWorker(provider llm.Provider, registry tools.Registry, executor tools.Executor, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		provider: provider,
		executor: executor,
		schemas:  registry.List(),
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "worker")),
	}
	for _, s := range w.schemas {
		if s.Name != tools.SearchToolName && s.Name != tools.ThinkToolName {
			w.extra = append(w.extra, s)
		}
	}
	return w
}

// Run 以 brief 作为唯一的用户消息启动循环：决策 → 执行工具 → 决策 …，
// 直到模型不再请求工具，然后压缩研究记录。
func (w *Worker) Run(ctx context.Context, topic, brief string) (*WorkerResult, error) {
	ctx, span := tracer.Start(ctx, "research.worker")
	defer span.End()
	span.SetAttributes(attribute.String("research.topic", truncate(topic, 200)))

	if strings.TrimSpace(brief) == "" {
		brief = topic
	}
	state := NewWorkerState(topic)
	if err := state.Apply(WorkerUpdate{Messages: []types.Message{types.NewUserMessage(brief)}}); err != nil {
		return nil, err
	}

	logger := w.logger.With(zap.String("topic", truncate(topic, 80)))
	rounds := 0
	graph := workflow.NewGraph[*WorkerState, WorkerUpdate]("worker", logger).
		AddNode(nodeDecide, w.decide).
		AddNode(nodeExecute, func(ctx context.Context, s *WorkerState) (workflow.Transition[WorkerUpdate], error) {
			rounds++
			return w.execute(ctx, s)
		}).
		AddNode(nodeCompress, w.compress)

	start := time.Now()
	if err := graph.Run(ctx, state); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info("worker finished",
		zap.Int("tool_rounds", rounds),
		zap.Int("compressed_length", len(state.CompressedResearch())),
		zap.Duration("duration", time.Since(start)))

	return &WorkerResult{
		Topic:              topic,
		CompressedResearch: state.CompressedResearch(),
		RawNotes:           state.RawNotes(),
		Messages:           state.Messages(),
		ToolRounds:         rounds,
	}, nil
}

func (w *Worker) decide(ctx context.Context, s *WorkerState) (workflow.Transition[WorkerUpdate], error) {
	messages := append([]types.Message{types.NewSystemMessage(researchAgentPrompt(w.cfg.today(), w.extra))}, s.Messages()...)
	reply, err := llm.Invoke(ctx, w.provider, &llm.ChatRequest{
		Model:    w.cfg.Models.Research,
		Messages: messages,
		Tools:    w.schemas,
	})
	if err != nil {
		return workflow.Transition[WorkerUpdate]{}, err
	}

	next := nodeCompress
	if reply.HasToolCalls() {
		next = nodeExecute
	}
	return workflow.Goto(next, WorkerUpdate{Messages: []types.Message{reply}}), nil
}

// execute 并发执行上一条回复中的全部工具调用，结果按调用顺序追加。
func (w *Worker) execute(ctx context.Context, s *WorkerState) (workflow.Transition[WorkerUpdate], error) {
	last, _ := s.LastMessage()
	results := w.executor.Execute(ctx, last.ToolCalls)

	msgs := make([]types.Message, len(results))
	for i, r := range results {
		msgs[i] = r.ToMessage()
	}
	return workflow.Goto(nodeDecide, WorkerUpdate{Messages: msgs}), nil
}

func (w *Worker) compress(ctx context.Context, s *WorkerState) (workflow.Transition[WorkerUpdate], error) {
	transcript := s.Messages()

	messages := make([]types.Message, 0, len(transcript)+2)
	messages = append(messages, types.NewSystemMessage(compressResearchPrompt(w.cfg.today())))
	messages = append(messages, transcript...)
	messages = append(messages, types.NewUserMessage(compressResearchHumanPrompt(s.Topic())))

	reply, err := llm.Invoke(ctx, w.provider, &llm.ChatRequest{
		Model:    w.cfg.Models.Compression,
		Messages: messages,
	})
	if err != nil {
		return workflow.Transition[WorkerUpdate]{}, err
	}

	return workflow.Goto(workflow.End, WorkerUpdate{
		CompressedResearch: reply.Content,
		RawNotes:           rawNotes(transcript),
	}), nil
}

// rawNotes 拼接助手与工具消息的文本内容。
func rawNotes(transcript []types.Message) string {
	var kept []types.Message
	for _, m := range transcript {
		if m.Role == types.RoleAssistant || m.Role == types.RoleTool {
			kept = append(kept, m)
		}
	}
	return types.JoinContent(kept)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
