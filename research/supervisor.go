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
	"golang.org/x/sync/errgroup"
)

const (
	nodeDeliberate = "deliberate"
	nodeDispatch   = "dispatch"
)

// FallbackResearch 是委派没有产出可用结果时的工具结果文本。
const FallbackResearch = "Error synthesizing research."

// SupervisorResult 是研究阶段的产出。
type SupervisorResult struct {
	ResearchBrief string
	Notes         []string
	RawNotes      []string
	Messages      []types.Message
	Iterations    int
}

// Supervisor 把研究主题委派给研究员，并决定何时结束研究。
type Supervisor struct {
	provider llm.Provider
	worker   WorkerRunner
	executor tools.Executor
	schemas  []types.ToolSchema
	cfg      Config
	observer Observer
	logger   *zap.Logger
}

// NewSupervisor 创建 supervisor。registry 中的工具（think、research_complete）同步执行；
// conduct_research 由 supervisor 自己调度。
func NewSupervisor(provider llm.Provider, worker WorkerRunner, registry tools.Registry, executor tools.Executor,
	cfg Config, observer Observer, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Supervisor{
		provider: provider,
		worker:   worker,
		executor: executor,
		schemas:  append([]types.ToolSchema{tools.ConductResearchSchema()}, registry.List()...),
		cfg:      cfg,
		observer: observer,
		logger:   logger.With(zap.String("component", "supervisor")),
	}
}

// Run 以研究简报作为第一条用户消息，在 deliberate 与 dispatch 之间循环，
// 直到模型停止请求工具、发出完成信号或达到迭代上限。
func (s *Supervisor) Run(ctx context.Context, brief string) (*SupervisorResult, error) {
	ctx, span := tracer.Start(ctx, "research.supervisor")
	defer span.End()

	state := NewSupervisorState(s.cfg.MaxResearchIterations)
	if err := state.Apply(SupervisorUpdate{Messages: []types.Message{types.NewUserMessage(brief)}}); err != nil {
		return nil, err
	}

	// 每轮最多两个节点，额外留一步给最终的 dispatch
	graph := workflow.NewGraph[*SupervisorState, SupervisorUpdate]("supervisor", s.logger).
		AddNode(nodeDeliberate, s.deliberate).
		AddNode(nodeDispatch, s.dispatch).
		WithMaxSteps(2*s.cfg.MaxResearchIterations + 1)

	if err := graph.Run(ctx, state); err != nil {
		span.RecordError(err)
		return nil, err
	}

	iterations := state.ResearchIterations()
	s.observer.ObserveSupervisorIterations(iterations)
	span.SetAttributes(attribute.Int("research.iterations", iterations))

	notes := state.ToolOutputs()
	s.logger.Info("research finished",
		zap.Int("iterations", iterations),
		zap.Int("notes", len(notes)))

	return &SupervisorResult{
		ResearchBrief: brief,
		Notes:         notes,
		RawNotes:      state.RawNotes(),
		Messages:      state.Messages(),
		Iterations:    iterations,
	}, nil
}

func (s *Supervisor) deliberate(ctx context.Context, st *SupervisorState) (workflow.Transition[SupervisorUpdate], error) {
	system := types.NewSystemMessage(leadResearcherPrompt(s.cfg.today(), s.cfg.MaxConcurrentResearchUnits, s.cfg.MaxResearchIterations))
	reply, err := llm.Invoke(ctx, s.provider, &llm.ChatRequest{
		Model:    s.cfg.Models.Supervisor,
		Messages: append([]types.Message{system}, st.Messages()...),
		Tools:    s.schemas,
	})
	if err != nil {
		return workflow.Transition[SupervisorUpdate]{}, err
	}

	iterations := st.ResearchIterations() + 1
	s.logger.Debug("supervisor replied",
		zap.Int("iteration", iterations),
		zap.Int("tool_calls", len(reply.ToolCalls)))
	return workflow.Goto(nodeDispatch, SupervisorUpdate{
		Messages:           []types.Message{reply},
		ResearchIterations: &iterations,
	}), nil
}

func (s *Supervisor) dispatch(ctx context.Context, st *SupervisorState) (workflow.Transition[SupervisorUpdate], error) {
	last, _ := st.LastMessage()
	if reason, done := s.shouldStop(last, st.ResearchIterations()); done {
		s.logger.Info("supervisor terminating", zap.String("reason", reason))
		return workflow.Goto(workflow.End, SupervisorUpdate{}), nil
	}

	var reflections, delegations, unknown []types.ToolCall
	for _, call := range last.ToolCalls {
		switch call.Name {
		case tools.ThinkToolName:
			reflections = append(reflections, call)
		case tools.ConductResearchToolName:
			delegations = append(delegations, call)
		default:
			unknown = append(unknown, call)
		}
	}

	msgs := make([]types.Message, 0, len(last.ToolCalls))
	for _, call := range reflections {
		msgs = append(msgs, s.executor.ExecuteOne(ctx, call).ToMessage())
	}

	delegated, roundNotes := s.delegate(ctx, delegations)
	msgs = append(msgs, delegated...)

	for _, call := range unknown {
		msgs = append(msgs, types.NewToolMessage(call.ID, call.Name, tools.NotFoundNotice(call.Name)))
	}

	update := SupervisorUpdate{Messages: msgs}
	if len(delegations) > 0 {
		update.RawNotes = []string{roundNotes}
	}
	return workflow.Goto(nodeDeliberate, update), nil
}

func (s *Supervisor) shouldStop(last types.Message, iterations int) (string, bool) {
	switch {
	case !last.HasToolCalls():
		return "no_tool_calls", true
	case hasToolCall(last.ToolCalls, tools.ResearchCompleteToolName):
		return "research_complete", true
	case iterations >= s.cfg.MaxResearchIterations:
		return "max_iterations", true
	}
	return "", false
}

// delegate 并发运行全部委派，结果按调用顺序返回；单个研究员失败只影响它自己的结果。
func (s *Supervisor) delegate(ctx context.Context, calls []types.ToolCall) ([]types.Message, string) {
	if len(calls) == 0 {
		return nil, ""
	}

	contents := make([]string, len(calls))
	notes := make([]string, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			contents[i], notes[i] = s.runDelegation(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	msgs := make([]types.Message, len(calls))
	for i, call := range calls {
		msgs[i] = types.NewToolMessage(call.ID, call.Name, contents[i])
	}
	return msgs, strings.Join(notes, "\n")
}

func (s *Supervisor) runDelegation(ctx context.Context, call types.ToolCall) (string, string) {
	d, err := tools.ParseDelegation(call.Arguments)
	if err != nil {
		s.observer.ObserveDelegation(DelegationInvalid)
		s.logger.Warn("invalid delegation arguments", zap.String("call_id", call.ID), zap.Error(err))
		return tools.ErrorNotice(call.Name, err), ""
	}

	start := time.Now()
	res, err := s.worker.Run(ctx, d.ResearchTopic, d.ResearchBrief)
	if err != nil || res == nil || strings.TrimSpace(res.CompressedResearch) == "" {
		s.observer.ObserveDelegation(DelegationFallback)
		s.logger.Warn("delegation produced no research",
			zap.String("call_id", call.ID),
			zap.String("topic", truncate(d.ResearchTopic, 80)),
			zap.Error(err))
		if res != nil {
			return FallbackResearch, res.RawNotes
		}
		return FallbackResearch, ""
	}

	s.observer.ObserveDelegation(DelegationSuccess)
	s.logger.Debug("delegation completed",
		zap.String("call_id", call.ID),
		zap.Duration("duration", time.Since(start)))
	return res.CompressedResearch, res.RawNotes
}

func hasToolCall(calls []types.ToolCall, name string) bool {
	for _, c := range calls {
		if c.Name == name {
			return true
		}
	}
	return false
}
