package research

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/deepresearch/internal/ctxkeys"
	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/llm/tools"
	"github.com/BaSui01/deepresearch/types"
	"github.com/BaSui01/deepresearch/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/BaSui01/deepresearch/research")

// Outcome 是一次运行的终止方式。
type Outcome string

const (
	OutcomeClarification Outcome = "clarification"
	OutcomeReport        Outcome = "report"
	OutcomeFailed        Outcome = "failed"
)

// Result 是 Orchestrator.Run 的返回值。Text 为最终报告或澄清问题。
type Result struct {
	RunID        string      `json:"run_id"`
	Outcome      Outcome     `json:"outcome"`
	Text         string      `json:"text"`
	State        RunSnapshot `json:"state"`
	Iterations   int         `json:"iterations"`
	ReportTokens int         `json:"report_tokens,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

// RunRecorder 持久化结束的运行，仅用于审计。runErr 非空时 res.Outcome 为 failed。
type RunRecorder interface {
	RecordRun(ctx context.Context, res *Result, runErr error) error
}

// TokenCounter 统计文本的 token 数。
type TokenCounter interface {
	Count(text string) int
}

// Deps 是 Orchestrator 的外部协作者。
type Deps struct {
	Provider        llm.Provider
	WorkerTools     tools.Registry
	SupervisorTools tools.Registry // nil 时注册 think 与 research_complete
	ToolObserver    tools.Observer
	Observer        Observer
	Recorder        RunRecorder
	TokenCounter    TokenCounter
}

// Orchestrator 串联 Scoping → Supervisor → Report。
type Orchestrator struct {
	cfg        Config
	scoper     *Scoper
	supervisor *Supervisor
	writer     *ReportWriter
	observer   Observer
	recorder   RunRecorder
	counter    TokenCounter
	logger     *zap.Logger
}

// NewOrchestrator 校验配置并装配各阶段。
func NewOrchestrator(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid research config: %w", err)
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if deps.WorkerTools == nil {
		return nil, fmt.Errorf("worker tool registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.SupervisorTools == nil {
		reg := tools.NewDefaultRegistry(logger)
		if err := tools.RegisterSupervisorTools(reg); err != nil {
			return nil, err
		}
		deps.SupervisorTools = reg
	}

	var execOpts []tools.ExecutorOption
	if deps.ToolObserver != nil {
		execOpts = append(execOpts, tools.WithObserver(deps.ToolObserver))
	}
	worker := NewWorker(deps.Provider, deps.WorkerTools,
		tools.NewDefaultExecutor(deps.WorkerTools, logger, execOpts...), cfg, logger)
	supervisor := NewSupervisor(deps.Provider, worker, deps.SupervisorTools,
		tools.NewDefaultExecutor(deps.SupervisorTools, logger, execOpts...), cfg, deps.Observer, logger)

	return &Orchestrator{
		cfg:        cfg,
		scoper:     NewScoper(deps.Provider, cfg, logger),
		supervisor: supervisor,
		writer:     NewReportWriter(deps.Provider, cfg, logger),
		observer:   deps.Observer,
		recorder:   deps.Recorder,
		counter:    deps.TokenCounter,
		logger:     logger.With(zap.String("component", "orchestrator")),
	}, nil
}

// Run 执行一次完整的研究流程。需要澄清时提前结束，返回澄清问题；
// 任一阶段的后端失败都会中止流程并返回 *StageError。
func (o *Orchestrator) Run(ctx context.Context, conversation []types.Message) (*Result, error) {
	if len(conversation) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "conversation is empty")
	}

	runID := uuid.NewString()
	started := time.Now()
	logger := o.logger.With(zap.String("run_id", runID))
	ctx = ctxkeys.WithRunID(ctx, runID)
	ctx, span := tracer.Start(ctx, "research.run")
	defer span.End()
	span.SetAttributes(attribute.String("research.run_id", runID))

	state := NewRunState()
	if err := state.Apply(RunUpdate{Conversation: conversation}); err != nil {
		return nil, err
	}

	var iterations int
	graph := workflow.NewGraph[*RunState, RunUpdate]("research", logger).
		AddNode(string(StageScoping), o.stage(StageScoping, o.scoper.clarifyStep)).
		AddNode(string(StageBrief), o.stage(StageBrief, o.scoper.briefStep)).
		AddNode(string(StageSupervisor), o.stage(StageSupervisor, func(ctx context.Context, s *RunState) (workflow.Transition[RunUpdate], error) {
			res, err := o.supervisor.Run(ctx, s.ResearchBrief())
			if err != nil {
				return workflow.Transition[RunUpdate]{}, err
			}
			iterations = res.Iterations
			return workflow.Goto(string(StageReport), RunUpdate{Notes: res.Notes, RawNotes: res.RawNotes}), nil
		})).
		AddNode(string(StageReport), o.stage(StageReport, o.report)).
		WithObserver(func(node string, d time.Duration, err error) {
			o.observer.ObserveStage(node, d, err)
		})

	logger.Info("research run started", zap.Int("conversation", len(conversation)))
	runErr := graph.Run(ctx, state)

	res := &Result{
		RunID:      runID,
		State:      state.Snapshot(),
		Iterations: iterations,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	switch {
	case runErr != nil:
		res.Outcome = OutcomeFailed
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Error("research run failed", zap.Error(runErr))
	case state.FinalReport() != "":
		res.Outcome = OutcomeReport
		res.Text = state.FinalReport()
		if o.counter != nil {
			res.ReportTokens = o.counter.Count(res.Text)
		}
	default:
		res.Outcome = OutcomeClarification
		if last, ok := state.LastMessage(); ok {
			res.Text = last.Content
		}
	}

	duration := res.FinishedAt.Sub(started)
	o.observer.ObserveRun(string(res.Outcome), duration)
	span.SetAttributes(attribute.String("research.outcome", string(res.Outcome)))
	o.record(ctx, res, runErr, logger)

	if runErr != nil {
		return nil, runErr
	}
	logger.Info("research run finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("iterations", iterations),
		zap.Int("notes", len(res.State.Notes)),
		zap.Int("report_tokens", res.ReportTokens),
		zap.Duration("duration", duration))
	return res, nil
}

// stage 为节点加上 span、阶段 context 与 StageError 包装。
func (o *Orchestrator) stage(stage Stage, fn workflow.NodeFunc[*RunState, RunUpdate]) workflow.NodeFunc[*RunState, RunUpdate] {
	return func(ctx context.Context, s *RunState) (workflow.Transition[RunUpdate], error) {
		ctx, span := tracer.Start(ctx, "research.stage."+string(stage))
		defer span.End()
		ctx = ctxkeys.WithStage(ctx, string(stage))

		tr, err := fn(ctx, s)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return tr, stageError(stage, err)
		}
		return tr, nil
	}
}

func (o *Orchestrator) report(ctx context.Context, s *RunState) (workflow.Transition[RunUpdate], error) {
	report, err := o.writer.Run(ctx, s.ResearchBrief(), s.Notes())
	if err != nil {
		return workflow.Transition[RunUpdate]{}, err
	}
	return workflow.Goto(workflow.End, RunUpdate{
		FinalReport:  report,
		Conversation: []types.Message{reportMessage(report)},
	}), nil
}

func (o *Orchestrator) record(ctx context.Context, res *Result, runErr error, logger *zap.Logger) {
	if o.recorder == nil {
		return
	}
	// 调用方取消时仍然记录失败的运行
	if err := o.recorder.RecordRun(context.WithoutCancel(ctx), res, runErr); err != nil {
		logger.Warn("failed to archive run", zap.Error(err))
	}
}
