package research

import (
	"fmt"

	"github.com/BaSui01/deepresearch/types"
	"github.com/BaSui01/deepresearch/workflow"
)

// stager collects channel commits so an update is either applied in full or not at all.
type stager []func()

func stage[T any](s *stager, ch *workflow.Channel[T], update T) error {
	next, err := ch.Reduce(update)
	if err != nil {
		return err
	}
	*s = append(*s, func() { ch.Store(next) })
	return nil
}

func (s stager) commit() {
	for _, fn := range s {
		fn()
	}
}

// ====== Run State ======

// RunState 是整个研究流程共享的状态。
type RunState struct {
	conversation  *workflow.Channel[[]types.Message]
	researchBrief *workflow.Channel[string]
	notes         *workflow.Channel[[]string]
	rawNotes      *workflow.Channel[[]string]
	finalReport   *workflow.Channel[string]
}

// RunUpdate 是阶段返回的部分更新，零值字段表示不修改。
type RunUpdate struct {
	Conversation  []types.Message
	ResearchBrief string
	Notes         []string
	RawNotes      []string
	FinalReport   string
}

// NewRunState 创建空的运行状态。
func NewRunState() *RunState {
	return &RunState{
		conversation:  workflow.NewChannel("conversation", []types.Message(nil), workflow.WithReducer(workflow.AppendReducer[types.Message]())),
		researchBrief: workflow.NewChannel("research_brief", "", workflow.WithReducer(workflow.SetOnceReducer[string]())),
		notes:         workflow.NewChannel("notes", []string(nil), workflow.WithReducer(workflow.AppendReducer[string]())),
		rawNotes:      workflow.NewChannel("raw_notes", []string(nil), workflow.WithReducer(workflow.AppendReducer[string]())),
		finalReport:   workflow.NewChannel("final_report", "", workflow.WithReducer(workflow.SetOnceReducer[string]())),
	}
}

// Apply merges u field by field. A rejected field leaves the whole state untouched.
func (s *RunState) Apply(u RunUpdate) error {
	var st stager
	if len(u.Conversation) > 0 {
		if err := stage(&st, s.conversation, types.CloneMessages(u.Conversation)); err != nil {
			return err
		}
	}
	if u.ResearchBrief != "" {
		if err := stage(&st, s.researchBrief, u.ResearchBrief); err != nil {
			return err
		}
	}
	if len(u.Notes) > 0 {
		if err := stage(&st, s.notes, u.Notes); err != nil {
			return err
		}
	}
	if len(u.RawNotes) > 0 {
		if err := stage(&st, s.rawNotes, u.RawNotes); err != nil {
			return err
		}
	}
	if u.FinalReport != "" {
		if err := stage(&st, s.finalReport, u.FinalReport); err != nil {
			return err
		}
	}
	st.commit()
	return nil
}

func (s *RunState) Conversation() []types.Message { return types.CloneMessages(s.conversation.Get()) }
func (s *RunState) ResearchBrief() string         { return s.researchBrief.Get() }
func (s *RunState) Notes() []string               { return cloneStrings(s.notes.Get()) }
func (s *RunState) RawNotes() []string            { return cloneStrings(s.rawNotes.Get()) }
func (s *RunState) FinalReport() string           { return s.finalReport.Get() }

// LastMessage returns the most recent conversation turn.
func (s *RunState) LastMessage() (types.Message, bool) {
	return last(s.conversation.Get())
}

// Snapshot 返回可序列化的状态副本。
func (s *RunState) Snapshot() RunSnapshot {
	return RunSnapshot{
		Conversation:  s.Conversation(),
		ResearchBrief: s.ResearchBrief(),
		Notes:         s.Notes(),
		RawNotes:      s.RawNotes(),
		FinalReport:   s.FinalReport(),
	}
}

// RunSnapshot is a point-in-time copy of RunState.
type RunSnapshot struct {
	Conversation  []types.Message `json:"conversation"`
	ResearchBrief string          `json:"research_brief,omitempty"`
	Notes         []string        `json:"notes,omitempty"`
	RawNotes      []string        `json:"raw_notes,omitempty"`
	FinalReport   string          `json:"final_report,omitempty"`
}

// ====== Supervisor State ======

// SupervisorState 是研究阶段 supervisor 的私有状态。
type SupervisorState struct {
	maxIterations int
	messages      *workflow.Channel[[]types.Message]
	iterations    *workflow.Channel[int]
	rawNotes      *workflow.Channel[[]string]
}

// SupervisorUpdate 中 ResearchIterations 为 nil 表示不修改计数器。
type SupervisorUpdate struct {
	Messages           []types.Message
	ResearchIterations *int
	RawNotes           []string
}

// NewSupervisorState creates a state bounded by maxIterations.
func NewSupervisorState(maxIterations int) *SupervisorState {
	return &SupervisorState{
		maxIterations: maxIterations,
		messages:      workflow.NewChannel("supervisor_messages", []types.Message(nil), workflow.WithReducer(workflow.AppendReducer[types.Message]())),
		iterations:    workflow.NewChannel("research_iterations", 0),
		rawNotes:      workflow.NewChannel("raw_notes", []string(nil), workflow.WithReducer(workflow.AppendReducer[string]())),
	}
}

func (s *SupervisorState) Apply(u SupervisorUpdate) error {
	var st stager
	if len(u.Messages) > 0 {
		if err := stage(&st, s.messages, types.CloneMessages(u.Messages)); err != nil {
			return err
		}
	}
	if u.ResearchIterations != nil {
		n := *u.ResearchIterations
		if n < 0 || n > s.maxIterations {
			return types.NewError(types.ErrInvalidState,
				fmt.Sprintf("research_iterations %d outside [0, %d]", n, s.maxIterations))
		}
		if err := stage(&st, s.iterations, n); err != nil {
			return err
		}
	}
	if len(u.RawNotes) > 0 {
		if err := stage(&st, s.rawNotes, u.RawNotes); err != nil {
			return err
		}
	}
	st.commit()
	return nil
}

func (s *SupervisorState) Messages() []types.Message { return types.CloneMessages(s.messages.Get()) }
func (s *SupervisorState) ResearchIterations() int   { return s.iterations.Get() }
func (s *SupervisorState) RawNotes() []string        { return cloneStrings(s.rawNotes.Get()) }
func (s *SupervisorState) MaxIterations() int        { return s.maxIterations }

// LastMessage returns the most recent supervisor turn.
func (s *SupervisorState) LastMessage() (types.Message, bool) {
	return last(s.messages.Get())
}

// ToolOutputs 按追加顺序返回全部工具结果内容。
func (s *SupervisorState) ToolOutputs() []string {
	var out []string
	for _, m := range s.messages.Get() {
		if m.IsToolResult() {
			out = append(out, m.Content)
		}
	}
	return out
}

// ====== Worker State ======

// WorkerState 由单个研究员独占。
type WorkerState struct {
	topic              string
	messages           *workflow.Channel[[]types.Message]
	compressedResearch *workflow.Channel[string]
	rawNotes           *workflow.Channel[string]
}

type WorkerUpdate struct {
	Messages           []types.Message
	CompressedResearch string
	RawNotes           string
}

// NewWorkerState creates the private state of one delegated topic.
func NewWorkerState(topic string) *WorkerState {
	return &WorkerState{
		topic:              topic,
		messages:           workflow.NewChannel("researcher_messages", []types.Message(nil), workflow.WithReducer(workflow.AppendReducer[types.Message]())),
		compressedResearch: workflow.NewChannel("compressed_research", "", workflow.WithReducer(workflow.SetOnceReducer[string]())),
		rawNotes:           workflow.NewChannel("raw_notes", "", workflow.WithReducer(workflow.SetOnceReducer[string]())),
	}
}

func (s *WorkerState) Apply(u WorkerUpdate) error {
	var st stager
	if len(u.Messages) > 0 {
		if err := stage(&st, s.messages, types.CloneMessages(u.Messages)); err != nil {
			return err
		}
	}
	if u.CompressedResearch != "" {
		if err := stage(&st, s.compressedResearch, u.CompressedResearch); err != nil {
			return err
		}
	}
	if u.RawNotes != "" {
		if err := stage(&st, s.rawNotes, u.RawNotes); err != nil {
			return err
		}
	}
	st.commit()
	return nil
}

func (s *WorkerState) Topic() string               { return s.topic }
func (s *WorkerState) Messages() []types.Message   { return types.CloneMessages(s.messages.Get()) }
func (s *WorkerState) CompressedResearch() string  { return s.compressedResearch.Get() }
func (s *WorkerState) RawNotes() string            { return s.rawNotes.Get() }

// LastMessage returns the most recent transcript turn.
func (s *WorkerState) LastMessage() (types.Message, bool) {
	return last(s.messages.Get())
}

func last(msgs []types.Message) (types.Message, bool) {
	if len(msgs) == 0 {
		return types.Message{}, false
	}
	return types.CloneMessage(msgs[len(msgs)-1]), true
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
