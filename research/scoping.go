package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/llm/structured"
	"github.com/BaSui01/deepresearch/types"
	"github.com/BaSui01/deepresearch/workflow"
	"go.uber.org/zap"
)

const minBriefLength = 10

// ClarificationDecision 是澄清判断的结构化输出。
type ClarificationDecision struct {
	NeedClarification bool   `json:"need_clarification"`
	Question          string `json:"question"`
	Verification      string `json:"verification"`
}

// Validate 要求所选分支对应的文本非空。
func (d ClarificationDecision) Validate() error {
	var errs structured.ValidationErrors
	if d.NeedClarification && strings.TrimSpace(d.Question) == "" {
		errs.Add("question", "required when need_clarification is true")
	}
	if !d.NeedClarification && strings.TrimSpace(d.Verification) == "" {
		errs.Add("verification", "required when need_clarification is false")
	}
	return errs.Err()
}

var clarificationSpec = structured.Spec{
	Name: "user_clarification",
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"need_clarification": {"type": "boolean", "description": "Whether the user needs to be asked a clarifying question."},
			"question": {"type": "string", "description": "A question to ask the user to clarify the report scope."},
			"verification": {"type": "string", "description": "Verify message that we will start research after the user has provided the necessary information."}
		},
		"required": ["need_clarification", "question", "verification"],
		"additionalProperties": false
	}`),
}

// ResearchQuestion 是研究简报的结构化输出。
type ResearchQuestion struct {
	ResearchBrief string `json:"research_brief"`
}

func (q ResearchQuestion) Validate() error {
	var errs structured.ValidationErrors
	if n := utf8.RuneCountInString(strings.TrimSpace(q.ResearchBrief)); n < minBriefLength {
		errs.Add("research_brief", "must be at least %d characters, got %d", minBriefLength, n)
	}
	return errs.Err()
}

func researchQuestionSpec(maxLen int) structured.Spec {
	return structured.Spec{
		Name: "research_question",
		Schema: json.RawMessage(fmt.Sprintf(`{
			"type": "object",
			"properties": {
				"research_brief": {"type": "string", "description": "A research question that will be used to guide the research, between %d and %d characters."}
			},
			"required": ["research_brief"],
			"additionalProperties": false
		}`, minBriefLength, maxLen)),
	}
}

// Scoper 负责澄清判断与研究简报生成。
type Scoper struct {
	provider llm.Provider
	cfg      Config
	logger   *zap.Logger
}

// NewScoper creates the scoping stage.
func NewScoper(provider llm.Provider, cfg Config, logger *zap.Logger) *Scoper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scoper{provider: provider, cfg: cfg, logger: logger.With(zap.String("component", "scoper"))}
}

// Clarify 判断是否需要向用户追问。
func (s *Scoper) Clarify(ctx context.Context, conversation []types.Message) (ClarificationDecision, error) {
	decision, err := structured.Generate[ClarificationDecision](ctx, s.provider, &llm.ChatRequest{
		Model:    s.cfg.Models.Scoping,
		Messages: []llm.Message{types.NewUserMessage(clarifyWithUserPrompt(conversation, s.cfg.today()))},
	}, clarificationSpec)
	if err != nil {
		return ClarificationDecision{}, err
	}
	s.logger.Info("clarification decided", zap.Bool("need_clarification", decision.NeedClarification))
	return decision, nil
}

// WriteBrief 把对话转换为研究简报。
func (s *Scoper) WriteBrief(ctx context.Context, conversation []types.Message) (string, error) {
	maxLen := s.cfg.MaxBriefLength
	q, err := structured.Generate[ResearchQuestion](ctx, s.provider, &llm.ChatRequest{
		Model:    s.cfg.Models.Scoping,
		Messages: []llm.Message{types.NewUserMessage(transformMessagesIntoTopicPrompt(conversation, s.cfg.today()))},
	}, researchQuestionSpec(maxLen))
	if err != nil {
		return "", err
	}
	brief := strings.TrimSpace(q.ResearchBrief)
	if n := utf8.RuneCountInString(brief); n > maxLen {
		return "", types.NewError(types.ErrStructuredOutput,
			fmt.Sprintf("research brief has %d characters, limit is %d", n, maxLen))
	}
	s.logger.Info("research brief written", zap.Int("length", utf8.RuneCountInString(brief)))
	return brief, nil
}

// clarifyStep 是 scoping 节点：需要澄清时以追问结束流程，
// 否则追加确认消息并进入简报阶段。
func (s *Scoper) clarifyStep(ctx context.Context, st *RunState) (workflow.Transition[RunUpdate], error) {
	decision, err := s.Clarify(ctx, st.Conversation())
	if err != nil {
		return workflow.Transition[RunUpdate]{}, err
	}
	if decision.NeedClarification {
		return workflow.Goto(workflow.End, RunUpdate{
			Conversation: []types.Message{types.NewAssistantMessage(decision.Question)},
		}), nil
	}
	return workflow.Goto(string(StageBrief), RunUpdate{
		Conversation: []types.Message{types.NewAssistantMessage(decision.Verification)},
	}), nil
}

// briefStep 是 brief 节点：写入研究简报并进入 supervisor 阶段。
func (s *Scoper) briefStep(ctx context.Context, st *RunState) (workflow.Transition[RunUpdate], error) {
	brief, err := s.WriteBrief(ctx, st.Conversation())
	if err != nil {
		return workflow.Transition[RunUpdate]{}, err
	}
	return workflow.Goto(string(StageSupervisor), RunUpdate{
		ResearchBrief: brief,
		Conversation:  []types.Message{briefMessage(brief)},
	}), nil
}

// briefMessage 是简报生成后追加到对话的确认消息。
func briefMessage(brief string) types.Message {
	return types.NewAssistantMessage("Research brief:\n" + brief)
}
