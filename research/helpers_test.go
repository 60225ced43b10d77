package research

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/testutil/fixtures"
	"github.com/BaSui01/deepresearch/testutil/mocks"
	"github.com/BaSui01/deepresearch/types"
)

const (
	scopingModel     = "test/scoping"
	researchModel    = "test/research"
	compressionModel = "test/compression"
	supervisorModel  = "test/supervisor"
	writerModel      = "test/writer"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Models = Models{
		Scoping:         scopingModel,
		Research:        researchModel,
		Compression:     compressionModel,
		Supervisor:      supervisorModel,
		Writer:          writerModel,
		WriterMaxTokens: 32000,
	}
	cfg.Clock = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return cfg
}

// reply returns a fixed assistant message.
func reply(msg types.Message) mocks.Responder {
	return func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return mocks.Respond(msg)
	}
}

// sequence answers the n-th call with replies[n], repeating the last one afterwards.
func sequence(replies ...types.Message) mocks.Responder {
	var mu sync.Mutex
	n := 0
	return func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		i := n
		if i >= len(replies) {
			i = len(replies) - 1
		}
		n++
		return mocks.Respond(replies[i])
	}
}

// untilToolResult asks for calls until the transcript ends with a tool result, then answers with final.
func untilToolResult(calls []types.ToolCall, final string) mocks.Responder {
	return func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.IsToolResult() {
			return mocks.Respond(fixtures.Reply(final))
		}
		return mocks.Respond(fixtures.Reply("", calls...))
	}
}

// compressByTopic echoes the topic named in the closing prompt.
func compressByTopic() mocks.Responder {
	return func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		_, topic, _ := strings.Cut(last, "RESEARCH TOPIC: ")
		topic, _, _ = strings.Cut(topic, "\n")
		return mocks.Respond(fixtures.Reply("compressed: " + topic))
	}
}

type fakeWorker struct {
	mu     sync.Mutex
	topics []string
	run    func(ctx context.Context, topic, brief string) (*WorkerResult, error)
}

func (f *fakeWorker) Run(ctx context.Context, topic, brief string) (*WorkerResult, error) {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, topic, brief)
	}
	return &WorkerResult{Topic: topic, CompressedResearch: "findings on " + topic, RawNotes: "raw " + topic}, nil
}

func (f *fakeWorker) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

type recordingObserver struct {
	mu          sync.Mutex
	stages      []string
	delegations map[string]int
	iterations  []int
	outcomes    []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{delegations: make(map[string]int)}
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) ObserveDelegation(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delegations[status]++
}

func (o *recordingObserver) ObserveSupervisorIterations(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.iterations = append(o.iterations, n)
}

func (o *recordingObserver) ObserveRun(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}
