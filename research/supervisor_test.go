package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/llm/tools"
	"github.com/BaSui01/deepresearch/testutil"
	"github.com/BaSui01/deepresearch/testutil/fixtures"
	"github.com/BaSui01/deepresearch/testutil/mocks"
	"github.com/BaSui01/deepresearch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestSupervisor(t interface{ Fatalf(string, ...any) }, provider *mocks.MockProvider, worker WorkerRunner, cfg Config, observer Observer) *Supervisor {
	reg := tools.NewDefaultRegistry(nil)
	if err := tools.RegisterSupervisorTools(reg); err != nil {
		t.Fatalf("register supervisor tools: %v", err)
	}
	return NewSupervisor(provider, worker, reg, tools.NewDefaultExecutor(reg, nil), cfg, observer, nil)
}

func TestSupervisor_StopsWithoutToolCalls(t *testing.T) {
	provider := mocks.NewMockProvider().On(supervisorModel, reply(fixtures.Reply("Nothing to research.")))
	worker := &fakeWorker{}

	res, err := newTestSupervisor(t, provider, worker, testConfig(), nil).Run(testutil.TestContext(t), "brief text")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.Notes)
	assert.Empty(t, res.RawNotes)
	assert.Empty(t, worker.calls())
	testutil.AssertRoles(t, []types.Role{types.RoleUser, types.RoleAssistant}, res.Messages)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	assert.Equal(t, types.RoleSystem, call.Request.Messages[0].Role)
	assert.Contains(t, call.Request.Messages[0].Content, "2025-03-14")
	assert.Equal(t, tools.ConductResearchToolName, call.Request.Tools[0].Name)
}

func TestSupervisor_ResearchCompleteOverridesSiblings(t *testing.T) {
	provider := mocks.NewMockProvider().On(supervisorModel, reply(fixtures.Reply("",
		fixtures.Delegate("d1", "ignored topic", "brief"),
		fixtures.Complete("c1"),
	)))
	worker := &fakeWorker{}

	res, err := newTestSupervisor(t, provider, worker, testConfig(), nil).Run(testutil.TestContext(t), "brief text")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, worker.calls())
	assert.Empty(t, testutil.ToolMessages(res.Messages))
}

func TestSupervisor_IterationCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxResearchIterations = 3

	var mu sync.Mutex
	n := 0
	provider := mocks.NewMockProvider().On(supervisorModel, func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		mu.Lock()
		n++
		id := fmt.Sprintf("d%d", n)
		mu.Unlock()
		return mocks.Respond(fixtures.Reply("", fixtures.Delegate(id, "topic "+id, "brief "+id)))
	})
	worker := &fakeWorker{}
	observer := newRecordingObserver()

	res, err := newTestSupervisor(t, provider, worker, cfg, observer).Run(testutil.TestContext(t), "brief text")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, provider.CallsForModel(supervisorModel), 3)
	// 第三轮的委派因达到上限而不执行
	assert.Equal(t, []string{"topic d1", "topic d2"}, worker.calls())
	assert.Equal(t, []string{"findings on topic d1", "findings on topic d2"}, res.Notes)
	assert.Equal(t, []string{"raw topic d1", "raw topic d2"}, res.RawNotes)
	assert.Equal(t, 2, observer.delegations[DelegationSuccess])
	assert.Equal(t, []int{3}, observer.iterations)
}

func TestSupervisor_ConcurrentDelegationsKeepCallOrder(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	worker := &fakeWorker{run: func(ctx context.Context, topic, _ string) (*WorkerResult, error) {
		started.Done()
		select {
		case <-allStarted:
		case <-time.After(2 * time.Second):
			return nil, errors.New("delegations did not run concurrently")
		}
		if topic == "slow topic" {
			time.Sleep(30 * time.Millisecond)
		}
		return &WorkerResult{Topic: topic, CompressedResearch: "about " + topic, RawNotes: "raw " + topic}, nil
	}}
	calls := []types.ToolCall{
		fixtures.Delegate("a", "slow topic", "brief a"),
		fixtures.Delegate("b", "fast topic", "brief b"),
	}
	provider := mocks.NewMockProvider().On(supervisorModel, sequence(
		fixtures.Reply("", calls...),
		fixtures.Reply("", fixtures.Complete("done")),
	))

	res, err := newTestSupervisor(t, provider, worker, testConfig(), nil).Run(testutil.TestContext(t), "brief text")
	require.NoError(t, err)

	testutil.AssertToolResultsMatch(t, calls, testutil.ToolMessages(res.Messages))
	assert.Equal(t, []string{"about slow topic", "about fast topic"}, res.Notes)
	assert.Equal(t, []string{"raw slow topic\nraw fast topic"}, res.RawNotes, "one raw entry per round")
	assert.Equal(t, 2, res.Iterations)
}

func TestSupervisor_MixedCallsOrdering(t *testing.T) {
	provider := mocks.NewMockProvider().On(supervisorModel, sequence(
		fixtures.Reply("",
			fixtures.ToolCall("u1", "browse", nil),
			fixtures.Delegate("d1", "topic", "brief"),
			fixtures.Think("t1", "plan"),
		),
		fixtures.Reply("that is all"),
	))

	res, err := newTestSupervisor(t, provider, &fakeWorker{}, testConfig(), nil).Run(testutil.TestContext(t), "brief text")
	require.NoError(t, err)

	toolMsgs := testutil.ToolMessages(res.Messages)
	require.Len(t, toolMsgs, 3)
	assert.Equal(t, []string{"t1", "d1", "u1"}, []string{toolMsgs[0].ToolCallID, toolMsgs[1].ToolCallID, toolMsgs[2].ToolCallID})
	assert.Equal(t, "Reflection recorded: plan", toolMsgs[0].Content)
	assert.Equal(t, "findings on topic", toolMsgs[1].Content)
	assert.Equal(t, "No tool found with name browse", toolMsgs[2].Content)
	assert.Equal(t, []string{"Reflection recorded: plan", "findings on topic", "No tool found with name browse"}, res.Notes)
}

func TestSupervisor_FailedDelegationFallsBack(t *testing.T) {
	worker := &fakeWorker{run: func(_ context.Context, topic, _ string) (*WorkerResult, error) {
		switch topic {
		case "broken":
			return nil, errors.New("worker crashed")
		case "empty":
			return &WorkerResult{Topic: topic, RawNotes: "partial"}, nil
		}
		return &WorkerResult{Topic: topic, CompressedResearch: "good research"}, nil
	}}
	provider := mocks.NewMockProvider().On(supervisorModel, sequence(
		fixtures.Reply("",
			fixtures.Delegate("d1", "broken", "b"),
			fixtures.Delegate("d2", "fine", "b"),
			fixtures.Delegate("d3", "empty", "b"),
			fixtures.ToolCall("d4", tools.ConductResearchToolName, map[string]string{"research_brief": "no topic"}),
		),
		fixtures.Reply("finished"),
	))
	observer := newRecordingObserver()

	res, err := newTestSupervisor(t, provider, worker, testConfig(), observer).Run(testutil.TestContext(t), "brief text")
	require.NoError(t, err)

	require.Len(t, res.Notes, 4)
	assert.Equal(t, FallbackResearch, res.Notes[0])
	assert.Equal(t, "good research", res.Notes[1])
	assert.Equal(t, FallbackResearch, res.Notes[2])
	assert.Contains(t, res.Notes[3], "Error invoking tool conduct_research")
	assert.Equal(t, 1, observer.delegations[DelegationSuccess])
	assert.Equal(t, 2, observer.delegations[DelegationFallback])
	assert.Equal(t, 1, observer.delegations[DelegationInvalid])
	assert.ElementsMatch(t, []string{"broken", "fine", "empty"}, worker.calls())
}

func TestSupervisor_BackendFailure(t *testing.T) {
	provider := mocks.NewMockProvider().On(supervisorModel, failWith("model unavailable"))

	_, err := newTestSupervisor(t, provider, &fakeWorker{}, testConfig(), nil).Run(testutil.TestContext(t), "brief text")
	require.Error(t, err)
	assert.Equal(t, types.ErrBackend, types.GetErrorCode(err))
}

// 每轮回复的形态：委派数量，或者终止信号。
const (
	planDelegate = iota
	planDelegateTwice
	planThink
	planComplete
	planNoTools
)

func TestProperty_SupervisorRespectsIterationBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxIter := rapid.IntRange(1, 4).Draw(rt, "max_iterations")
		plan := rapid.SliceOfN(rapid.IntRange(planDelegate, planNoTools), maxIter, maxIter).Draw(rt, "plan")

		cfg := testConfig()
		cfg.MaxResearchIterations = maxIter

		var mu sync.Mutex
		round := 0
		provider := mocks.NewMockProvider().On(supervisorModel, func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
			mu.Lock()
			i := round
			round++
			mu.Unlock()
			id := func(s string) string { return fmt.Sprintf("%s-%d", s, i) }
			switch plan[i] {
			case planDelegate:
				return mocks.Respond(fixtures.Reply("", fixtures.Delegate(id("d"), id("topic"), "b")))
			case planDelegateTwice:
				return mocks.Respond(fixtures.Reply("",
					fixtures.Delegate(id("d"), id("topic"), "b"),
					fixtures.Delegate(id("e"), id("other"), "b")))
			case planThink:
				return mocks.Respond(fixtures.Reply("", fixtures.Think(id("t"), "hmm")))
			case planComplete:
				return mocks.Respond(fixtures.Reply("", fixtures.Complete(id("c"))))
			default:
				return mocks.Respond(fixtures.Reply("done"))
			}
		})
		worker := &fakeWorker{}

		res, err := newTestSupervisor(rt, provider, worker, cfg, nil).Run(context.Background(), "brief text")
		if err != nil {
			rt.Fatalf("run failed: %v", err)
		}

		wantIter, wantDelegations := maxIter, 0
		for i, p := range plan {
			if p == planComplete || p == planNoTools || i == maxIter-1 {
				wantIter = i + 1
				break
			}
			switch p {
			case planDelegate:
				wantDelegations++
			case planDelegateTwice:
				wantDelegations += 2
			}
		}

		if res.Iterations != wantIter {
			rt.Fatalf("iterations = %d, want %d", res.Iterations, wantIter)
		}
		if res.Iterations > maxIter {
			rt.Fatalf("iterations %d exceed bound %d", res.Iterations, maxIter)
		}
		if got := len(worker.calls()); got != wantDelegations {
			rt.Fatalf("worker calls = %d, want %d", got, wantDelegations)
		}
		if got := len(provider.CallsForModel(supervisorModel)); got != wantIter {
			rt.Fatalf("supervisor calls = %d, want %d", got, wantIter)
		}
	})
}
