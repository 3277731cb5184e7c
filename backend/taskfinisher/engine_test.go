package taskfinisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/backend/taskfinisher"
	"github.com/nimec77/deepseek-json/backend/taskfinisher/mocks"
)

// scriptedExchanger replays a fixed list of replies and records the history
// of every dispatch.
type scriptedExchanger struct {
	mu        sync.Mutex
	replies   []string
	err       error
	histories [][]model.Message
}

func (s *scriptedExchanger) Exchange(ctx context.Context, history []model.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histories = append(s.histories, append([]model.Message(nil), history...))
	if s.err != nil {
		return "", s.err
	}
	if len(s.histories) > len(s.replies) {
		return "", fmt.Errorf("unexpected dispatch %d", len(s.histories))
	}
	return s.replies[len(s.histories)-1], nil
}

func (s *scriptedExchanger) dispatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories)
}

func clarifyingReply(t *testing.T, turn int, ids ...string) string {
	t.Helper()

	payload := taskfinisher.ClarifyingPayload{
		Type:         taskfinisher.TypeClarifyingQuestions,
		Turn:         turn,
		MaxQuestions: 3,
		Questions:    []taskfinisher.ClarifyingQuestion{},
		Checklist:    []taskfinisher.ChecklistItem{{Field: "scope", Status: "partial"}},
		NextAction:   "await_user",
	}
	for _, id := range ids {
		payload.Questions = append(payload.Questions, taskfinisher.ClarifyingQuestion{
			ID:       id,
			Text:     "Question " + id,
			Required: true,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode clarifying reply: %v", err)
	}
	return string(data)
}

func sampleArtifact() *taskfinisher.Artifact {
	return &taskfinisher.Artifact{
		Type:         taskfinisher.TypeArtifact,
		ArtifactName: "technical_task",
		Version:      "1.0",
		Title:        "Wallet balance tracker",
		Summary:      "Track balances",
		Stakeholders: []taskfinisher.Stakeholder{{Role: "Owner", Description: "Runs it"}},
		Scope:        taskfinisher.Scope{InScope: []string{"Polling"}, OutOfScope: []string{}},
		Requirements: taskfinisher.Requirements{
			Functional:    []taskfinisher.FunctionalRequirement{{ID: "FR1", Statement: "Poll balances"}},
			NonFunctional: []taskfinisher.NonFunctionalRequirement{},
		},
		DataIntegrations: taskfinisher.DataIntegrations{
			RPCProviders: taskfinisher.RPCProviders{Selection: []string{"Alchemy"}, Endpoints: map[string]any{}},
			PriceSource:  taskfinisher.PriceSource{Provider: "None"},
		},
		Constraints:        []string{},
		Assumptions:        []string{"Mainnet only"},
		Risks:              []taskfinisher.Risk{},
		Milestones:         []taskfinisher.Milestone{},
		AcceptanceCriteria: []taskfinisher.AcceptanceCriterion{},
		OpenQuestions:      []string{},
		Status:             taskfinisher.StatusFinal,
		EndToken:           taskfinisher.EndToken,
	}
}

func artifactReply(t *testing.T) string {
	t.Helper()

	data, err := json.Marshal(sampleArtifact())
	if err != nil {
		t.Fatalf("failed to encode artifact reply: %v", err)
	}
	return string(data)
}

func answers(items ...taskfinisher.AnswerItem) *taskfinisher.AnswersPayload {
	return &taskfinisher.AnswersPayload{Answers: items}
}

// =============================================================================
// Termination Tests
// =============================================================================

func TestEngineReturnsArtifact(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	collector := mocks.NewMockAnswerCollector(ctrl)

	first := clarifyingReply(t, 1, "q1", "q2")
	exchanger := &scriptedExchanger{replies: []string{first, artifactReply(t)}}

	collector.EXPECT().
		CollectAnswers(gomock.Any(), 1, gomock.Any()).
		DoAndReturn(func(ctx context.Context, round int, payload *taskfinisher.ClarifyingPayload) (*taskfinisher.AnswersPayload, error) {
			if len(payload.Questions) != 2 || payload.Questions[0].ID != "q1" {
				t.Errorf("unexpected questions: %+v", payload.Questions)
			}
			if diff := cmp.Diff([]taskfinisher.ChecklistItem{{Field: "scope", Status: "partial"}}, payload.Checklist); diff != "" {
				t.Errorf("checklist mismatch (-want +got):\n%s", diff)
			}
			return answers(taskfinisher.AnswerItem{ID: "q1", Answer: "Ethereum"}), nil
		})

	engine := taskfinisher.NewEngine(exchanger, collector)
	result, err := engine.Run(context.Background(), "Build a wallet tracker")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := exchanger.dispatches(); got != 2 {
		t.Errorf("dispatches = %d, want 2", got)
	}
	if result.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", result.Rounds)
	}
	if result.RunID == "" {
		t.Errorf("RunID is empty")
	}
	if diff := cmp.Diff(sampleArtifact(), result.Artifact); diff != "" {
		t.Errorf("artifact mismatch (-want +got):\n%s", diff)
	}
	if result.Raw != exchanger.replies[1] {
		t.Errorf("Raw = %q, want the second reply", result.Raw)
	}

	wantSecond := []model.Message{
		model.NewSystemMessage(taskfinisher.BuildSystemPrompt(taskfinisher.DefaultMaxQuestions)),
		model.NewUserMessage(taskfinisher.BuildUserTurn("Build a wallet tracker")),
		model.NewAssistantMessage(first),
		model.NewUserMessage(`{"answers":[{"id":"q1","answer":"Ethereum"}]}`),
	}
	if diff := cmp.Diff(wantSecond, exchanger.histories[1]); diff != "" {
		t.Errorf("second dispatch history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantSecond, result.History); diff != "" {
		t.Errorf("result history mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineStopsAtRoundCap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		opts          []taskfinisher.EngineOption
		wantRounds    int
		wantCollected []int
	}{
		{name: "default cap", wantRounds: 5, wantCollected: []int{1, 2, 3, 4}},
		{name: "custom cap", opts: []taskfinisher.EngineOption{taskfinisher.WithMaxRounds(2)}, wantRounds: 2, wantCollected: []int{1}},
		{name: "non positive cap keeps default", opts: []taskfinisher.EngineOption{taskfinisher.WithMaxRounds(0)}, wantRounds: 5, wantCollected: []int{1, 2, 3, 4}},
		{name: "single round", opts: []taskfinisher.EngineOption{taskfinisher.WithMaxRounds(1)}, wantRounds: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			collector := mocks.NewMockAnswerCollector(ctrl)

			replies := make([]string, 6)
			for i := range replies {
				replies[i] = clarifyingReply(t, i+1, fmt.Sprintf("q%d", i+1))
			}
			exchanger := &scriptedExchanger{replies: replies}

			var collected []int
			collector.EXPECT().
				CollectAnswers(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(ctx context.Context, round int, payload *taskfinisher.ClarifyingPayload) (*taskfinisher.AnswersPayload, error) {
					collected = append(collected, round)
					return answers(), nil
				}).
				Times(len(tt.wantCollected))

			engine := taskfinisher.NewEngine(exchanger, collector, tt.opts...)
			result, err := engine.Run(context.Background(), "task")
			if result != nil {
				t.Errorf("Run() result = %+v, want nil", result)
			}

			var capErr *taskfinisher.RoundCapError
			if !errors.As(err, &capErr) {
				t.Fatalf("Run() error = %v, want RoundCapError", err)
			}
			if capErr.Rounds != tt.wantRounds {
				t.Errorf("Rounds = %d, want %d", capErr.Rounds, tt.wantRounds)
			}
			if capErr.Raw != replies[tt.wantRounds-1] {
				t.Errorf("Raw is not the latest reply")
			}
			if got := exchanger.dispatches(); got != tt.wantRounds {
				t.Errorf("dispatches = %d, want %d", got, tt.wantRounds)
			}
			if diff := cmp.Diff(tt.wantCollected, collected); diff != "" {
				t.Errorf("collected rounds mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngineParseFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantDetail string
	}{
		{name: "prose", raw: "I need more details first.", wantDetail: "Invalid JSON"},
		{name: "missing discriminator", raw: `{"title":"x"}`, wantDetail: "Missing 'type' field"},
		{name: "unsupported type", raw: `{"type":"plan"}`, wantDetail: "Unsupported type: plan"},
		{name: "incomplete artifact", raw: `{"type":"artifact","title":"x"}`, wantDetail: "Invalid artifact payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			collector := mocks.NewMockAnswerCollector(ctrl)
			exchanger := &scriptedExchanger{replies: []string{tt.raw}}

			_, err := taskfinisher.NewEngine(exchanger, collector).Run(context.Background(), "task")

			var parseErr *taskfinisher.ParseFailureError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Run() error = %v, want ParseFailureError", err)
			}
			if parseErr.Raw != tt.raw || parseErr.Rounds != 1 {
				t.Errorf("ParseFailureError = %+v", parseErr)
			}

			var pe *model.ProviderError
			if !errors.As(err, &pe) || pe.Kind != model.ErrorKindParse {
				t.Fatalf("expected a parse ProviderError in %v", err)
			}
			if pe.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", pe.Detail, tt.wantDetail)
			}
		})
	}
}

func TestEngineParseFailureAfterClarifying(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	collector := mocks.NewMockAnswerCollector(ctrl)
	collector.EXPECT().CollectAnswers(gomock.Any(), 1, gomock.Any()).Return(answers(), nil)

	exchanger := &scriptedExchanger{replies: []string{clarifyingReply(t, 1, "q1"), "{"}}

	_, err := taskfinisher.NewEngine(exchanger, collector).Run(context.Background(), "task")

	var parseErr *taskfinisher.ParseFailureError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Run() error = %v, want ParseFailureError", err)
	}
	if parseErr.Rounds != 2 || parseErr.Raw != "{" {
		t.Errorf("ParseFailureError = %+v", parseErr)
	}
}

func TestEngineDispatchFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind model.ErrorKind
	}{
		{name: "server busy", err: model.NewServerBusyError(model.DeepSeekProviderName, 503), wantKind: model.ErrorKindServerBusy},
		{name: "timeout", err: model.NewTimeoutError(model.DeepSeekProviderName, 30, nil), wantKind: model.ErrorKindTimeout},
		{name: "api", err: model.NewAPIError(model.DeepSeekProviderName, 401, "unauthorized"), wantKind: model.ErrorKindAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			collector := mocks.NewMockAnswerCollector(ctrl)
			exchanger := &scriptedExchanger{err: tt.err}

			_, err := taskfinisher.NewEngine(exchanger, collector).Run(context.Background(), "task")
			if !errors.Is(err, tt.err) {
				t.Fatalf("Run() error = %v, want %v", err, tt.err)
			}
			if kind, _ := model.KindOf(err); kind != tt.wantKind {
				t.Errorf("KindOf() = %s, want %s", kind, tt.wantKind)
			}
			if got := exchanger.dispatches(); got != 1 {
				t.Errorf("dispatches = %d, want 1", got)
			}
		})
	}
}

// =============================================================================
// Answer Round Tests
// =============================================================================

func TestEngineHistoryGrowsByTwoPerRound(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	collector := mocks.NewMockAnswerCollector(ctrl)
	gomock.InOrder(
		collector.EXPECT().CollectAnswers(gomock.Any(), 1, gomock.Any()).Return(answers(
			taskfinisher.AnswerItem{ID: "q1", Answer: "a"},
			taskfinisher.AnswerItem{ID: "q2", Answer: "b"},
			taskfinisher.AnswerItem{ID: "q3", Answer: "c"},
		), nil),
		collector.EXPECT().CollectAnswers(gomock.Any(), 2, gomock.Any()).Return(answers(), nil),
	)

	exchanger := &scriptedExchanger{replies: []string{
		clarifyingReply(t, 1, "q1", "q2", "q3"),
		clarifyingReply(t, 2),
		artifactReply(t),
	}}

	if _, err := taskfinisher.NewEngine(exchanger, collector).Run(context.Background(), "task"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var lengths []int
	for _, history := range exchanger.histories {
		lengths = append(lengths, len(history))
	}
	if diff := cmp.Diff([]int{2, 4, 6}, lengths); diff != "" {
		t.Errorf("history lengths mismatch (-want +got):\n%s", diff)
	}

	last := exchanger.histories[2]
	for i, msg := range exchanger.histories[1] {
		if diff := cmp.Diff(msg, last[i]); diff != "" {
			t.Errorf("history entry %d changed between rounds (-want +got):\n%s", i, diff)
		}
	}
	if last[4].Role != model.RoleAssistant || last[5].Role != model.RoleUser {
		t.Errorf("unexpected roles for appended entries: %s, %s", last[4].Role, last[5].Role)
	}
}

func TestEngineCollectsAnswersForEmptyQuestions(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	collector := mocks.NewMockAnswerCollector(ctrl)
	collector.EXPECT().
		CollectAnswers(gomock.Any(), 1, gomock.Any()).
		DoAndReturn(func(ctx context.Context, round int, payload *taskfinisher.ClarifyingPayload) (*taskfinisher.AnswersPayload, error) {
			if len(payload.Questions) != 0 {
				t.Errorf("questions = %d, want 0", len(payload.Questions))
			}
			return nil, nil
		})

	exchanger := &scriptedExchanger{replies: []string{clarifyingReply(t, 1), artifactReply(t)}}

	if _, err := taskfinisher.NewEngine(exchanger, collector).Run(context.Background(), "task"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := exchanger.histories[1][3].Content; got != `{"answers":[]}` {
		t.Errorf("answers turn = %s, want an empty answers list", got)
	}
}

func TestEnginePassesUnmatchedAnswersThrough(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	collector := mocks.NewMockAnswerCollector(ctrl)
	collector.EXPECT().CollectAnswers(gomock.Any(), 1, gomock.Any()).Return(answers(
		taskfinisher.AnswerItem{ID: "q9", Answer: "not asked"},
	), nil)

	exchanger := &scriptedExchanger{replies: []string{clarifyingReply(t, 1, "q1"), artifactReply(t)}}

	if _, err := taskfinisher.NewEngine(exchanger, collector).Run(context.Background(), "task"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := exchanger.histories[1][3].Content; got != `{"answers":[{"id":"q9","answer":"not asked"}]}` {
		t.Errorf("answers turn = %s", got)
	}
}

func TestEngineCollectorFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	collector := mocks.NewMockAnswerCollector(ctrl)
	collector.EXPECT().CollectAnswers(gomock.Any(), 1, gomock.Any()).Return(nil, context.Canceled)

	exchanger := &scriptedExchanger{replies: []string{clarifyingReply(t, 1, "q1"), artifactReply(t)}}

	_, err := taskfinisher.NewEngine(exchanger, collector).Run(context.Background(), "task")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if got := exchanger.dispatches(); got != 1 {
		t.Errorf("dispatches = %d, want 1", got)
	}
}

func TestEngineCancelledBeforeDispatch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	collector := mocks.NewMockAnswerCollector(ctrl)
	exchanger := &scriptedExchanger{replies: []string{artifactReply(t)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := taskfinisher.NewEngine(exchanger, collector).Run(ctx, "task")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if got := exchanger.dispatches(); got != 0 {
		t.Errorf("dispatches = %d, want 0", got)
	}
}

// =============================================================================
// Configuration Tests
// =============================================================================

func TestEngineMaxQuestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       []taskfinisher.EngineOption
		wantConfig string
	}{
		{name: "default", wantConfig: "Set MAX_QUESTIONS = 3"},
		{name: "zero means default", opts: []taskfinisher.EngineOption{taskfinisher.WithMaxQuestions(0)}, wantConfig: "Set MAX_QUESTIONS = 3"},
		{name: "custom", opts: []taskfinisher.EngineOption{taskfinisher.WithMaxQuestions(5)}, wantConfig: "Set MAX_QUESTIONS = 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			exchanger := &scriptedExchanger{replies: []string{artifactReply(t)}}

			engine := taskfinisher.NewEngine(exchanger, mocks.NewMockAnswerCollector(ctrl), tt.opts...)
			if _, err := engine.Run(context.Background(), "task"); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			system := exchanger.histories[0][0]
			if system.Role != model.RoleSystem || !strings.Contains(system.Content, tt.wantConfig) {
				t.Errorf("system prompt does not contain %q", tt.wantConfig)
			}
		})
	}
}

func TestEngineMetrics(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	registry := prometheus.NewRegistry()
	engine := taskfinisher.NewEngine(
		&scriptedExchanger{replies: []string{artifactReply(t)}},
		mocks.NewMockAnswerCollector(ctrl),
		taskfinisher.WithMetrics(registry),
	)

	if _, err := engine.Run(context.Background(), "task"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	expected := `
# HELP taskfinisher_runs_total Total number of negotiation runs by result
# TYPE taskfinisher_runs_total counter
taskfinisher_runs_total{result="artifact"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "taskfinisher_runs_total"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if count, err := testutil.GatherAndCount(registry, "taskfinisher_rounds"); err != nil || count != 1 {
		t.Errorf("taskfinisher_rounds series = %d (err %v), want 1", count, err)
	}
}

func TestEnginesShareRegistry(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	registry := prometheus.NewRegistry()

	for range 2 {
		engine := taskfinisher.NewEngine(
			&scriptedExchanger{replies: []string{artifactReply(t)}},
			mocks.NewMockAnswerCollector(ctrl),
			taskfinisher.WithMetrics(registry),
		)
		if _, err := engine.Run(context.Background(), "task"); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}

	expected := `
# HELP taskfinisher_runs_total Total number of negotiation runs by result
# TYPE taskfinisher_runs_total counter
taskfinisher_runs_total{result="artifact"} 2
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "taskfinisher_runs_total"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestEngineConcurrentRuns(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	engine := taskfinisher.NewEngine(
		&scriptedExchanger{replies: []string{artifactReply(t), artifactReply(t), artifactReply(t), artifactReply(t)}},
		mocks.NewMockAnswerCollector(ctrl),
	)

	var wg sync.WaitGroup
	results := make([]*taskfinisher.Result, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Run(context.Background(), fmt.Sprintf("task %d", i))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, result := range results {
		if errs[i] != nil {
			t.Fatalf("run %d error = %v", i, errs[i])
		}
		if seen[result.RunID] {
			t.Errorf("run id %s reused", result.RunID)
		}
		seen[result.RunID] = true
		if want := taskfinisher.BuildUserTurn(fmt.Sprintf("task %d", i)); result.History[1].Content != want {
			t.Errorf("run %d history carries %q", i, result.History[1].Content)
		}
	}
}
