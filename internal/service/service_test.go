package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"policychat/internal/agent"
	"policychat/internal/logger"
	"policychat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM is a scripted Completer that counts calls.
type fakeLLM struct {
	mu       sync.Mutex
	response string
	chunks   []string
	err      error
	panicMsg string
	prompts  []string
}

func (f *fakeLLM) record(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.record(prompt)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	f.record(prompt)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeLLM) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type memoryStore struct {
	mu        sync.Mutex
	profiles  map[int64]model.UserProfile
	favorites map[int64][]model.PropertyInterest
	favErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{profiles: map[int64]model.UserProfile{}, favorites: map[int64][]model.PropertyInterest{}}
}

func (m *memoryStore) LoadProfile(ctx context.Context, userID int64) (model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[userID], nil
}

func (m *memoryStore) MergeAndSaveProfile(ctx context.Context, userID int64, update model.UserProfile) (model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := m.profiles[userID].Merge(update)
	m.profiles[userID] = merged
	return merged, nil
}

func (m *memoryStore) GetFavorites(ctx context.Context, userID int64, limit int) ([]model.PropertyInterest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.favErr != nil {
		return nil, m.favErr
	}
	favs := m.favorites[userID]
	if len(favs) > limit {
		favs = favs[:limit]
	}
	return favs, nil
}

// staticIndex returns a fixed result list.
type staticIndex struct {
	records []model.PolicyRecord
	err     error
	queries []string
}

func (s *staticIndex) Add(ctx context.Context, records []model.PolicyRecord) error {
	s.records = append(s.records, records...)
	return nil
}

func (s *staticIndex) Search(ctx context.Context, query string, k int) ([]model.PolicyRecord, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.records[:min(k, len(s.records))], nil
}

func (s *staticIndex) Count(ctx context.Context) (int, error) { return len(s.records), nil }

func (s *staticIndex) Clear(ctx context.Context) error {
	s.records = nil
	return nil
}

var errUpstream = errors.New("upstream unavailable")

func samplePolicies() []model.PolicyRecord {
	return []model.PolicyRecord{
		{ID: 1, Title: "청년전세임대", Organization: "LH", SimilarityScore: 0.91},
		{ID: 2, Title: "청년월세 특별지원", Organization: "국토교통부", SimilarityScore: 0.85},
		{ID: 3, Title: "신혼부부 매입임대", Organization: "LH", SimilarityScore: 0.62},
	}
}

// pipeline wires every stage to its own fake so call counts are per stage.
type pipeline struct {
	intent      *fakeLLM
	answer      *fakeLLM
	profiling   *fakeLLM
	eligibility *fakeLLM
	ranking     *fakeLLM
	strategy    *fakeLLM
	synthesis   *fakeLLM
	store       *memoryStore
	index       *staticIndex
}

func newPipeline() *pipeline {
	return &pipeline{
		intent:    &fakeLLM{response: `{"intent": "policy_question"}`},
		answer:    &fakeLLM{response: "안녕하세요! 주거 정책 상담 챗봇입니다.", chunks: []string{"안녕하세요!", " 무엇이든 물어보세요."}},
		profiling: &fakeLLM{response: `{"age": 25, "income_household": 40000000, "budget_deposit": 30000000}`},
		eligibility: &fakeLLM{response: `{
			"eligible_policies": [{"policy_index": 1, "eligibility_score": 0.9, "reason": "연령·소득 충족"}],
			"partially_eligible_policies": [{"policy_index": 2, "eligibility_score": 0.7}],
			"ineligible_policies": [{"policy_index": 3, "eligibility_score": 0.1, "reason": "신혼부부 아님"}],
			"summary": "2건 신청 가능"
		}`},
		ranking: &fakeLLM{response: `{
			"ranked_policies": [
				{"policy_index": 2, "total_score": 60, "recommendation": "월세 부담 완화"},
				{"policy_index": 1, "score_breakdown": {"benefit_scale": 38, "application_difficulty": 15, "personal_fit": 18, "urgency": 6, "stackability": 3}}
			],
			"ranking_rationale": "보증금 지원 규모 우선"
		}`},
		strategy: &fakeLLM{response: `{
			"execution_tracks": {"primary": [{"name": "전세 지원", "policies": ["청년전세임대"]}]},
			"timeline": [{"name": "1단계", "period": "1주", "actions": [{"task": "서류 준비", "deadline": "1주 이내", "priority": "high"}]}]
		}`},
		synthesis: &fakeLLM{
			response: "## 추천\n1순위는 [정책명]입니다.",
			chunks:   []string{"## 추천\n", "1순위는 ", "청년전세임대입니다."},
		},
		store: newMemoryStore(),
		index: &staticIndex{records: samplePolicies()},
	}
}

func (p *pipeline) orchestrator() *Orchestrator {
	rules := agent.DefaultRules()
	log := logger.Nop()
	return NewOrchestrator(Stages{
		Profiler:    agent.NewProfiler(p.profiling, p.store, log),
		Eligibility: agent.NewEligibilityChecker(p.eligibility, rules, log),
		Ranker:      agent.NewRanker(p.ranking, rules, log),
		Strategist:  agent.NewStrategist(p.strategy, rules, log),
		Synthesizer: agent.NewSynthesizer(p.synthesis, log),
	}, p.index, 10, log)
}

func (p *pipeline) chatService() *ChatService {
	log := logger.Nop()
	return NewChatService(
		agent.NewIntentClassifier(p.intent, log),
		agent.NewAnswerer(p.answer, log),
		p.orchestrator(),
		p.store,
		p.index,
		10,
		log,
	)
}

func (p *pipeline) stageCalls() map[string]int {
	return map[string]int{
		model.StageProfiling:   p.profiling.Calls(),
		model.StageEligibility: p.eligibility.Calls(),
		model.StageRanking:     p.ranking.Calls(),
		model.StageStrategy:    p.strategy.Calls(),
		model.StageSynthesis:   p.synthesis.Calls(),
	}
}

func agentNames(errs []model.AgentError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Agent
	}
	return out
}

func TestOrchestrator_FullRun(t *testing.T) {
	p := newPipeline()

	state := p.orchestrator().Run(context.Background(), ConsultationInput{UserID: 1, Question: "전세 지원 받을 수 있나요?"}, nil)

	assert.True(t, state.Success)
	assert.Empty(t, state.AgentErrors)
	assert.NotEmpty(t, state.SessionID)
	assert.Len(t, state.ExecutionLog, 6)
	assert.True(t, strings.HasPrefix(state.ExecutionLog[0], model.StageProfiling))
	assert.True(t, strings.HasPrefix(state.ExecutionLog[5], model.StageSynthesis))

	assert.Equal(t, 25, *state.Profile.Age)
	assert.Len(t, state.Policies, 3)
	assert.Len(t, state.Eligibility.Eligible, 1)
	require.Len(t, state.Ranking.RankedPolicies, 2)
	assert.Equal(t, "청년전세임대", state.Ranking.RankedPolicies[0].Title, "80 points beats 60")
	assert.Len(t, state.Strategy.ExecutionChecklist, 2)
	assert.Equal(t, "## 추천\n1순위는 청년전세임대입니다.", state.FinalAnswer)

	for stage, calls := range p.stageCalls() {
		assert.Equal(t, 1, calls, stage)
	}
	assert.Equal(t, []string{"전세 지원 받을 수 있나요?"}, p.index.queries)
}

func TestOrchestrator_StageFailuresDoNotPropagate(t *testing.T) {
	tests := []struct {
		stage string
		fail  func(p *pipeline)
	}{
		{model.StageProfiling, func(p *pipeline) { p.profiling.err = errUpstream }},
		{model.StageSearch, func(p *pipeline) { p.index.err = errUpstream }},
		{model.StageEligibility, func(p *pipeline) { p.eligibility.response = "분류 불가" }},
		{model.StageRanking, func(p *pipeline) { p.ranking.err = errUpstream }},
		{model.StageRanking, func(p *pipeline) { p.ranking.panicMsg = "nil map" }},
		{model.StageStrategy, func(p *pipeline) { p.strategy.err = errUpstream }},
		{model.StageStrategy, func(p *pipeline) { p.strategy.panicMsg = "index out of range" }},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			p := newPipeline()
			tt.fail(p)

			state := p.orchestrator().Run(context.Background(), ConsultationInput{UserID: 1, Question: "q"}, nil)

			assert.True(t, state.Success)
			assert.Contains(t, agentNames(state.AgentErrors), tt.stage)
			assert.NotEmpty(t, state.FinalAnswer)
			assert.Equal(t, 1, p.synthesis.Calls(), "synthesis always runs")
		})
	}
}

func TestOrchestrator_PanicKeepsFallbackOutput(t *testing.T) {
	p := newPipeline()
	p.ranking.panicMsg = "boom"

	state := p.orchestrator().Run(context.Background(), ConsultationInput{UserID: 1, Question: "q"}, nil)

	require.Len(t, state.AgentErrors, 1)
	assert.Equal(t, "panic: boom", state.AgentErrors[0].Error)
	// identity order of the applicable policies
	require.Len(t, state.Ranking.RankedPolicies, 2)
	assert.Equal(t, int64(1), state.Ranking.RankedPolicies[0].ID)
	assert.Equal(t, 1, p.strategy.Calls())
}

func TestOrchestrator_NoApplicablePoliciesDegrades(t *testing.T) {
	p := newPipeline()
	p.eligibility.response = `{"ineligible_policies": [{"policy_index": 1}, {"policy_index": 2}, {"policy_index": 3}]}`

	state := p.orchestrator().Run(context.Background(), ConsultationInput{UserID: 1, Question: "q"}, nil)

	assert.True(t, state.Success)
	assert.Equal(t, 0, p.ranking.Calls())
	assert.Equal(t, 0, p.strategy.Calls())
	assert.Equal(t, 1, p.synthesis.Calls())
	assert.Contains(t, p.synthesis.LastPrompt(), "찾지 못했습니다")
	assert.Equal(t, agent.NoEligibleRationale, state.Ranking.RankingRationale)
	assert.Empty(t, state.Ranking.RankedPolicies)
}

func TestOrchestrator_SynthesisFailure(t *testing.T) {
	for name, breakSynthesis := range map[string]func(f *fakeLLM){
		"error": func(f *fakeLLM) { f.err = errUpstream },
		"panic": func(f *fakeLLM) { f.panicMsg = "boom" },
	} {
		t.Run(name, func(t *testing.T) {
			p := newPipeline()
			breakSynthesis(p.synthesis)

			state := p.orchestrator().Run(context.Background(), ConsultationInput{UserID: 1, Question: "q"}, nil)

			assert.False(t, state.Success)
			assert.True(t, strings.HasPrefix(state.FinalAnswer, agent.FallbackAnswerPrefix))
			assert.Contains(t, agentNames(state.AgentErrors), model.StageSynthesis)
		})
	}
}

func collectEvents(events *[]model.StreamEvent) EventCallback {
	return func(ev model.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func contentOf(events []model.StreamEvent) []string {
	var out []string
	for _, ev := range events {
		if ev.Type == model.EventContent {
			out = append(out, ev.Message)
		}
	}
	return out
}

func TestOrchestrator_StreamEvents(t *testing.T) {
	p := newPipeline()
	p.ranking.err = errUpstream
	var events []model.StreamEvent

	state := p.orchestrator().Run(context.Background(), ConsultationInput{UserID: 1, Question: "q"}, collectEvents(&events))
	require.True(t, state.Success)

	assert.Equal(t, p.synthesis.chunks, contentOf(events))
	assert.Equal(t, strings.Join(p.synthesis.chunks, ""), state.FinalAnswer)

	started := map[string]bool{}
	completed := map[string]model.StreamEvent{}
	for _, ev := range events {
		if ev.Type != model.EventStatus {
			continue
		}
		if ev.Complete {
			completed[ev.Agent] = ev
		} else {
			started[ev.Agent] = true
		}
	}
	for _, stage := range []string{model.StageProfiling, model.StageSearch, model.StageEligibility, model.StageRanking, model.StageStrategy, model.StageSynthesis} {
		assert.True(t, started[stage], stage)
		assert.Contains(t, completed, stage)
	}
	assert.True(t, completed[model.StageRanking].Warning)
	assert.False(t, completed[model.StageStrategy].Warning)

	assert.Equal(t, model.EventStatus, events[0].Type)
	assert.Equal(t, model.StageProfiling, events[0].Agent)
}

func TestOrchestrator_StreamStopsWhenConsumerLeaves(t *testing.T) {
	p := newPipeline()
	gone := errors.New("client disconnected")
	calls := 0

	state := p.orchestrator().Run(context.Background(), ConsultationInput{UserID: 1, Question: "q"}, func(ev model.StreamEvent) error {
		calls++
		if calls > 2 {
			return gone
		}
		return nil
	})

	assert.False(t, state.Success)
	assert.Equal(t, 0, p.ranking.Calls())
	assert.Equal(t, 0, p.synthesis.Calls())
}

func TestChatService_GreetingSkipsPipeline(t *testing.T) {
	p := newPipeline()
	p.intent.response = `{"intent": "greeting"}`

	resp := p.chatService().Chat(context.Background(), model.ChatRequest{Message: "안녕하세요", UserID: 1})

	assert.Equal(t, model.PathGreeting, resp.Path)
	assert.True(t, resp.Success)
	assert.Equal(t, p.answer.response, resp.Answer)
	assert.Empty(t, resp.Policies)
	assert.Equal(t, 1, p.intent.Calls())
	for stage, calls := range p.stageCalls() {
		assert.Zero(t, calls, stage)
	}
	assert.Empty(t, p.index.queries)
}

func TestChatService_GeneralChatStream(t *testing.T) {
	p := newPipeline()
	p.intent.response = "general_chat"
	var events []model.StreamEvent

	p.chatService().ChatStream(context.Background(), model.StreamRequest{Message: "오늘 날씨 어때?", UserID: 1}, collectEvents(&events))

	assert.Equal(t, p.answer.chunks, contentOf(events))
	for stage, calls := range p.stageCalls() {
		assert.Zero(t, calls, stage)
	}
}

func TestChatService_RAGPath(t *testing.T) {
	p := newPipeline()
	p.answer.response = "**청년전세임대**를 확인해 보세요."
	off := false

	resp := p.chatService().Chat(context.Background(), model.ChatRequest{Message: "전세 지원 정책?", UserID: 1, UseMultiAgent: &off})

	assert.Equal(t, model.PathRAG, resp.Path)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Metadata.PoliciesFound)
	assert.Len(t, resp.Policies, 3)
	assert.Equal(t, "청년전세임대", resp.Policies[0].Title)
	assert.Contains(t, p.answer.LastPrompt(), "청년월세 특별지원")
	for stage, calls := range p.stageCalls() {
		assert.Zero(t, calls, stage)
	}
}

func TestChatService_MultiAgentResponse(t *testing.T) {
	p := newPipeline()
	p.store.favorites[1] = []model.PropertyInterest{{Address: "서울 관악구 봉천동", TransactionType: "전세", Deposit: 80000000}}

	resp := p.chatService().Chat(context.Background(), model.ChatRequest{Message: "전세 지원 받을 수 있나요?", UserID: 1})

	assert.Equal(t, model.PathMultiAgent, resp.Path)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, model.ChatMetadata{PoliciesFound: 3, EligiblePolicies: 2, RankedPolicies: 2}, resp.Metadata)
	require.Len(t, resp.Policies, 2)
	assert.Equal(t, 1, resp.Policies[0].Rank)
	assert.Equal(t, "의도 분류: policy_question", resp.ExecutionLog[0])
	assert.Len(t, resp.ExecutionLog, 7)

	assert.Contains(t, p.profiling.LastPrompt(), "봉천동")
	assert.Contains(t, p.ranking.LastPrompt(), "봉천동")
}

func TestChatService_FavoritesFailureOnlyDropsContext(t *testing.T) {
	p := newPipeline()
	p.store.favErr = errUpstream

	resp := p.chatService().Chat(context.Background(), model.ChatRequest{Message: "q", UserID: 1})
	assert.True(t, resp.Success)
	assert.NotContains(t, p.profiling.LastPrompt(), "사용자가 찜한 매물")
}

func TestChatService_StreamSynthesisFailure(t *testing.T) {
	p := newPipeline()
	p.synthesis.err = errUpstream
	p.synthesis.chunks = nil
	var events []model.StreamEvent

	p.chatService().ChatStream(context.Background(), model.StreamRequest{Message: "q", UserID: 1}, collectEvents(&events))

	content := contentOf(events)
	require.Len(t, content, 1)
	assert.True(t, strings.HasPrefix(content[0], agent.FallbackAnswerPrefix))

	last := events[len(events)-1]
	assert.Equal(t, model.EventError, last.Type)
	assert.Contains(t, last.Message, errUpstream.Error())
}

type recordingLog struct {
	ch chan string
}

func (r *recordingLog) LogConsultation(ctx context.Context, sessionID string, userID int64, question, path string, meta model.ChatMetadata, success bool, responseTimeMs int64) error {
	r.ch <- path
	return nil
}

func TestChatService_LogsConsultation(t *testing.T) {
	p := newPipeline()
	p.intent.response = `{"intent": "greeting"}`
	history := &recordingLog{ch: make(chan string, 1)}

	p.chatService().WithConsultationLog(history).Chat(context.Background(), model.ChatRequest{Message: "안녕", UserID: 1})

	assert.Equal(t, model.PathGreeting, <-history.ch)
}

func TestProfileService_GetProfile(t *testing.T) {
	store := newMemoryStore()
	age := 29
	store.profiles[5] = model.UserProfile{Age: &age}
	store.favorites[5] = []model.PropertyInterest{{Address: "서울 마포구"}}

	resp, err := NewProfileService(store).GetProfile(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, int64(5), resp.UserID)
	assert.Equal(t, 0.13, resp.Completeness)
	assert.Len(t, resp.MissingFields, 7)
	assert.Len(t, resp.Profile.PropertyInterests, 1)

	store.favErr = errUpstream
	_, err = NewProfileService(store).GetProfile(context.Background(), 5)
	assert.Error(t, err)
}
