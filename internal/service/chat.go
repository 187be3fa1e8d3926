package service

import (
	"context"
	"fmt"
	"time"

	"policychat/internal/agent"
	"policychat/internal/index"
	"policychat/internal/logger"
	"policychat/internal/metrics"
	"policychat/internal/model"
)

const (
	favoritesLimit     = 5
	ragPolicyLimit     = 5
	summaryPolicyLimit = 5
)

// ConsultationLogger records answered chat turns.
type ConsultationLogger interface {
	LogConsultation(ctx context.Context, sessionID string, userID int64, question, path string, meta model.ChatMetadata, success bool, responseTimeMs int64) error
}

// ChatService routes a chat turn to the simple, RAG or multi-agent path
type ChatService struct {
	intent       *agent.IntentClassifier
	answerer     *agent.Answerer
	orchestrator *Orchestrator
	store        agent.ProfileStore
	index        index.Index
	topK         int
	history      ConsultationLogger
	log          *logger.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	intent *agent.IntentClassifier,
	answerer *agent.Answerer,
	orchestrator *Orchestrator,
	store agent.ProfileStore,
	idx index.Index,
	topK int,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		intent:       intent,
		answerer:     answerer,
		orchestrator: orchestrator,
		store:        store,
		index:        idx,
		topK:         topK,
		log:          log.With("component", "chat"),
	}
}

// WithConsultationLog enables best-effort logging of every answered turn.
func (s *ChatService) WithConsultationLog(l ConsultationLogger) *ChatService {
	s.history = l
	return s
}

// Chat answers one message. It never fails: every error degrades to an
// apology answer with Success false.
func (s *ChatService) Chat(ctx context.Context, req model.ChatRequest) model.ChatResponse {
	startTime := time.Now()

	intent := s.intent.Classify(ctx, req.Message)

	var resp model.ChatResponse
	switch {
	case intent == model.IntentGreeting || intent == model.IntentGeneralChat:
		resp = s.simple(ctx, req.Message, intent)
	case !req.MultiAgent():
		resp = s.rag(ctx, req.UserID, req.Message)
	default:
		state := s.orchestrator.Run(ctx, s.consultationInput(ctx, req.UserID, req.Message), nil)
		resp = responseFromState(state)
	}
	resp.ExecutionLog = append([]string{"의도 분류: " + string(intent)}, resp.ExecutionLog...)

	s.record(resp, req.UserID, req.Message, "sync", time.Since(startTime))
	return resp
}

// ChatStream answers one message as a sequence of stream events.
func (s *ChatService) ChatStream(ctx context.Context, req model.StreamRequest, emit EventCallback) {
	startTime := time.Now()

	intent := s.intent.Classify(ctx, req.Message)
	if intent == model.IntentGreeting || intent == model.IntentGeneralChat {
		path := pathForIntent(intent)
		err := s.answerer.SimpleStream(ctx, req.Message, intent, func(chunk string) error {
			return emit(model.StreamEvent{Type: model.EventContent, Message: chunk})
		})
		if err != nil {
			s.log.Warn("Simple stream failed", "path", path, "error", err)
			_ = emit(model.StreamEvent{Type: model.EventError, Message: err.Error()})
		}
		s.record(model.ChatResponse{Path: path, Success: err == nil}, req.UserID, req.Message, "stream", time.Since(startTime))
		return
	}

	state := s.orchestrator.Run(ctx, s.consultationInput(ctx, req.UserID, req.Message), emit)
	if !state.Success {
		msg := "답변 생성 중 오류가 발생했습니다."
		for _, e := range state.AgentErrors {
			if e.Agent == model.StageSynthesis {
				msg = e.Error
			}
		}
		_ = emit(model.StreamEvent{Type: model.EventError, Message: msg})
	}
	s.record(responseFromState(state), req.UserID, req.Message, "stream", time.Since(startTime))
}

func (s *ChatService) simple(ctx context.Context, message string, intent model.ChatIntent) model.ChatResponse {
	answer, err := s.answerer.Simple(ctx, message, intent)
	if err != nil {
		s.log.Warn("Simple answer failed", "intent", intent, "error", err)
	}
	return model.ChatResponse{
		Answer:       answer,
		Policies:     []model.PolicySummary{},
		ExecutionLog: []string{"간단 응답 생성"},
		Success:      err == nil,
		Path:         pathForIntent(intent),
	}
}

func (s *ChatService) rag(ctx context.Context, userID int64, question string) model.ChatResponse {
	profile, err := s.store.LoadProfile(ctx, userID)
	if err != nil {
		s.log.Warn("Failed to load profile for RAG answer", "user_id", userID, "error", err)
	}

	policies := index.SearchOrEmpty(ctx, s.index, question, s.topK, s.log)
	if len(policies) > ragPolicyLimit {
		policies = policies[:ragPolicyLimit]
	}

	answer, err := s.answerer.RAG(ctx, question, profile, policies)
	resp := model.ChatResponse{
		Answer:       answer,
		Policies:     summarizeRecords(policies),
		Metadata:     model.ChatMetadata{PoliciesFound: len(policies)},
		ExecutionLog: []string{fmt.Sprintf("정책 검색 %d건", len(policies)), "단일 답변 생성"},
		Success:      err == nil,
		Path:         model.PathRAG,
	}
	if err != nil {
		s.log.Warn("RAG answer failed", "error", err)
		resp.AgentErrors = []model.AgentError{{Agent: model.PathRAG, Error: err.Error()}}
	}
	return resp
}

// consultationInput loads favorites into the property context. Failures only
// drop the context.
func (s *ChatService) consultationInput(ctx context.Context, userID int64, question string) ConsultationInput {
	in := ConsultationInput{UserID: userID, Question: question}
	favorites, err := s.store.GetFavorites(ctx, userID, favoritesLimit)
	if err != nil {
		s.log.Warn("Failed to load favorites", "user_id", userID, "error", err)
		return in
	}
	in.PropertyContext = agent.PropertyContext(favorites)
	return in
}

func (s *ChatService) record(resp model.ChatResponse, userID int64, question, mode string, took time.Duration) {
	metrics.ChatRequests.WithLabelValues(resp.Path, mode).Inc()
	s.log.Info("Chat answered",
		"path", resp.Path,
		"mode", mode,
		"user_id", userID,
		"success", resp.Success,
		"took_ms", took.Milliseconds(),
	)

	if s.history == nil {
		return
	}
	// Log consultation (non-blocking)
	go func() {
		if err := s.history.LogConsultation(context.Background(), resp.SessionID, userID, question, resp.Path, resp.Metadata, resp.Success, took.Milliseconds()); err != nil {
			s.log.Warn("Failed to log consultation", "error", err)
		}
	}()
}

func responseFromState(state *model.ConsultationState) model.ChatResponse {
	resp := model.ChatResponse{
		Answer: state.FinalAnswer,
		Metadata: model.ChatMetadata{
			PoliciesFound:    len(state.Policies),
			EligiblePolicies: len(state.Eligibility.Eligible) + len(state.Eligibility.PartiallyEligible),
			RankedPolicies:   len(state.Ranking.RankedPolicies),
		},
		ExecutionLog: state.ExecutionLog,
		AgentErrors:  state.AgentErrors,
		Success:      state.Success,
		SessionID:    state.SessionID,
		Path:         model.PathMultiAgent,
	}

	if len(state.Ranking.RankedPolicies) > 0 {
		resp.Policies = summarizeRanked(state.Ranking.Top(summaryPolicyLimit))
	} else {
		top := state.Policies
		if len(top) > summaryPolicyLimit {
			top = top[:summaryPolicyLimit]
		}
		resp.Policies = summarizeRecords(top)
	}
	return resp
}

func summarizeRecords(records []model.PolicyRecord) []model.PolicySummary {
	out := make([]model.PolicySummary, 0, len(records))
	for _, p := range records {
		out = append(out, summaryOf(p))
	}
	return out
}

func summarizeRanked(ranked []model.RankedPolicy) []model.PolicySummary {
	out := make([]model.PolicySummary, 0, len(ranked))
	for _, p := range ranked {
		sum := summaryOf(p.PolicyRecord)
		sum.Rank = p.Rank
		sum.TotalScore = p.TotalScore
		sum.Recommendation = p.Recommendation
		out = append(out, sum)
	}
	return out
}

func summaryOf(p model.PolicyRecord) model.PolicySummary {
	return model.PolicySummary{
		ID:              p.ID,
		Title:           p.Title,
		Organization:    p.Organization,
		Category:        p.Category,
		Region:          p.Region,
		SimilarityScore: p.SimilarityScore,
	}
}

func pathForIntent(intent model.ChatIntent) string {
	if intent == model.IntentGreeting {
		return model.PathGreeting
	}
	return model.PathGeneral
}
