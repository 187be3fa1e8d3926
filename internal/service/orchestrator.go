package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"policychat/internal/agent"
	"policychat/internal/index"
	"policychat/internal/logger"
	"policychat/internal/metrics"
	"policychat/internal/model"

	"github.com/google/uuid"
)

// Stages bundles the pipeline agents the orchestrator drives.
type Stages struct {
	Profiler    *agent.Profiler
	Eligibility *agent.EligibilityChecker
	Ranker      *agent.Ranker
	Strategist  *agent.Strategist
	Synthesizer *agent.Synthesizer
}

// Orchestrator runs profiling → search → eligibility → ranking → strategy →
// synthesis strictly in order for one consultation.
type Orchestrator struct {
	stages Stages
	index  index.Index
	topK   int
	log    *logger.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(stages Stages, idx index.Index, topK int, log *logger.Logger) *Orchestrator {
	if topK <= 0 {
		topK = 10
	}
	return &Orchestrator{
		stages: stages,
		index:  idx,
		topK:   topK,
		log:    log.With("component", "orchestrator"),
	}
}

// ConsultationInput is one consultation turn.
type ConsultationInput struct {
	UserID          int64
	Question        string
	PropertyContext string
}

// EventCallback receives stream events. Returning an error abandons the run.
type EventCallback func(event model.StreamEvent) error

var stageMessages = map[string][2]string{
	model.StageProfiling:   {"사용자 정보를 분석하고 있습니다...", "사용자 정보 분석 완료"},
	model.StageSearch:      {"관련 정책을 검색하고 있습니다...", "정책 검색 완료"},
	model.StageEligibility: {"신청 자격을 확인하고 있습니다...", "자격 확인 완료"},
	model.StageRanking:     {"정책 우선순위를 계산하고 있습니다...", "우선순위 계산 완료"},
	model.StageStrategy:    {"신청 전략을 세우고 있습니다...", "신청 전략 수립 완료"},
	model.StageSynthesis:   {"답변을 작성하고 있습니다...", "답변 작성 완료"},
}

// stagePanic is a recovered panic inside a stage.
type stagePanic struct {
	value interface{}
}

func (p *stagePanic) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// consultation is the working set of a single Run.
type consultation struct {
	o       *Orchestrator
	ctx     context.Context
	state   *model.ConsultationState
	onEvent EventCallback
	sinkErr error
	log     *logger.Logger
}

// Run executes the pipeline. Stage failures are recorded in AgentErrors and
// never stop the sequence; only a synthesis failure leaves Success false.
// With onEvent set, status events are emitted around every stage and the
// answer is streamed as content events.
func (o *Orchestrator) Run(ctx context.Context, in ConsultationInput, onEvent EventCallback) *model.ConsultationState {
	state := &model.ConsultationState{
		SessionID:       uuid.NewString(),
		UserID:          in.UserID,
		Question:        in.Question,
		PropertyContext: in.PropertyContext,
		Policies:        []model.PolicyRecord{},
		AgentErrors:     []model.AgentError{},
		ExecutionLog:    []string{},
	}
	c := &consultation{
		o:       o,
		ctx:     ctx,
		state:   state,
		onEvent: onEvent,
		log:     o.log.With("session_id", state.SessionID, "user_id", in.UserID),
	}
	start := time.Now()

	c.profile()
	c.search()
	c.checkEligibility()
	if c.aborted() {
		return state
	}

	if !state.Eligibility.HasApplicable() {
		state.Ranking = agent.EmptyRanking()
		state.ExecutionLog = append(state.ExecutionLog, "신청 가능한 정책이 없어 순위 산정과 전략 수립을 건너뜀")
		c.synthesize(true)
		c.log.Info("Consultation finished without applicable policies",
			"took_ms", time.Since(start).Milliseconds(), "errors", len(state.AgentErrors))
		return state
	}

	c.rank()
	c.plan()
	if c.aborted() {
		return state
	}
	c.synthesize(false)

	c.log.Info("Consultation finished",
		"took_ms", time.Since(start).Milliseconds(),
		"policies", len(state.Policies),
		"ranked", len(state.Ranking.RankedPolicies),
		"errors", len(state.AgentErrors),
		"success", state.Success,
	)
	return state
}

func (c *consultation) profile() {
	s := c.state
	s.Profiling = model.ProfilingResult{
		MissingFields:      model.UserProfile{}.MissingFields(),
		SuggestedQuestions: []string{},
	}
	c.runStage(model.StageProfiling, func() (string, error) {
		res, err := c.o.stages.Profiler.Extract(c.ctx, s.UserID, s.Question, s.PropertyContext)
		s.Profiling = res
		return fmt.Sprintf("프로필 완성도 %.0f%%", res.Confidence*100), err
	})
	s.Profile = s.Profiling.Profile
}

func (c *consultation) search() {
	s := c.state
	c.runStage(model.StageSearch, func() (string, error) {
		if c.o.index == nil {
			return "검색 인덱스 없음", nil
		}
		results, err := c.o.index.Search(c.ctx, s.Question, c.o.topK)
		if err != nil {
			return "", fmt.Errorf("policy search failed: %w", err)
		}
		if results != nil {
			s.Policies = results
		}
		return fmt.Sprintf("관련 정책 %d건", len(s.Policies)), nil
	})
}

func (c *consultation) checkEligibility() {
	s := c.state
	s.Eligibility = agent.FallbackEligibility(s.Policies, fmt.Errorf("eligibility check did not complete"))
	c.runStage(model.StageEligibility, func() (string, error) {
		res, err := c.o.stages.Eligibility.Check(c.ctx, s.Profile, s.Policies, s.Question)
		s.Eligibility = res
		return fmt.Sprintf("충족 %d건, 일부 충족 %d건, 미충족 %d건",
			len(res.Eligible), len(res.PartiallyEligible), len(res.Ineligible)), err
	})
}

func (c *consultation) rank() {
	s := c.state
	applicable := s.Eligibility.Applicable()
	s.Ranking = agent.FallbackRanking(applicable, fmt.Errorf("ranking did not complete"))
	c.runStage(model.StageRanking, func() (string, error) {
		res, err := c.o.stages.Ranker.Rank(c.ctx, s.Profile, applicable, s.Question, s.PropertyContext)
		s.Ranking = res
		return fmt.Sprintf("%d개 정책 순위 산정", len(res.RankedPolicies)), err
	})
}

func (c *consultation) plan() {
	s := c.state
	s.Strategy = agent.FallbackStrategy(fmt.Errorf("strategy did not complete"))
	c.runStage(model.StageStrategy, func() (string, error) {
		res, err := c.o.stages.Strategist.Plan(c.ctx, s.Profile, s.Ranking.RankedPolicies, s.Question)
		s.Strategy = res
		return fmt.Sprintf("타임라인 %d단계, 체크리스트 %d건", len(res.Timeline), len(res.ExecutionChecklist)), err
	})
}

func (c *consultation) synthesize(degraded bool) {
	s := c.state
	in := model.SynthesisInput{
		Question:    s.Question,
		Profile:     s.Profile,
		Profiling:   s.Profiling,
		Policies:    s.Policies,
		Eligibility: s.Eligibility,
		Ranking:     s.Ranking,
		Strategy:    s.Strategy,
		Degraded:    degraded,
	}

	err := c.runStage(model.StageSynthesis, func() (string, error) {
		if c.onEvent == nil {
			answer, err := c.o.stages.Synthesizer.Synthesize(c.ctx, in)
			s.FinalAnswer = answer
			return fmt.Sprintf("답변 %d자", utf8.RuneCountInString(answer)), err
		}

		var streamed []rune
		err := c.o.stages.Synthesizer.SynthesizeStream(c.ctx, in, func(chunk string) error {
			streamed = append(streamed, []rune(chunk)...)
			return c.emit(model.StreamEvent{Type: model.EventContent, Message: chunk})
		})
		s.FinalAnswer = string(streamed)
		return fmt.Sprintf("답변 %d자 스트리밍", len(streamed)), err
	})

	s.Success = err == nil
	if err == nil {
		return
	}
	var panicked *stagePanic
	if errors.As(err, &panicked) || s.FinalAnswer == "" {
		s.FinalAnswer = agent.FallbackAnswer(err)
		if c.onEvent != nil {
			_ = c.emit(model.StreamEvent{Type: model.EventContent, Message: s.FinalAnswer})
		}
	}
}

// runStage runs fn as one named stage. Panics are recovered and treated as
// stage errors. The returned summary goes to the execution log.
func (c *consultation) runStage(name string, fn func() (string, error)) (err error) {
	if c.aborted() {
		return c.sinkErr
	}
	msgs := stageMessages[name]
	if err := c.emit(model.StreamEvent{Type: model.EventStatus, Agent: name, Message: msgs[0]}); err != nil {
		return err
	}

	start := time.Now()
	var summary string
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = &stagePanic{value: rec}
				c.log.Error("Stage panicked", "stage", name, "panic", rec)
			}
		}()
		summary, err = fn()
	}()
	took := time.Since(start)
	metrics.ObserveStage(name, start)

	if err != nil {
		metrics.StageErrors.WithLabelValues(name).Inc()
		c.state.AgentErrors = append(c.state.AgentErrors, model.AgentError{Agent: name, Error: err.Error()})
		c.state.ExecutionLog = append(c.state.ExecutionLog,
			fmt.Sprintf("%s: 오류 발생, 기본값으로 계속 진행 (%dms)", name, took.Milliseconds()))
		c.log.Warn("Stage failed, continuing with fallback", "stage", name, "error", err, "took_ms", took.Milliseconds())
		_ = c.emit(model.StreamEvent{Type: model.EventStatus, Agent: name, Message: msgs[1], Complete: true, Warning: true})
		return err
	}

	c.state.ExecutionLog = append(c.state.ExecutionLog, fmt.Sprintf("%s: %s (%dms)", name, summary, took.Milliseconds()))
	c.log.Debug("Stage completed", "stage", name, "took_ms", took.Milliseconds())
	_ = c.emit(model.StreamEvent{Type: model.EventStatus, Agent: name, Message: msgs[1], Complete: true})
	return nil
}

// emit forwards an event; the first sink failure disables further events.
func (c *consultation) emit(ev model.StreamEvent) error {
	if c.onEvent == nil {
		return nil
	}
	if c.sinkErr != nil {
		return c.sinkErr
	}
	if err := c.onEvent(ev); err != nil {
		c.sinkErr = err
		c.log.Warn("Stream consumer gone, abandoning consultation", "error", err)
		return err
	}
	return nil
}

func (c *consultation) aborted() bool {
	return c.sinkErr != nil
}
