package model

// Pipeline stage names, used in logs, status events and agent errors.
const (
	StageProfiling   = "profiling"
	StageSearch      = "search"
	StageEligibility = "eligibility"
	StageRanking     = "ranking"
	StageStrategy    = "strategy"
	StageSynthesis   = "synthesis"
)

// ProfilingResult is the output of the profiling stage
type ProfilingResult struct {
	Profile            UserProfile `json:"profile"`
	Extracted          UserProfile `json:"extracted"`
	Confidence         float64     `json:"confidence"`
	MissingFields      []string    `json:"missing_fields"`
	SuggestedQuestions []string    `json:"suggested_questions"`
	ExtractionSuccess  bool        `json:"extraction_success"`
	Error              string      `json:"error,omitempty"`
}

// AgentError records a stage failure without aborting the request.
type AgentError struct {
	Agent string `json:"agent"`
	Error string `json:"error"`
}

// ConsultationState is the per-request working set of the orchestrator.
// It lives for one request and is never persisted.
type ConsultationState struct {
	SessionID       string            `json:"session_id"`
	UserID          int64             `json:"user_id"`
	Question        string            `json:"question"`
	Profile         UserProfile       `json:"profile"`
	PropertyContext string            `json:"property_context,omitempty"`
	Profiling       ProfilingResult   `json:"profiling"`
	Policies        []PolicyRecord    `json:"policies"`
	Eligibility     EligibilityResult `json:"eligibility"`
	Ranking         RankingResult     `json:"ranking"`
	Strategy        StrategyPlan      `json:"strategy"`
	FinalAnswer     string            `json:"final_answer"`
	AgentErrors     []AgentError      `json:"agent_errors"`
	ExecutionLog    []string          `json:"execution_log"`
	// Success is false only when synthesis itself failed.
	Success bool `json:"success"`
}

// SynthesisInput is everything the synthesis stage reads.
type SynthesisInput struct {
	Question    string
	Profile     UserProfile
	Profiling   ProfilingResult
	Policies    []PolicyRecord
	Eligibility EligibilityResult
	Ranking     RankingResult
	Strategy    StrategyPlan
	// Degraded is set when no policy was applicable and only the eligibility
	// result is meaningful.
	Degraded bool
}
