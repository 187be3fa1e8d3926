package model

// Chat paths, reported in responses and metrics
const (
	PathGreeting   = "greeting"
	PathGeneral    = "general"
	PathRAG        = "rag"
	PathMultiAgent = "multi_agent"
)

// ChatRequest represents a chat request
type ChatRequest struct {
	Message       string `json:"message" binding:"required"`
	UserID        int64  `json:"user_id" binding:"required"`
	UseMultiAgent *bool  `json:"use_multi_agent,omitempty"`
}

// MultiAgent reports whether the full pipeline was requested (default true).
func (r ChatRequest) MultiAgent() bool {
	return r.UseMultiAgent == nil || *r.UseMultiAgent
}

// StreamRequest represents a streaming chat request
type StreamRequest struct {
	Message string `json:"message" binding:"required"`
	UserID  int64  `json:"user_id" binding:"required"`
}

// PolicySummary is the per-policy view returned to the client
type PolicySummary struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Organization    string  `json:"organization,omitempty"`
	Category        string  `json:"category,omitempty"`
	Region          string  `json:"region,omitempty"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`
	Rank            int     `json:"rank,omitempty"`
	TotalScore      float64 `json:"total_score,omitempty"`
	Recommendation  string  `json:"recommendation,omitempty"`
}

// ChatMetadata counts what each stage produced
type ChatMetadata struct {
	PoliciesFound    int `json:"policies_found"`
	EligiblePolicies int `json:"eligible_policies"`
	RankedPolicies   int `json:"ranked_policies"`
}

// ChatResponse represents a chat response
type ChatResponse struct {
	Answer       string          `json:"answer"`
	Policies     []PolicySummary `json:"policies"`
	Metadata     ChatMetadata    `json:"metadata"`
	ExecutionLog []string        `json:"execution_log"`
	AgentErrors  []AgentError    `json:"agent_errors,omitempty"`
	Success      bool            `json:"success"`
	SessionID    string          `json:"session_id,omitempty"`
	Path         string          `json:"path"`
}

// Stream event types
const (
	EventStatus  = "status"
	EventContent = "content"
	EventError   = "error"
)

// StreamEvent is one newline-delimited JSON object of a chat stream
type StreamEvent struct {
	Type     string `json:"type"`
	Agent    string `json:"agent,omitempty"`
	Message  string `json:"message"`
	Complete bool   `json:"complete,omitempty"`
	Warning  bool   `json:"warning,omitempty"`
}

// ProfileResponse is the profile view with derived fields
type ProfileResponse struct {
	UserID        int64       `json:"user_id"`
	Profile       UserProfile `json:"profile"`
	Completeness  float64     `json:"completeness"`
	MissingFields []string    `json:"missing_fields"`
}

// ReindexResponse reports an index rebuild
type ReindexResponse struct {
	Rebuilt    bool  `json:"rebuilt"`
	Indexed    int   `json:"indexed"`
	SourceSize int   `json:"source_size"`
	Took       int64 `json:"took_ms"`
}
