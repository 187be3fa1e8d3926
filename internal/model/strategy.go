package model

// StrategyPlan is the execution plan for the ranked policies
type StrategyPlan struct {
	ExecutionTracks    ExecutionTracks    `json:"execution_tracks"`
	Timeline           []Phase            `json:"timeline"`
	DocumentChecklist  []DocumentItem     `json:"document_checklist"`
	RiskTable          []Risk             `json:"risk_table"`
	MonthlyPlan        []Milestone        `json:"monthly_plan"`
	CriticalDeadlines  []CriticalDeadline `json:"critical_deadlines"`
	CostBreakdown      CostBreakdown      `json:"cost_breakdown"`
	ExecutionChecklist []PolicyChecklist  `json:"execution_checklist"`
	SuccessMetrics     SuccessMetrics     `json:"success_metrics"`
	Error              string             `json:"error,omitempty"`
}

// ExecutionTracks groups the primary and backup plans
type ExecutionTracks struct {
	Primary []Track `json:"primary"`
	Backup  []Track `json:"backup"`
}

// Track is one line of execution
type Track struct {
	Name      string   `json:"name"`
	Policies  []string `json:"policies"`
	Rationale string   `json:"rationale"`
}

// Phase is one period on the timeline
type Phase struct {
	Name    string   `json:"name"`
	Period  string   `json:"period"`
	Actions []Action `json:"actions"`
}

// Action is a dated, prioritized task
type Action struct {
	Task     string `json:"task"`
	Deadline string `json:"deadline"`
	Priority string `json:"priority"`
	Policy   string `json:"policy,omitempty"`
}

// DocumentItem is one entry on the document checklist
type DocumentItem struct {
	Document string   `json:"document"`
	IssuedBy string   `json:"issued_by"`
	Policies []string `json:"policies,omitempty"`
}

// Risk is one row of the risk table
type Risk struct {
	Risk       string `json:"risk"`
	Likelihood string `json:"likelihood"`
	Mitigation string `json:"mitigation"`
}

// Milestone is a monthly goal
type Milestone struct {
	Month string `json:"month"`
	Goal  string `json:"goal"`
}

// CriticalDeadline is a lookup-table deadline for a policy
type CriticalDeadline struct {
	Policy   string `json:"policy"`
	Deadline string `json:"deadline"`
	ActBy    string `json:"act_by"`
	Note     string `json:"note"`
}

// CostItem is a single cost line
type CostItem struct {
	Item   string `json:"item"`
	Amount int64  `json:"amount"`
}

// CostCategory is a subtotaled group of cost items
type CostCategory struct {
	Items    []CostItem `json:"items"`
	Subtotal int64      `json:"subtotal"`
}

// CostBreakdown totals the cost of executing the plan
type CostBreakdown struct {
	DocumentPreparation CostCategory `json:"document_preparation"`
	ApplicationFees     CostCategory `json:"application_fees"`
	OpportunityCosts    CostCategory `json:"opportunity_costs"`
	Total               int64        `json:"total"`
	UserBudgetImpact    string       `json:"user_budget_impact"`
}

// PolicyChecklist is the fixed step list for one ranked policy
type PolicyChecklist struct {
	Policy string          `json:"policy"`
	Steps  []ChecklistStep `json:"steps"`
}

// ChecklistStep is a single checklist task
type ChecklistStep struct {
	Step int    `json:"step"`
	Task string `json:"task"`
	Done bool   `json:"done"`
}

// SuccessMetrics are the fixed quantitative and qualitative goals
type SuccessMetrics struct {
	Quantitative []string `json:"quantitative"`
	Qualitative  []string `json:"qualitative"`
}
