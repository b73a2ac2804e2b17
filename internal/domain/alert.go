package domain

import "time"

// AlertRule is an operator-defined CEL expression evaluated against
// every scored account after an analysis completes. The expression
// must return a bool; accounts it matches produce one Alert each.
//
// Available variables: account_id, suspicion_score, patterns,
// ring_count, in_degree, out_degree, total_received, total_sent.
type AlertRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	Severity    string    `json:"severity"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one rule match for one account in one analysis.
type Alert struct {
	ID             string    `json:"id"`
	AnalysisID     string    `json:"analysisId"`
	RuleID         string    `json:"ruleId"`
	RuleName       string    `json:"ruleName"`
	AccountID      string    `json:"accountId"`
	SuspicionScore float64   `json:"suspicionScore"`
	Severity       string    `json:"severity"`
	CreatedAt      time.Time `json:"createdAt"`
}
