package domain

// RingSummary is the externally-visible shape of a ring in the report.
type RingSummary struct {
	RingID         string      `json:"ring_id"`
	MemberAccounts []string    `json:"member_accounts"`
	PatternType    PatternType `json:"pattern_type"`
	RiskScore      float64     `json:"risk_score"`
}

// Summary holds the report-level counters.
type Summary struct {
	TotalAccountsAnalyzed      int     `json:"total_accounts_analyzed"`
	TotalTransactionsProcessed int     `json:"total_transactions_processed"`
	SuspiciousAccountsFlagged  int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected         int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds      float64 `json:"processing_time_seconds"`
	DetectionTimestamp         string  `json:"detection_timestamp"`
}

// Report is the final structured output of one analysis run.
type Report struct {
	SuspiciousAccounts []ScoredAccount `json:"suspicious_accounts"`
	FraudRings         []RingSummary   `json:"fraud_rings"`
	Summary            Summary         `json:"summary"`
}

// NetworkNode is one account in the visualization view.
type NetworkNode struct {
	ID             string  `json:"id"`
	Suspicious     bool    `json:"suspicious"`
	InRing         bool    `json:"in_ring"`
	SuspicionScore float64 `json:"suspicion_score"`
	Label          string  `json:"label"`
}

// NetworkEdge is one aggregated money flow in the visualization view.
type NetworkEdge struct {
	ID          string  `json:"id"`
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Amount      float64 `json:"amount"`
	Count       int     `json:"count"`
	IsFraudEdge bool    `json:"is_fraud_edge"`
}

// NetworkView is the node/edge list consumed by the visualization
// collaborator. Computed trivially from the report plus the graph.
type NetworkView struct {
	Nodes []NetworkNode `json:"nodes"`
	Edges []NetworkEdge `json:"edges"`
}
