package domain

// AccountMetrics holds per-account degree and volume statistics
// derived once from the transaction graph. Pure output of the metrics
// pass; never mutated afterward.
type AccountMetrics struct {
	AccountID       string  `json:"account_id"`
	InDegree        int     `json:"in_degree"`
	OutDegree       int     `json:"out_degree"`
	UniqueSenders   int     `json:"unique_senders"`
	UniqueReceivers int     `json:"unique_receivers"`
	TotalReceived   float64 `json:"total_received"`
	TotalSent       float64 `json:"total_sent"`
	NetFlow         float64 `json:"net_flow"`
}

// TotalDegree is in-degree plus out-degree.
func (m *AccountMetrics) TotalDegree() int {
	return m.InDegree + m.OutDegree
}

// ScoredAccount is one flagged account in the final report, derived
// entirely from ring membership plus metrics and recomputed from
// scratch each run.
type ScoredAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   float64  `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	RingIDs          []string `json:"ring_ids"`
}
