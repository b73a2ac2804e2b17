package domain

import "time"

// Analysis status values.
const (
	AnalysisPending   = "pending"
	AnalysisRunning   = "running"
	AnalysisCompleted = "completed"
	AnalysisFailed    = "failed"
)

// Analysis is the record of one detection run over one uploaded
// ledger. The engine itself is stateless per invocation; this record
// is how the outer service remembers what it has processed.
type Analysis struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	SourceFile       string    `json:"sourceFile,omitempty"`
	TransactionCount int       `json:"transactionCount"`
	AccountCount     int       `json:"accountCount"`
	RingCount        int       `json:"ringCount"`
	SuspiciousCount  int       `json:"suspiciousCount"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	CompletedAt      time.Time `json:"completedAt,omitempty"`
}
