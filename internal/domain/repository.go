package domain

import "context"

// Repository defines the interface for data persistence: analysis
// records, their reports, raw transactions, and alert rules.
type Repository interface {
	// Analysis records.
	SaveAnalysis(ctx context.Context, a *Analysis) error
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)
	ListAnalyses(ctx context.Context, limit int) ([]*Analysis, error)

	// Reports, keyed by analysis id.
	SaveReport(ctx context.Context, analysisID string, report *Report) error
	GetReport(ctx context.Context, analysisID string) (*Report, error)

	// Raw transactions for a given analysis.
	SaveTransactions(ctx context.Context, analysisID string, txs []Transaction) error
	ListTransactions(ctx context.Context, analysisID string) ([]Transaction, error)
	CountTransactions(ctx context.Context, analysisID string) (int64, error)

	// Alert rule configuration.
	SaveAlertRule(ctx context.Context, rule *AlertRule) error
	GetAlertRule(ctx context.Context, id string) (*AlertRule, error)
	ListAlertRules(ctx context.Context) ([]*AlertRule, error)
	DeleteAlertRule(ctx context.Context, id string) error

	// Alerts produced by rule evaluation.
	SaveAlerts(ctx context.Context, alerts []Alert) error
	ListAlerts(ctx context.Context, analysisID string) ([]Alert, error)

	// Health check.
	Ping(ctx context.Context) error

	// Lifecycle.
	Close() error
}
