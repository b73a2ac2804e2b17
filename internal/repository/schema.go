package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    source_file TEXT,
    transaction_count INTEGER NOT NULL DEFAULT 0,
    account_count INTEGER NOT NULL DEFAULT 0,
    ring_count INTEGER NOT NULL DEFAULT 0,
    suspicious_count INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    created_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    analysis_id TEXT PRIMARY KEY,
    document TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    analysis_id TEXT NOT NULL,
    id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (analysis_id, id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(analysis_id, sender_id);
CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(analysis_id, receiver_id);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(enabled);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    analysis_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    rule_name TEXT NOT NULL,
    account_id TEXT NOT NULL,
    suspicion_score REAL NOT NULL,
    severity TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_analysis ON alerts(analysis_id);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(analysis_id, severity);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAnalyses,
		schemaReports,
		schemaTransactions,
		schemaAlertRules,
		schemaAlerts,
	}
}
