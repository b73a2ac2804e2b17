// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAnalysis inserts or updates an analysis record. Status
// transitions (pending, running, completed, failed) write through the
// same upsert.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: analysis id is required", domain.ErrInvalidInput)
	}

	var completedAt any
	if !a.CompletedAt.IsZero() {
		completedAt = a.CompletedAt
	}

	query := `
		INSERT INTO analyses (
			id, status, source_file, transaction_count, account_count,
			ring_count, suspicious_count, error, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			transaction_count = excluded.transaction_count,
			account_count = excluded.account_count,
			ring_count = excluded.ring_count,
			suspicious_count = excluded.suspicious_count,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.Status, a.SourceFile,
		a.TransactionCount, a.AccountCount,
		a.RingCount, a.SuspiciousCount,
		a.Error, a.CreatedAt, completedAt,
	)
	return err
}

// GetAnalysis retrieves an analysis record by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, id string) (*domain.Analysis, error) {
	query := `
		SELECT id, status, source_file, transaction_count, account_count,
			   ring_count, suspicious_count, error, created_at, completed_at
		FROM analyses
		WHERE id = ?
	`

	var a domain.Analysis
	var sourceFile, errMsg sql.NullString
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&a.ID, &a.Status, &sourceFile,
		&a.TransactionCount, &a.AccountCount,
		&a.RingCount, &a.SuspiciousCount,
		&errMsg, &a.CreatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.SourceFile = sourceFile.String
	a.Error = errMsg.String
	if completedAt.Valid {
		a.CompletedAt = completedAt.Time
	}
	return &a, nil
}

// ListAnalyses retrieves the most recent analyses, newest first.
func (r *SQLRepository) ListAnalyses(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, status, source_file, transaction_count, account_count,
			   ring_count, suspicious_count, error, created_at, completed_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		var sourceFile, errMsg sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(
			&a.ID, &a.Status, &sourceFile,
			&a.TransactionCount, &a.AccountCount,
			&a.RingCount, &a.SuspiciousCount,
			&errMsg, &a.CreatedAt, &completedAt,
		); err != nil {
			return nil, err
		}
		a.SourceFile = sourceFile.String
		a.Error = errMsg.String
		if completedAt.Valid {
			a.CompletedAt = completedAt.Time
		}
		analyses = append(analyses, &a)
	}
	return analyses, rows.Err()
}

// SaveReport stores the report document for an analysis as JSON.
func (r *SQLRepository) SaveReport(ctx context.Context, analysisID string, report *domain.Report) error {
	if analysisID == "" {
		return fmt.Errorf("%w: analysisID is required", domain.ErrInvalidInput)
	}

	document, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO reports (analysis_id, document, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(analysis_id) DO UPDATE SET
			document = excluded.document
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), analysisID, string(document), time.Now().UTC())
	return err
}

// GetReport loads the report document for an analysis.
func (r *SQLRepository) GetReport(ctx context.Context, analysisID string) (*domain.Report, error) {
	query := `SELECT document FROM reports WHERE analysis_id = ?`

	var document string
	err := r.db.QueryRowContext(ctx, r.rebind(query), analysisID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.Report
	if err := json.Unmarshal([]byte(document), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// SaveTransactions stores the ingested transaction set for an
// analysis in a single database transaction.
func (r *SQLRepository) SaveTransactions(ctx context.Context, analysisID string, txs []domain.Transaction) error {
	if analysisID == "" {
		return fmt.Errorf("%w: analysisID is required", domain.ErrInvalidInput)
	}
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (analysis_id, id, sender_id, receiver_id, amount, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx, analysisID, tx.ID, tx.Sender, tx.Receiver, tx.Amount, tx.Timestamp); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// ListTransactions returns the stored transactions for an analysis in
// timestamp order.
func (r *SQLRepository) ListTransactions(ctx context.Context, analysisID string) ([]domain.Transaction, error) {
	query := r.rebind(`
		SELECT id, sender_id, receiver_id, amount, timestamp
		FROM transactions
		WHERE analysis_id = ?
		ORDER BY timestamp, id
	`)

	rows, err := r.db.QueryContext(ctx, query, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.Sender, &tx.Receiver, &tx.Amount, &tx.Timestamp); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// CountTransactions returns the stored transaction count for an analysis.
func (r *SQLRepository) CountTransactions(ctx context.Context, analysisID string) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE analysis_id = ?`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), analysisID).Scan(&count)
	return count, err
}

// SaveAlertRule inserts or updates an alert rule.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, rule *domain.AlertRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO alert_rules (
			id, name, description, expression, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Expression, rule.Severity, enabled,
		now, now,
	)
	return err
}

// GetAlertRule retrieves an alert rule by ID.
func (r *SQLRepository) GetAlertRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	query := `
		SELECT id, name, description, expression, severity, enabled, created_at, updated_at
		FROM alert_rules
		WHERE id = ?
	`

	rule, err := scanAlertRule(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rule, err
}

// ListAlertRules retrieves every alert rule, enabled or not.
func (r *SQLRepository) ListAlertRules(ctx context.Context) ([]*domain.AlertRule, error) {
	query := `
		SELECT id, name, description, expression, severity, enabled, created_at, updated_at
		FROM alert_rules
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		rule, err := scanAlertRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteAlertRule removes an alert rule by ID.
func (r *SQLRepository) DeleteAlertRule(ctx context.Context, id string) error {
	query := `DELETE FROM alert_rules WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveAlerts stores the alerts produced for one analysis.
func (r *SQLRepository) SaveAlerts(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO alerts (
			id, analysis_id, rule_id, rule_name, account_id,
			suspicion_score, severity, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.AnalysisID, a.RuleID, a.RuleName, a.AccountID,
			a.SuspicionScore, a.Severity, a.CreatedAt,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// ListAlerts retrieves the alerts for an analysis, highest score first.
func (r *SQLRepository) ListAlerts(ctx context.Context, analysisID string) ([]domain.Alert, error) {
	query := `
		SELECT id, analysis_id, rule_id, rule_name, account_id,
			   suspicion_score, severity, created_at
		FROM alerts
		WHERE analysis_id = ?
		ORDER BY suspicion_score DESC, account_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(
			&a.ID, &a.AnalysisID, &a.RuleID, &a.RuleName, &a.AccountID,
			&a.SuspicionScore, &a.Severity, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlertRule(row rowScanner) (*domain.AlertRule, error) {
	var rule domain.AlertRule
	var description sql.NullString
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.Name, &description,
		&rule.Expression, &rule.Severity, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Enabled = enabled == 1
	return &rule, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
