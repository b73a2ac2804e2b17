package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetAnalysis", func(t *testing.T) {
		a := &domain.Analysis{
			ID:         "analysis-001",
			Status:     domain.AnalysisPending,
			SourceFile: "ledger.csv",
			CreatedAt:  time.Now().UTC(),
		}
		if err := repo.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}

		got, err := repo.GetAnalysis(ctx, "analysis-001")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if got.Status != domain.AnalysisPending || got.SourceFile != "ledger.csv" {
			t.Errorf("unexpected analysis: %+v", got)
		}
		if !got.CompletedAt.IsZero() {
			t.Errorf("pending analysis must have zero CompletedAt, got %v", got.CompletedAt)
		}
	})

	t.Run("UpdateAnalysisStatus", func(t *testing.T) {
		a := &domain.Analysis{
			ID:               "analysis-001",
			Status:           domain.AnalysisCompleted,
			SourceFile:       "ledger.csv",
			TransactionCount: 250,
			AccountCount:     40,
			RingCount:        3,
			SuspiciousCount:  9,
			CreatedAt:        time.Now().UTC(),
			CompletedAt:      time.Now().UTC(),
		}
		if err := repo.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("SaveAnalysis upsert failed: %v", err)
		}

		got, err := repo.GetAnalysis(ctx, "analysis-001")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if got.Status != domain.AnalysisCompleted || got.RingCount != 3 {
			t.Errorf("upsert did not apply: %+v", got)
		}
		if got.CompletedAt.IsZero() {
			t.Error("expected CompletedAt to be set")
		}
	})

	t.Run("GetAnalysisNotFound", func(t *testing.T) {
		if _, err := repo.GetAnalysis(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListAnalyses", func(t *testing.T) {
		analyses, err := repo.ListAnalyses(ctx, 10)
		if err != nil {
			t.Fatalf("ListAnalyses failed: %v", err)
		}
		if len(analyses) != 1 {
			t.Errorf("expected 1 analysis, got %d", len(analyses))
		}
	})

	t.Run("SaveAndGetReport", func(t *testing.T) {
		rep := &domain.Report{
			SuspiciousAccounts: []domain.ScoredAccount{
				{AccountID: "A", SuspicionScore: 86, DetectedPatterns: []string{"cycle_length_3"}, RingIDs: []string{"RING_C_001"}},
			},
			FraudRings: []domain.RingSummary{
				{RingID: "RING_C_001", MemberAccounts: []string{"A", "B", "C"}, PatternType: domain.PatternCycle, RiskScore: 86},
			},
			Summary: domain.Summary{TotalAccountsAnalyzed: 3, FraudRingsDetected: 1, SuspiciousAccountsFlagged: 1},
		}
		if err := repo.SaveReport(ctx, "analysis-001", rep); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		got, err := repo.GetReport(ctx, "analysis-001")
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if len(got.FraudRings) != 1 || got.FraudRings[0].RingID != "RING_C_001" {
			t.Errorf("unexpected report rings: %+v", got.FraudRings)
		}
		if got.Summary.TotalAccountsAnalyzed != 3 {
			t.Errorf("unexpected summary: %+v", got.Summary)
		}
	})

	t.Run("SaveAndCountTransactions", func(t *testing.T) {
		txs := []domain.Transaction{
			{ID: "t1", Sender: "A", Receiver: "B", Amount: 100, Timestamp: time.Now().UTC()},
			{ID: "t2", Sender: "B", Receiver: "C", Amount: 200, Timestamp: time.Now().UTC()},
		}
		if err := repo.SaveTransactions(ctx, "analysis-001", txs); err != nil {
			t.Fatalf("SaveTransactions failed: %v", err)
		}

		count, err := repo.CountTransactions(ctx, "analysis-001")
		if err != nil {
			t.Fatalf("CountTransactions failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 transactions, got %d", count)
		}

		stored, err := repo.ListTransactions(ctx, "analysis-001")
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("expected 2 stored transactions, got %d", len(stored))
		}
		if stored[0].Sender != "A" || stored[1].Receiver != "C" {
			t.Errorf("unexpected transactions: %+v", stored)
		}
	})

	t.Run("AlertRuleCRUD", func(t *testing.T) {
		rule := &domain.AlertRule{
			ID:         "rule-001",
			Name:       "High score",
			Expression: "suspicion_score >= 90.0",
			Severity:   domain.SeverityCritical,
			Enabled:    true,
		}
		if err := repo.SaveAlertRule(ctx, rule); err != nil {
			t.Fatalf("SaveAlertRule failed: %v", err)
		}

		got, err := repo.GetAlertRule(ctx, "rule-001")
		if err != nil {
			t.Fatalf("GetAlertRule failed: %v", err)
		}
		if got.Expression != rule.Expression || !got.Enabled {
			t.Errorf("unexpected rule: %+v", got)
		}

		rule.Enabled = false
		if err := repo.SaveAlertRule(ctx, rule); err != nil {
			t.Fatalf("SaveAlertRule upsert failed: %v", err)
		}
		got, _ = repo.GetAlertRule(ctx, "rule-001")
		if got.Enabled {
			t.Error("upsert should have disabled the rule")
		}

		rules, err := repo.ListAlertRules(ctx)
		if err != nil {
			t.Fatalf("ListAlertRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Errorf("expected 1 rule, got %d", len(rules))
		}

		if err := repo.DeleteAlertRule(ctx, "rule-001"); err != nil {
			t.Fatalf("DeleteAlertRule failed: %v", err)
		}
		if err := repo.DeleteAlertRule(ctx, "rule-001"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound on double delete, got %v", err)
		}
	})

	t.Run("SaveAndListAlerts", func(t *testing.T) {
		alerts := []domain.Alert{
			{ID: "al-1", AnalysisID: "analysis-001", RuleID: "r1", RuleName: "High score",
				AccountID: "A", SuspicionScore: 95, Severity: domain.SeverityCritical, CreatedAt: time.Now().UTC()},
			{ID: "al-2", AnalysisID: "analysis-001", RuleID: "r1", RuleName: "High score",
				AccountID: "B", SuspicionScore: 91, Severity: domain.SeverityCritical, CreatedAt: time.Now().UTC()},
		}
		if err := repo.SaveAlerts(ctx, alerts); err != nil {
			t.Fatalf("SaveAlerts failed: %v", err)
		}

		got, err := repo.ListAlerts(ctx, "analysis-001")
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 alerts, got %d", len(got))
		}
		if got[0].AccountID != "A" {
			t.Errorf("expected highest score first, got %+v", got[0])
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if err := repo.SaveAnalysis(ctx, &domain.Analysis{}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.SaveReport(ctx, "", nil); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
