// Package worker provides async analysis processing off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/engine"
	"github.com/kestrelhq/kestrel/internal/ingest"
	"github.com/kestrelhq/kestrel/internal/rules"
)

// Worker consumes analysis requests from the EventBus, runs the
// detection pipeline and persists the results.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *engine.Engine
	alerts *rules.Engine

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// AnalysisMessage is the payload on the analysis-requested topic.
type AnalysisMessage struct {
	AnalysisID string `json:"analysisId"`
	FilePath   string `json:"filePath"`
}

// CompletedMessage is the payload published when a run finishes.
type CompletedMessage struct {
	AnalysisID      string `json:"analysisId"`
	RingCount       int    `json:"ringCount"`
	SuspiciousCount int    `json:"suspiciousCount"`
	AlertCount      int    `json:"alertCount"`
}

// FailedMessage is the payload published when a run fails.
type FailedMessage struct {
	AnalysisID string `json:"analysisId"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// NewWorker creates an async analysis worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, eng *engine.Engine, alerts *rules.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: eng,
		alerts: alerts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the analysis-requested topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAnalysisRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("analysis worker started", "topic", domain.TopicAnalysisRequested)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req AnalysisMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	return w.Process(ctx, req.AnalysisID, req.FilePath)
}

// Process runs one analysis end to end: ingest, pipeline, persist,
// alert evaluation, completion event. Fatal errors mark the analysis
// failed and publish to the failed topic.
func (w *Worker) Process(ctx context.Context, analysisID, filePath string) error {
	start := time.Now()

	slog.Info("processing analysis",
		"analysis_id", analysisID,
		"file", filePath,
	)

	w.setStatus(ctx, analysisID, filePath, domain.AnalysisRunning, nil)

	txs, err := ingest.LoadFile(filePath)
	if err != nil {
		stageErr := domain.NewStageError(domain.StageIngest, time.Since(start), err)
		w.fail(ctx, analysisID, filePath, stageErr)
		return stageErr
	}

	result, err := w.engine.Run(ctx, txs)
	if err != nil {
		w.fail(ctx, analysisID, filePath, err)
		return err
	}

	if err := w.repo.SaveTransactions(ctx, analysisID, txs); err != nil {
		slog.Error("failed to save transactions",
			"analysis_id", analysisID,
			"error", err,
		)
	}
	if err := w.repo.SaveReport(ctx, analysisID, result.Report); err != nil {
		stageErr := domain.NewStageError(domain.StageAggregation, time.Since(start), err)
		w.fail(ctx, analysisID, filePath, stageErr)
		return stageErr
	}

	var alerts []domain.Alert
	if w.alerts != nil && w.alerts.RulesCount() > 0 {
		alerts = w.alerts.EvaluateAccounts(analysisID, result.Accounts, result.Metrics)
		if len(alerts) > 0 {
			if err := w.repo.SaveAlerts(ctx, alerts); err != nil {
				slog.Error("failed to save alerts",
					"analysis_id", analysisID,
					"error", err,
				)
			}
			payload, _ := json.Marshal(alerts)
			if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
				slog.Error("failed to publish alerts",
					"analysis_id", analysisID,
					"error", err,
				)
			}
		}
	}

	w.setStatus(ctx, analysisID, filePath, domain.AnalysisCompleted, result)

	payload, _ := json.Marshal(CompletedMessage{
		AnalysisID:      analysisID,
		RingCount:       len(result.Rings),
		SuspiciousCount: len(result.Accounts),
		AlertCount:      len(alerts),
	})
	if err := w.bus.Publish(ctx, domain.TopicAnalysisCompleted, payload); err != nil {
		slog.Error("failed to publish completion",
			"analysis_id", analysisID,
			"error", err,
		)
	}

	slog.Info("analysis processed",
		"analysis_id", analysisID,
		"rings", len(result.Rings),
		"suspicious_accounts", len(result.Accounts),
		"alerts", len(alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

func (w *Worker) setStatus(ctx context.Context, analysisID, filePath, status string, result *engine.Result) {
	a := &domain.Analysis{
		ID:         analysisID,
		Status:     status,
		SourceFile: filePath,
		CreatedAt:  time.Now().UTC(),
	}
	if result != nil {
		a.TransactionCount = result.Graph.TransactionCount()
		a.AccountCount = result.Graph.NodeCount()
		a.RingCount = len(result.Rings)
		a.SuspiciousCount = len(result.Accounts)
		a.CompletedAt = time.Now().UTC()
	}

	if err := w.repo.SaveAnalysis(ctx, a); err != nil {
		slog.Error("failed to save analysis status",
			"analysis_id", analysisID,
			"status", status,
			"error", err,
		)
	}
}

func (w *Worker) fail(ctx context.Context, analysisID, filePath string, err error) {
	stage := "unknown"
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}

	slog.Error("analysis failed",
		"analysis_id", analysisID,
		"stage", stage,
		"error", err,
	)

	a := &domain.Analysis{
		ID:          analysisID,
		Status:      domain.AnalysisFailed,
		SourceFile:  filePath,
		Error:       err.Error(),
		CreatedAt:   time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
	}
	if saveErr := w.repo.SaveAnalysis(ctx, a); saveErr != nil {
		slog.Error("failed to save failed analysis",
			"analysis_id", analysisID,
			"error", saveErr,
		)
	}

	payload, _ := json.Marshal(FailedMessage{
		AnalysisID: analysisID,
		Stage:      stage,
		Error:      err.Error(),
	})
	if pubErr := w.bus.Publish(ctx, domain.TopicAnalysisFailed, payload); pubErr != nil {
		slog.Error("failed to publish failure",
			"analysis_id", analysisID,
			"error", pubErr,
		)
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("analysis worker stopped")
	return nil
}
