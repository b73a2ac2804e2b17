package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/graph"
	"github.com/kestrelhq/kestrel/internal/report"
	"github.com/kestrelhq/kestrel/internal/rules"
	"github.com/kestrelhq/kestrel/internal/worker"
)

// reportCacheTTL bounds how long finished reports stay cached.
const reportCacheTTL = 10 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	runner      *worker.Worker
	alertEngine *rules.Engine
	upload      domain.UploadConfig
	version     string
}

// NewHandler creates a new API handler. The runner executes the
// detection pipeline; with AsyncWorker enabled uploads are queued on
// the bus instead of processed inline.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, runner *worker.Worker, alertEngine *rules.Engine, upload domain.UploadConfig, version string) *Handler {
	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		runner:      runner,
		alertEngine: alertEngine,
		upload:      upload,
		version:     version,
	}
}

// UploadResponse is the response for POST /upload.
type UploadResponse struct {
	AnalysisID string         `json:"analysisId"`
	Status     string         `json:"status"`
	Report     *domain.Report `json:"report,omitempty"`
}

// Upload handles POST /upload: accepts a multipart transaction CSV,
// stores it, and either runs the analysis inline or queues it for the
// async worker.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxSizeMB<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "multipart field 'file' is required",
		})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "only CSV files are accepted",
		})
		return
	}

	analysisID := uuid.New().String()

	if err := os.MkdirAll(h.upload.Dir, 0o755); err != nil {
		slog.Error("failed to create upload directory", "dir", h.upload.Dir, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store upload",
		})
		return
	}

	path := filepath.Join(h.upload.Dir, analysisID+".csv")
	dst, err := os.Create(path)
	if err != nil {
		slog.Error("failed to create upload file", "path", path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store upload",
		})
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		slog.Error("failed to write upload file", "path", path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store upload",
		})
		return
	}
	dst.Close()

	if err := h.repo.SaveAnalysis(ctx, &domain.Analysis{
		ID:         analysisID,
		Status:     domain.AnalysisPending,
		SourceFile: path,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		slog.Error("failed to save analysis record", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record analysis",
		})
		return
	}

	if h.upload.AsyncWorker {
		payload, _ := json.Marshal(worker.AnalysisMessage{
			AnalysisID: analysisID,
			FilePath:   path,
		})
		if err := h.bus.Publish(ctx, domain.TopicAnalysisRequested, payload); err != nil {
			slog.Error("failed to queue analysis", "analysis_id", analysisID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to queue analysis",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, UploadResponse{
			AnalysisID: analysisID,
			Status:     domain.AnalysisPending,
		})
		return
	}

	h.runAndRespond(w, r, analysisID, path)
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	AnalysisID string `json:"analysisId,omitempty"`
	FilePath   string `json:"filePath"`
}

// Analyze handles POST /analyze: runs the pipeline synchronously over
// a server-side CSV file.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.FilePath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "filePath is required",
		})
		return
	}

	analysisID := req.AnalysisID
	if analysisID == "" {
		analysisID = uuid.New().String()
	}

	h.runAndRespond(w, r, analysisID, req.FilePath)
}

func (h *Handler) runAndRespond(w http.ResponseWriter, r *http.Request, analysisID, path string) {
	ctx := r.Context()

	if err := h.runner.Process(ctx, analysisID, path); err != nil {
		status := http.StatusInternalServerError
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) && stageErr.Stage == domain.StageIngest {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{
			"analysisId": analysisID,
			"error":      err.Error(),
		})
		return
	}

	rep, err := h.repo.GetReport(ctx, analysisID)
	if err != nil {
		slog.Error("failed to load finished report", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis completed but report could not be loaded",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, analysisID, rep, reportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "analysis_id", analysisID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		AnalysisID: analysisID,
		Status:     domain.AnalysisCompleted,
		Report:     rep,
	})
}

// getReport fetches a report through the cache.
func (h *Handler) getReport(r *http.Request, analysisID string) (*domain.Report, error) {
	ctx := r.Context()

	if h.cache != nil {
		if rep, err := h.cache.GetReport(ctx, analysisID); err == nil && rep != nil {
			return rep, nil
		}
	}

	rep, err := h.repo.GetReport(ctx, analysisID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, analysisID, rep, reportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "analysis_id", analysisID, "error", err)
		}
	}
	return rep, nil
}

// GetResults handles GET /results/{id}: returns the analysis report.
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	analysisID := chi.URLParam(r, "id")
	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	rep, err := h.getReport(r, analysisID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "report not found",
			})
			return
		}
		slog.Error("failed to get report", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load report",
		})
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// GetVisualization handles GET /visualization/{id}: returns the
// node/edge network view, rebuilt from the stored transactions.
func (h *Handler) GetVisualization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analysisID := chi.URLParam(r, "id")
	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	rep, err := h.getReport(r, analysisID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "report not found",
			})
			return
		}
		slog.Error("failed to get report", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load report",
		})
		return
	}

	txs, err := h.repo.ListTransactions(ctx, analysisID)
	if err != nil {
		slog.Error("failed to load transactions", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load transactions",
		})
		return
	}
	if len(txs) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no transactions stored for analysis",
		})
		return
	}

	view := report.NetworkView(graph.Build(txs), rep)
	writeJSON(w, http.StatusOK, view)
}

// DownloadJSON handles GET /download-json/{id}: returns the report as
// a file attachment.
func (h *Handler) DownloadJSON(w http.ResponseWriter, r *http.Request) {
	analysisID := chi.URLParam(r, "id")
	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	rep, err := h.getReport(r, analysisID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "report not found",
			})
			return
		}
		slog.Error("failed to get report", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load report",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "fraud_analysis_"+analysisID+".json"))
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(rep)
}

// ListAnalyses handles GET /analyses.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	analyses, err := h.repo.ListAnalyses(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list analyses", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}
	if analyses == nil {
		analyses = []*domain.Analysis{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// GetAnalysis handles GET /analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysisID := chi.URLParam(r, "id")

	a, err := h.repo.GetAnalysis(r.Context(), analysisID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "analysis not found",
			})
			return
		}
		slog.Error("failed to get analysis", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListAnalysisAlerts handles GET /analyses/{id}/alerts.
func (h *Handler) ListAnalysisAlerts(w http.ResponseWriter, r *http.Request) {
	analysisID := chi.URLParam(r, "id")

	alerts, err := h.repo.ListAlerts(r.Context(), analysisID)
	if err != nil {
		slog.Error("failed to list alerts", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// CreateAlertRuleRequest is the request body for POST /alert-rules.
type CreateAlertRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
}

// CreateAlertRule handles POST /alert-rules: validates the CEL
// expression, persists the rule, and loads it into the engine.
func (h *Handler) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateAlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}

	rule := &domain.AlertRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    severity,
		Enabled:     req.Enabled,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := h.alertEngine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveAlertRule(ctx, rule); err != nil {
		slog.Error("failed to save alert rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	if rule.Enabled {
		if err := h.alertEngine.LoadRule(rule); err != nil {
			slog.Error("failed to load alert rule", "id", rule.ID, "error", err)
		}
	}

	slog.Info("alert rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// ListAlertRules handles GET /alert-rules.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	ruleList, err := h.repo.ListAlertRules(r.Context())
	if err != nil {
		slog.Error("failed to list alert rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}
	if ruleList == nil {
		ruleList = []*domain.AlertRule{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  ruleList,
		"count":  len(ruleList),
		"loaded": h.alertEngine.RulesCount(),
	})
}

// GetAlertRule handles GET /alert-rules/{id}.
func (h *Handler) GetAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetAlertRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get alert rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// DeleteAlertRule handles DELETE /alert-rules/{id}. The engine keeps
// the compiled rule until the next reload.
func (h *Handler) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteAlertRule(r.Context(), ruleID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete alert rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted. Call POST /alert-rules/reload to apply changes.",
	})
}

// ReloadAlertRules handles POST /alert-rules/reload: replaces the
// engine's rule set with the enabled rules from the repository.
func (h *Handler) ReloadAlertRules(w http.ResponseWriter, r *http.Request) {
	ruleList, err := h.repo.ListAlertRules(r.Context())
	if err != nil {
		slog.Error("failed to list alert rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.alertEngine.ReloadRules(ruleList); err != nil {
		slog.Error("failed to reload alert rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("alert rules reloaded", "count", h.alertEngine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.alertEngine.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
