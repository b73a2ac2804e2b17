package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/bus"
	"github.com/kestrelhq/kestrel/internal/cache"
	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/engine"
	"github.com/kestrelhq/kestrel/internal/repository"
	"github.com/kestrelhq/kestrel/internal/rules"
	"github.com/kestrelhq/kestrel/internal/worker"
)

const cycleCSV = `transaction_id,sender_id,receiver_id,amount,timestamp
TXN_000001,ACC_A,ACC_B,100.00,2024-03-01 12:00:00
TXN_000002,ACC_B,ACC_C,100.00,2024-03-01 12:01:00
TXN_000003,ACC_C,ACC_A,100.00,2024-03-01 12:02:00
`

// createTestServer wires a full server on SQLite, in-memory cache and
// the channel bus.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "kestrel.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	reportCache, err := cache.New(domain.CacheConfig{
		Type:         "memory",
		LocalMaxSize: 16,
		LocalTTL:     time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { reportCache.Close() })

	eventBus := bus.NewChannelBus(16)
	t.Cleanup(func() { eventBus.Close() })

	alertEngine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rules engine: %v", err)
	}
	t.Cleanup(func() { alertEngine.Close() })

	// The triangle ledger's nodes all have out-degree 1, below the
	// default cycle source bound.
	detectCfg := domain.DefaultDetectionConfig()
	detectCfg.MinSourceOutDegree = 1
	runner := worker.NewWorker(eventBus, repo, engine.New(detectCfg), alertEngine)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	upload := domain.UploadConfig{
		Dir:       filepath.Join(dir, "uploads"),
		MaxSizeMB: 8,
	}

	return NewServer(cfg, repo, reportCache, eventBus, runner, alertEngine, upload, "test-v1")
}

func uploadCSV(t *testing.T, server *Server, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestUploadEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SynchronousAnalysis", func(t *testing.T) {
		rr := uploadCSV(t, server, "ledger.csv", cycleCSV)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp UploadResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.AnalysisID == "" {
			t.Error("expected analysisId in response")
		}
		if resp.Status != domain.AnalysisCompleted {
			t.Errorf("status = %q, want %q", resp.Status, domain.AnalysisCompleted)
		}
		if resp.Report == nil {
			t.Fatal("expected report in response")
		}
		if len(resp.Report.FraudRings) != 1 {
			t.Errorf("fraud rings = %d, want 1", len(resp.Report.FraudRings))
		}
		if len(resp.Report.SuspiciousAccounts) != 3 {
			t.Errorf("suspicious accounts = %d, want 3", len(resp.Report.SuspiciousAccounts))
		}
	})

	t.Run("RejectsNonCSV", func(t *testing.T) {
		rr := uploadCSV(t, server, "ledger.txt", "not a csv")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsMissingFile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsEmptyLedger", func(t *testing.T) {
		rr := uploadCSV(t, server, "empty.csv", "sender_id,receiver_id,amount,timestamp\n")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestResultsEndpoints(t *testing.T) {
	server := createTestServer(t)

	rr := uploadCSV(t, server, "ledger.csv", cycleCSV)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload failed: %d: %s", rr.Code, rr.Body.String())
	}
	var uploaded UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &uploaded); err != nil {
		t.Fatalf("failed to parse upload response: %v", err)
	}
	analysisID := uploaded.AnalysisID

	t.Run("GetResults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/results/"+analysisID, nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var rep domain.Report
		if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
			t.Fatalf("failed to parse report: %v", err)
		}
		if rep.Summary.TotalTransactionsProcessed != 3 {
			t.Errorf("transactions processed = %d, want 3", rep.Summary.TotalTransactionsProcessed)
		}
		if rep.Summary.FraudRingsDetected != 1 {
			t.Errorf("rings detected = %d, want 1", rep.Summary.FraudRingsDetected)
		}
	})

	t.Run("GetResultsNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/results/missing", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("GetVisualization", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/visualization/"+analysisID, nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var view domain.NetworkView
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("failed to parse view: %v", err)
		}
		if len(view.Nodes) != 3 {
			t.Errorf("nodes = %d, want 3", len(view.Nodes))
		}
		if len(view.Edges) != 3 {
			t.Errorf("edges = %d, want 3", len(view.Edges))
		}
		for _, e := range view.Edges {
			if !e.IsFraudEdge {
				t.Errorf("edge %s->%s not marked as fraud edge", e.Source, e.Target)
			}
		}
	})

	t.Run("DownloadJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/download-json/"+analysisID, nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if cd := rec.Header().Get("Content-Disposition"); cd == "" {
			t.Error("expected Content-Disposition header")
		}
		var rep domain.Report
		if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
			t.Fatalf("download is not valid report JSON: %v", err)
		}
	})

	t.Run("GetAnalysis", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analyses/"+analysisID, nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var a domain.Analysis
		if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
			t.Fatalf("failed to parse analysis: %v", err)
		}
		if a.Status != domain.AnalysisCompleted {
			t.Errorf("status = %q, want %q", a.Status, domain.AnalysisCompleted)
		}
		if a.RingCount != 1 {
			t.Errorf("ring count = %d, want 1", a.RingCount)
		}
	})

	t.Run("ListAnalyses", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analyses", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var resp struct {
			Analyses []domain.Analysis `json:"analyses"`
			Count    int               `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("count = %d, want 1", resp.Count)
		}
	})
}

func TestAlertRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateRule", func(t *testing.T) {
		body, _ := json.Marshal(CreateAlertRuleRequest{
			ID:         "rule-critical",
			Name:       "Critical score",
			Expression: "suspicion_score >= 90.0",
			Severity:   domain.SeverityCritical,
			Enabled:    true,
		})
		req := httptest.NewRequest(http.MethodPost, "/alert-rules", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("CreateRuleInvalidExpression", func(t *testing.T) {
		body, _ := json.Marshal(CreateAlertRuleRequest{
			ID:         "rule-bad",
			Name:       "Broken",
			Expression: "suspicion_score >=",
			Enabled:    true,
		})
		req := httptest.NewRequest(http.MethodPost, "/alert-rules", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/alert-rules/rule-critical", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var rule domain.AlertRule
		if err := json.Unmarshal(rec.Body.Bytes(), &rule); err != nil {
			t.Fatalf("failed to parse rule: %v", err)
		}
		if rule.Expression != "suspicion_score >= 90.0" {
			t.Errorf("unexpected expression: %q", rule.Expression)
		}
	})

	t.Run("ListRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/alert-rules", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var resp struct {
			Rules  []domain.AlertRule `json:"rules"`
			Count  int                `json:"count"`
			Loaded int                `json:"loaded"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("count = %d, want 1", resp.Count)
		}
		if resp.Loaded != 1 {
			t.Errorf("loaded = %d, want 1", resp.Loaded)
		}
	})

	t.Run("ReloadRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/alert-rules/reload", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("DeleteRule", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/alert-rules/rule-critical", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		req = httptest.NewRequest(http.MethodDelete, "/alert-rules/rule-critical", nil)
		rec = httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on second delete, got %d", rec.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["status"] != "healthy" {
			t.Errorf("status = %q, want healthy", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("version = %q, want test-v1", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("RequestIDHeaderSet", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID response header")
		}
	})
}
