// Package engine orchestrates one complete detection run:
// graph construction, the three pattern detectors, cycle
// consolidation, suspicion scoring and report assembly.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kestrelhq/kestrel/internal/detect"
	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/graph"
	"github.com/kestrelhq/kestrel/internal/report"
	"github.com/kestrelhq/kestrel/internal/score"
)

var tracer = otel.Tracer("kestrel-engine")

// Engine runs the analysis pipeline. Stateless per invocation; a
// single Engine may serve concurrent runs.
type Engine struct {
	cfg domain.DetectionConfig
}

// New creates an engine with the given detection thresholds.
func New(cfg domain.DetectionConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Result carries everything one run produced. The report is the
// externally-visible part; graph and metrics are kept for the
// visualization view and alert evaluation.
type Result struct {
	Graph    *graph.Graph
	Metrics  map[string]*domain.AccountMetrics
	Rings    []domain.Ring
	Accounts []domain.ScoredAccount
	Report   *domain.Report
}

// Run executes the full pipeline over an already-ingested transaction
// sequence. Detector failures are recovered locally: the failing
// detector contributes whatever partial ring list it produced and the
// pipeline proceeds. Graph and aggregation failures are fatal and
// returned as StageError.
func (e *Engine) Run(ctx context.Context, txs []domain.Transaction) (*Result, error) {
	started := time.Now()

	ctx, span := tracer.Start(ctx, "engine.run")
	defer span.End()

	if len(txs) == 0 {
		return nil, domain.NewStageError(domain.StageIngest, time.Since(started), domain.ErrNoTransactions)
	}

	g, metrics := e.buildGraph(ctx, txs)
	slog.Info("transaction graph built",
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"transactions", g.TransactionCount(),
	)

	rings := e.detect(ctx, g)
	slog.Info("pattern detection complete", "rings", len(rings))

	for _, r := range rings {
		if err := r.Validate(); err != nil {
			return nil, domain.NewStageError(domain.StageAggregation, time.Since(started), err)
		}
	}

	accounts, rep := e.aggregate(ctx, g, metrics, rings, started)
	slog.Info("analysis complete",
		"suspicious_accounts", len(accounts),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return &Result{
		Graph:    g,
		Metrics:  metrics,
		Rings:    rings,
		Accounts: accounts,
		Report:   rep,
	}, nil
}

func (e *Engine) buildGraph(ctx context.Context, txs []domain.Transaction) (*graph.Graph, map[string]*domain.AccountMetrics) {
	_, span := tracer.Start(ctx, "engine.graph")
	defer span.End()

	g := graph.Build(txs)
	metrics := graph.ComputeMetrics(g)

	span.SetAttributes(
		attribute.Int("graph.nodes", g.NodeCount()),
		attribute.Int("graph.edges", g.EdgeCount()),
	)
	return g, metrics
}

// detect runs the three detectors in parallel under individual soft
// deadlines and joins their results in a fixed order, so the combined
// ring list is deterministic regardless of scheduling.
func (e *Engine) detect(ctx context.Context, g *graph.Graph) []domain.Ring {
	ctx, span := tracer.Start(ctx, "engine.detect")
	defer span.End()

	var (
		wg     sync.WaitGroup
		cycles []detect.CycleCandidate
		cycErr error
		smurf  detect.Result
		shell  detect.Result
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		dctx, cancel := context.WithTimeout(ctx, e.cfg.DetectorTimeout)
		defer cancel()
		cycles, cycErr = detect.NewCycleDetector(e.cfg).Detect(dctx, g)
	}()
	go func() {
		defer wg.Done()
		dctx, cancel := context.WithTimeout(ctx, e.cfg.DetectorTimeout)
		defer cancel()
		rings, err := detect.NewSmurfingDetector(e.cfg).Detect(dctx, g)
		smurf = detect.Result{Pattern: domain.PatternSmurfing, Rings: rings, Err: err}
	}()
	go func() {
		defer wg.Done()
		dctx, cancel := context.WithTimeout(ctx, e.cfg.DetectorTimeout)
		defer cancel()
		rings, err := detect.NewShellDetector(e.cfg).Detect(dctx, g)
		shell = detect.Result{Pattern: domain.PatternShell, Rings: rings, Err: err}
	}()
	wg.Wait()

	if cycErr != nil {
		slog.Warn("cycle detection truncated", "error", cycErr, "candidates", len(cycles))
	}
	if smurf.Err != nil {
		slog.Warn("smurfing detection truncated", "error", smurf.Err, "rings", len(smurf.Rings))
	}
	if shell.Err != nil {
		slog.Warn("shell detection truncated", "error", shell.Err, "rings", len(shell.Rings))
	}

	consolidated := detect.ConsolidateCycles(cycles)
	span.SetAttributes(
		attribute.Int("rings.cycle", len(consolidated)),
		attribute.Int("rings.smurfing", len(smurf.Rings)),
		attribute.Int("rings.shell", len(shell.Rings)),
	)

	rings := make([]domain.Ring, 0, len(consolidated)+len(smurf.Rings)+len(shell.Rings))
	rings = append(rings, consolidated...)
	rings = append(rings, smurf.Rings...)
	rings = append(rings, shell.Rings...)
	return rings
}

func (e *Engine) aggregate(ctx context.Context, g *graph.Graph, metrics map[string]*domain.AccountMetrics, rings []domain.Ring, started time.Time) ([]domain.ScoredAccount, *domain.Report) {
	_, span := tracer.Start(ctx, "engine.aggregate")
	defer span.End()

	accounts := score.Score(rings, metrics)
	rep := report.Build(g, rings, accounts, started)

	span.SetAttributes(attribute.Int("accounts.flagged", len(accounts)))
	return accounts, rep
}
