// Package report assembles the externally-visible output of an
// analysis run: the report document itself and the derived network
// view consumed by visualization clients.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/graph"
)

const timestampLayout = "2006-01-02 15:04:05"

// Build assembles the final report from the scored pipeline outputs.
// Pure aggregation: counts, elapsed time and a wall-clock stamp.
func Build(g *graph.Graph, rings []domain.Ring, accounts []domain.ScoredAccount, started time.Time) *domain.Report {
	summaries := make([]domain.RingSummary, 0, len(rings))
	for _, r := range rings {
		summaries = append(summaries, domain.RingSummary{
			RingID:         r.ID,
			MemberAccounts: r.MemberAccounts,
			PatternType:    r.PatternType,
			RiskScore:      round2(r.RiskScore),
		})
	}

	if accounts == nil {
		accounts = []domain.ScoredAccount{}
	}

	return &domain.Report{
		SuspiciousAccounts: accounts,
		FraudRings:         summaries,
		Summary: domain.Summary{
			TotalAccountsAnalyzed:      g.NodeCount(),
			TotalTransactionsProcessed: g.TransactionCount(),
			SuspiciousAccountsFlagged:  len(accounts),
			FraudRingsDetected:         len(summaries),
			ProcessingTimeSeconds:      round2(time.Since(started).Seconds()),
			DetectionTimestamp:         time.Now().UTC().Format(timestampLayout),
		},
	}
}

// NetworkView derives the visualization node/edge list from a report
// and the graph it was produced from. Nodes carry the suspicion
// verdict, edges flag flows where both endpoints sit inside a ring.
func NetworkView(g *graph.Graph, rep *domain.Report) *domain.NetworkView {
	scores := make(map[string]float64, len(rep.SuspiciousAccounts))
	for _, sa := range rep.SuspiciousAccounts {
		scores[sa.AccountID] = sa.SuspicionScore
	}

	inRing := make(map[string]struct{})
	for _, ring := range rep.FraudRings {
		for _, m := range ring.MemberAccounts {
			inRing[m] = struct{}{}
		}
	}

	nodes := make([]domain.NetworkNode, 0, g.NodeCount())
	for _, id := range g.Nodes() {
		score, suspicious := scores[id]
		_, ringed := inRing[id]
		nodes = append(nodes, domain.NetworkNode{
			ID:             id,
			Suspicious:     suspicious,
			InRing:         ringed,
			SuspicionScore: score,
			Label:          id,
		})
	}

	edges := make([]domain.NetworkEdge, 0, g.EdgeCount())
	for i, e := range g.Edges() {
		_, fromRinged := inRing[e.From]
		_, toRinged := inRing[e.To]
		edges = append(edges, domain.NetworkEdge{
			ID:          edgeID(i),
			Source:      e.From,
			Target:      e.To,
			Amount:      round2(e.Amount),
			Count:       e.Count,
			IsFraudEdge: fromRinged && toRinged,
		})
	}

	// Graph order is already deterministic; keep suspicious nodes
	// grouped first so clients can truncate large views.
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].SuspicionScore > nodes[j].SuspicionScore
	})

	return &domain.NetworkView{Nodes: nodes, Edges: edges}
}

func edgeID(i int) string {
	return fmt.Sprintf("e%d", i+1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
