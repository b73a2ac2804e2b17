package graph

import (
	"math"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// ComputeMetrics derives per-account degree and volume statistics
// from a built graph. Pure function of the graph; computed once per
// analysis and never mutated afterward.
//
// UniqueSenders/UniqueReceivers equal in/out degree here: edges are
// aggregated per ordered account pair, so each neighbor contributes
// exactly one edge. The fields stay separate because the report
// contract names both.
func ComputeMetrics(g *Graph) map[string]*domain.AccountMetrics {
	metrics := make(map[string]*domain.AccountMetrics, g.NodeCount())

	for _, node := range g.Nodes() {
		var totalIn, totalOut float64
		for _, p := range g.Predecessors(node) {
			if e, ok := g.Edge(p, node); ok {
				totalIn += e.Amount
			}
		}
		for _, s := range g.Successors(node) {
			if e, ok := g.Edge(node, s); ok {
				totalOut += e.Amount
			}
		}

		metrics[node] = &domain.AccountMetrics{
			AccountID:       node,
			InDegree:        g.InDegree(node),
			OutDegree:       g.OutDegree(node),
			UniqueSenders:   g.InDegree(node),
			UniqueReceivers: g.OutDegree(node),
			TotalReceived:   round2(totalIn),
			TotalSent:       round2(totalOut),
			NetFlow:         round2(totalOut - totalIn),
		}
	}
	return metrics
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
