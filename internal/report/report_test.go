package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/graph"
)

func testGraph() *graph.Graph {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return graph.Build([]domain.Transaction{
		{ID: "t1", Sender: "A", Receiver: "B", Amount: 100, Timestamp: base},
		{ID: "t2", Sender: "B", Receiver: "C", Amount: 100, Timestamp: base},
		{ID: "t3", Sender: "C", Receiver: "A", Amount: 100, Timestamp: base},
		{ID: "t4", Sender: "D", Receiver: "A", Amount: 50, Timestamp: base},
	})
}

func TestBuildSummaryCounts(t *testing.T) {
	g := testGraph()
	rings := []domain.Ring{
		{ID: "RING_C_001", PatternType: domain.PatternCycle,
			MemberAccounts: []string{"A", "B", "C"}, RiskScore: 86},
	}
	accounts := []domain.ScoredAccount{
		{AccountID: "A", SuspicionScore: 86},
		{AccountID: "B", SuspicionScore: 86},
		{AccountID: "C", SuspicionScore: 86},
	}

	rep := Build(g, rings, accounts, time.Now().Add(-100*time.Millisecond))

	s := rep.Summary
	if s.TotalAccountsAnalyzed != 4 {
		t.Errorf("expected 4 accounts, got %d", s.TotalAccountsAnalyzed)
	}
	if s.TotalTransactionsProcessed != 4 {
		t.Errorf("expected 4 transactions, got %d", s.TotalTransactionsProcessed)
	}
	if s.SuspiciousAccountsFlagged != 3 || s.FraudRingsDetected != 1 {
		t.Errorf("unexpected flag counts: %d/%d", s.SuspiciousAccountsFlagged, s.FraudRingsDetected)
	}
	if s.ProcessingTimeSeconds <= 0 {
		t.Errorf("expected positive processing time, got %v", s.ProcessingTimeSeconds)
	}
	if _, err := time.Parse("2006-01-02 15:04:05", s.DetectionTimestamp); err != nil {
		t.Errorf("bad detection timestamp %q: %v", s.DetectionTimestamp, err)
	}
}

func TestBuildEmptyAccountsSerializeAsArray(t *testing.T) {
	rep := Build(testGraph(), nil, nil, time.Now())

	raw, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(raw), `"suspicious_accounts":null`) {
		t.Error("suspicious_accounts must serialize as [], not null")
	}
}

func TestNetworkView(t *testing.T) {
	g := testGraph()
	rep := Build(g,
		[]domain.Ring{{ID: "RING_C_001", PatternType: domain.PatternCycle,
			MemberAccounts: []string{"A", "B", "C"}, RiskScore: 86}},
		[]domain.ScoredAccount{{AccountID: "A", SuspicionScore: 91}},
		time.Now())

	view := NetworkView(g, rep)

	if len(view.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(view.Nodes))
	}
	if view.Nodes[0].ID != "A" || !view.Nodes[0].Suspicious || view.Nodes[0].SuspicionScore != 91 {
		t.Errorf("expected suspicious A first, got %+v", view.Nodes[0])
	}

	byID := make(map[string]domain.NetworkNode)
	for _, n := range view.Nodes {
		byID[n.ID] = n
	}
	if !byID["B"].InRing || byID["B"].Suspicious {
		t.Errorf("B should be in-ring but not scored: %+v", byID["B"])
	}
	if byID["D"].InRing || byID["D"].Suspicious {
		t.Errorf("D should be clean: %+v", byID["D"])
	}

	if len(view.Edges) != 4 {
		t.Fatalf("expected 4 edges, got %d", len(view.Edges))
	}
	for _, e := range view.Edges {
		ringEdge := e.Source != "D" && e.Target != "D"
		if e.IsFraudEdge != ringEdge {
			t.Errorf("edge %s->%s fraud flag = %v, want %v", e.Source, e.Target, e.IsFraudEdge, ringEdge)
		}
	}
}
