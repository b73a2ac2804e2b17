package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/graph"
)

func TestDetectFanIn(t *testing.T) {
	// Scenario: 12 distinct senders each send once to hub H within a
	// 1-hour span, threshold 10.
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var txs []domain.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, domain.Transaction{
			ID:        fmt.Sprintf("t%02d", i),
			Sender:    fmt.Sprintf("S%02d", i),
			Receiver:  "H",
			Amount:    1000,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
		})
	}
	g := graph.Build(txs)

	cfg := domain.DefaultDetectionConfig()
	rings, err := NewSmurfingDetector(cfg).Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(rings) != 1 {
		t.Fatalf("expected 1 fan-in ring, got %d", len(rings))
	}

	r := rings[0]
	if r.SmurfingType != domain.FanIn {
		t.Errorf("expected fan_in, got %s", r.SmurfingType)
	}
	if r.HubAccount != "H" || r.HubRole != domain.RoleAggregator {
		t.Errorf("wrong hub: %s/%s", r.HubAccount, r.HubRole)
	}
	if r.CounterpartyCount != 12 {
		t.Errorf("expected 12 counterparties, got %d", r.CounterpartyCount)
	}
	if len(r.MemberAccounts) != 13 {
		t.Errorf("expected 12 senders + hub, got %d members", len(r.MemberAccounts))
	}
	if r.TotalVolume != 12000 {
		t.Errorf("expected volume 12000, got %.2f", r.TotalVolume)
	}
	if r.TransactionCount != 12 {
		t.Errorf("expected 12 transactions, got %d", r.TransactionCount)
	}

	// risk = min(99, 70 + min(1,(12-10)/100)*15 + min(1,12000/100000)*10
	//              + temporal*5), span 55m of 72h window so temporal ~= 0.987.
	span := 55 * time.Minute
	temporal := 1 - span.Hours()/cfg.TemporalWindow.Hours()
	want := round2(70 + 0.02*15 + 0.12*10 + temporal*5)
	if r.RiskScore != want {
		t.Errorf("expected risk %.2f, got %.2f", want, r.RiskScore)
	}
}

func TestDetectFanOut(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var txs []domain.Transaction
	for i := 0; i < 11; i++ {
		txs = append(txs, domain.Transaction{
			ID:        fmt.Sprintf("t%02d", i),
			Sender:    "D",
			Receiver:  fmt.Sprintf("R%02d", i),
			Amount:    500,
			Timestamp: base,
		})
	}
	g := graph.Build(txs)

	rings, err := NewSmurfingDetector(domain.DefaultDetectionConfig()).Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(rings) != 1 {
		t.Fatalf("expected 1 fan-out ring, got %d", len(rings))
	}

	r := rings[0]
	if r.SmurfingType != domain.FanOut || r.HubRole != domain.RoleDisperser {
		t.Errorf("expected fan_out/disperser, got %s/%s", r.SmurfingType, r.HubRole)
	}
	if r.MemberAccounts[0] != "D" {
		t.Errorf("fan-out member list should start with the hub, got %v", r.MemberAccounts[0])
	}
}

func TestHubProcessedOnce(t *testing.T) {
	// H qualifies for both fan-in and fan-out; fan-in is evaluated
	// first and wins, producing a single ring for the hub.
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var txs []domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, domain.Transaction{
			ID: fmt.Sprintf("in%02d", i), Sender: fmt.Sprintf("S%02d", i), Receiver: "H",
			Amount: 100, Timestamp: base,
		})
		txs = append(txs, domain.Transaction{
			ID: fmt.Sprintf("out%02d", i), Sender: "H", Receiver: fmt.Sprintf("R%02d", i),
			Amount: 100, Timestamp: base,
		})
	}
	g := graph.Build(txs)

	rings, err := NewSmurfingDetector(domain.DefaultDetectionConfig()).Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(rings) != 1 {
		t.Fatalf("expected 1 ring for dual-role hub, got %d", len(rings))
	}
	if rings[0].SmurfingType != domain.FanIn {
		t.Errorf("fan-in should be evaluated first, got %s", rings[0].SmurfingType)
	}
}

func TestBelowThresholdNoRings(t *testing.T) {
	base := time.Now().UTC()
	var txs []domain.Transaction
	for i := 0; i < 5; i++ {
		txs = append(txs, domain.Transaction{
			ID: fmt.Sprintf("t%d", i), Sender: fmt.Sprintf("S%d", i), Receiver: "H",
			Amount: 100, Timestamp: base,
		})
	}
	g := graph.Build(txs)

	rings, err := NewSmurfingDetector(domain.DefaultDetectionConfig()).Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(rings) != 0 {
		t.Errorf("expected no rings below threshold, got %d", len(rings))
	}
}

func TestTemporalClusteringFactor(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	window := 72 * time.Hour

	if f := TemporalClusteringFactor(nil, window); f != 0 {
		t.Errorf("no timestamps: expected 0, got %v", f)
	}
	if f := TemporalClusteringFactor([]time.Time{base}, window); f != 0 {
		t.Errorf("single timestamp: expected 0, got %v", f)
	}

	// Identical timestamps: maximum clustering.
	if f := TemporalClusteringFactor([]time.Time{base, base, base}, window); f != 1.0 {
		t.Errorf("zero span: expected 1.0, got %v", f)
	}

	// Half the window.
	f := TemporalClusteringFactor([]time.Time{base, base.Add(36 * time.Hour)}, window)
	if f != 0.5 {
		t.Errorf("half window span: expected 0.5, got %v", f)
	}

	// Outside the window.
	if f := TemporalClusteringFactor([]time.Time{base, base.Add(100 * time.Hour)}, window); f != 0 {
		t.Errorf("span beyond window: expected 0, got %v", f)
	}

	// Order must not matter.
	a := TemporalClusteringFactor([]time.Time{base.Add(time.Hour), base}, window)
	b := TemporalClusteringFactor([]time.Time{base, base.Add(time.Hour)}, window)
	if a != b {
		t.Errorf("factor depends on timestamp order: %v vs %v", a, b)
	}
}
