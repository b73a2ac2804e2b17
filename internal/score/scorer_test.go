package score

import (
	"reflect"
	"testing"

	"github.com/kestrelhq/kestrel/internal/domain"
)

func metricsFor(in, out int) *domain.AccountMetrics {
	return &domain.AccountMetrics{InDegree: in, OutDegree: out}
}

func TestScoreBaseIsMaxPatternRisk(t *testing.T) {
	rings := []domain.Ring{
		{ID: "RING_C_001", PatternType: domain.PatternCycle, RiskScore: 86,
			MemberAccounts: []string{"A", "B"}, CycleLength: 3},
		{ID: "SHELL_001", PatternType: domain.PatternShell, RiskScore: 92,
			MemberAccounts: []string{"A", "C"}, PathLength: 4},
	}
	metrics := map[string]*domain.AccountMetrics{
		"A": metricsFor(1, 1),
		"B": metricsFor(1, 1),
		"C": metricsFor(1, 1),
	}

	scored := Score(rings, metrics)
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored accounts, got %d", len(scored))
	}

	// A is in both rings: base 92, no behavioral adjustment at degree 2
	// with a balanced ratio.
	if scored[0].AccountID != "A" || scored[0].SuspicionScore != 92.0 {
		t.Errorf("expected A at 92.0 first, got %s at %.2f", scored[0].AccountID, scored[0].SuspicionScore)
	}
	if !reflect.DeepEqual(scored[0].RingIDs, []string{"RING_C_001", "SHELL_001"}) {
		t.Errorf("unexpected ring ids for A: %v", scored[0].RingIDs)
	}
	if !reflect.DeepEqual(scored[0].DetectedPatterns, []string{"cycle_length_3", "shell_network_depth_4"}) {
		t.Errorf("unexpected patterns for A: %v", scored[0].DetectedPatterns)
	}
}

func TestScoreSortedDescending(t *testing.T) {
	rings := []domain.Ring{
		{ID: "R1", PatternType: domain.PatternCycle, RiskScore: 80, MemberAccounts: []string{"low"}, CycleLength: 3},
		{ID: "R2", PatternType: domain.PatternCycle, RiskScore: 95, MemberAccounts: []string{"high"}, CycleLength: 4},
	}

	scored := Score(rings, nil)
	if scored[0].AccountID != "high" || scored[1].AccountID != "low" {
		t.Errorf("expected descending order, got %s, %s", scored[0].AccountID, scored[1].AccountID)
	}
}

func TestScoreCapsAtHundred(t *testing.T) {
	rings := []domain.Ring{
		{ID: "R1", PatternType: domain.PatternSmurfing, RiskScore: 99,
			MemberAccounts: []string{"hub"}, SmurfingType: domain.FanIn, CounterpartyCount: 25},
	}
	metrics := map[string]*domain.AccountMetrics{
		"hub": metricsFor(25, 0), // degree 25, fully one-sided
	}

	scored := Score(rings, metrics)
	if scored[0].SuspicionScore != 100.0 {
		t.Errorf("expected cap at 100, got %.2f", scored[0].SuspicionScore)
	}
	if scored[0].DetectedPatterns[0] != "smurfing_fan_in_25" {
		t.Errorf("unexpected label: %v", scored[0].DetectedPatterns)
	}
}

func TestScoreNoRingsNoAccounts(t *testing.T) {
	if scored := Score(nil, nil); len(scored) != 0 {
		t.Errorf("expected empty result for no rings, got %d entries", len(scored))
	}
}

func TestBehavioralAdjustment(t *testing.T) {
	cases := []struct {
		name string
		m    *domain.AccountMetrics
		want float64
	}{
		{"nil metrics", nil, 0},
		{"small balanced", metricsFor(2, 2), 0},
		{"hub over 10", metricsFor(6, 6), 5},
		{"hub over 20", metricsFor(11, 11), 10},
		{"pure receiver", metricsFor(5, 0), 3},
		{"pure sender", metricsFor(0, 5), 3},
		{"large one-sided hub", metricsFor(25, 1), 13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BehavioralAdjustment(tc.m); got != tc.want {
				t.Errorf("expected %.1f, got %.1f", tc.want, got)
			}
		})
	}
}
