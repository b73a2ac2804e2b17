// Package score fuses detected rings into per-account suspicion
// scores. An account's base score is the highest risk among the
// patterns it participates in; network-position modifiers then nudge
// it up or down within a bounded band.
package score

import (
	"fmt"
	"math"
	"sort"

	"github.com/kestrelhq/kestrel/internal/domain"
)

const (
	defaultBase   = 50.0
	maxAdjustment = 20.0
	minAdjustment = -10.0
)

// Score builds the suspicious-account list from the consolidated ring
// set. Only accounts that belong to at least one ring are scored;
// everyone else is implicitly clean. The result is sorted by score
// descending, ties keeping first-seen ring order.
func Score(rings []domain.Ring, metrics map[string]*domain.AccountMetrics) []domain.ScoredAccount {
	var order []string
	byAccount := make(map[string]*domain.ScoredAccount)
	patternScores := make(map[string]map[domain.PatternType]float64)

	for _, ring := range rings {
		label := patternLabel(ring)
		for _, account := range ring.MemberAccounts {
			sa, ok := byAccount[account]
			if !ok {
				sa = &domain.ScoredAccount{AccountID: account}
				byAccount[account] = sa
				patternScores[account] = make(map[domain.PatternType]float64)
				order = append(order, account)
			}

			if !containsString(sa.RingIDs, ring.ID) {
				sa.RingIDs = append(sa.RingIDs, ring.ID)
			}
			if !containsString(sa.DetectedPatterns, label) {
				sa.DetectedPatterns = append(sa.DetectedPatterns, label)
			}
			if ring.RiskScore > patternScores[account][ring.PatternType] {
				patternScores[account][ring.PatternType] = ring.RiskScore
			}
		}
	}

	out := make([]domain.ScoredAccount, 0, len(order))
	for _, account := range order {
		sa := byAccount[account]

		base := -1.0
		for _, s := range patternScores[account] {
			if s > base {
				base = s
			}
		}
		if base < 0 {
			base = defaultBase
		}

		adj := BehavioralAdjustment(metrics[account])
		sa.SuspicionScore = round2(math.Min(100.0, base+adj))
		out = append(out, *sa)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SuspicionScore > out[j].SuspicionScore
	})
	return out
}

// BehavioralAdjustment scores network position independently of ring
// membership: hub-sized degree adds up to +10, a strongly one-sided
// in/out ratio adds +3. The total is clamped to [-10, +20]. A nil
// metrics entry contributes nothing.
func BehavioralAdjustment(m *domain.AccountMetrics) float64 {
	if m == nil {
		return 0
	}

	adj := 0.0
	total := m.TotalDegree()

	if total > 10 {
		adj += 5.0
	}
	if total > 20 {
		adj += 5.0
	}

	if total > 0 {
		inRatio := float64(m.InDegree) / float64(total)
		if inRatio < 0.2 || inRatio > 0.8 {
			adj += 3.0
		}
	}

	return math.Max(minAdjustment, math.Min(maxAdjustment, adj))
}

// patternLabel renders the human-readable pattern tag shown on
// scored accounts, e.g. "cycle_length_4" or "smurfing_fan_in_12".
func patternLabel(ring domain.Ring) string {
	switch ring.PatternType {
	case domain.PatternCycle:
		return fmt.Sprintf("cycle_length_%d", ring.CycleLength)
	case domain.PatternSmurfing:
		return fmt.Sprintf("smurfing_%s_%d", ring.SmurfingType, ring.CounterpartyCount)
	case domain.PatternShell:
		return fmt.Sprintf("shell_network_depth_%d", ring.PathLength)
	default:
		return string(ring.PatternType)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
