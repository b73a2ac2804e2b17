package detect

import (
	"fmt"
	"sort"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// ConsolidateCycles merges overlapping cycle candidates into rings.
// Two accounts are connected when they co-occur in any candidate;
// each connected component of that co-membership relation becomes one
// ring whose risk is the maximum across the candidates it absorbs.
// This trades cycle-boundary precision for a bounded ring count when
// many near-duplicate loops run through the same hub.
//
// The operation is idempotent: consolidating an already-consolidated
// set yields the same rings.
func ConsolidateCycles(candidates []CycleCandidate) []domain.Ring {
	if len(candidates) == 0 {
		return nil
	}

	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for _, c := range candidates {
		for _, m := range c.Members {
			if _, ok := parent[m]; !ok {
				parent[m] = m
			}
		}
		for i := 1; i < len(c.Members); i++ {
			union(c.Members[0], c.Members[i])
		}
	}

	components := make(map[string][]string)
	for account := range parent {
		root := find(account)
		components[root] = append(components[root], account)
	}

	// Risk per component: max over candidates intersecting it.
	maxRisk := make(map[string]float64)
	for _, c := range candidates {
		root := find(c.Members[0])
		if c.RiskScore > maxRisk[root] {
			maxRisk[root] = c.RiskScore
		}
	}

	var ordered []string
	for root, members := range components {
		sort.Strings(members)
		components[root] = members
		ordered = append(ordered, root)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return components[ordered[i]][0] < components[ordered[j]][0]
	})

	rings := make([]domain.Ring, 0, len(ordered))
	for i, root := range ordered {
		risk := maxRisk[root]
		if risk <= 0 {
			risk = 80.0
		}
		rings = append(rings, domain.Ring{
			ID:             fmt.Sprintf("RING_C_%03d", i+1),
			PatternType:    domain.PatternCycle,
			MemberAccounts: components[root],
			RiskScore:      round2(domain.ClampScore(risk)),
			CycleLength:    len(components[root]),
		})
	}
	return rings
}
