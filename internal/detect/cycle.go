package detect

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/graph"
)

// CycleCandidate is one raw circular routing loop found by the cycle
// detector, before consolidation merges overlapping candidates.
type CycleCandidate struct {
	// Members in traversal order, starting at the source account.
	Members []string

	// Length is the number of accounts (= edges) in the loop.
	Length int

	RiskScore float64
}

// CycleDetector finds short circular fund-routing loops without
// enumerating all simple cycles. Candidate sources are restricted to
// hub-like accounts, fan-out per source is capped, and the number of
// return paths per (source, successor) pair is capped, so the search
// stays bounded even on dense graphs.
type CycleDetector struct {
	cfg domain.DetectionConfig
}

// NewCycleDetector creates a cycle detector with the given bounds.
func NewCycleDetector(cfg domain.DetectionConfig) *CycleDetector {
	return &CycleDetector{cfg: cfg}
}

// Detect returns unique cycle candidates of length within the
// configured range. A cancelled context stops the search early; the
// candidates found so far are still returned along with ctx.Err().
func (d *CycleDetector) Detect(ctx context.Context, g *graph.Graph) ([]CycleCandidate, error) {
	var candidates []CycleCandidate
	seen := make(map[string]struct{})

	for _, source := range d.pickSources(g) {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}

		successors := g.Successors(source)
		if len(successors) > d.cfg.MaxSuccessors {
			successors = successors[:d.cfg.MaxSuccessors]
		}

		for _, target := range successors {
			accepted := 0
			d.simplePaths(ctx, g, target, source, d.cfg.MaxCycleLength-1, func(path []string) bool {
				if accepted >= d.cfg.MaxPathsPerTarget {
					return false
				}

				// path runs target..source; the loop is source plus
				// path without its closing endpoint.
				members := append([]string{source}, path[:len(path)-1]...)
				length := len(members)
				if length < d.cfg.MinCycleLength || length > d.cfg.MaxCycleLength {
					return true
				}

				key := canonicalKey(members)
				if _, dup := seen[key]; dup {
					return true
				}
				seen[key] = struct{}{}

				candidates = append(candidates, CycleCandidate{
					Members:   members,
					Length:    length,
					RiskScore: 80.0 + math.Min(float64(length*2), 15),
				})
				accepted++
				return accepted < d.cfg.MaxPathsPerTarget
			})
		}
	}

	return candidates, nil
}

// pickSources returns the top-K nodes by out-degree among those with
// out-degree above the minimum. Ties break on account id so the
// selection is deterministic.
func (d *CycleDetector) pickSources(g *graph.Graph) []string {
	var sources []string
	for _, n := range g.Nodes() {
		if g.OutDegree(n) >= d.cfg.MinSourceOutDegree {
			sources = append(sources, n)
		}
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return g.OutDegree(sources[i]) > g.OutDegree(sources[j])
	})
	if len(sources) > d.cfg.MaxCycleSources {
		sources = sources[:d.cfg.MaxCycleSources]
	}
	return sources
}

// simplePaths walks every simple path from source to target with at
// most maxEdges edges, invoking fn for each complete path. fn returns
// false to stop the search for this pair.
func (d *CycleDetector) simplePaths(ctx context.Context, g *graph.Graph, source, target string, maxEdges int, fn func(path []string) bool) {
	if maxEdges <= 0 || !g.HasNode(source) || !g.HasNode(target) {
		return
	}
	visited := map[string]struct{}{source: {}}
	path := []string{source}
	d.walk(ctx, g, source, target, maxEdges, visited, path, fn)
}

func (d *CycleDetector) walk(ctx context.Context, g *graph.Graph, cur, target string, budget int, visited map[string]struct{}, path []string, fn func(path []string) bool) bool {
	if budget == 0 {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	for _, next := range g.Successors(cur) {
		if next == target {
			full := append(append([]string{}, path...), target)
			if !fn(full) {
				return false
			}
			continue
		}
		if _, ok := visited[next]; ok {
			continue
		}
		visited[next] = struct{}{}
		cont := d.walk(ctx, g, next, target, budget-1, visited, append(path, next), fn)
		delete(visited, next)
		if !cont {
			return false
		}
	}
	return true
}

// canonicalKey is the deduplication key for a cycle: the sorted tuple
// of member account ids. Two cycles with identical membership count as
// one even when their edge sequence differs.
func canonicalKey(members []string) string {
	sorted := append([]string{}, members...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}
