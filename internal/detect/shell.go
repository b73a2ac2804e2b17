package detect

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/graph"
)

// ShellDetector finds layered pass-through chains: money routed
// through low-activity intermediary accounts to obscure the trail
// between source and destination. Instead of enumerating all simple
// paths, it anchors the search on shell-shaped candidates and checks
// one shortest path per endpoint pair around each candidate.
type ShellDetector struct {
	cfg domain.DetectionConfig
}

// NewShellDetector creates a shell detector with the given bounds.
func NewShellDetector(cfg domain.DetectionConfig) *ShellDetector {
	return &ShellDetector{cfg: cfg}
}

// Detect returns shell-network rings, deduplicated by exact path. A
// cancelled context stops the scan; rings found so far are returned
// with ctx.Err().
func (d *ShellDetector) Detect(ctx context.Context, g *graph.Graph) ([]domain.Ring, error) {
	shells := d.candidates(g)
	isShell := make(map[string]struct{}, len(shells))
	for _, s := range shells {
		isShell[s] = struct{}{}
	}

	var rings []domain.Ring
	seenPaths := make(map[string]struct{})
	counter := 1

	for _, shell := range shells {
		if err := ctx.Err(); err != nil {
			return rings, err
		}

		for _, source := range d.endpoints(g.Predecessors(shell), isShell, g.Predecessors) {
			for _, dest := range d.endpoints(g.Successors(shell), isShell, g.Successors) {
				if source == dest {
					continue
				}

				path, ok := g.ShortestPath(source, dest)
				if !ok || len(path) < d.cfg.MinShellPathLength || !contains(path, shell) {
					continue
				}

				intermediates := path[1 : len(path)-1]
				if !hasOtherShell(intermediates, shell, isShell) {
					continue
				}

				key := strings.Join(path, "\x1f")
				if _, dup := seenPaths[key]; dup {
					continue
				}
				seenPaths[key] = struct{}{}

				rings = append(rings, domain.Ring{
					ID:                 fmt.Sprintf("SHELL_%03d", counter),
					PatternType:        domain.PatternShell,
					MemberAccounts:     path,
					RiskScore:          d.pathRisk(g, path, intermediates, isShell),
					SourceAccount:      path[0],
					DestinationAccount: path[len(path)-1],
					ShellAccounts:      intermediates,
					PathLength:         len(path),
					IntermediaryCount:  len(intermediates),
				})
				counter++
			}
		}
	}

	return rings, nil
}

// candidates returns accounts with pure pass-through shape: total
// degree inside the configured band with at least one sender and one
// receiver. Sorted order keeps ring numbering deterministic.
func (d *ShellDetector) candidates(g *graph.Graph) []string {
	var out []string
	for _, node := range g.Nodes() {
		total := g.Degree(node)
		if total >= d.cfg.ShellMinDegree && total <= d.cfg.ShellMaxDegree &&
			g.InDegree(node) > 0 && g.OutDegree(node) > 0 {
			out = append(out, node)
		}
	}
	return out
}

// endpoints expands the anchor's direct neighbors into path
// endpoints. A neighbor that is itself shell-shaped contributes its
// own neighbors too, so a chain of adjacent shells is searched from
// its true source to its true destination. Shell degree is capped by
// config, keeping the expansion small.
func (d *ShellDetector) endpoints(neighbors []string, isShell map[string]struct{}, next func(string) []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(acc string) {
		if _, dup := seen[acc]; !dup {
			seen[acc] = struct{}{}
			out = append(out, acc)
		}
	}
	for _, n := range neighbors {
		add(n)
		if _, ok := isShell[n]; ok {
			for _, nn := range next(n) {
				add(nn)
			}
		}
	}
	return out
}

// hasOtherShell reports whether any intermediate besides the anchor
// candidate is itself shell-shaped.
func hasOtherShell(intermediates []string, anchor string, isShell map[string]struct{}) bool {
	for _, acc := range intermediates {
		if acc == anchor {
			continue
		}
		if _, ok := isShell[acc]; ok {
			return true
		}
	}
	return false
}

// pathRisk scores a shell chain: longer paths, denser shells,
// low-degree intermediaries and consistent hop amounts all raise the
// risk, capped at 95.
func (d *ShellDetector) pathRisk(g *graph.Graph, path, intermediates []string, isShell map[string]struct{}) float64 {
	const base = 60.0

	lengthBonus := math.Min(10.0, float64(len(path)-3)*2.0)

	shellCount := 0
	for _, acc := range intermediates {
		if _, ok := isShell[acc]; ok {
			shellCount++
		}
	}
	shellBonus := math.Min(15.0, float64(shellCount)*5.0)

	lowDegree := 0.0
	for _, acc := range intermediates {
		if g.Degree(acc) <= 4 {
			lowDegree += 5.0
		}
	}
	lowDegreeBonus := math.Min(15.0, lowDegree)

	volumeBonus := 10.0 * VolumeConsistency(g, path)

	return round2(math.Min(95.0, base+lengthBonus+shellBonus+lowDegreeBonus+volumeBonus))
}

// VolumeConsistency scores how uniform the aggregated edge amounts
// are along a path, from the coefficient of variation (stdev/mean).
// Near-identical pass-through amounts indicate pre-planned transfers.
func VolumeConsistency(g *graph.Graph, path []string) float64 {
	if len(path) < 3 {
		return 0
	}

	var amounts []float64
	for i := 0; i < len(path)-1; i++ {
		if e, ok := g.Edge(path[i], path[i+1]); ok {
			amounts = append(amounts, e.Amount)
		}
	}
	if len(amounts) < 2 {
		return 0
	}

	var sum float64
	for _, a := range amounts {
		sum += a
	}
	mean := sum / float64(len(amounts))
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, a := range amounts {
		sq += (a - mean) * (a - mean)
	}
	stdev := math.Sqrt(sq / float64(len(amounts)-1))

	switch cv := stdev / mean; {
	case cv < 0.2:
		return 1.0
	case cv < 0.5:
		return 0.7
	case cv < 1.0:
		return 0.3
	default:
		return 0
	}
}
