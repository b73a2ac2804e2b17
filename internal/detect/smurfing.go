package detect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/graph"
)

// SmurfingDetector flags aggregation (fan-in) and dispersal (fan-out)
// hubs. Each hub produces at most one ring per pass; fan-in is
// evaluated first.
type SmurfingDetector struct {
	cfg domain.DetectionConfig
}

// NewSmurfingDetector creates a smurfing detector with the given
// thresholds.
func NewSmurfingDetector(cfg domain.DetectionConfig) *SmurfingDetector {
	return &SmurfingDetector{cfg: cfg}
}

// Detect scans every node for fan-in and fan-out patterns. A
// cancelled context stops the scan; rings found so far are returned
// with ctx.Err().
func (d *SmurfingDetector) Detect(ctx context.Context, g *graph.Graph) ([]domain.Ring, error) {
	var rings []domain.Ring
	processed := make(map[string]struct{})
	counter := 1

	for _, node := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return rings, err
		}

		if g.InDegree(node) >= d.cfg.FanThreshold {
			if _, done := processed[node]; !done {
				rings = append(rings, d.fanRing(g, node, domain.FanIn, counter))
				processed[node] = struct{}{}
				counter++
			}
		}

		if g.OutDegree(node) >= d.cfg.FanThreshold {
			if _, done := processed[node]; !done {
				rings = append(rings, d.fanRing(g, node, domain.FanOut, counter))
				processed[node] = struct{}{}
				counter++
			}
		}
	}

	return rings, nil
}

func (d *SmurfingDetector) fanRing(g *graph.Graph, hub string, variant domain.SmurfingVariant, counter int) domain.Ring {
	var counterparties []string
	var timestamps []time.Time
	var volume float64
	var txCount int

	collect := func(e *graph.Edge) {
		volume += e.Amount
		txCount += e.Count
		for _, tx := range e.Transactions {
			timestamps = append(timestamps, tx.Timestamp)
		}
	}

	var members []string
	var degree int
	var base float64
	var role domain.HubRole

	switch variant {
	case domain.FanIn:
		counterparties = g.Predecessors(hub)
		for _, p := range counterparties {
			if e, ok := g.Edge(p, hub); ok {
				collect(e)
			}
		}
		members = append(append([]string{}, counterparties...), hub)
		degree = g.InDegree(hub)
		base = 70.0
		role = domain.RoleAggregator
	default:
		counterparties = g.Successors(hub)
		for _, s := range counterparties {
			if e, ok := g.Edge(hub, s); ok {
				collect(e)
			}
		}
		members = append([]string{hub}, counterparties...)
		degree = g.OutDegree(hub)
		base = 65.0
		role = domain.RoleDisperser
	}

	counterpartyExcess := math.Min(1.0, float64(degree-d.cfg.FanThreshold)/100.0)
	volumeFactor := math.Min(1.0, volume/d.cfg.VolumeReference)
	temporalFactor := TemporalClusteringFactor(timestamps, d.cfg.TemporalWindow)

	risk := math.Min(99.0, base+counterpartyExcess*15+volumeFactor*10+temporalFactor*5)

	return domain.Ring{
		ID:                fmt.Sprintf("SMURF_%03d", counter),
		PatternType:       domain.PatternSmurfing,
		MemberAccounts:    members,
		RiskScore:         round2(risk),
		SmurfingType:      variant,
		HubAccount:        hub,
		HubRole:           role,
		CounterpartyCount: degree,
		TotalVolume:       round2(volume),
		TransactionCount:  txCount,
	}
}

// TemporalClusteringFactor measures how tightly a set of timestamps
// is packed relative to the window. Fewer than two timestamps yield
// 0. A span inside the window maps linearly to (0,1], tighter
// clustering scoring higher; a span beyond the window yields 0.
func TemporalClusteringFactor(timestamps []time.Time, window time.Duration) float64 {
	if len(timestamps) < 2 || window <= 0 {
		return 0
	}

	sorted := append([]time.Time{}, timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	span := sorted[len(sorted)-1].Sub(sorted[0])
	if span > window {
		return 0
	}
	return math.Min(1.0, 1.0-span.Hours()/window.Hours())
}
