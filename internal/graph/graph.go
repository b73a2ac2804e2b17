// Package graph builds the directed transaction multigraph the
// detectors operate on. Nodes are account ids; each ordered account
// pair has at most one edge aggregating every transaction between
// that pair.
package graph

import (
	"sort"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// TxRef is the summary of one constituent transaction kept on an edge.
type TxRef struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Edge aggregates all transactions from one sender to one receiver.
type Edge struct {
	From         string
	To           string
	Amount       float64
	Count        int
	Transactions []TxRef
	FirstSeen    time.Time
	LastSeen     time.Time
}

type edgeKey struct {
	from string
	to   string
}

// Graph is a directed graph with aggregated edge weights. It is built
// once per analysis and read-only afterward; the detectors share it
// without synchronization.
type Graph struct {
	nodes map[string]struct{}
	edges map[edgeKey]*Edge

	// Adjacency in first-seen order, so bounded traversals are
	// deterministic for a given input sequence.
	succ map[string][]string
	pred map[string][]string

	txCount int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		edges: make(map[edgeKey]*Edge),
		succ:  make(map[string][]string),
		pred:  make(map[string][]string),
	}
}

// Build constructs the graph from a validated transaction sequence.
// Aggregate sums are commutative, so edge contents do not depend on
// input order.
func Build(txs []domain.Transaction) *Graph {
	g := New()
	for i := range txs {
		g.add(&txs[i])
	}
	return g
}

func (g *Graph) add(tx *domain.Transaction) {
	g.txCount++
	g.nodes[tx.Sender] = struct{}{}
	g.nodes[tx.Receiver] = struct{}{}

	key := edgeKey{from: tx.Sender, to: tx.Receiver}
	ref := TxRef{ID: tx.ID, Amount: tx.Amount, Timestamp: tx.Timestamp}

	if e, ok := g.edges[key]; ok {
		e.Amount += tx.Amount
		e.Count++
		e.Transactions = append(e.Transactions, ref)
		if tx.Timestamp.Before(e.FirstSeen) {
			e.FirstSeen = tx.Timestamp
		}
		if tx.Timestamp.After(e.LastSeen) {
			e.LastSeen = tx.Timestamp
		}
		return
	}

	g.edges[key] = &Edge{
		From:         tx.Sender,
		To:           tx.Receiver,
		Amount:       tx.Amount,
		Count:        1,
		Transactions: []TxRef{ref},
		FirstSeen:    tx.Timestamp,
		LastSeen:     tx.Timestamp,
	}
	g.succ[tx.Sender] = append(g.succ[tx.Sender], tx.Receiver)
	g.pred[tx.Receiver] = append(g.pred[tx.Receiver], tx.Sender)
}

// NodeCount returns the number of distinct accounts.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of aggregated edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// TransactionCount returns the number of transactions ingested.
func (g *Graph) TransactionCount() int { return g.txCount }

// HasNode reports whether the account exists in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all account ids in sorted order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Successors returns the accounts id sends to, in first-seen order.
func (g *Graph) Successors(id string) []string { return g.succ[id] }

// Predecessors returns the accounts that send to id, in first-seen order.
func (g *Graph) Predecessors(id string) []string { return g.pred[id] }

// OutDegree returns the number of distinct receivers of id.
func (g *Graph) OutDegree(id string) int { return len(g.succ[id]) }

// InDegree returns the number of distinct senders to id.
func (g *Graph) InDegree(id string) int { return len(g.pred[id]) }

// Degree returns in-degree plus out-degree.
func (g *Graph) Degree(id string) int { return len(g.pred[id]) + len(g.succ[id]) }

// Edge returns the aggregated edge for an ordered pair, if present.
func (g *Graph) Edge(from, to string) (*Edge, bool) {
	e, ok := g.edges[edgeKey{from: from, to: to}]
	return e, ok
}

// Edges returns all edges sorted by (from, to) for deterministic
// iteration.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// ShortestPath returns the unweighted shortest directed path from
// source to target as a node sequence including both endpoints, using
// breadth-first search. ok is false when no path exists or either
// endpoint is missing.
func (g *Graph) ShortestPath(source, target string) (path []string, ok bool) {
	if !g.HasNode(source) || !g.HasNode(target) {
		return nil, false
	}
	if source == target {
		return []string{source}, true
	}

	parent := map[string]string{source: source}
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.succ[cur] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			if next == target {
				return rebuildPath(parent, source, target), true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

func rebuildPath(parent map[string]string, source, target string) []string {
	var rev []string
	for cur := target; cur != source; cur = parent[cur] {
		rev = append(rev, cur)
	}
	rev = append(rev, source)
	path := make([]string, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}
