// Mulegen generates synthetic transaction ledgers with injected
// money-muling patterns, for demos and load testing.
//
// Usage:
//
//	go run cmd/mulegen/main.go -out ledger.csv -noise 2000 -cycles 3 -fanin 2 -fanout 1 -shells 2
//
// The output CSV carries background noise between ordinary accounts
// plus the requested number of cycles, fan-in/fan-out bursts and
// shell chains. A fixed -seed makes the output reproducible.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"
)

type row struct {
	sender    string
	receiver  string
	amount    float64
	timestamp time.Time
}

type generator struct {
	rng   *rand.Rand
	start time.Time
	span  time.Duration
	rows  []row
}

func (g *generator) emit(sender, receiver string, amount float64, ts time.Time) {
	g.rows = append(g.rows, row{sender: sender, receiver: receiver, amount: amount, timestamp: ts})
}

func (g *generator) randTime() time.Time {
	return g.start.Add(time.Duration(g.rng.Int63n(int64(g.span))))
}

// noise emits transfers between ordinary accounts. Senders and
// receivers are drawn from a shared pool so the background graph is
// connected but sparse.
func (g *generator) noise(count, accounts int) {
	for i := 0; i < count; i++ {
		from := g.rng.Intn(accounts)
		to := g.rng.Intn(accounts)
		if from == to {
			to = (to + 1) % accounts
		}
		amount := 10 + g.rng.Float64()*4990
		g.emit(
			fmt.Sprintf("ACC_%05d", from),
			fmt.Sprintf("ACC_%05d", to),
			amount,
			g.randTime(),
		)
	}
}

// cycle emits a closed loop of 3 to 5 fresh accounts moving roughly
// the same amount around within a couple of hours.
func (g *generator) cycle(idx int) {
	length := 3 + g.rng.Intn(3)
	base := g.randTime()
	amount := 5000 + g.rng.Float64()*15000

	members := make([]string, length)
	for i := range members {
		members[i] = fmt.Sprintf("CYC_%02d_%d", idx, i)
	}
	for i := 0; i < length; i++ {
		// Each hop keeps most of the money; a small cut disappears.
		hop := amount * (1 - 0.02*float64(i))
		g.emit(members[i], members[(i+1)%length], hop, base.Add(time.Duration(i)*17*time.Minute))
	}
}

// fanIn emits a burst of many small senders into one mule account
// inside a tight window.
func (g *generator) fanIn(idx int) {
	hub := fmt.Sprintf("MULE_IN_%02d", idx)
	senders := 12 + g.rng.Intn(8)
	base := g.randTime()

	for i := 0; i < senders; i++ {
		amount := 400 + g.rng.Float64()*1100
		offset := time.Duration(g.rng.Int63n(int64(6 * time.Hour)))
		g.emit(fmt.Sprintf("SRC_%02d_%03d", idx, i), hub, amount, base.Add(offset))
	}
}

// fanOut emits one account dispersing funds to many receivers.
func (g *generator) fanOut(idx int) {
	hub := fmt.Sprintf("MULE_OUT_%02d", idx)
	receivers := 12 + g.rng.Intn(8)
	base := g.randTime()

	for i := 0; i < receivers; i++ {
		amount := 400 + g.rng.Float64()*1100
		offset := time.Duration(g.rng.Int63n(int64(6 * time.Hour)))
		g.emit(hub, fmt.Sprintf("DST_%02d_%03d", idx, i), amount, base.Add(offset))
	}
}

// shellChain emits source -> shell -> shell -> destination with
// near-identical amounts. The shells touch nothing else, keeping
// their degree in the pass-through band.
func (g *generator) shellChain(idx int) {
	hops := 2 + g.rng.Intn(2)
	base := g.randTime()
	amount := 8000 + g.rng.Float64()*12000

	prev := fmt.Sprintf("ORIG_%02d", idx)
	for i := 0; i < hops; i++ {
		next := fmt.Sprintf("SHELL_%02d_%d", idx, i)
		g.emit(prev, next, amount*(1-0.01*float64(i)), base.Add(time.Duration(i)*41*time.Minute))
		prev = next
	}
	g.emit(prev, fmt.Sprintf("DEST_%02d", idx), amount*(1-0.01*float64(hops)), base.Add(time.Duration(hops)*41*time.Minute))
}

func main() {
	out := flag.String("out", "ledger.csv", "output CSV path")
	accounts := flag.Int("accounts", 500, "background account pool size")
	noise := flag.Int("noise", 2000, "background transaction count")
	cycles := flag.Int("cycles", 2, "injected cycles")
	fanin := flag.Int("fanin", 1, "injected fan-in bursts")
	fanout := flag.Int("fanout", 1, "injected fan-out bursts")
	shells := flag.Int("shells", 1, "injected shell chains")
	days := flag.Int("days", 30, "ledger time span in days")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	g := &generator{
		rng:   rand.New(rand.NewSource(*seed)),
		start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		span:  time.Duration(*days) * 24 * time.Hour,
	}

	g.noise(*noise, *accounts)
	for i := 0; i < *cycles; i++ {
		g.cycle(i)
	}
	for i := 0; i < *fanin; i++ {
		g.fanIn(i)
	}
	for i := 0; i < *fanout; i++ {
		g.fanOut(i)
	}
	for i := 0; i < *shells; i++ {
		g.shellChain(i)
	}

	sort.Slice(g.rows, func(i, j int) bool {
		return g.rows[i].timestamp.Before(g.rows[j].timestamp)
	})

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mulegen: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"})
	for i, r := range g.rows {
		w.Write([]string{
			fmt.Sprintf("TXN_%06d", i+1),
			r.sender,
			r.receiver,
			strconv.FormatFloat(r.amount, 'f', 2, 64),
			r.timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "mulegen: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d transactions to %s\n", len(g.rows), *out)
}
