// Package ingest loads transaction ledgers from CSV and normalizes
// them into validated domain transactions. All errors here are fatal
// to the analysis; no partial report is produced from a bad ledger.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// columnAliases maps common header variations to canonical names.
var columnAliases = map[string]string{
	"sender":           "sender_id",
	"sender_account":   "sender_id",
	"from_account":     "sender_id",
	"from":             "sender_id",
	"source":           "sender_id",
	"receiver":         "receiver_id",
	"receiver_account": "receiver_id",
	"to_account":       "receiver_id",
	"to":               "receiver_id",
	"destination":      "receiver_id",
	"date":             "timestamp",
	"time":             "timestamp",
	"transaction_date": "timestamp",
	"txn_id":           "transaction_id",
	"tx_id":            "transaction_id",
	"id":               "transaction_id",
}

// timestampLayouts are tried in order for each timestamp value.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

var requiredColumns = []string{"sender_id", "receiver_id", "amount", "timestamp"}

// LoadFile reads and validates a transaction CSV from disk.
func LoadFile(path string) ([]domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a transaction CSV, normalizes column names, coerces
// types, and drops rows that violate the input contract (missing
// fields, malformed amounts, sender equal to receiver). Transaction
// ids are auto-generated sequentially when the column is absent.
// Returns domain.ErrNoTransactions if nothing survives cleaning.
func Load(r io.Reader) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := columnAliases[name]; ok {
			name = canonical
		}
		if _, taken := columns[name]; !taken {
			columns[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: CSV missing required columns: %s",
			domain.ErrInvalidInput, strings.Join(missing, ", "))
	}

	idCol, hasIDCol := columns["transaction_id"]

	var txs []domain.Transaction
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		row++

		tx := domain.Transaction{
			Sender:   field(record, columns["sender_id"]),
			Receiver: field(record, columns["receiver_id"]),
		}
		if tx.Sender == "" || tx.Receiver == "" || tx.Sender == tx.Receiver {
			continue
		}

		amount, ok := parseAmount(field(record, columns["amount"]))
		if !ok {
			continue
		}
		tx.Amount = amount

		rawTS := field(record, columns["timestamp"])
		if rawTS == "" {
			continue
		}
		ts, err := ParseTimestamp(rawTS)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp format on row %d: %w", row, err)
		}
		tx.Timestamp = ts

		if hasIDCol {
			tx.ID = field(record, idCol)
		}
		if tx.ID == "" {
			tx.ID = fmt.Sprintf("TXN_%06d", row)
		}

		txs = append(txs, tx)
	}

	if len(txs) == 0 {
		return nil, domain.ErrNoTransactions
	}
	return txs, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseAmount(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseTimestamp parses a timestamp string against the accepted
// layouts in order.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
