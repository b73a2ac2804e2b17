// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"fmt"
	"time"
)

// Transaction is one validated ledger entry: a transfer of funds from
// one account to another. Records are immutable once validated by the
// ingest layer; sender and receiver are guaranteed to differ.
type Transaction struct {
	ID        string    `json:"transaction_id"`
	Sender    string    `json:"sender_id"`
	Receiver  string    `json:"receiver_id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate reports whether the transaction satisfies the ingest
// contract: distinct non-empty parties and a non-negative amount.
func (t *Transaction) Validate() error {
	if t.Sender == "" || t.Receiver == "" {
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidInput)
	}
	if t.Sender == t.Receiver {
		return fmt.Errorf("%w: sender and receiver must differ", ErrInvalidInput)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidInput)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	return nil
}
