package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching finished reports and
// visualization views so repeated result fetches skip the repository.
// Supports two-phase caching: local LRU (L1) plus Redis (L2).
type Cache interface {
	// Get retrieves a value. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// GetReport retrieves a cached report for an analysis.
	// Returns nil, nil on miss.
	GetReport(ctx context.Context, analysisID string) (*Report, error)

	// SetReport caches a finished report.
	SetReport(ctx context.Context, analysisID string, report *Report, ttl time.Duration) error

	// Health check.
	Ping(ctx context.Context) error

	// Lifecycle.
	Close() error
}
