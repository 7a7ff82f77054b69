// Package storage defines the persistence port for the pattern catalog.
// A PatternStore lets a restarted process keep the patterns it learned
// and the usage history that drives adaptive matching.
package storage

import (
	"context"

	"github.com/midway-labs/midway/internal/pattern"
)

// PatternStore persists learned patterns and usage records. Save calls
// replace the stored snapshot wholesale; the catalog is the source of
// truth while the process runs.
type PatternStore interface {
	SaveLearned(ctx context.Context, records []pattern.LearnedRecord) error
	LoadLearned(ctx context.Context) ([]pattern.LearnedRecord, error)
	SaveUsage(ctx context.Context, records []pattern.Usage) error
	LoadUsage(ctx context.Context) ([]pattern.Usage, error)
	Close() error
}
