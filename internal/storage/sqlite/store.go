package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/midway-labs/midway/internal/middleware"
	"github.com/midway-labs/midway/internal/pattern"
	"github.com/midway-labs/midway/internal/storage"
)

// Store is a SQLite implementation of PatternStore.
type Store struct {
	db *sqlx.DB
}

var _ storage.PatternStore = (*Store)(nil)

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS learned_patterns (
			digest TEXT PRIMARY KEY,
			kinds TEXT NOT NULL,
			occurrences INTEGER NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pattern_usage (
			name TEXT PRIMARY KEY,
			matches INTEGER NOT NULL,
			last_matched TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_learned_last_seen ON learned_patterns(last_seen)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type learnedRow struct {
	Digest      string    `db:"digest"`
	Kinds       string    `db:"kinds"`
	Occurrences int       `db:"occurrences"`
	LastSeen    time.Time `db:"last_seen"`
}

type usageRow struct {
	Name        string    `db:"name"`
	Matches     int       `db:"matches"`
	LastMatched time.Time `db:"last_matched"`
}

// SaveLearned replaces the stored learned-pattern snapshot.
func (s *Store) SaveLearned(ctx context.Context, records []pattern.LearnedRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM learned_patterns"); err != nil {
		return err
	}
	for _, r := range records {
		kinds, err := json.Marshal(r.Kinds)
		if err != nil {
			return fmt.Errorf("marshal kinds: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO learned_patterns (digest, kinds, occurrences, last_seen) VALUES (?, ?, ?, ?)`,
			fmt.Sprintf("%016x", r.Digest), string(kinds), r.Occurrences, r.LastSeen.UTC(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadLearned reads back the learned-pattern snapshot.
func (s *Store) LoadLearned(ctx context.Context) ([]pattern.LearnedRecord, error) {
	var rows []learnedRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT digest, kinds, occurrences, last_seen FROM learned_patterns"); err != nil {
		return nil, err
	}

	out := make([]pattern.LearnedRecord, 0, len(rows))
	for _, row := range rows {
		digest, err := strconv.ParseUint(row.Digest, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parse digest %q: %w", row.Digest, err)
		}
		var kinds []middleware.Kind
		if err := json.Unmarshal([]byte(row.Kinds), &kinds); err != nil {
			return nil, fmt.Errorf("unmarshal kinds: %w", err)
		}
		out = append(out, pattern.LearnedRecord{
			Digest:      digest,
			Kinds:       kinds,
			Occurrences: row.Occurrences,
			LastSeen:    row.LastSeen,
		})
	}
	return out, nil
}

// SaveUsage replaces the stored usage-record snapshot.
func (s *Store) SaveUsage(ctx context.Context, records []pattern.Usage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pattern_usage"); err != nil {
		return err
	}
	for _, r := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pattern_usage (name, matches, last_matched) VALUES (?, ?, ?)`,
			r.Name, r.Matches, r.LastMatched.UTC(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadUsage reads back the usage-record snapshot.
func (s *Store) LoadUsage(ctx context.Context) ([]pattern.Usage, error) {
	var rows []usageRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT name, matches, last_matched FROM pattern_usage"); err != nil {
		return nil, err
	}

	out := make([]pattern.Usage, 0, len(rows))
	for _, row := range rows {
		out = append(out, pattern.Usage{
			Name:        row.Name,
			Matches:     row.Matches,
			LastMatched: row.LastMatched,
		})
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
