// Package storage provides persistent storage for the wallet risk service.
// It uses BoltDB as the underlying storage engine to keep a record of each
// training run together with the held-out sample wallets and the prediction
// the freshly trained pipeline gave for them. Serving replays those fixtures
// at startup to prove the loaded artifacts still behave as trained.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	runsBucket     = "runs"     // Bucket name for training run summaries
	fixturesBucket = "fixtures" // Bucket name for per-run regression fixtures
)

// DBFile is the database file name inside the data directory.
const DBFile = "wallet-risk.db"

// Store provides persistent storage for training runs and fixtures.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the database in dataPath and its buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, DBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(fixturesBucket)); err != nil {
			return fmt.Errorf("create fixtures bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunSummary indexes one training run's fixtures.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	ModelVersion string    `json:"model_version"`
	Fingerprint  string    `json:"preprocessor_fingerprint"`
	CreatedAt    time.Time `json:"created_at"`
	FixtureCount int       `json:"fixture_count"`
}

// runKey orders runs by creation time.
func runKey(createdAt time.Time, runID string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", createdAt.UnixNano(), runID))
}

func timeKey(t time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", t.UnixNano()))
}

// Runs returns run summaries created within [start, end], oldest first.
func (s *Store) Runs(start, end time.Time) ([]RunSummary, error) {
	var runs []RunSummary

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		endKey := timeKey(end.Add(time.Nanosecond))

		for k, v := c.Seek(timeKey(start)); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			var run RunSummary
			if err := json.Unmarshal(v, &run); err != nil {
				continue // Skip malformed records
			}
			runs = append(runs, run)
		}
		return nil
	})

	return runs, err
}

// LatestRun returns the most recent run, optionally restricted to a model
// version. ok is false when no run matches.
func (s *Store) LatestRun(modelVersion string) (run RunSummary, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r RunSummary
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if modelVersion == "" || r.ModelVersion == modelVersion {
				run, ok = r, true
				return nil
			}
		}
		return nil
	})
	return run, ok, err
}
