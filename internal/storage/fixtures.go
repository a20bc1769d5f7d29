package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"wallet-risk/internal/wallet"

	"go.etcd.io/bbolt"
)

// Fixture is a held-out wallet with the prediction the trained pipeline
// produced for it.
type Fixture struct {
	RunID        string        `json:"run_id"`
	Index        int           `json:"index"`
	Record       wallet.Record `json:"record"`
	Label        int           `json:"label"`
	Expected     int           `json:"expected"`
	Probability  float64       `json:"probability"`
	ModelVersion string        `json:"model_version"`
}

func fixtureKey(runID string, index int) []byte {
	return []byte(fmt.Sprintf("%s_%06d", runID, index))
}

// PutFixtures stores a run's fixtures and its summary in one transaction.
// Storing the same run again replaces it.
func (s *Store) PutFixtures(run RunSummary, fixtures []Fixture) error {
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.FixtureCount = len(fixtures)

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteRun(tx, run.RunID); err != nil {
			return err
		}

		fb := tx.Bucket([]byte(fixturesBucket))
		for _, f := range fixtures {
			f.RunID = run.RunID
			data, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("marshal fixture: %w", err)
			}
			if err := fb.Put(fixtureKey(run.RunID, f.Index), data); err != nil {
				return err
			}
		}

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run summary: %w", err)
		}
		return tx.Bucket([]byte(runsBucket)).Put(runKey(run.CreatedAt, run.RunID), data)
	})
}

// Fixtures returns a run's fixtures ordered by index.
func (s *Store) Fixtures(runID string) ([]Fixture, error) {
	var fixtures []Fixture

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(fixturesBucket)).Cursor()
		prefix := []byte(runID + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var f Fixture
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decode fixture %s: %w", k, err)
			}
			fixtures = append(fixtures, f)
		}
		return nil
	})

	return fixtures, err
}

// DeleteRun removes a run and its fixtures.
func (s *Store) DeleteRun(runID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return deleteRun(tx, runID)
	})
}

func deleteRun(tx *bbolt.Tx, runID string) error {
	fc := tx.Bucket([]byte(fixturesBucket)).Cursor()
	prefix := []byte(runID + "_")
	for k, _ := fc.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = fc.Seek(prefix) {
		if err := fc.Delete(); err != nil {
			return err
		}
	}

	rb := tx.Bucket([]byte(runsBucket))
	rc := rb.Cursor()
	var stale [][]byte
	for k, _ := rc.First(); k != nil; k, _ = rc.Next() {
		// Keys are "<20-digit time>_<run id>".
		if len(k) > 21 && string(k[21:]) == runID {
			stale = append(stale, append([]byte(nil), k...))
		}
	}
	for _, k := range stale {
		if err := rb.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
