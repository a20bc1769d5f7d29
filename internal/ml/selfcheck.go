package ml

import (
	"context"
	"fmt"
	"math"

	"wallet-risk/internal/storage"

	"github.com/rs/zerolog/log"
)

// probabilityTolerance bounds the drift allowed between a stored fixture
// probability and a replay. Artifacts round-trip exactly, so any real
// difference points at a changed pipeline.
const probabilityTolerance = 1e-9

// FixtureMismatch describes a fixture the loaded pipeline no longer
// reproduces.
type FixtureMismatch struct {
	Index      int
	Expected   int
	Got        int
	ExpectedP  float64
	GotP       float64
	ScoringErr error
}

// CheckFixtures replays stored fixtures through p and reports every one
// whose label or probability changed.
func CheckFixtures(ctx context.Context, p *Pipeline, fixtures []storage.Fixture) ([]FixtureMismatch, error) {
	var mismatches []FixtureMismatch
	for _, f := range fixtures {
		pred, err := p.score(ctx, f.Record)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		m := FixtureMismatch{Index: f.Index, Expected: f.Expected, ExpectedP: f.Probability, ScoringErr: err}
		passed := err == nil && pred.Label == f.Expected && math.Abs(pred.Probability-f.Probability) <= probabilityTolerance
		p.metrics.MLFixtureChecksInc(passed)
		if passed {
			continue
		}
		m.Got, m.GotP = pred.Label, pred.Probability
		mismatches = append(mismatches, m)
		log.Warn().
			Int("fixture", f.Index).
			Int("expected", f.Expected).
			Int("got", pred.Label).
			Float64("expected_probability", f.Probability).
			Float64("got_probability", pred.Probability).
			AnErr("scoring_error", err).
			Msg("Fixture mismatch")
	}
	return mismatches, nil
}

// SelfCheck replays the fixtures stored for the pipeline's model version.
// It fails when any fixture no longer reproduces; having no fixtures for
// the version is not an error.
func SelfCheck(ctx context.Context, p *Pipeline, store *storage.Store) error {
	version := p.Info().Version
	run, ok, err := store.LatestRun(version)
	if err != nil {
		return fmt.Errorf("look up fixtures: %w", err)
	}
	if !ok {
		log.Warn().Str("version", version).Msg("No fixtures stored for model version, skipping self-check")
		return nil
	}

	fixtures, err := store.Fixtures(run.RunID)
	if err != nil {
		return err
	}
	mismatches, err := CheckFixtures(ctx, p, fixtures)
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d of %d fixtures from run %s no longer reproduce", len(mismatches), len(fixtures), run.RunID)
	}

	log.Info().Str("run_id", run.RunID).Int("fixtures", len(fixtures)).Msg("Fixture self-check passed")
	return nil
}
