package ml

import (
	"testing"
	"time"
)

// TestModelManager tests run registration, activation and rollback
func TestModelManager(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewModelManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create model manager: %v", err)
	}

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err = manager.AddVersion(ModelVersion{
		RunID:     "run-1",
		Version:   "gbdt-000001",
		CreatedAt: created,
		Metrics:   ModelMetrics{AUCScore: 0.85, F1Score: 0.78},
	})
	if err != nil {
		t.Fatalf("Failed to add model version: %v", err)
	}
	if manager.GetCurrentVersion() != nil {
		t.Error("Expected no active version before activation")
	}

	if err := manager.ActivateVersion("run-1"); err != nil {
		t.Fatalf("Failed to activate version: %v", err)
	}

	err = manager.AddVersion(ModelVersion{
		RunID:     "run-2",
		Version:   "gbdt-000002",
		CreatedAt: created.Add(time.Hour),
		Metrics:   ModelMetrics{AUCScore: 0.88, F1Score: 0.81},
	})
	if err != nil {
		t.Fatalf("Failed to add second model version: %v", err)
	}

	versions := manager.ListVersions()
	if len(versions) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(versions))
	}
	if versions[0].RunID != "run-2" {
		t.Errorf("Expected newest run first, got %s", versions[0].RunID)
	}
	if current := manager.GetCurrentVersion(); current == nil || current.RunID != "run-1" {
		t.Errorf("Expected run-1 to stay active after adding run-2, got %+v", current)
	}

	if err := manager.ActivateVersion("run-2"); err != nil {
		t.Fatalf("Failed to activate second version: %v", err)
	}
	if err := manager.Rollback(); err != nil {
		t.Fatalf("Failed to rollback: %v", err)
	}
	current := manager.GetCurrentVersion()
	if current == nil || current.RunID != "run-1" {
		t.Errorf("Expected rollback to run-1, got %+v", current)
	}

	// Nothing older than run-1
	if err := manager.Rollback(); err == nil {
		t.Error("Expected error when rolling back past the oldest run")
	}

	if err := manager.ActivateVersion("nonexistent-run"); err == nil {
		t.Error("Expected error for nonexistent run")
	}
	if err := manager.AddVersion(ModelVersion{RunID: "run-1"}); err == nil {
		t.Error("Expected error for duplicate run id")
	}
	if err := manager.AddVersion(ModelVersion{}); err == nil {
		t.Error("Expected error for empty run id")
	}
}

func TestModelManager_PersistsAcrossReopen(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewModelManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create model manager: %v", err)
	}
	v := ModelVersion{
		RunID:       "run-a",
		Version:     "gbdt-abcdef",
		Fingerprint: "fp",
		Artifacts:   ArtifactPaths{Preprocessor: "pre.json", Model: "model.json"},
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := manager.AddVersion(v); err != nil {
		t.Fatalf("AddVersion: %v", err)
	}
	if err := manager.ActivateVersion("run-a"); err != nil {
		t.Fatalf("ActivateVersion: %v", err)
	}

	reopened, err := NewModelManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to reopen model manager: %v", err)
	}
	current := reopened.GetCurrentVersion()
	if current == nil {
		t.Fatal("Expected active version after reopen")
	}
	if current.Artifacts != v.Artifacts || current.Fingerprint != "fp" || !current.CreatedAt.Equal(v.CreatedAt) {
		t.Errorf("Reopened version differs: %+v", current)
	}
}

func TestNewModelMetrics(t *testing.T) {
	r := EvaluationReport{
		Accuracy:  0.9,
		ROCAUC:    0.95,
		F1:        0.8,
		Precision: 0.75,
		Recall:    0.85,
		Confusion: ConfusionMatrix{TN: 6, FP: 1, FN: 1, TP: 2},
		Samples:   10,
	}
	m := NewModelMetrics(r, 40)
	if m.PositiveRate != 0.3 {
		t.Errorf("Expected positive rate 0.3, got %v", m.PositiveRate)
	}
	if m.TrainingSamples != 40 || m.HoldoutSamples != 10 {
		t.Errorf("Unexpected sample counts: %+v", m)
	}
	if m.AUCScore != 0.95 || m.F1Score != 0.8 {
		t.Errorf("Scores not copied: %+v", m)
	}
}
