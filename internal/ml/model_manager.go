package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// ModelVersion records one training run's artifacts and holdout scores.
type ModelVersion struct {
	RunID       string        `json:"run_id"`
	Version     string        `json:"version"`
	Artifacts   ArtifactPaths `json:"artifacts"`
	Fingerprint string        `json:"preprocessor_fingerprint"`
	CreatedAt   time.Time     `json:"created_at"`
	Metrics     ModelMetrics  `json:"metrics"`
	IsActive    bool          `json:"is_active"`
}

// ModelMetrics contains holdout performance metrics for a model
type ModelMetrics struct {
	Accuracy        float64 `json:"accuracy"`
	AUCScore        float64 `json:"auc_score"`
	F1Score         float64 `json:"f1_score"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	PositiveRate    float64 `json:"positive_rate"`
	TrainingSamples int     `json:"training_samples"`
	HoldoutSamples  int     `json:"holdout_samples"`
}

// NewModelMetrics summarizes a holdout report.
func NewModelMetrics(r EvaluationReport, trainingSamples int) ModelMetrics {
	return ModelMetrics{
		Accuracy:        r.Accuracy,
		AUCScore:        r.ROCAUC,
		F1Score:         r.F1,
		Precision:       r.Precision,
		Recall:          r.Recall,
		PositiveRate:    ratio(r.Confusion.TP+r.Confusion.FP, r.Samples),
		TrainingSamples: trainingSamples,
		HoldoutSamples:  r.Samples,
	}
}

// ModelManager handles the training run registry and rollback
type ModelManager struct {
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	currentModel *ModelVersion
}

// NewModelManager opens the registry in modelsDir, creating the directory
// if needed.
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	versionsFile := filepath.Join(modelsDir, "model_versions.json")

	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: versionsFile,
		versions:     make([]ModelVersion, 0),
	}

	// Load existing versions if available
	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Msg("Failed to load model versions, starting fresh")
	}

	return mm, nil
}

// AddVersion registers a training run. Run ids must be unique.
func (mm *ModelManager) AddVersion(v ModelVersion) error {
	if v.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	for _, existing := range mm.versions {
		if existing.RunID == v.RunID {
			return fmt.Errorf("run %s already registered", v.RunID)
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	v.IsActive = false

	mm.versions = append(mm.versions, v)

	// Newest first
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})
	mm.refreshCurrent()

	return mm.saveVersions()
}

// ActivateVersion marks the given run as the serving model
func (mm *ModelManager) ActivateVersion(runID string) error {
	found := false
	for i := range mm.versions {
		if mm.versions[i].RunID == runID {
			mm.versions[i].IsActive = true
			found = true
		} else {
			mm.versions[i].IsActive = false
		}
	}

	if !found {
		return fmt.Errorf("run %s not found", runID)
	}
	mm.refreshCurrent()

	log.Info().Str("run_id", runID).Msg("Model version activated")
	return mm.saveVersions()
}

// Rollback activates the run registered before the active one. It only
// moves the registry flag; RollbackArtifacts also restores the files.
func (mm *ModelManager) Rollback() error {
	runID, err := mm.previousRun()
	if err != nil {
		return err
	}
	return mm.ActivateVersion(runID)
}

// RollbackArtifacts restores the run registered before the active one into
// the serving paths and activates it.
func (mm *ModelManager) RollbackArtifacts(serving ArtifactPaths) (string, error) {
	runID, err := mm.previousRun()
	if err != nil {
		return "", err
	}
	return runID, mm.Restore(runID, serving)
}

func (mm *ModelManager) previousRun() (string, error) {
	if len(mm.versions) < 2 {
		return "", fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range mm.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}

	if currentIdx == -1 {
		return "", fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(mm.versions) {
		return "", fmt.Errorf("no previous version available")
	}
	return mm.versions[currentIdx+1].RunID, nil
}

// RunArtifacts is where a run keeps its own copy of the artifact pair.
func (mm *ModelManager) RunArtifacts(runID string) ArtifactPaths {
	dir := filepath.Join(mm.modelsDir, runID)
	return ArtifactPaths{
		Preprocessor: filepath.Join(dir, "preprocessor.json"),
		Model:        filepath.Join(dir, "model.json"),
	}
}

// Restore copies a run's archived artifacts over the serving pair and marks
// the run active. The pair is loaded and checked before anything is written.
func (mm *ModelManager) Restore(runID string, serving ArtifactPaths) error {
	var v *ModelVersion
	for i := range mm.versions {
		if mm.versions[i].RunID == runID {
			v = &mm.versions[i]
			break
		}
	}
	if v == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	if v.Artifacts == serving {
		return fmt.Errorf("run %s has no archived artifacts", runID)
	}

	pre, model, err := LoadArtifacts(v.Artifacts)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if err := SaveArtifacts(serving, pre, model); err != nil {
		return fmt.Errorf("restore run %s: %w", runID, err)
	}
	return mm.ActivateVersion(runID)
}

// GetCurrentVersion returns the active run, or nil.
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	if mm.currentModel == nil {
		return nil
	}
	v := *mm.currentModel
	return &v
}

// ListVersions returns all runs, newest first
func (mm *ModelManager) ListVersions() []ModelVersion {
	return append([]ModelVersion(nil), mm.versions...)
}

func (mm *ModelManager) refreshCurrent() {
	mm.currentModel = nil
	for i := range mm.versions {
		if mm.versions[i].IsActive {
			mm.currentModel = &mm.versions[i]
			break
		}
	}
}

// loadVersions loads model versions from file
func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}
	mm.refreshCurrent()

	return nil
}

// saveVersions saves model versions to file
func (mm *ModelManager) saveVersions() error {
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}

	return writeFileAtomic(mm.versionsFile, data)
}
