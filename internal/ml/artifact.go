package ml

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"wallet-risk/internal/features"

	"github.com/rs/zerolog/log"
)

// ArtifactPaths locates the paired artifacts of one trained pipeline.
type ArtifactPaths struct {
	Preprocessor string `yaml:"preprocessor" json:"preprocessor"`
	Model        string `yaml:"model" json:"model"`
}

// SaveArtifacts writes the preprocessor and then the model. Each file is
// replaced atomically, so a reader sees either the old or the new file.
func SaveArtifacts(paths ArtifactPaths, pre *features.Preprocessor, model PersistentModel) error {
	if !pre.Fitted() {
		return features.ErrNotFitted
	}
	if model.PreprocessorFingerprint() != pre.Fingerprint() {
		return fmt.Errorf("%w: model built on %s, preprocessor is %s",
			ErrArtifactMismatch, model.PreprocessorFingerprint(), pre.Fingerprint())
	}

	preBytes, err := pre.MarshalArtifact()
	if err != nil {
		return fmt.Errorf("marshal preprocessor: %w", err)
	}
	var modelBuf bytes.Buffer
	if err := model.Save(&modelBuf); err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	if err := writeFileAtomic(paths.Preprocessor, preBytes); err != nil {
		return fmt.Errorf("write preprocessor: %w", err)
	}
	if err := writeFileAtomic(paths.Model, modelBuf.Bytes()); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	log.Info().
		Str("preprocessor", paths.Preprocessor).
		Str("model", paths.Model).
		Str("version", model.Version()).
		Msg("Artifacts saved")
	return nil
}

// LoadArtifacts reads both artifacts and checks they belong together.
func LoadArtifacts(paths ArtifactPaths) (*features.Preprocessor, *BoostedTrees, error) {
	pf, err := os.Open(paths.Preprocessor)
	if err != nil {
		return nil, nil, fmt.Errorf("open preprocessor: %w", err)
	}
	defer pf.Close()
	pre, err := features.LoadPreprocessor(pf)
	if err != nil {
		return nil, nil, fmt.Errorf("load preprocessor %s: %w", paths.Preprocessor, err)
	}

	mf, err := os.Open(paths.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("open model: %w", err)
	}
	defer mf.Close()
	model, err := LoadBoostedTrees(mf)
	if err != nil {
		return nil, nil, fmt.Errorf("load model %s: %w", paths.Model, err)
	}

	if model.PreprocessorFingerprint() != pre.Fingerprint() {
		return nil, nil, fmt.Errorf("%w: model built on %s, preprocessor is %s",
			ErrArtifactMismatch, model.PreprocessorFingerprint(), pre.Fingerprint())
	}
	return pre, model, nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
