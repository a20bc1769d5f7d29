package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"wallet-risk/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempArtifacts(t *testing.T) ArtifactPaths {
	dir := t.TempDir()
	return ArtifactPaths{
		Preprocessor: filepath.Join(dir, "artifacts", "preprocessor.json"),
		Model:        filepath.Join(dir, "artifacts", "model.json"),
	}
}

func TestArtifacts_RoundTripPreservesPredictions(t *testing.T) {
	res := trainedResult(t)
	paths := tempArtifacts(t)
	require.NoError(t, SaveArtifacts(paths, res.Preprocessor, res.Model.(PersistentModel)))

	entries, err := os.ReadDir(filepath.Dir(paths.Model))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not be left behind")

	pre, model, err := LoadArtifacts(paths)
	require.NoError(t, err)
	assert.Equal(t, res.Preprocessor.Fingerprint(), pre.Fingerprint())
	assert.Equal(t, res.Model.Version(), model.Version())

	original := trainedPipeline(t, nil)
	loaded, err := NewPipeline(pre, model, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for _, d := range wallet.Synthetic(25, 11) {
		want, err := original.Score(ctx, d.Record)
		require.NoError(t, err)
		got, err := loaded.Score(ctx, d.Record)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSaveArtifacts_RefusesMismatchedPair(t *testing.T) {
	res := trainedResult(t)
	paths := tempArtifacts(t)

	err := SaveArtifacts(paths, otherPreprocessor(t), res.Model.(PersistentModel))
	assert.ErrorIs(t, err, ErrArtifactMismatch)
	_, statErr := os.Stat(paths.Preprocessor)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadArtifacts_DetectsMismatch(t *testing.T) {
	res := trainedResult(t)
	paths := tempArtifacts(t)
	require.NoError(t, SaveArtifacts(paths, res.Preprocessor, res.Model.(PersistentModel)))

	data, err := otherPreprocessor(t).MarshalArtifact()
	require.NoError(t, err)
	require.NoError(t, writeFileAtomic(paths.Preprocessor, data))

	_, _, err = LoadArtifacts(paths)
	assert.ErrorIs(t, err, ErrArtifactMismatch)
}

func TestLoadArtifacts_MissingFiles(t *testing.T) {
	paths := tempArtifacts(t)
	_, _, err := LoadArtifacts(paths)
	assert.ErrorContains(t, err, "open preprocessor")
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.json")
	require.NoError(t, writeFileAtomic(path, []byte("one")))
	require.NoError(t, writeFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
