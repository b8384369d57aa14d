package mlmodel

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alerta-link/alerta-link/internal/features"
	"github.com/alerta-link/alerta-link/internal/integrity"
)

func writeArtifact(t *testing.T, art artifact) (path, hash string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(art))

	dir := t.TempDir()
	path = filepath.Join(dir, "model.gob")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path, integrity.Sum(buf.Bytes())
}

func validArtifact() artifact {
	n := len(features.Names)
	mean := make([]float64, n)
	scale := make([]float64, n)
	weights := make([]float64, n)
	for i := range scale {
		scale[i] = 1
	}
	return artifact{
		FeatureNames: append([]string{}, features.Names...),
		Standardizer: standardizer{Mean: mean, Scale: scale},
		Classifier:   classifier{Weights: weights, Intercept: 0},
		Version:      "test-1",
	}
}

func TestLoad_ValidArtifact(t *testing.T) {
	path, hash := writeArtifact(t, validArtifact())

	p, err := Load(path, hash)
	require.NoError(t, err)
	assert.True(t, p.Available())
	assert.Equal(t, "test-1", p.Version())
}

func TestLoad_HashMismatchMakesUnavailable(t *testing.T) {
	path, _ := writeArtifact(t, validArtifact())

	p, err := Load(path, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.Error(t, err)
	assert.False(t, p.Available())
}

func TestLoad_FeatureNameMismatch(t *testing.T) {
	art := validArtifact()
	art.FeatureNames[0] = "not-a-real-feature"
	path, hash := writeArtifact(t, art)

	p, err := Load(path, hash)
	assert.Error(t, err)
	assert.False(t, p.Available())
}

func TestPredict_UnavailableZeroValue(t *testing.T) {
	var p Predictor
	_, err := p.Predict(features.Record{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPredict_ZeroWeightsYieldsFiftyPercent(t *testing.T) {
	path, hash := writeArtifact(t, validArtifact())
	p, err := Load(path, hash)
	require.NoError(t, err)

	score, err := p.Predict(features.Record{})
	require.NoError(t, err)
	assert.Equal(t, 50, score)
}
