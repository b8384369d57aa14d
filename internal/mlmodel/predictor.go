// Package mlmodel implements the ML Predictor (C4): loads a gob-encoded
// (standardizer, classifier) pipeline behind an integrity check and turns a
// feature record into a malicious-probability score.
package mlmodel

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"

	"github.com/alerta-link/alerta-link/internal/features"
	"github.com/alerta-link/alerta-link/internal/integrity"
)

// ErrUnavailable is returned by Predict when the model failed to load at
// boot — callers must treat this as "no ML score", never as a process error.
var ErrUnavailable = errors.New("mlmodel: predictor unavailable")

// standardizer holds the per-feature (mean, scale) pair fit during training.
type standardizer struct {
	Mean  []float64
	Scale []float64
}

func (s standardizer) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}

// classifier is a binary logistic-regression head over the standardized
// feature vector.
type classifier struct {
	Weights   []float64
	Intercept float64
}

func (c classifier) probability(x []float64) float64 {
	z := c.Intercept
	for i, w := range x {
		z += w * c.Weights[i]
	}
	return 1 / (1 + math.Exp(-z))
}

// artifact is the gob-encoded pipeline shape written by the training job.
type artifact struct {
	FeatureNames []string
	Standardizer standardizer
	Classifier   classifier
	Version      string
}

// Predictor serves probability estimates from a verified, loaded artifact.
// A zero-value Predictor (never loaded) is Unavailable by construction.
type Predictor struct {
	loaded  bool
	version string
	art     artifact
}

// Load verifies path's SHA-256 against wantHash, then gob-decodes the
// artifact and validates its feature-name list against features.Names in
// order (§4.4). On any failure it returns the error together with a
// non-nil Predictor that reports Unavailable, so a caller can log err and
// keep serving with that Predictor.
func Load(path, wantHash string) (*Predictor, error) {
	data, err := integrity.VerifyFile(path, wantHash)
	if err != nil {
		return &Predictor{}, fmt.Errorf("mlmodel: %w", err)
	}

	var art artifact
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&art); err != nil {
		return &Predictor{}, fmt.Errorf("mlmodel: decode artifact: %w", err)
	}

	if len(art.FeatureNames) != len(features.Names) {
		return &Predictor{}, fmt.Errorf("mlmodel: feature count mismatch: artifact has %d, expected %d", len(art.FeatureNames), len(features.Names))
	}
	for i, name := range features.Names {
		if art.FeatureNames[i] != name {
			return &Predictor{}, fmt.Errorf("mlmodel: feature name mismatch at %d: artifact has %q, expected %q", i, art.FeatureNames[i], name)
		}
	}
	if len(art.Standardizer.Mean) != len(features.Names) || len(art.Classifier.Weights) != len(features.Names) {
		return &Predictor{}, fmt.Errorf("mlmodel: artifact vector length mismatch")
	}

	return &Predictor{loaded: true, version: art.Version, art: art}, nil
}

// Available reports whether a verified artifact is loaded and ready to serve.
func (p *Predictor) Available() bool { return p != nil && p.loaded }

// Version is the trained artifact's declared version, empty if unavailable.
func (p *Predictor) Version() string {
	if p == nil {
		return ""
	}
	return p.version
}

// Predict maps a feature record to a malicious-probability score in [0,100]
// (§4.4: score_ml = round(100*p)), or ErrUnavailable if no artifact loaded.
func (p *Predictor) Predict(rec features.Record) (int, error) {
	if !p.Available() {
		return 0, ErrUnavailable
	}
	x := p.art.Standardizer.transform(rec.Vector())
	prob := p.art.Classifier.probability(x)
	score := int(math.Round(100 * prob))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}
