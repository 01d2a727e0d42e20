// Package heuristic provides a deterministic, dependency-free gesture
// classifier for use before a trained gesture model is available.
//
// Frames that carry a full hand landmark set are checked against geometric
// pose rules first (currently the alif pose). Anything else is mapped onto
// the vocabulary by the variance of the window, so the same window always
// yields the same prediction. Values stay within the classify.Provider
// contract (confidence in [0,1], label drawn from the vocabulary), which
// makes the stand-in swappable with a real model without touching any caller.
package heuristic

import (
	"context"
	"errors"
	"math"

	"github.com/harya06/iqro-gesture/internal/hand"
	"github.com/harya06/iqro-gesture/pkg/provider/classify"
)

// Compile-time interface assertion.
var _ classify.Provider = (*Classifier)(nil)

// Confidence bounds for variance-based predictions. The spread keeps the
// stand-in above typical confidence gates so the full pipeline can be
// exercised end to end.
const (
	minConfidence = 0.70
	maxConfidence = 0.95
)

// Classifier is a deterministic gesture classifier built from geometric pose
// rules and a variance fallback.
type Classifier struct {
	vocabulary []string
	alifIndex  int
}

// New creates a heuristic classifier over the given vocabulary.
func New(vocabulary []string) (*Classifier, error) {
	if len(vocabulary) == 0 {
		return nil, errors.New("heuristic: vocabulary must not be empty")
	}
	vocab := make([]string, len(vocabulary))
	copy(vocab, vocabulary)

	alifIndex := -1
	for i, l := range vocab {
		if l == "Alif" {
			alifIndex = i
			break
		}
	}
	return &Classifier{vocabulary: vocab, alifIndex: alifIndex}, nil
}

// Predict classifies one window. When the final frame carries a full
// 21-landmark hand and matches the alif pose, that prediction wins. Otherwise
// the window's coordinate variance is mapped onto a class index, with the
// fractional remainder of the same quantity driving the confidence so that
// distinct windows spread over the confidence range while any given window
// stays stable across calls.
func (c *Classifier) Predict(_ context.Context, window [][]float64) (classify.Prediction, error) {
	if len(window) == 0 {
		return classify.Prediction{}, errors.New("heuristic: empty window")
	}

	if c.alifIndex >= 0 {
		if lm := hand.FromFlat(window[len(window)-1]); lm != nil {
			if isAlif, conf := hand.DetectAlif(lm); isAlif {
				return classify.Prediction{
					Label:      c.vocabulary[c.alifIndex],
					Confidence: conf,
					ClassIndex: c.alifIndex,
				}, nil
			}
		}
	}

	v := variance(window)
	scaled := v * 1000

	idx := int(math.Mod(scaled, float64(len(c.vocabulary))))
	if idx < 0 {
		idx += len(c.vocabulary)
	}

	_, frac := math.Modf(scaled)
	confidence := minConfidence + math.Abs(frac)*(maxConfidence-minConfidence)

	return classify.Prediction{
		Label:      c.vocabulary[idx],
		Confidence: confidence,
		ClassIndex: idx,
	}, nil
}

// variance computes the population variance over every coordinate in the
// window.
func variance(window [][]float64) float64 {
	var sum float64
	var n int
	for _, row := range window {
		for _, v := range row {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)

	var sq float64
	for _, row := range window {
		for _, v := range row {
			d := v - mean
			sq += d * d
		}
	}
	return sq / float64(n)
}
