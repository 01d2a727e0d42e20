// Package classify defines the gesture classification provider contract.
//
// A classifier receives one normalized landmark window — exactly
// sequence-length rows of feature-width values — and returns the most likely
// gesture label from a fixed vocabulary together with a confidence score.
// Implementations live in subpackages (heuristic, modelserver) and are
// interchangeable behind the [Provider] interface.
package classify

import (
	"context"
	"log/slog"
)

// Prediction is the result of classifying one landmark window.
type Prediction struct {
	// Label is the predicted gesture label, always a member of the
	// configured vocabulary.
	Label string

	// Confidence is the classifier's probability for Label, in [0, 1].
	Confidence float64

	// ClassIndex is the index of Label within the vocabulary.
	ClassIndex int
}

// Provider classifies normalized landmark windows.
//
// Implementations must be safe for concurrent use; the stream server invokes
// a single shared Provider from every connection's read loop.
type Provider interface {
	// Predict classifies one window. The window is guaranteed rectangular:
	// every row has the provider's configured feature width.
	Predict(ctx context.Context, window [][]float64) (Prediction, error)
}

// failClosed wraps a Provider so that any error or panic inside the inner
// classifier degrades to the lowest-confidence safe default instead of
// propagating. The stream pipeline has no recovery path for a classifier
// crash; the connection must stay alive.
type failClosed struct {
	inner      Provider
	vocabulary []string
}

// FailClosed returns a Provider that never fails: on any error or panic from
// inner it returns the first vocabulary entry with confidence 0.
func FailClosed(inner Provider, vocabulary []string) Provider {
	return &failClosed{inner: inner, vocabulary: vocabulary}
}

func (f *failClosed) Predict(ctx context.Context, window [][]float64) (p Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classifier panic recovered, failing closed", "panic", r)
			p, err = f.fallback(), nil
		}
	}()

	p, err = f.inner.Predict(ctx, window)
	if err != nil {
		slog.Warn("classifier error, failing closed", "err", err)
		return f.fallback(), nil
	}
	if p.Confidence < 0 || p.Confidence > 1 || p.ClassIndex < 0 || p.ClassIndex >= len(f.vocabulary) || f.vocabulary[p.ClassIndex] != p.Label {
		slog.Warn("classifier returned out-of-contract prediction, failing closed",
			"label", p.Label, "confidence", p.Confidence, "class_index", p.ClassIndex)
		return f.fallback(), nil
	}
	return p, nil
}

func (f *failClosed) fallback() Prediction {
	if len(f.vocabulary) == 0 {
		return Prediction{}
	}
	return Prediction{Label: f.vocabulary[0], Confidence: 0, ClassIndex: 0}
}
