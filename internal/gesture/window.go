// Package gesture implements the sliding-window normalization that turns
// variable-length landmark bursts into the fixed-size windows the classifier
// expects.
package gesture

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned by [Window.Normalize] for a nil or empty frame
// sequence.
var ErrEmptyInput = errors.New("gesture: empty frame sequence")

// Window normalizes frame sequences to a fixed classification shape:
// exactly TargetLength rows of FeatureWidth values each.
//
// Window performs no smoothing, interpolation, or coordinate normalization;
// those belong to the classifier or its caller.
type Window struct {
	// TargetLength is the number of frames in one classification window.
	TargetLength int

	// FeatureWidth is the flattened coordinate count per frame.
	FeatureWidth int
}

// New returns a Window with the given shape. Both dimensions must be positive.
func New(targetLength, featureWidth int) (*Window, error) {
	if targetLength < 1 {
		return nil, fmt.Errorf("gesture: target length must be positive, got %d", targetLength)
	}
	if featureWidth < 1 {
		return nil, fmt.Errorf("gesture: feature width must be positive, got %d", featureWidth)
	}
	return &Window{TargetLength: targetLength, FeatureWidth: featureWidth}, nil
}

// Normalize produces a window of exactly TargetLength frames from frames:
//
//   - shorter input is front-padded with zero vectors so the real frames keep
//     their temporal order at the end of the window;
//   - longer input keeps only the most recent TargetLength frames;
//   - exact-length input passes through unchanged (the same backing rows).
//
// Every input frame must have exactly FeatureWidth values; a ragged or
// wrong-width frame fails the whole call before any padding happens.
func (w *Window) Normalize(frames [][]float64) ([][]float64, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyInput
	}
	for i, f := range frames {
		if len(f) != w.FeatureWidth {
			return nil, fmt.Errorf("gesture: frame %d has %d values, want %d", i, len(f), w.FeatureWidth)
		}
	}

	n := len(frames)
	switch {
	case n == w.TargetLength:
		return frames, nil
	case n > w.TargetLength:
		return frames[n-w.TargetLength:], nil
	default:
		out := make([][]float64, w.TargetLength)
		pad := w.TargetLength - n
		for i := 0; i < pad; i++ {
			out[i] = make([]float64, w.FeatureWidth)
		}
		copy(out[pad:], frames)
		return out, nil
	}
}

// Flatten converts a per-landmark representation (frames of landmarkCount
// points with coordsPerPoint values each) into flat feature vectors. The
// product landmarkCount*coordsPerPoint must equal FeatureWidth, enforced per
// frame. Frames that are already flat (one row of FeatureWidth values) are
// passed through.
func (w *Window) Flatten(frames [][][]float64) ([][]float64, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float64, len(frames))
	for i, frame := range frames {
		flat := make([]float64, 0, w.FeatureWidth)
		for _, point := range frame {
			flat = append(flat, point...)
		}
		if len(flat) != w.FeatureWidth {
			return nil, fmt.Errorf("gesture: frame %d flattens to %d values, want %d", i, len(flat), w.FeatureWidth)
		}
		out[i] = flat
	}
	return out, nil
}
