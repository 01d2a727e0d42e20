package heuristic_test

import (
	"context"
	"testing"

	"github.com/harya06/iqro-gesture/pkg/provider/classify/heuristic"
)

var vocab = []string{"Alif", "Ba", "Ta", "Tsa", "Jim"}

func TestNew_RejectsEmptyVocabulary(t *testing.T) {
	if _, err := heuristic.New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestPredict_Deterministic(t *testing.T) {
	c, err := heuristic.New(vocab)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	window := [][]float64{{0.1, 0.5, 0.9}, {0.2, 0.4, 0.8}}
	first, err := c.Predict(context.Background(), window)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i := 0; i < 10; i++ {
		p, err := c.Predict(context.Background(), window)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if p != first {
			t.Fatalf("call %d returned %+v, first call returned %+v", i, p, first)
		}
	}
}

func TestPredict_StaysWithinContract(t *testing.T) {
	c, _ := heuristic.New(vocab)

	windows := [][][]float64{
		{{0, 0, 0}, {0, 0, 0}},
		{{1, 1, 1}},
		{{0.1, 0.9}, {0.5, 0.3}, {0.7, 0.2}},
		{{-3.5, 12.25}, {100, -100}},
	}
	for i, w := range windows {
		p, err := c.Predict(context.Background(), w)
		if err != nil {
			t.Fatalf("window %d: %v", i, err)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			t.Errorf("window %d: confidence %g out of [0,1]", i, p.Confidence)
		}
		if p.ClassIndex < 0 || p.ClassIndex >= len(vocab) {
			t.Errorf("window %d: class index %d out of range", i, p.ClassIndex)
		}
		if p.Label != vocab[p.ClassIndex] {
			t.Errorf("window %d: label %q does not match vocabulary[%d] = %q", i, p.Label, p.ClassIndex, vocab[p.ClassIndex])
		}
	}
}

func TestPredict_EmptyWindow(t *testing.T) {
	c, _ := heuristic.New(vocab)
	if _, err := c.Predict(context.Background(), nil); err == nil {
		t.Error("Predict(nil) should fail")
	}
}

// neutralFrame returns a flattened 21-landmark frame with every point at the
// same height, so no finger reads as raised.
func neutralFrame() []float64 {
	frame := make([]float64, 63)
	for i := 0; i < 21; i++ {
		frame[i*3] = float64(i) * 0.01 // x
		frame[i*3+1] = 0.5             // y
	}
	return frame
}

// alifFrame returns a flattened frame posing the alif gesture: index finger
// raised, all other fingers folded below their reference joints.
func alifFrame() []float64 {
	frame := neutralFrame()
	setY := func(landmark int, y float64) { frame[landmark*3+1] = y }
	setY(8, 0.2)  // index tip above index PIP
	setY(12, 0.7) // middle tip below middle PIP
	setY(16, 0.7) // ring tip below ring PIP
	setY(20, 0.7) // pinky tip below pinky PIP
	setY(4, 0.7)  // thumb tip below thumb MCP
	return frame
}

func TestPredict_AlifPose(t *testing.T) {
	c, _ := heuristic.New(vocab)

	p, err := c.Predict(context.Background(), [][]float64{neutralFrame(), alifFrame()})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.Label != "Alif" {
		t.Fatalf("label = %q, want Alif", p.Label)
	}
	if p.Confidence != 1.0 {
		t.Errorf("confidence = %g, want 1.0 for a clean alif pose", p.Confidence)
	}
	if p.ClassIndex != 0 {
		t.Errorf("class index = %d, want 0", p.ClassIndex)
	}
}

func TestPredict_NeutralPoseFallsBackToVariance(t *testing.T) {
	c, _ := heuristic.New(vocab)

	p, err := c.Predict(context.Background(), [][]float64{neutralFrame()})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	// The variance path never reaches the pose path's full confidence.
	if p.Confidence >= 1.0 {
		t.Errorf("confidence = %g, expected variance-based prediction below 1.0", p.Confidence)
	}
}

func TestPredict_AlifPoseWithoutAlifLabel(t *testing.T) {
	c, _ := heuristic.New([]string{"Ba", "Ta"})

	p, err := c.Predict(context.Background(), [][]float64{alifFrame()})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.Label != "Ba" && p.Label != "Ta" {
		t.Errorf("label = %q, want one drawn from the vocabulary", p.Label)
	}
}
