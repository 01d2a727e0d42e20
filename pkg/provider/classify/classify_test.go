package classify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/harya06/iqro-gesture/pkg/provider/classify"
)

var vocab = []string{"Alif", "Ba", "Ta"}

// stub is a scriptable classifier.
type stub struct {
	pred classify.Prediction
	err  error
	boom bool
}

func (s *stub) Predict(context.Context, [][]float64) (classify.Prediction, error) {
	if s.boom {
		panic("classifier exploded")
	}
	return s.pred, s.err
}

func window() [][]float64 {
	return [][]float64{{0.1, 0.2}, {0.3, 0.4}}
}

func TestFailClosed_PassesThroughValidPrediction(t *testing.T) {
	inner := &stub{pred: classify.Prediction{Label: "Ba", Confidence: 0.8, ClassIndex: 1}}
	c := classify.FailClosed(inner, vocab)

	p, err := c.Predict(context.Background(), window())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.Label != "Ba" || p.Confidence != 0.8 || p.ClassIndex != 1 {
		t.Errorf("prediction = %+v, want Ba/0.8/1", p)
	}
}

func TestFailClosed_ErrorFallsBackToDefault(t *testing.T) {
	inner := &stub{err: errors.New("model unavailable")}
	c := classify.FailClosed(inner, vocab)

	p, err := c.Predict(context.Background(), window())
	if err != nil {
		t.Fatalf("Predict should not propagate the inner error, got %v", err)
	}
	if p.Label != "Alif" || p.Confidence != 0 || p.ClassIndex != 0 {
		t.Errorf("fallback = %+v, want first vocabulary entry with confidence 0", p)
	}
}

func TestFailClosed_PanicFallsBackToDefault(t *testing.T) {
	c := classify.FailClosed(&stub{boom: true}, vocab)

	p, err := c.Predict(context.Background(), window())
	if err != nil {
		t.Fatalf("Predict should swallow the panic, got %v", err)
	}
	if p.Label != "Alif" || p.Confidence != 0 {
		t.Errorf("fallback = %+v, want Alif/0", p)
	}
}

func TestFailClosed_OutOfContractPredictions(t *testing.T) {
	tests := []struct {
		name string
		pred classify.Prediction
	}{
		{"confidence above one", classify.Prediction{Label: "Ba", Confidence: 1.2, ClassIndex: 1}},
		{"negative confidence", classify.Prediction{Label: "Ba", Confidence: -0.1, ClassIndex: 1}},
		{"index out of range", classify.Prediction{Label: "Ba", Confidence: 0.9, ClassIndex: 7}},
		{"label/index mismatch", classify.Prediction{Label: "Ta", Confidence: 0.9, ClassIndex: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := classify.FailClosed(&stub{pred: tc.pred}, vocab)
			p, err := c.Predict(context.Background(), window())
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if p.Label != "Alif" || p.Confidence != 0 || p.ClassIndex != 0 {
				t.Errorf("prediction = %+v, want fail-closed default", p)
			}
		})
	}
}
