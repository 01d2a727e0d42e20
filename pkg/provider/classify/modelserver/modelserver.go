// Package modelserver provides a classifier backed by an external
// model-serving process.
//
// The trained LSTM stays behind a small REST boundary (typically a Python
// sidecar that loads the checkpoint): the provider POSTs the normalized
// window to /predict and receives the label, confidence, and class index.
// Keeping the model out of process means the Go server never links a tensor
// runtime and the model can be retrained and redeployed independently.
//
// Usage:
//
//	c, err := modelserver.New("http://localhost:8500",
//	    modelserver.WithTimeout(2*time.Second),
//	)
//	pred, err := c.Predict(ctx, window)
package modelserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harya06/iqro-gesture/pkg/provider/classify"
)

// Compile-time interface assertion.
var _ classify.Provider = (*Classifier)(nil)

const (
	predictEndpoint = "/predict"
	defaultTimeout  = 5 * time.Second

	// maxResponseBytes bounds the prediction response body. Predictions are
	// tiny; anything larger indicates a misbehaving server.
	maxResponseBytes = 1 << 16
)

// Option is a functional option for configuring a Classifier.
type Option func(*Classifier)

// WithTimeout sets the per-request HTTP timeout. Defaults to 5 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		c.httpClient.Timeout = d
	}
}

// WithModel sets an optional model identifier forwarded to the server. When
// empty the server uses whichever checkpoint it was started with.
func WithModel(model string) Option {
	return func(c *Classifier) {
		c.model = model
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely. Mainly useful
// in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Classifier) {
		c.httpClient = hc
	}
}

// Classifier calls a remote model server for every prediction.
type Classifier struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a model-server classifier targeting baseURL
// (e.g., "http://localhost:8500").
func New(baseURL string, opts ...Option) (*Classifier, error) {
	if baseURL == "" {
		return nil, errors.New("modelserver: baseURL must not be empty")
	}
	c := &Classifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// predictRequest is the JSON body sent to the model server.
type predictRequest struct {
	Sequence [][]float64 `json:"sequence"`
	Model    string      `json:"model,omitempty"`
}

// predictResponse is the JSON body returned by the model server.
type predictResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	ClassIndex int     `json:"class_index"`
}

// Predict submits the window to the model server. Any transport, status, or
// decoding failure is returned as an error; callers that must not fail wrap
// the classifier with [classify.FailClosed].
func (c *Classifier) Predict(ctx context.Context, window [][]float64) (classify.Prediction, error) {
	body, err := json.Marshal(predictRequest{Sequence: window, Model: c.model})
	if err != nil {
		return classify.Prediction{}, fmt.Errorf("modelserver: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictEndpoint, bytes.NewReader(body))
	if err != nil {
		return classify.Prediction{}, fmt.Errorf("modelserver: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify.Prediction{}, fmt.Errorf("modelserver: predict request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return classify.Prediction{}, fmt.Errorf("modelserver: predict returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return classify.Prediction{}, fmt.Errorf("modelserver: decode response: %w", err)
	}

	return classify.Prediction{
		Label:      out.Label,
		Confidence: out.Confidence,
		ClassIndex: out.ClassIndex,
	}, nil
}

// Healthy probes the model server's liveness endpoint. Used by the readiness
// checker; not on the prediction hot path.
func (c *Classifier) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("modelserver: build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("modelserver: health request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelserver: health returned %d", resp.StatusCode)
	}
	return nil
}
