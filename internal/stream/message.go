// Package stream implements the per-message gesture recognition pipeline and
// the websocket wire format it speaks.
//
// Every message in either direction is a JSON envelope {"type": ..., "data":
// ...}. Clients send landmark windows, pings and label requests; the server
// answers with predictions, pongs, label listings and errors. The pipeline is
// transport-agnostic: the websocket layer hands it raw message bytes and
// forwards whatever envelope comes back.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harya06/iqro-gesture/internal/gesture"
	"github.com/harya06/iqro-gesture/internal/hand"
)

// Client-to-server message types.
const (
	TypeLandmarks = "landmarks"
	TypePing      = "ping"
	TypeGetLabels = "get_labels"
)

// Server-to-client message types.
const (
	TypeConnected     = "connected"
	TypePong          = "pong"
	TypeLabels        = "labels"
	TypePrediction    = "prediction"
	TypeLowConfidence = "low_confidence"
	TypeError         = "error"
)

// Envelope is the outer JSON frame of every websocket message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// inbound is the decoded shape of a client message before its data payload is
// interpreted.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// landmarksData is the payload of a "landmarks" message. Timestamp is the
// client's capture time and is echoed nowhere; it exists so strict clients can
// send it without tripping decoding.
type landmarksData struct {
	Sequence  json.RawMessage `json:"sequence"`
	Timestamp json.Number     `json:"timestamp"`
}

// ConnectedData is the payload of the welcome message sent on connect.
type ConnectedData struct {
	SessionID string   `json:"session_id"`
	Message   string   `json:"message"`
	Labels    []string `json:"labels"`
}

// PongData answers a ping with the server's current time.
type PongData struct {
	Timestamp string `json:"timestamp"`
}

// LabelsData lists the classification vocabulary and its display forms.
type LabelsData struct {
	Labels       []string          `json:"labels"`
	ArabicLabels map[string]string `json:"arabic_labels"`
}

// PredictionData is the payload of an accepted prediction.
type PredictionData struct {
	Label      string  `json:"label"`
	Arabic     string  `json:"arabic"`
	Confidence float64 `json:"confidence"`
	ClassIndex int     `json:"class_index"`
	Timestamp  string  `json:"timestamp"`

	// Audio fields are present only when pronunciation audio was available.
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`

	// HandState carries the geometric pose summary of the final frame when
	// that frame is a full 21-landmark hand. HandsState replaces it for
	// two-hand captures (126-value frames).
	HandState  *hand.Analysis `json:"hand_state,omitempty"`
	HandsState *hand.TwoHands `json:"hands_state,omitempty"`
}

// LowConfidenceData reports a suppressed prediction.
type LowConfidenceData struct {
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

// ErrorData carries a client-facing error description.
type ErrorData struct {
	Message string `json:"message"`
}

// errorEnvelope builds an error message for the client.
func errorEnvelope(msg string) *Envelope {
	return &Envelope{Type: TypeError, Data: ErrorData{Message: msg}}
}

// decodeSequence accepts both sequence layouts clients send: frames already
// flattened to the window's feature width, or frames as nested [x, y, z]
// landmark triples which are flattened here.
func decodeSequence(raw json.RawMessage, w *gesture.Window) ([][]float64, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing sequence")
	}

	var flat [][]float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}

	var nested [][][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, errors.New("sequence is neither flat frames nor landmark triples")
	}
	flat, err := w.Flatten(nested)
	if err != nil {
		return nil, fmt.Errorf("flatten landmark triples: %w", err)
	}
	return flat, nil
}
