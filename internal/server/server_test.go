package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/harya06/iqro-gesture/internal/audiocache"
	"github.com/harya06/iqro-gesture/internal/config"
	"github.com/harya06/iqro-gesture/internal/health"
	"github.com/harya06/iqro-gesture/internal/session"
	"github.com/harya06/iqro-gesture/internal/stream"
	"github.com/harya06/iqro-gesture/pkg/provider/classify"
	"github.com/harya06/iqro-gesture/pkg/provider/tts"
)

type fixedClassifier struct {
	pred classify.Prediction
}

func (f *fixedClassifier) Predict(context.Context, [][]float64) (classify.Prediction, error) {
	return f.pred, nil
}

// steeredClassifier maps the first value of the window's final frame to a
// label, so a test can drive different outcomes per connection.
type steeredClassifier struct{}

func (steeredClassifier) Predict(_ context.Context, window [][]float64) (classify.Prediction, error) {
	if last := window[len(window)-1]; last[0] >= 0.5 {
		return classify.Prediction{Label: "Ba", Confidence: 0.8, ClassIndex: 1}, nil
	}
	return classify.Prediction{Label: "Alif", Confidence: 0.9}, nil
}

type fixedSynth struct{}

func (fixedSynth) Synthesize(_ context.Context, text, _ string) (tts.Audio, error) {
	return tts.Audio{Data: []byte("audio:" + text), Format: "mp3"}, nil
}

func testGestures() config.GestureConfig {
	return config.GestureConfig{
		SequenceLength:      30,
		FeatureWidth:        3,
		MinFrames:           10,
		ConfidenceThreshold: 0.5,
		Labels:              []string{"Alif", "Ba"},
		ArabicLabels:        map[string]string{"Alif": "أَلِف"},
	}
}

// startServer builds a full server over a stub classifier and synthesiser and
// serves it from an httptest server.
func startServer(t *testing.T, withAudio bool) (*httptest.Server, *session.Registry) {
	t.Helper()
	cls := &fixedClassifier{pred: classify.Prediction{Label: "Alif", Confidence: 0.9}}
	return startServerWith(t, cls, withAudio)
}

// startServerWith is startServer with a caller-chosen classifier.
func startServerWith(t *testing.T, cls classify.Provider, withAudio bool) (*httptest.Server, *session.Registry) {
	t.Helper()

	gestures := testGestures()

	var cache *audiocache.Cache
	if withAudio {
		cache = audiocache.New(audiocache.NewMemoryStore(), fixedSynth{}, nil, "id")
	}

	opts := []stream.Option{}
	if cache != nil {
		opts = append(opts, stream.WithAudioCache(cache))
	}
	pipeline, err := stream.NewPipeline(gestures, cls, opts...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	registry := session.NewRegistry(gestures.SequenceLength, gestures.FeatureWidth)
	srv := New(":0", Deps{
		Gestures: gestures,
		Pipeline: pipeline,
		Registry: registry,
		Audio:    cache,
		Health:   health.New(),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, registry
}

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// wireEnvelope is the client-side view of a server message.
type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readEnvelope reads one frame and decodes the envelope.
func readEnvelope(t *testing.T, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// writeMessage marshals v and sends it as one text frame.
func writeMessage(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func dialSession(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts, path), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func landmarkFrames(n int) [][]float64 {
	frames := make([][]float64, n)
	for i := range frames {
		frames[i] = []float64{0.1, 0.2, 0.3}
	}
	return frames
}

func TestWebsocketSessionFlow(t *testing.T) {
	ts, registry := startServer(t, true)
	conn := dialSession(t, ts, "/ws/sess-flow")

	// Welcome message arrives first.
	env := readEnvelope(t, conn)
	if env.Type != stream.TypeConnected {
		t.Fatalf("first message type = %q, want connected", env.Type)
	}
	var connected stream.ConnectedData
	if err := json.Unmarshal(env.Data, &connected); err != nil {
		t.Fatalf("decode connected: %v", err)
	}
	if connected.SessionID != "sess-flow" || len(connected.Labels) != 2 {
		t.Errorf("connected = %+v", connected)
	}

	if registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1", registry.Count())
	}

	// Ping round trip.
	writeMessage(t, conn, map[string]any{"type": "ping"})
	if env = readEnvelope(t, conn); env.Type != stream.TypePong {
		t.Fatalf("ping reply type = %q, want pong", env.Type)
	}

	// Vocabulary request.
	writeMessage(t, conn, map[string]any{"type": "get_labels"})
	env = readEnvelope(t, conn)
	if env.Type != stream.TypeLabels {
		t.Fatalf("labels reply type = %q", env.Type)
	}
	var labels stream.LabelsData
	if err := json.Unmarshal(env.Data, &labels); err != nil {
		t.Fatalf("decode labels: %v", err)
	}
	if labels.ArabicLabels["Alif"] == "" {
		t.Error("missing arabic form for Alif")
	}

	// Landmarks produce a prediction with audio.
	writeMessage(t, conn, map[string]any{
		"type": "landmarks",
		"data": map[string]any{"sequence": landmarkFrames(30)},
	})
	env = readEnvelope(t, conn)
	if env.Type != stream.TypePrediction {
		t.Fatalf("landmarks reply type = %q, want prediction", env.Type)
	}
	var pred stream.PredictionData
	if err := json.Unmarshal(env.Data, &pred); err != nil {
		t.Fatalf("decode prediction: %v", err)
	}
	if pred.Label != "Alif" || pred.Confidence != 0.9 || pred.AudioFormat != "mp3" {
		t.Errorf("prediction = %+v", pred)
	}
}

func TestWebsocketConcurrentSessionsIsolated(t *testing.T) {
	ts, registry := startServerWith(t, steeredClassifier{}, false)

	connA := dialSession(t, ts, "/ws/s1")
	connB := dialSession(t, ts, "/ws/s2")
	readEnvelope(t, connA) // welcome
	readEnvelope(t, connB)

	if registry.Count() != 2 {
		t.Fatalf("registry count = %d, want 2", registry.Count())
	}

	// Each connection steers the classifier to a different label and must
	// see only that label back, however the two read loops interleave.
	run := func(conn *websocket.Conn, rounds int, value float64, wantLabel string) error {
		frames := make([][]float64, 30)
		for i := range frames {
			frames[i] = []float64{value, value, value}
		}
		raw, err := json.Marshal(map[string]any{
			"type": "landmarks",
			"data": map[string]any{"sequence": frames},
		})
		if err != nil {
			return err
		}
		for i := 0; i < rounds; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
				cancel()
				return fmt.Errorf("round %d write: %w", i, err)
			}
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				return fmt.Errorf("round %d read: %w", i, err)
			}
			var env wireEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				return fmt.Errorf("round %d decode: %w", i, err)
			}
			if env.Type != stream.TypePrediction {
				return fmt.Errorf("round %d type = %q, want prediction", i, env.Type)
			}
			var pred stream.PredictionData
			if err := json.Unmarshal(env.Data, &pred); err != nil {
				return fmt.Errorf("round %d decode prediction: %w", i, err)
			}
			if pred.Label != wantLabel {
				return fmt.Errorf("round %d label = %q, want %q", i, pred.Label, wantLabel)
			}
		}
		return nil
	}

	errs := make(chan error, 2)
	go func() { errs <- run(connA, 3, 0.1, "Alif") }()
	go func() { errs <- run(connB, 2, 0.9, "Ba") }()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}

	if registry.Count() != 2 {
		t.Errorf("registry count after traffic = %d, want 2", registry.Count())
	}
	s1, s2 := registry.Get("s1"), registry.Get("s2")
	if s1 == nil || s2 == nil {
		t.Fatal("sessions missing from registry")
	}
	if s1.PredictionCount != 3 || s1.LastLabel != "Alif" {
		t.Errorf("s1 counters = (%d, %q), want (3, Alif)", s1.PredictionCount, s1.LastLabel)
	}
	if s2.PredictionCount != 2 || s2.LastLabel != "Ba" {
		t.Errorf("s2 counters = (%d, %q), want (2, Ba)", s2.PredictionCount, s2.LastLabel)
	}
}

func TestWebsocketGeneratedSessionID(t *testing.T) {
	ts, _ := startServer(t, false)
	conn := dialSession(t, ts, "/ws")

	env := readEnvelope(t, conn)
	if env.Type != stream.TypeConnected {
		t.Fatalf("first message type = %q", env.Type)
	}
	var connected stream.ConnectedData
	if err := json.Unmarshal(env.Data, &connected); err != nil {
		t.Fatalf("decode connected: %v", err)
	}
	if connected.SessionID == "" {
		t.Error("empty path got no generated session id")
	}
}

func TestWebsocketDisconnectCleansUp(t *testing.T) {
	ts, registry := startServer(t, false)
	conn := dialSession(t, ts, "/ws/sess-bye")
	readEnvelope(t, conn) // welcome

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(3 * time.Second)
	for registry.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("registry count = %d after close, want 0", registry.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := startServer(t, false)
	conn := dialSession(t, ts, "/ws/sess-status")
	readEnvelope(t, conn) // welcome

	resp, err := http.Get(ts.URL + "/ws/status")
	if err != nil {
		t.Fatalf("GET /ws/status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.ActiveConnections != 1 {
		t.Errorf("active connections = %d, want 1", snap.ActiveConnections)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0] != "sess-status" {
		t.Errorf("sessions = %v", snap.Sessions)
	}
}

func TestAudioEndpoint(t *testing.T) {
	ts, _ := startServer(t, true)

	resp, err := http.Get(ts.URL + "/audio/Alif")
	if err != nil {
		t.Fatalf("GET /audio/Alif: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "audio:Alif" {
		t.Errorf("body = %q", body)
	}
}

func TestAudioEndpointUnavailableLabel(t *testing.T) {
	ts, _ := startServer(t, true)

	// A label with no usable characters cannot be cached or synthesised.
	resp, err := http.Get(ts.URL + "/audio/%21%21%21")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPregenerateEndpoint(t *testing.T) {
	ts, _ := startServer(t, true)

	resp, err := http.Post(ts.URL+"/audio/pregenerate", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["warmed"] != 2 || body["total"] != 2 {
		t.Errorf("body = %v", body)
	}
}

func TestClearCacheEndpoint(t *testing.T) {
	ts, _ := startServer(t, true)

	// Warm one entry, then clear it.
	if _, err := http.Get(ts.URL + "/audio/Alif"); err != nil {
		t.Fatalf("warm: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/audio/cache", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["cleared"] != 1 {
		t.Errorf("cleared = %d, want 1", body["cleared"])
	}
}

func TestAudioEndpointsDisabled(t *testing.T) {
	ts, _ := startServer(t, false)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/audio/Alif"},
		{http.MethodPost, "/audio/pregenerate"},
		{http.MethodDelete, "/audio/cache"},
	} {
		req, _ := http.NewRequest(tc.method, ts.URL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s %s status = %d, want 503", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestProbesAndMetrics(t *testing.T) {
	ts, _ := startServer(t, false)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
