package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/harya06/iqro-gesture/internal/audiocache"
	"github.com/harya06/iqro-gesture/internal/config"
	"github.com/harya06/iqro-gesture/internal/gesture"
	"github.com/harya06/iqro-gesture/internal/hand"
	"github.com/harya06/iqro-gesture/internal/observe"
	"github.com/harya06/iqro-gesture/internal/predlog"
	"github.com/harya06/iqro-gesture/internal/session"
	"github.com/harya06/iqro-gesture/pkg/provider/classify"
)

// Recorder receives fire-and-forget history events from the pipeline.
// [predlog.AsyncAppender] is the production implementation.
type Recorder interface {
	PredictionAccepted(rec predlog.PredictionRecord)
	SessionStarted(sessionID string, metadata map[string]string)
	SessionEnded(sessionID string, totalPredictions int)
}

// NopRecorder discards all history events.
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) PredictionAccepted(predlog.PredictionRecord) {}

func (NopRecorder) SessionStarted(string, map[string]string) {}

func (NopRecorder) SessionEnded(string, int) {}

// Pipeline turns one inbound websocket message into at most one outbound
// envelope. It is stateless across messages apart from the per-session
// counters it updates, and safe for concurrent use by independent sessions.
type Pipeline struct {
	gestures   config.GestureConfig
	window     *gesture.Window
	classifier classify.Provider
	audio      *audiocache.Cache
	recorder   Recorder
	metrics    *observe.Metrics

	frameHistory int
}

// Option customises a [Pipeline].
type Option func(*Pipeline)

// WithAudioCache attaches the pronunciation audio cache. Without it,
// prediction responses carry no audio fields.
func WithAudioCache(c *audiocache.Cache) Option {
	return func(p *Pipeline) { p.audio = c }
}

// WithRecorder attaches the prediction history recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithMetrics attaches the metric instruments the pipeline records to.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithFrameHistory sets how many trailing window frames accompany each logged
// prediction.
func WithFrameHistory(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.frameHistory = n
		}
	}
}

// NewPipeline builds a pipeline over the given vocabulary and classifier.
func NewPipeline(gestures config.GestureConfig, classifier classify.Provider, opts ...Option) (*Pipeline, error) {
	w, err := gesture.New(gestures.SequenceLength, gestures.FeatureWidth)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		gestures:     gestures,
		window:       w,
		classifier:   classifier,
		recorder:     NopRecorder{},
		metrics:      observe.DefaultMetrics(),
		frameHistory: config.DefaultFrameHistory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Window returns the classification window shape the pipeline validates
// against.
func (p *Pipeline) Window() *gesture.Window { return p.window }

// Welcome builds the greeting envelope sent right after a session connects.
func (p *Pipeline) Welcome(sessionID string) *Envelope {
	return &Envelope{
		Type: TypeConnected,
		Data: ConnectedData{
			SessionID: sessionID,
			Message:   "Connected to Iqro Gesture Recognition",
			Labels:    p.gestures.Labels,
		},
	}
}

// Process handles one raw inbound message for sess and returns the envelope
// to send back, or nil when no response is due. It never returns an error;
// client-facing failures become error envelopes and internal ones are logged.
func (p *Pipeline) Process(ctx context.Context, sess *session.Session, raw []byte) *Envelope {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.metrics.RecordMalformedMessage(ctx, "invalid_json")
		slog.Error("invalid message JSON", "session_id", sess.ID, "error", err)
		return errorEnvelope("Invalid JSON format")
	}

	switch msg.Type {
	case TypeLandmarks:
		return p.handleLandmarks(ctx, sess, msg.Data)

	case TypePing:
		return &Envelope{
			Type: TypePong,
			Data: PongData{Timestamp: time.Now().Format(time.RFC3339Nano)},
		}

	case TypeGetLabels:
		return &Envelope{
			Type: TypeLabels,
			Data: LabelsData{
				Labels:       p.gestures.Labels,
				ArabicLabels: p.gestures.ArabicLabels,
			},
		}

	default:
		p.metrics.RecordMalformedMessage(ctx, "unknown_type")
		slog.Warn("unknown message type", "session_id", sess.ID, "type", msg.Type)
		return nil
	}
}

// handleLandmarks runs the full recognition path: decode, validate, window,
// classify, gate on confidence, attach audio, record and respond.
func (p *Pipeline) handleLandmarks(ctx context.Context, sess *session.Session, data json.RawMessage) *Envelope {
	start := time.Now()

	var payload landmarksData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			p.metrics.RecordMalformedMessage(ctx, "invalid_payload")
			return errorEnvelope("Invalid landmark payload")
		}
	}

	frames, err := decodeSequence(payload.Sequence, p.window)
	if err != nil || len(frames) < p.gestures.MinFrames {
		p.metrics.RecordMalformedMessage(ctx, "insufficient_data")
		return errorEnvelope("Insufficient landmark data")
	}

	window, err := p.window.Normalize(frames)
	if err != nil {
		p.metrics.RecordMalformedMessage(ctx, "bad_dimensions")
		return errorEnvelope("Invalid landmark dimensions")
	}

	inferStart := time.Now()
	pred, err := p.classifier.Predict(ctx, window)
	p.metrics.InferenceDuration.Record(ctx, time.Since(inferStart).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "classifier", "inference")
		slog.Error("classification failed", "session_id", sess.ID, "error", err)
		return errorEnvelope("Processing error: classification failed")
	}

	if pred.Confidence < p.gestures.ConfidenceThreshold {
		p.metrics.RecordPrediction(ctx, pred.Label, "low_confidence")
		// Low-confidence responses carry the raw confidence; only accepted
		// predictions round for the wire.
		return &Envelope{
			Type: TypeLowConfidence,
			Data: LowConfidenceData{
				Message:    "Low confidence prediction",
				Confidence: pred.Confidence,
			},
		}
	}

	resp := PredictionData{
		Label:      pred.Label,
		Arabic:     p.gestures.DisplayForm(pred.Label),
		Confidence: round3(pred.Confidence),
		ClassIndex: pred.ClassIndex,
		Timestamp:  time.Now().Format(time.RFC3339Nano),
	}
	last := window[len(window)-1]
	if lm := hand.FromFlat(last); lm != nil {
		a := hand.Analyze(lm, hand.Unknown)
		resp.HandState = &a
	} else if left, right := hand.PairFromFlat(last); left != nil {
		both := hand.AnalyzeBoth(left, right)
		resp.HandsState = &both
	}

	// Pronunciation audio is best effort: a synthesis outage must not block
	// the prediction itself.
	if p.audio != nil {
		ttsStart := time.Now()
		audio, hit, err := p.audio.Get(ctx, pred.Label)
		p.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
		switch {
		case err == nil:
			if hit {
				p.metrics.RecordAudioCacheLookup(ctx, "hit")
			} else {
				p.metrics.RecordAudioCacheLookup(ctx, "miss")
			}
			resp.AudioBase64 = base64.StdEncoding.EncodeToString(audio.Data)
			resp.AudioFormat = audio.Format
		case errors.Is(err, audiocache.ErrUnavailable):
			p.metrics.RecordAudioCacheLookup(ctx, "error")
			p.metrics.RecordProviderError(ctx, "tts", "synthesis")
			slog.Warn("pronunciation audio unavailable",
				"session_id", sess.ID, "label", pred.Label, "error", err)
		default:
			p.metrics.RecordAudioCacheLookup(ctx, "error")
			slog.Error("audio cache lookup failed",
				"session_id", sess.ID, "label", pred.Label, "error", err)
		}
	}

	sess.RecordPrediction(pred.Label)
	p.recorder.PredictionAccepted(predlog.PredictionRecord{
		SessionID:    sess.ID,
		Label:        pred.Label,
		Confidence:   pred.Confidence,
		RecentFrames: tail(window, p.frameHistory),
		LastFrame:    window[len(window)-1],
	})

	p.metrics.RecordPrediction(ctx, pred.Label, "accepted")
	p.metrics.MessageDuration.Record(ctx, time.Since(start).Seconds())
	slog.Info("prediction sent",
		"session_id", sess.ID, "label", pred.Label, "confidence", round3(pred.Confidence))

	return &Envelope{Type: TypePrediction, Data: resp}
}

// round3 rounds a confidence to three decimal places for the wire.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// tail returns the last n frames of window.
func tail(window [][]float64, n int) [][]float64 {
	if n <= 0 {
		return nil
	}
	if len(window) <= n {
		return window
	}
	return window[len(window)-n:]
}
