package predlog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize bounds the pending append queue when no size is given.
const DefaultQueueSize = 256

// appendTimeout caps how long the worker waits on a single store call.
const appendTimeout = 5 * time.Second

// AsyncAppender decouples the stream pipeline from the store. Appends are
// queued and written by a single background worker; when the queue is full
// the record is dropped, counted and logged rather than blocking the caller.
type AsyncAppender struct {
	store   Appender
	queue   chan func(context.Context)
	dropped atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewAsyncAppender starts the background worker. queueSize <= 0 selects
// [DefaultQueueSize]. Call Close to flush and stop the worker.
func NewAsyncAppender(store Appender, queueSize int) *AsyncAppender {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &AsyncAppender{
		store:  store,
		queue:  make(chan func(context.Context), queueSize),
		cancel: cancel,
	}
	a.wg.Add(1)
	go a.run(ctx)
	return a
}

func (a *AsyncAppender) run(ctx context.Context) {
	defer a.wg.Done()
	for job := range a.queue {
		job(ctx)
	}
}

// enqueue hands one store call to the worker, dropping it when the queue is
// full or the appender is closed.
func (a *AsyncAppender) enqueue(kind string, job func(context.Context)) {
	defer func() {
		// Send on a closed queue panics; treat a post-Close append as a drop.
		if recover() != nil {
			a.dropped.Add(1)
		}
	}()
	select {
	case a.queue <- job:
	default:
		n := a.dropped.Add(1)
		slog.Warn("prediction log queue full, record dropped",
			"kind", kind, "dropped_total", n)
	}
}

// PredictionAccepted queues one accepted prediction for persistence.
func (a *AsyncAppender) PredictionAccepted(rec PredictionRecord) {
	a.enqueue("prediction", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, appendTimeout)
		defer cancel()
		if err := a.store.AppendPrediction(ctx, rec); err != nil {
			slog.Error("prediction log append failed",
				"session_id", rec.SessionID, "label", rec.Label, "error", err)
		}
	})
}

// SessionStarted queues a session-start marker.
func (a *AsyncAppender) SessionStarted(sessionID string, metadata map[string]string) {
	a.enqueue("session_start", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, appendTimeout)
		defer cancel()
		if err := a.store.AppendSessionStart(ctx, sessionID, metadata); err != nil {
			slog.Error("session start log append failed",
				"session_id", sessionID, "error", err)
		}
	})
}

// SessionEnded queues a session-end marker.
func (a *AsyncAppender) SessionEnded(sessionID string, totalPredictions int) {
	a.enqueue("session_end", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, appendTimeout)
		defer cancel()
		if err := a.store.AppendSessionEnd(ctx, sessionID, totalPredictions); err != nil {
			slog.Error("session end log append failed",
				"session_id", sessionID, "error", err)
		}
	})
}

// Dropped reports how many records were discarded because the queue was full.
func (a *AsyncAppender) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting new records, drains the queue and waits for the
// worker to finish. Safe to call more than once.
func (a *AsyncAppender) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
		a.wg.Wait()
		a.cancel()
	})
}
