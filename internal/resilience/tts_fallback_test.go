package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harya06/iqro-gesture/pkg/provider/tts"
)

// fakeTTS is a scriptable synthesis backend.
type fakeTTS struct {
	audio tts.Audio
	err   error
	calls int
}

func (f *fakeTTS) Synthesize(context.Context, string, string) (tts.Audio, error) {
	f.calls++
	return f.audio, f.err
}

func TestTTSFallback_PrimaryHealthy(t *testing.T) {
	primary := &fakeTTS{audio: tts.Audio{Data: []byte("primary"), Format: "mp3"}}
	backup := &fakeTTS{audio: tts.Audio{Data: []byte("backup"), Format: "mp3"}}

	f := NewTTSFallback(primary, "gtts", FallbackConfig{})
	f.AddFallback("openai", backup)

	audio, err := f.Synthesize(context.Background(), "Alif", "id")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "primary" {
		t.Errorf("got %q, want audio from primary", audio.Data)
	}
	if backup.calls != 0 {
		t.Errorf("backup was called %d times, want 0", backup.calls)
	}
}

func TestTTSFallback_FailsOverToBackup(t *testing.T) {
	primary := &fakeTTS{err: errTest}
	backup := &fakeTTS{audio: tts.Audio{Data: []byte("backup"), Format: "mp3"}}

	f := NewTTSFallback(primary, "gtts", FallbackConfig{})
	f.AddFallback("openai", backup)

	audio, err := f.Synthesize(context.Background(), "Alif", "id")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "backup" {
		t.Errorf("got %q, want audio from backup", audio.Data)
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	f := NewTTSFallback(&fakeTTS{err: errTest}, "gtts", FallbackConfig{})
	f.AddFallback("openai", &fakeTTS{err: errTest})

	if _, err := f.Synthesize(context.Background(), "Alif", "id"); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &fakeTTS{err: errTest}
	backup := &fakeTTS{audio: tts.Audio{Data: []byte("backup"), Format: "mp3"}}

	f := NewTTSFallback(primary, "gtts", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	f.AddFallback("openai", backup)

	// Trip the primary's breaker.
	for i := 0; i < 3; i++ {
		_, _ = f.Synthesize(context.Background(), "Alif", "id")
	}
	primaryCalls := primary.calls

	// Further calls must not touch the primary.
	if _, err := f.Synthesize(context.Background(), "Alif", "id"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if primary.calls != primaryCalls {
		t.Errorf("primary called %d more times with an open breaker", primary.calls-primaryCalls)
	}
}
