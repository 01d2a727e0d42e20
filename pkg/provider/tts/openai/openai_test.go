package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harya06/iqro-gesture/pkg/provider/tts/openai"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := openai.New("", ""); err == nil {
		t.Error("New with empty api key should fail")
	}
}

func TestSynthesize(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3 bytes"))
	}))
	defer srv.Close()

	p, err := openai.New("test-key", "", openai.WithBaseURL(srv.URL), openai.WithVoice("nova"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := p.Synthesize(context.Background(), "alif", "id")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "mp3 bytes" {
		t.Errorf("audio data = %q", audio.Data)
	}
	if audio.Format != "mp3" {
		t.Errorf("format = %q, want mp3", audio.Format)
	}
	if !strings.HasSuffix(gotPath, "/audio/speech") {
		t.Errorf("request path = %q, want .../audio/speech", gotPath)
	}
	if gotBody["input"] != "alif" || gotBody["voice"] != "nova" {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := openai.New("test-key", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "", "id"); err == nil {
		t.Error("Synthesize with empty text should fail")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := openai.New("test-key", "", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "alif", "id"); err == nil {
		t.Error("Synthesize should surface the API error")
	}
}
