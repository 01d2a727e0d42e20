// Package gtts provides a speech synthesis provider backed by the Google
// Translate TTS endpoint. It implements the tts.Provider interface.
//
// The endpoint is the same one the gtts command-line tool talks to: a single
// GET per utterance returning an MP3. It needs no API key, which makes it a
// good default for the short pronunciation snippets this server produces.
// Slow speech mode is enabled by default because learners hear isolated
// letters and syllables more clearly at reduced speed.
package gtts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harya06/iqro-gesture/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultBaseURL = "https://translate.google.com"
	ttsPath        = "/translate_tts"
	defaultTimeout = 10 * time.Second

	// maxAudioBytes bounds a single synthesised utterance. Pronunciation
	// snippets are a few seconds of MP3; anything larger is a misbehaving
	// upstream.
	maxAudioBytes = 4 << 20
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the endpoint base URL. Mainly useful in tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithSlow toggles slow speech mode. Defaults to true.
func WithSlow(slow bool) Option {
	return func(p *Provider) {
		p.slow = slow
	}
}

// Provider implements tts.Provider against the Google Translate TTS endpoint.
type Provider struct {
	baseURL    string
	slow       bool
	httpClient *http.Client
}

// New creates a Provider with default settings.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		slow:       true,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements tts.Provider. The returned audio is MP3.
func (p *Provider) Synthesize(ctx context.Context, text, language string) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, errors.New("gtts: text must not be empty")
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("q", text)
	q.Set("tl", language)
	if p.slow {
		q.Set("ttsspeed", "0.3")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+ttsPath+"?"+q.Encode(), nil)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("gtts: build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("gtts: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Audio{}, fmt.Errorf("gtts: synthesis returned %d for %q", resp.StatusCode, text)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("gtts: read audio: %w", err)
	}
	if len(data) == 0 {
		return tts.Audio{}, fmt.Errorf("gtts: empty audio for %q", text)
	}

	return tts.Audio{Data: data, Format: "mp3"}, nil
}
