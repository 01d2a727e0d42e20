// Package tts defines the speech synthesis provider contract used to render
// pronunciation audio for gesture labels. Implementations live in subpackages
// (gtts, openai) and are interchangeable behind the [Provider] interface.
package tts

import "context"

// Audio is one synthesised utterance.
type Audio struct {
	// Data is the raw encoded audio.
	Data []byte

	// Format is the container/codec tag, e.g. "mp3".
	Format string
}

// Provider synthesises speech for short pronunciation texts.
//
// Implementations must be safe for concurrent use. Synthesis failures are
// expected (network, quota) and callers treat them as "no audio available"
// rather than fatal.
type Provider interface {
	// Synthesize renders text as speech in the given BCP-47 language.
	Synthesize(ctx context.Context, text, language string) (Audio, error)
}
