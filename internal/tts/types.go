package tts

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-narrator/internal/prosody"
)

var (
	// ErrEmptyText is returned when a synthesis request carries no text.
	ErrEmptyText = errors.New("tts: text is empty")
	// ErrEmptyAudio is returned when a backend produced zero bytes.
	ErrEmptyAudio = errors.New("tts: backend returned no audio")
)

// SynthRequest contains parameters to synthesize one sentence.
type SynthRequest struct {
	RequestID string
	Index     int
	Text      string
	Voice     string
	Profile   prosody.Profile
}

// SynthResult is encoded audio for one sentence.
type SynthResult struct {
	Audio []byte
	// Format is the container extension, e.g. "mp3" or "wav".
	Format string
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SynthRequest) (SynthResult, error)
}
