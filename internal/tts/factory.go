package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

// New builds the synthesizer selected by cfg.Mode.
func New(ctx context.Context, cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate), nil
	case "exec":
		return NewExecSynth(cfg.Command)
	case "google":
		synth, err := NewGoogleSynth(ctx, cfg.Language)
		if err != nil {
			return nil, err
		}
		return synth, nil
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
