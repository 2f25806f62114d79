package tts

import (
	"context"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// mockSynth renders silence whose length tracks the sentence length, so the
// rest of the pipeline (ffmpeg included) sees real audio.
type mockSynth struct {
	sampleRate int
	perRune    time.Duration
	latency    time.Duration
}

func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, perRune: 60 * time.Millisecond, latency: 20 * time.Millisecond}
}

func (m *mockSynth) Name() string { return "mock" }

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (SynthResult, error) {
	if req.Text == "" {
		return SynthResult{}, ErrEmptyText
	}
	select {
	case <-ctx.Done():
		return SynthResult{}, ctx.Err()
	case <-time.After(m.latency):
	}

	duration := time.Duration(utf8.RuneCountInString(req.Text)) * m.perRune
	samples := int(duration.Seconds() * float64(m.sampleRate))
	if samples == 0 {
		samples = 1
	}
	data, err := encodeSilence(m.sampleRate, samples)
	if err != nil {
		return SynthResult{}, err
	}
	return SynthResult{Audio: data, Format: "wav"}, nil
}

func encodeSilence(sampleRate, samples int) ([]byte, error) {
	file, err := os.CreateTemp("", "narrator_mock_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return os.ReadFile(file.Name())
}
