package synth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-narrator/internal/prosody"
	"github.com/loqalabs/loqa-narrator/internal/segment"
	"github.com/loqalabs/loqa-narrator/internal/tts"
	"github.com/loqalabs/loqa-narrator/internal/workspace"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSynth finishes later sentences first and records call parameters.
type fakeSynth struct {
	failIndex int
	inflight  atomic.Int32
	peak      atomic.Int32

	mu    sync.Mutex
	calls []tts.SynthRequest
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, req tts.SynthRequest) (tts.SynthResult, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if req.Index == f.failIndex {
		return tts.SynthResult{}, errors.New("engine unavailable")
	}
	select {
	case <-ctx.Done():
		return tts.SynthResult{}, ctx.Err()
	case <-time.After(time.Duration(10-req.Index) * 5 * time.Millisecond):
	}
	return tts.SynthResult{Audio: []byte(req.Text), Format: "mp3"}, nil
}

func sentences(texts ...string) []segment.Sentence {
	out := make([]segment.Sentence, len(texts))
	for i, text := range texts {
		out[i] = segment.Sentence{Index: i, Text: text}
	}
	return out
}

func newWorkspace(t *testing.T) *workspace.Context {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "req1", newLogger())
	require.NoError(t, err)
	t.Cleanup(ws.Release)
	return ws
}

func TestSynthesizeKeepsIndexOrder(t *testing.T) {
	fake := &fakeSynth{failIndex: -1}
	orch := New(fake, "tr-TR-AhmetNeural", 4, time.Second, newLogger())
	ws := newWorkspace(t)

	input := sentences("Bir.", "İki?", "Üç!", "Dört.", "Beş.", "Altı?")
	jobs, err := orch.Synthesize(context.Background(), ws, input)
	require.NoError(t, err)
	require.Len(t, jobs, len(input))

	for i, job := range jobs {
		assert.Equal(t, i, job.Index)
		assert.Equal(t, input[i].Text, job.Text)
		assert.Equal(t, prosody.Classify(input[i].Text), job.Profile)
		data, err := os.ReadFile(job.Path)
		require.NoError(t, err)
		assert.Equal(t, input[i].Text, string(data))
	}
	assert.LessOrEqual(t, fake.peak.Load(), int32(4))
	for _, call := range fake.calls {
		assert.Equal(t, "tr-TR-AhmetNeural", call.Voice)
		assert.Equal(t, "req1", call.RequestID)
	}
}

func TestSynthesizeSequential(t *testing.T) {
	fake := &fakeSynth{failIndex: -1}
	orch := New(fake, "v", 1, 0, newLogger())
	jobs, err := orch.Synthesize(context.Background(), newWorkspace(t), sentences("A.", "B.", "C."))
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
	assert.Equal(t, int32(1), fake.peak.Load())
}

func TestSynthesizeSkipsBlankSentences(t *testing.T) {
	fake := &fakeSynth{failIndex: -1}
	orch := New(fake, "v", 2, 0, newLogger())
	jobs, err := orch.Synthesize(context.Background(), newWorkspace(t), sentences("A.", "   ", "C."))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 0, jobs[0].Index)
	assert.Equal(t, 2, jobs[1].Index)
}

func TestSynthesizeFailureAbortsRequest(t *testing.T) {
	fake := &fakeSynth{failIndex: 2}
	orch := New(fake, "v", 3, time.Second, newLogger())
	jobs, err := orch.Synthesize(context.Background(), newWorkspace(t), sentences("A.", "B.", "C.", "D."))
	require.Error(t, err)
	assert.Nil(t, jobs)

	var segErr *SegmentError
	require.ErrorAs(t, err, &segErr)
	assert.Equal(t, 2, segErr.Index)
}

func TestSynthesizeTimeout(t *testing.T) {
	fake := &fakeSynth{failIndex: -1}
	orch := New(fake, "v", 1, time.Millisecond, newLogger())
	_, err := orch.Synthesize(context.Background(), newWorkspace(t), sentences("A."))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type emptySynth struct{}

func (emptySynth) Name() string { return "empty" }

func (emptySynth) Synthesize(context.Context, tts.SynthRequest) (tts.SynthResult, error) {
	return tts.SynthResult{}, nil
}

func TestSynthesizeRejectsEmptyAudio(t *testing.T) {
	orch := New(emptySynth{}, "v", 1, 0, newLogger())
	_, err := orch.Synthesize(context.Background(), newWorkspace(t), sentences("A."))
	assert.ErrorIs(t, err, tts.ErrEmptyAudio)
}
