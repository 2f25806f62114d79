package tts

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/prosody"
)

func TestMockSynthProducesWav(t *testing.T) {
	synth := NewMockSynth(16000)
	res, err := synth.Synthesize(context.Background(), SynthRequest{Text: "Merhaba dünya.", Profile: prosody.Classify("Merhaba dünya.")})
	require.NoError(t, err)
	assert.Equal(t, "wav", res.Format)
	require.True(t, bytes.HasPrefix(res.Audio, []byte("RIFF")))

	dec := wav.NewDecoder(bytes.NewReader(res.Audio))
	require.True(t, dec.IsValidFile())
	dur, err := dec.Duration()
	require.NoError(t, err)
	assert.InDelta(t, (14 * 60 * time.Millisecond).Seconds(), dur.Seconds(), 0.01)
}

func TestMockSynthHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockSynth(16000).Synthesize(ctx, SynthRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthRejectsEmptyText(t *testing.T) {
	_, err := NewMockSynth(16000).Synthesize(context.Background(), SynthRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestExecSynthArgs(t *testing.T) {
	synth, err := NewExecSynth(`edge-tts --proxy "http://proxy:3128"`)
	require.NoError(t, err)
	es := synth.(*execSynth)
	args := es.Args(SynthRequest{
		Text:    "Kim o?",
		Voice:   "tr-TR-AhmetNeural",
		Profile: prosody.Classify("Kim o?"),
	})
	assert.Equal(t, []string{
		"--proxy", "http://proxy:3128",
		"--voice", "tr-TR-AhmetNeural",
		"--rate=-5%", "--pitch=+2Hz", "--volume=+2%",
		"--text=Kim o?",
	}, args)
}

func TestExecSynthArgsKeepLeadingDashInText(t *testing.T) {
	synth, err := NewExecSynth("edge-tts")
	require.NoError(t, err)
	args := synth.(*execSynth).Args(SynthRequest{
		Text:    "-Merhaba!",
		Voice:   "v",
		Profile: prosody.Classify("-Merhaba!"),
	})
	require.NotEmpty(t, args)
	assert.Equal(t, "--text=-Merhaba!", args[len(args)-1])
	assert.NotContains(t, args, "-Merhaba!")
}

func TestExecSynthRejectsEmptyCommand(t *testing.T) {
	_, err := NewExecSynth("   ")
	assert.Error(t, err)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-tts.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestExecSynthReadsStdout(t *testing.T) {
	script := writeScript(t, `printf 'ID3-audio'`)
	synth, err := NewExecSynth(script)
	require.NoError(t, err)
	res, err := synth.Synthesize(context.Background(), SynthRequest{Text: "Ses; rm -rf /", Voice: "v"})
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(res.Audio))
	assert.Equal(t, "mp3", res.Format)
}

func TestExecSynthFailure(t *testing.T) {
	script := writeScript(t, `echo "voice not found" >&2; exit 3`)
	synth, err := NewExecSynth(script)
	require.NoError(t, err)
	_, err = synth.Synthesize(context.Background(), SynthRequest{Text: "a", Voice: "v"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "voice not found"))
}

func TestExecSynthEmptyOutput(t *testing.T) {
	script := writeScript(t, `exit 0`)
	synth, err := NewExecSynth(script)
	require.NoError(t, err)
	_, err = synth.Synthesize(context.Background(), SynthRequest{Text: "a", Voice: "v"})
	assert.True(t, errors.Is(err, ErrEmptyAudio))
}

func TestGoogleAudioParams(t *testing.T) {
	rate, pitch, gain := googleAudioParams(SynthRequest{Profile: prosody.Classify("Sessiz.")})
	assert.InDelta(t, 0.92, rate, 1e-9)
	assert.Less(t, pitch, 0.0)
	assert.InDelta(t, 0, gain, 1e-9)

	_, _, gain = googleAudioParams(SynthRequest{Profile: prosody.Classify("Dur!")})
	assert.InDelta(t, 20*math.Log10(1.05), gain, 1e-9)
}

func TestNewUnknownMode(t *testing.T) {
	_, err := New(context.Background(), config.TTSConfig{Mode: "espeak"})
	assert.Error(t, err)
}
