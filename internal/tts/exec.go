package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// execSynth runs an edge-tts compatible command once per sentence. The
// sentence and prosody settings are passed as discrete argv entries and the
// encoded audio is read from stdout.
type execSynth struct {
	cmd []string
}

func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Name() string { return "exec" }

// Args returns the argv used for req, without the executable.
func (e *execSynth) Args(req SynthRequest) []string {
	args := append([]string{}, e.cmd[1:]...)
	// Values that may start with '-' use the --flag=value form.
	return append(args,
		"--voice", req.Voice,
		"--rate="+req.Profile.Rate(),
		"--pitch="+req.Profile.Pitch(),
		"--volume="+req.Profile.Volume(),
		"--text="+req.Text,
	)
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (SynthResult, error) {
	if req.Text == "" {
		return SynthResult{}, ErrEmptyText
	}
	command := exec.CommandContext(ctx, e.cmd[0], e.Args(req)...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return SynthResult{}, fmt.Errorf("tts command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return SynthResult{}, ErrEmptyAudio
	}
	return SynthResult{Audio: stdout.Bytes(), Format: "mp3"}, nil
}
