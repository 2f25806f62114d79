package assemble

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const DefaultFFmpegPath = "ffmpeg"

// MergeRequest describes one post-processing invocation.
type MergeRequest struct {
	ListPath   string
	OutputPath string
	Filter     FilterChain
	Encoding   Encoding
}

// PostProcessor merges the audio listed in a concat list into one artifact.
type PostProcessor interface {
	Merge(ctx context.Context, req MergeRequest) error
}

// FFmpeg runs the ffmpeg binary with an argv list; nothing is passed through
// a shell.
type FFmpeg struct {
	path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = DefaultFFmpegPath
	}
	return &FFmpeg{path: path}
}

// Args returns the ffmpeg arguments for req, without the executable.
func (f *FFmpeg) Args(req MergeRequest) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", req.ListPath,
	}
	if expr := req.Filter.Expression(); expr != "" {
		args = append(args, "-af", expr)
	}
	return append(args,
		"-c:a", req.Encoding.Codec,
		"-b:a", req.Encoding.Bitrate,
		req.OutputPath,
	)
}

func (f *FFmpeg) Merge(ctx context.Context, req MergeRequest) error {
	cmd := exec.CommandContext(ctx, f.path, f.Args(req)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", req.Filter.Name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
