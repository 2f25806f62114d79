package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-narrator/internal/assemble"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/synth"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

// FromConfig wires the configured synthesizer, the ffmpeg assembler and a
// pipeline. The returned close func releases the synthesizer.
func FromConfig(ctx context.Context, cfg config.Config, recorder Recorder, log *slog.Logger) (*Pipeline, func() error, error) {
	synthesizer, err := tts.New(ctx, cfg.TTS)
	if err != nil {
		return nil, nil, fmt.Errorf("create synthesizer: %w", err)
	}
	closeFn := func() error { return nil }
	if closer, ok := synthesizer.(interface{ Close() error }); ok {
		closeFn = closer.Close
	}
	log.Info("synthesizer ready",
		slog.String("backend", synthesizer.Name()),
		slog.String("voice", cfg.TTS.Voice),
		slog.Int("concurrency", cfg.TTS.Concurrency))

	orchestrator := synth.New(synthesizer, cfg.TTS.Voice, cfg.TTS.Concurrency, cfg.TTS.SegmentTimeout(), log)
	assembler := assemble.New(
		assemble.NewFFmpeg(cfg.Assembly.FFmpegPath),
		assemble.DefaultFilterChain(cfg.Assembly),
		assemble.PlainFilterChain(),
		assemble.EncodingFromConfig(cfg.Assembly),
		cfg.Assembly.Timeout(),
		log,
	)
	return New(orchestrator, assembler, Options{
		WorkspaceDir:  cfg.Workspace.Dir,
		MaxConcurrent: cfg.Workspace.MaxConcurrentRequests,
		Recorder:      recorder,
	}, log), closeFn, nil
}
