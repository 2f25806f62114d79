package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

var (
	renderOut    string
	renderText   string
	renderViaBus bool
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render text into one narrated mp3",
	Long: `render narrates text from --text, the given file, or stdin.

By default the pipeline runs in-process with the configured synthesizer and
ffmpeg. With --bus the text is sent to a running narratord instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "ses.mp3", "Output file")
	renderCmd.Flags().StringVarP(&renderText, "text", "t", "", "Text to narrate instead of reading a file")
	renderCmd.Flags().BoolVar(&renderViaBus, "bus", false, "Submit the request to narratord over the bus")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	text := renderText
	if text == "" {
		var err error
		if text, err = readInput(cmd.InOrStdin(), args); err != nil {
			return err
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var audio []byte
	start := time.Now()
	if renderViaBus {
		client, err := bus.Connect(ctx, "narrate-cli", cfg.Bus, log)
		if err != nil {
			return err
		}
		defer client.Close()

		reqCtx := ctx
		if timeout := cfg.Bus.RequestTimeoutDuration(); timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		var reply protocol.NarrateReply
		if err := client.RequestJSON(reqCtx, protocol.SubjectNarrateGenerate, protocol.NarrateRequest{Text: text, Filename: renderOut}, &reply); err != nil {
			return err
		}
		if reply.Error != "" {
			return fmt.Errorf("narratord %s failed at %s: %s", reply.RequestID, reply.Stage, reply.Error)
		}
		audio = reply.Audio
	} else if audio, err = renderLocal(ctx, cfg, text, log); err != nil {
		return err
	}

	if err := os.WriteFile(renderOut, audio, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", renderOut, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes in %s)\n", renderOut, len(audio), time.Since(start).Round(time.Millisecond))
	return nil
}

func renderLocal(ctx context.Context, cfg config.Config, text string, log *slog.Logger) (audio []byte, err error) {
	p, closeSynth, err := pipeline.FromConfig(ctx, cfg, nil, log)
	if err != nil {
		return nil, err
	}
	defer closeInto(&err, closeSynth, "synthesizer")

	res, err := p.HandleRequest(ctx, pipeline.Request{Text: text, Source: "cli", Filename: renderOut})
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyText) {
			return nil, errors.New("nothing to narrate: input text is empty")
		}
		return nil, err
	}
	return res.Audio, nil
}

// closeInto runs closer and reports its error through errp unless errp
// already holds one.
func closeInto(errp *error, closer func() error, what string) {
	if cerr := closer(); cerr != nil && *errp == nil {
		*errp = fmt.Errorf("close %s: %w", what, cerr)
	}
}
