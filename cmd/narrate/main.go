package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

var version = "0.1.0-dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "narrate",
	Short:         "Render narrative text into a single narrated audio file",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `narrate drives the narration pipeline from the command line.

It can inspect how text is split and voiced, render audio locally with the
configured synthesizer and ffmpeg, or submit text to a running narratord over
the bus.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
