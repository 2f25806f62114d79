package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

// SilenceTrim removes near-silent audio below ThresholdDB. StartSec is the
// minimum silence detected at the head of the stream; StopSec applies to
// internal and trailing silences.
type SilenceTrim struct {
	ThresholdDB float64
	StartSec    float64
	StopSec     float64
}

// FilterChain is a named post-processing specification. The zero value is a
// plain concatenation.
type FilterChain struct {
	Name        string
	SilenceTrim *SilenceTrim
	PadSec      float64
}

// Encoding is the target codec and bitrate of the merged artifact.
type Encoding struct {
	Codec   string
	Bitrate string
}

// DefaultFilterChain trims silence and appends a trailing pad.
func DefaultFilterChain(cfg config.AssemblyConfig) FilterChain {
	return FilterChain{
		Name: "trim-and-pad",
		SilenceTrim: &SilenceTrim{
			ThresholdDB: cfg.SilenceThresholdDB,
			StartSec:    cfg.StartSilenceSec,
			StopSec:     cfg.StopSilenceSec,
		},
		PadSec: cfg.PadSec,
	}
}

// PlainFilterChain concatenates without filtering.
func PlainFilterChain() FilterChain {
	return FilterChain{Name: "plain"}
}

// EncodingFromConfig returns the configured encoding target.
func EncodingFromConfig(cfg config.AssemblyConfig) Encoding {
	return Encoding{Codec: cfg.Codec, Bitrate: cfg.Bitrate}
}

// Expression renders the chain as an ffmpeg audio filter graph. Empty for a
// plain chain.
func (f FilterChain) Expression() string {
	var filters []string
	if t := f.SilenceTrim; t != nil {
		threshold := formatFloat(t.ThresholdDB) + "dB"
		filters = append(filters, fmt.Sprintf(
			"silenceremove=start_periods=1:start_threshold=%s:start_duration=%s:stop_periods=-1:stop_threshold=%s:stop_duration=%s",
			threshold, formatFloat(t.StartSec), threshold, formatFloat(t.StopSec)))
	}
	if f.PadSec > 0 {
		filters = append(filters, "apad=pad_dur="+formatFloat(f.PadSec))
	}
	return strings.Join(filters, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
