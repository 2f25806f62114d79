// Package capability describes what this narrator instance offers and
// answers capability queries on the bus.
package capability

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

type Usage struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Body     map[string]string `json:"body"`
}

type Descriptor struct {
	Status   string   `json:"status"`
	Service  string   `json:"service"`
	Model    string   `json:"model"`
	Voice    string   `json:"voice"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
	Usage    Usage    `json:"usage"`
}

// Describe builds the descriptor for cfg.
func Describe(cfg config.Config, version string) Descriptor {
	asm := cfg.Assembly
	return Descriptor{
		Status:  "ready",
		Service: cfg.RuntimeName,
		Model:   fmt.Sprintf("%s (%s)", cfg.TTS.Mode, cfg.TTS.Voice),
		Voice:   cfg.TTS.Voice,
		Version: version,
		Features: []string{
			"sentence segmentation on . ! ?",
			"expressive prosody for ! and ?",
			fmt.Sprintf("silence trim below %gdB, pauses capped at %gs", asm.SilenceThresholdDB, asm.StopSilenceSec),
			fmt.Sprintf("trailing pad %gs", asm.PadSec),
			fmt.Sprintf("%s at %s", asm.Codec, asm.Bitrate),
		},
		Usage: Usage{
			Endpoint: "/generate",
			Method:   "POST",
			Body: map[string]string{
				"text":     "narrative text",
				"filename": cfg.HTTP.DefaultFilename,
			},
		},
	}
}

// Serve replies to capability queries on the bus with d.
func Serve(conn *nats.Conn, d Descriptor, log *slog.Logger) (*nats.Subscription, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	sub, err := conn.Subscribe(protocol.SubjectNarrateCapability, func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Warn("failed to answer capability query", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe capability queries: %w", err)
	}
	return sub, nil
}
