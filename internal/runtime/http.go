package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-narrator/internal/capability"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

// Narrator runs one narration request.
type Narrator interface {
	HandleRequest(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type generateRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type api struct {
	cfg        config.HTTPConfig
	narrator   Narrator
	descriptor capability.Descriptor
	ready      func() bool
	metrics    http.Handler
	log        *slog.Logger
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", a.handleGenerate)
	mux.HandleFunc("GET /{$}", a.handleDescriptor)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /readyz", a.handleReady)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}
	return mux
}

func (a *api) handleGenerate(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)
	var req generateRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	filename := sanitizeFilename(req.Filename, a.cfg.DefaultFilename)

	res, err := a.narrator.HandleRequest(r.Context(), pipeline.Request{
		Text:     req.Text,
		Source:   "http",
		Filename: filename,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrEmptyText) {
			status = http.StatusBadRequest
		}
		stage, _ := pipeline.StageOf(err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Stage: string(stage), RequestID: res.RequestID})
		return
	}

	w.Header().Set("Content-Type", protocol.ContentTypeMPEG)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set("X-Request-Id", res.RequestID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Audio); err != nil {
		a.log.Debug("failed to write audio response", slog.String("request_id", res.RequestID), slogError(err))
	}
}

func (a *api) handleDescriptor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.descriptor)
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

// sanitizeFilename reduces name to a base name safe for Content-Disposition.
func sanitizeFilename(name, fallback string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '"' || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name))
	switch name {
	case "", ".", "..", "/":
		return fallback
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
