package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-narrator/internal/capability"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNarrator struct {
	got pipeline.Request
	err error
}

func (f *fakeNarrator) HandleRequest(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.got = req
	if f.err != nil {
		return pipeline.Result{RequestID: "req-err"}, f.err
	}
	return pipeline.Result{RequestID: "req-ok", Audio: []byte("ID3-audio"), Sentences: 2, Duration: time.Millisecond}, nil
}

func newTestAPI(narrator Narrator, ready bool) *httptest.Server {
	cfg := config.Default()
	a := &api{
		cfg:        cfg.HTTP,
		narrator:   narrator,
		descriptor: capability.Describe(cfg, "test"),
		ready:      func() bool { return ready },
		log:        discardLogger(),
	}
	return httptest.NewServer(a.routes())
}

func TestGenerateReturnsAudio(t *testing.T) {
	narrator := &fakeNarrator{}
	srv := newTestAPI(narrator, true)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json",
		strings.NewReader(`{"text":"Merhaba! Nasılsın?","filename":"../../etc/belgesel.mp3"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="belgesel.mp3"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "req-ok", resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "ID3-audio", string(body))
	assert.Equal(t, "Merhaba! Nasılsın?", narrator.got.Text)
	assert.Equal(t, "http", narrator.got.Source)
}

func TestGenerateDefaultFilename(t *testing.T) {
	narrator := &fakeNarrator{}
	srv := newTestAPI(narrator, true)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"text":"Bir."}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, `attachment; filename="ses.mp3"`, resp.Header.Get("Content-Disposition"))
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
		stage  string
	}{
		{
			name:   "empty text",
			err:    &pipeline.PipelineError{Stage: pipeline.StageSegmentation, RequestID: "req-err", Err: pipeline.ErrEmptyText},
			body:   `{"text":"  "}`,
			status: http.StatusBadRequest,
			stage:  "segmentation",
		},
		{
			name:   "synthesis failure",
			err:    &pipeline.PipelineError{Stage: pipeline.StageSynthesis, RequestID: "req-err", Err: fmt.Errorf("boom")},
			body:   `{"text":"Bir."}`,
			status: http.StatusInternalServerError,
			stage:  "synthesis",
		},
		{
			name:   "malformed body",
			body:   `{"text":`,
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestAPI(&fakeNarrator{err: tt.err}, true)
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var payload errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
			assert.NotEmpty(t, payload.Error)
			assert.Equal(t, tt.stage, payload.Stage)
		})
	}
}

func TestGenerateRejectsOversizedBody(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.MaxBodyBytes = 16
	a := &api{cfg: cfg.HTTP, narrator: &fakeNarrator{}, ready: func() bool { return true }, log: discardLogger()}
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json",
		strings.NewReader(`{"text":"`+strings.Repeat("a", 64)+`"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	srv := newTestAPI(&fakeNarrator{}, true)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/generate")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDescriptorAndHealthEndpoints(t *testing.T) {
	srv := newTestAPI(&fakeNarrator{}, false)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	var d capability.Descriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	resp.Body.Close()
	assert.Equal(t, "ready", d.Status)
	assert.Equal(t, "/generate", d.Usage.Endpoint)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "healthy", health["status"])

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                   "ses.mp3",
		"   ":                "ses.mp3",
		"belgesel.mp3":       "belgesel.mp3",
		"../../etc/passwd":   "passwd",
		`C:\Users\x\out.mp3`: "out.mp3",
		`quote"d.mp3`:        "quoted.mp3",
		"line\nbreak.mp3":    "linebreak.mp3",
		"..":                 "ses.mp3",
		"dir/":               "dir",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in, "ses.mp3"), "input %q", in)
	}
}

func TestJournalRecordsLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := eventstore.Open(ctx, config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "session",
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rec := multiRecorder{&journal{store: store, log: discardLogger()}}
	rec.Record(ctx, pipeline.Event{RequestID: "r1", Type: pipeline.EventRequestStarted,
		Detail: map[string]any{"source": "http", "filename": "ses.mp3", "text_chars": 12}})
	rec.Record(ctx, pipeline.Event{RequestID: "r1", Type: pipeline.EventStageCompleted, Stage: pipeline.StageSegmentation,
		Detail: map[string]any{"sentences": 2}})
	rec.Record(ctx, pipeline.Event{RequestID: "r1", Type: pipeline.EventRequestFailed, Stage: pipeline.StageSynthesis,
		Detail: map[string]any{"error": "boom"}})

	got, err := store.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, eventstore.StatusFailed, got.Status)
	assert.Equal(t, "synthesis", got.Stage)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, 12, got.TextChars)

	events, err := store.ListRequestEvents(ctx, "r1", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "segmentation", events[1].Stage)
	assert.JSONEq(t, `{"sentences":2}`, string(events[1].Payload))
}
