// Package pipeline drives one narration request through segmentation,
// synthesis and assembly inside an isolated workspace.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/loqalabs/loqa-narrator/internal/assemble"
	"github.com/loqalabs/loqa-narrator/internal/segment"
	"github.com/loqalabs/loqa-narrator/internal/synth"
	"github.com/loqalabs/loqa-narrator/internal/workspace"
)

const instrumentationName = "github.com/loqalabs/loqa-narrator/pipeline"

// Orchestrator synthesizes sentences into persisted audio jobs.
type Orchestrator interface {
	Synthesize(ctx context.Context, ws *workspace.Context, sentences []segment.Sentence) ([]synth.Job, error)
}

// Assembler merges ordered jobs into one artifact.
type Assembler interface {
	Assemble(ctx context.Context, ws *workspace.Context, jobs []synth.Job) (assemble.Output, error)
}

// Request is one inbound narration request.
type Request struct {
	Text     string
	Source   string
	Filename string
}

// Result is the outcome of a successful request.
type Result struct {
	RequestID    string
	Audio        []byte
	Sentences    int
	UsedFallback bool
	Duration     time.Duration
}

// Options tunes a Pipeline.
type Options struct {
	// WorkspaceDir is the base directory for per-request namespaces.
	WorkspaceDir string
	// MaxConcurrent caps requests in flight; <= 0 means unlimited.
	MaxConcurrent int
	// Recorder may be nil.
	Recorder Recorder
}

type Pipeline struct {
	orchestrator Orchestrator
	assembler    Assembler
	workspaceDir string
	slots        *semaphore.Weighted
	recorder     Recorder
	log          *slog.Logger
	tracer       trace.Tracer

	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	segments  metric.Int64Counter
	fallbacks metric.Int64Counter
}

func New(orchestrator Orchestrator, assembler Assembler, opts Options, log *slog.Logger) *Pipeline {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	p := &Pipeline{
		orchestrator: orchestrator,
		assembler:    assembler,
		workspaceDir: opts.WorkspaceDir,
		recorder:     recorder,
		log:          log.With(slog.String("component", "pipeline")),
		tracer:       otel.Tracer(instrumentationName),
	}
	if opts.MaxConcurrent > 0 {
		p.slots = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	if err := p.initMetrics(); err != nil {
		p.log.Warn("failed to initialize metrics", slogError(err))
	}
	return p
}

func (p *Pipeline) initMetrics() error {
	err := p.bindMetrics(otel.Meter(instrumentationName))
	if err != nil {
		_ = p.bindMetrics(noop.Meter{})
	}
	return err
}

func (p *Pipeline) bindMetrics(meter metric.Meter) error {
	var err error
	if p.requests, err = meter.Int64Counter("narrator.requests",
		metric.WithDescription("Narration requests by outcome and failing stage")); err != nil {
		return err
	}
	if p.duration, err = meter.Float64Histogram("narrator.request.duration",
		metric.WithDescription("End-to-end narration latency"), metric.WithUnit("s")); err != nil {
		return err
	}
	if p.segments, err = meter.Int64Counter("narrator.segments",
		metric.WithDescription("Sentences synthesized")); err != nil {
		return err
	}
	if p.fallbacks, err = meter.Int64Counter("narrator.assembly.fallbacks",
		metric.WithDescription("Merges that needed the plain concatenation fallback")); err != nil {
		return err
	}
	return nil
}

// Handle narrates text and returns the merged audio.
func (p *Pipeline) Handle(ctx context.Context, text string) (Result, error) {
	return p.HandleRequest(ctx, Request{Text: text})
}

// HandleRequest runs one request under a fresh request id. Every transient
// resource is released before it returns, on success and on failure. It waits
// for a free slot when MaxConcurrent requests are already running.
func (p *Pipeline) HandleRequest(ctx context.Context, req Request) (Result, error) {
	if p.slots != nil {
		if err := p.slots.Acquire(ctx, 1); err != nil {
			return Result{}, fmt.Errorf("wait for pipeline slot: %w", err)
		}
		defer p.slots.Release(1)
	}

	requestID := workspace.NewRequestID()
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "narrate.request", trace.WithAttributes(
		attribute.String("narrator.request_id", requestID),
		attribute.Int("narrator.text_chars", utf8.RuneCountInString(req.Text)),
	))
	defer span.End()

	log := p.log.With(slog.String("request_id", requestID))
	p.recorder.Record(ctx, Event{
		RequestID: requestID,
		Type:      EventRequestStarted,
		Detail: map[string]any{
			"source":     req.Source,
			"filename":   req.Filename,
			"text_chars": utf8.RuneCountInString(req.Text),
		},
	})

	res, err := p.run(ctx, requestID, req.Text, log)
	res.RequestID = requestID
	res.Duration = time.Since(start)
	p.finish(ctx, span, log, res, err)
	if err != nil {
		return Result{RequestID: requestID, Duration: res.Duration}, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, requestID, text string, log *slog.Logger) (Result, error) {
	fail := func(stage Stage, err error) (Result, error) {
		return Result{}, &PipelineError{Stage: stage, RequestID: requestID, Err: err}
	}

	if strings.TrimSpace(text) == "" {
		return fail(StageSegmentation, ErrEmptyText)
	}
	sentences := segment.Split(text)
	if len(sentences) == 0 {
		return fail(StageSegmentation, ErrNoSentences)
	}
	p.stageDone(ctx, requestID, StageSegmentation, map[string]any{"sentences": len(sentences)})
	log.Debug("text segmented", slog.Int("sentences", len(sentences)))

	ws, err := workspace.New(p.workspaceDir, requestID, log)
	if err != nil {
		return fail(StageSynthesis, err)
	}
	defer ws.Release()

	synthCtx, synthSpan := p.tracer.Start(ctx, "narrate.synthesis")
	jobs, err := p.orchestrator.Synthesize(synthCtx, ws, sentences)
	endSpan(synthSpan, err)
	if err != nil {
		return fail(StageSynthesis, err)
	}
	p.segments.Add(ctx, int64(len(jobs)))
	p.stageDone(ctx, requestID, StageSynthesis, map[string]any{"segments": len(jobs)})

	asmCtx, asmSpan := p.tracer.Start(ctx, "narrate.assembly")
	out, err := p.assembler.Assemble(asmCtx, ws, jobs)
	endSpan(asmSpan, err)
	if err != nil {
		var readErr *assemble.ReadError
		if errors.As(err, &readErr) {
			return fail(StageRead, err)
		}
		return fail(StageAssembly, err)
	}
	if out.UsedFallback {
		p.fallbacks.Add(ctx, 1)
	}
	p.stageDone(ctx, requestID, StageAssembly, map[string]any{
		"bytes":    len(out.Audio),
		"fallback": out.UsedFallback,
	})

	return Result{Audio: out.Audio, Sentences: len(jobs), UsedFallback: out.UsedFallback}, nil
}

func (p *Pipeline) stageDone(ctx context.Context, requestID string, stage Stage, detail map[string]any) {
	p.recorder.Record(ctx, Event{RequestID: requestID, Type: EventStageCompleted, Stage: stage, Detail: detail})
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, log *slog.Logger, res Result, err error) {
	outcome := "success"
	attrs := []attribute.KeyValue{}
	evt := Event{RequestID: res.RequestID, Type: EventRequestCompleted, Detail: map[string]any{
		"sentences":   res.Sentences,
		"bytes":       len(res.Audio),
		"fallback":    res.UsedFallback,
		"duration_ms": res.Duration.Milliseconds(),
	}}
	if err != nil {
		outcome = "failure"
		stage, _ := StageOf(err)
		attrs = append(attrs, attribute.String("stage", string(stage)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		evt.Type = EventRequestFailed
		evt.Stage = stage
		evt.Detail = map[string]any{"error": err.Error(), "duration_ms": res.Duration.Milliseconds()}
		log.Warn("narration failed", slog.String("stage", string(stage)), slogError(err))
	} else {
		log.Info("narration complete",
			slog.Int("sentences", res.Sentences),
			slog.Int("bytes", len(res.Audio)),
			slog.Bool("fallback", res.UsedFallback),
			slog.Duration("latency", res.Duration))
	}
	attrs = append(attrs, attribute.String("outcome", outcome))
	p.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.duration.Record(ctx, res.Duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
	p.recorder.Record(ctx, evt)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
