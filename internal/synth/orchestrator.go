// Package synth fans sentence synthesis out to a Synthesizer and persists
// each result into the request workspace.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-narrator/internal/prosody"
	"github.com/loqalabs/loqa-narrator/internal/segment"
	"github.com/loqalabs/loqa-narrator/internal/tts"
	"github.com/loqalabs/loqa-narrator/internal/workspace"
)

// Job pairs a sentence with its profile and the persisted audio resource.
type Job struct {
	Index   int
	Text    string
	Profile prosody.Profile
	Path    string
	Size    int
}

// SegmentError reports the sentence whose synthesis failed.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("synthesize sentence %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

type Orchestrator struct {
	synth       tts.Synthesizer
	voice       string
	concurrency int
	timeout     time.Duration
	log         *slog.Logger
}

// New creates an orchestrator. concurrency <= 0 means sequential.
func New(synth tts.Synthesizer, voice string, concurrency int, timeout time.Duration, log *slog.Logger) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Orchestrator{
		synth:       synth,
		voice:       voice,
		concurrency: concurrency,
		timeout:     timeout,
		log:         log.With(slog.String("component", "synth-orchestrator")),
	}
}

// Synthesize produces one Job per non-empty sentence, ordered by sentence
// index regardless of completion order. The first failure cancels the
// remaining calls and no jobs are returned.
func (o *Orchestrator) Synthesize(ctx context.Context, ws *workspace.Context, sentences []segment.Sentence) ([]Job, error) {
	results := make([]*Job, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	total := len(sentences)
	for pos, sentence := range sentences {
		text := strings.TrimSpace(sentence.Text)
		if text == "" {
			continue
		}
		profile := prosody.Classify(text)
		g.Go(func() error {
			job, err := o.synthesizeOne(gctx, ws, sentence.Index, text, profile)
			if err != nil {
				return &SegmentError{Index: sentence.Index, Err: err}
			}
			results[pos] = job
			o.log.Debug("sentence synthesized",
				slog.String("request_id", ws.RequestID),
				slog.String("kind", string(profile.Kind)),
				slog.String("progress", fmt.Sprintf("%d/%d", sentence.Index+1, total)),
				slog.Int("bytes", job.Size))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(results))
	for _, job := range results {
		if job != nil {
			jobs = append(jobs, *job)
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].Index < jobs[j].Index })
	return jobs, nil
}

func (o *Orchestrator) synthesizeOne(ctx context.Context, ws *workspace.Context, index int, text string, profile prosody.Profile) (*Job, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	res, err := o.synth.Synthesize(ctx, tts.SynthRequest{
		RequestID: ws.RequestID,
		Index:     index,
		Text:      text,
		Voice:     o.voice,
		Profile:   profile,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Audio) == 0 {
		return nil, tts.ErrEmptyAudio
	}
	format := res.Format
	if format == "" {
		format = "mp3"
	}

	path := ws.Register(ws.SegmentName(index, format))
	if err := os.WriteFile(path, res.Audio, 0o600); err != nil {
		return nil, fmt.Errorf("write segment audio: %w", err)
	}
	return &Job{Index: index, Text: text, Profile: profile, Path: path, Size: len(res.Audio)}, nil
}
