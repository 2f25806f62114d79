// Package assemble merges per-sentence audio into one narrated artifact.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/synth"
	"github.com/loqalabs/loqa-narrator/internal/workspace"
)

var (
	// ErrNoSegments is returned when there is nothing to assemble.
	ErrNoSegments = errors.New("assemble: no segments")
	// ErrEmptyOutput is returned when the merged artifact has no content.
	ErrEmptyOutput = errors.New("assemble: merged output is empty")
)

// MergeError is returned when both the primary and fallback merges failed.
type MergeError struct {
	Primary  error
	Fallback error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *MergeError) Unwrap() []error { return []error{e.Primary, e.Fallback} }

// ReadError is returned when the merged artifact cannot be read back.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read merged output %s: %v", e.Path, e.Err) }

func (e *ReadError) Unwrap() error { return e.Err }

// Output is the merged artifact.
type Output struct {
	Audio        []byte
	UsedFallback bool
}

type Assembler struct {
	pp       PostProcessor
	primary  FilterChain
	fallback FilterChain
	encoding Encoding
	timeout  time.Duration
	log      *slog.Logger
}

func New(pp PostProcessor, primary, fallback FilterChain, encoding Encoding, timeout time.Duration, log *slog.Logger) *Assembler {
	return &Assembler{
		pp:       pp,
		primary:  primary,
		fallback: fallback,
		encoding: encoding,
		timeout:  timeout,
		log:      log.With(slog.String("component", "assembler")),
	}
}

// Assemble writes the concat list for jobs in index order, merges with the
// primary chain and retries once with the fallback chain on failure.
func (a *Assembler) Assemble(ctx context.Context, ws *workspace.Context, jobs []synth.Job) (Output, error) {
	if len(jobs) == 0 {
		return Output{}, ErrNoSegments
	}
	ordered := append([]synth.Job(nil), jobs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	paths := make([]string, len(ordered))
	for i, job := range ordered {
		paths[i] = job.Path
	}

	listPath := ws.Register(ws.ConcatListName())
	if err := writeListFile(listPath, paths); err != nil {
		return Output{}, err
	}
	outputPath := ws.Register(ws.OutputName())

	req := MergeRequest{ListPath: listPath, OutputPath: outputPath, Filter: a.primary, Encoding: a.encoding}
	usedFallback := false
	if err := a.merge(ctx, req); err != nil {
		a.log.Warn("primary merge failed, falling back to plain concat",
			slog.String("request_id", ws.RequestID),
			slog.String("error", err.Error()))
		req.Filter = a.fallback
		if ferr := a.merge(ctx, req); ferr != nil {
			return Output{}, &MergeError{Primary: err, Fallback: ferr}
		}
		usedFallback = true
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return Output{}, &ReadError{Path: outputPath, Err: err}
	}
	if len(data) == 0 {
		return Output{}, &ReadError{Path: outputPath, Err: ErrEmptyOutput}
	}
	return Output{Audio: data, UsedFallback: usedFallback}, nil
}

func (a *Assembler) merge(ctx context.Context, req MergeRequest) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.pp.Merge(ctx, req)
}

func writeListFile(path string, paths []string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	if err := WriteConcatList(file, paths); err != nil {
		file.Close()
		return fmt.Errorf("write concat list: %w", err)
	}
	return file.Close()
}
