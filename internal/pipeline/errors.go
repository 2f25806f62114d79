package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step an error originated from.
type Stage string

const (
	StageSegmentation Stage = "segmentation"
	StageSynthesis    Stage = "synthesis"
	StageAssembly     Stage = "assembly"
	StageRead         Stage = "read"
)

var (
	// ErrEmptyText rejects requests whose text is empty after trimming.
	ErrEmptyText = errors.New("text must not be empty")
	// ErrNoSentences is returned when segmentation yields nothing to narrate.
	ErrNoSentences = errors.New("no sentences to narrate")
)

// PipelineError is the single request-level error surfaced to callers.
type PipelineError struct {
	Stage     Stage
	RequestID string
	Err       error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("narrate %s: %s: %v", e.RequestID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// StageOf returns the stage of a PipelineError anywhere in err's chain.
func StageOf(err error) (Stage, bool) {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Stage, true
	}
	return "", false
}
