package pipeline

import "context"

// Event types emitted while a request runs.
const (
	EventRequestStarted   = "request.started"
	EventStageCompleted   = "stage.completed"
	EventRequestCompleted = "request.completed"
	EventRequestFailed    = "request.failed"
)

// Event is a lifecycle notification for one request.
type Event struct {
	RequestID string
	Type      string
	Stage     Stage
	Detail    map[string]any
}

// Recorder observes request lifecycle events. Implementations must not block
// for long and must not fail the request.
type Recorder interface {
	Record(ctx context.Context, evt Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}
