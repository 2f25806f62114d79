package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

type multiRecorder []pipeline.Recorder

func (m multiRecorder) Record(ctx context.Context, evt pipeline.Event) {
	for _, r := range m {
		r.Record(ctx, evt)
	}
}

// journal persists request lifecycle events in the event store.
type journal struct {
	store *eventstore.Store
	log   *slog.Logger
}

func (j *journal) Record(ctx context.Context, evt pipeline.Event) {
	// Journal writes outlive request cancellation.
	ctx = context.WithoutCancel(ctx)

	var err error
	switch evt.Type {
	case pipeline.EventRequestStarted:
		err = j.store.AppendRequest(ctx, eventstore.Request{
			RequestID: evt.RequestID,
			Source:    detailString(evt.Detail, "source"),
			Filename:  detailString(evt.Detail, "filename"),
			TextChars: detailInt(evt.Detail, "text_chars"),
		})
	case pipeline.EventRequestCompleted:
		err = j.store.CompleteRequest(ctx, eventstore.Request{
			RequestID:  evt.RequestID,
			Status:     eventstore.StatusCompleted,
			Sentences:  detailInt(evt.Detail, "sentences"),
			AudioBytes: detailInt(evt.Detail, "bytes"),
		})
	case pipeline.EventRequestFailed:
		err = j.store.CompleteRequest(ctx, eventstore.Request{
			RequestID: evt.RequestID,
			Status:    eventstore.StatusFailed,
			Stage:     string(evt.Stage),
			Error:     detailString(evt.Detail, "error"),
		})
	}
	if err != nil {
		j.log.Warn("failed to journal request", slog.String("request_id", evt.RequestID), slogError(err))
		return
	}

	payload, err := json.Marshal(evt.Detail)
	if err != nil {
		j.log.Warn("failed to encode event detail", slogError(err))
		return
	}
	if err := j.store.AppendEvent(ctx, eventstore.Event{
		RequestID: evt.RequestID,
		Type:      evt.Type,
		Stage:     string(evt.Stage),
		Payload:   payload,
	}); err != nil {
		j.log.Warn("failed to journal event", slog.String("request_id", evt.RequestID), slogError(err))
	}
}

// statusPublisher broadcasts lifecycle events on the bus.
type statusPublisher struct {
	bus *bus.Client
	log *slog.Logger
}

func (s *statusPublisher) Record(_ context.Context, evt pipeline.Event) {
	status := protocol.Status{
		RequestID: evt.RequestID,
		Event:     evt.Type,
		Stage:     string(evt.Stage),
		Error:     detailString(evt.Detail, "error"),
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.StatusSubject(evt.RequestID), status); err != nil {
		s.log.Debug("failed to publish status", slogError(err))
	}
}

func detailString(detail map[string]any, key string) string {
	v, _ := detail[key].(string)
	return v
}

func detailInt(detail map[string]any, key string) int {
	switch v := detail[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
