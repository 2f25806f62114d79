package protocol

import "time"

// NarrateRequest asks the narrator to render text over the bus.
type NarrateRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// NarrateReply carries the rendered audio or the failing stage.
type NarrateReply struct {
	RequestID   string `json:"request_id"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Audio       []byte `json:"audio,omitempty"`
	Sentences   int    `json:"sentences,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
	LatencyMS   int64  `json:"latency_ms"`
	Error       string `json:"error,omitempty"`
	Stage       string `json:"stage,omitempty"`
}

// Status is broadcast as a request moves through the pipeline.
type Status struct {
	RequestID string    `json:"request_id"`
	Event     string    `json:"event"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectNarrateGenerate   = "narrate.generate"
	SubjectNarrateStatus     = "narrate.status"
	SubjectNarrateCapability = "narrate.capability"

	StatusStreamName = "NARRATE_STATUS"
	ContentTypeMPEG  = "audio/mpeg"
)

// StatusSubject is the subject carrying status updates for requestID.
func StatusSubject(requestID string) string {
	return SubjectNarrateStatus + "." + requestID
}
