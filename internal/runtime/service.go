package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

const narrateQueue = "narrators"

// busService answers narrate.generate requests on the bus.
type busService struct {
	bus             *bus.Client
	narrator        Narrator
	defaultFilename string
	timeout         time.Duration
	sub             *nats.Subscription
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	logger          *slog.Logger
}

func newBusService(parent context.Context, busClient *bus.Client, narrator Narrator, defaultFilename string, timeout time.Duration, logger *slog.Logger) *busService {
	ctx, cancel := context.WithCancel(parent)
	return &busService{
		bus:             busClient,
		narrator:        narrator,
		defaultFilename: defaultFilename,
		timeout:         timeout,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger.With(slog.String("component", "narrate-bus-service")),
	}
}

func (s *busService) Start() error {
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectNarrateGenerate, narrateQueue, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *busService) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *busService) handleRequest(msg *nats.Msg) {
	var req protocol.NarrateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode narrate request", slogError(err))
		s.respond(msg, protocol.NarrateReply{Error: "invalid request: " + err.Error()})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		filename := sanitizeFilename(req.Filename, s.defaultFilename)
		res, err := s.narrator.HandleRequest(ctx, pipeline.Request{Text: req.Text, Source: "bus", Filename: filename})
		reply := protocol.NarrateReply{
			RequestID: res.RequestID,
			Filename:  filename,
			LatencyMS: res.Duration.Milliseconds(),
		}
		if err != nil {
			stage, _ := pipeline.StageOf(err)
			reply.Error = err.Error()
			reply.Stage = string(stage)
		} else {
			reply.ContentType = protocol.ContentTypeMPEG
			reply.Audio = res.Audio
			reply.Sentences = res.Sentences
			reply.Fallback = res.UsedFallback
		}
		s.respond(msg, reply)
	}()
}

func (s *busService) respond(msg *nats.Msg, reply protocol.NarrateReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to encode narrate reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send narrate reply", slog.String("request_id", reply.RequestID), slogError(err))
	}
}
