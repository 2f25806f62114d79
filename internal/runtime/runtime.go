package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/capability"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/natsserver"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

type Runtime struct {
	cfg         config.Config
	version     string
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	store      *eventstore.Store
	nats       *natsserver.EmbeddedServer
	bus        *bus.Client
	busService *busService
	closeSynth func() error
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// Start brings up every subsystem, serves until ctx is done and then shuts
// down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.closeAll()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store
	recorders := multiRecorder{}
	if store.Enabled() {
		recorders = append(recorders, &journal{store: store, log: r.logger})
	}

	if r.cfg.Bus.Enabled {
		if err := r.startBus(ctx); err != nil {
			return err
		}
		recorders = append(recorders, &statusPublisher{bus: r.bus, log: r.logger})
	}

	narrator, closeSynth, err := pipeline.FromConfig(ctx, r.cfg, recorders, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	r.closeSynth = closeSynth

	descriptor := capability.Describe(r.cfg, r.version)
	if r.bus != nil {
		r.busService = newBusService(ctx, r.bus, narrator, r.cfg.HTTP.DefaultFilename, r.cfg.Bus.RequestTimeoutDuration(), r.logger)
		if err := r.busService.Start(); err != nil {
			return fmt.Errorf("failed to start narrate bus service: %w", err)
		}
		sub, err := capability.Serve(r.bus.Conn(), descriptor, r.logger)
		if err != nil {
			return err
		}
		defer func() { _ = sub.Drain() }()
	}

	api := &api{
		cfg:        r.cfg.HTTP,
		narrator:   narrator,
		descriptor: descriptor,
		ready:      r.isReady,
		metrics:    metricsHandler,
		log:        r.logger.With(slog.String("component", "http")),
	}
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slogError(err))
			cancel()
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("tts_mode", r.cfg.TTS.Mode),
		slog.Bool("bus", r.bus != nil))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	r.wg.Wait()
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.nats = embedded

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.bus = client

	maxAge := time.Duration(r.cfg.EventStore.RetentionDays) * 24 * time.Hour
	if err := client.EnsureStream(protocol.StatusStreamName, []string{protocol.SubjectNarrateStatus + ".>"}, maxAge); err != nil {
		r.logger.Warn("status stream unavailable", slogError(err))
	}
	return nil
}

func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	return r.bus == nil || r.bus.Healthy()
}

func (r *Runtime) closeAll() {
	if r.busService != nil {
		r.busService.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.nats.Shutdown()
	if r.closeSynth != nil {
		if err := r.closeSynth(); err != nil {
			r.logger.Warn("synthesizer close error", slogError(err))
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("event store close error", slogError(err))
		}
	}
	if r.tracerClose != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.tracerClose(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
