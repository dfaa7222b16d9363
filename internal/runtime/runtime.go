package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-studio/internal/assist"
	"github.com/loqalabs/loqa-studio/internal/bus"
	"github.com/loqalabs/loqa-studio/internal/config"
	"github.com/loqalabs/loqa-studio/internal/eventstore"
	"github.com/loqalabs/loqa-studio/internal/gemini"
	"github.com/loqalabs/loqa-studio/internal/jobs"
	"github.com/loqalabs/loqa-studio/internal/natsserver"
	"github.com/loqalabs/loqa-studio/internal/studio"
	"github.com/loqalabs/loqa-studio/internal/tts"
	"github.com/loqalabs/loqa-studio/internal/voices"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	metricsServer  *http.Server
	tracerClose    func(context.Context) error
	embedded       *natsserver.EmbeddedServer
	bus            *bus.Client
	store          *eventstore.Store
	jobs           *jobs.Service
	ready          atomic.Bool
	wg             sync.WaitGroup
	metricsHandler http.Handler
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	r.metricsHandler = metricsHandler

	handler, err := r.setup(ctx)
	if err != nil {
		r.shutdown()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("tts_mode", r.cfg.TTS.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	r.shutdown()
	return nil
}

// setup wires the studio components and returns the HTTP handler. Components
// created before a failure are released by shutdown.
func (r *Runtime) setup(ctx context.Context) (http.Handler, error) {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded nats: %w", err)
	}
	r.embedded = embedded

	var jobsBus jobs.Bus
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		client, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger.With(slog.String("component", "bus")))
		if err != nil {
			return nil, fmt.Errorf("failed to connect bus: %w", err)
		}
		r.bus = client
		jobsBus = client
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store

	synth, err := tts.New(ctx, r.cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("failed to build tts backend: %w", err)
	}
	gen := studio.NewGenerator(synth, studio.Options{
		MaxChars:   r.cfg.TTS.MaxChars,
		SampleRate: r.cfg.TTS.SampleRate,
	}, r.logger)

	var catalog *voices.Catalog
	if path := r.cfg.Voices.Catalog; path != "" {
		c, err := voices.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load voice catalog: %w", err)
		}
		if err := voices.Validate(c); err != nil {
			return nil, fmt.Errorf("invalid voice catalog %s: %w", path, err)
		}
		catalog = &c
		r.logger.Info("voice catalog loaded", slog.String("path", path), slog.Int("profiles", len(c.Profiles)))
	}

	r.jobs = jobs.New(ctx, r.cfg.Jobs, r.cfg.TTS.Voice, jobsBus, gen, store, catalog, r.logger)
	if err := r.jobs.Start(); err != nil {
		return nil, err
	}

	a := &api{
		jobs:     r.jobs,
		maxChars: r.cfg.TTS.MaxChars,
		maxBody:  r.cfg.HTTP.MaxBodyBytes,
		logger:   r.logger.With(slog.String("component", "api")),
	}
	if r.cfg.Assist.Enabled {
		client, err := gemini.NewClient(ctx, gemini.Config{
			Endpoint: r.cfg.Assist.Endpoint,
			APIKey:   r.cfg.Assist.APIKey,
			Timeout:  time.Duration(r.cfg.Assist.RequestTimeout) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build assist client: %w", err)
		}
		a.assist = assist.New(client, r.cfg.Assist.Model)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricsHandler != nil {
		mux.Handle("/metrics", r.metricsHandler)
	}
	a.routes(mux)
	return mux, nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error(name+" server failed", slogError(err))
		}
	}()
}

// shutdown stops servers first, then drains jobs before closing the bus and
// journal they write to.
func (r *Runtime) shutdown() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	r.wg.Wait()

	if r.jobs != nil {
		r.jobs.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.embedded.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slogError(err))
		}
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.componentsHealthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) componentsHealthy() bool {
	if r.bus != nil && !r.bus.Healthy() {
		return false
	}
	return r.jobs == nil || r.jobs.Healthy()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
