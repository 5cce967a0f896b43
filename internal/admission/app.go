// Package admission wires application dependencies.
package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Application holds core components for the service.
type Application struct {
	Config        *Config
	Manager       *Manager
	CleanupLoop   *CleanupLoop
	LoadMonitor   *LoadMonitor
	Registry      *prometheus.Registry
	ready         atomic.Bool
	httpTransport *HTTPTransport
	grpcTransport *GRPCTransport
	inflight      *InFlight
	metrics       Metrics
	logger        Logger
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewApplication validates configuration and prepares the application.
func NewApplication(cfg *Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NewStdLogger(nil)
	}

	registry := prometheus.NewRegistry()
	metrics := cfg.Metrics
	recorder := cfg.Recorder
	if metrics == nil {
		prom := NewPrometheusMetrics(registry)
		metrics = prom
		if recorder == nil {
			recorder = prom
		}
	}

	var manager *Manager
	if cfg.SeedDefaultEndpoints {
		manager = NewManager(recorder, logger)
	} else {
		manager = NewEmptyManager(recorder, logger)
	}
	for name, policy := range cfg.Endpoints {
		manager.ConfigureEndpoint(name, policy)
	}
	if cfg.InitialLoadMultiplier > 0 {
		manager.UpdateLoadMultiplier(cfg.InitialLoadMultiplier)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = NoopTracer{}
	}
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = NewHashSampler(cfg.TraceSampleRate)
	}
	source := cfg.LoadSource
	if source == nil {
		source = &GoroutineLoadSource{Ceiling: cfg.LoadGoroutineCeiling}
	}

	app := &Application{
		Config:   cfg,
		Manager:  manager,
		Registry: registry,
		metrics:  metrics,
		logger:   logger,
		inflight:    NewInFlight(),
		CleanupLoop: NewCleanupLoop(manager, cfg.CleanupInterval, metrics),
		LoadMonitor: NewLoadMonitor(manager, source, cfg.LoadSampleInterval, logger),
	}

	if cfg.EnableHTTP {
		transport, err := NewHTTPTransport(cfg.HTTPListenAddr, manager, app.Ready, HTTPTransportOptions{
			Logger:       logger,
			Metrics:      metrics,
			Tracer:       tracer,
			Sampler:      sampler,
			Registry:     registry,
			InFlight:     app.inflight,
			MaxBodyBytes: cfg.MaxBodyBytes,
			EnableAuth:   cfg.EnableAuth,
			AdminToken:   cfg.AdminToken,
		})
		if err != nil {
			return nil, err
		}
		app.httpTransport = transport
	}
	if cfg.EnableGRPC {
		app.grpcTransport = NewGRPCTransport(cfg.GRPCListenAddr, app.Ready, grpcTransportConfig{
			keepAlive: cfg.GRPCKeepAlive,
			manager:   manager,
			logger:    logger,
			metrics:   metrics,
		})
	}

	return app, nil
}

// Start begins background work for the application.
func (app *Application) Start(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	if app.CleanupLoop != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.CleanupLoop.Start(ctx)
		}()
	}
	if app.LoadMonitor != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.LoadMonitor.Start(ctx)
		}()
	}
	if app.httpTransport != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.httpTransport.Start(); err != nil {
				logError(app.logger, "http transport stopped", map[string]any{"error": err.Error()})
			}
		}()
	}
	if app.grpcTransport != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.grpcTransport.Start(); err != nil {
				logError(app.logger, "grpc transport stopped", map[string]any{"error": err.Error()})
			}
		}()
	}

	app.ready.Store(true)
	logInfo(app.logger, "application started", map[string]any{
		"service": app.Config.ServiceName,
		"http":    app.httpTransport != nil,
		"grpc":    app.grpcTransport != nil,
	})

	return nil
}

// Shutdown stops background work for the application.
func (app *Application) Shutdown(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.ready.Store(false)
	app.inflight.Close()
	_ = app.inflight.Wait(ctx)
	if app.httpTransport != nil {
		_ = app.httpTransport.Shutdown(ctx)
	}
	if app.grpcTransport != nil {
		_ = app.grpcTransport.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the application has completed startup.
func (app *Application) Ready() bool {
	if app == nil {
		return false
	}
	return app.ready.Load()
}
