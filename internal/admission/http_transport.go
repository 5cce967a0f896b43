// Package admission provides an HTTP transport.
package admission

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestIDHeader = "X-Request-Id"

// HTTPTransport serves the admission check and admin APIs over HTTP.
type HTTPTransport struct {
	addr         string
	srv          *http.Server
	manager      *Manager
	appReady     func() bool
	logger       Logger
	metrics      Metrics
	tracer       Tracer
	sampler      Sampler
	registry     *prometheus.Registry
	inflight     *InFlight
	maxBodyBytes int64
	enableAuth   bool
	adminToken   string
	mux          http.Handler
	mu           sync.Mutex
}

// HTTPTransportOptions carries optional collaborators for the transport.
type HTTPTransportOptions struct {
	Logger       Logger
	Metrics      Metrics
	Tracer       Tracer
	Sampler      Sampler
	Registry     *prometheus.Registry
	InFlight     *InFlight
	MaxBodyBytes int64
	EnableAuth   bool
	AdminToken   string
}

// NewHTTPTransport constructs a transport bound to an address.
func NewHTTPTransport(addr string, manager *Manager, ready func() bool, opts HTTPTransportOptions) (*HTTPTransport, error) {
	if manager == nil {
		return nil, errors.New("manager is required")
	}
	if addr == "" {
		addr = ":8080"
	}
	if ready == nil {
		ready = func() bool { return false }
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = NoopTracer{}
	}
	return &HTTPTransport{
		addr:         addr,
		manager:      manager,
		appReady:     ready,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		tracer:       tracer,
		sampler:      opts.Sampler,
		registry:     opts.Registry,
		inflight:     opts.InFlight,
		maxBodyBytes: opts.MaxBodyBytes,
		enableAuth:   opts.EnableAuth,
		adminToken:   opts.AdminToken,
	}, nil
}

// Start begins serving HTTP requests.
func (t *HTTPTransport) Start() error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	handler := t.handler()
	t.mu.Lock()
	if t.srv == nil {
		t.srv = &http.Server{Addr: t.addr, Handler: handler}
	}
	srv := t.srv
	t.mu.Unlock()

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (t *HTTPTransport) Handler() http.Handler {
	return t.handler()
}

func (t *HTTPTransport) handler() http.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mux != nil {
		return t.mux
	}
	mux := http.NewServeMux()
	t.registerRoutes(mux)
	t.mux = t.withRequestID(t.withDrain(mux))
	return t.mux
}

// withRequestID stamps each request with an ID for log correlation.
func (t *HTTPTransport) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// withDrain rejects new requests once shutdown has begun.
func (t *HTTPTransport) withDrain(next http.Handler) http.Handler {
	if t.inflight == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.inflight.Begin() {
			writeJSON(w, http.StatusServiceUnavailable, httpErrorResponse{Error: "draining"})
			return
		}
		defer t.inflight.End()
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) metricsHandler() http.Handler {
	if t.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{})
		})
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
