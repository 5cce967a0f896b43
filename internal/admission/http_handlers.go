// Package admission provides HTTP handlers.
package admission

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultMaxBodyBytes = 1 << 20

type httpErrorResponse struct {
	Error string `json:"error"`
}

func (t *HTTPTransport) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/admission/check", t.handleCheck)
	mux.HandleFunc("/v1/admission/stats", t.handleStats)
	mux.HandleFunc("/v1/admission/endpoints", t.handleEndpointList)
	mux.HandleFunc("/v1/admission/endpoints/", t.handleEndpoint)
	mux.HandleFunc("/v1/admission/load", t.handleLoad)
	mux.HandleFunc("/v1/admission/reset", t.handleReset)
	mux.HandleFunc("/v1/admission/cleanup", t.handleCleanup)
	mux.HandleFunc("/healthz", t.handleHealth)
	mux.HandleFunc("/readyz", t.handleReady)
	mux.Handle("/metrics", t.metricsHandler())
}

func (t *HTTPTransport) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	defer func() {
		if t.metrics != nil {
			t.metrics.ObserveLatency("httpCheck", time.Since(start))
		}
	}()
	span := t.startSpan(r, "admission.check")
	defer span.End()

	var httpReq httpCheckRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		span.RecordError(err)
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if httpReq.Endpoint == "" {
		span.RecordError(ErrInvalidInput)
		t.writeError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}
	cost := httpReq.Cost
	if cost == 0 {
		cost = 1
	}
	span.SetAttribute("endpoint", httpReq.Endpoint)
	allowed := t.manager.CheckRequest(httpReq.Endpoint, httpReq.Client, cost)
	if t.metrics != nil {
		result := "denied"
		if allowed {
			result = "allowed"
		}
		algorithm := "none"
		if policy, ok := t.manager.EndpointPolicyFor(httpReq.Endpoint); ok {
			algorithm = string(policy.Algorithm.Kind)
		}
		t.metrics.IncCheck(result, algorithm)
	}
	writeJSON(w, http.StatusOK, httpCheckResponse{Allowed: allowed, Endpoint: httpReq.Endpoint})
}

func (t *HTTPTransport) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, t.manager.GetStats())
}

func (t *HTTPTransport) handleEndpointList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	policies := t.manager.EndpointPolicies()
	resp := make([]httpEndpointResponse, 0, len(policies))
	for name, policy := range policies {
		resp = append(resp, fromEndpointPolicy(name, policy))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1/admission/endpoints/")
	if name == "" || strings.Contains(name, "..") {
		t.writeError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}
	switch r.Method {
	case http.MethodGet:
		policy, ok := t.manager.EndpointPolicyFor(name)
		if !ok {
			t.writeError(w, r, http.StatusNotFound, ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, fromEndpointPolicy(name, policy))
	case http.MethodPut:
		if !t.authorizeAdmin(w, r) {
			return
		}
		var httpReq httpEndpointRequest
		if err := t.decodeJSON(w, r, &httpReq); err != nil {
			t.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		policy, err := toEndpointPolicy(httpReq)
		if err != nil {
			t.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		_, existed := t.manager.EndpointPolicyFor(name)
		t.manager.ConfigureEndpoint(name, policy)
		status := http.StatusOK
		if !existed {
			status = http.StatusCreated
		}
		writeJSON(w, status, fromEndpointPolicy(name, policy))
	case http.MethodDelete:
		if !t.authorizeAdmin(w, r) {
			return
		}
		if _, ok := t.manager.EndpointPolicyFor(name); !ok {
			t.writeError(w, r, http.StatusNotFound, ErrNotFound)
			return
		}
		t.manager.RemoveEndpoint(name)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (t *HTTPTransport) handleLoad(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, httpLoadResponse{Multiplier: t.manager.LoadMultiplier()})
	case http.MethodPut:
		if !t.authorizeAdmin(w, r) {
			return
		}
		var httpReq httpLoadRequest
		if err := t.decodeJSON(w, r, &httpReq); err != nil {
			t.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		if httpReq.Multiplier <= 0 {
			t.writeError(w, r, http.StatusBadRequest, ErrInvalidInput)
			return
		}
		t.manager.UpdateLoadMultiplier(httpReq.Multiplier)
		writeJSON(w, http.StatusOK, httpLoadResponse{Multiplier: t.manager.LoadMultiplier()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (t *HTTPTransport) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !t.authorizeAdmin(w, r) {
		return
	}
	t.manager.ResetAllLimiters()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *HTTPTransport) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !t.authorizeAdmin(w, r) {
		return
	}
	start := time.Now()
	removed := t.manager.CleanupUnusedLimiters()
	if t.metrics != nil {
		t.metrics.ObserveLatency("cleanup", time.Since(start))
	}
	writeJSON(w, http.StatusOK, httpCleanupResponse{Removed: removed})
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !t.manager.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.appReady != nil && t.appReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// startSpan traces the request when the sampler selects its ID.
func (t *HTTPTransport) startSpan(r *http.Request, name string) Span {
	if t.sampler != nil && !t.sampler.Sampled(r.Header.Get(requestIDHeader)) {
		return NoopSpan{}
	}
	_, span := t.tracer.StartSpan(r.Context(), name)
	return span
}

func (t *HTTPTransport) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrInvalidInput
	}
	maxBytes := t.maxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return ErrInvalidInput
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrInvalidInput
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (t *HTTPTransport) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if t != nil {
		t.logRequestError(r, status, err)
	}
	writeJSON(w, status, httpErrorResponse{Error: err.Error()})
}

func (t *HTTPTransport) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	if t == nil || !t.enableAuth {
		return true
	}
	expected := "Bearer " + t.adminToken
	if r.Header.Get("Authorization") != expected {
		t.writeError(w, r, http.StatusUnauthorized, ErrUnauthorized)
		return false
	}
	return true
}

func (t *HTTPTransport) logRequestError(r *http.Request, status int, err error) {
	if t == nil || t.logger == nil || r == nil || err == nil {
		return
	}
	fields := map[string]any{
		"method":    r.Method,
		"path":      r.URL.Path,
		"status":    status,
		"error":     err.Error(),
		"requestID": r.Header.Get(requestIDHeader),
	}
	if status >= http.StatusInternalServerError {
		t.logger.Error("http request error", fields)
		return
	}
	t.logger.Info("http request error", fields)
}
