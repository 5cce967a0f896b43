// Package admission provides configuration for the application wiring.
package admission

import "time"

// Config captures dependency and runtime settings.
type Config struct {
	ServiceName           string
	EnableHTTP            bool
	HTTPListenAddr        string
	EnableGRPC            bool
	GRPCListenAddr        string
	GRPCKeepAlive         time.Duration
	HTTPReadTimeout       time.Duration
	HTTPWriteTimeout      time.Duration
	HTTPIdleTimeout       time.Duration
	RequestTimeout        time.Duration
	DrainTimeout          time.Duration
	MaxBodyBytes          int64
	EnableAuth            bool
	AdminToken            string
	TraceSampleRate       int
	CleanupInterval       time.Duration
	LoadSampleInterval    time.Duration
	LoadGoroutineCeiling  int
	InitialLoadMultiplier float64
	SeedDefaultEndpoints  bool
	Endpoints             map[string]EndpointPolicy
	Logger                Logger
	Metrics               Metrics
	Recorder              RejectionRecorder
	Tracer                Tracer
	Sampler               Sampler
	LoadSource            LoadSource
}
