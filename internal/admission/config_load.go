// Package admission provides configuration loading.
package admission

import (
	"errors"
	"flag"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadOptions controls config loading.
type LoadOptions struct {
	ConfigPath string
	Args       []string
	Environ    []string
}

// LoadConfig loads configuration from defaults, file, env, and flags.
func LoadConfig(opts LoadOptions) (*Config, error) {
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	flags, err := parseFlagOverrides(args)
	if err != nil {
		return nil, err
	}

	configPath := opts.ConfigPath
	if flags.ConfigPath != nil {
		configPath = *flags.ConfigPath
	}

	cfg := defaultConfig()
	if configPath != "" {
		fileOverrides, err := loadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := applyFileOverrides(cfg, fileOverrides); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg, environ); err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg, flags)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServiceName:           "admission",
		EnableHTTP:            true,
		HTTPListenAddr:        ":8080",
		EnableGRPC:            true,
		GRPCListenAddr:        ":9090",
		GRPCKeepAlive:         60 * time.Second,
		HTTPReadTimeout:       5 * time.Second,
		HTTPWriteTimeout:      10 * time.Second,
		HTTPIdleTimeout:       60 * time.Second,
		RequestTimeout:        2 * time.Second,
		DrainTimeout:          5 * time.Second,
		MaxBodyBytes:          1 << 20,
		TraceSampleRate:       100,
		CleanupInterval:       5 * time.Minute,
		LoadSampleInterval:    10 * time.Second,
		LoadGoroutineCeiling:  10000,
		InitialLoadMultiplier: 1.0,
		SeedDefaultEndpoints:  true,
	}
}

// fileConfig mirrors Config with optional fields so absent YAML keys keep
// their defaults.
type fileConfig struct {
	ServiceName           *string                `yaml:"service_name"`
	EnableHTTP            *bool                  `yaml:"enable_http"`
	HTTPListenAddr        *string                `yaml:"http_addr"`
	EnableGRPC            *bool                  `yaml:"enable_grpc"`
	GRPCListenAddr        *string                `yaml:"grpc_addr"`
	GRPCKeepAlive         *string                `yaml:"grpc_keepalive"`
	HTTPReadTimeout       *string                `yaml:"http_read_timeout"`
	HTTPWriteTimeout      *string                `yaml:"http_write_timeout"`
	HTTPIdleTimeout       *string                `yaml:"http_idle_timeout"`
	RequestTimeout        *string                `yaml:"request_timeout"`
	DrainTimeout          *string                `yaml:"drain_timeout"`
	MaxBodyBytes          *int64                 `yaml:"max_body_bytes"`
	EnableAuth            *bool                  `yaml:"enable_auth"`
	AdminToken            *string                `yaml:"admin_token"`
	TraceSampleRate       *int                   `yaml:"trace_sample_rate"`
	CleanupInterval       *string                `yaml:"cleanup_interval"`
	LoadSampleInterval    *string                `yaml:"load_sample_interval"`
	LoadGoroutineCeiling  *int                   `yaml:"load_goroutine_ceiling"`
	InitialLoadMultiplier *float64               `yaml:"initial_load_multiplier"`
	SeedDefaultEndpoints  *bool                  `yaml:"seed_default_endpoints"`
	Endpoints             map[string]endpointDoc `yaml:"endpoints"`
}

// endpointDoc is the YAML shape of one endpoint policy.
type endpointDoc struct {
	Algorithm         string               `yaml:"algorithm"`
	TokenBucket       *TokenBucketConfig   `yaml:"token_bucket"`
	SlidingWindow     *SlidingWindowConfig `yaml:"sliding_window"`
	PerPeer           bool                 `yaml:"per_peer"`
	TrustedMultiplier float64              `yaml:"trusted_multiplier"`
}

func (d endpointDoc) policy() (EndpointPolicy, error) {
	cfg := AlgorithmConfig{Kind: AlgorithmKind(d.Algorithm)}
	if cfg.Kind == "" {
		cfg.Kind = AlgorithmTokenBucket
	}
	if d.TokenBucket != nil {
		cfg.TokenBucket = *d.TokenBucket
	}
	if d.SlidingWindow != nil {
		cfg.SlidingWindow = *d.SlidingWindow
	}
	if err := cfg.Validate(); err != nil {
		return EndpointPolicy{}, err
	}
	policy := EndpointPolicy{
		Algorithm:         cfg,
		PerPeer:           d.PerPeer,
		TrustedMultiplier: d.TrustedMultiplier,
	}
	if policy.TrustedMultiplier == 0 {
		policy.TrustedMultiplier = 1.0
	}
	return policy, nil
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides fileConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, err
	}
	return &overrides, nil
}

func applyFileOverrides(cfg *Config, overrides *fileConfig) error {
	if cfg == nil || overrides == nil {
		return nil
	}
	if overrides.ServiceName != nil {
		cfg.ServiceName = *overrides.ServiceName
	}
	if overrides.EnableHTTP != nil {
		cfg.EnableHTTP = *overrides.EnableHTTP
	}
	if overrides.HTTPListenAddr != nil {
		cfg.HTTPListenAddr = *overrides.HTTPListenAddr
	}
	if overrides.EnableGRPC != nil {
		cfg.EnableGRPC = *overrides.EnableGRPC
	}
	if overrides.GRPCListenAddr != nil {
		cfg.GRPCListenAddr = *overrides.GRPCListenAddr
	}
	if err := setDuration(&cfg.GRPCKeepAlive, overrides.GRPCKeepAlive); err != nil {
		return err
	}
	if err := setDuration(&cfg.HTTPReadTimeout, overrides.HTTPReadTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.HTTPWriteTimeout, overrides.HTTPWriteTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.HTTPIdleTimeout, overrides.HTTPIdleTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.RequestTimeout, overrides.RequestTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.DrainTimeout, overrides.DrainTimeout); err != nil {
		return err
	}
	if overrides.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *overrides.MaxBodyBytes
	}
	if overrides.EnableAuth != nil {
		cfg.EnableAuth = *overrides.EnableAuth
	}
	if overrides.AdminToken != nil {
		cfg.AdminToken = *overrides.AdminToken
	}
	if overrides.TraceSampleRate != nil {
		cfg.TraceSampleRate = *overrides.TraceSampleRate
	}
	if err := setDuration(&cfg.CleanupInterval, overrides.CleanupInterval); err != nil {
		return err
	}
	if err := setDuration(&cfg.LoadSampleInterval, overrides.LoadSampleInterval); err != nil {
		return err
	}
	if overrides.LoadGoroutineCeiling != nil {
		cfg.LoadGoroutineCeiling = *overrides.LoadGoroutineCeiling
	}
	if overrides.InitialLoadMultiplier != nil {
		cfg.InitialLoadMultiplier = *overrides.InitialLoadMultiplier
	}
	if overrides.SeedDefaultEndpoints != nil {
		cfg.SeedDefaultEndpoints = *overrides.SeedDefaultEndpoints
	}
	if len(overrides.Endpoints) > 0 {
		if cfg.Endpoints == nil {
			cfg.Endpoints = make(map[string]EndpointPolicy, len(overrides.Endpoints))
		}
		for name, doc := range overrides.Endpoints {
			policy, err := doc.policy()
			if err != nil {
				return errors.New("invalid endpoint policy for " + name + ": " + err.Error())
			}
			cfg.Endpoints[name] = policy
		}
	}
	return nil
}

func setDuration(dst *time.Duration, raw *string) error {
	if raw == nil {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(*raw))
	if err != nil {
		return errors.New("invalid duration value " + *raw)
	}
	*dst = value
	return nil
}

func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	values := envMap(environ)
	if value, ok := values["ADMISSION_ENABLE_HTTP"]; ok {
		parsed, err := parseBoolEnv("ADMISSION_ENABLE_HTTP", value)
		if err != nil {
			return err
		}
		cfg.EnableHTTP = parsed
	}
	if value, ok := values["ADMISSION_HTTP_ADDR"]; ok {
		cfg.HTTPListenAddr = value
	}
	if value, ok := values["ADMISSION_ENABLE_GRPC"]; ok {
		parsed, err := parseBoolEnv("ADMISSION_ENABLE_GRPC", value)
		if err != nil {
			return err
		}
		cfg.EnableGRPC = parsed
	}
	if value, ok := values["ADMISSION_GRPC_ADDR"]; ok {
		cfg.GRPCListenAddr = value
	}
	if value, ok := values["ADMISSION_ENABLE_AUTH"]; ok {
		parsed, err := parseBoolEnv("ADMISSION_ENABLE_AUTH", value)
		if err != nil {
			return err
		}
		cfg.EnableAuth = parsed
	}
	if value, ok := values["ADMISSION_ADMIN_TOKEN"]; ok {
		cfg.AdminToken = value
	}
	if value, ok := values["ADMISSION_TRACE_SAMPLE_RATE"]; ok {
		parsed, err := parseIntEnv("ADMISSION_TRACE_SAMPLE_RATE", value)
		if err != nil {
			return err
		}
		cfg.TraceSampleRate = int(parsed)
	}
	if value, ok := values["ADMISSION_CLEANUP_INTERVAL_MS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_CLEANUP_INTERVAL_MS", value)
		if err != nil {
			return err
		}
		cfg.CleanupInterval = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["ADMISSION_LOAD_SAMPLE_INTERVAL_MS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_LOAD_SAMPLE_INTERVAL_MS", value)
		if err != nil {
			return err
		}
		cfg.LoadSampleInterval = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["ADMISSION_INITIAL_LOAD_MULTIPLIER"]; ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return errors.New("invalid env value for ADMISSION_INITIAL_LOAD_MULTIPLIER")
		}
		cfg.InitialLoadMultiplier = parsed
	}
	if value, ok := values["ADMISSION_SEED_DEFAULT_ENDPOINTS"]; ok {
		parsed, err := parseBoolEnv("ADMISSION_SEED_DEFAULT_ENDPOINTS", value)
		if err != nil {
			return err
		}
		cfg.SeedDefaultEndpoints = parsed
	}
	return nil
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = parts[1]
	}
	return values
}

func parseBoolEnv(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func parseIntEnv(name, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

type flagOverrides struct {
	ConfigPath        *string
	EnableHTTP        *bool
	HTTPListenAddr    *string
	EnableGRPC        *bool
	GRPCListenAddr    *string
	EnableAuth        *bool
	AdminToken        *string
	TraceSampleRate   *int
	CleanupIntervalMS *int
	SeedDefaults      *bool
}

func parseFlagOverrides(args []string) (flagOverrides, error) {
	fs := flag.NewFlagSet("admission", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	configPath := fs.String("config", "", "config file path")
	enableHTTP := fs.Bool("enable_http", false, "enable http")
	httpAddr := fs.String("http_addr", "", "http address")
	enableGRPC := fs.Bool("enable_grpc", false, "enable grpc")
	grpcAddr := fs.String("grpc_addr", "", "grpc address")
	enableAuth := fs.Bool("enable_auth", false, "enable auth")
	adminToken := fs.String("admin_token", "", "admin token")
	traceSampleRate := fs.Int("trace_sample_rate", 0, "trace sample rate")
	cleanupInterval := fs.Int("cleanup_interval_ms", 0, "cleanup interval ms")
	seedDefaults := fs.Bool("seed_defaults", false, "seed default endpoint policies")

	if err := fs.Parse(args); err != nil {
		return flagOverrides{}, errors.New("invalid flag values")
	}

	overrides := flagOverrides{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			overrides.ConfigPath = configPath
		case "enable_http":
			overrides.EnableHTTP = enableHTTP
		case "http_addr":
			overrides.HTTPListenAddr = httpAddr
		case "enable_grpc":
			overrides.EnableGRPC = enableGRPC
		case "grpc_addr":
			overrides.GRPCListenAddr = grpcAddr
		case "enable_auth":
			overrides.EnableAuth = enableAuth
		case "admin_token":
			overrides.AdminToken = adminToken
		case "trace_sample_rate":
			overrides.TraceSampleRate = traceSampleRate
		case "cleanup_interval_ms":
			overrides.CleanupIntervalMS = cleanupInterval
		case "seed_defaults":
			overrides.SeedDefaults = seedDefaults
		}
	})
	return overrides, nil
}

func applyFlagOverrides(cfg *Config, overrides flagOverrides) {
	if cfg == nil {
		return
	}
	if overrides.EnableHTTP != nil {
		cfg.EnableHTTP = *overrides.EnableHTTP
	}
	if overrides.HTTPListenAddr != nil {
		cfg.HTTPListenAddr = *overrides.HTTPListenAddr
	}
	if overrides.EnableGRPC != nil {
		cfg.EnableGRPC = *overrides.EnableGRPC
	}
	if overrides.GRPCListenAddr != nil {
		cfg.GRPCListenAddr = *overrides.GRPCListenAddr
	}
	if overrides.EnableAuth != nil {
		cfg.EnableAuth = *overrides.EnableAuth
	}
	if overrides.AdminToken != nil {
		cfg.AdminToken = *overrides.AdminToken
	}
	if overrides.TraceSampleRate != nil {
		cfg.TraceSampleRate = *overrides.TraceSampleRate
	}
	if overrides.CleanupIntervalMS != nil {
		cfg.CleanupInterval = time.Duration(*overrides.CleanupIntervalMS) * time.Millisecond
	}
	if overrides.SeedDefaults != nil {
		cfg.SeedDefaultEndpoints = *overrides.SeedDefaults
	}
}
