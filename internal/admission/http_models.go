// Package admission provides HTTP transport models.
package admission

type httpCheckRequest struct {
	Endpoint string `json:"endpoint"`
	Client   string `json:"client"`
	Cost     uint32 `json:"cost"`
}

type httpCheckResponse struct {
	Allowed  bool   `json:"allowed"`
	Endpoint string `json:"endpoint"`
}

type httpEndpointRequest struct {
	Algorithm         string               `json:"algorithm"`
	TokenBucket       *TokenBucketConfig   `json:"tokenBucket"`
	SlidingWindow     *SlidingWindowConfig `json:"slidingWindow"`
	PerPeer           bool                 `json:"perPeer"`
	TrustedMultiplier float64              `json:"trustedMultiplier"`
}

type httpEndpointResponse struct {
	Endpoint          string               `json:"endpoint"`
	Algorithm         string               `json:"algorithm"`
	TokenBucket       *TokenBucketConfig   `json:"tokenBucket,omitempty"`
	SlidingWindow     *SlidingWindowConfig `json:"slidingWindow,omitempty"`
	PerPeer           bool                 `json:"perPeer"`
	TrustedMultiplier float64              `json:"trustedMultiplier"`
}

type httpLoadRequest struct {
	Multiplier float64 `json:"multiplier"`
}

type httpLoadResponse struct {
	Multiplier float64 `json:"multiplier"`
}

type httpCleanupResponse struct {
	Removed int `json:"removed"`
}

func toEndpointPolicy(req httpEndpointRequest) (EndpointPolicy, error) {
	cfg := AlgorithmConfig{Kind: AlgorithmKind(req.Algorithm)}
	if cfg.Kind == "" {
		cfg.Kind = AlgorithmTokenBucket
	}
	if req.TokenBucket != nil {
		cfg.TokenBucket = *req.TokenBucket
	}
	if req.SlidingWindow != nil {
		cfg.SlidingWindow = *req.SlidingWindow
	}
	if err := cfg.Validate(); err != nil {
		return EndpointPolicy{}, err
	}
	policy := EndpointPolicy{
		Algorithm:         cfg,
		PerPeer:           req.PerPeer,
		TrustedMultiplier: req.TrustedMultiplier,
	}
	if policy.TrustedMultiplier == 0 {
		policy.TrustedMultiplier = 1.0
	}
	return policy, nil
}

func fromEndpointPolicy(name string, policy EndpointPolicy) httpEndpointResponse {
	resp := httpEndpointResponse{
		Endpoint:          name,
		Algorithm:         string(policy.Algorithm.Kind),
		PerPeer:           policy.PerPeer,
		TrustedMultiplier: policy.TrustedMultiplier,
	}
	switch policy.Algorithm.Kind {
	case AlgorithmTokenBucket:
		cfg := policy.Algorithm.TokenBucket
		resp.TokenBucket = &cfg
	case AlgorithmSlidingWindow:
		cfg := policy.Algorithm.SlidingWindow
		resp.SlidingWindow = &cfg
	}
	return resp
}
