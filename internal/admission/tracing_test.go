package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSamplerRateOneAlwaysSamples(t *testing.T) {
	t.Parallel()
	sampler := NewHashSampler(1)
	require.True(t, sampler.Sampled("trace-a"))
	require.True(t, sampler.Sampled("trace-b"))
}

func TestHashSamplerSkipsEmptyAndDisabled(t *testing.T) {
	t.Parallel()
	require.False(t, NewHashSampler(1).Sampled(""))
	require.False(t, NewHashSampler(0).Sampled("trace-a"))
	require.False(t, NewHashSampler(-5).Sampled("trace-a"))
}

func TestHashSamplerDeterministic(t *testing.T) {
	t.Parallel()
	sampler := NewHashSampler(100)
	first := sampler.Sampled("trace-a")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, sampler.Sampled("trace-a"))
	}
}

func TestNoopTracerProducesWorkingSpan(t *testing.T) {
	t.Parallel()
	ctx, span := NoopTracer{}.StartSpan(context.Background(), "op")
	require.NotNil(t, ctx)
	span.SetAttribute("k", "v")
	span.RecordError(nil)
	span.End()
}

func TestOTelTracerNilSafe(t *testing.T) {
	t.Parallel()
	var tracer *OTelTracer
	ctx, span := tracer.StartSpan(context.Background(), "op")
	require.NotNil(t, ctx)
	span.End()

	ctx, span = NewOTelTracer(nil).StartSpan(context.Background(), "op")
	require.NotNil(t, ctx)
	span.End()
}
