package provider

import (
	"context"
	"time"

	"github.com/rhuss/relay/pkg/observability"
)

// Instrument wraps p so every Complete call is recorded in the provider
// request, latency and token metrics.
func Instrument(p Provider) Provider {
	if _, ok := p.(*instrumented); ok {
		return p
	}
	return &instrumented{Provider: p}
}

type instrumented struct {
	Provider
}

func (i *instrumented) Complete(ctx context.Context, req *Request) (*Response, error) {
	name := i.Provider.Name()
	start := time.Now()
	resp, err := i.Provider.Complete(ctx, req)
	observability.ProviderLatency.WithLabelValues(name, req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(name, req.Model, "error").Inc()
		return nil, err
	}
	observability.ProviderRequestsTotal.WithLabelValues(name, req.Model, "success").Inc()
	observability.ProviderTokensTotal.WithLabelValues(name, req.Model, "input").Add(float64(resp.Usage.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(name, req.Model, "output").Add(float64(resp.Usage.OutputTokens))
	return resp, nil
}
