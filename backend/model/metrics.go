package model

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type providerMetrics struct {
	requests *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram
}

func newProviderMetrics(registry *prometheus.Registry) *providerMetrics {
	if registry == nil {
		return nil
	}

	provider := &providerMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepseek_requests_total",
				Help: "Total number of chat completion exchanges by outcome",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deepseek_request_retries_total",
				Help: "Total number of retries scheduled after transient failures",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deepseek_request_duration_seconds",
				Help:    "Duration of single chat completion exchanges",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
		),
	}

	provider.requests = registerCollector(registry, provider.requests)
	provider.retries = registerCollector(registry, provider.retries)
	provider.duration = registerCollector(registry, provider.duration)

	return provider
}

// registerCollector registers c, or returns the collector already registered
// under the same descriptor so several instances can share one registry.
func registerCollector[T prometheus.Collector](registry *prometheus.Registry, c T) T {
	if err := registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (p *providerMetrics) ObserveRequest(outcome string, duration time.Duration) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(outcome).Inc()
	p.duration.Observe(duration.Seconds())
}

func (p *providerMetrics) OnRetryAttempt(ctx context.Context, attempt uint, err error, nextDelay time.Duration) {
	if p != nil && p.retries != nil {
		p.retries.Inc()
	}
}

func (p *providerMetrics) OnRetrySuccess(ctx context.Context, attempts uint, totalDuration time.Duration) {}

func (p *providerMetrics) OnRetryFailure(ctx context.Context, err error, attempts uint, totalDuration time.Duration) {
}
