package taskfinisher

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultArtifact     = "artifact"
	resultRoundCap     = "round_cap"
	resultParseFailure = "parse_failure"
	resultError        = "error"
)

type engineMetricsProvider struct {
	runs   *prometheus.CounterVec
	rounds prometheus.Histogram
}

func newEngineMetricsProvider(registry *prometheus.Registry) *engineMetricsProvider {
	if registry == nil {
		return nil
	}

	provider := &engineMetricsProvider{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskfinisher_runs_total",
				Help: "Total number of negotiation runs by result",
			},
			[]string{"result"},
		),
		rounds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskfinisher_rounds",
				Help:    "Number of rounds a negotiation run took",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),
	}

	provider.runs = registerCollector(registry, provider.runs)
	provider.rounds = registerCollector(registry, provider.rounds)

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

func (p *engineMetricsProvider) ObserveRun(result string, rounds int) {
	if p == nil {
		return
	}
	p.runs.WithLabelValues(result).Inc()
	p.rounds.Observe(float64(rounds))
}
