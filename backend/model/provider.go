package model

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimec77/deepseek-json/shared/resilience"
)

// ModelInvoker sends a conversation and returns the raw assistant text.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, messages []Message) (string, error)
}

// StructuredQuerier answers a free-text question with a StructuredResponse.
type StructuredQuerier interface {
	SendRequest(ctx context.Context, input string) (*StructuredResponse, error)
}

type ProviderOptions struct {
	RetryConfig *resilience.RetryConfig
	RetryHooks  []resilience.RetryHook
	Metrics     *prometheus.Registry
	Transport   http.RoundTripper
	Clock       func() time.Time
	UserAgent   string
}

type ProviderOption func(*ProviderOptions)

func WithRetryConfig(retryConfig *resilience.RetryConfig) ProviderOption {
	return func(options *ProviderOptions) {
		options.RetryConfig = retryConfig
	}
}

func WithRetryHooks(hooks ...resilience.RetryHook) ProviderOption {
	return func(options *ProviderOptions) {
		options.RetryHooks = append(options.RetryHooks, hooks...)
	}
}

func WithMetrics(metrics *prometheus.Registry) ProviderOption {
	return func(o *ProviderOptions) {
		o.Metrics = metrics
	}
}

// WithHTTPTransport shares a connection pool between providers.
func WithHTTPTransport(transport http.RoundTripper) ProviderOption {
	return func(o *ProviderOptions) {
		o.Transport = transport
	}
}

func WithClock(clock func() time.Time) ProviderOption {
	return func(o *ProviderOptions) {
		o.Clock = clock
	}
}

func WithUserAgent(userAgent string) ProviderOption {
	return func(o *ProviderOptions) {
		o.UserAgent = userAgent
	}
}

func DefaultProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		RetryConfig: resilience.DefaultRetryConfig(),
		Clock:       time.Now,
		UserAgent:   DefaultUserAgent,
	}
}
