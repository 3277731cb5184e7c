package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/nimec77/deepseek-json/shared/config"
	"github.com/nimec77/deepseek-json/shared/resilience"
	"github.com/nimec77/deepseek-json/shared/strictjson"
)

const (
	DeepSeekProviderName = "deepseek"
	DefaultUserAgent     = "deepseek-json/0.1.0"

	maxErrorBodyBytes = 1 << 20
)

// DeepSeekProvider talks to an OpenAI compatible chat completions endpoint.
// It is safe for concurrent use; its configuration never changes after
// construction.
type DeepSeekProvider struct {
	config      config.Config
	client      openai.Client
	retryConfig *resilience.RetryConfig
	retryHooks  []resilience.RetryHook
	metrics     *providerMetrics
	clock       func() time.Time
}

// NewDeepSeekProvider validates cfg and the retry policy and returns a
// ConfigError if either is unusable. No network activity happens here.
func NewDeepSeekProvider(cfg config.Config, opts ...ProviderOption) (*DeepSeekProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigError(DeepSeekProviderName, err.Error())
	}

	providerOptions := DefaultProviderOptions()
	for _, opt := range opts {
		opt(providerOptions)
	}

	if err := providerOptions.RetryConfig.Validate(); err != nil {
		return nil, NewConfigError(DeepSeekProviderName, fmt.Sprintf("invalid retry policy: %s", err))
	}

	retryConfig := *providerOptions.RetryConfig
	metrics := newProviderMetrics(providerOptions.Metrics)

	hooks := []resilience.RetryHook{retryLogger{}}
	if metrics != nil {
		hooks = append(hooks, metrics)
	}
	hooks = append(hooks, providerOptions.RetryHooks...)

	clock := providerOptions.Clock
	if clock == nil {
		clock = time.Now
	}

	return &DeepSeekProvider{
		config: cfg,
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
			option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout(), Transport: providerOptions.Transport}),
			option.WithHeader("User-Agent", providerOptions.UserAgent),
			// Retries belong to SendRequest so that InvokeModel stays a single exchange.
			option.WithMaxRetries(0),
		),
		retryConfig: &retryConfig,
		retryHooks:  hooks,
		metrics:     metrics,
		clock:       clock,
	}, nil
}

func (p *DeepSeekProvider) Config() config.Config {
	return p.config
}

// InvokeModel performs exactly one chat completion exchange and returns the
// content of the first choice. Failures are not retried.
func (p *DeepSeekProvider) InvokeModel(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	content, err := p.complete(ctx, messages)
	p.metrics.ObserveRequest(requestOutcome(err), time.Since(start))
	return content, err
}

// SendRequest answers input with a StructuredResponse. Busy servers and
// network failures are retried according to the provider's retry policy.
func (p *DeepSeekProvider) SendRequest(ctx context.Context, input string) (*StructuredResponse, error) {
	return resilience.Retry(ctx, p.retryConfig, IsRetryable,
		func(ctx context.Context, attempt uint) (*StructuredResponse, error) {
			content, err := p.InvokeModel(ctx, structuredMessages(input, p.clock()))
			if err != nil {
				return nil, err
			}
			return parseStructuredResponse(content)
		},
		p.retryHooks...,
	)
}

func (p *DeepSeekProvider) complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.config.Model),
		Messages:    chatMessages(messages),
		MaxTokens:   openai.Int(int64(p.config.MaxTokens)),
		Temperature: openai.Float(p.config.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	var raw *http.Response
	completion, err := p.client.Chat.Completions.New(ctx, params, option.WithResponseInto(&raw))
	if err != nil {
		return "", p.requestError(ctx, err, raw)
	}

	if len(completion.Choices) == 0 {
		return "", NewParseError(DeepSeekProviderName, "No choices in API response", nil)
	}

	// The SDK fills absent fields with zero values; the assistant message must
	// carry its role and content explicitly.
	var message Message
	if err := strictjson.Unmarshal([]byte(completion.Choices[0].Message.RawJSON()), &message); err != nil {
		return "", NewParseError(DeepSeekProviderName, "Failed to parse API response", err)
	}

	return message.Content, nil
}

func chatMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, message := range messages {
		switch message.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(message.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(message.Content))
		default:
			params = append(params, openai.UserMessage(message.Content))
		}
	}
	return params
}

// requestError maps a failed completion call onto the error taxonomy. The
// caller's own cancellation is handed back unchanged so it is never mistaken
// for a provider failure.
func (p *DeepSeekProvider) requestError(ctx context.Context, err error, raw *http.Response) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ClassifyStatus(DeepSeekProviderName, apiErr.StatusCode, responseBody(apiErr.Response))
	}

	if raw != nil {
		// Error bodies that are not JSON never become an *openai.Error.
		if raw.StatusCode < 200 || raw.StatusCode >= 300 {
			return ClassifyStatus(DeepSeekProviderName, raw.StatusCode, responseBody(raw))
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return ClassifyTransportError(DeepSeekProviderName, err, p.config.TimeoutSeconds)
		}
		return NewParseError(DeepSeekProviderName, "Failed to parse API response", err)
	}

	return ClassifyTransportError(DeepSeekProviderName, err, p.config.TimeoutSeconds)
}

func responseBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return "Unknown error"
	}
	return string(body)
}

func requestOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind, ok := KindOf(err); ok {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "unknown"
}

type retryLogger struct{}

func (retryLogger) OnRetryAttempt(ctx context.Context, attempt uint, err error, nextDelay time.Duration) {
	slog.WarnContext(ctx, "request attempt failed, retrying", "attempt", attempt, "delay", nextDelay, "error", err)
}

func (retryLogger) OnRetrySuccess(ctx context.Context, attempts uint, totalDuration time.Duration) {
	if attempts > 1 {
		slog.InfoContext(ctx, "request succeeded after retries", "attempts", attempts, "duration", totalDuration)
	}
}

func (retryLogger) OnRetryFailure(ctx context.Context, err error, attempts uint, totalDuration time.Duration) {
	slog.ErrorContext(ctx, "request failed", "attempts", attempts, "duration", totalDuration, "error", err)
}

var (
	_ ModelInvoker      = (*DeepSeekProvider)(nil)
	_ StructuredQuerier = (*DeepSeekProvider)(nil)
)
