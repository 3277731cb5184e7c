package taskfinisher

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimec77/deepseek-json/backend/model"
)

// AnswerCollector supplies answers to a round of clarifying questions. An
// empty payload tells the model to proceed with what it has.
//
//go:generate mockgen -destination=mocks/answer_collector_mock.go -package=mocks . AnswerCollector
type AnswerCollector interface {
	CollectAnswers(ctx context.Context, round int, payload *ClarifyingPayload) (*AnswersPayload, error)
}

type EngineOptions struct {
	MaxRounds    int
	MaxQuestions int
	Metrics      *prometheus.Registry
}

type EngineOption func(*EngineOptions)

// WithMaxRounds caps the number of dispatches in a run. Values below 1 keep
// DefaultMaxRounds.
func WithMaxRounds(maxRounds int) EngineOption {
	return func(o *EngineOptions) {
		if maxRounds > 0 {
			o.MaxRounds = maxRounds
		}
	}
}

// WithMaxQuestions sets the question budget announced in the system prompt.
// Zero selects DefaultMaxQuestions.
func WithMaxQuestions(maxQuestions int) EngineOption {
	return func(o *EngineOptions) {
		o.MaxQuestions = maxQuestions
	}
}

func WithMetrics(metrics *prometheus.Registry) EngineOption {
	return func(o *EngineOptions) {
		o.Metrics = metrics
	}
}

type Result struct {
	RunID    string
	Artifact *Artifact
	Raw      string
	Rounds   int
	// History is the conversation as sent in the final dispatch.
	History []model.Message
}

// RoundCapError ends a run whose last allowed round still asked questions.
// Raw is the latest model output, kept as a best-effort result.
type RoundCapError struct {
	Rounds int
	Raw    string
}

func (e *RoundCapError) Error() string {
	return fmt.Sprintf("reached the maximum of %d clarification rounds without an artifact", e.Rounds)
}

type ParseFailureError struct {
	Rounds int
	Raw    string
	Err    error
}

func (e *ParseFailureError) Error() string {
	return fmt.Sprintf("round %d: %s", e.Rounds, e.Err)
}

func (e *ParseFailureError) Unwrap() error {
	return e.Err
}

// Engine runs negotiations. It holds no per-run state, so one Engine can
// drive any number of concurrent runs.
type Engine struct {
	exchanger    Exchanger
	collector    AnswerCollector
	maxRounds    int
	maxQuestions int
	metrics      *engineMetricsProvider
}

func NewEngine(exchanger Exchanger, collector AnswerCollector, opts ...EngineOption) *Engine {
	options := &EngineOptions{
		MaxRounds:    DefaultMaxRounds,
		MaxQuestions: DefaultMaxQuestions,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Engine{
		exchanger:    exchanger,
		collector:    collector,
		maxRounds:    options.MaxRounds,
		maxQuestions: EffectiveMaxQuestions(options.MaxQuestions),
		metrics:      newEngineMetricsProvider(options.Metrics),
	}
}

func (e *Engine) MaxRounds() int {
	return e.maxRounds
}

func (e *Engine) MaxQuestions() int {
	return e.maxQuestions
}

// Run negotiates request until the model returns an artifact. Dispatch and
// answer collection errors end the run as they are; history is only extended
// after a round's answers were collected.
func (e *Engine) Run(ctx context.Context, request string) (*Result, error) {
	runID := uuid.NewString()
	logger := slog.With("run_id", runID)

	history := []model.Message{
		model.NewSystemMessage(BuildSystemPrompt(e.maxQuestions)),
		model.NewUserMessage(BuildUserTurn(request)),
	}

	logger.InfoContext(ctx, "negotiation started", "max_rounds", e.maxRounds, "max_questions", e.maxQuestions)

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			e.metrics.ObserveRun(resultError, round-1)
			return nil, err
		}

		raw, err := e.exchanger.Exchange(ctx, history)
		if err != nil {
			logger.ErrorContext(ctx, "negotiation dispatch failed", "round", round, "error", err)
			e.metrics.ObserveRun(resultError, round)
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		response, err := ParseResponse(raw)
		if err != nil {
			logger.WarnContext(ctx, "model reply could not be parsed", "round", round, "error", err)
			e.metrics.ObserveRun(resultParseFailure, round)
			return nil, &ParseFailureError{Rounds: round, Raw: raw, Err: err}
		}

		if response.IsArtifact() {
			logger.InfoContext(ctx, "negotiation finished", "rounds", round, "final", response.Artifact.IsFinal())
			e.metrics.ObserveRun(resultArtifact, round)
			return &Result{
				RunID:    runID,
				Artifact: response.Artifact,
				Raw:      raw,
				Rounds:   round,
				History:  slices.Clone(history),
			}, nil
		}

		if round >= e.maxRounds {
			logger.WarnContext(ctx, "negotiation reached the round cap", "rounds", round)
			e.metrics.ObserveRun(resultRoundCap, round)
			return nil, &RoundCapError{Rounds: round, Raw: raw}
		}

		logger.InfoContext(ctx, "model asked clarifying questions", "round", round, "questions", len(response.Clarifying.Questions))

		answers, err := e.collector.CollectAnswers(ctx, round, response.Clarifying)
		if err != nil {
			e.metrics.ObserveRun(resultError, round)
			return nil, fmt.Errorf("collect answers: %w", err)
		}

		encoded, err := answers.Encode()
		if err != nil {
			e.metrics.ObserveRun(resultError, round)
			return nil, fmt.Errorf("encode answers: %w", err)
		}

		history = append(history,
			model.NewAssistantMessage(raw),
			model.NewUserMessage(encoded),
		)
	}
}
