package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/fail"
	"github.com/nimec77/deepseek-json/shared/config"
)

var (
	// Version is the version of the CLI
	Version = "unknown"

	// Git Commit is the commit that the CLI was built from
	GitCommit = "unknown"

	// BuildDate is the date the CLI was built
	BuildDate = "unknown"
)

const (
	envLogLevel  = "DEEPSEEK_LOG_LEVEL"
	envSentryDSN = "DEEPSEEK_SENTRY_DSN"
)

type globalOptions struct {
	LogLevel    LogLevel
	MetricsFile string
	Metrics     *prometheus.Registry
}

func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *globalOptions) {
	options := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "deepseek-json",
		Short:         "DeepSeek JSON: structured answers and technical task negotiation.",
		Long:          figure.NewColorFigure("deepseek-json", "standard", "blue", true).String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			options.LogLevel = resolveLogLevel(cmd, options)
			slog.SetDefault(slog.New(slog.NewJSONHandler(setupLogSink(cmd.Context()), &slog.HandlerOptions{
				Level: options.LogLevel.SlogLevel(),
			})))

			registry := getMetrics(cmd.Context())
			if registry == nil {
				registry = prometheus.NewRegistry()
				cmd.SetContext(context.WithValue(cmd.Context(), ContextKeyMetrics, registry))
			}
			options.Metrics = registry

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
	}

	defaults := config.Default()
	cmd.PersistentFlags().Var(&options.LogLevel, "log-level", "set the log level")
	cmd.PersistentFlags().String("model", defaults.Model, "model name sent with every request")
	cmd.PersistentFlags().Float64("temperature", defaults.Temperature, "sampling temperature between 0.0 and 2.0")
	cmd.PersistentFlags().Int("max-tokens", defaults.MaxTokens, "maximum number of tokens in a reply")
	cmd.PersistentFlags().Int("timeout", defaults.TimeoutSeconds, "request timeout in seconds")
	cmd.PersistentFlags().String("base-url", defaults.BaseURL, "API base URL")
	cmd.PersistentFlags().StringVar(&options.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file when the command ends")

	cmd.AddGroup(
		&cobra.Group{
			ID:    "core",
			Title: "Core Commands",
		},
	)

	cmd.AddGroup(
		&cobra.Group{
			ID:    "system",
			Title: "System Commands",
		},
	)

	cmd.AddCommand(NewChatCmd())
	cmd.AddCommand(NewQueryCmd())
	cmd.AddCommand(NewTaskCmd())

	cmd.AddCommand(NewAuthCmd())
	cmd.AddCommand(NewSchemaCmd())
	return cmd, options
}

func Execute() {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
			fmt.Fprintf(os.Stderr, "Panic occurred: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack:\n%s\n", debug.Stack())
			os.Exit(1)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if dsn := os.Getenv(envSentryDSN); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     dsn,
			Release: "deepseek-json@" + Version,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize sentry: %s\n", err)
		}
	}

	rootCmd, options := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)

	if merr := writeMetricsFile(options); merr != nil {
		fmt.Fprintf(os.Stderr, "failed to write metrics: %s\n", merr)
	}

	if err != nil {
		var userErr *fail.UserError
		if !errors.As(err, &userErr) {
			sentry.CaptureException(err)
		}
		fmt.Fprintln(os.Stderr, fail.HandleError(err))
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	sentry.Flush(2 * time.Second)
}

func writeMetricsFile(options *globalOptions) error {
	if options.MetricsFile == "" || options.Metrics == nil {
		return nil
	}
	return prometheus.WriteToTextfile(options.MetricsFile, options.Metrics)
}

// newProvider loads the configuration and builds the DeepSeek client shared by
// every command that talks to the API.
func newProvider(cmd *cobra.Command) (*model.DeepSeekProvider, error) {
	ctx := cmd.Context()

	cfg, err := config.Load(config.LoadOptions{
		Flags:    cmd.Flags(),
		Keyring:  getKeyring(ctx),
		EnvFiles: getEnvFiles(ctx),
	})
	if err != nil {
		return nil, fail.HandleError(model.NewConfigError(model.DeepSeekProviderName, err.Error()))
	}
	slog.Debug("configuration loaded", "config", cfg.Redacted())

	options := []model.ProviderOption{
		model.WithMetrics(getMetrics(ctx)),
		model.WithUserAgent(fmt.Sprintf("deepseek-json/%s", Version)),
	}
	options = append(options, getProviderOptions(ctx)...)

	provider, err := model.NewDeepSeekProvider(cfg, options...)
	if err != nil {
		return nil, fail.HandleError(err)
	}
	return provider, nil
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (e *LogLevel) String() string {
	if e == nil {
		return ""
	}
	return string(*e)
}

func (e *LogLevel) Set(v string) error {
	for _, level := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		if v == string(level) {
			*e = level
			return nil
		}
	}
	return errors.New(`must be one of "debug", "info", "warn", or "error"`)
}

func (e *LogLevel) Type() string {
	return "log-level"
}

func (e *LogLevel) SlogLevel() slog.Level {
	switch *e {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	}

	return slog.LevelInfo
}

func resolveLogLevel(cmd *cobra.Command, options *globalOptions) LogLevel {
	if cmd.Flags().Changed("log-level") {
		return options.LogLevel
	}

	var level LogLevel
	if err := level.Set(os.Getenv(envLogLevel)); err == nil {
		return level
	}
	return LogLevelInfo
}

// setupLogSink writes logs to a rotating file in the user cache directory.
// Logs go to stderr when there is no cache directory.
func setupLogSink(ctx context.Context) io.Writer {
	if disable, ok := ctx.Value(ContextKeyDisableFileLogs).(bool); ok && disable {
		return io.Discard
	}

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return os.Stderr
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(cacheDir, "deepseek-json", "deepseek-json.json"),
		MaxSize:    50,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}
