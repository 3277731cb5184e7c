package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nimec77/deepseek-json/shared/keyring"
)

const (
	EnvPrefix = "DEEPSEEK"

	DefaultBaseURL        = "https://api.deepseek.com"
	DefaultModel          = "deepseek-chat"
	DefaultMaxTokens      = 4096
	DefaultTemperature    = 0.7
	DefaultTimeoutSeconds = 180

	MinTemperature = 0.0
	MaxTemperature = 2.0
)

const (
	KeyAPIKey      = "api_key"
	KeyBaseURL     = "base_url"
	KeyModel       = "model"
	KeyMaxTokens   = "max_tokens"
	KeyTemperature = "temperature"
	KeyTimeout     = "timeout"
)

// flagBindings maps configuration keys to the CLI flags that override them.
var flagBindings = map[string]string{
	KeyBaseURL:     "base-url",
	KeyModel:       "model",
	KeyMaxTokens:   "max-tokens",
	KeyTemperature: "temperature",
	KeyTimeout:     "timeout",
}

// Config is the immutable client configuration. A dispatcher copies it at
// construction time; changing a value requires building a new dispatcher.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
}

func Default() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Model:          DefaultModel,
		MaxTokens:      DefaultMaxTokens,
		Temperature:    DefaultTemperature,
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("API key cannot be empty")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base URL cannot be empty")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("model cannot be empty")
	}
	if math.IsNaN(c.Temperature) || c.Temperature < MinTemperature || c.Temperature > MaxTemperature {
		return fmt.Errorf("temperature must be between %.1f and %.1f, got %v", MinTemperature, MaxTemperature, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be greater than 0, got %d", c.MaxTokens)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be greater than 0, got %d", c.TimeoutSeconds)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "****"
	}
	return c
}

type LoadOptions struct {
	// Flags, when set, override environment values for the keys in flagBindings.
	Flags *pflag.FlagSet

	// Keyring is consulted for the API key when DEEPSEEK_API_KEY is unset.
	Keyring keyring.Provider

	// EnvFiles are loaded into the process environment before reading it.
	// Files that do not exist are skipped. Defaults to ".env".
	EnvFiles []string
}

// Load assembles a Config from .env files, DEEPSEEK_* environment variables,
// CLI flags and the keyring. It does not validate the result.
func Load(opts LoadOptions) (Config, error) {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault(KeyBaseURL, defaults.BaseURL)
	v.SetDefault(KeyModel, defaults.Model)
	v.SetDefault(KeyMaxTokens, defaults.MaxTokens)
	v.SetDefault(KeyTemperature, defaults.Temperature)
	v.SetDefault(KeyTimeout, defaults.TimeoutSeconds)

	if opts.Flags != nil {
		for key, name := range flagBindings {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	maxTokens, err := cast.ToIntE(v.Get(KeyMaxTokens))
	if err != nil {
		return Config{}, invalidNumber(KeyMaxTokens, err)
	}

	temperature, err := cast.ToFloat64E(v.Get(KeyTemperature))
	if err != nil {
		return Config{}, invalidNumber(KeyTemperature, err)
	}

	timeout, err := cast.ToIntE(v.Get(KeyTimeout))
	if err != nil {
		return Config{}, invalidNumber(KeyTimeout, err)
	}

	cfg := Config{
		APIKey:         strings.TrimSpace(v.GetString(KeyAPIKey)),
		BaseURL:        strings.TrimRight(v.GetString(KeyBaseURL), "/"),
		Model:          v.GetString(KeyModel),
		MaxTokens:      maxTokens,
		Temperature:    temperature,
		TimeoutSeconds: timeout,
	}

	if cfg.APIKey == "" {
		secret, found, err := keyring.Lookup(opts.Keyring, keyring.APIKeySecret)
		if err != nil {
			slog.Warn("failed to read API key from keyring", "error", err)
		}
		if found {
			cfg.APIKey = secret
		}
	}

	return cfg, nil
}

func invalidNumber(key string, err error) error {
	return fmt.Errorf("%s_%s must be a valid number: %w", EnvPrefix, strings.ToUpper(key), err)
}
