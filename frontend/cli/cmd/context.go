package cmd

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/shared/keyring"
)

type contextKey string

const (
	ContextKeyFileSystem      contextKey = "file_system"
	ContextKeyDisableFileLogs contextKey = "disable_file_logs"
	ContextKeyKeyring         contextKey = "keyring"
	ContextKeyEnvFiles        contextKey = "env_files"
	ContextKeyMetrics         contextKey = "metrics"
	ContextKeyProviderOptions contextKey = "provider_options"
)

func getFileSystem(ctx context.Context) *afero.Afero {
	if fs, ok := ctx.Value(ContextKeyFileSystem).(*afero.Afero); ok {
		return fs
	}
	return &afero.Afero{Fs: afero.NewOsFs()}
}

func getKeyring(ctx context.Context) keyring.Provider {
	if provider, ok := ctx.Value(ContextKeyKeyring).(keyring.Provider); ok {
		return provider
	}
	return keyring.NewKeyringProvider()
}

func getEnvFiles(ctx context.Context) []string {
	if files, ok := ctx.Value(ContextKeyEnvFiles).([]string); ok {
		return files
	}
	return nil
}

func getMetrics(ctx context.Context) *prometheus.Registry {
	if registry, ok := ctx.Value(ContextKeyMetrics).(*prometheus.Registry); ok {
		return registry
	}
	return nil
}

// getProviderOptions returns extra provider options placed in the context,
// appended after the ones the CLI sets itself.
func getProviderOptions(ctx context.Context) []model.ProviderOption {
	if options, ok := ctx.Value(ContextKeyProviderOptions).([]model.ProviderOption); ok {
		return options
	}
	return nil
}
