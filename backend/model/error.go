package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

type ErrorKind string

const (
	ErrorKindServerBusy ErrorKind = "server_busy"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindAPI        ErrorKind = "api"
	ErrorKindParse      ErrorKind = "parse"
	ErrorKindConfig     ErrorKind = "config"
)

// ErrorKinds lists every kind a failed operation can be classified as.
var ErrorKinds = []ErrorKind{
	ErrorKindServerBusy,
	ErrorKindNetwork,
	ErrorKindTimeout,
	ErrorKindAPI,
	ErrorKindParse,
	ErrorKindConfig,
}

// ProviderError is the single error type produced by the dispatcher. Which of
// the detail fields are meaningful depends on Kind:
//
//	ServerBusy   StatusCode
//	Network      Detail
//	Timeout      TimeoutSeconds
//	API          StatusCode, Body
//	Parse        Detail
//	Config       Detail
type ProviderError struct {
	Provider       string
	Kind           ErrorKind
	StatusCode     int
	Body           string
	TimeoutSeconds int
	Detail         string
	Err            error
}

func NewServerBusyError(provider string, status int) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindServerBusy, StatusCode: status}
}

func NewNetworkError(provider, detail string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindNetwork, Detail: detail, Err: err}
}

func NewTimeoutError(provider string, seconds int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindTimeout, TimeoutSeconds: seconds, Err: err}
}

func NewAPIError(provider string, status int, body string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindAPI, StatusCode: status, Body: body}
}

func NewParseError(provider, detail string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindParse, Detail: detail, Err: err}
}

func NewConfigError(provider, detail string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindConfig, Detail: detail}
}

func (pe *ProviderError) Message() string {
	switch pe.Kind {
	case ErrorKindServerBusy:
		return "Server is busy, please try again later"
	case ErrorKindNetwork:
		return fmt.Sprintf("Network error: %s", pe.Detail)
	case ErrorKindTimeout:
		return fmt.Sprintf("Request timed out after %d seconds", pe.TimeoutSeconds)
	case ErrorKindAPI:
		return fmt.Sprintf("API error (%d): %s", pe.StatusCode, pe.Body)
	case ErrorKindParse:
		return fmt.Sprintf("Failed to parse response: %s", pe.Detail)
	case ErrorKindConfig:
		return fmt.Sprintf("Configuration error: %s", pe.Detail)
	default:
		return "Unknown error"
	}
}

// Retryable reports whether the failure is transient. Only busy servers and
// network failures qualify; timeouts are surfaced to the caller.
func (pe *ProviderError) Retryable() bool {
	switch pe.Kind {
	case ErrorKindServerBusy, ErrorKindNetwork:
		return true
	default:
		return false
	}
}

func (pe *ProviderError) Error() string {
	msg := pe.Message()
	if pe.Provider != "" {
		msg = fmt.Sprintf("%s: %s", pe.Provider, msg)
	}
	if pe.Err != nil {
		return fmt.Sprintf("%s: %s", msg, pe.Err.Error())
	}
	return msg
}

func (pe *ProviderError) Unwrap() error {
	return pe.Err
}

// KindOf returns the kind of the first ProviderError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

func IsServerBusy(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrorKindServerBusy
}

func IsNetworkError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrorKindNetwork
}

// IsRetryable reports whether err carries a transient ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}

// ClassifyStatus maps an HTTP status and body to a ProviderError. It returns
// nil for 2xx statuses.
func ClassifyStatus(provider string, status int, body string) *ProviderError {
	switch {
	case status >= 200 && status < 300:
		return nil
	case isBusyStatus(status):
		return NewServerBusyError(provider, status)
	default:
		return NewAPIError(provider, status, body)
	}
}

func isBusyStatus(status int) bool {
	switch status {
	case 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyTransportError maps a failure that prevented an HTTP response from
// being received. timeoutSeconds is the configured client timeout and is
// reported as is, regardless of how long the request actually ran.
func ClassifyTransportError(provider string, err error, timeoutSeconds int) *ProviderError {
	if isTimeout(err) {
		return NewTimeoutError(provider, timeoutSeconds, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewNetworkError(provider, "DNS resolution failed", err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return NewNetworkError(provider, "Connection refused by server", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return NewNetworkError(provider, "Failed to connect to server", err)
	}

	return NewNetworkError(provider, "Request error", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
