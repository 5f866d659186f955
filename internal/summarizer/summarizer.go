package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meeting-insights-go/internal/types"
)

// Provider names used in configuration and the admin API.
const (
	ProviderGeneric     = "generic"
	ProviderSpecialized = "specialized"
)

var ErrUnknownProvider = errors.New("unknown summarization provider")

// Request is everything a provider needs to summarize one meeting.
type Request struct {
	Transcript      string
	Features        *types.LinguisticFeatures
	Title           string
	Category        string
	DurationSeconds float64
}

// Provider is one summarization backend. Generate returns the raw JSON
// document produced by the model; normalization happens in the Router.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Summarizer is what the pipeline consumes.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (*types.Summary, error)
}

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindRateLimited     ErrorKind = "rate_limited"
	KindAuth            ErrorKind = "auth"
	KindTimeout         ErrorKind = "timeout"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnavailable     ErrorKind = "unavailable"
)

type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func providerError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// kindForStatus maps an HTTP status code to an ErrorKind.
func kindForStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindRateLimited
	case code == 401 || code == 403:
		return KindAuth
	case code == 408 || code == 504:
		return KindTimeout
	case code >= 400 && code < 500:
		return KindInvalidResponse
	default:
		return KindUnavailable
	}
}

// kindForMessage classifies SDK errors that only expose text.
func kindForMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "429") || strings.Contains(m, "quota") || strings.Contains(m, "resource_exhausted"):
		return KindRateLimited
	case strings.Contains(m, "401") || strings.Contains(m, "403") || strings.Contains(m, "api key") || strings.Contains(m, "permission_denied"):
		return KindAuth
	case strings.Contains(m, "deadline") || strings.Contains(m, "timeout"):
		return KindTimeout
	default:
		return KindUnavailable
	}
}
