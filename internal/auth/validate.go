package auth

import (
	"context"
	"errors"
	"time"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ValidationError represents a specific type of API key validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no API key was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the API key is invalid or revoked.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the API quota has been exceeded.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (t ValidationErrorType) String() string {
	switch t {
	case ErrTypeNoKey:
		return "no_key"
	case ErrTypeInvalidKey:
		return "invalid"
	case ErrTypeNetworkError:
		return "network_error"
	case ErrTypeQuotaExceeded:
		return "quota"
	default:
		return "unknown"
	}
}

func (e *ValidationError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Pinger makes a minimal authenticated request (chat.Client).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValidateAPIKey verifies the configured key with a minimal API call. It
// returns nil if the key is valid, or a ValidationError describing the
// failure.
func ValidateAPIKey(ctx context.Context, p Pinger) error {
	log.Debug().Msg("Validating API key with Gemini API")

	start := time.Now()
	err := p.Ping(ctx)
	elapsed := time.Since(start)

	result := "success"
	var valErr *ValidationError
	if err != nil {
		valErr = classifyError(err)
		result = valErr.Type.String()
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Duration("ApiKeyValidationMs", elapsed).
		Count("ApiKeyValidationResult").
		Flush()

	log.Debug().
		Str("result", result).
		Dur("duration", elapsed).
		Msg("API key validation result")

	if valErr != nil {
		return valErr
	}
	log.Info().Msg("API key validated successfully")
	return nil
}

// classifyError maps a chat client error onto a ValidationError.
func classifyError(err error) *ValidationError {
	var existing *ValidationError
	if errors.As(err, &existing) {
		return existing
	}

	switch {
	case errors.Is(err, chat.ErrNotConfigured):
		return &ValidationError{Type: ErrTypeNoKey, Message: ErrNoKey.Error(), Err: err}
	case errors.Is(err, chat.ErrInvalidKey):
		log.Error().Err(err).Msg("Invalid API key")
		return &ValidationError{Type: ErrTypeInvalidKey, Message: chat.ErrInvalidKey.Error(), Err: err}
	case errors.Is(err, chat.ErrQuotaExceeded), errors.Is(err, chat.ErrRateLimited):
		log.Error().Err(err).Msg("API quota exceeded")
		return &ValidationError{Type: ErrTypeQuotaExceeded, Message: "API quota exceeded or rate limited", Err: err}
	case errors.Is(err, chat.ErrNetwork), errors.Is(err, chat.ErrServer),
		errors.Is(err, context.DeadlineExceeded):
		log.Error().Err(err).Msg("Network error during API validation")
		return &ValidationError{Type: ErrTypeNetworkError, Message: chat.ErrNetwork.Error(), Err: err}
	default:
		log.Error().Err(err).Msg("Unknown error during API validation")
		return &ValidationError{Type: ErrTypeUnknown, Message: "Failed to validate API key", Err: err}
	}
}
