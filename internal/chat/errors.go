package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Errors returned by Client. Their messages are shown to the user as-is.
var (
	ErrNotConfigured     = errors.New("Gemini API client not configured. Please set your API key.")
	ErrRateLimited       = errors.New("Rate limit exceeded. Please wait a moment and try again.")
	ErrQuotaExceeded     = errors.New("API quota exceeded. Please check your Gemini API usage limits.")
	ErrInvalidKey        = errors.New("API key is invalid, expired, or lacks permissions")
	ErrNetwork           = errors.New("Network error - check your internet connection")
	ErrServer            = errors.New("Gemini API server error - try again later")
	ErrEmptyResponse     = errors.New("No response received from Gemini API")
	ErrMalformedResponse = errors.New("Failed to parse analysis response")
	ErrNoImage           = errors.New("No image data received from Gemini API")
)

var userFacing = []error{
	ErrNotConfigured,
	ErrRateLimited,
	ErrQuotaExceeded,
	ErrInvalidKey,
	ErrNetwork,
	ErrServer,
	ErrEmptyResponse,
	ErrMalformedResponse,
	ErrNoImage,
}

// UserMessage returns the message to display for err: the text of the
// sentinel it wraps, or the full error text otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range userFacing {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// classify wraps a transport or API error with the matching sentinel. The
// original error stays in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if apiErr, ok := asAPIError(err); ok {
		if sentinel := sentinelForCode(apiErr.Code, apiErr.Message); sentinel != nil {
			log.Debug().Int("code", apiErr.Code).Str("status", apiErr.Status).Msg("Gemini API error")
			return fmt.Errorf("%w: %w", sentinel, err)
		}
		return err
	}

	if sentinel := sentinelForText(err.Error()); sentinel != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

// asAPIError finds a genai.APIError in err's chain, returned either by value
// or by pointer.
func asAPIError(err error) (*genai.APIError, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) {
		return ptr, true
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return &val, true
	}
	return nil, false
}

func sentinelForCode(code int, message string) error {
	switch code {
	case 429:
		if strings.Contains(strings.ToLower(message), "quota") {
			return ErrQuotaExceeded
		}
		return ErrRateLimited
	case 400:
		if strings.Contains(strings.ToLower(message), "api key") {
			return ErrInvalidKey
		}
		return nil
	case 401, 403:
		return ErrInvalidKey
	case 500, 502, 503, 504:
		return ErrServer
	}
	return sentinelForText(message)
}

func sentinelForText(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate limit"):
		return ErrRateLimited
	case strings.Contains(lower, "quota") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "resource exhausted"):
		return ErrQuotaExceeded
	case strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "api_key_invalid") ||
		strings.Contains(lower, "permission denied"):
		return ErrInvalidKey
	case strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "i/o timeout") ||
		strings.Contains(lower, "dial tcp"):
		return ErrNetwork
	}
	return nil
}
