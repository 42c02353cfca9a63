package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

// ActionOpenCredentialEntry tells the client to prompt for an API key.
const ActionOpenCredentialEntry = "open-credential-entry"

type errorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// httpError sends a JSON error response. Optional internalDetails are logged
// but never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, errorResponse{Error: clientMsg})
}

// writeError maps err onto a status code. fallback is used for errors with
// no specific mapping (502 for remote calls, 500 otherwise).
func writeError(w http.ResponseWriter, err error, fallback int) {
	status, action := statusFor(err, fallback)
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	respondJSON(w, status, errorResponse{Error: chat.UserMessage(err), Action: action})
}

func statusFor(err error, fallback int) (int, string) {
	var valErr *auth.ValidationError
	if errors.As(err, &valErr) {
		switch valErr.Type {
		case auth.ErrTypeNoKey:
			return http.StatusPreconditionFailed, ActionOpenCredentialEntry
		case auth.ErrTypeInvalidKey:
			return http.StatusBadRequest, ActionOpenCredentialEntry
		case auth.ErrTypeQuotaExceeded:
			return http.StatusTooManyRequests, ""
		default:
			return http.StatusBadGateway, ""
		}
	}

	switch {
	case errors.Is(err, chat.ErrNotConfigured):
		return http.StatusPreconditionFailed, ActionOpenCredentialEntry
	case errors.Is(err, chat.ErrInvalidKey):
		return http.StatusBadGateway, ActionOpenCredentialEntry
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrSuperseded):
		return http.StatusConflict, ""
	case errors.Is(err, workflow.ErrNoImage),
		errors.Is(err, workflow.ErrEmptyPrompt),
		errors.Is(err, workflow.ErrNoResult),
		errors.Is(err, imaging.ErrUnsupportedFormat),
		errors.Is(err, imaging.ErrFileTooLarge),
		errors.Is(err, imaging.ErrDecode),
		errors.Is(err, chat.ErrInvalidConfig):
		return http.StatusBadRequest, ""
	case errors.Is(err, chat.ErrRateLimited),
		errors.Is(err, chat.ErrQuotaExceeded):
		return http.StatusTooManyRequests, ""
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ""
	case errors.Is(err, chat.ErrNetwork),
		errors.Is(err, chat.ErrServer),
		errors.Is(err, chat.ErrEmptyResponse),
		errors.Is(err, chat.ErrMalformedResponse),
		errors.Is(err, chat.ErrNoImage):
		return http.StatusBadGateway, ""
	}
	return fallback, ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
