package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/logging"
	"github.com/fpang/ai-image-editor/internal/presets"
)

type keyStatus struct {
	Configured bool        `json:"configured"`
	Source     auth.Source `json:"source"`
	Masked     string      `json:"masked,omitempty"`
}

func (s *Server) keyStatus() keyStatus {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	return keyStatus{
		Configured: s.ai.Configured(),
		Source:     s.keySource,
		Masked:     logging.MaskKey(s.apiKey),
	}
}

// GET /api/settings/key
func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.keyStatus())
}

type putKeyRequest struct {
	APIKey string `json:"apiKey"`
	// Validate defaults to true.
	Validate *bool `json:"validate,omitempty"`
}

// PUT /api/settings/key
//
// The key is installed on the shared client, optionally validated with a
// ping, and only then written to the settings store. A rejected key leaves
// the previous credential in place.
func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	var req putKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		httpError(w, http.StatusBadRequest, "apiKey is required")
		return
	}

	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	prevKey, prevSource := s.apiKey, s.keySource
	s.ai.SetCredential(key)

	if req.Validate == nil || *req.Validate {
		if err := auth.ValidateAPIKey(r.Context(), s.ai); err != nil {
			if prevKey != "" {
				s.ai.SetCredential(prevKey)
			} else {
				s.ai.ClearCredential()
			}
			s.apiKey, s.keySource = prevKey, prevSource
			writeError(w, err, http.StatusBadGateway)
			return
		}
	}

	if s.settings != nil {
		if err := s.settings.SetAPIKey(key); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to save API key", err.Error())
			return
		}
	}
	s.apiKey, s.keySource = key, auth.SourceSettings
	log.Info().Str("key", logging.MaskKey(key)).Msg("API key updated")

	respondJSON(w, http.StatusOK, keyStatus{Configured: true, Source: s.keySource, Masked: logging.MaskKey(key)})
}

// DELETE /api/settings/key
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if s.settings != nil {
		if err := s.settings.ClearAPIKey(); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to clear API key", err.Error())
			return
		}
	}
	s.ai.ClearCredential()
	s.apiKey, s.keySource = "", auth.SourceNone
	log.Info().Msg("API key cleared")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/settings/config
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.modelConfig())
}

// PUT /api/settings/config
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var patch chat.ConfigPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.settings == nil {
		httpError(w, http.StatusNotImplemented, "settings storage is not available")
		return
	}
	cfg, err := s.settings.UpdateConfig(patch)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// DELETE /api/settings/config
func (s *Server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		httpError(w, http.StatusNotImplemented, "settings storage is not available")
		return
	}
	cfg, err := s.settings.ResetConfig()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to reset config", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

type presetRequest struct {
	Mode string `json:"mode"`
}

// POST /api/settings/config/preset
func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.settings == nil {
		httpError(w, http.StatusNotImplemented, "settings storage is not available")
		return
	}
	cfg, err := s.settings.ApplyMode(req.Mode)
	if err != nil {
		if errors.Is(err, presets.ErrUnknownMode) {
			httpError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}
