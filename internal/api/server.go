// Package api exposes editing sessions, presets and settings as a JSON HTTP
// API. The same handler serves the local web server and the Lambda
// deployment.
package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/fpang/ai-image-editor/internal/metrics"
	"github.com/fpang/ai-image-editor/internal/presets"
	"github.com/fpang/ai-image-editor/internal/settings"
	"github.com/fpang/ai-image-editor/internal/store"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

// AI is the remote client shared by every session. *chat.Client satisfies it.
type AI interface {
	workflow.AIClient
	SetCredential(apiKey string)
	ClearCredential()
	Ping(ctx context.Context) error
}

// Options wires a Server.
type Options struct {
	AI       AI
	Settings *settings.Store
	// Store persists session summaries and history. Defaults to a
	// MemoryStore.
	Store store.SessionStore
	// Exporter, when set, holds uploaded images and every generated result
	// and enables presigned download links. Without it images are stored
	// inline in Store.
	Exporter ResultStore
	Presets  *presets.Catalogue
	// ModelOverride is applied on top of the stored model settings for new
	// sessions.
	ModelOverride chat.ConfigPatch
	SessionTTL    time.Duration
	// APIKey and KeySource describe the credential the AI client was
	// started with, if any.
	APIKey    string
	KeySource auth.Source
	// Picker, when set, enables POST /api/sessions/{id}/browse, which loads
	// the file chosen in a native dialog. An empty path means the user
	// canceled. Only the local server sets it.
	Picker func() (string, error)
}

// Server implements the editor HTTP API.
type Server struct {
	ai       AI
	settings *settings.Store
	store    store.SessionStore
	exporter ResultStore
	presets  *presets.Catalogue
	override chat.ConfigPatch
	images   *imaging.Registry
	sessions *sessions

	picker func() (string, error)

	keyMu     sync.Mutex
	apiKey    string
	keySource auth.Source
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		ai:        opts.AI,
		settings:  opts.Settings,
		store:     opts.Store,
		exporter:  opts.Exporter,
		presets:   opts.Presets,
		override:  opts.ModelOverride,
		images:    imaging.NewRegistry(),
		apiKey:    opts.APIKey,
		keySource: opts.KeySource,
		picker:    opts.Picker,
	}
	if s.store == nil {
		s.store = store.NewMemoryStore()
	}
	if s.presets == nil {
		s.presets = presets.Builtin()
	}
	if s.keySource == "" {
		s.keySource = auth.SourceNone
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = store.SessionTTL
	}
	s.sessions = newSessions(ttl)
	return s
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, withLogging, withMetrics, withCORS)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/presets", s.handlePresets)

	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/key", s.handleGetKey)
		r.Put("/key", s.handlePutKey)
		r.Delete("/key", s.handleDeleteKey)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Delete("/config", s.handleResetConfig)
		r.Post("/config/preset", s.handleApplyPreset)
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/image", s.handleUpload)
			if s.picker != nil {
				r.Post("/browse", s.handleBrowse)
			}
			r.Get("/thumbnail", s.handleThumbnail)
			r.Post("/analyze", s.handleAnalyze)
			r.Get("/highlights", s.handleHighlights)
			r.Post("/selection/{suggestionId}", s.handleToggle)
			r.Get("/prompt", s.handleGetPrompt)
			r.Put("/prompt", s.handlePutPrompt)
			r.Put("/config", s.handleSessionConfig)
			r.Post("/generate", s.handleGenerate)
			r.Post("/instructions", s.handleInstructions)
			r.Post("/new-edit", s.handleNewEdit)
			r.Post("/refine", s.handleRefine)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)
			r.Get("/download", s.handleDownload)
			r.Post("/export", s.handleExport)
			r.Get("/history", s.handleHistory)
			r.Get("/history.zip", s.handleHistoryZip)
		})
	})
	return r
}

// modelConfig returns the configuration new sessions start with.
func (s *Server) modelConfig() chat.ModelConfig {
	cfg := chat.DefaultConfig()
	if s.settings != nil {
		stored, err := s.settings.Config()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load stored model config, using defaults")
		} else {
			cfg = stored
		}
	}
	if merged := cfg.Apply(s.override); merged.Validate() == nil {
		cfg = merged
	}
	return cfg
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"configured": s.ai.Configured(),
		"sessions":   s.sessions.len(),
	})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.presets)
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("requestId", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

// withMetrics emits per-request EMF metrics with the route pattern as the
// Endpoint dimension.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		metrics.New(metrics.Namespace).
			Dimension("Endpoint", endpoint).
			Duration("RequestLatencyMs", time.Since(start)).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", ww.Status()).
			Flush()
	})
}

// withCORS allows localhost origins for the local web UI during development.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
