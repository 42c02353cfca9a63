package cli

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/config"
	"github.com/fpang/ai-image-editor/internal/logging"
	"github.com/fpang/ai-image-editor/internal/settings"
)

// NewClient builds an unconfigured Gemini client tuned by cfg.
func NewClient(cfg *config.Config) *chat.Client {
	return chat.NewClient(
		chat.WithGeneratorFactory(chat.GenaiFactory(&http.Client{Timeout: cfg.Gemini.RequestTimeout})),
		chat.WithRateLimit(rate.Limit(cfg.Gemini.RequestsPerSecond), cfg.Gemini.Burst),
		chat.WithAnalysisTTL(cfg.Gemini.AnalysisCacheTTL),
	)
}

// InitClient creates a Gemini client and installs the key found in the
// environment or the settings store. With validate set the key is checked
// with a minimal request. A missing key is returned as an
// *auth.ValidationError; callers that can prompt for one may continue with
// the unconfigured client.
func InitClient(ctx context.Context, cfg *config.Config, store *settings.Store, validate bool) (*chat.Client, auth.Source, error) {
	client := NewClient(cfg)

	resolver := &auth.Resolver{}
	if store != nil {
		resolver.Store = store
	}
	apiKey, source, err := resolver.GetAPIKey(ctx)
	if err != nil {
		return client, auth.SourceNone, err
	}
	client.SetCredential(apiKey)
	log.Debug().Str("source", string(source)).Str("key", logging.MaskKey(apiKey)).Msg("Gemini client configured")

	if validate {
		if err := auth.ValidateAPIKey(ctx, client); err != nil {
			return client, source, err
		}
		log.Info().Msg("API key validation complete - ready for operations")
	}
	return client, source, nil
}
