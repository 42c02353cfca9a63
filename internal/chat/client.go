package chat

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is the part of the Gemini API the editor calls.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeneratorFactory builds a ContentGenerator for an API key.
type GeneratorFactory func(ctx context.Context, apiKey string) (ContentGenerator, error)

// DefaultRequestTimeout bounds a single HTTP exchange with the API.
// Image generation can take 10-30s.
const DefaultRequestTimeout = 120 * time.Second

// DefaultAnalysisTTL is how long an analysis is reused for identical bytes.
const DefaultAnalysisTTL = 30 * time.Minute

// GenaiFactory returns a factory backed by google.golang.org/genai using the
// Gemini API backend. A nil httpClient gets DefaultRequestTimeout.
func GenaiFactory(httpClient *http.Client) GeneratorFactory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return func(ctx context.Context, apiKey string) (ContentGenerator, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client.Models, nil
	}
}

// Client sends analysis and edit requests to Gemini. It holds the API
// credential; SetCredential and ClearCredential are the only ways to change
// it. A Client is safe for concurrent use.
type Client struct {
	mu      sync.RWMutex
	apiKey  string
	gen     ContentGenerator
	factory GeneratorFactory

	limiter  *rate.Limiter
	analyses *cache.Cache
	flight   singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithGeneratorFactory replaces the genai-backed factory.
func WithGeneratorFactory(f GeneratorFactory) Option {
	return func(c *Client) { c.factory = f }
}

// WithRateLimit paces outgoing requests. A zero limit disables pacing.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit == 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithAnalysisTTL sets how long analyses are cached. Zero disables caching.
func WithAnalysisTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.analyses = nil
			return
		}
		c.analyses = cache.New(ttl, 2*ttl)
	}
}

// NewClient creates an unconfigured Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		factory:  GenaiFactory(nil),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 4),
		analyses: cache.New(DefaultAnalysisTTL, 2*DefaultAnalysisTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// SetCredential installs apiKey. An empty key clears the credential.
func (c *Client) SetCredential(apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if apiKey == c.apiKey {
		return
	}
	c.apiKey = apiKey
	c.gen = nil
	log.Debug().Bool("configured", apiKey != "").Msg("Gemini credential updated")
}

// ClearCredential removes the credential. Later calls fail with
// ErrNotConfigured until SetCredential is called again.
func (c *Client) ClearCredential() {
	c.SetCredential("")
}

// generator returns the ContentGenerator for the current credential,
// building it on first use.
func (c *Client) generator(ctx context.Context) (ContentGenerator, error) {
	c.mu.RLock()
	gen, key := c.gen, c.apiKey
	c.mu.RUnlock()
	if key == "" {
		return nil, ErrNotConfigured
	}
	if gen != nil {
		return gen, nil
	}

	gen, err := c.factory(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.apiKey == key && c.gen == nil {
		c.gen = gen
	}
	c.mu.Unlock()
	return gen, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
