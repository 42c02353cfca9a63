package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/ai-image-editor/internal/assets"
	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/fpang/ai-image-editor/internal/jsonutil"
	"github.com/fpang/ai-image-editor/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Analyze sends img to the analysis model and returns its structured
// description and edit suggestions. Results are cached by content hash, and
// concurrent calls for identical bytes share one request.
func (c *Client) Analyze(ctx context.Context, img *imaging.Image) (*Analysis, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, errors.New("no image to analyze")
	}
	gen, err := c.generator(ctx)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(img.Data)
	key := hex.EncodeToString(sum[:])
	if c.analyses != nil {
		if cached, ok := c.analyses.Get(key); ok {
			log.Debug().Str("image", img.Filename).Msg("Using cached analysis")
			return cached.(*Analysis), nil
		}
	}

	v, err, shared := c.flight.Do(key, func() (any, error) {
		return c.analyze(ctx, gen, img)
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to analyze image: %w", err)
	}
	analysis := v.(*Analysis)
	if c.analyses != nil {
		c.analyses.SetDefault(key, analysis)
	}
	if shared {
		log.Debug().Str("image", img.Filename).Msg("Shared in-flight analysis")
	}
	return analysis, nil
}

func (c *Client) analyze(ctx context.Context, gen ContentGenerator, img *imaging.Image) (*Analysis, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	model := AnalysisModelName()
	log.Info().
		Str("model", model).
		Str("image", img.Filename).
		Int("image_bytes", len(img.Data)).
		Str("mime", img.MIMEType).
		Msg("Sending image to Gemini for analysis")

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.3),
		TopP:        genai.Ptr[float32](0.8),
		TopK:        genai.Ptr[float32](40),
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
			{Text: assets.RenderAnalysisPrompt(img.Metadata.Summary())},
		},
	}}

	start := time.Now()
	resp, err := gen.GenerateContent(ctx, model, contents, config)
	recordCall("analyze", model, time.Since(start), resp, err)
	if err != nil {
		log.Error().Err(err).Msg("Gemini analysis request failed")
		return nil, classify(err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	raw, err := jsonutil.ParseJSON[rawAnalysis](text)
	if err != nil {
		log.Warn().Err(err).Str("response", jsonutil.Preview(text, 200)).Msg("Analysis response is not valid JSON")
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	analysis := raw.normalize()
	log.Info().
		Int("suggestions", len(analysis.Suggestions)).
		Int("objects", len(analysis.Objects)).
		Str("style", analysis.Style).
		Msg("Image analysis complete")
	return analysis, nil
}

// EditWithInstructions asks the text model for a step-by-step plan that
// would achieve instruction on img, using the caller's sampling and safety
// settings.
func (c *Client) EditWithInstructions(ctx context.Context, img *imaging.Image, instruction string, cfg ModelConfig) (string, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "", errors.New("instruction is empty")
	}
	if img == nil || len(img.Data) == 0 {
		return "", errors.New("no image to edit")
	}
	gen, err := c.generator(ctx)
	if err != nil {
		return "", err
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	model := cfg.textModel()
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
			{Text: assets.RenderEditPlanPrompt(instruction)},
		},
	}}

	start := time.Now()
	resp, err := gen.GenerateContent(ctx, model, contents, cfg.generationConfig())
	recordCall("editPlan", model, time.Since(start), resp, err)
	if err != nil {
		return "", fmt.Errorf("Failed to process image edit: %w", classify(err))
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("Failed to process image edit: %w", ErrEmptyResponse)
	}
	return text, nil
}

// Ping makes the smallest possible request to verify the credential.
func (c *Client) Ping(ctx context.Context) error {
	gen, err := c.generator(ctx)
	if err != nil {
		return err
	}
	model := ModelGemini25FlashLite
	start := time.Now()
	resp, err := gen.GenerateContent(ctx, model, genai.Text("hi"), nil)
	recordCall("ping", model, time.Since(start), resp, err)
	if err != nil {
		return classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return ErrEmptyResponse
	}
	return nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func recordCall(operation, model string, elapsed time.Duration, resp *genai.GenerateContentResponse, err error) {
	m := metrics.New(metrics.Namespace).
		Dimension("Operation", operation).
		Duration("GeminiApiLatencyMs", elapsed).
		Count("GeminiApiCalls").
		Property("model", model)
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()
}
