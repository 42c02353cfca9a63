package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/fpang/ai-image-editor/internal/dataurl"
	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/fpang/ai-image-editor/internal/jsonutil"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultResultMIMEType is used when the API omits the inline image type.
const DefaultResultMIMEType = "image/png"

// GenerateEdit streams an image-generation request for img and instruction
// and returns the first inline image as a data URL. cfg contributes sampling
// and safety settings.
func (c *Client) GenerateEdit(ctx context.Context, img *imaging.Image, instruction string, cfg ModelConfig) (string, error) {
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

	model := ImageModelName()
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		Temperature:        genai.Ptr(cfg.Temperature),
		TopP:               genai.Ptr(cfg.TopP),
		SafetySettings:     safetySettings(cfg.SafetyLevel),
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
			{Text: instruction},
		},
	}}

	log.Info().
		Str("model", model).
		Int("image_bytes", len(img.Data)).
		Str("instruction", jsonutil.Preview(instruction, 100)).
		Msg("Sending image to Gemini for editing")

	start := time.Now()
	url, text, usage, err := firstInlineImage(gen.GenerateContentStream(ctx, model, contents, config))
	recordCall("generate", model, time.Since(start), usage, err)
	if err != nil {
		log.Error().Err(err).Msg("Gemini edit generation failed")
		return "", fmt.Errorf("Failed to generate edited image: %w", classify(err))
	}
	if url == "" {
		log.Warn().Str("text", jsonutil.Preview(text, 200)).Msg("Gemini returned no image")
		return "", fmt.Errorf("Failed to generate edited image: %w", ErrNoImage)
	}

	log.Info().
		Dur("duration", time.Since(start)).
		Int("result_chars", len(url)).
		Msg("Edited image received")
	return url, nil
}

// firstInlineImage drains stream until the first inline image part and
// returns it as a data URL along with any text seen before it. The last
// chunk carrying usage metadata is returned for metrics.
func firstInlineImage(stream iter.Seq2[*genai.GenerateContentResponse, error]) (string, string, *genai.GenerateContentResponse, error) {
	var (
		text  strings.Builder
		usage *genai.GenerateContentResponse
	)
	for chunk, err := range stream {
		if err != nil {
			return "", text.String(), usage, err
		}
		if chunk == nil {
			continue
		}
		if chunk.UsageMetadata != nil {
			usage = chunk
		}
		if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = DefaultResultMIMEType
				}
				return dataurl.Encode(mime, part.InlineData.Data), text.String(), usage, nil
			}
			text.WriteString(part.Text)
		}
	}
	return "", text.String(), usage, nil
}
