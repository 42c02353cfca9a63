package chat

import (
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// SafetyLevel selects how aggressively the API blocks generated content.
type SafetyLevel string

const (
	SafetyDefault SafetyLevel = "default"
	SafetyStrict  SafetyLevel = "strict"
	SafetyNone    SafetyLevel = "none"
)

// ModelConfig holds the user's generation parameters.
type ModelConfig struct {
	Temperature     float32     `json:"temperature" yaml:"temperature"`
	TopP            float32     `json:"topP" yaml:"topP"`
	TopK            int         `json:"topK" yaml:"topK"`
	MaxOutputTokens int         `json:"maxOutputTokens" yaml:"maxOutputTokens"`
	SafetyLevel     SafetyLevel `json:"safetyLevel" yaml:"safetyLevel"`
	ModelVersion    string      `json:"modelVersion" yaml:"modelVersion"`
}

// DefaultConfig returns the configuration used when nothing is persisted.
func DefaultConfig() ModelConfig {
	return ModelConfig{
		Temperature:     0.7,
		TopP:            0.8,
		TopK:            40,
		MaxOutputTokens: 2048,
		SafetyLevel:     SafetyDefault,
		ModelVersion:    ModelGemini25FlashLite,
	}
}

// ErrInvalidConfig is wrapped by every ModelConfig validation failure.
var ErrInvalidConfig = errors.New("invalid model configuration")

// Validate checks that every parameter is within the range the API accepts.
func (c ModelConfig) Validate() error {
	switch {
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature %.2f outside [0, 2]", ErrInvalidConfig, c.Temperature)
	case c.TopP < 0 || c.TopP > 1:
		return fmt.Errorf("%w: topP %.2f outside [0, 1]", ErrInvalidConfig, c.TopP)
	case c.TopK < 1 || c.TopK > 100:
		return fmt.Errorf("%w: topK %d outside [1, 100]", ErrInvalidConfig, c.TopK)
	case c.MaxOutputTokens < 1 || c.MaxOutputTokens > 8192:
		return fmt.Errorf("%w: maxOutputTokens %d outside [1, 8192]", ErrInvalidConfig, c.MaxOutputTokens)
	}
	switch c.SafetyLevel {
	case SafetyDefault, SafetyStrict, SafetyNone:
	default:
		return fmt.Errorf("%w: unknown safety level %q", ErrInvalidConfig, c.SafetyLevel)
	}
	if !isTextModel(c.ModelVersion) {
		return fmt.Errorf("%w: unknown model version %q", ErrInvalidConfig, c.ModelVersion)
	}
	return nil
}

// ConfigPatch is a partial ModelConfig. Nil fields are left unchanged.
type ConfigPatch struct {
	Temperature     *float32     `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP            *float32     `json:"topP,omitempty" yaml:"topP,omitempty"`
	TopK            *int         `json:"topK,omitempty" yaml:"topK,omitempty"`
	MaxOutputTokens *int         `json:"maxOutputTokens,omitempty" yaml:"maxOutputTokens,omitempty"`
	SafetyLevel     *SafetyLevel `json:"safetyLevel,omitempty" yaml:"safetyLevel,omitempty"`
	ModelVersion    *string      `json:"modelVersion,omitempty" yaml:"modelVersion,omitempty"`
}

// Apply returns c with every non-nil field of p merged in.
func (c ModelConfig) Apply(p ConfigPatch) ModelConfig {
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		c.TopP = *p.TopP
	}
	if p.TopK != nil {
		c.TopK = *p.TopK
	}
	if p.MaxOutputTokens != nil {
		c.MaxOutputTokens = *p.MaxOutputTokens
	}
	if p.SafetyLevel != nil {
		c.SafetyLevel = *p.SafetyLevel
	}
	if p.ModelVersion != nil {
		c.ModelVersion = *p.ModelVersion
	}
	return c
}

var harmCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// safetySettings maps a level to per-category thresholds. The default level
// leaves the API defaults in place.
func safetySettings(level SafetyLevel) []*genai.SafetySetting {
	var threshold genai.HarmBlockThreshold
	switch level {
	case SafetyStrict:
		threshold = genai.HarmBlockThresholdBlockLowAndAbove
	case SafetyNone:
		threshold = genai.HarmBlockThresholdBlockNone
	default:
		return nil
	}
	settings := make([]*genai.SafetySetting, 0, len(harmCategories))
	for _, cat := range harmCategories {
		settings = append(settings, &genai.SafetySetting{Category: cat, Threshold: threshold})
	}
	return settings
}

// generationConfig builds the sampling parameters for a request.
func (c ModelConfig) generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.Temperature),
		TopP:            genai.Ptr(c.TopP),
		TopK:            genai.Ptr(float32(c.TopK)),
		MaxOutputTokens: int32(c.MaxOutputTokens),
		SafetySettings:  safetySettings(c.SafetyLevel),
	}
}

func (c ModelConfig) textModel() string {
	if isTextModel(c.ModelVersion) {
		return c.ModelVersion
	}
	return ModelGemini25FlashLite
}
