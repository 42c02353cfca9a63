package chat

import "os"

// Gemini model IDs used by the editor.
//
// | Model                        | Use                                  |
// |------------------------------|--------------------------------------|
// | gemini-2.5-flash-lite        | analysis, edit plans (default)       |
// | gemini-2.5-flash             | Creative / High Fidelity presets     |
// | gemini-2.5-pro               | optional text model                  |
// | gemini-2.5-flash-image-preview | image edit generation              |
const (
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"
	ModelGemini25Flash     = "gemini-2.5-flash"
	ModelGemini25Pro       = "gemini-2.5-pro"

	// ModelGemini25FlashImage returns edited images inline.
	ModelGemini25FlashImage = "gemini-2.5-flash-image-preview"
)

// TextModels lists the model versions a ModelConfig may name.
var TextModels = []string{ModelGemini25FlashLite, ModelGemini25Flash, ModelGemini25Pro}

// AnalysisModelName returns the model used for image analysis, overridable
// with GEMINI_ANALYSIS_MODEL.
func AnalysisModelName() string {
	if env := os.Getenv("GEMINI_ANALYSIS_MODEL"); env != "" {
		return env
	}
	return ModelGemini25FlashLite
}

// ImageModelName returns the model used for edit generation, overridable
// with GEMINI_IMAGE_MODEL.
func ImageModelName() string {
	if env := os.Getenv("GEMINI_IMAGE_MODEL"); env != "" {
		return env
	}
	return ModelGemini25FlashImage
}

func isTextModel(name string) bool {
	for _, m := range TextModels {
		if m == name {
			return true
		}
	}
	return false
}
