package assets

import (
	"strings"
	"testing"
)

func TestRenderAnalysisPrompt(t *testing.T) {
	plain := RenderAnalysisPrompt("")
	if !strings.Contains(plain, `"suggestions"`) || !strings.HasSuffix(strings.TrimSpace(plain), "Only return the JSON, no additional text.") {
		t.Errorf("unexpected analysis prompt:\n%s", plain)
	}
	if strings.Contains(plain, "Camera metadata") {
		t.Error("metadata section should be omitted without metadata")
	}

	withMeta := RenderAnalysisPrompt("Canon EOS R5, taken 2024-06-01")
	if !strings.Contains(withMeta, "Camera metadata for context") || !strings.Contains(withMeta, "Canon EOS R5") {
		t.Errorf("metadata not rendered:\n%s", withMeta)
	}
}

func TestRenderEditPlanPrompt(t *testing.T) {
	got := RenderEditPlanPrompt("brighten the sky")
	if !strings.Contains(got, `following request: "brighten the sky"`) {
		t.Errorf("instruction not rendered:\n%s", got)
	}
}
