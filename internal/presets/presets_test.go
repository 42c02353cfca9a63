package presets

import (
	"testing"

	"github.com/fpang/ai-image-editor/internal/chat"
)

func TestBuiltin(t *testing.T) {
	c := Builtin()
	if len(c.Modes) != 3 {
		t.Errorf("modes = %d, want 3", len(c.Modes))
	}
	if len(c.QuickActions) != 4 {
		t.Errorf("quick actions = %d, want 4", len(c.QuickActions))
	}
	if len(c.PromptSuggestions) != 6 {
		t.Errorf("prompt suggestions = %d, want 6", len(c.PromptSuggestions))
	}
	if n := len(c.StylesOf(StyleTraditional, "")); n != 10 {
		t.Errorf("traditional styles = %d, want 10", n)
	}
	if n := len(c.StylesOf(StyleTrending, "")); n != 9 {
		t.Errorf("trending styles = %d, want 9", n)
	}
	if s, ok := c.Style("black-white"); !ok || s.Name != "Black & White" || s.Category != StylePhotography {
		t.Errorf("Style(black-white) = %+v, %v", s, ok)
	}
	if q, ok := c.QuickAction("fix lighting"); !ok || q.Prompt == "" {
		t.Errorf("QuickAction(fix lighting) = %+v, %v", q, ok)
	}
}

func TestApplyMode(t *testing.T) {
	c := Builtin()
	cfg, err := c.ApplyMode(chat.DefaultConfig(), "creative")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Temperature != 0.9 || cfg.TopP != 0.95 || cfg.TopK != 100 || cfg.ModelVersion != chat.ModelGemini25Flash {
		t.Errorf("Creative applied = %+v", cfg)
	}
	if cfg.MaxOutputTokens != 2048 || cfg.SafetyLevel != chat.SafetyDefault {
		t.Errorf("fields outside the mode changed: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("mode produced an invalid config: %v", err)
	}

	for _, m := range c.Modes {
		applied, _ := c.ApplyMode(chat.DefaultConfig(), m.Name)
		if err := applied.Validate(); err != nil {
			t.Errorf("mode %s invalid: %v", m.Name, err)
		}
	}

	if _, err := c.ApplyMode(chat.DefaultConfig(), "turbo"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	doc := []byte(`
styles:
  - {id: a, name: A, prompt: x, category: artistic, type: trending}
  - {id: a, name: B, prompt: y, category: modern, type: trending}
`)
	if _, err := Parse(doc); err == nil {
		t.Error("expected duplicate id error")
	}

	doc = []byte(`
styles:
  - {id: a, name: A, prompt: x, category: abstract, type: trending}
`)
	if _, err := Parse(doc); err == nil {
		t.Error("expected unknown category error")
	}
}
