// Package presets exposes the catalogue of model modes, quick actions,
// prompt suggestions and style presets bundled with the editor.
package presets

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fpang/ai-image-editor/internal/assets"
	"github.com/fpang/ai-image-editor/internal/chat"
	"gopkg.in/yaml.v3"
)

// ErrUnknownMode is returned for a mode name not in the catalogue.
var ErrUnknownMode = errors.New("unknown preset mode")

// Mode is a named partial ModelConfig.
type Mode struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description" yaml:"description"`
	Config      chat.ConfigPatch `json:"config" yaml:"config"`
}

// QuickAction is a one-click instruction.
type QuickAction struct {
	Name   string `json:"name" yaml:"name"`
	Prompt string `json:"prompt" yaml:"prompt"`
}

// StyleCategory groups style presets.
type StyleCategory string

const (
	StyleArtistic    StyleCategory = "artistic"
	StylePhotography StyleCategory = "photography"
	StyleModern      StyleCategory = "modern"
	StyleVintage     StyleCategory = "vintage"
)

// StyleType separates the classic catalogue from trending looks.
type StyleType string

const (
	StyleTraditional StyleType = "traditional"
	StyleTrending    StyleType = "trending"
)

// Style is a reusable style instruction.
type Style struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Prompt      string        `json:"prompt" yaml:"prompt"`
	Category    StyleCategory `json:"category" yaml:"category"`
	Type        StyleType     `json:"type" yaml:"type"`
}

// Catalogue is everything a front end can offer besides AI suggestions.
type Catalogue struct {
	Modes             []Mode        `json:"modes" yaml:"modes"`
	QuickActions      []QuickAction `json:"quickActions" yaml:"quickActions"`
	PromptSuggestions []string      `json:"promptSuggestions" yaml:"promptSuggestions"`
	Styles            []Style       `json:"styles" yaml:"styles"`
}

var (
	loadOnce sync.Once
	builtin  *Catalogue
	loadErr  error
)

// Parse decodes a catalogue document and checks that ids and mode names are
// unique and every style has a known category and type.
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}

	modes := make(map[string]bool, len(c.Modes))
	for _, m := range c.Modes {
		key := strings.ToLower(m.Name)
		if modes[key] {
			return nil, fmt.Errorf("duplicate mode %q", m.Name)
		}
		modes[key] = true
	}

	ids := make(map[string]bool, len(c.Styles))
	for _, s := range c.Styles {
		if ids[s.ID] {
			return nil, fmt.Errorf("duplicate style id %q", s.ID)
		}
		ids[s.ID] = true
		switch s.Category {
		case StyleArtistic, StylePhotography, StyleModern, StyleVintage:
		default:
			return nil, fmt.Errorf("style %q: unknown category %q", s.ID, s.Category)
		}
		if s.Type != StyleTraditional && s.Type != StyleTrending {
			return nil, fmt.Errorf("style %q: unknown type %q", s.ID, s.Type)
		}
	}
	return &c, nil
}

// Builtin returns the embedded catalogue. It panics if the embedded
// document is invalid, which the package tests rule out.
func Builtin() *Catalogue {
	loadOnce.Do(func() {
		builtin, loadErr = Parse(assets.PresetsYAML)
	})
	if loadErr != nil {
		panic(loadErr)
	}
	return builtin
}

// Mode looks up a mode by case-insensitive name.
func (c *Catalogue) Mode(name string) (Mode, bool) {
	for _, m := range c.Modes {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Mode{}, false
}

// Style looks up a style preset by id.
func (c *Catalogue) Style(id string) (Style, bool) {
	for _, s := range c.Styles {
		if s.ID == id {
			return s, true
		}
	}
	return Style{}, false
}

// QuickAction looks up a quick action by case-insensitive name.
func (c *Catalogue) QuickAction(name string) (QuickAction, bool) {
	for _, q := range c.QuickActions {
		if strings.EqualFold(q.Name, name) {
			return q, true
		}
	}
	return QuickAction{}, false
}

// StylesOf returns the styles of type t, optionally restricted to category
// (empty matches all), in catalogue order.
func (c *Catalogue) StylesOf(t StyleType, category StyleCategory) []Style {
	var out []Style
	for _, s := range c.Styles {
		if s.Type == t && (category == "" || s.Category == category) {
			out = append(out, s)
		}
	}
	return out
}

// ApplyMode merges the named mode into cfg.
func (c *Catalogue) ApplyMode(cfg chat.ModelConfig, name string) (chat.ModelConfig, error) {
	m, ok := c.Mode(name)
	if !ok {
		return cfg, fmt.Errorf("%w %q", ErrUnknownMode, name)
	}
	return cfg.Apply(m.Config), nil
}
