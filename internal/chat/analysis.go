package chat

import (
	"fmt"
	"strings"

	"github.com/fpang/ai-image-editor/internal/overlay"
)

// Category groups suggestions by the kind of edit they perform.
type Category string

const (
	CategoryEnhancement Category = "enhancement"
	CategoryRemoval     Category = "removal"
	CategoryStyle       Category = "style"
	CategoryFix         Category = "fix"
)

// ParseCategory normalises a category name, mapping anything unknown to
// CategoryEnhancement.
func ParseCategory(s string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryEnhancement, CategoryRemoval, CategoryStyle, CategoryFix:
		return c
	default:
		return CategoryEnhancement
	}
}

// Suggestion is one candidate edit proposed by the analysis model.
type Suggestion struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Instruction string          `json:"prompt"`
	Region      *overlay.Region `json:"region,omitempty"`
}

// Analysis is the structured description of an uploaded image. It is not
// modified after Analyze returns; re-analysis produces a new value.
type Analysis struct {
	Description string       `json:"description"`
	Objects     []string     `json:"objects"`
	Style       string       `json:"style"`
	Issues      []string     `json:"issues"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggestion returns the suggestion with the given id.
func (a *Analysis) Suggestion(id string) (Suggestion, bool) {
	if a == nil {
		return Suggestion{}, false
	}
	for _, s := range a.Suggestions {
		if s.ID == id {
			return s, true
		}
	}
	return Suggestion{}, false
}

type rawRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type rawSuggestion struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Prompt      string     `json:"prompt"`
	Region      *rawRegion `json:"region"`
}

type rawAnalysis struct {
	Objects     []string        `json:"objects"`
	Style       string          `json:"style"`
	Issues      []string        `json:"issues"`
	Description string          `json:"description"`
	Suggestions []rawSuggestion `json:"suggestions"`
}

// normalize turns the decoded model output into an Analysis. Missing ids
// become suggestion_<n> (1-based); repeated ids get a _<n> suffix so every id
// is unique; suggestions without an instruction are dropped.
func (r rawAnalysis) normalize() *Analysis {
	a := &Analysis{
		Description: strings.TrimSpace(r.Description),
		Objects:     nonEmpty(r.Objects),
		Style:       strings.TrimSpace(r.Style),
		Issues:      nonEmpty(r.Issues),
		Suggestions: make([]Suggestion, 0, len(r.Suggestions)),
	}

	seen := make(map[string]bool, len(r.Suggestions))
	for i, rs := range r.Suggestions {
		instruction := strings.TrimSpace(rs.Prompt)
		if instruction == "" {
			continue
		}

		id := strings.TrimSpace(rs.ID)
		if id == "" {
			id = fmt.Sprintf("suggestion_%d", i+1)
		}
		if seen[id] {
			base := id
			for n := 2; seen[id]; n++ {
				id = fmt.Sprintf("%s_%d", base, n)
			}
		}
		seen[id] = true

		label := strings.TrimSpace(rs.Label)
		if label == "" {
			label = instruction
		}

		s := Suggestion{
			ID:          id,
			Label:       label,
			Description: strings.TrimSpace(rs.Description),
			Category:    ParseCategory(rs.Category),
			Instruction: instruction,
		}
		if rs.Region != nil {
			region := overlay.Region{X: rs.Region.X, Y: rs.Region.Y, W: rs.Region.Width, H: rs.Region.Height}.Clamp()
			if !region.Empty() {
				s.Region = &region
			}
		}
		a.Suggestions = append(a.Suggestions, s)
	}
	return a
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
