package workflow

import "github.com/fpang/ai-image-editor/internal/chat"

// SelectedEdit is a suggestion the user has chosen to apply.
type SelectedEdit struct {
	SuggestionID string `json:"suggestionId"`
	Label        string `json:"label"`
	Instruction  string `json:"prompt"`
}

// Selection is an ordered set of selected edits keyed by suggestion id.
// Members keep the order in which they were added.
type Selection struct {
	order []string
	items map[string]SelectedEdit
}

// NewSelection returns an empty Selection.
func NewSelection() *Selection {
	return &Selection{items: make(map[string]SelectedEdit)}
}

// Toggle adds s when absent and removes it when present. It reports whether
// s is selected afterwards.
func (s *Selection) Toggle(sg chat.Suggestion) bool {
	if _, ok := s.items[sg.ID]; ok {
		delete(s.items, sg.ID)
		for i, id := range s.order {
			if id == sg.ID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return false
	}
	s.items[sg.ID] = SelectedEdit{SuggestionID: sg.ID, Label: sg.Label, Instruction: sg.Instruction}
	s.order = append(s.order, sg.ID)
	return true
}

// Contains reports whether the suggestion id is selected.
func (s *Selection) Contains(id string) bool {
	_, ok := s.items[id]
	return ok
}

// Items returns the selected edits in insertion order.
func (s *Selection) Items() []SelectedEdit {
	out := make([]SelectedEdit, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Len returns the number of selected edits.
func (s *Selection) Len() int { return len(s.order) }

// Reset empties the set.
func (s *Selection) Reset() {
	s.order = nil
	clear(s.items)
}
