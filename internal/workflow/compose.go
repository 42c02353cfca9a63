package workflow

import "strings"

// Compose joins the selected instructions, followed by the trimmed free
// text, into one prompt. No instructions yield "", a single instruction is
// returned verbatim, and several are joined with ". " and end with ".".
func Compose(selected []SelectedEdit, freeText string) string {
	parts := make([]string, 0, len(selected)+1)
	for _, e := range selected {
		parts = append(parts, e.Instruction)
	}
	if ft := strings.TrimSpace(freeText); ft != "" {
		parts = append(parts, ft)
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts, ". ") + "."
	}
}
