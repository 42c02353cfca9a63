package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/config"
	"github.com/fpang/ai-image-editor/internal/history"
	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/fpang/ai-image-editor/internal/presets"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#1E40AF", Dark: "#3B82F6"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
	colorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A855F7"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#374151"}
)

// Printer renders editor output for the terminal.
type Printer struct {
	w io.Writer

	title    lipgloss.Style
	muted    lipgloss.Style
	accent   lipgloss.Style
	success  lipgloss.Style
	warn     lipgloss.Style
	err      lipgloss.Style
	selected lipgloss.Style
	box      lipgloss.Style
}

// NewPrinter creates a Printer writing to w. colorMode is one of the
// config.Color* values; auto detects the terminal.
func NewPrinter(w io.Writer, colorMode string) *Printer {
	r := lipgloss.NewRenderer(w)
	switch colorMode {
	case config.ColorNever:
		r.SetColorProfile(termenv.Ascii)
		plain := r.NewStyle()
		return &Printer{
			w: w, title: plain, muted: plain, accent: plain, success: plain, warn: plain, err: plain, selected: plain,
			box: plain.Border(lipgloss.NormalBorder()).Padding(0, 1),
		}
	case config.ColorAlways:
		r.SetColorProfile(termenv.TrueColor)
	}

	return &Printer{
		w:        w,
		title:    r.NewStyle().Bold(true).Foreground(colorPrimary),
		muted:    r.NewStyle().Foreground(colorMuted),
		accent:   r.NewStyle().Foreground(colorAccent),
		success:  r.NewStyle().Foreground(colorSuccess),
		warn:     r.NewStyle().Foreground(colorWarning),
		err:      r.NewStyle().Bold(true).Foreground(colorError),
		selected: r.NewStyle().Bold(true).Foreground(colorSuccess),
		box:      r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1),
	}
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

// Title prints a heading.
func (p *Printer) Title(s string) { p.println(p.title.Render(s)) }

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) { p.println(fmt.Sprintf(format, args...)) }

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...any) {
	p.println(p.success.Render("✓ " + fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.println(p.warn.Render("! " + fmt.Sprintf(format, args...)))
}

// Error prints an error with its user-facing message.
func (p *Printer) Error(err error) {
	p.println(p.err.Render("✗ " + chat.UserMessage(err)))
}

// Image prints a one-line summary of an uploaded image.
func (p *Printer) Image(img *imaging.Image) {
	if img == nil {
		return
	}
	line := fmt.Sprintf("%s  %s  %s  %s", p.accent.Render(img.Filename), img.Dimensions(), img.MIMEType, FormatBytes(img.Size))
	if s := img.Metadata.Summary(); s != "" {
		line += p.muted.Render("  " + s)
	}
	p.println(line)
}

// Analysis prints the description and numbered suggestions, marking the
// selected ones.
func (p *Printer) Analysis(a *chat.Analysis, selected []workflow.SelectedEdit) {
	if a == nil {
		return
	}
	isSelected := make(map[string]bool, len(selected))
	for _, s := range selected {
		isSelected[s.SuggestionID] = true
	}

	var b strings.Builder
	b.WriteString(a.Description)
	if a.Style != "" {
		b.WriteString("\n" + p.muted.Render("Style: "+a.Style))
	}
	if len(a.Issues) > 0 {
		b.WriteString("\n" + p.muted.Render("Issues: "+strings.Join(a.Issues, "; ")))
	}
	p.println(p.box.Render(b.String()))

	for i, sg := range a.Suggestions {
		mark := "[ ]"
		label := sg.Label
		if isSelected[sg.ID] {
			mark = p.selected.Render("[x]")
			label = p.selected.Render(label)
		}
		line := fmt.Sprintf("%2d. %s %s %s", i+1, mark, label, p.muted.Render("("+CategoryLabel(sg.Category)+")"))
		if sg.Region != nil {
			line += p.accent.Render(" ◎")
		}
		p.println(line)
		if sg.Description != "" {
			p.println("       " + p.muted.Render(sg.Description))
		}
	}
}

// State prints the workflow phase, prompt and history position.
func (p *Printer) State(st workflow.State) {
	p.println(fmt.Sprintf("%s %s", p.muted.Render("phase:"), p.accent.Render(string(st.Phase))))
	if st.Prompt != "" {
		p.println(fmt.Sprintf("%s %s", p.muted.Render("prompt:"), st.Prompt))
	}
	if st.HistoryLen > 0 {
		p.println(fmt.Sprintf("%s %d/%d", p.muted.Render("history:"), st.Cursor+1, st.HistoryLen))
	}
	if st.Error != "" {
		p.println(p.err.Render("✗ " + st.Error))
	}
}

// Config prints a model configuration.
func (p *Printer) Config(cfg chat.ModelConfig) {
	rows := [][2]string{
		{"temperature", fmt.Sprintf("%.2f", cfg.Temperature)},
		{"topP", fmt.Sprintf("%.2f", cfg.TopP)},
		{"topK", fmt.Sprintf("%d", cfg.TopK)},
		{"maxOutputTokens", fmt.Sprintf("%d", cfg.MaxOutputTokens)},
		{"safetyLevel", string(cfg.SafetyLevel)},
		{"modelVersion", cfg.ModelVersion},
	}
	for _, r := range rows {
		p.println(fmt.Sprintf("%-16s %s", p.muted.Render(r[0]), r[1]))
	}
}

// Presets prints the modes, quick actions and styles of a catalogue.
func (p *Printer) Presets(c *presets.Catalogue) {
	p.Title("Modes")
	for _, m := range c.Modes {
		p.println(fmt.Sprintf("  %-14s %s", p.accent.Render(m.Name), p.muted.Render(m.Description)))
	}
	p.Title("Quick actions")
	for _, q := range c.QuickActions {
		p.println(fmt.Sprintf("  %-14s %s", p.accent.Render(q.Name), p.muted.Render(q.Prompt)))
	}
	p.Title("Styles")
	for _, s := range c.Styles {
		p.println(fmt.Sprintf("  %-18s %s %s", p.accent.Render(s.ID), s.Name, p.muted.Render("("+string(s.Category)+", "+string(s.Type)+")")))
	}
}

// History prints the edit ledger, marking the entry at cursor.
func (p *Printer) History(entries []history.Entry, cursor int) {
	if len(entries) == 0 {
		p.println(p.muted.Render("No edits yet."))
		return
	}
	for i, e := range entries {
		marker := "  "
		if i == cursor {
			marker = p.selected.Render("→ ")
		}
		p.println(fmt.Sprintf("%s%2d. %s %s", marker, i+1, e.Instruction, p.muted.Render(e.Timestamp.Format("15:04:05"))))
	}
}
