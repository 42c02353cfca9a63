package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/export"
	"github.com/fpang/ai-image-editor/internal/presets"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

const sessionHelp = `Commands:
  open <path>       load an image (browse opens a file dialog)
  analyze           ask for edit suggestions
  list              show the analysis and selection
  toggle <n> [...]  select or deselect suggestions by number
  text [words]      set the custom instruction (empty clears it)
  quick <name>      use a quick action as the custom instruction
  style <id>        use a style preset as the custom instruction
  prompt            show the composed prompt
  generate          apply the prompt
  plan              print step-by-step manual instructions
  refine            edit the current result further
  new               start a new edit from the same analysis
  undo | redo       move through the edit history
  history           list the edit history
  save [dir]        write the result as edited-image.png
  config            show the model settings for this session
  mode <name>       apply a preset mode to this session
  reset             discard everything including the image
  quit`

// Session drives a workflow from line commands.
type Session struct {
	wf        *workflow.Workflow
	out       *Printer
	in        *Prompter
	presets   *presets.Catalogue
	outputDir string
	pick      func() (string, error)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithOutputDir sets the default directory for save.
func WithOutputDir(dir string) SessionOption {
	return func(s *Session) { s.outputDir = dir }
}

// WithPicker replaces the native file dialog used by browse.
func WithPicker(pick func() (string, error)) SessionOption {
	return func(s *Session) { s.pick = pick }
}

// WithPresets replaces the built-in preset catalogue.
func WithPresets(c *presets.Catalogue) SessionOption {
	return func(s *Session) { s.presets = c }
}

// NewSession creates an interactive session over wf.
func NewSession(wf *workflow.Workflow, out *Printer, in *Prompter, opts ...SessionOption) *Session {
	s := &Session{wf: wf, out: out, in: in, presets: presets.Builtin(), outputDir: ".", pick: PickImage}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads an image file into the workflow.
func (s *Session) Open(path string) error {
	resolved, err := ResolveImagePath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", resolved, err)
	}
	img, err := s.wf.Upload(filepath.Base(resolved), "", data)
	if err != nil {
		return err
	}
	s.out.Image(img)
	return nil
}

// Run reads commands until quit or end of input.
func (s *Session) Run(ctx context.Context) error {
	s.out.Info("Type 'help' for commands.")
	for {
		line, err := s.in.ReadLine(fmt.Sprintf("%s> ", s.wf.State().Phase))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		quit, err := s.Exec(ctx, line)
		if err != nil {
			s.out.Error(err)
		}
		if quit {
			return nil
		}
	}
}

// Exec runs one command line. It reports whether the session should end.
func (s *Session) Exec(ctx context.Context, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		s.out.Info(sessionHelp)
	case "open":
		if rest == "" {
			return false, errors.New("usage: open <path>")
		}
		return false, s.Open(rest)
	case "browse":
		path, err := s.pick()
		if err != nil {
			return false, err
		}
		return false, s.Open(path)
	case "analyze":
		return false, s.analyze(ctx)
	case "list":
		st := s.wf.State()
		s.out.Image(s.wf.Image())
		s.out.Analysis(st.Analysis, st.Selected)
		s.out.State(st)
	case "toggle", "t":
		return false, s.toggle(rest)
	case "text":
		if err := s.wf.SetFreeText(rest); err != nil {
			return false, err
		}
		s.printPrompt()
	case "quick":
		qa, ok := s.presets.QuickAction(rest)
		if !ok {
			return false, fmt.Errorf("unknown quick action %q", rest)
		}
		if err := s.wf.SetFreeText(qa.Prompt); err != nil {
			return false, err
		}
		s.printPrompt()
	case "style":
		st, ok := s.presets.Style(rest)
		if !ok {
			return false, fmt.Errorf("unknown style %q", rest)
		}
		if err := s.wf.SetFreeText(st.Prompt); err != nil {
			return false, err
		}
		s.printPrompt()
	case "prompt":
		s.printPrompt()
	case "generate", "g":
		return false, s.generate(ctx)
	case "plan":
		plan, err := s.wf.EditPlan(ctx)
		if err != nil {
			return false, err
		}
		s.out.Info(plan)
	case "refine":
		if err := s.wf.Refine(); err != nil {
			return false, err
		}
		s.out.Success("Refining the current result. Choose a follow-up instruction with text, quick or style.")
	case "new":
		if err := s.wf.StartNewEdit(); err != nil {
			return false, err
		}
		st := s.wf.State()
		s.out.Analysis(st.Analysis, st.Selected)
	case "undo":
		if _, err := s.wf.Undo(); err != nil {
			return false, err
		}
		s.out.State(s.wf.State())
	case "redo":
		if _, err := s.wf.Redo(); err != nil {
			return false, err
		}
		s.out.State(s.wf.State())
	case "history":
		s.out.History(s.wf.History(), s.wf.State().Cursor)
	case "save":
		return false, s.save(rest)
	case "config":
		s.out.Config(s.wf.Config())
	case "mode":
		cfg, err := s.presets.ApplyMode(s.wf.Config(), rest)
		if err != nil {
			return false, err
		}
		if err := s.wf.SetConfig(cfg); err != nil {
			return false, err
		}
		s.out.Success("Applied %s mode", rest)
	case "reset":
		s.wf.Reset()
		s.out.Success("Session cleared")
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

func (s *Session) analyze(ctx context.Context) error {
	start := time.Now()
	s.out.Info("Analyzing image...")
	analysis, err := s.wf.Analyze(ctx)
	if err != nil {
		return err
	}
	log.Debug().Dur("elapsed", time.Since(start)).Int("suggestions", len(analysis.Suggestions)).Msg("Analysis complete")
	s.out.Analysis(analysis, nil)
	return nil
}

func (s *Session) toggle(args string) error {
	st := s.wf.State()
	if st.Analysis == nil {
		return errors.New("analyze the image first")
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return errors.New("usage: toggle <n> [...]")
	}
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(st.Analysis.Suggestions) {
			return fmt.Errorf("no suggestion %s", f)
		}
		if _, err := s.wf.Toggle(st.Analysis.Suggestions[n-1].ID); err != nil {
			return err
		}
	}
	st = s.wf.State()
	s.out.Analysis(st.Analysis, st.Selected)
	s.printPrompt()
	return nil
}

func (s *Session) generate(ctx context.Context) error {
	start := time.Now()
	s.out.Info("Generating edit...")
	if _, err := s.wf.Generate(ctx); err != nil {
		return err
	}
	s.out.Success("Edit ready in %s. Use save to write it, refine to keep editing.", FormatDurationShort(time.Since(start)))
	return nil
}

func (s *Session) save(dir string) error {
	result := s.wf.Result()
	if result == "" {
		return workflow.ErrNoResult
	}
	if dir == "" {
		dir = s.outputDir
	}
	path, err := export.Download(result, dir)
	if err != nil {
		return err
	}
	s.out.Success("Saved %s", path)
	return nil
}

func (s *Session) printPrompt() {
	if p := s.wf.Prompt(); p != "" {
		s.out.Info("Prompt: %s", p)
		return
	}
	s.out.Warn("Prompt is empty")
}
