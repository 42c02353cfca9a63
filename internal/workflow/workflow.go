// Package workflow drives a single image-editing session through its phases:
// upload, analysis, suggestion selection, generation, result and refinement.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/dataurl"
	"github.com/fpang/ai-image-editor/internal/history"
	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBusy rejects a network operation while another is in flight.
	ErrBusy = errors.New("another request is already in progress")
	// ErrNoImage means the operation needs an uploaded image.
	ErrNoImage = errors.New("no image uploaded")
	// ErrEmptyPrompt means no edits are selected and the free text is empty.
	ErrEmptyPrompt = errors.New("No edits selected or custom prompt provided")
	// ErrNoResult means the operation needs an edited result.
	ErrNoResult = errors.New("no edited image to refine")
	// ErrInvalidTransition means the operation is not allowed in the current phase.
	ErrInvalidTransition = errors.New("operation not allowed in current phase")
	// ErrSuperseded is returned by a call whose result was discarded because
	// the workflow was reset or a new image was uploaded meanwhile.
	ErrSuperseded = errors.New("request superseded by a newer image")
)

// AIClient is the remote model used by a Workflow. *chat.Client satisfies it.
type AIClient interface {
	Configured() bool
	Analyze(ctx context.Context, img *imaging.Image) (*chat.Analysis, error)
	GenerateEdit(ctx context.Context, img *imaging.Image, instruction string, cfg chat.ModelConfig) (string, error)
	EditWithInstructions(ctx context.Context, img *imaging.Image, instruction string, cfg chat.ModelConfig) (string, error)
}

// Workflow is one editing session. All methods are safe for concurrent use;
// remote calls run without holding the lock and a second remote call while
// one is in flight fails with ErrBusy.
type Workflow struct {
	mu sync.Mutex

	ai      AIClient
	images  *imaging.Registry
	history *history.Ledger
	config  chat.ModelConfig

	phase     Phase
	image     *imaging.Image
	analysis  *chat.Analysis
	selection *Selection
	freeText  string
	result    string
	loading   bool
	errMsg    string

	// refineSource is the previous result, decoded, while refining.
	refineSource *imaging.Image
	// epoch increments whenever the image is replaced or the session reset;
	// in-flight results from an older epoch are dropped.
	epoch uint64
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithRegistry shares an image handle registry between workflows.
func WithRegistry(r *imaging.Registry) Option {
	return func(w *Workflow) { w.images = r }
}

// WithHistory uses l as the undo/redo ledger.
func WithHistory(l *history.Ledger) Option {
	return func(w *Workflow) { w.history = l }
}

// WithConfig sets the initial model configuration.
func WithConfig(cfg chat.ModelConfig) Option {
	return func(w *Workflow) { w.config = cfg }
}

// New creates a Workflow in the upload phase.
func New(ai AIClient, opts ...Option) *Workflow {
	w := &Workflow{
		ai:        ai,
		config:    chat.DefaultConfig(),
		phase:     PhaseUpload,
		selection: NewSelection(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.images == nil {
		w.images = imaging.NewRegistry()
	}
	if w.history == nil {
		w.history = history.New()
	}
	return w
}

// Upload admits a new image, releasing the previous one. Validation and
// decode failures leave the workflow unchanged. A successful upload returns
// to the upload phase with a fresh selection, result and history.
func (w *Workflow) Upload(filename, declaredType string, data []byte) (*imaging.Image, error) {
	img, err := w.images.Intake(filename, declaredType, data)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.images.Release(w.image)
	w.clearLocked()
	w.image = img
	return img, nil
}

// Analyze requests an analysis of the current image. On success the phase
// becomes suggestions and the selection is reset; on failure the phase
// returns to upload with the error recorded and the image kept.
func (w *Workflow) Analyze(ctx context.Context) (*chat.Analysis, error) {
	w.mu.Lock()
	if err := w.beginLocked(EventAnalyze); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	img, epoch := w.image, w.epoch
	w.mu.Unlock()

	analysis, err := w.ai.Analyze(ctx, img)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return nil, ErrSuperseded
	}
	w.loading = false
	if err != nil {
		w.fireLocked(EventAnalyzeFail)
		w.errMsg = chat.UserMessage(err)
		log.Warn().Err(err).Str("image", img.Filename).Msg("Analysis failed")
		return nil, err
	}
	w.fireLocked(EventAnalyzeOK)
	w.analysis = analysis
	w.selection.Reset()
	w.errMsg = ""
	return analysis, nil
}

// Toggle flips the selection of a suggestion from the current analysis and
// reports whether it is selected afterwards. Unknown ids are ignored. The
// selection is frozen while a request is in flight.
func (w *Workflow) Toggle(suggestionID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loading {
		return w.selection.Contains(suggestionID), ErrBusy
	}
	sg, ok := w.analysis.Suggestion(suggestionID)
	if !ok {
		return false, nil
	}
	return w.selection.Toggle(sg), nil
}

// SetFreeText replaces the custom instruction typed by the user.
func (w *Workflow) SetFreeText(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loading {
		return ErrBusy
	}
	w.freeText = text
	return nil
}

// Prompt returns the instruction that Generate would send.
func (w *Workflow) Prompt() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Compose(w.selection.Items(), w.freeText)
}

// Generate sends the composed prompt to the image model. From suggestions
// or result the uploaded image is edited; from refining the previous result
// is. Success records a history entry and moves to result. Failure keeps the
// selection and returns to the phase generation started from.
func (w *Workflow) Generate(ctx context.Context) (string, error) {
	w.mu.Lock()
	prompt := Compose(w.selection.Items(), w.freeText)
	if prompt == "" && w.image != nil && !w.loading {
		w.mu.Unlock()
		return "", ErrEmptyPrompt
	}
	origin := w.phase
	if err := w.beginLocked(EventGenerate); err != nil {
		w.mu.Unlock()
		return "", err
	}
	source, before := w.image, w.image.URL
	if origin == PhaseRefining && w.refineSource != nil {
		source, before = w.refineSource, w.result
	}
	cfg, epoch := w.config, w.epoch
	w.mu.Unlock()

	result, err := w.ai.GenerateEdit(ctx, source, prompt, cfg)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return "", ErrSuperseded
	}
	w.loading = false
	if err != nil {
		if origin == PhaseRefining {
			w.fireLocked(EventRefineFail)
		} else {
			w.fireLocked(EventGenerateFail)
		}
		w.errMsg = chat.UserMessage(err)
		log.Warn().Err(err).Str("phase", string(w.phase)).Msg("Edit generation failed")
		return "", err
	}
	w.fireLocked(EventGenerateOK)
	w.result = result
	w.refineSource = nil
	w.errMsg = ""
	w.history.Record(prompt, before, result)
	return result, nil
}

// EditPlan asks the text model for step-by-step instructions achieving the
// composed prompt on the current image. The phase does not change.
func (w *Workflow) EditPlan(ctx context.Context) (string, error) {
	w.mu.Lock()
	if w.loading {
		w.mu.Unlock()
		return "", ErrBusy
	}
	if w.image == nil {
		w.mu.Unlock()
		return "", ErrNoImage
	}
	if !w.ai.Configured() {
		w.mu.Unlock()
		return "", chat.ErrNotConfigured
	}
	prompt := Compose(w.selection.Items(), w.freeText)
	if prompt == "" {
		w.mu.Unlock()
		return "", ErrEmptyPrompt
	}
	img, cfg, epoch := w.image, w.config, w.epoch
	w.loading = true
	w.mu.Unlock()

	plan, err := w.ai.EditWithInstructions(ctx, img, prompt, cfg)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return "", ErrSuperseded
	}
	w.loading = false
	if err != nil {
		w.errMsg = chat.UserMessage(err)
		return "", err
	}
	return plan, nil
}

// StartNewEdit leaves the result view for a fresh selection on the same
// image and analysis.
func (w *Workflow) StartNewEdit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loading {
		return ErrBusy
	}
	if _, err := next(w.phase, EventStartNewEdit); err != nil {
		return err
	}
	w.fireLocked(EventStartNewEdit)
	w.selection.Reset()
	w.freeText = ""
	w.errMsg = ""
	w.refineSource = nil
	return nil
}

// Refine makes the displayed result the source of the next generation.
// The selection and free text are cleared for the follow-up instruction.
func (w *Workflow) Refine() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loading {
		return ErrBusy
	}
	if _, err := next(w.phase, EventRefine); err != nil {
		return err
	}
	if w.result == "" {
		return ErrNoResult
	}
	src, err := decodeResult(w.result)
	if err != nil {
		return err
	}

	w.fireLocked(EventRefine)
	w.refineSource = src
	w.selection.Reset()
	w.freeText = ""
	w.errMsg = ""
	return nil
}

// Undo steps back through the history and returns the result now shown.
// An empty result means the original image is shown. While refining, the
// shown image becomes the source of the next generation.
func (w *Workflow) Undo() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loading {
		return "", ErrBusy
	}
	if !w.history.CanUndo() {
		return w.result, nil
	}
	entry, _ := w.history.Undo()
	if err := w.showLocked(entry.AfterURL); err != nil {
		w.history.Redo()
		return w.result, err
	}
	return w.result, nil
}

// Redo steps forward through the history and returns the result now shown.
func (w *Workflow) Redo() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loading {
		return "", ErrBusy
	}
	if entry, ok := w.history.Redo(); ok {
		if err := w.showLocked(entry.AfterURL); err != nil {
			w.history.Undo()
			return w.result, err
		}
	}
	return w.result, nil
}

// showLocked displays result and, while refining, makes it the refinement
// source. An empty result refines the original image.
func (w *Workflow) showLocked(result string) error {
	if w.phase == PhaseRefining {
		var src *imaging.Image
		if result != "" {
			var err error
			if src, err = decodeResult(result); err != nil {
				return err
			}
		}
		w.refineSource = src
	}
	w.result = result
	return nil
}

func decodeResult(result string) (*imaging.Image, error) {
	mime, data, err := dataurl.Decode(result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	src, err := imaging.Decode("edited-image.png", mime, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return src, nil
}

// Reset drops the analysis, selection, result and history, releases the
// image and returns to upload. Any in-flight request is superseded.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images.Release(w.image)
	w.image = nil
	w.clearLocked()
}

// SetConfig validates and installs a new model configuration.
func (w *Workflow) SetConfig(cfg chat.ModelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
	return nil
}

// Config returns the model configuration in use.
func (w *Workflow) Config() chat.ModelConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

// Image returns the current upload, or nil.
func (w *Workflow) Image() *imaging.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.image
}

// Result returns the edited image currently shown, or "".
func (w *Workflow) Result() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// History returns the ledger entries, oldest first.
func (w *Workflow) History() []history.Entry {
	return w.history.Entries()
}

// Restore rebuilds a session reloaded from a store: the analysis, the
// history and the entry shown at cursor. Call it after Upload has admitted
// the original image, if that image is still available. The phase becomes
// result when an entry is shown, suggestions when only the analysis
// survives, and stays upload without an image or analysis.
func (w *Workflow) Restore(analysis *chat.Analysis, entries []history.Entry, cursor int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history.Restore(entries, cursor)
	w.result = ""
	if e, ok := w.history.Current(); ok {
		w.result = e.AfterURL
	}
	if w.image == nil || analysis == nil {
		w.phase = PhaseUpload
		return
	}
	w.analysis = analysis
	w.phase = PhaseSuggestions
	if w.result != "" {
		w.phase = PhaseResult
	}
}

// beginLocked checks the preconditions shared by remote operations and, when
// they hold, fires ev and marks the workflow loading.
func (w *Workflow) beginLocked(ev Event) error {
	if w.loading {
		return ErrBusy
	}
	if w.image == nil {
		return ErrNoImage
	}
	if !w.ai.Configured() {
		return chat.ErrNotConfigured
	}
	if _, err := next(w.phase, ev); err != nil {
		return err
	}
	w.fireLocked(ev)
	w.loading = true
	w.errMsg = ""
	return nil
}

func (w *Workflow) fireLocked(ev Event) {
	to, err := next(w.phase, ev)
	if err != nil {
		log.Error().Err(err).Msg("Unexpected workflow transition")
		return
	}
	log.Debug().Str("from", string(w.phase)).Str("event", string(ev)).Str("to", string(to)).Msg("Workflow transition")
	w.phase = to
}

// clearLocked returns every field except the image to its initial value and
// supersedes in-flight requests.
func (w *Workflow) clearLocked() {
	w.epoch++
	w.phase = PhaseUpload
	w.analysis = nil
	w.selection.Reset()
	w.freeText = ""
	w.result = ""
	w.refineSource = nil
	w.loading = false
	w.errMsg = ""
	w.history.Clear()
}
