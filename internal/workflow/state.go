package workflow

import (
	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/imaging"
)

// ImageInfo describes the current upload without its bytes.
type ImageInfo struct {
	URL      string            `json:"url"`
	Filename string            `json:"filename"`
	MIMEType string            `json:"mimeType"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Size     int64             `json:"size"`
	Metadata *imaging.Metadata `json:"metadata,omitempty"`
}

// State is a point-in-time copy of a Workflow.
type State struct {
	Phase      Phase            `json:"phase"`
	Image      *ImageInfo       `json:"image,omitempty"`
	Analysis   *chat.Analysis   `json:"analysis,omitempty"`
	Selected   []SelectedEdit   `json:"selectedEdits"`
	FreeText   string           `json:"customPrompt"`
	Prompt     string           `json:"prompt"`
	Result     string           `json:"editedImage,omitempty"`
	Refining   bool             `json:"refining,omitempty"`
	Loading    bool             `json:"isLoading"`
	Error      string           `json:"error,omitempty"`
	CanUndo    bool             `json:"canUndo"`
	CanRedo    bool             `json:"canRedo"`
	HistoryLen int              `json:"historyLength"`
	Cursor     int              `json:"historyIndex"`
	Config     chat.ModelConfig `json:"config"`
}

// State returns a snapshot of the workflow.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := State{
		Phase:      w.phase,
		Analysis:   w.analysis,
		Selected:   w.selection.Items(),
		FreeText:   w.freeText,
		Prompt:     Compose(w.selection.Items(), w.freeText),
		Result:     w.result,
		Refining:   w.refineSource != nil,
		Loading:    w.loading,
		Error:      w.errMsg,
		CanUndo:    w.history.CanUndo(),
		CanRedo:    w.history.CanRedo(),
		HistoryLen: w.history.Len(),
		Cursor:     w.history.Cursor(),
		Config:     w.config,
	}
	if img := w.image; img != nil {
		s.Image = &ImageInfo{
			URL:      img.URL,
			Filename: img.Filename,
			MIMEType: img.MIMEType,
			Width:    img.Width,
			Height:   img.Height,
			Size:     img.Size,
			Metadata: img.Metadata,
		}
	}
	return s
}
