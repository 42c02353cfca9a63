package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/dataurl"
	"github.com/fpang/ai-image-editor/internal/export"
	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/fpang/ai-image-editor/internal/overlay"
	"github.com/fpang/ai-image-editor/internal/store"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

type ctxKey struct{}

// withSession resolves {id} to a live session, resuming it from the
// session store when this server does not hold it, or answers 404.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, ok := s.sessions.get(id)
		if !ok {
			var err error
			if sess, err = s.resume(r.Context(), id); err != nil {
				log.Error().Err(err).Str("sessionId", id).Msg("Failed to resume session")
				httpError(w, http.StatusInternalServerError, "failed to load session", err.Error())
				return
			}
		}
		if sess == nil {
			httpError(w, http.StatusNotFound, "session not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session {
	return r.Context().Value(ctxKey{}).(*session)
}

type sessionResponse struct {
	ID    string         `json:"id"`
	State workflow.State `json:"state"`
}

// Highlight places a suggestion's region over the displayed image.
type Highlight struct {
	SuggestionID string              `json:"suggestionId"`
	Label        string              `json:"label"`
	Box          overlay.PercentRect `json:"box"`
}

func highlights(a *chat.Analysis) []Highlight {
	out := []Highlight{}
	if a == nil {
		return out
	}
	for _, sg := range a.Suggestions {
		if sg.Region == nil {
			continue
		}
		out = append(out, Highlight{SuggestionID: sg.ID, Label: sg.Label, Box: overlay.ToPercent(*sg.Region)})
	}
	return out
}

// POST /api/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	wf := s.newWorkflow()
	sess := s.sessions.create(wf)
	s.persist(r.Context(), sess)

	log.Info().Str("sessionId", sess.id).Msg("Session created")
	respondJSON(w, http.StatusCreated, sessionResponse{ID: sess.id, State: wf.State()})
}

// GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	respondJSON(w, http.StatusOK, sessionResponse{ID: sess.id, State: sess.wf.State()})
}

// DELETE /api/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	s.sessions.delete(sess.id)
	if err := s.store.DeleteSession(r.Context(), sess.id); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.id).Msg("Failed to delete persisted session")
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/sessions/{id}/image (multipart field "file")
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, imaging.ErrFileTooLarge, http.StatusBadRequest)
			return
		}
		httpError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, imaging.MaxUploadSize+1))
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	img, err := sess.wf.Upload(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	s.persistUpload(r.Context(), sess, img)
	respondJSON(w, http.StatusOK, sessionResponse{ID: sess.id, State: sess.wf.State()})
}

// POST /api/sessions/{id}/browse
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	path, err := s.picker()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "file picker failed", err.Error())
		return
	}
	if path == "" {
		respondJSON(w, http.StatusOK, map[string]any{"canceled": true, "state": sess.wf.State()})
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		httpError(w, http.StatusBadRequest, "selected file is not readable")
		return
	}
	if info.Size() > imaging.MaxUploadSize {
		writeError(w, imaging.ErrFileTooLarge, http.StatusBadRequest)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to read file", err.Error())
		return
	}
	img, err := sess.wf.Upload(filepath.Base(path), "", data)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	s.persistUpload(r.Context(), sess, img)
	respondJSON(w, http.StatusOK, sessionResponse{ID: sess.id, State: sess.wf.State()})
}

// GET /api/sessions/{id}/thumbnail?max=256
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	img := sess.wf.Image()
	if img == nil {
		writeError(w, workflow.ErrNoImage, http.StatusBadRequest)
		return
	}
	maxDim := 256
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 2048 {
			httpError(w, http.StatusBadRequest, "max must be between 16 and 2048")
			return
		}
		maxDim = n
	}
	data, mimeType, err := imaging.Thumbnail(img, maxDim)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Write(data)
}

// POST /api/sessions/{id}/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	analysis, err := sess.wf.Analyze(r.Context())
	s.persist(r.Context(), sess)
	if err != nil {
		writeError(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"analysis":   analysis,
		"highlights": highlights(analysis),
		"state":      sess.wf.State(),
	})
}

// GET /api/sessions/{id}/highlights
func (s *Server) handleHighlights(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r).wf.State()
	respondJSON(w, http.StatusOK, map[string]any{"highlights": highlights(st.Analysis)})
}

// POST /api/sessions/{id}/selection/{suggestionId}
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := chi.URLParam(r, "suggestionId")
	st := sess.wf.State()
	if _, ok := st.Analysis.Suggestion(id); !ok {
		httpError(w, http.StatusNotFound, "suggestion not found")
		return
	}
	selected, err := sess.wf.Toggle(id)
	if err != nil {
		writeError(w, err, http.StatusConflict)
		return
	}
	st = sess.wf.State()
	respondJSON(w, http.StatusOK, map[string]any{
		"selected":      selected,
		"selectedEdits": st.Selected,
		"prompt":        st.Prompt,
	})
}

// GET /api/sessions/{id}/prompt
func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"prompt": sessionFrom(r).wf.Prompt()})
}

type promptRequest struct {
	CustomPrompt string `json:"customPrompt"`
}

// PUT /api/sessions/{id}/prompt
func (s *Server) handlePutPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess := sessionFrom(r)
	if err := sess.wf.SetFreeText(req.CustomPrompt); err != nil {
		writeError(w, err, http.StatusConflict)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"prompt": sess.wf.Prompt()})
}

// PUT /api/sessions/{id}/config
func (s *Server) handleSessionConfig(w http.ResponseWriter, r *http.Request) {
	var patch chat.ConfigPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess := sessionFrom(r)
	cfg := sess.wf.Config().Apply(patch)
	if err := sess.wf.SetConfig(cfg); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// POST /api/sessions/{id}/generate
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	result, err := sess.wf.Generate(r.Context())
	if err != nil {
		s.persist(r.Context(), sess)
		writeError(w, err, http.StatusBadGateway)
		return
	}
	s.persistGeneration(r.Context(), sess)
	respondJSON(w, http.StatusOK, map[string]any{
		"editedImage": result,
		"state":       sess.wf.State(),
	})
}

// POST /api/sessions/{id}/instructions
func (s *Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	plan, err := sessionFrom(r).wf.EditPlan(r.Context())
	if err != nil {
		writeError(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"instructions": plan})
}

// POST /api/sessions/{id}/new-edit
func (s *Server) handleNewEdit(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(wf *workflow.Workflow) error { return wf.StartNewEdit() })
}

// POST /api/sessions/{id}/refine
func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(wf *workflow.Workflow) error { return wf.Refine() })
}

// POST /api/sessions/{id}/undo
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(wf *workflow.Workflow) error {
		_, err := wf.Undo()
		return err
	})
}

// POST /api/sessions/{id}/redo
func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(wf *workflow.Workflow) error {
		_, err := wf.Redo()
		return err
	})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(*workflow.Workflow) error) {
	sess := sessionFrom(r)
	if err := fn(sess.wf); err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	st := sess.wf.State()
	if err := s.store.UpdateSessionPhase(r.Context(), sess.id, string(st.Phase), st.Cursor); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.id).Msg("Failed to persist session phase")
	}
	respondJSON(w, http.StatusOK, sessionResponse{ID: sess.id, State: st})
}

// GET /api/sessions/{id}/download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	result := sessionFrom(r).wf.Result()
	if result == "" {
		writeError(w, workflow.ErrNoResult, http.StatusBadRequest)
		return
	}
	decoded, err := export.DecodeDataURL(result)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", decoded.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.DefaultFilename))
	w.Header().Set("Content-Length", strconv.Itoa(len(decoded.Data)))
	w.Write(decoded.Data)
}

// POST /api/sessions/{id}/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		httpError(w, http.StatusNotImplemented, "result export is not configured")
		return
	}
	sess := sessionFrom(r)
	result := sess.wf.Result()
	if result == "" {
		writeError(w, workflow.ErrNoResult, http.StatusBadRequest)
		return
	}
	url, err := s.exporter.Export(r.Context(), sess.id, result)
	if err != nil {
		httpError(w, http.StatusBadGateway, "failed to export result", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"downloadUrl": url,
		"filename":    export.DefaultFilename,
		"expiresIn":   int(export.DefaultURLExpiry.Seconds()),
	})
}

// GET /api/sessions/{id}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	st := sess.wf.State()
	respondJSON(w, http.StatusOK, map[string]any{
		"entries":      sess.wf.History(),
		"historyIndex": st.Cursor,
		"canUndo":      st.CanUndo,
		"canRedo":      st.CanRedo,
	})
}

// GET /api/sessions/{id}/history.zip
func (s *Server) handleHistoryZip(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	entries := sess.wf.History()
	if len(entries) == 0 {
		writeError(w, workflow.ErrNoResult, http.StatusBadRequest)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteHistoryBundle(&buf, entries); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to build history bundle", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="edit-history.zip"`)
	w.Write(buf.Bytes())
}

// persistUpload stores a newly admitted image, records the summary and
// drops the history of the previous image.
func (s *Server) persistUpload(ctx context.Context, sess *session, img *imaging.Image) {
	key := export.SourceKey(sess.id, img.Filename)
	sess.setSource(s.storeImage(ctx, sess.id, key, dataurl.Encode(img.MIMEType, img.Data)))
	s.persist(ctx, sess)
	if _, err := s.store.TruncateHistory(ctx, sess.id, 0); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.id).Msg("Failed to clear persisted history")
	}
}

// persist writes the session summary. Failures are logged; the live
// session stays authoritative.
func (s *Server) persist(ctx context.Context, sess *session) {
	st := sess.wf.State()
	meta := &store.Session{
		ID:           sess.id,
		Phase:        string(st.Phase),
		Source:       sess.sourceRef(),
		HistoryIndex: st.Cursor,
		CreatedAt:    sess.created.Unix(),
	}
	if st.Analysis != nil {
		if raw, err := json.Marshal(st.Analysis); err == nil {
			meta.Analysis = raw
		}
	}
	if st.Image != nil {
		meta.Filename = st.Image.Filename
		meta.MIMEType = st.Image.MIMEType
		meta.Width = st.Image.Width
		meta.Height = st.Image.Height
	}
	if err := s.store.PutSession(ctx, meta); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.id).Msg("Failed to persist session")
	}
}

// persistGeneration records the newest history entry, dropping persisted
// entries it replaced. With an exporter the result is uploaded and the
// record holds its key.
func (s *Server) persistGeneration(ctx context.Context, sess *session) {
	s.persist(ctx, sess)

	entries := sess.wf.History()
	step := sess.wf.State().Cursor
	if step < 0 || step >= len(entries) {
		return
	}
	e := entries[step]
	rec := &store.HistoryRecord{
		Step:         step,
		EntryID:      e.ID,
		Instruction:  e.Instruction,
		Timestamp:    e.Timestamp,
		Result:       s.storeImage(ctx, sess.id, export.StepKey(sess.id, step), e.AfterURL),
		FromOriginal: step == 0 || e.BeforeURL != entries[step-1].AfterURL,
	}

	if _, err := s.store.TruncateHistory(ctx, sess.id, step); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.id).Msg("Failed to truncate persisted history")
	}
	if err := s.store.PutHistory(ctx, sess.id, rec); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.id).Msg("Failed to persist history")
	}
}
