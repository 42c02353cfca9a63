package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/fpang/ai-image-editor/internal/history"
	"github.com/fpang/ai-image-editor/internal/store"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

// fakeResults is an in-memory bucket keyed like the S3 exporter.
type fakeResults struct {
	mu      sync.Mutex
	objects map[string]string
}

func newFakeResults() *fakeResults {
	return &fakeResults{objects: make(map[string]string)}
}

func (f *fakeResults) Upload(_ context.Context, key, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = image
	return nil
}

func (f *fakeResults) Fetch(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	image, ok := f.objects[key]
	if !ok {
		return "", fmt.Errorf("no object %s", key)
	}
	return image, nil
}

func (f *fakeResults) Export(ctx context.Context, sessionID, result string) (string, error) {
	if err := f.Upload(ctx, sessionID+"/edited-image.png", result); err != nil {
		return "", err
	}
	return "https://results.example/" + sessionID, nil
}

func (f *fakeResults) remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
}

func getState(t *testing.T, h *harness, id string) workflow.State {
	t.Helper()
	rec := h.do(http.MethodGet, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status %d: %s", rec.Code, rec.Body)
	}
	var resp sessionResponse
	decode(t, rec, &resp)
	return resp.State
}

func TestSessionResumesOnAnotherServer(t *testing.T) {
	first, second := pngDataURL(t), pngDataURLSize(t, 2, 2)
	ai := &fakeAI{configured: true, analysis: testAnalysis(), result: first}
	h1 := newHarness(t, ai)
	id := h1.createSession()
	base := "/api/sessions/" + id

	if rec := h1.upload(id, "dog.jpg", "image/jpeg", jpegBytes(t, 64, 48)); rec.Code != http.StatusOK {
		t.Fatalf("upload: status %d: %s", rec.Code, rec.Body)
	}
	h1.do(http.MethodPost, base+"/analyze", nil)
	h1.do(http.MethodPost, base+"/selection/s1", nil)
	if rec := h1.do(http.MethodPost, base+"/generate", nil); rec.Code != http.StatusOK {
		t.Fatalf("generate: status %d: %s", rec.Code, rec.Body)
	}
	if rec := h1.do(http.MethodPost, base+"/refine", nil); rec.Code != http.StatusOK {
		t.Fatalf("refine: status %d: %s", rec.Code, rec.Body)
	}
	h1.do(http.MethodPut, base+"/prompt", map[string]any{"customPrompt": "Make it warmer"})
	ai.mu.Lock()
	ai.result = second
	ai.mu.Unlock()
	if rec := h1.do(http.MethodPost, base+"/generate", nil); rec.Code != http.StatusOK {
		t.Fatalf("refined generate: status %d: %s", rec.Code, rec.Body)
	}

	h2 := newHarnessWith(t, ai, h1.store, nil)
	st := getState(t, h2, id)
	if st.Phase != workflow.PhaseResult || st.Result != second || st.HistoryLen != 2 || st.Cursor != 1 {
		t.Fatalf("resumed phase %s, result matches %v, history %d, cursor %d",
			st.Phase, st.Result == second, st.HistoryLen, st.Cursor)
	}
	if st.Image == nil || st.Image.Filename != "dog.jpg" || st.Image.Width != 64 || st.Image.Height != 48 {
		t.Errorf("resumed image = %+v", st.Image)
	}
	if st.Analysis == nil || len(st.Analysis.Suggestions) != 2 || st.Analysis.Suggestions[1].Region == nil {
		t.Errorf("resumed analysis = %+v", st.Analysis)
	}

	rec := h2.do(http.MethodGet, base+"/history", nil)
	var hist struct {
		Entries []history.Entry `json:"entries"`
	}
	decode(t, rec, &hist)
	if len(hist.Entries) != 2 {
		t.Fatalf("resumed history has %d entries", len(hist.Entries))
	}
	if e := hist.Entries[0]; e.Instruction != "Brighten the shadows" || e.BeforeURL != st.Image.URL || e.AfterURL != first {
		t.Errorf("first entry = %q from %q", e.Instruction, e.BeforeURL)
	}
	if e := hist.Entries[1]; e.Instruction != "Make it warmer" || e.BeforeURL != first {
		t.Errorf("second entry should refine the first result, got %q", e.Instruction)
	}

	rec = h2.do(http.MethodPost, base+"/undo", nil)
	var undone sessionResponse
	decode(t, rec, &undone)
	if rec.Code != http.StatusOK || undone.State.Result != first {
		t.Errorf("undo after resume: status %d, cursor %d", rec.Code, undone.State.Cursor)
	}
	if rec := h2.do(http.MethodGet, base+"/download", nil); rec.Code != http.StatusOK {
		t.Errorf("download after resume: status %d", rec.Code)
	}
	if n := h2.srv.sessions.len(); n != 1 {
		t.Errorf("second server holds %d sessions, want 1", n)
	}
	if rec := h2.do(http.MethodGet, "/api/sessions/unknown", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", rec.Code)
	}
}

func TestSessionResumesAfterExpiry(t *testing.T) {
	ai := &fakeAI{configured: true, analysis: testAnalysis()}
	h := newHarness(t, ai)
	id := h.createSession()
	h.upload(id, "dog.jpg", "image/jpeg", jpegBytes(t, 32, 24))
	h.do(http.MethodPost, "/api/sessions/"+id+"/analyze", nil)

	h.srv.sessions.delete(id)
	if h.srv.images.Len() != 0 {
		t.Fatalf("expired session still holds %d images", h.srv.images.Len())
	}

	st := getState(t, h, id)
	if st.Phase != workflow.PhaseSuggestions || st.Image == nil || st.Analysis == nil {
		t.Errorf("resumed state = phase %s image %v analysis %v", st.Phase, st.Image != nil, st.Analysis != nil)
	}
	if rec := h.do(http.MethodPost, "/api/sessions/"+id+"/selection/s2", nil); rec.Code != http.StatusOK {
		t.Errorf("toggle after resume: status %d", rec.Code)
	}
}

func TestResumeLoadsImagesFromResultStore(t *testing.T) {
	ctx := context.Background()
	results := newFakeResults()
	mem := store.NewMemoryStore()
	ai := &fakeAI{configured: true, analysis: testAnalysis(), result: pngDataURL(t)}
	h1 := newHarnessWith(t, ai, mem, results)
	id := h1.createSession()
	base := "/api/sessions/" + id

	h1.upload(id, "dog.jpg", "image/jpeg", jpegBytes(t, 64, 48))
	h1.do(http.MethodPost, base+"/analyze", nil)
	h1.do(http.MethodPost, base+"/selection/s1", nil)
	if rec := h1.do(http.MethodPost, base+"/generate", nil); rec.Code != http.StatusOK {
		t.Fatalf("generate: status %d: %s", rec.Code, rec.Body)
	}

	meta, err := mem.GetSession(ctx, id)
	if err != nil || meta == nil || meta.Source != id+"/original.jpg" {
		t.Fatalf("persisted session = %+v, %v", meta, err)
	}
	recs, err := mem.GetHistory(ctx, id)
	if err != nil || len(recs) != 1 || recs[0].Result != id+"/history/step-01.png" || !recs[0].FromOriginal {
		t.Fatalf("persisted history = %+v, %v", recs, err)
	}

	h2 := newHarnessWith(t, ai, mem, results)
	st := getState(t, h2, id)
	if st.Phase != workflow.PhaseResult || st.Result != ai.result || st.Image == nil || st.Image.Width != 64 {
		t.Errorf("resumed phase %s, image %+v", st.Phase, st.Image)
	}

	results.remove(id + "/history/step-01.png")
	h3 := newHarnessWith(t, ai, mem, results)
	st = getState(t, h3, id)
	if st.Phase != workflow.PhaseSuggestions || st.HistoryLen != 0 || st.Result != "" || st.Image == nil {
		t.Errorf("missing result: phase %s, history %d", st.Phase, st.HistoryLen)
	}

	// Without the bucket the keys cannot be resolved.
	h4 := newHarnessWith(t, ai, mem, nil)
	st = getState(t, h4, id)
	if st.Phase != workflow.PhaseUpload || st.Image != nil {
		t.Errorf("no bucket: phase %s, image %+v", st.Phase, st.Image)
	}
}
