package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/dataurl"
	"github.com/fpang/ai-image-editor/internal/history"
	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/fpang/ai-image-editor/internal/store"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

// ResultStore keeps images outside the session store, which then records
// only their keys. *export.S3Exporter satisfies it.
type ResultStore interface {
	Upload(ctx context.Context, key, image string) error
	Fetch(ctx context.Context, key string) (string, error)
	Export(ctx context.Context, sessionID, result string) (string, error)
}

func (s *Server) newWorkflow() *workflow.Workflow {
	return workflow.New(s.ai, workflow.WithRegistry(s.images), workflow.WithConfig(s.modelConfig()))
}

// storeImage returns the reference to persist for an image data URL: its
// key when a ResultStore is configured, the data URL itself otherwise. A
// failed upload returns "" and the image cannot be resumed.
func (s *Server) storeImage(ctx context.Context, sessionID, key, image string) string {
	if s.exporter == nil {
		return image
	}
	if err := s.exporter.Upload(ctx, key, image); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Str("key", key).Msg("Failed to upload image")
		return ""
	}
	return key
}

// loadImage resolves a reference written by storeImage to a data URL.
func (s *Server) loadImage(ctx context.Context, ref string) (string, error) {
	switch {
	case ref == "":
		return "", errors.New("image was not persisted")
	case dataurl.IsImage(ref):
		return ref, nil
	case s.exporter == nil:
		return "", fmt.Errorf("image %s is in a bucket but none is configured", ref)
	}
	return s.exporter.Fetch(ctx, ref)
}

// resume rebuilds a session this server does not hold, because it expired
// from the registry or was served by another instance, from the session
// store. It returns nil when the store has no such session. History is
// restored up to the first step whose image cannot be loaded.
func (s *Server) resume(ctx context.Context, id string) (*session, error) {
	meta, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	wf := s.newWorkflow()
	var original string
	if meta.Source != "" {
		img, err := s.restoreSource(ctx, wf, meta)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", id).Msg("Failed to restore uploaded image")
		} else {
			original = img.URL
		}
	}

	var analysis *chat.Analysis
	if len(meta.Analysis) > 0 {
		analysis = new(chat.Analysis)
		if err := json.Unmarshal(meta.Analysis, analysis); err != nil {
			log.Warn().Err(err).Str("sessionId", id).Msg("Failed to decode persisted analysis")
			analysis = nil
		}
	}

	recs, err := s.store.GetHistory(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("Failed to load persisted history")
	}
	entries := make([]history.Entry, 0, len(recs))
	for i, rec := range recs {
		if rec.Step != i {
			break
		}
		after, err := s.loadImage(ctx, rec.Result)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", id).Int("step", i).Msg("History cut short on resume")
			break
		}
		before := original
		if !rec.FromOriginal && i > 0 {
			before = entries[i-1].AfterURL
		}
		entries = append(entries, history.Entry{
			ID:          rec.EntryID,
			Instruction: rec.Instruction,
			Timestamp:   rec.Timestamp,
			BeforeURL:   before,
			AfterURL:    after,
		})
	}
	wf.Restore(analysis, entries, meta.HistoryIndex)

	sess := s.sessions.adopt(id, time.Unix(meta.CreatedAt, 0), meta.Source, wf)
	log.Info().
		Str("sessionId", id).
		Str("phase", string(sess.wf.State().Phase)).
		Int("historyLength", len(entries)).
		Msg("Session resumed from store")
	return sess, nil
}

func (s *Server) restoreSource(ctx context.Context, wf *workflow.Workflow, meta *store.Session) (*imaging.Image, error) {
	src, err := s.loadImage(ctx, meta.Source)
	if err != nil {
		return nil, err
	}
	mimeType, data, err := dataurl.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	return wf.Upload(meta.Filename, mimeType, data)
}
