package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/workflow"
)

// session is one live editing session.
type session struct {
	id      string
	created time.Time
	wf      *workflow.Workflow

	mu sync.Mutex
	// source is the persisted reference to the uploaded image.
	source string
}

func (s *session) setSource(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = ref
}

func (s *session) sourceRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// sessions holds live workflows keyed by id. Idle sessions expire after the
// TTL; expiry and deletion reset the workflow, releasing its image handle.
type sessions struct {
	items *cache.Cache
}

func newSessions(ttl time.Duration) *sessions {
	items := cache.New(ttl, ttl/4)
	items.OnEvicted(func(id string, v any) {
		v.(*session).wf.Reset()
		log.Debug().Str("sessionId", id).Msg("Session released")
	})
	return &sessions{items: items}
}

func (s *sessions) create(wf *workflow.Workflow) *session {
	sess := &session{id: uuid.NewString(), created: time.Now(), wf: wf}
	s.items.SetDefault(sess.id, sess)
	return sess
}

// adopt registers a session rebuilt from the store under its original id.
// When a concurrent request adopted the id first, that session is returned
// and wf is reset.
func (s *sessions) adopt(id string, created time.Time, source string, wf *workflow.Workflow) *session {
	sess := &session{id: id, created: created, wf: wf, source: source}
	if err := s.items.Add(id, sess, cache.DefaultExpiration); err != nil {
		if existing, ok := s.get(id); ok {
			wf.Reset()
			return existing
		}
		s.items.SetDefault(id, sess)
	}
	return sess
}

// get returns a live session and extends its expiry.
func (s *sessions) get(id string) (*session, bool) {
	v, ok := s.items.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*session)
	s.items.SetDefault(id, sess)
	return sess, true
}

func (s *sessions) delete(id string) bool {
	if _, ok := s.items.Get(id); !ok {
		return false
	}
	s.items.Delete(id)
	return true
}

func (s *sessions) len() int {
	return s.items.ItemCount()
}
