package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process SessionStore for the CLI and the local web
// server. Sessions expire after SessionTTL of inactivity.
type MemoryStore struct {
	mu       sync.Mutex
	sessions *cache.Cache
	now      func() time.Time
}

type memSession struct {
	meta    Session
	history map[int]HistoryRecord
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: cache.New(SessionTTL, 10*time.Minute),
		now:      time.Now,
	}
}

func (m *MemoryStore) load(sessionID string) (*memSession, bool) {
	v, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*memSession), true
}

// touch re-inserts the session to extend its expiry.
func (m *MemoryStore) touch(sessionID string, s *memSession) {
	m.sessions.SetDefault(sessionID, s)
}

func (m *MemoryStore) PutSession(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().Unix()
	if session.CreatedAt == 0 {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	s, ok := m.load(session.ID)
	if !ok {
		s = &memSession{history: make(map[int]HistoryRecord)}
	}
	s.meta = *session
	m.touch(session.ID, s)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(sessionID)
	if !ok || s.meta.ID == "" {
		return nil, nil
	}
	meta := s.meta
	return &meta, nil
}

func (m *MemoryStore) UpdateSessionPhase(_ context.Context, sessionID, phase string, historyIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(sessionID)
	if !ok {
		s = &memSession{meta: Session{ID: sessionID, CreatedAt: m.now().Unix()}, history: make(map[int]HistoryRecord)}
	}
	s.meta.Phase = phase
	s.meta.HistoryIndex = historyIndex
	s.meta.UpdatedAt = m.now().Unix()
	m.touch(sessionID, s)
	return nil
}

func (m *MemoryStore) PutHistory(_ context.Context, sessionID string, rec *HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(sessionID)
	if !ok {
		s = &memSession{history: make(map[int]HistoryRecord)}
	}
	s.history[rec.Step] = *rec
	m.touch(sessionID, s)
	return nil
}

func (m *MemoryStore) GetHistory(_ context.Context, sessionID string) ([]*HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(sessionID)
	if !ok {
		return nil, nil
	}
	records := make([]*HistoryRecord, 0, len(s.history))
	for _, rec := range s.history {
		r := rec
		records = append(records, &r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Step < records[j].Step })
	return records, nil
}

func (m *MemoryStore) TruncateHistory(_ context.Context, sessionID string, fromStep int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(sessionID)
	if !ok {
		return nil, nil
	}
	var steps []int
	for step := range s.history {
		if step >= fromStep {
			delete(s.history, step)
			steps = append(steps, step)
		}
	}
	sort.Ints(steps)
	return steps, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Delete(sessionID)
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	return m.sessions.ItemCount()
}
