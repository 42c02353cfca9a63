// Package history keeps the linear undo/redo ledger of generated edits.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one generation: the instruction sent and the images before and
// after it.
type Entry struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	Timestamp   time.Time `json:"timestamp"`
	BeforeURL   string    `json:"beforeUrl"`
	AfterURL    string    `json:"afterUrl"`
}

// Ledger is a linear list of entries with a cursor. The cursor is -1 when
// no edit is selected (the original image is shown) and otherwise indexes
// the entry currently displayed. A Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
	cursor  int
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{cursor: -1, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record drops every entry after the cursor, appends a new entry and moves
// the cursor onto it.
func (l *Ledger) Record(instruction, beforeURL, afterURL string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:          uuid.NewString(),
		Instruction: instruction,
		Timestamp:   l.now(),
		BeforeURL:   beforeURL,
		AfterURL:    afterURL,
	}
	l.entries = append(l.entries[:l.cursor+1], e)
	l.cursor = len(l.entries) - 1
	return e
}

// Restore replaces the ledger contents, e.g. with entries loaded from a
// session store. The cursor is clamped to [-1, len-1].
func (l *Ledger) Restore(entries []Entry, cursor int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]Entry(nil), entries...)
	l.cursor = max(-1, min(cursor, len(l.entries)-1))
}

// Undo moves the cursor back one step. It returns the entry now current, or
// false when the cursor reached -1 (no edited result) or was already there.
func (l *Ledger) Undo() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor < 0 {
		return Entry{}, false
	}
	l.cursor--
	return l.currentLocked()
}

// Redo moves the cursor forward one step. At the end of the ledger it is a
// no-op and returns false.
func (l *Ledger) Redo() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor >= len(l.entries)-1 {
		return Entry{}, false
	}
	l.cursor++
	return l.currentLocked()
}

// CanUndo reports whether an entry is currently selected.
func (l *Ledger) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor >= 0
}

// CanRedo reports whether there is an entry after the cursor.
func (l *Ledger) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.entries)-1
}

// Current returns the entry at the cursor.
func (l *Ledger) Current() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLocked()
}

func (l *Ledger) currentLocked() (Entry, bool) {
	if l.cursor < 0 {
		return Entry{}, false
	}
	return l.entries[l.cursor], true
}

// Entries returns a copy of every entry, oldest first.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Cursor returns the current cursor position.
func (l *Ledger) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear removes every entry and resets the cursor.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.cursor = -1
}
