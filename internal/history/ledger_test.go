package history

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func instructions(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Instruction
	}
	return out
}

func TestRecordTruncatesFuture(t *testing.T) {
	l := New(WithClock(fixedClock()))
	l.Record("A", "orig", "a")
	l.Record("B", "a", "b")
	l.Record("C", "b", "c")

	l.Undo()
	l.Undo()
	if l.Cursor() != 0 {
		t.Fatalf("cursor = %d, want 0", l.Cursor())
	}

	l.Record("D", "a", "d")
	if diff := cmp.Diff([]string{"A", "D"}, instructions(l.Entries())); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if l.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", l.Cursor())
	}
	if l.CanRedo() {
		t.Error("expected no redo after recording")
	}
}

func TestUndoToOriginal(t *testing.T) {
	l := New()
	l.Record("A", "orig", "a")

	if !l.CanUndo() {
		t.Fatal("expected CanUndo")
	}
	if _, ok := l.Undo(); ok {
		t.Error("undo at cursor 0 should leave no current entry")
	}
	if l.Cursor() != -1 {
		t.Errorf("cursor = %d, want -1", l.Cursor())
	}
	if l.CanUndo() {
		t.Error("CanUndo should be false at -1")
	}
	if _, ok := l.Undo(); ok || l.Cursor() != -1 {
		t.Error("undo at -1 should be a no-op")
	}

	e, ok := l.Redo()
	if !ok || e.AfterURL != "a" {
		t.Errorf("Redo() = %+v, %v", e, ok)
	}
}

func TestRedoAtEndIsNoop(t *testing.T) {
	l := New()
	l.Record("A", "orig", "a")
	if l.CanRedo() {
		t.Error("CanRedo should be false at the end")
	}
	if _, ok := l.Redo(); ok {
		t.Error("redo at the end should be a no-op")
	}
	if l.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0", l.Cursor())
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	l := New()
	for _, s := range []string{"A", "B", "C"} {
		l.Record(s, "", s)
	}
	before := l.Cursor()
	l.Undo()
	l.Redo()
	if l.Cursor() != before {
		t.Errorf("cursor = %d, want %d", l.Cursor(), before)
	}
	if e, _ := l.Current(); e.Instruction != "C" {
		t.Errorf("current = %q, want C", e.Instruction)
	}
}

func TestEntryFields(t *testing.T) {
	l := New(WithClock(fixedClock()))
	first := l.Record("A", "orig", "a")
	second := l.Record("B", "a", "b")

	if first.ID == "" || first.ID == second.ID {
		t.Errorf("ids should be unique and non-empty: %q %q", first.ID, second.ID)
	}
	if !second.Timestamp.After(first.Timestamp) {
		t.Error("timestamps should come from the clock")
	}
}

func TestRestoreAndClear(t *testing.T) {
	l := New()
	l.Restore([]Entry{{Instruction: "A"}, {Instruction: "B"}}, 7)
	if l.Cursor() != 1 {
		t.Errorf("cursor = %d, want clamped to 1", l.Cursor())
	}
	l.Clear()
	if l.Len() != 0 || l.Cursor() != -1 {
		t.Errorf("after Clear: len=%d cursor=%d", l.Len(), l.Cursor())
	}
}
