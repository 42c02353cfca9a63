package workflow

import "fmt"

// Phase is the workflow's position in the upload → analyze → select →
// generate → result cycle.
type Phase string

const (
	PhaseUpload      Phase = "upload"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseSuggestions Phase = "suggestions"
	PhaseEditing     Phase = "editing"
	PhaseResult      Phase = "result"
	PhaseRefining    Phase = "refining"
)

// Event drives a phase transition.
type Event string

const (
	EventAnalyze      Event = "analyze"
	EventAnalyzeOK    Event = "analyzeOK"
	EventAnalyzeFail  Event = "analyzeFail"
	EventGenerate     Event = "generate"
	EventGenerateOK   Event = "generateOK"
	EventGenerateFail Event = "generateFail"
	EventRefineFail   Event = "refineFail"
	EventStartNewEdit Event = "startNewEdit"
	EventRefine       Event = "refine"
	EventReset        Event = "reset"
)

// transitions lists every legal move. EventReset is accepted from any phase
// and is handled by next.
var transitions = map[Phase]map[Event]Phase{
	PhaseUpload: {
		EventAnalyze: PhaseAnalyzing,
	},
	PhaseAnalyzing: {
		EventAnalyzeOK:   PhaseSuggestions,
		EventAnalyzeFail: PhaseUpload,
	},
	PhaseSuggestions: {
		EventGenerate: PhaseEditing,
		EventAnalyze:  PhaseAnalyzing,
	},
	PhaseEditing: {
		EventGenerateOK:   PhaseResult,
		EventGenerateFail: PhaseSuggestions,
		EventRefineFail:   PhaseRefining,
	},
	PhaseResult: {
		EventGenerate:     PhaseEditing,
		EventStartNewEdit: PhaseSuggestions,
		EventRefine:       PhaseRefining,
	},
	PhaseRefining: {
		EventGenerate: PhaseEditing,
	},
}

// next returns the phase reached from "from" on ev.
func next(from Phase, ev Event) (Phase, error) {
	if ev == EventReset {
		return PhaseUpload, nil
	}
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
}

// CanFire reports whether ev is legal in phase p.
func CanFire(p Phase, ev Event) bool {
	_, err := next(p, ev)
	return err == nil
}
