package pipeline

import "log/slog"

// runState tracks where a document run is in its retry/fallback
// lifecycle. Transitions only move forward: once a run has fallen back
// it never returns to the primary algorithm, and a terminal run never
// moves again.
type runState int

const (
	// stateAttempting is the first pass of the selected path's primary
	// algorithm.
	stateAttempting runState = iota
	// stateRetrying is a repeat pass after a quality-gate rejection.
	stateRetrying
	// stateFallenBack means the primary algorithm was abandoned: either
	// the structural path switched to the OCR path, or the semantic
	// chunker was replaced by the fixed-window splitter.
	stateFallenBack
	// stateTerminal means a final status (completed, degraded, failed)
	// has been decided.
	stateTerminal
)

func (s runState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateRetrying:
		return "retrying"
	case stateFallenBack:
		return "fallen_back"
	case stateTerminal:
		return "terminal"
	}
	return "unknown"
}

// allowed transitions. Self-transitions are legal for retrying (another
// attempt) and fallen_back (path switch followed by splitter fallback).
var transitions = map[runState][]runState{
	stateAttempting: {stateRetrying, stateFallenBack, stateTerminal},
	stateRetrying:   {stateRetrying, stateFallenBack, stateTerminal},
	stateFallenBack: {stateFallenBack, stateTerminal},
	stateTerminal:   {},
}

// machine is the per-document state holder. Not safe for concurrent
// use; each document run owns exactly one.
type machine struct {
	docID  string
	state  runState
	logger *slog.Logger
}

func newMachine(docID string, logger *slog.Logger) *machine {
	return &machine{docID: docID, state: stateAttempting, logger: logger}
}

// to advances the machine. Invalid transitions indicate a pipeline bug;
// they are logged and refused rather than panicking mid-document.
func (m *machine) to(next runState) {
	for _, ok := range transitions[m.state] {
		if next == ok {
			m.logger.Debug("state transition",
				"document_id", m.docID,
				"from", m.state.String(),
				"to", next.String())
			m.state = next
			return
		}
	}
	m.logger.Error("refused invalid state transition",
		"document_id", m.docID,
		"from", m.state.String(),
		"to", next.String())
}
