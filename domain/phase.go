package domain

type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseClueGiving Phase = "clue_giving"
	PhaseGuessing   Phase = "guessing"
	PhaseReveal     Phase = "reveal"
	PhaseComplete   Phase = "complete"

	// Recognised on the wire but never produced by the state machine.
	PhasePsychicViewing Phase = "psychic_viewing"
	PhasePredicting     Phase = "predicting"

	PhaseUnknown Phase = "unknown"
)

var phaseOrder = map[Phase]int{
	PhaseWaiting:        0,
	PhasePsychicViewing: 1,
	PhaseClueGiving:     2,
	PhaseGuessing:       3,
	PhasePredicting:     4,
	PhaseReveal:         5,
	PhaseComplete:       6,
}

// ParsePhase never fails: unrecognised values map to PhaseUnknown, which
// consumers render as waiting.
func ParsePhase(s string) Phase {
	p := Phase(s)
	if _, ok := phaseOrder[p]; ok {
		return p
	}
	return PhaseUnknown
}

// Active reports whether the phase counts toward the one-active-round-per-room rule.
func (p Phase) Active() bool {
	return p == PhaseClueGiving || p == PhaseGuessing || p == PhaseReveal
}

// After reports whether p comes strictly later than other in the round sequence.
func (p Phase) After(other Phase) bool {
	a, ok := phaseOrder[p]
	if !ok {
		return false
	}
	b, ok := phaseOrder[other]
	if !ok {
		return false
	}
	return a > b
}

// ActivePhases lists the phases of a running round.
func ActivePhases() []Phase {
	return []Phase{PhaseClueGiving, PhaseGuessing, PhaseReveal}
}
