package pipeline

import "fmt"

// State is a PipelineRunner lifecycle state.
type State string

const (
	StateInit       State = "Init"
	StateArchived   State = "Archived"
	StateDeduped    State = "Deduped"
	StateStaged     State = "Staged"
	StateRead       State = "Read"
	StateValidated  State = "Validated"
	StateWritten    State = "Written"
	StateAudited    State = "Audited"
	StatePublished  State = "Published"
	StateCleaned    State = "Cleaned"
	StateQuarantined State = "Quarantined"
)

// validTransitions enumerates the ordered happy path. Any state may transition to
// StateQuarantined; StateCleaned and StateQuarantined are terminal.
var validTransitions = map[State]State{
	StateInit:      StateArchived,
	StateArchived:  StateDeduped,
	StateDeduped:   StateStaged,
	StateStaged:    StateRead,
	StateRead:      StateValidated,
	StateValidated: StateWritten,
	StateWritten:   StateAudited,
	StateAudited:   StatePublished,
	StatePublished: StateCleaned,
}

// IsTerminal reports whether the state is a terminal state for the PipelineRunner.
func (s State) IsTerminal() bool {
	return s == StateCleaned || s == StateQuarantined
}

// ValidateStateTransition validates a PipelineRunner state transition.
//
// Valid transitions follow the ordered happy path Init → Archived → Deduped → Staged →
// Read → Validated → Written → Audited → Published → Cleaned. Any non-terminal state may
// transition to Quarantined at any point (failure or cancellation). Terminal states
// (Cleaned, Quarantined) do not transition further.
func ValidateStateTransition(from, to State) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal, cannot transition to %s", ErrInvalidStateTransition, from, to)
	}

	if to == StateQuarantined {
		return nil
	}

	next, ok := validTransitions[from]
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}

	return nil
}

// Machine tracks the current state of a single PipelineRunner and enforces legal
// transitions. Not safe for concurrent use — a PipelineRunner owns exactly one file at
// a time.
type Machine struct {
	current State
}

// NewMachine creates a state machine starting at StateInit.
func NewMachine() *Machine {
	return &Machine{current: StateInit}
}

// Current returns the current state.
func (m *Machine) Current() State {
	return m.current
}

// Transition moves the machine to the given state, validating it is legal.
func (m *Machine) Transition(to State) error {
	if err := ValidateStateTransition(m.current, to); err != nil {
		return err
	}

	m.current = to

	return nil
}
