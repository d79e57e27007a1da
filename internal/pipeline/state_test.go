package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStateTransition_HappyPath(t *testing.T) {
	path := []State{
		StateInit, StateArchived, StateDeduped, StateStaged, StateRead,
		StateValidated, StateWritten, StateAudited, StatePublished, StateCleaned,
	}

	for i := 0; i < len(path)-1; i++ {
		require.NoError(t, ValidateStateTransition(path[i], path[i+1]))
	}
}

func TestValidateStateTransition_AnyStateCanQuarantine(t *testing.T) {
	nonTerminal := []State{
		StateInit, StateArchived, StateDeduped, StateStaged, StateRead,
		StateValidated, StateWritten, StateAudited, StatePublished,
	}

	for _, s := range nonTerminal {
		assert.NoError(t, ValidateStateTransition(s, StateQuarantined))
	}
}

func TestValidateStateTransition_RejectsSkippingAhead(t *testing.T) {
	err := ValidateStateTransition(StateInit, StateStaged)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestValidateStateTransition_RejectsBackward(t *testing.T) {
	err := ValidateStateTransition(StateValidated, StateRead)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestValidateStateTransition_TerminalStatesAreImmutable(t *testing.T) {
	err := ValidateStateTransition(StateCleaned, StateArchived)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	err = ValidateStateTransition(StateQuarantined, StateArchived)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestMachine_TransitionAdvancesState(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, StateInit, m.Current())

	require.NoError(t, m.Transition(StateArchived))
	assert.Equal(t, StateArchived, m.Current())

	require.NoError(t, m.Transition(StateDeduped))
	assert.Equal(t, StateDeduped, m.Current())
}

func TestMachine_TransitionRejectsInvalidMove(t *testing.T) {
	m := NewMachine()

	err := m.Transition(StateWritten)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	// state unchanged after a rejected transition
	assert.Equal(t, StateInit, m.Current())
}

func TestMachine_QuarantineFromAnyPoint(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(StateArchived))
	require.NoError(t, m.Transition(StateDeduped))

	require.NoError(t, m.Transition(StateQuarantined))
	assert.True(t, m.Current().IsTerminal())
}
