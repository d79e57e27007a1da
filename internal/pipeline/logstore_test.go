package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPqStringArray_FormatsPostgresArrayLiteral(t *testing.T) {
	got := pqStringArray([]string{"1", "2\"3"})

	assert.Equal(t, `{"1","2\"3"}`, got)
}

func TestPqStringArray_EmptySlice(t *testing.T) {
	assert.Equal(t, "{}", pqStringArray(nil))
}

func TestSucceededState_MatchesStateCleaned(t *testing.T) {
	assert.Equal(t, string(StateCleaned), succeededState)
}
