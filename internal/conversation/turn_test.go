package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecent(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Text: "1"},
		{Role: RoleAssistant, Text: "2"},
		{Role: RoleUser, Text: "3"},
	}

	assert.Equal(t, turns[1:], Recent(turns, 2))
	assert.Equal(t, turns, Recent(turns, 10))
	assert.Nil(t, Recent(turns, 0))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(nil))
	assert.True(t, Valid([]Turn{{Role: RoleUser, Text: "hi"}}))
	assert.False(t, Valid([]Turn{{Role: "system", Text: "hi"}}))
	assert.False(t, Valid([]Turn{{Role: RoleAssistant}}))
}
