package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, Chunk([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, Chunk([]string{"a", "b"}, 0))
	assert.Empty(t, Chunk(nil, 3))
}

func TestOptions(t *testing.T) {
	assert.Nil(t, Options(nil, 2))

	m := Options([]string{"10:00", "11:00", "12:00"}, 2)
	require.NotNil(t, m)
	assert.True(t, m.ResizeKeyboard)
	assert.True(t, m.OneTimeKeyboard)
	require.Len(t, m.ReplyKeyboard, 2)
	assert.Equal(t, "10:00", m.ReplyKeyboard[0][0].Text)
	assert.Equal(t, "12:00", m.ReplyKeyboard[1][0].Text)
}

func TestRemoveKeyboard(t *testing.T) {
	assert.True(t, RemoveKeyboard().RemoveKeyboard)
}
