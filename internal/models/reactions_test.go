package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactions_SetMovesUserBetweenBuckets(t *testing.T) {
	r := Reactions{}

	assert.Equal(t, "", r.Set(7, "👍"))
	assert.Equal(t, "👍", r.Set(7, "❤️"))

	assert.False(t, r["❤️"].Contains(0))
	assert.True(t, r["❤️"].Contains(7))
	_, ok := r["👍"]
	assert.False(t, ok, "emptied bucket must be pruned")
	assert.Equal(t, []string{"❤️"}, r.Emojis())
}

func TestReactions_SetIsIdempotent(t *testing.T) {
	r := Reactions{}
	r.Set(1, "🎉")
	assert.Equal(t, "🎉", r.Set(1, "🎉"))
	assert.Equal(t, IDSet{1}, r["🎉"])
}

func TestReactions_ClearKeepsOtherUsers(t *testing.T) {
	r := Reactions{}
	r.Set(1, "👍")
	r.Set(2, "👍")

	assert.Equal(t, "👍", r.Clear(1))
	assert.Equal(t, IDSet{2}, r["👍"])
	assert.Equal(t, "", r.Clear(1))
	assert.Equal(t, "", r.EmojiOf(1))
	assert.Equal(t, "👍", r.EmojiOf(2))
}

func TestReactions_UnmarshalNormalizes(t *testing.T) {
	var r Reactions
	input := `{"👍":["1","2"],"😂":[],"🔥":"2,3"}`
	require.NoError(t, json.Unmarshal([]byte(input), &r))

	assert.NotContains(t, r, "😂")
	// user 2 appears twice; exactly one bucket keeps it
	count := 0
	for _, bucket := range r {
		if bucket.Contains(2) {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.True(t, r["👍"].Contains(1))
	assert.True(t, r["🔥"].Contains(3))
}

func TestReactions_UnmarshalEncodedString(t *testing.T) {
	var r Reactions
	require.NoError(t, json.Unmarshal([]byte(`"{\"❤️\":[4]}"`), &r))
	assert.Equal(t, IDSet{4}, r["❤️"])

	require.NoError(t, json.Unmarshal([]byte(`""`), &r))
	assert.Empty(t, r)
}
