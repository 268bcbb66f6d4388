package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillgame/quill/backend/go/internal/v1/game"
)

func TestKnown(t *testing.T) {
	for _, typ := range []Type{
		TypeStart, TypeConnect, TypeMemberJoin, TypeMemberLeave,
		TypeOwnerChange, TypeGameStateChange, TypeMessage, TypeCorrectGuess,
		TypeDrawing, TypeTurnStart, TypeTurnEnd, TypeError,
	} {
		assert.True(t, Known(typ), "expected %q to be a known type", typ)
	}

	assert.False(t, Known("shutdown"))
	assert.False(t, Known(""))
	assert.False(t, Known("MESSAGE"), "wire names are lowercase")
}

func TestEnvelopeShape(t *testing.T) {
	member := game.Member{UserID: uuid.New(), Username: "ada"}

	data, err := json.Marshal(NewMemberJoin(member))
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "event_type")
	assert.Contains(t, decoded, "data")
	assert.JSONEq(t, `"member_join"`, string(decoded["event_type"]))
}

func TestNewError(t *testing.T) {
	evt := NewError("You do not own this room")

	assert.Equal(t, TypeError, evt.Type)
	body, ok := evt.Data.(MessageResponse)
	require.True(t, ok)
	assert.Equal(t, "You do not own this room", body.Message)
}

func TestNewTurnStart(t *testing.T) {
	drawer := game.Member{UserID: uuid.New(), Username: "ada"}
	evt := NewTurnStart(drawer, "apple")

	assert.Equal(t, TypeTurnStart, evt.Type)
	payload, ok := evt.Data.(TurnStartData)
	require.True(t, ok)
	assert.Equal(t, drawer, payload.User)
	assert.Equal(t, "apple", payload.Answer)
}

func TestNewTurnEnd(t *testing.T) {
	evt := NewTurnEnd(3)

	assert.Equal(t, TypeTurnEnd, evt.Type)
	payload, ok := evt.Data.(TurnEndData)
	require.True(t, ok)
	assert.Equal(t, 3, payload.Turn)
}
