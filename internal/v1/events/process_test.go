package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillgame/quill/backend/go/internal/v1/game"
)

func newTestRoom(t *testing.T) (*game.Room, game.Member) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	owner := game.Member{UserID: uuid.New(), Username: "owner"}
	room := game.New(rdb, owner)
	require.NoError(t, room.Save(context.Background()))
	return room, owner
}

func rawMessage(text string) []byte {
	return []byte(fmt.Sprintf(`{"event_type":"message","data":{"message":%q}}`, text))
}

func TestProcess_StartByOwner(t *testing.T) {
	room, owner := newTestRoom(t)
	ctx := context.Background()

	evt, err := Process(ctx, []byte(`{"event_type":"start","data":{}}`), room, owner)
	require.NoError(t, err)

	assert.Equal(t, TypeGameStateChange, evt.Type)
	assert.Equal(t, game.StatusOngoing, room.Status)

	got, ok := evt.Data.(*game.Room)
	require.True(t, ok)
	assert.Equal(t, game.StatusOngoing, got.Status)
}

func TestProcess_StartByNonOwner(t *testing.T) {
	room, _ := newTestRoom(t)
	ctx := context.Background()
	stranger := game.Member{UserID: uuid.New(), Username: "u2"}

	evt, err := Process(ctx, []byte(`{"event_type":"start","data":{}}`), room, stranger)
	require.NoError(t, err)

	assert.Equal(t, TypeError, evt.Type)
	body, ok := evt.Data.(MessageResponse)
	require.True(t, ok)
	assert.Equal(t, "You do not own this room", body.Message)
	assert.Equal(t, game.StatusLobby, room.Status, "a non-owner START must not change state")
}

func TestProcess_Message_NoAnswerSet(t *testing.T) {
	room, _ := newTestRoom(t)
	ctx := context.Background()
	member := game.Member{UserID: uuid.New(), Username: "u1"}

	evt, err := Process(ctx, rawMessage("hello there"), room, member)
	require.NoError(t, err)

	assert.Equal(t, TypeMessage, evt.Type)
	msg, ok := evt.Data.(ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "u1", msg.Username)
	assert.Equal(t, "hello there", msg.Message)
	assert.False(t, msg.HasGuessed)
}

func TestProcess_Message_CorrectGuess(t *testing.T) {
	room, _ := newTestRoom(t)
	ctx := context.Background()
	member := game.Member{UserID: uuid.New(), Username: "u2"}

	require.NoError(t, room.SetAnswer(ctx, "apple"))

	// Case-insensitive match
	evt, err := Process(ctx, rawMessage("Apple"), room, member)
	require.NoError(t, err)

	assert.Equal(t, TypeCorrectGuess, evt.Type)
	msg, ok := evt.Data.(ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "Just guessed the answer!", msg.Message)
	assert.True(t, msg.HasGuessed)

	guessed, err := room.HasGuessed(ctx, member)
	require.NoError(t, err)
	assert.True(t, guessed)
}

func TestProcess_Message_RepeatGuessIsMasked(t *testing.T) {
	room, _ := newTestRoom(t)
	ctx := context.Background()
	u2 := game.Member{UserID: uuid.New(), Username: "u2"}
	u3 := game.Member{UserID: uuid.New(), Username: "u3"}

	require.NoError(t, room.SetAnswer(ctx, "apple"))

	evt, err := Process(ctx, rawMessage("apple"), room, u2)
	require.NoError(t, err)
	assert.Equal(t, TypeCorrectGuess, evt.Type)

	// The same user repeating the answer gets masked so latecomers don't
	// see it in chat
	evt, err = Process(ctx, rawMessage("apple"), room, u2)
	require.NoError(t, err)
	assert.Equal(t, TypeMessage, evt.Type)
	msg, ok := evt.Data.(ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "****", msg.Message)
	assert.True(t, msg.HasGuessed)

	// A different user still earns their own CORRECT_GUESS
	evt, err = Process(ctx, rawMessage("APPLE"), room, u3)
	require.NoError(t, err)
	assert.Equal(t, TypeCorrectGuess, evt.Type)

	n, err := room.GuessedCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestProcess_Message_WrongGuess(t *testing.T) {
	room, _ := newTestRoom(t)
	ctx := context.Background()
	member := game.Member{UserID: uuid.New(), Username: "u2"}

	require.NoError(t, room.SetAnswer(ctx, "apple"))

	evt, err := Process(ctx, rawMessage("pear"), room, member)
	require.NoError(t, err)

	assert.Equal(t, TypeMessage, evt.Type)
	msg, ok := evt.Data.(ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "pear", msg.Message)
	assert.False(t, msg.HasGuessed)

	// After a correct guess, ordinary chat keeps has_guessed=true
	_, err = Process(ctx, rawMessage("apple"), room, member)
	require.NoError(t, err)

	evt, err = Process(ctx, rawMessage("good drawing!"), room, member)
	require.NoError(t, err)
	msg, ok = evt.Data.(ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "good drawing!", msg.Message)
	assert.True(t, msg.HasGuessed)
}

func TestProcess_Drawing(t *testing.T) {
	room, _ := newTestRoom(t)
	ctx := context.Background()
	member := game.Member{UserID: uuid.New(), Username: "u1"}

	raw := []byte(`{"event_type":"drawing","data":{"elements":[{"type":"freedraw","points":[[0,1],[2,3]]}]}}`)
	evt, err := Process(ctx, raw, room, member)
	require.NoError(t, err)

	assert.Equal(t, TypeDrawing, evt.Type)
	d, ok := evt.Data.(Drawing)
	require.True(t, ok)
	assert.Equal(t, member, d.User)
	assert.JSONEq(t, `[{"type":"freedraw","points":[[0,1],[2,3]]}]`, string(d.Elements))
}

func TestProcess_PassthroughKnownType(t *testing.T) {
	room, _ := newTestRoom(t)
	ctx := context.Background()
	member := game.Member{UserID: uuid.New(), Username: "u1"}

	raw := []byte(`{"event_type":"turn_end","data":{"turn":3}}`)
	evt, err := Process(ctx, raw, room, member)
	require.NoError(t, err)

	assert.Equal(t, TypeTurnEnd, evt.Type)
	assert.JSONEq(t, `{"turn":3}`, string(evt.Data.(json.RawMessage)))
}

func TestProcess_Malformed(t *testing.T) {
	room, owner := newTestRoom(t)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"event_type": "message", `},
		{"missing event_type", `{"data":{"message":"hi"}}`},
		{"missing data", `{"event_type":"message"}`},
		{"null data", `{"event_type":"message","data":null}`},
		{"unknown type", `{"event_type":"shutdown","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Process(ctx, []byte(tt.raw), room, owner)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}

	// An empty data object is not malformed; START carries no payload
	_, err := Process(ctx, []byte(`{"event_type":"start","data":{}}`), room, owner)
	assert.NoError(t, err)
}
