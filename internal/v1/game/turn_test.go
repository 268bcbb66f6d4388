package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerLifecycle(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()

	room := New(rdb, testMember("ada"))
	require.NoError(t, room.Save(ctx))

	// No turn in progress yet
	answer, err := room.Answer(ctx)
	require.NoError(t, err)
	assert.Empty(t, answer)

	require.NoError(t, room.SetAnswer(ctx, "apple"))

	answer, err = room.Answer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "apple", answer)

	// Ending the turn removes the answer again
	require.NoError(t, room.EndTurn(ctx))

	answer, err = room.Answer(ctx)
	require.NoError(t, err)
	assert.Empty(t, answer)
}

func TestGuessedSet(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()

	room := New(rdb, testMember("ada"))
	require.NoError(t, room.Save(ctx))

	m1 := testMember("u1")
	m2 := testMember("u2")

	ok, err := room.HasGuessed(ctx, m1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, room.MarkGuessed(ctx, m1))

	ok, err = room.HasGuessed(ctx, m1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = room.HasGuessed(ctx, m2)
	require.NoError(t, err)
	assert.False(t, ok)

	// Marking twice does not double count
	require.NoError(t, room.MarkGuessed(ctx, m1))
	require.NoError(t, room.MarkGuessed(ctx, m2))

	n, err := room.GuessedCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, room.EndTurn(ctx))

	n, err = room.GuessedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemberCount(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()

	room := New(rdb, testMember("ada"))
	require.NoError(t, room.Save(ctx))

	n, err := room.MemberCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, room.Join(ctx, testMember("u1")))
	require.NoError(t, room.Join(ctx, testMember("u2")))

	n, err = room.MemberCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
