package game

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Turn-scoped cache state. The answer exists only while a turn is in
// progress. The guessed set holds the user ids that have guessed this
// turn's answer and is pre-seeded with the drawer, so the everyone-guessed
// predicate only waits on the guessers.

// Answer returns the current turn's answer, or "" when no turn is running.
func (r *Room) Answer(ctx context.Context) (string, error) {
	answer, err := r.rdb.Get(ctx, answerKey(r.RoomID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read answer for room %s: %w", r.RoomID, err)
	}
	return answer, nil
}

// SetAnswer stores the answer for the turn that is about to start.
func (r *Room) SetAnswer(ctx context.Context, word string) error {
	if err := r.rdb.Set(ctx, answerKey(r.RoomID), word, 0).Err(); err != nil {
		return fmt.Errorf("set answer for room %s: %w", r.RoomID, err)
	}
	return nil
}

// MarkGuessed records that the member has guessed this turn's answer.
func (r *Room) MarkGuessed(ctx context.Context, member Member) error {
	if err := r.rdb.SAdd(ctx, guessedKey(r.RoomID), member.UserID.String()).Err(); err != nil {
		return fmt.Errorf("mark guessed in room %s: %w", r.RoomID, err)
	}
	return nil
}

// HasGuessed reports whether the member already guessed this turn.
func (r *Room) HasGuessed(ctx context.Context, member Member) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, guessedKey(r.RoomID), member.UserID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("read guessed set for room %s: %w", r.RoomID, err)
	}
	return ok, nil
}

// GuessedCount returns the number of members that have guessed this turn.
func (r *Room) GuessedCount(ctx context.Context) (int64, error) {
	n, err := r.rdb.SCard(ctx, guessedKey(r.RoomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count guessed for room %s: %w", r.RoomID, err)
	}
	return n, nil
}

// MemberCount returns the length of the cached member list.
func (r *Room) MemberCount(ctx context.Context) (int64, error) {
	n, err := r.rdb.LLen(ctx, usersKey(r.RoomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count members for room %s: %w", r.RoomID, err)
	}
	return n, nil
}

// EndTurn clears the turn-scoped keys (answer and guessed set) so that
// between turns neither is visible to the message processor.
func (r *Room) EndTurn(ctx context.Context) error {
	if err := r.rdb.Del(ctx, answerKey(r.RoomID), guessedKey(r.RoomID)).Err(); err != nil {
		return fmt.Errorf("clear turn state for room %s: %w", r.RoomID, err)
	}
	return nil
}
