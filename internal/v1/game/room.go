package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/quillgame/quill/backend/go/internal/v1/logging"
)

// Status is the lifecycle state of a room. Transitions only move forward:
// lobby -> ongoing -> ended.
type Status string

const (
	StatusLobby   Status = "lobby"
	StatusOngoing Status = "ongoing"
	StatusEnded   Status = "ended"
)

// MaxMembers is the fixed room capacity.
const MaxMembers = 8

var (
	// ErrRoomNotFound is returned when the room's status key is absent.
	ErrRoomNotFound = errors.New("room not found")
	// ErrAlreadyJoined is returned when a member joins a room twice.
	ErrAlreadyJoined = errors.New("user has already joined this room")
	// ErrNotAccepting is returned when joining a room that left the lobby.
	ErrNotAccepting = errors.New("room is not accepting new members")
	// ErrRoomFull is returned when a join would exceed MaxMembers.
	ErrRoomFull = errors.New("maximum room capacity reached")
)

// Room is the cache-backed state of one game. An instance is a snapshot;
// the cache holds the truth and every mutation goes through it.
type Room struct {
	RoomID string   `json:"room_id"`
	Owner  Member   `json:"owner"`
	Users  []Member `json:"users"`
	Status Status   `json:"status"`

	rdb *redis.Client
}

// New creates a lobby room owned by the given member. The owner is not a
// member yet; like everyone else they join when their socket connects.
func New(rdb *redis.Client, owner Member) *Room {
	return &Room{
		RoomID: uuid.NewString(),
		Owner:  owner,
		Users:  []Member{},
		Status: StatusLobby,
		rdb:    rdb,
	}
}

// Save writes owner, status and the member list in one transactional
// pipeline. The member list is only pushed when non-empty.
func (r *Room) Save(ctx context.Context) error {
	owner, err := json.Marshal(r.Owner)
	if err != nil {
		return fmt.Errorf("marshal owner: %w", err)
	}

	logging.Info(ctx, "writing room to cache", zap.String("room_id", r.RoomID))
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, ownerKey(r.RoomID), owner, 0)
	pipe.Set(ctx, statusKey(r.RoomID), string(r.Status), 0)
	if len(r.Users) > 0 {
		users := make([]interface{}, len(r.Users))
		for i, u := range r.Users {
			users[i] = u
		}
		pipe.RPush(ctx, usersKey(r.RoomID), users...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save room %s: %w", r.RoomID, err)
	}
	return nil
}

// Load reconstructs a room from the cache. The status key decides
// existence: when it is absent the room does not exist and ErrRoomNotFound
// is returned. Member order is preserved.
func Load(ctx context.Context, rdb *redis.Client, roomID string) (*Room, error) {
	status, err := rdb.Get(ctx, statusKey(roomID)).Result()
	if err == redis.Nil {
		logging.Warn(ctx, "room does not exist in cache", zap.String("room_id", roomID))
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read status for room %s: %w", roomID, err)
	}

	rawOwner, err := rdb.Get(ctx, ownerKey(roomID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("read owner for room %s: %w", roomID, err)
	}
	var owner Member
	if err := json.Unmarshal(rawOwner, &owner); err != nil {
		return nil, fmt.Errorf("decode owner for room %s: %w", roomID, err)
	}

	rawUsers, err := rdb.LRange(ctx, usersKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read members for room %s: %w", roomID, err)
	}
	users := make([]Member, 0, len(rawUsers))
	for _, raw := range rawUsers {
		var m Member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode member for room %s: %w", roomID, err)
		}
		users = append(users, m)
	}

	return &Room{
		RoomID: roomID,
		Owner:  owner,
		Users:  users,
		Status: Status(status),
		rdb:    rdb,
	}, nil
}

// Join adds a member to the room. Checks run against this snapshot, so
// callers should join on a freshly loaded room.
func (r *Room) Join(ctx context.Context, member Member) error {
	ids := set.New[string]()
	for _, u := range r.Users {
		ids.Insert(u.UserID.String())
	}
	if ids.Has(member.UserID.String()) {
		return ErrAlreadyJoined
	}
	if r.Status != StatusLobby {
		return ErrNotAccepting
	}
	if len(r.Users) >= MaxMembers {
		return ErrRoomFull
	}

	logging.Info(ctx, "adding member to room",
		zap.String("room_id", r.RoomID),
		zap.String("username", member.Username))
	if err := r.rdb.RPush(ctx, usersKey(r.RoomID), member).Err(); err != nil {
		return fmt.Errorf("join room %s: %w", r.RoomID, err)
	}
	r.Users = append(r.Users, member)
	return nil
}

// Leave removes the first matching entry from the cache list. A removal
// count other than 1 is logged, not failed, so a departing member that was
// never in the list does not break the disconnect path.
func (r *Room) Leave(ctx context.Context, member Member) error {
	logging.Info(ctx, "removing member from room",
		zap.String("room_id", r.RoomID),
		zap.String("username", member.Username))
	removed, err := r.rdb.LRem(ctx, usersKey(r.RoomID), 1, member).Result()
	if err != nil {
		return fmt.Errorf("leave room %s: %w", r.RoomID, err)
	}
	if removed != 1 {
		logging.Warn(ctx, "unexpected removal count while leaving room",
			zap.String("room_id", r.RoomID),
			zap.String("username", member.Username),
			zap.Int64("removed", removed))
	}

	users := make([]Member, 0, len(r.Users))
	for _, u := range r.Users {
		if u.UserID != member.UserID {
			users = append(users, u)
		}
	}
	r.Users = users
	return nil
}

// Members re-reads the member list from the cache, in join order. The
// in-memory snapshot is not touched; the game loop uses this to observe
// joins and leaves that happened after the room was loaded.
func (r *Room) Members(ctx context.Context) ([]Member, error) {
	raw, err := r.rdb.LRange(ctx, usersKey(r.RoomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read members for room %s: %w", r.RoomID, err)
	}
	members := make([]Member, 0, len(raw))
	for _, item := range raw {
		var m Member
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode member for room %s: %w", r.RoomID, err)
		}
		members = append(members, m)
	}
	return members, nil
}

// HasMember reports whether the member's canonical form is currently in the
// cache list.
func (r *Room) HasMember(ctx context.Context, member Member) (bool, error) {
	data, err := json.Marshal(member)
	if err != nil {
		return false, fmt.Errorf("marshal member: %w", err)
	}
	_, err = r.rdb.LPos(ctx, usersKey(r.RoomID), string(data), redis.LPosArgs{}).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("search members of room %s: %w", r.RoomID, err)
	}
	return true, nil
}

// IsOwner reports whether the member owns this room.
func (r *Room) IsOwner(member Member) bool {
	return r.Owner.UserID == member.UserID
}

// Start moves the room to the ongoing state, locally and in the cache.
func (r *Room) Start(ctx context.Context) error {
	return r.setStatus(ctx, StatusOngoing)
}

// End moves the room to the ended state, locally and in the cache.
func (r *Room) End(ctx context.Context) error {
	return r.setStatus(ctx, StatusEnded)
}

func (r *Room) setStatus(ctx context.Context, s Status) error {
	if err := r.rdb.Set(ctx, statusKey(r.RoomID), string(s), 0).Err(); err != nil {
		return fmt.Errorf("set status for room %s: %w", r.RoomID, err)
	}
	r.Status = s
	return nil
}

// Delete removes every cache key belonging to the room.
func (r *Room) Delete(ctx context.Context) error {
	keys := []string{
		ownerKey(r.RoomID),
		statusKey(r.RoomID),
		usersKey(r.RoomID),
		answerKey(r.RoomID),
		guessedKey(r.RoomID),
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete room %s: %w", r.RoomID, err)
	}
	return nil
}
