package game

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Member is a user participating in a room.
//
// Members are stored in the cache as canonical JSON and located with
// byte-level comparisons (LREM, LPOS), so the field order below is part of
// the storage format and must not change.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// MarshalBinary implements encoding.BinaryMarshaler so go-redis writes
// members in their canonical JSON form.
func (m Member) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Member) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, m)
}
