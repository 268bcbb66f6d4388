package users

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillgame/quill/backend/go/internal/v1/game"
)

// User is a registered account. Password holds the bcrypt hash, never the
// plaintext.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"uniqueIndex;not null"`
	Password  string    `gorm:"not null"`
	CreatedAt time.Time
}

// BeforeCreate assigns the primary key so inserts never rely on a
// database-side uuid extension.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Member is the user's in-room identity.
func (u *User) Member() game.Member {
	return game.Member{UserID: u.ID, Username: u.Username}
}
