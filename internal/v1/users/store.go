package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	// ErrUsernameTaken is returned when creating a user whose username exists.
	ErrUsernameTaken = errors.New("username is already in use")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
)

// Connect opens the database and runs the schema migration. TranslateError
// turns driver-specific constraint violations into gorm's portable errors,
// which Create depends on to spot duplicate usernames.
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// Store reads and writes user accounts.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new user. The password must already be hashed.
func (s *Store) Create(ctx context.Context, username, password string) (*User, error) {
	user := &User{Username: username, Password: password}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}
	return user, nil
}

// ByUsername fetches a user by their unique username.
func (s *Store) ByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("fetch user %s: %w", username, err)
	}
	return &user, nil
}

// ByID fetches a user by primary key.
func (s *Store) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return &user, nil
}
