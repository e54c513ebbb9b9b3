package db

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"originmetrics/internal/apperr"
)

// User represents a dashboard user that can sign in and be a member of
// origins. The bootstrap admin user (from env) is created as a row in this
// table on startup.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`

	Username     string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	IsAdmin bool `gorm:"default:false" json:"isAdmin"`
}

// UserByUsername loads a user, or a NotFound error.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Wrap(err, "load user")
	}
	return &user, nil
}

// Authenticate checks a username/password pair. A wrong username and a wrong
// password are indistinguishable to the caller.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.UserByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthenticated("invalid username or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthenticated("invalid username or password")
	}
	return user, nil
}
