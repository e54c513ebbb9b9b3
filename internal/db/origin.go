package db

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"originmetrics/internal/apperr"
)

const apiKeyCachePrefix = "apikey:"

// GenerateAPIKey returns a new random ingestion key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "om_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// Slugify lowercases name and joins its alphanumeric runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// CreateOrigin creates an origin owned by userID, with a unique slug and a
// fresh API key, and grants the creator the owner role.
func (s *Store) CreateOrigin(ctx context.Context, userID uint, name string) (*Origin, error) {
	name = strings.TrimSpace(name)
	base := Slugify(name)
	if base == "" {
		return nil, apperr.Invalid("name must contain at least one letter or digit")
	}
	if len(name) > 128 {
		return nil, apperr.Invalid("name must be at most 128 characters")
	}

	key, err := GenerateAPIKey()
	if err != nil {
		return nil, apperr.Wrap(err, "generate api key")
	}

	id := uuid.NewString()
	origin := &Origin{
		ID:           id,
		UserID:       userID,
		Name:         name,
		Slug:         base + "-" + id[:8],
		APIKey:       key,
		WeeklyReport: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(origin).Error; err != nil {
			return err
		}
		member := &OriginUser{OriginID: origin.ID, UserID: userID, Role: RoleOwner}
		return tx.Omit(clause.Associations).Create(member).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("an origin with this slug already exists")
		}
		return nil, apperr.Wrap(err, "create origin")
	}
	origin.Role = RoleOwner
	return origin, nil
}

func (s *Store) memberOrigins(ctx context.Context, userID uint) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&Origin{}).
		Select("origins.*, origin_users.role AS role").
		Joins("JOIN origin_users ON origin_users.origin_id = origins.id AND origin_users.user_id = ?", userID)
}

// OriginAccess loads the origin with slug if userID is a member of it. An
// origin that exists but is not shared with the user is reported exactly
// like one that does not exist.
func (s *Store) OriginAccess(ctx context.Context, userID uint, slug string) (*Origin, error) {
	var origin Origin
	err := s.memberOrigins(ctx, userID).Where("origins.slug = ?", slug).Limit(1).Find(&origin).Error
	if err != nil {
		return nil, apperr.Wrap(err, "load origin")
	}
	if origin.ID == "" || !origin.Role.AtLeast(RoleViewer) {
		return nil, apperr.NotFound("Origin not found")
	}
	return &origin, nil
}

// OriginsForUser lists the origins userID is a member of, newest first.
func (s *Store) OriginsForUser(ctx context.Context, userID uint) ([]Origin, error) {
	var origins []Origin
	if err := s.memberOrigins(ctx, userID).Order("origins.created_at DESC").Find(&origins).Error; err != nil {
		return nil, apperr.Wrap(err, "list origins")
	}
	return origins, nil
}

// OriginByAPIKey resolves an ingestion key. Unknown keys yield an
// InvalidCredential error. Hits are cached for the store's cache TTL.
func (s *Store) OriginByAPIKey(ctx context.Context, key string) (*Origin, error) {
	if v, ok := s.cached(apiKeyCachePrefix + key); ok {
		return v.(*Origin), nil
	}

	var origin Origin
	if err := s.db.WithContext(ctx).Where("api_key = ?", key).Limit(1).Find(&origin).Error; err != nil {
		return nil, apperr.Wrap(err, "load origin by api key")
	}
	if origin.ID == "" {
		return nil, apperr.InvalidCredential("invalid API key")
	}
	s.remember(apiKeyCachePrefix+key, &origin)
	return &origin, nil
}
