package db

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"originmetrics/internal/config"
)

// Connect opens a GORM database connection using APP_DATABASE_URL and
// migrates the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open connects without migrating.
func Open(dsn string) (*gorm.DB, error) {
	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	// TranslateError maps unique violations to gorm.ErrDuplicatedKey.
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Origin{},
		&OriginUser{},
		&DynamicRoute{},
		&ExcludedRoute{},
		&Metric{},
		&MetricBucket{},
	)
}

// Store is the Event Store handle shared by the HTTP layer and workers.
// It is safe for concurrent use.
type Store struct {
	db    *gorm.DB
	cache *cache.Cache

	// gens counts invalidations per cache key. A value loaded under an
	// older generation is never stored.
	mu   sync.Mutex
	gens map[string]uint64

	// routeLocks holds one *sync.RWMutex per origin. Ingestion classifies
	// and inserts under the read lock; route rewrites hold the write lock.
	routeLocks sync.Map
}

// NewStore wraps db. cacheTTL bounds how long API key and route lookups
// are served from memory; zero disables caching.
func NewStore(db *gorm.DB, cacheTTL time.Duration) *Store {
	s := &Store{db: db, gens: map[string]uint64{}}
	if cacheTTL > 0 {
		s.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

// DB exposes the underlying handle for workers.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) cached(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Store) remember(key string, v any) {
	if s.cache != nil {
		s.cache.SetDefault(key, v)
	}
}

// generation returns the invalidation count of key. Read it before loading
// a value that will be passed to rememberAt.
func (s *Store) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key]
}

// rememberAt stores v unless key was forgotten since gen was read.
func (s *Store) rememberAt(key string, v any, gen uint64) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[key] == gen {
		s.cache.SetDefault(key, v)
	}
}

func (s *Store) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[key]++
	if s.cache != nil {
		s.cache.Delete(key)
	}
}

func (s *Store) routeLock(originID string) *sync.RWMutex {
	l, _ := s.routeLocks.LoadOrStore(originID, &sync.RWMutex{})
	return l.(*sync.RWMutex)
}

// EnsureBootstrapAdmin makes sure there is at least one admin user
// corresponding to the bootstrap credentials in config. If a user with
// that username already exists, it is left as-is.
func EnsureBootstrapAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&User{}).Where("username = ?", cfg.AdminUser).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &User{
		Username:     cfg.AdminUser,
		PasswordHash: string(hash),
		IsAdmin:      true,
	}

	return db.Create(admin).Error
}
