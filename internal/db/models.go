package db

import (
	"time"

	"gorm.io/datatypes"
)

// Role is an origin membership role. Ranked owner > admin > viewer.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r grants at least the permissions of min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() > 0 && r.rank() >= min.rank()
}

// Origin is a monitored API. Deleting it cascades to its metrics, routes,
// memberships and rollup buckets.
type Origin struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	CreatedAt time.Time `json:"createdAt"`

	// UserID is the account that created the origin.
	UserID uint `gorm:"index;not null" json:"userId"`

	Name         string `gorm:"size:128;not null" json:"name"`
	Slug         string `gorm:"uniqueIndex;size:160;not null" json:"slug"`
	APIKey       string `gorm:"column:api_key;uniqueIndex;size:255;not null" json:"apiKey"`
	WeeklyReport bool   `gorm:"not null;default:true" json:"weeklyReport"`

	// Role is the caller's membership role when the origin was loaded
	// through a membership lookup.
	Role Role `gorm:"->;-:migration" json:"role,omitempty"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// OriginUser grants a user access to an origin.
type OriginUser struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	OriginID string `gorm:"type:uuid;uniqueIndex:idx_origin_user,priority:1;not null"`
	UserID   uint   `gorm:"uniqueIndex:idx_origin_user,priority:2;index;not null"`
	Role     Role   `gorm:"size:16;not null"`

	Origin Origin `gorm:"foreignKey:OriginID;constraint:OnDelete:CASCADE"`
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Metric is one observed HTTP request. Measurement fields are never updated
// after insert; only the classification keys are rewritten by a backfill.
type Metric struct {
	ID uint64 `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index:idx_metrics_origin_created,priority:2;not null"`

	OriginID string `gorm:"type:uuid;index:idx_metrics_origin_created,priority:1;index:idx_metrics_origin_path,priority:1;not null"`
	Path     string `gorm:"size:2048;index:idx_metrics_origin_path,priority:2;not null"`
	Method   string `gorm:"size:16;not null"`

	// StatusCode is nil when the integration could not observe one.
	StatusCode *int

	ResponseTime int64 `gorm:"not null"` // milliseconds
	RequestSize  int64 `gorm:"not null;default:0"`
	ResponseSize int64 `gorm:"not null;default:0"`

	CPUUsage    *float64
	MemoryUsage *float64

	Browser     *string `gorm:"size:64"`
	OS          *string `gorm:"column:os;size:64"`
	Device      *string `gorm:"size:64"`
	Country     *string `gorm:"size:128"`
	CountryCode *string `gorm:"size:8"`
	Region      *string `gorm:"size:128"`
	City        *string `gorm:"size:128"`

	Integration        *string `gorm:"size:128"`
	IntegrationVersion *string `gorm:"size:64"`

	// Attributes holds arbitrary key/value pairs sent by the integration.
	Attributes datatypes.JSONMap `gorm:"type:jsonb"`

	DynamicRouteID  *uint `gorm:"index"`
	ExcludedRouteID *uint `gorm:"index"`

	Origin        Origin         `gorm:"foreignKey:OriginID;constraint:OnDelete:CASCADE"`
	DynamicRoute  *DynamicRoute  `gorm:"foreignKey:DynamicRouteID;constraint:OnDelete:SET NULL"`
	ExcludedRoute *ExcludedRoute `gorm:"foreignKey:ExcludedRouteID;constraint:OnDelete:SET NULL"`
}

// DynamicRoute collapses matching paths into one endpoint label. Regex is
// derived from Pattern at write time; the unique index on it rejects
// patterns that would match the same paths.
type DynamicRoute struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	OriginID string `gorm:"type:uuid;uniqueIndex:idx_dynamic_route_regex,priority:1;not null"`
	Pattern  string `gorm:"size:512;not null"`
	Regex    string `gorm:"size:1024;uniqueIndex:idx_dynamic_route_regex,priority:2;not null"`

	Origin Origin `gorm:"foreignKey:OriginID;constraint:OnDelete:CASCADE"`
}

// ExcludedRoute removes matching paths from every aggregation.
type ExcludedRoute struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	OriginID string `gorm:"type:uuid;uniqueIndex:idx_excluded_route_regex,priority:1;not null"`
	Pattern  string `gorm:"size:512;not null"`
	Regex    string `gorm:"size:1024;uniqueIndex:idx_excluded_route_regex,priority:2;not null"`

	Origin Origin `gorm:"foreignKey:OriginID;constraint:OnDelete:CASCADE"`
}

// MetricBucket stores hourly pre-aggregated metrics per origin, filled by
// the rollup worker. Excluded traffic is not counted.
type MetricBucket struct {
	ID uint `gorm:"primaryKey"`

	OriginID    string    `gorm:"type:uuid;uniqueIndex:idx_metric_bucket_unique,priority:1;not null"`
	BucketStart time.Time `gorm:"uniqueIndex:idx_metric_bucket_unique,priority:2;not null"` // start of the hour (UTC)

	TotalCount    int64 `gorm:"not null"`
	ErrorCount    int64 `gorm:"not null"` // 4xx and 5xx
	AvgResponseMs int64 `gorm:"not null"`
	P50ResponseMs int64 `gorm:"not null"`
	P95ResponseMs int64 `gorm:"not null"`
	P99ResponseMs int64 `gorm:"not null"`

	Origin Origin `gorm:"foreignKey:OriginID;constraint:OnDelete:CASCADE"`
}
