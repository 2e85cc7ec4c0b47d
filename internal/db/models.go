package db

import (
	"time"

	"gorm.io/datatypes"
)

// Token status values. Tokens transition active -> revoked exactly once and
// are never deleted.
const (
	TokenStatusActive  = "active"
	TokenStatusRevoked = "revoked"
)

// IngestionToken is the durable record of a tenant-scoped ingestion
// credential. The user-visible token string is never stored; only its
// SHA-256 hash and a short display prefix are.
type IngestionToken struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TeamID string `gorm:"index;size:36;not null"`

	// TokenHash is the lowercase hex SHA-256 of the user-visible token.
	TokenHash string `gorm:"uniqueIndex;size:64;not null"`

	// TokenPrefix is the first 12 characters of the user-visible token,
	// kept for display so users can tell their tokens apart.
	TokenPrefix string `gorm:"size:12;not null"`

	Status string `gorm:"size:16;not null;default:active"`

	// AssignedShard names the collector shard (e.g. "shard-3") that traffic
	// authenticated by this token is routed through. All active tokens of a
	// team share the same shard.
	AssignedShard string `gorm:"size:32;index"`

	Description string `gorm:"size:255"`

	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// ManagedConnection records the per-tenant database endpoint and write
// credential created during provisioning. The password is written once at
// creation; reads must opt in explicitly (see ManagedConnectionCredentials).
type ManagedConnection struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TeamID string `gorm:"uniqueIndex;size:36;not null"`

	Host     string `gorm:"size:255;not null"`
	Username string `gorm:"size:128;not null"`
	Password string `gorm:"size:255;not null" json:"-"`

	IsManaged bool `gorm:"default:true"`
}

// Source kinds. One Source row exists per kind per team once the team is
// bootstrapped.
const (
	SourceKindLog     = "log"
	SourceKindTrace   = "trace"
	SourceKindMetric  = "metric"
	SourceKindSession = "session"
)

// Source is the canonical query-time description of one signal of a tenant's
// data: which managed connection, database and table to read. The four
// sources of a team cross-reference each other by id so the query layer can
// hop between correlated signals.
type Source struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TeamID string `gorm:"index;size:36;not null"`
	Kind   string `gorm:"size:16;not null"`

	ConnectionID string `gorm:"size:36;not null"`
	Database     string `gorm:"size:128;not null"`
	Table        string `gorm:"size:128"`

	// MetricTables maps metric kind (gauge, sum, histogram) to table name.
	// Only set on the metric source.
	MetricTables datatypes.JSONMap `gorm:"type:json"`

	LogSourceID     string `gorm:"size:36"`
	TraceSourceID   string `gorm:"size:36"`
	MetricSourceID  string `gorm:"size:36"`
	SessionSourceID string `gorm:"size:36"`
}
