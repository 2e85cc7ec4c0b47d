package db

import (
	"time"
)

// User represents a control-plane user that can sign in and manage the
// ingestion tokens and sources of their team. The bootstrap admin user
// (from env) will be created as a row in this table on startup.
type User struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TeamID string `gorm:"index;size:36;not null"`

	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255;not null"`

	// IsAdmin marks users that can manage shard assignments across teams.
	// The bootstrap admin will have IsAdmin=true.
	IsAdmin bool `gorm:"default:false"`
}
