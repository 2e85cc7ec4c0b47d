package db

import (
	"time"
)

// Team is the identity of a tenant. A team owns zero or more ingestion
// tokens and at most one managed storage connection.
type Team struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Name string `gorm:"size:128;not null"`
}
