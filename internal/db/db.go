package db

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"hdxplane/internal/config"
)

// Connect opens a GORM database connection using DATABASE_URL (PostgreSQL URL).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	// Auto-migrate the core tables.
	if err := db.AutoMigrate(&Team{}, &User{}, &IngestionToken{}, &ManagedConnection{}, &Source{}); err != nil {
		return nil, err
	}

	return db, nil
}

// EnsureBootstrapAdmin makes sure there is at least one admin user
// corresponding to the bootstrap credentials in config, together with a team
// for it to belong to. If a user with that email already exists, it is left
// as-is. Returns the admin's team id.
func EnsureBootstrapAdmin(db *gorm.DB, cfg *config.Config) (string, error) {
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return "", nil
	}

	var existing User
	err := db.Where("email = ?", cfg.AdminUser).Limit(1).Find(&existing).Error
	if err != nil {
		return "", err
	}
	if existing.ID != "" {
		return existing.TeamID, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	team := &Team{ID: uuid.NewString(), Name: "admin"}
	if err := db.Create(team).Error; err != nil {
		return "", err
	}

	admin := &User{
		ID:           uuid.NewString(),
		TeamID:       team.ID,
		Email:        cfg.AdminUser,
		PasswordHash: string(hash),
		IsAdmin:      true,
	}
	if err := db.Create(admin).Error; err != nil {
		return "", err
	}
	return team.ID, nil
}
