// Package provision materializes per-tenant storage in the analytical
// store: an isolated database, a write user, grants, and the canonical
// telemetry tables. Every statement is idempotent so the sequence can be
// re-run after a partial failure.
package provision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"hdxplane/internal/config"
)

// ErrFailed wraps any admin DDL failure. The partial state left behind is
// safe to retry because every statement is idempotent.
var ErrFailed = errors.New("tenant provisioning failed")

// statementTimeout bounds each individual DDL statement.
const statementTimeout = 10 * time.Second

// Executor is the slice of the ClickHouse driver the provisioner needs.
// clickhouse-go's driver.Conn satisfies it.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// TenantStorage carries the credentials of a freshly provisioned tenant
// database. The password is surfaced exactly once; the caller records it on
// the managed connection.
type TenantStorage struct {
	Database string
	Username string
	Password string
}

type Provisioner struct {
	exec Executor
}

func New(exec Executor) *Provisioner {
	return &Provisioner{exec: exec}
}

// Connect opens an admin connection to the analytical store and returns a
// provisioner over it.
func Connect(cfg *config.Config) (*Provisioner, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouseHost},
		Auth: clickhouse.Auth{
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to analytical store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), statementTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging analytical store: %w", err)
	}

	return New(conn), nil
}

// EnsureTenantStorage runs the full DDL sequence for the team and returns
// the generated credentials. Safe to call repeatedly: re-running changes
// nothing except that a fresh password is issued for a user that already
// exists (CREATE USER IF NOT EXISTS leaves the existing one untouched).
func (p *Provisioner) EnsureTenantStorage(ctx context.Context, teamID string) (*TenantStorage, error) {
	database := TenantDatabase(teamID)
	username := TenantUsername(teamID)
	password, err := generatePassword()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}

	for _, stmt := range tenantStatements(database, username, password) {
		if err := p.execOne(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailed, err)
		}
	}

	log.Printf("provisioned tenant storage %s (user %s)", database, username)
	return &TenantStorage{Database: database, Username: username, Password: password}, nil
}

func (p *Provisioner) execOne(ctx context.Context, stmt string) error {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	return p.exec.Exec(ctx, stmt)
}

// generatePassword emits 48 hex characters from a strong RNG.
func generatePassword() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
