// Package bootstrap orchestrates first-time tenant setup: provision the
// tenant's storage, record the managed connection, and create the four
// canonical sources with their cross-links.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"hdxplane/internal/db"
	"hdxplane/internal/provision"
)

// StorageProvisioner runs the admin DDL for one tenant.
type StorageProvisioner interface {
	EnsureTenantStorage(ctx context.Context, teamID string) (*provision.TenantStorage, error)
}

// Store is the persistence the orchestrator runs on. Lookup methods return
// (nil, nil) when no matching record exists.
type Store interface {
	ManagedConnection(ctx context.Context, teamID string) (*db.ManagedConnection, error)
	SaveManagedConnection(ctx context.Context, conn *db.ManagedConnection) error
	SourcesByTeam(ctx context.Context, teamID string) ([]db.Source, error)
	CreateSource(ctx context.Context, src *db.Source) error
	UpdateSourceLinks(ctx context.Context, sourceID string, links map[string]string) error
}

// Bootstrapper wires provisioning into team creation. A nil provisioner
// disables storage provisioning entirely (PROVISIONING_ENABLED=false).
type Bootstrapper struct {
	provisioner StorageProvisioner
	store       Store
	queryHost   string
}

func New(provisioner StorageProvisioner, store Store, queryHost string) *Bootstrapper {
	return &Bootstrapper{provisioner: provisioner, store: store, queryHost: queryHost}
}

// BootstrapTeam provisions storage and materializes the managed connection
// and canonical sources for a team. Errors are returned for the caller to
// log; team creation proceeds regardless and bootstrap can be retried.
func (b *Bootstrapper) BootstrapTeam(ctx context.Context, teamID string) error {
	if b.provisioner == nil {
		log.Printf("provisioning disabled; skipping storage bootstrap for team %s", teamID)
		return nil
	}

	conn, err := b.store.ManagedConnection(ctx, teamID)
	if err != nil {
		return fmt.Errorf("loading managed connection: %w", err)
	}
	if conn == nil {
		storage, err := b.provisioner.EnsureTenantStorage(ctx, teamID)
		if err != nil {
			return err
		}
		conn = &db.ManagedConnection{
			ID:        uuid.NewString(),
			TeamID:    teamID,
			Host:      b.queryHost,
			Username:  storage.Username,
			Password:  storage.Password,
			IsManaged: true,
		}
		if err := b.store.SaveManagedConnection(ctx, conn); err != nil {
			return fmt.Errorf("recording managed connection: %w", err)
		}
	}

	return b.ensureSources(ctx, teamID, conn.ID)
}

// ensureSources creates any missing canonical sources, then runs the
// cross-link pass once all four exist.
func (b *Bootstrapper) ensureSources(ctx context.Context, teamID, connectionID string) error {
	existing, err := b.store.SourcesByTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	byKind := make(map[string]*db.Source, len(existing))
	for i := range existing {
		byKind[existing[i].Kind] = &existing[i]
	}

	database := provision.TenantDatabase(teamID)
	for _, kind := range []string{db.SourceKindLog, db.SourceKindTrace, db.SourceKindMetric, db.SourceKindSession} {
		if byKind[kind] != nil {
			continue
		}
		src := canonicalSource(teamID, connectionID, database, kind)
		if err := b.store.CreateSource(ctx, src); err != nil {
			return fmt.Errorf("creating %s source: %w", kind, err)
		}
		byKind[kind] = src
	}

	ids := make(map[string]string, len(byKind))
	for kind, src := range byKind {
		ids[kind] = src.ID
	}
	for kind, src := range byKind {
		links := crossLinks(kind, ids)
		if len(links) == 0 {
			continue
		}
		if err := b.store.UpdateSourceLinks(ctx, src.ID, links); err != nil {
			return fmt.Errorf("linking %s source: %w", kind, err)
		}
	}
	return nil
}

// canonicalSource builds the source row for one signal kind.
func canonicalSource(teamID, connectionID, database, kind string) *db.Source {
	src := &db.Source{
		ID:           uuid.NewString(),
		TeamID:       teamID,
		Kind:         kind,
		ConnectionID: connectionID,
		Database:     database,
	}
	switch kind {
	case db.SourceKindLog:
		src.Table = provision.TableLogs
	case db.SourceKindTrace:
		src.Table = provision.TableTraces
	case db.SourceKindSession:
		src.Table = provision.TableSessions
	case db.SourceKindMetric:
		src.MetricTables = datatypes.JSONMap{
			"gauge":     provision.TableMetricsGauge,
			"sum":       provision.TableMetricsSum,
			"histogram": provision.TableMetricsHistogram,
		}
	}
	return src
}

// crossLinks returns the link-column updates for the source of the given
// kind: the ids of the other three sources. The ids map is keyed by kind.
func crossLinks(kind string, ids map[string]string) map[string]string {
	cols := map[string]string{
		db.SourceKindLog:     "log_source_id",
		db.SourceKindTrace:   "trace_source_id",
		db.SourceKindMetric:  "metric_source_id",
		db.SourceKindSession: "session_source_id",
	}
	links := make(map[string]string, 3)
	for other, col := range cols {
		if other == kind {
			continue
		}
		if id, ok := ids[other]; ok && id != "" {
			links[col] = id
		}
	}
	return links
}
