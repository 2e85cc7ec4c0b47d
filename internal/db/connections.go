package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ConnectionStore is the gorm-backed persistence for managed connections and
// sources. Lookup methods return (nil, nil) when no matching record exists.
type ConnectionStore struct {
	db *gorm.DB
}

func NewConnectionStore(db *gorm.DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

// ManagedConnection loads a team's managed connection without its password.
func (s *ConnectionStore) ManagedConnection(ctx context.Context, teamID string) (*ManagedConnection, error) {
	var conn ManagedConnection
	err := s.db.WithContext(ctx).
		Omit("password").
		Where("team_id = ? AND is_managed = ?", teamID, true).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// ManagedConnectionCredentials loads a team's managed connection including
// the write password. The config synthesizer is the only intended caller;
// the password must never appear in logs or API responses.
func (s *ConnectionStore) ManagedConnectionCredentials(ctx context.Context, teamID string) (*ManagedConnection, error) {
	var conn ManagedConnection
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND is_managed = ?", teamID, true).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *ConnectionStore) SaveManagedConnection(ctx context.Context, conn *ManagedConnection) error {
	return s.db.WithContext(ctx).Save(conn).Error
}

func (s *ConnectionStore) SourcesByTeam(ctx context.Context, teamID string) ([]Source, error) {
	var sources []Source
	err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("kind ASC").
		Find(&sources).Error
	return sources, err
}

func (s *ConnectionStore) CreateSource(ctx context.Context, src *Source) error {
	return s.db.WithContext(ctx).Create(src).Error
}

// UpdateSourceLinks fills the cross-reference columns of one source.
func (s *ConnectionStore) UpdateSourceLinks(ctx context.Context, sourceID string, links map[string]string) error {
	updates := map[string]any{}
	for col, id := range links {
		updates[col] = id
	}
	return s.db.WithContext(ctx).
		Model(&Source{}).
		Where("id = ?", sourceID).
		Updates(updates).Error
}
