package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// TokenStore is the gorm-backed persistence for ingestion token records.
// Lookup methods return (nil, nil) when no matching record exists.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Insert(ctx context.Context, tok *IngestionToken) error {
	return s.db.WithContext(ctx).Create(tok).Error
}

func (s *TokenStore) ListByTeam(ctx context.Context, teamID string) ([]IngestionToken, error) {
	var tokens []IngestionToken
	err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at DESC").
		Find(&tokens).Error
	return tokens, err
}

func (s *TokenStore) FindByID(ctx context.Context, teamID, tokenID string) (*IngestionToken, error) {
	var tok IngestionToken
	err := s.db.WithContext(ctx).
		Where("id = ? AND team_id = ?", tokenID, teamID).
		First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// FindAnyByID looks up a token across all teams; reserved for the operator
// override path.
func (s *TokenStore) FindAnyByID(ctx context.Context, tokenID string) (*IngestionToken, error) {
	var tok IngestionToken
	err := s.db.WithContext(ctx).
		Where("id = ?", tokenID).
		First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *TokenStore) FindActiveByHash(ctx context.Context, hash string) (*IngestionToken, error) {
	var tok IngestionToken
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND status = ?", hash, TokenStatusActive).
		First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *TokenStore) ActiveTokens(ctx context.Context) ([]IngestionToken, error) {
	var tokens []IngestionToken
	err := s.db.WithContext(ctx).
		Where("status = ?", TokenStatusActive).
		Find(&tokens).Error
	return tokens, err
}

func (s *TokenStore) ActiveByShard(ctx context.Context, shard string) ([]IngestionToken, error) {
	var tokens []IngestionToken
	err := s.db.WithContext(ctx).
		Where("status = ? AND assigned_shard = ?", TokenStatusActive, shard).
		Order("team_id ASC, created_at ASC").
		Find(&tokens).Error
	return tokens, err
}

func (s *TokenStore) Update(ctx context.Context, tok *IngestionToken) error {
	return s.db.WithContext(ctx).Save(tok).Error
}

// Swap revokes the old record and inserts the new one in a single
// transaction, so a concurrent resolve can never observe both plaintexts as
// active.
func (s *TokenStore) Swap(ctx context.Context, revoke *IngestionToken, create *IngestionToken) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if revoke != nil {
			if err := tx.Save(revoke).Error; err != nil {
				return err
			}
		}
		return tx.Create(create).Error
	})
}

func (s *TokenStore) Touch(ctx context.Context, tokenID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&IngestionToken{}).
		Where("id = ?", tokenID).
		Update("last_used_at", at).Error
}
