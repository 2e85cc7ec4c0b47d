// Package registry is the durable ingestion-token registry: issuance,
// rotation, revocation and resolution of tenant-scoped credentials, plus the
// shard-admission policy applied at create time.
package registry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"hdxplane/internal/db"
	"hdxplane/internal/shard"
	"hdxplane/internal/token"
)

// ErrNotFound is returned when the addressed token does not exist within the
// caller's team. Cross-team lookups deliberately report the same error.
var ErrNotFound = errors.New("ingestion token not found")

// Store is the persistence the registry runs on. Lookup methods return
// (nil, nil) when no matching record exists.
type Store interface {
	Insert(ctx context.Context, tok *db.IngestionToken) error
	ListByTeam(ctx context.Context, teamID string) ([]db.IngestionToken, error)
	FindByID(ctx context.Context, teamID, tokenID string) (*db.IngestionToken, error)
	FindAnyByID(ctx context.Context, tokenID string) (*db.IngestionToken, error)
	FindActiveByHash(ctx context.Context, hash string) (*db.IngestionToken, error)
	ActiveTokens(ctx context.Context) ([]db.IngestionToken, error)
	ActiveByShard(ctx context.Context, shard string) ([]db.IngestionToken, error)
	Update(ctx context.Context, tok *db.IngestionToken) error
	Swap(ctx context.Context, revoke *db.IngestionToken, create *db.IngestionToken) error
	Touch(ctx context.Context, tokenID string, at time.Time) error
}

// Issued carries the one-time plaintext token alongside the stored record.
// The plaintext is never persisted; callers must hand it to the user
// immediately.
type Issued struct {
	Token  string
	Record db.IngestionToken
}

// Resolution is the outcome of resolving a plaintext token.
type Resolution struct {
	TokenID       string
	TeamID        string
	AssignedShard string
}

// Registry serializes create, rotate, revoke and shard assignment behind a
// single mutex so that two concurrent creates cannot admit two teams onto the
// same shard. MarkUsed writes last_used_at without taking the mutex.
type Registry struct {
	store      Store
	shardCount int

	mu  sync.Mutex
	now func() time.Time
}

func New(store Store, shardCount int) *Registry {
	if shardCount < 1 {
		shardCount = 1
	}
	return &Registry{store: store, shardCount: shardCount, now: time.Now}
}

// Create issues a new token for the team. If the team already has an active
// token the new one inherits its shard; otherwise the allocator picks the
// lowest free shard, failing with shard.ErrExhausted when none is left.
func (r *Registry) Create(ctx context.Context, teamID, description string) (*Issued, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assigned, err := r.shardFor(ctx, teamID)
	if err != nil {
		return nil, err
	}

	rec, plaintext, err := r.newRecord(teamID, description, assigned)
	if err != nil {
		return nil, err
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return &Issued{Token: plaintext, Record: *rec}, nil
}

// List returns all of the team's token records, newest first.
func (r *Registry) List(ctx context.Context, teamID string) ([]db.IngestionToken, error) {
	return r.store.ListByTeam(ctx, teamID)
}

// Rotate revokes the addressed token and issues a replacement in one atomic
// step: at no point do both plaintexts resolve.
func (r *Registry) Rotate(ctx context.Context, teamID, tokenID string) (*Issued, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, err := r.store.FindByID(ctx, teamID, tokenID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrNotFound
	}

	var assigned string
	var revoke *db.IngestionToken
	if old.Status == db.TokenStatusActive {
		assigned = old.AssignedShard
		now := r.now().UTC()
		old.Status = db.TokenStatusRevoked
		old.RevokedAt = &now
		revoke = old
	} else {
		// Rotating an already-revoked token falls back to the normal
		// admission policy.
		assigned, err = r.shardFor(ctx, teamID)
		if err != nil {
			return nil, err
		}
	}

	rec, plaintext, err := r.newRecord(teamID, old.Description, assigned)
	if err != nil {
		return nil, err
	}
	if err := r.store.Swap(ctx, revoke, rec); err != nil {
		return nil, err
	}
	return &Issued{Token: plaintext, Record: *rec}, nil
}

// Revoke marks the token revoked. Revoking a revoked token is a no-op that
// returns the current record.
func (r *Registry) Revoke(ctx context.Context, teamID, tokenID string) (*db.IngestionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, err := r.store.FindByID(ctx, teamID, tokenID)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrNotFound
	}
	if tok.Status == db.TokenStatusRevoked {
		return tok, nil
	}

	now := r.now().UTC()
	tok.Status = db.TokenStatusRevoked
	tok.RevokedAt = &now
	if err := r.store.Update(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Resolve maps a plaintext token to its active record, or nil when no active
// token matches. It never raises: storage errors resolve to nil.
func (r *Registry) Resolve(ctx context.Context, plaintext string) *Resolution {
	tok, err := r.store.FindActiveByHash(ctx, token.Hash(plaintext))
	if err != nil {
		log.Printf("token resolve failed: %v", err)
		return nil
	}
	if tok == nil {
		return nil
	}
	return &Resolution{
		TokenID:       tok.ID,
		TeamID:        tok.TeamID,
		AssignedShard: tok.AssignedShard,
	}
}

// MarkUsed stamps last_used_at. Errors are swallowed: usage bookkeeping must
// never fail a request.
func (r *Registry) MarkUsed(ctx context.Context, tokenID string) {
	if err := r.store.Touch(ctx, tokenID, r.now().UTC()); err != nil {
		log.Printf("failed to mark token %s used: %v", tokenID, err)
	}
}

// AssignShard is the operator override that moves a token onto an explicit
// shard. It is not team-scoped: operators rebalance any tenant. Moving onto
// a shard occupied by another tenant is a policy violation that is logged
// but permitted.
func (r *Registry) AssignShard(ctx context.Context, tokenID, target string) (*db.IngestionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, err := r.store.FindAnyByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrNotFound
	}

	occupants, err := r.store.ActiveByShard(ctx, target)
	if err != nil {
		return nil, err
	}
	for _, o := range occupants {
		if o.TeamID != tok.TeamID {
			log.Printf("warning: assigning token %s (team %s) onto %s already occupied by team %s", tokenID, tok.TeamID, target, o.TeamID)
			break
		}
	}

	tok.AssignedShard = target
	if err := r.store.Update(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ActiveOnShard returns the active tokens bound to the shard. Used by the
// config synthesizer.
func (r *Registry) ActiveOnShard(ctx context.Context, shardID string) ([]db.IngestionToken, error) {
	return r.store.ActiveByShard(ctx, shardID)
}

// shardFor applies the create-time shard policy: inherit the team's shard
// when it already has an active token, otherwise allocate the lowest free
// one. Caller must hold r.mu.
func (r *Registry) shardFor(ctx context.Context, teamID string) (string, error) {
	active, err := r.store.ActiveTokens(ctx)
	if err != nil {
		return "", err
	}
	assignments := make([]shard.Assignment, 0, len(active))
	for _, t := range active {
		if t.TeamID == teamID {
			return t.AssignedShard, nil
		}
		assignments = append(assignments, shard.Assignment{TeamID: t.TeamID, Shard: t.AssignedShard})
	}
	return shard.Allocate(r.shardCount, assignments)
}

func (r *Registry) newRecord(teamID, description, assigned string) (*db.IngestionToken, string, error) {
	plaintext, err := token.Generate()
	if err != nil {
		return nil, "", err
	}
	now := r.now().UTC()
	rec := &db.IngestionToken{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
		TeamID:        teamID,
		TokenHash:     token.Hash(plaintext),
		TokenPrefix:   token.Prefix(plaintext),
		Status:        db.TokenStatusActive,
		AssignedShard: assigned,
		Description:   description,
	}
	return rec, plaintext, nil
}
