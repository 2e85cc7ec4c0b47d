package registry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hdxplane/internal/db"
	"hdxplane/internal/shard"
)

func newTestRegistry(shardCount int) *Registry {
	return New(NewMemStore(), shardCount)
}

func TestCreateAssignsFirstFreeShard(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(2)

	issued, err := reg.Create(ctx, "team-a", "first token")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(issued.Token, "hdx_ingest_"))
	assert.Equal(t, "shard-0", issued.Record.AssignedShard)
	assert.Equal(t, db.TokenStatusActive, issued.Record.Status)
	assert.Empty(t, issued.Record.RevokedAt)
	// The record never carries the plaintext.
	assert.NotContains(t, issued.Record.TokenHash, "hdx_ingest_")
}

func TestCreateInheritsTeamShard(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(4)

	first, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)
	second, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)

	assert.Equal(t, first.Record.AssignedShard, second.Record.AssignedShard)
}

func TestShardIsolation(t *testing.T) {
	// E2: two shards, two teams, third team is refused.
	ctx := context.Background()
	reg := newTestRegistry(2)

	a, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)
	assert.Equal(t, "shard-0", a.Record.AssignedShard)

	b, err := reg.Create(ctx, "team-b", "")
	require.NoError(t, err)
	assert.Equal(t, "shard-1", b.Record.AssignedShard)

	a2, err := reg.Create(ctx, "team-a", "second")
	require.NoError(t, err)
	assert.Equal(t, "shard-0", a2.Record.AssignedShard)

	_, err = reg.Create(ctx, "team-c", "")
	assert.ErrorIs(t, err, shard.ErrExhausted)
}

func TestHashUniqueness(t *testing.T) {
	// P1: no duplicate hashes across a create/rotate sequence.
	ctx := context.Background()
	reg := newTestRegistry(8)

	hashes := make(map[string]bool)
	for _, team := range []string{"team-a", "team-b", "team-c"} {
		issued, err := reg.Create(ctx, team, "")
		require.NoError(t, err)
		require.False(t, hashes[issued.Record.TokenHash])
		hashes[issued.Record.TokenHash] = true

		rotated, err := reg.Rotate(ctx, team, issued.Record.ID)
		require.NoError(t, err)
		require.False(t, hashes[rotated.Record.TokenHash])
		hashes[rotated.Record.TokenHash] = true
	}
}

func TestOneTenantPerShard(t *testing.T) {
	// P2: after creates, rotates, and revokes, no shard carries two teams.
	ctx := context.Background()
	reg := newTestRegistry(4)

	ids := make(map[string]string)
	for _, team := range []string{"t1", "t2", "t3", "t4"} {
		issued, err := reg.Create(ctx, team, "")
		require.NoError(t, err)
		ids[team] = issued.Record.ID
	}
	_, err := reg.Rotate(ctx, "t2", ids["t2"])
	require.NoError(t, err)
	_, err = reg.Revoke(ctx, "t3", ids["t3"])
	require.NoError(t, err)
	_, err = reg.Create(ctx, "t3", "again")
	require.NoError(t, err)

	active, err := reg.store.ActiveTokens(ctx)
	require.NoError(t, err)
	teamsByShard := make(map[string]map[string]bool)
	for _, tok := range active {
		if teamsByShard[tok.AssignedShard] == nil {
			teamsByShard[tok.AssignedShard] = make(map[string]bool)
		}
		teamsByShard[tok.AssignedShard][tok.TeamID] = true
	}
	for shardID, teams := range teamsByShard {
		assert.LessOrEqual(t, len(teams), 1, "shard %s carries %d teams", shardID, len(teams))
	}
}

func TestResolveRoundTrip(t *testing.T) {
	// P4: resolve(create result) matches the creation response.
	ctx := context.Background()
	reg := newTestRegistry(2)

	issued, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)

	res := reg.Resolve(ctx, issued.Token)
	require.NotNil(t, res)
	assert.Equal(t, issued.Record.ID, res.TokenID)
	assert.Equal(t, "team-a", res.TeamID)
	assert.Equal(t, issued.Record.AssignedShard, res.AssignedShard)
}

func TestResolveUnknownToken(t *testing.T) {
	reg := newTestRegistry(1)
	assert.Nil(t, reg.Resolve(context.Background(), "hdx_ingest_does-not-exist"))
}

func TestRotateAtomicity(t *testing.T) {
	// P3: old and new plaintexts are never simultaneously resolvable.
	ctx := context.Background()
	reg := newTestRegistry(2)

	issued, err := reg.Create(ctx, "team-a", "rotated away")
	require.NoError(t, err)

	rotated, err := reg.Rotate(ctx, "team-a", issued.Record.ID)
	require.NoError(t, err)

	assert.Nil(t, reg.Resolve(ctx, issued.Token))
	res := reg.Resolve(ctx, rotated.Token)
	require.NotNil(t, res)
	assert.Equal(t, "team-a", res.TeamID)
	assert.Equal(t, issued.Record.AssignedShard, res.AssignedShard)

	// The old record is revoked, not deleted, and keeps its description.
	assert.Equal(t, "rotated away", rotated.Record.Description)
	old, err := reg.store.FindByID(ctx, "team-a", issued.Record.ID)
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, db.TokenStatusRevoked, old.Status)
	assert.NotNil(t, old.RevokedAt)
}

func TestRotateNotFound(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(2)

	issued, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)

	// Another team cannot rotate it.
	_, err = reg.Rotate(ctx, "team-b", issued.Record.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Rotate(ctx, "team-a", "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(2)

	issued, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)

	rec, err := reg.Revoke(ctx, "team-a", issued.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, db.TokenStatusRevoked, rec.Status)
	require.NotNil(t, rec.RevokedAt)

	assert.Nil(t, reg.Resolve(ctx, issued.Token))

	// Revoking again is a no-op.
	again, err := reg.Revoke(ctx, "team-a", issued.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.RevokedAt.Unix(), again.RevokedAt.Unix())

	_, err = reg.Revoke(ctx, "team-b", issued.Record.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeFreesShard(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(1)

	issued, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)
	_, err = reg.Create(ctx, "team-b", "")
	assert.ErrorIs(t, err, shard.ErrExhausted)

	_, err = reg.Revoke(ctx, "team-a", issued.Record.ID)
	require.NoError(t, err)

	b, err := reg.Create(ctx, "team-b", "")
	require.NoError(t, err)
	assert.Equal(t, "shard-0", b.Record.AssignedShard)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(2)

	first, err := reg.Create(ctx, "team-a", "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := reg.Create(ctx, "team-a", "second")
	require.NoError(t, err)

	tokens, err := reg.List(ctx, "team-a")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, second.Record.ID, tokens[0].ID)
	assert.Equal(t, first.Record.ID, tokens[1].ID)
}

func TestMarkUsed(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(2)

	issued, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)

	reg.MarkUsed(ctx, issued.Record.ID)
	rec, err := reg.store.FindByID(ctx, "team-a", issued.Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.LastUsedAt)

	// Unknown ids are swallowed.
	reg.MarkUsed(ctx, "no-such-id")
}

func TestAssignShardOverride(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(4)

	a, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)
	b, err := reg.Create(ctx, "team-b", "")
	require.NoError(t, err)

	// Moving team-a onto team-b's shard is permitted (warn-only policy).
	rec, err := reg.AssignShard(ctx, a.Record.ID, "shard-1")
	require.NoError(t, err)
	assert.Equal(t, "shard-1", rec.AssignedShard)

	// The override is not team-scoped: any tenant's token can be moved.
	rec, err = reg.AssignShard(ctx, b.Record.ID, "shard-3")
	require.NoError(t, err)
	assert.Equal(t, "team-b", rec.TeamID)
	assert.Equal(t, "shard-3", rec.AssignedShard)

	_, err = reg.AssignShard(ctx, "no-such-id", "shard-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveOnShard(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(2)

	a, err := reg.Create(ctx, "team-a", "")
	require.NoError(t, err)
	_, err = reg.Create(ctx, "team-a", "")
	require.NoError(t, err)

	tokens, err := reg.ActiveOnShard(ctx, a.Record.AssignedShard)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	none, err := reg.ActiveOnShard(ctx, "shard-1")
	require.NoError(t, err)
	assert.Empty(t, none)
}
