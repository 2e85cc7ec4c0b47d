package collector

import (
	"context"
	"encoding/json"
	"log"
	"sort"

	"hdxplane/internal/db"
	"hdxplane/internal/provision"
)

// TokenSource is the slice of the token registry the synthesizer reads.
type TokenSource interface {
	ActiveOnShard(ctx context.Context, shardID string) ([]db.IngestionToken, error)
}

// ConnectionSource loads a tenant's managed connection including the write
// password. The synthesizer is the only reader of that credential and must
// keep it out of logs.
type ConnectionSource interface {
	ManagedConnectionCredentials(ctx context.Context, teamID string) (*db.ManagedConnection, error)
}

// Synthesizer computes the pipeline configuration for a shard from the
// current token snapshot and the bound tenant's managed connection.
type Synthesizer struct {
	tokens TokenSource
	conns  ConnectionSource
}

func NewSynthesizer(tokens TokenSource, conns ConnectionSource) *Synthesizer {
	return &Synthesizer{tokens: tokens, conns: conns}
}

// Synthesize returns the serialized configuration for the shard. A shard
// with no tenant, or whose tenant has no managed connection, gets the nop
// config so the collector stays healthy without exporting anywhere.
func (s *Synthesizer) Synthesize(ctx context.Context, shardID string) ([]byte, error) {
	tokens, err := s.tokens.ActiveOnShard(ctx, shardID)
	if err != nil {
		return nil, err
	}

	teams := distinctTeams(tokens)
	if len(teams) == 0 {
		return marshal(NopConfig())
	}
	if len(teams) > 1 {
		log.Printf("warning: policy violation, %d tenants active on %s; using %s", len(teams), shardID, teams[0])
	}
	teamID := teams[0]

	conn, err := s.conns.ManagedConnectionCredentials(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		log.Printf("error: team %s bound to %s has no managed connection; emitting nop config", teamID, shardID)
		return marshal(NopConfig())
	}

	return marshal(TenantConfig(provision.TenantDatabase(teamID), conn.Username, conn.Password))
}

// distinctTeams returns the sorted set of team ids present in the snapshot.
// Lexicographic order makes the >1-team fallback deterministic.
func distinctTeams(tokens []db.IngestionToken) []string {
	seen := make(map[string]bool, len(tokens))
	var teams []string
	for _, t := range tokens {
		if t.TeamID != "" && !seen[t.TeamID] {
			seen[t.TeamID] = true
			teams = append(teams, t.TeamID)
		}
	}
	sort.Strings(teams)
	return teams
}

func marshal(c *Config) ([]byte, error) {
	return json.Marshal(c)
}
