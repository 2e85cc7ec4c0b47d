// Package shard implements the one-tenant-per-shard admission policy.
package shard

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when every shard already carries a tenant.
var ErrExhausted = errors.New("no free ingestion shard available")

// Name returns the canonical shard identifier for index i, e.g. "shard-3".
func Name(i int) string {
	return fmt.Sprintf("shard-%d", i)
}

// Assignment is one active (team, shard) binding from the token registry.
type Assignment struct {
	TeamID string
	Shard  string
}

// Allocate returns the lowest-index free shard given the current active
// assignments, or ErrExhausted when all count shards are occupied.
func Allocate(count int, assignments []Assignment) (string, error) {
	occupied := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		if a.TeamID != "" && a.Shard != "" {
			occupied[a.Shard] = true
		}
	}
	for i := 0; i < count; i++ {
		if s := Name(i); !occupied[s] {
			return s, nil
		}
	}
	return "", ErrExhausted
}
