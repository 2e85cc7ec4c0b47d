package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFirstFree(t *testing.T) {
	s, err := Allocate(4, nil)
	require.NoError(t, err)
	assert.Equal(t, "shard-0", s)
}

func TestAllocateSkipsOccupied(t *testing.T) {
	assignments := []Assignment{
		{TeamID: "team-a", Shard: "shard-0"},
		{TeamID: "team-b", Shard: "shard-2"},
	}
	s, err := Allocate(4, assignments)
	require.NoError(t, err)
	assert.Equal(t, "shard-1", s)
}

func TestAllocateDeterministic(t *testing.T) {
	assignments := []Assignment{{TeamID: "team-a", Shard: "shard-1"}}
	for i := 0; i < 10; i++ {
		s, err := Allocate(3, assignments)
		require.NoError(t, err)
		assert.Equal(t, "shard-0", s)
	}
}

func TestAllocateExhausted(t *testing.T) {
	assignments := []Assignment{
		{TeamID: "team-a", Shard: "shard-0"},
		{TeamID: "team-b", Shard: "shard-1"},
	}
	_, err := Allocate(2, assignments)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAllocateIgnoresEmptyAssignments(t *testing.T) {
	assignments := []Assignment{
		{TeamID: "", Shard: "shard-0"},
		{TeamID: "team-a", Shard: ""},
	}
	s, err := Allocate(1, assignments)
	require.NoError(t, err)
	assert.Equal(t, "shard-0", s)
}

func TestName(t *testing.T) {
	assert.Equal(t, "shard-0", Name(0))
	assert.Equal(t, "shard-12", Name(12))
}
