package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heartbeat(uid string, shard string, capabilities uint64) *protobufs.AgentToServer {
	msg := &protobufs.AgentToServer{
		InstanceUid:  []byte(uid),
		Capabilities: capabilities,
	}
	if shard != "" {
		msg.AgentDescription = &protobufs.AgentDescription{
			IdentifyingAttributes: []*protobufs.KeyValue{
				{
					Key:   ShardAttribute,
					Value: &protobufs.AnyValue{Value: &protobufs.AnyValue_StringValue{StringValue: shard}},
				},
			},
		}
	}
	return msg
}

func TestProcessCreatesOnFirstHeartbeat(t *testing.T) {
	r := NewRegistry()

	st := r.Process(heartbeat("uid-1", "shard-0", uint64(protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig)))
	require.NotNil(t, st)
	assert.Equal(t, StatusRegistered, st.Status)
	assert.Equal(t, "shard-0", st.ShardID())
	assert.True(t, st.AcceptsRemoteConfig())
	assert.Equal(t, 1, r.Len())
}

func TestProcessMergesPartialUpdates(t *testing.T) {
	r := NewRegistry()

	r.Process(heartbeat("uid-1", "shard-2", 7))

	// A later compressed heartbeat without a description keeps attributes.
	st := r.Process(&protobufs.AgentToServer{InstanceUid: []byte("uid-1")})
	assert.Equal(t, "shard-2", st.ShardID())
	assert.Equal(t, uint64(7), st.Capabilities)
	assert.Equal(t, 1, r.Len())
}

func TestProcessRecordsReportedHash(t *testing.T) {
	r := NewRegistry()

	st := r.Process(&protobufs.AgentToServer{
		InstanceUid: []byte("uid-1"),
		RemoteConfigStatus: &protobufs.RemoteConfigStatus{
			LastRemoteConfigHash: []byte{1, 2, 3},
		},
	})
	assert.Equal(t, []byte{1, 2, 3}, st.ReportedConfigHash)
}

func TestStatusTransitions(t *testing.T) {
	r := NewRegistry()

	r.Process(heartbeat("uid-1", "shard-0", 0))
	assert.Equal(t, StatusRegistered, r.Get([]byte("uid-1")).Status)

	r.RecordDelivery([]byte("uid-1"), []byte("hash-a"))
	assert.Equal(t, StatusConfigured, r.Get([]byte("uid-1")).Status)

	// Same hash again keeps status.
	r.RecordDelivery([]byte("uid-1"), []byte("hash-a"))
	assert.Equal(t, StatusConfigured, r.Get([]byte("uid-1")).Status)

	r.RecordDelivery([]byte("uid-1"), []byte("hash-b"))
	assert.Equal(t, StatusConfigChanged, r.Get([]byte("uid-1")).Status)
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get([]byte("nope")))
}

func TestEvict(t *testing.T) {
	r := NewRegistry()
	current := time.Now()
	r.now = func() time.Time { return current }

	r.Process(heartbeat("stale", "shard-0", 0))
	current = current.Add(10 * time.Minute)
	r.Process(heartbeat("fresh", "shard-1", 0))

	evicted := r.Evict(EvictionTTL)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, r.Len())
	assert.Nil(t, r.Get([]byte("stale")))
	assert.NotNil(t, r.Get([]byte("fresh")))
}

func TestProcessConcurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			uid := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				r.Process(heartbeat(uid, "shard-0", 1))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, r.Len())
}

func TestCloneIsolation(t *testing.T) {
	r := NewRegistry()

	st := r.Process(heartbeat("uid-1", "shard-0", 0))
	st.IdentifyingAttributes[ShardAttribute] = "tampered"

	assert.Equal(t, "shard-0", r.Get([]byte("uid-1")).ShardID())
}
