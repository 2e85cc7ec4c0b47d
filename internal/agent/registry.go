// Package agent tracks the last-seen state of every collector that
// heartbeats into the OpAMP endpoint. State is process-local and ephemeral;
// entries are rebuilt from the next heartbeat after a restart.
package agent

import (
	"bytes"
	"sync"
	"time"

	"github.com/open-telemetry/opamp-go/protobufs"
)

// Status is the per-agent lifecycle as driven by incoming messages. There
// is no server-initiated push; transitions happen only when a heartbeat
// arrives or a config is handed back.
type Status string

const (
	StatusUnknown       Status = "unknown"
	StatusRegistered    Status = "registered"
	StatusConfigured    Status = "configured"
	StatusConfigChanged Status = "config_changed"
)

// ShardAttribute is the identifying attribute each collector must carry so
// the server knows which shard it serves. Set via OTEL_RESOURCE_ATTRIBUTES
// on the collector.
const ShardAttribute = "hdx.shard_id"

// State is the last-seen snapshot of one agent.
type State struct {
	InstanceUID []byte

	IdentifyingAttributes    map[string]string
	NonIdentifyingAttributes map[string]string

	Capabilities uint64

	// ReportedConfigHash is the hash the agent last reported as applied.
	ReportedConfigHash []byte
	// DeliveredConfigHash is the hash of the config this server last sent.
	DeliveredConfigHash []byte

	Status     Status
	LastSeenAt time.Time
}

// ShardID returns the shard this agent serves, or "" when the agent is
// misconfigured.
func (s *State) ShardID() string {
	return s.IdentifyingAttributes[ShardAttribute]
}

// AcceptsRemoteConfig reports whether the agent advertised the
// AcceptsRemoteConfig capability.
func (s *State) AcceptsRemoteConfig() bool {
	return s.Capabilities&uint64(protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig) != 0
}

// Registry is the in-memory instance_uid -> state map. Safe for concurrent
// Process calls from many shards.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*State
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*State),
		now:    time.Now,
	}
}

// Process merges an incoming AgentToServer message into the stored entry,
// creating it on first contact, and returns a copy of the merged state.
func (r *Registry) Process(msg *protobufs.AgentToServer) *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := string(msg.InstanceUid)
	st, ok := r.agents[key]
	if !ok {
		st = &State{
			InstanceUID:              append([]byte(nil), msg.InstanceUid...),
			IdentifyingAttributes:    map[string]string{},
			NonIdentifyingAttributes: map[string]string{},
			Status:                   StatusRegistered,
		}
		r.agents[key] = st
	}

	if desc := msg.GetAgentDescription(); desc != nil {
		mergeAttributes(st.IdentifyingAttributes, desc.GetIdentifyingAttributes())
		mergeAttributes(st.NonIdentifyingAttributes, desc.GetNonIdentifyingAttributes())
	}
	if msg.Capabilities != 0 {
		st.Capabilities = msg.Capabilities
	}
	if rcs := msg.GetRemoteConfigStatus(); rcs != nil && len(rcs.GetLastRemoteConfigHash()) > 0 {
		st.ReportedConfigHash = append([]byte(nil), rcs.GetLastRemoteConfigHash()...)
	}
	st.LastSeenAt = r.now()

	return st.clone()
}

// RecordDelivery notes that a config with the given hash was handed to the
// agent, advancing its status to configured, or config_changed when the
// hash differs from the previously delivered one.
func (r *Registry) RecordDelivery(instanceUID []byte, configHash []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.agents[string(instanceUID)]
	if !ok {
		return
	}
	switch {
	case st.DeliveredConfigHash == nil:
		st.Status = StatusConfigured
	case !bytes.Equal(st.DeliveredConfigHash, configHash):
		st.Status = StatusConfigChanged
	}
	st.DeliveredConfigHash = append([]byte(nil), configHash...)
}

// Get returns a copy of the agent's state, or nil when unknown.
func (r *Registry) Get(instanceUID []byte) *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.agents[string(instanceUID)]
	if !ok {
		return nil
	}
	return st.clone()
}

// Len returns the number of tracked agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Evict removes agents not seen within ttl and returns how many were
// dropped.
func (r *Registry) Evict(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	evicted := 0
	for key, st := range r.agents {
		if st.LastSeenAt.Before(cutoff) {
			delete(r.agents, key)
			evicted++
		}
	}
	return evicted
}

func (s *State) clone() *State {
	cp := *s
	cp.InstanceUID = append([]byte(nil), s.InstanceUID...)
	cp.ReportedConfigHash = append([]byte(nil), s.ReportedConfigHash...)
	cp.DeliveredConfigHash = append([]byte(nil), s.DeliveredConfigHash...)
	cp.IdentifyingAttributes = make(map[string]string, len(s.IdentifyingAttributes))
	for k, v := range s.IdentifyingAttributes {
		cp.IdentifyingAttributes[k] = v
	}
	cp.NonIdentifyingAttributes = make(map[string]string, len(s.NonIdentifyingAttributes))
	for k, v := range s.NonIdentifyingAttributes {
		cp.NonIdentifyingAttributes[k] = v
	}
	return &cp
}

func mergeAttributes(dst map[string]string, attrs []*protobufs.KeyValue) {
	for _, kv := range attrs {
		if kv == nil {
			continue
		}
		dst[kv.GetKey()] = kv.GetValue().GetStringValue()
	}
}
