// Package opamp implements the server side of the agent-management
// endpoint: one protobuf AgentToServer message per HTTP POST, answered with
// a ServerToAgent frame carrying the shard's remote configuration.
package opamp

import (
	"context"
	"crypto/sha256"
	"log"

	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"google.golang.org/protobuf/proto"

	"hdxplane/internal/agent"
)

const contentTypeProtobuf = "application/x-protobuf"

// serverCapabilities advertised on every response.
const serverCapabilities = uint64(protobufs.ServerCapabilities_ServerCapabilities_AcceptsStatus) |
	uint64(protobufs.ServerCapabilities_ServerCapabilities_OffersRemoteConfig)

var (
	heartbeatsTotal   *prometheus.CounterVec
	configsDelivered  prometheus.Counter
	malformedRequests prometheus.Counter
)

// InitMetrics registers the endpoint's Prometheus metrics. Call once at
// startup.
func InitMetrics() {
	heartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hdxplane",
			Name:      "opamp_heartbeats_total",
			Help:      "Total OpAMP heartbeats from agents that accept remote config, by shard.",
		},
		[]string{"shard"},
	)
	configsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hdxplane",
			Name:      "opamp_configs_delivered_total",
			Help:      "Total remote configurations handed to collectors.",
		},
	)
	malformedRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hdxplane",
			Name:      "opamp_malformed_requests_total",
			Help:      "Total OpAMP requests rejected before processing.",
		},
	)
	prometheus.MustRegister(heartbeatsTotal, configsDelivered, malformedRequests)
}

// ConfigSynthesizer computes the serialized pipeline config for a shard.
type ConfigSynthesizer interface {
	Synthesize(ctx context.Context, shardID string) ([]byte, error)
}

// Handler serves POST /v1/opamp. The handler holds no locks across the
// synthesizer call; the agent registry is only touched in Process and
// RecordDelivery.
func Handler(agents *agent.Registry, synth ConfigSynthesizer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Request.Header.ContentType()) != contentTypeProtobuf {
			if malformedRequests != nil {
				malformedRequests.Inc()
			}
			ctx.SetStatusCode(fasthttp.StatusUnsupportedMediaType)
			ctx.SetBodyString("expected " + contentTypeProtobuf)
			return
		}

		var msg protobufs.AgentToServer
		if err := proto.Unmarshal(ctx.PostBody(), &msg); err != nil {
			if malformedRequests != nil {
				malformedRequests.Inc()
			}
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("malformed AgentToServer frame")
			return
		}

		state := agents.Process(&msg)

		resp := &protobufs.ServerToAgent{
			InstanceUid:  msg.InstanceUid,
			Capabilities: serverCapabilities,
		}

		if state.AcceptsRemoteConfig() {
			shardID := state.ShardID()
			if shardID == "" {
				log.Printf("error: agent %x sent no %s identifying attribute; set OTEL_RESOURCE_ATTRIBUTES on the collector", msg.InstanceUid, agent.ShardAttribute)
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("agent misconfigured: missing " + agent.ShardAttribute)
				return
			}
			if heartbeatsTotal != nil {
				heartbeatsTotal.WithLabelValues(shardID).Inc()
			}

			body, err := synth.Synthesize(ctx, shardID)
			if err != nil {
				log.Printf("config synthesis for %s failed: %v", shardID, err)
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("config synthesis failed")
				return
			}

			hash := sha256.Sum256(body)
			resp.RemoteConfig = &protobufs.AgentRemoteConfig{
				Config: &protobufs.AgentConfigMap{
					ConfigMap: map[string]*protobufs.AgentConfigFile{
						"collector.json": {
							Body:        body,
							ContentType: "application/json",
						},
					},
				},
				ConfigHash: hash[:],
			}
			agents.RecordDelivery(msg.InstanceUid, hash[:])
			if configsDelivered != nil {
				configsDelivered.Inc()
			}
		}

		out, err := proto.Marshal(resp)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to encode response")
			return
		}
		ctx.SetContentType(contentTypeProtobuf)
		ctx.SetBody(out)
	}
}
