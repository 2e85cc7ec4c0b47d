package opamp

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"google.golang.org/protobuf/proto"

	"hdxplane/internal/agent"
)

type fakeSynthesizer struct {
	body []byte
	err  error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string) ([]byte, error) {
	return f.body, f.err
}

func agentToServer(t *testing.T, uid string, shard string, capabilities uint64) []byte {
	t.Helper()
	msg := &protobufs.AgentToServer{
		InstanceUid:  []byte(uid),
		Capabilities: capabilities,
	}
	if shard != "" {
		msg.AgentDescription = &protobufs.AgentDescription{
			IdentifyingAttributes: []*protobufs.KeyValue{
				{
					Key:   agent.ShardAttribute,
					Value: &protobufs.AnyValue{Value: &protobufs.AnyValue_StringValue{StringValue: shard}},
				},
			},
		}
	}
	body, err := proto.Marshal(msg)
	require.NoError(t, err)
	return body
}

func post(handler fasthttp.RequestHandler, contentType string, body []byte) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.Header.SetContentType(contentType)
	ctx.Request.SetRequestURI("/v1/opamp")
	ctx.Request.SetBody(body)
	handler(ctx)
	return ctx
}

const acceptsRemoteConfig = uint64(protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig)

func TestRejectsWrongContentType(t *testing.T) {
	agents := agent.NewRegistry()
	h := Handler(agents, &fakeSynthesizer{})

	ctx := post(h, "application/json", []byte(`{}`))
	assert.Equal(t, fasthttp.StatusUnsupportedMediaType, ctx.Response.StatusCode())
	assert.Equal(t, 0, agents.Len())
}

func TestRejectsMalformedFrame(t *testing.T) {
	agents := agent.NewRegistry()
	h := Handler(agents, &fakeSynthesizer{})

	ctx := post(h, contentTypeProtobuf, []byte{0xff, 0xff, 0xff, 0xff})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Equal(t, 0, agents.Len())
}

func TestMissingShardAttribute(t *testing.T) {
	agents := agent.NewRegistry()
	h := Handler(agents, &fakeSynthesizer{body: []byte(`{}`)})

	ctx := post(h, contentTypeProtobuf, agentToServer(t, "uid-1", "", acceptsRemoteConfig))
	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())

	// Heartbeat was still recorded; no config was delivered.
	st := agents.Get([]byte("uid-1"))
	require.NotNil(t, st)
	assert.Equal(t, agent.StatusRegistered, st.Status)
	assert.Nil(t, st.DeliveredConfigHash)
}

func TestDeliversRemoteConfig(t *testing.T) {
	agents := agent.NewRegistry()
	configBody := []byte(`{"receivers":{}}`)
	h := Handler(agents, &fakeSynthesizer{body: configBody})

	ctx := post(h, contentTypeProtobuf, agentToServer(t, "uid-1", "shard-0", acceptsRemoteConfig))
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, contentTypeProtobuf, string(ctx.Response.Header.ContentType()))

	var resp protobufs.ServerToAgent
	require.NoError(t, proto.Unmarshal(ctx.Response.Body(), &resp))

	assert.Equal(t, []byte("uid-1"), resp.InstanceUid)
	assert.NotZero(t, resp.Capabilities&uint64(protobufs.ServerCapabilities_ServerCapabilities_OffersRemoteConfig))

	require.NotNil(t, resp.RemoteConfig)
	file := resp.RemoteConfig.Config.ConfigMap["collector.json"]
	require.NotNil(t, file)
	assert.Equal(t, configBody, file.Body)
	assert.Equal(t, "application/json", file.ContentType)

	wantHash := sha256.Sum256(configBody)
	assert.Equal(t, wantHash[:], resp.RemoteConfig.ConfigHash)

	st := agents.Get([]byte("uid-1"))
	require.NotNil(t, st)
	assert.Equal(t, agent.StatusConfigured, st.Status)
	assert.Equal(t, wantHash[:], st.DeliveredConfigHash)
}

func TestSkipsConfigWithoutCapability(t *testing.T) {
	agents := agent.NewRegistry()
	h := Handler(agents, &fakeSynthesizer{body: []byte(`{}`)})

	ctx := post(h, contentTypeProtobuf, agentToServer(t, "uid-1", "shard-0", 0))
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var resp protobufs.ServerToAgent
	require.NoError(t, proto.Unmarshal(ctx.Response.Body(), &resp))
	assert.Nil(t, resp.RemoteConfig)
}

func TestSynthesizerFailure(t *testing.T) {
	agents := agent.NewRegistry()
	h := Handler(agents, &fakeSynthesizer{err: errors.New("store down")})

	ctx := post(h, contentTypeProtobuf, agentToServer(t, "uid-1", "shard-0", acceptsRemoteConfig))
	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
}
