package resolver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/reqgateway/broker"
	"github.com/c360/reqgateway/idalloc"
	"github.com/c360/reqgateway/natsclient"
	"github.com/c360/reqgateway/protocol"
)

// newTestTransport wires a broker.Transport over a real NATS container and
// starts it, so Resolver's sub-fetches round-trip for real.
func newTestTransport(t *testing.T, instanceID string) (*broker.Transport, *natsclient.TestClient) {
	t.Helper()
	testClient := natsclient.NewTestClient(t)

	client, err := natsclient.NewClient(testClient.URL,
		natsclient.WithTimeout(5*time.Second),
		natsclient.WithMaxReconnects(0),
		natsclient.WithHealthInterval(0),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	transport := broker.New(client, instanceID)
	require.NoError(t, transport.Start(context.Background(), func(context.Context, []byte) {}))
	return transport, testClient
}

// stubVenueService answers every request.venue.details.get publish with a
// fixed venue payload addressed back to the requester's msg_id.
func stubVenueService(t *testing.T, testClient *natsclient.TestClient, replyTo string) {
	t.Helper()
	nc := testClient.GetNativeConnection()
	sub, err := nc.SubscribeSync("request.venue.details.get")
	require.NoError(t, err)

	go func() {
		for {
			msg, err := sub.NextMsg(2 * time.Second)
			if err != nil {
				return
			}
			var req map[string]json.RawMessage
			if json.Unmarshal(msg.Data, &req) != nil {
				continue
			}
			var msgID uint64
			_ = json.Unmarshal(req["msg_id"], &msgID)

			reply, _ := json.Marshal(map[string]any{
				"msg_id": msgID,
				"status": 0,
				"result": []map[string]any{{"id": "venue-1", "name": "Main Hall"}},
			})
			_ = nc.Publish(replyTo, reply)
		}
	}()
}

func TestWrapInflatesReferencedField(t *testing.T) {
	transport, testClient := newTestTransport(t, "resolver-test")
	stubVenueService(t, testClient, transport.InboxSubject())

	allocator := idalloc.New()
	r := New(allocator, transport)

	inner := &protocol.Reply{
		MsgID:  42,
		Status: protocol.StatusOK,
		Raw: map[string]json.RawMessage{
			"result": json.RawMessage(`[{"id":"eq-1","locationID":"venue-1"}]`),
		},
	}

	done := make(chan *protocol.Reply, 1)
	completion := r.Wrap(
		[]FieldSpec{{Field: "locationID", RoutingKey: "venue.details.get"}},
		"u1",
		func(_ any, _ time.Time, reply *protocol.Reply, _ int) { done <- reply },
	)

	// The demux must route the sub-fetch reply back into this resolver.
	go pumpInbox(t, testClient, r)

	completion(nil, time.Now(), inner, protocol.StatusOK)

	select {
	case reply := <-done:
		require.NotNil(t, reply)
		assert.Equal(t, protocol.StatusOK, reply.Status)
		raw, ok := reply.Result()
		require.True(t, ok)
		var entities []map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &entities))
		require.Len(t, entities, 1)
		var venue map[string]any
		require.NoError(t, json.Unmarshal(entities[0]["locationID"], &venue))
		assert.Equal(t, "Main Hall", venue["name"])
	case <-time.After(5 * time.Second):
		t.Fatal("completion never fired")
	}
}

// pumpInbox forwards every frame arriving on the resolver's own inbox
// subject into the resolver, standing in for demux.HandleFrame's routing
// step in this narrow test.
func pumpInbox(t *testing.T, testClient *natsclient.TestClient, r *Resolver) {
	t.Helper()
	nc := testClient.GetNativeConnection()
	sub, err := nc.SubscribeSync("gateway.resolver-test.inbox")
	if err != nil {
		return
	}
	for {
		msg, err := sub.NextMsg(2 * time.Second)
		if err != nil {
			return
		}
		reply, err := protocol.DecodeReply(msg.Data)
		if err != nil {
			continue
		}
		if r.Intercept(reply.MsgID) {
			r.Consume(reply)
		}
	}
}

func TestWrapPassesThroughNonOKStatus(t *testing.T) {
	allocator := idalloc.New()
	r := New(allocator, nil)

	called := false
	completion := r.Wrap(
		[]FieldSpec{{Field: "locationID", RoutingKey: "venue.details.get"}},
		"u1",
		func(_ any, _ time.Time, reply *protocol.Reply, status int) {
			called = true
			assert.Equal(t, protocol.StatusLocalTimeout, status)
		},
	)

	completion(nil, time.Now(), &protocol.Reply{MsgID: 1, Status: protocol.StatusLocalTimeout}, protocol.StatusLocalTimeout)
	assert.True(t, called)
}

func TestWrapNoFieldsPassesThrough(t *testing.T) {
	allocator := idalloc.New()
	r := New(allocator, nil)

	called := false
	completion := r.Wrap(nil, "u1", func(_ any, _ time.Time, _ *protocol.Reply, status int) {
		called = true
		assert.Equal(t, protocol.StatusOK, status)
	})

	completion(nil, time.Now(), &protocol.Reply{MsgID: 1, Status: protocol.StatusOK}, protocol.StatusOK)
	assert.True(t, called)
}

func TestFetchTimesOutWhenNoReplyArrives(t *testing.T) {
	transport, _ := newTestTransport(t, "resolver-timeout-test")
	allocator := idalloc.New()
	r := New(allocator, transport, WithSubFetchTimeout(200*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := r.fetch(ctx, FieldSpec{Field: "locationID", RoutingKey: "venue.details.get"}, "venue-1", "u1")
	assert.Error(t, err)
	assert.Equal(t, 0, allocator.Outstanding())
}
