package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/reqgateway/broker"
	"github.com/c360/reqgateway/idalloc"
	"github.com/c360/reqgateway/natsclient"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/reqtable"
)

func TestSendRequestInsertsBeforePublish(t *testing.T) {
	testClient := natsclient.NewTestClient(t)

	client, err := natsclient.NewClient(testClient.URL,
		natsclient.WithTimeout(5*time.Second),
		natsclient.WithMaxReconnects(0),
		natsclient.WithHealthInterval(0),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	transport := broker.New(client, "dispatcher-test")
	ctx := context.Background()
	require.NoError(t, transport.Start(ctx, func(context.Context, []byte) {}))

	nc := testClient.GetNativeConnection()
	sub, err := nc.SubscribeSync("request.equipment.details.get")
	require.NoError(t, err)

	table := reqtable.New()
	allocator := idalloc.New()
	d := New(allocator, table, transport)

	id, accepted, err := d.SendRequest(ctx, "equipment.details.get", protocol.Read, "u1", nil,
		func(any, time.Time, *protocol.Reply, int) {}, nil)
	require.NoError(t, err)
	assert.True(t, accepted)

	rec, ok := table.Take(id)
	assert.True(t, ok)
	assert.Equal(t, id, rec.ID)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), `"msg_intention":"READ"`)
}

func TestSendRequestKeepsRecordWhenPublishFails(t *testing.T) {
	table := reqtable.New()
	allocator := idalloc.New()

	client, err := natsclient.NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)
	transport := broker.New(client, "dispatcher-test-2")
	d := New(allocator, table, transport)

	id1, accepted, err := d.SendRequest(context.Background(), "equipment.details.get",
		protocol.Read, "u1", nil, func(any, time.Time, *protocol.Reply, int) {}, nil)
	require.NoError(t, err)
	assert.False(t, accepted, "publish fails with no connection, record still inserted")

	_, ok := table.Take(id1)
	assert.True(t, ok, "record remains for the terminator to reclaim after a failed publish")
}
