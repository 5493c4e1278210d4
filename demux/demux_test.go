package demux

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/reqgateway/idalloc"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/reqtable"
)

type testLogger struct {
	lines []string
}

func (l *testLogger) Debugf(format string, args ...any) { l.lines = append(l.lines, format) }
func (l *testLogger) Printf(format string, args ...any) { l.lines = append(l.lines, format) }
func (l *testLogger) Errorf(format string, args ...any) { l.lines = append(l.lines, format) }

type fakeResolver struct {
	claimed map[uint64]bool
	consumed []*protocol.Reply
}

func (f *fakeResolver) Intercept(id uint64) bool { return f.claimed[id] }
func (f *fakeResolver) Consume(reply *protocol.Reply) { f.consumed = append(f.consumed, reply) }

func TestHandleFrameCompletesMatchedRequest(t *testing.T) {
	table := reqtable.New()
	allocator := idalloc.New()
	id, _ := allocator.Allocate()

	var got *protocol.Reply
	require.NoError(t, table.Insert(&reqtable.Record{
		ID:        id,
		Timestamp: time.Now(),
		Completion: func(_ any, _ time.Time, reply *protocol.Reply, status int) {
			got = reply
		},
	}))

	d := New(allocator, table, nil, &testLogger{})
	d.HandleFrame(context.Background(), []byte(`{"msg_id":`+strconv.FormatUint(id, 10)+`,"status":0,"result":[]}`))

	require.NotNil(t, got)
	assert.EqualValues(t, id, got.MsgID)
	assert.False(t, allocator.IsAllocated(id))
}

func TestHandleFrameDropsUnmatched(t *testing.T) {
	table := reqtable.New()
	allocator := idalloc.New()
	logger := &testLogger{}

	d := New(allocator, table, nil, logger)
	d.HandleFrame(context.Background(), []byte(`{"msg_id":999999,"status":0}`))

	assert.NotEmpty(t, logger.lines)
}

func TestHandleFrameDropsMalformed(t *testing.T) {
	table := reqtable.New()
	allocator := idalloc.New()
	logger := &testLogger{}

	d := New(allocator, table, nil, logger)
	d.HandleFrame(context.Background(), []byte(`not json`))

	assert.NotEmpty(t, logger.lines)
}

func TestHandleFrameRoutesToResolver(t *testing.T) {
	table := reqtable.New()
	allocator := idalloc.New()
	id, _ := allocator.Allocate()
	resolver := &fakeResolver{claimed: map[uint64]bool{id: true}}

	d := New(allocator, table, resolver, &testLogger{})
	d.HandleFrame(context.Background(), []byte(`{"msg_id":`+strconv.FormatUint(id, 10)+`,"status":0}`))

	require.Len(t, resolver.consumed, 1)
	assert.EqualValues(t, id, resolver.consumed[0].MsgID)
	assert.False(t, allocator.IsAllocated(id))
}

func TestHandleFrameValidatorRejectionDoesNotFire(t *testing.T) {
	table := reqtable.New()
	allocator := idalloc.New()
	id, _ := allocator.Allocate()

	fired := false
	require.NoError(t, table.Insert(&reqtable.Record{
		ID:        id,
		Timestamp: time.Now(),
		Completion: func(any, time.Time, *protocol.Reply, int) {
			fired = true
		},
		Validator: func(*protocol.Reply) (bool, error) { return false, nil },
	}))

	d := New(allocator, table, nil, &testLogger{})
	d.HandleFrame(context.Background(), []byte(`{"msg_id":`+strconv.FormatUint(id, 10)+`,"status":0}`))

	assert.False(t, fired)
}

