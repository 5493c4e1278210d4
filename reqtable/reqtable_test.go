package reqtable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/reqgateway/protocol"
)

func newRecord(id uint64, ts time.Time) *Record {
	return &Record{
		ID:         id,
		Responder:  nil,
		Completion: func(any, time.Time, *protocol.Reply, int) {},
		Timestamp:  ts,
	}
}

func TestInsertRejectsDuplicate(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Insert(newRecord(1, time.Now())))

	err := tbl.Insert(newRecord(1, time.Now()))
	assert.Error(t, err)
}

func TestTakeRemovesRecord(t *testing.T) {
	tbl := New()
	rec := newRecord(1, time.Now())
	require.NoError(t, tbl.Insert(rec))

	got, ok := tbl.Take(1)
	assert.True(t, ok)
	assert.Same(t, rec, got)

	_, ok = tbl.Take(1)
	assert.False(t, ok)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	tbl := New()
	now := time.Now()
	require.NoError(t, tbl.Insert(newRecord(1, now.Add(-20*time.Second))))
	require.NoError(t, tbl.Insert(newRecord(2, now.Add(-1*time.Second))))

	expired := tbl.Sweep(now, 15*time.Second)
	require.Len(t, expired, 1)
	assert.EqualValues(t, 1, expired[0].ID)
	assert.Equal(t, 1, tbl.Len())

	_, ok := tbl.Take(1)
	assert.False(t, ok)
	_, ok = tbl.Take(2)
	assert.True(t, ok)
}

func TestSweepBoundary(t *testing.T) {
	tbl := New()
	deadline := 15 * time.Second
	now := time.Now()

	require.NoError(t, tbl.Insert(newRecord(1, now.Add(-deadline+time.Millisecond))))
	require.NoError(t, tbl.Insert(newRecord(2, now.Add(-deadline-time.Millisecond))))

	expired := tbl.Sweep(now, deadline)
	require.Len(t, expired, 1)
	assert.EqualValues(t, 2, expired[0].ID)
}
