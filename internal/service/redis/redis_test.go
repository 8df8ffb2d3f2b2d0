package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"iou_ledger/internal/fault"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisService_SetGetDel(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	svc := NewRedis(db)

	mock.ExpectSet("session:1", "alice", time.Hour).SetVal("OK")
	mock.ExpectGet("session:1").SetVal("alice")
	mock.ExpectGetDel("challenge:c").SetVal("alice")
	mock.ExpectGetDel("challenge:c").RedisNil()
	mock.ExpectDel("session:1").SetVal(1)

	require.NoError(t, svc.Set(ctx, "session:1", "alice", time.Hour))

	v, err := svc.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	v, err = svc.GetDel(ctx, "challenge:c")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	_, err = svc.GetDel(ctx, "challenge:c")
	assert.ErrorIs(t, err, fault.ErrNotFound)

	require.NoError(t, svc.Del(ctx, "session:1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_QueueOps(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	svc := NewRedis(db)

	mock.ExpectRPush("to: bob", "a", "b").SetVal(2)
	mock.ExpectLRange("to: bob", 0, -1).SetVal([]string{"a", "b"})

	require.NoError(t, svc.RPush(ctx, "to: bob", "a", "b"))
	vals, err := svc.LRange(ctx, "to: bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, vals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_DrainIsOneTransaction(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	svc := NewRedis(db)

	mock.ExpectTxPipeline()
	mock.ExpectLRange("to: bob", 0, -1).SetVal([]string{"a", "b"})
	mock.ExpectDel("to: bob").SetVal(1)
	mock.ExpectTxPipelineExec()

	vals, err := svc.Drain(ctx, "to: bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, vals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_FailuresAreStoreIO(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := NewRedis(db)

	mock.ExpectGet("k").SetErr(errors.New("connection refused"))

	_, err := svc.Get(context.Background(), "k")
	assert.ErrorIs(t, err, fault.ErrStoreIO)
	assert.True(t, fault.Retryable(err))
}
