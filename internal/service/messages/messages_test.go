package messages

import (
	"context"
	"sync"
	"time"
	"testing"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/message"
	"iou_ledger/internal/repository/ownership"
	"iou_ledger/internal/repository/store"
	"iou_ledger/internal/repository/store/storetest"
	"iou_ledger/internal/service/directory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (r *recorder) Notify(_ context.Context, msg *model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

type fixture struct {
	db   *storetest.FaultyDatabase
	dir  *directory.Directory
	svc  *Service
	logs *observer.ObservedLogs
	rec  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := storetest.Wrap(store.NewMemoryDatabase())
	dir := directory.New(db)
	require.NoError(t, dir.EnsureIndexes(ctx))
	for _, name := range []string{"alice", "bob"} {
		_, err := dir.Create(ctx, directory.CreateInput{Username: name})
		require.NoError(t, err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(db, dir, zap.New(core))
	rec := &recorder{}
	svc.SetNotifier(rec)

	return &fixture{db: db, dir: dir, svc: svc, logs: logs, rec: rec}
}

func TestSendAndRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	clock := int64(100)
	f.svc.now = func() time.Time { clock++; return time.Unix(clock, 0) }

	attachment := primitive.NewObjectID()
	first, err := f.svc.Send(ctx, SendInput{Sender: "alice", Recipient: "bob", Message: "hi", AttachmentID: &attachment})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, SendInput{Sender: "alice", Recipient: "bob", Message: "again"})
	require.NoError(t, err)

	bob, err := f.dir.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bob.Messages, 2)
	assert.Equal(t, first.ID, bob.Messages[0])
	assert.Len(t, f.rec.msgs, 2)

	msgs, err := f.svc.Read(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Message)
	assert.False(t, msgs[0].Read, "read returns the snapshot taken before marking")
	require.NotNil(t, msgs[0].AttachmentID)
	assert.Equal(t, attachment, *msgs[0].AttachmentID)

	msgs, err = f.svc.Read(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSend_UnknownRecipient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), SendInput{Sender: "alice", Recipient: "zed", Message: "x"})
	assert.ErrorIs(t, err, fault.ErrNotFound)
	assert.Zero(t, f.db.Calls(message.Collection, storetest.OpInsert))
}

func TestSend_PresetIDIsRepeatable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := primitive.NewObjectID()

	_, err := f.svc.Send(ctx, SendInput{ID: id, Sender: "alice", Recipient: "bob", Message: "once"})
	require.NoError(t, err)
	msg, err := f.svc.Send(ctx, SendInput{ID: id, Sender: "alice", Recipient: "bob", Message: "once"})
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)

	msgs, err := f.svc.Read(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Len(t, f.rec.msgs, 1, "a repeated send does not notify twice")
}

func TestSend_RepeatAfterPartialNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := primitive.NewObjectID()

	f.db.Fail(ownership.Collection, storetest.OpInsert)
	_, err := f.svc.Send(ctx, SendInput{ID: id, Sender: "alice", Recipient: "bob", Message: "late"})
	require.ErrorIs(t, err, fault.ErrPartialFailure)
	assert.Empty(t, f.rec.msgs)

	f.db.Heal()
	for i := 0; i < 2; i++ {
		_, err = f.svc.Send(ctx, SendInput{ID: id, Sender: "alice", Recipient: "bob", Message: "late"})
		require.NoError(t, err)
	}
	require.Len(t, f.rec.msgs, 1)
	assert.Equal(t, id, f.rec.msgs[0].ID)
}

func TestSend_PushFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	f.db.Fail(ownership.Collection, storetest.OpInsert)

	msg, err := f.svc.Send(context.Background(), SendInput{Sender: "alice", Recipient: "bob", Message: "x"})
	assert.ErrorIs(t, err, fault.ErrPartialFailure)
	require.NotNil(t, msg)
	assert.Empty(t, f.rec.msgs, "no notification for a half delivered message")
}

func TestRead_FailedMarkStaysUnread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Send(ctx, SendInput{Sender: "alice", Recipient: "bob", Message: "a"})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, SendInput{Sender: "alice", Recipient: "bob", Message: "b"})
	require.NoError(t, err)

	// first mark fails, second succeeds
	f.db.FailAfter(message.Collection, storetest.OpUpdate, 0, 1)
	msgs, err := f.svc.Read(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, 1, f.logs.FilterMessage("mark message read failed").Len())

	msgs, err = f.svc.Read(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Message)
}
