package message

import (
	"context"
	"testing"

	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepo_ListUnreadOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepo(store.NewMemoryDatabase())

	for _, m := range []model.Message{
		{Sender: "a", Recipient: "bob", Message: "second", Timestamp: 20},
		{Sender: "a", Recipient: "bob", Message: "first", Timestamp: 10},
		{Sender: "a", Recipient: "carol", Message: "other", Timestamp: 5},
	} {
		_, err := repo.Create(ctx, &m)
		require.NoError(t, err)
	}

	unread, err := repo.ListUnread(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "first", unread[0].Message)

	require.NoError(t, repo.MarkRead(ctx, unread[0].ID))

	unread, err = repo.ListUnread(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "second", unread[0].Message)
}
