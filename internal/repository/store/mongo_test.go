package store

import (
	"context"
	"testing"

	"iou_ledger/internal/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert returns generated id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		id, err := NewMongoCollection(mt.Coll, 0).InsertOne(context.Background(), doc{Name: "alice"})
		require.NoError(mt, err)
		assert.False(mt, id.IsZero())
	})

	mt.Run("duplicate key is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: iou.users index: username_1",
		}))

		_, err := NewMongoCollection(mt.Coll, 0).InsertOne(context.Background(), doc{Name: "alice"})
		assert.ErrorIs(mt, err, fault.ErrConflict)
		assert.False(mt, fault.Retryable(err))
	})

	mt.Run("other write errors are store io", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Name:    "ShutdownInProgress",
			Message: "shutting down",
		}))

		_, err := NewMongoCollection(mt.Coll, 0).InsertOne(context.Background(), doc{Name: "alice"})
		assert.ErrorIs(mt, err, fault.ErrStoreIO)
	})

	mt.Run("find one decodes the first batch", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "foo.bar", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "name", Value: "alice"},
		}))

		var got doc
		require.NoError(mt, NewMongoCollection(mt.Coll, 0).FindOne(context.Background(), bson.M{"_id": id}, &got))
		assert.Equal(mt, id, got.ID)
		assert.Equal(mt, "alice", got.Name)
	})

	mt.Run("find one with no match is not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "foo.bar", mtest.FirstBatch))

		var got doc
		err := NewMongoCollection(mt.Coll, 0).FindOne(context.Background(), bson.M{"name": "bob"}, &got)
		assert.ErrorIs(mt, err, fault.ErrNotFound)
	})

	mt.Run("find decodes all documents", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "foo.bar", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "a"}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "b"}},
		))

		var got []doc
		err := NewMongoCollection(mt.Coll, 0).Find(context.Background(), bson.M{}, bson.D{{Key: "_id", Value: 1}}, &got)
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		assert.Equal(mt, "b", got[1].Name)
	})

	mt.Run("update reports matched count", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "n", Value: 1},
			{Key: "nModified", Value: 1},
		})

		n, err := NewMongoCollection(mt.Coll, 0).UpdateOne(context.Background(), bson.M{"name": "a"}, bson.M{"step": 2})
		require.NoError(mt, err)
		assert.EqualValues(mt, 1, n)
	})

	mt.Run("delete reports deleted count", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 0}})

		n, err := NewMongoCollection(mt.Coll, 0).DeleteOne(context.Background(), bson.M{"name": "a"})
		require.NoError(mt, err)
		assert.EqualValues(mt, 0, n)
	})
}
