package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"iou_ledger/internal/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type doc struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Name    string             `bson:"name"`
	Email   string             `bson:"email,omitempty"`
	Step    uint32             `bson:"step"`
	Created time.Time          `bson:"created"`
}

func TestMemory_InsertAndFindOne(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDatabase().Collection("docs")

	id, err := c.InsertOne(ctx, doc{Name: "alice", Step: 3})
	require.NoError(t, err)
	require.False(t, id.IsZero())

	var got doc
	require.NoError(t, c.FindOne(ctx, bson.M{"_id": id}, &got))
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, uint32(3), got.Step)

	// int and uint32 compare numerically
	require.NoError(t, c.FindOne(ctx, bson.M{"step": 3}, &got))

	err = c.FindOne(ctx, bson.M{"name": "bob"}, &got)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestMemory_PresetIDIsKept(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDatabase().Collection("docs")

	preset := primitive.NewObjectID()
	id, err := c.InsertOne(ctx, doc{ID: preset, Name: "alice"})
	require.NoError(t, err)
	assert.Equal(t, preset, id)

	_, err = c.InsertOne(ctx, doc{ID: preset, Name: "again"})
	assert.ErrorIs(t, err, fault.ErrConflict)
}

func TestMemory_UniqueIndex(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDatabase().Collection("docs")
	require.NoError(t, c.CreateUniqueIndex(ctx, Index{Fields: []string{"name"}}))
	require.NoError(t, c.CreateUniqueIndex(ctx, Index{Fields: []string{"name"}}))

	_, err := c.InsertOne(ctx, doc{Name: "alice"})
	require.NoError(t, err)

	_, err = c.InsertOne(ctx, doc{Name: "alice"})
	assert.ErrorIs(t, err, fault.ErrConflict)
}

func TestMemory_SparseIndexIgnoresMissingField(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDatabase().Collection("docs")
	require.NoError(t, c.CreateUniqueIndex(ctx, Index{Fields: []string{"email"}, Sparse: true}))

	_, err := c.InsertOne(ctx, doc{Name: "a"})
	require.NoError(t, err)
	_, err = c.InsertOne(ctx, doc{Name: "b"})
	require.NoError(t, err)

	_, err = c.InsertOne(ctx, doc{Name: "c", Email: "x@y"})
	require.NoError(t, err)
	_, err = c.InsertOne(ctx, doc{Name: "d", Email: "x@y"})
	assert.ErrorIs(t, err, fault.ErrConflict)
}

func TestMemory_CreateIndexRejectsExistingDuplicates(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDatabase().Collection("docs")

	for range 2 {
		_, err := c.InsertOne(ctx, doc{Name: "dup"})
		require.NoError(t, err)
	}
	err := c.CreateUniqueIndex(ctx, Index{Fields: []string{"name"}})
	assert.ErrorIs(t, err, fault.ErrConflict)
}

func TestMemory_ConcurrentInsertsOneWins(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDatabase().Collection("docs")
	require.NoError(t, c.CreateUniqueIndex(ctx, Index{Fields: []string{"name"}}))

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.InsertOne(ctx, doc{Name: "same"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, fault.ErrConflict) {
				clash++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, clash)
}

func TestMemory_FindSortsAndFilters(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDatabase().Collection("docs")

	for _, s := range []uint32{3, 1, 2} {
		_, err := c.InsertOne(ctx, doc{Name: "n", Step: s})
		require.NoError(t, err)
	}
	_, err := c.InsertOne(ctx, doc{Name: "other", Step: 0})
	require.NoError(t, err)

	var asc []doc
	require.NoError(t, c.Find(ctx, bson.M{"name": "n"}, bson.D{{Key: "step", Value: 1}}, &asc))
	require.Len(t, asc, 3)
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{asc[0].Step, asc[1].Step, asc[2].Step})

	var desc []*doc
	require.NoError(t, c.Find(ctx, bson.M{}, bson.D{{Key: "step", Value: -1}}, &desc))
	require.Len(t, desc, 4)
	assert.Equal(t, uint32(3), desc[0].Step)
	assert.Equal(t, "other", desc[3].Name)

	var none []doc
	require.NoError(t, c.Find(ctx, bson.M{"name": "missing"}, nil, &none))
	assert.Empty(t, none)

	assert.ErrorIs(t, c.Find(ctx, bson.M{}, nil, &doc{}), fault.ErrStoreIO)
}

func TestMemory_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDatabase().Collection("docs")
	require.NoError(t, c.CreateUniqueIndex(ctx, Index{Fields: []string{"name"}}))

	id, err := c.InsertOne(ctx, doc{Name: "alice"})
	require.NoError(t, err)
	_, err = c.InsertOne(ctx, doc{Name: "bob"})
	require.NoError(t, err)

	n, err := c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"step": 7})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = c.UpdateOne(ctx, bson.M{"_id": id, "step": 0}, bson.M{"step": 8})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "conditional update must not match a changed document")

	_, err = c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"name": "bob"})
	assert.ErrorIs(t, err, fault.ErrConflict)

	var got doc
	require.NoError(t, c.FindOne(ctx, bson.M{"_id": id}, &got))
	assert.Equal(t, uint32(7), got.Step)
	assert.Equal(t, "alice", got.Name)

	n, err = c.DeleteOne(ctx, bson.M{"_id": id})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = c.DeleteOne(ctx, bson.M{"_id": id})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryDatabase().Collection("docs").InsertOne(ctx, doc{Name: "x"})
	assert.ErrorIs(t, err, fault.ErrStoreIO)
	assert.ErrorIs(t, err, context.Canceled)
}
