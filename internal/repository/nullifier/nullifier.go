package nullifier

import (
	"context"
	"fmt"
	"time"

	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const Collection = "nullifiers"

type (
	NullifierRepo struct {
		collection store.Collection
	}
)

func NewNullifierRepo(db store.Database) *NullifierRepo {
	return &NullifierRepo{
		collection: db.Collection(Collection),
	}
}

// EnsureIndexes installs the unique spend_key index every double-spend
// guarantee rests on.
func (r *NullifierRepo) EnsureIndexes(ctx context.Context) error {
	return r.collection.CreateUniqueIndex(ctx, store.Index{Fields: []string{"spend_key"}})
}

func (r *NullifierRepo) Create(ctx context.Context, n *model.Nullifier) (primitive.ObjectID, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	id, err := r.collection.InsertOne(ctx, n)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("create nullifier: %w", err)
	}

	n.ID = id
	return id, nil
}

func (r *NullifierRepo) GetBySpendKey(ctx context.Context, key string) (*model.Nullifier, error) {
	var n model.Nullifier
	if err := r.collection.FindOne(ctx, bson.M{"spend_key": key}, &n); err != nil {
		return nil, fmt.Errorf("nullifier by spend key: %w", err)
	}
	return &n, nil
}

func (r *NullifierRepo) GetByNullifier(ctx context.Context, nullifier string) (*model.Nullifier, error) {
	var n model.Nullifier
	if err := r.collection.FindOne(ctx, bson.M{"nullifier": nullifier}, &n); err != nil {
		return nil, fmt.Errorf("nullifier %q: %w", nullifier, err)
	}
	return &n, nil
}
