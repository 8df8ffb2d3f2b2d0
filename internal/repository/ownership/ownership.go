// Package ownership stores the ordered reference lists of every user as one
// entry per (owner, list, ref).
package ownership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const Collection = "ownership"

type (
	OwnershipRepo struct {
		collection store.Collection
	}
)

func NewOwnershipRepo(db store.Database) *OwnershipRepo {
	return &OwnershipRepo{
		collection: db.Collection(Collection),
	}
}

func (r *OwnershipRepo) EnsureIndexes(ctx context.Context) error {
	return r.collection.CreateUniqueIndex(ctx, store.Index{
		Fields: []string{"owner_id", "list", "ref"},
	})
}

// Push appends ref to the owner's list. Pushing a ref that is already on the
// list is a no-op.
func (r *OwnershipRepo) Push(ctx context.Context, owner primitive.ObjectID, list model.List, ref primitive.ObjectID) error {
	entry := model.Ownership{
		OwnerID:   owner,
		List:      list,
		Ref:       ref,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.collection.InsertOne(ctx, entry)
	if errors.Is(err, fault.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("push %s %s: %w", list, ref.Hex(), err)
	}
	return nil
}

// Pull removes ref from the owner's list and reports whether it was there.
func (r *OwnershipRepo) Pull(ctx context.Context, owner primitive.ObjectID, list model.List, ref primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"owner_id": owner,
		"list":     list,
		"ref":      ref,
	}

	n, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("pull %s %s: %w", list, ref.Hex(), err)
	}
	return n > 0, nil
}

// List returns the owner's refs in the order they were pushed.
func (r *OwnershipRepo) List(ctx context.Context, owner primitive.ObjectID, list model.List) ([]primitive.ObjectID, error) {
	filter := bson.M{
		"owner_id": owner,
		"list":     list,
	}

	var entries []model.Ownership
	if err := r.collection.Find(ctx, filter, bson.D{{Key: "_id", Value: 1}}, &entries); err != nil {
		return nil, fmt.Errorf("list %s: %w", list, err)
	}

	refs := make([]primitive.ObjectID, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, e.Ref)
	}
	return refs, nil
}
