package notehistory

import (
	"context"
	"fmt"
	"time"

	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const Collection = "note_histories"

type (
	NoteHistoryRepo struct {
		collection store.Collection
	}
)

func NewNoteHistoryRepo(db store.Database) *NoteHistoryRepo {
	return &NoteHistoryRepo{
		collection: db.Collection(Collection),
	}
}

// Create stores history. A preset ID is kept, so a repeated Create with the
// same ID fails with fault.ErrConflict.
func (r *NoteHistoryRepo) Create(ctx context.Context, history *model.NoteHistory) (primitive.ObjectID, error) {
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}

	id, err := r.collection.InsertOne(ctx, history)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("create note history: %w", err)
	}

	history.ID = id
	return id, nil
}

func (r *NoteHistoryRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*model.NoteHistory, error) {
	var history model.NoteHistory
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}, &history); err != nil {
		return nil, fmt.Errorf("note history %s: %w", id.Hex(), err)
	}
	return &history, nil
}
