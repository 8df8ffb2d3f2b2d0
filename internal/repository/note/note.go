package note

import (
	"context"
	"fmt"
	"time"

	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const Collection = "notes"

type (
	NoteRepo struct {
		collection store.Collection
	}
)

func NewNoteRepo(db store.Database) *NoteRepo {
	return &NoteRepo{
		collection: db.Collection(Collection),
	}
}

func (r *NoteRepo) Create(ctx context.Context, note *model.Note) (primitive.ObjectID, error) {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	id, err := r.collection.InsertOne(ctx, note)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("create note: %w", err)
	}

	note.ID = id
	return id, nil
}

func (r *NoteRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Note, error) {
	var note model.Note
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}, &note); err != nil {
		return nil, fmt.Errorf("note %s: %w", id.Hex(), err)
	}
	return &note, nil
}

// ListByOwner returns the owner's notes oldest first, narrowed to one step
// when step is set.
func (r *NoteRepo) ListByOwner(ctx context.Context, owner string, step *uint32) ([]model.Note, error) {
	filter := bson.M{
		"owner": owner,
	}
	if step != nil {
		filter["step"] = int64(*step)
	}

	notes := []model.Note{}
	if err := r.collection.Find(ctx, filter, bson.D{{Key: "_id", Value: 1}}, &notes); err != nil {
		return nil, fmt.Errorf("notes of %s: %w", owner, err)
	}
	return notes, nil
}
