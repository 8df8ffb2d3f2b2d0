package transfer

import (
	"context"
	"fmt"
	"time"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const Collection = "transfer_intents"

type (
	IntentRepo struct {
		collection store.Collection
	}
)

func NewIntentRepo(db store.Database) *IntentRepo {
	return &IntentRepo{
		collection: db.Collection(Collection),
	}
}

func (r *IntentRepo) Create(ctx context.Context, intent *model.TransferIntent) (primitive.ObjectID, error) {
	now := time.Now().UTC()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	intent.UpdatedAt = intent.CreatedAt

	id, err := r.collection.InsertOne(ctx, intent)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("create transfer intent: %w", err)
	}

	intent.ID = id
	return id, nil
}

func (r *IntentRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*model.TransferIntent, error) {
	var intent model.TransferIntent
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}, &intent); err != nil {
		return nil, fmt.Errorf("transfer intent %s: %w", id.Hex(), err)
	}
	return &intent, nil
}

// Save writes the intent's state, attempts and last error back.
func (r *IntentRepo) Save(ctx context.Context, intent *model.TransferIntent) error {
	intent.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"state":      intent.State,
		"attempts":   intent.Attempts,
		"last_error": intent.LastError,
		"updated_at": intent.UpdatedAt,
	}

	n, err := r.collection.UpdateOne(ctx, bson.M{"_id": intent.ID}, set)
	if err != nil {
		return fmt.Errorf("save transfer intent %s: %w", intent.ID.Hex(), err)
	}
	if n == 0 {
		return fmt.Errorf("save transfer intent %s: %w", intent.ID.Hex(), fault.ErrNotFound)
	}
	return nil
}

func (r *IntentRepo) ListByState(ctx context.Context, state model.TransferState) ([]model.TransferIntent, error) {
	intents := []model.TransferIntent{}
	err := r.collection.Find(ctx, bson.M{"state": state}, bson.D{{Key: "_id", Value: 1}}, &intents)
	if err != nil {
		return nil, fmt.Errorf("transfer intents in %s: %w", state, err)
	}
	return intents, nil
}
