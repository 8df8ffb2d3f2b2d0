package message

import (
	"context"
	"fmt"

	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const Collection = "messages"

type (
	MessageRepo struct {
		collection store.Collection
	}
)

func NewMessageRepo(db store.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection(Collection),
	}
}

// Create stores msg, keeping a preset ID.
func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) (primitive.ObjectID, error) {
	id, err := r.collection.InsertOne(ctx, msg)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("create message: %w", err)
	}

	msg.ID = id
	return id, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Message, error) {
	var msg model.Message
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}, &msg); err != nil {
		return nil, fmt.Errorf("message %s: %w", id.Hex(), err)
	}
	return &msg, nil
}

// ListUnread returns the recipient's unread messages oldest first.
func (r *MessageRepo) ListUnread(ctx context.Context, recipient string) ([]model.Message, error) {
	filter := bson.M{
		"recipient": recipient,
		"read":      false,
	}
	sort := bson.D{
		{Key: "timestamp", Value: 1},
		{Key: "_id", Value: 1},
	}

	msgs := []model.Message{}
	if err := r.collection.Find(ctx, filter, sort, &msgs); err != nil {
		return nil, fmt.Errorf("unread messages of %s: %w", recipient, err)
	}
	return msgs, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"read": true}); err != nil {
		return fmt.Errorf("mark message %s read: %w", id.Hex(), err)
	}
	return nil
}
