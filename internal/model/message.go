package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	Message struct {
		ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
		Sender       string              `bson:"sender" json:"sender"`
		Recipient    string              `bson:"recipient" json:"recipient"`
		Message      string              `bson:"message" json:"message"`
		Timestamp    int64               `bson:"timestamp" json:"timestamp"`
		AttachmentID *primitive.ObjectID `bson:"attachment_id,omitempty" json:"attachment_id,omitempty"`
		Read         bool                `bson:"read" json:"read"`
	}
)
