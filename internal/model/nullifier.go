package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// Nullifier records a claimed spend. Records are append-only.
	Nullifier struct {
		ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		Nullifier string             `bson:"nullifier" json:"nullifier"`
		Note      string             `bson:"note" json:"note"`
		Step      int32              `bson:"step" json:"step"`
		Owner     string             `bson:"owner" json:"owner"`
		State     string             `bson:"state" json:"state"`
		SpendKey  string             `bson:"spend_key" json:"-"`
		CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	}
)
