package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// List names one of a user's ordered reference lists.
type List string

const (
	ListNotes    List = "notes"
	ListHistory  List = "history"
	ListMessages List = "messages"
)

func (l List) Valid() bool {
	switch l {
	case ListNotes, ListHistory, ListMessages:
		return true
	}
	return false
}

type (
	// Ownership is one entry of the owner -> record index.
	Ownership struct {
		ID        primitive.ObjectID `bson:"_id,omitempty"`
		OwnerID   primitive.ObjectID `bson:"owner_id"`
		List      List               `bson:"list"`
		Ref       primitive.ObjectID `bson:"ref"`
		CreatedAt time.Time          `bson:"created_at"`
	}
)
