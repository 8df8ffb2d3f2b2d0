package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TransferState is the last step a transfer intent is known to have committed.
type TransferState string

const (
	TransferPending        TransferState = "pending"
	TransferHistoryStored  TransferState = "history_stored"
	TransferOwnershipMoved TransferState = "ownership_moved"
	TransferCompleted      TransferState = "completed"
	TransferAborted        TransferState = "aborted"
)

func (s TransferState) Terminal() bool {
	return s == TransferCompleted || s == TransferAborted
}

type (
	// TransferIntent is written before a transfer touches any other record, so
	// an interrupted transfer can be found and finished later. The history and
	// message ids are allocated up front which makes every step repeatable.
	TransferIntent struct {
		ID        primitive.ObjectID `bson:"_id,omitempty"`
		Sender    string             `bson:"sender"`
		Recipient string             `bson:"recipient"`
		Message   string             `bson:"message"`
		HistoryID primitive.ObjectID `bson:"history_id"`
		MessageID primitive.ObjectID `bson:"message_id"`
		State     TransferState      `bson:"state"`
		Attempts  int32              `bson:"attempts"`
		LastError string             `bson:"last_error,omitempty"`
		CreatedAt time.Time          `bson:"created_at"`
		UpdatedAt time.Time          `bson:"updated_at"`
	}
)
