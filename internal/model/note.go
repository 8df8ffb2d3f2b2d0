package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// Note is immutable once stored. A transfer creates a new note whose
	// ParentNote points at its predecessor.
	Note struct {
		ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		AssetHash  string             `bson:"asset_hash" json:"asset_hash"`
		Owner      string             `bson:"owner" json:"owner"`
		Value      uint64             `bson:"value" json:"value"`
		Step       uint32             `bson:"step" json:"step"`
		ParentNote string             `bson:"parent_note" json:"parent_note"`
		OutIndex   string             `bson:"out_index" json:"out_index"`
		Blind      string             `bson:"blind" json:"blind"`
		CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	}

	// NoteHistory is an opaque transferable payload. Its owner is whoever's
	// history list references it.
	NoteHistory struct {
		ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		Data      []byte             `bson:"data" json:"data"`
		Address   string             `bson:"address" json:"address"`
		Sender    string             `bson:"sender" json:"sender"`
		CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	}
)
