package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	User struct {
		ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		Username       string             `bson:"username" json:"username"`
		Pubkey         string             `bson:"pubkey,omitempty" json:"pubkey,omitempty"`
		Address        string             `bson:"address,omitempty" json:"address,omitempty"`
		Nonce          string             `bson:"nonce" json:"nonce"`
		HasDoubleSpent bool               `bson:"has_double_spent" json:"has_double_spent"`
		FlaggedAt      *time.Time         `bson:"flagged_at,omitempty" json:"flagged_at,omitempty"`
		CreatedAt      time.Time          `bson:"created_at" json:"created_at"`

		// Materialised from the ownership index, never stored on the document.
		Notes    []primitive.ObjectID `bson:"-" json:"notes"`
		History  []primitive.ObjectID `bson:"-" json:"history"`
		Messages []primitive.ObjectID `bson:"-" json:"messages"`
	}
)

// Holder is the identity a note history record is addressed to.
func (u *User) Holder() string {
	if u.Address != "" {
		return u.Address
	}
	return u.Username
}
