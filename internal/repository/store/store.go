// Package store is the record store the repositories are written against.
//
// It exposes the handful of single-document operations the ledger needs and
// classifies every failure into fault.ErrNotFound, fault.ErrConflict or
// fault.ErrStoreIO. Uniqueness is only ever guaranteed by CreateUniqueIndex,
// never by a read before a write.
package store

import (
	"context"
	"errors"
	"fmt"

	"iou_ledger/internal/fault"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type (
	// Collection filters are equality-only. Updates replace the listed fields
	// of a single document.
	Collection interface {
		InsertOne(ctx context.Context, doc any) (primitive.ObjectID, error)
		FindOne(ctx context.Context, filter bson.M, out any) error
		Find(ctx context.Context, filter bson.M, sort bson.D, out any) error
		UpdateOne(ctx context.Context, filter bson.M, set bson.M) (int64, error)
		DeleteOne(ctx context.Context, filter bson.M) (int64, error)
		CreateUniqueIndex(ctx context.Context, index Index) error
	}

	Database interface {
		Collection(name string) Collection
	}

	// Index is a unique index over one or more fields. A sparse index ignores
	// documents that have none of the fields.
	Index struct {
		Fields []string
		Sparse bool
	}
)

// classify maps a driver error onto the fault kinds, adding op as context.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, fault.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w: %w", op, fault.ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, fault.ErrStoreIO, err)
	}
}
