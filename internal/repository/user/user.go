package user

import (
	"context"
	"fmt"
	"time"

	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const Collection = "users"

type (
	UserRepo struct {
		collection store.Collection
	}
)

func NewUserRepo(db store.Database) *UserRepo {
	return &UserRepo{
		collection: db.Collection(Collection),
	}
}

// EnsureIndexes makes username unique, and pubkey and address unique among
// the users that have one.
func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	indexes := []store.Index{
		{Fields: []string{"username"}},
		{Fields: []string{"pubkey"}, Sparse: true},
		{Fields: []string{"address"}, Sparse: true},
	}
	for _, index := range indexes {
		if err := r.collection.CreateUniqueIndex(ctx, index); err != nil {
			return err
		}
	}
	return nil
}

func (r *UserRepo) GetByName(ctx context.Context, name string) (*model.User, error) {
	return r.getBy(ctx, "username", name)
}

func (r *UserRepo) GetByAddress(ctx context.Context, address string) (*model.User, error) {
	return r.getBy(ctx, "address", address)
}

func (r *UserRepo) GetByPubkey(ctx context.Context, pubkey string) (*model.User, error) {
	return r.getBy(ctx, "pubkey", pubkey)
}

func (r *UserRepo) getBy(ctx context.Context, field, value string) (*model.User, error) {
	filter := bson.M{
		field: value,
	}

	var user model.User
	if err := r.collection.FindOne(ctx, filter, &user); err != nil {
		return nil, fmt.Errorf("user by %s %q: %w", field, value, err)
	}
	return &user, nil
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) (primitive.ObjectID, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	id, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("create user %q: %w", user.Username, err)
	}

	user.ID = id
	return id, nil
}

// FlagDoubleSpend sets has_double_spent on username. It reports false when
// the user was already flagged or does not exist; callers tell those apart
// with GetByName.
func (r *UserRepo) FlagDoubleSpend(ctx context.Context, username string, at time.Time) (bool, error) {
	filter := bson.M{
		"username":         username,
		"has_double_spent": false,
	}
	set := bson.M{
		"has_double_spent": true,
		"flagged_at":       at.UTC(),
	}

	n, err := r.collection.UpdateOne(ctx, filter, set)
	if err != nil {
		return false, fmt.Errorf("flag user %q: %w", username, err)
	}
	return n == 1, nil
}
