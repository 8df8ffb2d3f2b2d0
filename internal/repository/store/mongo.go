package store

import (
	"context"
	"fmt"
	"time"

	"iou_ledger/internal/fault"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultTimeout = 5 * time.Second

type (
	MongoDatabase struct {
		db      *mongo.Database
		timeout time.Duration
	}

	mongoCollection struct {
		collection *mongo.Collection
		timeout    time.Duration
	}
)

// NewMongoDatabase bounds every call by timeout; an expired call surfaces as
// fault.ErrStoreIO.
func NewMongoDatabase(db *mongo.Database, timeout time.Duration) *MongoDatabase {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &MongoDatabase{db: db, timeout: timeout}
}

func (d *MongoDatabase) Collection(name string) Collection {
	return NewMongoCollection(d.db.Collection(name), d.timeout)
}

func NewMongoCollection(c *mongo.Collection, timeout time.Duration) Collection {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &mongoCollection{collection: c, timeout: timeout}
}

func (c *mongoCollection) op(name string) string {
	return fmt.Sprintf("%s %s", name, c.collection.Name())
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) (primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.collection.InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, classify(c.op("insert"), err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("%s: %w: inserted id is %T", c.op("insert"), fault.ErrStoreIO, res.InsertedID)
	}
	return id, nil
}

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.M, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return classify(c.op("find one"), c.collection.FindOne(ctx, filter).Decode(out))
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M, sort bson.D, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := options.Find()
	if len(sort) > 0 {
		opts.SetSort(sort)
	}

	cursor, err := c.collection.Find(ctx, filter, opts)
	if err != nil {
		return classify(c.op("find"), err)
	}

	// All closes the cursor.
	return classify(c.op("decode"), cursor.All(ctx, out))
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter bson.M, set bson.M) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, classify(c.op("update"), err)
	}
	return res.MatchedCount, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.collection.DeleteOne(ctx, filter)
	if err != nil {
		return 0, classify(c.op("delete"), err)
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) CreateUniqueIndex(ctx context.Context, index Index) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	keys := bson.D{}
	for _, f := range index.Fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}

	_, err := c.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true).SetSparse(index.Sparse),
	})
	return classify(c.op("create index"), err)
}
