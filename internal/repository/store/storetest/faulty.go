// Package storetest wraps a store.Database so tests can make individual
// collection operations fail.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/repository/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Op string

const (
	OpInsert  Op = "insert"
	OpFindOne Op = "find one"
	OpFind    Op = "find"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpIndex   Op = "create index"
)

const errInjected = "injected failure"

type (
	FaultyDatabase struct {
		inner store.Database

		mu     sync.Mutex
		faults map[string]map[Op]*rule
		calls  map[string]map[Op]int
	}

	rule struct {
		skip  int
		times int // 0 means forever
		err   error
	}

	faultyCollection struct {
		name string
		db   *FaultyDatabase
		next store.Collection
	}
)

func Wrap(inner store.Database) *FaultyDatabase {
	return &FaultyDatabase{
		inner:  inner,
		faults: make(map[string]map[Op]*rule),
		calls:  make(map[string]map[Op]int),
	}
}

// Fail makes every op on collection return a fault.ErrStoreIO error.
func (d *FaultyDatabase) Fail(collection string, op Op) {
	d.FailAfter(collection, op, 0, 0)
}

// FailAfter lets skip calls through, then fails the next times calls (all
// remaining calls if times is 0).
func (d *FaultyDatabase) FailAfter(collection string, op Op, skip, times int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.faults[collection] == nil {
		d.faults[collection] = make(map[Op]*rule)
	}
	d.faults[collection][op] = &rule{
		skip:  skip,
		times: times,
		err:   fmt.Errorf("%s %s: %w: %s", op, collection, fault.ErrStoreIO, errInjected),
	}
}

// Heal removes every injected failure.
func (d *FaultyDatabase) Heal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = make(map[string]map[Op]*rule)
}

// Calls reports how many times op reached collection, failed or not.
func (d *FaultyDatabase) Calls(collection string, op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[collection][op]
}

func (d *FaultyDatabase) Collection(name string) store.Collection {
	return &faultyCollection{name: name, db: d, next: d.inner.Collection(name)}
}

func (d *FaultyDatabase) check(collection string, op Op) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.calls[collection] == nil {
		d.calls[collection] = make(map[Op]int)
	}
	d.calls[collection][op]++

	r := d.faults[collection][op]
	if r == nil {
		return nil
	}
	if r.skip > 0 {
		r.skip--
		return nil
	}
	if r.times > 0 {
		r.times--
		if r.times == 0 {
			delete(d.faults[collection], op)
		}
	}
	return r.err
}

func (c *faultyCollection) InsertOne(ctx context.Context, doc any) (primitive.ObjectID, error) {
	if err := c.db.check(c.name, OpInsert); err != nil {
		return primitive.NilObjectID, err
	}
	return c.next.InsertOne(ctx, doc)
}

func (c *faultyCollection) FindOne(ctx context.Context, filter bson.M, out any) error {
	if err := c.db.check(c.name, OpFindOne); err != nil {
		return err
	}
	return c.next.FindOne(ctx, filter, out)
}

func (c *faultyCollection) Find(ctx context.Context, filter bson.M, sort bson.D, out any) error {
	if err := c.db.check(c.name, OpFind); err != nil {
		return err
	}
	return c.next.Find(ctx, filter, sort, out)
}

func (c *faultyCollection) UpdateOne(ctx context.Context, filter bson.M, set bson.M) (int64, error) {
	if err := c.db.check(c.name, OpUpdate); err != nil {
		return 0, err
	}
	return c.next.UpdateOne(ctx, filter, set)
}

func (c *faultyCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	if err := c.db.check(c.name, OpDelete); err != nil {
		return 0, err
	}
	return c.next.DeleteOne(ctx, filter)
}

func (c *faultyCollection) CreateUniqueIndex(ctx context.Context, index store.Index) error {
	if err := c.db.check(c.name, OpIndex); err != nil {
		return err
	}
	return c.next.CreateUniqueIndex(ctx, index)
}
