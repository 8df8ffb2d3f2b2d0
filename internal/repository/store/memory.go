package store

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"iou_ledger/internal/fault"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// MemoryDatabase keeps documents in process with the same semantics as
	// the Mongo implementation, unique indexes included.
	MemoryDatabase struct {
		mu          sync.Mutex
		collections map[string]*memoryCollection
	}

	memoryCollection struct {
		name    string
		mu      sync.RWMutex
		docs    []bson.M
		indexes []Index
	}
)

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{collections: make(map[string]*memoryCollection)}
}

func (d *MemoryDatabase) Collection(name string) Collection {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		c = &memoryCollection{name: name}
		d.collections[name] = c
	}
	return c
}

func (c *memoryCollection) op(name string) string {
	return fmt.Sprintf("%s %s", name, c.name)
}

func (c *memoryCollection) InsertOne(ctx context.Context, doc any) (primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s: %w: %w", c.op("insert"), fault.ErrStoreIO, err)
	}

	m, err := toM(doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s: %w: %w", c.op("insert"), fault.ErrStoreIO, err)
	}

	var id primitive.ObjectID
	switch v := m["_id"].(type) {
	case nil:
		id = primitive.NewObjectID()
		m["_id"] = id
	case primitive.ObjectID:
		id = v
	default:
		return primitive.NilObjectID, fmt.Errorf("%s: %w: unsupported _id type %T", c.op("insert"), fault.ErrStoreIO, v)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUnique(m, -1); err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s: %w", c.op("insert"), err)
	}
	c.docs = append(c.docs, m)
	return id, nil
}

func (c *memoryCollection) FindOne(ctx context.Context, filter bson.M, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", c.op("find one"), fault.ErrStoreIO, err)
	}

	f, err := toM(filter)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", c.op("find one"), fault.ErrStoreIO, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, doc := range c.docs {
		if matches(doc, f) {
			return decodeInto(c.op("find one"), doc, out)
		}
	}
	return fmt.Errorf("%s: %w", c.op("find one"), fault.ErrNotFound)
}

func (c *memoryCollection) Find(ctx context.Context, filter bson.M, order bson.D, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", c.op("find"), fault.ErrStoreIO, err)
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("%s: %w: out must be a pointer to a slice, got %T", c.op("find"), fault.ErrStoreIO, out)
	}

	f, err := toM(filter)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", c.op("find"), fault.ErrStoreIO, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var found []bson.M
	for _, doc := range c.docs {
		if matches(doc, f) {
			found = append(found, doc)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		for _, e := range order {
			cmp := compare(found[i][e.Key], found[j][e.Key])
			if cmp == 0 {
				continue
			}
			if descending(e.Value) {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	slice := rv.Elem()
	elemType := slice.Type().Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(found))
	for _, doc := range found {
		var elem reflect.Value
		if elemType.Kind() == reflect.Pointer {
			elem = reflect.New(elemType.Elem())
			if err := decodeInto(c.op("find"), doc, elem.Interface()); err != nil {
				return err
			}
		} else {
			ptr := reflect.New(elemType)
			if err := decodeInto(c.op("find"), doc, ptr.Interface()); err != nil {
				return err
			}
			elem = ptr.Elem()
		}
		result = reflect.Append(result, elem)
	}
	slice.Set(result)
	return nil
}

func (c *memoryCollection) UpdateOne(ctx context.Context, filter bson.M, set bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w: %w", c.op("update"), fault.ErrStoreIO, err)
	}

	f, err := toM(filter)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", c.op("update"), fault.ErrStoreIO, err)
	}
	fields, err := toM(set)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", c.op("update"), fault.ErrStoreIO, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range c.docs {
		if !matches(doc, f) {
			continue
		}

		updated := make(bson.M, len(doc)+len(fields))
		for k, v := range doc {
			updated[k] = v
		}
		for k, v := range fields {
			updated[k] = v
		}

		if err := c.checkUnique(updated, i); err != nil {
			return 0, fmt.Errorf("%s: %w", c.op("update"), err)
		}
		c.docs[i] = updated
		return 1, nil
	}
	return 0, nil
}

func (c *memoryCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w: %w", c.op("delete"), fault.ErrStoreIO, err)
	}

	f, err := toM(filter)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", c.op("delete"), fault.ErrStoreIO, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range c.docs {
		if matches(doc, f) {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (c *memoryCollection) CreateUniqueIndex(ctx context.Context, index Index) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", c.op("create index"), fault.ErrStoreIO, err)
	}
	if len(index.Fields) == 0 {
		return fmt.Errorf("%s: %w: index has no fields", c.op("create index"), fault.ErrStoreIO)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.indexes {
		if reflect.DeepEqual(existing, index) {
			return nil
		}
	}

	seen := make(map[string]bool, len(c.docs))
	for _, doc := range c.docs {
		key, present := indexKey(doc, index.Fields)
		if index.Sparse && !present {
			continue
		}
		if seen[key] {
			return fmt.Errorf("%s: %w: existing documents violate unique index on %s",
				c.op("create index"), fault.ErrConflict, strings.Join(index.Fields, ","))
		}
		seen[key] = true
	}

	c.indexes = append(c.indexes, index)
	return nil
}

// checkUnique must be called with c.mu held. skip is the position of the
// document being replaced, or -1 for an insert.
func (c *memoryCollection) checkUnique(doc bson.M, skip int) error {
	for i, other := range c.docs {
		if i == skip {
			continue
		}
		if equal(other["_id"], doc["_id"]) {
			return fmt.Errorf("%w: E11000 duplicate key error collection: %s index: _id_", fault.ErrConflict, c.name)
		}
	}

	for _, index := range c.indexes {
		key, present := indexKey(doc, index.Fields)
		if index.Sparse && !present {
			continue
		}
		for i, other := range c.docs {
			if i == skip {
				continue
			}
			otherKey, otherPresent := indexKey(other, index.Fields)
			if index.Sparse && !otherPresent {
				continue
			}
			if key == otherKey {
				return fmt.Errorf("%w: E11000 duplicate key error collection: %s index: %s",
					fault.ErrConflict, c.name, strings.Join(index.Fields, "_1_")+"_1")
			}
		}
	}
	return nil
}

// toM round-trips v through BSON so stored documents and filters hold the
// same primitive types the driver would send over the wire.
func toM(v any) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeInto(op string, doc bson.M, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, fault.ErrStoreIO, err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: decode: %w", op, fault.ErrStoreIO, err)
	}
	return nil
}

func matches(doc, filter bson.M) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !equal(got, want) {
			return false
		}
	}
	return true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func equal(a, b any) bool {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b any) int {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}

	switch x := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case primitive.ObjectID:
		if y, ok := b.(primitive.ObjectID); ok {
			return bytes.Compare(x[:], y[:])
		}
	case primitive.DateTime:
		if y, ok := b.(primitive.DateTime); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case bool:
		if y, ok := b.(bool); ok && x != y {
			if !x {
				return -1
			}
			return 1
		}
		return 0
	}

	if b == nil {
		return 1
	}
	return 0
}

func descending(v any) bool {
	switch n := v.(type) {
	case int:
		return n < 0
	case int32:
		return n < 0
	case int64:
		return n < 0
	}
	return false
}

func indexKey(doc bson.M, fields []string) (string, bool) {
	key := bson.D{}
	present := false
	for i, f := range fields {
		v, ok := doc[f]
		if ok && v != nil {
			present = true
		}
		if n, isNum := number(v); isNum {
			v = n
		}
		key = append(key, bson.E{Key: strconv.Itoa(i), Value: v})
	}

	raw, err := bson.Marshal(key)
	if err != nil {
		return fmt.Sprint(key), present
	}
	return string(raw), present
}
