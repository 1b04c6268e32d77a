package cloudvm_db

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

type memoryCollection struct {
	order  []string
	docs   map[string]Document
	unique map[string]bool
}

// MemoryStore is an in-process DocumentStore. Documents are normalised through JSON on the
// way in, so filters compare values the same way the Postgres store does.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string]*memoryCollection{}}
}

func (s *MemoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{docs: map[string]Document{}, unique: map[string]bool{}}
		s.collections[name] = c
	}
	return c
}

func normalise(value any) (any, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normaliseDocument(doc Document) (Document, error) {
	value, err := normalise(doc)
	if err != nil {
		return nil, err
	}
	out, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	return Document(out), nil
}

func matches(doc Document, id string, filter Filter) (bool, error) {
	for key, want := range filter {
		if key == "id" {
			if fmt.Sprint(want) != id {
				return false, nil
			}
			continue
		}
		if err := validField(key); err != nil {
			return false, err
		}
		normalised, err := normalise(want)
		if err != nil {
			return false, err
		}
		got, ok := doc[key]
		if !ok || !reflect.DeepEqual(got, normalised) {
			return false, nil
		}
	}
	return true, nil
}

func (c *memoryCollection) find(collection string, filter Filter, limit int) ([]Document, []string, error) {
	results := []Document{}
	ids := []string{}
	for _, id := range c.order {
		doc := c.docs[id]
		ok, err := matches(doc, id, filter)
		if err != nil {
			return nil, nil, PostgresError(collection, err)
		}
		if !ok {
			continue
		}
		out := make(Document, len(doc)+1)
		for k, v := range doc {
			out[k] = v
		}
		out["id"] = id
		results = append(results, out)
		ids = append(ids, id)
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, ids, nil
}

func uniqueViolation(collection string, field string) error {
	return PostgresError(collection, &pgconn.PgError{
		Severity: "ERROR",
		Code:     string(PostgresErrorCodeUniqueViolation),
		Message:  fmt.Sprintf("duplicate value for unique field %q", field),
	})
}

// checkUnique reports a violation when another document already holds one of the
// collection's unique values.
func (c *memoryCollection) checkUnique(collection string, id string, doc Document) error {
	for field := range c.unique {
		value, ok := doc[field]
		if !ok {
			continue
		}
		for otherId, other := range c.docs {
			if otherId != id && reflect.DeepEqual(other[field], value) {
				return uniqueViolation(collection, field)
			}
		}
	}
	return nil
}

func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter Filter) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, NotFoundError(collection)
	}
	docs, _, err := c.find(collection, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, NotFoundError(collection)
	}
	return docs[0], nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return []Document{}, nil
	}
	docs, _, err := c.find(collection, filter, 0)
	return docs, err
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	id, body := splitId(doc)
	body, err := normaliseDocument(body)
	if err != nil {
		return "", PostgresError(collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	if _, exists := c.docs[id]; exists {
		return "", uniqueViolation(collection, "id")
	}
	if err := c.checkUnique(collection, id, body); err != nil {
		return "", err
	}
	c.docs[id] = body
	c.order = append(c.order, id)
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection string, filter Filter, set Document) (int64, error) {
	if len(filter) == 0 {
		return 0, PostgresError(collection, ErrUnfilteredWrite)
	}
	if _, ok := set["id"]; ok {
		return 0, PostgresError(collection, fmt.Errorf("the id of a document cannot be updated"))
	}
	changes, err := normaliseDocument(set)
	if err != nil {
		return 0, PostgresError(collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	_, ids, err := c.find(collection, filter, 0)
	if err != nil {
		return 0, err
	}
	updated := make(map[string]Document, len(ids))
	for _, id := range ids {
		merged := make(Document, len(c.docs[id])+len(changes))
		for k, v := range c.docs[id] {
			merged[k] = v
		}
		for k, v := range changes {
			merged[k] = v
		}
		if err := c.checkUnique(collection, id, merged); err != nil {
			return 0, err
		}
		updated[id] = merged
	}
	for id, doc := range updated {
		c.docs[id] = doc
	}
	return int64(len(ids)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, filter Filter) (int64, error) {
	if len(filter) == 0 {
		return 0, PostgresError(collection, ErrUnfilteredWrite)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	_, ids, err := c.find(collection, filter, 0)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		delete(c.docs, id)
		removed[id] = true
	}
	order := c.order[:0]
	for _, id := range c.order {
		if !removed[id] {
			order = append(order, id)
		}
	}
	c.order = order
	return int64(len(ids)), nil
}

func (s *MemoryStore) EnsureUnique(ctx context.Context, collection string, field string) error {
	if err := validField(field); err != nil {
		return PostgresError(collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection).unique[field] = true
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() {}
