package cloudvm_db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Document is one stored JSON object. The "id" key always holds the document id.
type Document map[string]any

// Filter selects documents whose fields equal the given values. "id" matches the id.
type Filter map[string]any

// DocumentStore is the persistence collaborator handlers are built on.
//
// FindOne returns a *QueryBuilderError matching ErrNoDocument when nothing matches. Update and
// Delete refuse an empty filter with ErrUnfilteredWrite. Insert assigns a new id unless the
// document carries one, and returns it.
type DocumentStore interface {
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	Update(ctx context.Context, collection string, filter Filter, set Document) (int64, error)
	Delete(ctx context.Context, collection string, filter Filter) (int64, error)
	EnsureUnique(ctx context.Context, collection string, field string) error
	Ping(ctx context.Context) error
	Close()
}

// String returns the field as a string, or "" when it is missing or not a string.
func (d Document) String(key string) string {
	value, _ := d[key].(string)
	return value
}

// ID returns the document id.
func (d Document) ID() string {
	return d.String("id")
}

// Without returns a shallow copy without the given keys.
func (d Document) Without(keys ...string) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Decode converts the document into a typed value through its JSON form.
func (d Document) Decode(target any) error {
	encoded, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, target)
}

// ToDocument converts a typed value into a Document through its JSON form.
func ToDocument(value any) (Document, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("value is not a JSON object: %w", err)
	}
	return doc, nil
}

// splitId separates the id from the rest of the document, generating one when absent.
func splitId(doc Document) (string, Document) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	return id, doc.Without("id")
}
