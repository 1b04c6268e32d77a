package cloudvm_db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Ping(ctx))

	id, err := store.Insert(ctx, "vms", Document{"name": "web", "userId": "u1", "cpus": 2})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = store.Insert(ctx, "vms", Document{"id": "fixed", "name": "db", "userId": "u2", "cpus": 4})
	require.NoError(t, err)

	doc, err := store.FindOne(ctx, "vms", Filter{"id": id})
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID())
	assert.Equal(t, "web", doc.String("name"))
	assert.Equal(t, float64(2), doc["cpus"])

	doc, err = store.FindOne(ctx, "vms", Filter{"cpus": 4})
	require.NoError(t, err)
	assert.Equal(t, "fixed", doc.ID())

	docs, err := store.Find(ctx, "vms", Filter{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, id, docs[0].ID())
	assert.Equal(t, "fixed", docs[1].ID())

	n, err := store.Update(ctx, "vms", Filter{"id": "fixed"}, Document{"status": "running"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	doc, err = store.FindOne(ctx, "vms", Filter{"id": "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "running", doc.String("status"))
	assert.Equal(t, "db", doc.String("name"))

	n, err = store.Delete(ctx, "vms", Filter{"userId": "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = store.FindOne(ctx, "vms", Filter{"id": id})
	assert.ErrorIs(t, err, ErrNoDocument)

	docs, err = store.Find(ctx, "vms", Filter{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, err := store.Insert(ctx, "vms", Document{"name": "web"})
	require.NoError(t, err)

	doc, err := store.FindOne(ctx, "vms", Filter{"id": id})
	require.NoError(t, err)
	doc["name"] = "changed"

	doc, err = store.FindOne(ctx, "vms", Filter{"id": id})
	require.NoError(t, err)
	assert.Equal(t, "web", doc.String("name"))
}

func TestMemoryStoreMissingCollection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.FindOne(ctx, "nothing", Filter{"id": "x"})
	assert.ErrorIs(t, err, ErrNoDocument)
	docs, err := store.Find(ctx, "nothing", Filter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	n, err := store.Update(ctx, "nothing", Filter{"id": "x"}, Document{"a": 1})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStoreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.EnsureUnique(ctx, "users", "email"))

	_, err := store.Insert(ctx, "users", Document{"email": "a@example.com"})
	require.NoError(t, err)
	other, err := store.Insert(ctx, "users", Document{"email": "b@example.com"})
	require.NoError(t, err)

	_, err = store.Insert(ctx, "users", Document{"email": "a@example.com"})
	assert.True(t, IsViolation(err, PostgresErrorCodeUniqueViolation))

	_, err = store.Update(ctx, "users", Filter{"id": other}, Document{"email": "a@example.com"})
	assert.True(t, IsViolation(err, PostgresErrorCodeUniqueViolation))

	_, err = store.Insert(ctx, "users", Document{"id": other, "email": "c@example.com"})
	assert.True(t, IsViolation(err, PostgresErrorCodeUniqueViolation))
}

func TestMemoryStoreRefusesUnfilteredWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Insert(ctx, "vms", Document{"name": "web"})
	require.NoError(t, err)

	_, err = store.Delete(ctx, "vms", Filter{})
	assert.ErrorIs(t, err, ErrUnfilteredWrite)
	_, err = store.Update(ctx, "vms", nil, Document{"name": "x"})
	assert.ErrorIs(t, err, ErrUnfilteredWrite)
	_, err = store.Update(ctx, "vms", Filter{"name": "web"}, Document{"id": "x"})
	assert.Error(t, err)
}

func TestDocumentHelpers(t *testing.T) {
	type vm struct {
		Name string `json:"name"`
		CPUs int    `json:"cpus"`
	}
	doc, err := ToDocument(vm{Name: "web", CPUs: 2})
	require.NoError(t, err)
	assert.Equal(t, Document{"name": "web", "cpus": float64(2)}, doc)

	var decoded vm
	require.NoError(t, doc.Decode(&decoded))
	assert.Equal(t, vm{Name: "web", CPUs: 2}, decoded)

	assert.Equal(t, Document{"cpus": float64(2)}, doc.Without("name"))
	assert.Equal(t, "web", doc.String("name"))
	assert.Equal(t, "", doc.String("cpus"))

	_, err = ToDocument([]int{1})
	assert.Error(t, err)
}
