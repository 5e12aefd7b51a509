package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Name  string
	Count int
}

func TestMemoryStorage_SetGetRoundtrip(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, "k1", testRecord{Name: "alice", Count: 2}, 0))

	var got testRecord
	require.NoError(t, storage.Get(ctx, "k1", &got))
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, 2, got.Count)

	var missing testRecord
	err := storage.Get(ctx, "nope", &missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_KeyExpiry(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, "k1", testRecord{Name: "alice"}, 0))
	require.NoError(t, storage.Expire(ctx, "k1", time.Now().Add(-time.Second)))

	var got testRecord
	err := storage.Get(ctx, "k1", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_IncrAttr(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	n, err := storage.IncrAttr(ctx, "counter", "failures", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = storage.IncrAttr(ctx, "counter", "failures", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var got int64
	require.NoError(t, storage.GetAttr(ctx, "counter", "failures", &got))
	assert.Equal(t, int64(2), got)
}

func TestMemoryStorage_AttrExpiryAndDelete(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, storage.SetAttr(ctx, "k1", "f1", "v1"))
	require.NoError(t, storage.SetAttr(ctx, "k1", "f2", "v2"))
	require.NoError(t, storage.ExpireAttr(ctx, "k1", time.Now().Add(-time.Second), "f1"))

	var got string
	assert.ErrorIs(t, storage.GetAttr(ctx, "k1", "f1", &got), ErrNotFound)
	require.NoError(t, storage.GetAttr(ctx, "k1", "f2", &got))
	assert.Equal(t, "v2", got)

	require.NoError(t, storage.DelAttr(ctx, "k1", "f2"))
	assert.ErrorIs(t, storage.GetAttr(ctx, "k1", "f2", &got), ErrNotFound)
}

func TestMemoryStorage_GetAttrScanTypes(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, storage.SetAttr(ctx, "k1", "num", int64(42)))
	require.NoError(t, storage.SetAttr(ctx, "k1", "flag", true))

	var num int64
	require.NoError(t, storage.GetAttr(ctx, "k1", "num", &num))
	assert.Equal(t, int64(42), num)

	var flag bool
	require.NoError(t, storage.GetAttr(ctx, "k1", "flag", &flag))
	assert.True(t, flag)
}

func TestStorageWithPrefix_Isolation(t *testing.T) {
	backend := NewMemoryStorage()
	ctx := context.Background()

	a := StorageWithPrefix(backend, "a:")
	b := StorageWithPrefix(backend, "b:")

	require.NoError(t, a.SetAttr(ctx, "k", "f", "from-a"))

	var got string
	assert.ErrorIs(t, b.GetAttr(ctx, "k", "f", &got), ErrNotFound)
	require.NoError(t, a.GetAttr(ctx, "k", "f", &got))
	assert.Equal(t, "from-a", got)
}

func TestStore_TypedRoundtrip(t *testing.T) {
	backend := NewMemoryStorage()
	records := New[testRecord](backend, "rec:")
	ctx := context.Background()

	require.NoError(t, records.Set(ctx, "r1", testRecord{Name: "bob", Count: 7}, time.Minute))

	got, err := records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Name)
	assert.Equal(t, 7, got.Count)

	require.NoError(t, records.Delete(ctx, "r1"))
	_, err = records.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}
