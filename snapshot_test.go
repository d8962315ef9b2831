package vstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestSnapshot_roundTrip(t *testing.T) {
	ctx := context.Background()
	src := setupNotes(t)
	_, err := src.Store("notes").BatchCreate(ctx, []Record{
		{"id": "n1", "keyword": "alpha", "n": 1.5},
		{"id": "n2", "keyword": "beta", "tags": []any{"x", "y"}},
	})
	require.NoError(t, err)
	require.NoError(t, src.Object("settings").Set(ctx, Record{"theme": "dark"}))
	require.NoError(t, src.EnsureStore(ctx, StoreDescriptor{Name: "extra", Indexes: []IndexDescriptor{NewIndex("k")}}))

	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, &buf))

	dst := openTestDB(t, newTestEngine(t, boltEngine), notesSchema(), testOptions())
	require.NoError(t, dst.Store("notes").Create(ctx, Record{"id": "stale"}))
	var rec recorder
	dst.OnChange("notes", rec.listen)

	require.NoError(t, dst.Import(ctx, &buf))

	want, err := src.Store("notes").GetAll(ctx)
	require.NoError(t, err)
	got, err := dst.Store("notes").GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got, "import replaces the store contents")

	srcObj, err := src.Object("settings").Get(ctx)
	require.NoError(t, err)
	dstObj, err := dst.Object("settings").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, srcObj, dstObj)

	assert.Contains(t, storeNames(t, dst), "extra", "import creates missing stores")

	page, err := dst.Store("notes").GetPage(ctx, Query{PageNo: 1, PageSize: 5, Keyword: "alp"})
	require.NoError(t, err)
	assert.Equal(t, []any{"n1"}, ids(page.List), "indexes are rebuilt on import")

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, ActionBatchCreateUpdate, events[0].Action)
	assert.Len(t, events[0].Data, 2)
}

func TestSnapshot_rejectsGarbage(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)

	assert.Error(t, db.Import(ctx, bytes.NewReader([]byte("definitely not lz4"))))

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	require.NoError(t, msgpack.NewEncoder(zw).Encode(&snapshotHeader{Magic: "NOPE", Version: snapshotVersion}))
	require.NoError(t, zw.Close())
	assert.ErrorContains(t, db.Import(ctx, &buf), "not a snapshot")

	buf.Reset()
	zw = lz4.NewWriter(&buf)
	require.NoError(t, msgpack.NewEncoder(zw).Encode(&snapshotHeader{Magic: snapshotMagic, Version: snapshotVersion, StoreCount: 2}))
	require.NoError(t, zw.Close())
	assert.ErrorContains(t, db.Import(ctx, &buf), "truncated")
}
