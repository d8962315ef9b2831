package vstore

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_createAndGet(t *testing.T) {
	for _, kind := range engineKinds {
		t.Run(kind.String(), func(t *testing.T) {
			ctx := context.Background()
			db := openTestDB(t, newTestEngine(t, kind), notesSchema(), testOptions())
			notes := db.Store("notes")

			require.NoError(t, notes.Create(ctx, Record{"title": "first", "keyword": "go"}))

			rec, err := notes.GetID(ctx, "id001")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, "id001", rec.ID())
			assert.Equal(t, "first", rec["title"])
			assert.NotEmpty(t, rec[FieldCreateDate])
			assert.Positive(t, rec.CreateTimestamp())

			again, err := notes.GetID(ctx, "id001")
			require.NoError(t, err)
			assert.Equal(t, rec, again)

			missing, err := notes.GetID(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestStore_updateMergesAndUpserts(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	notes := db.Store("notes")

	require.NoError(t, notes.Create(ctx, Record{"id": "n1", "title": "old", "body": "keep"}))
	before, err := notes.GetID(ctx, "n1")
	require.NoError(t, err)

	require.NoError(t, notes.Update(ctx, Record{
		"id":                 "n1",
		"title":              "new",
		FieldCreateTimestamp: int64(1),
	}))
	after, err := notes.GetID(ctx, "n1")
	require.NoError(t, err)

	want := before.Clone()
	want["title"] = "new"
	if diff := cmp.Diff(want, after); diff != "" {
		t.Errorf("updated record (-want +got):\n%s", diff)
	}

	require.NoError(t, notes.Update(ctx, Record{"id": "n2", "title": "upserted"}))
	rec, err := notes.GetID(ctx, "n2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "upserted", rec["title"])
	assert.NotEmpty(t, rec[FieldCreateDate])
}

func TestStore_batchCreate(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	notes := db.Store("notes")
	var rec recorder
	notes.OnChange(rec.listen)

	a := Record{"id": "a", "keyword": "x"}
	b := Record{"id": true}
	c := Record{"id": "c", "keyword": "y"}
	ok, err := notes.BatchCreate(ctx, []Record{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []Record{a, c}, ok)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, ActionBatchCreateUpdate, events[0].Action)
	assert.Equal(t, []Record{a, b, c}, events[0].Data)

	all, err := notes.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	ok, err = notes.BatchUpdate(ctx, []Record{{"id": "a", "keyword": "z"}})
	require.NoError(t, err)
	assert.Len(t, ok, 1)
	got, err := notes.GetID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "z", got["keyword"])
	assert.Len(t, rec.all(), 2)
}

func TestStore_createRejectsNonStringID(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	notes := db.Store("notes")

	for _, id := range []any{5.0, int64(7), []any{"a", "b"}} {
		err := notes.Create(ctx, Record{"id": id, "title": "x"})
		assert.ErrorIs(t, err, ErrInvalidKey, "id %v", id)
	}
	all, err := notes.GetAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, all.Total)
}

func TestStore_batchCreate_uniqueViolation(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	tags := db.Store("tags")

	ok, err := tags.BatchCreate(ctx, []Record{
		{"id": "t1", "name": "go"},
		{"id": "t2", "name": "go"},
		{"id": "t3", "name": "db"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"t1", "t3"}, ids(ok))

	rec, err := tags.GetID(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, rec, "failed item leaves nothing behind")
}

func TestStore_batchCreate_cancelled(t *testing.T) {
	db := setupNotes(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := db.Store("notes").BatchCreate(ctx, []Record{{"id": "a"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ok)
}

func TestStore_delete(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	notes := db.Store("notes")
	var rec recorder
	notes.OnChange(rec.listen)

	_, err := notes.BatchCreate(ctx, []Record{{"id": "a"}, {"id": "b"}, {"id": "c"}})
	require.NoError(t, err)

	require.NoError(t, notes.Delete(ctx, "a"))
	require.NoError(t, notes.Delete(ctx, "a"), "deleting a missing id succeeds")

	results, err := notes.BatchDelete(ctx, []string{"b", "zzz"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"b": true, "zzz": true}, results)

	got, err := notes.GetIDs(ctx, []string{"a", "c", "b"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Nil(t, got[0])
	assert.Equal(t, "c", got[1].ID())
	assert.Nil(t, got[2])

	assert.Equal(t, []Action{ActionBatchCreateUpdate, ActionDelete, ActionDelete, ActionBatchDelete}, rec.actions())
	events := rec.all()
	assert.Equal(t, "a", events[1].Data)
	assert.Equal(t, []string{"b", "zzz"}, events[3].Data)
}

func TestStore_deleteAll(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	notes := db.Store("notes")

	for _, n := range []int{0, 3} {
		var recs []Record
		for i := 0; i < n; i++ {
			recs = append(recs, Record{"keyword": "k"})
		}
		_, err := notes.BatchCreate(ctx, recs)
		require.NoError(t, err)

		var rec recorder
		sub := notes.OnChange(rec.listen)
		require.NoError(t, notes.DeleteAll(ctx))
		sub.Remove()

		assert.Equal(t, []Action{ActionDeleteAll}, rec.actions())
		assert.Nil(t, rec.all()[0].Data)

		all, err := notes.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, AllResult{Total: 0, List: []Record{}}, all)
	}
}

func TestStore_getAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	notes := db.Store("notes")

	// Primary key order differs from creation order.
	for _, id := range []string{"m", "z", "a", "q"} {
		require.NoError(t, notes.Create(ctx, Record{"id": id}))
	}
	all, err := notes.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, []any{"q", "a", "z", "m"}, ids(all.List))
	for i := 1; i < len(all.List); i++ {
		assert.GreaterOrEqual(t, all.List[i-1].CreateTimestamp(), all.List[i].CreateTimestamp())
	}
}

func seedKeywords(t *testing.T, st *Store, keywords ...string) {
	t.Helper()
	for i, kw := range keywords {
		require.NoError(t, st.Create(context.Background(), Record{"id": string(rune('a' + i)), "keyword": kw}))
	}
}

func TestStore_getPage(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	notes := db.Store("notes")
	seedKeywords(t, notes, "go-1", "go-2", "go-3", "go-4", "go-5")
	require.NoError(t, notes.Create(ctx, Record{"id": "x", "title": "no keyword"}))

	page, err := notes.GetPage(ctx, Query{PageNo: 1, PageSize: 2, Keyword: "go"})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total, "total counts the whole store")
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, []any{"e", "d"}, ids(page.List), "keyword index walked newest key first")

	// Page 2 skips two entries, then keeps collecting up to pageNo*pageSize matches.
	page, err = notes.GetPage(ctx, Query{PageNo: 2, PageSize: 2, Keyword: "go"})
	require.NoError(t, err)
	assert.Equal(t, []any{"c", "b", "a"}, ids(page.List))

	page, err = notes.GetPage(ctx, Query{PageNo: 1, PageSize: 10, Keyword: "-3"})
	require.NoError(t, err)
	assert.Equal(t, []any{"c"}, ids(page.List))

	page, err = notes.GetPage(ctx, Query{PageNo: 9, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, page.List)
	assert.NotNil(t, page.List)
}

func TestStore_getPageWith(t *testing.T) {
	ctx := context.Background()
	db := setupNotes(t)
	notes := db.Store("notes")
	seedKeywords(t, notes, "b", "a", "c")

	page, err := notes.GetPageWith(ctx, PageOptions{
		Query: Query{PageNo: 1, PageSize: 10},
	}.WithDirection(Forward))
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "a", "c"}, ids(page.List))

	page, err = notes.GetPageWith(ctx, PageOptions{
		Query: Query{PageNo: 1, PageSize: 2},
		Index: PrimaryKey,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"c", "b"}, ids(page.List))

	_, err = notes.GetPageWith(ctx, PageOptions{Query: Query{PageNo: 1, PageSize: 2}, Index: "nope"})
	assert.ErrorIs(t, err, ErrUnknownIndex)

	_, err = notes.GetPage(ctx, Query{PageNo: 0, PageSize: 2})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = notes.GetPage(ctx, Query{PageNo: 1, PageSize: 0})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStore_unknownStore(t *testing.T) {
	db := setupNotes(t)
	assert.Nil(t, db.Store("nope"))
	assert.Nil(t, db.Object("notes"))
	assert.Len(t, db.Stores(), 2)
	assert.Len(t, db.Objects(), 1)
}
