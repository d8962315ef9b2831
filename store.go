package vstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// DefaultPageIndex is the index GetPage walks unless told otherwise.
const DefaultPageIndex = "keyword"

// PrimaryKey as PageOptions.Index walks the store itself in key order.
const PrimaryKey = "\x00primary"

// Store exposes record operations on one store. Every call runs in its own
// transaction.
type Store struct {
	core accessCore
	name string
}

type AllResult struct {
	Total int      `json:"total"`
	List  []Record `json:"list"`
}

type Page struct {
	Pages int      `json:"pages"`
	Total int      `json:"total"`
	List  []Record `json:"list"`
}

type Query struct {
	PageNo   int    `json:"pageNo"`
	PageSize int    `json:"pageSize"`
	Keyword  string `json:"keyword,omitempty"`
}

type PageOptions struct {
	Query
	// Index defaults to DefaultPageIndex; PrimaryKey walks the store.
	Index string
	// Direction defaults to Reverse.
	Direction Direction
	// Forward overrides Direction, since the zero Direction means Forward.
	directionSet bool
}

// WithDirection returns a copy of opt walking in dir.
func (opt PageOptions) WithDirection(dir Direction) PageOptions {
	opt.Direction = dir
	opt.directionSet = true
	return opt
}

func (s *Store) Name() string { return s.name }

// Create stores data as a new record, or merges it into the record with the
// same id.
func (s *Store) Create(ctx context.Context, data Record) error {
	return s.createOrUpdate(ctx, data, false)
}

// Update merges data into the record with data's id, creating it if needed.
func (s *Store) Update(ctx context.Context, data Record) error {
	return s.createOrUpdate(ctx, data, false)
}

func (s *Store) createOrUpdate(ctx context.Context, data Record, batch bool) error {
	err := s.core.objectStore(ctx, s.name, ReadWrite, func(st *ObjectStore) error {
		var old Record
		if id, ok := data[FieldID]; ok && id != nil {
			// Lookups and deletes address records by string id.
			if _, isString := id.(string); !isString {
				return storeErrf(s.name, "", id, ErrInvalidKey, "record id must be a string, got %T", id)
			}
			var err error
			old, err = st.Get(id)
			if err != nil {
				return err
			}
		}
		if old != nil {
			return st.Put(old.Merge(data))
		}
		return st.Add(s.core.stampCreate(data))
	})
	if err != nil {
		return err
	}
	if !batch {
		s.core.notify(s.name, ActionCreateUpdate, data)
	}
	return nil
}

// BatchCreate applies Create to each item in order and returns the items
// that succeeded. Failed items are skipped; earlier items stay applied.
// One ActionBatchCreateUpdate event fires for the whole call.
func (s *Store) BatchCreate(ctx context.Context, items []Record) ([]Record, error) {
	return s.batchCreateUpdate(ctx, items)
}

func (s *Store) BatchUpdate(ctx context.Context, items []Record) ([]Record, error) {
	return s.batchCreateUpdate(ctx, items)
}

func (s *Store) batchCreateUpdate(ctx context.Context, items []Record) ([]Record, error) {
	succeeded := make([]Record, 0, len(items))
	var ctxErr error
	for i, item := range items {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		if err := s.createOrUpdate(ctx, item, true); err != nil {
			s.core.log().Warn("batch item failed", "store", s.name, "item", i, "err", err)
			continue
		}
		succeeded = append(succeeded, item)
	}
	s.core.notify(s.name, ActionBatchCreateUpdate, items)
	return succeeded, ctxErr
}

// Delete removes the record with the given id. Deleting a missing id succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.delete(ctx, id, false)
}

func (s *Store) delete(ctx context.Context, id string, batch bool) error {
	err := s.core.objectStore(ctx, s.name, ReadWrite, func(st *ObjectStore) error {
		return st.Delete(id)
	})
	if err != nil {
		return err
	}
	if !batch {
		s.core.notify(s.name, ActionDelete, id)
	}
	return nil
}

// BatchDelete deletes ids in order and reports the outcome per id. One
// ActionBatchDelete event fires for the whole call.
func (s *Store) BatchDelete(ctx context.Context, ids []string) (map[string]bool, error) {
	results := make(map[string]bool, len(ids))
	var ctxErr error
	for _, id := range ids {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		err := s.delete(ctx, id, true)
		if err != nil {
			s.core.log().Warn("batch delete failed", "store", s.name, "id", id, "err", err)
		}
		results[id] = err == nil
	}
	s.core.notify(s.name, ActionBatchDelete, ids)
	return results, ctxErr
}

// DeleteAll removes every record. The ActionDeleteAll event fires even when
// clearing fails.
func (s *Store) DeleteAll(ctx context.Context) error {
	err := s.core.objectStore(ctx, s.name, ReadWrite, func(st *ObjectStore) error {
		return st.Clear()
	})
	s.core.notify(s.name, ActionDeleteAll, nil)
	return err
}

// GetID returns the record with the given id, or nil if there is none.
func (s *Store) GetID(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := s.core.objectStore(ctx, s.name, ReadOnly, func(st *ObjectStore) error {
		var err error
		rec, err = st.Get(id)
		return err
	})
	return rec, err
}

// GetIDs looks up each id in order; missing or unreadable records are nil.
func (s *Store) GetIDs(ctx context.Context, ids []string) ([]Record, error) {
	list := make([]Record, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return list, err
		}
		rec, err := s.GetID(ctx, id)
		if err != nil {
			s.core.log().Warn("lookup failed", "store", s.name, "id", id, "err", err)
		}
		list = append(list, rec)
	}
	return list, nil
}

// GetAll returns every record, newest createTimestamp first.
func (s *Store) GetAll(ctx context.Context) (AllResult, error) {
	var list []Record
	err := s.core.objectStore(ctx, s.name, ReadOnly, func(st *ObjectStore) error {
		var err error
		list, err = st.GetAll()
		return err
	})
	if err != nil {
		return AllResult{List: []Record{}}, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreateTimestamp() > list[j].CreateTimestamp()
	})
	if list == nil {
		list = []Record{}
	}
	return AllResult{Total: len(list), List: list}, nil
}

// GetPage returns a page of records walking the keyword index newest first.
func (s *Store) GetPage(ctx context.Context, q Query) (Page, error) {
	return s.GetPageWith(ctx, PageOptions{Query: q})
}

// GetPageWith pages through an index. The cursor skips (PageNo-1)*PageSize
// entries, then collects entries whose stringified index key contains the
// keyword until PageNo*PageSize matches are collected or the index ends.
// Total and Pages describe the whole store, not the keyword matches.
func (s *Store) GetPageWith(ctx context.Context, opt PageOptions) (Page, error) {
	q := opt.Query
	if q.PageNo < 1 || q.PageSize < 1 {
		return Page{List: []Record{}}, fmt.Errorf("%w: page %d of size %d", ErrInvalidQuery, q.PageNo, q.PageSize)
	}
	index := opt.Index
	if index == "" {
		index = DefaultPageIndex
	}
	dir := Reverse
	if opt.directionSet {
		dir = opt.Direction
	}
	start, end := (q.PageNo-1)*q.PageSize, q.PageNo*q.PageSize

	page := Page{List: []Record{}}
	err := s.core.objectStore(ctx, s.name, ReadOnly, func(st *ObjectStore) error {
		total, err := st.Count()
		if err != nil {
			return err
		}
		page.Total = total
		page.Pages = (total + q.PageSize - 1) / q.PageSize

		var cur *Cursor
		if index == PrimaryKey {
			cur, err = st.OpenCursor(dir)
		} else {
			var idx *IndexHandle
			idx, err = st.Index(index)
			if err == nil {
				cur, err = idx.OpenCursor(dir)
			}
		}
		if err != nil {
			return err
		}

		ok := cur.Next()
		if ok && start > 0 {
			ok = cur.Advance(start)
		}
		for matched := 0; ok && matched < end; ok = cur.Next() {
			if strings.Contains(keyString(cur.Key()), q.Keyword) {
				matched++
				page.List = append(page.List, cur.Value())
			}
		}
		return cur.Err()
	})
	return page, err
}

// OnChange registers fn for every mutation of this store.
func (s *Store) OnChange(fn Listener) *Subscription {
	return s.core.subscribe(s.name, fn)
}
