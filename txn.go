package vstore

import (
	"bytes"
	"fmt"
	"sync/atomic"
)

// Txn is a transaction over a single store. Every Txn must end with Commit
// or Abort.
type Txn struct {
	conn    *Conn
	desc    *StoreDescriptor
	stx     storageTx
	mode    Mode
	counter *atomic.Int32
	done    bool
}

func (t *Txn) Mode() Mode { return t.mode }

func (t *Txn) Store() *ObjectStore {
	return &ObjectStore{txn: t, desc: t.desc}
}

func (t *Txn) finish() {
	t.done = true
	t.counter.Add(-1)
}

func (t *Txn) Commit() error {
	if t.done {
		return ErrTxDone
	}
	var err error
	if t.mode == ReadOnly {
		err = t.stx.Rollback()
	} else {
		err = t.stx.Commit()
	}
	t.finish()
	return err
}

// Abort rolls the transaction back. Aborting a finished transaction is a no-op.
func (t *Txn) Abort() error {
	if t.done {
		return nil
	}
	err := t.stx.Rollback()
	t.finish()
	return err
}

// ObjectStore gives access to the records of one store within a transaction.
type ObjectStore struct {
	txn  *Txn
	desc *StoreDescriptor
}

func (s *ObjectStore) Name() string    { return s.desc.Name }
func (s *ObjectStore) KeyPath() string { return s.desc.KeyPath }

func (s *ObjectStore) IndexNames() []string {
	return descriptorIndexNames(s.desc.Indexes)
}

func descriptorIndexNames(indexes []IndexDescriptor) []string {
	names := make([]string, len(indexes))
	for i, idx := range indexes {
		names[i] = idx.Name
	}
	return names
}

func (s *ObjectStore) bucket(sub string) (storageBucket, error) {
	if s.txn.done {
		return nil, ErrTxDone
	}
	b := s.txn.stx.Bucket(storeBucketName(s.desc.Name), sub)
	if b == nil {
		return nil, storeErrf(s.desc.Name, "", nil, ErrUnknownStore, "missing bucket %s", sub)
	}
	return b, nil
}

func (s *ObjectStore) requireWritable() error {
	if s.txn.done {
		return ErrTxDone
	}
	if s.txn.mode != ReadWrite {
		return storeErrf(s.desc.Name, "", nil, ErrReadOnly, "")
	}
	return nil
}

func (s *ObjectStore) encodePrimary(key any) ([]byte, any, error) {
	k, err := normalizeKey(key)
	if err != nil {
		return nil, nil, storeErrf(s.desc.Name, "", key, err, "")
	}
	return encodeKey(nil, k), k, nil
}

// Get returns the record stored under key, or nil if there is none.
func (s *ObjectStore) Get(key any) (Record, error) {
	rawKey, _, err := s.encodePrimary(key)
	if err != nil {
		return nil, err
	}
	data, err := s.bucket(dataSubBucket)
	if err != nil {
		return nil, err
	}
	raw := data.Get(rawKey)
	if raw == nil {
		return nil, nil
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, storeErrf(s.desc.Name, "", key, err, "")
	}
	return rec, nil
}

// Put inserts or replaces a record.
func (s *ObjectStore) Put(rec Record) error {
	return s.write(rec, false)
}

// Add inserts a record, failing with ErrKeyExists if its key is taken.
func (s *ObjectStore) Add(rec Record) error {
	return s.write(rec, true)
}

func (s *ObjectStore) write(rec Record, noOverwrite bool) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	keyVal, found := valueAtPath(rec, s.desc.KeyPath)
	if !found {
		return storeErrf(s.desc.Name, "", nil, ErrInvalidKey, "record has no value at key path %q", s.desc.KeyPath)
	}
	rawKey, _, err := s.encodePrimary(keyVal)
	if err != nil {
		return err
	}
	data, err := s.bucket(dataSubBucket)
	if err != nil {
		return err
	}

	var old Record
	if oldRaw := data.Get(rawKey); oldRaw != nil {
		if noOverwrite {
			return storeErrf(s.desc.Name, "", keyVal, ErrKeyExists, "")
		}
		old, err = decodeRecord(oldRaw)
		if err != nil {
			return storeErrf(s.desc.Name, "", keyVal, err, "decoding old value")
		}
	}

	value, err := encodeRecord(nil, rec, s.txn.conn.Version())
	if err != nil {
		return storeErrf(s.desc.Name, "", keyVal, err, "")
	}

	for _, idx := range s.desc.Indexes {
		ib, err := s.bucket(indexBucketName(idx.Name))
		if err != nil {
			return err
		}
		if old != nil {
			if err := deleteIndexEntries(ib, idx, old, rawKey); err != nil {
				return storeErrf(s.desc.Name, idx.Name, keyVal, err, "")
			}
		}
		if err := putIndexEntries(s.desc.Name, ib, idx, rec, rawKey); err != nil {
			return err
		}
	}
	return data.Put(rawKey, value)
}

// Delete removes the record stored under key. Deleting a missing key succeeds.
func (s *ObjectStore) Delete(key any) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	rawKey, _, err := s.encodePrimary(key)
	if err != nil {
		return err
	}
	data, err := s.bucket(dataSubBucket)
	if err != nil {
		return err
	}
	oldRaw := data.Get(rawKey)
	if oldRaw == nil {
		return nil
	}
	if len(s.desc.Indexes) > 0 {
		old, err := decodeRecord(oldRaw)
		if err != nil {
			return storeErrf(s.desc.Name, "", key, err, "decoding old value")
		}
		for _, idx := range s.desc.Indexes {
			ib, err := s.bucket(indexBucketName(idx.Name))
			if err != nil {
				return err
			}
			if err := deleteIndexEntries(ib, idx, old, rawKey); err != nil {
				return storeErrf(s.desc.Name, idx.Name, key, err, "")
			}
		}
	}
	return data.Delete(rawKey)
}

// Clear removes every record of the store.
func (s *ObjectStore) Clear() error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	root := storeBucketName(s.desc.Name)
	subs := []string{dataSubBucket}
	for _, idx := range s.desc.Indexes {
		subs = append(subs, indexBucketName(idx.Name))
	}
	for _, sub := range subs {
		if err := s.txn.stx.DeleteBucket(root, sub); err != nil && err != errBucketNotFound {
			return storeErrf(s.desc.Name, "", nil, err, "clearing %s", sub)
		}
		if _, err := s.txn.stx.CreateBucket(root, sub); err != nil {
			return storeErrf(s.desc.Name, "", nil, err, "clearing %s", sub)
		}
	}
	return nil
}

func (s *ObjectStore) Count() (int, error) {
	data, err := s.bucket(dataSubBucket)
	if err != nil {
		return 0, err
	}
	return data.KeyCount(), nil
}

// GetAll returns every record in primary key order.
func (s *ObjectStore) GetAll() ([]Record, error) {
	c, err := s.OpenCursor(Forward)
	if err != nil {
		return nil, err
	}
	var list []Record
	for c.Next() {
		list = append(list, c.Value())
	}
	return list, c.Err()
}

// First returns the record with the lowest primary key, or nil.
func (s *ObjectStore) First() (Record, error) {
	c, err := s.OpenCursor(Forward)
	if err != nil {
		return nil, err
	}
	if c.Next() {
		return c.Value(), nil
	}
	return nil, c.Err()
}

// OpenCursor iterates the store in primary key order.
func (s *ObjectStore) OpenCursor(dir Direction) (*Cursor, error) {
	data, err := s.bucket(dataSubBucket)
	if err != nil {
		return nil, err
	}
	return &Cursor{store: s, data: data, c: data.Cursor(), reverse: dir == Reverse}, nil
}

func (s *ObjectStore) Index(name string) (*IndexHandle, error) {
	idx := s.desc.index(name)
	if idx == nil {
		return nil, storeErrf(s.desc.Name, name, nil, ErrUnknownIndex, "")
	}
	return &IndexHandle{store: s, desc: *idx}, nil
}

type IndexHandle struct {
	store *ObjectStore
	desc  IndexDescriptor
}

func (h *IndexHandle) Name() string                { return h.desc.Name }
func (h *IndexHandle) Descriptor() IndexDescriptor { return h.desc }

func (h *IndexHandle) Count() (int, error) {
	ib, err := h.store.bucket(indexBucketName(h.desc.Name))
	if err != nil {
		return 0, err
	}
	return ib.KeyCount(), nil
}

// OpenCursor iterates index entries ordered by index key, then primary key.
func (h *IndexHandle) OpenCursor(dir Direction) (*Cursor, error) {
	data, err := h.store.bucket(dataSubBucket)
	if err != nil {
		return nil, err
	}
	ib, err := h.store.bucket(indexBucketName(h.desc.Name))
	if err != nil {
		return nil, err
	}
	return &Cursor{store: h.store, index: &h.desc, data: data, c: ib.Cursor(), reverse: dir == Reverse}, nil
}

// indexKeys lists the keys a record contributes to an index.
func indexKeys(idx IndexDescriptor, rec Record) []any {
	if rec == nil {
		return nil
	}
	if idx.IsMulti {
		v, ok := valueAtPath(rec, idx.KeyPath[0])
		if !ok {
			return nil
		}
		if arr, isArr := v.([]any); isArr {
			var keys []any
			for _, el := range arr {
				k, err := normalizeKey(el)
				if err != nil {
					continue
				}
				dup := false
				for _, prev := range keys {
					if compareKeys(prev, k) == 0 {
						dup = true
						break
					}
				}
				if !dup {
					keys = append(keys, k)
				}
			}
			return keys
		}
	}
	k, ok := extractKey(rec, idx.KeyPath)
	if !ok {
		return nil
	}
	return []any{k}
}

// Index entries are keyed by encoded index key followed by the encoded
// primary key; the value is the encoded primary key.
func indexEntryKey(ik any, rawPrimary []byte) []byte {
	return appendRaw(encodeKey(nil, ik), rawPrimary)
}

func putIndexEntries(store string, ib storageBucket, idx IndexDescriptor, rec Record, rawPrimary []byte) error {
	for _, ik := range indexKeys(idx, rec) {
		if idx.IsUnique {
			prefix := encodeKey(nil, ik)
			k, v := ib.Cursor().Seek(prefix)
			if k != nil && bytes.HasPrefix(k, prefix) && !bytes.Equal(v, rawPrimary) {
				return storeErrf(store, idx.Name, ik, ErrConstraint, "")
			}
		}
		if err := ib.Put(indexEntryKey(ik, rawPrimary), rawPrimary); err != nil {
			return storeErrf(store, idx.Name, ik, err, "")
		}
	}
	return nil
}

func deleteIndexEntries(ib storageBucket, idx IndexDescriptor, rec Record, rawPrimary []byte) error {
	for _, ik := range indexKeys(idx, rec) {
		if err := ib.Delete(indexEntryKey(ik, rawPrimary)); err != nil {
			return err
		}
	}
	return nil
}

// Direction selects the iteration order of a cursor.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "next"
	case Reverse:
		return "prev"
	default:
		return fmt.Sprintf("invalid direction %d", int(d))
	}
}

// Cursor walks a store or an index. Call Next before reading the first
// position; Next returns false at the end or on error (see Err).
type Cursor struct {
	store   *ObjectStore
	index   *IndexDescriptor
	data    storageBucket
	c       storageCursor
	reverse bool
	started bool

	key     any
	primary any
	value   Record
	err     error
}

func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	var k, v []byte
	switch {
	case !c.started && c.reverse:
		k, v = c.c.Last()
	case !c.started:
		k, v = c.c.First()
	case c.reverse:
		k, v = c.c.Prev()
	default:
		k, v = c.c.Next()
	}
	c.started = true
	return c.load(k, v)
}

// Advance moves the cursor n positions forward in its direction.
func (c *Cursor) Advance(n int) bool {
	for i := 0; i < n; i++ {
		if !c.Next() {
			return false
		}
	}
	return n > 0 || c.key != nil
}

func (c *Cursor) load(k, v []byte) bool {
	c.key, c.primary, c.value = nil, nil, nil
	if k == nil {
		return false
	}

	key, rest, err := decodeKey(k)
	if err != nil {
		c.err = err
		return false
	}
	rawValue := v
	if c.index != nil {
		primary, _, err := decodeKey(rest)
		if err != nil {
			c.err = err
			return false
		}
		c.primary = primary
		rawValue = c.data.Get(v)
		if rawValue == nil {
			c.err = storeErrf(c.store.desc.Name, c.index.Name, key, dataErrf(k, 0, nil, "dangling index entry"), "")
			return false
		}
	} else {
		c.primary = key
	}
	c.key = key

	rec, err := decodeRecord(rawValue)
	if err != nil {
		c.err = storeErrf(c.store.desc.Name, "", c.primary, err, "")
		return false
	}
	c.value = rec
	return true
}

// Key returns the index key (or the primary key for store cursors).
func (c *Cursor) Key() any { return c.key }

func (c *Cursor) PrimaryKey() any { return c.primary }

func (c *Cursor) Value() Record { return c.value }

func (c *Cursor) Err() error { return c.err }
