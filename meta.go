package vstore

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	metaBucket      = "__vstore_meta"
	storeBucketPref = "store:"
	dataSubBucket   = "data"
	indexSubPref    = "index:"
)

var metaStateKey = []byte("_state")

// dbState is the persisted description of a database: its schema version
// and the stores that exist at that version.
type dbState struct {
	Version  uint64                      `msgpack:"v"`
	Stores   map[string]*StoreDescriptor `msgpack:"s"`
	LastSeen time.Time                   `msgpack:"t"`
}

func newDBState() *dbState {
	return &dbState{Stores: make(map[string]*StoreDescriptor)}
}

func loadDBState(stx storageTx) (*dbState, error) {
	st := newDBState()
	b := stx.Bucket(metaBucket, "")
	if b == nil {
		return st, nil
	}
	raw := b.Get(metaStateKey)
	if raw == nil {
		return st, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(st); err != nil {
		return nil, dataErrf(raw, 0, err, "failed to decode database state")
	}
	if st.Stores == nil {
		st.Stores = make(map[string]*StoreDescriptor)
	}
	return st, nil
}

func (st *dbState) save(stx storageTx, now time.Time) error {
	st.LastSeen = now
	var bb bytesBuilder
	enc := msgpack.NewEncoder(&bb)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("failed to encode database state: %w", err)
	}
	b, err := stx.CreateBucket(metaBucket, "")
	if err != nil {
		return err
	}
	return b.Put(metaStateKey, bb.Buf)
}

func (st *dbState) storeNames() []string {
	names := make([]string, 0, len(st.Stores))
	for name := range st.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// clone copies the state so that connections keep an immutable snapshot.
func (st *dbState) clone() *dbState {
	out := &dbState{
		Version:  st.Version,
		Stores:   make(map[string]*StoreDescriptor, len(st.Stores)),
		LastSeen: st.LastSeen,
	}
	for name, desc := range st.Stores {
		d := *desc
		d.Indexes = append([]IndexDescriptor(nil), desc.Indexes...)
		out.Stores[name] = &d
	}
	return out
}

func storeBucketName(store string) string {
	return storeBucketPref + store
}

func indexBucketName(index string) string {
	return indexSubPref + index
}
