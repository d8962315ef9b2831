package vstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	snapshotMagic   = "VSNP"
	snapshotVersion = 1
)

// Snapshot stream layout, inside an lz4 frame: one snapshotHeader followed
// by StoreCount snapshotStore values, all msgpack-encoded.
type snapshotHeader struct {
	Magic      string `msgpack:"magic"`
	Version    int    `msgpack:"v"`
	Database   string `msgpack:"db"`
	DBVersion  uint64 `msgpack:"dbv"`
	StoreCount int    `msgpack:"n"`
}

type snapshotStore struct {
	Store   StoreDescriptor `msgpack:"store"`
	Records []Record        `msgpack:"records"`
}

// StoreDescriptors returns the descriptors of every store the database
// currently has, declared or not.
func (db *DB) StoreDescriptors(ctx context.Context) ([]StoreDescriptor, error) {
	if err := db.gate.wait(ctx); err != nil {
		return nil, err
	}
	var descs []StoreDescriptor
	err := db.ctl.withConn(func(conn *Conn) error {
		for _, n := range conn.StoreNames() {
			if desc, ok := conn.Store(n); ok {
				descs = append(descs, desc)
			}
		}
		return nil
	})
	return descs, err
}

// Export writes every store with all its records to w. Each store is read
// in its own transaction, so the snapshot is consistent per store only.
func (db *DB) Export(ctx context.Context, w io.Writer) error {
	descs, err := db.StoreDescriptors(ctx)
	if err != nil {
		return err
	}

	zw := lz4.NewWriter(w)
	enc := msgpack.NewEncoder(zw)
	err = enc.Encode(&snapshotHeader{
		Magic:      snapshotMagic,
		Version:    snapshotVersion,
		Database:   db.name,
		DBVersion:  db.Version(),
		StoreCount: len(descs),
	})
	if err != nil {
		return fmt.Errorf("vstore: writing snapshot header: %w", err)
	}

	for _, desc := range descs {
		var recs []Record
		err := db.objectStore(ctx, desc.Name, ReadOnly, func(st *ObjectStore) error {
			var err error
			recs, err = st.GetAll()
			return err
		})
		if err != nil {
			return err
		}
		if err := enc.Encode(&snapshotStore{Store: desc, Records: recs}); err != nil {
			return fmt.Errorf("vstore: writing store %s: %w", desc.Name, err)
		}
		db.logger.Debug("exported store", "store", desc.Name, "records", len(recs))
	}
	return zw.Close()
}

// Import replaces the contents of every store found in the snapshot read
// from r, creating stores that do not exist. Stores absent from the snapshot
// are left alone. One ActionBatchCreateUpdate event fires per imported store.
func (db *DB) Import(ctx context.Context, r io.Reader) error {
	dec := msgpack.NewDecoder(lz4.NewReader(r))
	dec.UseLooseInterfaceDecoding(true)

	var hdr snapshotHeader
	if err := dec.Decode(&hdr); err != nil {
		return fmt.Errorf("vstore: reading snapshot header: %w", err)
	}
	if hdr.Magic != snapshotMagic {
		return fmt.Errorf("vstore: not a snapshot (magic %q)", hdr.Magic)
	}
	if hdr.Version != snapshotVersion {
		return fmt.Errorf("vstore: unsupported snapshot version %d", hdr.Version)
	}

	for i := 0; i < hdr.StoreCount; i++ {
		var ss snapshotStore
		if err := dec.Decode(&ss); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("vstore: snapshot truncated after %d of %d stores", i, hdr.StoreCount)
			}
			return fmt.Errorf("vstore: reading store %d: %w", i, err)
		}
		if err := db.importStore(ctx, &ss); err != nil {
			return err
		}
	}
	db.logger.Info("imported snapshot", "source", hdr.Database, "source_version", hdr.DBVersion, "stores", hdr.StoreCount)
	return nil
}

func (db *DB) importStore(ctx context.Context, ss *snapshotStore) error {
	if err := db.EnsureStore(ctx, ss.Store); err != nil {
		return err
	}
	err := db.objectStore(ctx, ss.Store.Name, ReadWrite, func(st *ObjectStore) error {
		if err := st.Clear(); err != nil {
			return err
		}
		for _, rec := range ss.Records {
			if err := st.Put(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if ss.Records == nil {
		ss.Records = []Record{}
	}
	db.notify(ss.Store.Name, ActionBatchCreateUpdate, ss.Records)
	return nil
}
