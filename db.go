package vstore

import (
	"context"
	"fmt"
	"log/slog"
)

// accessCore is what the record-store and object-store operations need from
// a database handle: scoped transactions, creation stamps and change fan-out.
type accessCore interface {
	objectStore(ctx context.Context, name string, mode Mode, fn func(st *ObjectStore) error) error
	stampCreate(data Record) Record
	notify(name string, action Action, data any)
	subscribe(name string, fn Listener) *Subscription
	log() *slog.Logger
}

// DB is a handle to a named database with a declared schema. Each declared
// store is reachable through Store or Object.
type DB struct {
	name      string
	schema    *Schema
	opt       Options
	logger    *slog.Logger
	ctl       *controller
	gate      *readinessGate
	listeners *listenerSet

	stores  map[string]*Store
	objects map[string]*Object
}

var _ accessCore = (*DB)(nil)

// Open connects to the named database and starts creating any declared
// store that does not exist yet. Operations issued before that finishes wait
// at the readiness gate.
func Open(ctx context.Context, eng *Engine, name string, schema *Schema, opt Options) (*DB, error) {
	opt = opt.withDefaults()
	if schema == nil {
		schema = NewSchema()
	}
	for _, desc := range schema.declared() {
		if err := desc.validate(); err != nil {
			return nil, err
		}
	}

	db := &DB{
		name:      name,
		schema:    schema,
		opt:       opt,
		logger:    opt.Logger.With("db", name),
		listeners: newListenerSet(),
		stores:    make(map[string]*Store),
		objects:   make(map[string]*Object),
	}
	db.ctl = newController(eng, name, schema, opt)
	db.gate = newReadinessGate(db.ctl, descriptorNames(schema.declared()), opt)

	for _, n := range schema.StoreNames() {
		db.stores[n] = &Store{core: db, name: n}
	}
	for _, n := range schema.ObjectNames() {
		db.objects[n] = &Object{core: db, name: n}
	}

	if err := db.ctl.open(ctx); err != nil {
		return nil, fmt.Errorf("vstore: opening %s: %w", name, err)
	}
	return db, nil
}

func (db *DB) Name() string      { return db.name }
func (db *DB) Schema() *Schema   { return db.schema }
func (db *DB) State() State      { return db.ctl.State() }
func (db *DB) Version() uint64   { return db.ctl.version() }
func (db *DB) Close() error      { return db.ctl.close() }
func (db *DB) log() *slog.Logger { return db.logger }

// WaitSchema blocks until the declared stores have been created, returning
// the error that stopped it, if any.
func (db *DB) WaitSchema() error {
	return db.ctl.materialized()
}

// Store returns the record store with the given declared name, or nil.
func (db *DB) Store(name string) *Store {
	return db.stores[name]
}

// Object returns the singleton-object store with the given declared name, or nil.
func (db *DB) Object(name string) *Object {
	return db.objects[name]
}

// Stores returns the record store operations keyed by store name.
func (db *DB) Stores() map[string]*Store {
	out := make(map[string]*Store, len(db.stores))
	for k, v := range db.stores {
		out[k] = v
	}
	return out
}

// Objects returns the object store operations keyed by object name.
func (db *DB) Objects() map[string]*Object {
	out := make(map[string]*Object, len(db.objects))
	for k, v := range db.objects {
		out[k] = v
	}
	return out
}

// EnsureStore creates a store outside the declared schema. It is a no-op if
// the store exists.
func (db *DB) EnsureStore(ctx context.Context, desc StoreDescriptor) error {
	if desc.KeyPath == "" {
		desc.KeyPath = DefaultKeyPath
	}
	if err := db.gate.wait(ctx); err != nil {
		return err
	}
	return db.ctl.ensureStore(ctx, desc)
}

// RemoveStore deletes a store with all its records. It is a no-op if the
// store does not exist. Deletion cannot be undone.
func (db *DB) RemoveStore(ctx context.Context, name string) error {
	if err := db.gate.wait(ctx); err != nil {
		return err
	}
	return db.ctl.removeStore(ctx, name)
}

// OnChange registers fn for every mutation of the named store or object.
func (db *DB) OnChange(name string, fn Listener) *Subscription {
	return db.subscribe(name, fn)
}

func (db *DB) subscribe(name string, fn Listener) *Subscription {
	return db.listeners.add(name, db.opt.NewID(), fn)
}

func (db *DB) notify(name string, action Action, data any) {
	db.listeners.fire(name, action, data)
}

func (db *DB) stampCreate(data Record) Record {
	return stampCreate(data, db.opt.Now(), db.opt.NewID, db.opt.FormatDate)
}

// objectStore passes the readiness gate, then runs fn inside a new
// transaction scoped to the named store. The transaction commits if fn
// succeeds and is rolled back otherwise.
func (db *DB) objectStore(ctx context.Context, name string, mode Mode, fn func(st *ObjectStore) error) error {
	if err := db.gate.wait(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.ctl.withConn(func(conn *Conn) error {
		txn, err := conn.Transaction(name, mode)
		if err != nil {
			return err
		}
		if err := fn(txn.Store()); err != nil {
			txn.Abort()
			return err
		}
		return txn.Commit()
	})
}
