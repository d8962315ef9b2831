package vstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

// Mode is the access mode of a transaction.
type Mode int

const (
	ModeNone Mode = iota
	ReadOnly
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return fmt.Sprintf("invalid mode %d", int(m))
	}
}

type EngineOptions struct {
	Logger *slog.Logger
	Now    func() time.Time

	// IsTesting trades durability for speed.
	IsTesting bool
	// FileTimeout bounds the wait for another process's lock on a database file.
	FileTimeout time.Duration
}

// Engine hosts named, versioned databases. Stores and indexes of a database
// can only be created or deleted by an upgrade callback, which runs when a
// connection is opened at a version higher than the stored one.
type Engine struct {
	dir    string
	opt    EngineOptions
	logger *slog.Logger

	mu     sync.Mutex
	dbs    map[string]*engineDB
	closed bool
}

type engineDB struct {
	name      string
	st        storage
	conns     map[*Conn]struct{}
	upgrading bool
	changed   chan struct{}
}

// UpgradeFunc applies schema changes while a database moves to a new version.
// Returning an error aborts the upgrade and keeps the old version.
type UpgradeFunc func(u *UpgradeTx) error

// OpenEngine returns an engine that keeps each database in dir/<name>.vdb.
func OpenEngine(dir string, opt EngineOptions) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("vstore: %w", err)
	}
	return newEngine(dir, opt), nil
}

// MemEngine returns an engine whose databases live in memory until Close.
func MemEngine(opt EngineOptions) *Engine {
	return newEngine("", opt)
}

func newEngine(dir string, opt EngineOptions) *Engine {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.FileTimeout == 0 {
		opt.FileTimeout = 10 * time.Second
	}
	return &Engine{
		dir:    dir,
		opt:    opt,
		logger: opt.Logger,
		dbs:    make(map[string]*engineDB),
	}
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	var firstErr error
	for _, edb := range e.dbs {
		if err := edb.st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		edb.signalLocked()
	}
	return firstErr
}

// databaseLocked returns the named database, opening its storage on first use.
func (e *Engine) databaseLocked(name string) (*engineDB, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if edb := e.dbs[name]; edb != nil {
		return edb, nil
	}

	var st storage
	if e.dir == "" {
		st = newMemStorage()
	} else {
		bopt := *bbolt.DefaultOptions
		bopt.Timeout = e.opt.FileTimeout
		if e.opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
		} else {
			bopt.FreelistType = bbolt.FreelistMapType
		}
		bdb, err := bbolt.Open(filepath.Join(e.dir, name+".vdb"), 0666, &bopt)
		if err != nil {
			return nil, fmt.Errorf("vstore: opening %s: %w", name, err)
		}
		st = newBoltStorage(bdb)
	}

	edb := &engineDB{
		name:    name,
		st:      st,
		conns:   make(map[*Conn]struct{}),
		changed: make(chan struct{}),
	}
	e.dbs[name] = edb
	return edb, nil
}

func (edb *engineDB) signalLocked() {
	close(edb.changed)
	edb.changed = make(chan struct{})
}

func (edb *engineDB) loadState() (*dbState, error) {
	stx, err := edb.st.BeginTx(false)
	if err != nil {
		return nil, err
	}
	defer stx.Rollback()
	return loadDBState(stx)
}

// Open opens a connection to the named database. Version 0 means the
// current stored version (1 for a new database). A version above the stored
// one runs onUpgrade after every other connection to the database has
// closed; other connections are told through their OnVersionChange hook.
// If they are still open when ctx ends, Open fails with ErrUpgradeBlocked.
func (e *Engine) Open(ctx context.Context, name string, version uint64, onUpgrade UpgradeFunc) (*Conn, error) {
	e.mu.Lock()
	edb, err := e.databaseLocked(name)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	for edb.upgrading {
		ch := edb.changed
		e.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, ErrClosed
		}
	}

	state, err := edb.loadState()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	target := version
	if target == 0 {
		target = max(state.Version, 1)
	}
	if target < state.Version {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is at version %d, requested %d", ErrVersionTooLow, name, state.Version, target)
	}

	if target > state.Version {
		edb.upgrading = true
		others := make([]*Conn, 0, len(edb.conns))
		for c := range edb.conns {
			others = append(others, c)
		}
		e.mu.Unlock()

		oldVer := state.Version
		for _, c := range others {
			c.fireVersionChange(oldVer, target)
		}
		err = e.waitForQuiescence(ctx, edb)
		if err == nil {
			state, err = e.upgrade(edb, oldVer, target, onUpgrade)
		}

		e.mu.Lock()
		edb.upgrading = false
		edb.signalLocked()
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}

	conn := &Conn{eng: e, edb: edb, state: state.clone()}
	edb.conns[conn] = struct{}{}
	e.mu.Unlock()
	return conn, nil
}

func (e *Engine) waitForQuiescence(ctx context.Context, edb *engineDB) error {
	for {
		e.mu.Lock()
		n := len(edb.conns)
		ch := edb.changed
		e.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("%w: %d connection(s) to %s still open: %w", ErrUpgradeBlocked, n, edb.name, ctx.Err())
		}
	}
}

func (e *Engine) upgrade(edb *engineDB, oldVer, newVer uint64, onUpgrade UpgradeFunc) (*dbState, error) {
	stx, err := edb.st.BeginTx(true)
	if err != nil {
		return nil, err
	}
	defer stx.Rollback()

	state, err := loadDBState(stx)
	if err != nil {
		return nil, err
	}
	u := &UpgradeTx{
		OldVersion: oldVer,
		NewVersion: newVer,
		stx:        stx,
		state:      state,
		logger:     e.logger.With("db", edb.name),
	}
	if onUpgrade != nil {
		if err := onUpgrade(u); err != nil {
			return nil, err
		}
	}
	state.Version = newVer
	if err := state.save(stx, e.opt.Now()); err != nil {
		return nil, err
	}
	if err := stx.Commit(); err != nil {
		return nil, err
	}
	e.logger.Info("upgraded database", "db", edb.name, "from", oldVer, "to", newVer)
	return state, nil
}

// Conn is an open connection to one database version. Its view of the
// schema is fixed for its lifetime.
type Conn struct {
	eng   *Engine
	edb   *engineDB
	state *dbState

	closed  atomic.Bool
	readers atomic.Int32
	writers atomic.Int32

	vcMu            sync.Mutex
	onVersionChange func(oldVersion, newVersion uint64)
}

func (c *Conn) Name() string    { return c.edb.name }
func (c *Conn) Version() uint64 { return c.state.Version }

// StoreNames returns the stores of this version, sorted.
func (c *Conn) StoreNames() []string {
	return c.state.storeNames()
}

func (c *Conn) HasStore(name string) bool {
	return c.state.Stores[name] != nil
}

// Store returns the descriptor of an existing store.
func (c *Conn) Store(name string) (StoreDescriptor, bool) {
	desc := c.state.Stores[name]
	if desc == nil {
		return StoreDescriptor{}, false
	}
	return *desc, true
}

// OnVersionChange registers a hook run when another Open wants to upgrade
// the database. The upgrade waits until this connection is closed.
func (c *Conn) OnVersionChange(f func(oldVersion, newVersion uint64)) {
	c.vcMu.Lock()
	defer c.vcMu.Unlock()
	c.onVersionChange = f
}

func (c *Conn) fireVersionChange(oldVer, newVer uint64) {
	c.vcMu.Lock()
	f := c.onVersionChange
	c.vcMu.Unlock()
	if f != nil {
		f(oldVer, newVer)
	}
}

// ActiveMode reports the strongest mode among in-flight transactions, or
// ModeNone when there are none.
func (c *Conn) ActiveMode() Mode {
	if c.writers.Load() > 0 {
		return ReadWrite
	}
	if c.readers.Load() > 0 {
		return ReadOnly
	}
	return ModeNone
}

func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Close releases the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	e := c.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(c.edb.conns, c)
	c.edb.signalLocked()
	return nil
}

// Transaction starts a transaction scoped to a single store.
func (c *Conn) Transaction(store string, mode Mode) (*Txn, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	desc := c.state.Stores[store]
	if desc == nil {
		return nil, storeErrf(store, "", nil, ErrUnknownStore, "")
	}
	if mode != ReadOnly && mode != ReadWrite {
		return nil, fmt.Errorf("vstore: invalid transaction mode %v", mode)
	}

	counter := &c.readers
	if mode == ReadWrite {
		counter = &c.writers
	}
	counter.Add(1)
	stx, err := c.edb.st.BeginTx(mode == ReadWrite)
	if err != nil {
		counter.Add(-1)
		return nil, err
	}
	return &Txn{conn: c, desc: desc, stx: stx, mode: mode, counter: counter}, nil
}

// UpgradeTx is the only place where stores and indexes can be created or
// deleted.
type UpgradeTx struct {
	OldVersion uint64
	NewVersion uint64

	stx    storageTx
	state  *dbState
	logger *slog.Logger
}

func (u *UpgradeTx) StoreNames() []string {
	return u.state.storeNames()
}

func (u *UpgradeTx) HasStore(name string) bool {
	return u.state.Stores[name] != nil
}

// CreateStore creates a store together with its declared indexes.
func (u *UpgradeTx) CreateStore(desc StoreDescriptor) error {
	if err := desc.validate(); err != nil {
		return err
	}
	if u.HasStore(desc.Name) {
		return storeErrf(desc.Name, "", nil, ErrStoreExists, "")
	}
	if _, err := u.stx.CreateBucket(storeBucketName(desc.Name), dataSubBucket); err != nil {
		return storeErrf(desc.Name, "", nil, err, "creating data bucket")
	}
	d := desc
	d.Indexes = nil
	u.state.Stores[desc.Name] = &d
	u.logger.Info("created store", "store", desc.Name, "keyPath", desc.KeyPath)

	for _, idx := range desc.Indexes {
		if err := u.CreateIndex(desc.Name, idx); err != nil {
			return err
		}
	}
	return nil
}

// DeleteStore removes a store and all of its records and indexes.
func (u *UpgradeTx) DeleteStore(name string) error {
	if !u.HasStore(name) {
		return storeErrf(name, "", nil, ErrUnknownStore, "")
	}
	err := u.stx.DeleteBucket(storeBucketName(name), "")
	if err != nil && err != errBucketNotFound {
		return storeErrf(name, "", nil, err, "deleting store bucket")
	}
	delete(u.state.Stores, name)
	u.logger.Info("deleted store", "store", name)
	return nil
}

// CreateIndex adds an index to an existing store and builds it from the
// records already stored.
func (u *UpgradeTx) CreateIndex(store string, idx IndexDescriptor) error {
	desc := u.state.Stores[store]
	if desc == nil {
		return storeErrf(store, "", nil, ErrUnknownStore, "")
	}
	probe := *desc
	probe.Indexes = append(append([]IndexDescriptor(nil), desc.Indexes...), idx)
	if err := probe.validate(); err != nil {
		return err
	}

	rootName := storeBucketName(store)
	ib, err := u.stx.CreateBucket(rootName, indexBucketName(idx.Name))
	if err != nil {
		return storeErrf(store, idx.Name, nil, err, "creating index bucket")
	}
	data := u.stx.Bucket(rootName, dataSubBucket)
	if data == nil {
		return storeErrf(store, "", nil, ErrUnknownStore, "missing data bucket")
	}

	var rows int
	c := data.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		rec, err := decodeRecord(v)
		if err != nil {
			return storeErrf(store, "", nil, err, "reindexing")
		}
		if err := putIndexEntries(store, ib, idx, rec, k); err != nil {
			return err
		}
		rows++
	}
	desc.Indexes = probe.Indexes
	u.logger.Info("created index", "store", store, "index", idx.Name, "rows", rows)
	return nil
}
