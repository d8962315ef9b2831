package vstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of a database handle's connection.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateUpgradePending
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateUpgradePending:
		return "upgrade-pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("invalid state %d", int(s))
	}
}

type descriptorKind int

const (
	createStore descriptorKind = iota + 1
	deleteStore
)

// schemaChange is a structural change applied by the next upgrade.
type schemaChange struct {
	kind  descriptorKind
	store StoreDescriptor
}

// controller owns the connection and mediates every schema change. Changes
// are serialized by schemaMu: at most one schemaChange is pending at a time.
type controller struct {
	eng    *Engine
	name   string
	schema *Schema
	opt    Options
	logger *slog.Logger

	// connMu is held for reading by transactions and for writing while the
	// connection is swapped.
	connMu sync.RWMutex

	mu      sync.Mutex
	state   State
	conn    *Conn
	pending *schemaChange
	err     error

	schemaMu sync.Mutex

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       errgroup.Group
}

func newController(eng *Engine, name string, schema *Schema, opt Options) *controller {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &controller{
		eng:      eng,
		name:     name,
		schema:   schema,
		opt:      opt,
		logger:   opt.Logger.With("db", name),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
}

func (c *controller) setStateLocked(s State) {
	if c.state != s {
		c.logger.Debug("state change", "from", c.state, "to", s)
		c.state = s
	}
}

func (c *controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// open connects at the stored version and starts materializing the
// declared stores in the background.
func (c *controller) open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return fmt.Errorf("vstore: %s is already %v", c.name, c.state)
	}
	c.setStateLocked(StateOpening)
	c.mu.Unlock()

	conn, err := c.eng.Open(ctx, c.name, 0, c.upgrade)

	c.mu.Lock()
	if err != nil {
		c.err = err
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		c.bgCancel()
		return err
	}
	c.attachLocked(conn)
	c.setStateLocked(StateReady)
	c.mu.Unlock()

	c.bg.Go(c.materialize)
	return nil
}

func (c *controller) attachLocked(conn *Conn) {
	c.conn = conn
	conn.OnVersionChange(func(oldVer, newVer uint64) {
		c.logger.Warn("another connection requested a version change", "version", oldVer, "requested", newVer)
	})
}

// materialize ensures each declared store exists, one version bump at a time.
func (c *controller) materialize() error {
	for _, desc := range c.schema.declared() {
		err := c.ensureStore(c.bgCtx, desc)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			c.logger.Error("cannot create store", "store", desc.Name, "err", err)
			return err
		}
	}
	c.logger.Debug("schema materialized", "stores", len(c.schema.declared()))
	return nil
}

// ensureStore creates the store unless it already exists.
func (c *controller) ensureStore(ctx context.Context, desc StoreDescriptor) error {
	if err := desc.validate(); err != nil {
		return err
	}
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()

	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	if conn.HasStore(desc.Name) {
		return nil
	}
	return c.bump(ctx, &schemaChange{kind: createStore, store: desc})
}

// removeStore deletes the store unless it is already absent.
func (c *controller) removeStore(ctx context.Context, name string) error {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()

	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	if !conn.HasStore(name) {
		return nil
	}
	return c.bump(ctx, &schemaChange{kind: deleteStore, store: StoreDescriptor{Name: name}})
}

// bump records the change, closes the connection and reopens it one version
// higher so that upgrade applies the change. Must hold schemaMu.
func (c *controller) bump(ctx context.Context, chg *schemaChange) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.mu.Lock()
	if c.state != StateReady {
		err := c.unavailableLocked()
		c.mu.Unlock()
		return err
	}
	old := c.conn
	c.pending = chg
	c.conn = nil
	c.setStateLocked(StateUpgradePending)
	c.mu.Unlock()

	old.Close()

	upCtx, cancel := context.WithTimeout(ctx, c.opt.UpgradeTimeout)
	defer cancel()
	conn, err := c.eng.Open(upCtx, c.name, old.Version()+1, c.upgrade)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	if err == nil {
		c.attachLocked(conn)
		c.setStateLocked(StateReady)
		return nil
	}

	c.logger.Warn("schema upgrade failed", "version", old.Version()+1, "err", err)
	conn, reopenErr := c.eng.Open(context.Background(), c.name, 0, nil)
	if reopenErr != nil {
		c.err = reopenErr
		c.setStateLocked(StateFailed)
		return errors.Join(err, reopenErr)
	}
	c.attachLocked(conn)
	c.setStateLocked(StateReady)
	return err
}

// upgrade applies the pending change, if any.
func (c *controller) upgrade(u *UpgradeTx) error {
	c.mu.Lock()
	chg := c.pending
	c.mu.Unlock()
	if chg == nil {
		return nil
	}
	switch chg.kind {
	case createStore:
		if u.HasStore(chg.store.Name) {
			return nil
		}
		return u.CreateStore(chg.store)
	case deleteStore:
		if !u.HasStore(chg.store.Name) {
			return nil
		}
		return u.DeleteStore(chg.store.Name)
	default:
		panic(fmt.Errorf("invalid schema change kind %d", chg.kind))
	}
}

func (c *controller) currentConn() (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, c.unavailableLocked()
	}
	return c.conn, nil
}

func (c *controller) unavailableLocked() error {
	switch c.state {
	case StateFailed:
		return fmt.Errorf("%w: %w", ErrFailed, c.err)
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("vstore: %s is %v", c.name, c.state)
	}
}

// withConn runs fn with the current connection, keeping it from being
// swapped until fn returns.
func (c *controller) withConn(fn func(conn *Conn) error) error {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	return fn(conn)
}

// readiness reports which stores the connection sees and whether a
// transaction is in flight.
func (c *controller) readiness() (stores []string, active Mode, ok bool) {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn == nil || state != StateReady {
		return nil, ModeNone, false
	}
	return conn.StoreNames(), conn.ActiveMode(), true
}

func (c *controller) version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return 0
	}
	return c.conn.Version()
}

// close stops background schema work and closes the connection.
func (c *controller) close() error {
	c.bgCancel()
	_ = c.bg.Wait()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateClosed)
	return nil
}

// materialized waits for the background schema work and returns its error.
func (c *controller) materialized() error {
	return c.bg.Wait()
}
