package vstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testClock advances by one millisecond on every reading.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func seqIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id%03d", n.Add(1))
	}
}

type engineKind int

const (
	memEngine engineKind = iota
	boltEngine
)

func (k engineKind) String() string {
	if k == boltEngine {
		return "bolt"
	}
	return "mem"
}

var engineKinds = []engineKind{memEngine, boltEngine}

func newTestEngine(t testing.TB, kind engineKind) *Engine {
	t.Helper()
	opt := EngineOptions{Logger: quietLogger, IsTesting: true}
	var eng *Engine
	if kind == boltEngine {
		var err error
		eng, err = OpenEngine(t.TempDir(), opt)
		require.NoError(t, err)
	} else {
		eng = MemEngine(opt)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func testOptions() Options {
	return Options{
		Logger:         quietLogger,
		PollInterval:   time.Millisecond,
		PollAttempts:   200,
		UpgradeTimeout: 2 * time.Second,
		NewID:          seqIDs(),
		Now:            newTestClock().Now,
	}
}

// openTestDB opens a database and waits until its declared stores exist.
func openTestDB(t testing.TB, eng *Engine, scm *Schema, opt Options) *DB {
	t.Helper()
	db, err := Open(context.Background(), eng, "test", scm, opt)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.WaitSchema())
	return db
}

func notesSchema() *Schema {
	return NewSchema().
		AddStore("notes", NewIndex("keyword")).
		AddStore("tags", NewIndex("name").Unique(), NewIndex("labels").MultiEntry()).
		AddObject("settings")
}

func setupNotes(t testing.TB) *DB {
	t.Helper()
	return openTestDB(t, newTestEngine(t, memEngine), notesSchema(), testOptions())
}

// recorder captures change events.
type recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recorder) listen(ev ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChangeEvent(nil), r.events...)
}

func (r *recorder) actions() []Action {
	var out []Action
	for _, ev := range r.all() {
		out = append(out, ev.Action)
	}
	return out
}
