package vstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/vstore/poll"
)

func newTestGate(strict bool, attempts int, materialized, quiescent func() bool) *readinessGate {
	return &readinessGate{
		opt:          poll.Options{Interval: time.Millisecond, MaxAttempts: attempts},
		strict:       strict,
		logger:       quietLogger,
		materialized: materialized,
		quiescent:    quiescent,
	}
}

func after(n int32) (func() bool, *atomic.Int32) {
	var calls atomic.Int32
	return func() bool { return calls.Add(1) > n }, &calls
}

func TestGate_opensWhenBothHold(t *testing.T) {
	mat, matCalls := after(3)
	qui, quiCalls := after(2)
	g := newTestGate(true, 50, mat, qui)

	require.NoError(t, g.wait(context.Background()))
	assert.True(t, g.ready.Load())
	assert.EqualValues(t, 4, matCalls.Load())
	assert.EqualValues(t, 3, quiCalls.Load())

	// Once open, predicates are not consulted again.
	require.NoError(t, g.wait(context.Background()))
	assert.EqualValues(t, 4, matCalls.Load())
}

func TestGate_exhaustedStrict(t *testing.T) {
	never := func() bool { return false }
	g := newTestGate(true, 3, never, never)
	err := g.wait(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, poll.ErrExhausted)
	assert.False(t, g.ready.Load())
}

func TestGate_exhaustedLenient(t *testing.T) {
	always := func() bool { return true }
	never := func() bool { return false }
	g := newTestGate(false, 3, always, never)
	require.NoError(t, g.wait(context.Background()))
	assert.True(t, g.ready.Load(), "a best-effort gate opens even when exhausted")
}

func TestGate_sharedWait(t *testing.T) {
	mat, matCalls := after(20)
	g := newTestGate(true, 100, mat, func() bool { return true })

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = g.wait(context.Background())
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Less(t, matCalls.Load(), int32(100), "concurrent callers poll once, not once each")
}

func TestGate_callerCancel(t *testing.T) {
	mat, _ := after(30)
	g := newTestGate(true, 100, mat, func() bool { return true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.wait(ctx), context.DeadlineExceeded)

	// The shared wait carries on for later callers.
	require.NoError(t, g.wait(context.Background()))
}

func TestGate_exhaustedStrictReason(t *testing.T) {
	never := func() bool { return false }
	g := newTestGate(true, 2, never, never)
	g.unmaterialized = func() string { return materializationGap([]string{"a"}, []string{"a", "b"}) }
	err := g.wait(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorContains(t, err, "store count mismatch: 2 stores exist, 1 declared")
}

func TestStoresMaterialized(t *testing.T) {
	declared := []string{"notes", "tags"}
	tests := []struct {
		existing []string
		lenient  bool
		strict   bool
		gap      string
	}{
		{[]string{"notes", "tags"}, true, true, ""},
		{[]string{"notes"}, false, false, "declared stores missing: tags"},
		{[]string{"extra", "notes", "tags"}, false, true, "store count mismatch: 3 stores exist, 2 declared"},
		{[]string{"extra", "notes"}, true, false, "declared stores missing: tags"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.lenient, storesMaterialized(declared, tt.existing, false), "lenient %v", tt.existing)
		assert.Equal(t, tt.strict, storesMaterialized(declared, tt.existing, true), "strict %v", tt.existing)
		if tt.gap != "" {
			assert.Equal(t, tt.gap, materializationGap(declared, tt.existing))
		}
	}
}

func TestDB_readinessWithExtraStore(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, memEngine)

	first := openTestDB(t, eng, notesSchema(), testOptions())
	require.NoError(t, first.EnsureStore(ctx, StoreDescriptor{Name: "extra"}))
	require.NoError(t, first.Close())

	opt := testOptions()
	opt.PollAttempts = 5

	opt.StrictReadiness = true
	strict := openTestDB(t, eng, notesSchema(), opt)
	require.NoError(t, strict.Store("notes").Create(ctx, Record{"id": "n1"}),
		"a strict gate only needs the declared stores to exist")
	rec, err := strict.Store("notes").GetID(ctx, "n1")
	require.NoError(t, err)
	assert.NotNil(t, rec)

	opt.StrictReadiness = false
	lenient := openTestDB(t, eng, notesSchema(), opt)
	all, err := lenient.Store("notes").GetAll(ctx)
	require.NoError(t, err, "a lenient gate proceeds once its budget is spent")
	assert.Equal(t, 1, all.Total)
}
