package vstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/andreyvit/vstore/poll"
)

// readinessGate holds back the first store access until the declared stores
// exist and no transaction is in flight. Once passed it stays open for the
// life of the handle; later schema changes are not re-checked.
type readinessGate struct {
	ready  atomic.Bool
	group  singleflight.Group
	opt    poll.Options
	strict bool
	logger *slog.Logger

	materialized func() bool
	quiescent    func() bool

	// unmaterialized explains a failed materialized check; nil means the
	// generic reason.
	unmaterialized func() string
}

func newReadinessGate(ctl *controller, declared []string, opt Options) *readinessGate {
	strict := opt.StrictReadiness
	return &readinessGate{
		opt:    opt.pollOptions(),
		strict: strict,
		logger: opt.Logger,
		materialized: func() bool {
			stores, _, ok := ctl.readiness()
			return ok && storesMaterialized(declared, stores, strict)
		},
		quiescent: func() bool {
			_, active, ok := ctl.readiness()
			return ok && active == ModeNone
		},
		unmaterialized: func() string {
			stores, _, ok := ctl.readiness()
			if !ok {
				return "connection not ready"
			}
			return materializationGap(declared, stores)
		},
	}
}

// storesMaterialized reports whether the existing stores satisfy the
// declared schema. The lenient check compares store counts, so stores left
// over from other sessions hold it back until the attempt budget runs out.
// The strict check only requires every declared store to exist.
func storesMaterialized(declared, existing []string, strict bool) bool {
	if strict {
		return len(missingStores(declared, existing)) == 0
	}
	return len(existing) == len(declared)
}

func missingStores(declared, existing []string) []string {
	var missing []string
	for _, name := range declared {
		if !slices.Contains(existing, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func materializationGap(declared, existing []string) string {
	if missing := missingStores(declared, existing); len(missing) > 0 {
		return "declared stores missing: " + strings.Join(missing, ", ")
	}
	return fmt.Sprintf("store count mismatch: %d stores exist, %d declared", len(existing), len(declared))
}

// wait blocks until the gate opens, the attempt budget runs out or ctx ends.
// Concurrent first callers share one wait. An exhausted budget is logged
// and tolerated unless the gate is strict.
func (g *readinessGate) wait(ctx context.Context) error {
	if g.ready.Load() {
		return nil
	}

	ch := g.group.DoChan("ready", func() (any, error) {
		// The shared wait is bounded by its attempt budget, not by the
		// context of whichever caller happened to start it.
		pctx := context.WithoutCancel(ctx)
		if err := poll.Until(pctx, g.opt, func(int) bool { return g.materialized() }); err != nil {
			reason := "declared stores missing"
			if g.unmaterialized != nil {
				reason = g.unmaterialized()
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrNotReady, reason, err)
		}
		if err := poll.Until(pctx, g.opt, func(int) bool { return g.quiescent() }); err != nil {
			return nil, fmt.Errorf("%w: transaction still in flight: %w", ErrNotReady, err)
		}
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if g.strict {
				return res.Err
			}
			if errors.Is(res.Err, poll.ErrExhausted) {
				g.logger.Warn("proceeding before schema is ready", "err", res.Err)
			}
		}
		g.ready.Store(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
