package vstore

import (
	"log/slog"
	"time"

	"github.com/andreyvit/vstore/poll"
)

const (
	DefaultPollInterval   = poll.DefaultInterval
	DefaultPollAttempts   = poll.DefaultMaxAttempts
	DefaultUpgradeTimeout = 10 * time.Second
)

type Options struct {
	Logger *slog.Logger

	// PollInterval and PollAttempts bound the readiness wait of the first
	// store access.
	PollInterval time.Duration
	PollAttempts int

	// StrictReadiness turns an exhausted readiness wait into ErrNotReady
	// instead of proceeding against a possibly incomplete schema.
	StrictReadiness bool

	// UpgradeTimeout bounds each schema version bump, including the wait for
	// other connections to close.
	UpgradeTimeout time.Duration

	NewID      func() string
	Now        func() time.Time
	FormatDate func(ms int64) string
}

func (opt Options) withDefaults() Options {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.PollInterval <= 0 {
		opt.PollInterval = DefaultPollInterval
	}
	if opt.PollAttempts <= 0 {
		opt.PollAttempts = DefaultPollAttempts
	}
	if opt.UpgradeTimeout <= 0 {
		opt.UpgradeTimeout = DefaultUpgradeTimeout
	}
	if opt.NewID == nil {
		opt.NewID = NewID
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.FormatDate == nil {
		opt.FormatDate = FormatDate
	}
	return opt
}

func (opt Options) pollOptions() poll.Options {
	return poll.Options{Interval: opt.PollInterval, MaxAttempts: opt.PollAttempts}
}
