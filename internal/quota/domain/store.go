package domain

import (
	"context"
	"time"
)

// Store persists quota counters. TryConsume must perform the period reset and
// the bounded increment as one atomic step. DeleteStale removes only counters
// whose period ended before the cutoff.
type Store interface {
	TryConsume(ctx context.Context, slot Slot, now time.Time) (used int, granted bool, err error)
	Release(ctx context.Context, slot Slot, now time.Time) error
	Get(ctx context.Context, principal, actionKind string) (*QuotaState, error)
	DeleteStale(ctx context.Context, periodEndedBefore time.Time) (int64, error)
}
