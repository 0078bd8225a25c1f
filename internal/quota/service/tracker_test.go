package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	catalogdomain "github.com/natebag/MLG-BETA/internal/catalog/domain"
	"github.com/natebag/MLG-BETA/internal/clock"
	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	"github.com/natebag/MLG-BETA/internal/quota/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var voteKind = catalogdomain.ActionKind{
	Name:               "vote",
	FreeQuotaPerPeriod: 2,
	PeriodLength:       24 * time.Hour,
	TokenCost:          1,
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) TryConsume(ctx context.Context, slot quotadomain.Slot, now time.Time) (int, bool, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return 0, true, errors.New("connection refused")
}

func (s *failingStore) Release(ctx context.Context, slot quotadomain.Slot, now time.Time) error {
	return errors.New("connection refused")
}

func (s *failingStore) Get(ctx context.Context, principal, actionKind string) (*quotadomain.QuotaState, error) {
	return nil, errors.New("connection refused")
}

func (s *failingStore) DeleteStale(ctx context.Context, periodEndedBefore time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func setupTracker(t *testing.T, clk clock.Clock) quotadomain.Tracker {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	require.NoError(t, db.AutoMigrate(&quotadomain.QuotaState{}))
	t.Cleanup(func() { _ = sqlDB.Close() })

	return NewService(Params{
		Store: repository.NewSQLStore(db),
		Log:   zap.NewNop(),
		Clock: clk,
	})
}

func TestConsumeGrantsUpToQuota(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tracker := setupTracker(t, clock.NewFakeClock(now))
	ctx := context.Background()

	first, err := tracker.Consume(ctx, "user-1", voteKind, now)
	require.NoError(t, err)
	assert.True(t, first.Granted)
	assert.Equal(t, 1, first.Remaining)
	assert.Equal(t, "2026-03-10", first.PeriodKey)

	second, err := tracker.Consume(ctx, "user-1", voteKind, now)
	require.NoError(t, err)
	assert.True(t, second.Granted)
	assert.Equal(t, 0, second.Remaining)

	third, err := tracker.Consume(ctx, "user-1", voteKind, now)
	require.NoError(t, err)
	assert.False(t, third.Granted)
	assert.Equal(t, 0, third.Remaining)

	other, err := tracker.Consume(ctx, "user-2", voteKind, now)
	require.NoError(t, err)
	assert.True(t, other.Granted)
}

func TestConsumeResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	tracker := setupTracker(t, clock.NewFakeClock(now))
	ctx := context.Background()
	kind := voteKind
	kind.FreeQuotaPerPeriod = 1

	grant, err := tracker.Consume(ctx, "user-1", kind, now)
	require.NoError(t, err)
	require.True(t, grant.Granted)

	grant, err = tracker.Consume(ctx, "user-1", kind, now.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, grant.Granted)

	grant, err = tracker.Consume(ctx, "user-1", kind, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, grant.Granted)
	assert.Equal(t, "2026-03-11", grant.PeriodKey)
}

func TestConsumeWithoutFreeQuota(t *testing.T) {
	store := &failingStore{}
	tracker := NewService(Params{Store: store, Log: zap.NewNop()})
	kind := catalogdomain.ActionKind{Name: "clan_create", PeriodLength: 24 * time.Hour, TokenCost: 10}

	grant, err := tracker.Consume(context.Background(), "user-1", kind, time.Now())
	require.NoError(t, err)
	assert.False(t, grant.Granted)
	assert.Equal(t, 0, store.calls)
}

func TestConsumeFailsClosed(t *testing.T) {
	tracker := NewService(Params{Store: &failingStore{}, Log: zap.NewNop()})

	grant, err := tracker.Consume(context.Background(), "user-1", voteKind, time.Now())
	assert.ErrorIs(t, err, quotadomain.ErrTrackerUnavailable)
	assert.False(t, grant.Granted)

	_, err = tracker.Peek(context.Background(), "user-1", voteKind, time.Now())
	assert.ErrorIs(t, err, quotadomain.ErrTrackerUnavailable)
}

func TestConsumeRejectsEmptyPrincipal(t *testing.T) {
	tracker := NewService(Params{Store: &failingStore{}, Log: zap.NewNop()})

	_, err := tracker.Consume(context.Background(), "  ", voteKind, time.Now())
	assert.ErrorIs(t, err, quotadomain.ErrInvalidPrincipal)
}

func TestPeekAndRelease(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	tracker := setupTracker(t, clock.NewFakeClock(now))
	ctx := context.Background()

	view, err := tracker.Peek(ctx, "user-1", voteKind, now)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Used)
	assert.Equal(t, 2, view.Remaining)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), view.ResetsAt)

	grant, err := tracker.Consume(ctx, "user-1", voteKind, now)
	require.NoError(t, err)
	require.True(t, grant.Granted)

	view, err = tracker.Peek(ctx, "user-1", voteKind, now)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Used)
	assert.Equal(t, 1, view.Remaining)

	require.NoError(t, tracker.Release(ctx, "user-1", voteKind, grant.PeriodKey))

	view, err = tracker.Peek(ctx, "user-1", voteKind, now)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Used)

	// Yesterday's counter does not count against today.
	view, err = tracker.Peek(ctx, "user-1", voteKind, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, view.Remaining)
}

func TestConsumeConcurrentRespectsQuota(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	tracker := setupTracker(t, clock.NewFakeClock(now))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grant, err := tracker.Consume(ctx, "user-1", voteKind, now)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if grant.Granted {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, voteKind.FreeQuotaPerPeriod, granted)
}
