package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/natebag/MLG-BETA/internal/clock"
	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
	"github.com/natebag/MLG-BETA/internal/ledger/repository"
	"github.com/natebag/MLG-BETA/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T, clk clock.Clock) (ledgerdomain.Store, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	require.NoError(t, db.AutoMigrate(&ledgerdomain.LedgerEntry{}, &ledgerdomain.Incident{}))
	t.Cleanup(func() { _ = sqlDB.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	}), db
}

func countEntries(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM ledger_entries`).Scan(&count).Error)
	return count
}

func TestAppendRejectsDuplicateTuple(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store, db := setupLedger(t, clock.NewFakeClock(now))
	ctx := context.Background()

	req := ledgerdomain.AppendRequest{
		Principal:   "user-1",
		ActionKind:  "vote",
		Target:      "clip-a",
		PaymentMode: ledgerdomain.PaymentModeFree,
		OccurredAt:  now,
	}
	entry, err := store.Append(ctx, req)
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, now, entry.OccurredAt)

	exists, err := store.Exists(ctx, "user-1", "vote", "clip-a")
	require.NoError(t, err)
	assert.True(t, exists)

	req.PaymentMode = ledgerdomain.PaymentModePaid
	req.AmountCharged = 1
	_, err = store.Append(ctx, req)
	assert.ErrorIs(t, err, ledgerdomain.ErrDuplicate)
	assert.Equal(t, 1, countEntries(t, db))

	// Same target under another kind or principal is a different tuple.
	req.ActionKind = "clan_create"
	_, err = store.Append(ctx, req)
	require.NoError(t, err)
	req.Principal = "user-2"
	_, err = store.Append(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, countEntries(t, db))
}

func TestAppendConcurrentSameTuple(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store, db := setupLedger(t, clock.NewFakeClock(now))
	ctx := context.Background()

	const workers = 12
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		appended   int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, ledgerdomain.AppendRequest{
				Principal:   "user-1",
				ActionKind:  "vote",
				Target:      "clip-a",
				PaymentMode: ledgerdomain.PaymentModeFree,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				appended++
			case assert.ErrorIs(t, err, ledgerdomain.ErrDuplicate):
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, appended)
	assert.Equal(t, workers-1, duplicates)
	assert.Equal(t, 1, countEntries(t, db))
}

func TestAppendValidation(t *testing.T) {
	store, _ := setupLedger(t, clock.NewFakeClock(time.Now()))
	ctx := context.Background()
	base := ledgerdomain.AppendRequest{
		Principal:   "user-1",
		ActionKind:  "vote",
		Target:      "clip-a",
		PaymentMode: ledgerdomain.PaymentModeFree,
	}

	tests := []struct {
		name    string
		mutate  func(*ledgerdomain.AppendRequest)
		wantErr error
	}{
		{name: "principal", mutate: func(r *ledgerdomain.AppendRequest) { r.Principal = " " }, wantErr: ledgerdomain.ErrInvalidPrincipal},
		{name: "action kind", mutate: func(r *ledgerdomain.AppendRequest) { r.ActionKind = "" }, wantErr: ledgerdomain.ErrInvalidActionKind},
		{name: "target", mutate: func(r *ledgerdomain.AppendRequest) { r.Target = "" }, wantErr: ledgerdomain.ErrInvalidTarget},
		{name: "mode", mutate: func(r *ledgerdomain.AppendRequest) { r.PaymentMode = "credit" }, wantErr: ledgerdomain.ErrInvalidPaymentMode},
		{name: "free with charge", mutate: func(r *ledgerdomain.AppendRequest) { r.AmountCharged = 5 }, wantErr: ledgerdomain.ErrInvalidAmount},
		{name: "negative charge", mutate: func(r *ledgerdomain.AppendRequest) {
			r.PaymentMode = ledgerdomain.PaymentModePaid
			r.AmountCharged = -1
		}, wantErr: ledgerdomain.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := store.Append(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestListPaginatesInOccurrenceOrder(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store, _ := setupLedger(t, clock.NewFakeClock(start))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, ledgerdomain.AppendRequest{
			Principal:   "user-1",
			ActionKind:  "vote",
			Target:      fmt.Sprintf("clip-%d", i),
			PaymentMode: ledgerdomain.PaymentModeFree,
			OccurredAt:  start.Add(time.Duration(4-i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, ledgerdomain.AppendRequest{
		Principal:   "user-1",
		ActionKind:  "clan_create",
		Target:      "elite-squad",
		PaymentMode: ledgerdomain.PaymentModePaid,
		Metadata:    map[string]any{ledgerdomain.MetadataBurnReference: "burn-1"},
	})
	require.NoError(t, err)

	first, err := store.List(ctx, ledgerdomain.ListRequest{
		Principal:  "user-1",
		ActionKind: "vote",
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "clip-4", first.Entries[0].Target)
	assert.Equal(t, "clip-3", first.Entries[1].Target)

	second, err := store.List(ctx, ledgerdomain.ListRequest{
		Principal:  "user-1",
		ActionKind: "vote",
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.Equal(t, "clip-2", second.Entries[0].Target)

	clans, err := store.List(ctx, ledgerdomain.ListRequest{Principal: "user-1", ActionKind: "clan_create"})
	require.NoError(t, err)
	require.Len(t, clans.Entries, 1)
	assert.Equal(t, "burn-1", clans.Entries[0].BurnReference())
	assert.False(t, clans.HasMore)

	_, err = store.List(ctx, ledgerdomain.ListRequest{
		Principal:  "user-1",
		Pagination: pagination.Pagination{PageToken: "not-a-token!"},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidPageToken)
}

func TestQueryByPrincipalIsRestartable(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store, _ := setupLedger(t, clock.NewFakeClock(start))
	ctx := context.Background()

	const total = historyPageSize + 5
	for i := 0; i < total; i++ {
		_, err := store.Append(ctx, ledgerdomain.AppendRequest{
			Principal:   "user-1",
			ActionKind:  "vote",
			Target:      fmt.Sprintf("clip-%03d", i),
			PaymentMode: ledgerdomain.PaymentModeFree,
			OccurredAt:  start.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	history := store.QueryByPrincipal(ctx, "user-1", "vote")

	var targets []string
	for entry, err := range history {
		require.NoError(t, err)
		targets = append(targets, entry.Target)
	}
	require.Len(t, targets, total)
	assert.Equal(t, "clip-000", targets[0])
	assert.Equal(t, fmt.Sprintf("clip-%03d", total-1), targets[total-1])

	seen := 0
	for _, err := range history {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)

	for entry, err := range history {
		require.NoError(t, err)
		assert.Equal(t, "clip-000", entry.Target)
		break
	}
}

func TestRecordAndListIncidents(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	store, _ := setupLedger(t, clk)
	ctx := context.Background()

	_, err := store.RecordIncident(ctx, ledgerdomain.RecordIncidentRequest{
		Principal: "user-1",
		Reason:    "refund_requested",
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidReason)

	for i := 0; i < 3; i++ {
		clk.Advance(time.Minute)
		incident, err := store.RecordIncident(ctx, ledgerdomain.RecordIncidentRequest{
			Principal:     "user-1",
			ActionKind:    "vote",
			Target:        fmt.Sprintf("clip-%d", i),
			AmountCharged: 1_000_000_000,
			BurnReference: fmt.Sprintf("burn-%d", i),
			Reason:        ledgerdomain.IncidentPaidButDuplicate,
		})
		require.NoError(t, err)
		assert.NotZero(t, incident.ID)
	}

	page, err := store.ListIncidents(ctx, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Incidents, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "burn-2", page.Incidents[0].BurnReference)

	rest, err := store.ListIncidents(ctx, pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, rest.Incidents, 1)
	assert.Equal(t, "burn-0", rest.Incidents[0].BurnReference)
	assert.False(t, rest.HasMore)
}
