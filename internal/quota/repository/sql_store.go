package repository

import (
	"context"
	"time"

	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	"gorm.io/gorm"
)

// consumeUpsert resets a stale period and increments the counter in a single
// statement. The WHERE clause on the update arm leaves the row untouched once
// the limit is reached, in which case nothing is returned.
const consumeUpsert = `INSERT INTO quota_states (principal, action_kind, period_key, used_count, updated_at, period_ends_at)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT (principal, action_kind) DO UPDATE SET
	used_count = CASE WHEN quota_states.period_key = excluded.period_key THEN quota_states.used_count + 1 ELSE 1 END,
	period_key = excluded.period_key,
	updated_at = excluded.updated_at,
	period_ends_at = excluded.period_ends_at
WHERE quota_states.period_key <> excluded.period_key OR quota_states.used_count < ?
RETURNING used_count`

type consumeRow struct {
	UsedCount int
}

type sqlStore struct {
	db    *gorm.DB
	mysql bool
}

// NewSQLStore returns a quota store backed by the relational database.
// Postgres and SQLite use an atomic upsert; MySQL lacks upsert RETURNING and
// falls back to a row lock inside a transaction.
func NewSQLStore(db *gorm.DB) quotadomain.Store {
	return &sqlStore{
		db:    db,
		mysql: db.Dialector.Name() == "mysql",
	}
}

func (s *sqlStore) TryConsume(ctx context.Context, slot quotadomain.Slot, now time.Time) (int, bool, error) {
	if s.mysql {
		return s.tryConsumeLocked(ctx, slot, now)
	}

	var rows []consumeRow
	err := s.db.WithContext(ctx).Raw(
		consumeUpsert,
		slot.Principal,
		slot.ActionKind,
		slot.PeriodKey,
		now.UTC(),
		slot.ResetsAt.UTC(),
		slot.Limit,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return slot.Limit, false, nil
	}
	return rows[0].UsedCount, true, nil
}

func (s *sqlStore) tryConsumeLocked(ctx context.Context, slot quotadomain.Slot, now time.Time) (int, bool, error) {
	used := 0
	granted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT IGNORE INTO quota_states (principal, action_kind, period_key, used_count, updated_at)
			 VALUES (?, ?, '', 0, ?)`,
			slot.Principal,
			slot.ActionKind,
			now.UTC(),
		).Error; err != nil {
			return err
		}

		var state quotadomain.QuotaState
		if err := tx.Raw(
			`SELECT principal, action_kind, period_key, used_count, updated_at
			 FROM quota_states WHERE principal = ? AND action_kind = ? FOR UPDATE`,
			slot.Principal,
			slot.ActionKind,
		).Scan(&state).Error; err != nil {
			return err
		}

		used = state.UsedCount
		if state.PeriodKey != slot.PeriodKey {
			used = 0
		}
		if used >= slot.Limit {
			return nil
		}
		used++
		granted = true

		return tx.Exec(
			`UPDATE quota_states SET period_key = ?, used_count = ?, updated_at = ?, period_ends_at = ?
			 WHERE principal = ? AND action_kind = ?`,
			slot.PeriodKey,
			used,
			now.UTC(),
			slot.ResetsAt.UTC(),
			slot.Principal,
			slot.ActionKind,
		).Error
	})
	if err != nil {
		return 0, false, err
	}
	return used, granted, nil
}

func (s *sqlStore) Release(ctx context.Context, slot quotadomain.Slot, now time.Time) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE quota_states SET used_count = used_count - 1, updated_at = ?
		 WHERE principal = ? AND action_kind = ? AND period_key = ? AND used_count > 0`,
		now.UTC(),
		slot.Principal,
		slot.ActionKind,
		slot.PeriodKey,
	).Error
}

func (s *sqlStore) Get(ctx context.Context, principal, actionKind string) (*quotadomain.QuotaState, error) {
	var state quotadomain.QuotaState
	err := s.db.WithContext(ctx).Raw(
		`SELECT principal, action_kind, period_key, used_count, updated_at
		 FROM quota_states WHERE principal = ? AND action_kind = ?`,
		principal,
		actionKind,
	).Scan(&state).Error
	if err != nil {
		return nil, err
	}
	if state.Principal == "" {
		return nil, nil
	}
	return &state, nil
}

// DeleteStale skips rows without a recorded period end; their next consume
// fills it in.
func (s *sqlStore) DeleteStale(ctx context.Context, periodEndedBefore time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Exec(
		`DELETE FROM quota_states WHERE period_ends_at IS NOT NULL AND period_ends_at < ?`,
		periodEndedBefore.UTC(),
	)
	return result.RowsAffected, result.Error
}
