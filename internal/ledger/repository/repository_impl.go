package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
	"github.com/natebag/MLG-BETA/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, principal, actionKind, target string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM ledger_entries
		 WHERE principal = ? AND action_kind = ? AND target = ?`,
		principal,
		actionKind,
		target,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert relies on ux_ledger_entries_tuple to reject a second entry for the
// same tuple; the caller maps the violation to ErrDuplicate.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *ledgerdomain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, principal, action_kind, target, payment_mode, amount_charged, metadata, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Principal,
		entry.ActionKind,
		entry.Target,
		string(entry.PaymentMode),
		entry.AmountCharged,
		entry.Metadata,
		entry.OccurredAt,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter ledgerdomain.ListFilter, cursor *pagination.Cursor, limit int) ([]*ledgerdomain.LedgerEntry, error) {
	var entries []*ledgerdomain.LedgerEntry
	stmt := db.WithContext(ctx).
		Model(&ledgerdomain.LedgerEntry{}).
		Where("principal = ?", filter.Principal)
	if filter.ActionKind != "" {
		stmt = stmt.Where("action_kind = ?", filter.ActionKind)
	}
	if cursor != nil {
		after, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(occurred_at > ? OR (occurred_at = ? AND id > ?))", after, after, id)
	}
	err := stmt.
		Order("occurred_at asc, id asc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) InsertIncident(ctx context.Context, db *gorm.DB, incident *ledgerdomain.Incident) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_incidents (
			id, principal, action_kind, target, amount_charged, burn_reference, reason, detail, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		incident.ID,
		incident.Principal,
		incident.ActionKind,
		incident.Target,
		incident.AmountCharged,
		incident.BurnReference,
		string(incident.Reason),
		incident.Detail,
		incident.OccurredAt,
		incident.CreatedAt,
	).Error
}

func (r *repo) ListIncidents(ctx context.Context, db *gorm.DB, cursor *pagination.Cursor, limit int) ([]*ledgerdomain.Incident, error) {
	var incidents []*ledgerdomain.Incident
	stmt := db.WithContext(ctx).Model(&ledgerdomain.Incident{})
	if cursor != nil {
		before, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", before, before, id)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&incidents).Error
	if err != nil {
		return nil, err
	}
	return incidents, nil
}

func decodeCursor(cursor *pagination.Cursor) (time.Time, snowflake.ID, error) {
	at, err := time.Parse(time.RFC3339Nano, cursor.OccurredAt)
	if err != nil {
		return time.Time{}, 0, ledgerdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return time.Time{}, 0, ledgerdomain.ErrInvalidPageToken
	}
	return at.UTC(), id, nil
}
