package domain

import (
	"context"

	"github.com/natebag/MLG-BETA/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Principal  string
	ActionKind string
}

type Repository interface {
	Exists(ctx context.Context, db *gorm.DB, principal, actionKind, target string) (bool, error)
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, cursor *pagination.Cursor, limit int) ([]*LedgerEntry, error)
	InsertIncident(ctx context.Context, db *gorm.DB, incident *Incident) error
	ListIncidents(ctx context.Context, db *gorm.DB, cursor *pagination.Cursor, limit int) ([]*Incident, error)
}
