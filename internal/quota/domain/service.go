package domain

import (
	"context"
	"errors"
	"time"

	catalogdomain "github.com/natebag/MLG-BETA/internal/catalog/domain"
)

type Tracker interface {
	Consume(ctx context.Context, principal string, kind catalogdomain.ActionKind, now time.Time) (Grant, error)
	Release(ctx context.Context, principal string, kind catalogdomain.ActionKind, periodKey string) error
	Peek(ctx context.Context, principal string, kind catalogdomain.ActionKind, now time.Time) (View, error)
}

var (
	ErrInvalidPrincipal   = errors.New("invalid_principal")
	ErrTrackerUnavailable = errors.New("quota_tracker_unavailable")
)
