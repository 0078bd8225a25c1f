package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	catalogdomain "github.com/natebag/MLG-BETA/internal/catalog/domain"
	"github.com/natebag/MLG-BETA/internal/clock"
	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store quotadomain.Store
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	store quotadomain.Store
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) quotadomain.Tracker {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		store: p.Store,
		log:   p.Log.Named("quota.tracker"),
		clock: clk,
	}
}

// Consume grants one free use of kind to principal if the current period still
// has quota. Store failures are reported as ErrTrackerUnavailable and never
// as a grant.
func (s *Service) Consume(ctx context.Context, principal string, kind catalogdomain.ActionKind, now time.Time) (quotadomain.Grant, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return quotadomain.Grant{}, quotadomain.ErrInvalidPrincipal
	}

	slot := slotFor(principal, kind, now)
	if slot.Limit <= 0 {
		return quotadomain.Grant{PeriodKey: slot.PeriodKey}, nil
	}

	used, granted, err := s.store.TryConsume(ctx, slot, now)
	if err != nil {
		s.log.Error("quota consume failed",
			zap.String("principal", principal),
			zap.String("action_kind", kind.Name),
			zap.String("period_key", slot.PeriodKey),
			zap.Error(err),
		)
		return quotadomain.Grant{}, fmt.Errorf("%w: %w", quotadomain.ErrTrackerUnavailable, err)
	}

	grant := quotadomain.Grant{
		Granted:   granted,
		Used:      used,
		PeriodKey: slot.PeriodKey,
	}
	if granted {
		grant.Remaining = max(slot.Limit-used, 0)
	}
	return grant, nil
}

// Release returns a free use granted in periodKey. It is used when the grant
// could not be recorded. Releasing into a period that has already rolled over
// is a no-op.
func (s *Service) Release(ctx context.Context, principal string, kind catalogdomain.ActionKind, periodKey string) error {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return quotadomain.ErrInvalidPrincipal
	}
	if kind.FreeQuotaPerPeriod <= 0 || periodKey == "" {
		return nil
	}

	slot := quotadomain.Slot{
		Principal:  principal,
		ActionKind: kind.Name,
		PeriodKey:  periodKey,
		Limit:      kind.FreeQuotaPerPeriod,
	}
	if err := s.store.Release(ctx, slot, s.clock.Now()); err != nil {
		return fmt.Errorf("%w: %w", quotadomain.ErrTrackerUnavailable, err)
	}
	return nil
}

// Peek reports the quota for the period containing now without consuming it.
func (s *Service) Peek(ctx context.Context, principal string, kind catalogdomain.ActionKind, now time.Time) (quotadomain.View, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return quotadomain.View{}, quotadomain.ErrInvalidPrincipal
	}

	slot := slotFor(principal, kind, now)
	view := quotadomain.View{
		ActionKind: kind.Name,
		Limit:      slot.Limit,
		Remaining:  slot.Limit,
		PeriodKey:  slot.PeriodKey,
		ResetsAt:   slot.ResetsAt,
	}
	if slot.Limit <= 0 {
		view.Remaining = 0
		return view, nil
	}

	state, err := s.store.Get(ctx, principal, kind.Name)
	if err != nil {
		return quotadomain.View{}, fmt.Errorf("%w: %w", quotadomain.ErrTrackerUnavailable, err)
	}
	if state != nil && state.PeriodKey == slot.PeriodKey {
		view.Used = state.UsedCount
		view.Remaining = max(slot.Limit-state.UsedCount, 0)
	}
	return view, nil
}

func slotFor(principal string, kind catalogdomain.ActionKind, now time.Time) quotadomain.Slot {
	return quotadomain.Slot{
		Principal:  principal,
		ActionKind: kind.Name,
		PeriodKey:  kind.PeriodKey(now),
		Limit:      kind.FreeQuotaPerPeriod,
		ResetsAt:   kind.PeriodEnd(now),
	}
}
