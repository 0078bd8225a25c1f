package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// TargetNormalization controls how a caller supplied target is keyed.
type TargetNormalization string

const (
	TargetNormalizationNone TargetNormalization = ""
	// TargetNormalizationSlug keys targets by their slug so reservations such
	// as clan names are unique regardless of case and punctuation.
	TargetNormalizationSlug TargetNormalization = "slug"
)

const dayLength = 24 * time.Hour

// ActionKind is an immutable gated action policy.
type ActionKind struct {
	Name                string              `json:"name"`
	FreeQuotaPerPeriod  int                 `json:"freeQuotaPerPeriod"`
	PeriodLength        time.Duration       `json:"periodLength"`
	TokenCost           int64               `json:"tokenCost"`
	AllowsSelfTarget    bool                `json:"allowsSelfTarget"`
	TargetNormalization TargetNormalization `json:"targetNormalization,omitempty"`
}

var (
	ErrActionNotFound       = errors.New("unknown_action")
	ErrInvalidName          = errors.New("invalid_action_name")
	ErrDuplicateName        = errors.New("duplicate_action_name")
	ErrInvalidFreeQuota     = errors.New("invalid_free_quota")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrInvalidTokenCost     = errors.New("invalid_token_cost")
	ErrInvalidNormalization = errors.New("invalid_target_normalization")
)

// Validate checks the invariants of a catalog entry.
func (a ActionKind) Validate() error {
	if strings.TrimSpace(a.Name) == "" || a.Name != strings.ToLower(strings.TrimSpace(a.Name)) {
		return ErrInvalidName
	}
	if a.FreeQuotaPerPeriod < 0 {
		return ErrInvalidFreeQuota
	}
	if a.PeriodLength <= 0 || a.PeriodLength%time.Second != 0 {
		return ErrInvalidPeriod
	}
	if a.TokenCost < 0 {
		return ErrInvalidTokenCost
	}
	switch a.TargetNormalization {
	case TargetNormalizationNone, TargetNormalizationSlug:
	default:
		return ErrInvalidNormalization
	}
	return nil
}

// NormalizeTarget returns the ledger key for target. An empty result means the
// target carries no usable identity.
func (a ActionKind) NormalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if a.TargetNormalization == TargetNormalizationSlug {
		return slug.Make(target)
	}
	return target
}

// PeriodStart returns the start of the UTC period containing now. Periods are
// consecutive multiples of PeriodLength counted from 0001-01-01 00:00 UTC, the
// zero time.Time. Daily and sub-day periods therefore align to UTC midnight,
// 7-day periods start on Mondays, and longer periods fall on fixed but
// non-calendar dates (90-day periods include one starting 2025-10-07).
func (a ActionKind) PeriodStart(now time.Time) time.Time {
	return now.UTC().Truncate(a.PeriodLength)
}

// PeriodKey identifies the period containing now. Whole-day periods use the
// UTC calendar date; anything else uses the RFC3339 period start.
func (a ActionKind) PeriodKey(now time.Time) string {
	start := a.PeriodStart(now)
	if a.PeriodLength%dayLength == 0 {
		return start.Format(time.DateOnly)
	}
	return start.Format(time.RFC3339)
}

// PeriodEnd returns the instant the period containing now resets.
func (a ActionKind) PeriodEnd(now time.Time) time.Time {
	return a.PeriodStart(now).Add(a.PeriodLength)
}

// IsFree reports whether the action never charges tokens.
func (a ActionKind) IsFree() bool {
	return a.TokenCost == 0
}
