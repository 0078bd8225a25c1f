package domain

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/natebag/MLG-BETA/pkg/db/pagination"
)

type AppendRequest struct {
	Principal     string
	ActionKind    string
	Target        string
	PaymentMode   PaymentMode
	AmountCharged int64
	Metadata      map[string]any
	OccurredAt    time.Time
}

type ListRequest struct {
	Principal  string
	ActionKind string
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

type RecordIncidentRequest struct {
	Principal     string
	ActionKind    string
	Target        string
	AmountCharged int64
	BurnReference string
	Reason        IncidentReason
	Detail        string
	OccurredAt    time.Time
}

type ListIncidentsResponse struct {
	pagination.PageInfo
	Incidents []Incident `json:"incidents"`
}

// Store is the append-only ledger of completed authorizations.
type Store interface {
	Exists(ctx context.Context, principal, actionKind, target string) (bool, error)
	Append(ctx context.Context, req AppendRequest) (LedgerEntry, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	QueryByPrincipal(ctx context.Context, principal, actionKind string) iter.Seq2[LedgerEntry, error]
	RecordIncident(ctx context.Context, req RecordIncidentRequest) (Incident, error)
	ListIncidents(ctx context.Context, page pagination.Pagination) (ListIncidentsResponse, error)
}

var (
	ErrDuplicate          = errors.New("already_recorded")
	ErrStoreUnavailable   = errors.New("ledger_store_unavailable")
	ErrInvalidPrincipal   = errors.New("invalid_principal")
	ErrInvalidActionKind  = errors.New("invalid_action_kind")
	ErrInvalidTarget      = errors.New("invalid_target")
	ErrInvalidPaymentMode = errors.New("invalid_payment_mode")
	ErrInvalidAmount      = errors.New("invalid_amount_charged")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrInvalidReason      = errors.New("invalid_incident_reason")
)
