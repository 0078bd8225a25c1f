package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
)

// Engine decides whether a principal may perform a gated action, takes
// payment when needed, and records the outcome exactly once.
type Engine interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Result, error)
	Quota(ctx context.Context, principal, actionKind string) (quotadomain.View, error)
	History(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error)
	Balance(ctx context.Context, principal string) (BalanceView, error)
}

var (
	ErrInvalidPrincipal = errors.New("invalid_principal")
	ErrInvalidTarget    = errors.New("invalid_target")
)
