package domain

import (
	"context"
	"errors"
)

// BalanceOracle reads a principal's spendable token balance in base units.
type BalanceOracle interface {
	GetBalance(ctx context.Context, principal string) (int64, error)
}

// BurnExecutor irreversibly debits tokens. A burn either lands in full or
// not at all.
type BurnExecutor interface {
	Burn(ctx context.Context, req BurnRequest) (BurnReceipt, error)
}

// Wallet is a backend that serves both sides of the token collaborator.
type Wallet interface {
	BalanceOracle
	BurnExecutor
}

type BurnRequest struct {
	Principal string
	Amount    int64
	// IdempotencyKey lets the token service collapse a replayed request.
	IdempotencyKey string
}

type BurnReceipt struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

var (
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrExecution         = errors.New("burn_execution_failed")
	ErrUnavailable       = errors.New("wallet_unavailable")
	ErrInvalidConfig     = errors.New("invalid_wallet_config")
	ErrInvalidAmount     = errors.New("invalid_burn_amount")
	ErrInvalidPrincipal  = errors.New("invalid_principal")
)
