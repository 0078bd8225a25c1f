package simulated

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"

	"github.com/natebag/MLG-BETA/internal/clock"
	walletdomain "github.com/natebag/MLG-BETA/internal/wallet/domain"
	"github.com/oklog/ulid/v2"
)

// Wallet is an in-memory token backend. Every unseen principal starts with
// the configured balance. Burns are keyed by idempotency key so a replay
// returns the original receipt without a second debit.
type Wallet struct {
	mu       sync.Mutex
	clock    clock.Clock
	starting int64
	balances map[string]int64
	burns    map[string]walletdomain.BurnReceipt
}

func New(startingBalance int64, clk clock.Clock) *Wallet {
	if clk == nil {
		clk = clock.New()
	}
	return &Wallet{
		clock:    clk,
		starting: startingBalance,
		balances: make(map[string]int64),
		burns:    make(map[string]walletdomain.BurnReceipt),
	}
}

func (w *Wallet) GetBalance(ctx context.Context, principal string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return 0, walletdomain.ErrInvalidPrincipal
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balanceLocked(principal), nil
}

func (w *Wallet) Burn(ctx context.Context, req walletdomain.BurnRequest) (walletdomain.BurnReceipt, error) {
	if err := ctx.Err(); err != nil {
		return walletdomain.BurnReceipt{}, err
	}
	principal := strings.TrimSpace(req.Principal)
	if principal == "" {
		return walletdomain.BurnReceipt{}, walletdomain.ErrInvalidPrincipal
	}
	if req.Amount <= 0 {
		return walletdomain.BurnReceipt{}, walletdomain.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if req.IdempotencyKey != "" {
		if receipt, ok := w.burns[req.IdempotencyKey]; ok {
			return receipt, nil
		}
	}

	balance := w.balanceLocked(principal)
	if balance < req.Amount {
		return walletdomain.BurnReceipt{}, walletdomain.ErrInsufficientFunds
	}
	w.balances[principal] = balance - req.Amount

	receipt := walletdomain.BurnReceipt{
		Reference: "sim_" + ulid.MustNew(ulid.Timestamp(w.clock.Now()), rand.Reader).String(),
		Amount:    req.Amount,
	}
	if req.IdempotencyKey != "" {
		w.burns[req.IdempotencyKey] = receipt
	}
	return receipt, nil
}

// SetBalance overrides a principal's balance.
func (w *Wallet) SetBalance(principal string, amount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[strings.TrimSpace(principal)] = amount
}

func (w *Wallet) balanceLocked(principal string) int64 {
	balance, ok := w.balances[principal]
	if !ok {
		balance = w.starting
		w.balances[principal] = balance
	}
	return balance
}
