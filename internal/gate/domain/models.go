package domain

import (
	"time"

	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
)

type Status string

const (
	StatusGranted  Status = "granted"
	StatusRejected Status = "rejected"
)

// Reason explains a rejection. Every reason is terminal for the attempt; the
// recoverable ones tell the caller what it may try next.
type Reason string

const (
	ReasonUnknownAction       Reason = "unknown_action"
	ReasonSelfTargetForbidden Reason = "self_target_forbidden"
	ReasonAlreadyRecorded     Reason = "already_recorded"
	// ReasonQuotaExhausted may be retried immediately with WantPaid.
	ReasonQuotaExhausted    Reason = "quota_exhausted"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	// ReasonPaymentFailed covers balance lookups and burns that failed or
	// timed out. It is never retried by the engine.
	ReasonPaymentFailed Reason = "payment_failed"
	// ReasonPaidButDuplicate means tokens were burned but another request
	// recorded the same tuple first. It needs manual compensation.
	ReasonPaidButDuplicate Reason = "paid_but_duplicate"
)

// State is a step of one authorization attempt.
type State string

const (
	StateRequested        State = "requested"
	StateDuplicateChecked State = "duplicate_checked"
	StateFreeGranted      State = "free_granted"
	StatePaidRequired     State = "paid_required"
	StatePaid             State = "paid"
	StatePaymentFailed    State = "payment_failed"
	StateRecorded         State = "recorded"
	StateCompleted        State = "completed"
	StateRejected         State = "rejected"
)

type AuthorizeRequest struct {
	Principal  string
	ActionKind string
	Target     string
	// SelfTarget is the caller's assertion that Target belongs to Principal.
	SelfTarget bool
	WantPaid   bool
	// Now overrides the engine clock when set.
	Now time.Time
}

// Result is the typed outcome of Authorize. A granted result carries the
// ledger entry the caller uses as proof before mutating its own domain.
type Result struct {
	Status        Status                    `json:"status"`
	Reason        Reason                    `json:"reason,omitempty"`
	State         State                     `json:"state"`
	ActionKind    string                    `json:"actionKind"`
	PaymentMode   ledgerdomain.PaymentMode  `json:"paymentMode,omitempty"`
	AmountCharged int64                     `json:"amountCharged"`
	RemainingFree *int                      `json:"remainingFree,omitempty"`
	Entry         *ledgerdomain.LedgerEntry `json:"entry,omitempty"`
	BurnReference string                    `json:"burnReference,omitempty"`
	IncidentID    string                    `json:"incidentId,omitempty"`
}

func (r Result) Granted() bool {
	return r.Status == StatusGranted
}

// BalanceView is a principal's spendable balance in base units and in
// display form.
type BalanceView struct {
	Principal string `json:"principal"`
	Balance   int64  `json:"balance"`
	Display   string `json:"display"`
	Decimals  int    `json:"decimals"`
}
