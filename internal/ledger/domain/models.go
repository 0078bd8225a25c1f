package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentMode records how an authorization was paid for.
type PaymentMode string

const (
	PaymentModeFree PaymentMode = "free"
	PaymentModePaid PaymentMode = "paid"
)

// Valid reports whether the mode is one of the known payment modes.
func (m PaymentMode) Valid() bool {
	return m == PaymentModeFree || m == PaymentModePaid
}

// Column widths of the tuple, counted in characters.
const (
	MaxPrincipalLength = 191
	MaxTargetLength    = 255
)

// LedgerEntry is the immutable proof that a gated action was authorized.
// The (principal, action_kind, target) tuple is unique for all time.
type LedgerEntry struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	Principal     string            `gorm:"type:varchar(191);not null;uniqueIndex:ux_ledger_entries_tuple,priority:1;index:ix_ledger_entries_history,priority:1" json:"principal"`
	ActionKind    string            `gorm:"type:varchar(64);not null;uniqueIndex:ux_ledger_entries_tuple,priority:2;index:ix_ledger_entries_history,priority:2" json:"actionKind"`
	Target        string            `gorm:"type:varchar(255);not null;uniqueIndex:ux_ledger_entries_tuple,priority:3" json:"target"`
	PaymentMode   PaymentMode       `gorm:"type:varchar(16);not null" json:"paymentMode"`
	AmountCharged int64             `gorm:"not null;default:0" json:"amountCharged"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	OccurredAt    time.Time         `gorm:"not null;index:ix_ledger_entries_history,priority:3" json:"occurredAt"`
	CreatedAt     time.Time         `gorm:"not null" json:"createdAt"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// BurnReference returns the executor reference stored with a paid entry.
func (e LedgerEntry) BurnReference() string {
	if e.Metadata == nil {
		return ""
	}
	ref, _ := e.Metadata[MetadataBurnReference].(string)
	return ref
}

const (
	MetadataBurnReference  = "burn_reference"
	MetadataIdempotencyKey = "idempotency_key"
)

type IncidentReason string

const (
	// IncidentPaidButDuplicate marks a burn that executed for a tuple another
	// request recorded first.
	IncidentPaidButDuplicate IncidentReason = "paid_but_duplicate"
	// IncidentPaidButUnrecorded marks a burn whose ledger append failed for a
	// reason other than a duplicate.
	IncidentPaidButUnrecorded IncidentReason = "paid_but_unrecorded"
)

// Incident captures a charged authorization that could not be recorded and
// needs manual compensation.
type Incident struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	Principal     string         `gorm:"type:varchar(191);not null;index" json:"principal"`
	ActionKind    string         `gorm:"type:varchar(64);not null" json:"actionKind"`
	Target        string         `gorm:"type:varchar(255);not null" json:"target"`
	AmountCharged int64          `gorm:"not null" json:"amountCharged"`
	BurnReference string         `gorm:"type:varchar(255)" json:"burnReference,omitempty"`
	Reason        IncidentReason `gorm:"type:varchar(32);not null" json:"reason"`
	Detail        string         `gorm:"type:text" json:"detail,omitempty"`
	OccurredAt    time.Time      `gorm:"not null" json:"occurredAt"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"createdAt"`
}

// TableName sets the database table name.
func (Incident) TableName() string { return "ledger_incidents" }
