package domain

import "time"

// QuotaState is the free-use counter for one (principal, action kind) pair.
// UsedCount only counts grants made within PeriodKey.
type QuotaState struct {
	Principal  string    `gorm:"type:varchar(191);primaryKey"`
	ActionKind string    `gorm:"type:varchar(64);primaryKey"`
	PeriodKey  string    `gorm:"type:varchar(32);not null"`
	UsedCount  int       `gorm:"not null;default:0"`
	UpdatedAt  time.Time `gorm:"not null;index"`
	// PeriodEndsAt is when PeriodKey resets. Rows written before the column
	// existed carry NULL until their next consume.
	PeriodEndsAt *time.Time `gorm:"index"`
}

// TableName sets the database table name.
func (QuotaState) TableName() string { return "quota_states" }

// Slot addresses the counter consulted by one consume attempt.
type Slot struct {
	Principal  string
	ActionKind string
	PeriodKey  string
	Limit      int
	ResetsAt   time.Time
}

// Grant is the outcome of a consume attempt.
type Grant struct {
	Granted   bool
	Used      int
	Remaining int
	PeriodKey string
}

// View is a read-only snapshot of a principal's free quota.
type View struct {
	ActionKind string    `json:"actionKind"`
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	PeriodKey  string    `json:"periodKey"`
	ResetsAt   time.Time `json:"resetsAt"`
}
