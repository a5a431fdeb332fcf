package models

import "time"

// UsageRecord is one immutable ledger entry for a billed event.
//
// Cost and balance-after are point-in-time snapshots: they are never
// recomputed when prices or balances later change. UserID is a plain
// reference, not an ownership link, so rows survive user soft-deletion.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Sequence number.

	UserID   string `gorm:"type:text;not null;index"` // Billed user id.
	Nickname string `gorm:"type:text;not null;index"` // Display name at time of use.

	UseTime   time.Time `gorm:"not null;index"`           // Billing timestamp.
	ModelName string    `gorm:"type:text;not null;index"` // Billed model name.

	InputTokens  int64 `gorm:"not null;default:0"` // Input token count.
	OutputTokens int64 `gorm:"not null;default:0"` // Output token count.

	CostMicros         int64 `gorm:"not null;default:0"` // Cost in micros.
	BalanceAfterMicros int64 `gorm:"not null"`           // Balance snapshot after the debit.
}

// TableName keeps the original table name used by panel exports.
func (UsageRecord) TableName() string { return "user_usage_records" }

// Cost returns the cost in currency units.
func (r *UsageRecord) Cost() float64 {
	return float64(r.CostMicros) / 1_000_000
}

// BalanceAfter returns the post-debit balance in currency units.
func (r *UsageRecord) BalanceAfter() float64 {
	return float64(r.BalanceAfterMicros) / 1_000_000
}
