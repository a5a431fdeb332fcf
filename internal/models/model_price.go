package models

import (
	"time"

	"gorm.io/datatypes"
)

// PerMessageDisabled is the sentinel per-message price meaning "bill by
// token counts instead of a flat per-message rate".
const PerMessageDisabled = -1

// ModelPrice stores the billing policy for one upstream model.
//
// Rows are created lazily on first price lookup for an unseen model id and are
// never deleted. Token prices are expressed in currency per 1,000,000 tokens,
// which makes them numerically equal to micros per token.
type ModelPrice struct {
	ID   string `gorm:"type:text;primaryKey"` // Upstream model id.
	Name string `gorm:"type:text;not null"`   // Display name.

	InputPrice  float64 `gorm:"type:decimal(20,10);not null;default:0"` // Price per 1M input tokens.
	OutputPrice float64 `gorm:"type:decimal(20,10);not null;default:0"` // Price per 1M output tokens.

	// PerMsgPrice is the flat price charged per message. PerMessageDisabled
	// (-1) disables flat pricing; real negative prices are rejected at the
	// update boundary.
	PerMsgPrice float64 `gorm:"type:decimal(20,10);not null;default:-1"`

	Meta datatypes.JSON `gorm:"type:jsonb"` // Upstream catalog metadata snapshot.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default pluralization.
func (ModelPrice) TableName() string { return "model_prices" }

// PerMessage reports whether flat per-message pricing is active.
func (p *ModelPrice) PerMessage() bool {
	return p.PerMsgPrice >= 0
}
