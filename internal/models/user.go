package models

import "time"

// User roles recognized by the panel.
const (
	// RoleUser is the default role for provisioned accounts.
	RoleUser = "user"
	// RoleAdmin marks panel administrators.
	RoleAdmin = "admin"
)

// User represents a gateway end-user account.
//
// The primary key is the upstream gateway's opaque user id; accounts are
// created lazily on the first provisioning or billing event for an unseen id.
type User struct {
	ID string `gorm:"type:text;primaryKey"` // Upstream user id.

	Email string `gorm:"type:text;not null;index"`           // Email address.
	Name  string `gorm:"type:text;not null"`                 // Display name.
	Role  string `gorm:"type:text;not null;default:'user'"`  // Role: user or admin.

	// BalanceMicros is the account balance in millionths of the configured
	// currency unit. Overdraft is permitted, so the value may go negative.
	BalanceMicros int64 `gorm:"not null;default:0"`

	Deleted bool `gorm:"not null;default:false"` // Soft-delete flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Balance returns the balance in currency units.
func (u *User) Balance() float64 {
	return float64(u.BalanceMicros) / 1_000_000
}
