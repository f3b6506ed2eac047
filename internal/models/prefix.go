package models

import "time"

// OrderReferencePrefix is a per-user token used to build sequential order
// references of the form TOKEN-N. Every user keeps at least one; the last
// prefix cannot be deleted.
type OrderReferencePrefix struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index:idx_prefix_user_token,priority:1" json:"user_id"`
	Token  string `gorm:"size:20;not null;index:idx_prefix_user_token,unique,priority:2" json:"token"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPrefixToken is assigned to every new user at signup.
const DefaultPrefixToken = "ORD"
