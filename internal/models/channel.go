package models

import "time"

// Channel is a messaging surface registered in the channel catalog,
// e.g. "whatsapp" or "gmail". Channels are provisioned once and never
// deleted; deactivating one only blocks new conversation creation.
type Channel struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	DisplayName string    `db:"display_name" json:"display_name"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SeedChannel describes a channel provisioned on first start.
type SeedChannel struct {
	Name        string
	DisplayName string
}

// DefaultSeedChannels are created when the channel table is empty.
var DefaultSeedChannels = []SeedChannel{
	{Name: "whatsapp", DisplayName: "WhatsApp"},
	{Name: "gmail", DisplayName: "Gmail"},
	{Name: "instagram", DisplayName: "Instagram"},
}
