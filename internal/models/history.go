package models

import "time"

// History action types recorded by the audit log.
const (
	ActionTypeMessageIngest  = "message_ingest"
	ActionTypeMessageSend    = "message_send"
	ActionTypeMessageRead    = "message_read"
	ActionTypeCategoryChange = "category_change"
)

// HistoryEntry is one append-only audit record of an operator or adapter
// action against the API.
type HistoryEntry struct {
	ID         int64     `db:"id" json:"id"`
	User       string    `db:"user" json:"user"`
	Action     string    `db:"action" json:"action"`
	ActionType string    `db:"action_type" json:"action_type"`
	Details    *string   `db:"details" json:"details,omitempty"`
	Endpoint   string    `db:"endpoint" json:"endpoint"`
	Method     string    `db:"method" json:"method"`
	ClientIP   *string   `db:"client_ip" json:"client_ip,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// HistoryFilter narrows a history listing. Zero values mean no filter.
type HistoryFilter struct {
	User       string
	ActionType string
	Limit      int
	Offset     int
}

// HistoryStats aggregates the audit log for the dashboard.
type HistoryStats struct {
	Total        int64            `json:"total"`
	ByActionType map[string]int64 `json:"by_action_type"`
	ByUser       map[string]int64 `json:"by_user"`
}
