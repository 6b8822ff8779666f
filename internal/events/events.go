// Package events provides the WebSocket fanout for domain events so
// operator frontends can update inboxes without polling.
package events

import (
	"time"

	"unibox/internal/models"

	"github.com/oklog/ulid/v2"
)

// Event types carried on the stream.
const (
	TypeMessageIngested         = "message.ingested"
	TypeConversationCategorized = "conversation.categorized"
)

// Frame is one event on the stream. EventID is a ULID, so frames sort by
// emission time and clients can dedup across reconnects.
type Frame struct {
	EventID        string           `json:"event_id"`
	Type           string           `json:"type"`
	ConversationID int64            `json:"conversation_id"`
	MessageID      int64            `json:"message_id,omitempty"`
	Channel        string           `json:"channel,omitempty"`
	Direction      models.Direction `json:"direction,omitempty"`
	Category       models.Category  `json:"category,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

func newEventID() string {
	return ulid.Make().String()
}
