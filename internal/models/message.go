package models

import "time"

// Direction distinguishes participant-authored messages from
// operator/system-authored ones.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// IsValid reports whether d is one of the two enumerated directions.
func (d Direction) IsValid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

func (d Direction) String() string {
	return string(d)
}

// DefaultMessageType is assumed when an event carries no type tag.
const DefaultMessageType = "text"

// Message is one stored message inside a conversation. Timestamp is the
// provider-asserted event time and the ordering key; CreatedAt is the
// ingestion time at this system. ExternalMessageID is nullable because not
// every provider exposes one; when present it is the dedup key within the
// conversation.
type Message struct {
	ID                int64     `db:"id" json:"id"`
	ConversationID    int64     `db:"conversation_id" json:"conversation_id"`
	ExternalMessageID *string   `db:"external_message_id" json:"external_message_id,omitempty"`
	Content           string    `db:"content" json:"content"`
	MessageType       string    `db:"message_type" json:"message_type"`
	Direction         Direction `db:"direction" json:"direction"`
	SenderIdentifier  string    `db:"sender_identifier" json:"sender_identifier"`
	SenderName        *string   `db:"sender_name" json:"sender_name,omitempty"`
	Timestamp         time.Time `db:"timestamp" json:"timestamp"`
	IsRead            bool      `db:"is_read" json:"is_read"`
	Metadata          *string   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// MessageEvent is the canonical event shape adapters submit. One event maps
// to exactly one logical conversation and at most one stored message.
type MessageEvent struct {
	ChannelName            string    `json:"channel_name"`
	ExternalConversationID string    `json:"external_conversation_id"`
	ParticipantIdentifier  string    `json:"participant_identifier"`
	ParticipantName        *string   `json:"participant_name,omitempty"`
	ExternalMessageID      *string   `json:"external_message_id,omitempty"`
	Content                string    `json:"content"`
	MessageType            string    `json:"message_type,omitempty"`
	Direction              Direction `json:"direction"`
	SenderIdentifier       string    `json:"sender_identifier"`
	SenderName             *string   `json:"sender_name,omitempty"`
	Timestamp              time.Time `json:"timestamp"`
	Metadata               *string   `json:"metadata,omitempty"`
}
