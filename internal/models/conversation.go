package models

import "time"

// Category is the closed classification set for conversations.
type Category string

const (
	CategoryConsulta     Category = "consulta"
	CategoryPedido       Category = "pedido"
	CategoryReclamo      Category = "reclamo"
	CategorySinCategoria Category = "sin_categoria"
)

// Categories lists every valid category value.
var Categories = []Category{
	CategoryConsulta,
	CategoryPedido,
	CategoryReclamo,
	CategorySinCategoria,
}

// IsValid reports whether c is one of the enumerated categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryConsulta, CategoryPedido, CategoryReclamo, CategorySinCategoria:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// Conversation is a unified thread with one participant on one channel.
// (ChannelID, ExternalID) is unique together; the same external string on
// two channels is two separate conversations.
type Conversation struct {
	ID                    int64     `db:"id" json:"id"`
	ChannelID             int64     `db:"channel_id" json:"channel_id"`
	ExternalID            string    `db:"external_id" json:"external_id"`
	ParticipantIdentifier string    `db:"participant_identifier" json:"participant_identifier"`
	ParticipantName       *string   `db:"participant_name" json:"participant_name,omitempty"`
	IsActive              bool      `db:"is_active" json:"is_active"`
	Category              Category  `db:"category" json:"category"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// ConversationFilter narrows conversation listings. Nil fields mean no
// constraint on that column.
type ConversationFilter struct {
	ChannelID *int64
	Category  *Category
	IsActive  *bool
	Limit     int
	Offset    int
}
