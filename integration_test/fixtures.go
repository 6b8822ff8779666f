package integration_test

import (
	"time"

	"unibox/internal/models"
)

// TestFixtures provides predefined test data for consistent testing. Every
// event carries a fixed external message id, so a fixture ingested twice in
// the same environment deduplicates instead of forking the thread.
type TestFixtures struct{}

// NewTestFixtures creates a new TestFixtures instance
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// Participants provides the standard cast used across fixtures, keyed by a
// short handle. The identifier shape differs per channel on purpose: E.164
// digits for WhatsApp, addresses for Gmail, handles for Instagram.
func (f *TestFixtures) Participants() map[string]string {
	return map[string]string{
		"maria":     "5491160001111",
		"jorge":     "5491160002222",
		"lucia":     "lucia.fernandez@gmail.com",
		"valen":     "@valen.compras",
		"proveedor": "ventas@distribuidora-norte.com.ar",
	}
}

// Events provides canonical incoming traffic across the default channel
// catalog. Conversation ids and message ids are stable between calls.
func (f *TestFixtures) Events() map[string]models.MessageEvent {
	now := time.Now().UTC()
	participants := f.Participants()

	return map[string]models.MessageEvent{
		"whatsapp_consulta": {
			ChannelName:            "whatsapp",
			ExternalConversationID: participants["maria"],
			ParticipantIdentifier:  participants["maria"],
			ParticipantName:        strPtr("María González"),
			ExternalMessageID:      strPtr("wamid.fixture-consulta-001"),
			Content:                "Hola! Tienen stock de la mochila negra?",
			Direction:              models.DirectionIncoming,
			SenderIdentifier:       participants["maria"],
			SenderName:             strPtr("María González"),
			Timestamp:              now.Add(-2 * time.Hour),
		},
		"whatsapp_pedido": {
			ChannelName:            "whatsapp",
			ExternalConversationID: participants["jorge"],
			ParticipantIdentifier:  participants["jorge"],
			ParticipantName:        strPtr("Jorge Paz"),
			ExternalMessageID:      strPtr("wamid.fixture-pedido-001"),
			Content:                "Quiero encargar 3 cajas del mate listado en la tienda",
			MessageType:            "text",
			Direction:              models.DirectionIncoming,
			SenderIdentifier:       participants["jorge"],
			Timestamp:              now.Add(-90 * time.Minute),
		},
		"gmail_reclamo": {
			ChannelName:            "gmail",
			ExternalConversationID: "thread-18c2f4a9b3e7d501",
			ParticipantIdentifier:  participants["lucia"],
			ParticipantName:        strPtr("Lucía Fernández"),
			ExternalMessageID:      strPtr("msg-18c2f4a9b3e7d501"),
			Content:                "El pedido #4417 llegó con el embalaje roto. Adjunto fotos.",
			Direction:              models.DirectionIncoming,
			SenderIdentifier:       participants["lucia"],
			SenderName:             strPtr("Lucía Fernández"),
			Timestamp:              now.Add(-45 * time.Minute),
			Metadata:               strPtr(`{"subject":"Reclamo pedido #4417","has_attachments":true}`),
		},
		"instagram_dm": {
			ChannelName:            "instagram",
			ExternalConversationID: "ig-dm-valen-compras",
			ParticipantIdentifier:  participants["valen"],
			ExternalMessageID:      strPtr("ig-msg-fixture-001"),
			Content:                "Envían a Córdoba capital?",
			Direction:              models.DirectionIncoming,
			SenderIdentifier:       participants["valen"],
			Timestamp:              now.Add(-10 * time.Minute),
		},
	}
}

// MediaEvent provides an incoming event with a non-text payload description.
func (f *TestFixtures) MediaEvent() models.MessageEvent {
	participants := f.Participants()
	return models.MessageEvent{
		ChannelName:            "whatsapp",
		ExternalConversationID: participants["maria"],
		ParticipantIdentifier:  participants["maria"],
		ExternalMessageID:      strPtr("wamid.fixture-media-001"),
		Content:                "",
		MessageType:            "image",
		Direction:              models.DirectionIncoming,
		SenderIdentifier:       participants["maria"],
		Timestamp:              time.Now().UTC(),
		Metadata:               strPtr(`{"mime_type":"image/jpeg","caption":"la mochila que busco"}`),
	}
}

// HistoryEntries provides operator audit records covering every action type.
func (f *TestFixtures) HistoryEntries() []models.HistoryEntry {
	return []models.HistoryEntry{
		{
			User:       "maria.ops",
			Action:     "ingested message into conversation",
			ActionType: models.ActionTypeMessageIngest,
			Endpoint:   "/api/v1/ingest",
			Method:     "POST",
			ClientIP:   strPtr("10.0.4.17"),
		},
		{
			User:       "maria.ops",
			Action:     "recorded outgoing reply",
			ActionType: models.ActionTypeMessageSend,
			Endpoint:   "/api/v1/conversations/1/messages",
			Method:     "POST",
			ClientIP:   strPtr("10.0.4.17"),
		},
		{
			User:       "jorge.ops",
			Action:     "changed conversation category",
			ActionType: models.ActionTypeCategoryChange,
			Details:    strPtr(`{"from":"sin_categoria","to":"pedido"}`),
			Endpoint:   "/api/v1/conversations/2/category",
			Method:     "POST",
			ClientIP:   strPtr("10.0.4.31"),
		},
		{
			User:       "jorge.ops",
			Action:     "marked message read",
			ActionType: models.ActionTypeMessageRead,
			Endpoint:   "/api/v1/messages/5/read",
			Method:     "POST",
		},
	}
}
