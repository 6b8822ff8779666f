package integration_test

import (
	"fmt"
	"sync/atomic"
	"time"

	"unibox/internal/models"
)

// Test data factories

var externalIDSeq atomic.Int64

// nextExternalID returns a process-unique provider message id. Concurrent
// tests submit events from many goroutines at once, so a counter is used
// instead of a timestamp.
func nextExternalID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, externalIDSeq.Add(1))
}

// NewIncomingEvent builds a participant-authored event with the current time
// and a fresh external message id.
func NewIncomingEvent(channel, externalConversationID, participant, content string) models.MessageEvent {
	return NewIncomingEventAt(channel, externalConversationID, participant, content, time.Now().UTC())
}

// NewIncomingEventAt builds a participant-authored event with an explicit
// provider timestamp.
func NewIncomingEventAt(channel, externalConversationID, participant, content string, ts time.Time) models.MessageEvent {
	id := nextExternalID(channel)
	return models.MessageEvent{
		ChannelName:            channel,
		ExternalConversationID: externalConversationID,
		ParticipantIdentifier:  participant,
		ExternalMessageID:      &id,
		Content:                content,
		Direction:              models.DirectionIncoming,
		SenderIdentifier:       participant,
		Timestamp:              ts,
	}
}

// NewOutgoingEventAt builds an operator-authored event for channels whose
// adapters report the operator's own sends back through the webhook.
func NewOutgoingEventAt(channel, externalConversationID, participant, content string, ts time.Time) models.MessageEvent {
	event := NewIncomingEventAt(channel, externalConversationID, participant, content, ts)
	event.Direction = models.DirectionOutgoing
	event.SenderIdentifier = "operator@unibox"
	return event
}

func strPtr(s string) *string {
	return &s
}
