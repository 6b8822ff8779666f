package models

import "time"

// DashboardMetrics is the analytics snapshot for a date window.
type DashboardMetrics struct {
	Start                 time.Time        `json:"start"`
	End                   time.Time        `json:"end"`
	Channel               string           `json:"channel,omitempty"`
	TotalConversations    int64            `json:"total_conversations"`
	IncomingMessages      int64            `json:"incoming_messages"`
	OutgoingMessages      int64            `json:"outgoing_messages"`
	MessagesByChannel     map[string]int64 `json:"messages_by_channel"`
	MessagesByDay         map[string]int64 `json:"messages_by_day"`
	AvgFirstResponseMin   *float64         `json:"avg_first_response_min,omitempty"`
	AnsweredConversations int64            `json:"answered_conversations"`
	SLAAttainment         *float64         `json:"sla_attainment,omitempty"`
}

// WeeklyComparison contrasts the current Monday-aligned week with the
// previous one.
type WeeklyComparison struct {
	CurrentWeekStart   time.Time `json:"current_week_start"`
	PreviousWeekStart  time.Time `json:"previous_week_start"`
	CurrentMessages    int64     `json:"current_messages"`
	PreviousMessages   int64     `json:"previous_messages"`
	MessageChangePct   *float64  `json:"message_change_pct,omitempty"`
	CurrentSLARate     *float64  `json:"current_sla_rate,omitempty"`
	PreviousSLARate    *float64  `json:"previous_sla_rate,omitempty"`
	SLARateDeltaPoints *float64  `json:"sla_rate_delta_points,omitempty"`
}

// ConversationResponse carries a conversation's first incoming and first
// outgoing message timestamps. Either side can be nil for one-sided
// conversations.
type ConversationResponse struct {
	ConversationID int64
	FirstIncoming  *time.Time
	FirstOutgoing  *time.Time
}

// ResponseMinutes returns the first-response time in minutes, or nil when
// the conversation was never asked a question or never answered. An outgoing
// message that predates the first incoming one is proactive outreach, not a
// response.
func (r ConversationResponse) ResponseMinutes() *float64 {
	if r.FirstIncoming == nil || r.FirstOutgoing == nil {
		return nil
	}
	if r.FirstOutgoing.Before(*r.FirstIncoming) {
		return nil
	}
	m := r.FirstOutgoing.Sub(*r.FirstIncoming).Minutes()
	return &m
}
