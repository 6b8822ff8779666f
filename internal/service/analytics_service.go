package service

import (
	"context"
	"fmt"
	"time"

	"unibox/internal/constants"
	"unibox/internal/models"

	"github.com/sirupsen/logrus"
)

// AnalyticsDatabase is the aggregate-query surface the analytics service
// consumes.
type AnalyticsDatabase interface {
	CountConversationsStarted(ctx context.Context, start, end time.Time, channel string) (int64, error)
	CountMessagesByDirection(ctx context.Context, start, end time.Time, channel string) (map[models.Direction]int64, error)
	CountMessagesByChannel(ctx context.Context, start, end time.Time, channel string) (map[string]int64, error)
	CountMessagesByDay(ctx context.Context, start, end time.Time, channel string) (map[string]int64, error)
	CountMessagesInWindow(ctx context.Context, start, end time.Time, channel string) (int64, error)
	GetConversationResponseTimes(ctx context.Context, start, end time.Time, channel string) ([]models.ConversationResponse, error)
}

// AnalyticsService computes dashboard and week-over-week metrics from the
// stored conversation history.
type AnalyticsService interface {
	Dashboard(ctx context.Context, start, end time.Time, channel string) (*models.DashboardMetrics, error)
	WeeklyComparison(ctx context.Context) (*models.WeeklyComparison, error)
}

type analyticsService struct {
	db     AnalyticsDatabase
	logger *logrus.Logger
	now    func() time.Time
}

// NewAnalyticsService wires the analytics queries.
func NewAnalyticsService(db AnalyticsDatabase, logger *logrus.Logger) AnalyticsService {
	if logger == nil {
		logger = logrus.New()
	}
	return &analyticsService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Dashboard aggregates the [start, end) window. An empty channel spans all
// channels; windows are half-open so adjacent windows never double count.
func (s *analyticsService) Dashboard(ctx context.Context, start, end time.Time, channel string) (*models.DashboardMetrics, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("analytics window end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	totalConversations, err := s.db.CountConversationsStarted(ctx, start, end, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	byDirection, err := s.db.CountMessagesByDirection(ctx, start, end, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by direction: %w", err)
	}

	byChannel, err := s.db.CountMessagesByChannel(ctx, start, end, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by channel: %w", err)
	}

	byDay, err := s.db.CountMessagesByDay(ctx, start, end, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by day: %w", err)
	}

	responses, err := s.db.GetConversationResponseTimes(ctx, start, end, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to load response times: %w", err)
	}

	metrics := &models.DashboardMetrics{
		Start:              start,
		End:                end,
		Channel:            channel,
		TotalConversations: totalConversations,
		IncomingMessages:   byDirection[models.DirectionIncoming],
		OutgoingMessages:   byDirection[models.DirectionOutgoing],
		MessagesByChannel:  byChannel,
		MessagesByDay:      byDay,
	}

	avg, answered, sla := summarizeResponses(responses)
	metrics.AvgFirstResponseMin = avg
	metrics.AnsweredConversations = answered
	metrics.SLAAttainment = sla

	return metrics, nil
}

// WeeklyComparison contrasts the running Monday-aligned week with the one
// before it.
func (s *analyticsService) WeeklyComparison(ctx context.Context) (*models.WeeklyComparison, error) {
	currentStart := weekStart(s.now().UTC())
	currentEnd := currentStart.AddDate(0, 0, constants.DaysPerWeek)
	previousStart := currentStart.AddDate(0, 0, -constants.DaysPerWeek)

	currentMessages, err := s.db.CountMessagesInWindow(ctx, currentStart, currentEnd, "")
	if err != nil {
		return nil, fmt.Errorf("failed to count current week messages: %w", err)
	}

	previousMessages, err := s.db.CountMessagesInWindow(ctx, previousStart, currentStart, "")
	if err != nil {
		return nil, fmt.Errorf("failed to count previous week messages: %w", err)
	}

	currentResponses, err := s.db.GetConversationResponseTimes(ctx, currentStart, currentEnd, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load current week response times: %w", err)
	}

	previousResponses, err := s.db.GetConversationResponseTimes(ctx, previousStart, currentStart, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load previous week response times: %w", err)
	}

	comparison := &models.WeeklyComparison{
		CurrentWeekStart:  currentStart,
		PreviousWeekStart: previousStart,
		CurrentMessages:   currentMessages,
		PreviousMessages:  previousMessages,
	}

	if previousMessages > 0 {
		pct := (float64(currentMessages) - float64(previousMessages)) / float64(previousMessages) * 100
		comparison.MessageChangePct = &pct
	}

	_, _, currentSLA := summarizeResponses(currentResponses)
	_, _, previousSLA := summarizeResponses(previousResponses)
	comparison.CurrentSLARate = currentSLA
	comparison.PreviousSLARate = previousSLA

	if currentSLA != nil && previousSLA != nil {
		delta := (*currentSLA - *previousSLA) * 100
		comparison.SLARateDeltaPoints = &delta
	}

	return comparison, nil
}

// summarizeResponses reduces per-conversation response times to the mean
// first-response minutes, the answered count, and the SLA attainment rate.
// The rate denominator is conversations that were asked a question; those
// never answered count against it. Both averages are nil when no data
// qualifies so callers can tell "no traffic" apart from "zero minutes".
func summarizeResponses(responses []models.ConversationResponse) (*float64, int64, *float64) {
	var asked, answered, withinSLA int64
	var totalMinutes float64

	for _, r := range responses {
		if r.FirstIncoming == nil {
			continue
		}
		asked++

		minutes := r.ResponseMinutes()
		if minutes == nil {
			continue
		}
		answered++
		totalMinutes += *minutes
		if *minutes <= constants.SLAThresholdMinutes {
			withinSLA++
		}
	}

	var avg *float64
	if answered > 0 {
		v := totalMinutes / float64(answered)
		avg = &v
	}

	var sla *float64
	if asked > 0 {
		v := float64(withinSLA) / float64(asked)
		sla = &v
	}

	return avg, answered, sla
}

// weekStart truncates t to the Monday 00:00 UTC that begins its week.
func weekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
