package service

import (
	"context"
	"time"

	"unibox/internal/constants"
	apperrors "unibox/internal/errors"
	"unibox/internal/metrics"
	"unibox/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HistoryCleaner prunes audit entries older than the retention window.
// Conversations and messages are never deleted; retention applies to the
// history log only.
type HistoryCleaner interface {
	CleanupOldHistory(retentionDays int) error
}

// Scheduler runs the history retention sweep on a fixed interval, once at
// startup and then on every tick until stopped.
type Scheduler struct {
	cleaner       HistoryCleaner
	retentionDays int
	interval      time.Duration
	logger        *apperrors.Logger
	stopCh        chan struct{}
}

func NewScheduler(cleaner HistoryCleaner, retentionDays, intervalSec int, logger *logrus.Logger) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	if intervalSec <= 0 {
		intervalSec = constants.DefaultCleanupIntervalSec
	}
	return &Scheduler{
		cleaner:       cleaner,
		retentionDays: retentionDays,
		interval:      time.Duration(intervalSec) * time.Second,
		logger:        apperrors.NewLogger(logger),
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithContext(logrus.Fields{
		"retention_days": s.retentionDays,
		"interval":       s.interval.String(),
	}).Info("Starting history cleanup scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// sweep runs one retention pass. Each pass gets its own correlation ids and
// span, so a failing sweep lines up with the rest of the structured logs.
func (s *Scheduler) sweep(ctx context.Context) {
	ctx = tracing.WithFullTracing(ctx)
	ctx, span := tracing.StartSpan(ctx, "history_cleanup",
		attribute.Int("retention.days", s.retentionDays))
	defer span.End()

	fields := logrus.Fields{
		LogFieldRequestID: tracing.GetRequestID(ctx),
		"retention_days":  s.retentionDays,
	}
	s.logger.WithContext(fields).Info("Running scheduled history cleanup")

	if err := s.cleaner.CleanupOldHistory(s.retentionDays); err != nil {
		tracing.SetSpanStatus(ctx, codes.Error, "history cleanup failed")
		s.logger.LogErrorContext(ctx, err, "Failed to cleanup old history entries", fields)
		return
	}

	tracing.SetSpanStatus(ctx, codes.Ok, "")
	metrics.IncrementCounter("history_cleanup_runs_total", nil, "Completed history retention sweeps")
	metrics.RecordTimer("history_cleanup_duration", tracing.Duration(ctx), nil, "Time spent pruning expired history entries")
	s.logger.WithContext(fields).Info("Successfully completed history cleanup")
}
