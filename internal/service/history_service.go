package service

import (
	"context"
	"fmt"

	"unibox/internal/models"

	"github.com/sirupsen/logrus"
)

// HistoryStore is the audit-log storage surface.
type HistoryStore interface {
	InsertHistoryEntry(ctx context.Context, entry *models.HistoryEntry) error
	ListHistoryEntries(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error)
	GetHistoryStats(ctx context.Context) (*models.HistoryStats, error)
}

// HistoryService records and reads the append-only audit log. Recording is
// best effort when disabled; the mutating operation itself never fails
// because its audit write was skipped.
type HistoryService interface {
	Record(ctx context.Context, entry *models.HistoryEntry) error
	List(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error)
	Stats(ctx context.Context) (*models.HistoryStats, error)
	Enabled() bool
}

type historyService struct {
	store   HistoryStore
	enabled bool
	logger  *logrus.Logger
}

// NewHistoryService wires the audit log. With enabled false, Record becomes
// a no-op and reads still work against whatever was stored before.
func NewHistoryService(store HistoryStore, enabled bool, logger *logrus.Logger) HistoryService {
	if logger == nil {
		logger = logrus.New()
	}
	return &historyService{
		store:   store,
		enabled: enabled,
		logger:  logger,
	}
}

func (s *historyService) Record(ctx context.Context, entry *models.HistoryEntry) error {
	if !s.enabled {
		return nil
	}
	if entry.User == "" {
		entry.User = "system"
	}

	if err := s.store.InsertHistoryEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldComponent:  "history_service",
		LogFieldActionType: entry.ActionType,
		LogFieldUser:       entry.User,
	}).Debug("History entry recorded")

	return nil
}

func (s *historyService) List(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	filter.Limit = clampLimit(filter.Limit)
	filter.Offset = clampOffset(filter.Offset)

	entries, err := s.store.ListHistoryEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}
	return entries, nil
}

func (s *historyService) Stats(ctx context.Context) (*models.HistoryStats, error) {
	stats, err := s.store.GetHistoryStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history stats: %w", err)
	}
	return stats, nil
}

func (s *historyService) Enabled() bool {
	return s.enabled
}
