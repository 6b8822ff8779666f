package service

import (
	"context"
	"fmt"
	"sync"

	apperrors "unibox/internal/errors"
	"unibox/internal/models"

	"github.com/sirupsen/logrus"
)

// ChannelStore provides the channel rows the registry caches.
type ChannelStore interface {
	ListChannels(ctx context.Context) ([]models.Channel, error)
}

// ChannelRegistry caches the channel catalog in memory so that every
// ingest request does not hit the database for a lookup that almost
// never changes. Reload refreshes the cache after catalog updates.
type ChannelRegistry struct {
	mu      sync.RWMutex
	byName  map[string]models.Channel
	ordered []models.Channel
	store   ChannelStore
	logger  *logrus.Logger
}

// NewChannelRegistry creates an empty registry. Call Load before first use.
func NewChannelRegistry(store ChannelStore, logger *logrus.Logger) *ChannelRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChannelRegistry{
		byName: make(map[string]models.Channel),
		store:  store,
		logger: logger,
	}
}

// Load fetches the channel catalog from the store and replaces the cache.
func (r *ChannelRegistry) Load(ctx context.Context) error {
	channels, err := r.store.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("failed to load channel catalog: %w", err)
	}

	byName := make(map[string]models.Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name] = ch
	}

	r.mu.Lock()
	r.byName = byName
	r.ordered = channels
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		LogFieldComponent: "channel_registry",
		LogFieldCount:     len(channels),
	}).Debug("Channel catalog loaded")

	return nil
}

// Reload refreshes the cache, for use after catalog changes.
func (r *ChannelRegistry) Reload(ctx context.Context) error {
	return r.Load(ctx)
}

// Resolve returns the channel with the given name or an unknown-channel
// error. The returned struct is a copy; mutating it does not affect the
// cache.
func (r *ChannelRegistry) Resolve(name string) (*models.Channel, error) {
	r.mu.RLock()
	ch, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return nil, apperrors.NewUnknownChannelError(name)
	}
	return &ch, nil
}

// List returns all cached channels in catalog order.
func (r *ChannelRegistry) List() []models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Channel, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ListActive returns only channels currently accepting new conversations.
func (r *ChannelRegistry) ListActive() []models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Channel, 0, len(r.ordered))
	for _, ch := range r.ordered {
		if ch.IsActive {
			out = append(out, ch)
		}
	}
	return out
}

// NameByID returns the channel slug for an id, or "" when the id is not
// in the cache.
func (r *ChannelRegistry) NameByID(id int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ch := range r.ordered {
		if ch.ID == id {
			return ch.Name
		}
	}
	return ""
}

// Len reports the number of cached channels.
func (r *ChannelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
