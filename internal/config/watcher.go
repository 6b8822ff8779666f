package config

import (
	"context"
	"os"
	"sync"
	"time"

	"unibox/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	// pollInterval is how often the configuration file is checked for a
	// newer modification time.
	pollInterval = 5 * time.Second
	// writeSettleDelay gives whoever modified the file a moment to finish
	// writing before we read it back.
	writeSettleDelay = 100 * time.Millisecond
)

// ConfigWatcher reloads the configuration when the file on disk changes and
// fans the new configuration out to registered subscribers.
type ConfigWatcher struct {
	configPath string
	logger     *logrus.Logger

	mu        sync.RWMutex
	config    *models.Config
	callbacks []func(*models.Config)
}

// NewConfigWatcher builds a watcher for the given path. Nothing is loaded
// until Start runs.
func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the configuration, then polls the file's modification time
// until ctx is cancelled. Polling keeps the watcher working on filesystems
// where inotify does not, bind mounts in containers among them.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cfg, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = cfg
	cw.mu.Unlock()

	stat, err := os.Stat(cw.configPath)
	if err != nil {
		return err
	}
	lastMod := stat.ModTime()

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil
		case <-ticker.C:
			lastMod = cw.poll(lastMod)
		}
	}
}

// poll reloads when the file is newer than lastMod and returns the
// modification time to compare against next tick.
func (cw *ConfigWatcher) poll(lastMod time.Time) time.Time {
	stat, err := os.Stat(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to stat configuration file")
		return lastMod
	}
	if !stat.ModTime().After(lastMod) {
		return lastMod
	}

	cw.logger.Debug("Configuration file changed")
	time.Sleep(writeSettleDelay)
	cw.reload()
	return stat.ModTime()
}

// GetConfig returns the most recently loaded configuration, or nil before
// Start has run.
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback invoked with each successfully
// reloaded configuration. Callbacks run on their own goroutines.
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// reload swaps in the configuration from disk. A file that fails to load
// leaves the current configuration in place.
func (cw *ConfigWatcher) reload() {
	next, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	cw.mu.Lock()
	prev := cw.config
	cw.config = next
	subscribers := make([]func(*models.Config), len(cw.callbacks))
	copy(subscribers, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded")

	for _, cb := range subscribers {
		go cw.invoke(cb, next)
	}

	cw.logChanges(prev, next)
}

// invoke shields the watcher from subscriber panics.
func (cw *ConfigWatcher) invoke(cb func(*models.Config), cfg *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	cb(cfg)
}

// logChanges reports the settings operators most often tune, so a reload's
// effect is visible in the log without diffing files.
func (cw *ConfigWatcher) logChanges(prev, next *models.Config) {
	if prev == nil {
		return
	}

	changes := []struct {
		msg      string
		from, to interface{}
	}{
		{"Retention days changed", prev.RetentionDays, next.RetentionDays},
		{"Cleanup interval changed", prev.History.CleanupIntervalSec, next.History.CleanupIntervalSec},
		{"Rate limit changed", prev.RateLimit.RequestsPerMinute, next.RateLimit.RequestsPerMinute},
		{"Log level changed", prev.LogLevel, next.LogLevel},
	}

	for _, c := range changes {
		if c.from != c.to {
			cw.logger.WithFields(logrus.Fields{"old": c.from, "new": c.to}).Info(c.msg)
		}
	}
}
