package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"unibox/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherFixture = `{
	"database": {"path": "/var/lib/unibox/unibox.db"},
	"server": {"webhook_secret": "watcher-secret"},
	"log_level": "info",
	"retentionDays": 30
}`

// syncWriter collects log output written from callback goroutines.
type syncWriter struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func watcherLogger() (*logrus.Logger, *syncWriter) {
	out := &syncWriter{}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.DebugLevel)
	return logger, out
}

func TestNewConfigWatcher(t *testing.T) {
	logger, _ := watcherLogger()
	cw := NewConfigWatcher("/etc/unibox/config.json", logger)

	assert.Equal(t, "/etc/unibox/config.json", cw.configPath)
	assert.Equal(t, logger, cw.logger)
	assert.Nil(t, cw.GetConfig())
	assert.NotNil(t, cw.callbacks)
	assert.Empty(t, cw.callbacks)
}

func TestConfigWatcher_StartRejectsMissingFile(t *testing.T) {
	restore := clearConfigEnv(t)
	defer restore()

	logger, _ := watcherLogger()
	cw := NewConfigWatcher(filepath.Join(t.TempDir(), "missing.json"), logger)

	err := cw.Start(context.Background())
	require.Error(t, err)
	assert.Nil(t, cw.GetConfig())
}

func TestConfigWatcher_StartLoadsAndStops(t *testing.T) {
	restore := clearConfigEnv(t)
	defer restore()

	path := writeConfigFile(t, t.TempDir(), "config.json", watcherFixture)
	logger, logs := watcherLogger()
	cw := NewConfigWatcher(path, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- cw.Start(ctx) }()

	require.Eventually(t, func() bool { return cw.GetConfig() != nil }, time.Second, 10*time.Millisecond)
	cfg := cw.GetConfig()
	assert.Equal(t, "/var/lib/unibox/unibox.db", cfg.Database.Path)
	assert.Equal(t, 30, cfg.RetentionDays)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}

	assert.Contains(t, logs.String(), "Configuration watcher started")
	assert.Contains(t, logs.String(), "Configuration watcher stopping")
}

func TestConfigWatcher_OnConfigChange(t *testing.T) {
	logger, _ := watcherLogger()
	cw := NewConfigWatcher("/etc/unibox/config.json", logger)

	cw.OnConfigChange(func(*models.Config) {})
	cw.OnConfigChange(func(*models.Config) {})

	assert.Len(t, cw.callbacks, 2)
}

func TestConfigWatcher_ReloadAppliesChanges(t *testing.T) {
	restore := clearConfigEnv(t)
	defer restore()

	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.json", watcherFixture)
	logger, logs := watcherLogger()
	cw := NewConfigWatcher(path, logger)
	cw.reload()
	require.NotNil(t, cw.GetConfig())

	got := make(chan *models.Config, 1)
	cw.OnConfigChange(func(cfg *models.Config) { got <- cfg })

	writeConfigFile(t, dir, "config.json", strings.Replace(watcherFixture, `"retentionDays": 30`, `"retentionDays": 60`, 1))
	cw.reload()

	select {
	case cfg := <-got:
		assert.Equal(t, 60, cfg.RetentionDays)
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
	assert.Equal(t, 60, cw.GetConfig().RetentionDays)
	assert.Contains(t, logs.String(), "Configuration reloaded")
	assert.Contains(t, logs.String(), "Retention days changed")
}

func TestConfigWatcher_ReloadKeepsConfigOnError(t *testing.T) {
	restore := clearConfigEnv(t)
	defer restore()

	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.json", watcherFixture)
	logger, logs := watcherLogger()
	cw := NewConfigWatcher(path, logger)
	cw.reload()
	require.NotNil(t, cw.GetConfig())

	invoked := false
	cw.OnConfigChange(func(*models.Config) { invoked = true })

	writeConfigFile(t, dir, "config.json", "{not valid json")
	cw.reload()

	assert.Equal(t, 30, cw.GetConfig().RetentionDays)
	assert.False(t, invoked)
	assert.Contains(t, logs.String(), "Failed to reload configuration")
}

func TestConfigWatcher_CallbackPanicIsContained(t *testing.T) {
	restore := clearConfigEnv(t)
	defer restore()

	path := writeConfigFile(t, t.TempDir(), "config.json", watcherFixture)
	logger, logs := watcherLogger()
	cw := NewConfigWatcher(path, logger)

	survived := make(chan *models.Config, 1)
	cw.OnConfigChange(func(*models.Config) { panic("subscriber bug") })
	cw.OnConfigChange(func(cfg *models.Config) { survived <- cfg })

	cw.reload()

	select {
	case cfg := <-survived:
		assert.NotNil(t, cfg)
	case <-time.After(time.Second):
		t.Fatal("second callback was not invoked")
	}
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Config change callback panicked")
	}, time.Second, 10*time.Millisecond)
}

func TestConfigWatcher_PollReloadsOnNewerFile(t *testing.T) {
	restore := clearConfigEnv(t)
	defer restore()

	path := writeConfigFile(t, t.TempDir(), "config.json", watcherFixture)
	logger, logs := watcherLogger()
	cw := NewConfigWatcher(path, logger)

	stat, err := os.Stat(path)
	require.NoError(t, err)

	next := cw.poll(time.Time{})
	assert.Equal(t, stat.ModTime(), next)
	require.NotNil(t, cw.GetConfig())
	assert.Contains(t, logs.String(), "Configuration file changed")

	// An unchanged file does not trigger another reload.
	assert.Equal(t, next, cw.poll(next))
	assert.Equal(t, 1, strings.Count(logs.String(), "Configuration reloaded"))
}

func TestConfigWatcher_PollSurvivesStatError(t *testing.T) {
	logger, logs := watcherLogger()
	cw := NewConfigWatcher(filepath.Join(t.TempDir(), "missing.json"), logger)

	last := time.Now()
	assert.Equal(t, last, cw.poll(last))
	assert.Contains(t, logs.String(), "Failed to stat configuration file")
}

func TestConfigWatcher_LogChanges(t *testing.T) {
	base := func() *models.Config {
		return &models.Config{
			LogLevel:      "info",
			RetentionDays: 30,
			History:       models.HistoryConfig{CleanupIntervalSec: 3600},
			RateLimit:     models.RateLimitConfig{RequestsPerMinute: 60},
		}
	}

	tests := []struct {
		name   string
		mutate func(*models.Config)
		want   string
	}{
		{"retention", func(c *models.Config) { c.RetentionDays = 90 }, "Retention days changed"},
		{"cleanup interval", func(c *models.Config) { c.History.CleanupIntervalSec = 7200 }, "Cleanup interval changed"},
		{"rate limit", func(c *models.Config) { c.RateLimit.RequestsPerMinute = 120 }, "Rate limit changed"},
		{"log level", func(c *models.Config) { c.LogLevel = "debug" }, "Log level changed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := watcherLogger()
			cw := NewConfigWatcher("/etc/unibox/config.json", logger)

			next := base()
			tt.mutate(next)
			cw.logChanges(base(), next)

			assert.Contains(t, logs.String(), tt.want)
		})
	}

	t.Run("identical configs log nothing", func(t *testing.T) {
		logger, logs := watcherLogger()
		cw := NewConfigWatcher("/etc/unibox/config.json", logger)
		cw.logChanges(base(), base())
		assert.Empty(t, logs.String())
	})

	t.Run("nil previous config logs nothing", func(t *testing.T) {
		logger, logs := watcherLogger()
		cw := NewConfigWatcher("/etc/unibox/config.json", logger)
		cw.logChanges(nil, base())
		assert.Empty(t, logs.String())
	})
}
