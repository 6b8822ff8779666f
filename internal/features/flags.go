// Package features holds the runtime switches for the server's optional
// subsystems. Everything optional asks here before starting: the event
// stream, analytics endpoints, history recording, rate limiting, ingest
// authentication, detailed request logging, and tracing. Defaults are wired
// for production; environment variables flip individual switches without a
// config edit.
package features

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Names of every switch the server consults.
const (
	FlagEventStream        = "event_stream"
	FlagEnhancedLogging    = "enhanced_logging"
	FlagDistributedTracing = "distributed_tracing"
	FlagHistoryRecording   = "history_recording"
	FlagRateLimiting       = "rate_limiting"
	FlagIngestAuth         = "ingest_auth"
	FlagDashboardAnalytics = "dashboard_analytics"
	FlagWeeklyReports      = "weekly_reports"
)

// Flag is the state of one switch.
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var defaults = []Flag{
	{Name: FlagEventStream, Enabled: true, Description: "WebSocket event stream for operator frontends"},
	{Name: FlagEnhancedLogging, Enabled: true, Description: "Detailed request and response logging"},
	{Name: FlagDistributedTracing, Enabled: true, Description: "OpenTelemetry tracing"},
	{Name: FlagHistoryRecording, Enabled: true, Description: "Audit trail of operator and adapter actions"},
	{Name: FlagRateLimiting, Enabled: true, Description: "Per-client rate limiting on the API prefix"},
	{Name: FlagIngestAuth, Enabled: true, Description: "HMAC verification on the unified ingest endpoint"},
	{Name: FlagDashboardAnalytics, Enabled: true, Description: "Dashboard metrics endpoint"},
	{Name: FlagWeeklyReports, Enabled: true, Description: "Weekly comparison report endpoint"},
}

// ErrUnknownFlag reports an attempt to toggle a switch that does not exist.
type ErrUnknownFlag struct {
	Name string
}

func (e ErrUnknownFlag) Error() string {
	return "unknown feature flag: " + e.Name
}

// Manager answers IsEnabled for the optional subsystems. Toggles are safe
// under concurrent readers.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewManager returns a manager carrying the production defaults.
func NewManager() *Manager {
	m := &Manager{}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.flags = make(map[string]*Flag, len(defaults))
	for _, def := range defaults {
		flag := def
		flag.UpdatedAt = now
		m.flags[flag.Name] = &flag
	}
}

// IsEnabled reports whether a switch is on. Unknown names are off.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, ok := m.flags[name]
	return ok && flag.Enabled
}

func (m *Manager) Enable(name string) error {
	return m.set(name, true)
}

func (m *Manager) Disable(name string) error {
	return m.set(name, false)
}

func (m *Manager) set(name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, ok := m.flags[name]
	if !ok {
		return ErrUnknownFlag{Name: name}
	}
	flag.Enabled = enabled
	flag.UpdatedAt = time.Now()
	return nil
}

func (m *Manager) setAll(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, flag := range m.flags {
		flag.Enabled = enabled
		flag.UpdatedAt = now
	}
}

// Snapshot returns a copy of every switch, sorted by name.
func (m *Manager) Snapshot() []Flag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flags := make([]Flag, 0, len(m.flags))
	for _, flag := range m.flags {
		flags = append(flags, *flag)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	return flags
}

// LoadFromEnvironment applies operator overrides. UNIBOX_FEATURE_<NAME>
// flips one switch; UNIBOX_FEATURES_ENABLE_ALL and UNIBOX_FEATURES_DISABLE_ALL
// flip everything at once and win over individual settings. Unknown names
// and unparseable values are ignored.
func (m *Manager) LoadFromEnvironment() {
	if on, ok := boolEnv("UNIBOX_FEATURES_ENABLE_ALL"); ok && on {
		m.setAll(true)
		return
	}
	if off, ok := boolEnv("UNIBOX_FEATURES_DISABLE_ALL"); ok && off {
		m.setAll(false)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, flag := range m.flags {
		enabled, ok := boolEnv("UNIBOX_FEATURE_" + strings.ToUpper(name))
		if !ok {
			continue
		}
		flag.Enabled = enabled
		flag.UpdatedAt = time.Now()
	}
}

func boolEnv(key string) (value, ok bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return parsed, true
}

var global = NewManager()

// Initialize resets the process-wide manager to the defaults.
func Initialize() {
	global.reset()
}

// IsEnabled consults the process-wide manager.
func IsEnabled(name string) bool {
	return global.IsEnabled(name)
}

func Enable(name string) error {
	return global.Enable(name)
}

func Disable(name string) error {
	return global.Disable(name)
}

// GetGlobalManager exposes the process-wide manager for startup wiring.
func GetGlobalManager() *Manager {
	return global
}
