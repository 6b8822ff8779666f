// Package metrics is an in-memory metrics registry served by the
// operational metrics endpoint. Counters, gauges, and timers are keyed by
// name plus label set; timers keep a bounded sample window for
// percentiles.
package metrics

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// MetricType distinguishes the metric families in a snapshot.
type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

const (
	// maxTimerSamples bounds the per-timer window used for percentiles.
	maxTimerSamples = 1000
	// percentileFloor is the minimum sample count before percentiles are
	// reported at all.
	percentileFloor = 10
)

// Metric is one counter or gauge cell: its identity, current value, and
// when it last moved.
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Count       int64             `json:"count,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerMetric aggregates duration observations in milliseconds.
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
	P95     float64 `json:"p95_ms,omitempty"`
	P99     float64 `json:"p99_ms,omitempty"`
	samples []float64
}

// observe folds one measurement into the timer's aggregates.
func (t *TimerMetric) observe(ms float64) {
	t.Count++
	t.Sum += ms
	t.Average = t.Sum / float64(t.Count)

	if t.Count == 1 || ms < t.Min {
		t.Min = ms
	}
	if ms > t.Max {
		t.Max = ms
	}

	t.samples = append(t.samples, ms)
	if len(t.samples) > maxTimerSamples {
		t.samples = t.samples[len(t.samples)-maxTimerSamples:]
	}
	if len(t.samples) >= percentileFloor {
		t.P95 = quantile(t.samples, 0.95)
		t.P99 = quantile(t.samples, 0.99)
	}
}

// Snapshot is a point-in-time view of every registered metric, shaped
// for the operational metrics endpoint. The snapshot owns its values;
// updates recorded after it is taken do not show through.
type Snapshot struct {
	Counters  map[string]*Metric      `json:"counters"`
	Timers    map[string]*TimerMetric `json:"timers"`
	Gauges    map[string]*Metric      `json:"gauges"`
	UptimeMs  int64                   `json:"uptime_ms"`
	Timestamp int64                   `json:"timestamp"`
}

// Registry is the process-wide metric store. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	timers    map[string]*TimerMetric
	gauges    map[string]*Metric
	startTime time.Time
}

func NewRegistry() *Registry {
	r := &Registry{startTime: time.Now()}
	r.Reset()
	return r
}

var globalRegistry = NewRegistry()

// GetRegistry exposes the process-wide registry, mostly so tests can
// reset it between cases.
func GetRegistry() *Registry {
	return globalRegistry
}

func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	c, ok := r.counters[key]
	if !ok {
		c = &Metric{Name: name, Type: Counter, Labels: maps.Clone(labels), Description: description}
		r.counters[key] = c
	}
	c.Value += value
	c.LastUpdate = time.Now()
}

func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	tm, ok := r.timers[key]
	if !ok {
		tm = &TimerMetric{}
		r.timers[key] = tm
	}
	tm.observe(float64(duration.Nanoseconds()) / 1e6)
}

// SetGauge overwrites the gauge; gauges carry no history.
func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[metricKey(name, labels)] = &Metric{
		Name:        name,
		Type:        Gauge,
		Value:       value,
		Labels:      maps.Clone(labels),
		Description: description,
		LastUpdate:  time.Now(),
	}
}

// GetAllMetrics copies every cell into a detached Snapshot.
func (r *Registry) GetAllMetrics() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := Snapshot{
		Counters:  make(map[string]*Metric, len(r.counters)),
		Timers:    make(map[string]*TimerMetric, len(r.timers)),
		Gauges:    make(map[string]*Metric, len(r.gauges)),
		UptimeMs:  time.Since(r.startTime).Milliseconds(),
		Timestamp: time.Now().Unix(),
	}

	for key, counter := range r.counters {
		c := *counter
		snapshot.Counters[key] = &c
	}
	for key, timer := range r.timers {
		t := *timer
		t.samples = nil
		snapshot.Timers[key] = &t
	}
	for key, gauge := range r.gauges {
		g := *gauge
		snapshot.Gauges[key] = &g
	}

	return snapshot
}

// Reset discards all recorded metrics but keeps the registry start time.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters = make(map[string]*Metric)
	r.timers = make(map[string]*TimerMetric)
	r.gauges = make(map[string]*Metric)
}

// metricKey builds the registry key for a metric. Label keys are sorted so
// the same label set always yields the same key.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	var b strings.Builder
	b.WriteString(name)
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString("_")
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(labels[k])
	}
	return b.String()
}

// quantile returns the nearest-rank q quantile of samples.
func quantile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	i := int(q * float64(len(sorted)))
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// Package-level helpers that record into the process-wide registry.

func IncrementCounter(name string, labels map[string]string, description string) {
	globalRegistry.IncrementCounter(name, labels, description)
}

func AddToCounter(name string, value float64, labels map[string]string, description string) {
	globalRegistry.AddToCounter(name, value, labels, description)
}

func RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	globalRegistry.RecordTimer(name, duration, labels, description)
}

func SetGauge(name string, value float64, labels map[string]string, description string) {
	globalRegistry.SetGauge(name, value, labels, description)
}

func GetAllMetrics() Snapshot {
	return globalRegistry.GetAllMetrics()
}
