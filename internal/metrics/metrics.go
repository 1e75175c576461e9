package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Gauge   MetricType = "gauge"
	Timer   MetricType = "timer"
)

// Metric represents a single metric with its metadata
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerMetric stores timing information
type TimerMetric struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
}

// Registry manages all metrics in memory
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	gauges    map[string]*Metric
	timers    map[string]*TimerMetric
	startTime time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		gauges:    make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		startTime: time.Now(),
	}
}

// Global registry instance
var globalRegistry = NewRegistry()

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}

// IncrementCounter increments a counter metric
func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

// AddToCounter adds a value to a counter metric
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if counter, exists := r.counters[key]; exists {
		counter.Value += value
		counter.LastUpdate = time.Now()
		return
	}
	r.counters[key] = &Metric{
		Name:        name,
		Type:        Counter,
		Value:       value,
		Labels:      copyLabels(labels),
		Description: description,
		LastUpdate:  time.Now(),
	}
}

// SetGauge sets a gauge metric to a value
func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if gauge, exists := r.gauges[key]; exists {
		gauge.Value = value
		gauge.LastUpdate = time.Now()
		return
	}
	r.gauges[key] = &Metric{
		Name:        name,
		Type:        Gauge,
		Value:       value,
		Labels:      copyLabels(labels),
		Description: description,
		LastUpdate:  time.Now(),
	}
}

// RecordTimer records a timing measurement
func (r *Registry) RecordTimer(name string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := float64(duration.Milliseconds())
	timer, exists := r.timers[name]
	if !exists {
		r.timers[name] = &TimerMetric{
			Name:    name,
			Count:   1,
			Sum:     ms,
			Min:     ms,
			Max:     ms,
			Average: ms,
		}
		return
	}

	timer.Count++
	timer.Sum += ms
	if ms < timer.Min {
		timer.Min = ms
	}
	if ms > timer.Max {
		timer.Max = ms
	}
	timer.Average = timer.Sum / float64(timer.Count)
}

// Snapshot holds a point-in-time view of all metrics for the /metrics surface.
type Snapshot struct {
	UptimeSeconds float64       `json:"uptime_seconds"`
	Counters      []Metric      `json:"counters"`
	Gauges        []Metric      `json:"gauges"`
	Timers        []TimerMetric `json:"timers"`
}

// GetSnapshot returns a copy of all current metrics, sorted by name.
func (r *Registry) GetSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := Snapshot{
		UptimeSeconds: time.Since(r.startTime).Seconds(),
	}
	for _, m := range r.counters {
		snapshot.Counters = append(snapshot.Counters, *m)
	}
	for _, m := range r.gauges {
		snapshot.Gauges = append(snapshot.Gauges, *m)
	}
	for _, t := range r.timers {
		snapshot.Timers = append(snapshot.Timers, *t)
	}

	sort.Slice(snapshot.Counters, func(i, j int) bool { return snapshot.Counters[i].Name < snapshot.Counters[j].Name })
	sort.Slice(snapshot.Gauges, func(i, j int) bool { return snapshot.Gauges[i].Name < snapshot.Gauges[j].Name })
	sort.Slice(snapshot.Timers, func(i, j int) bool { return snapshot.Timers[i].Name < snapshot.Timers[j].Name })

	return snapshot
}

// Package-level helpers against the global registry

func IncrementCounter(name string, labels map[string]string, description string) {
	globalRegistry.IncrementCounter(name, labels, description)
}

func SetGauge(name string, value float64, labels map[string]string, description string) {
	globalRegistry.SetGauge(name, value, labels, description)
}

func RecordTimer(name string, duration time.Duration) {
	globalRegistry.RecordTimer(name, duration)
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
