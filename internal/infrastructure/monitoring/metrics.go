package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without monitoring.
type Metrics struct {
	registry *prometheus.Registry

	// Module loader metrics
	ModuleLoads         *prometheus.CounterVec
	CrawlerSkips        prometheus.Counter
	ModuleBytes         prometheus.Histogram
	InstantiateDuration *prometheus.HistogramVec

	// Update channel metrics
	WorkerRegistrations *prometheus.CounterVec
	UpdateNotifications prometheus.Counter
	WorkerUpdateChecks  *prometheus.CounterVec

	// Install channel metrics
	InstallPrompts       *prometheus.CounterVec
	InstallAvailability  prometheus.Gauge
	InstallabilityEvents *prometheus.CounterVec

	// DOM guard metrics
	DOMGuardReverted prometheus.Counter

	// Dev server metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for reports.
type Snapshot struct {
	ModulesStarted      int64
	ModuleFailures      int64
	CrawlerSkips        int64
	UpdateNotifications int64
	InstallPrompts      int64
	RevertedNodes       int64
	ModuleBytes         int64
}

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ModuleLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webboot_module_loads_total",
				Help: "Module load attempts by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		CrawlerSkips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webboot_crawler_skips_total",
				Help: "Page loads where the module was skipped for a crawler user agent",
			},
		),
		ModuleBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webboot_module_bytes",
				Help:    "Size of fetched module binaries in bytes",
				Buckets: []float64{1e4, 1e5, 5e5, 1e6, 5e6, 1e7, 5e7},
			},
		),
		InstantiateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webboot_instantiate_duration_seconds",
				Help:    "Time from fetch start to instantiated module",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"strategy"},
		),

		WorkerRegistrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webboot_worker_registrations_total",
				Help: "Service worker registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		UpdateNotifications: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webboot_update_notifications_total",
				Help: "Update available notifications delivered",
			},
		),

		WorkerUpdateChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webboot_worker_update_checks_total",
				Help: "Headless worker script update checks by result",
			},
			[]string{"result"},
		),

		InstallPrompts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webboot_install_prompts_total",
				Help: "Install prompts shown by user choice",
			},
			[]string{"choice"},
		),
		InstallAvailability: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webboot_install_prompt_captured",
				Help: "1 while an install prompt handle is retained",
			},
		),
		InstallabilityEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webboot_installability_events_total",
				Help: "Platform install events received",
			},
			[]string{"event"},
		),

		DOMGuardReverted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webboot_domguard_reverted_nodes_total",
				Help: "Body children removed by the DOM guard",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webboot_http_requests_total",
				Help: "Total number of dev server HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webboot_http_request_duration_seconds",
				Help:    "Dev server request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webboot_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RunUptime updates the uptime gauge every second until stop is closed.
func (m *Metrics) RunUptime(stop <-chan struct{}) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-stop:
			return
		}
	}
}

// RecordModuleLoad records a module load outcome ("started", "failed").
func (m *Metrics) RecordModuleLoad(strategy, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ModuleLoads.WithLabelValues(strategy, outcome).Inc()
	m.InstantiateDuration.WithLabelValues(strategy).Observe(duration.Seconds())

	m.mu.Lock()
	if outcome == "started" {
		m.snapshot.ModulesStarted++
	} else {
		m.snapshot.ModuleFailures++
	}
	m.mu.Unlock()
}

// RecordModuleBytes records the size of a fetched module.
func (m *Metrics) RecordModuleBytes(n int) {
	if m == nil {
		return
	}
	m.ModuleBytes.Observe(float64(n))
	m.mu.Lock()
	m.snapshot.ModuleBytes += int64(n)
	m.mu.Unlock()
}

// IncCrawlerSkips records a crawler skip.
func (m *Metrics) IncCrawlerSkips() {
	if m == nil {
		return
	}
	m.CrawlerSkips.Inc()
	m.mu.Lock()
	m.snapshot.CrawlerSkips++
	m.mu.Unlock()
}

// RecordWorkerRegistration records a registration outcome.
func (m *Metrics) RecordWorkerRegistration(outcome string) {
	if m == nil {
		return
	}
	m.WorkerRegistrations.WithLabelValues(outcome).Inc()
}

// IncUpdateNotifications records a delivered update notification.
func (m *Metrics) IncUpdateNotifications() {
	if m == nil {
		return
	}
	m.UpdateNotifications.Inc()
	m.mu.Lock()
	m.snapshot.UpdateNotifications++
	m.mu.Unlock()
}

// RecordWorkerUpdateCheck records a worker script poll ("unchanged",
// "changed", "failed", "skipped").
func (m *Metrics) RecordWorkerUpdateCheck(result string) {
	if m == nil {
		return
	}
	m.WorkerUpdateChecks.WithLabelValues(result).Inc()
}

// RecordInstallPrompt records the user's answer to an install prompt.
func (m *Metrics) RecordInstallPrompt(choice string) {
	if m == nil {
		return
	}
	m.InstallPrompts.WithLabelValues(choice).Inc()
	m.mu.Lock()
	m.snapshot.InstallPrompts++
	m.mu.Unlock()
}

// RecordInstallabilityEvent records a platform install event and whether a
// prompt handle is retained afterwards.
func (m *Metrics) RecordInstallabilityEvent(event string, captured bool) {
	if m == nil {
		return
	}
	m.InstallabilityEvents.WithLabelValues(event).Inc()
	if captured {
		m.InstallAvailability.Set(1)
	} else {
		m.InstallAvailability.Set(0)
	}
}

// RecordDOMGuardRevert records removed body children.
func (m *Metrics) RecordDOMGuardRevert(n int) {
	if m == nil {
		return
	}
	m.DOMGuardReverted.Add(float64(n))
	m.mu.Lock()
	m.snapshot.RevertedNodes += int64(n)
	m.mu.Unlock()
}

// RecordHTTPRequest records a dev server request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
