package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordModuleLoad("streaming", "started", time.Millisecond)
		m.RecordModuleBytes(10)
		m.IncCrawlerSkips()
		m.RecordWorkerRegistration("registered")
		m.IncUpdateNotifications()
		m.RecordInstallPrompt("accepted")
		m.RecordInstallabilityEvent("beforeinstallprompt", true)
		m.RecordDOMGuardRevert(2)
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
		NewTimer(m, "buffered").Stop("failed")
	})
	assert.Nil(t, m.Registry())
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestModuleLoadOutcomes(t *testing.T) {
	m := NewMetrics()

	m.RecordModuleLoad("streaming", "started", time.Millisecond)
	m.RecordModuleLoad("buffered", "failed", time.Millisecond)
	m.RecordModuleLoad("buffered", "failed", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModuleLoads.WithLabelValues("streaming", "started")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ModuleLoads.WithLabelValues("buffered", "failed")))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ModulesStarted)
	assert.Equal(t, int64(2), snap.ModuleFailures)
}

func TestInstallabilityGauge(t *testing.T) {
	m := NewMetrics()

	m.RecordInstallabilityEvent("beforeinstallprompt", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstallAvailability))

	m.RecordInstallabilityEvent("appinstalled", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InstallAvailability))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstallabilityEvents.WithLabelValues("appinstalled")))
}

func TestSnapshotCounters(t *testing.T) {
	m := NewMetrics()

	m.IncCrawlerSkips()
	m.IncUpdateNotifications()
	m.RecordInstallPrompt("dismissed")
	m.RecordDOMGuardRevert(3)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.CrawlerSkips)
	assert.Equal(t, int64(1), snap.UpdateNotifications)
	assert.Equal(t, int64(1), snap.InstallPrompts)
	assert.Equal(t, int64(3), snap.RevertedNodes)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.IncCrawlerSkips()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.CrawlerSkips))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CrawlerSkips))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/app.wasm", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/app.wasm", "/missing"} {
		w := httptest.NewRecorder()
		req, err := http.NewRequest(http.MethodGet, path, nil)
		require.NoError(t, err)
		r.ServeHTTP(w, req)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/app.wasm", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "static", "404")))
}

func TestRunUptimeStops(t *testing.T) {
	m := NewMetrics()
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		m.RunUptime(stop)
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunUptime did not return after stop")
	}
}
