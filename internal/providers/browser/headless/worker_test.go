package headless

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webboot/internal/providers/http/client"
)

type scriptServer struct {
	*httptest.Server
	body   atomic.Value
	status atomic.Int32
}

func newScriptServer(t *testing.T) *scriptServer {
	t.Helper()
	s := &scriptServer{}
	s.body.Store("// v1")
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		w.WriteHeader(int(s.status.Load()))
		_, _ = w.Write([]byte(s.body.Load().(string)))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestWorkers(t *testing.T, base string, opts WorkerOptions) (*ServiceWorkers, *Loop) {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)
	loop := NewLoop(nil)
	sw := NewServiceWorkers(loop, NewFetcher(client.NewClient(client.Options{}), u, nil), opts, nil)
	t.Cleanup(func() {
		_ = sw.Close()
		loop.Close()
	})
	return sw, loop
}

// foundRecorder mimics a listener attached right after Register returns.
type foundRecorder struct {
	mu      sync.Mutex
	workers []host.Worker
}

func (f *foundRecorder) attach(reg host.Registration) {
	reg.OnUpdateFound(func() {
		w, ok := reg.Installing()
		if !ok {
			return
		}
		f.mu.Lock()
		f.workers = append(f.workers, w)
		f.mu.Unlock()
	})
}

func (f *foundRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.workers)
}

func (f *foundRecorder) last() host.Worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workers[len(f.workers)-1]
}

func waitState(t *testing.T, w host.Worker, state host.WorkerState) {
	t.Helper()
	require.Eventually(t, func() bool { return w.State() == state },
		2*time.Second, 5*time.Millisecond, "worker never reached %s", state)
}

func TestRegisterFirstInstallActivates(t *testing.T) {
	srv := newScriptServer(t)
	sw, loop := newTestWorkers(t, srv.URL+"/index.html", WorkerOptions{})

	reg, err := sw.Register(context.Background(), "/app-worker.js")
	require.NoError(t, err)
	found := &foundRecorder{}
	found.attach(reg)

	assert.Equal(t, srv.URL+"/", reg.Scope())
	require.Eventually(t, func() bool { return found.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	w := found.last()
	assert.Equal(t, srv.URL+"/app-worker.js", w.ScriptURL())
	waitState(t, w, host.WorkerActivated)
	require.NoError(t, loop.Settle(context.Background()))

	active, ok := reg.(*Registration).Active()
	require.True(t, ok)
	assert.Same(t, w, host.Worker(active))

	// Activation does not claim the page.
	_, controlled := sw.Controller()
	assert.False(t, controlled)
}

func TestRegisterControlledPageWaits(t *testing.T) {
	srv := newScriptServer(t)
	sw, loop := newTestWorkers(t, srv.URL+"/", WorkerOptions{})
	sw.SeedController("/app-worker.js")

	reg, err := sw.Register(context.Background(), "app-worker.js")
	require.NoError(t, err)
	found := &foundRecorder{}
	found.attach(reg)

	require.Eventually(t, func() bool { return found.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	w := found.last()

	var states []host.WorkerState
	var mu sync.Mutex
	w.OnStateChange(func(s host.WorkerState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	waitState(t, w, host.WorkerInstalled)
	require.NoError(t, loop.Settle(context.Background()))
	assert.Equal(t, host.WorkerInstalled, w.State())

	r := reg.(*Registration)
	waiting, ok := r.Waiting()
	require.True(t, ok)
	assert.Same(t, w, host.Worker(waiting))

	require.NoError(t, r.SkipWaiting())
	waitState(t, w, host.WorkerActivated)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, host.WorkerActivating)
}

func TestRegisterUnchangedReturnsSameRegistration(t *testing.T) {
	srv := newScriptServer(t)
	sw, _ := newTestWorkers(t, srv.URL+"/", WorkerOptions{})

	first, err := sw.Register(context.Background(), "app-worker.js")
	require.NoError(t, err)
	found := &foundRecorder{}
	found.attach(first)
	require.Eventually(t, func() bool { return found.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	second, err := sw.Register(context.Background(), "app-worker.js")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, sw.Registrations(), 1)

	time.Sleep(2 * HandlerGrace)
	assert.Equal(t, 1, found.count())
}

func TestRegisterFetchFailure(t *testing.T) {
	srv := newScriptServer(t)
	srv.status.Store(http.StatusNotFound)
	sw, _ := newTestWorkers(t, srv.URL+"/", WorkerOptions{})

	_, err := sw.Register(context.Background(), "app-worker.js")
	assert.ErrorContains(t, err, "bad HTTP response code (404)")
	assert.Empty(t, sw.Registrations())
}

func TestInstallProceedsWithoutHandler(t *testing.T) {
	srv := newScriptServer(t)
	sw, _ := newTestWorkers(t, srv.URL+"/", WorkerOptions{})

	reg, err := sw.Register(context.Background(), "app-worker.js")
	require.NoError(t, err)

	r := reg.(*Registration)
	require.Eventually(t, func() bool {
		w, ok := r.Active()
		return ok && w.State() == host.WorkerActivated
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCheckForUpdateInstallsChangedScript(t *testing.T) {
	srv := newScriptServer(t)
	metrics := monitoring.NewMetrics()
	sw, _ := newTestWorkers(t, srv.URL+"/", WorkerOptions{Metrics: metrics})
	sw.SeedController("app-worker.js")

	reg, err := sw.Register(context.Background(), "app-worker.js")
	require.NoError(t, err)
	found := &foundRecorder{}
	found.attach(reg)
	require.Eventually(t, func() bool { return found.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	first := found.last()
	waitState(t, first, host.WorkerInstalled)

	r := reg.(*Registration)
	changed, err := sw.CheckForUpdate(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, changed)

	srv.body.Store("// v2")
	changed, err = sw.CheckForUpdate(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, changed)

	require.Eventually(t, func() bool { return found.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	second := found.last()
	waitState(t, second, host.WorkerInstalled)
	// The older waiting worker is replaced.
	waitState(t, first, host.WorkerRedundant)
}

func TestCheckForUpdateOpensBreaker(t *testing.T) {
	srv := newScriptServer(t)
	sw, _ := newTestWorkers(t, srv.URL+"/", WorkerOptions{})

	reg, err := sw.Register(context.Background(), "app-worker.js")
	require.NoError(t, err)
	r := reg.(*Registration)

	srv.status.Store(http.StatusInternalServerError)
	for i := 0; i < 5; i++ {
		_, err := sw.CheckForUpdate(context.Background(), r)
		assert.Error(t, err)
	}
	_, err = sw.CheckForUpdate(context.Background(), r)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestPollingDetectsUpdates(t *testing.T) {
	srv := newScriptServer(t)
	sw, _ := newTestWorkers(t, srv.URL+"/", WorkerOptions{PollInterval: 20 * time.Millisecond})
	sw.SeedController("app-worker.js")

	reg, err := sw.Register(context.Background(), "app-worker.js")
	require.NoError(t, err)
	found := &foundRecorder{}
	found.attach(reg)
	require.Eventually(t, func() bool { return found.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	srv.body.Store("// v2")
	require.Eventually(t, func() bool { return found.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatchDetectsFileChanges(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "app-worker.js")
	require.NoError(t, os.WriteFile(script, []byte("// v1"), 0o644))

	base, err := FileURL(dir)
	require.NoError(t, err)
	sw, _ := newTestWorkers(t, base.String(), WorkerOptions{Watch: true})
	sw.SeedController("app-worker.js")

	reg, err := sw.Register(context.Background(), "app-worker.js")
	require.NoError(t, err)
	found := &foundRecorder{}
	found.attach(reg)
	require.Eventually(t, func() bool { return found.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	// A truncating write can surface as more than one change.
	require.NoError(t, os.WriteFile(script, []byte("// v2"), 0o644))
	require.Eventually(t, func() bool { return found.count() >= 2 }, 5*time.Second, 10*time.Millisecond)
}
