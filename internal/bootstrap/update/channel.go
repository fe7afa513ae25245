// Package update registers the application service worker and announces
// genuine updates (a new worker installed while an older one controls the
// page).
package update

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webboot/internal/shared/id"
)

// Channel owns the single update-available callback slot.
type Channel struct {
	nav     host.Navigator
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	onUpdate func()
}

// New creates an update channel over nav.
func New(nav host.Navigator, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		nav:      nav,
		logger:   logger.Named("update"),
		onUpdate: func() {},
	}
}

// WithMetrics attaches metrics.
func (c *Channel) WithMetrics(m *monitoring.Metrics) *Channel {
	c.metrics = m
	return c
}

// SetOnUpdateAvailable replaces the update callback. nil restores the no-op.
func (c *Channel) SetOnUpdateAvailable(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// Register registers the worker script at workerURL and starts watching for
// updates. Failures are logged here; the returned error is informational and
// callers are not expected to act on it. host.ErrUnsupported means the host
// has no worker registration and the channel stays silent.
func (c *Channel) Register(ctx context.Context, workerURL string) (*Registration, error) {
	container, ok := c.nav.ServiceWorker()
	if !ok {
		c.logger.Debug("service workers not supported, update channel disabled")
		c.metrics.RecordWorkerRegistration("unsupported")
		return nil, host.ErrUnsupported
	}

	reg, err := container.Register(ctx, workerURL)
	if err != nil {
		c.logger.Error("offline application service worker registration failed",
			zap.String("worker", workerURL),
			zap.Error(err),
		)
		c.metrics.RecordWorkerRegistration("failed")
		return nil, fmt.Errorf("failed to register service worker %q: %w", workerURL, err)
	}

	// Snapshot once; later controller changes must not turn a first install
	// into an "update".
	_, hadController := container.Controller()

	r := &Registration{
		id:            id.NewRegistrationID(),
		reg:           reg,
		hadController: hadController,
		channel:       c,
	}
	reg.OnUpdateFound(r.handleUpdateFound)

	c.logger.Info("registering application service worker",
		zap.String("registration", string(r.id)),
		zap.String("scope", reg.Scope()),
		zap.Bool("had_controller", hadController),
	)
	c.metrics.RecordWorkerRegistration("registered")
	return r, nil
}

func (c *Channel) notify(r *Registration, worker string) {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()

	c.logger.Info("application update available",
		zap.String("registration", string(r.id)),
		zap.String("worker", worker),
	)
	c.metrics.IncUpdateNotifications()
	fn()
}

// Registration is a live worker registration being watched for updates.
type Registration struct {
	id            id.RegistrationID
	reg           host.Registration
	hadController bool
	channel       *Channel

	mu       sync.Mutex
	trackers []*Tracker
}

// ID returns the registration's identifier.
func (r *Registration) ID() id.RegistrationID {
	return r.id
}

// Scope returns the registration scope.
func (r *Registration) Scope() string {
	return r.reg.Scope()
}

// HadController reports whether a controller was active at registration.
func (r *Registration) HadController() bool {
	return r.hadController
}

// Trackers returns the trackers of every installing worker seen so far.
func (r *Registration) Trackers() []*Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Tracker(nil), r.trackers...)
}

func (r *Registration) handleUpdateFound() {
	worker, ok := r.reg.Installing()
	if !ok {
		return
	}

	t := NewTracker(r.hadController)
	r.mu.Lock()
	r.trackers = append(r.trackers, t)
	r.mu.Unlock()

	r.channel.logger.Debug("update found",
		zap.String("registration", string(r.id)),
		zap.String("worker", worker.ScriptURL()),
	)

	worker.OnStateChange(func(state host.WorkerState) {
		r.apply(t, worker, state)
	})
	// The worker may have advanced before the handler was attached.
	r.apply(t, worker, worker.State())
}

func (r *Registration) apply(t *Tracker, worker host.Worker, state host.WorkerState) {
	r.mu.Lock()
	fire := t.Transition(state)
	r.mu.Unlock()

	if fire {
		r.channel.notify(r, worker.ScriptURL())
	}
}
