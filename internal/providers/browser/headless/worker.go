package headless

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webboot/internal/shared/id"
	"github.com/GriffinCanCode/webboot/internal/shared/utils"
)

// HandlerGrace is how long an install job waits for an "updatefound"
// handler before continuing without one.
const HandlerGrace = 250 * time.Millisecond

// WorkerOptions configures a ServiceWorkers container.
type WorkerOptions struct {
	// PollInterval re-fetches registered scripts; zero disables polling.
	PollInterval time.Duration
	// Watch re-checks file: scripts as soon as they change on disk.
	Watch   bool
	Metrics *monitoring.Metrics
}

// ServiceWorkers implements host.ServiceWorkerContainer. Scripts are fetched
// and fingerprinted; a changed fingerprint installs a new worker.
type ServiceWorkers struct {
	loop    *Loop
	fetcher *Fetcher
	hasher  *utils.Hasher
	opts    WorkerOptions
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	registrations map[string]*Registration
	controller    *Worker
	watcher       *fsnotify.Watcher
	watched       map[string]*Registration
}

// NewServiceWorkers creates an empty container.
func NewServiceWorkers(loop *Loop, fetcher *Fetcher, opts WorkerOptions, logger *zap.Logger) *ServiceWorkers {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ServiceWorkers{
		loop:          loop,
		fetcher:       fetcher,
		hasher:        utils.DefaultHasher(),
		opts:          opts,
		logger:        logger.Named("serviceworker"),
		ctx:           ctx,
		cancel:        cancel,
		registrations: make(map[string]*Registration),
		watched:       make(map[string]*Registration),
	}
}

// SeedController marks the page as controlled by an already active worker
// from an earlier visit.
func (s *ServiceWorkers) SeedController(scriptURL string) {
	abs := scriptURL
	if u, err := s.fetcher.Resolve(scriptURL); err == nil {
		abs = u.String()
	}
	w := newWorker(s, abs)
	w.state = host.WorkerActivated

	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = w
}

// Controller implements host.ServiceWorkerContainer.
func (s *ServiceWorkers) Controller() (host.Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		return nil, false
	}
	return s.controller, true
}

func (s *ServiceWorkers) controlled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller != nil
}

// Register implements host.ServiceWorkerContainer. Registering an unchanged
// script again returns the existing registration.
func (s *ServiceWorkers) Register(ctx context.Context, scriptURL string) (host.Registration, error) {
	u, err := s.fetcher.Resolve(scriptURL)
	if err != nil {
		return nil, err
	}
	abs := u.String()
	scope := u.ResolveReference(&url.URL{Path: "./"}).String()

	hash, err := s.fetchScript(ctx, abs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	reg, exists := s.registrations[scope]
	if !exists {
		reg = &Registration{sw: s, scope: scope, scriptURL: abs}
		s.registrations[scope] = reg
	}
	s.mu.Unlock()

	if exists && !reg.changed(abs, hash) {
		s.logger.Debug("worker script unchanged", zap.String("script", abs))
		return reg, nil
	}
	reg.install(abs, hash)

	if !exists {
		s.watch(reg, u)
	}
	return reg, nil
}

// Registrations returns every registration, in no particular order.
func (s *ServiceWorkers) Registrations() []*Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Registration, 0, len(s.registrations))
	for _, r := range s.registrations {
		out = append(out, r)
	}
	return out
}

// CheckForUpdate re-fetches reg's script and installs a new worker when it
// changed. Checks go through the fetch circuit breaker.
func (s *ServiceWorkers) CheckForUpdate(ctx context.Context, reg *Registration) (bool, error) {
	script := reg.ScriptURL()
	changed := false

	err := s.fetcher.Poll(func() error {
		hash, err := s.fetchScript(ctx, script)
		if err != nil {
			return err
		}
		if reg.changed(script, hash) {
			reg.install(script, hash)
			changed = true
		}
		return nil
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		s.opts.Metrics.RecordWorkerUpdateCheck("skipped")
	case err != nil:
		s.opts.Metrics.RecordWorkerUpdateCheck("failed")
		s.logger.Warn("worker update check failed", zap.String("script", script), zap.Error(err))
	case changed:
		s.opts.Metrics.RecordWorkerUpdateCheck("changed")
		s.logger.Info("worker script changed", zap.String("script", script))
	default:
		s.opts.Metrics.RecordWorkerUpdateCheck("unchanged")
	}
	return changed, err
}

// Close stops polling and file watching.
func (s *ServiceWorkers) Close() error {
	s.cancel()
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	s.wg.Wait()
	return err
}

func (s *ServiceWorkers) fetchScript(ctx context.Context, scriptURL string) (string, error) {
	resp, err := s.fetcher.Fetch(ctx, scriptURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch worker script %s: %w", scriptURL, err)
	}
	defer resp.Body.Close()
	if !resp.OK() {
		return "", fmt.Errorf("bad HTTP response code (%d) received when fetching worker script %s", resp.Status, scriptURL)
	}
	return s.hasher.HashReader(resp.Body)
}

func (s *ServiceWorkers) watch(reg *Registration, u *url.URL) {
	if s.opts.PollInterval > 0 {
		s.wg.Add(1)
		go s.poll(reg)
	}
	if s.opts.Watch && u.Scheme == "file" {
		if err := s.watchFile(reg, filepath.FromSlash(u.Path)); err != nil {
			s.logger.Warn("cannot watch worker script", zap.String("script", u.String()), zap.Error(err))
		}
	}
}

func (s *ServiceWorkers) poll(reg *Registration) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.CheckForUpdate(s.ctx, reg)
		case <-s.ctx.Done():
			return
		}
	}
}

// watchFile watches the script's directory, since editors often replace
// files rather than write them in place.
func (s *ServiceWorkers) watchFile(reg *Registration, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		s.watcher = w
		s.wg.Add(1)
		go s.watchLoop(w)
	}
	if err := s.watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	s.watched[filepath.Clean(path)] = reg
	return nil
}

func (s *ServiceWorkers) watchLoop(w *fsnotify.Watcher) {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			s.mu.Lock()
			reg := s.watched[filepath.Clean(ev.Name)]
			s.mu.Unlock()
			if reg != nil {
				_, _ = s.CheckForUpdate(s.ctx, reg)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("worker script watcher error", zap.Error(err))
		case <-s.ctx.Done():
			return
		}
	}
}

// Registration implements host.Registration.
type Registration struct {
	sw    *ServiceWorkers
	scope string

	mu          sync.Mutex
	scriptURL   string
	hash        string
	installing  *Worker
	waiting     *Worker
	active      *Worker
	onFound     func()
	unannounced *Worker
}

// Scope implements host.Registration.
func (r *Registration) Scope() string {
	return r.scope
}

// ScriptURL returns the registered script URL.
func (r *Registration) ScriptURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scriptURL
}

// Installing implements host.Registration.
func (r *Registration) Installing() (host.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.installing == nil {
		return nil, false
	}
	return r.installing, true
}

// Waiting returns the installed worker waiting to activate, if any.
func (r *Registration) Waiting() (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting, r.waiting != nil
}

// Active returns the active worker, if any.
func (r *Registration) Active() (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != nil
}

// OnUpdateFound implements host.Registration. A worker whose install began
// before any handler was set is announced to the first handler.
func (r *Registration) OnUpdateFound(fn func()) {
	r.mu.Lock()
	r.onFound = fn
	pending := r.unannounced
	r.unannounced = nil
	r.mu.Unlock()

	if pending != nil && fn != nil {
		_ = r.sw.loop.Post(func() { r.startInstall(pending) })
	}
}

// SkipWaiting activates the waiting worker, as a reload of every controlled
// page would.
func (r *Registration) SkipWaiting() error {
	r.mu.Lock()
	w := r.waiting
	r.mu.Unlock()
	if w == nil {
		return errors.New("no waiting worker")
	}
	return r.sw.loop.Post(func() { r.activate(w) })
}

func (r *Registration) changed(scriptURL, hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scriptURL != scriptURL || r.hash != hash
}

// install queues a new installing worker, superseding any still installing.
func (r *Registration) install(scriptURL, hash string) {
	w := newWorker(r.sw, scriptURL)

	r.mu.Lock()
	r.scriptURL = scriptURL
	r.hash = hash
	superseded := r.installing
	r.installing = w
	r.mu.Unlock()

	r.sw.logger.Debug("worker installing",
		zap.String("worker", w.id.String()),
		zap.String("script", scriptURL),
		zap.String("hash", utils.Short(hash)),
	)
	_ = r.sw.loop.Post(func() {
		if superseded != nil {
			superseded.setState(host.WorkerRedundant)
		}
		r.startInstall(w)
	})
}

// startInstall fires "updatefound" and runs the lifecycle. Without a handler
// the install is held for HandlerGrace so a handler attached right after
// Register still sees the event.
func (r *Registration) startInstall(w *Worker) {
	r.mu.Lock()
	if r.installing != w {
		r.mu.Unlock()
		return
	}
	fn := r.onFound
	if fn == nil {
		r.unannounced = w
		r.mu.Unlock()
		time.AfterFunc(HandlerGrace, func() {
			_ = r.sw.loop.Post(func() { r.proceedUnannounced(w) })
		})
		return
	}
	r.mu.Unlock()

	fn()
	_ = r.sw.loop.Post(func() { r.installed(w) })
}

func (r *Registration) proceedUnannounced(w *Worker) {
	r.mu.Lock()
	if r.unannounced != w {
		r.mu.Unlock()
		return
	}
	r.unannounced = nil
	r.mu.Unlock()
	r.installed(w)
}

func (r *Registration) installed(w *Worker) {
	r.mu.Lock()
	if r.installing != w {
		r.mu.Unlock()
		return
	}
	r.installing = nil
	previous := r.waiting
	r.waiting = w
	r.mu.Unlock()

	if previous != nil {
		previous.setState(host.WorkerRedundant)
	}
	w.setState(host.WorkerInstalled)

	if r.sw.controlled() {
		r.sw.logger.Info("worker waiting for controlled pages to close", zap.String("worker", w.id.String()))
		return
	}
	_ = r.sw.loop.Post(func() { r.activate(w) })
}

func (r *Registration) activate(w *Worker) {
	r.mu.Lock()
	if r.waiting != w {
		r.mu.Unlock()
		return
	}
	r.waiting = nil
	previous := r.active
	r.active = w
	r.mu.Unlock()

	if previous != nil {
		previous.setState(host.WorkerRedundant)
	}
	w.setState(host.WorkerActivating)
	_ = r.sw.loop.Post(func() {
		w.setState(host.WorkerActivated)
	})
}

// Worker implements host.Worker.
type Worker struct {
	id        id.WorkerID
	scriptURL string

	mu       sync.Mutex
	state    host.WorkerState
	onChange func(host.WorkerState)
	logger   *zap.Logger
}

func newWorker(s *ServiceWorkers, scriptURL string) *Worker {
	return &Worker{
		id:        id.NewWorkerID(),
		scriptURL: scriptURL,
		state:     host.WorkerInstalling,
		logger:    s.logger,
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() id.WorkerID {
	return w.id
}

// ScriptURL implements host.Worker.
func (w *Worker) ScriptURL() string {
	return w.scriptURL
}

// State implements host.Worker.
func (w *Worker) State() host.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// OnStateChange implements host.Worker.
func (w *Worker) OnStateChange(fn func(host.WorkerState)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

func (w *Worker) setState(state host.WorkerState) {
	w.mu.Lock()
	if w.state == state {
		w.mu.Unlock()
		return
	}
	w.state = state
	fn := w.onChange
	w.mu.Unlock()

	w.logger.Debug("worker state changed", zap.String("worker", w.id.String()), zap.String("state", string(state)))
	if fn != nil {
		fn(state)
	}
}
