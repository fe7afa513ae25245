// Package bootstrap wires the runtime components to a host and brings the
// application online.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/webboot/internal/bootstrap/domguard"
	"github.com/GriffinCanCode/webboot/internal/bootstrap/env"
	"github.com/GriffinCanCode/webboot/internal/bootstrap/install"
	"github.com/GriffinCanCode/webboot/internal/bootstrap/loader"
	"github.com/GriffinCanCode/webboot/internal/bootstrap/update"
	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webboot/internal/shared/id"
)

// Endpoints locates the worker script and the application module.
type Endpoints struct {
	WorkerURL string
	ModuleURL string
}

// Options configures a Bootstrap.
type Options struct {
	Endpoints Endpoints
	Env       *env.Map
	// IconReadyClass and IconNeutralClass override the loader icon classes.
	IconReadyClass   string
	IconNeutralClass string
	Logger           *zap.Logger
	Metrics          *monitoring.Metrics
}

// Report summarizes a Start.
type Report struct {
	BootID       id.BootID
	Outcome      loader.Outcome
	LoadErr      error
	Registration *update.Registration
	RegisterErr  error
	Baseline     int
}

// Bootstrap owns one instance of every runtime component.
type Bootstrap struct {
	id        id.BootID
	endpoints Endpoints
	env       *env.Map
	logger    *zap.Logger

	guard   *domguard.Guard
	updates *update.Channel
	install *install.Channel
	loader  *loader.Loader

	mu     sync.Mutex
	handle *domguard.Handle
}

// New constructs the components against h. Nothing starts until Start.
func New(h host.Host, runtime host.ModuleRuntime, opts Options) *Bootstrap {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bootID := id.NewBootID()
	logger = logger.With(zap.String("boot", string(bootID)))

	if opts.Env == nil {
		opts.Env = env.New(nil)
	}

	return &Bootstrap{
		id:        bootID,
		endpoints: opts.Endpoints,
		env:       opts.Env,
		logger:    logger,
		guard:     domguard.New(h.Document(), logger).WithMetrics(opts.Metrics),
		updates:   update.New(h.Navigator(), logger).WithMetrics(opts.Metrics),
		install:   install.New(h.Window(), h.Navigator(), logger).WithMetrics(opts.Metrics),
		loader: loader.New(h, runtime, loader.Config{
			ModuleURL:    opts.Endpoints.ModuleURL,
			ReadyClass:   opts.IconReadyClass,
			NeutralClass: opts.IconNeutralClass,
		}, logger, opts.Metrics),
	}
}

// ID returns the boot identifier.
func (b *Bootstrap) ID() id.BootID { return b.id }

// Start activates the body guard, then registers the worker and loads the
// module concurrently. It blocks until the module's run entry point returns.
//
// Worker registration and module load failures are reported in the Report
// and logged; only a malformed page (no body, missing loader element) is
// returned as an error.
func (b *Bootstrap) Start(ctx context.Context) (*Report, error) {
	report := &Report{BootID: b.id}

	handle, err := b.guardBody()
	if err != nil {
		return report, fmt.Errorf("failed to guard body: %w", err)
	}
	report.Baseline = handle.Baseline()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(b.safe("update", func() error {
		reg, err := b.updates.Register(gctx, b.endpoints.WorkerURL)
		report.Registration, report.RegisterErr = reg, err
		return nil
	}))

	g.Go(b.safe("loader", func() error {
		outcome, err := b.loader.Load(gctx)
		report.Outcome, report.LoadErr = outcome, err
		if errors.Is(err, loader.ErrMissingElement) {
			return err
		}
		return nil
	}))

	if err := g.Wait(); err != nil {
		return report, err
	}

	b.logger.Info("bootstrap finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Bool("worker_registered", report.Registration != nil),
	)
	return report, nil
}

// safe converts a panic in fn into an error so one component cannot take the
// process down.
func (b *Bootstrap) safe(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("component panicked", zap.String("component", name), zap.Any("panic", r))
				err = fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		return fn()
	}
}

// guardBody returns the active body guard, activating one if none is
// enforcing. Start and KeepBodyClean share it so one release frees the body.
func (b *Bootstrap) guardBody() (*domguard.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle != nil && b.handle.Active() {
		return b.handle, nil
	}
	h, err := b.guard.Activate()
	if err != nil {
		return nil, err
	}
	b.handle = h
	return h, nil
}

// Release stops the body guard installed by Start or KeepBodyClean. Safe to
// call more than once and before Start.
func (b *Bootstrap) Release() {
	b.mu.Lock()
	h := b.handle
	b.mu.Unlock()
	if h != nil {
		h.Release()
	}
}

// KeepBodyClean returns the release function of the active body guard,
// activating a guard first when none is enforcing. Calling the function
// releases the guard Start installed.
func (b *Bootstrap) KeepBodyClean() (func(), error) {
	h, err := b.guardBody()
	if err != nil {
		return nil, err
	}
	return h.Release, nil
}

// Getenv returns the injected value for key, or "".
func (b *Bootstrap) Getenv(key string) string {
	return b.env.Get(key)
}

// Env returns the injected environment.
func (b *Bootstrap) Env() *env.Map { return b.env }

// SetOnUpdate replaces the update available callback.
func (b *Bootstrap) SetOnUpdate(fn func()) {
	b.updates.SetOnUpdateAvailable(fn)
}

// SetOnAppInstallChange replaces the installability callback.
func (b *Bootstrap) SetOnAppInstallChange(fn func()) {
	b.install.SetOnInstallabilityChange(fn)
}

// IsAppInstallable reports whether an install prompt can be shown.
func (b *Bootstrap) IsAppInstallable() bool {
	return b.install.IsInstallable()
}

// IsAppInstalled reports whether the application runs installed.
func (b *Bootstrap) IsAppInstalled() bool {
	return b.install.IsInstalled()
}

// ShowInstallPrompt shows the captured install prompt, if any, and waits for
// the user's choice.
func (b *Bootstrap) ShowInstallPrompt(ctx context.Context) (host.Choice, error) {
	return b.install.ShowInstallPrompt(ctx)
}

// IsCrawler reports whether the loader would skip the module for userAgent.
func IsCrawler(userAgent string) bool {
	return loader.IsCrawler(userAgent)
}
