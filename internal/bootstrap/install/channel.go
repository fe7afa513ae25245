// Package install captures the platform install prompt and replays it on
// demand.
package install

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webboot/internal/shared/id"
)

// StandaloneQuery is the media query matched by installed applications.
const StandaloneQuery = "(display-mode: standalone)"

// Platform event names, used in logs and metrics.
const (
	EventBeforeInstallPrompt = "beforeinstallprompt"
	EventAppInstalled        = "appinstalled"
)

type capturedPrompt struct {
	id    id.PromptID
	event host.InstallPromptEvent
}

// Channel retains at most one install prompt handle.
type Channel struct {
	win     host.Window
	nav     host.Navigator
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	prompt   *capturedPrompt
	onChange func()
}

// New creates an install channel and subscribes to the window's install
// events.
func New(win host.Window, nav host.Navigator, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Channel{
		win:      win,
		nav:      nav,
		logger:   logger.Named("install"),
		onChange: func() {},
	}
	win.OnBeforeInstallPrompt(c.handleBeforeInstallPrompt)
	win.OnAppInstalled(c.handleAppInstalled)
	return c
}

// WithMetrics attaches metrics.
func (c *Channel) WithMetrics(m *monitoring.Metrics) *Channel {
	c.metrics = m
	return c
}

// SetOnInstallabilityChange replaces the installability callback. nil
// restores the no-op.
func (c *Channel) SetOnInstallabilityChange(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// IsInstalled reports whether the application runs as an installed app.
func (c *Channel) IsInstalled() bool {
	return c.win.MatchMedia(StandaloneQuery) || c.nav.Standalone()
}

// IsInstallable reports whether a prompt can be shown right now.
func (c *Channel) IsInstallable() bool {
	if c.IsInstalled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt != nil
}

// Captured reports whether a prompt handle is retained.
func (c *Channel) Captured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt != nil
}

// ShowInstallPrompt shows the retained prompt and waits for the user's
// choice. Without a retained prompt it returns an empty choice and no error.
// The handle is discarded once the prompt resolves, whatever the outcome.
func (c *Channel) ShowInstallPrompt(ctx context.Context) (host.Choice, error) {
	c.mu.Lock()
	p := c.prompt
	c.mu.Unlock()

	if p == nil {
		c.logger.Debug("no install prompt captured")
		return "", nil
	}

	defer c.discard(p)

	if err := p.event.Prompt(ctx); err != nil {
		c.logger.Warn("install prompt failed",
			zap.String("prompt", string(p.id)),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to show install prompt: %w", err)
	}

	choice, err := p.event.UserChoice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to await install choice: %w", err)
	}

	c.logger.Info("install prompt answered",
		zap.String("prompt", string(p.id)),
		zap.String("choice", string(choice)),
	)
	c.metrics.RecordInstallPrompt(string(choice))
	return choice, nil
}

// discard drops p unless a newer prompt replaced it meanwhile.
func (c *Channel) discard(p *capturedPrompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompt == p {
		c.prompt = nil
		c.metrics.RecordInstallabilityEvent("consumed", false)
	}
}

func (c *Channel) handleBeforeInstallPrompt(ev host.InstallPromptEvent) {
	ev.PreventDefault()

	p := &capturedPrompt{id: id.NewPromptID(), event: ev}

	c.mu.Lock()
	c.prompt = p
	fn := c.onChange
	c.mu.Unlock()

	c.logger.Debug("install prompt captured", zap.String("prompt", string(p.id)))
	c.metrics.RecordInstallabilityEvent(EventBeforeInstallPrompt, true)
	fn()
}

func (c *Channel) handleAppInstalled() {
	c.mu.Lock()
	c.prompt = nil
	fn := c.onChange
	c.mu.Unlock()

	c.logger.Info("application installed")
	c.metrics.RecordInstallabilityEvent(EventAppInstalled, false)
	fn()
}
