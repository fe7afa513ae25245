package headless

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/shared/id"
)

// DefaultUserAgent is reported when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) webboot-headless/1.0"

// Display modes understood by MatchMedia.
const (
	DisplayModeBrowser    = "browser"
	DisplayModeStandalone = "standalone"
)

var (
	// ErrAlreadyPrompted is returned when Prompt is called twice on one event.
	ErrAlreadyPrompted = errors.New("install prompt has already been shown")
	// ErrNotPrompted is returned when answering an event that was never shown.
	ErrNotPrompted = errors.New("install prompt has not been shown")
	// ErrNoPendingPrompt is returned by Window.Answer with nothing to answer.
	ErrNoPendingPrompt = errors.New("no install prompt is waiting for an answer")
)

// Navigator implements host.Navigator.
type Navigator struct {
	userAgent  string
	standalone bool
	workers    *ServiceWorkers
}

// UserAgent implements host.Navigator.
func (n *Navigator) UserAgent() string {
	return n.userAgent
}

// ServiceWorker implements host.Navigator.
func (n *Navigator) ServiceWorker() (host.ServiceWorkerContainer, bool) {
	if n.workers == nil {
		return nil, false
	}
	return n.workers, true
}

// Standalone implements host.Navigator.
func (n *Navigator) Standalone() bool {
	return n.standalone
}

// Window implements host.Window. Install events are dispatched on the loop.
type Window struct {
	loop   *Loop
	logger *zap.Logger

	mu          sync.Mutex
	displayMode string
	autoChoice  host.Choice
	onPrompt    func(host.InstallPromptEvent)
	onInstalled func()
	waiting     *PromptEvent
}

// NewWindow creates a window in displayMode. A non-empty autoChoice answers
// every shown prompt immediately.
func NewWindow(loop *Loop, displayMode string, autoChoice host.Choice, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	if displayMode == "" {
		displayMode = DisplayModeBrowser
	}
	return &Window{
		loop:        loop,
		logger:      logger.Named("window"),
		displayMode: displayMode,
		autoChoice:  autoChoice,
	}
}

// MatchMedia implements host.Window. Only display-mode queries match.
func (w *Window) MatchMedia(query string) bool {
	q := strings.ToLower(strings.Join(strings.Fields(query), ""))
	w.mu.Lock()
	defer w.mu.Unlock()
	return q == "(display-mode:"+w.displayMode+")"
}

// SetDisplayMode changes the mode reported to media queries.
func (w *Window) SetDisplayMode(mode string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.displayMode = mode
}

// OnBeforeInstallPrompt implements host.Window.
func (w *Window) OnBeforeInstallPrompt(fn func(host.InstallPromptEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onPrompt = fn
}

// OnAppInstalled implements host.Window.
func (w *Window) OnAppInstalled(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onInstalled = fn
}

// OfferInstall dispatches "beforeinstallprompt" with a fresh event.
func (w *Window) OfferInstall() (*PromptEvent, error) {
	e := &PromptEvent{window: w, id: id.NewPromptID(), done: make(chan struct{})}
	err := w.loop.Post(func() {
		w.mu.Lock()
		fn := w.onPrompt
		w.mu.Unlock()
		if fn == nil {
			w.logger.Debug("beforeinstallprompt has no listener", zap.String("prompt", e.id.String()))
			return
		}
		fn(e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// MarkInstalled dispatches "appinstalled".
func (w *Window) MarkInstalled() error {
	return w.loop.Post(func() {
		w.mu.Lock()
		fn := w.onInstalled
		w.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// Answer settles the prompt currently on screen.
func (w *Window) Answer(choice host.Choice) error {
	w.mu.Lock()
	e := w.waiting
	w.waiting = nil
	w.mu.Unlock()
	if e == nil {
		return ErrNoPendingPrompt
	}
	return e.Answer(choice)
}

// Waiting reports whether a shown prompt awaits an answer.
func (w *Window) Waiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waiting != nil
}

func (w *Window) shown(e *PromptEvent) {
	w.mu.Lock()
	auto := w.autoChoice
	if auto == "" {
		w.waiting = e
	}
	w.mu.Unlock()

	w.logger.Info("install prompt shown", zap.String("prompt", e.id.String()))
	if auto != "" {
		_ = e.Answer(auto)
	}
}

// PromptEvent implements host.InstallPromptEvent. It can be shown once.
type PromptEvent struct {
	window *Window
	id     id.PromptID

	mu        sync.Mutex
	prevented bool
	prompted  bool
	choice    host.Choice
	done      chan struct{}
}

// ID returns the event's identifier.
func (e *PromptEvent) ID() id.PromptID {
	return e.id
}

// PreventDefault implements host.InstallPromptEvent.
func (e *PromptEvent) PreventDefault() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prevented = true
}

// DefaultPrevented reports whether a listener deferred the prompt.
func (e *PromptEvent) DefaultPrevented() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prevented
}

// Prompt implements host.InstallPromptEvent.
func (e *PromptEvent) Prompt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.prompted {
		e.mu.Unlock()
		return ErrAlreadyPrompted
	}
	e.prompted = true
	e.mu.Unlock()

	e.window.shown(e)
	return nil
}

// UserChoice implements host.InstallPromptEvent.
func (e *PromptEvent) UserChoice(ctx context.Context) (host.Choice, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.choice, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Answer settles the event. Only the first answer counts.
func (e *PromptEvent) Answer(choice host.Choice) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.prompted {
		return ErrNotPrompted
	}
	select {
	case <-e.done:
		return nil
	default:
	}
	e.choice = choice
	close(e.done)
	return nil
}
