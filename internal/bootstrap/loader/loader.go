// Package loader fetches, instantiates and starts the application module and
// keeps the loader indicator in sync with the outcome.
package loader

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
)

// ErrMissingElement reports a loader element absent from the page.
var ErrMissingElement = errors.New("loader element not found")

// Loader element ids the page must provide.
const (
	ContainerID = "app-wasm-loader"
	IconID      = "app-wasm-loader-icon"
	LabelID     = "app-wasm-loader-label"
)

// DefaultIconClass is the logo class used for both the ready and the
// neutral icon state.
const DefaultIconClass = "webboot-logo"

var crawlerPattern = regexp.MustCompile(`(?i)bot|googlebot|crawler|spider|robot|crawling`)

// IsCrawler reports whether userAgent belongs to a crawler.
func IsCrawler(userAgent string) bool {
	return crawlerPattern.MatchString(userAgent)
}

// Outcome is what a Load did.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeStarted Outcome = "started"
	OutcomeFailed  Outcome = "failed"
)

// Config configures a Loader.
type Config struct {
	ModuleURL    string
	ReadyClass   string
	NeutralClass string
}

func (c Config) withDefaults() Config {
	if c.ReadyClass == "" {
		c.ReadyClass = DefaultIconClass
	}
	if c.NeutralClass == "" {
		c.NeutralClass = DefaultIconClass
	}
	return c
}

// Loader brings the application module online.
type Loader struct {
	cfg      Config
	nav      host.Navigator
	doc      host.Document
	fetcher  host.Fetcher
	runtime  host.ModuleRuntime
	strategy Strategy
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// New creates a loader. The instantiation strategy is chosen here, once.
func New(h host.Host, runtime host.ModuleRuntime, cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:      cfg.withDefaults(),
		nav:      h.Navigator(),
		doc:      h.Document(),
		fetcher:  h.Fetcher(),
		runtime:  runtime,
		strategy: SelectStrategy(h.WebAssembly(), metrics),
		logger:   logger.Named("loader"),
		metrics:  metrics,
	}
}

// Strategy returns the selected instantiation strategy.
func (l *Loader) Strategy() Strategy {
	return l.strategy
}

// Load skips crawlers, otherwise fetches and instantiates the module and
// runs it. A failed load is reported on the loader label and returned; it is
// never retried. ErrMissingElement means the page is malformed.
func (l *Loader) Load(ctx context.Context) (Outcome, error) {
	if IsCrawler(l.nav.UserAgent()) {
		return l.skip()
	}

	timer := monitoring.NewTimer(l.metrics, l.strategy.Name())

	pending := host.StartFetch(ctx, l.fetcher, l.cfg.ModuleURL)
	inst, err := l.strategy.Instantiate(ctx, pending, l.runtime.ImportObject())
	if err != nil {
		timer.Stop(string(OutcomeFailed))
		return OutcomeFailed, l.fail(err)
	}

	icon, err := l.element(IconID)
	if err != nil {
		timer.Stop(string(OutcomeFailed))
		return OutcomeFailed, err
	}
	icon.SetClassName(l.cfg.ReadyClass)
	timer.Stop(string(OutcomeStarted))

	l.logger.Debug("application wasm instantiated",
		zap.String("module", l.cfg.ModuleURL),
		zap.String("strategy", l.strategy.Name()),
	)

	if err := l.runtime.Run(ctx, inst); err != nil {
		l.logger.Error("application wasm exited with error", zap.Error(err))
		return OutcomeStarted, fmt.Errorf("failed to run %s: %w", l.cfg.ModuleURL, err)
	}
	return OutcomeStarted, nil
}

func (l *Loader) skip() (Outcome, error) {
	container, err := l.element(ContainerID)
	if err != nil {
		return OutcomeSkipped, err
	}
	container.SetStyle("display", "none")

	l.logger.Debug("crawler detected, application wasm not loaded",
		zap.String("user_agent", l.nav.UserAgent()),
	)
	l.metrics.IncCrawlerSkips()
	return OutcomeSkipped, nil
}

func (l *Loader) fail(cause error) error {
	l.logger.Error("loading application wasm failed",
		zap.String("module", l.cfg.ModuleURL),
		zap.String("strategy", l.strategy.Name()),
		zap.Error(cause),
	)

	icon, err := l.element(IconID)
	if err != nil {
		return err
	}
	icon.SetClassName(l.cfg.NeutralClass)

	label, err := l.element(LabelID)
	if err != nil {
		return err
	}
	label.SetText(cause.Error())

	return fmt.Errorf("failed to load %s: %w", l.cfg.ModuleURL, cause)
}

func (l *Loader) element(id string) (host.Element, error) {
	el, ok := l.doc.GetElementByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: #%s", ErrMissingElement, id)
	}
	return el, nil
}
