package headless

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/bootstrap/env"
	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webboot/internal/providers/http/client"
)

// DefaultPage is loaded when no page is given. It carries the loader
// elements and nothing else.
const DefaultPage = `<!DOCTYPE html>
<html>
<head><title>webboot</title></head>
<body>
<div id="app-wasm-loader">
<img id="app-wasm-loader-icon" class="webboot-logo" alt="">
<p id="app-wasm-loader-label">Loading...</p>
</div>
</body>
</html>
`

// Options configures a headless Host.
type Options struct {
	// Page is a file path or http(s) URL; empty loads DefaultPage with the
	// working directory as base.
	Page        string
	UserAgent   string
	DisplayMode string
	Standalone  bool
	// NoServiceWorkers hides worker registration from the navigator.
	NoServiceWorkers bool
	// ControllerScript, when set, makes the page start controlled by an
	// active worker running that script.
	ControllerScript string
	// NativeStreaming exposes streaming instantiation.
	NativeStreaming bool
	// InstallChoice answers install prompts automatically when set.
	InstallChoice host.Choice
	FetchTimeout  time.Duration
	// FetchRate caps network fetches per second; zero means unlimited.
	FetchRate    float64
	UpdatePoll   time.Duration
	WatchWorkers bool
	SkipScripts  bool
	Env          *env.Map
	Args         []string
	Stdout       io.Writer
	Stderr       io.Writer
	Logger       *zap.Logger
	Metrics      *monitoring.Metrics
}

// Host implements host.Host in process.
type Host struct {
	loop      *Loop
	doc       *Document
	navigator *Navigator
	window    *Window
	workers   *ServiceWorkers
	fetcher   *Fetcher
	wasm      *WebAssembly
	instance  host.WebAssembly
	runtime   *WASIRuntime
	scripts   *ScriptRuntime
	logger    *zap.Logger
}

// Open loads the page, parses it and runs its inline scripts.
func Open(ctx context.Context, opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("headless")
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	base, err := pageURL(opts.Page)
	if err != nil {
		return nil, err
	}

	httpClient := client.NewClient(client.Options{
		UserAgent: opts.UserAgent,
		Timeout:   opts.FetchTimeout,
		RateLimit: opts.FetchRate,
	})
	fetcher := NewFetcher(httpClient, base, logger)

	source, err := loadPage(ctx, fetcher, opts.Page)
	if err != nil {
		return nil, err
	}

	loop := NewLoop(logger)
	h := &Host{loop: loop, fetcher: fetcher, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = h.Close(context.Background())
		}
	}()

	h.doc, err = ParseDocument(bytes.NewReader(source), loop, logger)
	if err != nil {
		return nil, err
	}

	if !opts.NoServiceWorkers {
		h.workers = NewServiceWorkers(loop, fetcher, WorkerOptions{
			PollInterval: opts.UpdatePoll,
			Watch:        opts.WatchWorkers,
			Metrics:      opts.Metrics,
		}, logger)
		if opts.ControllerScript != "" {
			h.workers.SeedController(opts.ControllerScript)
		}
	}
	h.navigator = &Navigator{userAgent: opts.UserAgent, standalone: opts.Standalone, workers: h.workers}
	h.window = NewWindow(loop, opts.DisplayMode, opts.InstallChoice, logger)

	h.wasm, err = NewWebAssembly(ctx, logger)
	if err != nil {
		return nil, err
	}
	h.instance = h.wasm
	if opts.NativeStreaming {
		h.instance = &StreamingWebAssembly{WebAssembly: h.wasm}
	}
	h.runtime = NewWASIRuntime(h.wasm, opts.Env, opts.Args, opts.Stdout, opts.Stderr, logger)

	cfg := DefaultScriptConfig()
	cfg.UserAgent = opts.UserAgent
	h.scripts, err = NewScriptRuntime(h.doc, loop, cfg, logger)
	if err != nil {
		return nil, err
	}
	if !opts.SkipScripts {
		if failed := h.scripts.RunInlineScripts(ctx); failed > 0 {
			logger.Warn("page scripts failed", zap.Int("count", failed))
		}
	}

	logger.Info("page opened",
		zap.String("url", base.String()),
		zap.String("title", h.doc.Title()),
		zap.Bool("service_workers", h.workers != nil),
		zap.Bool("streaming", opts.NativeStreaming),
	)
	ok = true
	return h, nil
}

// Navigator implements host.Host.
func (h *Host) Navigator() host.Navigator { return h.navigator }

// Window implements host.Host.
func (h *Host) Window() host.Window { return h.window }

// Document implements host.Host.
func (h *Host) Document() host.Document { return h.doc }

// WebAssembly implements host.Host.
func (h *Host) WebAssembly() host.WebAssembly { return h.instance }

// Fetcher implements host.Host.
func (h *Host) Fetcher() host.Fetcher { return h.fetcher }

// Runtime returns the runtime modules are started with.
func (h *Host) Runtime() host.ModuleRuntime { return h.runtime }

// Page returns the concrete document.
func (h *Host) Page() *Document { return h.doc }

// Install returns the concrete window for driving install events.
func (h *Host) Install() *Window { return h.window }

// Workers returns the worker container, or nil when disabled.
func (h *Host) Workers() *ServiceWorkers { return h.workers }

// Scripts returns the page script runtime.
func (h *Host) Scripts() *ScriptRuntime { return h.scripts }

// Settle waits until every queued task has run.
func (h *Host) Settle(ctx context.Context) error {
	return h.loop.Settle(ctx)
}

// Close shuts down workers, scripts, the loop and the module runtime.
func (h *Host) Close(ctx context.Context) error {
	var errs []error
	if h.workers != nil {
		errs = append(errs, h.workers.Close())
	}
	if h.scripts != nil {
		errs = append(errs, h.scripts.Close())
	}
	h.loop.Close()
	if h.wasm != nil {
		errs = append(errs, h.wasm.Close(ctx))
	}
	return errors.Join(errs...)
}

func pageURL(page string) (*url.URL, error) {
	if page == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		return FileURL(wd)
	}
	if strings.Contains(page, "://") {
		u, err := url.Parse(page)
		if err != nil {
			return nil, fmt.Errorf("invalid page URL %q: %w", page, err)
		}
		return u, nil
	}
	return FileURL(page)
}

func loadPage(ctx context.Context, f *Fetcher, page string) ([]byte, error) {
	if page == "" {
		return []byte(DefaultPage), nil
	}
	resp, err := f.Fetch(ctx, f.Base().String())
	if err != nil {
		return nil, fmt.Errorf("failed to load page %s: %w", page, err)
	}
	defer resp.Body.Close()
	if !resp.OK() {
		return nil, fmt.Errorf("failed to load page %s: status %d", page, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %s: %w", page, err)
	}
	data, _, err = decodePage(data, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page %s: %w", page, err)
	}
	return data, nil
}
