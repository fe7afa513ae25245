package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/bootstrap"
	"github.com/GriffinCanCode/webboot/internal/bootstrap/loader"
	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/config"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webboot/internal/providers/browser/headless"
)

type runFlags struct {
	page        string
	worker      string
	module      string
	userAgent   string
	displayMode string
	envFile     string
	metricsAddr string
	inject      []string
	install     bool
	controlled  bool
	streaming   bool
	noWorkers   bool
	hold        bool
	json        bool
}

// runReport is printed after a run.
type runReport struct {
	BootID        string `json:"boot_id"`
	Outcome       string `json:"outcome"`
	LoadError     string `json:"load_error,omitempty"`
	Worker        string `json:"worker,omitempty"`
	WorkerError   string `json:"worker_error,omitempty"`
	HadController bool   `json:"had_controller"`
	Baseline      int    `json:"baseline"`
	BodyChildren  int    `json:"body_children"`
	Reverted      int64  `json:"reverted_nodes"`
	Updates       int32  `json:"update_notifications"`
	InstallChoice string `json:"install_choice,omitempty"`
	Installed     bool   `json:"installed"`
}

func newRunCmd(c *cli) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags] [-- module args...]",
		Short: "Boot a page headlessly and report the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.applyRunFlags(cmd, f)
			return c.run(cmd, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.page, "page", "", "page file path or URL (default: built-in loader page)")
	flags.StringVar(&f.worker, "worker", "", "service worker script URL")
	flags.StringVar(&f.module, "module", "", "application module URL")
	flags.StringVar(&f.userAgent, "user-agent", "", "navigator user agent")
	flags.StringVar(&f.displayMode, "display-mode", "", "display mode (browser, standalone)")
	flags.StringVar(&f.envFile, "env-file", "", "JSON, YAML or TOML file of injected environment values")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringArrayVar(&f.inject, "inject", nil, "script file to run against the page after boot (repeatable)")
	flags.BoolVar(&f.install, "install", false, "offer an install prompt and accept it")
	flags.BoolVar(&f.controlled, "controlled", false, "start with the page controlled by the worker script")
	flags.BoolVar(&f.streaming, "streaming", true, "expose streaming instantiation")
	flags.BoolVar(&f.noWorkers, "no-workers", false, "hide service worker support")
	flags.BoolVar(&f.hold, "hold", false, "keep the page open until interrupted")
	flags.BoolVar(&f.json, "json", false, "print the report as JSON")
	return cmd
}

// applyRunFlags overlays explicitly set flags onto the loaded config.
func (c *cli) applyRunFlags(cmd *cobra.Command, f *runFlags) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("page", &c.cfg.Headless.Page, f.page)
	set("worker", &c.cfg.Boot.WorkerURL, f.worker)
	set("module", &c.cfg.Boot.ModuleURL, f.module)
	set("user-agent", &c.cfg.Headless.UserAgent, f.userAgent)
	set("display-mode", &c.cfg.Headless.DisplayMode, f.displayMode)
	set("env-file", &c.cfg.Boot.EnvFile, f.envFile)
	set("metrics-addr", &c.cfg.Headless.MetricsAddr, f.metricsAddr)
}

func (c *cli) run(cmd *cobra.Command, f *runFlags, moduleArgs []string) error {
	cfg := c.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := c.logger.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vars, err := config.LoadEnvFile(cfg.Boot.EnvFile)
	if err != nil {
		return err
	}

	metrics := monitoring.NewMetrics()
	if cfg.Headless.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.Headless.MetricsAddr, metrics, logger)
		defer shutdown()
	}

	opts := headless.Options{
		Page:             cfg.Headless.Page,
		UserAgent:        cfg.Headless.UserAgent,
		DisplayMode:      cfg.Headless.DisplayMode,
		NoServiceWorkers: f.noWorkers,
		NativeStreaming:  f.streaming,
		FetchTimeout:     cfg.Headless.FetchTimeout.Std(),
		FetchRate:        cfg.Headless.FetchRate,
		UpdatePoll:       cfg.Headless.UpdatePoll.Std(),
		WatchWorkers:     f.hold,
		Env:              vars,
		Args:             append([]string{cfg.Boot.ModuleURL}, moduleArgs...),
		Stdout:           cmd.OutOrStdout(),
		Stderr:           cmd.ErrOrStderr(),
		Logger:           logger,
		Metrics:          metrics,
	}
	if f.controlled {
		opts.ControllerScript = cfg.Boot.WorkerURL
	}
	if f.install {
		opts.InstallChoice = host.ChoiceAccepted
	}

	h, err := headless.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(context.Background()); err != nil {
			logger.Warn("failed to close page", zap.Error(err))
		}
	}()

	boot := bootstrap.New(h, h.Runtime(), bootstrap.Options{
		Endpoints: bootstrap.Endpoints{
			WorkerURL: cfg.Boot.WorkerURL,
			ModuleURL: cfg.Boot.ModuleURL,
		},
		Env:              vars,
		IconReadyClass:   cfg.Boot.IconReadyClass,
		IconNeutralClass: cfg.Boot.IconNeutralClass,
		Logger:           logger,
		Metrics:          metrics,
	})
	defer boot.Release()

	var updates atomic.Int32
	boot.SetOnUpdate(func() {
		updates.Add(1)
		logger.Info("update available")
	})
	boot.SetOnAppInstallChange(func() {
		logger.Info("installability changed", zap.Bool("installable", boot.IsAppInstallable()))
	})

	report, err := boot.Start(ctx)
	if err != nil {
		return err
	}

	for _, path := range f.inject {
		if err := injectScript(ctx, h, path); err != nil {
			logger.Warn("injected script failed", zap.String("script", path), zap.Error(err))
		}
	}
	if err := h.Settle(ctx); err != nil {
		return err
	}

	out := summarize(report)
	if f.install {
		choice, err := offerInstall(ctx, h, boot)
		if err != nil {
			return err
		}
		out.InstallChoice = string(choice)
	}

	if f.hold {
		logger.Info("holding page open, interrupt to exit")
		<-ctx.Done()
		if err := h.Settle(context.Background()); err != nil {
			logger.Warn("failed to settle page", zap.Error(err))
		}
	}

	if body, ok := h.Document().Body(); ok {
		out.BodyChildren = body.ChildCount()
	}
	out.Reverted = metrics.Snapshot().RevertedNodes
	out.Updates = updates.Load()
	out.Installed = boot.IsAppInstalled()

	if err := printReport(cmd.OutOrStdout(), out, f.json); err != nil {
		return err
	}
	if report.Outcome == loader.OutcomeFailed {
		return fmt.Errorf("module load failed: %w", report.LoadErr)
	}
	return nil
}

func summarize(r *bootstrap.Report) runReport {
	out := runReport{
		BootID:   r.BootID.String(),
		Outcome:  string(r.Outcome),
		Baseline: r.Baseline,
	}
	if r.LoadErr != nil {
		out.LoadError = r.LoadErr.Error()
	}
	if r.Registration != nil {
		out.Worker = r.Registration.Scope()
		out.HadController = r.Registration.HadController()
	}
	if r.RegisterErr != nil && !errors.Is(r.RegisterErr, host.ErrUnsupported) {
		out.WorkerError = r.RegisterErr.Error()
	}
	return out
}

func injectScript(ctx context.Context, h *headless.Host, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	_, err = h.Scripts().Execute(ctx, string(src))
	return err
}

func offerInstall(ctx context.Context, h *headless.Host, boot *bootstrap.Bootstrap) (host.Choice, error) {
	if boot.IsAppInstalled() {
		return "", nil
	}
	if _, err := h.Install().OfferInstall(); err != nil {
		return "", fmt.Errorf("failed to offer install: %w", err)
	}
	if err := h.Settle(ctx); err != nil {
		return "", err
	}
	return boot.ShowInstallPrompt(ctx)
}

func printReport(w io.Writer, r runReport, asJSON bool) error {
	if asJSON {
		data, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	fmt.Fprintf(w, "boot:        %s\n", r.BootID)
	fmt.Fprintf(w, "outcome:     %s\n", r.Outcome)
	if r.LoadError != "" {
		fmt.Fprintf(w, "load error:  %s\n", r.LoadError)
	}
	switch {
	case r.Worker != "":
		fmt.Fprintf(w, "worker:      %s (controlled: %t)\n", r.Worker, r.HadController)
	case r.WorkerError != "":
		fmt.Fprintf(w, "worker:      failed: %s\n", r.WorkerError)
	default:
		fmt.Fprintln(w, "worker:      unsupported")
	}
	fmt.Fprintf(w, "body:        %d children (baseline %d, %d reverted)\n", r.BodyChildren, r.Baseline, r.Reverted)
	fmt.Fprintf(w, "updates:     %d\n", r.Updates)
	if r.InstallChoice != "" {
		fmt.Fprintf(w, "install:     %s\n", r.InstallChoice)
	}
	_, err := fmt.Fprintf(w, "installed:   %t\n", r.Installed)
	return err
}

// serveMetrics exposes the registry on addr and returns a shutdown func.
func serveMetrics(addr string, metrics *monitoring.Metrics, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	stopUptime := make(chan struct{})
	go metrics.RunUptime(stopUptime)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		close(stopUptime)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
