//go:build js && wasm

// Command webboot-shell is the browser bootstrap. Build with
// GOOS=js GOARCH=wasm and load after wasm_exec.js; configuration comes from
// the global webbootConfig object.
package main

import (
	"context"
	"syscall/js"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/bootstrap"
	"github.com/GriffinCanCode/webboot/internal/bootstrap/env"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webboot/internal/providers/browser/jshost"
)

const (
	defaultWorkerURL = "/app-worker.js"
	defaultModuleURL = "/web/app.wasm"

	eventUpdate        = "webboot:update"
	eventInstallChange = "webboot:installchange"
)

type shellConfig struct {
	WorkerURL   string
	ModuleURL   string
	Env         *env.Map
	IconReady   string
	IconNeutral string
	LogLevel    string
}

func readConfig(logger *zap.Logger) shellConfig {
	cfg := shellConfig{WorkerURL: defaultWorkerURL, ModuleURL: defaultModuleURL, LogLevel: "info"}
	v := js.Global().Get("webbootConfig")
	if v.IsUndefined() || v.IsNull() {
		cfg.Env = env.New(nil)
		return cfg
	}
	str := func(key string, dst *string) {
		if s := v.Get(key); s.Type() == js.TypeString && s.String() != "" {
			*dst = s.String()
		}
	}
	str("workerURL", &cfg.WorkerURL)
	str("moduleURL", &cfg.ModuleURL)
	str("iconReadyClass", &cfg.IconReady)
	str("iconNeutralClass", &cfg.IconNeutral)
	str("logLevel", &cfg.LogLevel)

	cfg.Env = env.New(nil)
	if e := v.Get("env"); e.Type() == js.TypeObject {
		literal := js.Global().Get("JSON").Call("stringify", e).String()
		parsed, err := env.Parse([]byte(literal))
		if err != nil {
			logger.Warn("ignoring malformed env", zap.Error(err))
		} else {
			cfg.Env = parsed
		}
	}
	return cfg
}

func main() {
	cfg := readConfig(zap.NewNop())
	base := logging.NewConsole(cfg.LogLevel)
	defer base.Sync()
	logger := base.Logger.Named("webboot")

	h := jshost.New()
	runtime, err := jshost.NewGoRuntime(cfg.Env.Snapshot(), logger)
	if err != nil {
		logger.Error("module runtime unavailable", zap.Error(err))
		return
	}

	boot := bootstrap.New(h, runtime, bootstrap.Options{
		Endpoints:        bootstrap.Endpoints{WorkerURL: cfg.WorkerURL, ModuleURL: cfg.ModuleURL},
		Env:              cfg.Env,
		IconReadyClass:   cfg.IconReady,
		IconNeutralClass: cfg.IconNeutral,
		Logger:           logger,
	})
	boot.SetOnUpdate(func() { h.Dispatch(eventUpdate) })
	boot.SetOnAppInstallChange(func() { h.Dispatch(eventInstallChange) })

	exportGlobals(boot, logger)

	go func() {
		report, err := boot.Start(context.Background())
		if err != nil {
			logger.Error("bootstrap failed", zap.Error(err))
			return
		}
		if report.LoadErr != nil {
			logger.Error("module load failed", zap.Error(report.LoadErr))
		}
		if report.RegisterErr != nil {
			logger.Warn("service worker registration failed", zap.Error(report.RegisterErr))
		}
	}()

	select {}
}

func exportGlobals(boot *bootstrap.Bootstrap, logger *zap.Logger) {
	global := js.Global()

	global.Set("webbootGetenv", js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) == 0 {
			return ""
		}
		return boot.Getenv(args[0].String())
	}))

	global.Set("webbootIsAppInstallable", js.FuncOf(func(js.Value, []js.Value) any {
		return boot.IsAppInstallable()
	}))

	global.Set("webbootIsAppInstalled", js.FuncOf(func(js.Value, []js.Value) any {
		return boot.IsAppInstalled()
	}))

	// The module calls webbootReleaseBody once it renders into <body>.
	global.Set("webbootReleaseBody", js.FuncOf(func(js.Value, []js.Value) any {
		boot.Release()
		return nil
	}))

	global.Set("webbootKeepBodyClean", js.FuncOf(func(js.Value, []js.Value) any {
		release, err := boot.KeepBodyClean()
		if err != nil {
			logger.Warn("keep body clean failed", zap.Error(err))
			return js.Undefined()
		}
		var fn js.Func
		fn = js.FuncOf(func(js.Value, []js.Value) any {
			release()
			fn.Release()
			return nil
		})
		return fn
	}))

	// The prompt waits on user input, so it resolves from a goroutine.
	global.Set("webbootShowInstallPrompt", js.FuncOf(func(js.Value, []js.Value) any {
		var executor js.Func
		executor = js.FuncOf(func(_ js.Value, args []js.Value) any {
			resolve, reject := args[0], args[1]
			go func() {
				defer executor.Release()
				choice, err := boot.ShowInstallPrompt(context.Background())
				if err != nil {
					reject.Invoke(js.Global().Get("Error").New(err.Error()))
					return
				}
				resolve.Invoke(string(choice))
			}()
			return nil
		})
		return js.Global().Get("Promise").New(executor)
	}))
}
