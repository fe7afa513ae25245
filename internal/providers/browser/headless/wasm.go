package headless

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"mime"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/bootstrap/env"
	"github.com/GriffinCanCode/webboot/internal/host"
)

// WASIModuleName is the import namespace provided to every module.
const WASIModuleName = wasi_snapshot_preview1.ModuleName

// ErrIncorrectMIME is returned by streaming instantiation for a response
// that is not served as application/wasm.
var ErrIncorrectMIME = errors.New("incorrect response MIME type, expected 'application/wasm'")

// ImportObject lists the import namespaces a module may link against.
type ImportObject struct {
	Modules []string
}

// Provides reports whether namespace is available.
func (o *ImportObject) Provides(namespace string) bool {
	if o == nil {
		return false
	}
	for _, m := range o.Modules {
		if m == namespace {
			return true
		}
	}
	return false
}

// Module is a compiled, linked module ready to run.
type Module struct {
	compiled wazero.CompiledModule
}

// Exports returns the exported function names.
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// WebAssembly implements host.WebAssembly on wazero. Instantiation compiles
// and links; execution starts in WASIRuntime.Run.
type WebAssembly struct {
	rt     wazero.Runtime
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewWebAssembly creates a runtime with WASI preview 1 installed.
func NewWebAssembly(ctx context.Context, logger *zap.Logger) (*WebAssembly, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to install WASI: %w", err)
	}
	return &WebAssembly{rt: rt, logger: logger.Named("wasm")}, nil
}

// Instantiate implements host.WebAssembly.
func (w *WebAssembly) Instantiate(ctx context.Context, source []byte, imports host.Imports) (host.Instance, error) {
	provided, _ := imports.(*ImportObject)

	compiled, err := w.rt.CompileModule(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}

	for _, def := range compiled.ImportedFunctions() {
		namespace, name, _ := def.Import()
		if !provided.Provides(namespace) {
			_ = compiled.Close(ctx)
			return nil, fmt.Errorf("link error: import %s.%s is not provided", namespace, name)
		}
	}
	for _, def := range compiled.ImportedMemories() {
		namespace, name, _ := def.Import()
		if !provided.Provides(namespace) {
			_ = compiled.Close(ctx)
			return nil, fmt.Errorf("link error: memory %s.%s is not provided", namespace, name)
		}
	}

	w.logger.Debug("module compiled", zap.Int("bytes", len(source)))
	return &Module{compiled: compiled}, nil
}

// Close releases every compiled module.
func (w *WebAssembly) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.rt.Close(ctx)
}

// StreamingWebAssembly adds native streaming instantiation, which like a
// browser refuses responses not served as application/wasm.
type StreamingWebAssembly struct {
	*WebAssembly
}

// InstantiateStreaming implements host.StreamingInstantiator.
func (s *StreamingWebAssembly) InstantiateStreaming(ctx context.Context, pending *host.PendingResponse, imports host.Imports) (host.Instance, error) {
	resp, err := pending.Await(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !resp.OK() {
		return nil, fmt.Errorf("HTTP status %d fetching %s", resp.Status, resp.URL)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/wasm" {
		return nil, ErrIncorrectMIME
	}

	source, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", resp.URL, err)
	}
	return s.Instantiate(ctx, source, imports)
}

// WASIRuntime implements host.ModuleRuntime: it runs a module's _start with
// the injected environment.
type WASIRuntime struct {
	wasm   *WebAssembly
	env    *env.Map
	args   []string
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

// NewWASIRuntime creates a runtime writing module output to stdout and
// stderr. Nil writers discard.
func NewWASIRuntime(wasm *WebAssembly, vars *env.Map, args []string, stdout, stderr io.Writer, logger *zap.Logger) *WASIRuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &WASIRuntime{
		wasm:   wasm,
		env:    vars,
		args:   args,
		stdout: stdout,
		stderr: stderr,
		logger: logger.Named("wasi"),
	}
}

// ImportObject implements host.ModuleRuntime.
func (r *WASIRuntime) ImportObject() host.Imports {
	return &ImportObject{Modules: []string{WASIModuleName}}
}

// Run implements host.ModuleRuntime. An exit with status 0 is success.
func (r *WASIRuntime) Run(ctx context.Context, inst host.Instance) error {
	m, ok := inst.(*Module)
	if !ok {
		return fmt.Errorf("unsupported instance type %T", inst)
	}

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(r.args...).
		WithStdout(r.stdout).
		WithStderr(r.stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)
	for _, key := range r.env.Keys() {
		cfg = cfg.WithEnv(key, r.env.Get(key))
	}

	mod, err := r.wasm.rt.InstantiateModule(ctx, m.compiled, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			r.logger.Debug("module exited cleanly")
			return nil
		}
		return fmt.Errorf("module run failed: %w", err)
	}
	r.logger.Debug("module returned")
	return nil
}
