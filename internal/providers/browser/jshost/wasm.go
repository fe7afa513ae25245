//go:build js && wasm

package jshost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"syscall/js"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/host"
)

var errForeignImports = errors.New("imports are not a JS object")

type fetcher struct{}

func (f *fetcher) Fetch(ctx context.Context, url string) (*host.Response, error) {
	var promise js.Value
	if err := try(func() { promise = js.Global().Call("fetch", url) }); err != nil {
		return nil, err
	}
	res, err := await(ctx, promise)
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	each := js.FuncOf(func(_ js.Value, args []js.Value) any {
		header.Add(arg(args, 1).String(), arg(args, 0).String())
		return nil
	})
	res.Get("headers").Call("forEach", each)
	each.Release()

	return &host.Response{
		URL:    res.Get("url").String(),
		Status: res.Get("status").Int(),
		Header: header,
		Body:   &responseBody{ctx: ctx, native: res},
	}, nil
}

// responseBody reads the native Response on first Read. Until then the
// native object can be handed to instantiateStreaming untouched.
type responseBody struct {
	ctx    context.Context
	native js.Value

	mu     sync.Mutex
	reader *bytes.Reader
	err    error
}

func (b *responseBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reader == nil && b.err == nil {
		b.load()
	}
	if b.err != nil {
		return 0, b.err
	}
	return b.reader.Read(p)
}

func (b *responseBody) load() {
	buf, err := await(b.ctx, b.native.Call("arrayBuffer"))
	if err != nil {
		b.err = err
		return
	}
	src := js.Global().Get("Uint8Array").New(buf)
	data := make([]byte, src.Length())
	js.CopyBytesToGo(data, src)
	b.reader = bytes.NewReader(data)
}

func (b *responseBody) unread() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reader == nil && b.err == nil && !b.native.Get("bodyUsed").Truthy()
}

func (b *responseBody) Close() error {
	return nil
}

type webAssembly struct {
	v js.Value
}

// streamingWebAssembly is used when the browser exposes instantiateStreaming.
type streamingWebAssembly struct {
	*webAssembly
}

func newWebAssembly(v js.Value) host.WebAssembly {
	w := &webAssembly{v: v}
	if present(v) && isFunction(v.Get("instantiateStreaming")) {
		return &streamingWebAssembly{webAssembly: w}
	}
	return w
}

func (w *webAssembly) Instantiate(ctx context.Context, source []byte, imports host.Imports) (host.Instance, error) {
	if !present(w.v) {
		return nil, host.ErrUnsupported
	}
	obj, ok := imports.(js.Value)
	if !ok {
		return nil, errForeignImports
	}
	bin := js.Global().Get("Uint8Array").New(len(source))
	js.CopyBytesToJS(bin, source)

	var promise js.Value
	if err := try(func() { promise = w.v.Call("instantiate", bin, obj) }); err != nil {
		return nil, err
	}
	res, err := await(ctx, promise)
	if err != nil {
		return nil, err
	}
	return res.Get("instance"), nil
}

func (w *streamingWebAssembly) InstantiateStreaming(ctx context.Context, pending *host.PendingResponse, imports host.Imports) (host.Instance, error) {
	obj, ok := imports.(js.Value)
	if !ok {
		return nil, errForeignImports
	}
	resp, err := pending.Await(ctx)
	if err != nil {
		return nil, err
	}
	body, ok := resp.Body.(*responseBody)
	if !ok || !body.unread() {
		return nil, fmt.Errorf("response for %s cannot be streamed", resp.URL)
	}

	var promise js.Value
	if err := try(func() { promise = w.v.Call("instantiateStreaming", body.native, obj) }); err != nil {
		return nil, err
	}
	res, err := await(ctx, promise)
	if err != nil {
		return nil, err
	}
	return res.Get("instance"), nil
}

// GoRuntime runs modules built by the Go toolchain through wasm_exec.js.
type GoRuntime struct {
	gov    js.Value
	logger *zap.Logger
}

// NewGoRuntime constructs a `Go` instance with env merged into its
// environment. wasm_exec.js must be loaded on the page.
func NewGoRuntime(env map[string]string, logger *zap.Logger) (*GoRuntime, error) {
	ctor := js.Global().Get("Go")
	if !isFunction(ctor) {
		return nil, fmt.Errorf("wasm_exec.js not loaded: %w", host.ErrUnsupported)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	gov := ctor.New()
	goEnv := gov.Get("env")
	if !present(goEnv) {
		goEnv = js.Global().Get("Object").New()
		gov.Set("env", goEnv)
	}
	for k, v := range env {
		goEnv.Set(k, v)
	}
	return &GoRuntime{gov: gov, logger: logger.Named("go-runtime")}, nil
}

func (r *GoRuntime) ImportObject() host.Imports {
	return r.gov.Get("importObject")
}

// Run starts the instance. The returned promise resolves only when the
// module exits, so it is not awaited; failures are logged.
func (r *GoRuntime) Run(_ context.Context, inst host.Instance) error {
	v, ok := inst.(js.Value)
	if !ok {
		return errors.New("instance is not a JS object")
	}
	var promise js.Value
	if err := try(func() { promise = r.gov.Call("run", v) }); err != nil {
		return err
	}
	var catch js.Func
	catch = js.FuncOf(func(_ js.Value, args []js.Value) any {
		r.logger.Error("module exited with error", zap.Error(js.Error{Value: arg(args, 0)}))
		catch.Release()
		return nil
	})
	promise.Call("catch", catch)
	return nil
}

var _ io.ReadCloser = (*responseBody)(nil)
