//go:build js && wasm

package jshost

import (
	"context"
	"sync"
	"syscall/js"

	"github.com/GriffinCanCode/webboot/internal/host"
)

// Host implements host.Host over the page's globals.
type Host struct {
	navigator *navigator
	window    *window
	document  *document
	wasm      host.WebAssembly
	fetcher   *fetcher
}

// New binds to the current page.
func New() *Host {
	global := js.Global()
	return &Host{
		navigator: &navigator{v: global.Get("navigator")},
		window:    &window{v: global},
		document:  &document{v: global.Get("document")},
		wasm:      newWebAssembly(global.Get("WebAssembly")),
		fetcher:   &fetcher{},
	}
}

func (h *Host) Navigator() host.Navigator     { return h.navigator }
func (h *Host) Window() host.Window           { return h.window }
func (h *Host) Document() host.Document       { return h.document }
func (h *Host) WebAssembly() host.WebAssembly { return h.wasm }
func (h *Host) Fetcher() host.Fetcher         { return h.fetcher }

// Dispatch fires a CustomEvent named name on window.
func (h *Host) Dispatch(name string) {
	event := js.Global().Get("CustomEvent").New(name)
	h.window.v.Call("dispatchEvent", event)
}

type navigator struct {
	v js.Value
}

func (n *navigator) UserAgent() string {
	return n.v.Get("userAgent").String()
}

func (n *navigator) ServiceWorker() (host.ServiceWorkerContainer, bool) {
	sw := n.v.Get("serviceWorker")
	if !present(sw) {
		return nil, false
	}
	return &container{v: sw}, true
}

func (n *navigator) Standalone() bool {
	return n.v.Get("standalone").Truthy()
}

type window struct {
	v js.Value

	mu        sync.Mutex
	prompt    js.Func
	installed js.Func
}

func (w *window) MatchMedia(query string) bool {
	mm := w.v.Get("matchMedia")
	if !isFunction(mm) {
		return false
	}
	return w.v.Call("matchMedia", query).Get("matches").Truthy()
}

func (w *window) OnBeforeInstallPrompt(fn func(host.InstallPromptEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prompt = w.replaceListener("beforeinstallprompt", w.prompt, func(e js.Value) {
		fn(&promptEvent{v: e})
	})
}

func (w *window) OnAppInstalled(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.installed = w.replaceListener("appinstalled", w.installed, func(js.Value) {
		fn()
	})
}

// replaceListener swaps the single listener for event. Callers hold mu.
func (w *window) replaceListener(event string, old js.Func, fn func(js.Value)) js.Func {
	if old.Truthy() {
		w.v.Call("removeEventListener", event, old)
		old.Release()
	}
	f := js.FuncOf(func(_ js.Value, args []js.Value) any {
		fn(arg(args, 0))
		return nil
	})
	w.v.Call("addEventListener", event, f)
	return f
}

type promptEvent struct {
	v js.Value
}

func (e *promptEvent) PreventDefault() {
	e.v.Call("preventDefault")
}

func (e *promptEvent) Prompt(ctx context.Context) error {
	var result js.Value
	if err := try(func() { result = e.v.Call("prompt") }); err != nil {
		return err
	}
	// Older implementations return undefined instead of a promise.
	if !present(result) {
		return nil
	}
	_, err := await(ctx, result)
	return err
}

func (e *promptEvent) UserChoice(ctx context.Context) (host.Choice, error) {
	res, err := await(ctx, e.v.Get("userChoice"))
	if err != nil {
		return "", err
	}
	return host.Choice(res.Get("outcome").String()), nil
}
