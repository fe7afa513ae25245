//go:build js && wasm

package jshost

import (
	"context"
	"sync"
	"syscall/js"

	"github.com/GriffinCanCode/webboot/internal/host"
)

type container struct {
	v js.Value
}

func (c *container) Register(ctx context.Context, scriptURL string) (host.Registration, error) {
	var promise js.Value
	if err := try(func() { promise = c.v.Call("register", scriptURL) }); err != nil {
		return nil, err
	}
	reg, err := await(ctx, promise)
	if err != nil {
		return nil, err
	}
	return &registration{v: reg}, nil
}

func (c *container) Controller() (host.Worker, bool) {
	ctrl := c.v.Get("controller")
	if !present(ctrl) {
		return nil, false
	}
	return &worker{v: ctrl}, true
}

type registration struct {
	v js.Value

	mu    sync.Mutex
	found js.Func
}

func (r *registration) Scope() string {
	return r.v.Get("scope").String()
}

func (r *registration) Installing() (host.Worker, bool) {
	w := r.v.Get("installing")
	if !present(w) {
		return nil, false
	}
	return &worker{v: w}, true
}

func (r *registration) OnUpdateFound(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.found.Truthy() {
		r.found.Release()
	}
	r.found = js.FuncOf(func(js.Value, []js.Value) any {
		fn()
		return nil
	})
	r.v.Set("onupdatefound", r.found)
}

type worker struct {
	v js.Value

	mu     sync.Mutex
	change js.Func
}

func (w *worker) ScriptURL() string {
	return w.v.Get("scriptURL").String()
}

func (w *worker) State() host.WorkerState {
	return host.WorkerState(w.v.Get("state").String())
}

func (w *worker) OnStateChange(fn func(host.WorkerState)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.change.Truthy() {
		w.change.Release()
	}
	w.change = js.FuncOf(func(js.Value, []js.Value) any {
		fn(w.State())
		return nil
	})
	w.v.Set("onstatechange", w.change)
}
