package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ScriptConfig bounds page script execution.
type ScriptConfig struct {
	Timeout       time.Duration
	EnableConsole bool
	UserAgent     string
}

// DefaultScriptConfig returns sensible defaults.
func DefaultScriptConfig() ScriptConfig {
	return ScriptConfig{
		Timeout:       5 * time.Second,
		EnableConsole: true,
		UserAgent:     DefaultUserAgent,
	}
}

// LogEntry is one console call.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// ScriptRuntime runs page scripts in a goja VM. The VM is only touched on
// the loop goroutine.
type ScriptRuntime struct {
	vm     *goja.Runtime
	doc    *Document
	loop   *Loop
	config ScriptConfig
	logger *zap.Logger

	consoleMu sync.Mutex
	console   []LogEntry

	timersMu sync.Mutex
	timers   map[int64]*time.Timer
	nextID   int64
	closed   bool
}

// NewScriptRuntime creates a runtime bound to doc.
func NewScriptRuntime(doc *Document, loop *Loop, config ScriptConfig, logger *zap.Logger) (*ScriptRuntime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultScriptConfig().Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	r := &ScriptRuntime{
		vm:     goja.New(),
		doc:    doc,
		loop:   loop,
		config: config,
		logger: logger.Named("script"),
		timers: make(map[int64]*time.Timer),
	}
	r.vm.SetMaxCallStackSize(1024)

	var err error
	if doErr := loop.Do(context.Background(), func() { err = r.setupGlobals() }); doErr != nil {
		return nil, doErr
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs src on the loop and returns its exported completion value.
func (r *ScriptRuntime) Execute(ctx context.Context, src string) (any, error) {
	var (
		value any
		err   error
	)
	doErr := r.loop.Do(ctx, func() {
		value, err = r.run(ctx, src)
	})
	if doErr != nil {
		return nil, doErr
	}
	return value, err
}

func (r *ScriptRuntime) run(ctx context.Context, src string) (any, error) {
	timer := time.NewTimer(r.config.Timeout)
	defer timer.Stop()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-timer.C:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-stop:
		}
	}()

	val, err := r.vm.RunString(src)
	// The watcher must be gone before clearing, or a late interrupt would
	// hit the next script.
	close(stop)
	<-done
	r.vm.ClearInterrupt()
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}
	return exportValue(val), nil
}

// RunInlineScripts executes the page's inline scripts in order. A failing
// script is logged and the rest still run.
func (r *ScriptRuntime) RunInlineScripts(ctx context.Context) int {
	failed := 0
	for i, src := range r.doc.InlineScripts() {
		if strings.TrimSpace(src) == "" {
			continue
		}
		if _, err := r.Execute(ctx, src); err != nil {
			failed++
			r.logger.Warn("inline script failed", zap.Int("index", i), zap.Error(err))
		}
	}
	return failed
}

// Console returns the console calls made so far.
func (r *ScriptRuntime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry(nil), r.console...)
}

// Close cancels pending timers. Queued callbacks that already fired are
// dropped by the loop once it closes.
func (r *ScriptRuntime) Close() error {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	return nil
}

// setupGlobals configures the page globals.
func (r *ScriptRuntime) setupGlobals() error {
	vm := r.vm

	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	global := vm.GlobalObject()
	for _, name := range []string{"window", "self"} {
		if err := vm.Set(name, global); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := vm.Set("console", console); err != nil {
			return err
		}
	}

	navigator := vm.NewObject()
	if err := navigator.Set("userAgent", r.config.UserAgent); err != nil {
		return err
	}
	if err := vm.Set("navigator", navigator); err != nil {
		return err
	}

	if err := vm.Set("setTimeout", r.setTimeout); err != nil {
		return err
	}
	if err := vm.Set("clearTimeout", r.clearTimeout); err != nil {
		return err
	}

	return vm.Set("document", r.documentObject())
}

// makeConsoleFunc creates a console function
func (r *ScriptRuntime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
		r.consoleMu.Unlock()

		r.logger.Debug("console", zap.String("level", level), zap.String("message", msg))
		return goja.Undefined()
	}
}

func (r *ScriptRuntime) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout requires a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	if r.closed {
		return r.vm.ToValue(0)
	}
	r.nextID++
	id := r.nextID
	r.timers[id] = time.AfterFunc(delay, func() {
		r.timersMu.Lock()
		_, live := r.timers[id]
		delete(r.timers, id)
		r.timersMu.Unlock()
		if !live {
			return
		}
		_ = r.loop.Post(func() {
			if _, err := fn(goja.Undefined()); err != nil {
				r.logger.Warn("timer callback failed", zap.Error(err))
			}
		})
	})
	return r.vm.ToValue(id)
}

func (r *ScriptRuntime) clearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
	return goja.Undefined()
}

func (r *ScriptRuntime) documentObject() *goja.Object {
	vm := r.vm
	document := vm.NewObject()

	r.accessor(document, "body", func() goja.Value {
		body := r.doc.body()
		if body == nil {
			return goja.Null()
		}
		return r.elementObject(body)
	}, nil)
	r.accessor(document, "title", func() goja.Value {
		return vm.ToValue(r.doc.Title())
	}, nil)

	_ = document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		el := r.doc.ElementByID(call.Argument(0).String())
		if el == nil {
			return goja.Null()
		}
		return r.elementObject(el)
	})
	_ = document.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		el, err := r.doc.QuerySelector(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		if el == nil {
			return goja.Null()
		}
		return r.elementObject(el)
	})
	_ = document.Set("createElement", func(call goja.FunctionCall) goja.Value {
		return r.elementObject(r.doc.CreateElement(call.Argument(0).String()))
	})
	return document
}

// elementObject builds a JS proxy for el. The Go element rides along in a
// hidden property so proxies can be passed back into DOM methods.
func (r *ScriptRuntime) elementObject(el *Element) goja.Value {
	vm := r.vm
	obj := vm.NewObject()
	_ = obj.DefineDataProperty("__element", vm.ToValue(el), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	_ = obj.Set("tagName", strings.ToUpper(el.Tag()))

	r.accessor(obj, "id", func() goja.Value {
		return vm.ToValue(el.ID())
	}, func(v goja.Value) {
		el.SetAttribute("id", v.String())
	})
	r.accessor(obj, "className", func() goja.Value {
		return vm.ToValue(el.ClassName())
	}, func(v goja.Value) {
		el.SetClassName(v.String())
	})
	r.accessor(obj, "textContent", func() goja.Value {
		return vm.ToValue(el.Text())
	}, func(v goja.Value) {
		el.SetText(v.String())
	})
	r.accessor(obj, "childElementCount", func() goja.Value {
		return vm.ToValue(el.ChildCount())
	}, nil)

	_ = obj.Set("getAttribute", func(name string) string {
		return el.Attribute(name)
	})
	_ = obj.Set("setAttribute", func(name, value string) {
		el.SetAttribute(name, value)
	})
	_ = obj.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		child := r.unwrap(call.Argument(0))
		if err := el.AppendChild(child); err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return call.Argument(0)
	})
	_ = obj.Set("removeChild", func(call goja.FunctionCall) goja.Value {
		child := r.unwrap(call.Argument(0))
		if err := el.RemoveChild(child); err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return call.Argument(0)
	})

	style := vm.NewObject()
	_ = style.Set("setProperty", func(name, value string) {
		el.SetStyle(name, value)
	})
	_ = style.Set("getPropertyValue", func(name string) string {
		return el.Style(name)
	})
	_ = obj.Set("style", style)

	return obj
}

func (r *ScriptRuntime) unwrap(v goja.Value) *Element {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		panic(r.vm.NewTypeError("argument is not a node"))
	}
	hidden := v.ToObject(r.vm).Get("__element")
	if hidden == nil {
		panic(r.vm.NewTypeError("argument is not a node"))
	}
	el, ok := hidden.Export().(*Element)
	if !ok {
		panic(r.vm.NewTypeError("argument is not a node"))
	}
	return el
}

func (r *ScriptRuntime) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := r.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// exportValue converts goja value to Go value
func exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// IsInterrupted reports whether err came from a timeout or cancellation.
func IsInterrupted(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}
