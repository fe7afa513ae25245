package hosttest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/GriffinCanCode/webboot/internal/host"
)

// Navigator is a fake navigator.
type Navigator struct {
	UA           string
	Workers      *ServiceWorkers
	IsStandalone bool
}

// UserAgent implements host.Navigator.
func (n *Navigator) UserAgent() string { return n.UA }

// ServiceWorker implements host.Navigator.
func (n *Navigator) ServiceWorker() (host.ServiceWorkerContainer, bool) {
	if n.Workers == nil {
		return nil, false
	}
	return n.Workers, true
}

// Standalone implements host.Navigator.
func (n *Navigator) Standalone() bool { return n.IsStandalone }

// ServiceWorkers is a fake worker container.
type ServiceWorkers struct {
	mu            sync.Mutex
	controller    *Worker
	RegisterErr   error
	registrations []*Registration
}

// SetController installs or clears the active controller.
func (s *ServiceWorkers) SetController(w *Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = w
}

// Register implements host.ServiceWorkerContainer.
func (s *ServiceWorkers) Register(ctx context.Context, scriptURL string) (host.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RegisterErr != nil {
		return nil, s.RegisterErr
	}
	reg := &Registration{scope: "/", script: scriptURL}
	s.registrations = append(s.registrations, reg)
	return reg, nil
}

// Controller implements host.ServiceWorkerContainer.
func (s *ServiceWorkers) Controller() (host.Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		return nil, false
	}
	return s.controller, true
}

// Registrations returns the registrations made so far.
func (s *ServiceWorkers) Registrations() []*Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Registration(nil), s.registrations...)
}

// Registration is a fake registration.
type Registration struct {
	mu         sync.Mutex
	scope      string
	script     string
	installing *Worker
	onUpdate   func()
}

// Scope implements host.Registration.
func (r *Registration) Scope() string { return r.scope }

// Installing implements host.Registration.
func (r *Registration) Installing() (host.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.installing == nil {
		return nil, false
	}
	return r.installing, true
}

// OnUpdateFound implements host.Registration.
func (r *Registration) OnUpdateFound(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = fn
}

// FoundUpdate sets a new installing worker and fires "updatefound".
func (r *Registration) FoundUpdate() *Worker {
	w := &Worker{script: r.script, state: host.WorkerInstalling}
	r.mu.Lock()
	r.installing = w
	fn := r.onUpdate
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
	return w
}

// Worker is a fake service worker.
type Worker struct {
	mu       sync.Mutex
	script   string
	state    host.WorkerState
	onChange func(host.WorkerState)
}

// NewWorker returns an activated worker, suitable as a controller.
func NewWorker(script string) *Worker {
	return &Worker{script: script, state: host.WorkerActivated}
}

// ScriptURL implements host.Worker.
func (w *Worker) ScriptURL() string { return w.script }

// State implements host.Worker.
func (w *Worker) State() host.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// OnStateChange implements host.Worker.
func (w *Worker) OnStateChange(fn func(host.WorkerState)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// SetState moves the worker to state and fires "statechange".
func (w *Worker) SetState(state host.WorkerState) {
	w.mu.Lock()
	w.state = state
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// Window is a fake window.
type Window struct {
	mu          sync.Mutex
	Media       map[string]bool
	onPrompt    func(host.InstallPromptEvent)
	onInstalled func()
}

// MatchMedia implements host.Window.
func (w *Window) MatchMedia(query string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Media[query]
}

// SetMedia sets the result of a media query.
func (w *Window) SetMedia(query string, matches bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Media == nil {
		w.Media = make(map[string]bool)
	}
	w.Media[query] = matches
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

// FireBeforeInstallPrompt dispatches a "beforeinstallprompt" event.
func (w *Window) FireBeforeInstallPrompt(ev host.InstallPromptEvent) {
	w.mu.Lock()
	fn := w.onPrompt
	w.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// FireAppInstalled dispatches an "appinstalled" event.
func (w *Window) FireAppInstalled() {
	w.mu.Lock()
	fn := w.onInstalled
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// PromptEvent is a fake install prompt handle. The user's choice is sent on
// Choices; a buffered channel lets tests answer before the prompt is awaited.
type PromptEvent struct {
	mu        sync.Mutex
	prevented bool
	prompts   int
	PromptErr error
	Choices   chan host.Choice
}

// NewPromptEvent returns a prompt event awaiting one choice.
func NewPromptEvent() *PromptEvent {
	return &PromptEvent{Choices: make(chan host.Choice, 1)}
}

// PreventDefault implements host.InstallPromptEvent.
func (p *PromptEvent) PreventDefault() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prevented = true
}

// Prevented reports whether PreventDefault was called.
func (p *PromptEvent) Prevented() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prevented
}

// Prompt implements host.InstallPromptEvent.
func (p *PromptEvent) Prompt(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts++
	return p.PromptErr
}

// Prompts reports how many times Prompt was called.
func (p *PromptEvent) Prompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

// UserChoice implements host.InstallPromptEvent.
func (p *PromptEvent) UserChoice(ctx context.Context) (host.Choice, error) {
	select {
	case c := <-p.Choices:
		return c, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Fetcher is a fake fetcher backed by a function.
type Fetcher struct {
	mu    sync.Mutex
	calls []string
	Fn    func(ctx context.Context, url string) (*host.Response, error)
}

// Fetch implements host.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*host.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.Fn == nil {
		return OKResponse(url, nil), nil
	}
	return f.Fn(ctx, url)
}

// Calls returns the fetched URLs.
func (f *Fetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// OKResponse builds a 200 response carrying body.
func OKResponse(url string, body []byte) *host.Response {
	return &host.Response{
		URL:    url,
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type":   []string{"application/wasm"},
			"Content-Length": []string{strconv.Itoa(len(body))},
		},
		Body: io.NopCloser(bytes.NewReader(body)),
	}
}

// WebAssembly is a fake buffered-only instantiator.
type WebAssembly struct {
	mu      sync.Mutex
	sources [][]byte
	Err     error
}

// Instantiate implements host.WebAssembly.
func (w *WebAssembly) Instantiate(ctx context.Context, source []byte, imports host.Imports) (host.Instance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sources = append(w.sources, source)
	if w.Err != nil {
		return nil, w.Err
	}
	return &Instance{Source: source, Imports: imports}, nil
}

// Sources returns the buffers instantiated so far.
func (w *WebAssembly) Sources() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.sources...)
}

// StreamingWebAssembly adds the native streaming capability.
type StreamingWebAssembly struct {
	WebAssembly
	streams int
}

// InstantiateStreaming implements host.StreamingInstantiator.
func (w *StreamingWebAssembly) InstantiateStreaming(ctx context.Context, resp *host.PendingResponse, imports host.Imports) (host.Instance, error) {
	r, err := resp.Await(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.streams++
	w.mu.Unlock()
	return w.Instantiate(ctx, data, imports)
}

// Streams reports how many streaming instantiations ran.
func (w *StreamingWebAssembly) Streams() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.streams
}

// Instance is the fake instance.
type Instance struct {
	Source  []byte
	Imports host.Imports
}

// Runtime is a fake module runtime counting Run calls.
type Runtime struct {
	mu   sync.Mutex
	runs []host.Instance
	Err  error
}

// ImportObject implements host.ModuleRuntime.
func (r *Runtime) ImportObject() host.Imports { return "fake-imports" }

// Run implements host.ModuleRuntime.
func (r *Runtime) Run(ctx context.Context, inst host.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, inst)
	return r.Err
}

// Runs returns the instances Run was called with.
func (r *Runtime) Runs() []host.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]host.Instance(nil), r.runs...)
}

// Host aggregates the fakes into a host.Host.
type Host struct {
	Nav  *Navigator
	Win  *Window
	Doc  *Document
	Wasm host.WebAssembly
	Net  *Fetcher
}

// NewHost returns a host with a body and the three loader elements.
func NewHost(ua string) *Host {
	doc := NewDocument()
	for _, id := range []string{"app-wasm-loader", "app-wasm-loader-icon", "app-wasm-loader-label"} {
		doc.CreateElement("div", id)
	}
	return &Host{
		Nav:  &Navigator{UA: ua},
		Win:  &Window{},
		Doc:  doc,
		Wasm: &WebAssembly{},
		Net:  &Fetcher{},
	}
}

// Navigator implements host.Host.
func (h *Host) Navigator() host.Navigator { return h.Nav }

// Window implements host.Host.
func (h *Host) Window() host.Window { return h.Win }

// Document implements host.Host.
func (h *Host) Document() host.Document { return h.Doc }

// WebAssembly implements host.Host.
func (h *Host) WebAssembly() host.WebAssembly { return h.Wasm }

// Fetcher implements host.Host.
func (h *Host) Fetcher() host.Fetcher { return h.Net }
