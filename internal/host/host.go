package host

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ErrUnsupported reports that the host lacks a capability (worker
// registration, streaming instantiation, standalone detection).
var ErrUnsupported = errors.New("capability not supported by host")

// Host bundles the browser surfaces the bootstrap talks to.
type Host interface {
	Navigator() Navigator
	Window() Window
	Document() Document
	WebAssembly() WebAssembly
	Fetcher() Fetcher
}

// Navigator mirrors the parts of window.navigator the bootstrap reads.
type Navigator interface {
	UserAgent() string
	// ServiceWorker returns the worker container, or false when the host
	// has no worker registration capability.
	ServiceWorker() (ServiceWorkerContainer, bool)
	// Standalone is the platform specific standalone flag (navigator.standalone).
	Standalone() bool
}

// Window mirrors window event and media query surfaces.
type Window interface {
	MatchMedia(query string) bool
	OnBeforeInstallPrompt(fn func(InstallPromptEvent))
	OnAppInstalled(fn func())
}

// Choice is the user's answer to an install prompt.
type Choice string

const (
	ChoiceAccepted  Choice = "accepted"
	ChoiceDismissed Choice = "dismissed"
)

// InstallPromptEvent is the one-shot handle delivered with
// "beforeinstallprompt".
type InstallPromptEvent interface {
	PreventDefault()
	Prompt(ctx context.Context) error
	UserChoice(ctx context.Context) (Choice, error)
}

// Fetcher performs network fetches.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Response is a fetched resource. Body is streamed; callers close it.
type Response struct {
	URL    string
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}
