package host

import "context"

// WorkerState is a service worker lifecycle state.
type WorkerState string

const (
	WorkerInstalling WorkerState = "installing"
	WorkerInstalled  WorkerState = "installed"
	WorkerActivating WorkerState = "activating"
	WorkerActivated  WorkerState = "activated"
	WorkerRedundant  WorkerState = "redundant"
)

// ServiceWorkerContainer mirrors navigator.serviceWorker.
type ServiceWorkerContainer interface {
	Register(ctx context.Context, scriptURL string) (Registration, error)
	// Controller reports whether a worker currently controls the page.
	Controller() (Worker, bool)
}

// Registration mirrors ServiceWorkerRegistration.
type Registration interface {
	Scope() string
	Installing() (Worker, bool)
	// OnUpdateFound sets the single "updatefound" handler.
	OnUpdateFound(fn func())
}

// Worker mirrors a ServiceWorker.
type Worker interface {
	ScriptURL() string
	State() WorkerState
	// OnStateChange sets the single "statechange" handler.
	OnStateChange(fn func(WorkerState))
}
