package host

import (
	"context"
	"fmt"
	"sync"
)

// Imports is the host specific import object handed to instantiation.
type Imports any

// Instance is an instantiated binary module.
type Instance any

// WebAssembly is the always-present buffered instantiation primitive.
type WebAssembly interface {
	Instantiate(ctx context.Context, source []byte, imports Imports) (Instance, error)
}

// StreamingInstantiator is the optional native streaming capability. Hosts
// that implement it consume the response body as bytes arrive.
type StreamingInstantiator interface {
	InstantiateStreaming(ctx context.Context, resp *PendingResponse, imports Imports) (Instance, error)
}

// ModuleRuntime is the runtime object a module is started with.
type ModuleRuntime interface {
	ImportObject() Imports
	Run(ctx context.Context, inst Instance) error
}

// PendingResponse is a fetch that started before instantiation asked for it.
type PendingResponse struct {
	done chan struct{}
	once sync.Once
	resp *Response
	err  error
}

// StartFetch begins fetching url in the background.
func StartFetch(ctx context.Context, f Fetcher, url string) *PendingResponse {
	p := &PendingResponse{done: make(chan struct{})}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.resolve(nil, fmt.Errorf("fetch %s panicked: %v", url, r))
			}
		}()
		resp, err := f.Fetch(ctx, url)
		p.resolve(resp, err)
	}()
	return p
}

// Resolved returns an already settled PendingResponse.
func Resolved(resp *Response, err error) *PendingResponse {
	p := &PendingResponse{done: make(chan struct{})}
	p.resolve(resp, err)
	return p
}

func (p *PendingResponse) resolve(resp *Response, err error) {
	p.once.Do(func() {
		p.resp, p.err = resp, err
		close(p.done)
	})
}

// Settled returns the response without blocking. ok is false while the
// fetch is in flight; resp is nil when the fetch failed.
func (p *PendingResponse) Settled() (resp *Response, ok bool) {
	select {
	case <-p.done:
		return p.resp, true
	default:
		return nil, false
	}
}

// Discard closes the response body once the fetch settles. Use it when the
// consumer gave up before the response arrived.
func (p *PendingResponse) Discard() {
	go func() {
		<-p.done
		if p.resp != nil && p.resp.Body != nil {
			_ = p.resp.Body.Close()
		}
	}()
}

// Await blocks until the fetch settles or ctx is done.
func (p *PendingResponse) Await(ctx context.Context) (*Response, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
