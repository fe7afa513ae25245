package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
)

// ErrNotWasm is returned by the buffered strategy when the fetched body is
// not a WebAssembly binary.
var ErrNotWasm = errors.New("response is not a wasm binary")

const wasmMIME = "application/wasm"

// Strategy turns a pending module response into an instance.
type Strategy interface {
	Name() string
	Instantiate(ctx context.Context, resp *host.PendingResponse, imports host.Imports) (host.Instance, error)
}

// SelectStrategy picks native streaming when the host supports it and the
// buffered fallback otherwise.
func SelectStrategy(wasm host.WebAssembly, metrics *monitoring.Metrics) Strategy {
	if s, ok := wasm.(host.StreamingInstantiator); ok {
		return &Streaming{native: s, metrics: metrics}
	}
	return &Buffered{wasm: wasm, metrics: metrics}
}

// Streaming hands the pending response to the host's native streaming
// instantiation. The body never passes through Go, so the module size is
// taken from Content-Length when the response carries one.
type Streaming struct {
	native  host.StreamingInstantiator
	metrics *monitoring.Metrics
}

func (s *Streaming) Name() string { return "streaming" }

func (s *Streaming) Instantiate(ctx context.Context, pending *host.PendingResponse, imports host.Imports) (host.Instance, error) {
	inst, err := s.native.InstantiateStreaming(ctx, pending, imports)
	if err != nil {
		return nil, err
	}
	if resp, ok := pending.Settled(); ok && resp != nil && resp.Header != nil {
		if n, perr := strconv.Atoi(resp.Header.Get("Content-Length")); perr == nil && n >= 0 {
			s.metrics.RecordModuleBytes(n)
		}
	}
	return inst, nil
}

// Buffered awaits the response, reads the whole body and instantiates from
// the buffer.
type Buffered struct {
	wasm    host.WebAssembly
	metrics *monitoring.Metrics
}

func (b *Buffered) Name() string { return "buffered" }

func (b *Buffered) Instantiate(ctx context.Context, pending *host.PendingResponse, imports host.Imports) (host.Instance, error) {
	resp, err := pending.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			pending.Discard()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if !resp.OK() {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.Status, resp.URL)
	}

	source, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", resp.URL, err)
	}
	b.metrics.RecordModuleBytes(len(source))

	if mt := mimetype.Detect(source); !mt.Is(wasmMIME) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotWasm, resp.URL, mt.String())
	}

	return b.wasm.Instantiate(ctx, source, imports)
}
