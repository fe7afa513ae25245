//go:build js && wasm

package jshost

import (
	"context"
	"syscall/js"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webboot/internal/host"
)

var (
	_ host.Host                   = (*Host)(nil)
	_ host.Navigator              = (*navigator)(nil)
	_ host.Window                 = (*window)(nil)
	_ host.InstallPromptEvent     = (*promptEvent)(nil)
	_ host.Document               = (*document)(nil)
	_ host.Element                = (*element)(nil)
	_ host.MutationObserver       = (*observer)(nil)
	_ host.ServiceWorkerContainer = (*container)(nil)
	_ host.Registration           = (*registration)(nil)
	_ host.Worker                 = (*worker)(nil)
	_ host.Fetcher                = (*fetcher)(nil)
	_ host.WebAssembly            = (*webAssembly)(nil)
	_ host.StreamingInstantiator  = (*streamingWebAssembly)(nil)
	_ host.ModuleRuntime          = (*GoRuntime)(nil)
)

func TestAwaitResolved(t *testing.T) {
	p := js.Global().Get("Promise").Call("resolve", 42)
	v, err := await(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 42, v.Int())
}

func TestAwaitRejected(t *testing.T) {
	p := js.Global().Get("Promise").Call("reject", js.Global().Get("Error").New("denied"))
	_, err := await(context.Background(), p)
	assert.ErrorContains(t, err, "denied")
}

func TestAwaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	never := js.Global().Get("Promise").New(js.FuncOf(func(js.Value, []js.Value) any { return nil }))
	_, err := await(ctx, never)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTryCatchesThrow(t *testing.T) {
	err := try(func() { js.Global().Call("eval", "throw new Error('boom')") })
	assert.ErrorContains(t, err, "boom")
	assert.NoError(t, try(func() {}))
}

func TestValueHelpers(t *testing.T) {
	assert.False(t, present(js.Undefined()))
	assert.False(t, present(js.Null()))
	assert.True(t, present(js.ValueOf(0)))
	assert.True(t, isFunction(js.Global().Get("Promise")))
	assert.False(t, isFunction(js.ValueOf("x")))
	assert.True(t, arg(nil, 0).IsUndefined())
}
