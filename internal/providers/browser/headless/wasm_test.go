package headless

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webboot/internal/bootstrap/env"
	"github.com/GriffinCanCode/webboot/internal/host"
)

var (
	wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// (func (export "_start"))
	testModuleStart = concat(wasmHeader,
		[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
		[]byte{0x03, 0x02, 0x01, 0x00},
		[]byte{0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00},
		[]byte{0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b},
	)

	// (func (export "_start") unreachable)
	testModuleTrap = concat(wasmHeader,
		[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
		[]byte{0x03, 0x02, 0x01, 0x00},
		[]byte{0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00},
		[]byte{0x0a, 0x05, 0x01, 0x03, 0x00, 0x00, 0x0b},
	)

	// (import "env" "f" (func))
	testModuleForeignImport = concat(wasmHeader,
		[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
		[]byte{0x02, 0x09, 0x01, 0x03, 'e', 'n', 'v', 0x01, 'f', 0x00, 0x00},
	)
)

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func newTestWASM(t *testing.T) *WebAssembly {
	t.Helper()
	ctx := context.Background()
	wasm, err := NewWebAssembly(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wasm.Close(ctx) })
	return wasm
}

func TestInstantiateAndRun(t *testing.T) {
	ctx := context.Background()
	wasm := newTestWASM(t)
	runtime := NewWASIRuntime(wasm, env.New(map[string]string{"API_URL": "https://api.test"}), []string{"app"}, nil, nil, nil)

	inst, err := wasm.Instantiate(ctx, testModuleStart, runtime.ImportObject())
	require.NoError(t, err)
	assert.Equal(t, []string{"_start"}, inst.(*Module).Exports())

	require.NoError(t, runtime.Run(ctx, inst))
	// Each run gets a fresh instance.
	require.NoError(t, runtime.Run(ctx, inst))
}

func TestInstantiateFailures(t *testing.T) {
	ctx := context.Background()
	wasm := newTestWASM(t)
	imports := (&WASIRuntime{}).ImportObject()

	tests := []struct {
		name   string
		source []byte
		errMsg string
	}{
		{"not wasm", []byte("<!DOCTYPE html>"), "compile error"},
		{"truncated", wasmHeader[:4], "compile error"},
		{"missing import", testModuleForeignImport, "link error: import env.f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.Instantiate(ctx, tt.source, imports)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestRunTrap(t *testing.T) {
	ctx := context.Background()
	wasm := newTestWASM(t)
	runtime := NewWASIRuntime(wasm, nil, nil, nil, nil, nil)

	inst, err := wasm.Instantiate(ctx, testModuleTrap, runtime.ImportObject())
	require.NoError(t, err)
	assert.ErrorContains(t, runtime.Run(ctx, inst), "module run failed")
}

func TestRunRejectsForeignInstance(t *testing.T) {
	runtime := NewWASIRuntime(newTestWASM(t), nil, nil, nil, nil, nil)
	assert.Error(t, runtime.Run(context.Background(), "not a module"))
}

func TestInstantiateStreaming(t *testing.T) {
	ctx := context.Background()
	streaming := &StreamingWebAssembly{WebAssembly: newTestWASM(t)}
	imports := (&WASIRuntime{}).ImportObject()

	respond := func(status int, contentType string, body []byte) *host.PendingResponse {
		header := http.Header{}
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		return host.Resolved(&host.Response{
			URL:    "file:///app.wasm",
			Status: status,
			Header: header,
			Body:   io.NopCloser(bytes.NewReader(body)),
		}, nil)
	}

	inst, err := streaming.InstantiateStreaming(ctx, respond(200, "application/wasm", testModuleStart), imports)
	require.NoError(t, err)
	assert.NotNil(t, inst)

	_, err = streaming.InstantiateStreaming(ctx, respond(200, "application/octet-stream", testModuleStart), imports)
	assert.ErrorIs(t, err, ErrIncorrectMIME)

	_, err = streaming.InstantiateStreaming(ctx, respond(404, "text/html", []byte("missing")), imports)
	assert.ErrorContains(t, err, "HTTP status 404")

	_, err = streaming.InstantiateStreaming(ctx, host.Resolved(nil, io.ErrUnexpectedEOF), imports)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestImportObjectProvides(t *testing.T) {
	var nilObj *ImportObject
	assert.False(t, nilObj.Provides(WASIModuleName))

	obj := &ImportObject{Modules: []string{WASIModuleName}}
	assert.True(t, obj.Provides("wasi_snapshot_preview1"))
	assert.False(t, obj.Provides("env"))
	assert.True(t, strings.HasPrefix(WASIModuleName, "wasi"))
}
