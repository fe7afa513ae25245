// Package jshost binds the host interfaces to a real browser through
// syscall/js. It only builds for GOOS=js GOARCH=wasm.
//
// Promises are awaited from goroutines, never from inside a js.Func, since
// blocking in a JS callback deadlocks the browser event loop. Callbacks the
// bootstrap registers (mutation batches, worker state changes, install
// events) are invoked directly from the JS event and must not block.
package jshost
