//go:build js && wasm

package jshost

import (
	"context"
	"fmt"
	"syscall/js"
)

type settled struct {
	value js.Value
	err   error
}

// await blocks the calling goroutine until promise settles or ctx is done.
func await(ctx context.Context, promise js.Value) (js.Value, error) {
	ch := make(chan settled, 1)

	var then, catch js.Func
	then = js.FuncOf(func(_ js.Value, args []js.Value) any {
		ch <- settled{value: arg(args, 0)}
		return nil
	})
	catch = js.FuncOf(func(_ js.Value, args []js.Value) any {
		ch <- settled{err: js.Error{Value: arg(args, 0)}}
		return nil
	})
	release := func() {
		then.Release()
		catch.Release()
	}

	if err := try(func() { promise.Call("then", then, catch) }); err != nil {
		release()
		return js.Undefined(), err
	}

	select {
	case r := <-ch:
		release()
		return r.value, r.err
	case <-ctx.Done():
		// The callbacks stay alive until the promise settles.
		go func() {
			<-ch
			release()
		}()
		return js.Undefined(), ctx.Err()
	}
}

// try converts a thrown JS exception into an error.
func try(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if jsErr, ok := r.(js.Error); ok {
				err = jsErr
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}

func arg(args []js.Value, i int) js.Value {
	if i < len(args) {
		return args[i]
	}
	return js.Undefined()
}

func present(v js.Value) bool {
	return !v.IsUndefined() && !v.IsNull()
}

func isFunction(v js.Value) bool {
	return v.Type() == js.TypeFunction
}
