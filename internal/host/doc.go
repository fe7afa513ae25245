/*
Package host defines the browser surfaces the bootstrap runtime depends on.

# Overview

The bootstrap never touches a browser directly. Every capability it needs is
expressed here as a small interface so that the same orchestration code runs
against:

  - the real browser, through syscall/js (package jshost, GOOS=js)
  - the in-process headless browser (package headless)
  - test fakes (package hosttest)

# Capabilities

Optional capabilities are detected, not assumed:

  - Navigator.ServiceWorker reports false when worker registration is absent
  - WebAssembly may additionally implement StreamingInstantiator
  - Navigator.Standalone is false on platforms without the flag

Absent capabilities surface as ErrUnsupported where an error is needed.

# Threading

Host callbacks (mutation batches, worker state changes, install events) are
delivered on the host's event loop. Blocking operations take a context and
suspend only the calling goroutine.
*/
package host
