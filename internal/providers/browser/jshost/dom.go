//go:build js && wasm

package jshost

import (
	"errors"
	"sync"
	"syscall/js"

	"github.com/GriffinCanCode/webboot/internal/host"
)

const elementNode = 1

var errForeignElement = errors.New("element is not a browser element")

type document struct {
	v js.Value
}

func (d *document) Body() (host.Element, bool) {
	body := d.v.Get("body")
	if !present(body) {
		return nil, false
	}
	return &element{v: body}, true
}

func (d *document) GetElementByID(id string) (host.Element, bool) {
	el := d.v.Call("getElementById", id)
	if !present(el) {
		return nil, false
	}
	return &element{v: el}, true
}

func (d *document) NewMutationObserver(cb host.MutationCallback) host.MutationObserver {
	o := &observer{}
	o.fn = js.FuncOf(func(_ js.Value, args []js.Value) any {
		cb(convertRecords(arg(args, 0)))
		return nil
	})
	o.v = js.Global().Get("MutationObserver").New(o.fn)
	return o
}

func convertRecords(list js.Value) []host.MutationRecord {
	n := list.Length()
	records := make([]host.MutationRecord, 0, n)
	for i := 0; i < n; i++ {
		r := list.Index(i)
		records = append(records, host.MutationRecord{
			Type:    host.MutationType(r.Get("type").String()),
			Target:  &element{v: r.Get("target")},
			Added:   countElements(r.Get("addedNodes")),
			Removed: countElements(r.Get("removedNodes")),
		})
	}
	return records
}

func countElements(nodes js.Value) int {
	count := 0
	for i := 0; i < nodes.Length(); i++ {
		if nodes.Index(i).Get("nodeType").Int() == elementNode {
			count++
		}
	}
	return count
}

type observer struct {
	v  js.Value
	fn js.Func

	once sync.Once
}

func (o *observer) Observe(target host.Element, opts host.ObserveOptions) error {
	el, ok := target.(*element)
	if !ok {
		return errForeignElement
	}
	init := js.Global().Get("Object").New()
	init.Set("childList", opts.ChildList)
	init.Set("attributes", opts.Attributes)
	return try(func() { o.v.Call("observe", el.v, init) })
}

// Disconnect may run inside the observer's own callback; releasing a
// running js.Func is allowed.
func (o *observer) Disconnect() {
	o.once.Do(func() {
		o.v.Call("disconnect")
		o.fn.Release()
	})
}

type element struct {
	v js.Value
}

func (e *element) ID() string {
	return e.v.Get("id").String()
}

func (e *element) ChildCount() int {
	return e.v.Get("childElementCount").Int()
}

func (e *element) LastChild() (host.Element, bool) {
	last := e.v.Get("lastElementChild")
	if !present(last) {
		return nil, false
	}
	return &element{v: last}, true
}

func (e *element) RemoveChild(child host.Element) error {
	c, ok := child.(*element)
	if !ok {
		return errForeignElement
	}
	return try(func() { e.v.Call("removeChild", c.v) })
}

func (e *element) SetClassName(name string) {
	e.v.Set("className", name)
}

func (e *element) ClassName() string {
	return e.v.Get("className").String()
}

func (e *element) SetText(text string) {
	e.v.Set("textContent", text)
}

func (e *element) Text() string {
	return e.v.Get("textContent").String()
}

func (e *element) SetStyle(property, value string) {
	e.v.Get("style").Call("setProperty", property, value)
}

func (e *element) Style(property string) string {
	return e.v.Get("style").Call("getPropertyValue", property).String()
}
