// Package hosttest provides in-memory fakes of the host interfaces with
// manual event delivery, for unit tests of the bootstrap components.
package hosttest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/webboot/internal/host"
)

var errNotChild = errors.New("node is not a child")

// Document is a fake document. Mutation records queue until Flush.
type Document struct {
	mu        sync.Mutex
	body      *Element
	byID      map[string]*Element
	observers []*Observer
	pending   []pendingRecord
}

type pendingRecord struct {
	obs *Observer
	rec host.MutationRecord
}

// NewDocument returns a document with an empty body.
func NewDocument() *Document {
	d := &Document{byID: make(map[string]*Element)}
	d.body = &Element{doc: d, id: "", tag: "body", style: map[string]string{}}
	return d
}

// NewDocumentWithoutBody returns a document whose Body lookup fails.
func NewDocumentWithoutBody() *Document {
	return &Document{byID: make(map[string]*Element)}
}

// Body implements host.Document.
func (d *Document) Body() (host.Element, bool) {
	if d.body == nil {
		return nil, false
	}
	return d.body, true
}

// BodyElement returns the concrete body.
func (d *Document) BodyElement() *Element {
	return d.body
}

// GetElementByID implements host.Document.
func (d *Document) GetElementByID(id string) (host.Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	return el, true
}

// Element returns the concrete element with id, or nil.
func (d *Document) Element(id string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID[id]
}

// CreateElement returns a detached element; ids are indexed on creation.
func (d *Document) CreateElement(tag, id string) *Element {
	el := &Element{doc: d, tag: tag, id: id, style: map[string]string{}}
	if id != "" {
		d.mu.Lock()
		d.byID[id] = el
		d.mu.Unlock()
	}
	return el
}

// NewMutationObserver implements host.Document.
func (d *Document) NewMutationObserver(cb host.MutationCallback) host.MutationObserver {
	return &Observer{doc: d, cb: cb}
}

// ObserverCount reports observers currently observing.
func (d *Document) ObserverCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

// Flush delivers queued records, one batch per observer, until none remain.
// Records produced by callbacks are delivered in later rounds.
func (d *Document) Flush() {
	for {
		d.mu.Lock()
		queued := d.pending
		d.pending = nil
		d.mu.Unlock()
		if len(queued) == 0 {
			return
		}

		var order []*Observer
		batches := make(map[*Observer][]host.MutationRecord)
		for _, p := range queued {
			if _, seen := batches[p.obs]; !seen {
				order = append(order, p.obs)
			}
			batches[p.obs] = append(batches[p.obs], p.rec)
		}
		for _, obs := range order {
			if !obs.active() {
				continue
			}
			obs.cb(batches[obs])
		}
	}
}

func (d *Document) record(target *Element, added, removed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := host.MutationRecord{Type: host.MutationChildList, Target: target, Added: added, Removed: removed}
	for _, obs := range d.observers {
		if obs.target == target && obs.opts.ChildList {
			d.pending = append(d.pending, pendingRecord{obs: obs, rec: rec})
		}
	}
}

// Observer is a fake mutation observer.
type Observer struct {
	doc    *Document
	cb     host.MutationCallback
	target *Element
	opts   host.ObserveOptions
}

// Observe implements host.MutationObserver.
func (o *Observer) Observe(target host.Element, opts host.ObserveOptions) error {
	el, ok := target.(*Element)
	if !ok {
		return fmt.Errorf("unsupported element type %T", target)
	}
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	o.target = el
	o.opts = opts
	for _, existing := range o.doc.observers {
		if existing == o {
			return nil
		}
	}
	o.doc.observers = append(o.doc.observers, o)
	return nil
}

// Disconnect implements host.MutationObserver.
func (o *Observer) Disconnect() {
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	kept := o.doc.observers[:0]
	for _, existing := range o.doc.observers {
		if existing != o {
			kept = append(kept, existing)
		}
	}
	o.doc.observers = kept
	pending := o.doc.pending[:0]
	for _, p := range o.doc.pending {
		if p.obs != o {
			pending = append(pending, p)
		}
	}
	o.doc.pending = pending
}

func (o *Observer) active() bool {
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	for _, existing := range o.doc.observers {
		if existing == o {
			return true
		}
	}
	return false
}

// Element is a fake element.
type Element struct {
	doc      *Document
	mu       sync.Mutex
	tag      string
	id       string
	class    string
	text     string
	style    map[string]string
	children []*Element
}

// AppendChild appends child and queues a childList record.
func (e *Element) AppendChild(child *Element) {
	e.mu.Lock()
	e.children = append(e.children, child)
	e.mu.Unlock()
	e.doc.record(e, 1, 0)
}

// Children returns a copy of the element children.
func (e *Element) Children() []*Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Element(nil), e.children...)
}

// Tag returns the element tag.
func (e *Element) Tag() string { return e.tag }

// ID implements host.Element.
func (e *Element) ID() string { return e.id }

// ChildCount implements host.Element.
func (e *Element) ChildCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.children)
}

// LastChild implements host.Element.
func (e *Element) LastChild() (host.Element, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.children) == 0 {
		return nil, false
	}
	return e.children[len(e.children)-1], true
}

// RemoveChild implements host.Element.
func (e *Element) RemoveChild(child host.Element) error {
	e.mu.Lock()
	idx := -1
	for i, c := range e.children {
		if host.Element(c) == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return errNotChild
	}
	e.children = append(e.children[:idx], e.children[idx+1:]...)
	e.mu.Unlock()
	e.doc.record(e, 0, 1)
	return nil
}

// SetClassName implements host.Element.
func (e *Element) SetClassName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.class = name
}

// ClassName implements host.Element.
func (e *Element) ClassName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.class
}

// SetText implements host.Element.
func (e *Element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

// Text implements host.Element.
func (e *Element) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// SetStyle implements host.Element.
func (e *Element) SetStyle(property, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.style[property] = value
}

// Style implements host.Element.
func (e *Element) Style(property string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.style[property]
}
