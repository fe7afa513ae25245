package headless

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/GriffinCanCode/webboot/internal/host"
)

var (
	// ErrNotChild is returned by RemoveChild for a node with another parent.
	ErrNotChild = errors.New("node is not a child of this element")
	// ErrForeignElement is returned for elements created by another document.
	ErrForeignElement = errors.New("element belongs to another document")
)

// Document is a parsed page. All tree access goes through mu; observer
// callbacks run on the loop with mu released.
type Document struct {
	loop   *Loop
	logger *zap.Logger

	mu        sync.Mutex
	root      *html.Node
	observers []*Observer
	scheduled bool
}

// ParseDocument parses an HTML page.
func ParseDocument(r io.Reader, loop *Loop, logger *zap.Logger) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Document{loop: loop, logger: logger.Named("dom"), root: root}, nil
}

// Body implements host.Document. Frameset pages have no body.
func (d *Document) Body() (host.Element, bool) {
	el := d.body()
	if el == nil {
		return nil, false
	}
	return el, true
}

func (d *Document) body() *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := htmlquery.FindOne(d.root, "//body")
	if n == nil {
		return nil
	}
	return d.wrap(n)
}

// GetElementByID implements host.Document.
func (d *Document) GetElementByID(id string) (host.Element, bool) {
	el := d.ElementByID(id)
	if el == nil {
		return nil, false
	}
	return el, true
}

// ElementByID returns the concrete element with id, or nil.
func (d *Document) ElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := htmlquery.FindOne(d.root, fmt.Sprintf("//*[@id=%s]", xpathLiteral(id)))
	if n == nil {
		return nil
	}
	return d.wrap(n)
}

// QuerySelector returns the first element matching a CSS selector, or nil.
func (d *Document) QuerySelector(selector string) (*Element, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := goquery.NewDocumentFromNode(d.root).FindMatcher(matcher).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return d.wrap(sel.Get(0)), nil
}

// CreateElement returns a detached element.
func (d *Document) CreateElement(tag string) *Element {
	tag = strings.ToLower(tag)
	return d.wrap(&html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	})
}

// Title returns the page title text.
func (d *Document) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.TrimSpace(goquery.NewDocumentFromNode(d.root).Find("title").First().Text())
}

// InlineScripts returns the source of every script element without a src
// attribute, in document order.
func (d *Document) InlineScripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	goquery.NewDocumentFromNode(d.root).Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if typ, ok := s.Attr("type"); ok && typ != "" && typ != "text/javascript" && typ != "module" {
			return
		}
		out = append(out, s.Text())
	})
	return out
}

// Render serializes the current tree.
func (d *Document) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return buf.String(), nil
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

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{doc: d, node: n}
}

// record queues a mutation for every interested observer and schedules one
// delivery task. Callers hold mu.
func (d *Document) record(target *html.Node, typ host.MutationType, added, removed int) {
	queued := false
	for _, obs := range d.observers {
		if obs.target != target {
			continue
		}
		if typ == host.MutationChildList && !obs.opts.ChildList {
			continue
		}
		if typ == host.MutationAttributes && !obs.opts.Attributes {
			continue
		}
		obs.pending = append(obs.pending, host.MutationRecord{
			Type:    typ,
			Target:  d.wrap(target),
			Added:   added,
			Removed: removed,
		})
		queued = true
	}
	if !queued || d.scheduled {
		return
	}
	d.scheduled = true
	if err := d.loop.Post(d.deliver); err != nil {
		d.scheduled = false
		d.logger.Debug("dropping mutation records", zap.Error(err))
	}
}

// deliver hands each observer its batch. Records produced by callbacks are
// delivered by a later task.
func (d *Document) deliver() {
	type batch struct {
		obs     *Observer
		records []host.MutationRecord
	}

	d.mu.Lock()
	d.scheduled = false
	var batches []batch
	for _, obs := range d.observers {
		if len(obs.pending) == 0 {
			continue
		}
		batches = append(batches, batch{obs: obs, records: obs.pending})
		obs.pending = nil
	}
	d.mu.Unlock()

	for _, b := range batches {
		if !b.obs.connected() {
			continue
		}
		b.obs.cb(b.records)
	}
}

// Observer is a mutation observer bound to one target.
type Observer struct {
	doc *Document
	cb  host.MutationCallback

	// guarded by doc.mu
	target  *html.Node
	opts    host.ObserveOptions
	pending []host.MutationRecord
	active  bool
}

// Observe implements host.MutationObserver.
func (o *Observer) Observe(target host.Element, opts host.ObserveOptions) error {
	el, ok := target.(*Element)
	if !ok || el.doc != o.doc {
		return ErrForeignElement
	}
	if !opts.ChildList && !opts.Attributes {
		return errors.New("observe options select no mutations")
	}

	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	o.target = el.node
	o.opts = opts
	if !o.active {
		o.active = true
		o.doc.observers = append(o.doc.observers, o)
	}
	return nil
}

// Disconnect implements host.MutationObserver. Queued records are dropped.
func (o *Observer) Disconnect() {
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	if !o.active {
		return
	}
	o.active = false
	o.pending = nil
	for i, obs := range o.doc.observers {
		if obs == o {
			o.doc.observers = append(o.doc.observers[:i], o.doc.observers[i+1:]...)
			break
		}
	}
}

func (o *Observer) connected() bool {
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	return o.active
}

// Element wraps an html.Node. Two Elements are the same node when their
// Node pointers match.
type Element struct {
	doc  *Document
	node *html.Node
}

// Node returns the underlying node.
func (e *Element) Node() *html.Node {
	return e.node
}

// Tag returns the lower-case tag name.
func (e *Element) Tag() string {
	return e.node.Data
}

// ID implements host.Element.
func (e *Element) ID() string {
	return e.Attribute("id")
}

// Attribute returns an attribute value, or "".
func (e *Element) Attribute(name string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, name)
}

// SetAttribute sets an attribute and records an attribute mutation.
func (e *Element) SetAttribute(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.node, name, value)
	e.doc.record(e.node, host.MutationAttributes, 0, 0)
}

// ChildCount implements host.Element.
func (e *Element) ChildCount() int {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	count := 0
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			count++
		}
	}
	return count
}

// LastChild implements host.Element.
func (e *Element) LastChild() (host.Element, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for c := e.node.LastChild; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode {
			return e.doc.wrap(c), true
		}
	}
	return nil, false
}

// AppendChild moves child to the end of e's children.
func (e *Element) AppendChild(child *Element) error {
	if child.doc != e.doc {
		return ErrForeignElement
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for p := e.node; p != nil; p = p.Parent {
		if p == child.node {
			return errors.New("cannot append an ancestor")
		}
	}
	if old := child.node.Parent; old != nil {
		old.RemoveChild(child.node)
		e.doc.record(old, host.MutationChildList, 0, 1)
	}
	e.node.AppendChild(child.node)
	e.doc.record(e.node, host.MutationChildList, 1, 0)
	return nil
}

// RemoveChild implements host.Element.
func (e *Element) RemoveChild(child host.Element) error {
	c, ok := child.(*Element)
	if !ok || c.doc != e.doc {
		return ErrForeignElement
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if c.node.Parent != e.node {
		return ErrNotChild
	}
	e.node.RemoveChild(c.node)
	e.doc.record(e.node, host.MutationChildList, 0, 1)
	return nil
}

// SetClassName implements host.Element.
func (e *Element) SetClassName(name string) {
	e.SetAttribute("class", name)
}

// ClassName implements host.Element.
func (e *Element) ClassName() string {
	return e.Attribute("class")
}

// SetText implements host.Element. All children are replaced by one text
// node.
func (e *Element) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	removed := 0
	for c := e.node.FirstChild; c != nil; c = e.node.FirstChild {
		e.node.RemoveChild(c)
		removed++
	}
	added := 0
	if text != "" {
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		added = 1
	}
	if added > 0 || removed > 0 {
		e.doc.record(e.node, host.MutationChildList, added, removed)
	}
}

// Text implements host.Element.
func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return goquery.NewDocumentFromNode(e.node).Text()
}

// SetStyle implements host.Element. An empty value removes the property.
func (e *Element) SetStyle(property, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	styles := parseStyle(attr(e.node, "style"))
	if value == "" {
		delete(styles, property)
	} else {
		styles[property] = value
	}
	setAttr(e.node, "style", formatStyle(styles))
	e.doc.record(e.node, host.MutationAttributes, 0, 0)
}

// Style implements host.Element.
func (e *Element) Style(property string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return parseStyle(attr(e.node, "style"))[property]
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func parseStyle(s string) map[string]string {
	styles := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		styles[prop] = strings.TrimSpace(val)
	}
	return styles
}

func formatStyle(styles map[string]string) string {
	props := make([]string, 0, len(styles))
	for p := range styles {
		props = append(props, p)
	}
	sort.Strings(props)
	var b strings.Builder
	for i, p := range props {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p)
		b.WriteString(": ")
		b.WriteString(styles[p])
		b.WriteString(";")
	}
	return b.String()
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
