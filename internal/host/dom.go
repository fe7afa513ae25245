package host

// Document mirrors the document surfaces the bootstrap needs.
type Document interface {
	// Body returns the body element, or false before the body exists.
	Body() (Element, bool)
	GetElementByID(id string) (Element, bool)
	NewMutationObserver(cb MutationCallback) MutationObserver
}

// Element is an element node. Child accessors only count element children.
type Element interface {
	ID() string
	ChildCount() int
	LastChild() (Element, bool)
	RemoveChild(child Element) error
	SetClassName(name string)
	ClassName() string
	SetText(text string)
	Text() string
	SetStyle(property, value string)
	Style(property string) string
}

// MutationType names the kind of a mutation record.
type MutationType string

const (
	MutationChildList  MutationType = "childList"
	MutationAttributes MutationType = "attributes"
)

// MutationRecord describes one DOM change.
type MutationRecord struct {
	Type    MutationType
	Target  Element
	Added   int
	Removed int
}

// MutationCallback receives one batch of records.
type MutationCallback func(records []MutationRecord)

// ObserveOptions selects which changes are delivered.
type ObserveOptions struct {
	ChildList  bool
	Attributes bool
}

// MutationObserver delivers batched DOM changes on the host loop.
type MutationObserver interface {
	Observe(target Element, opts ObserveOptions) error
	// Disconnect stops delivery, including records already queued.
	Disconnect()
}
