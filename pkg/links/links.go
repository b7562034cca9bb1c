// Package links defines the named relation types that connect ideas.
//
// A Link is created once, never changes, and is looked up by name. Every
// link has an opposite: the same relation walked in the other direction.
// Undirected links are their own opposite. Stores persist links in their
// canonical (non-opposite) direction only and answer opposite lookups from a
// reverse index.
//
// Example Usage:
//
//	typeOf := links.MustGet("type_of")
//	typeOf.Transitive()         // true
//	typeOf.Opposite().Name()    // "type_of__"
//
//	knows, err := links.Create("knows", links.Undirected())
//	knows.Opposite() == knows   // true
package links

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Common errors
var (
	ErrLinkExists  = errors.New("link already exists")
	ErrInvalidName = errors.New("invalid link name")
)

// Link is a named, directed relation type.
type Link struct {
	name       string
	opposite   *Link
	transitive bool
	isOpposite bool
}

// Name returns the registered name of the link.
func (l *Link) Name() string { return l.name }

// Opposite returns the link walked in the reverse direction.
func (l *Link) Opposite() *Link { return l.opposite }

// Transitive reports whether the relation's closure should be followed.
func (l *Link) Transitive() bool { return l.transitive }

// IsOpposite reports whether l is the reverse half of a directed link.
func (l *Link) IsOpposite() bool { return l.isOpposite }

// IsUndirected reports whether the link is its own opposite.
func (l *Link) IsUndirected() bool { return l.opposite == l }

// Canonical returns the forward direction of the link.
func (l *Link) Canonical() *Link {
	if l.isOpposite {
		return l.opposite
	}
	return l
}

func (l *Link) String() string { return l.name }

// Option configures a link at creation time.
type Option func(*options)

type options struct {
	opposite   string
	transitive bool
	undirected bool
}

// WithOpposite names the reverse half (default: name + "__").
func WithOpposite(name string) Option {
	return func(o *options) { o.opposite = name }
}

// Transitive marks both halves of the link as transitive.
func Transitive() Option {
	return func(o *options) { o.transitive = true }
}

// Undirected makes the link its own opposite.
func Undirected() Option {
	return func(o *options) { o.undirected = true }
}

var (
	mu       sync.RWMutex
	registry = make(map[string]*Link)
)

// Create registers a new link and its opposite.
func Create(name string, opts ...Option) (*Link, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	o := options{opposite: name + "__"}
	for _, opt := range opts {
		opt(&o)
	}

	mu.Lock()
	defer mu.Unlock()

	if _, ok := registry[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLinkExists, name)
	}

	l := &Link{name: name, transitive: o.transitive}
	if o.undirected {
		l.opposite = l
		registry[name] = l
		return l, nil
	}

	if o.opposite == "" || o.opposite == name {
		return nil, fmt.Errorf("%w: opposite of %s", ErrInvalidName, name)
	}
	if _, ok := registry[o.opposite]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLinkExists, o.opposite)
	}

	opp := &Link{name: o.opposite, transitive: o.transitive, isOpposite: true, opposite: l}
	l.opposite = opp
	registry[name] = l
	registry[opp.name] = opp
	return l, nil
}

// Get returns the link registered under name, or nil.
func Get(name string) *Link {
	mu.RLock()
	defer mu.RUnlock()
	return registry[name]
}

// MustGet is like Get but panics for unknown names. Use it for built-ins.
func MustGet(name string) *Link {
	l := Get(name)
	if l == nil {
		panic("links: unknown link " + name)
	}
	return l
}

// Known reports whether l is a link from the registry.
func Known(l *Link) bool {
	if l == nil {
		return false
	}
	return Get(l.name) == l
}

// Names returns every registered link name, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	mustCreate("thought_description", WithOpposite("description_of"))
	mustCreate("property", WithOpposite("property_of"))
	mustCreate("type_of", Transitive())
	mustCreate("context", Undirected())
}

func mustCreate(name string, opts ...Option) {
	if _, err := Create(name, opts...); err != nil {
		panic(err)
	}
}
