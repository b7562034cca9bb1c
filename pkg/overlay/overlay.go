// Package overlay provides a copy-on-write layered map for cheap branching.
//
// An Overlay is a stack of layers. Reads check the local layer first and then
// walk the parent chain; writes only ever touch the local layer. Branching
// freezes the current local layer and shares it between both branches, so a
// branch costs O(1) instead of a deep copy of the map.
//
// Example Usage:
//
//	root := overlay.New[int, string](nil)
//	root.Set(1, "one")
//
//	branch := root.Branch()
//	branch.Set(1, "uno")
//
//	v, _ := root.Get(1)   // "one"
//	v, _ = branch.Get(1)  // "uno"
//
// ELI12:
//
// Think of a stack of transparent sheets on top of a drawing. You can draw on
// the top sheet without touching the ones underneath, and anyone looking down
// through the stack sees the top-most drawing for each spot. Branching means
// giving two people their own fresh top sheet over the same old stack.
//
// Thread Safety:
//
//	Overlay is NOT thread-safe. Frozen layers are never written after a
//	Branch, so two branches may be used from different goroutines, but a
//	single Overlay must not be shared without external locking.
package overlay

// MaxDepth is the parent chain length at which Branch flattens first.
//
// Lookups cost O(depth) in the worst case; past this depth the cost of a
// one-time flatten is smaller than the repeated walk.
const MaxDepth = 16

// slot is a stored value or a tombstone hiding an ancestor value.
type slot[V any] struct {
	value   V
	deleted bool
}

// layer is one frozen or local level of the chain.
type layer[K comparable, V any] struct {
	data   map[K]slot[V]
	parent *layer[K, V]
	depth  int
}

// Overlay is a copy-on-write key/value store with parent fallback.
type Overlay[K comparable, V any] struct {
	local *layer[K, V]
}

// New creates an empty overlay. If parent is non-nil its current contents
// become the fallback for reads; parent is branched so later writes to it
// are not visible through the new overlay.
func New[K comparable, V any](parent *Overlay[K, V]) *Overlay[K, V] {
	if parent == nil {
		return &Overlay[K, V]{local: &layer[K, V]{data: make(map[K]slot[V])}}
	}
	return parent.Branch()
}

// Get returns the value for k from the closest layer that defines it.
func (o *Overlay[K, V]) Get(k K) (V, bool) {
	for l := o.local; l != nil; l = l.parent {
		if s, ok := l.data[k]; ok {
			if s.deleted {
				break
			}
			return s.value, true
		}
	}
	var zero V
	return zero, false
}

// Has reports whether k resolves to a value.
func (o *Overlay[K, V]) Has(k K) bool {
	_, ok := o.Get(k)
	return ok
}

// Set stores v for k in the local layer.
func (o *Overlay[K, V]) Set(k K, v V) {
	o.local.data[k] = slot[V]{value: v}
}

// Delete hides k in this overlay. Ancestor layers are not modified.
func (o *Overlay[K, V]) Delete(k K) {
	if o.local.parent == nil {
		delete(o.local.data, k)
		return
	}
	o.local.data[k] = slot[V]{deleted: true}
}

// Branch returns an independent overlay sharing the current contents.
//
// The receiver's local layer is frozen and becomes the parent of both the
// receiver and the returned overlay. Neither can observe the other's
// subsequent writes.
func (o *Overlay[K, V]) Branch() *Overlay[K, V] {
	if o.local.depth >= MaxDepth {
		o.Flatten()
	}
	frozen := o.local
	o.local = &layer[K, V]{data: make(map[K]slot[V]), parent: frozen, depth: frozen.depth + 1}
	return &Overlay[K, V]{local: &layer[K, V]{data: make(map[K]slot[V]), parent: frozen, depth: frozen.depth + 1}}
}

// Flatten collapses the whole chain into a single local layer with no
// parent. The most specific layer wins for each key; tombstones are dropped.
func (o *Overlay[K, V]) Flatten() {
	merged := make(map[K]slot[V])
	o.collect(func(k K, v V) {
		merged[k] = slot[V]{value: v}
	})
	o.local = &layer[K, V]{data: merged}
}

// Depth returns the number of parent layers below the local one.
func (o *Overlay[K, V]) Depth() int {
	return o.local.depth
}

// Parentless reports whether the overlay has no parent chain.
func (o *Overlay[K, V]) Parentless() bool {
	return o.local.parent == nil
}

// LocalLen returns the number of entries (tombstones included) stored in the
// local layer only.
func (o *Overlay[K, V]) LocalLen() int {
	return len(o.local.data)
}

// Snapshot returns the effective contents as a plain map.
func (o *Overlay[K, V]) Snapshot() map[K]V {
	out := make(map[K]V)
	o.collect(func(k K, v V) {
		out[k] = v
	})
	return out
}

// Keys returns every key that currently resolves to a value, in no
// particular order.
func (o *Overlay[K, V]) Keys() []K {
	var keys []K
	o.collect(func(k K, _ V) {
		keys = append(keys, k)
	})
	return keys
}

// Len returns the number of keys that resolve to a value.
func (o *Overlay[K, V]) Len() int {
	n := 0
	o.collect(func(K, V) { n++ })
	return n
}

// collect visits each visible key once with its effective value.
func (o *Overlay[K, V]) collect(fn func(k K, v V)) {
	seen := make(map[K]struct{})
	for l := o.local; l != nil; l = l.parent {
		for k, s := range l.data {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			if !s.deleted {
				fn(k, s.value)
			}
		}
	}
}
