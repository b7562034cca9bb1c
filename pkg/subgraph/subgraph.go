// Package subgraph implements pattern graphs over an idea store.
//
// A Subgraph is a small pattern: vertices carry a Matcher and match data,
// edges carry a link between two vertices. Vertices become "bound" when they
// are pinned to a concrete idea in the store. A Subgraph whose every vertex
// is bound is concrete.
//
// Three operations work on subgraphs:
//
//   - Search finds every way to bind the unbound vertices of a pattern
//     against the store.
//   - Match maps an inner pattern onto an outer concrete subgraph.
//   - Rewrite applies a batch of data and endpoint replacements, either to a
//     copy or through to the store.
//
// Subgraphs are built from copy-on-write overlays, so Copy is O(1) and search
// can branch freely.
//
// Example Usage:
//
//	sg := subgraph.New(engine)
//	shape, _ := sg.AddVertex(subgraph.MatchFiller, nil, subgraph.VertexOptions{})
//	rect, _ := sg.AddVertex(subgraph.MatchID, rectID, subgraph.VertexOptions{})
//	sg.AddEdge(shape, rect, links.MustGet("type_of"), subgraph.EdgeOptions{})
//
//	results, err := subgraph.Search(ctx, sg)
//	// every result is concrete; results[i].GetIdea(shape) is a rectangle
//
// Thread Safety:
//
//	A Subgraph is NOT thread-safe. Copies may be used from different
//	goroutines once made.
package subgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/orneryd/ideagraph/pkg/links"
	"github.com/orneryd/ideagraph/pkg/overlay"
	"github.com/orneryd/ideagraph/pkg/storage"
)

// Common errors
var (
	ErrInvalidMatcher = errors.New("invalid matcher")
	ErrMissingData    = errors.New("match data required")
	ErrPointerFiller  = errors.New("pointer vertex cannot use the filler matcher")
	ErrInvalidVertex  = errors.New("invalid vertex")
	ErrInvalidEdge    = errors.New("invalid edge")
	ErrInvalidLink    = errors.New("invalid link")
	ErrPointerCycle   = errors.New("pointer cycle")
	ErrNotConcrete    = errors.New("subgraph is not concrete")
	ErrPartialCommit  = errors.New("rewrite partially committed")
	ErrInvalidFormat  = errors.New("invalid subgraph encoding")
)

// VertexOptions are the per-vertex flags.
type VertexOptions struct {
	// Transitionable vertices may have their data replaced by Rewrite.
	Transitionable bool `json:"transitionable"`
	// Pointer vertices hold another vertex key as their match data and
	// compare against that vertex's data.
	Pointer bool `json:"pointer"`
}

// Vertex is the match half of a pattern vertex.
type Vertex struct {
	Matcher Matcher
	// Data is the match data. For pointer vertices it is the target
	// vertex key (int).
	Data    any
	Options VertexOptions
}

// EdgeOptions are the per-edge flags.
type EdgeOptions struct {
	// Pref orders edge selection; higher is expanded first.
	Pref int `json:"pref"`
	// Transitive edges follow the link's closure instead of one hop.
	Transitive bool `json:"transitive"`
	// Transitionable edges may have their endpoints replaced by Rewrite.
	Transitionable bool `json:"transitionable"`
}

// Edge connects two vertices. Link is never an opposite link.
type Edge struct {
	Src     int
	Link    *links.Link
	Dst     int
	Options EdgeOptions
}

// EdgeEntry pairs an edge with its key.
type EdgeEntry struct {
	Key int
	Edge
}

// Subgraph is a pattern graph over an idea store.
type Subgraph struct {
	store storage.Engine

	match *overlay.Overlay[int, Vertex]
	ideas *overlay.Overlay[int, storage.IdeaID]
	data  *overlay.Overlay[int, any]
	edges *overlay.Overlay[int, Edge]

	vertexCount int
	edgeCount   int
	boundCount  int
	concrete    bool

	edgeCache []EdgeEntry
}

// New creates an empty subgraph over store. An empty subgraph is concrete.
func New(store storage.Engine) *Subgraph {
	return &Subgraph{
		store:    store,
		match:    overlay.New[int, Vertex](nil),
		ideas:    overlay.New[int, storage.IdeaID](nil),
		data:     overlay.New[int, any](nil),
		edges:    overlay.New[int, Edge](nil),
		concrete: true,
	}
}

// Store returns the engine the subgraph reads ideas from.
func (sg *Subgraph) Store() storage.Engine { return sg.store }

// AddVertex adds a vertex and returns its key. Keys are assigned 0, 1, 2...
//
// MatchID vertices are bound to the idea named by data immediately. Pointer
// vertices take the key of an existing vertex as data.
func (sg *Subgraph) AddVertex(m Matcher, data any, opts VertexOptions) (int, error) {
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMatcher, m)
	}
	if m != MatchFiller && data == nil {
		return 0, fmt.Errorf("%w for %s matcher", ErrMissingData, m)
	}

	var bind storage.IdeaID
	switch {
	case opts.Pointer:
		if m == MatchFiller {
			return 0, ErrPointerFiller
		}
		target, ok := toKey(data)
		if !ok || !sg.match.Has(target) {
			return 0, fmt.Errorf("%w: pointer target %v", ErrInvalidVertex, data)
		}
		data = target
	case m == MatchID:
		id, ok := toIdeaID(data)
		if !ok {
			return 0, fmt.Errorf("%w: id matcher needs an idea id, got %T", ErrMissingData, data)
		}
		data, bind = id, id
	case m == MatchSubstring:
		spec, err := normalizeSubstring(data)
		if err != nil {
			return 0, err
		}
		data = spec
	}

	key := sg.vertexCount
	sg.vertexCount++
	sg.match.Set(key, Vertex{Matcher: m, Data: data, Options: opts})
	sg.edgeCache = nil
	if bind != "" {
		sg.bind(key, bind)
	}
	sg.updateConcrete()
	return key, nil
}

// AddEdge connects src to dst and returns the edge key. An opposite link is
// stored as its canonical link with the endpoints swapped.
func (sg *Subgraph) AddEdge(src, dst int, link *links.Link, opts EdgeOptions) (int, error) {
	if !sg.match.Has(src) || !sg.match.Has(dst) {
		return 0, fmt.Errorf("%w: edge %d -> %d", ErrInvalidVertex, src, dst)
	}
	if !links.Known(link) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLink, link)
	}
	if link.IsOpposite() {
		src, dst, link = dst, src, link.Opposite()
	}

	key := sg.edgeCount
	sg.edgeCount++
	sg.edges.Set(key, Edge{Src: src, Link: link, Dst: dst, Options: opts})
	sg.edgeCache = nil
	return key, nil
}

// GetMatch returns the vertex stored under key.
func (sg *Subgraph) GetMatch(key int) (Vertex, bool) {
	return sg.match.Get(key)
}

// GetEdge returns the edge stored under key.
func (sg *Subgraph) GetEdge(key int) (Edge, bool) {
	return sg.edges.Get(key)
}

// GetIdea returns the idea bound to a vertex.
func (sg *Subgraph) GetIdea(key int) (storage.IdeaID, bool) {
	return sg.ideas.Get(key)
}

// HasIdea reports whether a vertex is bound.
func (sg *Subgraph) HasIdea(key int) bool {
	return sg.ideas.Has(key)
}

// SetIdea binds a vertex to an idea.
func (sg *Subgraph) SetIdea(key int, id storage.IdeaID) error {
	if !sg.match.Has(key) {
		return fmt.Errorf("%w: %d", ErrInvalidVertex, key)
	}
	if id == "" {
		return storage.ErrInvalidID
	}
	sg.bind(key, id)
	sg.updateConcrete()
	return nil
}

// DeleteIdea unbinds a vertex.
func (sg *Subgraph) DeleteIdea(key int) {
	if !sg.ideas.Has(key) {
		return
	}
	sg.ideas.Delete(key)
	sg.boundCount--
	sg.updateConcrete()
}

func (sg *Subgraph) bind(key int, id storage.IdeaID) {
	if !sg.ideas.Has(key) {
		sg.boundCount++
	}
	sg.ideas.Set(key, id)
}

func (sg *Subgraph) updateConcrete() {
	sg.concrete = sg.boundCount == sg.vertexCount
}

// AllIdeas returns a snapshot of the bound vertices.
func (sg *Subgraph) AllIdeas() map[int]storage.IdeaID {
	return sg.ideas.Snapshot()
}

// AllEdges returns every edge in key order. The slice is cached until the
// edge table changes and must not be modified.
func (sg *Subgraph) AllEdges() []EdgeEntry {
	if sg.edgeCache != nil {
		return sg.edgeCache
	}
	snapshot := sg.edges.Snapshot()
	entries := make([]EdgeEntry, 0, len(snapshot))
	for key, e := range snapshot {
		entries = append(entries, EdgeEntry{Key: key, Edge: e})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	sg.edgeCache = entries
	return entries
}

// VertexCount returns the number of vertices.
func (sg *Subgraph) VertexCount() int { return sg.vertexCount }

// EdgeCount returns the number of edges.
func (sg *Subgraph) EdgeCount() int { return sg.edgeCount }

// Concrete reports whether every vertex is bound to an idea.
func (sg *Subgraph) Concrete() bool { return sg.concrete }

// GetData returns the data of a vertex: theoretical data if set, otherwise
// the bound idea's data, otherwise nil.
func (sg *Subgraph) GetData(ctx context.Context, key int) (any, error) {
	if d, ok := sg.data.Get(key); ok {
		return d, nil
	}
	if id, ok := sg.ideas.Get(key); ok {
		return sg.store.GetData(ctx, id)
	}
	return nil, nil
}

// SetData sets theoretical data on a vertex without touching the store.
// Setting nil removes the theoretical data.
func (sg *Subgraph) SetData(key int, data any) error {
	if !sg.match.Has(key) {
		return fmt.Errorf("%w: %d", ErrInvalidVertex, key)
	}
	if data == nil {
		sg.data.Delete(key)
		return nil
	}
	sg.data.Set(key, data)
	return nil
}

// DeleteData removes the theoretical data of a vertex.
func (sg *Subgraph) DeleteData(key int) {
	sg.data.Delete(key)
}

// hasData reports whether GetData has a source for key other than nil.
func (sg *Subgraph) hasData(key int) bool {
	return sg.data.Has(key) || sg.ideas.Has(key)
}

// Copy returns an independent subgraph sharing the current contents. Later
// changes to either are invisible to the other. The store is shared.
func (sg *Subgraph) Copy() *Subgraph {
	return &Subgraph{
		store:       sg.store,
		match:       sg.match.Branch(),
		ideas:       sg.ideas.Branch(),
		data:        sg.data.Branch(),
		edges:       sg.edges.Branch(),
		vertexCount: sg.vertexCount,
		edgeCount:   sg.edgeCount,
		boundCount:  sg.boundCount,
		concrete:    sg.concrete,
		edgeCache:   sg.edgeCache,
	}
}

// setEdge replaces an edge and drops the edge cache.
func (sg *Subgraph) setEdge(key int, e Edge) {
	sg.edges.Set(key, e)
	sg.edgeCache = nil
}

// pointerTarget follows the pointer chain starting at key until it reaches
// a vertex accepted by have. ok is false when the chain ends at a vertex
// that is neither accepted nor a pointer.
func (sg *Subgraph) pointerTarget(key int, have func(int) bool) (target int, ok bool, err error) {
	v, found := sg.match.Get(key)
	if !found || !v.Options.Pointer {
		return 0, false, fmt.Errorf("%w: %d is not a pointer", ErrInvalidVertex, key)
	}
	visited := map[int]struct{}{key: {}}
	for {
		target, _ = toKey(v.Data)
		if _, seen := visited[target]; seen {
			return 0, false, fmt.Errorf("%w at vertex %d", ErrPointerCycle, target)
		}
		visited[target] = struct{}{}
		if have(target) {
			return target, true, nil
		}
		v, found = sg.match.Get(target)
		if !found || !v.Options.Pointer {
			return 0, false, nil
		}
	}
}

// matchPayload returns what a vertex's predicate compares against: its
// match data, or for a pointer the data of the resolved target. ok is false
// when a pointer cannot be resolved yet.
func (sg *Subgraph) matchPayload(ctx context.Context, key int) (payload any, ok bool, err error) {
	v, _ := sg.match.Get(key)
	if !v.Options.Pointer {
		return v.Data, true, nil
	}
	target, ok, err := sg.pointerTarget(key, sg.hasData)
	if err != nil || !ok {
		return nil, false, err
	}
	payload, err = sg.GetData(ctx, target)
	return payload, err == nil, err
}
