// Package storage provides storage engine implementations for ideagraph.
//
// MemoryEngine keeps every idea and link in RAM. It is the engine used by
// the test suites and by short-lived tools that build a graph, search it and
// throw it away.
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	a, _ := engine.CreateIdea(ctx, "apple")
//	fruit, _ := engine.CreateIdea(ctx, "fruit")
//	engine.AddLink(ctx, a, links.MustGet("type_of"), fruit)
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/orneryd/ideagraph/pkg/links"
)

// linkIndex maps idea -> link name -> neighbour set.
type linkIndex map[IdeaID]map[string]map[IdeaID]struct{}

func (ix linkIndex) add(a IdeaID, name string, b IdeaID) {
	byLink, ok := ix[a]
	if !ok {
		byLink = make(map[string]map[IdeaID]struct{})
		ix[a] = byLink
	}
	set, ok := byLink[name]
	if !ok {
		set = make(map[IdeaID]struct{})
		byLink[name] = set
	}
	set[b] = struct{}{}
}

func (ix linkIndex) remove(a IdeaID, name string, b IdeaID) {
	if set, ok := ix[a][name]; ok {
		delete(set, b)
		if len(set) == 0 {
			delete(ix[a], name)
		}
	}
}

func (ix linkIndex) neighbours(a IdeaID, name string) []IdeaID {
	set := ix[a][name]
	out := make([]IdeaID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MemoryEngine is a thread-safe in-memory idea store.
//
// Features:
//   - Thread-safe: All operations use RWMutex for concurrent access
//   - Indexed: forward and reverse link indexes, O(degree) traversal
//   - Deep copies: Returns copies to prevent external mutation
//   - Deterministic: Links returns neighbours sorted by id
//
// Performance Characteristics:
//   - Data lookup by ID: O(1)
//   - One-hop traversal: O(degree log degree) (sorted output)
//
// Thread Safety:
//
//	All public methods are thread-safe.
type MemoryEngine struct {
	mu   sync.RWMutex
	data map[IdeaID]any

	// Indexes for efficient lookups. Only canonical links are recorded;
	// outgoing answers canonical lookups, incoming answers opposite lookups.
	outgoing linkIndex
	incoming linkIndex

	closed bool
}

// NewMemoryEngine creates a new in-memory storage engine with empty indexes.
//
// Example:
//
//	func TestMyGraph(t *testing.T) {
//		engine := storage.NewMemoryEngine()
//		defer engine.Close()
//		// ...
//	}
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		data:     make(map[IdeaID]any),
		outgoing: make(linkIndex),
		incoming: make(linkIndex),
	}
}

// CreateIdea stores a new idea with the given payload and returns its id.
func (m *MemoryEngine) CreateIdea(ctx context.Context, data any) (IdeaID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized, err := normalizeData(data)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrStorageClosed
	}

	id := NewIdeaID()
	m.data[id] = normalized
	return id, nil
}

// DeleteIdea removes an idea and every link touching it.
func (m *MemoryEngine) DeleteIdea(ctx context.Context, id IdeaID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, ok := m.data[id]; !ok {
		return ErrNotFound
	}

	for name, set := range m.outgoing[id] {
		for b := range set {
			m.incoming.remove(b, name, id)
		}
	}
	for name, set := range m.incoming[id] {
		for a := range set {
			m.outgoing.remove(a, name, id)
		}
	}
	delete(m.outgoing, id)
	delete(m.incoming, id)
	delete(m.data, id)
	return nil
}

// GetData returns a copy of the idea's payload.
func (m *MemoryEngine) GetData(ctx context.Context, id IdeaID) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	data, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyData(data), nil
}

// SetData replaces the idea's payload.
func (m *MemoryEngine) SetData(ctx context.Context, id IdeaID, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := normalizeData(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, ok := m.data[id]; !ok {
		return ErrNotFound
	}
	m.data[id] = normalized
	return nil
}

// Links returns the ideas one hop away from id along link.
func (m *MemoryEngine) Links(ctx context.Context, id IdeaID, link *links.Link) ([]IdeaID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !links.Known(link) {
		return nil, ErrInvalidLink
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	if _, ok := m.data[id]; !ok {
		return nil, ErrNotFound
	}

	if link.IsUndirected() {
		return mergeIDs(m.outgoing.neighbours(id, link.Name()), m.incoming.neighbours(id, link.Name())), nil
	}
	if link.IsOpposite() {
		return m.incoming.neighbours(id, link.Canonical().Name()), nil
	}
	return m.outgoing.neighbours(id, link.Name()), nil
}

// AddLink connects a to b. Adding an existing link is a no-op.
func (m *MemoryEngine) AddLink(ctx context.Context, a IdeaID, link *links.Link, b IdeaID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLink(a, link, b); err != nil {
		return err
	}
	a, link, b = canonical(a, link, b)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, ok := m.data[a]; !ok {
		return ErrNotFound
	}
	if _, ok := m.data[b]; !ok {
		return ErrNotFound
	}

	m.outgoing.add(a, link.Name(), b)
	m.incoming.add(b, link.Name(), a)
	return nil
}

// RemoveLink disconnects a from b. Removing a missing link is a no-op.
func (m *MemoryEngine) RemoveLink(ctx context.Context, a IdeaID, link *links.Link, b IdeaID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLink(a, link, b); err != nil {
		return err
	}
	a, link, b = canonical(a, link, b)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	m.outgoing.remove(a, link.Name(), b)
	m.incoming.remove(b, link.Name(), a)
	if link.IsUndirected() {
		m.outgoing.remove(b, link.Name(), a)
		m.incoming.remove(a, link.Name(), b)
	}
	return nil
}

// IdeaCount returns the number of stored ideas.
func (m *MemoryEngine) IdeaCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.data)), nil
}

// Close marks the engine closed and releases its maps.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	m.outgoing = nil
	m.incoming = nil
	return nil
}

// mergeIDs merges two sorted id lists, dropping duplicates.
func mergeIDs(a, b []IdeaID) []IdeaID {
	out := make([]IdeaID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

var _ Engine = (*MemoryEngine)(nil)
