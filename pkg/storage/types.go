// Package storage provides the idea store that the subgraph engine runs on.
//
// The store is deliberately small: ideas are opaque JSON-like data payloads
// identified by a stable IdeaID, and links are typed directed relations
// between two ideas. Everything the pattern engine needs is expressed through
// the Engine interface, so the engine can run against an in-memory store in
// tests and a BadgerDB store in production.
//
// Design Principles:
//   - Links are stored once, in canonical direction; opposite lookups are
//     answered from a reverse index
//   - Data returned to callers is a deep copy (callers may mutate freely)
//   - Thread-safe implementations
//   - Every call takes a context.Context; callers may cancel between calls
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	square, _ := engine.CreateIdea(ctx, map[string]any{"name": "square"})
//	rect, _ := engine.CreateIdea(ctx, map[string]any{"name": "rectangle"})
//	engine.AddLink(ctx, square, links.MustGet("type_of"), rect)
//
//	parents, _ := engine.Links(ctx, square, links.MustGet("type_of"))
//	// parents == []IdeaID{rect}
//
//	children, _ := engine.Links(ctx, rect, links.MustGet("type_of").Opposite())
//	// children == []IdeaID{square}
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/orneryd/ideagraph/pkg/links"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidLink   = errors.New("invalid link")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage closed")
)

// IdeaID is a strongly-typed unique identifier for ideas.
//
// Example:
//
//	id := storage.IdeaID("6f1c2a5e-...")
//	data, err := engine.GetData(ctx, id)
type IdeaID string

// NewIdeaID generates a fresh random IdeaID.
func NewIdeaID() IdeaID {
	return IdeaID(uuid.NewString())
}

// Engine defines the idea store consumed by the subgraph engine.
//
// All Engine implementations MUST be:
//   - Thread-safe: Safe for concurrent access from multiple goroutines
//   - Direction-normalizing: AddLink(a, l.Opposite(), b) is the same link as
//     AddLink(b, l, a)
//   - One-hop: Links never follows transitive closure; the engine builds
//     closures itself from repeated calls
//
// Implementations:
//   - MemoryEngine: In-memory storage for testing and small graphs
//   - BadgerEngine: Persistent disk storage
//   - CachedEngine: Read-through cache around any Engine
type Engine interface {
	// Idea lifecycle
	CreateIdea(ctx context.Context, data any) (IdeaID, error)
	DeleteIdea(ctx context.Context, id IdeaID) error

	// Data payload
	GetData(ctx context.Context, id IdeaID) (any, error)
	SetData(ctx context.Context, id IdeaID, data any) error

	// Links
	Links(ctx context.Context, id IdeaID, link *links.Link) ([]IdeaID, error)
	AddLink(ctx context.Context, a IdeaID, link *links.Link, b IdeaID) error
	RemoveLink(ctx context.Context, a IdeaID, link *links.Link, b IdeaID) error

	// Stats
	IdeaCount(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
}

// canonical orders a link triple so the stored link is never an opposite.
func canonical(a IdeaID, link *links.Link, b IdeaID) (IdeaID, *links.Link, IdeaID) {
	if link.IsOpposite() {
		return b, link.Opposite(), a
	}
	return a, link, b
}

// checkLink validates the link and both endpoints of a triple.
func checkLink(a IdeaID, link *links.Link, b IdeaID) error {
	if a == "" || b == "" {
		return ErrInvalidID
	}
	if !links.Known(link) {
		return ErrInvalidLink
	}
	return nil
}
