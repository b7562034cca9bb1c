package subgraph

import (
	"context"
	"fmt"
)

// TransitionKind selects what a Transition replaces.
type TransitionKind int

const (
	// ReplaceData sets a vertex's data to a value.
	ReplaceData TransitionKind = iota + 1
	// ReplaceDataFrom sets a vertex's data to another vertex's data.
	ReplaceDataFrom
	// ReplaceSrc moves an edge's source to another vertex.
	ReplaceSrc
	// ReplaceDst moves an edge's destination to another vertex.
	ReplaceDst
)

// Transition is one step of a rewrite.
type Transition struct {
	Kind TransitionKind
	// Key is the vertex key for data transitions and the edge key for
	// endpoint transitions.
	Key int
	// Value is the new data for ReplaceData.
	Value any
	// Target is the source vertex for ReplaceDataFrom and the new endpoint
	// for ReplaceSrc and ReplaceDst.
	Target int
}

// ReplaceVertexData returns a transition setting a vertex's data to value.
func ReplaceVertexData(vertex int, value any) Transition {
	return Transition{Kind: ReplaceData, Key: vertex, Value: value}
}

// ReplaceVertexDataFrom returns a transition copying another vertex's data.
func ReplaceVertexDataFrom(vertex, source int) Transition {
	return Transition{Kind: ReplaceDataFrom, Key: vertex, Target: source}
}

// ReplaceEdgeSrc returns a transition moving an edge's source.
func ReplaceEdgeSrc(edge, vertex int) Transition {
	return Transition{Kind: ReplaceSrc, Key: edge, Target: vertex}
}

// ReplaceEdgeDst returns a transition moving an edge's destination.
func ReplaceEdgeDst(edge, vertex int) Transition {
	return Transition{Kind: ReplaceDst, Key: edge, Target: vertex}
}

// TransitionSpec is the document form of a transition:
//
//	- {vertex_id: 1, replace: {value: 5, unit: m}}
//	- {vertex_id: 1, replace_id: 2}
//	- {edge_id: 0, replace_src: 3}
//	- {edge_id: 0, replace_dst: 3}
type TransitionSpec struct {
	VertexID   *int `yaml:"vertex_id,omitempty" json:"vertex_id,omitempty"`
	EdgeID     *int `yaml:"edge_id,omitempty" json:"edge_id,omitempty"`
	Replace    any  `yaml:"replace,omitempty" json:"replace,omitempty"`
	ReplaceID  *int `yaml:"replace_id,omitempty" json:"replace_id,omitempty"`
	ReplaceSrc *int `yaml:"replace_src,omitempty" json:"replace_src,omitempty"`
	ReplaceDst *int `yaml:"replace_dst,omitempty" json:"replace_dst,omitempty"`
}

// Transition converts the document form. Exactly one of the replace fields
// must be set, matching the vertex or edge form.
func (s TransitionSpec) Transition() (Transition, error) {
	switch {
	case s.VertexID != nil && s.EdgeID != nil:
		return Transition{}, fmt.Errorf("transition names both vertex_id and edge_id")
	case s.VertexID != nil:
		switch {
		case s.Replace != nil && s.ReplaceID == nil:
			return ReplaceVertexData(*s.VertexID, s.Replace), nil
		case s.ReplaceID != nil && s.Replace == nil:
			return ReplaceVertexDataFrom(*s.VertexID, *s.ReplaceID), nil
		}
		return Transition{}, fmt.Errorf("vertex transition needs exactly one of replace or replace_id")
	case s.EdgeID != nil:
		switch {
		case s.ReplaceSrc != nil && s.ReplaceDst == nil:
			return ReplaceEdgeSrc(*s.EdgeID, *s.ReplaceSrc), nil
		case s.ReplaceDst != nil && s.ReplaceSrc == nil:
			return ReplaceEdgeDst(*s.EdgeID, *s.ReplaceDst), nil
		}
		return Transition{}, fmt.Errorf("edge transition needs exactly one of replace_src or replace_dst")
	default:
		return Transition{}, fmt.Errorf("transition needs vertex_id or edge_id")
	}
}

// Rewrite applies transitions to a concrete subgraph.
//
// Every transition is validated before any is applied. If one is invalid,
// Rewrite returns (nil, nil) and nothing changes. Without actual, the
// transitions are applied to a copy and sg is untouched. With actual, they
// are applied to sg itself and written through to the store; a store failure
// at that point leaves a partial commit and is reported as ErrPartialCommit.
func Rewrite(ctx context.Context, sg *Subgraph, transitions []Transition, actual bool) (*Subgraph, error) {
	if !sg.Concrete() {
		return nil, ErrNotConcrete
	}
	planned := map[int]any{}
	for _, t := range transitions {
		ok, err := validTransition(ctx, sg, t, planned)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	target := sg
	if !actual {
		target = sg.Copy()
	}
	for i, t := range transitions {
		if err := applyTransition(ctx, target, t, actual); err != nil {
			return nil, fmt.Errorf("%w: transition %d: %w", ErrPartialCommit, i, err)
		}
	}
	return target, nil
}

// validTransition checks t against sg without changing anything. planned
// holds the data earlier transitions of the batch will have written, so
// each transition is checked against the state it will actually see.
func validTransition(ctx context.Context, sg *Subgraph, t Transition, planned map[int]any) (bool, error) {
	dataOf := func(k int) (any, error) {
		if d, ok := planned[k]; ok {
			return d, nil
		}
		return sg.GetData(ctx, k)
	}

	switch t.Kind {
	case ReplaceData, ReplaceDataFrom:
		v, ok := sg.GetMatch(t.Key)
		if !ok || !v.Options.Transitionable {
			return false, nil
		}
		current, err := dataOf(t.Key)
		if err != nil {
			return false, err
		}
		if current == nil {
			return false, nil
		}
		next := t.Value
		if t.Kind == ReplaceDataFrom {
			if !sg.match.Has(t.Target) {
				return false, nil
			}
			if next, err = dataOf(t.Target); err != nil {
				return false, err
			}
		}
		if next == nil || unitsConflict(current, next) {
			return false, nil
		}
		planned[t.Key] = next
		return true, nil
	case ReplaceSrc, ReplaceDst:
		e, ok := sg.GetEdge(t.Key)
		if !ok || !e.Options.Transitionable {
			return false, nil
		}
		return sg.match.Has(t.Target), nil
	default:
		return false, nil
	}
}

// applyTransition applies a validated transition to sg, writing through to
// the store when actual is set.
func applyTransition(ctx context.Context, sg *Subgraph, t Transition, actual bool) error {
	switch t.Kind {
	case ReplaceData, ReplaceDataFrom:
		next := t.Value
		if t.Kind == ReplaceDataFrom {
			var err error
			if next, err = sg.GetData(ctx, t.Target); err != nil {
				return err
			}
		}
		if err := sg.SetData(t.Key, next); err != nil {
			return err
		}
		if actual {
			id, _ := sg.GetIdea(t.Key)
			return sg.store.SetData(ctx, id, next)
		}
		return nil

	case ReplaceSrc, ReplaceDst:
		old, _ := sg.GetEdge(t.Key)
		next := old
		if t.Kind == ReplaceSrc {
			next.Src = t.Target
		} else {
			next.Dst = t.Target
		}
		sg.setEdge(t.Key, next)
		if !actual || (next.Src == old.Src && next.Dst == old.Dst) {
			return nil
		}
		oldSrc, _ := sg.GetIdea(old.Src)
		oldDst, _ := sg.GetIdea(old.Dst)
		if err := sg.store.RemoveLink(ctx, oldSrc, old.Link, oldDst); err != nil {
			return err
		}
		newSrc, _ := sg.GetIdea(next.Src)
		newDst, _ := sg.GetIdea(next.Dst)
		return sg.store.AddLink(ctx, newSrc, next.Link, newDst)
	}
	return fmt.Errorf("unknown transition kind %d", t.Kind)
}
