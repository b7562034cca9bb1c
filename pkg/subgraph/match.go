package subgraph

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/ideagraph/pkg/storage"
)

// Mapping maps inner vertex and edge keys to outer ones.
type Mapping struct {
	V map[int]int
	E map[int]int
}

// Match returns every way inner can be laid onto the concrete subgraph
// outer. Inner vertices bound to ideas must map onto outer vertices bound
// to the same idea; unbound inner vertices must satisfy their matcher
// against the outer vertex's data.
//
// With unitsOnly set, transitionable vertices only need compatible units
// instead of equal data.
func Match(ctx context.Context, outer, inner *Subgraph, unitsOnly bool) ([]Mapping, error) {
	if !outer.Concrete() {
		return nil, ErrNotConcrete
	}
	if inner.vertexCount == 0 ||
		inner.vertexCount > outer.vertexCount ||
		inner.edgeCount > outer.edgeCount {
		return nil, nil
	}

	return newMatcher(outer, inner, unitsOnly).run(ctx)
}

type matcher struct {
	outer, inner *Subgraph
	unitsOnly    bool
	log          *slog.Logger

	// indexed picks between an id index and a linear scan when seeding.
	indexed func(innerCount, outerCount int) bool
	// seededByIndex records which seeding path the last run took.
	seededByIndex bool
}

func newMatcher(outer, inner *Subgraph, unitsOnly bool) *matcher {
	return &matcher{
		outer:     outer,
		inner:     inner,
		unitsOnly: unitsOnly,
		log:       slog.Default(),
		indexed:   useIndex,
	}
}

func (m *matcher) run(ctx context.Context) ([]Mapping, error) {
	st, ok, err := m.seed(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return m.expand(ctx, st)
}

// matchState is one branch of the expansion.
type matchState struct {
	vertices  map[int]int // inner -> outer
	claimed   map[int]int // outer -> inner
	edges     map[int]int // inner -> outer
	usedEdges map[int]struct{}
	remaining []EdgeEntry
	deferred  map[int]struct{} // inner edges skipped since the last binding
}

func (st *matchState) clone() *matchState {
	return &matchState{
		vertices:  maps.Clone(st.vertices),
		claimed:   maps.Clone(st.claimed),
		edges:     maps.Clone(st.edges),
		usedEdges: maps.Clone(st.usedEdges),
		remaining: append([]EdgeEntry(nil), st.remaining...),
		deferred:  maps.Clone(st.deferred),
	}
}

// useIndex reports whether indexing the outer ideas is cheaper than a
// linear scan per inner idea.
func useIndex(innerCount, outerCount int) bool {
	if outerCount < 2 {
		return false
	}
	linear := float64(innerCount) * float64(outerCount)
	indexed := float64(innerCount+outerCount) * math.Log2(float64(outerCount))
	return linear > indexed
}

// seed maps every inner vertex bound to an idea onto the outer vertex bound
// to the same idea.
func (m *matcher) seed(ctx context.Context) (*matchState, bool, error) {
	st := &matchState{
		vertices:  map[int]int{},
		claimed:   map[int]int{},
		edges:     map[int]int{},
		usedEdges: map[int]struct{}{},
		deferred:  map[int]struct{}{},
	}

	innerIdeas := m.inner.AllIdeas()
	outerIdeas := m.outer.AllIdeas()
	outerKeys := sortedKeys(outerIdeas)

	lookup := func(id storage.IdeaID) (int, bool) {
		for _, k := range outerKeys {
			if outerIdeas[k] == id {
				return k, true
			}
		}
		return 0, false
	}
	m.seededByIndex = m.indexed(len(innerIdeas), len(outerIdeas))
	if m.seededByIndex {
		index := make(map[storage.IdeaID]int, len(outerIdeas))
		for i := len(outerKeys) - 1; i >= 0; i-- {
			index[outerIdeas[outerKeys[i]]] = outerKeys[i]
		}
		lookup = func(id storage.IdeaID) (int, bool) {
			k, ok := index[id]
			return k, ok
		}
	}

	for _, ik := range sortedKeys(innerIdeas) {
		outerKey, found := lookup(innerIdeas[ik])
		if !found {
			return nil, false, nil
		}
		if _, taken := st.claimed[outerKey]; taken {
			return nil, false, nil
		}
		compatible, err := m.vertexCompatible(ctx, ik, outerKey)
		if err != nil || !compatible {
			return nil, false, ctx.Err()
		}
		st.vertices[ik] = outerKey
		st.claimed[outerKey] = ik
	}

	st.remaining = append([]EdgeEntry(nil), m.inner.AllEdges()...)
	sort.SliceStable(st.remaining, func(i, j int) bool {
		return st.remaining[i].Options.Pref > st.remaining[j].Options.Pref
	})
	return st, true, nil
}

// vertexCompatible checks transitionable compatibility of a vertex pair.
func (m *matcher) vertexCompatible(ctx context.Context, innerKey, outerKey int) (bool, error) {
	iv, _ := m.inner.GetMatch(innerKey)
	ov, _ := m.outer.GetMatch(outerKey)
	if !iv.Options.Transitionable || !ov.Options.Transitionable {
		return TransitionCompatible(ov.Options.Transitionable, nil, iv.Options.Transitionable, nil, m.unitsOnly), nil
	}

	var innerData, outerData any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		innerData, err = m.inner.GetData(gctx, innerKey)
		return err
	})
	g.Go(func() (err error) {
		outerData, err = m.outer.GetData(gctx, outerKey)
		return err
	})
	if err := g.Wait(); err != nil {
		m.log.Debug("match vertex data unreadable", "inner", innerKey, "outer", outerKey, "error", err)
		return false, nil
	}
	return TransitionCompatible(ov.Options.Transitionable, outerData, iv.Options.Transitionable, innerData, m.unitsOnly), nil
}

// TransitionCompatible decides whether an inner vertex may sit on an outer
// vertex given their transitionable flags and data.
//
// A non-transitionable inner vertex is always compatible. A transitionable
// inner vertex needs a transitionable outer vertex. Absent data on either
// side cannot contradict anything. Otherwise both sides must agree on having
// a unit; with unitsOnly the units must be equal, without it the whole data
// must be.
func TransitionCompatible(outerTransitionable bool, outerData any, innerTransitionable bool, innerData any, unitsOnly bool) bool {
	if !innerTransitionable {
		return true
	}
	if !outerTransitionable {
		return false
	}
	if outerData == nil || innerData == nil {
		return true
	}
	ou, outerHasUnit := unitOf(outerData)
	iu, innerHasUnit := unitOf(innerData)
	if outerHasUnit != innerHasUnit {
		return false
	}
	if unitsOnly {
		return Equal(ou, iu)
	}
	return Equal(outerData, innerData)
}

// expand maps the remaining inner edges, branching on ambiguity.
func (m *matcher) expand(ctx context.Context, st *matchState) ([]Mapping, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(st.remaining) == 0 {
			if len(st.vertices) != m.inner.vertexCount {
				return nil, nil
			}
			return []Mapping{{V: maps.Clone(st.vertices), E: maps.Clone(st.edges)}}, nil
		}

		pos := -1
		for i, e := range st.remaining {
			if _, skip := st.deferred[e.Key]; !skip {
				pos = i
				break
			}
		}
		if pos < 0 {
			m.log.Debug("match pointers never resolved", "remaining", len(st.remaining))
			return nil, nil
		}
		ie := st.remaining[pos]

		candidates, err := m.candidates(ctx, st, ie)
		if err != nil {
			return nil, err
		}

		switch len(candidates) {
		case 0:
			if !m.hasPointer(ie.Edge) {
				return nil, nil
			}
			st.deferred[ie.Key] = struct{}{}
		case 1:
			m.apply(st, pos, ie, candidates[0])
		default:
			var out []Mapping
			for _, oe := range candidates {
				branch := st.clone()
				m.apply(branch, pos, ie, oe)
				found, err := m.expand(ctx, branch)
				if err != nil {
					return nil, err
				}
				out = append(out, found...)
			}
			return out, nil
		}
	}
}

// apply records inner edge ie as mapped onto outer edge oe.
func (m *matcher) apply(st *matchState, pos int, ie, oe EdgeEntry) {
	st.remaining = append(st.remaining[:pos:pos], st.remaining[pos+1:]...)
	st.edges[ie.Key] = oe.Key
	st.usedEdges[oe.Key] = struct{}{}
	st.vertices[ie.Src] = oe.Src
	st.claimed[oe.Src] = ie.Src
	st.vertices[ie.Dst] = oe.Dst
	st.claimed[oe.Dst] = ie.Dst
	clear(st.deferred)
}

// hasPointer reports whether either endpoint of an inner edge is a pointer.
func (m *matcher) hasPointer(e Edge) bool {
	src, _ := m.inner.GetMatch(e.Src)
	dst, _ := m.inner.GetMatch(e.Dst)
	return src.Options.Pointer || dst.Options.Pointer
}

// candidates returns the outer edges inner edge ie can map onto.
func (m *matcher) candidates(ctx context.Context, st *matchState, ie EdgeEntry) ([]EdgeEntry, error) {
	var out []EdgeEntry
	for _, oe := range m.outer.AllEdges() {
		if oe.Link != ie.Link {
			continue
		}
		if _, used := st.usedEdges[oe.Key]; used {
			continue
		}
		if !endpointFits(st, ie.Src, oe.Src) || !endpointFits(st, ie.Dst, oe.Dst) {
			continue
		}
		if (ie.Src == ie.Dst) != (oe.Src == oe.Dst) {
			continue
		}

		ok := true
		for _, pair := range [][2]int{{ie.Src, oe.Src}, {ie.Dst, oe.Dst}} {
			if _, mapped := st.vertices[pair[0]]; mapped {
				continue
			}
			fits, err := m.vertexFits(ctx, st, pair[0], pair[1])
			if err != nil {
				return nil, err
			}
			if !fits {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, oe)
		}
	}
	return out, nil
}

// endpointFits checks an endpoint pair against the current vertex mapping.
func endpointFits(st *matchState, innerKey, outerKey int) bool {
	if mapped, ok := st.vertices[innerKey]; ok {
		return mapped == outerKey
	}
	_, taken := st.claimed[outerKey]
	return !taken
}

// vertexFits checks an unmapped inner vertex against an outer vertex. A
// pointer that cannot be resolved with the current mapping does not fit.
func (m *matcher) vertexFits(ctx context.Context, st *matchState, innerKey, outerKey int) (bool, error) {
	compatible, err := m.vertexCompatible(ctx, innerKey, outerKey)
	if err != nil || !compatible {
		return false, err
	}
	if m.inner.HasIdea(innerKey) {
		return true, nil
	}

	iv, _ := m.inner.GetMatch(innerKey)
	payload, ok, err := m.payload(ctx, st, innerKey, iv)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		m.log.Debug("match payload unreadable", "vertex", innerKey, "error", err)
		return false, nil
	}
	if !ok {
		return false, nil
	}

	if iv.Matcher == MatchID {
		id, _ := m.outer.GetIdea(outerKey)
		return MatchesID(id, payload), nil
	}
	if !iv.Matcher.needsData() {
		return true, nil
	}
	data, err := m.outer.GetData(ctx, outerKey)
	if err != nil {
		m.log.Debug("match outer data unreadable", "vertex", outerKey, "error", err)
		return false, ctx.Err()
	}
	return iv.Matcher.Matches(data, payload), nil
}

// payload resolves the match payload of an inner vertex, following
// pointers through inner data first and then through already mapped outer
// vertices.
func (m *matcher) payload(ctx context.Context, st *matchState, key int, v Vertex) (any, bool, error) {
	if !v.Options.Pointer {
		return v.Data, true, nil
	}
	have := func(t int) bool {
		if m.inner.hasData(t) {
			return true
		}
		_, mapped := st.vertices[t]
		return mapped
	}
	target, ok, err := m.inner.pointerTarget(key, have)
	if err != nil || !ok {
		return nil, false, err
	}
	if m.inner.hasData(target) {
		d, err := m.inner.GetData(ctx, target)
		return d, err == nil, err
	}
	d, err := m.outer.GetData(ctx, st.vertices[target])
	return d, err == nil, err
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
