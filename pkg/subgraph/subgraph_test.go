package subgraph

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ideagraph/pkg/links"
	"github.com/orneryd/ideagraph/pkg/storage"
)

// shapes is a small store: square -type_of-> rectangle -type_of-> quadrilateral.
type shapes struct {
	engine                        *storage.MemoryEngine
	square, rectangle, quadrilate storage.IdeaID
}

func newShapes(t *testing.T) shapes {
	t.Helper()
	ctx := context.Background()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })

	s := shapes{engine: engine}
	var err error
	s.square, err = engine.CreateIdea(ctx, map[string]any{"name": "square", "sides": 4})
	require.NoError(t, err)
	s.rectangle, err = engine.CreateIdea(ctx, map[string]any{"name": "rectangle", "sides": 4})
	require.NoError(t, err)
	s.quadrilate, err = engine.CreateIdea(ctx, map[string]any{"name": "quadrilateral", "sides": 4})
	require.NoError(t, err)

	typeOf := links.MustGet("type_of")
	require.NoError(t, engine.AddLink(ctx, s.square, typeOf, s.rectangle))
	require.NoError(t, engine.AddLink(ctx, s.rectangle, typeOf, s.quadrilate))
	return s
}

// countingEngine counts mutating calls and can fail them.
type countingEngine struct {
	storage.Engine
	mutations atomic.Int64
	failWith  error
}

func (c *countingEngine) mutate() error {
	c.mutations.Add(1)
	return c.failWith
}

func (c *countingEngine) SetData(ctx context.Context, id storage.IdeaID, data any) error {
	if err := c.mutate(); err != nil {
		return err
	}
	return c.Engine.SetData(ctx, id, data)
}

func (c *countingEngine) AddLink(ctx context.Context, a storage.IdeaID, link *links.Link, b storage.IdeaID) error {
	if err := c.mutate(); err != nil {
		return err
	}
	return c.Engine.AddLink(ctx, a, link, b)
}

func (c *countingEngine) RemoveLink(ctx context.Context, a storage.IdeaID, link *links.Link, b storage.IdeaID) error {
	if err := c.mutate(); err != nil {
		return err
	}
	return c.Engine.RemoveLink(ctx, a, link, b)
}

func (c *countingEngine) DeleteIdea(ctx context.Context, id storage.IdeaID) error {
	if err := c.mutate(); err != nil {
		return err
	}
	return c.Engine.DeleteIdea(ctx, id)
}

func TestAddVertex(t *testing.T) {
	s := newShapes(t)
	sg := New(s.engine)
	assert.True(t, sg.Concrete(), "empty subgraph is concrete")

	k0, err := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, k0)
	assert.False(t, sg.Concrete())

	k1, err := sg.AddVertex(MatchID, s.square, VertexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, k1)
	id, ok := sg.GetIdea(k1)
	require.True(t, ok)
	assert.Equal(t, s.square, id)

	k2, err := sg.AddVertex(MatchSubstring, map[string]any{"value": "SQU", "path": "name"}, VertexOptions{})
	require.NoError(t, err)
	v, ok := sg.GetMatch(k2)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": "squ", "path": "name"}, v.Data)

	k3, err := sg.AddVertex(MatchExact, k1, VertexOptions{Pointer: true})
	require.NoError(t, err)
	v, _ = sg.GetMatch(k3)
	assert.Equal(t, 1, v.Data)

	assert.Equal(t, 4, sg.VertexCount())
}

func TestAddVertexErrors(t *testing.T) {
	sg := New(storage.NewMemoryEngine())
	target, err := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		matcher Matcher
		data    any
		opts    VertexOptions
		want    error
	}{
		{"unknown matcher", Matcher(99), 1, VertexOptions{}, ErrInvalidMatcher},
		{"zero matcher", Matcher(0), 1, VertexOptions{}, ErrInvalidMatcher},
		{"exact without data", MatchExact, nil, VertexOptions{}, ErrMissingData},
		{"id without data", MatchID, nil, VertexOptions{}, ErrMissingData},
		{"id with non-id data", MatchID, 42, VertexOptions{}, ErrMissingData},
		{"substring without value", MatchSubstring, map[string]any{"path": "a"}, VertexOptions{}, ErrMissingData},
		{"filler pointer", MatchFiller, target, VertexOptions{Pointer: true}, ErrPointerFiller},
		{"pointer to missing vertex", MatchExact, 17, VertexOptions{Pointer: true}, ErrInvalidVertex},
		{"pointer with non-key data", MatchExact, "zero", VertexOptions{Pointer: true}, ErrInvalidVertex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sg.AddVertex(tt.matcher, tt.data, tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 1, sg.VertexCount(), "failed adds must not allocate keys")
}

func TestAddEdge(t *testing.T) {
	sg := New(storage.NewMemoryEngine())
	a, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	b, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	typeOf := links.MustGet("type_of")

	k, err := sg.AddEdge(a, b, typeOf.Opposite(), EdgeOptions{Pref: 2})
	require.NoError(t, err)
	e, ok := sg.GetEdge(k)
	require.True(t, ok)
	assert.Equal(t, b, e.Src, "opposite links swap endpoints")
	assert.Equal(t, a, e.Dst)
	assert.Same(t, typeOf, e.Link)
	assert.Equal(t, 2, e.Options.Pref)

	_, err = sg.AddEdge(a, 9, typeOf, EdgeOptions{})
	assert.ErrorIs(t, err, ErrInvalidVertex)
	_, err = sg.AddEdge(a, b, nil, EdgeOptions{})
	assert.ErrorIs(t, err, ErrInvalidLink)
	assert.Equal(t, 1, sg.EdgeCount())
}

func TestAllEdgesCache(t *testing.T) {
	sg := New(storage.NewMemoryEngine())
	a, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	b, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	prop := links.MustGet("property")

	sg.AddEdge(a, b, prop, EdgeOptions{})
	assert.Len(t, sg.AllEdges(), 1)

	c := sg.Copy()
	sg.AddEdge(b, a, prop, EdgeOptions{})
	assert.Len(t, sg.AllEdges(), 2)
	assert.Len(t, c.AllEdges(), 1, "copies keep their own edge table")

	edges := sg.AllEdges()
	assert.Equal(t, 0, edges[0].Key)
	assert.Equal(t, 1, edges[1].Key)

	require.NotNil(t, sg.edgeCache)
	sg.AddVertex(MatchFiller, nil, VertexOptions{})
	assert.Nil(t, sg.edgeCache, "adding a vertex drops the edge cache")
	assert.Len(t, sg.AllEdges(), 2)
}

func TestConcreteFlagTracksBindings(t *testing.T) {
	s := newShapes(t)
	sg := New(s.engine)
	check := func() {
		t.Helper()
		assert.Equal(t, len(sg.AllIdeas()) == sg.VertexCount(), sg.Concrete())
	}

	check()
	v0, _ := sg.AddVertex(MatchID, s.square, VertexOptions{})
	check()
	v1, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	check()
	require.NoError(t, sg.SetIdea(v1, s.rectangle))
	check()
	assert.True(t, sg.Concrete())
	sg.DeleteIdea(v0)
	check()
	assert.False(t, sg.Concrete())
	sg.DeleteIdea(v0)
	check()

	assert.ErrorIs(t, sg.SetIdea(42, s.square), ErrInvalidVertex)
	assert.ErrorIs(t, sg.SetIdea(v0, ""), storage.ErrInvalidID)
}

func TestGetData(t *testing.T) {
	ctx := context.Background()
	s := newShapes(t)
	sg := New(s.engine)
	bound, _ := sg.AddVertex(MatchID, s.square, VertexOptions{})
	free, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})

	d, err := sg.GetData(ctx, bound)
	require.NoError(t, err)
	assert.Equal(t, "square", d.(map[string]any)["name"])

	d, err = sg.GetData(ctx, free)
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, sg.SetData(bound, "theory"))
	d, _ = sg.GetData(ctx, bound)
	assert.Equal(t, "theory", d)

	stored, _ := s.engine.GetData(ctx, s.square)
	assert.Equal(t, "square", stored.(map[string]any)["name"], "SetData never touches the store")

	sg.DeleteData(bound)
	d, _ = sg.GetData(ctx, bound)
	assert.Equal(t, "square", d.(map[string]any)["name"])

	assert.ErrorIs(t, sg.SetData(99, 1), ErrInvalidVertex)
}

func TestCopyIsolation(t *testing.T) {
	ctx := context.Background()
	s := newShapes(t)
	sg := New(s.engine)
	a, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	require.NoError(t, sg.SetData(a, 1))

	c := sg.Copy()
	require.NoError(t, c.SetIdea(a, s.square))
	require.NoError(t, c.SetData(a, 2))
	c.AddVertex(MatchFiller, nil, VertexOptions{})

	assert.False(t, sg.HasIdea(a))
	assert.Equal(t, 1, sg.VertexCount())
	d, _ := sg.GetData(ctx, a)
	assert.Equal(t, 1, d)

	require.NoError(t, sg.SetData(a, 3))
	d, _ = c.GetData(ctx, a)
	assert.Equal(t, 2, d)
	assert.Equal(t, 2, c.VertexCount())
}

func TestPointerCycle(t *testing.T) {
	sg := New(storage.NewMemoryEngine())
	a, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	p1, _ := sg.AddVertex(MatchExact, a, VertexOptions{Pointer: true})
	p2, _ := sg.AddVertex(MatchExact, p1, VertexOptions{Pointer: true})

	// Pointers can only target existing vertices, so a cycle has to be
	// forced through the table.
	v, _ := sg.GetMatch(p1)
	v.Data = p2
	sg.match.Set(p1, v)

	_, _, err := sg.pointerTarget(p2, sg.hasData)
	assert.ErrorIs(t, err, ErrPointerCycle)
}
