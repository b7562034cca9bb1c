package subgraph

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ideagraph/pkg/links"
	"github.com/orneryd/ideagraph/pkg/storage"
)

func TestStringifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newShapes(t)

	sg := New(s.engine)
	sq, _ := sg.AddVertex(MatchID, s.square, VertexOptions{Transitionable: true})
	free, _ := sg.AddVertex(MatchFiller, nil, VertexOptions{})
	ex, _ := sg.AddVertex(MatchExact, map[string]any{"sides": 4}, VertexOptions{})
	sim, _ := sg.AddVertex(MatchSimilar, map[string]any{"name": "rectangle"}, VertexOptions{Transitionable: true})
	sub, _ := sg.AddVertex(MatchSubstring, SubstringSpec{Value: "Quad", Path: "name"}, VertexOptions{})
	ptr, _ := sg.AddVertex(MatchExact, sq, VertexOptions{Pointer: true})
	sg.AddEdge(free, sq, links.MustGet("type_of"), EdgeOptions{Pref: 3, Transitive: true})
	sg.AddEdge(ex, sim, links.MustGet("property_of"), EdgeOptions{Transitionable: true})
	sg.AddEdge(sub, ptr, links.MustGet("context"), EdgeOptions{})
	require.NoError(t, sg.SetIdea(sim, s.rectangle))
	require.NoError(t, sg.SetData(sq, map[string]any{"name": "square", "sides": 4, "unit": "cm"}))

	text, err := sg.Stringify()
	require.NoError(t, err)

	parsed, err := Parse(s.engine, text)
	require.NoError(t, err)

	again, err := parsed.Stringify()
	require.NoError(t, err)
	assert.Equal(t, text, again)

	assert.Equal(t, sg.VertexCount(), parsed.VertexCount())
	assert.Equal(t, sg.EdgeCount(), parsed.EdgeCount())
	assert.Equal(t, sg.Concrete(), parsed.Concrete())
	assert.Equal(t, sg.AllIdeas(), parsed.AllIdeas())

	for k := 0; k < sg.VertexCount(); k++ {
		want, _ := sg.GetMatch(k)
		got, _ := parsed.GetMatch(k)
		assert.Equal(t, want.Matcher, got.Matcher, "vertex %d", k)
		assert.Equal(t, want.Options, got.Options, "vertex %d", k)
	}
	v, _ := parsed.GetMatch(ptr)
	assert.Equal(t, sq, v.Data, "pointer targets come back as keys")

	for _, e := range sg.AllEdges() {
		got, ok := parsed.GetEdge(e.Key)
		require.True(t, ok)
		assert.Equal(t, e.Edge, got)
	}
	// property_of is stored as property with swapped endpoints.
	e, _ := parsed.GetEdge(1)
	assert.Equal(t, "property", e.Link.Name())
	assert.Equal(t, sim, e.Src)

	d, err := parsed.GetData(ctx, sq)
	require.NoError(t, err)
	assert.True(t, Equal(map[string]any{"name": "square", "sides": 4, "unit": "cm"}, d))
}

func TestStringifyFormat(t *testing.T) {
	s := newShapes(t)
	sg := New(s.engine)
	for i := 0; i < 11; i++ {
		sg.AddVertex(MatchID, s.square, VertexOptions{})
	}
	sg.SetData(10, 1)
	sg.SetData(2, 2)

	text, err := sg.Stringify()
	require.NoError(t, err)

	assert.Less(t, strings.Index(text, `"9":`), strings.Index(text, `"10":`), "keys are ordered numerically")
	assert.Contains(t, text, `"d":[[2,2],[10,1]]`)
	assert.True(t, strings.HasSuffix(text, `"vc":11,"ec":0,"c":true}`))

	var generic map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &generic))
	for _, key := range []string{"m", "i", "d", "e", "vc", "ec", "c"} {
		assert.Contains(t, generic, key)
	}

	b, err := json.Marshal(sg)
	require.NoError(t, err)
	assert.JSONEq(t, text, string(b))
}

func TestParseErrors(t *testing.T) {
	engine := storage.NewMemoryEngine()
	defer engine.Close()

	tests := []struct {
		name string
		text string
	}{
		{"not json", `{"m":`},
		{"count mismatch", `{"m":{},"i":{},"d":[],"e":{},"vc":1,"ec":0,"c":false}`},
		{"unknown matcher", `{"m":{"0":{"matcher":"fuzzy","data":1,"options":{}}},"i":{},"d":[],"e":{},"vc":1,"ec":0,"c":false}`},
		{"unknown link", `{"m":{"0":{"matcher":"filler","data":null,"options":{}}},"i":{},"d":[],"e":{"0":{"src":0,"link":"nope","dst":0,"options":{}}},"vc":1,"ec":1,"c":false}`},
		{"edge to missing vertex", `{"m":{"0":{"matcher":"filler","data":null,"options":{}}},"i":{},"d":[],"e":{"0":{"src":0,"link":"property","dst":4,"options":{}}},"vc":1,"ec":1,"c":false}`},
		{"concrete mismatch", `{"m":{"0":{"matcher":"filler","data":null,"options":{}}},"i":{},"d":[],"e":{},"vc":1,"ec":0,"c":true}`},
		{"data for missing vertex", `{"m":{},"i":{},"d":[[3,1]],"e":{},"vc":0,"ec":0,"c":true}`},
		{"gap in keys", `{"m":{"1":{"matcher":"filler","data":null,"options":{}}},"i":{},"d":[],"e":{},"vc":1,"ec":0,"c":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(engine, tt.text)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}
