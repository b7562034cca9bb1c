package subgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ideagraph/pkg/storage"
)

func TestParseMatcher(t *testing.T) {
	for _, m := range []Matcher{MatchID, MatchFiller, MatchExact, MatchSimilar, MatchSubstring} {
		got, err := ParseMatcher(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMatcher("fuzzy")
	assert.ErrorIs(t, err, ErrInvalidMatcher)
	assert.Equal(t, "Matcher(42)", Matcher(42).String())
}

func TestMatchesID(t *testing.T) {
	id := storage.IdeaID("abc")
	assert.True(t, MatchesID(id, "abc"))
	assert.True(t, MatchesID("abc", id))
	assert.False(t, MatchesID(id, "abd"))
	assert.False(t, MatchesID(id, 1))
	assert.False(t, MatchesID("", ""))
}

func TestExact(t *testing.T) {
	assert.True(t, Exact(map[string]any{"a": float64(1), "b": []any{"x"}}, map[string]any{"a": 1, "b": []string{"x"}}))
	assert.True(t, Exact(nil, nil))
	assert.False(t, Exact(map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}))
	assert.False(t, Exact("1", 1))
	assert.False(t, Exact([]any{1, 2}, []any{2, 1}))
}

func TestSimilar(t *testing.T) {
	data := map[string]any{"a": 1, "b": 2}

	assert.True(t, Similar(data, map[string]any{"a": 1}))
	assert.False(t, Similar(data, map[string]any{"a": 2}))
	assert.True(t, Similar(data, map[string]any{}), "an empty spec matches anything")
	assert.False(t, Similar(data, map[string]any{"c": nil}), "missing keys never match")
	assert.True(t, Similar(map[string]any{"a": map[string]any{"x": 1.0}}, map[string]any{"a": map[string]any{"x": 1}}))
	assert.False(t, Similar("flat", map[string]any{"a": 1}))

	assert.Equal(t, map[string]any{"a": 1, "b": 2}, data, "data must not be mutated")
}

func TestSubstring(t *testing.T) {
	tests := []struct {
		name string
		data any
		spec any
		want bool
	}{
		{"nested path", map[string]any{"a": map[string]any{"b": "Hello"}}, map[string]any{"value": "ell", "path": "a.b"}, true},
		{"missing path", map[string]any{"a": map[string]any{"b": "Hello"}}, map[string]any{"value": "x", "path": "a.c"}, false},
		{"root string", "Hello World", SubstringSpec{Value: "WORLD"}, true},
		{"root not a string", map[string]any{"a": "b"}, SubstringSpec{Value: "a"}, false},
		{"path through non-map", map[string]any{"a": "b"}, SubstringSpec{Value: "b", Path: "a.b"}, false},
		{"path ends at number", map[string]any{"a": 12}, SubstringSpec{Value: "1", Path: "a"}, false},
		{"bad spec", "abc", 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substring(tt.data, tt.spec))
		})
	}
}

func TestFiller(t *testing.T) {
	assert.True(t, Filler(nil, nil))
	assert.True(t, MatchFiller.Matches("anything", 12))
}

func TestEqualNumbers(t *testing.T) {
	assert.True(t, Equal(4, 4.0))
	assert.True(t, Equal(int64(4), float64(4)))
	assert.True(t, Equal(map[string]int{"a": 1}, map[string]any{"a": float64(1)}))
	assert.False(t, Equal(4, "4"))
	assert.False(t, Equal(nil, 0))
}

func TestUnitsConflict(t *testing.T) {
	assert.True(t, unitsConflict(map[string]any{"unit": "m"}, map[string]any{"unit": "s"}))
	assert.False(t, unitsConflict(map[string]any{"unit": "m"}, map[string]any{"unit": "m"}))
	assert.False(t, unitsConflict(map[string]any{"unit": "m"}, map[string]any{"value": 1}))
	assert.False(t, unitsConflict(3, map[string]any{"unit": "m"}))
}
