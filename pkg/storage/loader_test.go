package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ideagraph/pkg/links"
)

const shapesDocument = `
ideas:
  - key: square
    data: {name: square, sides: 4}
  - key: rectangle
    data: {name: rectangle, tags: [a, b]}
  - key: quadrilateral
    data: quadrilateral
links:
  - {src: square, link: type_of, dst: rectangle}
  - {src: rectangle, link: type_of, dst: quadrilateral}
`

func TestImport(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()
	defer engine.Close()

	ids, err := Import(ctx, engine, strings.NewReader(shapesDocument))
	require.NoError(t, err)
	require.Len(t, ids, 3)

	data, err := engine.GetData(ctx, ids["rectangle"])
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "rectangle", "tags": []any{"a", "b"}}, data)

	parents, err := engine.Links(ctx, ids["square"], links.MustGet("type_of"))
	require.NoError(t, err)
	assert.Equal(t, []IdeaID{ids["rectangle"]}, parents)
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shapesDocument), 0o644))

	engine := NewMemoryEngine()
	defer engine.Close()

	ids, err := ImportFile(context.Background(), engine, path)
	require.NoError(t, err)
	assert.Contains(t, ids, "quadrilateral")

	_, err = ImportFile(context.Background(), engine, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestImportValidatesBeforeWriting(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"unknown link", "ideas: [{key: a}]\nlinks: [{src: a, link: nope, dst: a}]", ErrInvalidLink},
		{"unknown key", "ideas: [{key: a}]\nlinks: [{src: a, link: type_of, dst: b}]", ErrInvalidData},
		{"duplicate key", "ideas: [{key: a}, {key: a}]", ErrInvalidData},
		{"missing key", "ideas: [{data: 1}]", ErrInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMemoryEngine()
			defer engine.Close()

			_, err := Import(context.Background(), engine, strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.want)

			count, _ := engine.IdeaCount(context.Background())
			assert.Zero(t, count)
		})
	}
}

func TestImportEmptyDocument(t *testing.T) {
	engine := NewMemoryEngine()
	defer engine.Close()

	ids, err := Import(context.Background(), engine, strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ids)
}
