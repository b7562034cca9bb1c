package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	typeOf := Get("type_of")
	require.NotNil(t, typeOf)
	assert.True(t, typeOf.Transitive())
	assert.False(t, typeOf.IsOpposite())
	assert.Equal(t, "type_of__", typeOf.Opposite().Name())
	assert.True(t, typeOf.Opposite().Transitive())
	assert.Same(t, typeOf, typeOf.Opposite().Canonical())

	ctx := MustGet("context")
	assert.True(t, ctx.IsUndirected())
	assert.Same(t, ctx, ctx.Canonical())

	assert.Equal(t, "description_of", MustGet("thought_description").Opposite().Name())
	assert.Nil(t, Get("no_such_link"))
}

func TestCreate(t *testing.T) {
	l, err := Create("test_create_owns", WithOpposite("test_create_owned_by"))
	require.NoError(t, err)
	assert.Same(t, l, Get("test_create_owns"))
	assert.Same(t, l.Opposite(), Get("test_create_owned_by"))
	assert.True(t, Known(l))
	assert.True(t, Known(l.Opposite()))
	assert.Contains(t, Names(), "test_create_owns")

	_, err = Create("test_create_owns")
	assert.ErrorIs(t, err, ErrLinkExists)

	_, err = Create("")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Create("test_create_self", WithOpposite("test_create_self"))
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestKnownRejectsForeignLinks(t *testing.T) {
	assert.False(t, Known(nil))
	assert.False(t, Known(&Link{name: "type_of"}))
}

func TestMustGetPanics(t *testing.T) {
	assert.Panics(t, func() { MustGet("missing_link_name") })
}
