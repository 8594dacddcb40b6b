package bithenge

import (
	"testing"

	"github.com/bithenge/bithenge/internal/diag"
	"github.com/stretchr/testify/require"
)

func TestComposeTransform(t *testing.T) {
	// compose(nonzero_boolean <- uint8): rightmost runs first on the raw
	// blob, leftmost post-processes its result.
	c := NewComposeTransform([]Transform{NonzeroBoolean, Uint8})
	out, err := c.Apply(NewScope(nil), NewMemoryBlob([]byte{5}))
	require.NoError(t, err)
	require.True(t, out.(*BooleanNode).Value)

	out, err = c.Apply(NewScope(nil), NewMemoryBlob([]byte{0}))
	require.NoError(t, err)
	require.False(t, out.(*BooleanNode).Value)
}

func TestComposeTransformPrefixLengthDelegatesToLast(t *testing.T) {
	c := NewComposeTransform([]Transform{NonzeroBoolean, Uint16LE})
	n, err := c.PrefixLength(NewScope(nil), NewMemoryBlob([]byte{1, 0, 0xFF}))
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestIfTransform(t *testing.T) {
	xform := NewIfTransform(NewConstExpression(TrueNode), Uint8, Uint16LE)
	out, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{9}))
	require.NoError(t, err)
	require.Equal(t, int64(9), out.(*IntegerNode).Value)

	xform = NewIfTransform(NewConstExpression(FalseNode), Uint8, Uint16LE)
	out, err = xform.Apply(NewScope(nil), NewMemoryBlob([]byte{9, 0}))
	require.NoError(t, err)
	require.Equal(t, int64(9), out.(*IntegerNode).Value)
}

func TestIfTransformRequiresBoolean(t *testing.T) {
	xform := NewIfTransform(NewConstExpression(NewInteger(1)), Uint8, Uint8)
	_, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{1}))
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestInvalidTransform(t *testing.T) {
	_, err := InvalidTransform.Apply(NewScope(nil), NewMemoryBlob(nil))
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestPartialTransform(t *testing.T) {
	p := NewPartialTransform(Uint8)
	out, err := p.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2, 3}))
	require.NoError(t, err)
	require.Equal(t, int64(1), out.(*IntegerNode).Value)

	_, err = p.PrefixLength(NewScope(nil), NewMemoryBlob([]byte{1}))
	require.Error(t, err)
	require.Equal(t, diag.ENOTSUP, diag.CodeOf(err))
}

func TestBarrierTransform(t *testing.T) {
	barrier := NewBarrierTransform(0)
	barrier.SetInner(Uint8)
	require.Equal(t, 0, barrier.NumParams())

	out, err := barrier.Apply(NewScope(nil), NewMemoryBlob([]byte{42}))
	require.NoError(t, err)
	require.Equal(t, int64(42), out.(*IntegerNode).Value)
}

func TestBarrierTransformBlocksScopeMemberLookup(t *testing.T) {
	barrier := NewBarrierTransform(0)
	barrier.SetInner(NewExpressionTransform(NewScopeMemberExpression("x")))

	outer := NewScope(nil)
	outer.SetCurrentNode(NewSimpleInternal([]struct{ Key, Value Node }{
		{NewString("x"), NewInteger(1)},
	}))

	_, err := barrier.Apply(outer, NewInteger(0))
	require.Error(t, err)
	require.Equal(t, diag.ENOENT, diag.CodeOf(err))
}

func TestBarrierTransformForwardsParamsFromOuterScope(t *testing.T) {
	barrier := NewBarrierTransform(1)
	barrier.SetInner(NewExpressionTransform(NewParamExpression(0)))

	outer := NewScope(nil)
	outer.AllocParams(1)
	require.NoError(t, outer.SetParam(0, NewInteger(77)))

	out, err := barrier.Apply(outer, NewInteger(0))
	require.NoError(t, err)
	require.Equal(t, int64(77), out.(*IntegerNode).Value)
}

func TestParamWrapperTransform(t *testing.T) {
	inner := NewExpressionTransform(NewParamExpression(0))
	wrapped := NewParamWrapperTransform(inner, []Expression{NewConstExpression(NewInteger(5))})

	out, err := wrapped.Apply(NewScope(nil), NewInteger(0))
	require.NoError(t, err)
	require.Equal(t, int64(5), out.(*IntegerNode).Value)
}

func TestExpressionTransformSetsInNode(t *testing.T) {
	xform := NewExpressionTransform(NewInNodeExpression())
	out, err := xform.Apply(NewScope(nil), NewInteger(3))
	require.NoError(t, err)
	require.Equal(t, int64(3), out.(*IntegerNode).Value)
}

func TestInputlessTransform(t *testing.T) {
	xform := NewInputlessTransform(NewConstExpression(NewInteger(1)))
	out, err := xform.Apply(NewScope(nil), NewMemoryBlob(nil))
	require.NoError(t, err)
	require.Equal(t, int64(1), out.(*IntegerNode).Value)

	n, err := xform.PrefixLength(NewScope(nil), NewMemoryBlob(nil))
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)
}
