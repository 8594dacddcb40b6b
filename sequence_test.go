package bithenge

import (
	"testing"

	"github.com/bithenge/bithenge/internal/diag"
	"github.com/stretchr/testify/require"
)

func TestStructTransformNamedFields(t *testing.T) {
	xform := NewStructTransform([]NamedSubtransform{
		NewNamedField("a", Uint8),
		NewNamedField("b", Uint16LE),
	})
	blob := NewMemoryBlob([]byte{1, 2, 3})
	out, err := xform.Apply(NewScope(nil), blob)
	require.NoError(t, err)

	internal := out.(Internal)
	a, err := internal.Get(NewString("a"))
	require.NoError(t, err)
	require.Equal(t, int64(1), a.(*IntegerNode).Value)

	b, err := internal.Get(NewString("b"))
	require.NoError(t, err)
	require.Equal(t, int64(0x0302), b.(*IntegerNode).Value)

	var keys []string
	err = internal.ForEach(func(key, value Node) error {
		keys = append(keys, key.(*StringNode).Value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestStructTransformMustConsumeEntireBlob(t *testing.T) {
	xform := NewStructTransform([]NamedSubtransform{NewNamedField("a", Uint8)})
	_, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2}))
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestStructTransformUnnamedFieldsMerge(t *testing.T) {
	inner := NewStructTransform([]NamedSubtransform{
		NewNamedField("x", Uint8),
	})
	outer := NewStructTransform([]NamedSubtransform{
		NewNamedField("", inner),
		NewNamedField("y", Uint8),
	})
	out, err := outer.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2}))
	require.NoError(t, err)
	internal := out.(Internal)

	x, err := internal.Get(NewString("x"))
	require.NoError(t, err)
	require.Equal(t, int64(1), x.(*IntegerNode).Value)

	y, err := internal.Get(NewString("y"))
	require.NoError(t, err)
	require.Equal(t, int64(2), y.(*IntegerNode).Value)
}

func TestStructTransformFieldCanSeeSiblingViaCurrentNode(t *testing.T) {
	// A field expression-transform reading `.a` sees the sibling decoded
	// just before it, via the struct node installed as the current node.
	xform := NewStructTransform([]NamedSubtransform{
		NewNamedField("a", Uint8),
		NewNamedField("b", NewExpressionTransform(NewScopeMemberExpression("a"))),
	})
	out, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{5}))
	require.NoError(t, err)
	internal := out.(Internal)
	b, err := internal.Get(NewString("b"))
	require.NoError(t, err)
	require.Equal(t, int64(5), b.(*IntegerNode).Value)
}

func TestRepeatTransformWithCount(t *testing.T) {
	xform := NewRepeatTransform(Uint8, NewConstExpression(NewInteger(3)))
	out, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2, 3}))
	require.NoError(t, err)

	internal := out.(Internal)
	var vals []int64
	err = internal.ForEach(func(key, value Node) error {
		vals = append(vals, value.(*IntegerNode).Value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, vals)
}

func TestRepeatTransformWithCountMustConsumeWholeBlob(t *testing.T) {
	xform := NewRepeatTransform(Uint8, NewConstExpression(NewInteger(2)))
	_, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2, 3}))
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestRepeatTransformWithoutCountStopsGracefully(t *testing.T) {
	// uint16le needs 2 bytes per element; 5 bytes fit 2 elements with 1 left
	// over, which fails to decode and ends the repetition.
	xform := NewRepeatTransform(Uint16LE, nil)
	out, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 0, 2, 0, 0xFF}))
	require.NoError(t, err)

	internal := out.(Internal)
	count := 0
	err = internal.ForEach(func(key, value Node) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestRepeatTransformGetOutOfRange(t *testing.T) {
	xform := NewRepeatTransform(Uint8, NewConstExpression(NewInteger(2)))
	n, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2}))
	require.NoError(t, err)
	internal := n.(Internal)

	_, err = internal.Get(NewInteger(5))
	require.Error(t, err)
	require.Equal(t, diag.ENOENT, diag.CodeOf(err))
}

func TestDoWhileTransform(t *testing.T) {
	// Decode bytes until a byte equal to zero is produced (inclusive).
	element := Uint8
	cond := NewBinaryExpression(OpNe, NewCurrentNodeExpression(), NewConstExpression(NewInteger(0)))
	xform := NewDoWhileTransform(element, cond)

	out, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2, 0}))
	require.NoError(t, err)

	internal := out.(Internal)
	var vals []int64
	err = internal.ForEach(func(key, value Node) error {
		vals = append(vals, value.(*IntegerNode).Value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 0}, vals)
}

func TestDoWhileTransformMustConsumeEntireBlob(t *testing.T) {
	element := Uint8
	cond := NewConstExpression(FalseNode)
	xform := NewDoWhileTransform(element, cond)

	_, err := xform.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2}))
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}
