package script

import (
	"testing"

	"github.com/bithenge/bithenge"
	"github.com/stretchr/testify/require"
)

func TestParseStringFixedRecord(t *testing.T) {
	src := `
transform main = struct {
	.id <- uint8;
	.value <- uint16le;
};
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{7, 1, 2}))
	require.NoError(t, err)

	internal := out.(bithenge.Internal)
	id, err := internal.Get(bithenge.NewString("id"))
	require.NoError(t, err)
	require.Equal(t, int64(7), id.(*bithenge.IntegerNode).Value)

	value, err := internal.Get(bithenge.NewString("value"))
	require.NoError(t, err)
	require.Equal(t, int64(0x0201), value.(*bithenge.IntegerNode).Value)
}

func TestParseStringNoMainIsError(t *testing.T) {
	_, err := ParseString("t.bht", "transform other = uint8;")
	require.Error(t, err)
}

func TestParseStringUnknownIdentifier(t *testing.T) {
	_, err := ParseString("t.bht", "transform main = struct { .x <- y; };")
	require.Error(t, err)
}

func TestParseStringCompose(t *testing.T) {
	src := "transform main = nonzero_boolean <- uint8;"
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{9}))
	require.NoError(t, err)
	require.True(t, out.(*bithenge.BooleanNode).Value)
}

func TestParseStringIfElse(t *testing.T) {
	src := `
transform main = struct {
	.tag <- uint8;
	if (.tag == 1) {
		.a <- uint8;
	} else {
		.b <- uint8;
	}
};
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{1, 42}))
	require.NoError(t, err)
	internal := out.(bithenge.Internal)
	a, err := internal.Get(bithenge.NewString("a"))
	require.NoError(t, err)
	require.Equal(t, int64(42), a.(*bithenge.IntegerNode).Value)

	out, err = xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{0, 43}))
	require.NoError(t, err)
	internal = out.(bithenge.Internal)
	b, err := internal.Get(bithenge.NewString("b"))
	require.NoError(t, err)
	require.Equal(t, int64(43), b.(*bithenge.IntegerNode).Value)
}

func TestParseStringSwitch(t *testing.T) {
	src := `
transform main = struct {
	.tag <- uint8;
	switch (.tag) {
		1: { .value <- uint8; };
		2: { .value <- uint16le; };
		else: { .value <- uint8; };
	}
};
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{2, 1, 2}))
	require.NoError(t, err)
	internal := out.(bithenge.Internal)
	v, err := internal.Get(bithenge.NewString("value"))
	require.NoError(t, err)
	require.Equal(t, int64(0x0201), v.(*bithenge.IntegerNode).Value)
}

func TestParseStringSwitchNoMatchNoElseFails(t *testing.T) {
	src := `
transform main = struct {
	.tag <- uint8;
	switch (.tag) {
		1: { .value <- uint8; };
	}
};
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	_, err = xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{9, 1}))
	require.Error(t, err)
}

func TestParseStringRepeatWithCount(t *testing.T) {
	src := `
transform main = struct {
	.n <- uint8;
	.items <- repeat(.n) { uint8 };
};
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{3, 1, 2, 3}))
	require.NoError(t, err)
	internal := out.(bithenge.Internal)
	items, err := internal.Get(bithenge.NewString("items"))
	require.NoError(t, err)

	var vals []int64
	err = items.(bithenge.Internal).ForEach(func(key, value bithenge.Node) error {
		vals = append(vals, value.(*bithenge.IntegerNode).Value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, vals)
}

func TestParseStringDoWhile(t *testing.T) {
	// The condition can only name the just-decoded element through a scope
	// member, never through `in` (which stays bound to the whole input
	// blob throughout do_while, per the original do_while_node_for_each).
	// Wrapping the element in a struct gives the condition something to
	// name: `.v`.
	src := `
transform main = do {
	struct { .v <- uint8; }
} while (.v != 0);
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{1, 2, 0}))
	require.NoError(t, err)
	var vals []int64
	err = out.(bithenge.Internal).ForEach(func(key, value bithenge.Node) error {
		elem := value.(bithenge.Internal)
		v, err := elem.Get(bithenge.NewString("v"))
		require.NoError(t, err)
		vals = append(vals, v.(*bithenge.IntegerNode).Value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 0}, vals)
}

func TestParseStringUserDefinedTransformWithParams(t *testing.T) {
	// Two 4-bit nibbles packed into a single byte, decoded through a
	// user-defined parametric transform wrapping uint_be.
	src := `
transform nibble(n) = uint_be(n);
transform main = struct {
	.hi <- nibble(4);
	.lo <- nibble(4);
} <- bits_be;
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{0b10110101}))
	require.NoError(t, err)
	internal := out.(bithenge.Internal)

	hi, err := internal.Get(bithenge.NewString("hi"))
	require.NoError(t, err)
	require.Equal(t, int64(0b1011), hi.(*bithenge.IntegerNode).Value)

	lo, err := internal.Get(bithenge.NewString("lo"))
	require.NoError(t, err)
	require.Equal(t, int64(0b0101), lo.(*bithenge.IntegerNode).Value)
}

func TestParseStringZeroTerminatedString(t *testing.T) {
	// zero_terminated is the byte consumer (rightmost); ascii is the value
	// producer (leftmost) reading the bytes it found. See DESIGN.md's
	// "S4 compose order" entry.
	src := `
transform main = struct {
	.name <- ascii <- zero_terminated;
	.trailer <- uint8;
};
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte("hi\x00\x09")))
	require.NoError(t, err)
	internal := out.(bithenge.Internal)

	name, err := internal.Get(bithenge.NewString("name"))
	require.NoError(t, err)
	require.Equal(t, "hi", name.(*bithenge.StringNode).Value)

	trailer, err := internal.Get(bithenge.NewString("trailer"))
	require.NoError(t, err)
	require.Equal(t, int64(9), trailer.(*bithenge.IntegerNode).Value)
}

func TestParseStringSelfRecursiveTransform(t *testing.T) {
	// A self-referential definition must resolve because its barrier wrapper
	// is registered before the body is parsed.
	src := `
transform countdown = struct {
	.n <- uint8;
	if (.n == 0) {
	} else {
		.rest <- countdown;
	}
};
transform main = countdown;
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{2, 1, 0}))
	require.NoError(t, err)
	require.Equal(t, bithenge.KindInternal, out.Kind())
}

func TestParseStringWrongArity(t *testing.T) {
	src := `
transform main = uint_be(1, 2);
`
	_, err := ParseString("t.bht", src)
	require.Error(t, err)
}

func TestParseStringPartialWithOffset(t *testing.T) {
	// partial(offset) skips the leading bytes of `in` and decodes a prefix
	// of the rest, without needing to account for how much it consumed.
	src := `transform main = partial(1) { uint8 };`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte{0xFF, 7}))
	require.NoError(t, err)
	require.Equal(t, int64(7), out.(*bithenge.IntegerNode).Value)
}

func TestParseStringLengthPrefixedString(t *testing.T) {
	src := `
transform main = struct {
	.len <- uint8;
	.payload <- ascii <- known_length(.len);
};
`
	xform, err := ParseString("t.bht", src)
	require.NoError(t, err)

	out, err := xform.Apply(bithenge.NewScope(nil), bithenge.NewMemoryBlob([]byte("\x05hello")))
	require.NoError(t, err)
	internal := out.(bithenge.Internal)
	payload, err := internal.Get(bithenge.NewString("payload"))
	require.NoError(t, err)
	require.Equal(t, "hello", payload.(*bithenge.StringNode).Value)
}
