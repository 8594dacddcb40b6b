package bithenge

import (
	"testing"

	"github.com/bithenge/bithenge/internal/diag"
	"github.com/stretchr/testify/require"
)

func TestFixedUintTransforms(t *testing.T) {
	tests := []struct {
		name  string
		xform Transform
		data  []byte
		want  int64
	}{
		{"uint8", Uint8, []byte{0x42}, 0x42},
		{"uint16le", Uint16LE, []byte{0x01, 0x02}, 0x0201},
		{"uint16be", Uint16BE, []byte{0x01, 0x02}, 0x0102},
		{"uint32le", Uint32LE, []byte{0x01, 0x02, 0x03, 0x04}, 0x04030201},
		{"uint32be", Uint32BE, []byte{0x01, 0x02, 0x03, 0x04}, 0x01020304},
		{"uint64le", Uint64LE, []byte{1, 0, 0, 0, 0, 0, 0, 0}, 1},
		{"uint64be", Uint64BE, []byte{0, 0, 0, 0, 0, 0, 0, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.xform.Apply(NewScope(nil), NewMemoryBlob(tt.data))
			require.NoError(t, err)
			require.Equal(t, tt.want, out.(*IntegerNode).Value)
		})
	}
}

func TestFixedUintTransformTooShort(t *testing.T) {
	_, err := Uint32LE.Apply(NewScope(nil), NewMemoryBlob([]byte{1, 2}))
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestUintBeLeParametric(t *testing.T) {
	require.Equal(t, 1, UintBe.(Parametric).NumParams())

	s := NewScope(nil)
	s.AllocParams(1)
	require.NoError(t, s.SetParam(0, NewInteger(4)))

	blob := NewBitsBeBlob(NewMemoryBlob([]byte{0b10110000}))
	out, n, err := UintBe.PrefixApply(s, blob)
	require.NoError(t, err)
	require.Equal(t, uint64(4), n)
	require.Equal(t, int64(0b1011), out.(*IntegerNode).Value)
}

func TestUintLeWidthFromParam(t *testing.T) {
	s := NewScope(nil)
	s.AllocParams(1)
	require.NoError(t, s.SetParam(0, NewInteger(4)))

	blob := NewBitsLeBlob(NewMemoryBlob([]byte{0b00001101}))
	out, n, err := UintLe.PrefixApply(s, blob)
	require.NoError(t, err)
	require.Equal(t, uint64(4), n)
	require.Equal(t, int64(0b1101), out.(*IntegerNode).Value)
}

func TestBitTransform(t *testing.T) {
	blob := NewBitsBeBlob(NewMemoryBlob([]byte{0b10000000}))
	out, n, err := Bit.PrefixApply(NewScope(nil), blob)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
	require.True(t, out.(*BooleanNode).Value)
}

func TestBitsBeLePrimitivesViewBlob(t *testing.T) {
	byteBlob := NewMemoryBlob([]byte{0xAB})
	out, err := BitsBe.Apply(NewScope(nil), byteBlob)
	require.NoError(t, err)
	bitBlob := out.(Blob)
	require.True(t, bitBlob.IsBitAddressable())

	_, err = BitsBe.PrefixLength(NewScope(nil), byteBlob)
	require.Error(t, err)
	require.Equal(t, diag.ENOTSUP, diag.CodeOf(err))
}

func TestAsciiTransform(t *testing.T) {
	out, err := Ascii.Apply(NewScope(nil), NewMemoryBlob([]byte("hello")))
	require.NoError(t, err)
	require.Equal(t, "hello", out.(*StringNode).Value)
}

func TestZeroTerminatedTransform(t *testing.T) {
	blob := NewMemoryBlob([]byte("abc\x00def"))
	n, err := ZeroTerminated.PrefixLength(NewScope(nil), blob)
	require.NoError(t, err)
	require.Equal(t, uint64(4), n)

	out, size, err := ZeroTerminated.PrefixApply(NewScope(nil), blob)
	require.NoError(t, err)
	require.Equal(t, uint64(4), size)
	data := out.(Blob)
	buf := make([]byte, 3)
	_, err = data.ReadBytes(0, buf)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf))
}

func TestZeroTerminatedTransformNoTerminator(t *testing.T) {
	blob := NewMemoryBlob([]byte("abc"))
	_, err := ZeroTerminated.PrefixLength(NewScope(nil), blob)
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestKnownLengthTransform(t *testing.T) {
	s := NewScope(nil)
	s.AllocParams(1)
	require.NoError(t, s.SetParam(0, NewInteger(3)))

	require.Equal(t, 1, KnownLength.(Parametric).NumParams())

	out, err := KnownLength.Apply(s, NewMemoryBlob([]byte("abc")))
	require.NoError(t, err)
	require.Equal(t, "abc", mustReadAll(t, out.(Blob)))

	_, err = KnownLength.Apply(s, NewMemoryBlob([]byte("abcd")))
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestNonzeroBooleanTransform(t *testing.T) {
	out, err := NonzeroBoolean.Apply(NewScope(nil), NewInteger(0))
	require.NoError(t, err)
	require.False(t, out.(*BooleanNode).Value)

	out, err = NonzeroBoolean.Apply(NewScope(nil), NewInteger(5))
	require.NoError(t, err)
	require.True(t, out.(*BooleanNode).Value)
}

func TestInvalidPrimitiveAlias(t *testing.T) {
	require.Same(t, InvalidTransform, Invalid)
}

func mustReadAll(t *testing.T, b Blob) string {
	t.Helper()
	size, err := b.Size()
	require.NoError(t, err)
	buf := make([]byte, size)
	_, err = b.ReadBytes(0, buf)
	require.NoError(t, err)
	return string(buf)
}
