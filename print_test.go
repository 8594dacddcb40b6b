package bithenge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatNodeToStringScalars(t *testing.T) {
	tests := []struct {
		name string
		kind PrintKind
		node Node
		want string
	}{
		{"json true", PrintJSON, TrueNode, "true"},
		{"json false", PrintJSON, FalseNode, "false"},
		{"python true", PrintPython, TrueNode, "True"},
		{"python false", PrintPython, FalseNode, "False"},
		{"integer", PrintJSON, NewInteger(-7), "-7"},
		{"string", PrintJSON, NewString(`a"b`), `"a\"b"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatNodeToString(tt.kind, tt.node)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFormatNodeInternal(t *testing.T) {
	n := NewSimpleInternal([]struct{ Key, Value Node }{
		{NewString("a"), NewInteger(1)},
	})
	got, err := FormatNodeToString(PrintJSON, n)
	require.NoError(t, err)
	require.Equal(t, "{\n    \"a\": 1\n}", got)
}

func TestFormatNodeEmptyInternal(t *testing.T) {
	got, err := FormatNodeToString(PrintJSON, EmptyInternal)
	require.NoError(t, err)
	require.Equal(t, "{}", got)
}

func TestFormatNodeBlob(t *testing.T) {
	got, err := FormatNodeToString(PrintJSON, NewMemoryBlob([]byte{0xAB, 0xCD}))
	require.NoError(t, err)
	require.Equal(t, `"\xab\xcd"`, got)
}

func TestFormatNodePythonBlobPrefix(t *testing.T) {
	got, err := FormatNodeToString(PrintPython, NewMemoryBlob([]byte{0x01}))
	require.NoError(t, err)
	require.Equal(t, `b"\x01"`, got)
}
