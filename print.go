package bithenge

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/bithenge/bithenge/internal/diag"
)

// PrintKind selects the pretty-printer's output dialect (spec §6.3).
type PrintKind int

const (
	// PrintJSON renders JSON-flavored output.
	PrintJSON PrintKind = iota
	// PrintPython renders Python-repr-flavored output.
	PrintPython
)

type printState struct {
	kind  PrintKind
	w     io.Writer
	depth int
}

func (s *printState) newline() error {
	if _, err := io.WriteString(s.w, "\n"); err != nil {
		return err
	}
	_, err := io.WriteString(s.w, strings.Repeat("    ", s.depth))
	return err
}

// FormatNode writes tree as text to w in the given dialect (spec §6.3
// print_node, grounded in original_source/.../print.c).
func FormatNode(w io.Writer, kind PrintKind, node Node) error {
	return printNode(&printState{kind: kind, w: w}, node)
}

// FormatNodeToString is a convenience wrapper around FormatNode returning a
// string (spec §6.3 print_node_to_string).
func FormatNodeToString(kind PrintKind, node Node) (string, error) {
	var buf bytes.Buffer
	if err := FormatNode(&buf, kind, node); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func printNode(s *printState, node Node) error {
	switch node.Kind() {
	case KindInternal:
		return printInternal(s, node.(Internal))
	case KindBoolean:
		return printBoolean(s, node.(*BooleanNode))
	case KindInteger:
		return printInteger(s, node.(*IntegerNode))
	case KindString:
		return printString(s, node.(*StringNode))
	case KindBlob:
		return printBlob(s, node.(Blob))
	default:
		return diag.Errorf(diag.ENOTSUP, "print: unsupported node kind")
	}
}

func printInternal(s *printState, node Internal) error {
	if _, err := io.WriteString(s.w, "{"); err != nil {
		return err
	}
	s.depth++
	first := true
	err := node.ForEach(func(key, value Node) error {
		if !first {
			if _, err := io.WriteString(s.w, ","); err != nil {
				return err
			}
		}
		if err := s.newline(); err != nil {
			return err
		}
		first = false
		addQuotes := s.kind == PrintJSON && key.Kind() != KindString
		if addQuotes {
			if _, err := io.WriteString(s.w, "\""); err != nil {
				return err
			}
		}
		if err := printNode(s, key); err != nil {
			return err
		}
		if addQuotes {
			if _, err := io.WriteString(s.w, "\""); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(s.w, ": "); err != nil {
			return err
		}
		return printNode(s, value)
	})
	if err != nil {
		return err
	}
	s.depth--
	if !first {
		if err := s.newline(); err != nil {
			return err
		}
	}
	_, err = io.WriteString(s.w, "}")
	return err
}

func printBoolean(s *printState, node *BooleanNode) error {
	var text string
	switch s.kind {
	case PrintPython:
		text = map[bool]string{true: "True", false: "False"}[node.Value]
	default:
		text = map[bool]string{true: "true", false: "false"}[node.Value]
	}
	_, err := io.WriteString(s.w, text)
	return err
}

func printInteger(s *printState, node *IntegerNode) error {
	_, err := fmt.Fprintf(s.w, "%d", node.Value)
	return err
}

func printString(s *printState, node *StringNode) error {
	if _, err := io.WriteString(s.w, "\""); err != nil {
		return err
	}
	for _, ch := range node.Value {
		var err error
		switch {
		case ch == '"' || ch == '\\':
			_, err = fmt.Fprintf(s.w, "\\%c", ch)
		case ch <= 0x1f:
			_, err = fmt.Fprintf(s.w, "\\u%04x", ch)
		default:
			_, err = fmt.Fprintf(s.w, "%c", ch)
		}
		if err != nil {
			return err
		}
	}
	_, err := io.WriteString(s.w, "\"")
	return err
}

func printBlob(s *printState, blob Blob) error {
	prefix := "\""
	if s.kind == PrintPython {
		prefix = "b\""
	}
	if _, err := io.WriteString(s.w, prefix); err != nil {
		return err
	}
	size, err := blob.Size()
	if err != nil {
		return err
	}
	if blob.IsBitAddressable() {
		return diag.Errorf(diag.ENOTSUP, "printing a bit blob directly is not supported")
	}
	buf := make([]byte, 1024)
	var pos uint64
	for pos < size {
		n, err := blob.ReadBytes(pos, buf)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if _, err := fmt.Fprintf(s.w, "\\x%02x", buf[i]); err != nil {
				return err
			}
		}
		pos += uint64(n)
		if n == 0 {
			break
		}
	}
	_, err = io.WriteString(s.w, "\"")
	return err
}

// formatScopeMessage implements the scope diagnostic formatter's one
// nonstandard verb, %t, which pretty-prints a Node argument (spec §4.2);
// every other verb is delegated to fmt.Sprintf unchanged.
func formatScopeMessage(format string, args ...interface{}) string {
	var out strings.Builder
	argi := 0
	nextArg := func() interface{} {
		if argi >= len(args) {
			return nil
		}
		a := args[argi]
		argi++
		return a
	}
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			out.WriteByte(format[i])
			continue
		}
		verb := format[i+1]
		if verb == 't' {
			a := nextArg()
			if node, ok := a.(Node); ok {
				text, err := FormatNodeToString(PrintJSON, node)
				if err == nil {
					out.WriteString(text)
				} else {
					fmt.Fprintf(&out, "%v", a)
				}
			} else {
				fmt.Fprintf(&out, "%v", a)
			}
			i++
			continue
		}
		a := nextArg()
		out.WriteString(fmt.Sprintf("%"+string(verb), a))
		i++
	}
	return out.String()
}
