// Package bithenge implements a scriptable binary-decoder engine: a small
// reference tree model (Node), lazily-sliced byte/bit blobs (Blob), a
// transform/expression interpreter that turns blobs into trees, and (in
// internal/script) a compiler for the small declarative language that
// describes how to do so.
package bithenge

import (
	"bytes"

	"github.com/bithenge/bithenge/internal/diag"
)

// NodeKind identifies which of the five variants a Node carries.
type NodeKind int

const (
	// KindBoolean carries a bool.
	KindBoolean NodeKind = iota
	// KindInteger carries a signed, platform-wide integer.
	KindInteger
	// KindString carries a UTF-8/ASCII byte sequence.
	KindString
	// KindBlob carries a byte- or bit-addressable sequence; see Blob.
	KindBlob
	// KindInternal carries an associative key/value map; see Internal.
	KindInternal
)

// Node is a tagged value: Boolean, Integer, String, Blob, or Internal.
type Node interface {
	Kind() NodeKind
}

// BooleanNode is the Boolean variant. TrueNode and FalseNode are the two
// canonical shared instances; constructors should prefer them over
// allocating new ones.
type BooleanNode struct {
	Value bool
}

// Kind implements Node.
func (n *BooleanNode) Kind() NodeKind { return KindBoolean }

// TrueNode and FalseNode are the canonical shared Boolean instances (spec
// §3.1: "Two canonical immutable instances (true/false) are shared
// globally").
var (
	TrueNode  = &BooleanNode{Value: true}
	FalseNode = &BooleanNode{Value: false}
)

// NewBoolean returns the canonical Boolean node for value.
func NewBoolean(value bool) *BooleanNode {
	if value {
		return TrueNode
	}
	return FalseNode
}

// IntegerNode is the Integer variant: a signed, platform-wide integer.
type IntegerNode struct {
	Value int64
}

// Kind implements Node.
func (n *IntegerNode) Kind() NodeKind { return KindInteger }

// NewInteger constructs an Integer node.
func NewInteger(value int64) *IntegerNode {
	return &IntegerNode{Value: value}
}

// StringNode is the String variant: a UTF-8 (or ASCII) byte sequence.
type StringNode struct {
	Value string
}

// Kind implements Node.
func (n *StringNode) Kind() NodeKind { return KindString }

// NewString constructs a String node. The "owns buffer" flag from the
// source is not meaningful in Go (strings are immutable, GC-managed) and is
// therefore not modeled.
func NewString(value string) *StringNode {
	return &StringNode{Value: value}
}

// Internal is the Internal variant: a polymorphic associative map from
// key nodes to value nodes.
type Internal interface {
	Node
	// ForEach visits every key/value pair in order. Returning a non-nil
	// error from fn short-circuits the walk and is propagated.
	ForEach(fn func(key, value Node) error) error
	// Get looks up key, returning diag.ENOENT if absent.
	Get(key Node) (Node, error)
}

// DefaultGet implements Internal.Get for types that only implement ForEach,
// by scanning for a key equal to key (spec §4.1: "if vtable lacks get,
// falls back to for_each with equality match").
func DefaultGet(n Internal, key Node) (Node, error) {
	var found Node
	err := n.ForEach(func(k, v Node) error {
		eq, err := Equal(k, key)
		if err != nil {
			return err
		}
		if eq {
			found = v
			return diag.New(diag.EEXIST)
		}
		return nil
	})
	if err != nil && diag.CodeOf(err) == diag.EEXIST {
		return found, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, diag.Errorf(diag.ENOENT, "no such key")
}

type namedPair struct {
	key   Node
	value Node
}

type simpleInternalNode struct {
	pairs []namedPair
}

// Kind implements Node.
func (n *simpleInternalNode) Kind() NodeKind { return KindInternal }

func (n *simpleInternalNode) ForEach(fn func(key, value Node) error) error {
	for _, p := range n.pairs {
		if err := fn(p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}

func (n *simpleInternalNode) Get(key Node) (Node, error) {
	return DefaultGet(n, key)
}

// NewSimpleInternal constructs an Internal node from an explicit slice of
// key/value pairs (spec §4.1 new_simple_internal).
func NewSimpleInternal(pairs []struct{ Key, Value Node }) Internal {
	n := &simpleInternalNode{pairs: make([]namedPair, len(pairs))}
	for i, p := range pairs {
		n.pairs[i] = namedPair{key: p.Key, value: p.Value}
	}
	return n
}

type emptyInternalNode struct{}

func (emptyInternalNode) Kind() NodeKind { return KindInternal }
func (emptyInternalNode) ForEach(fn func(key, value Node) error) error { return nil }
func (emptyInternalNode) Get(key Node) (Node, error) {
	return nil, diag.Errorf(diag.ENOENT, "empty internal node has no keys")
}

// EmptyInternal is the shared empty-internal-node singleton (spec §3.1:
// "Boolean and empty-internal singletons are never destroyed").
var EmptyInternal Internal = emptyInternalNode{}

// Equal implements node-equality (spec §3.1/§4.1): Boolean=Boolean by bool,
// Integer=Integer by number, String=String by bytes, Blob=Blob by streaming
// content comparison, and Internal never compares equal (including to
// itself) by design.
func Equal(a, b Node) (bool, error) {
	if a.Kind() != b.Kind() {
		return false, nil
	}
	switch a.Kind() {
	case KindBoolean:
		return a.(*BooleanNode).Value == b.(*BooleanNode).Value, nil
	case KindInteger:
		return a.(*IntegerNode).Value == b.(*IntegerNode).Value, nil
	case KindString:
		return a.(*StringNode).Value == b.(*StringNode).Value, nil
	case KindBlob:
		return blobEqual(a.(Blob), b.(Blob))
	case KindInternal:
		return false, nil
	default:
		return false, diag.Errorf(diag.EINVAL, "unknown node kind")
	}
}

// blobEqual streams both blobs in 4KiB windows (spec §4.1: "via streaming
// compare on 4 KiB windows").
func blobEqual(a, b Blob) (bool, error) {
	sizeA, err := a.Size()
	if err != nil {
		return false, err
	}
	sizeB, err := b.Size()
	if err != nil {
		return false, err
	}
	if a.IsBitAddressable() != b.IsBitAddressable() {
		return false, nil
	}
	if sizeA != sizeB {
		return false, nil
	}
	if a.IsBitAddressable() {
		return bitBlobEqual(a, b, sizeA)
	}
	const window = 4096
	bufA := make([]byte, window)
	bufB := make([]byte, window)
	var offset uint64
	for offset < sizeA {
		n := window
		if remaining := sizeA - offset; remaining < uint64(n) {
			n = int(remaining)
		}
		na, err := a.ReadBytes(offset, bufA[:n])
		if err != nil {
			return false, err
		}
		nb, err := b.ReadBytes(offset, bufB[:n])
		if err != nil {
			return false, err
		}
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		offset += uint64(n)
	}
	return true, nil
}

func bitBlobEqual(a, b Blob, sizeBits uint64) (bool, error) {
	const window = 4096 * 8
	var offset uint64
	for offset < sizeBits {
		n := uint64(window)
		if remaining := sizeBits - offset; remaining < n {
			n = remaining
		}
		bitsA, err := a.ReadBits(offset, n)
		if err != nil {
			return false, err
		}
		bitsB, err := b.ReadBits(offset, n)
		if err != nil {
			return false, err
		}
		if len(bitsA) != len(bitsB) {
			return false, nil
		}
		for i := range bitsA {
			if bitsA[i] != bitsB[i] {
				return false, nil
			}
		}
		offset += n
	}
	return true, nil
}
