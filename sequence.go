package bithenge

import "github.com/bithenge/bithenge/internal/diag"

// seqEngine is the shared lazy field-offset machinery behind struct,
// repeat, and do_while (spec §4.5, grounded in
// original_source/.../sequence.c's seq_node_field_offset/
// seq_node_subtransform). It memoizes each child's end offset the first
// time it is needed and never un-computes or reorders that table, which is
// the iteration contract spec §4.5.4 calls out as the one invariant that
// must survive the port away from manual reference counting (see
// DESIGN.md).
type seqEngine struct {
	blob    Blob
	scope   *Scope
	xformAt func(index int) Transform

	ends []uint64 // ends[i] = end offset (in blob units) of child i
	// stopGraceful classifies an error from a child's PrefixLength as "no
	// more elements" (true) vs. a real failure (false); nil means every
	// error is real (used by struct and repeat-with-count).
	stopGraceful func(err error) bool
	frozenCount  int // -1 until the element count is known
}

func newSeqEngine(blob Blob, xformAt func(int) Transform) *seqEngine {
	return &seqEngine{blob: blob, xformAt: xformAt, frozenCount: -1}
}

func (e *seqEngine) freeze(count int) { e.frozenCount = count }

func (e *seqEngine) frozenAt(index int) bool {
	return e.frozenCount >= 0 && index >= e.frozenCount
}

// fieldOffset returns the start offset of child index, growing the ends
// table as needed. ok is false once index runs past a frozen count.
func (e *seqEngine) fieldOffset(index int) (offset uint64, ok bool, err error) {
	if index == 0 {
		return 0, true, nil
	}
	if e.frozenAt(index - 1) {
		return 0, false, nil
	}
	want := index - 1
	for len(e.ends) <= want {
		i := len(e.ends)
		prev := uint64(0)
		if i > 0 {
			prev = e.ends[i-1]
		}
		sub := NewOffsetBlob(e.blob, prev)
		if e.stopGraceful != nil {
			empty, err := sub.Empty()
			if err != nil {
				return 0, false, err
			}
			if empty {
				e.freeze(i)
				return 0, false, nil
			}
		}
		size, err := e.xformAt(i).PrefixLength(e.scope, sub)
		if err != nil {
			if e.stopGraceful != nil && e.stopGraceful(err) {
				e.freeze(i)
				return 0, false, nil
			}
			return 0, false, err
		}
		e.ends = append(e.ends, prev+size)
	}
	return e.ends[want], true, nil
}

// subtransform decodes child index, applying and caching its prefix length
// together the first time (spec §4.5 "apply the subtransform and cache its
// prefix length at the same time").
func (e *seqEngine) subtransform(index int) (node Node, ok bool, err error) {
	start, ok, err := e.fieldOffset(index)
	if err != nil || !ok {
		return nil, ok, err
	}
	xform := e.xformAt(index)
	if index == len(e.ends) {
		sub := NewOffsetBlob(e.blob, start)
		if e.stopGraceful != nil {
			empty, err := sub.Empty()
			if err != nil {
				return nil, false, err
			}
			if empty {
				e.freeze(index)
				return nil, false, nil
			}
		}
		out, size, err := xform.PrefixApply(e.scope, sub)
		if err != nil {
			if e.stopGraceful != nil && e.stopGraceful(err) {
				e.freeze(index)
				return nil, false, nil
			}
			return nil, false, err
		}
		e.ends = append(e.ends, start+size)
		return out, true, nil
	}
	end, ok2, err := e.fieldOffset(index + 1)
	if err != nil {
		return nil, false, err
	}
	if !ok2 {
		return nil, false, nil
	}
	sub, err := NewSubblob(e.blob, start, end-start)
	if err != nil {
		return nil, false, err
	}
	out, err := xform.Apply(e.scope, sub)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func gracefulOnLookupFailure(err error) bool {
	code := diag.CodeOf(err)
	return code == diag.EINVAL || code == diag.ENOENT || code == diag.ELIMIT
}

// --- struct ---

// NamedSubtransform is one field of a struct combinator: Name is "" for an
// unnamed (merge) field (spec §4.5.1).
type NamedSubtransform struct {
	Name      string
	Transform Transform
}

type structTransform struct {
	fields []NamedSubtransform
}

// NewStructTransform builds the struct({name?, xform}*) combinator (spec
// §4.5.1). internal/script builds the field slice directly while parsing a
// struct body.
func NewStructTransform(fields []NamedSubtransform) Transform {
	return &structTransform{fields: fields}
}

// NewNamedField is a convenience constructor for a struct field.
func NewNamedField(name string, transform Transform) NamedSubtransform {
	return NamedSubtransform{Name: name, Transform: transform}
}

func (t *structTransform) node(scope *Scope, blob Blob) *structNode {
	n := &structNode{fields: t.fields}
	n.engine = newSeqEngine(blob, func(i int) Transform { return t.fields[i].Transform })
	n.engine.freeze(len(t.fields))
	inner := NewScope(scope)
	inner.SetCurrentNode(n)
	inner.SetInNode(blob)
	n.engine.scope = inner
	return n
}

func (t *structTransform) Apply(scope *Scope, in Node) (Node, error) {
	blob, ok := in.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "struct: input must be a blob")
	}
	n := t.node(scope, blob)
	if err := n.validateComplete(); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *structTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	n := t.node(scope, blob)
	return n.engine.fieldOffsetTotal()
}

func (t *structTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	n := t.node(scope, blob)
	size, err := n.engine.fieldOffsetTotal()
	if err != nil {
		return nil, 0, err
	}
	return n, size, nil
}

// fieldOffsetTotal forces every field's offset to be computed, returning
// the total consumed size — used by struct's PrefixLength/PrefixApply,
// which must account for all fields even though struct itself is fixed-
// arity and doesn't use stopGraceful.
func (e *seqEngine) fieldOffsetTotal() (uint64, error) {
	offset, _, err := e.fieldOffset(e.frozenCount)
	return offset, err
}

type structNode struct {
	engine *seqEngine
	fields []NamedSubtransform
}

func (n *structNode) Kind() NodeKind { return KindInternal }

func (n *structNode) validateComplete() error {
	size, err := n.engine.blob.Size()
	if err != nil {
		return err
	}
	end, err := n.engine.fieldOffsetTotal()
	if err != nil {
		return err
	}
	if end != size {
		return diag.Errorf(diag.EINVAL, "struct did not consume the entire blob: consumed %d of %d bytes", end, size)
	}
	return nil
}

func (n *structNode) ForEach(fn func(key, value Node) error) error {
	for i, f := range n.fields {
		val, ok, err := n.engine.subtransform(i)
		if err != nil {
			return err
		}
		if !ok {
			return diag.Errorf(diag.EINVAL, "struct field %d did not decode", i)
		}
		if f.Name != "" {
			if err := fn(NewString(f.Name), val); err != nil {
				return err
			}
			continue
		}
		internal, ok := val.(Internal)
		if !ok {
			return diag.Errorf(diag.EINVAL, "unnamed struct field must decode to an internal node")
		}
		if err := internal.ForEach(fn); err != nil {
			return err
		}
	}
	return nil
}

func (n *structNode) Get(key Node) (Node, error) {
	name, ok := key.(*StringNode)
	if ok {
		for i, f := range n.fields {
			if f.Name == name.Value {
				val, _, err := n.engine.subtransform(i)
				return val, err
			}
		}
	}
	for i, f := range n.fields {
		if f.Name != "" {
			continue
		}
		val, _, err := n.engine.subtransform(i)
		if err != nil {
			return nil, err
		}
		internal, ok := val.(Internal)
		if !ok {
			return nil, diag.Errorf(diag.EINVAL, "unnamed struct field must decode to an internal node")
		}
		got, err := internal.Get(key)
		if err == nil {
			return got, nil
		}
		if diag.CodeOf(err) != diag.ENOENT {
			return nil, err
		}
	}
	return nil, diag.Errorf(diag.ENOENT, "no such struct field")
}

// --- repeat ---

type repeatTransform struct {
	element Transform
	count   Expression // nil means unbounded
}

// NewRepeatTransform builds repeat(xform, count?) (spec §4.5.2).
func NewRepeatTransform(element Transform, count Expression) Transform {
	return &repeatTransform{element: element, count: count}
}

func (t *repeatTransform) node(scope *Scope, blob Blob) (*repeatNode, error) {
	n := &repeatNode{}
	n.engine = newSeqEngine(blob, func(int) Transform { return t.element })
	inner := NewScope(scope)
	inner.SetInNode(blob)
	n.engine.scope = inner
	if t.count != nil {
		countNode, err := t.count.Eval(scope)
		if err != nil {
			return nil, err
		}
		ci, ok := countNode.(*IntegerNode)
		if !ok || ci.Value < 0 {
			return nil, diag.Errorf(diag.EINVAL, "repeat: count must be a non-negative integer")
		}
		n.engine.freeze(int(ci.Value))
	} else {
		n.engine.stopGraceful = gracefulOnLookupFailure
	}
	inner.SetCurrentNode(n)
	return n, nil
}

func (t *repeatTransform) Apply(scope *Scope, in Node) (Node, error) {
	blob, ok := in.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "repeat: input must be a blob")
	}
	n, err := t.node(scope, blob)
	if err != nil {
		return nil, err
	}
	if err := n.decodeAll(); err != nil {
		return nil, err
	}
	if t.count != nil {
		size, err := blob.Size()
		if err != nil {
			return nil, err
		}
		total, _, err := n.engine.fieldOffset(n.engine.frozenCount)
		if err != nil {
			return nil, err
		}
		if total != size {
			return nil, diag.Errorf(diag.EINVAL, "repeat did not consume the entire blob: consumed %d of %d bytes", total, size)
		}
	}
	return n, nil
}

func (t *repeatTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	n, err := t.node(scope, blob)
	if err != nil {
		return 0, err
	}
	if err := n.decodeAll(); err != nil {
		return 0, err
	}
	total, _, err := n.engine.fieldOffset(n.engine.frozenCount)
	return total, err
}

func (t *repeatTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	n, err := t.node(scope, blob)
	if err != nil {
		return nil, 0, err
	}
	if err := n.decodeAll(); err != nil {
		return nil, 0, err
	}
	total, _, err := n.engine.fieldOffset(n.engine.frozenCount)
	if err != nil {
		return nil, 0, err
	}
	return n, total, nil
}

type repeatNode struct {
	engine *seqEngine
}

func (n *repeatNode) Kind() NodeKind { return KindInternal }

// decodeAll forces every element to decode, establishing the frozen count
// when it was not already known (spec §4.5.2 "without count: decode until
// a child fails to fit... stops gracefully, records the final count").
func (n *repeatNode) decodeAll() error {
	for i := 0; ; i++ {
		if n.engine.frozenAt(i) {
			return nil
		}
		_, ok, err := n.engine.subtransform(i)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

func (n *repeatNode) ForEach(fn func(key, value Node) error) error {
	if err := n.decodeAll(); err != nil {
		return err
	}
	for i := 0; i < n.engine.frozenCount; i++ {
		val, _, err := n.engine.subtransform(i)
		if err != nil {
			return err
		}
		if err := fn(NewInteger(int64(i)), val); err != nil {
			return err
		}
	}
	return nil
}

func (n *repeatNode) Get(key Node) (Node, error) {
	idx, ok := key.(*IntegerNode)
	if !ok || idx.Value < 0 {
		return nil, diag.Errorf(diag.ENOENT, "repeat: key must be a non-negative integer")
	}
	if n.engine.frozenAt(int(idx.Value)) {
		return nil, diag.Errorf(diag.ENOENT, "repeat: index %d out of range", idx.Value)
	}
	val, ok, err := n.engine.subtransform(int(idx.Value))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, diag.Errorf(diag.ENOENT, "repeat: index %d out of range", idx.Value)
	}
	return val, nil
}

// --- do_while ---

type doWhileTransform struct {
	element Transform
	cond    Expression
}

// NewDoWhileTransform builds do { xform } while (cond) (spec §4.5.3).
func NewDoWhileTransform(element Transform, cond Expression) Transform {
	return &doWhileTransform{element: element, cond: cond}
}

func (t *doWhileTransform) node(scope *Scope, blob Blob) *repeatNode {
	n := &repeatNode{}
	n.engine = newSeqEngine(blob, func(int) Transform { return t.element })
	inner := NewScope(scope)
	inner.SetInNode(blob)
	n.engine.scope = inner
	inner.SetCurrentNode(n)
	return n
}

// decodeUntilFalse decodes elements sequentially, evaluating cond against a
// scope whose current node is the just-decoded element, stopping (and
// including) the element for which cond is false (spec §4.5.3).
func (t *doWhileTransform) decodeUntilFalse(n *repeatNode) error {
	for i := 0; ; i++ {
		val, ok, err := n.engine.subtransform(i)
		if err != nil {
			return err
		}
		if !ok {
			return diag.Errorf(diag.EINVAL, "do_while: element %d failed to decode", i)
		}
		condScope := NewScope(n.engine.scope)
		condScope.SetCurrentNode(val)
		condNode, err := t.cond.Eval(condScope)
		if err != nil {
			return err
		}
		b, ok := condNode.(*BooleanNode)
		if !ok {
			return diag.Errorf(diag.EINVAL, "do_while: condition must evaluate to a boolean")
		}
		if !b.Value {
			n.engine.freeze(i + 1)
			return nil
		}
	}
}

func (t *doWhileTransform) Apply(scope *Scope, in Node) (Node, error) {
	blob, ok := in.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "do_while: input must be a blob")
	}
	n := t.node(scope, blob)
	if err := t.decodeUntilFalse(n); err != nil {
		return nil, err
	}
	size, err := blob.Size()
	if err != nil {
		return nil, err
	}
	total, _, err := n.engine.fieldOffset(n.engine.frozenCount)
	if err != nil {
		return nil, err
	}
	if total != size {
		return nil, diag.Errorf(diag.EINVAL, "do_while did not consume the entire blob: consumed %d of %d bytes", total, size)
	}
	return n, nil
}

func (t *doWhileTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	n := t.node(scope, blob)
	if err := t.decodeUntilFalse(n); err != nil {
		return 0, err
	}
	total, _, err := n.engine.fieldOffset(n.engine.frozenCount)
	return total, err
}

func (t *doWhileTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	n := t.node(scope, blob)
	if err := t.decodeUntilFalse(n); err != nil {
		return nil, 0, err
	}
	total, _, err := n.engine.fieldOffset(n.engine.frozenCount)
	if err != nil {
		return nil, 0, err
	}
	return n, total, nil
}
