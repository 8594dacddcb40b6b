package bithenge

import "github.com/bithenge/bithenge/internal/diag"

// Parametric is implemented by transforms that declare a fixed parameter
// arity (spec §4.7: "Invocation with argument count ≠ arity is a parse
// error"). internal/script consults this to decide whether an invocation's
// arguments should be checked and wrapped with a param-wrapper transform.
// A Transform that does not implement Parametric is treated as arity 0.
type Parametric interface {
	NumParams() int
}

// Transform decodes an input Node (usually a Blob) into an output Node
// (spec §4.3). At least one of Apply or PrefixApply must be a "real"
// implementation; the rest are synthesized by the helpers below, mirroring
// the source's bithenge_init_transform synthesis rules.
type Transform interface {
	// Apply fully decodes in, which must consume it entirely when in is a
	// Blob with a known size.
	Apply(scope *Scope, in Node) (Node, error)
	// PrefixLength reports how many bytes of blob this transform would
	// consume without fully decoding it.
	PrefixLength(scope *Scope, blob Blob) (uint64, error)
	// PrefixApply decodes a prefix of blob and reports its length.
	PrefixApply(scope *Scope, blob Blob) (Node, uint64, error)
}

// ApplyFunc/PrefixLengthFunc/PrefixApplyFunc back transformImpl.
type (
	ApplyFunc        func(scope *Scope, in Node) (Node, error)
	PrefixLengthFunc func(scope *Scope, blob Blob) (uint64, error)
	PrefixApplyFunc  func(scope *Scope, blob Blob) (Node, uint64, error)
)

// transformImpl is the shared synthesis engine behind NewTransform, used by
// the fixed-width uintN primitives, bit, ascii, zero_terminated,
// nonzero_boolean and InvalidTransform; uint_be/uint_le, bits_be/bits_le and
// known_length implement Transform directly (spec §4.3's synthesis rules, grounded on
// original_source/.../transform.c's bithenge_transform_apply/prefix_length/
// prefix_apply). A transform need only supply the operation(s) it actually
// implements; the rest are derived:
//
//   - apply only:         PrefixLength/PrefixApply fail with ENOTSUP.
//   - prefixLength only:  PrefixApply builds a bounded subblob and calls Apply
//     (which must also be provided, directly or — more commonly — this
//     struct is constructed with apply+prefixLength both set).
//   - prefixApply only:   PrefixLength runs it and discards the node; Apply
//     verifies the reported length equals the blob's full size.
type transformImpl struct {
	apply        ApplyFunc
	prefixLength PrefixLengthFunc
	prefixApply  PrefixApplyFunc
}

// NewTransform builds a Transform from whichever of apply/prefixLength/
// prefixApply are non-nil, synthesizing the rest per spec §4.3. At least
// one of apply or prefixApply must be non-nil.
func NewTransform(apply ApplyFunc, prefixLength PrefixLengthFunc, prefixApply PrefixApplyFunc) Transform {
	return &transformImpl{apply: apply, prefixLength: prefixLength, prefixApply: prefixApply}
}

func (t *transformImpl) Apply(scope *Scope, in Node) (Node, error) {
	if t.apply != nil {
		return t.apply(scope, in)
	}
	if t.prefixApply != nil {
		blob, ok := in.(Blob)
		if !ok {
			return nil, diag.Errorf(diag.EINVAL, "transform requires a blob input")
		}
		size, err := blob.Size()
		if err != nil {
			return nil, err
		}
		out, n, err := t.prefixApply(scope, blob)
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, diag.Errorf(diag.EINVAL, "transform consumed %d of %d bytes", n, size)
		}
		return out, nil
	}
	return nil, diag.Errorf(diag.ENOTSUP, "transform does not support apply")
}

func (t *transformImpl) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	if t.prefixLength != nil {
		return t.prefixLength(scope, blob)
	}
	if t.prefixApply != nil {
		_, n, err := t.prefixApply(scope, blob)
		return n, err
	}
	return 0, diag.Errorf(diag.ENOTSUP, "transform does not support prefix_length")
}

func (t *transformImpl) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	if t.prefixApply != nil {
		return t.prefixApply(scope, blob)
	}
	if t.prefixLength != nil && t.apply != nil {
		n, err := t.prefixLength(scope, blob)
		if err != nil {
			return nil, 0, err
		}
		sub, err := NewSubblob(blob, 0, n)
		if err != nil {
			return nil, 0, err
		}
		out, err := t.apply(scope, sub)
		if err != nil {
			return nil, 0, err
		}
		return out, n, nil
	}
	return nil, 0, diag.Errorf(diag.ENOTSUP, "transform does not support prefix_apply")
}

// composeTransform implements the compose(x1,...,xn) combinator (spec
// §4.3, grounded in original_source/.../compound.c's compose_apply /
// compose_prefix_length). xforms[0] is the leftmost (first-written, last-
// applied) atom; xforms[len-1] is the rightmost (last-written,
// first-applied, sole byte consumer) atom.
type composeTransform struct {
	xforms []Transform
}

// NewComposeTransform builds `xforms[0] <- xforms[1] <- ... <- xforms[n-1]`:
// xforms[n-1] runs first directly on the raw input; its result feeds
// xforms[n-2], and so on, with xforms[0] producing the final result.
// PrefixLength/PrefixApply delegate only to xforms[n-1], the only stage
// that touches the byte stream — "upstream transforms do not touch the
// byte stream" (spec §4.3).
func NewComposeTransform(xforms []Transform) Transform {
	return &composeTransform{xforms: xforms}
}

func (c *composeTransform) Apply(scope *Scope, in Node) (Node, error) {
	last := len(c.xforms) - 1
	cur, err := c.xforms[last].Apply(scope, in)
	if err != nil {
		return nil, err
	}
	for i := last - 1; i >= 0; i-- {
		cur, err = c.xforms[i].Apply(scope, cur)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func (c *composeTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	return c.xforms[len(c.xforms)-1].PrefixLength(scope, blob)
}

func (c *composeTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	last := len(c.xforms) - 1
	cur, n, err := c.xforms[last].PrefixApply(scope, blob)
	if err != nil {
		return nil, 0, err
	}
	for i := last - 1; i >= 0; i-- {
		cur, err = c.xforms[i].Apply(scope, cur)
		if err != nil {
			return nil, 0, err
		}
	}
	return cur, n, nil
}

// ifTransform implements if(cond, thenX, elseX) (spec §4.3).
type ifTransform struct {
	cond       Expression
	thenX, elseX Transform
}

// NewIfTransform builds the if combinator. cond is evaluated in the
// *calling* scope, must be Boolean, and dispatches to thenX or elseX.
func NewIfTransform(cond Expression, thenX, elseX Transform) Transform {
	return &ifTransform{cond: cond, thenX: thenX, elseX: elseX}
}

func (t *ifTransform) choose(scope *Scope) (Transform, error) {
	node, err := t.cond.Eval(scope)
	if err != nil {
		return nil, err
	}
	b, ok := node.(*BooleanNode)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "if: condition did not evaluate to a boolean")
	}
	if b.Value {
		return t.thenX, nil
	}
	return t.elseX, nil
}

func (t *ifTransform) Apply(scope *Scope, in Node) (Node, error) {
	x, err := t.choose(scope)
	if err != nil {
		return nil, err
	}
	return x.Apply(scope, in)
}

func (t *ifTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	x, err := t.choose(scope)
	if err != nil {
		return 0, err
	}
	return x.PrefixLength(scope, blob)
}

func (t *ifTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	x, err := t.choose(scope)
	if err != nil {
		return nil, 0, err
	}
	return x.PrefixApply(scope, blob)
}

// InvalidTransform always fails with EINVAL; it is the shared singleton
// used as the fallback for a switch with no else clause (spec §4.3/§4.6).
var InvalidTransform Transform = NewTransform(
	func(scope *Scope, in Node) (Node, error) {
		return nil, diag.Errorf(diag.EINVAL, "invalid transform applied")
	},
	nil,
	nil,
)

// partialTransform implements partial(x): applies x to the input without
// requiring it to consume the full blob (spec §4.3). It has no
// PrefixLength of its own, matching the source.
type partialTransform struct {
	inner Transform
}

// NewPartialTransform wraps inner so its Apply only needs to consume a
// prefix of its input blob.
func NewPartialTransform(inner Transform) Transform {
	return &partialTransform{inner: inner}
}

func (t *partialTransform) Apply(scope *Scope, in Node) (Node, error) {
	blob, ok := in.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "partial: input must be a blob")
	}
	out, _, err := t.inner.PrefixApply(scope, blob)
	return out, err
}

func (t *partialTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	return 0, diag.Errorf(diag.ENOTSUP, "partial transform has no prefix length")
}

func (t *partialTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	return nil, 0, diag.Errorf(diag.ENOTSUP, "partial transform has no prefix apply")
}

// barrierTransform wraps a named user transform in a fresh barrier scope so
// its body cannot reach the caller's scope-member lookups, while still
// resolving `in` explicitly (spec §4.3/§4.2).
type barrierTransform struct {
	numParams int
	inner     Transform
}

// NewBarrierTransform allocates a barrier wrapper with numParams declared
// parameters. SetInner must be called once, before first use, to install
// the wrapped body — this two-step construction exists so a script
// definition's name can be registered (for recursive references)
// before its body has finished parsing (spec §4.7 parse_definition).
func NewBarrierTransform(numParams int) *barrierTransform {
	return &barrierTransform{numParams: numParams}
}

// SetInner installs the wrapped transform.
func (t *barrierTransform) SetInner(inner Transform) { t.inner = inner }

// NumParams implements Parametric: a named transform's arity is its
// declared parameter count (spec §4.7 parse_definition).
func (t *barrierTransform) NumParams() int { return t.numParams }

func (t *barrierTransform) newScope(outer *Scope, in Node) *Scope {
	inner := NewScope(outer)
	inner.SetBarrier()
	inner.SetInNode(in)
	inner.AllocParams(t.numParams)
	for i := 0; i < t.numParams; i++ {
		if v, err := GetParam(outer, i); err == nil {
			_ = inner.SetParam(i, v)
		}
	}
	return inner
}

func (t *barrierTransform) Apply(scope *Scope, in Node) (Node, error) {
	return t.inner.Apply(t.newScope(scope, in), in)
}

func (t *barrierTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	return t.inner.PrefixLength(t.newScope(scope, blob), blob)
}

func (t *barrierTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	return t.inner.PrefixApply(t.newScope(scope, blob), blob)
}

// paramWrapperTransform evaluates a fixed set of expressions in the
// *outer* scope and installs their results as parameters of a fresh,
// non-barrier inner scope before delegating to inner (spec §4.3 param-
// wrapper combinator, used automatically whenever a script invocation
// supplies arguments).
type paramWrapperTransform struct {
	inner Transform
	exprs []Expression
}

// NewParamWrapperTransform builds the param-wrapper combinator. len(exprs)
// must equal inner's declared parameter arity (checked at parse time, spec
// §4.7).
func NewParamWrapperTransform(inner Transform, exprs []Expression) Transform {
	return &paramWrapperTransform{inner: inner, exprs: exprs}
}

func (t *paramWrapperTransform) fill(outer *Scope) (*Scope, error) {
	inner := NewScope(outer)
	inner.AllocParams(len(t.exprs))
	for i, expr := range t.exprs {
		v, err := expr.Eval(outer)
		if err != nil {
			return nil, err
		}
		if err := inner.SetParam(i, v); err != nil {
			return nil, err
		}
	}
	return inner, nil
}

func (t *paramWrapperTransform) Apply(scope *Scope, in Node) (Node, error) {
	inner, err := t.fill(scope)
	if err != nil {
		return nil, err
	}
	return t.inner.Apply(inner, in)
}

func (t *paramWrapperTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	inner, err := t.fill(scope)
	if err != nil {
		return 0, err
	}
	return t.inner.PrefixLength(inner, blob)
}

func (t *paramWrapperTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	inner, err := t.fill(scope)
	if err != nil {
		return nil, 0, err
	}
	return t.inner.PrefixApply(inner, blob)
}

// exprTransform implements the expression-transform combinator: Apply
// evaluates expr with in set as the scope's in-node; PrefixLength is 0 and
// PrefixApply returns the value with zero bytes consumed (valid only when
// expr does not itself reference `in`, spec §4.3).
type exprTransform struct {
	expr Expression
}

// NewExpressionTransform builds the expression-transform combinator.
func NewExpressionTransform(expr Expression) Transform {
	return &exprTransform{expr: expr}
}

func (t *exprTransform) Apply(scope *Scope, in Node) (Node, error) {
	inner := NewScope(scope)
	inner.SetInNode(in)
	return t.expr.Eval(inner)
}

func (t *exprTransform) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	return 0, nil
}

func (t *exprTransform) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	out, err := t.Apply(scope, blob)
	if err != nil {
		return nil, 0, err
	}
	return out, 0, nil
}

// NewInputlessTransform builds the inputless-transform combinator: the
// same as an expression-transform, except script parsing has asserted expr
// never references `in` (spec §4.3). The runtime behavior is identical;
// the distinction is enforced by internal/script at compile time.
func NewInputlessTransform(expr Expression) Transform {
	return NewExpressionTransform(expr)
}
