package bithenge

import "github.com/bithenge/bithenge/internal/diag"

// Expression is a pure function from a Scope to a Node: it never mutates
// the scope it is given (spec §4.4/glossary).
type Expression interface {
	Eval(scope *Scope) (Node, error)
}

// constExpression always returns the same captured node.
type constExpression struct{ node Node }

// NewConstExpression returns an expression that always evaluates to node.
func NewConstExpression(node Node) Expression { return &constExpression{node: node} }

func (e *constExpression) Eval(scope *Scope) (Node, error) { return e.node, nil }

// inNodeExpression resolves the innermost scope's in-node.
type inNodeExpression struct{}

// NewInNodeExpression returns the `in` expression.
func NewInNodeExpression() Expression { return inNodeExpression{} }

func (inNodeExpression) Eval(scope *Scope) (Node, error) { return ResolveInNode(scope) }

// currentNodeExpression resolves the innermost scope's current-building
// node.
type currentNodeExpression struct{}

// NewCurrentNodeExpression returns the "current node" expression, used
// internally to let sibling transforms within a struct resolve earlier
// fields of the node still being built.
func NewCurrentNodeExpression() Expression { return currentNodeExpression{} }

func (currentNodeExpression) Eval(scope *Scope) (Node, error) { return ResolveCurrentNode(scope) }

// paramExpression resolves a positional parameter.
type paramExpression struct{ index int }

// NewParamExpression returns the expression for parameter index.
func NewParamExpression(index int) Expression { return &paramExpression{index: index} }

func (e *paramExpression) Eval(scope *Scope) (Node, error) { return GetParam(scope, e.index) }

// scopeMemberExpression resolves `.field` against the enclosing,
// non-barrier-crossing scope chain.
type scopeMemberExpression struct{ key string }

// NewScopeMemberExpression returns the `.field` expression for key.
func NewScopeMemberExpression(key string) Expression {
	return &scopeMemberExpression{key: key}
}

func (e *scopeMemberExpression) Eval(scope *Scope) (Node, error) {
	return ScopeMember(scope, NewString(e.key))
}

// subblobExpression implements the `[start, limit]` / `[start:end]` /
// `[start:]` postfix forms (spec §4.4 subblob expression).
type subblobExpression struct {
	blob          Expression
	start         Expression
	limit         Expression // nil means unbounded (offset only)
	absoluteLimit bool
}

// NewSubblobExpression builds the subblob-projection expression. If limit
// is nil the result is an unbounded offset view; otherwise absoluteLimit
// selects whether limit is an end offset (true) or a length (false).
func NewSubblobExpression(blob, start, limit Expression, absoluteLimit bool) Expression {
	return &subblobExpression{blob: blob, start: start, limit: limit, absoluteLimit: absoluteLimit}
}

func (e *subblobExpression) Eval(scope *Scope) (Node, error) {
	blobNode, err := e.blob.Eval(scope)
	if err != nil {
		return nil, err
	}
	blob, ok := blobNode.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "subblob: expression did not evaluate to a blob")
	}
	startNode, err := e.start.Eval(scope)
	if err != nil {
		return nil, err
	}
	startInt, ok := startNode.(*IntegerNode)
	if !ok || startInt.Value < 0 {
		return nil, diag.Errorf(diag.EINVAL, "subblob: start must be a non-negative integer")
	}
	start := uint64(startInt.Value)
	if e.limit == nil {
		return NewOffsetBlob(blob, start), nil
	}
	limitNode, err := e.limit.Eval(scope)
	if err != nil {
		return nil, err
	}
	limitInt, ok := limitNode.(*IntegerNode)
	if !ok || limitInt.Value < 0 {
		return nil, diag.Errorf(diag.EINVAL, "subblob: limit must be a non-negative integer")
	}
	limit := uint64(limitInt.Value)
	length := limit
	if e.absoluteLimit {
		if limit < start {
			return nil, diag.Errorf(diag.EINVAL, "subblob: end %d precedes start %d", limit, start)
		}
		length = limit - start
	}
	return NewSubblob(blob, start, length)
}

// BinaryOp identifies a binary expression operator (spec §4.4).
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd
	OpOr
	OpMember
	OpConcat
)

type binaryExpression struct {
	op   BinaryOp
	a, b Expression
}

// NewBinaryExpression builds a binary operator expression (spec §4.4's
// operator table).
func NewBinaryExpression(op BinaryOp, a, b Expression) Expression {
	return &binaryExpression{op: op, a: a, b: b}
}

func (e *binaryExpression) Eval(scope *Scope) (Node, error) {
	left, err := e.a.Eval(scope)
	if err != nil {
		return nil, err
	}

	switch e.op {
	case OpConcat:
		leftBlob, ok := left.(Blob)
		if !ok {
			return nil, diag.Errorf(diag.EINVAL, "concat: left operand is not a blob")
		}
		joined := NewConcatLazyBlob(leftBlob, e.b, scope)
		return joined, nil
	case OpMember:
		return evalMember(left, e.b, scope)
	case OpAnd, OpOr:
		return evalBooleanBinary(e.op, left, e.b, scope)
	}

	right, err := e.b.Eval(scope)
	if err != nil {
		return nil, err
	}

	switch e.op {
	case OpEq:
		eq, err := Equal(left, right)
		if err != nil {
			return nil, err
		}
		return NewBoolean(eq), nil
	case OpNe:
		eq, err := Equal(left, right)
		if err != nil {
			return nil, err
		}
		return NewBoolean(!eq), nil
	}

	li, lok := left.(*IntegerNode)
	ri, rok := right.(*IntegerNode)
	if !lok || !rok {
		return nil, diag.Errorf(diag.EINVAL, "operator requires integer operands")
	}
	a, b := li.Value, ri.Value

	switch e.op {
	case OpAdd:
		return NewInteger(a + b), nil
	case OpSub:
		return NewInteger(a - b), nil
	case OpMul:
		return NewInteger(a * b), nil
	case OpDiv:
		q, _, err := flooredDivMod(a, b)
		if err != nil {
			return nil, err
		}
		return NewInteger(q), nil
	case OpMod:
		_, r, err := flooredDivMod(a, b)
		if err != nil {
			return nil, err
		}
		return NewInteger(r), nil
	case OpLt:
		return NewBoolean(a < b), nil
	case OpLe:
		return NewBoolean(a <= b), nil
	case OpGt:
		return NewBoolean(a > b), nil
	case OpGe:
		return NewBoolean(a >= b), nil
	default:
		return nil, diag.Errorf(diag.EINVAL, "unsupported binary operator")
	}
}

// flooredDivMod implements spec §4.4's integer division/modulo: divisor
// must be strictly positive, and results are floored/Euclidean rather than
// Go's truncating defaults (verified against original_source/.../
// expression.c's binary_expression_evaluate).
func flooredDivMod(a, b int64) (q, r int64, err error) {
	if b <= 0 {
		return 0, 0, diag.Errorf(diag.EINVAL, "division/modulo requires a positive divisor, got %d", b)
	}
	q = a / b
	r = a % b
	if r < 0 {
		q--
		r += b
	}
	return q, r, nil
}

func evalMember(left Node, bExpr Expression, scope *Scope) (Node, error) {
	switch l := left.(type) {
	case Internal:
		keyNode, err := bExpr.Eval(scope)
		if err != nil {
			return nil, err
		}
		return l.Get(keyNode)
	case Blob:
		idxNode, err := bExpr.Eval(scope)
		if err != nil {
			return nil, err
		}
		idx, ok := idxNode.(*IntegerNode)
		if !ok || idx.Value < 0 {
			return nil, diag.Errorf(diag.EINVAL, "member: blob index must be a non-negative integer")
		}
		buf := make([]byte, 1)
		n, err := l.ReadBytes(uint64(idx.Value), buf)
		if err != nil {
			if diag.CodeOf(err) == diag.ELIMIT {
				return nil, diag.Errorf(diag.ENOENT, "member: blob index %d out of range", idx.Value)
			}
			return nil, err
		}
		if n == 0 {
			return nil, diag.Errorf(diag.ENOENT, "member: blob index %d out of range", idx.Value)
		}
		return NewInteger(int64(buf[0])), nil
	default:
		return nil, diag.Errorf(diag.EINVAL, "member: left operand must be Internal or Blob")
	}
}

func evalBooleanBinary(op BinaryOp, left Node, bExpr Expression, scope *Scope) (Node, error) {
	lb, ok := left.(*BooleanNode)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "%v requires boolean operands", op)
	}
	rightNode, err := bExpr.Eval(scope)
	if err != nil {
		return nil, err
	}
	rb, ok := rightNode.(*BooleanNode)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "%v requires boolean operands", op)
	}
	if op == OpAnd {
		return NewBoolean(lb.Value && rb.Value), nil
	}
	return NewBoolean(lb.Value || rb.Value), nil
}
