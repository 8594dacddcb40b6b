package script

import (
	"os"

	"github.com/bithenge/bithenge"
)

// parser is a recursive-descent parser that builds a bithenge.Transform/
// bithenge.Expression graph directly while it parses, rather than via an
// intermediate AST — mirroring the single-pass structure of
// original_source/.../script.c (parse_transform, parse_invocation,
// parse_definition, and friends).
type parser struct {
	filename string
	lx       *lexer
	tok      token

	// named holds every transform declared so far (parse_definition adds a
	// name's barrier wrapper before parsing its body, so self-recursive and
	// backward references resolve; forward references to a not-yet-parsed
	// later definition do not, matching get_named_transform's linear-scan
	// semantics in the source — see DESIGN.md).
	named map[string]bithenge.Transform

	// paramNames is the current definition's declared parameter list; a
	// bare identifier in expression position resolves to its index here
	// (spec §4.7 parse_term: "unknown identifier" if not found), never to a
	// scope member (that's what the separate `.name` syntax is for).
	paramNames []string

	// inNodeUsed tracks, for the current '(' expr ')' transform atom,
	// whether `in` was referenced — deciding between an expression-
	// transform and an inputless-transform (spec §4.3).
	inNodeUsed bool
}

// ParseString parses a complete script and returns its "main" transform
// (spec §6.2: "A script with no main transform is an error after parsing
// succeeds."). filename is used only for error messages.
func ParseString(filename, src string) (bithenge.Transform, error) {
	p := &parser{
		filename: filename,
		lx:       newLexer(filename, []byte(src)),
		named:    make(map[string]bithenge.Transform),
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	for p.tok.kind != tokEOF {
		if err := p.parseDefinition(); err != nil {
			return nil, err
		}
	}
	main, ok := p.named["main"]
	if !ok {
		return nil, &ParseError{Filename: filename, Line: p.tok.line, Col: p.tok.col, Msg: "no \"main\" transform"}
	}
	return main, nil
}

// ParseFile reads and parses a script file from disk.
func ParseFile(path string) (bithenge.Transform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseString(path, string(data))
}

func (p *parser) advance() error {
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) syntaxError(msg string) error {
	return &ParseError{Filename: p.filename, Line: p.tok.line, Col: p.tok.col, Msg: msg}
}

func (p *parser) expectKind(kind tokenKind, what string) error {
	if p.tok.kind != kind {
		return p.syntaxError("expected " + what + ", found " + p.tok.text())
	}
	return p.advance()
}

func (p *parser) expectPunct(ch byte) error {
	if p.tok.kind != tokPunct || p.tok.ch != ch {
		return p.syntaxError("expected '" + string(ch) + "', found " + p.tok.text())
	}
	return p.advance()
}

func (p *parser) atPunct(ch byte) bool {
	return p.tok.kind == tokPunct && p.tok.ch == ch
}

func (p *parser) expectIdent() (string, error) {
	if p.tok.kind != tokIdent {
		return "", p.syntaxError("expected identifier, found " + p.tok.text())
	}
	name := p.tok.str
	if err := p.advance(); err != nil {
		return "", err
	}
	return name, nil
}

// lookupTransform resolves name against the definitions registered so far
// (earlier definitions and the one being parsed), then the primitive table.
// A name defined later in the file is not yet registered, so referring to it
// fails with "transform not found".
func (p *parser) lookupTransform(name string) (bithenge.Transform, bool) {
	if t, ok := p.named[name]; ok {
		return t, true
	}
	t, ok := primitiveTransforms[name]
	return t, ok
}

// --- definitions ---

// parseDefinition parses a single top-level `transform NAME(params?) =
// body;` declaration (spec §4.7 definition rule), registering NAME's
// barrier wrapper before its body is parsed so the body can refer to NAME
// itself recursively (grounded in script.c's parse_definition, which calls
// add_named_transform before parsing the '=' side).
func (p *parser) parseDefinition() error {
	if err := p.expectKind(tokTransform, "'transform'"); err != nil {
		return err
	}
	name, err := p.expectIdent()
	if err != nil {
		return err
	}

	var params []string
	if p.atPunct('(') {
		if err := p.advance(); err != nil {
			return err
		}
		for !p.atPunct(')') {
			if len(params) > 0 {
				if err := p.expectPunct(','); err != nil {
					return err
				}
			}
			pname, err := p.expectIdent()
			if err != nil {
				return err
			}
			params = append(params, pname)
		}
		if err := p.advance(); err != nil {
			return err
		}
	}

	barrier := bithenge.NewBarrierTransform(len(params))
	p.named[name] = barrier

	savedParams := p.paramNames
	p.paramNames = params

	if err := p.expectPunct('='); err != nil {
		p.paramNames = savedParams
		return err
	}
	body, err := p.parseTransform()
	p.paramNames = savedParams
	if err != nil {
		return err
	}
	if err := p.expectPunct(';'); err != nil {
		return err
	}
	barrier.SetInner(body)
	return nil
}

// --- transforms ---

// parseTransform parses `transform_atom ('<-' transform_atom)*`, building a
// composeTransform when more than one atom is chained (spec §4.3 compose).
func (p *parser) parseTransform() (bithenge.Transform, error) {
	first, err := p.parseTransformNoCompose()
	if err != nil {
		return nil, err
	}
	xforms := []bithenge.Transform{first}
	for p.tok.kind == tokLeftArrow {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseTransformNoCompose()
		if err != nil {
			return nil, err
		}
		xforms = append(xforms, next)
	}
	if len(xforms) == 1 {
		return first, nil
	}
	return bithenge.NewComposeTransform(xforms), nil
}

func (p *parser) parseTransformNoCompose() (bithenge.Transform, error) {
	switch {
	case p.atPunct('('):
		if err := p.advance(); err != nil {
			return nil, err
		}
		savedUsed := p.inNodeUsed
		p.inNodeUsed = false
		expr, err := p.parseExpression()
		used := p.inNodeUsed
		p.inNodeUsed = savedUsed
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(')'); err != nil {
			return nil, err
		}
		if used {
			return bithenge.NewExpressionTransform(expr), nil
		}
		return bithenge.NewInputlessTransform(expr), nil
	case p.tok.kind == tokDo:
		return p.parseDoWhile()
	case p.tok.kind == tokIdent:
		return p.parseInvocation()
	case p.tok.kind == tokIf:
		return p.parseIf(false)
	case p.tok.kind == tokPartial:
		return p.parsePartial()
	case p.tok.kind == tokRepeat:
		return p.parseRepeat()
	case p.tok.kind == tokStruct:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct('{'); err != nil {
			return nil, err
		}
		fields, err := p.parseStructItems()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct('}'); err != nil {
			return nil, err
		}
		return bithenge.NewStructTransform(fields), nil
	case p.tok.kind == tokSwitch:
		return p.parseSwitch(false)
	default:
		return nil, p.syntaxError("unexpected " + p.tok.text() + " (transform expected)")
	}
}

// parseInvocation parses `IDENT ('(' expr (',' expr)* ')')?`: a reference
// to a primitive or user-defined transform, optionally applied to
// arguments via the param-wrapper combinator (spec §4.3/§4.7
// parse_invocation). Arity is checked uniformly via numParamsOf, which
// treats both primitives (bitUintPrimitive, knownLengthPrimitive) and
// user-defined barrier transforms the same way.
func (p *parser) parseInvocation() (bithenge.Transform, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	result, ok := p.lookupTransform(name)
	if !ok {
		return nil, p.syntaxError("transform not found: " + name)
	}

	var args []bithenge.Expression
	if p.atPunct('(') {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for !p.atPunct(')') {
			if len(args) > 0 {
				if err := p.expectPunct(','); err != nil {
					return nil, err
				}
			}
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if numParamsOf(result) != len(args) {
		return nil, p.syntaxError("incorrect number of parameters for " + name)
	}
	if len(args) > 0 {
		return bithenge.NewParamWrapperTransform(result, args), nil
	}
	return result, nil
}

// parseIf parses `if (expr) { then } (else { else })?` (spec §4.3 if
// combinator). inStruct selects whether the branches are struct bodies
// (used from within a struct_item) or full transforms; outside a struct an
// else clause is mandatory, matching script.c's parse_if.
func (p *parser) parseIf(inStruct bool) (bithenge.Transform, error) {
	if err := p.expectKind(tokIf, "'if'"); err != nil {
		return nil, err
	}
	if err := p.expectPunct('('); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(')'); err != nil {
		return nil, err
	}
	if err := p.expectPunct('{'); err != nil {
		return nil, err
	}
	thenX, err := p.parseBranch(inStruct)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct('}'); err != nil {
		return nil, err
	}

	var elseX bithenge.Transform
	if p.tok.kind == tokElse {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct('{'); err != nil {
			return nil, err
		}
		elseX, err = p.parseBranch(inStruct)
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct('}'); err != nil {
			return nil, err
		}
	} else if inStruct {
		elseX = emptyTransform()
	} else {
		return nil, p.syntaxError("else expected")
	}

	return bithenge.NewIfTransform(cond, thenX, elseX), nil
}

// parseBranch parses one if/switch arm body: a nested struct_body merged
// into an anonymous struct when inStruct, or a full transform otherwise.
func (p *parser) parseBranch(inStruct bool) (bithenge.Transform, error) {
	if inStruct {
		fields, err := p.parseStructItems()
		if err != nil {
			return nil, err
		}
		return bithenge.NewStructTransform(fields), nil
	}
	return p.parseTransform()
}

// emptyTransform is an inputless transform yielding EmptyInternal, used as
// the implicit else branch of an if/switch struct_item with no else clause
// (spec §4.5.1 "structs
// without .name merge"; grounded on script.c's make_empty_transform, which
// builds an inputless-transform over a constant empty-internal node — the
// same observable behavior as an empty struct here, since both produce
// EmptyInternal's zero entries while consuming zero bytes).
func emptyTransform() bithenge.Transform {
	return bithenge.NewInputlessTransform(bithenge.NewConstExpression(bithenge.EmptyInternal))
}

// parseSwitch parses `switch (expr) { (case_expr | 'else') ':' arm ';' }*`
// and desugars it into a right-folded if-chain terminated by `invalid`
// (spec §4.3 switch combinator, grounded on script.c's parse_switch).
func (p *parser) parseSwitch(inStruct bool) (bithenge.Transform, error) {
	if err := p.expectKind(tokSwitch, "'switch'"); err != nil {
		return nil, err
	}
	if err := p.expectPunct('('); err != nil {
		return nil, err
	}
	ref, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(')'); err != nil {
		return nil, err
	}
	if err := p.expectPunct('{'); err != nil {
		return nil, err
	}

	var conds []bithenge.Expression
	var arms []bithenge.Transform
	for !p.atPunct('}') {
		var cond bithenge.Expression
		if p.tok.kind == tokElse {
			if err := p.advance(); err != nil {
				return nil, err
			}
			cond = bithenge.NewConstExpression(bithenge.TrueNode)
		} else {
			caseExpr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			cond = bithenge.NewBinaryExpression(bithenge.OpEq, ref, caseExpr)
		}
		if err := p.expectPunct(':'); err != nil {
			return nil, err
		}
		var arm bithenge.Transform
		if inStruct {
			if err := p.expectPunct('{'); err != nil {
				return nil, err
			}
			arm, err = p.parseBranch(true)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct('}'); err != nil {
				return nil, err
			}
		} else {
			arm, err = p.parseTransform()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expectPunct(';'); err != nil {
			return nil, err
		}
		conds = append(conds, cond)
		arms = append(arms, arm)
	}
	if err := p.expectPunct('}'); err != nil {
		return nil, err
	}

	var result bithenge.Transform = bithenge.InvalidTransform
	for i := len(conds) - 1; i >= 0; i-- {
		result = bithenge.NewIfTransform(conds[i], arms[i], result)
	}
	return result, nil
}

// parseRepeat parses `repeat ('(' expr ')')? '{' transform '}'` (spec
// §4.5.2). Without a count expression, repeat decodes until an element
// fails to fit.
func (p *parser) parseRepeat() (bithenge.Transform, error) {
	if err := p.expectKind(tokRepeat, "'repeat'"); err != nil {
		return nil, err
	}
	var count bithenge.Expression
	if p.atPunct('(') {
		if err := p.advance(); err != nil {
			return nil, err
		}
		var err error
		count, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(')'); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct('{'); err != nil {
		return nil, err
	}
	element, err := p.parseTransform()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct('}'); err != nil {
		return nil, err
	}
	return bithenge.NewRepeatTransform(element, count), nil
}

// parseDoWhile parses `do '{' transform '}' while '(' expr ')'` (spec
// §4.5.3).
func (p *parser) parseDoWhile() (bithenge.Transform, error) {
	if err := p.expectKind(tokDo, "'do'"); err != nil {
		return nil, err
	}
	if err := p.expectPunct('{'); err != nil {
		return nil, err
	}
	element, err := p.parseTransform()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct('}'); err != nil {
		return nil, err
	}
	if err := p.expectKind(tokWhile, "'while'"); err != nil {
		return nil, err
	}
	if err := p.expectPunct('('); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(')'); err != nil {
		return nil, err
	}
	return bithenge.NewDoWhileTransform(element, cond), nil
}

// parsePartial parses `partial ('(' expr ')')? '{' transform '}'` (spec
// §4.3 partial combinator). An offset expression is spliced in as a
// leading compose stage that projects `in[offset:]` before the partial
// apply, grounded on script.c's parse_partial.
func (p *parser) parsePartial() (bithenge.Transform, error) {
	if err := p.expectKind(tokPartial, "'partial'"); err != nil {
		return nil, err
	}
	var offsetXform bithenge.Transform
	if p.atPunct('(') {
		if err := p.advance(); err != nil {
			return nil, err
		}
		offset, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(')'); err != nil {
			return nil, err
		}
		sub := bithenge.NewSubblobExpression(bithenge.NewInNodeExpression(), offset, nil, true)
		offsetXform = bithenge.NewExpressionTransform(sub)
	}
	if err := p.expectPunct('{'); err != nil {
		return nil, err
	}
	inner, err := p.parseTransform()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct('}'); err != nil {
		return nil, err
	}
	result := bithenge.NewPartialTransform(inner)
	if offsetXform != nil {
		result = bithenge.NewComposeTransform([]bithenge.Transform{result, offsetXform})
	}
	return result, nil
}

// --- struct bodies ---

// parseStructItems parses struct_body (spec §4.7): a sequence of named or
// merged fields, plus nested if/switch field-groups (grounded on
// script.c's parse_struct).
func (p *parser) parseStructItems() ([]bithenge.NamedSubtransform, error) {
	var fields []bithenge.NamedSubtransform
	for !p.atPunct('}') {
		switch p.tok.kind {
		case tokIf:
			xform, err := p.parseIf(true)
			if err != nil {
				return nil, err
			}
			fields = append(fields, bithenge.NewNamedField("", xform))
		case tokSwitch:
			xform, err := p.parseSwitch(true)
			if err != nil {
				return nil, err
			}
			fields = append(fields, bithenge.NewNamedField("", xform))
		default:
			name := ""
			if p.atPunct('.') {
				if err := p.advance(); err != nil {
					return nil, err
				}
				n, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				name = n
			}
			if err := p.expectKind(tokLeftArrow, "'<-'"); err != nil {
				return nil, err
			}
			xform, err := p.parseTransform()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(';'); err != nil {
				return nil, err
			}
			fields = append(fields, bithenge.NewNamedField(name, xform))
		}
	}
	return fields, nil
}

// --- expressions ---

// precedence levels, low to high (spec §4.7: "&& ||, == !=, < <= > >=,
// + - ++, * // %").
const (
	precNone = iota
	precAnd
	precEquals
	precCompare
	precAdd
	precMultiply
)

func binaryOpAndPrecedence(t token) (bithenge.BinaryOp, int, bool) {
	switch {
	case t.kind == tokAnd:
		return bithenge.OpAnd, precAnd, true
	case t.kind == tokOr:
		return bithenge.OpOr, precAnd, true
	case t.kind == tokEq:
		return bithenge.OpEq, precEquals, true
	case t.kind == tokNe:
		return bithenge.OpNe, precEquals, true
	case t.kind == tokPunct && t.ch == '<':
		return bithenge.OpLt, precCompare, true
	case t.kind == tokLe:
		return bithenge.OpLe, precCompare, true
	case t.kind == tokPunct && t.ch == '>':
		return bithenge.OpGt, precCompare, true
	case t.kind == tokGe:
		return bithenge.OpGe, precCompare, true
	case t.kind == tokPunct && t.ch == '+':
		return bithenge.OpAdd, precAdd, true
	case t.kind == tokPunct && t.ch == '-':
		return bithenge.OpSub, precAdd, true
	case t.kind == tokConcat:
		return bithenge.OpConcat, precAdd, true
	case t.kind == tokPunct && t.ch == '*':
		return bithenge.OpMul, precMultiply, true
	case t.kind == tokIntDiv:
		return bithenge.OpDiv, precMultiply, true
	case t.kind == tokPunct && t.ch == '%':
		return bithenge.OpMod, precMultiply, true
	default:
		return 0, 0, false
	}
}

// parseExpression parses a full expression at the lowest precedence (spec
// §4.7 expression rule).
func (p *parser) parseExpression() (bithenge.Expression, error) {
	return p.parseExpressionPrecedence(precNone)
}

// parseExpressionPrecedence implements precedence climbing: an operator is
// consumed only if its precedence is strictly greater than prevPrecedence,
// and its right-hand side is parsed with that operator's own precedence as
// the new floor — producing left-associative chains at each precedence
// level (grounded on script.c's parse_expression_precedence).
func (p *parser) parseExpressionPrecedence(prevPrecedence int) (bithenge.Expression, error) {
	left, err := p.parsePostfixExpression()
	if err != nil {
		return nil, err
	}
	for {
		op, prec, ok := binaryOpAndPrecedence(p.tok)
		if !ok || prec <= prevPrecedence {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpressionPrecedence(prec)
		if err != nil {
			return nil, err
		}
		left = bithenge.NewBinaryExpression(op, left, right)
	}
	return left, nil
}

// parsePostfixExpression parses a term followed by any number of `.field`,
// `[expr]`, `[expr, expr]`, `[expr:expr]`, or `[expr:]` postfix operators
// (spec §4.7 "Postfix: .IDENT, [expr], [expr,expr] ..., [expr:expr] ...,
// [expr:]").
func (p *parser) parsePostfixExpression() (bithenge.Expression, error) {
	expr, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct('.'):
			if err := p.advance(); err != nil {
				return nil, err
			}
			id, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			key := bithenge.NewConstExpression(bithenge.NewString(id))
			expr = bithenge.NewBinaryExpression(bithenge.OpMember, expr, key)
		case p.atPunct('['):
			if err := p.advance(); err != nil {
				return nil, err
			}
			start, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if p.atPunct(',') || p.atPunct(':') {
				absolute := p.atPunct(':')
				if err := p.advance(); err != nil {
					return nil, err
				}
				var limit bithenge.Expression
				if !(p.atPunct(']') && absolute) {
					limit, err = p.parseExpression()
					if err != nil {
						return nil, err
					}
				}
				if err := p.expectPunct(']'); err != nil {
					return nil, err
				}
				expr = bithenge.NewSubblobExpression(expr, start, limit, absolute)
			} else if p.atPunct(']') {
				if err := p.advance(); err != nil {
					return nil, err
				}
				expr = bithenge.NewBinaryExpression(bithenge.OpMember, expr, start)
			} else {
				return nil, p.syntaxError("expected ',', ':', or ']'")
			}
		default:
			return expr, nil
		}
	}
}

// parseTerm parses a leaf expression: a literal, `in`, a parameter name, a
// `.field` scope-member reference, or a parenthesized expression (spec
// §4.7, grounded on script.c's parse_term).
func (p *parser) parseTerm() (bithenge.Expression, error) {
	switch {
	case p.tok.kind == tokTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return bithenge.NewConstExpression(bithenge.TrueNode), nil
	case p.tok.kind == tokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return bithenge.NewConstExpression(bithenge.FalseNode), nil
	case p.tok.kind == tokIn:
		if err := p.advance(); err != nil {
			return nil, err
		}
		p.inNodeUsed = true
		return bithenge.NewInNodeExpression(), nil
	case p.tok.kind == tokInt:
		v := p.tok.ival
		if err := p.advance(); err != nil {
			return nil, err
		}
		return bithenge.NewConstExpression(bithenge.NewInteger(v)), nil
	case p.tok.kind == tokIdent:
		name := p.tok.str
		idx := -1
		for i, pn := range p.paramNames {
			if pn == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, p.syntaxError("unknown identifier: " + name)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return bithenge.NewParamExpression(idx), nil
	case p.atPunct('.'):
		if err := p.advance(); err != nil {
			return nil, err
		}
		id, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return bithenge.NewScopeMemberExpression(id), nil
	case p.atPunct('('):
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(')'); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, p.syntaxError("expression expected, found " + p.tok.text())
	}
}
