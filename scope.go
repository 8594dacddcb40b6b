package bithenge

import "github.com/bithenge/bithenge/internal/diag"

// Scope is the dynamic environment chain threaded through every transform
// and expression evaluation (spec §3.3/§4.2). Unlike the source, which
// manually reference-counts scopes and must break a deliberate cycle
// between a seq-node, the scope it owns, and that scope's current-node slot
// (spec §4.5.4), this implementation relies on the garbage collector for
// that cycle (spec §9 sanctions this explicitly for a tracing-GC target;
// see DESIGN.md's "Reference counting vs GC" entry). What still must hold
// deliberately is the *iteration* contract: a scope's current-building node
// must not be mutated by anything other than the transform that installed
// it while a walk over that node is in progress.
type Scope struct {
	outer       *Scope
	barrier     bool
	currentNode Node
	inNode      Node
	params      []Node

	// errMsg/errSet live only on the outermost frame (first-error-wins,
	// spec §4.2).
	errMsg string
	errSet bool
}

// NewScope allocates a fresh scope frame chained to outer (which may be
// nil for a root scope).
func NewScope(outer *Scope) *Scope {
	return &Scope{outer: outer}
}

// Outer returns the enclosing scope, or nil at the root.
func (s *Scope) Outer() *Scope { return s.outer }

// SetBarrier marks this scope as a lookup barrier (spec §4.2/§4.3 barrier
// combinator): outward scope-member expression lookups stop here.
func (s *Scope) SetBarrier() { s.barrier = true }

// IsBarrier reports whether this scope is a barrier.
func (s *Scope) IsBarrier() bool { return s.barrier }

// CurrentNode returns the node currently being built in this frame, or nil.
func (s *Scope) CurrentNode() Node { return s.currentNode }

// SetCurrentNode installs node as the node currently being built in this
// frame (spec "current-building node").
func (s *Scope) SetCurrentNode(node Node) { s.currentNode = node }

// InNode returns the input node explicitly attached to this frame, or nil.
func (s *Scope) InNode() Node { return s.inNode }

// SetInNode attaches an explicit input node to this frame (used by the
// barrier combinator, spec §4.3, so `in` still resolves inside a barrier
// even though scope-member lookups are blocked there).
func (s *Scope) SetInNode(node Node) { s.inNode = node }

// ResolveInNode walks outward from s until a frame with an explicit in-node
// is found (spec §4.4 in-node expression).
func ResolveInNode(s *Scope) (Node, error) {
	for f := s; f != nil; f = f.outer {
		if f.inNode != nil {
			return f.inNode, nil
		}
	}
	return nil, diag.Errorf(diag.EINVAL, "no input node in scope")
}

// ResolveCurrentNode walks outward from s until a frame with a current
// node is found (spec §4.4 current-node expression).
func ResolveCurrentNode(s *Scope) (Node, error) {
	for f := s; f != nil; f = f.outer {
		if f.currentNode != nil {
			return f.currentNode, nil
		}
	}
	return nil, diag.Errorf(diag.EINVAL, "no current node in scope")
}

// AllocParams allocates a fixed-size parameter vector on this frame (spec
// §4.2 alloc_params); once allocated it is never resized.
func (s *Scope) AllocParams(n int) {
	s.params = make([]Node, n)
}

// SetParam assigns slot i of this frame's parameter vector.
func (s *Scope) SetParam(i int, node Node) error {
	if i < 0 || i >= len(s.params) {
		return diag.Errorf(diag.EINVAL, "parameter index %d out of range", i)
	}
	s.params[i] = node
	return nil
}

// GetParam resolves parameter i, walking outward through frames with no
// parameter vector of their own (spec §4.2: "this allows inputless
// transforms to inherit parameters of the enclosing wrapper").
func GetParam(s *Scope, i int) (Node, error) {
	for f := s; f != nil; f = f.outer {
		if f.params == nil {
			continue
		}
		if i < 0 || i >= len(f.params) {
			return nil, diag.Errorf(diag.EINVAL, "parameter index %d out of range", i)
		}
		return f.params[i], nil
	}
	return nil, diag.Errorf(diag.EINVAL, "no parameter scope found")
}

// ScopeMember resolves key by walking outward from s, not crossing a
// barrier, consulting each frame's current node if it is Internal (spec
// §4.4 scope-member expression).
func ScopeMember(s *Scope, key Node) (Node, error) {
	for f := s; f != nil; f = f.outer {
		if f.currentNode != nil {
			if internal, ok := f.currentNode.(Internal); ok {
				val, err := internal.Get(key)
				if err == nil {
					return val, nil
				}
				if diag.CodeOf(err) != diag.ENOENT {
					return nil, err
				}
			}
		}
		if f.barrier {
			break
		}
	}
	name := "?"
	if sn, ok := key.(*StringNode); ok {
		name = sn.Value
	}
	s.Errorf("No scope member .%s", name)
	return nil, diag.Errorf(diag.ENOENT, "no scope member .%s", name)
}

// Errorf records the first error message at the outermost frame (spec
// §4.2: "first error wins"). %t formats a Node via the pretty printer.
func (s *Scope) Errorf(format string, args ...interface{}) {
	root := s
	for root.outer != nil {
		root = root.outer
	}
	if root.errSet {
		return
	}
	root.errMsg = formatScopeMessage(format, args...)
	root.errSet = true
}

// ErrorMessage returns the first recorded diagnostic message for this
// scope chain's root, if any.
func (s *Scope) ErrorMessage() (string, bool) {
	root := s
	for root.outer != nil {
		root = root.outer
	}
	return root.errMsg, root.errSet
}
