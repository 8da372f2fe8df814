// Package infer assigns a concrete type to every IR expression and local
// binding using a two-pass bidirectional constraint solver. Unresolvable
// variables fall back to the dynamic Unknown type instead of failing;
// only true contradictions are fatal.
package infer

import (
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Type variables and constraints
// ---------------------------------------------------------------------------

// Var is a type variable. Variables are scoped to one function's
// inference pass and never outlive it.
type Var int

// Term is either a type variable or a concrete type.
type Term struct {
	Var  Var
	Type *ir.Type // non-nil means concrete
}

// VarTerm wraps a variable as a term.
func VarTerm(v Var) Term { return Term{Var: v} }

// TypeTerm wraps a concrete type as a term.
func TypeTerm(t *ir.Type) Term { return Term{Var: -1, Type: t} }

// IsVar reports whether the term is an unresolved variable reference.
func (t Term) IsVar() bool { return t.Type == nil }

// ConstraintKind tags the constraint variant.
type ConstraintKind int

const (
	// KEqual requires two terms to unify.
	KEqual ConstraintKind = iota
	// KHasCapability requires a value to support a named member, binding
	// the member's result type.
	KHasCapability
	// KIterableOf requires a value to be iterable, binding its element type.
	KIterableOf
	// KCallableWith requires a value to be callable with the given
	// argument terms, binding the result.
	KCallableWith
)

// Constraint is one inference obligation. A constraint set belongs to a
// single function's pass; interprocedural information flows only through
// the read-only signature table.
type Constraint struct {
	Kind   ConstraintKind
	A, B   Term
	Name   string  // KHasCapability member name
	Args   []Term  // KCallableWith arguments
	Key    ir.Expr // KHasCapability "__getitem__": the subscript expression
	Span   ir.Span
	Origin string // short description for contradiction reports
}

// pool allocates type variables and tracks union-find state.
type pool struct {
	parent []Var
	bound  []*ir.Type // resolved type per root, nil if unresolved
}

func newPool() *pool {
	return &pool{}
}

// fresh allocates an unbound variable.
func (p *pool) fresh() Var {
	v := Var(len(p.parent))
	p.parent = append(p.parent, v)
	p.bound = append(p.bound, nil)
	return v
}

// find returns the representative of v with path compression.
func (p *pool) find(v Var) Var {
	for p.parent[v] != v {
		p.parent[v] = p.parent[p.parent[v]]
		v = p.parent[v]
	}
	return v
}

// union merges two variables, keeping the more specific binding.
func (p *pool) union(a, b Var) (Var, *ir.Type, *ir.Type) {
	ra, rb := p.find(a), p.find(b)
	if ra == rb {
		return ra, p.bound[ra], nil
	}
	ta, tb := p.bound[ra], p.bound[rb]
	p.parent[rb] = ra
	return ra, ta, tb
}

// typeOf returns the resolved type of v, Unknown if unbound.
func (p *pool) typeOf(v Var) *ir.Type {
	t := p.bound[p.find(v)]
	if t == nil {
		return ir.Unknown
	}
	return t
}

// bind sets the resolved type of v's root.
func (p *pool) bind(v Var, t *ir.Type) {
	p.bound[p.find(v)] = t
}

// resolve materializes a term to its current concrete type.
func (p *pool) resolve(t Term) *ir.Type {
	if t.IsVar() {
		return p.typeOf(t.Var)
	}
	return t.Type
}
