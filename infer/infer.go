package infer

import (
	"fmt"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Two-pass bidirectional inference
// ---------------------------------------------------------------------------

// CallKind distinguishes statically-resolved call targets from calls
// dispatched through a capability on a dynamically-typed value. Computed
// once here and consumed by codegen; no runtime reflection exists.
type CallKind int

const (
	CallDirect CallKind = iota
	CallCapability
)

// Result is one function's resolved type assignment.
type Result struct {
	ExprTypes   map[ir.NodeID]*ir.Type
	VarTypes    map[string]*ir.Type
	LoopElems   map[ir.NodeID]*ir.Type // For.BindID -> element type
	CallKinds   map[ir.NodeID]CallKind
	Ret         *ir.Type
	YieldType   *ir.Type
	Diagnostics []*diag.Diagnostic
	Failed      bool
}

// TypeOf returns the resolved type of an expression, Unknown when the
// expression carries no entry.
func (r *Result) TypeOf(e ir.Expr) *ir.Type {
	if r == nil || e == nil {
		return ir.Unknown
	}
	if t, ok := r.ExprTypes[e.ID()]; ok {
		return t
	}
	return ir.Unknown
}

const maxSolveRounds = 16

// Function runs bidirectional inference over one function. The signature
// table is read-only and shared across parallel passes. A non-nil seed
// pre-binds variables from a previous run: re-running inference seeded
// from its own result yields an identical assignment.
func Function(fn *ir.Function, sigs *Signatures, seed *Result) *Result {
	e := &engine{
		fn:       fn,
		sigs:     sigs,
		pool:     newPool(),
		exprVars: make(map[ir.NodeID]Var),
		locals:   make(map[string]Var),
		r:        diag.NewReporter(diag.StageInfer),
	}
	e.retVar = e.pool.fresh()
	e.yieldVar = e.pool.fresh()

	// Parameters seed from hints; the receiver resolves to its class type.
	if fn.Receiver != "" {
		v := e.local("self")
		e.pool.bind(v, ir.NamedOf(fn.Receiver))
	}
	for _, p := range fn.Params {
		v := e.local(p.Name)
		if !p.Type.IsUnknown() {
			e.pool.bind(v, p.Type)
		}
	}
	if fn.MaySuspend {
		if !fn.Ret.IsUnknown() && fn.Ret.Kind == ir.KindList {
			e.pool.bind(e.yieldVar, fn.Ret.Elem())
		}
	} else if !fn.Ret.IsUnknown() {
		e.pool.bind(e.retVar, fn.Ret)
	}
	if seed != nil {
		for name, t := range seed.VarTypes {
			if !t.IsUnknown() {
				v := e.local(name)
				e.join(v, t, ir.ZeroSpan(), "seed")
			}
		}
	}

	e.forwardStmts(fn.Body)
	e.backwardStmts(fn.Body)
	e.solve()
	return e.result()
}

type engine struct {
	fn       *ir.Function
	sigs     *Signatures
	pool     *pool
	exprVars map[ir.NodeID]Var
	locals   map[string]Var
	cons     []Constraint
	r        *diag.Reporter
	retVar   Var
	yieldVar Var
	failed   bool
}

// local returns the variable for a named binding, creating it on first use.
func (e *engine) local(name string) Var {
	if v, ok := e.locals[name]; ok {
		return v
	}
	v := e.pool.fresh()
	e.locals[name] = v
	return v
}

// exprVar returns the variable for an expression node.
func (e *engine) exprVar(x ir.Expr) Var {
	if v, ok := e.exprVars[x.ID()]; ok {
		return v
	}
	v := e.pool.fresh()
	e.exprVars[x.ID()] = v
	return v
}

func (e *engine) constrain(c Constraint) {
	e.cons = append(e.cons, c)
}

func (e *engine) equal(a, b Term, span ir.Span, origin string) {
	e.constrain(Constraint{Kind: KEqual, A: a, B: b, Span: span, Origin: origin})
}

// join unifies a variable with a concrete type immediately, reporting a
// contradiction on failure.
func (e *engine) join(v Var, t *ir.Type, span ir.Span, origin string) {
	cur := e.pool.typeOf(v)
	joined, err := unifyTypes(cur, t)
	if err != nil {
		e.contradiction(cur, t, span, origin)
		return
	}
	e.pool.bind(v, joined)
}

func (e *engine) contradiction(a, b *ir.Type, span ir.Span, origin string) {
	if e.failed {
		return
	}
	e.failed = true
	e.r.Errorf(diag.CatTypeContradiction, origin, span,
		"type contradiction: %s is incompatible with %s (at %s)", a, b, origin)
}

// ---------------------------------------------------------------------------
// Forward pass: seed from literals, hints, constructors, and data flow
// ---------------------------------------------------------------------------

func (e *engine) forwardStmts(stmts []ir.Stmt) {
	for _, s := range stmts {
		e.forwardStmt(s)
	}
}

func (e *engine) forwardStmt(s ir.Stmt) {
	switch st := s.(type) {
	case *ir.Assign:
		value := e.forwardExpr(st.Value)
		switch target := st.Target.(type) {
		case *ir.Name:
			v := e.local(target.Ident)
			e.exprVars[target.ID()] = v
			e.equal(VarTerm(v), value, st.Span(), fmt.Sprintf("assignment to %q", target.Ident))
			if st.Hint != nil && !st.Hint.IsUnknown() {
				e.equal(VarTerm(v), TypeTerm(st.Hint), st.Span(), "declared hint")
			}
		case *ir.Attribute:
			obj := e.forwardExpr(target.Object)
			_ = obj
			if ft := e.fieldTypeOf(target); !ft.IsUnknown() {
				e.equal(value, TypeTerm(ft), st.Span(), fmt.Sprintf("field %q", target.Attr))
			}
			e.exprVar(target)
		case *ir.Index:
			e.forwardExpr(target.Object)
			e.forwardExpr(target.Key)
			e.exprVar(target)
		default:
			e.forwardExpr(st.Target)
		}
	case *ir.If:
		e.forwardExpr(st.Cond)
		e.forwardStmts(st.Then)
		e.forwardStmts(st.Else)
	case *ir.While:
		e.forwardExpr(st.Cond)
		e.forwardStmts(st.Body)
	case *ir.For:
		e.forwardExpr(st.Iter)
		e.local(st.Target)
		e.forwardStmts(st.Body)
	case *ir.Return:
		if st.Value == nil {
			e.equal(VarTerm(e.retVar), TypeTerm(ir.None), st.Span(), "bare return")
		} else {
			value := e.forwardExpr(st.Value)
			e.equal(VarTerm(e.retVar), value, st.Span(), "return value")
		}
	case *ir.Yield:
		value := e.forwardExpr(st.Value)
		e.equal(VarTerm(e.yieldVar), value, st.Span(), "yield value")
	case *ir.Raise:
		if st.Value != nil {
			e.forwardExpr(st.Value)
		}
	case *ir.ExprStmt:
		e.forwardExpr(st.Expr)
	case *ir.With:
		ctx := e.forwardExpr(st.Context)
		if st.Target != "" {
			v := e.local(st.Target)
			e.equal(VarTerm(v), ctx, st.Span(), "with binding")
		}
		e.forwardStmts(st.Body)
	case *ir.Pass, *ir.Break, *ir.Continue:
	}
}

// forwardExpr assigns a variable to the expression and seeds it from how
// the value is produced.
func (e *engine) forwardExpr(x ir.Expr) Term {
	if x == nil {
		return TypeTerm(ir.Unknown)
	}
	switch ex := x.(type) {
	case *ir.IntLit:
		v := e.exprVar(ex)
		e.pool.bind(v, literalIntType(ex.Value))
		return VarTerm(v)
	case *ir.FloatLit:
		v := e.exprVar(ex)
		e.pool.bind(v, ir.Float)
		return VarTerm(v)
	case *ir.BoolLit:
		v := e.exprVar(ex)
		e.pool.bind(v, ir.Bool)
		return VarTerm(v)
	case *ir.StrLit:
		v := e.exprVar(ex)
		e.pool.bind(v, ir.Str)
		return VarTerm(v)
	case *ir.BytesLit:
		v := e.exprVar(ex)
		e.pool.bind(v, ir.Bytes)
		return VarTerm(v)
	case *ir.NoneLit:
		v := e.exprVar(ex)
		e.pool.bind(v, ir.None)
		return VarTerm(v)

	case *ir.Name:
		// Names share the binding's variable so assignments and uses
		// unify transparently.
		if _, isLocal := e.locals[ex.Ident]; !isLocal {
			if sig, ok := e.sigs.Func(ex.Ident); ok {
				v := e.exprVar(ex)
				e.pool.bind(v, ir.FuncOf(sig.Params, sig.Ret))
				return VarTerm(v)
			}
		}
		v := e.local(ex.Ident)
		e.exprVars[ex.ID()] = v
		return VarTerm(v)

	case *ir.Binary:
		left := e.forwardExpr(ex.Left)
		right := e.forwardExpr(ex.Right)
		v := e.exprVar(ex)
		origin := fmt.Sprintf("operator %s", ex.Op)
		switch ex.Op {
		case ir.OpEq, ir.OpNotEq, ir.OpLt, ir.OpLtEq, ir.OpGt, ir.OpGtEq:
			e.equal(left, right, ex.Span(), origin)
			e.pool.bind(v, ir.Bool)
		case ir.OpIn, ir.OpNotIn:
			e.pool.bind(v, ir.Bool)
		case ir.OpDiv:
			e.equal(left, right, ex.Span(), origin)
			e.pool.bind(v, ir.Float)
		case ir.OpAnd, ir.OpOr:
			e.equal(left, right, ex.Span(), origin)
			e.equal(VarTerm(v), left, ex.Span(), origin)
		default:
			e.equal(left, right, ex.Span(), origin)
			e.equal(VarTerm(v), left, ex.Span(), origin)
		}
		return VarTerm(v)

	case *ir.Unary:
		operand := e.forwardExpr(ex.Operand)
		v := e.exprVar(ex)
		if ex.Op == ir.OpNot {
			e.pool.bind(v, ir.Bool)
		} else {
			e.equal(VarTerm(v), operand, ex.Span(), "unary operator")
		}
		return VarTerm(v)

	case *ir.Call:
		return e.forwardCall(ex)

	case *ir.Attribute:
		e.forwardExpr(ex.Object)
		v := e.exprVar(ex)
		return VarTerm(v)

	case *ir.Index:
		e.forwardExpr(ex.Object)
		e.forwardExpr(ex.Key)
		v := e.exprVar(ex)
		return VarTerm(v)

	case *ir.ListLit:
		v := e.exprVar(ex)
		e.pool.bind(v, ir.ListOf(ir.Unknown))
		for _, el := range ex.Elems {
			elem := e.forwardExpr(el)
			e.constrain(Constraint{Kind: KIterableOf, A: VarTerm(v), B: elem,
				Span: ex.Span(), Origin: "list element"})
		}
		return VarTerm(v)

	case *ir.SetLit:
		v := e.exprVar(ex)
		e.pool.bind(v, ir.SetOf(ir.Unknown))
		for _, el := range ex.Elems {
			elem := e.forwardExpr(el)
			e.constrain(Constraint{Kind: KIterableOf, A: VarTerm(v), B: elem,
				Span: ex.Span(), Origin: "set element"})
		}
		return VarTerm(v)

	case *ir.MapLit:
		v := e.exprVar(ex)
		e.pool.bind(v, ir.MapOf(ir.Unknown, ir.Unknown))
		for i := range ex.Keys {
			key := e.forwardExpr(ex.Keys[i])
			value := e.forwardExpr(ex.Values[i])
			e.constrain(Constraint{Kind: KHasCapability, Name: "__setitem__",
				A: VarTerm(v), Args: []Term{key, value}, Span: ex.Span(), Origin: "dict entry"})
		}
		return VarTerm(v)

	case *ir.TupleLit:
		v := e.exprVar(ex)
		elems := make([]Term, len(ex.Elems))
		for i, el := range ex.Elems {
			elems[i] = e.forwardExpr(el)
		}
		e.constrain(Constraint{Kind: KHasCapability, Name: "__tuple__",
			A: VarTerm(v), Args: elems, Span: ex.Span(), Origin: "tuple literal"})
		return VarTerm(v)

	case *ir.Comprehension:
		iter := e.forwardExpr(ex.Iter)
		target := e.local(compScopedName(ex))
		e.constrain(Constraint{Kind: KIterableOf, A: iter, B: VarTerm(target),
			Span: ex.Span(), Origin: "comprehension iteration"})
		// The loop variable shadows inside the comprehension body; reuse
		// the scoped binding for the body walk.
		prev, had := e.locals[ex.Target]
		e.locals[ex.Target] = target
		if ex.Cond != nil {
			e.forwardExpr(ex.Cond)
		}
		value := e.forwardExpr(ex.Value)
		var key Term
		if ex.Key != nil {
			key = e.forwardExpr(ex.Key)
		}
		if had {
			e.locals[ex.Target] = prev
		} else {
			delete(e.locals, ex.Target)
		}
		v := e.exprVar(ex)
		switch ex.Kind {
		case ir.DictComp:
			e.pool.bind(v, ir.MapOf(ir.Unknown, ir.Unknown))
			e.constrain(Constraint{Kind: KHasCapability, Name: "__setitem__",
				A: VarTerm(v), Args: []Term{key, value}, Span: ex.Span(), Origin: "dict comprehension"})
		case ir.SetComp:
			e.pool.bind(v, ir.SetOf(ir.Unknown))
			e.constrain(Constraint{Kind: KIterableOf, A: VarTerm(v), B: value,
				Span: ex.Span(), Origin: "set comprehension"})
		default:
			e.pool.bind(v, ir.ListOf(ir.Unknown))
			e.constrain(Constraint{Kind: KIterableOf, A: VarTerm(v), B: value,
				Span: ex.Span(), Origin: "list comprehension"})
		}
		return VarTerm(v)

	case *ir.CondExpr:
		e.forwardExpr(ex.Cond)
		then := e.forwardExpr(ex.Then)
		els := e.forwardExpr(ex.Else)
		v := e.exprVar(ex)
		e.equal(then, els, ex.Span(), "conditional expression arms")
		e.equal(VarTerm(v), then, ex.Span(), "conditional expression")
		return VarTerm(v)
	}
	return TypeTerm(ir.Unknown)
}

func compScopedName(c *ir.Comprehension) string {
	return fmt.Sprintf("%s#comp%d", c.Target, c.IDVal)
}

func (e *engine) forwardCall(call *ir.Call) Term {
	v := e.exprVar(call)
	args := make([]Term, len(call.Args))
	for i, a := range call.Args {
		args[i] = e.forwardExpr(a)
	}

	switch fn := call.Fn.(type) {
	case *ir.Name:
		name := fn.Ident
		if _, isLocal := e.locals[name]; !isLocal {
			if sig, ok := e.sigs.Func(name); ok {
				for i, p := range sig.Params {
					if i < len(args) && !p.IsUnknown() {
						e.equal(args[i], TypeTerm(p), call.Span(),
							fmt.Sprintf("argument %d of %q", i+1, name))
					}
				}
				if !sig.Ret.IsUnknown() {
					e.pool.bind(v, sig.Ret)
				}
				return VarTerm(v)
			}
			if cls, ok := e.sigs.Class(name); ok {
				if init, ok := e.sigs.Method(cls.Name, "__init__"); ok {
					for i, p := range init.Params {
						if i < len(args) && !p.IsUnknown() {
							e.equal(args[i], TypeTerm(p), call.Span(),
								fmt.Sprintf("argument %d of %s()", i+1, name))
						}
					}
				}
				e.pool.bind(v, ir.NamedOf(name))
				return VarTerm(v)
			}
			if isBuiltin(name) {
				e.constrain(Constraint{Kind: KCallableWith, Name: name,
					A: VarTerm(v), Args: args, Span: call.Span(),
					Origin: fmt.Sprintf("builtin %q", name)})
				return VarTerm(v)
			}
		}
		// A locally-bound callable value: resolved in the backward pass.
		e.forwardExpr(fn)
		return VarTerm(v)

	case *ir.Attribute:
		e.forwardExpr(fn.Object)
		e.exprVar(fn)
		return VarTerm(v)

	default:
		e.forwardExpr(call.Fn)
		return VarTerm(v)
	}
}

// fieldTypeOf resolves self.<attr> against the receiver class.
func (e *engine) fieldTypeOf(attr *ir.Attribute) *ir.Type {
	obj, ok := attr.Object.(*ir.Name)
	if !ok || obj.Ident != "self" || e.fn.Receiver == "" {
		return ir.Unknown
	}
	return e.sigs.FieldType(e.fn.Receiver, attr.Attr)
}

// ---------------------------------------------------------------------------
// Backward pass: complementary constraints from usage sites
// ---------------------------------------------------------------------------

func (e *engine) backwardStmts(stmts []ir.Stmt) {
	for _, s := range stmts {
		e.backwardStmt(s)
	}
}

func (e *engine) backwardStmt(s ir.Stmt) {
	switch st := s.(type) {
	case *ir.Assign:
		e.backwardExpr(st.Value)
		if target, ok := st.Target.(*ir.Index); ok {
			obj := e.termOf(target.Object)
			key := e.termOf(target.Key)
			value := e.termOf(st.Value)
			e.constrain(Constraint{Kind: KHasCapability, Name: "__setitem__",
				A: obj, Args: []Term{key, value}, Span: st.Span(), Origin: "subscript assignment"})
			e.backwardExpr(target.Object)
			e.backwardExpr(target.Key)
		}
		if target, ok := st.Target.(*ir.Attribute); ok {
			e.backwardExpr(target.Object)
		}
	case *ir.If:
		e.backwardExpr(st.Cond)
		e.backwardStmts(st.Then)
		e.backwardStmts(st.Else)
	case *ir.While:
		e.backwardExpr(st.Cond)
		e.backwardStmts(st.Body)
	case *ir.For:
		e.backwardExpr(st.Iter)
		iter := e.termOf(st.Iter)
		target := e.local(st.Target)
		e.constrain(Constraint{Kind: KIterableOf, A: iter, B: VarTerm(target),
			Span: st.Span(), Origin: fmt.Sprintf("iteration over %q", st.Target)})
		e.backwardStmts(st.Body)
	case *ir.Return:
		e.backwardExpr(st.Value)
	case *ir.Yield:
		e.backwardExpr(st.Value)
	case *ir.Raise:
		e.backwardExpr(st.Value)
	case *ir.ExprStmt:
		e.backwardExpr(st.Expr)
	case *ir.With:
		e.backwardExpr(st.Context)
		e.backwardStmts(st.Body)
	}
}

func (e *engine) backwardExpr(x ir.Expr) {
	if x == nil {
		return
	}
	switch ex := x.(type) {
	case *ir.Binary:
		e.backwardExpr(ex.Left)
		e.backwardExpr(ex.Right)
		if ex.Op == ir.OpIn || ex.Op == ir.OpNotIn {
			e.constrain(Constraint{Kind: KIterableOf, A: e.termOf(ex.Right),
				B: e.termOf(ex.Left), Span: ex.Span(), Origin: "membership test"})
		}
	case *ir.Unary:
		e.backwardExpr(ex.Operand)
	case *ir.Call:
		e.backwardCall(ex)
	case *ir.Attribute:
		e.backwardExpr(ex.Object)
		e.constrain(Constraint{Kind: KHasCapability, Name: ex.Attr,
			A: e.termOf(ex.Object), B: e.termOf(ex), Span: ex.Span(),
			Origin: fmt.Sprintf("attribute %q", ex.Attr)})
	case *ir.Index:
		e.backwardExpr(ex.Object)
		e.backwardExpr(ex.Key)
		e.constrain(Constraint{Kind: KHasCapability, Name: "__getitem__",
			A: e.termOf(ex.Object), B: e.termOf(ex), Args: []Term{e.termOf(ex.Key)},
			Key: ex.Key, Span: ex.Span(), Origin: "subscript"})
	case *ir.ListLit:
		for _, el := range ex.Elems {
			e.backwardExpr(el)
		}
	case *ir.SetLit:
		for _, el := range ex.Elems {
			e.backwardExpr(el)
		}
	case *ir.TupleLit:
		for _, el := range ex.Elems {
			e.backwardExpr(el)
		}
	case *ir.MapLit:
		for i := range ex.Keys {
			e.backwardExpr(ex.Keys[i])
			e.backwardExpr(ex.Values[i])
		}
	case *ir.Comprehension:
		e.backwardExpr(ex.Iter)
		prev, had := e.locals[ex.Target]
		e.locals[ex.Target] = e.local(compScopedName(ex))
		e.backwardExpr(ex.Cond)
		e.backwardExpr(ex.Key)
		e.backwardExpr(ex.Value)
		if had {
			e.locals[ex.Target] = prev
		} else {
			delete(e.locals, ex.Target)
		}
	case *ir.CondExpr:
		e.backwardExpr(ex.Cond)
		e.backwardExpr(ex.Then)
		e.backwardExpr(ex.Else)
	}
}

func (e *engine) backwardCall(call *ir.Call) {
	for _, a := range call.Args {
		e.backwardExpr(a)
	}
	args := make([]Term, len(call.Args))
	for i, a := range call.Args {
		args[i] = e.termOf(a)
	}

	switch fn := call.Fn.(type) {
	case *ir.Attribute:
		e.backwardExpr(fn.Object)
		e.constrain(Constraint{Kind: KHasCapability, Name: fn.Attr,
			A: e.termOf(fn.Object), B: e.termOf(call), Args: args,
			Span: call.Span(), Origin: fmt.Sprintf("method %q", fn.Attr)})
	case *ir.Name:
		if _, isLocal := e.locals[fn.Ident]; isLocal {
			e.constrain(Constraint{Kind: KCallableWith,
				A: e.termOf(fn), B: e.termOf(call), Args: args,
				Span: call.Span(), Origin: fmt.Sprintf("call of %q", fn.Ident)})
		}
	default:
		e.backwardExpr(call.Fn)
		e.constrain(Constraint{Kind: KCallableWith,
			A: e.termOf(call.Fn), B: e.termOf(call), Args: args,
			Span: call.Span(), Origin: "indirect call"})
	}
}

// termOf returns the already-allocated term for an expression.
func (e *engine) termOf(x ir.Expr) Term {
	if x == nil {
		return TypeTerm(ir.Unknown)
	}
	return VarTerm(e.exprVar(x))
}

// ---------------------------------------------------------------------------
// Solver
// ---------------------------------------------------------------------------

// solve iterates the constraint set to a fixed point. Equality uses
// union-find unification; the richer constraints refine partially
// resolved container types as information becomes available.
func (e *engine) solve() {
	for round := 0; round < maxSolveRounds && !e.failed; round++ {
		changed := false
		for i := range e.cons {
			if e.applyConstraint(&e.cons[i]) {
				changed = true
			}
			if e.failed {
				return
			}
		}
		if !changed {
			return
		}
	}
}

func (e *engine) applyConstraint(c *Constraint) bool {
	switch c.Kind {
	case KEqual:
		return e.applyEqual(c)
	case KIterableOf:
		return e.applyIterable(c)
	case KHasCapability:
		return e.applyCapability(c)
	case KCallableWith:
		return e.applyCallable(c)
	}
	return false
}

func (e *engine) applyEqual(c *Constraint) bool {
	ta := e.pool.resolve(c.A)
	tb := e.pool.resolve(c.B)
	joined, err := unifyTypes(ta, tb)
	if err != nil {
		e.contradiction(ta, tb, c.Span, c.Origin)
		return false
	}
	changed := false
	if c.A.IsVar() && c.B.IsVar() {
		root, _, _ := e.pool.union(c.A.Var, c.B.Var)
		if !ir.Equal(e.pool.bound[e.pool.find(root)], joined) {
			e.pool.bind(root, joined)
			changed = true
		}
		return changed
	}
	if c.A.IsVar() && !ir.Equal(e.pool.typeOf(c.A.Var), joined) {
		e.pool.bind(c.A.Var, joined)
		changed = true
	}
	if c.B.IsVar() && !ir.Equal(e.pool.typeOf(c.B.Var), joined) {
		e.pool.bind(c.B.Var, joined)
		changed = true
	}
	return changed
}

// applyIterable relates a container term to its element term in both
// directions.
func (e *engine) applyIterable(c *Constraint) bool {
	container := e.pool.resolve(c.A)
	elem := e.pool.resolve(c.B)
	changed := false

	// Container -> element.
	var containerElem *ir.Type
	switch {
	case container.Kind == ir.KindList || container.Kind == ir.KindSet:
		containerElem = container.Elem()
	case container.Kind == ir.KindMap:
		containerElem = container.Elems[0] // iterating a dict yields keys
	case container.Kind == ir.KindStr:
		containerElem = ir.Str
	case container.Kind == ir.KindBytes:
		containerElem = ir.Int(32)
	default:
		containerElem = ir.Unknown
	}
	if !containerElem.IsUnknown() && c.B.IsVar() {
		joined, err := unifyTypes(elem, containerElem)
		if err != nil {
			e.contradiction(elem, containerElem, c.Span, c.Origin)
			return false
		}
		if !ir.Equal(joined, elem) {
			e.pool.bind(c.B.Var, joined)
			changed = true
		}
	}

	// Element -> container elem refinement for list/set.
	if !elem.IsUnknown() && c.A.IsVar() &&
		(container.Kind == ir.KindList || container.Kind == ir.KindSet) {
		joinedElem, err := unifyTypes(container.Elem(), elem)
		if err != nil {
			e.contradiction(container.Elem(), elem, c.Span, c.Origin)
			return false
		}
		refined := &ir.Type{Kind: container.Kind, Elems: []*ir.Type{joinedElem}}
		if !ir.Equal(refined, container) {
			e.pool.bind(c.A.Var, refined)
			changed = true
		}
	}
	return changed
}

func (e *engine) applyCapability(c *Constraint) bool {
	recv := e.pool.resolve(c.A)
	switch c.Name {
	case "__tuple__":
		elems := make([]*ir.Type, len(c.Args))
		for i, a := range c.Args {
			elems[i] = e.pool.resolve(a)
		}
		t := ir.TupleOf(elems...)
		if c.A.IsVar() && !ir.Equal(e.pool.typeOf(c.A.Var), t) {
			e.pool.bind(c.A.Var, t)
			return true
		}
		return false

	case "__setitem__":
		if recv.Kind == ir.KindMap && c.A.IsVar() && len(c.Args) == 2 {
			key, errK := unifyTypes(recv.Elems[0], e.pool.resolve(c.Args[0]))
			value, errV := unifyTypes(recv.Elems[1], e.pool.resolve(c.Args[1]))
			if errK != nil || errV != nil {
				if errK != nil {
					e.contradiction(recv.Elems[0], e.pool.resolve(c.Args[0]), c.Span, c.Origin)
				} else {
					e.contradiction(recv.Elems[1], e.pool.resolve(c.Args[1]), c.Span, c.Origin)
				}
				return false
			}
			refined := ir.MapOf(key, value)
			if !ir.Equal(refined, recv) {
				e.pool.bind(c.A.Var, refined)
				return true
			}
		}
		if recv.Kind == ir.KindList && c.A.IsVar() && len(c.Args) == 2 {
			elem, err := unifyTypes(recv.Elem(), e.pool.resolve(c.Args[1]))
			if err != nil {
				e.contradiction(recv.Elem(), e.pool.resolve(c.Args[1]), c.Span, c.Origin)
				return false
			}
			refined := ir.ListOf(elem)
			if !ir.Equal(refined, recv) {
				e.pool.bind(c.A.Var, refined)
				return true
			}
		}
		return false

	case "__getitem__":
		var result *ir.Type
		switch recv.Kind {
		case ir.KindList:
			result = recv.Elem()
		case ir.KindMap:
			result = recv.Elems[1]
		case ir.KindStr:
			result = ir.Str
		case ir.KindBytes:
			result = ir.Int(32)
		case ir.KindTuple:
			result = tupleIndexType(recv, c.Key)
		}
		return e.refineResult(c, result)

	default:
		// Named member: class field or method, then builtin methods.
		if recv.Kind == ir.KindNamed {
			if sig, ok := e.sigs.Method(recv.Name, c.Name); ok {
				for i, p := range sig.Params {
					if i < len(c.Args) && !p.IsUnknown() {
						argT := e.pool.resolve(c.Args[i])
						joined, err := unifyTypes(argT, p)
						if err != nil {
							e.contradiction(argT, p, c.Span, c.Origin)
							return false
						}
						if c.Args[i].IsVar() && !ir.Equal(joined, argT) {
							e.pool.bind(c.Args[i].Var, joined)
						}
					}
				}
				return e.refineResult(c, sig.Ret)
			}
			ft := e.sigs.FieldType(recv.Name, c.Name)
			return e.refineResult(c, ft)
		}
		if sig, ok := LookupMethod(recv, c.Name); ok {
			changed := false
			// Mutating single-argument container methods refine the
			// element type from the argument (append, add, ...).
			if sig.Mutates && sig.Arity == 1 && len(c.Args) == 1 && c.A.IsVar() &&
				(recv.Kind == ir.KindList || recv.Kind == ir.KindSet) {
				argT := e.pool.resolve(c.Args[0])
				if !argT.IsUnknown() {
					joined, err := unifyTypes(recv.Elem(), argT)
					if err != nil {
						e.contradiction(recv.Elem(), argT, c.Span, c.Origin)
						return false
					}
					refined := &ir.Type{Kind: recv.Kind, Elems: []*ir.Type{joined}}
					if !ir.Equal(refined, recv) {
						e.pool.bind(c.A.Var, refined)
						changed = true
					}
				}
			}
			if e.refineResult(c, sig.Result(recv)) {
				changed = true
			}
			return changed
		}
		return false
	}
}

func (e *engine) applyCallable(c *Constraint) bool {
	if c.Name != "" {
		// Builtin free function: recompute from current argument types.
		args := make([]*ir.Type, len(c.Args))
		for i, a := range c.Args {
			args[i] = e.pool.resolve(a)
		}
		return e.refineResult(c, builtinResult(c.Name, args))
	}
	fnT := e.pool.resolve(c.A)
	if fnT.Kind != ir.KindFunc {
		return false
	}
	changed := false
	for i, p := range fnT.Elems {
		if i >= len(c.Args) || p.IsUnknown() {
			continue
		}
		argT := e.pool.resolve(c.Args[i])
		joined, err := unifyTypes(argT, p)
		if err != nil {
			e.contradiction(argT, p, c.Span, c.Origin)
			return false
		}
		if c.Args[i].IsVar() && !ir.Equal(joined, argT) {
			e.pool.bind(c.Args[i].Var, joined)
			changed = true
		}
	}
	if e.refineResult(c, fnT.Ret) {
		changed = true
	}
	return changed
}

// refineResult joins a computed type into the constraint's result term.
func (e *engine) refineResult(c *Constraint, t *ir.Type) bool {
	if t.IsUnknown() || !c.B.IsVar() {
		return false
	}
	cur := e.pool.typeOf(c.B.Var)
	joined, err := unifyTypes(cur, t)
	if err != nil {
		e.contradiction(cur, t, c.Span, c.Origin)
		return false
	}
	if ir.Equal(joined, cur) {
		return false
	}
	e.pool.bind(c.B.Var, joined)
	return true
}

// tupleIndexType resolves tuple[i] when the index is a constant the
// solver can see. Negative constants count from the end. Non-constant
// indexing resolves only when every element shares one type.
func tupleIndexType(tuple *ir.Type, key ir.Expr) *ir.Type {
	if len(tuple.Elems) == 0 {
		return ir.Unknown
	}
	if i, ok := constIndex(key); ok {
		if i < 0 {
			i += int64(len(tuple.Elems))
		}
		if i >= 0 && i < int64(len(tuple.Elems)) {
			return tuple.Elems[i]
		}
		return ir.Unknown
	}
	for _, e := range tuple.Elems[1:] {
		if !ir.Equal(tuple.Elems[0], e) {
			return ir.Unknown
		}
	}
	return tuple.Elems[0]
}

// constIndex extracts a constant integer subscript, including a negated
// literal.
func constIndex(key ir.Expr) (int64, bool) {
	switch k := key.(type) {
	case *ir.IntLit:
		return k.Value, true
	case *ir.Unary:
		if lit, ok := k.Operand.(*ir.IntLit); ok && k.Op == ir.OpNeg {
			return -lit.Value, true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Result assembly
// ---------------------------------------------------------------------------

func (e *engine) result() *Result {
	res := &Result{
		ExprTypes:   make(map[ir.NodeID]*ir.Type, len(e.exprVars)),
		VarTypes:    make(map[string]*ir.Type, len(e.locals)),
		LoopElems:   make(map[ir.NodeID]*ir.Type),
		CallKinds:   make(map[ir.NodeID]CallKind),
		Diagnostics: e.r.Diagnostics(),
		Failed:      e.failed,
	}
	for id, v := range e.exprVars {
		res.ExprTypes[id] = e.pool.typeOf(v)
	}
	for name, v := range e.locals {
		res.VarTypes[name] = e.pool.typeOf(v)
	}
	res.Ret = e.pool.typeOf(e.retVar)
	res.YieldType = e.pool.typeOf(e.yieldVar)

	// Loop bindings and call kinds read back from the solved table.
	e.fillLoopElems(e.fn.Body, res)
	e.fillCallKinds(e.fn.Body, res)
	return res
}

func (e *engine) fillLoopElems(stmts []ir.Stmt, res *Result) {
	ir.WalkStmts(stmts, func(s ir.Stmt) {
		if st, ok := s.(*ir.For); ok {
			if v, ok := e.locals[st.Target]; ok {
				res.LoopElems[st.BindID] = e.pool.typeOf(v)
			}
		}
	})
}

func (e *engine) fillCallKinds(stmts []ir.Stmt, res *Result) {
	var visitExpr func(x ir.Expr)
	visitExpr = func(x ir.Expr) {
		if x == nil {
			return
		}
		if call, ok := x.(*ir.Call); ok {
			res.CallKinds[call.ID()] = e.callKind(call, res)
		}
		walkChildren(x, visitExpr)
	}
	ir.WalkStmts(stmts, func(s ir.Stmt) {
		forEachStmtExpr(s, visitExpr)
	})
}

func (e *engine) callKind(call *ir.Call, res *Result) CallKind {
	switch fn := call.Fn.(type) {
	case *ir.Name:
		if _, ok := e.sigs.Func(fn.Ident); ok {
			return CallDirect
		}
		if _, ok := e.sigs.Class(fn.Ident); ok {
			return CallDirect
		}
		if isBuiltin(fn.Ident) {
			return CallDirect
		}
		// A local bound to a known callable type is still direct.
		if t := res.VarTypes[fn.Ident]; t != nil && t.Kind == ir.KindFunc {
			return CallDirect
		}
		return CallCapability
	case *ir.Attribute:
		recv := res.TypeOf(fn.Object)
		if recv.Kind == ir.KindNamed {
			return CallDirect
		}
		if _, ok := LookupMethod(recv, fn.Attr); ok {
			return CallDirect
		}
		return CallCapability
	}
	return CallCapability
}

func forEachStmtExpr(s ir.Stmt, visit func(ir.Expr)) {
	switch st := s.(type) {
	case *ir.Assign:
		visit(st.Target)
		visit(st.Value)
	case *ir.If:
		visit(st.Cond)
	case *ir.While:
		visit(st.Cond)
	case *ir.For:
		visit(st.Iter)
	case *ir.Return:
		visit(st.Value)
	case *ir.Yield:
		visit(st.Value)
	case *ir.Raise:
		visit(st.Value)
	case *ir.ExprStmt:
		visit(st.Expr)
	case *ir.With:
		visit(st.Context)
	}
}

func walkChildren(x ir.Expr, visit func(ir.Expr)) {
	switch ex := x.(type) {
	case *ir.Binary:
		visit(ex.Left)
		visit(ex.Right)
	case *ir.Unary:
		visit(ex.Operand)
	case *ir.Call:
		visit(ex.Fn)
		for _, a := range ex.Args {
			visit(a)
		}
	case *ir.Attribute:
		visit(ex.Object)
	case *ir.Index:
		visit(ex.Object)
		visit(ex.Key)
	case *ir.ListLit:
		for _, el := range ex.Elems {
			visit(el)
		}
	case *ir.SetLit:
		for _, el := range ex.Elems {
			visit(el)
		}
	case *ir.TupleLit:
		for _, el := range ex.Elems {
			visit(el)
		}
	case *ir.MapLit:
		for i := range ex.Keys {
			visit(ex.Keys[i])
			visit(ex.Values[i])
		}
	case *ir.Comprehension:
		visit(ex.Iter)
		visit(ex.Key)
		visit(ex.Value)
		visit(ex.Cond)
	case *ir.CondExpr:
		visit(ex.Cond)
		visit(ex.Then)
		visit(ex.Else)
	}
}
