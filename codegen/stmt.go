package codegen

import (
	"fmt"
	"strings"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
	"github.com/ferrite-lang/ferrite/ownership"
)

// ---------------------------------------------------------------------------
// Indented source emitter
// ---------------------------------------------------------------------------

type emitter struct {
	b      strings.Builder
	indent int
}

func newEmitter() *emitter { return &emitter{} }

func (e *emitter) linef(format string, args ...interface{}) {
	e.b.WriteString(strings.Repeat("    ", e.indent))
	fmt.Fprintf(&e.b, format, args...)
	e.b.WriteByte('\n')
}

func (e *emitter) open(format string, args ...interface{}) {
	e.linef(format, args...)
	e.indent++
}

func (e *emitter) close() {
	e.indent--
	e.linef("}")
}

func (e *emitter) blank() { e.b.WriteByte('\n') }

// raw appends pre-rendered source, re-indenting each line.
func (e *emitter) raw(src string) {
	for _, line := range strings.Split(strings.TrimRight(src, "\n"), "\n") {
		if line == "" {
			e.b.WriteByte('\n')
			continue
		}
		e.b.WriteString(strings.Repeat("    ", e.indent))
		e.b.WriteString(line)
		e.b.WriteByte('\n')
	}
}

func (e *emitter) String() string { return e.b.String() }

// ---------------------------------------------------------------------------
// Per-function generation state
// ---------------------------------------------------------------------------

type fungen struct {
	g        *Generator
	fn       *ir.Function
	types    *infer.Result
	own      *ownership.Result
	body     []ir.Stmt
	narrowed map[string]bool
	ann      *ir.Annotations
	r        *diag.Reporter
	declared map[string]bool
	mutated  map[string]bool
	// generator lowering: locals live on the state struct
	selfFields map[string]bool
}

func (g *Generator) newFungen(in Input) *fungen {
	body := in.Body
	if body == nil {
		body = in.Fn.Body
	}
	ann := in.Fn.Ann
	if ann == nil {
		ann = ir.DefaultAnnotations()
	}
	narrowed := in.Narrowed
	if narrowed == nil {
		narrowed = map[string]bool{}
	}
	f := &fungen{
		g:        g,
		fn:       in.Fn,
		types:    in.Types,
		own:      in.Own,
		body:     body,
		narrowed: narrowed,
		ann:      ann,
		r:        diag.NewReporter(diag.StageCodegen),
		declared: map[string]bool{},
		mutated:  map[string]bool{},
	}
	f.computeMutated()
	return f
}

// stop records a hard per-function failure and returns it as the error.
func (f *fungen) stop(category, construct string, span ir.Span, format string, args ...interface{}) error {
	return f.r.Errorf(category, construct, span, format, args...)
}

func (f *fungen) typeOf(x ir.Expr) *ir.Type {
	if f.types == nil {
		return ir.Unknown
	}
	return f.types.TypeOf(x)
}

func (f *fungen) varType(name string) *ir.Type {
	if f.types == nil {
		return ir.Unknown
	}
	if t, ok := f.types.VarTypes[name]; ok {
		return t
	}
	return ir.Unknown
}

// computeMutated finds names needing `let mut`: reassigned bindings,
// stores through a projection, and receivers of mutating methods.
func (f *fungen) computeMutated() {
	counts := map[string]int{}
	ir.WalkStmts(f.body, func(s ir.Stmt) {
		switch st := s.(type) {
		case *ir.Assign:
			if n, ok := st.Target.(*ir.Name); ok {
				counts[n.Ident]++
				return
			}
			if root := rootOf(st.Target); root != nil {
				f.mutated[root.Ident] = true
			}
		case *ir.For:
			counts[st.Target]++
		}
		forStmtExprs(s, func(x ir.Expr) {
			ir.WalkExpr(x, func(e ir.Expr) {
				call, ok := e.(*ir.Call)
				if !ok {
					return
				}
				attr, ok := call.Fn.(*ir.Attribute)
				if !ok {
					return
				}
				if infer.MethodMutates(f.typeOf(attr.Object), attr.Attr) {
					if root := rootOf(attr.Object); root != nil {
						f.mutated[root.Ident] = true
					}
				}
			})
		})
	})
	for name, n := range counts {
		if n > 1 {
			f.mutated[name] = true
		}
	}
}

// ---------------------------------------------------------------------------
// Plain function emission
// ---------------------------------------------------------------------------

// plainFunction renders a non-suspending function. receiver is the class
// name for methods, empty for free functions.
func (f *fungen) plainFunction(receiver string) (string, error) {
	em := newEmitter()
	if f.fn.Doc != "" {
		emitDoc(em, f.fn.Doc)
	}
	sig, err := f.signature(receiver)
	if err != nil {
		return "", err
	}
	em.open("%s {", sig)
	if err := f.stmts(em, f.body); err != nil {
		return "", err
	}
	em.close()
	return em.String(), nil
}

func (f *fungen) signature(receiver string) (string, error) {
	var parts []string
	if receiver != "" {
		if f.own != nil && f.own.ReceiverMut {
			parts = append(parts, "&mut self")
		} else {
			parts = append(parts, "&self")
		}
	}
	for _, p := range f.fn.Params {
		t := p.Type
		if t.IsUnknown() {
			t = f.varType(p.Name)
		}
		if t.IsUnknown() {
			return "", f.stop(diag.CatMissingLowering, "parameter", f.fn.SpanVal,
				"parameter %s of %s has no resolved type", p.Name, f.fn.Name)
		}
		mode := ir.Move
		if f.own != nil {
			mode = f.own.Mode(p.Name)
		}
		pt, err := f.g.borrowedType(t, mode)
		if err != nil {
			return "", f.stop(diag.CatMissingLowering, "parameter", f.fn.SpanVal,
				"parameter %s of %s: %v", p.Name, f.fn.Name, err)
		}
		mut := ""
		if f.mutated[p.Name] && mode != ir.SharedBorrow && mode != ir.ExclusiveBorrow {
			mut = "mut "
		}
		parts = append(parts, mut+p.Name+": "+pt)
	}

	ret := f.fn.Ret
	if ret.IsUnknown() && f.types != nil && f.types.Ret != nil {
		ret = f.types.Ret
	}
	suffix := ""
	if !ret.IsUnknown() && ret.Kind != ir.KindNone {
		rt, err := f.g.rustType(ret)
		if err != nil {
			return "", f.stop(diag.CatMissingLowering, "return-type", f.fn.SpanVal,
				"return type of %s: %v", f.fn.Name, err)
		}
		suffix = " -> " + rt
	}
	return "pub fn " + f.fn.Name + "(" + strings.Join(parts, ", ") + ")" + suffix, nil
}

// constructor lowers __init__ into `pub fn new(...) -> Self`. Only
// self-field assignments and plain local bindings are representable.
func (f *fungen) constructor(em *emitter, cls *ir.Class) error {
	var params []string
	for _, p := range f.fn.Params {
		t := p.Type
		if t.IsUnknown() {
			t = f.varType(p.Name)
		}
		if t.IsUnknown() {
			return f.stop(diag.CatMissingLowering, "parameter", f.fn.SpanVal,
				"constructor parameter %s of %s has no resolved type", p.Name, cls.Name)
		}
		pt, err := f.g.rustType(t)
		if err != nil {
			return f.stop(diag.CatMissingLowering, "parameter", f.fn.SpanVal,
				"constructor parameter %s of %s: %v", p.Name, cls.Name, err)
		}
		params = append(params, p.Name+": "+pt)
	}
	em.open("pub fn new(%s) -> Self {", strings.Join(params, ", "))

	inits := map[string]string{}
	for _, s := range f.body {
		assign, ok := s.(*ir.Assign)
		if !ok {
			if _, pass := s.(*ir.Pass); pass {
				continue
			}
			return f.stop(diag.CatMissingLowering, "constructor-statement", s.Span(),
				"constructor of %s: only field assignments lower to new()", cls.Name)
		}
		attr, ok := assign.Target.(*ir.Attribute)
		if ok && isSelf(attr.Object) {
			val, err := f.expr(assign.Value)
			if err != nil {
				return err
			}
			inits[attr.Attr] = val
			continue
		}
		if err := f.stmt(em, s); err != nil {
			return err
		}
	}
	em.open("%s {", cls.Name)
	for _, field := range cls.Fields {
		if v, ok := inits[field.Name]; ok {
			if v == field.Name {
				em.linef("%s,", field.Name)
			} else {
				em.linef("%s: %s,", field.Name, v)
			}
		} else {
			em.linef("%s: Default::default(),", field.Name)
		}
	}
	em.close()
	em.close()
	return nil
}

func isSelf(x ir.Expr) bool {
	n, ok := x.(*ir.Name)
	return ok && n.Ident == "self"
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (f *fungen) stmts(em *emitter, stmts []ir.Stmt) error {
	for _, s := range stmts {
		if err := f.stmt(em, s); err != nil {
			return err
		}
	}
	return nil
}

func (f *fungen) stmt(em *emitter, s ir.Stmt) error {
	switch st := s.(type) {
	case *ir.Assign:
		return f.assign(em, st)

	case *ir.If:
		return f.ifChain(em, st, "if")

	case *ir.While:
		cond, err := f.expr(st.Cond)
		if err != nil {
			return err
		}
		em.open("while %s {", cond)
		if err := f.stmts(em, st.Body); err != nil {
			return err
		}
		em.close()
		return nil

	case *ir.For:
		return f.forLoop(em, st)

	case *ir.Return:
		if st.Value == nil {
			em.linef("return;")
			return nil
		}
		val, err := f.expr(st.Value)
		if err != nil {
			return err
		}
		em.linef("return %s;", val)
		return nil

	case *ir.Raise:
		return f.raise(em, st)

	case *ir.Yield:
		return f.stop(diag.CatMissingLowering, "yield", st.SpanVal,
			"yield in %s is nested where suspend lowering cannot reach it", f.fn.Name)

	case *ir.ExprStmt:
		val, err := f.expr(st.Expr)
		if err != nil {
			return err
		}
		em.linef("%s;", val)
		return nil

	case *ir.With:
		ctx, err := f.expr(st.Context)
		if err != nil {
			return err
		}
		em.open("{")
		if st.Target != "" {
			f.declared[st.Target] = true
			em.linef("let %s = %s;", st.Target, ctx)
		} else {
			em.linef("let _guard = %s;", ctx)
		}
		if err := f.stmts(em, st.Body); err != nil {
			return err
		}
		em.close()
		return nil

	case *ir.Pass:
		return nil

	case *ir.Break:
		em.linef("break;")
		return nil

	case *ir.Continue:
		em.linef("continue;")
		return nil

	default:
		return f.stop(diag.CatMissingLowering, "statement", s.Span(),
			"statement %T has no lowering", s)
	}
}

func (f *fungen) ifChain(em *emitter, st *ir.If, keyword string) error {
	cond, err := f.expr(st.Cond)
	if err != nil {
		return err
	}
	em.open("%s %s {", keyword, cond)
	if err := f.stmts(em, st.Then); err != nil {
		return err
	}
	if len(st.Else) == 0 {
		em.close()
		return nil
	}
	if elif, ok := singleIf(st.Else); ok {
		em.indent--
		em.b.WriteString(strings.Repeat("    ", em.indent) + "} else ")
		// Splice the nested chain onto the same line.
		sub := newEmitter()
		sub.indent = em.indent
		if err := f.ifChain(sub, elif, "if"); err != nil {
			return err
		}
		em.b.WriteString(strings.TrimLeft(sub.String(), " "))
		return nil
	}
	em.indent--
	em.linef("} else {")
	em.indent++
	if err := f.stmts(em, st.Else); err != nil {
		return err
	}
	em.close()
	return nil
}

func singleIf(stmts []ir.Stmt) (*ir.If, bool) {
	if len(stmts) == 1 {
		if st, ok := stmts[0].(*ir.If); ok {
			return st, true
		}
	}
	return nil, false
}

func (f *fungen) assign(em *emitter, st *ir.Assign) error {
	switch target := st.Target.(type) {
	case *ir.Name:
		name := target.Ident
		if f.selfFields[name] {
			val, err := f.expr(st.Value)
			if err != nil {
				return err
			}
			em.linef("self.%s = %s;", name, val)
			return nil
		}
		if f.declared[name] || isParam(f.fn, name) {
			val, err := f.expr(st.Value)
			if err != nil {
				return err
			}
			em.linef("%s = %s;", name, val)
			return nil
		}
		f.declared[name] = true
		if f.narrowed[name] {
			if lit, ok := st.Value.(*ir.StrLit); ok {
				em.linef("let %s = %s;", name, quote(lit.Value))
				return nil
			}
		}
		val, err := f.expr(st.Value)
		if err != nil {
			return err
		}
		mut := ""
		if f.mutated[name] {
			mut = "mut "
		}
		t := f.varType(name)
		if st.Hint != nil && !st.Hint.IsUnknown() {
			t = st.Hint
		}
		if !t.IsUnknown() {
			if rt, err := f.g.rustType(t); err == nil {
				em.linef("let %s%s: %s = %s;", mut, name, rt, val)
				return nil
			}
		}
		em.linef("let %s%s = %s;", mut, name, val)
		return nil

	case *ir.Index:
		obj, err := f.expr(target.Object)
		if err != nil {
			return err
		}
		key, err := f.expr(target.Key)
		if err != nil {
			return err
		}
		val, err := f.expr(st.Value)
		if err != nil {
			return err
		}
		switch f.typeOf(target.Object).Kind {
		case ir.KindMap:
			em.linef("%s.insert(%s, %s);", obj, key, val)
		default:
			em.linef("%s[(%s) as usize] = %s;", obj, key, val)
		}
		return nil

	case *ir.Attribute:
		obj, err := f.expr(target.Object)
		if err != nil {
			return err
		}
		val, err := f.expr(st.Value)
		if err != nil {
			return err
		}
		em.linef("%s.%s = %s;", obj, target.Attr, val)
		return nil

	default:
		return f.stop(diag.CatMissingLowering, "assignment-target", st.SpanVal,
			"assignment target %T has no lowering", st.Target)
	}
}

func (f *fungen) forLoop(em *emitter, st *ir.For) error {
	f.declared[st.Target] = true
	if rng, ok := rangeCall(st.Iter); ok {
		spec, err := f.rangeSpec(rng)
		if err != nil {
			return err
		}
		em.open("for %s in %s {", st.Target, spec)
		if err := f.stmts(em, st.Body); err != nil {
			return err
		}
		em.close()
		return nil
	}

	iter, err := f.expr(st.Iter)
	if err != nil {
		return err
	}
	mode := ir.SharedBorrow
	if f.own != nil {
		if m, ok := f.own.LoopModes[st.BindID]; ok {
			mode = m
		}
	}
	switch mode {
	case ir.ExclusiveBorrow:
		em.open("for %s in %s.iter_mut() {", st.Target, iter)
	case ir.Move:
		em.open("for %s in %s {", st.Target, iter)
	case ir.Clone:
		em.open("for %s in %s.clone() {", st.Target, iter)
	default:
		em.open("for %s in &%s {", st.Target, iter)
	}
	if err := f.stmts(em, st.Body); err != nil {
		return err
	}
	em.close()
	return nil
}

// rangeCall matches a call to the range builtin.
func rangeCall(x ir.Expr) (*ir.Call, bool) {
	call, ok := x.(*ir.Call)
	if !ok {
		return nil, false
	}
	n, ok := call.Fn.(*ir.Name)
	if !ok || n.Ident != "range" || len(call.Args) == 0 || len(call.Args) > 3 {
		return nil, false
	}
	return call, true
}

func (f *fungen) rangeSpec(call *ir.Call) (string, error) {
	args := make([]string, len(call.Args))
	for i, a := range call.Args {
		s, err := f.expr(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	switch len(args) {
	case 1:
		return "0.." + args[0], nil
	case 2:
		return args[0] + ".." + args[1], nil
	default:
		return fmt.Sprintf("(%s..%s).step_by((%s) as usize)",
			args[0], args[1], args[2]), nil
	}
}

func (f *fungen) raise(em *emitter, st *ir.Raise) error {
	if st.Value == nil {
		em.linef("panic!();")
		return nil
	}
	if call, ok := st.Value.(*ir.Call); ok {
		if n, ok := call.Fn.(*ir.Name); ok && len(call.Args) == 1 {
			if lit, ok := call.Args[0].(*ir.StrLit); ok {
				em.linef("panic!(\"%s: {}\", %s);", n.Ident, quote(lit.Value))
				return nil
			}
			arg, err := f.expr(call.Args[0])
			if err != nil {
				return err
			}
			em.linef("panic!(\"%s: {}\", %s);", n.Ident, arg)
			return nil
		}
	}
	val, err := f.expr(st.Value)
	if err != nil {
		return err
	}
	em.linef("panic!(\"{:?}\", %s);", val)
	return nil
}

func isParam(fn *ir.Function, name string) bool {
	for _, p := range fn.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func rootOf(x ir.Expr) *ir.Name {
	for {
		switch ex := x.(type) {
		case *ir.Name:
			return ex
		case *ir.Attribute:
			x = ex.Object
		case *ir.Index:
			x = ex.Object
		default:
			return nil
		}
	}
}

// forStmtExprs visits the expressions directly attached to a statement.
func forStmtExprs(s ir.Stmt, visit func(ir.Expr)) {
	switch st := s.(type) {
	case *ir.Assign:
		visit(st.Value)
	case *ir.If:
		visit(st.Cond)
	case *ir.While:
		visit(st.Cond)
	case *ir.For:
		visit(st.Iter)
	case *ir.Return:
		if st.Value != nil {
			visit(st.Value)
		}
	case *ir.Yield:
		visit(st.Value)
	case *ir.Raise:
		if st.Value != nil {
			visit(st.Value)
		}
	case *ir.ExprStmt:
		visit(st.Expr)
	case *ir.With:
		visit(st.Context)
	}
}
