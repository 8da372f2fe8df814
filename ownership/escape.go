package ownership

import (
	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Escape analysis: classify every parameter and loop binding
// ---------------------------------------------------------------------------

// usage is the lattice of observed uses, ordered by severity: read <
// mutate < consume < unproven. The strongest observation wins; unproven
// always degrades to Clone.
type usage int

const (
	usageNone usage = iota
	usageRead
	usageMutate
	usageConsume
	usageUnproven
)

// Result is one function's resolved ownership assignment.
type Result struct {
	ParamModes  map[string]ir.OwnershipMode
	LoopModes   map[ir.NodeID]ir.OwnershipMode // For.BindID -> binding mode
	BorrowMarks map[ir.NodeID]ir.OwnershipMode // call argument ID -> inserted borrow
	ReceiverMut bool                           // methods: self is mutated
	Diagnostics []*diag.Diagnostic
}

// Mode returns the resolved mode for a parameter.
func (r *Result) Mode(param string) ir.OwnershipMode {
	if m, ok := r.ParamModes[param]; ok {
		return m
	}
	return ir.ModeUnresolved
}

// MutationRequirements maps a call-graph key to the set of parameter
// indices the callee mutates in place (receiver mutation is index -1).
// Built by interprocedural resolution and threaded explicitly into each
// function's resolver call; never global state.
type MutationRequirements map[string]map[int]bool

// Resolve classifies every parameter and loop binding of one function.
// types must be the function's solved inference result; reqs carries the
// callee mutation requirements accumulated so far (nil is allowed).
func Resolve(fn *ir.Function, types *infer.Result, g *CallGraph, reqs MutationRequirements) *Result {
	a := &analyzer{
		fn:    fn,
		types: types,
		graph: g,
		reqs:  reqs,
		use:   make(map[string]usage),
		marks: make(map[ir.NodeID]ir.OwnershipMode),
		r:     diag.NewReporter(diag.StageOwnership),
	}
	for _, p := range fn.Params {
		a.use[p.Name] = usageNone
	}
	if fn.Receiver != "" {
		a.use["self"] = usageNone
	}
	a.scanStmts(fn.Body)
	a.resolveAliases()
	return a.assemble()
}

type analyzer struct {
	fn    *ir.Function
	types *infer.Result
	graph *CallGraph
	reqs  MutationRequirements
	use   map[string]usage
	// aliases maps an alias name to the tracked parameter it copies.
	aliases map[string]string
	marks   map[ir.NodeID]ir.OwnershipMode
	r       *diag.Reporter
	spans   map[string]ir.Span // first site that raised a usage past read
}

func (a *analyzer) tracked(name string) bool {
	_, ok := a.use[name]
	return ok
}

func (a *analyzer) raise(name string, u usage, span ir.Span) {
	if !a.tracked(name) {
		return
	}
	if a.use[name] < u {
		a.use[name] = u
		if a.spans == nil {
			a.spans = make(map[string]ir.Span)
		}
		a.spans[name] = span
	}
}

// ---------------------------------------------------------------------------
// Statement scan
// ---------------------------------------------------------------------------

func (a *analyzer) scanStmts(stmts []ir.Stmt) {
	for _, s := range stmts {
		a.scanStmt(s)
	}
}

func (a *analyzer) scanStmt(s ir.Stmt) {
	switch st := s.(type) {
	case *ir.Assign:
		a.scanAssign(st)
	case *ir.If:
		a.scanReads(st.Cond)
		a.scanStmts(st.Then)
		a.scanStmts(st.Else)
	case *ir.While:
		a.scanReads(st.Cond)
		a.scanStmts(st.Body)
	case *ir.For:
		a.scanReads(st.Iter)
		a.scanStmts(st.Body)
	case *ir.Return:
		// A returned value escapes the function: ownership moves out.
		if name, ok := st.Value.(*ir.Name); ok {
			a.raise(name.Ident, usageConsume, st.Span())
		} else if st.Value != nil {
			a.scanEscaping(st.Value)
		}
	case *ir.Yield:
		if name, ok := st.Value.(*ir.Name); ok {
			a.raise(name.Ident, usageConsume, st.Span())
		} else if st.Value != nil {
			a.scanReads(st.Value)
		}
	case *ir.Raise:
		a.scanReads(st.Value)
	case *ir.ExprStmt:
		a.scanReads(st.Expr)
	case *ir.With:
		a.scanReads(st.Context)
		a.scanStmts(st.Body)
	}
}

func (a *analyzer) scanAssign(st *ir.Assign) {
	switch target := st.Target.(type) {
	case *ir.Name:
		// Rebinding a parameter takes ownership of its slot.
		a.raise(target.Ident, usageConsume, st.Span())
		// Alias tracking: x = param. If x is later mutated the mode for
		// param is no longer provable.
		if src, ok := st.Value.(*ir.Name); ok && a.tracked(src.Ident) {
			if a.aliases == nil {
				a.aliases = make(map[string]string)
			}
			a.aliases[target.Ident] = src.Ident
			if !a.tracked(target.Ident) {
				a.use[target.Ident] = usageNone
			}
			a.raise(src.Ident, usageRead, st.Span())
			return
		}
	case *ir.Attribute:
		if root := rootName(target); root != nil {
			a.raise(root.Ident, usageMutate, st.Span())
		}
		// Values stored through a field escape their scope.
		a.scanEscaping(st.Value)
		return
	case *ir.Index:
		if root := rootName(target); root != nil {
			a.raise(root.Ident, usageMutate, st.Span())
		}
		a.scanReads(target.Key)
		a.scanEscaping(st.Value)
		return
	}
	a.scanReads(st.Value)
}

// scanEscaping marks names inside a stored or returned expression as
// consumed: their values outlive the statement.
func (a *analyzer) scanEscaping(x ir.Expr) {
	if x == nil {
		return
	}
	if name, ok := x.(*ir.Name); ok {
		a.raise(name.Ident, usageConsume, x.Span())
		return
	}
	// Calls inside an escaping expression are scanned normally; their
	// own results escape, not their internal reads.
	if call, ok := x.(*ir.Call); ok {
		a.scanCall(call)
		return
	}
	switch ex := x.(type) {
	case *ir.Binary:
		a.scanReads(ex.Left)
		a.scanReads(ex.Right)
	case *ir.ListLit:
		for _, el := range ex.Elems {
			a.scanEscaping(el)
		}
	case *ir.SetLit:
		for _, el := range ex.Elems {
			a.scanEscaping(el)
		}
	case *ir.TupleLit:
		for _, el := range ex.Elems {
			a.scanEscaping(el)
		}
	case *ir.MapLit:
		for i := range ex.Keys {
			a.scanEscaping(ex.Keys[i])
			a.scanEscaping(ex.Values[i])
		}
	default:
		a.scanReads(x)
	}
}

// scanReads walks an expression marking read usage and dispatching calls.
func (a *analyzer) scanReads(x ir.Expr) {
	if x == nil {
		return
	}
	switch ex := x.(type) {
	case *ir.Name:
		a.raise(ex.Ident, usageRead, ex.Span())
	case *ir.Call:
		a.scanCall(ex)
	case *ir.Binary:
		a.scanReads(ex.Left)
		a.scanReads(ex.Right)
	case *ir.Unary:
		a.scanReads(ex.Operand)
	case *ir.Attribute:
		a.scanReads(ex.Object)
	case *ir.Index:
		a.scanReads(ex.Object)
		a.scanReads(ex.Key)
	case *ir.ListLit:
		for _, el := range ex.Elems {
			a.scanReads(el)
		}
	case *ir.SetLit:
		for _, el := range ex.Elems {
			a.scanReads(el)
		}
	case *ir.TupleLit:
		for _, el := range ex.Elems {
			a.scanReads(el)
		}
	case *ir.MapLit:
		for i := range ex.Keys {
			a.scanReads(ex.Keys[i])
			a.scanReads(ex.Values[i])
		}
	case *ir.Comprehension:
		a.scanReads(ex.Iter)
		a.scanReads(ex.Cond)
		a.scanReads(ex.Key)
		a.scanReads(ex.Value)
	case *ir.CondExpr:
		a.scanReads(ex.Cond)
		a.scanReads(ex.Then)
		a.scanReads(ex.Else)
	}
}

// scanCall classifies a call's effect on tracked names: method mutation,
// container storage, callee mutation requirements, and the dynamic
// fallback for capability calls.
func (a *analyzer) scanCall(call *ir.Call) {
	kind := infer.CallDirect
	if a.types != nil {
		kind = a.types.CallKinds[call.ID()]
	}

	if attr, ok := call.Fn.(*ir.Attribute); ok {
		recvType := a.types.TypeOf(attr.Object)
		root := rootName(attr.Object)

		switch {
		case infer.MethodMutates(recvType, attr.Attr):
			if root != nil {
				a.raise(root.Ident, usageMutate, call.Span())
			}
			// Arguments stored into a mutated container escape.
			for _, arg := range call.Args {
				a.scanEscaping(arg)
			}
			return
		case recvType.Kind == ir.KindNamed:
			a.scanMethodCall(call, attr, recvType.Name, root)
			return
		case kind == infer.CallCapability:
			// Dynamic receiver: mutation unknowable, degrade to Clone.
			if root != nil {
				a.raise(root.Ident, usageUnproven, call.Span())
			}
			for _, arg := range call.Args {
				if name, ok := arg.(*ir.Name); ok {
					a.raise(name.Ident, usageUnproven, call.Span())
				} else {
					a.scanReads(arg)
				}
			}
			return
		default:
			if root != nil {
				a.raise(root.Ident, usageRead, call.Span())
			} else {
				a.scanReads(attr.Object)
			}
			for _, arg := range call.Args {
				a.scanReads(arg)
			}
			return
		}
	}

	if name, ok := call.Fn.(*ir.Name); ok && a.graph != nil {
		if callee := a.graph.Function(name.Ident); callee != nil {
			a.scanDirectCall(call, name.Ident, callee)
			return
		}
	}
	for _, arg := range call.Args {
		a.scanReads(arg)
	}
}

// scanMethodCall applies a known method's mutation requirements: the
// receiver (index -1) and each argument position.
func (a *analyzer) scanMethodCall(call *ir.Call, attr *ir.Attribute, class string, root *ir.Name) {
	key := methodKey(class, attr.Attr)
	need := a.reqs[key]
	if need[-1] && root != nil {
		a.raise(root.Ident, usageMutate, call.Span())
		a.marks[attr.Object.ID()] = ir.ExclusiveBorrow
	} else if root != nil {
		a.raise(root.Ident, usageRead, call.Span())
	}
	a.applyArgRequirements(call, need)
}

// scanDirectCall applies a known free function's mutation requirements.
func (a *analyzer) scanDirectCall(call *ir.Call, key string, callee *ir.Function) {
	a.applyArgRequirements(call, a.reqs[key])
}

// applyArgRequirements upgrades caller bindings reached by arguments the
// callee mutates, inserting a borrow marker at the call site. The
// argument may be a bare name or a field projection such as state.data;
// either way the root binding is upgraded.
func (a *analyzer) applyArgRequirements(call *ir.Call, need map[int]bool) {
	for i, arg := range call.Args {
		if need[i] {
			if root := rootName(arg); root != nil {
				a.raise(root.Ident, usageMutate, call.Span())
				a.marks[arg.ID()] = ir.ExclusiveBorrow
				continue
			}
		}
		a.scanReads(arg)
	}
}

// resolveAliases degrades parameters whose aliases were mutated: the
// aliasing makes the original's mode unprovable.
func (a *analyzer) resolveAliases() {
	for alias, param := range a.aliases {
		if a.use[alias] >= usageMutate {
			a.raise(param, usageUnproven, ir.ZeroSpan())
		}
	}
}

// ---------------------------------------------------------------------------
// Mode assignment
// ---------------------------------------------------------------------------

func (a *analyzer) assemble() *Result {
	res := &Result{
		ParamModes:  make(map[string]ir.OwnershipMode, len(a.fn.Params)),
		LoopModes:   make(map[ir.NodeID]ir.OwnershipMode),
		BorrowMarks: a.marks,
	}
	ann := a.fn.Ann
	if ann == nil {
		ann = ir.DefaultAnnotations()
	}

	for _, p := range a.fn.Params {
		t := p.Type
		if a.types != nil {
			if vt, ok := a.types.VarTypes[p.Name]; ok && !vt.IsUnknown() {
				t = vt
			}
		}
		res.ParamModes[p.Name] = a.modeFor(p.Name, t, ann)
	}
	if a.fn.Receiver != "" {
		res.ReceiverMut = a.use["self"] >= usageMutate && a.use["self"] != usageUnproven
	}

	walkStmts(a.fn.Body, func(s ir.Stmt) {
		st, ok := s.(*ir.For)
		if !ok {
			return
		}
		res.LoopModes[st.BindID] = a.loopMode(st)
	})

	res.Diagnostics = a.r.Diagnostics()
	return res
}

func (a *analyzer) modeFor(name string, t *ir.Type, ann *ir.Annotations) ir.OwnershipMode {
	// Trivially copyable values pass by value.
	if t.IsCopy() {
		return ir.Move
	}
	switch a.use[name] {
	case usageUnproven:
		a.r.Warnf(diag.CatUnresolvedOwnership, "parameter", a.spans[name],
			"cannot prove an ownership mode for parameter %q; falling back to clone", name)
		return ir.Clone
	case usageConsume:
		return ir.Move
	case usageMutate:
		return ir.ExclusiveBorrow
	default:
		// Read-only: the ownership model annotation biases the default.
		if ann.Ownership == ir.OwnershipOwned {
			return ir.Move
		}
		return ir.SharedBorrow
	}
}

// loopMode classifies the loop binding by how the body uses it, the same
// read/mutate/consume lattice as parameters.
func (a *analyzer) loopMode(st *ir.For) ir.OwnershipMode {
	var elem *ir.Type = ir.Unknown
	if a.types != nil {
		if t, ok := a.types.LoopElems[st.BindID]; ok {
			elem = t
		}
	}
	if elem.IsCopy() {
		return ir.Move
	}

	sub := &analyzer{
		fn:    a.fn,
		types: a.types,
		graph: a.graph,
		reqs:  a.reqs,
		use:   map[string]usage{st.Target: usageNone},
		marks: make(map[ir.NodeID]ir.OwnershipMode),
		r:     diag.NewReporter(diag.StageOwnership),
	}
	sub.scanStmts(st.Body)
	switch sub.use[st.Target] {
	case usageUnproven:
		a.r.Warnf(diag.CatUnresolvedOwnership, "loop-binding", st.Span(),
			"cannot prove an ownership mode for loop binding %q; falling back to clone", st.Target)
		return ir.Clone
	case usageConsume:
		return ir.Move
	case usageMutate:
		return ir.ExclusiveBorrow
	default:
		return ir.SharedBorrow
	}
}
