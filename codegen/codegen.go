// Package codegen lowers resolved IR to Rust source text. Every lowering
// consumes the type and ownership side tables produced by earlier stages;
// a construct without a registered rule is a per-function hard stop
// naming the construct, never a best-effort guess.
package codegen

import (
	"strings"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
	"github.com/ferrite-lang/ferrite/mapping"
	"github.com/ferrite-lang/ferrite/ownership"
)

// Input carries one function's resolved analysis results into the
// generator. Body is the optimized statement list; nil falls back to the
// function's original body. Narrowed marks string bindings the optimizer
// proved borrowable.
type Input struct {
	Fn       *ir.Function
	Types    *infer.Result
	Own      *ownership.Result
	Body     []ir.Stmt
	Narrowed map[string]bool
}

// Generator emits Rust for one module. The mapping registry and the
// module-level ownership result are read-only; the need set accumulates
// external requirements across every function generated.
type Generator struct {
	mod     *ir.Module
	reg     *mapping.Registry
	own     *ownership.ModuleResult
	needs   *NeedSet
	modules map[string]string // local name -> imported module
	items   map[string]string // imported member -> its module
}

// New builds a generator for the module. own may be nil when no
// interprocedural ownership information exists (single-function use).
func New(mod *ir.Module, reg *mapping.Registry, own *ownership.ModuleResult) *Generator {
	g := &Generator{
		mod:     mod,
		reg:     reg,
		own:     own,
		needs:   NewNeedSet(),
		modules: map[string]string{},
		items:   map[string]string{},
	}
	if mod != nil {
		for _, imp := range mod.Imports {
			if len(imp.Items) == 0 {
				name := imp.Module
				if imp.Alias != "" {
					name = imp.Alias
				}
				g.modules[name] = imp.Module
				continue
			}
			for _, item := range imp.Items {
				g.items[item] = imp.Module
			}
		}
	}
	return g
}

// Needs returns the emitted-need side table.
func (g *Generator) Needs() *NeedSet { return g.needs }

// Prelude renders the use statements accumulated so far.
func (g *Generator) Prelude() string {
	uses := g.needs.Uses()
	if len(uses) == 0 {
		return ""
	}
	var b strings.Builder
	for _, u := range uses {
		b.WriteString("use " + u + ";\n")
	}
	return b.String()
}

// Function generates one free function or one generator. The returned
// diagnostics include the hard stop when err is non-nil.
func (g *Generator) Function(in Input) (string, []*diag.Diagnostic, error) {
	f := g.newFungen(in)
	var src string
	var err error
	if in.Fn.MaySuspend {
		src, err = f.generator()
	} else {
		src, err = f.plainFunction("")
	}
	if err != nil {
		return "", f.r.Diagnostics(), err
	}
	return src, f.r.Diagnostics(), nil
}

// Class generates a struct plus impl block. methods maps method name to
// its resolved Input; a method failure fails the whole class.
func (g *Generator) Class(cls *ir.Class, methods map[string]Input) (string, []*diag.Diagnostic, error) {
	r := diag.NewReporter(diag.StageCodegen)
	em := newEmitter()

	if cls.Doc != "" {
		emitDoc(em, cls.Doc)
	}
	em.linef("#[derive(Debug, Clone, Default)]")
	em.open("pub struct %s {", cls.Name)
	for _, field := range cls.Fields {
		ft, err := g.rustType(field.Type)
		if err != nil {
			d := r.Errorf(diag.CatMissingLowering, "field", cls.SpanVal,
				"field %s.%s: %v", cls.Name, field.Name, err)
			return "", r.Diagnostics(), d
		}
		em.linef("pub %s: %s,", field.Name, ft)
	}
	em.close()
	em.blank()

	em.open("impl %s {", cls.Name)
	wrote := false
	if ctor := classMethod(cls, "__init__"); ctor != nil {
		in, ok := methods["__init__"]
		if !ok {
			in = Input{Fn: ctor}
		}
		f := g.newFungen(in)
		if err := f.constructor(em, cls); err != nil {
			r.Merge(f.r)
			return "", r.Diagnostics(), err
		}
		r.Merge(f.r)
		wrote = true
	} else if cls.Dataclass {
		if err := g.dataclassNew(em, cls, r); err != nil {
			return "", r.Diagnostics(), err
		}
		wrote = true
	}
	for _, m := range cls.Methods {
		if m.Name == "__init__" {
			continue
		}
		if wrote {
			em.blank()
		}
		in, ok := methods[m.Name]
		if !ok {
			in = Input{Fn: m}
		}
		f := g.newFungen(in)
		src, err := f.plainFunction(cls.Name)
		r.Merge(f.r)
		if err != nil {
			return "", r.Diagnostics(), err
		}
		em.raw(src)
		wrote = true
	}
	em.close()
	return em.String(), r.Diagnostics(), nil
}

// dataclassNew emits the generated constructor: one parameter per field,
// in declaration order.
func (g *Generator) dataclassNew(em *emitter, cls *ir.Class, r *diag.Reporter) error {
	params := make([]string, len(cls.Fields))
	inits := make([]string, len(cls.Fields))
	for i, field := range cls.Fields {
		ft, err := g.rustType(field.Type)
		if err != nil {
			return r.Errorf(diag.CatMissingLowering, "field", cls.SpanVal,
				"field %s.%s: %v", cls.Name, field.Name, err)
		}
		params[i] = field.Name + ": " + ft
		inits[i] = field.Name
	}
	em.open("pub fn new(%s) -> Self {", strings.Join(params, ", "))
	em.open("%s {", cls.Name)
	for _, init := range inits {
		em.linef("%s,", init)
	}
	em.close()
	em.close()
	return nil
}

// calleeModes returns a callee's parameter modes in declaration order,
// nil when the callee is unknown to this module.
func (g *Generator) calleeModes(key string) ([]ir.OwnershipMode, []*ir.Type) {
	if g.own == nil || g.mod == nil {
		return nil, nil
	}
	res, ok := g.own.ByFunction[key]
	if !ok {
		return nil, nil
	}
	fn := g.findFunction(key)
	if fn == nil {
		return nil, nil
	}
	modes := make([]ir.OwnershipMode, len(fn.Params))
	types := make([]*ir.Type, len(fn.Params))
	for i, p := range fn.Params {
		modes[i] = res.Mode(p.Name)
		types[i] = p.Type
	}
	return modes, types
}

func (g *Generator) findFunction(key string) *ir.Function {
	if cls, method, ok := strings.Cut(key, "."); ok {
		c := g.mod.ClassByName(cls)
		if c == nil {
			return nil
		}
		return classMethod(c, method)
	}
	for _, fn := range g.mod.Functions {
		if fn.Name == key {
			return fn
		}
	}
	return nil
}

func classMethod(cls *ir.Class, name string) *ir.Function {
	for _, m := range cls.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func emitDoc(em *emitter, doc string) {
	for _, line := range strings.Split(strings.TrimRight(doc, "\n"), "\n") {
		em.linef("/// %s", line)
	}
}
