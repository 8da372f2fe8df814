// Package pipeline drives the per-function transpile stages: inference,
// ownership resolution, optimization, and code generation. The module
// signature table and the call graph are built once, before any function
// enters the pool; after that functions proceed independently, and one
// function's hard stop never poisons its siblings.
package pipeline

import (
	"context"
	"runtime"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/ferrite-lang/ferrite/codegen"
	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
	"github.com/ferrite-lang/ferrite/mapping"
	"github.com/ferrite-lang/ferrite/optimize"
	"github.com/ferrite-lang/ferrite/ownership"
	"github.com/ferrite-lang/ferrite/wire"
)

var log = commonlog.GetLogger("ferrite.pipeline")

// Options configures one pipeline run.
type Options struct {
	// Workers bounds the analysis pool; 0 means one per CPU.
	Workers int
	// Verify re-runs inference seeded from each solved result and flags
	// any drift as an internal-invariant error.
	Verify bool
	// Registry is the library-mapping registry; nil uses the builtins.
	Registry *mapping.Registry
	// Hook, when set, receives every function's wire result after
	// generation. External verification tooling attaches here.
	Hook func(*wire.Result)
}

// FunctionResult is the outcome for one free function or method.
type FunctionResult struct {
	Fn          *ir.Function
	Key         string // call-graph key: "name" or "Class.method"
	Rust        string // empty when Fatal
	Fatal       bool
	Diagnostics []*diag.Diagnostic
}

// ClassResult is the rendered struct-plus-impl for one class.
type ClassResult struct {
	Cls         *ir.Class
	Rust        string
	Fatal       bool
	Diagnostics []*diag.Diagnostic
}

// Outcome aggregates a module run. Functions appear in module order;
// methods are folded into their class's result.
type Outcome struct {
	Module    *ir.Module
	Functions []FunctionResult
	Classes   []ClassResult
	Prelude   string
	Needs     []codegen.Need
}

// Fatal reports whether any function or class failed.
func (o *Outcome) Fatal() bool {
	for _, fr := range o.Functions {
		if fr.Fatal {
			return true
		}
	}
	for _, cr := range o.Classes {
		if cr.Fatal {
			return true
		}
	}
	return false
}

// unit is one function moving through the stages.
type unit struct {
	fn    *ir.Function
	key   string
	cls   *ir.Class // nil for free functions
	types *infer.Result
	opt   *optimize.Outcome
}

// Run transpiles every function and class in the module. Cancellation is
// cooperative: the context is checked at stage boundaries, and a
// cancelled run returns ctx.Err() with no partial Outcome.
func Run(ctx context.Context, mod *ir.Module, opts Options) (*Outcome, error) {
	reg := opts.Registry
	if reg == nil {
		reg = mapping.Builtin()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Barrier: both read-only tables exist before any function starts.
	sigs := infer.BuildSignatures(mod)
	graph := ownership.BuildCallGraph(mod)

	units := collectUnits(mod)
	log.Infof("module %s: %d functions, %d workers", mod.Name, len(units), workers)

	// Stage 1: type inference, fanned out. Every unit must finish before
	// ownership resolution, which reads all results interprocedurally.
	if err := each(ctx, workers, len(units), func(i int) {
		u := units[i]
		u.types = infer.Function(u.fn, sigs, nil)
		if opts.Verify && !u.types.Failed {
			verifyInference(u, sigs)
		}
	}); err != nil {
		return nil, err
	}

	typesByFunc := make(map[string]*infer.Result, len(units))
	for _, u := range units {
		typesByFunc[u.key] = u.types
	}
	own := ownership.ResolveModule(mod, graph, typesByFunc)

	// Stage 2: optimization, fanned out again.
	if err := each(ctx, workers, len(units), func(i int) {
		u := units[i]
		if u.types.Failed {
			return
		}
		u.opt = optimize.Function(u.fn, mod, u.types)
		if n := u.opt.Stats.Total(); n > 0 {
			log.Debugf("%s: %d rewrites applied", u.key, n)
		}
	}); err != nil {
		return nil, err
	}

	// Stage 3: code generation. The generator accumulates the emitted-need
	// side table across functions, so this stage runs sequentially in
	// module order.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gen := codegen.New(mod, reg, own)
	out := &Outcome{Module: mod}

	byKey := make(map[string]*unit, len(units))
	for _, u := range units {
		byKey[u.key] = u
	}

	for _, fn := range mod.Functions {
		u := byKey[fn.Name]
		fr := generateFunction(gen, u, own, mod.Name, opts.Hook)
		out.Functions = append(out.Functions, fr)
	}
	for _, cls := range mod.Classes {
		cr := generateClass(gen, cls, byKey, own)
		out.Classes = append(out.Classes, cr)
	}

	out.Prelude = gen.Prelude()
	out.Needs = gen.Needs().Crates()
	return out, nil
}

func collectUnits(mod *ir.Module) []*unit {
	var units []*unit
	for _, fn := range mod.Functions {
		units = append(units, &unit{fn: fn, key: ownership.Key(fn)})
	}
	for _, cls := range mod.Classes {
		for _, m := range cls.Methods {
			units = append(units, &unit{fn: m, key: ownership.Key(m), cls: cls})
		}
	}
	return units
}

// each runs fn for every index through a bounded pool, stopping early on
// cancellation. Workers write only to their own unit, so no lock is held.
func each(ctx context.Context, workers, n int, fn func(i int)) error {
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

// verifyInference re-runs inference seeded from the solved result. The
// solver is idempotent, so any drift means a bug; it surfaces as an
// internal-invariant error on the function rather than a panic.
func verifyInference(u *unit, sigs *infer.Signatures) {
	again := infer.Function(u.fn, sigs, u.types)
	if !typesEqual(u.types.Ret, again.Ret) {
		r := diag.NewReporter(diag.StageInfer)
		d := r.Errorf(diag.CatInternalInvariant, "function", u.fn.SpanVal,
			"re-inference of %s changed the return type from %s to %s",
			u.fn.Name, typeText(u.types.Ret), typeText(again.Ret))
		u.types.Diagnostics = append(u.types.Diagnostics, d)
		u.types.Failed = true
		return
	}
	for name, t := range u.types.VarTypes {
		if !typesEqual(t, again.VarTypes[name]) {
			r := diag.NewReporter(diag.StageInfer)
			d := r.Errorf(diag.CatInternalInvariant, "variable", u.fn.SpanVal,
				"re-inference of %s changed %s from %s to %s",
				u.fn.Name, name, typeText(t), typeText(again.VarTypes[name]))
			u.types.Diagnostics = append(u.types.Diagnostics, d)
			u.types.Failed = true
			return
		}
	}
}

func typesEqual(a, b *ir.Type) bool {
	return typeText(a) == typeText(b)
}

func typeText(t *ir.Type) string {
	if t == nil {
		return ir.Unknown.String()
	}
	return t.String()
}

func generateFunction(gen *codegen.Generator, u *unit, own *ownership.ModuleResult, module string, hook func(*wire.Result)) FunctionResult {
	fr := FunctionResult{Fn: u.fn, Key: u.key}
	fr.Diagnostics = append(fr.Diagnostics, u.types.Diagnostics...)

	var ownRes *ownership.Result
	if own != nil {
		ownRes = own.ByFunction[u.key]
	}
	if ownRes != nil {
		fr.Diagnostics = append(fr.Diagnostics, ownRes.Diagnostics...)
	}

	if u.types.Failed {
		fr.Fatal = true
		emitHook(hook, module, &fr, u, ownRes)
		return fr
	}

	in := codegen.Input{Fn: u.fn, Types: u.types, Own: ownRes}
	if u.opt != nil {
		in.Body = u.opt.Body
		in.Narrowed = u.opt.NarrowedStrings
	}
	src, diags, err := gen.Function(in)
	fr.Diagnostics = append(fr.Diagnostics, diags...)
	if err != nil {
		fr.Fatal = true
	} else {
		fr.Rust = src
	}
	emitHook(hook, module, &fr, u, ownRes)
	return fr
}

func generateClass(gen *codegen.Generator, cls *ir.Class, byKey map[string]*unit, own *ownership.ModuleResult) ClassResult {
	cr := ClassResult{Cls: cls}
	methods := map[string]codegen.Input{}
	for _, m := range cls.Methods {
		u := byKey[ownership.Key(m)]
		if u == nil {
			continue
		}
		cr.Diagnostics = append(cr.Diagnostics, u.types.Diagnostics...)
		if u.types.Failed {
			cr.Fatal = true
			return cr
		}
		in := codegen.Input{Fn: m, Types: u.types}
		if own != nil {
			in.Own = own.ByFunction[u.key]
			if in.Own != nil {
				cr.Diagnostics = append(cr.Diagnostics, in.Own.Diagnostics...)
			}
		}
		if u.opt != nil {
			in.Body = u.opt.Body
			in.Narrowed = u.opt.NarrowedStrings
		}
		methods[m.Name] = in
	}

	src, diags, err := gen.Class(cls, methods)
	cr.Diagnostics = append(cr.Diagnostics, diags...)
	if err != nil {
		cr.Fatal = true
	} else {
		cr.Rust = src
	}
	return cr
}

func emitHook(hook func(*wire.Result), module string, fr *FunctionResult, u *unit, ownRes *ownership.Result) {
	if hook == nil {
		return
	}
	var modes map[string]ir.OwnershipMode
	if ownRes != nil {
		modes = ownRes.ParamModes
	}
	var narrowed []string
	if u.opt != nil {
		for name := range u.opt.NarrowedStrings {
			narrowed = append(narrowed, name)
		}
	}
	r := &wire.Result{
		Module:   module,
		Function: wire.SnapshotFunction(u.fn, u.types.Ret, modes, narrowed),
		Rust:     fr.Rust,
		Fatal:    fr.Fatal,
	}
	for _, d := range fr.Diagnostics {
		r.Diagnostics = append(r.Diagnostics, wire.FromDiagnostic(d))
	}
	hook(r)
}
