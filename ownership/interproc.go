package ownership

import (
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Interprocedural mutation propagation
// ---------------------------------------------------------------------------

// maxRefineRounds bounds the fixed-point iteration. Requirements only
// ever grow, so the bound is a safety net for pathological graphs rather
// than a correctness device.
const maxRefineRounds = 8

// ModuleResult holds per-function ownership results along with the final
// mutation requirements the round converged on.
type ModuleResult struct {
	ByFunction   map[string]*Result // keyed by call-graph key
	Requirements MutationRequirements
}

// ResolveModule runs ownership resolution over a whole module: callees
// before callers, iterated to a fixed point so a callee's mutation
// requirements upgrade its callers' parameters. Functions on recursion
// cycles get the same treatment with the bound acting as the
// conservative cut-off; anything still unproven lands on Clone inside
// Resolve.
//
// typesByFunc must hold each function's solved inference result, keyed
// the same way as the call graph.
func ResolveModule(mod *ir.Module, g *CallGraph, typesByFunc map[string]*infer.Result) *ModuleResult {
	reqs := make(MutationRequirements)
	out := &ModuleResult{
		ByFunction:   make(map[string]*Result),
		Requirements: reqs,
	}

	for round := 0; round < maxRefineRounds; round++ {
		changed := false
		for _, key := range g.Order() {
			fn := g.Function(key)
			res := Resolve(fn, typesByFunc[key], g, reqs)
			out.ByFunction[key] = res
			if mergeRequirements(reqs, key, fn, res) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return out
}

// mergeRequirements records the mutation requirements a function imposes
// on its callers: parameter indices resolved to ExclusiveBorrow and, for
// methods, receiver mutation as index -1. Reports whether anything new
// appeared.
func mergeRequirements(reqs MutationRequirements, key string, fn *ir.Function, res *Result) bool {
	need := reqs[key]
	changed := false
	add := func(i int) {
		if need == nil {
			need = make(map[int]bool)
			reqs[key] = need
		}
		if !need[i] {
			need[i] = true
			changed = true
		}
	}
	for i, p := range fn.Params {
		if res.ParamModes[p.Name] == ir.ExclusiveBorrow {
			add(i)
		}
	}
	if fn.Receiver != "" && res.ReceiverMut {
		add(-1)
	}
	return changed
}
