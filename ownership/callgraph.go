// Package ownership chooses how every parameter and loop binding is
// passed: shared borrow, exclusive borrow, move, or clone. It runs after
// type inference and before optimization. When escape analysis cannot
// prove a mode, it degrades to Clone with a warning; the result is always
// correct, never fatal.
package ownership

import (
	"sort"

	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Call graph
// ---------------------------------------------------------------------------

// CallGraph is the module's static call graph. It is built once before
// any function enters the pipeline and read-only afterward; interprocedural
// refinement walks it in topological order.
type CallGraph struct {
	nodes map[string]*ir.Function
	calls map[string]map[string]bool // caller -> callee set
	order []string                   // topological, callees first
	inCyc map[string]bool
}

// BuildCallGraph constructs the call graph for a module. Method nodes are
// keyed "Class.method"; free functions by their bare name.
func BuildCallGraph(mod *ir.Module) *CallGraph {
	g := &CallGraph{
		nodes: make(map[string]*ir.Function),
		calls: make(map[string]map[string]bool),
		inCyc: make(map[string]bool),
	}
	for _, fn := range mod.Functions {
		g.nodes[fn.Name] = fn
	}
	for _, cls := range mod.Classes {
		for _, m := range cls.Methods {
			g.nodes[methodKey(cls.Name, m.Name)] = m
		}
	}
	for key, fn := range g.nodes {
		g.calls[key] = calleesOf(fn, g)
	}
	g.sortTopological()
	return g
}

func methodKey(class, method string) string {
	return class + "." + method
}

// Key returns the call-graph key for a function.
func Key(fn *ir.Function) string {
	if fn.Receiver != "" {
		return methodKey(fn.Receiver, fn.Name)
	}
	return fn.Name
}

// Function returns the function registered under a key.
func (g *CallGraph) Function(key string) *ir.Function {
	return g.nodes[key]
}

// Order returns the processing order: callees before callers. Members of
// recursion cycles appear in deterministic name order at the point the
// cycle was broken.
func (g *CallGraph) Order() []string {
	return g.order
}

// InCycle reports whether the function participates in recursion.
func (g *CallGraph) InCycle(key string) bool {
	return g.inCyc[key]
}

// Callees returns the set of known callees of a function.
func (g *CallGraph) Callees(key string) map[string]bool {
	return g.calls[key]
}

func calleesOf(fn *ir.Function, g *CallGraph) map[string]bool {
	out := make(map[string]bool)
	walkStmts(fn.Body, func(s ir.Stmt) {
		forEachExpr(s, func(x ir.Expr) {
			call, ok := x.(*ir.Call)
			if !ok {
				return
			}
			switch target := call.Fn.(type) {
			case *ir.Name:
				if _, known := g.nodes[target.Ident]; known {
					out[target.Ident] = true
				}
			case *ir.Attribute:
				// self.method() resolves within the receiver class.
				if obj, ok := target.Object.(*ir.Name); ok && obj.Ident == "self" && fn.Receiver != "" {
					key := methodKey(fn.Receiver, target.Attr)
					if _, known := g.nodes[key]; known {
						out[key] = true
					}
				}
			}
		})
	})
	return out
}

// sortTopological orders nodes callees-first using Kahn's algorithm on
// the reversed edges. Nodes left over when the queue drains are cycle
// members; they are appended in name order and flagged.
func (g *CallGraph) sortTopological() {
	// outstanding counts unprocessed callees per caller.
	outstanding := make(map[string]int, len(g.nodes))
	callers := make(map[string][]string) // callee -> callers
	for caller, callees := range g.calls {
		for callee := range callees {
			if callee == caller {
				continue // self recursion handled as a cycle below
			}
			outstanding[caller]++
			callers[callee] = append(callers[callee], caller)
		}
	}

	var queue []string
	for key := range g.nodes {
		if outstanding[key] == 0 {
			queue = append(queue, key)
		}
	}
	sort.Strings(queue)

	seen := make(map[string]bool, len(g.nodes))
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if seen[key] {
			continue
		}
		seen[key] = true
		g.order = append(g.order, key)
		next := callers[key]
		sort.Strings(next)
		for _, caller := range next {
			outstanding[caller]--
			if outstanding[caller] == 0 {
				queue = append(queue, caller)
			}
		}
	}

	// Anything unseen is in (or downstream of) a cycle.
	var rest []string
	for key := range g.nodes {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		g.inCyc[key] = true
		g.order = append(g.order, key)
	}
	// Direct self recursion is also a cycle.
	for key, callees := range g.calls {
		if callees[key] {
			g.inCyc[key] = true
		}
	}
}
