package codegen

import (
	"fmt"
	"strings"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Suspend/resume lowering: generator -> state struct + Iterator impl
// ---------------------------------------------------------------------------

type segKind int

const (
	segGoto segKind = iota
	segYield
	segCond
	segStop
)

// segment is one basic block of the generator's control-flow graph:
// straight-line rendered statements plus a single terminator.
type segment struct {
	stmts    []string
	kind     segKind
	yieldVal string   // segYield: the value returned to the caller
	cond     string   // segCond
	next     *segment // goto target, yield resume point, cond-then
	alt      *segment // cond-else
	inline   *segment // segCond: single-predecessor then-block emitted in the arm
	id       int
	preds    int
	inlined  bool
	span     ir.Span
}

type fieldSpec struct {
	name string
	typ  string // rendered Rust type
}

// machine is the numbered state machine: states in emission order, the
// exhausted state last.
type machine struct {
	states []*segment
	stop   *segment
	fields []fieldSpec
	item   string // rendered yield type
}

// generator lowers a may-suspend function. The state struct captures the
// parameters and every local; the Iterator impl dispatches on the state
// field.
func (f *fungen) generator() (string, error) {
	m, err := f.buildMachine()
	if err != nil {
		return "", err
	}
	return f.emitMachine(m), nil
}

// buildMachine segments the body, numbers the states topologically from
// the entry, and verifies reachability and transition totality.
func (f *fungen) buildMachine() (*machine, error) {
	yieldType := ir.Unknown
	if f.types != nil && f.types.YieldType != nil {
		yieldType = f.types.YieldType
	}
	if yieldType.IsUnknown() && f.fn.Ret != nil && f.fn.Ret.Kind == ir.KindList {
		yieldType = f.fn.Ret.Elem()
	}
	if yieldType.IsUnknown() {
		return nil, f.stop(diag.CatMissingLowering, "generator", f.fn.SpanVal,
			"yield type of %s is unresolved", f.fn.Name)
	}
	item, err := f.g.rustType(yieldType)
	if err != nil {
		return nil, f.stop(diag.CatMissingLowering, "generator", f.fn.SpanVal,
			"yield type of %s: %v", f.fn.Name, err)
	}

	b := &segBuilder{f: f, m: &machine{item: item}}
	if err := b.collectFields(); err != nil {
		return nil, err
	}

	b.m.stop = b.newSeg(segStop, ir.ZeroSpan())
	entry, err := b.build(f.body, b.m.stop)
	if err != nil {
		return nil, err
	}

	b.countPreds(entry)
	b.mergeInline()
	b.number(entry)

	for _, seg := range b.all {
		if seg.inlined || seg == b.m.stop {
			continue
		}
		if seg.id < 0 {
			return nil, f.stop(diag.CatUnreachableState, "generator", seg.span,
				"suspend segment in %s is unreachable from the entry state", f.fn.Name)
		}
		if seg.next == nil || (seg.kind == segCond && seg.alt == nil) {
			return nil, f.stop(diag.CatUnreachableState, "generator", seg.span,
				"state %d of %s has no outgoing transition", seg.id, f.fn.Name)
		}
	}
	return b.m, nil
}

type segBuilder struct {
	f       *fungen
	m       *machine
	all     []*segment
	loops   []loopCtx
	loopSeq int
}

// loopCtx is the innermost segmented loop: where continue and break
// transfer control.
type loopCtx struct {
	cont *segment
	brk  *segment
}

func (b *segBuilder) newSeg(kind segKind, span ir.Span) *segment {
	seg := &segment{kind: kind, id: -1, span: span}
	b.all = append(b.all, seg)
	return seg
}

// collectFields lifts the parameters and every local binding onto the
// state struct.
func (b *segBuilder) collectFields() error {
	f := b.f
	f.selfFields = map[string]bool{}

	addField := func(name string, t *ir.Type, span ir.Span) error {
		if f.selfFields[name] {
			return nil
		}
		if t.IsUnknown() {
			return f.stop(diag.CatMissingLowering, "generator", span,
				"local %s of generator %s has no resolved type", name, f.fn.Name)
		}
		rt, err := f.g.rustType(t)
		if err != nil {
			return f.stop(diag.CatMissingLowering, "generator", span,
				"local %s of generator %s: %v", name, f.fn.Name, err)
		}
		f.selfFields[name] = true
		b.m.fields = append(b.m.fields, fieldSpec{name: name, typ: rt})
		return nil
	}

	for _, p := range f.fn.Params {
		t := p.Type
		if t.IsUnknown() {
			t = f.varType(p.Name)
		}
		if err := addField(p.Name, t, f.fn.SpanVal); err != nil {
			return err
		}
	}
	var walkErr error
	ir.WalkStmts(f.body, func(s ir.Stmt) {
		if walkErr != nil {
			return
		}
		switch st := s.(type) {
		case *ir.Assign:
			if n, ok := st.Target.(*ir.Name); ok {
				t := f.varType(n.Ident)
				if st.Hint != nil && !st.Hint.IsUnknown() {
					t = st.Hint
				}
				walkErr = addField(n.Ident, t, st.SpanVal)
			}
		case *ir.For:
			t := f.varType(st.Target)
			if f.types != nil {
				if et, ok := f.types.LoopElems[st.BindID]; ok && !et.IsUnknown() {
					t = et
				}
			}
			walkErr = addField(st.Target, t, st.SpanVal)
		}
	})
	return walkErr
}

// synthField adds a compiler-generated field, bypassing type resolution.
func (b *segBuilder) synthField(name, typ string) {
	b.f.selfFields[name] = true
	b.m.fields = append(b.m.fields, fieldSpec{name: name, typ: typ})
}

// build converts a statement list into segments. cont is where control
// continues after the list; an empty list contributes no segment.
func (b *segBuilder) build(stmts []ir.Stmt, cont *segment) (*segment, error) {
	if len(stmts) == 0 {
		return cont, nil
	}
	var entry, cur *segment
	ensure := func(span ir.Span) *segment {
		if cur == nil {
			cur = b.newSeg(segGoto, span)
			if entry == nil {
				entry = cur
			}
		}
		return cur
	}

	for i, s := range stmts {
		switch st := s.(type) {
		case *ir.Yield:
			seg := ensure(st.SpanVal)
			val, err := b.f.expr(st.Value)
			if err != nil {
				return nil, err
			}
			rest, err := b.build(stmts[i+1:], cont)
			if err != nil {
				return nil, err
			}
			seg.kind = segYield
			seg.yieldVal = val
			seg.next = rest
			return entry, nil

		case *ir.Return:
			seg := ensure(st.SpanVal)
			seg.kind = segGoto
			seg.next = b.m.stop
			return entry, nil

		case *ir.Break:
			if len(b.loops) == 0 {
				return nil, b.f.stop(diag.CatMissingLowering, "generator", st.SpanVal,
					"break outside a loop in generator %s", b.f.fn.Name)
			}
			seg := ensure(st.SpanVal)
			seg.kind = segGoto
			seg.next = b.loops[len(b.loops)-1].brk
			return entry, nil

		case *ir.Continue:
			if len(b.loops) == 0 {
				return nil, b.f.stop(diag.CatMissingLowering, "generator", st.SpanVal,
					"continue outside a loop in generator %s", b.f.fn.Name)
			}
			seg := ensure(st.SpanVal)
			seg.kind = segGoto
			seg.next = b.loops[len(b.loops)-1].cont
			return entry, nil

		case *ir.For:
			if !stmtsContainYield(st.Body) {
				if err := b.renderInto(ensure(st.SpanVal), s); err != nil {
					return nil, err
				}
				continue
			}
			after, err := b.build(stmts[i+1:], cont)
			if err != nil {
				return nil, err
			}
			seg := ensure(st.SpanVal)
			condSeg, err := b.buildFor(seg, st, after)
			if err != nil {
				return nil, err
			}
			seg.kind = segGoto
			seg.next = condSeg
			return entry, nil

		case *ir.While:
			if !stmtsContainYield(st.Body) {
				if err := b.renderInto(ensure(st.SpanVal), s); err != nil {
					return nil, err
				}
				continue
			}
			after, err := b.build(stmts[i+1:], cont)
			if err != nil {
				return nil, err
			}
			cond, err := b.f.expr(st.Cond)
			if err != nil {
				return nil, err
			}
			condSeg := b.newSeg(segCond, st.SpanVal)
			condSeg.cond = cond
			b.loops = append(b.loops, loopCtx{cont: condSeg, brk: after})
			bodyEntry, err := b.build(st.Body, condSeg)
			b.loops = b.loops[:len(b.loops)-1]
			if err != nil {
				return nil, err
			}
			condSeg.next = bodyEntry
			condSeg.alt = after
			seg := ensure(st.SpanVal)
			seg.kind = segGoto
			seg.next = condSeg
			return entry, nil

		case *ir.If:
			// A branch that breaks or continues a segmented loop must be
			// segmented too, or the exit would escape the dispatcher.
			segmented := stmtsContainYield(st.Then) || stmtsContainYield(st.Else) ||
				(len(b.loops) > 0 && (stmtsEscapeLoop(st.Then) || stmtsEscapeLoop(st.Else)))
			if !segmented {
				if err := b.renderInto(ensure(st.SpanVal), s); err != nil {
					return nil, err
				}
				continue
			}
			after, err := b.build(stmts[i+1:], cont)
			if err != nil {
				return nil, err
			}
			cond, err := b.f.expr(st.Cond)
			if err != nil {
				return nil, err
			}
			condSeg := b.newSeg(segCond, st.SpanVal)
			condSeg.cond = cond
			thenEntry, err := b.build(st.Then, after)
			if err != nil {
				return nil, err
			}
			elseEntry, err := b.build(st.Else, after)
			if err != nil {
				return nil, err
			}
			condSeg.next = thenEntry
			condSeg.alt = elseEntry
			seg := ensure(st.SpanVal)
			seg.kind = segGoto
			seg.next = condSeg
			return entry, nil

		default:
			if len(b.loops) > 0 && stmtsEscapeLoop([]ir.Stmt{s}) {
				return nil, b.f.stop(diag.CatMissingLowering, "generator", s.Span(),
					"loop exit nested in this construct does not lower in generator %s",
					b.f.fn.Name)
			}
			if err := b.renderInto(ensure(s.Span()), s); err != nil {
				return nil, err
			}
		}
	}
	cur.next = cont
	return entry, nil
}

// renderInto renders one yield-free statement into the segment.
func (b *segBuilder) renderInto(seg *segment, s ir.Stmt) error {
	em := newEmitter()
	if err := b.f.stmt(em, s); err != nil {
		return err
	}
	text := strings.TrimRight(em.String(), "\n")
	if text == "" {
		return nil
	}
	seg.stmts = append(seg.stmts, strings.Split(text, "\n")...)
	return nil
}

// buildFor lowers a yielding loop: init code lands in pre, and the
// returned condition segment dispatches between the body and after.
func (b *segBuilder) buildFor(pre *segment, st *ir.For, after *segment) (*segment, error) {
	f := b.f
	n := b.loopSeq
	b.loopSeq++
	target := "self." + st.Target

	condSeg := b.newSeg(segCond, st.SpanVal)
	incSeg := b.newSeg(segGoto, st.SpanVal)
	incSeg.next = condSeg

	if rng, ok := rangeCall(st.Iter); ok {
		args := make([]string, len(rng.Args))
		for i, a := range rng.Args {
			s, err := f.expr(a)
			if err != nil {
				return nil, err
			}
			args[i] = s
		}
		start, end, step := "0", args[0], "1"
		cmp := "<"
		switch len(args) {
		case 2:
			start, end = args[0], args[1]
		case 3:
			start, end, step = args[0], args[1], args[2]
			lit, ok := rng.Args[2].(*ir.IntLit)
			if !ok {
				return nil, f.stop(diag.CatMissingLowering, "generator",
					st.SpanVal, "range step in generator %s must be a constant",
					f.fn.Name)
			}
			if lit.Value < 0 {
				cmp = ">"
			}
		}
		endField := fmt.Sprintf("__end%d", n)
		b.synthField(endField, "i64")
		pre.stmts = append(pre.stmts,
			fmt.Sprintf("%s = %s;", target, start),
			fmt.Sprintf("self.%s = %s;", endField, end))
		condSeg.cond = fmt.Sprintf("%s %s self.%s", target, cmp, endField)
		incSeg.stmts = append(incSeg.stmts,
			fmt.Sprintf("%s += %s;", target, step))

		b.loops = append(b.loops, loopCtx{cont: incSeg, brk: after})
		bodyEntry, err := b.build(st.Body, incSeg)
		b.loops = b.loops[:len(b.loops)-1]
		if err != nil {
			return nil, err
		}
		condSeg.next = bodyEntry
		condSeg.alt = after
		return condSeg, nil
	}

	iterType := f.typeOf(st.Iter)
	if iterType.Kind != ir.KindList {
		return nil, f.stop(diag.CatMissingLowering, "generator", st.SpanVal,
			"generator %s iterates a %s; only ranges and lists lower",
			f.fn.Name, iterType)
	}
	iterText, err := f.expr(st.Iter)
	if err != nil {
		return nil, err
	}
	iterRust, err := f.g.rustType(iterType)
	if err != nil {
		return nil, f.stop(diag.CatMissingLowering, "generator", st.SpanVal,
			"generator %s loop source: %v", f.fn.Name, err)
	}
	iterField := fmt.Sprintf("__iter%d", n)
	idxField := fmt.Sprintf("__i%d", n)
	b.synthField(iterField, iterRust)
	b.synthField(idxField, "usize")

	pre.stmts = append(pre.stmts,
		fmt.Sprintf("self.%s = %s.clone();", iterField, iterText),
		fmt.Sprintf("self.%s = 0;", idxField))
	condSeg.cond = fmt.Sprintf("self.%s < self.%s.len()", idxField, iterField)
	incSeg.stmts = append(incSeg.stmts,
		fmt.Sprintf("self.%s += 1;", idxField))

	b.loops = append(b.loops, loopCtx{cont: incSeg, brk: after})
	bodyEntry, err := b.build(st.Body, incSeg)
	b.loops = b.loops[:len(b.loops)-1]
	if err != nil {
		return nil, err
	}
	bind := fmt.Sprintf("%s = self.%s[self.%s].clone();", target, iterField, idxField)
	if bodyEntry == incSeg {
		// Empty body; the binding still advances.
		incSeg.stmts = append([]string{bind}, incSeg.stmts...)
	} else {
		bodyEntry.stmts = append([]string{bind}, bodyEntry.stmts...)
	}
	condSeg.next = bodyEntry
	condSeg.alt = after
	return condSeg, nil
}

// countPreds counts incoming edges reachable from the entry.
func (b *segBuilder) countPreds(entry *segment) {
	seen := map[*segment]bool{}
	var visit func(seg *segment)
	visit = func(seg *segment) {
		if seg == nil || seen[seg] {
			return
		}
		seen[seg] = true
		if seg.next != nil {
			seg.next.preds++
			visit(seg.next)
		}
		if seg.alt != nil {
			seg.alt.preds++
			visit(seg.alt)
		}
	}
	visit(entry)
}

// mergeInline folds a condition's then-block into the arm when this
// condition is its only predecessor. The merged block keeps its own
// resume target; it simply stops being a separate state.
func (b *segBuilder) mergeInline() {
	for _, seg := range b.all {
		if seg.kind != segCond {
			continue
		}
		child := seg.next
		if child == nil || child == seg || child.preds != 1 {
			continue
		}
		if child.kind != segYield && child.kind != segGoto {
			continue
		}
		seg.inline = child
		child.inlined = true
	}
}

// number assigns sequential state ids depth-first from the entry; the
// exhausted state always takes the final id.
func (b *segBuilder) number(entry *segment) {
	next := 0
	var visit func(seg *segment)
	visit = func(seg *segment) {
		if seg == nil || seg.id >= 0 || seg == b.m.stop || seg.inlined {
			return
		}
		seg.id = next
		next++
		b.m.states = append(b.m.states, seg)
		if seg.inline != nil {
			visit(seg.inline.next)
		} else {
			visit(seg.next)
		}
		visit(seg.alt)
	}
	visit(entry)
	b.m.stop.id = next
	b.m.states = append(b.m.states, b.m.stop)
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (f *fungen) emitMachine(m *machine) string {
	structName := camelCase(f.fn.Name) + "State"
	em := newEmitter()
	if f.fn.Doc != "" {
		emitDoc(em, f.fn.Doc)
	}
	em.linef("#[derive(Debug, Clone, Default)]")
	em.open("pub struct %s {", structName)
	em.linef("state: usize,")
	for _, field := range m.fields {
		em.linef("%s: %s,", field.name, field.typ)
	}
	em.close()
	em.blank()

	em.open("impl Iterator for %s {", structName)
	em.linef("type Item = %s;", m.item)
	em.blank()
	em.open("fn next(&mut self) -> Option<%s> {", m.item)
	em.open("loop {")
	em.open("match self.state {")
	for _, seg := range m.states {
		if seg == m.stop {
			continue
		}
		em.open("%d => {", seg.id)
		f.emitSegment(em, seg)
		em.close()
	}
	em.linef("_ => return None,")
	em.close()
	em.close()
	em.close()
	em.close()
	em.blank()

	// Constructor: parameters move into the struct, locals start zeroed.
	params := make([]string, len(f.fn.Params))
	paramSet := map[string]bool{}
	for i, p := range f.fn.Params {
		paramSet[p.Name] = true
		params[i] = p.Name + ": " + fieldTypeOf(m, p.Name)
	}
	em.open("pub fn %s(%s) -> %s {", f.fn.Name, strings.Join(params, ", "), structName)
	em.open("%s {", structName)
	em.linef("state: 0,")
	for _, field := range m.fields {
		if paramSet[field.name] {
			em.linef("%s,", field.name)
		} else {
			em.linef("%s: Default::default(),", field.name)
		}
	}
	em.close()
	em.close()
	return em.String()
}

func (f *fungen) emitSegment(em *emitter, seg *segment) {
	for _, line := range seg.stmts {
		em.raw(line)
	}
	switch seg.kind {
	case segGoto:
		em.linef("self.state = %d;", seg.next.id)
	case segYield:
		em.linef("let value = %s;", seg.yieldVal)
		em.linef("self.state = %d;", seg.next.id)
		em.linef("return Some(value);")
	case segCond:
		em.open("if %s {", seg.cond)
		if seg.inline != nil {
			f.emitSegment(em, seg.inline)
		} else {
			em.linef("self.state = %d;", seg.next.id)
		}
		em.indent--
		em.linef("} else {")
		em.indent++
		em.linef("self.state = %d;", seg.alt.id)
		em.close()
	}
}

func fieldTypeOf(m *machine, name string) string {
	for _, field := range m.fields {
		if field.name == name {
			return field.typ
		}
	}
	return "i64"
}

func stmtsContainYield(stmts []ir.Stmt) bool {
	found := false
	ir.WalkStmts(stmts, func(s ir.Stmt) {
		if _, ok := s.(*ir.Yield); ok {
			found = true
		}
	})
	return found
}

// stmtsEscapeLoop reports whether a break or continue in these statements
// binds to a loop outside them. Nested loops capture their own exits.
func stmtsEscapeLoop(stmts []ir.Stmt) bool {
	for _, s := range stmts {
		switch st := s.(type) {
		case *ir.Break, *ir.Continue:
			return true
		case *ir.If:
			if stmtsEscapeLoop(st.Then) || stmtsEscapeLoop(st.Else) {
				return true
			}
		case *ir.With:
			if stmtsEscapeLoop(st.Body) {
				return true
			}
		}
	}
	return false
}

// camelCase converts a snake_case function name to a Rust type name.
func camelCase(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
