package infer

import (
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Module signature table
// ---------------------------------------------------------------------------

// FuncSig is the externally visible signature of a module function or
// method, as declared or defaulted before body inference runs.
type FuncSig struct {
	Name     string
	Receiver string // class name for methods
	Params   []*ir.Type
	Ret      *ir.Type
}

// Signatures is the read-only per-module signature table. It is built
// once before any function enters the pipeline and shared by every
// parallel inference pass; it must never be mutated afterward.
type Signatures struct {
	funcs   map[string]FuncSig
	methods map[string]map[string]FuncSig // class -> method name -> sig
	classes map[string]*ir.Class
}

// BuildSignatures constructs the signature table from declared hints.
// Parameters without hints surface as Unknown.
func BuildSignatures(mod *ir.Module) *Signatures {
	s := &Signatures{
		funcs:   make(map[string]FuncSig),
		methods: make(map[string]map[string]FuncSig),
		classes: make(map[string]*ir.Class),
	}
	for _, fn := range mod.Functions {
		s.funcs[fn.Name] = sigOf(fn)
	}
	for _, cls := range mod.Classes {
		s.classes[cls.Name] = cls
		byName := make(map[string]FuncSig, len(cls.Methods))
		for _, m := range cls.Methods {
			byName[m.Name] = sigOf(m)
		}
		s.methods[cls.Name] = byName
	}
	return s
}

func sigOf(fn *ir.Function) FuncSig {
	params := make([]*ir.Type, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Type
	}
	ret := fn.Ret
	if fn.MaySuspend {
		// A suspending function's call expression is an iterator over
		// the yield type.
		ret = ir.ListOf(fn.Ret.Elem())
		if fn.Ret.IsUnknown() {
			ret = ir.ListOf(ir.Unknown)
		}
	}
	return FuncSig{
		Name:     fn.Name,
		Receiver: fn.Receiver,
		Params:   params,
		Ret:      ret,
	}
}

// Func looks up a free function signature.
func (s *Signatures) Func(name string) (FuncSig, bool) {
	sig, ok := s.funcs[name]
	return sig, ok
}

// Method looks up a method signature on a class, walking the single
// inheritance chain.
func (s *Signatures) Method(class, name string) (FuncSig, bool) {
	for class != "" {
		if byName, ok := s.methods[class]; ok {
			if sig, ok := byName[name]; ok {
				return sig, ok
			}
		}
		cls, ok := s.classes[class]
		if !ok {
			break
		}
		class = cls.Base
	}
	return FuncSig{}, false
}

// Class looks up a class definition.
func (s *Signatures) Class(name string) (*ir.Class, bool) {
	cls, ok := s.classes[name]
	return cls, ok
}

// FieldType resolves a field's declared type on a class, walking the
// inheritance chain. Unknown if the field is not declared.
func (s *Signatures) FieldType(class, field string) *ir.Type {
	for class != "" {
		cls, ok := s.classes[class]
		if !ok {
			return ir.Unknown
		}
		for _, f := range cls.Fields {
			if f.Name == field {
				return f.Type
			}
		}
		class = cls.Base
	}
	return ir.Unknown
}
