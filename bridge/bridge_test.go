package bridge

import (
	"testing"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
)

func node(kind, value string, children ...*ParseTree) *ParseTree {
	return &ParseTree{Kind: kind, Value: value, Children: children}
}

func attrNode(kind, value string, attrs map[string]string, children ...*ParseTree) *ParseTree {
	return &ParseTree{Kind: kind, Value: value, Attrs: attrs, Children: children}
}

func param(name, hint string) *ParseTree {
	return attrNode("param", name, map[string]string{"type": hint})
}

// addFunc is `def add(a: int, b: int) -> int: return a + b`.
func addFunc() *ParseTree {
	return attrNode("def", "add", map[string]string{"returns": "int"},
		node("params", "", param("a", "int"), param("b", "int")),
		node("body", "",
			node("return", "",
				node("binop", "+", node("name", "a"), node("name", "b")))))
}

func mustBuild(t *testing.T, tree *ParseTree) *Result {
	t.Helper()
	res, err := Build(tree, Directives{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return res
}

func findDiag(diags []*diag.Diagnostic, category string) *diag.Diagnostic {
	for _, d := range diags {
		if d.Category == category {
			return d
		}
	}
	return nil
}

func TestBuildTypedFunction(t *testing.T) {
	res := mustBuild(t, node("module", "calc", addFunc()))
	if len(res.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics)
	}
	mod := res.Module
	if mod.Name != "calc" {
		t.Fatalf("module name = %q, want calc", mod.Name)
	}
	if len(mod.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(mod.Functions))
	}

	fn := mod.Functions[0]
	if fn.Name != "add" {
		t.Fatalf("function name = %q", fn.Name)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("got %d params, want 2", len(fn.Params))
	}
	for _, p := range fn.Params {
		if p.Type.Kind != ir.KindInt || p.Type.Width != 64 {
			t.Errorf("param %s resolved to %s, want i64", p.Name, p.Type)
		}
		if p.Mode != ir.ModeUnresolved {
			t.Errorf("param %s mode = %v, want unresolved", p.Name, p.Mode)
		}
	}
	if fn.Ret.Kind != ir.KindInt {
		t.Errorf("return type = %s, want int", fn.Ret)
	}
	if fn.MaySuspend {
		t.Error("plain function marked MaySuspend")
	}
	if !fn.Terminates {
		t.Error("loop-free function not marked Terminates")
	}
}

func TestYieldSetsMaySuspend(t *testing.T) {
	gen := node("def", "ones",
		node("params", ""),
		node("body", "",
			node("yield", "", node("int", "1"))))
	res := mustBuild(t, node("module", "m", gen))
	if len(res.Module.Functions) != 1 {
		t.Fatalf("generator dropped: %v", res.Diagnostics)
	}
	if !res.Module.Functions[0].MaySuspend {
		t.Error("function with yield not marked MaySuspend")
	}
}

func TestWhileClearsTerminates(t *testing.T) {
	fn := node("def", "spin",
		node("params", ""),
		node("body", "",
			node("while", "",
				node("bool", "true"),
				node("body", "", node("pass", "")))))
	res := mustBuild(t, node("module", "m", fn))
	if res.Module.Functions[0].Terminates {
		t.Error("function with a while loop marked Terminates")
	}
}

func TestBareYieldRejected(t *testing.T) {
	fn := node("def", "bad",
		node("params", ""),
		node("body", "", node("yield", "")))
	res := mustBuild(t, node("module", "m", fn))
	if len(res.Module.Functions) != 0 {
		t.Fatal("function with bare yield survived")
	}
	if findDiag(res.Diagnostics, diag.CatUnsupportedConstruct) == nil {
		t.Fatalf("no unsupported-construct diagnostic, got %v", res.Diagnostics)
	}
}

func TestDataclassFields(t *testing.T) {
	cls := attrNode("class", "Point", map[string]string{"dataclass": "true"},
		attrNode("field", "x", map[string]string{"type": "float"}),
		attrNode("field", "y", map[string]string{"type": "float"}))
	res := mustBuild(t, node("module", "geom", cls))
	if len(res.Module.Classes) != 1 {
		t.Fatalf("dataclass dropped: %v", res.Diagnostics)
	}
	c := res.Module.Classes[0]
	if !c.Dataclass {
		t.Error("Dataclass flag not set")
	}
	if len(c.Fields) != 2 || c.Fields[0].Name != "x" || c.Fields[1].Name != "y" {
		t.Fatalf("fields = %+v", c.Fields)
	}
	if c.Fields[0].Type.Kind != ir.KindFloat {
		t.Errorf("field x type = %s, want float", c.Fields[0].Type)
	}
}

func TestPlainClassInfersInitFields(t *testing.T) {
	init := node("def", "__init__",
		node("params", "", param("self", ""), param("n", "int")),
		node("body", "",
			attrNode("assign", "", map[string]string{"type": "int"},
				node("attr", "count", node("name", "self")),
				node("name", "n")),
			node("assign", "",
				node("attr", "count", node("name", "self")),
				node("int", "0"))))
	cls := node("class", "Counter", init)
	res := mustBuild(t, node("module", "m", cls))
	c := res.Module.Classes[0]
	if len(c.Fields) != 1 {
		t.Fatalf("fields = %+v, want one deduplicated field", c.Fields)
	}
	if c.Fields[0].Name != "count" || c.Fields[0].Type.Kind != ir.KindInt {
		t.Fatalf("field = %+v", c.Fields[0])
	}
	if len(c.Methods) != 1 || c.Methods[0].Receiver != "Counter" {
		t.Fatalf("methods = %+v", c.Methods)
	}
}

func TestMetaclassDropsClass(t *testing.T) {
	cls := attrNode("class", "Meta", map[string]string{"metaclass": "ABCMeta"})
	res := mustBuild(t, node("module", "m", cls, addFunc()))
	if len(res.Module.Classes) != 0 {
		t.Fatal("metaclass class survived")
	}
	if findDiag(res.Diagnostics, diag.CatUnsupportedConstruct) == nil {
		t.Fatal("no diagnostic for metaclass")
	}
	if len(res.Module.Functions) != 1 {
		t.Error("sibling function dropped along with the failed class")
	}
}

func TestMultipleInheritanceDropsClass(t *testing.T) {
	cls := attrNode("class", "Both", map[string]string{"base": "A, B"})
	res := mustBuild(t, node("module", "m", cls))
	if len(res.Module.Classes) != 0 {
		t.Fatal("multiply-inheriting class survived")
	}
	d := findDiag(res.Diagnostics, diag.CatUnsupportedConstruct)
	if d == nil {
		t.Fatal("no diagnostic for multiple inheritance")
	}
}

func TestSingleBaseKept(t *testing.T) {
	cls := attrNode("class", "Derived", map[string]string{"base": "Base"})
	res := mustBuild(t, node("module", "m", cls))
	if len(res.Module.Classes) != 1 || res.Module.Classes[0].Base != "Base" {
		t.Fatalf("classes = %+v", res.Module.Classes)
	}
}

func TestDynamicAttrMethodDroppedClassKept(t *testing.T) {
	getattr := node("def", "__getattr__",
		node("params", "", param("self", ""), param("name", "str")),
		node("body", "", node("return", "", node("none", ""))))
	size := attrNode("def", "size", map[string]string{"returns": "int"},
		node("params", "", param("self", "")),
		node("body", "", node("return", "", node("int", "0"))))
	cls := node("class", "Bag", getattr, size)
	res := mustBuild(t, node("module", "m", cls))
	c := res.Module.Classes[0]
	if len(c.Methods) != 1 || c.Methods[0].Name != "size" {
		t.Fatalf("methods = %+v, want only size", c.Methods)
	}
	if findDiag(res.Diagnostics, diag.CatUnsupportedConstruct) == nil {
		t.Fatal("no diagnostic for __getattr__")
	}
}

func TestDynamicExecCallDropsFunction(t *testing.T) {
	fn := node("def", "run",
		node("params", "", param("src", "str")),
		node("body", "",
			node("expr", "",
				node("call", "", node("name", "eval"), node("name", "src")))))
	res := mustBuild(t, node("module", "m", fn, addFunc()))
	if len(res.Module.Functions) != 1 || res.Module.Functions[0].Name != "add" {
		t.Fatalf("functions = %+v, want only add", res.Module.Functions)
	}
	if findDiag(res.Diagnostics, diag.CatUnsupportedConstruct) == nil {
		t.Fatal("no diagnostic for dynamic execution")
	}
}

func TestGlobalDeclarationDropsFunction(t *testing.T) {
	fn := node("def", "bump",
		node("params", ""),
		node("body", "", node("global", "counter")))
	res := mustBuild(t, node("module", "m", fn))
	if len(res.Module.Functions) != 0 {
		t.Fatal("function with global declaration survived")
	}
	if findDiag(res.Diagnostics, diag.CatUnsupportedConstruct) == nil {
		t.Fatal("no diagnostic for global declaration")
	}
}

func TestBuildRejectsNonModuleRoot(t *testing.T) {
	if _, err := Build(node("def", "f"), Directives{}); err == nil {
		t.Fatal("Build accepted a non-module root")
	}
	if _, err := Build(nil, Directives{}); err == nil {
		t.Fatal("Build accepted a nil tree")
	}
}

func TestDecodeTree(t *testing.T) {
	tree, err := DecodeTree([]byte(`{"kind":"module","value":"m","children":[{"kind":"pass"}]}`))
	if err != nil {
		t.Fatalf("DecodeTree: %v", err)
	}
	if tree.Kind != "module" || len(tree.Children) != 1 {
		t.Fatalf("decoded tree = %+v", tree)
	}

	if _, err := DecodeTree([]byte(`{"value":"no kind"}`)); err == nil {
		t.Error("DecodeTree accepted a root without kind")
	}
	if _, err := DecodeTree([]byte(`not json`)); err == nil {
		t.Error("DecodeTree accepted malformed JSON")
	}
}
