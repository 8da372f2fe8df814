package mapping

import (
	"os"
	"path/filepath"
	"testing"
)

func writeOverlay(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuiltinLookup(t *testing.T) {
	r := Builtin()

	p, ok := r.Lookup("math", "", "sqrt")
	if !ok {
		t.Fatal("math.sqrt not in builtin table")
	}
	if p.Expr != "(%a).sqrt()" {
		t.Errorf("math.sqrt expr = %q", p.Expr)
	}

	if _, ok := r.Lookup("", "str", "upper"); !ok {
		t.Error("str.upper not in builtin table")
	}
	if _, ok := r.Lookup("math", "", "frobnicate"); ok {
		t.Error("unknown member resolved")
	}
}

func TestLookupFallsBackToModuleMember(t *testing.T) {
	r := Builtin()
	p, ok := r.Lookup("math", "Computer", "sqrt")
	if !ok {
		t.Fatal("module-wide entry not tried when class lookup misses")
	}
	if p.Expr != "(%a).sqrt()" {
		t.Errorf("expr = %q", p.Expr)
	}
}

func TestLookupFallsBackToClassMember(t *testing.T) {
	r := Builtin()
	if _, ok := r.Lookup("mytext", "str", "upper"); !ok {
		t.Fatal("class-wide entry not tried when module lookup misses")
	}
}

func TestExactEntryWinsOverFallback(t *testing.T) {
	path := writeOverlay(t, `
[[pattern]]
module = "math"
class = "Fast"
member = "sqrt"
expr = "fast_sqrt(%a)"
`)
	r, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := r.Lookup("math", "Fast", "sqrt")
	if !ok || p.Expr != "fast_sqrt(%a)" {
		t.Fatalf("exact entry not preferred, got %+v ok=%v", p, ok)
	}
	// the non-Fast lookup still reaches the builtin module entry
	p, _ = r.Lookup("math", "Slow", "sqrt")
	if p.Expr != "(%a).sqrt()" {
		t.Errorf("fallback broken by overlay, expr = %q", p.Expr)
	}
}

func TestOverlayOverridesBuiltin(t *testing.T) {
	path := writeOverlay(t, `
[[pattern]]
module = "math"
member = "sqrt"
expr = "my_sqrt(%a)"
crate = "mymath"
version = "0.1"
`)
	r, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := r.Lookup("math", "", "sqrt")
	if !ok {
		t.Fatal("overridden entry missing")
	}
	if p.Expr != "my_sqrt(%a)" || p.Crate != "mymath" || p.Version != "0.1" {
		t.Fatalf("override not applied: %+v", p)
	}
}

func TestLaterOverlayWins(t *testing.T) {
	first := writeOverlay(t, `
[[pattern]]
module = "acme"
member = "go"
expr = "first(%a)"
`)
	second := writeOverlay(t, `
[[pattern]]
module = "acme"
member = "go"
expr = "second(%a)"
`)
	r, err := New(first, second)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := r.Lookup("acme", "", "go")
	if p.Expr != "second(%a)" {
		t.Errorf("expr = %q, want later overlay to win", p.Expr)
	}
}

func TestOverlayErrors(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing overlay file accepted")
	}
	bad := writeOverlay(t, `pattern = "not a table"`)
	if _, err := New(bad); err == nil {
		t.Error("malformed overlay accepted")
	}
}

func TestApplyTemplate(t *testing.T) {
	p := Pattern{Expr: "%r.replace(%a)"}
	got := p.Apply("name", []string{`"a"`, `"b"`})
	if got != `name.replace("a", "b")` {
		t.Errorf("Apply = %q", got)
	}

	p = Pattern{Expr: "rand::random::<f64>()"}
	if got := p.Apply("", nil); got != "rand::random::<f64>()" {
		t.Errorf("Apply with no placeholders = %q", got)
	}
}

func TestApplyPositionalPlaceholders(t *testing.T) {
	r := Builtin()
	p, ok := r.Lookup("re", "", "match")
	if !ok {
		t.Fatal("re.match not in builtin table")
	}
	got := p.Apply("", []string{"pat", "text"})
	if got != `regex::Regex::new(pat).unwrap().is_match(text)` {
		t.Errorf("two-argument re.match = %q", got)
	}

	p, ok = r.Lookup("random", "", "randint")
	if !ok {
		t.Fatal("random.randint not in builtin table")
	}
	got = p.Apply("", []string{"1", "6"})
	if got != "rand::thread_rng().gen_range(1..=6)" {
		t.Errorf("randint = %q", got)
	}
}
