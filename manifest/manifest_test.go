package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferrite-lang/ferrite/codegen"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a ferrite.toml
	dir := t.TempDir()
	tomlContent := `
[project]
name = "test-app"
version = "0.2.0"
edition = "2021"

[source]
dirs = ["src", "lib"]
entry = "main.py"

[transpile]
opt = "conservative"
strings = "always-owned"
overlays = ["patterns/numpy.toml"]
workers = 4

[output]
dir = "generated"
cargo = true

[cache]
enabled = true
path = "build/cache.db"
`
	if err := os.WriteFile(filepath.Join(dir, "ferrite.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.2.0" {
		t.Errorf("project version = %q, want 0.2.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Entry != "main.py" {
		t.Errorf("source entry = %q, want main.py", m.Source.Entry)
	}
	if m.Transpile.Opt != "conservative" {
		t.Errorf("opt = %q, want conservative", m.Transpile.Opt)
	}
	if m.Transpile.Workers != 4 {
		t.Errorf("workers = %d, want 4", m.Transpile.Workers)
	}
	if !m.Output.Cargo {
		t.Error("output cargo flag not set")
	}
	if got := m.OverlayPaths(); len(got) != 1 || !strings.HasSuffix(got[0], filepath.Join("patterns", "numpy.toml")) {
		t.Errorf("overlay paths = %v", got)
	}
	if got := m.CachePath(); !strings.HasSuffix(got, filepath.Join("build", "cache.db")) {
		t.Errorf("cache path = %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "[project]\nname = \"bare\"\n"
	if err := os.WriteFile(filepath.Join(dir, "ferrite.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("default version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Project.Edition != "2021" {
		t.Errorf("default edition = %q, want 2021", m.Project.Edition)
	}
	if m.Transpile.Opt != "aggressive" {
		t.Errorf("default opt = %q, want aggressive", m.Transpile.Opt)
	}
	if m.Output.Dir != "rust" {
		t.Errorf("default output dir = %q, want rust", m.Output.Dir)
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	content := "[project]\nname = \"walker\"\n"
	if err := os.WriteFile(filepath.Join(root, "ferrite.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("manifest not found from nested directory")
	}
	if m.Project.Name != "walker" {
		t.Errorf("project name = %q, want walker", m.Project.Name)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}

func TestCargoManifest(t *testing.T) {
	m := Default(t.TempDir())
	m.Project.Name = "My-App"
	m.Project.Version = "1.2.3"

	needs := []codegen.Need{
		{Crate: "rand", Version: "0.8"},
		{Crate: "regex", Version: "1"},
		{Crate: "serde_json"},
	}
	out := CargoManifest(m, needs)

	for _, want := range []string{
		`name = "my_app"`,
		`version = "1.2.3"`,
		`edition = "2021"`,
		"[dependencies]",
		`rand = "0.8"`,
		`regex = "1"`,
		`serde_json = "*"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Cargo.toml missing %q:\n%s", want, out)
		}
	}
}

func TestCrateName(t *testing.T) {
	cases := map[string]string{
		"my-app":    "my_app",
		"MyApp":     "my_app",
		"plain":     "plain",
		"dot.name":  "dot_name",
		"Mixed-Up2": "mixed_up2",
	}
	for in, want := range cases {
		if got := CrateName(in); got != want {
			t.Errorf("CrateName(%q) = %q, want %q", in, got, want)
		}
	}
}
