package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ferrite-lang/ferrite/codegen"
)

// CargoManifest renders a Cargo.toml for the generated crate. Dependencies
// come from the emitted-need side table; a need without a version pins "*".
func CargoManifest(m *Manifest, needs []codegen.Need) string {
	var b strings.Builder
	b.WriteString("[package]\n")
	fmt.Fprintf(&b, "name = %q\n", CrateName(m.Project.Name))
	fmt.Fprintf(&b, "version = %q\n", m.Project.Version)
	fmt.Fprintf(&b, "edition = %q\n", m.Project.Edition)
	b.WriteString("\n[dependencies]\n")
	for _, need := range needs {
		version := need.Version
		if version == "" {
			version = "*"
		}
		fmt.Fprintf(&b, "%s = %q\n", need.Crate, version)
	}
	return b.String()
}

// WriteCargo writes Cargo.toml into the output directory.
func WriteCargo(m *Manifest, needs []codegen.Need) error {
	dir := m.OutputDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(dir, "Cargo.toml")
	if err := os.WriteFile(path, []byte(CargoManifest(m, needs)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// CrateName converts a project name to a valid crate name.
// "my-app" -> "my_app", "MyApp" -> "my_app".
func CrateName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				prev := rune(s[i-1])
				if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r - 'A' + 'a')
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
