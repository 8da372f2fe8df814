// Package manifest handles ferrite.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a ferrite.toml project configuration.
type Manifest struct {
	Project   Project   `toml:"project"`
	Source    Source    `toml:"source"`
	Transpile Transpile `toml:"transpile"`
	Output    Output    `toml:"output"`
	Cache     Cache     `toml:"cache"`

	// Dir is the directory containing the ferrite.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`
}

// Source configures Python source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// Transpile configures analysis defaults. Directive comments in a source
// file override these per module.
type Transpile struct {
	Opt      string   `toml:"opt"`      // "aggressive" or "conservative"
	Strings  string   `toml:"strings"`  // "infer" or "always-owned"
	Overlays []string `toml:"overlays"` // extra mapping pattern files
	Workers  int      `toml:"workers"`  // 0 means one per CPU
	Verify   bool     `toml:"verify"`   // re-run inference on emitted results
}

// Output configures where generated Rust lands.
type Output struct {
	Dir   string `toml:"dir"`
	Cargo bool   `toml:"cargo"` // also write Cargo.toml
}

// Cache configures the transpile result cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load parses a ferrite.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "ferrite.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	applyDefaults(&m)
	return &m, nil
}

// Default returns the manifest used when no ferrite.toml exists: transpile
// in place, cache enabled, aggressive optimization.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	applyDefaults(m)
	return m
}

func applyDefaults(m *Manifest) {
	if m.Project.Name == "" {
		m.Project.Name = filepath.Base(m.Dir)
	}
	if m.Project.Version == "" {
		m.Project.Version = "0.1.0"
	}
	if m.Project.Edition == "" {
		m.Project.Edition = "2021"
	}
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"."}
	}
	if m.Transpile.Opt == "" {
		m.Transpile.Opt = "aggressive"
	}
	if m.Transpile.Strings == "" {
		m.Transpile.Strings = "infer"
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "rust"
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".ferrite", "cache.db")
	}
}

// FindAndLoad walks up from startDir to find a ferrite.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "ferrite.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// OverlayPaths returns absolute paths for the configured mapping overlays.
func (m *Manifest) OverlayPaths() []string {
	var paths []string
	for _, o := range m.Transpile.Overlays {
		if filepath.IsAbs(o) {
			paths = append(paths, o)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, o))
	}
	return paths
}

// OutputDir returns the absolute path to the Rust output directory.
func (m *Manifest) OutputDir() string {
	if filepath.IsAbs(m.Output.Dir) {
		return m.Output.Dir
	}
	return filepath.Join(m.Dir, m.Output.Dir)
}

// CachePath returns the absolute path to the cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
