// Ferrite CLI - transpiles Python parse trees to Rust source.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/ferrite-lang/ferrite/bridge"
	"github.com/ferrite-lang/ferrite/cache"
	"github.com/ferrite-lang/ferrite/codegen"
	"github.com/ferrite-lang/ferrite/manifest"
	"github.com/ferrite-lang/ferrite/mapping"
	"github.com/ferrite-lang/ferrite/pipeline"
	"github.com/ferrite-lang/ferrite/wire"

	_ "github.com/tliron/commonlog/simple"
)

// inputFile is the JSON document the external front-end hands over: the
// parse tree plus the directive comments it collected. A document whose
// root has a "kind" field is accepted as a bare tree.
type inputFile struct {
	Tree       *bridge.ParseTree `json:"tree"`
	Directives bridge.Directives `json:"directives"`
}

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	outDir := flag.String("o", "", "Output directory (overrides ferrite.toml)")
	workers := flag.Int("workers", 0, "Analysis worker count (0 = one per CPU)")
	verify := flag.Bool("verify", false, "Re-run inference on each solved function")
	noCache := flag.Bool("no-cache", false, "Bypass the transpile cache")
	emitCBOR := flag.String("emit-cbor", "", "Directory for per-module CBOR result files")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ferrite [options] <parse-tree.json>...\n\n")
		fmt.Fprintf(os.Stderr, "Transpiles front-end parse trees to Rust source files.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ferrite app.json               # Write rust/app.rs per ferrite.toml\n")
		fmt.Fprintf(os.Stderr, "  ferrite -o build src/*.json    # Write into build/\n")
		fmt.Fprintf(os.Stderr, "  ferrite -verify -no-cache app.json\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *verbose {
		commonlog.Configure(1, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		printErrorMessage("Config Error", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default(".")
	}
	if *outDir != "" {
		m.Output.Dir = *outDir
	}
	if *workers != 0 {
		m.Transpile.Workers = *workers
	}
	if *verify {
		m.Transpile.Verify = true
	}

	reg, err := mapping.New(m.OverlayPaths()...)
	if err != nil {
		printErrorMessage("Mapping Error", err)
		os.Exit(1)
	}

	var store *cache.Cache
	if m.Cache.Enabled && !*noCache {
		store, err = cache.Open(m.CachePath())
		if err != nil {
			printErrorMessage("Cache Error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := os.MkdirAll(m.OutputDir(), 0755); err != nil {
		printErrorMessage("Output Error", err)
		os.Exit(1)
	}

	run := &runner{
		manifest: m,
		registry: reg,
		store:    store,
		verbose:  *verbose,
		cborDir:  *emitCBOR,
	}

	var needs []wire.CrateRecord
	generated, failed := 0, 0
	for _, path := range flag.Args() {
		mr, err := run.transpileFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				printErrorMessage("Interrupted", ctx.Err())
				os.Exit(1)
			}
			printErrorMessage("Error", err)
			failed++
			continue
		}
		needs = mergeCrates(needs, mr.Crates)
		for _, fr := range mr.Functions {
			if fr.Fatal {
				failed++
			} else {
				generated++
			}
		}
	}

	if m.Output.Cargo {
		if err := writeCargo(m, needs); err != nil {
			printErrorMessage("Cargo Error", err)
			os.Exit(1)
		}
	}

	printSummary(generated, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

type runner struct {
	manifest *manifest.Manifest
	registry *mapping.Registry
	store    *cache.Cache
	verbose  bool
	cborDir  string
}

// configKey fingerprints everything besides the source that shapes a
// transpile result, so config changes invalidate cache entries.
func (r *runner) configKey() string {
	t := r.manifest.Transpile
	return fmt.Sprintf("opt=%s;strings=%s;verify=%v;overlays=%s",
		t.Opt, t.Strings, t.Verify, strings.Join(t.Overlays, ","))
}

func (r *runner) transpileFile(ctx context.Context, path string) (*wire.ModuleResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	key := cache.Key(string(data), r.configKey())
	if r.store != nil {
		if mr, found, err := r.store.GetModule(key); err == nil && found {
			if r.verbose {
				fmt.Printf("%s: cache hit\n", path)
			}
			if err := r.writeOutputs(mr); err != nil {
				return nil, err
			}
			return mr, nil
		}
	}

	in, err := decodeInput(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	res, err := bridge.Build(in.Tree, in.Directives)
	if res != nil {
		for _, d := range res.Diagnostics {
			printDiagnostic(path, d)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	mr := &wire.ModuleResult{Module: res.Module.Name}
	out, err := pipeline.Run(ctx, res.Module, pipeline.Options{
		Workers:  r.manifest.Transpile.Workers,
		Verify:   r.manifest.Transpile.Verify,
		Registry: r.registry,
		Hook:     func(fr *wire.Result) { mr.Functions = append(mr.Functions, *fr) },
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for _, fr := range out.Functions {
		for _, d := range fr.Diagnostics {
			printDiagnostic(path, d)
		}
	}
	for _, cr := range out.Classes {
		for _, d := range cr.Diagnostics {
			printDiagnostic(path, d)
		}
	}

	mr.Prelude = out.Prelude
	mr.Rust = assemble(out)
	for _, need := range out.Needs {
		mr.Crates = append(mr.Crates, wire.CrateRecord{Crate: need.Crate, Version: need.Version})
	}

	if r.store != nil {
		if err := r.store.PutModule(key, mr); err != nil && r.verbose {
			fmt.Printf("%s: cache store failed: %v\n", path, err)
		}
	}
	if err := r.writeOutputs(mr); err != nil {
		return nil, err
	}
	return mr, nil
}

// writeOutputs lands the .rs file and, when requested, the CBOR record.
func (r *runner) writeOutputs(mr *wire.ModuleResult) error {
	name := mr.Module
	if name == "" {
		name = "module"
	}
	rsPath := filepath.Join(r.manifest.OutputDir(), name+".rs")
	if err := os.WriteFile(rsPath, []byte(mr.Rust), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", rsPath, err)
	}
	if r.verbose {
		fmt.Printf("wrote %s\n", rsPath)
	}

	if r.cborDir != "" {
		if err := os.MkdirAll(r.cborDir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", r.cborDir, err)
		}
		data, err := wire.MarshalModuleResult(mr)
		if err != nil {
			return fmt.Errorf("encoding %s result: %w", name, err)
		}
		cborPath := filepath.Join(r.cborDir, name+".cbor")
		if err := os.WriteFile(cborPath, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", cborPath, err)
		}
	}
	return nil
}

// decodeInput accepts either the {tree, directives} envelope or a bare
// parse tree document.
func decodeInput(data []byte) (*inputFile, error) {
	var in inputFile
	if err := json.Unmarshal(data, &in); err == nil && in.Tree != nil {
		return &in, nil
	}
	tree, err := bridge.DecodeTree(data)
	if err != nil {
		return nil, err
	}
	return &inputFile{Tree: tree}, nil
}

// assemble concatenates the module's generated pieces: prelude, then
// classes, then functions, skipping anything fatal.
func assemble(out *pipeline.Outcome) string {
	var b strings.Builder
	if out.Prelude != "" {
		b.WriteString(out.Prelude)
		b.WriteString("\n")
	}
	for _, cr := range out.Classes {
		if cr.Fatal {
			continue
		}
		b.WriteString(cr.Rust)
		b.WriteString("\n")
	}
	for _, fr := range out.Functions {
		if fr.Fatal {
			continue
		}
		b.WriteString(fr.Rust)
		b.WriteString("\n")
	}
	return b.String()
}

func mergeCrates(acc, add []wire.CrateRecord) []wire.CrateRecord {
	for _, c := range add {
		found := false
		for i := range acc {
			if acc[i].Crate == c.Crate {
				if c.Version > acc[i].Version {
					acc[i].Version = c.Version
				}
				found = true
				break
			}
		}
		if !found {
			acc = append(acc, c)
		}
	}
	return acc
}

func writeCargo(m *manifest.Manifest, needs []wire.CrateRecord) error {
	converted := make([]codegen.Need, 0, len(needs))
	for _, n := range needs {
		converted = append(converted, codegen.Need{Crate: n.Crate, Version: n.Version})
	}
	return manifest.WriteCargo(m, converted)
}
