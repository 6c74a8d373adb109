package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/distr1/mgbuild/internal/module"
	"github.com/distr1/mgbuild/internal/mpath"
)

// writeModule creates modulesDir/name with a builder.cpp and a
// deps.json declaring deps, then sleeps 2ms so that whatever is written
// after it is strictly newer, so version ordering in tests is
// deterministic.
func writeModule(t *testing.T, modulesDir, name string, deps []string) {
	t.Helper()
	dir := filepath.Join(modulesDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "builder.cpp"), []byte("// builder\n"), 0644); err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(struct {
		Deps []string `json:"deps"`
	}{Deps: deps})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "deps.json"), b, 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
}

func writeBuilderModule(t *testing.T, modulesDir string) {
	t.Helper()
	dir := filepath.Join(modulesDir, module.BuilderName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "orchestrator.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
}

func TestLinearChainFreshBuild(t *testing.T) {
	root := t.TempDir()
	writeBuilderModule(t, root)
	writeModule(t, root, "a", []string{"b"})
	writeModule(t, root, "b", []string{"c"})
	writeModule(t, root, "c", nil)

	modulesDir := mpath.MustAbs(root)
	g, err := Discover(modulesDir, "a")
	if err != nil {
		t.Fatal(err)
	}
	sccg, err := BuildSCCs(g)
	if err != nil {
		t.Fatal(err)
	}
	builder := g.ModulesByName[module.BuilderName]
	Propagate(sccg, builder, "a")

	if len(sccg.SCCs) != 4 { // a, b, c, builder — each a singleton here
		t.Fatalf("got %d SCCs, want 4", len(sccg.SCCs))
	}

	va := g.ModulesByName["a"].Version()
	vb := g.ModulesByName["b"].Version()
	vc := g.ModulesByName["c"].Version()
	if !(va == vb && vb == vc) {
		t.Errorf("expected a, b, c to share a version after propagation from the youngest (c): got a=%d b=%d c=%d", va, vb, vc)
	}

	var order []string
	v := NewVisitor()
	if err := v.VisitFrom(sccg.ByModule["a"], func(s *SCC) error {
		for _, m := range s.Modules {
			order = append(order, m.Name)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != "c" || order[1] != "b" || order[2] != "a" {
		t.Errorf("VisitFrom order = %v, want [c b a]", order)
	}
}

func TestCycleAbsorption(t *testing.T) {
	root := t.TempDir()
	writeBuilderModule(t, root)
	writeModule(t, root, "c", nil)
	writeModule(t, root, "a", []string{"b", "c"})
	writeModule(t, root, "b", []string{"a", "c"})

	modulesDir := mpath.MustAbs(root)
	g, err := Discover(modulesDir, "a")
	if err != nil {
		t.Fatal(err)
	}
	sccg, err := BuildSCCs(g)
	if err != nil {
		t.Fatal(err)
	}
	builder := g.ModulesByName[module.BuilderName]
	Propagate(sccg, builder, "a")

	sccAB := sccg.ByModule["a"]
	if sccAB != sccg.ByModule["b"] {
		t.Fatal("expected a and b to share one SCC")
	}
	if len(sccAB.Modules) != 2 {
		t.Fatalf("expected SCC{a,b} to have 2 modules, got %d", len(sccAB.Modules))
	}
	if sccg.ByModule["c"] == sccAB {
		t.Fatal("expected c to be in a different SCC from a,b")
	}
	if len(sccAB.DependsOn) != 1 || sccAB.DependsOn[0] != sccg.ByModule["c"] {
		t.Fatalf("expected SCC{a,b} to depend on SCC{c} exactly once")
	}

	va := g.ModulesByName["a"].Version()
	vb := g.ModulesByName["b"].Version()
	vc := g.ModulesByName["c"].Version()
	if va != vb {
		t.Errorf("a and b must share a version: a=%d b=%d", va, vb)
	}
	if va < vc {
		t.Errorf("a,b version %d must be >= c version %d", va, vc)
	}
}

func TestMissingManifestIsFatal(t *testing.T) {
	root := t.TempDir()
	writeBuilderModule(t, root)
	// "b" directory exists but has no deps.json.
	if err := os.MkdirAll(filepath.Join(root, "b"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b", "builder.cpp"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	writeModule(t, root, "a", []string{"b"})

	modulesDir := mpath.MustAbs(root)
	_, err := Discover(modulesDir, "a")
	if err == nil {
		t.Fatal("expected error for missing deps.json")
	}
	if got := err.Error(); !contains(got, "deps.json") || !contains(got, "missing") {
		t.Errorf("error %q does not mention the missing deps.json path", got)
	}
}

func TestDuplicateDependencyIsFatal(t *testing.T) {
	root := t.TempDir()
	writeBuilderModule(t, root)
	writeModule(t, root, "b", nil)
	writeModule(t, root, "a", []string{"b", "b"})

	modulesDir := mpath.MustAbs(root)
	_, err := Discover(modulesDir, "a")
	if err == nil {
		t.Fatal("expected error for duplicate dependency entry")
	}
}

func TestEmptyDependencyNameIsFatal(t *testing.T) {
	root := t.TempDir()
	writeBuilderModule(t, root)
	writeModule(t, root, "a", []string{""})

	modulesDir := mpath.MustAbs(root)
	_, err := Discover(modulesDir, "a")
	if err == nil {
		t.Fatal("expected error for empty dependency name")
	}
}

func TestBuilderSynthesizedWhenAbsent(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "a", nil)

	modulesDir := mpath.MustAbs(root)
	g, err := Discover(modulesDir, "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.ModulesByName[module.BuilderName]; ok {
		t.Fatal("builder should not be discovered when nothing depends on it")
	}
	sccg, err := BuildSCCs(g)
	if err != nil {
		t.Fatal(err)
	}
	builder, ok := g.ModulesByName[module.BuilderName]
	if !ok {
		t.Fatal("BuildSCCs did not synthesize the builder module")
	}
	if builder.Version() != 0 {
		t.Errorf("synthesized builder (no directory) should have version 0, got %d", builder.Version())
	}
	if _, ok := sccg.ByModule[module.BuilderName]; !ok {
		t.Fatal("synthesized builder has no SCC")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
