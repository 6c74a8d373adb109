package builder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/distr1/mgbuild/internal/graph"
	"github.com/distr1/mgbuild/internal/mfs"
	"github.com/distr1/mgbuild/internal/module"
	"github.com/distr1/mgbuild/internal/mpath"
	"github.com/google/go-cmp/cmp"
)

// fakeCompiler satisfies Compiler by simply creating an empty file at
// out, recording every call it receives.
type fakeCompiler struct {
	calls int
	fail  bool
}

func (f *fakeCompiler) CompilePlugin(srcDir mpath.Abs, linkAgainst []mpath.Abs, out mpath.Abs) error {
	f.calls++
	if f.fail {
		return errors.New("fake compile failure")
	}
	return os.WriteFile(out.String(), nil, 0644)
}

// fakePlugin implements PluginHandle by dispatching to canned
// function values per symbol name.
type fakePlugin struct {
	exportInterface func(b *Builder, lt LibraryType) error
	exportLibraries func(b *Builder, lt LibraryType) error
	importLibraries func(b *Builder) error
}

func (p fakePlugin) Resolve(name string) (interface{}, error) {
	switch name {
	case PhaseExportInterface.pluginSymbol():
		return func(b *Builder, lt LibraryType) error { return p.exportInterface(b, lt) }, nil
	case PhaseExportLibraries.pluginSymbol():
		return func(b *Builder, lt LibraryType) error { return p.exportLibraries(b, lt) }, nil
	case PhaseImportLibraries.pluginSymbol():
		return func(b *Builder) error { return p.importLibraries(b) }, nil
	default:
		return nil, errors.New("no such symbol")
	}
}

// fakeLoader always returns the same handle regardless of path,
// recording how many times Load was invoked.
type fakeLoader struct {
	handle fakePlugin
	loads  int
}

func (l *fakeLoader) Load(path string) (PluginHandle, error) {
	l.loads++
	return l.handle, nil
}

func testEnv(t *testing.T, name string, compiler *fakeCompiler, loader *fakeLoader) (*Env, *Builder) {
	t.Helper()
	root := t.TempDir()
	modulesDir := mpath.MustAbs(filepath.Join(root, "modules"))
	artifactsDir := mpath.MustAbs(filepath.Join(root, "artifacts"))
	if err := os.MkdirAll(modulesDir.String(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(artifactsDir.String(), 0755); err != nil {
		t.Fatal(err)
	}

	m := module.New(name, 42)
	scc := &graph.SCC{Modules: []*module.Module{&m}}
	sccg := &graph.SCCGraph{SCCs: []*graph.SCC{scc}, ByModule: map[string]*graph.SCC{name: scc}}
	if name != module.BuilderName {
		// A discovered graph always carries the builder module (BuildSCCs
		// synthesizes it when absent); a plugin compile exports it first.
		bm := module.New(module.BuilderName, 42)
		bscc := &graph.SCC{Modules: []*module.Module{&bm}}
		sccg.SCCs = append(sccg.SCCs, bscc)
		sccg.ByModule[module.BuilderName] = bscc
	}

	env := &Env{
		Graph:        sccg,
		ModulesDir:   modulesDir,
		ArtifactsDir: artifactsDir,
		Compiler:     compiler,
		Loader:       loader,
		MakeRunner:   func(Phase, MakeVars) error { return nil },
	}
	return env, New(env, m)
}

func TestExportInterfaceFreshBuildInstallsAndIsIdempotent(t *testing.T) {
	var installedCount int
	loader := &fakeLoader{handle: fakePlugin{
		exportInterface: func(b *Builder, lt LibraryType) error {
			installedCount++
			installDir, err := b.InstallDir(PhaseExportInterface, lt)
			if err != nil {
				return err
			}
			rel, _ := mpath.NewRel("iface.h")
			dest, err := installDir.Join(rel)
			if err != nil {
				return err
			}
			return os.WriteFile(dest.String(), []byte("ok"), 0644)
		},
	}}
	compiler := &fakeCompiler{}
	_, b := testEnv(t, "x", compiler, loader)

	paths, err := b.runPhase(PhaseExportInterface, LibraryTypeShared)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d installed paths, want 1", len(paths))
	}
	if installedCount != 1 {
		t.Fatalf("plugin called %d times, want 1", installedCount)
	}
	if compiler.calls != 1 {
		t.Fatalf("compiler called %d times, want 1", compiler.calls)
	}

	// Second call must be idempotent: no further plugin or compile
	// invocation, and the exact same set of installed paths.
	paths2, err := b.runPhase(PhaseExportInterface, LibraryTypeShared)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(paths, paths2, cmp.Comparer(func(a, b mpath.Abs) bool { return a.String() == b.String() })); diff != "" {
		t.Errorf("idempotent re-run changed the installed path set (-first +second):\n%s", diff)
	}
	if installedCount != 1 {
		t.Fatalf("plugin invoked again on idempotent re-run: count=%d", installedCount)
	}
	if compiler.calls != 1 {
		t.Fatalf("compiler invoked again on idempotent re-run: count=%d", compiler.calls)
	}
}

func TestFailedPhaseRemovesPhaseRoot(t *testing.T) {
	loader := &fakeLoader{handle: fakePlugin{
		exportInterface: func(b *Builder, lt LibraryType) error {
			return errors.New("boom")
		},
	}}
	compiler := &fakeCompiler{}
	_, b := testEnv(t, "x", compiler, loader)

	_, err := b.runPhase(PhaseExportInterface, LibraryTypeShared)
	if err == nil {
		t.Fatal("expected error")
	}
	root, err := b.phaseRoot(PhaseExportInterface)
	if err != nil {
		t.Fatal(err)
	}
	if mfs.Exists(root) {
		t.Fatalf("phase root %s should have been removed after failure", root)
	}
}

func TestReEntryDuringActivePhaseIsRejected(t *testing.T) {
	var innerErr error
	loader := &fakeLoader{}
	loader.handle = fakePlugin{
		exportInterface: func(b *Builder, lt LibraryType) error {
			_, innerErr = b.runPhase(PhaseExportInterface, lt)
			return nil
		},
	}
	compiler := &fakeCompiler{}
	_, b := testEnv(t, "x", compiler, loader)

	if _, err := b.runPhase(PhaseExportInterface, LibraryTypeShared); err != nil {
		t.Fatal(err)
	}
	if innerErr == nil {
		t.Fatal("expected re-entry error from the nested runPhase call")
	}
}

func TestExportLibrariesUpdatesAliasAndPrunesStaleVersions(t *testing.T) {
	loader := &fakeLoader{handle: fakePlugin{
		exportLibraries: func(b *Builder, lt LibraryType) error {
			installDir, err := b.InstallDir(PhaseExportLibraries, lt)
			if err != nil {
				return err
			}
			rel, _ := mpath.NewRel("lib.so")
			dest, err := installDir.Join(rel)
			if err != nil {
				return err
			}
			return os.WriteFile(dest.String(), []byte("ok"), 0644)
		},
	}}
	compiler := &fakeCompiler{}
	env, b := testEnv(t, "x", compiler, loader)

	// Simulate a stale prior version directory for the same module.
	staleModule := module.New("x", 1)
	staleDir, err := module.ArtifactDir(env.ArtifactsDir, staleModule)
	if err != nil {
		t.Fatal(err)
	}
	if err := mfs.CreateDirectories(staleDir); err != nil {
		t.Fatal(err)
	}

	if _, err := b.runPhase(PhaseExportLibraries, LibraryTypeShared); err != nil {
		t.Fatal(err)
	}

	if mfs.Exists(staleDir) {
		t.Errorf("stale version directory %s should have been pruned", staleDir)
	}
	aliasDir, err := b.AliasDir()
	if err != nil {
		t.Fatal(err)
	}
	if !mfs.Exists(aliasDir) {
		t.Fatal("alias directory should exist after export_libraries")
	}
}

func TestExportDigestIsStableAcrossRebuilds(t *testing.T) {
	loader := &fakeLoader{handle: fakePlugin{
		exportLibraries: func(b *Builder, lt LibraryType) error {
			installDir, err := b.InstallDir(PhaseExportLibraries, lt)
			if err != nil {
				return err
			}
			rel, _ := mpath.NewRel("lib.so")
			dest, err := installDir.Join(rel)
			if err != nil {
				return err
			}
			return os.WriteFile(dest.String(), []byte("stable content"), 0644)
		},
	}}
	_, b := testEnv(t, "x", &fakeCompiler{}, loader)

	if _, err := b.runPhase(PhaseExportLibraries, LibraryTypeShared); err != nil {
		t.Fatal(err)
	}
	digest1, err := b.ExportDigest(LibraryTypeShared)
	if err != nil {
		t.Fatal(err)
	}
	digest2, err := b.ExportDigest(LibraryTypeShared)
	if err != nil {
		t.Fatal(err)
	}
	if digest1 != digest2 {
		t.Errorf("digest not stable: %q vs %q", digest1, digest2)
	}
	if digest1 == "" {
		t.Error("expected a non-empty digest")
	}
}

func TestBuilderModuleUsesMakeRunnerNotPlugin(t *testing.T) {
	loader := &fakeLoader{}
	compiler := &fakeCompiler{}
	env, b := testEnv(t, module.BuilderName, compiler, loader)

	var gotPhase Phase
	var gotVars MakeVars
	env.MakeRunner = func(phase Phase, vars MakeVars) error {
		gotPhase = phase
		gotVars = vars
		installDir := vars["INSTALL_DIR"]
		return os.WriteFile(filepath.Join(installDir, "out"), []byte("ok"), 0644)
	}

	paths, err := b.runPhase(PhaseExportInterface, LibraryTypeShared)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(paths))
	}
	if gotPhase != PhaseExportInterface {
		t.Errorf("MakeRunner got phase %v, want %v", gotPhase, PhaseExportInterface)
	}
	if gotVars["SOURCE_DIR"] == "" {
		t.Error("expected SOURCE_DIR to be set")
	}
	if compiler.calls != 0 || loader.loads != 0 {
		t.Error("builder module must never be compiled or loaded as a plugin")
	}
}
