// Command mgbuild is the polyglot module-graph build orchestrator's
// entry point: it discovers the module dependency graph, propagates
// versions, self-rebuilds if its own binary is older than the builder
// module it is built from, imports the target module's libraries, and
// optionally execs into a trailing binary.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/distr1/mgbuild/internal/builder"
	"github.com/distr1/mgbuild/internal/graph"
	"github.com/distr1/mgbuild/internal/menv"
	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mfs"
	"github.com/distr1/mgbuild/internal/module"
	"github.com/distr1/mgbuild/internal/mpath"
	"github.com/distr1/mgbuild/internal/mproc"
	"github.com/distr1/mgbuild/internal/mtrace"
	"github.com/mattn/go-isatty"
)

func main() {
	if prefix := os.Getenv("MGBUILD_TRACE"); prefix != "" {
		if err := mtrace.Enable(prefix); err != nil {
			fmt.Fprintln(os.Stderr, diagnostic(os.Args[0], err))
		}
	}

	runErr := run(os.Args)
	if err := menv.RunAtExit(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, diagnostic(os.Args[0], runErr))
		os.Exit(1)
	}
}

// diagnostic formats err as "<argv0>: <message>", bracketing argv0 in
// ANSI bold only when stderr is a terminal: a log collector or CI
// artifact should never have to strip escape codes.
func diagnostic(argv0 string, err error) string {
	name := filepath.Base(argv0)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return fmt.Sprintf("\x1b[1m%s\x1b[0m: %v", name, err)
	}
	return fmt.Sprintf("%s: %v", name, err)
}

func run(argv []string) error {
	if len(argv) < 4 {
		return fmt.Errorf("usage: %s <modules_dir> <target_module> <artifacts_dir> [<binary> [<binary_args>...]]", filepath.Base(argv[0]))
	}
	modulesDirRaw, target, artifactsDirRaw := argv[1], argv[2], argv[3]
	trailing := argv[4:]

	modulesDir, err := mpath.NewAbs(modulesDirRaw)
	if err != nil {
		return err
	}
	artifactsDir, err := mpath.NewAbs(artifactsDirRaw)
	if err != nil {
		return err
	}
	if err := mfs.CreateDirectories(artifactsDir); err != nil {
		return err
	}

	g, sccg, err := resolveGraph(modulesDir, target)
	if err != nil {
		return err
	}

	env := &builder.Env{
		Graph:        sccg,
		ModulesDir:   modulesDir,
		ArtifactsDir: artifactsDir,
		Compiler:     builder.NewExternalCompiler(),
		Loader:       builder.DefaultPluginLoader{},
		Log:          log.New(os.Stderr, "", log.LstdFlags),
	}

	builderModule := *g.ModulesByName[module.BuilderName]
	if err := maybeSelfRebuild(env, builderModule, argv); err != nil {
		return err
	}

	targetModule := *g.ModulesByName[target]
	tb := builder.New(env, targetModule)
	if _, err := tb.ImportLibraries(); err != nil {
		return err
	}

	if len(trailing) > 0 {
		return execTrailing(tb, trailing) // never returns on success
	}
	return nil
}

// execTrailing resolves trailing[0] against the target module's own
// import-libraries install directory — <artifacts>/<target>/<target>@
// <version>/import/install/<binary> — chdirs into that directory, and
// exec-replaces the current process with the resolved absolute path.
func execTrailing(tb *builder.Builder, trailing []string) error {
	installDir, err := tb.InstallDir(builder.PhaseImportLibraries, builder.LibraryTypeShared)
	if err != nil {
		return err
	}
	binRel, err := mpath.NewRel(trailing[0])
	if err != nil {
		return err
	}
	binPath, err := installDir.Join(binRel)
	if err != nil {
		return err
	}
	if err := os.Chdir(installDir.String()); err != nil {
		return merrors.Errorf(merrors.FS, "execTrailing: chdir %s: %w", installDir, err)
	}
	argv := append([]string{binPath.String()}, trailing[1:]...)
	return mproc.ExecReplace(argv)
}

func resolveGraph(modulesDir mpath.Abs, target string) (*graph.Graph, *graph.SCCGraph, error) {
	g, err := graph.Discover(modulesDir, target)
	if err != nil {
		return nil, nil, err
	}
	sccg, err := graph.BuildSCCs(g)
	if err != nil {
		return nil, nil, err
	}
	graph.Propagate(sccg, g.ModulesByName[module.BuilderName], target)
	return g, sccg, nil
}

// maybeSelfRebuild compares the running binary's own last-write time
// against the builder module's propagated version; if the builder's
// sources are newer, or the builder's own shared-library install
// directories don't exist yet, it runs the builder module's own
// import-libraries phase (its Makefile contract, via Builder.
// ImportLibraries) and exec-replaces the current process with the
// binary that phase installs. It never returns on a successful
// rebuild.
func maybeSelfRebuild(env *builder.Env, builderModule module.Module, argv []string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exeAbs, err := mpath.NewAbs(exe)
	if err != nil {
		return err
	}
	exeVersion, err := binaryVersion(exeAbs)
	if err != nil {
		return err
	}

	bb := builder.New(env, builderModule)
	installed, err := builderSharedInstalled(bb)
	if err != nil {
		return err
	}
	if exeVersion >= builderModule.Version() && installed {
		return nil
	}

	paths, err := bb.ImportLibraries()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return merrors.Errorf(merrors.Invariant, "maybeSelfRebuild: builder module's import phase installed no binary")
	}
	return mproc.ExecReplaceByFD(paths[0].String(), argv) // never returns on success
}

// builderSharedInstalled reports whether the builder module's own
// export-interface and export-libraries install directories (shared
// library type) already exist, stat'd concurrently: either missing
// forces a self-rebuild even when the running binary isn't stale by
// version.
func builderSharedInstalled(bb *builder.Builder) (bool, error) {
	ifaceDir, err := bb.InstallDir(builder.PhaseExportInterface, builder.LibraryTypeShared)
	if err != nil {
		return false, err
	}
	librariesDir, err := bb.InstallDir(builder.PhaseExportLibraries, builder.LibraryTypeShared)
	if err != nil {
		return false, err
	}
	existing := mfs.ExistingSubset([]mpath.Abs{ifaceDir, librariesDir})
	return len(existing) == 2, nil
}

func binaryVersion(path mpath.Abs) (uint64, error) {
	t, err := mfs.LastWriteTime(path)
	if err != nil {
		return 0, err
	}
	return uint64(t.UnixNano()), nil
}
