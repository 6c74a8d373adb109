package builder

import (
	"fmt"

	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mfs"
	"github.com/distr1/mgbuild/internal/module"
	"github.com/distr1/mgbuild/internal/mpath"
	"github.com/distr1/mgbuild/internal/mtrace"
)

// runPhase drives the three-phase protocol for one (module, phase,
// libType) triple:
//
//  1. Compute the phase's build and install directories.
//  2. If this exact (module, phase, libType) is already being built on
//     this engine run, fail with a re-entry error. The in-memory guard
//     — not a read of the on-disk .in_progress file — is what detects
//     re-entry: the file is observed only by the engine's own thread
//     of control and is therefore a re-entry sentinel, not a
//     cross-process lock; a stale on-disk marker left by a crashed
//     prior run is harmless because step 3 never consults it. See
//     DESIGN.md Open Question decision 5.
//  3. If the install directory already exists, the phase is already
//     done: return its contents without doing any work (idempotence).
//  4. Otherwise create the build and install directories, touch the
//     on-disk .in_progress sentinel, and run the phase (builder
//     module: Env.MakeRunner; otherwise: the module's compiled
//     plugin).
//  5. On failure of the phase, or for export-libraries of the alias
//     update in step 6, remove the phase's entire root directory (not just
//     build or install) and return the error: no partial artifact tree
//     is ever left behind.
//  6. On success, remove the sentinel; for export-libraries, update
//     the alias symlink and prune stale versioned directories.
func (b *Builder) runPhase(phase Phase, libType LibraryType) ([]mpath.Abs, error) {
	key := fmt.Sprintf("%s\x00%s\x00%s", b.module.Name, phase, libType)
	if !b.env.markInProgress(key) {
		return nil, merrors.WrapPhase(merrors.Plugin, b.module.Name, phase.String(),
			fmt.Errorf("re-entry: phase already in progress for this module"))
	}
	defer b.env.clearInProgress(key)

	buildDir, err := b.BuildDir(phase, libType)
	if err != nil {
		return nil, err
	}
	installDir, err := b.InstallDir(phase, libType)
	if err != nil {
		return nil, err
	}

	if mfs.Exists(installDir) {
		return mfs.Find(installDir, mfs.IsRegular, mfs.DescendAlways)
	}

	if err := mfs.CreateDirectories(buildDir); err != nil {
		return nil, merrors.WrapPhase(merrors.FS, b.module.Name, phase.String(), err)
	}
	inProgressRel, err := mpath.NewRel(".in_progress")
	if err != nil {
		return nil, err
	}
	inProgress, err := buildDir.Join(inProgressRel)
	if err != nil {
		return nil, err
	}
	if err := mfs.Touch(inProgress); err != nil {
		return nil, merrors.WrapPhase(merrors.FS, b.module.Name, phase.String(), err)
	}
	if err := mfs.CreateDirectories(installDir); err != nil {
		return nil, merrors.WrapPhase(merrors.FS, b.module.Name, phase.String(), err)
	}

	log := b.env.logger()
	log.Printf("%s: %s: starting", b.module.Name, phase)
	ev := mtrace.ModulePhase(b.module.Name, phase.String(), 0)
	runErr := b.invoke(phase, libType)
	ev.Done()
	if runErr == nil && phase == PhaseExportLibraries {
		runErr = b.updateAliasAndPrune()
	}
	if runErr != nil {
		log.Printf("%s: %s: failed: %v", b.module.Name, phase, runErr)
		root, rootErr := b.phaseRoot(phase)
		if rootErr == nil {
			_ = mfs.RemoveAll(root)
		}
		return nil, runErr
	}
	log.Printf("%s: %s: done", b.module.Name, phase)

	_ = mfs.Remove(inProgress)
	return mfs.Find(installDir, mfs.IsRegular, mfs.DescendAlways)
}

// invoke dispatches to the builder module's own Makefile contract, or
// to the module's compiled plugin: the builder module is exempt from
// the manifest requirement, and by extension from the
// plugin-compilation step too — it is built in, not plugin-loaded.
func (b *Builder) invoke(phase Phase, libType LibraryType) error {
	if b.module.Name == module.BuilderName {
		return b.invokeMake(phase, libType)
	}
	return b.invokePlugin(phase, libType)
}

func (b *Builder) invokePlugin(phase Phase, libType LibraryType) error {
	handle, err := b.loadPlugin()
	if err != nil {
		return err
	}
	sym, err := handle.Resolve(phase.pluginSymbol())
	if err != nil {
		return merrors.WrapPhase(merrors.Plugin, b.module.Name, phase.String(), err)
	}
	scoped := b.forPhase(phase, libType)
	switch phase {
	case PhaseExportInterface:
		// Asserted against the plain function signature, not the named
		// ExportInterfaceFunc type: a plugin's exported func has an
		// unnamed type identical in underlying shape but distinct as a
		// type-assertion target from any named type sharing that shape.
		fn, ok := sym.(func(*Builder, LibraryType) error)
		if !ok {
			return b.badSymbol(phase)
		}
		return merrors.WrapPhase(merrors.Plugin, b.module.Name, phase.String(), fn(scoped, libType))
	case PhaseExportLibraries:
		fn, ok := sym.(func(*Builder, LibraryType) error)
		if !ok {
			return b.badSymbol(phase)
		}
		return merrors.WrapPhase(merrors.Plugin, b.module.Name, phase.String(), fn(scoped, libType))
	case PhaseImportLibraries:
		fn, ok := sym.(func(*Builder) error)
		if !ok {
			return b.badSymbol(phase)
		}
		return merrors.WrapPhase(merrors.Plugin, b.module.Name, phase.String(), fn(scoped))
	default:
		return merrors.Errorf(merrors.Invariant, "builder: unknown phase %v", phase)
	}
}

func (b *Builder) badSymbol(phase Phase) error {
	return merrors.WrapPhase(merrors.Plugin, b.module.Name, phase.String(),
		fmt.Errorf("symbol %s has the wrong type", phase.pluginSymbol()))
}

// loadPlugin returns the module's compiled builder plugin, compiling
// it first if necessary. Concurrent callers for the same module
// collapse onto one compilation via singleflight.
func (b *Builder) loadPlugin() (PluginHandle, error) {
	installPath, err := b.BuilderInstallPath()
	if err != nil {
		return nil, err
	}
	_, err, _ = b.env.group.Do(b.module.Name, func() (interface{}, error) {
		if mfs.Exists(installPath) {
			return nil, nil
		}
		return nil, b.compilePlugin(installPath)
	})
	if err != nil {
		return nil, err
	}
	return b.env.Loader.Load(installPath.String())
}

func (b *Builder) compilePlugin(installPath mpath.Abs) error {
	srcDir, err := b.SrcDir()
	if err != nil {
		return err
	}
	buildDir, err := b.BuilderBuildDir()
	if err != nil {
		return err
	}
	if err := mfs.CreateDirectories(buildDir); err != nil {
		return merrors.WrapModule(merrors.FS, b.module.Name, err)
	}
	if err := mfs.CreateDirectories(installPath.Parent()); err != nil {
		return merrors.WrapModule(merrors.FS, b.module.Name, err)
	}

	linkAgainst, err := b.builderSharedExports()
	if err != nil {
		return err
	}

	if err := b.env.Compiler.CompilePlugin(srcDir, linkAgainst, installPath); err != nil {
		return merrors.WrapModule(merrors.Plugin, b.module.Name, err)
	}
	if !mfs.Exists(installPath) {
		return merrors.WrapModule(merrors.Plugin, b.module.Name,
			fmt.Errorf("compiler did not produce %s", installPath))
	}
	return nil
}

// builderSharedExports returns the builder module's own exported shared
// libraries — its interface files and its compiled libraries, obtained
// by recursively running export_interface and export_libraries for the
// builder module itself with LibraryTypeShared (building them first if
// they aren't already). Every non-builder module's plugin links against
// these, never against another module's own compiled plugin.
func (b *Builder) builderSharedExports() ([]mpath.Abs, error) {
	bb, ok := b.Dependency(module.BuilderName)
	if !ok {
		return nil, merrors.WrapModule(merrors.Invariant, b.module.Name,
			fmt.Errorf("builder module %q not present in the graph", module.BuilderName))
	}
	ifaces, err := bb.ExportInterfaces(LibraryTypeShared)
	if err != nil {
		return nil, err
	}
	groups, err := bb.ExportLibraries(LibraryTypeShared)
	if err != nil {
		return nil, err
	}
	linkAgainst := append([]mpath.Abs{}, ifaces...)
	for _, g := range groups {
		linkAgainst = append(linkAgainst, g...)
	}
	return linkAgainst, nil
}
