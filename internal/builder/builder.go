package builder

import (
	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mfs"
	"github.com/distr1/mgbuild/internal/module"
	"github.com/distr1/mgbuild/internal/mpath"
)

// Builder is a per-module build context: one value per module, bound
// to the shared Env. Plugins receive a Builder constructed specifically
// for the phase being invoked (activePhase set), so their InstallX
// calls are unambiguous about which phase's install directory to
// deposit into. Grounded on the original C++ implementation's
// builder_t (module/module_graph.cpp), which likewise carries a module
// reference, a path-accessor surface and phase-scoped sinks.
type Builder struct {
	env    *Env
	module module.Module

	activePhase   *Phase
	activeLibType LibraryType
}

// New returns a Builder bound to m, usable for path queries and for
// driving the phase protocol (ExportInterfaces, ExportLibraries,
// ImportLibraries). It has no active phase, so its InstallX sinks fail
// if called.
func New(env *Env, m module.Module) *Builder {
	return &Builder{env: env, module: m}
}

// forPhase returns a copy of b scoped to an active phase invocation —
// a fresh Builder bound to the module being built, handed to a plugin.
func (b *Builder) forPhase(phase Phase, lt LibraryType) *Builder {
	p := phase
	return &Builder{env: b.env, module: b.module, activePhase: &p, activeLibType: lt}
}

// Module returns the module b is bound to.
func (b *Builder) Module() module.Module { return b.module }

// Dependency returns a Builder bound to the module called name, looked
// up in the shared graph; it does not check that the module is a
// dependency of b's module (builderSharedExports uses it to reach the
// builder module). A
// module's own ImportLibraries implementation uses this to recursively
// pull in what its dependencies must export — transitively importing
// every ancestor through plugin-driven recursion rather than
// engine-forced fan-out.
func (b *Builder) Dependency(name string) (*Builder, bool) {
	m, ok := b.env.Graph.ByModule[name]
	if !ok || len(m.Modules) == 0 {
		return nil, false
	}
	for _, candidate := range m.Modules {
		if candidate.Name == name {
			return New(b.env, *candidate), true
		}
	}
	return nil, false
}

// SrcDir returns the module's source directory, <modulesDir>/<name>.
func (b *Builder) SrcDir() (mpath.Abs, error) {
	rel, err := mpath.NewRel(b.module.Name)
	if err != nil {
		return mpath.Abs{}, err
	}
	return b.env.ModulesDir.Join(rel)
}

// ArtifactDir returns the module's versioned artifact root,
// <artifactsDir>/<name>/<name>@<version>.
func (b *Builder) ArtifactDir() (mpath.Abs, error) {
	return module.ArtifactDir(b.env.ArtifactsDir, b.module)
}

// AliasDir returns the module's unversioned alias symlink path,
// <artifactsDir>/<name>/alias.
func (b *Builder) AliasDir() (mpath.Abs, error) {
	return module.AliasDir(b.env.ArtifactsDir, b.module.Name)
}

func (b *Builder) phaseRoot(phase Phase) (mpath.Abs, error) {
	artifactDir, err := b.ArtifactDir()
	if err != nil {
		return mpath.Abs{}, err
	}
	rel, err := mpath.NewRel(phase.dirName())
	if err != nil {
		return mpath.Abs{}, err
	}
	return artifactDir.Join(rel)
}

// BuildDir returns the build-scratch directory for phase (and, for the
// two export phases, libType). Compilers and Makefile invocations
// write intermediate output here.
func (b *Builder) BuildDir(phase Phase, libType LibraryType) (mpath.Abs, error) {
	return b.phaseSubdir(phase, libType, "build")
}

// InstallDir returns the install directory for phase (and, for the two
// export phases, libType) — the directory whose mere existence marks
// that phase complete.
func (b *Builder) InstallDir(phase Phase, libType LibraryType) (mpath.Abs, error) {
	return b.phaseSubdir(phase, libType, "install")
}

func (b *Builder) phaseSubdir(phase Phase, libType LibraryType, leaf string) (mpath.Abs, error) {
	root, err := b.phaseRoot(phase)
	if err != nil {
		return mpath.Abs{}, err
	}
	if phase.splitByLibraryType() {
		if err := checkLibraryType(libType); err != nil {
			return mpath.Abs{}, err
		}
		ltRel, err := mpath.NewRel(libType.String())
		if err != nil {
			return mpath.Abs{}, err
		}
		root, err = root.Join(ltRel)
		if err != nil {
			return mpath.Abs{}, err
		}
	}
	leafRel, err := mpath.NewRel(leaf)
	if err != nil {
		return mpath.Abs{}, err
	}
	return root.Join(leafRel)
}

// BuilderBuildDir returns the scratch directory created for compiling
// the module's own plugin (builder.cpp, compiled via Env.Compiler):
// <artifactsDir>/<name>/<name>@<version>/builder/build. The compiler
// itself writes the plugin directly to BuilderInstallPath.
func (b *Builder) BuilderBuildDir() (mpath.Abs, error) {
	artifactDir, err := b.ArtifactDir()
	if err != nil {
		return mpath.Abs{}, err
	}
	builderRel, err := mpath.NewRel("builder")
	if err != nil {
		return mpath.Abs{}, err
	}
	builderDir, err := artifactDir.Join(builderRel)
	if err != nil {
		return mpath.Abs{}, err
	}
	buildRel, err := mpath.NewRel("build")
	if err != nil {
		return mpath.Abs{}, err
	}
	return builderDir.Join(buildRel)
}

// BuilderInstallPath returns the compiled plugin's final install path:
// <artifactsDir>/<name>/<name>@<version>/builder/install/builder.so.
func (b *Builder) BuilderInstallPath() (mpath.Abs, error) {
	artifactDir, err := b.ArtifactDir()
	if err != nil {
		return mpath.Abs{}, err
	}
	builderRel, err := mpath.NewRel("builder")
	if err != nil {
		return mpath.Abs{}, err
	}
	builderDir, err := artifactDir.Join(builderRel)
	if err != nil {
		return mpath.Abs{}, err
	}
	installRel, err := mpath.NewRel("install")
	if err != nil {
		return mpath.Abs{}, err
	}
	installDir, err := builderDir.Join(installRel)
	if err != nil {
		return mpath.Abs{}, err
	}
	soRel, err := mpath.NewRel("builder.so")
	if err != nil {
		return mpath.Abs{}, err
	}
	return installDir.Join(soRel)
}

// InstallInterface deposits src at rel within the currently active
// export-interface phase's install directory. It fails if b was not
// constructed for an active export-interface invocation.
func (b *Builder) InstallInterface(src mpath.Abs, rel mpath.Rel) error {
	return b.install(PhaseExportInterface, src, rel)
}

// InstallLibrary deposits src at rel within the currently active
// export-libraries phase's install directory.
func (b *Builder) InstallLibrary(src mpath.Abs, rel mpath.Rel) error {
	return b.install(PhaseExportLibraries, src, rel)
}

// InstallImport deposits src at rel within the currently active
// import-libraries phase's install directory.
func (b *Builder) InstallImport(src mpath.Abs, rel mpath.Rel) error {
	return b.install(PhaseImportLibraries, src, rel)
}

func (b *Builder) install(want Phase, src mpath.Abs, rel mpath.Rel) error {
	if b.activePhase == nil || *b.activePhase != want {
		return merrors.WrapModule(merrors.Invariant, b.module.Name,
			merrors.Errorf(merrors.Invariant, "builder: Install%s called outside an active %s phase", want.dirName(), want))
	}
	installDir, err := b.InstallDir(want, b.activeLibType)
	if err != nil {
		return err
	}
	dest, err := installDir.Join(rel)
	if err != nil {
		return err
	}
	return mfs.Copy(src, dest)
}
