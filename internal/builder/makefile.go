package builder

import (
	"sort"

	"github.com/distr1/mgbuild/internal/mproc"
)

// invokeMake builds the environment for the builder module's own
// phase target and runs `make <target> VAR=value...` in its source
// directory, via the process runner: SOURCE_DIR, LIBRARY_TYPE, the six
// phase-specific build/install directories (every phase's, not just
// the one being invoked), ARTIFACT_DIR and ARTIFACT_ALIAS_DIR are
// passed as make variables. A builder Makefile rule for any one phase
// is free to reference another phase's directories (export_libraries
// commonly reads back what export_interface installed), so all six
// are always defined.
func (b *Builder) invokeMake(phase Phase, libType LibraryType) error {
	vars, err := b.makeVars(phase, libType)
	if err != nil {
		return err
	}
	if b.env.MakeRunner != nil {
		return b.env.MakeRunner(phase, vars)
	}
	return defaultMakeRunner(b, phase, vars)
}

func (b *Builder) makeVars(phase Phase, libType LibraryType) (MakeVars, error) {
	srcDir, err := b.SrcDir()
	if err != nil {
		return nil, err
	}
	buildDir, err := b.BuildDir(phase, libType)
	if err != nil {
		return nil, err
	}
	installDir, err := b.InstallDir(phase, libType)
	if err != nil {
		return nil, err
	}
	artifactDir, err := b.ArtifactDir()
	if err != nil {
		return nil, err
	}
	aliasDir, err := b.AliasDir()
	if err != nil {
		return nil, err
	}
	ifaceBuild, err := b.BuildDir(PhaseExportInterface, libType)
	if err != nil {
		return nil, err
	}
	ifaceInstall, err := b.InstallDir(PhaseExportInterface, libType)
	if err != nil {
		return nil, err
	}
	libsBuild, err := b.BuildDir(PhaseExportLibraries, libType)
	if err != nil {
		return nil, err
	}
	libsInstall, err := b.InstallDir(PhaseExportLibraries, libType)
	if err != nil {
		return nil, err
	}
	importBuild, err := b.BuildDir(PhaseImportLibraries, libType)
	if err != nil {
		return nil, err
	}
	importInstall, err := b.InstallDir(PhaseImportLibraries, libType)
	if err != nil {
		return nil, err
	}
	return MakeVars{
		"SOURCE_DIR":            srcDir.String(),
		"LIBRARY_TYPE":          libType.String(),
		"BUILD_DIR":             buildDir.String(),
		"INSTALL_DIR":           installDir.String(),
		"ARTIFACT_DIR":          artifactDir.String(),
		"ARTIFACT_ALIAS_DIR":    aliasDir.String(),
		"INTERFACE_BUILD_DIR":   ifaceBuild.String(),
		"INTERFACE_INSTALL_DIR": ifaceInstall.String(),
		"LIBRARIES_BUILD_DIR":   libsBuild.String(),
		"LIBRARIES_INSTALL_DIR": libsInstall.String(),
		"IMPORT_BUILD_DIR":      importBuild.String(),
		"IMPORT_INSTALL_DIR":    importInstall.String(),
	}, nil
}

// defaultMakeRunner shells out to `make` in the module's source
// directory.
func defaultMakeRunner(b *Builder, phase Phase, vars MakeVars) error {
	srcDir, err := b.SrcDir()
	if err != nil {
		return err
	}
	argv := []string{"make", "-C", srcDir.String(), phase.makeTarget()}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		argv = append(argv, k+"="+vars[k])
	}
	_, err = mproc.SpawnAndWait(argv)
	return err
}
