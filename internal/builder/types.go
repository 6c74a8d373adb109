// Package builder implements the builder façade, the heart of the
// build engine: per-module build contexts, the three-phase
// (export-interface → export-libraries → import-libraries) driver with
// its re-entry/idempotence/cleanup protocol, and the plugin-mediated
// invocation of non-builder modules.
//
// Grounded on the original C++ implementation's module_graph_t/
// builder_t (module/module_graph.cpp) for the path-accessor surface
// and build_builder_artifacts/build_module_artifacts
// (modules/builder/orchestrator.cpp) for the phase protocol itself:
// the in-progress sentinel, the dlopen/dlsym/dlclose-guarded plugin
// invocation, and remove_all-on-exception cleanup.
package builder

import "github.com/distr1/mgbuild/internal/merrors"

// LibraryType selects between static and shared library artifacts,
// matching the plugin ABI's LibraryType.
type LibraryType int

const (
	LibraryTypeStatic LibraryType = iota
	LibraryTypeShared
)

func (lt LibraryType) String() string {
	switch lt {
	case LibraryTypeStatic:
		return "static"
	case LibraryTypeShared:
		return "shared"
	default:
		return "unknown"
	}
}

// Phase is one of the three well-known build phases.
type Phase int

const (
	PhaseExportInterface Phase = iota
	PhaseExportLibraries
	PhaseImportLibraries
)

func (p Phase) String() string {
	switch p {
	case PhaseExportInterface:
		return "export_interface"
	case PhaseExportLibraries:
		return "export_libraries"
	case PhaseImportLibraries:
		return "import_libraries"
	default:
		return "unknown"
	}
}

// dirName is the phase's top-level artifact subdirectory name:
// interface/, libraries/, import/.
func (p Phase) dirName() string {
	switch p {
	case PhaseExportInterface:
		return "interface"
	case PhaseExportLibraries:
		return "libraries"
	case PhaseImportLibraries:
		return "import"
	default:
		return "unknown"
	}
}

// splitByLibraryType reports whether this phase's build/install
// directories are nested under a static/shared subdirectory (true for
// the two export phases, false for import).
func (p Phase) splitByLibraryType() bool {
	return p == PhaseExportInterface || p == PhaseExportLibraries
}

// pluginSymbol is the well-known exported symbol name for this phase,
// realized in Go as an exported package-level func.
func (p Phase) pluginSymbol() string {
	switch p {
	case PhaseExportInterface:
		return "BuilderExportInterface"
	case PhaseExportLibraries:
		return "BuilderExportLibraries"
	case PhaseImportLibraries:
		return "BuilderImportLibraries"
	default:
		return ""
	}
}

// makeTarget is the Makefile target name invoked for the builder
// module's own phase, matching the wire verbs exactly.
func (p Phase) makeTarget() string { return p.String() }

func checkLibraryType(lt LibraryType) error {
	if lt != LibraryTypeStatic && lt != LibraryTypeShared {
		return merrors.Errorf(merrors.Invariant, "builder: unknown library type %d", lt)
	}
	return nil
}
