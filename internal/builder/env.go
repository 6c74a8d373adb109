package builder

import (
	"log"
	"sync"

	"github.com/distr1/mgbuild/internal/graph"
	"github.com/distr1/mgbuild/internal/mpath"
	"golang.org/x/sync/singleflight"
)

// Compiler produces a loadable plugin shared object for a non-builder
// module from its builder.cpp source. It is the engine's sole
// external collaborator for turning module source into a runnable
// artifact; the compiler itself is out of scope, so the engine only
// ever invokes this interface, never a compiler directly.
type Compiler interface {
	CompilePlugin(srcDir mpath.Abs, linkAgainst []mpath.Abs, out mpath.Abs) error
}

// PluginHandle is the subset of a loaded plugin the builder façade
// needs: resolving one of the three well-known phase entry points.
type PluginHandle interface {
	Resolve(name string) (interface{}, error)
}

// PluginLoader loads a compiled plugin shared object by path.
type PluginLoader interface {
	Load(path string) (PluginHandle, error)
}

// MakeVars are the environment variables passed to the builder
// module's own Makefile invocation.
type MakeVars map[string]string

// MakeRunner invokes the builder module's own phase target (there is
// no plugin for the builder module itself — it is compiled in; the
// builder module is exempt from the manifest requirement).
type MakeRunner func(phase Phase, vars MakeVars) error

// ExportInterfaceFunc, ExportLibrariesFunc and ImportLibrariesFunc are
// the Go realization of the plugin ABI's three exported entry points:
// a module's compiled plugin exports package-level functions with
// these signatures under the names BuilderExportInterface,
// BuilderExportLibraries and BuilderImportLibraries.
type (
	ExportInterfaceFunc func(b *Builder, lt LibraryType) error
	ExportLibrariesFunc func(b *Builder, lt LibraryType) error
	ImportLibrariesFunc func(b *Builder) error
)

// Env is the build-run-wide state shared by every Builder value
// constructed against one invocation of the engine: the resolved
// module graph, the artifact root, and the pluggable compiler/loader/
// make-runner collaborators. Grounded on the original C++
// implementation's module_graph_t, which likewise owns the single
// shared graph every per-module builder_t is constructed against
// (module/module_graph.cpp).
type Env struct {
	Graph        *graph.SCCGraph
	ModulesDir   mpath.Abs
	ArtifactsDir mpath.Abs
	Compiler     Compiler
	Loader       PluginLoader
	MakeRunner   MakeRunner

	// Log receives one line per phase start/finish. Left nil by
	// zero-value Env (as in tests); callers needing output set it to
	// log.New(os.Stderr, "", log.LstdFlags) or similar.
	Log *log.Logger

	group        singleflight.Group
	inProgressMu sync.Mutex
	inProgress   map[string]bool
}

// logger returns env.Log, falling back to a discard logger so call
// sites never need a nil check.
func (env *Env) logger() *log.Logger {
	if env.Log != nil {
		return env.Log
	}
	return log.New(discardWriter{}, "", 0)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (env *Env) markInProgress(key string) bool {
	env.inProgressMu.Lock()
	defer env.inProgressMu.Unlock()
	if env.inProgress == nil {
		env.inProgress = map[string]bool{}
	}
	if env.inProgress[key] {
		return false
	}
	env.inProgress[key] = true
	return true
}

func (env *Env) clearInProgress(key string) {
	env.inProgressMu.Lock()
	defer env.inProgressMu.Unlock()
	delete(env.inProgress, key)
}
