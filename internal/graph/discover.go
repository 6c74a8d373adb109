// Package graph implements the dependency discoverer, the SCC
// builder, the version propagator and the topological visitor.
//
// Grounded on the original C++ implementation's populate_dependencies
// (modules/builder/orchestrator.cpp), reworked so that a dependency
// cycle is absorbed into an SCC rather than rejected as an error,
// unlike the original's VISITING-state cycle detector.
package graph

import (
	"encoding/json"
	"os"
	"time"

	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mfs"
	"github.com/distr1/mgbuild/internal/module"
	"github.com/distr1/mgbuild/internal/mpath"
)

// Graph is the raw discovered module dependency graph: every module
// reachable from the target (and the target itself), plus the
// as-declared dependency list for each non-builder module.
type Graph struct {
	ModulesDir    mpath.Abs
	ModulesByName map[string]*module.Module
	Deps          map[string][]string // module name -> declared deps.json deps, non-builder modules only
	Target        string
}

// manifest mirrors the deps.json wire format.
type manifest struct {
	Deps []string `json:"deps"`
}

// Discover reads the per-module deps.json manifests starting from
// targetName and returns the transitive module graph. A module named
// "builder" is exempt from requiring deps.json.
func Discover(modulesDir mpath.Abs, targetName string) (*Graph, error) {
	g := &Graph{
		ModulesDir:    modulesDir,
		ModulesByName: map[string]*module.Module{},
		Deps:          map[string][]string{},
		Target:        targetName,
	}
	if err := discoverModule(g, targetName); err != nil {
		return nil, err
	}
	return g, nil
}

func discoverModule(g *Graph, name string) error {
	if _, ok := g.ModulesByName[name]; ok {
		return nil // already present: also breaks cycles, since deps are only
		// read the first time a name is discovered.
	}

	moduleDir, err := joinModule(g.ModulesDir, name)
	if err != nil {
		return err
	}
	if !mfs.Exists(moduleDir) {
		return merrors.Errorf(merrors.UserInput, "mgbuild: module directory does not exist: %s", moduleDir)
	}

	version, err := maxMTimeUnder(moduleDir)
	if err != nil {
		return merrors.WrapModule(merrors.FS, name, err)
	}
	m := module.New(name, version)
	g.ModulesByName[name] = &m

	if name == module.BuilderName {
		return nil // built-in root: exempt from manifest requirement
	}

	builderCppRel, err := mpath.NewRel("builder.cpp")
	if err != nil {
		return err
	}
	builderCpp, err := moduleDir.Join(builderCppRel)
	if err != nil {
		return err
	}
	if !mfs.IsRegularFile(builderCpp) {
		return merrors.Errorf(merrors.UserInput, "mgbuild: missing %s", builderCpp)
	}

	depsJSONRel, err := mpath.NewRel("deps.json")
	if err != nil {
		return err
	}
	depsJSONPath, err := moduleDir.Join(depsJSONRel)
	if err != nil {
		return err
	}
	if !mfs.Exists(depsJSONPath) {
		return merrors.Errorf(merrors.UserInput, "mgbuild: missing %s", depsJSONPath)
	}

	deps, err := parseManifest(depsJSONPath)
	if err != nil {
		return err
	}
	g.Deps[name] = deps

	for _, dep := range deps {
		if err := discoverModule(g, dep); err != nil {
			return err
		}
	}
	return nil
}

func joinModule(modulesDir mpath.Abs, name string) (mpath.Abs, error) {
	rel, err := mpath.NewRel(name)
	if err != nil {
		return mpath.Abs{}, merrors.Errorf(merrors.UserInput, "mgbuild: invalid module name %q: %w", name, err)
	}
	return modulesDir.Join(rel)
}

func parseManifest(path mpath.Abs) ([]string, error) {
	b, err := os.ReadFile(path.String())
	if err != nil {
		return nil, merrors.Errorf(merrors.FS, "mgbuild: reading %s: %w", path, err)
	}
	var man manifest
	if err := json.Unmarshal(b, &man); err != nil {
		return nil, merrors.Errorf(merrors.UserInput, "mgbuild: malformed manifest %s: %w", path, err)
	}
	seen := map[string]bool{}
	for _, dep := range man.Deps {
		if dep == "" {
			return nil, merrors.Errorf(merrors.UserInput, "mgbuild: manifest %s contains an empty dependency name", path)
		}
		if seen[dep] {
			return nil, merrors.Errorf(merrors.Graph, "mgbuild: manifest %s contains duplicate dependency %q", path, dep)
		}
		seen[dep] = true
	}
	return man.Deps, nil
}

// maxMTimeUnder returns the maximum last-modification timestamp, as
// Unix nanoseconds, across every entry reachable under dir — the raw
// per-module version. Unix nanoseconds give a total order that is
// portable across machines, unlike the original's raw host-epoch cast.
func maxMTimeUnder(dir mpath.Abs) (uint64, error) {
	entries, err := mfs.Find(dir, mfs.IncludeAll, mfs.DescendAlways)
	if err != nil {
		return 0, err
	}
	var max time.Time
	for _, e := range entries {
		t, err := mfs.LastWriteTime(e)
		if err != nil {
			return 0, err
		}
		if t.After(max) {
			max = t
		}
	}
	if max.IsZero() {
		return 0, nil
	}
	return uint64(max.UnixNano()), nil
}
