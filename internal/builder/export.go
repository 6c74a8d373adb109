package builder

import (
	"github.com/distr1/mgbuild/internal/graph"
	"github.com/distr1/mgbuild/internal/mpath"
)

// ExportInterfaces runs the export-interface phase for every module in
// b's module's SCC subgraph, visiting SCCs dependency-first: the SCCs
// of the target's SCC subgraph are visited in topological order,
// invoking the per-module export on every module of each SCC. The
// returned paths are every installed interface file, across the whole
// subgraph, in that order.
func (b *Builder) ExportInterfaces(libType LibraryType) ([]mpath.Abs, error) {
	if err := checkLibraryType(libType); err != nil {
		return nil, err
	}
	var out []mpath.Abs
	err := b.walkSubgraph(func(single *Builder) error {
		paths, err := single.runPhase(PhaseExportInterface, libType)
		if err != nil {
			return err
		}
		out = append(out, paths...)
		return nil
	})
	return out, err
}

// ExportLibraries runs the export-libraries phase across b's module's
// SCC subgraph, grouped by SCC: the outer slice is topological order
// (dependencies first), the inner slice is every installed library
// path contributed by the modules of that one SCC.
func (b *Builder) ExportLibraries(libType LibraryType) ([][]mpath.Abs, error) {
	if err := checkLibraryType(libType); err != nil {
		return nil, err
	}
	var groups [][]mpath.Abs
	start, ok := b.env.Graph.ByModule[b.module.Name]
	if !ok {
		return nil, nil
	}
	v := graph.NewVisitor()
	err := v.VisitFrom(start, func(scc *graph.SCC) error {
		var group []mpath.Abs
		for _, m := range scc.Modules {
			paths, err := New(b.env, *m).runPhase(PhaseExportLibraries, libType)
			if err != nil {
				return err
			}
			group = append(group, paths...)
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
		return nil
	})
	return groups, err
}

// ImportLibraries runs the import-libraries phase for b's module only
// (not its whole subgraph). Transitivity — pulling in every ancestor's
// exports — is the responsibility of the module's own plugin (or, for
// the builder module, its Makefile), which calls back via Dependency
// and the Export* methods on the Builder values it obtains that way.
func (b *Builder) ImportLibraries() ([]mpath.Abs, error) {
	return b.runPhase(PhaseImportLibraries, LibraryTypeShared)
}

// walkSubgraph invokes fn once per module in b's module's SCC
// subgraph, dependency-first, each module appearing exactly once even
// if reachable through more than one path.
func (b *Builder) walkSubgraph(fn func(*Builder) error) error {
	start, ok := b.env.Graph.ByModule[b.module.Name]
	if !ok {
		return nil
	}
	v := graph.NewVisitor()
	return v.VisitFrom(start, func(scc *graph.SCC) error {
		for _, m := range scc.Modules {
			if err := fn(New(b.env, *m)); err != nil {
				return err
			}
		}
		return nil
	})
}
