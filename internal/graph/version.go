package graph

import "github.com/distr1/mgbuild/internal/module"

// Propagate assigns the final, monotonic version to every module
// reachable from sccg.ByModule[targetName]: each SCC's version is the
// maximum of a global floor (the builder module's own raw version),
// the propagated version of every dependency SCC, and the raw version
// of every member module. The same version is assigned to every
// module in an SCC; for every edge a→b, version(a) >= version(b)
// after propagation.
//
// Propagate is idempotent: re-invoking it on the same graph yields the
// same versions.
func Propagate(sccg *SCCGraph, builderModule *module.Module, targetName string) {
	floor := builderModule.Version()
	visited := map[*SCC]uint64{}

	var visit func(s *SCC) uint64
	visit = func(s *SCC) uint64 {
		if v, ok := visited[s]; ok {
			return v
		}
		v := floor
		for _, dep := range s.DependsOn {
			if dv := visit(dep); dv > v {
				v = dv
			}
		}
		for _, m := range s.Modules {
			if m.Version() > v {
				v = m.Version()
			}
		}
		visited[s] = v
		for _, m := range s.Modules {
			m.SetVersion(v)
		}
		return v
	}

	if target, ok := sccg.ByModule[targetName]; ok {
		visit(target)
	}
	// The builder module's own SCC must also be propagated (it may
	// not be reachable as a dependency of the target), so that its
	// Version() reflects the floor even when it depends on nothing.
	if builderSCC, ok := sccg.ByModule[builderModule.Name]; ok {
		visit(builderSCC)
	}
}
