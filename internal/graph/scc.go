package graph

import (
	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mfs"
	"github.com/distr1/mgbuild/internal/module"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// SCC is a strongly connected component of the module dependency
// graph: a non-empty set of modules plus the other SCCs it depends on.
type SCC struct {
	Modules   []*module.Module
	DependsOn []*SCC // deduplicated, first-seen order
}

// SCCGraph is the DAG of SCCs produced by BuildSCCs.
type SCCGraph struct {
	SCCs     []*SCC
	ByModule map[string]*SCC
}

// BuildSCCs groups g's modules into strongly connected components
// using Tarjan's algorithm, via gonum's graph/topo implementation.
//
// If no module named "builder" was discovered, one is synthesized: a
// singleton SCC containing a module whose version is the maximum
// last-write time under modulesDir/builder, or zero if that directory
// does not exist.
func BuildSCCs(g *Graph) (*SCCGraph, error) {
	if _, ok := g.ModulesByName[module.BuilderName]; !ok {
		if err := synthesizeBuilder(g); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(g.ModulesByName))
	idByName := make(map[string]int64, len(g.ModulesByName))
	for name := range g.ModulesByName {
		idByName[name] = int64(len(names))
		names = append(names, name)
	}

	dg := simple.NewDirectedGraph()
	for _, id := range idByName {
		dg.AddNode(simple.Node(id))
	}
	for name, deps := range g.Deps {
		for _, dep := range deps {
			if name == dep {
				continue // a self-dependency is never an edge
			}
			fromID, ok := idByName[name]
			if !ok {
				continue
			}
			toID, ok := idByName[dep]
			if !ok {
				continue
			}
			dg.SetEdge(dg.NewEdge(simple.Node(fromID), simple.Node(toID)))
		}
	}

	components := topo.TarjanSCC(dg)

	sccg := &SCCGraph{ByModule: map[string]*SCC{}}
	sccByID := make(map[int64]*SCC, len(components))
	for _, component := range components {
		scc := &SCC{}
		for _, node := range component {
			id := node.ID()
			name := names[id]
			m := g.ModulesByName[name]
			scc.Modules = append(scc.Modules, m)
			sccByID[id] = scc
			sccg.ByModule[name] = scc
		}
		sccg.SCCs = append(sccg.SCCs, scc)
	}

	seenEdge := make(map[*SCC]map[*SCC]bool)
	for name, deps := range g.Deps {
		fromSCC := sccg.ByModule[name]
		for _, dep := range deps {
			toSCC, ok := sccg.ByModule[dep]
			if !ok || toSCC == fromSCC {
				continue
			}
			if seenEdge[fromSCC] == nil {
				seenEdge[fromSCC] = map[*SCC]bool{}
			}
			if seenEdge[fromSCC][toSCC] {
				continue
			}
			seenEdge[fromSCC][toSCC] = true
			fromSCC.DependsOn = append(fromSCC.DependsOn, toSCC)
		}
	}

	return sccg, nil
}

func synthesizeBuilder(g *Graph) error {
	dir, err := joinModule(g.ModulesDir, module.BuilderName)
	if err != nil {
		return err
	}
	var version uint64
	if mfs.Exists(dir) {
		v, err := maxMTimeUnder(dir)
		if err != nil {
			return merrors.WrapModule(merrors.FS, module.BuilderName, err)
		}
		version = v
	}
	m := module.New(module.BuilderName, version)
	g.ModulesByName[module.BuilderName] = &m
	return nil
}
