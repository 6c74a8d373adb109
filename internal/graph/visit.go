package graph

// Visitor performs a memoized, dependency-first (post-order)
// topological traversal of an SCC DAG. A single Visitor's visited set
// accumulates across multiple VisitFrom calls, so for several entry
// points into the same DAG each SCC is still visited exactly once
// overall.
type Visitor struct {
	visited map[*SCC]bool
}

// NewVisitor returns a Visitor with a fresh, empty visited set.
func NewVisitor() *Visitor {
	return &Visitor{visited: map[*SCC]bool{}}
}

// VisitFrom walks the SCC DAG reachable from "from", calling fn on
// each SCC exactly once, dependencies before dependents. Returns the
// first error fn returns, if any, aborting the remainder of the walk.
func (v *Visitor) VisitFrom(from *SCC, fn func(*SCC) error) error {
	if v.visited[from] {
		return nil
	}
	v.visited[from] = true
	for _, dep := range from.DependsOn {
		if err := v.VisitFrom(dep, fn); err != nil {
			return err
		}
	}
	return fn(from)
}
