// Package module defines the Module value type: a name and a
// monotonic version, plus the versioned-artifact-directory and
// alias-directory derivations every other component keys off.
//
// Grounded on the original C++ implementation's module_t
// (module/module_graph.cpp).
package module

import (
	"github.com/distr1/mgbuild/internal/mpath"
)

// BuilderName is the reserved name of the built-in root module.
const BuilderName = "builder"

// Module is a named, versioned node of the module dependency graph.
// Equality is (Name, Version) pairwise.
type Module struct {
	Name    string
	version uint64
}

// New constructs a Module with the given name and version.
func New(name string, version uint64) Module {
	return Module{Name: name, version: version}
}

// Version returns m's version.
func (m Module) Version() uint64 { return m.version }

// SetVersion mutates m's version. Only the version propagator
// (internal/graph) calls this, once per module, during propagation.
func (m *Module) SetVersion(v uint64) { m.version = v }

// Equal reports whether m and other have the same name and version.
func (m Module) Equal(other Module) bool {
	return m.Name == other.Name && m.version == other.version
}

// ArtifactDir returns the versioned artifact root
// <artifactsDir>/<name>/<name>@<version> for m.
func ArtifactDir(artifactsDir mpath.Abs, m Module) (mpath.Abs, error) {
	nameRel, err := mpath.NewRel(m.Name)
	if err != nil {
		return mpath.Abs{}, err
	}
	perModule, err := artifactsDir.Join(nameRel)
	if err != nil {
		return mpath.Abs{}, err
	}
	return perModule.Join(mpath.EncodeVersioned(m.Name, m.version))
}

// AliasDir returns the unversioned "alias" directory
// <artifactsDir>/<name>/alias for module name.
func AliasDir(artifactsDir mpath.Abs, name string) (mpath.Abs, error) {
	nameRel, err := mpath.NewRel(name)
	if err != nil {
		return mpath.Abs{}, err
	}
	perModule, err := artifactsDir.Join(nameRel)
	if err != nil {
		return mpath.Abs{}, err
	}
	aliasRel, err := mpath.NewRel("alias")
	if err != nil {
		return mpath.Abs{}, err
	}
	return perModule.Join(aliasRel)
}
