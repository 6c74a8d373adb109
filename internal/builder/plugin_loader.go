package builder

import "github.com/distr1/mgbuild/internal/mplugin"

// DefaultPluginLoader loads module builder plugins via the stdlib
// plugin package (internal/mplugin), with process-wide, lazily resolved
// symbols — a module's plugin only needs to export the entry points
// its own phases actually use, and Resolve defers the lookup to the
// call that needs it rather than forcing all three up front.
type DefaultPluginLoader struct{}

func (DefaultPluginLoader) Load(path string) (PluginHandle, error) {
	p, err := mplugin.Load(path, mplugin.Options{
		Lifetime:   mplugin.ProcessWide,
		Resolution: mplugin.Lazy,
		Visibility: mplugin.Local,
	})
	if err != nil {
		return nil, err
	}
	return pluginHandle{p}, nil
}

type pluginHandle struct {
	p *mplugin.Plugin
}

func (h pluginHandle) Resolve(name string) (interface{}, error) {
	sym, err := h.p.Resolve(name)
	if err != nil {
		return nil, err
	}
	return sym, nil
}
