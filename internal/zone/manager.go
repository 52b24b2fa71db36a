package zone

import (
	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/loader"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
)

// manager implements loader.Manager, dispatching an asset-loader plugin
// against a zone under construction and resolving LoadDependency calls
// recursively, per §6.2.
type manager struct {
	zone        *Zone
	loaders     *loader.Registry
	assetSearch []string
	gdtSearch   []string
	gdt         *loader.GDT
}

func (m *manager) AddAsset(a *pool.Asset) error { return m.zone.assets.Add(a) }

func (m *manager) LoadDependency(kind int, name string) (*pool.Asset, error) {
	return m.load(kind, name)
}

// load dispatches (kind, name) per §4.7 build-path step 4: a GDT-capable
// loader is tried first, then a raw-search-path-capable one, falling back
// to an existing pool reference (load_from_global_pools) if neither
// succeeds.
func (m *manager) load(kind int, name string) (*pool.Asset, error) {
	if a, ok := m.zone.assets.Find(kind, name); ok {
		return a, nil
	}
	l, ok := m.loaders.Get(kind)
	if !ok {
		return nil, xerrors.Errorf("zone: kind %d name %q: %w", kind, name, ErrNoLoader)
	}

	var res loader.Result
	var err error
	loaded := false
	if l.CanLoadFromGDT() {
		res, err = l.LoadFromGDT(name, m.gdt, m, m.zone)
		loaded = err == nil
	}
	if !loaded && l.CanLoadFromRaw() {
		res, err = l.LoadFromRaw(name, m.assetSearch, m, m.zone)
		loaded = err == nil
	}
	if !loaded {
		if a, ok := l.LoadFromGlobalPools(name); ok {
			return a, nil
		}
		if err == nil {
			err = xerrors.Errorf("zone: kind %d name %q: no load path succeeded", kind, name)
		}
		return nil, err
	}

	a := &pool.Asset{
		Kind:              kind,
		Name:              name,
		Payload:           res.Payload,
		Dependencies:      res.Dependencies,
		UsedScriptStrings: res.UsedScriptStrings,
	}
	if err := m.zone.assets.Add(a); err != nil {
		return nil, err
	}
	return a, nil
}
