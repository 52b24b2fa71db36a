// Package pool implements the fast-file asset pool (C6): the per-(asset
// type, name) registry that owns every asset loaded into a zone, plus the
// process-global registry used to resolve cross-zone references.
package pool

import (
	"sync"

	"golang.org/x/xerrors"
)

// ErrDuplicateAsset is returned when Add is called twice for the same
// (kind, name) with different payloads.
var ErrDuplicateAsset = xerrors.New("pool: duplicate asset")

// Ref names an asset by kind and name, independent of which zone holds it.
type Ref struct {
	Kind int
	Name string
}

// Asset is one typed, named record owned by a Pool: a payload plus the
// dependency and script-string bookkeeping the zone driver needs to order
// loads and to know which script strings a payload references.
type Asset struct {
	Kind              int
	Name              string
	Payload           any
	Dependencies      []Ref
	UsedScriptStrings []uint16
}

// Pool is the asset registry of a single zone: one ordered dictionary per
// kind, plus a flat insertion order used when the zone driver walks "every
// asset in declaration order" (§4.7).
type Pool struct {
	byKind map[int]map[string]*Asset
	order  []*Asset
}

// New creates an empty Pool.
func New() *Pool {
	return &Pool{byKind: make(map[int]map[string]*Asset)}
}

// Add registers a. Re-registering the same (kind, name) with an identical
// payload is a no-op (Testable property 7); registering a different
// payload under the same (kind, name) is ErrDuplicateAsset (Invariant F1).
func (p *Pool) Add(a *Asset) error {
	byName, ok := p.byKind[a.Kind]
	if !ok {
		byName = make(map[string]*Asset)
		p.byKind[a.Kind] = byName
	}
	if existing, ok := byName[a.Name]; ok {
		if existing.Payload == a.Payload {
			return nil
		}
		return xerrors.Errorf("pool: kind %d name %q: %w", a.Kind, a.Name, ErrDuplicateAsset)
	}
	byName[a.Name] = a
	p.order = append(p.order, a)
	return nil
}

// Find looks up an asset by kind and name within this pool only.
func (p *Pool) Find(kind int, name string) (*Asset, bool) {
	byName, ok := p.byKind[kind]
	if !ok {
		return nil, false
	}
	a, ok := byName[name]
	return a, ok
}

// Order returns every asset in insertion (declaration) order.
func (p *Pool) Order() []*Asset {
	return p.order
}

// Len returns the number of assets registered across every kind.
func (p *Pool) Len() int { return len(p.order) }

// Registry is the process-global set of loaded zone pools, searched in
// reverse load order by FindAssetInAnyLoadedZone (§4.6).
type Registry struct {
	mu    sync.Mutex
	zones []*Pool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds p to the set of loaded zones, most-recent last.
func (r *Registry) Register(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = append(r.zones, p)
}

// Unload removes p from the set of loaded zones. Invariant F2 is the
// caller's responsibility: p must not be unloaded while another loaded
// zone still holds a pointer into it.
func (r *Registry) Unload(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, z := range r.zones {
		if z == p {
			r.zones = append(r.zones[:i], r.zones[i+1:]...)
			return
		}
	}
}

// Find scans loaded zones in reverse load order (most recently loaded
// first) for (kind, name), implementing FindAssetInAnyLoadedZone.
func (r *Registry) Find(kind int, name string) (*Asset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.zones) - 1; i >= 0; i-- {
		if a, ok := r.zones[i].Find(kind, name); ok {
			return a, true
		}
	}
	return nil, false
}
