package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
)

// ResourcePrefix marks a requirement as a resource-affinity declaration
// rather than a span dependency.
const ResourcePrefix = "@"

// ErrFrozen is the panic value used when a frozen registry is modified.
var ErrFrozen = errors.New("registry is frozen")

// Registry holds all hosts, span groups and resource factories of one
// scheduler instance.
type Registry struct {
	mu     sync.RWMutex
	frozen bool

	hosts     *orderedmap.OrderedMap[string, *Host]
	hasIndex  map[string][]string
	groups    *orderedmap.OrderedMap[string, *Group]
	resources *orderedmap.OrderedMap[string, ResourceFactory]

	problems []string
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		hosts:     orderedmap.NewOrderedMap[string, *Host](),
		hasIndex:  make(map[string][]string),
		groups:    orderedmap.NewOrderedMap[string, *Group](),
		resources: orderedmap.NewOrderedMap[string, ResourceFactory](),
	}
}

func (r *Registry) mustBeOpen() {
	if r.frozen {
		panic(ErrFrozen)
	}
}

// RegisterHost inserts or replaces a host. A replaced host keeps its
// position in registration order; the replacement is reported by Freeze.
func (r *Registry) RegisterHost(name, address string, port int, has ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen()

	if _, exists := r.hosts.Get(name); exists {
		r.problems = append(r.problems, fmt.Sprintf("host '%s' registered more than once", name))
	}
	slog.Debug("Registering host.", "name", name, "address", address, "port", port, "has", has)
	r.hosts.Set(name, &Host{Name: name, Address: address, Port: port, Has: slices.Clone(has)})
	r.rebuildIndex()
}

func (r *Registry) rebuildIndex() {
	clear(r.hasIndex)
	for el := r.hosts.Front(); el != nil; el = el.Next() {
		for _, tag := range el.Value.Has {
			if !slices.Contains(r.hasIndex[tag], el.Key) {
				r.hasIndex[tag] = append(r.hasIndex[tag], el.Key)
			}
		}
	}
}

// RegisterSpan adds a span to a group, creating the group on first use.
//
// Requirements prefixed with "@" are recorded as resource dependencies and
// do not create graph edges. Every other requirement names another span of
// the same group and becomes an edge requirement -> name; spans that are not
// registered yet get a placeholder node until they are.
func (r *Registry) RegisterSpan(group, name string, requires []string, method SpanFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen()

	g, ok := r.groups.Get(group)
	if !ok {
		g = newGroup(group)
		r.groups.Set(group, g)
	}

	s := g.ensure(name)
	if !s.placeholder {
		r.problems = append(r.problems, fmt.Sprintf("span '%s' in group '%s' registered more than once", name, group))
	}
	s.placeholder = false
	s.Method = method
	s.Requires = append(s.Requires, requires...)

	for _, req := range requires {
		if tag, isResource := strings.CutPrefix(req, ResourcePrefix); isResource {
			addResourceDep(s, tag)
			continue
		}
		g.ensure(req)
		if err := g.graph.AddEdge(req, name); err != nil {
			// Only a self-requirement can fail here.
			r.problems = append(r.problems, fmt.Sprintf("span '%s' in group '%s': %v", name, group, err))
		}
	}
	slog.Debug("Registering span.", "group", group, "name", name, "requires", requires)
}

// RegisterResource stores a resource factory under name.
func (r *Registry) RegisterResource(name string, factory ResourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen()

	if _, exists := r.resources.Get(name); exists {
		r.problems = append(r.problems, fmt.Sprintf("resource '%s' registered more than once", name))
	}
	slog.Debug("Registering resource factory.", "name", name)
	r.resources.Set(name, factory)
}

// Freeze finalizes the registry. It reports every duplicate registration,
// every requirement that never resolved to a registered span, every span
// without a method and every dependency cycle. On success the registry
// becomes read-only; on failure it stays open so the caller may inspect it.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return nil
	}

	var errs []error
	for _, p := range r.problems {
		errs = append(errs, errors.New(p))
	}

	for el := r.groups.Front(); el != nil; el = el.Next() {
		g := el.Value
		for _, name := range g.graph.Nodes() {
			s := g.spans[name]
			switch {
			case s.placeholder:
				dependents, _ := g.graph.Dependents(name)
				errs = append(errs, fmt.Errorf("group '%s': span '%s' is required by %v but never registered", g.Name, name, dependents))
			case s.Method == nil:
				errs = append(errs, fmt.Errorf("group '%s': span '%s' has no method", g.Name, name))
			}
		}
		if err := g.graph.DetectCycles(); err != nil {
			errs = append(errs, fmt.Errorf("group '%s': %w", g.Name, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	r.frozen = true
	slog.Debug("Registry frozen.", "hosts", r.hosts.Len(), "groups", r.groups.Len(), "resources", r.resources.Len())
	return nil
}

// Frozen reports whether Freeze has succeeded.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
