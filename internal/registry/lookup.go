package registry

import "slices"

// Host returns the host registered under name.
func (r *Registry) Host(name string) (*Host, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hosts.Get(name)
}

// Hosts returns every host in registration order.
func (r *Registry) Hosts() []*Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hosts := make([]*Host, 0, r.hosts.Len())
	for el := r.hosts.Front(); el != nil; el = el.Next() {
		hosts = append(hosts, el.Value)
	}
	return hosts
}

// HostsWith returns the names of the hosts that serve tag, in registration
// order.
func (r *Registry) HostsWith(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.hasIndex[tag])
}

// Group returns the group registered under name.
func (r *Registry) Group(name string) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups.Get(name)
}

// Groups returns the group names in registration order.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups.Keys()
}

// Method returns the work function of a span.
func (r *Registry) Method(group, span string) (SpanFunc, bool) {
	g, ok := r.Group(group)
	if !ok {
		return nil, false
	}
	s, ok := g.Span(span)
	if !ok || s.Method == nil {
		return nil, false
	}
	return s.Method, true
}

// ResourceFactories returns the registered factory names in registration
// order together with the factories themselves.
func (r *Registry) ResourceFactories() ([]string, []ResourceFactory) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, r.resources.Len())
	factories := make([]ResourceFactory, 0, r.resources.Len())
	for el := r.resources.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
		factories = append(factories, el.Value)
	}
	return names, factories
}
