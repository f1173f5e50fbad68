package registry

import (
	"context"
	"slices"

	"github.com/vk/dlsgrid/internal/dag"
	"github.com/vk/dlsgrid/internal/output"
)

// SpanFunc is the work function bound to a span.
type SpanFunc func(ctx context.Context, res *Resources, out *output.Output) error

// ResourceFactory populates the resource handle of a host. It is invoked once
// per group initialization with the address of the host being initialized.
type ResourceFactory func(ctx context.Context, res *Resources, hostAddress string) error

// Host describes a member of the fleet.
type Host struct {
	Name    string
	Address string
	Port    int
	// Has lists the resource tags this host serves with low latency.
	Has []string
}

// Span is one registered unit of work.
type Span struct {
	Name     string
	Requires []string
	// ResourceDeps holds the "@tag" requirements, without the prefix, sorted.
	ResourceDeps []string
	Method       SpanFunc

	placeholder bool
}

// Group is a named DAG of spans.
type Group struct {
	Name  string
	graph *dag.Graph
	spans map[string]*Span
}

func newGroup(name string) *Group {
	return &Group{
		Name:  name,
		graph: dag.New(),
		spans: make(map[string]*Span),
	}
}

// Graph returns the dependency graph of the group. Edges point from a
// requirement to the span that requires it.
func (g *Group) Graph() *dag.Graph {
	return g.graph
}

// Span returns the registered span with the given name.
func (g *Group) Span(name string) (*Span, bool) {
	s, ok := g.spans[name]
	return s, ok
}

// SpanNames returns the span names in registration order, placeholders
// included.
func (g *Group) SpanNames() []string {
	return g.graph.Nodes()
}

// ensure returns the span with the given name, creating a placeholder for
// names that are only known as someone's requirement.
func (g *Group) ensure(name string) *Span {
	if s, ok := g.spans[name]; ok {
		return s
	}
	s := &Span{Name: name, placeholder: true}
	g.spans[name] = s
	g.graph.AddNode(name)
	return s
}

func addResourceDep(s *Span, tag string) {
	if !slices.Contains(s.ResourceDeps, tag) {
		s.ResourceDeps = append(s.ResourceDeps, tag)
		slices.Sort(s.ResourceDeps)
	}
}
