// Package planner assigns every span of a group to a host.
//
// Spans are visited in the order produced by the parallelizer and each one
// gets the first host that applies:
//
//  1. resource affinity: the first host registered for the first of the
//     span's resource tags (in sorted tag order) that any host serves;
//  2. a qualified name "host.local" overrides affinity with its prefix;
//  3. otherwise the host of the previously planned span;
//  4. otherwise no host at all.
//
// A span left without a host is never local to anyone, so running it always
// means a dispatch that cannot succeed. The planner only warns about it.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/dag"
	"github.com/vk/dlsgrid/internal/registry"
)

// PlannedSpan is a span together with its placement.
type PlannedSpan struct {
	Name         string   `json:"name"`
	Host         string   `json:"host"`
	Ancestors    []string `json:"ancestors"`
	Successors   []string `json:"successors"`
	ResourceDeps []string `json:"resource_deps,omitempty"`
	// Batch is the index of the parallel batch the span belongs to.
	Batch int `json:"batch"`
}

// Plan is the ordered, host-assigned plan of one group.
type Plan struct {
	Group   string         `json:"group"`
	Spans   []*PlannedSpan `json:"spans"`
	Batches [][]string     `json:"batches"`
}

// Span returns the planned span with the given name.
func (p *Plan) Span(name string) (*PlannedSpan, bool) {
	for _, s := range p.Spans {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Build orders and places every span of group.
func Build(ctx context.Context, reg *registry.Registry, group string) (*Plan, error) {
	logger := ctxlog.FromContext(ctx).With("group", group)

	g, ok := reg.Group(group)
	if !ok {
		return nil, fmt.Errorf("group '%s' is not registered", group)
	}

	components, err := g.Graph().Components()
	if err != nil {
		return nil, fmt.Errorf("failed to order group '%s': %w", group, err)
	}
	ordered, batches := dag.Parallelise(components)

	batchOf := make(map[string]int, len(ordered))
	for i, batch := range batches {
		for _, name := range batch {
			batchOf[name] = i
		}
	}

	plan := &Plan{Group: group, Batches: batches, Spans: make([]*PlannedSpan, 0, len(ordered))}
	previous := ""
	for _, c := range ordered {
		ps := &PlannedSpan{
			Name:       c.Name,
			Ancestors:  c.Ancestors,
			Successors: c.Successors,
			Batch:      batchOf[c.Name],
		}
		if s, ok := g.Span(c.Name); ok {
			ps.ResourceDeps = s.ResourceDeps
		}

		ps.Host = assignHost(reg, ps, previous)
		if ps.Host == "" {
			logger.Warn("Span has no host; running it will fail to dispatch.", "span", ps.Name)
		} else {
			previous = ps.Host
		}
		logger.Debug("Span planned.", "span", ps.Name, "host", ps.Host, "batch", ps.Batch)
		plan.Spans = append(plan.Spans, ps)
	}

	return plan, nil
}

func assignHost(reg *registry.Registry, s *PlannedSpan, previous string) string {
	host := ""
	for _, tag := range s.ResourceDeps {
		if hosts := reg.HostsWith(tag); len(hosts) > 0 {
			host = hosts[0]
			break
		}
	}

	if prefix, ok := QualifiedHost(s.Name); ok {
		host = prefix
	}

	if host == "" {
		host = previous
	}
	return host
}

// QualifiedHost returns the host prefix of a "host.local" span name. Names
// with no dot or more than one dot are not qualified.
func QualifiedHost(name string) (string, bool) {
	if strings.Count(name, ".") != 1 {
		return "", false
	}
	prefix, _, _ := strings.Cut(name, ".")
	return prefix, true
}
