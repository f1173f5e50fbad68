package dag

import (
	"errors"
	"fmt"
	"slices"
)

// ErrCycle is returned when a graph cannot be ordered because it contains a cycle.
var ErrCycle = errors.New("graph contains a cycle")

// TopologicalSort returns every node ID such that each node appears after
// all of its dependencies. Ties are broken by insertion order, so the result
// is deterministic for a given registration sequence.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	pending := make(map[string]int, len(g.nodes))
	var queue []string
	for _, id := range g.order {
		pending[id] = len(g.nodes[id].deps)
		if pending[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, dependent := range g.nodes[id].dependents {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(g.order) {
		var stuck []string
		for _, id := range g.order {
			if pending[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w: unresolved nodes %v", ErrCycle, stuck)
	}
	return sorted, nil
}

// Components builds the parallelizer input for the graph: one Component per
// node, in topological order.
func (g *Graph) Components() ([]Component, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	components := make([]Component, 0, len(order))
	for _, id := range order {
		n := g.nodes[id]
		components = append(components, Component{
			Name:       id,
			Ancestors:  slices.Clone(n.deps),
			Successors: slices.Clone(n.dependents),
		})
	}
	return components, nil
}

// Parallelise groups topologically ordered components into batches of
// mutually independent spans. A component's batch is one past the deepest
// batch of its ancestors, so every member of a batch can run concurrently
// once the previous batches are complete.
//
// The returned components are the input components reordered batch by
// batch; the relative order inside a batch follows the input order.
// Ancestors that are not part of the input are ignored.
func Parallelise(components []Component) ([]Component, [][]string) {
	level := make(map[string]int, len(components))
	var batches [][]string

	for _, c := range components {
		depth := 0
		for _, a := range c.Ancestors {
			if l, ok := level[a]; ok && l+1 > depth {
				depth = l + 1
			}
		}
		level[c.Name] = depth
		for len(batches) <= depth {
			batches = append(batches, nil)
		}
		batches[depth] = append(batches[depth], c.Name)
	}

	ordered := slices.Clone(components)
	slices.SortStableFunc(ordered, func(a, b Component) int {
		return level[a.Name] - level[b.Name]
	})
	return ordered, batches
}
