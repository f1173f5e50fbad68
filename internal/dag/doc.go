// Package dag holds the dependency graph of a single span group. It stores
// spans as nodes and "must complete before" relations as edges, detects
// cycles, produces a deterministic topological order and groups mutually
// independent spans into batches that may execute concurrently.
//
// Insertion order is preserved everywhere: nodes, ancestors and successors
// are reported in the order they were first registered, which makes plans
// reproducible across processes that register the same group.
package dag
