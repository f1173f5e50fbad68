// Package registry is the central store a scheduler instance is configured
// from.
//
// It holds three kinds of registrations: hosts (where work can run and which
// resource tags they serve with low latency), span groups (a DAG of named
// units of work per group, together with the Go function bound to each span)
// and resource factories (the code that builds the handle every span of a
// host receives).
//
// Registrations are collected first and then finalized with Freeze, which
// rejects duplicate names, requirements that never resolved to a real span
// and dependency cycles. A frozen registry is read-only and safe to share
// between goroutines.
package registry
