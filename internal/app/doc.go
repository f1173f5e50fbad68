// Package app contains the core application logic. It wires the manifest,
// the registry, tracing, metrics and the dispatch server into an App that can
// serve its groups to other hosts or run a group from this host, decoupled
// from any specific entrypoint like a CLI.
package app
