// Package interop is the wire protocol hosts use to hand a run over to each
// other.
//
// A hand-over is a single HTTP request:
//
//	POST /dispatch/{group}/{start_task}/{originator}/{propagate}
//	Executed-Spans: a,b,c
//
// The body is the JSON encoded output accumulated so far and the trace
// context travels in the OpenTracing HTTP headers. The receiver resumes the
// group at start_task and answers with the output it accumulated; its
// Executed-Spans response header is a superset of the request's.
package interop

import "strings"

// HeaderExecutedSpans carries the comma-joined names of the spans that ran.
const HeaderExecutedSpans = "Executed-Spans"

// ParseExecuted splits an Executed-Spans header value.
func ParseExecuted(header string) []string {
	var names []string
	for _, name := range strings.Split(header, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// JoinExecuted builds an Executed-Spans header value from the union of the
// given lists, keeping first-seen order.
func JoinExecuted(lists ...[]string) string {
	seen := make(map[string]bool)
	var names []string
	for _, list := range lists {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return strings.Join(names, ",")
}
