// Package executor runs a span group on one host.
//
// InitializeGroup binds a group to a host: it plans the group, sizes a
// worker pool to the plan and builds the host's resource handle. RunGroup
// then walks the plan once per call. Spans assigned to this host run on the
// pool; reaching a span owned by another host hands the run over to that
// host through a Dispatcher after every local span submitted so far has
// finished. The remote host answers with the output it accumulated and the
// spans it ran, and the walk resumes past them.
package executor
