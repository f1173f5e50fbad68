package executor

import "errors"

var (
	// ErrUnsatisfiedAncestor is returned when a local span is reached while one
	// of its ancestors has neither run nor been submitted in this run.
	ErrUnsatisfiedAncestor = errors.New("ancestor has not run")
	// ErrNoMethod is returned when a planned span has no work function.
	ErrNoMethod = errors.New("span has no method")
	// ErrNoDispatcher is returned when a run needs to leave the host but no
	// dispatcher was configured.
	ErrNoDispatcher = errors.New("no dispatcher configured")
	// ErrUnknownHost is returned when a span is assigned to a host that is not
	// registered.
	ErrUnknownHost = errors.New("unknown host")
)
