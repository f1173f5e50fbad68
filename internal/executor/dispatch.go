package executor

import (
	"context"

	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/registry"
)

// Propagate controls whether a run may keep forwarding across hosts.
type Propagate string

const (
	// PropagateDefault lets every hop forward further.
	PropagateDefault Propagate = ""
	// PropagateEndless allows exactly one more hop: the receiving host is told
	// to stop at its first remote span.
	PropagateEndless Propagate = "endless"
	// PropagateEndlessStop stops the walk at the first remote span without
	// forwarding.
	PropagateEndlessStop Propagate = "endless-stop"
)

// Dispatch path segments.
const (
	SegmentPropagate = "propagate"
	SegmentStop      = "stop"
)

// Segment returns the path segment sent to the next hop.
func (p Propagate) Segment() string {
	if p == PropagateEndless {
		return SegmentStop
	}
	return SegmentPropagate
}

// ParseSegment maps a received path segment back to a propagation mode.
func ParseSegment(segment string) Propagate {
	if segment == SegmentPropagate {
		return PropagateDefault
	}
	return PropagateEndlessStop
}

// DispatchRequest hands a run over to the host that owns StartTask.
type DispatchRequest struct {
	Target     *registry.Host
	Group      string
	StartTask  string
	Originator string
	// Segment is the propagate path segment, see Propagate.Segment.
	Segment  string
	Executed []string
	Output   *output.Output
}

// DispatchResponse is what the remote host accumulated.
type DispatchResponse struct {
	Output   *output.Output
	Executed []string
}

// Dispatcher delivers a run to a remote host and waits for its answer. The
// trace span carried by ctx is propagated to the remote host.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error)
}
